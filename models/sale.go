package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SaleRecord 代表拍賣會中的一筆成交紀錄
// 記錄球員名稱、成交價與得標隊伍
type SaleRecord struct {
	*gorm.Model

	ID              uuid.UUID `gorm:"type:uuid;default:public.uuid_generate_v7();primaryKey;<-:false"`
	AuctionRecordID uuid.UUID `gorm:"type:uuid;not null;<-:create"`
	PlayerName      string    `gorm:"type:varchar(255);not null;<-:create"`
	PlayerRole      string    `gorm:"type:varchar(255);not null;<-:create"`
	Price           uint32    `gorm:"type:integer;not null;<-:create"`
	Buyer           string    `gorm:"type:varchar(255);not null;<-:create"`
	BuyerEmail      string    `gorm:"type:varchar(255);not null;<-:create"`
	SoldAt          time.Time `gorm:"type:timestamp with time zone;not null;<-:create"`

	// 外鍵關聯
	AuctionRecord AuctionRecord
}
