package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AuctionRecord 代表一場拍賣會的登記資料
// 記錄拍賣名稱與對應的聯盟座標，作為成交紀錄的歸屬
type AuctionRecord struct {
	gorm.Model

	ID     uuid.UUID `gorm:"type:uuid;default:public.uuid_generate_v7();primaryKey;<-:false"`
	RoomID string    `gorm:"type:varchar(255);not null;uniqueIndex;<-:create"`
	Name   string    `gorm:"type:varchar(255);not null"`
	Group  string    `gorm:"type:varchar(255);not null;<-:create"`
	League string    `gorm:"type:varchar(255);not null;<-:create"`
	Basket string    `gorm:"type:varchar(255);not null;<-:create"`
	Year   string    `gorm:"type:varchar(255);not null;<-:create"`

	// 外鍵關聯
	Sales []SaleRecord `gorm:"foreignKey:AuctionRecordID"`
}
