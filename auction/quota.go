//go:generate mockgen -package=auction -destination=mock_quota.go -source=quota.go

package auction

import "context"

// RosterCounter 回答「這位擁有者目前持有幾名某位置的球員」。
// 計數來自外部名冊系統的快照，允許短暫過期(由實作端的TTL快取控制)，
// 本套件不做持久化快取。
type RosterCounter interface {
	// CountByRole 返回擁有者名冊中指定位置的球員數。
	// known 為 false 表示外部系統查不到該擁有者的名冊，此時不套用配額。
	CountByRole(ctx context.Context, ownerEmail string, role Role) (count int, known bool, err error)
}

// LotInfo 提供上拍球員的目錄查詢。
// 配額檢查只關心位置，進度控制還需要名稱正規化比對。
type LotInfo interface {
	// RoleOf 返回球員的位置，目錄中查無此人時 ok 為 false
	RoleOf(name string) (role Role, ok bool)
}
