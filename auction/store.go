//go:generate mockgen -package=auction -destination=mock.go -source=store.go

package auction

import "context"

// Store 是拍賣會狀態文件的權威儲存層。
// 每個被接受的寫入最終都會以提交順序傳遞給所有訂閱者。
//
// Commit 採用逐場次的版本條件寫入：呼叫者帶上讀取時的版本號，
// 版本已前進時返回 ErrVersionConflict，由呼叫者以最新快照重試。
// 這是對來源系統 last-writer-wins 語意的刻意強化。
type Store interface {
	// Create 建立新的拍賣會文件，ID 重複時返回 ErrSessionExists
	Create(ctx context.Context, session *Session) error
	// Read 讀取當前快照，不存在時返回 ErrSessionNotFound
	Read(ctx context.Context, id string) (*Session, error)
	// Commit 以版本條件套用局部修改，成功時返回提交後的快照
	Commit(ctx context.Context, id string, expectedVersion uint64, ops ...PatchOp) (*Session, error)
	// Subscribe 訂閱指定拍賣會的快照串流，訂閱當下的版本也會送達；
	// 返回的函式用於取消訂閱
	Subscribe(id string) (<-chan Session, func(), error)
}
