//go:generate mockgen -package=sse -destination=mock.go -source=interfaces.go

package sse

import "pulsantiera/auction"

// IChannel 定義了 SSE 頻道的介面
type IChannel[T any] interface {
	// Subscribe 建立一個新的訂閱並返回接收訊息的通道
	Subscribe() <-chan T
	// Unsubscribe 取消指定通道的訂閱
	Unsubscribe(ch <-chan T)
	// UnsubscribeAll 取消所有訂閱
	UnsubscribeAll()
	// Broadcast 將訊息廣播給所有訂閱者
	Broadcast(message T)
	// IsIdle 檢查是否沒有訂閱者
	IsIdle() bool
}

// ISnapshotSource 定義了 Hub 所需的上游快照來源，
// 由儲存層的即時訂閱功能實作
type ISnapshotSource interface {
	Subscribe(id string) (<-chan auction.Session, func(), error)
}

// IHub 定義了 SSE 連線集散器的介面
type IHub interface {
	// Subscribe 訂閱指定拍賣會的狀態快照
	Subscribe(auctionID string) (<-chan auction.Session, error)
	// Unsubscribe 取消訂閱指定拍賣會
	Unsubscribe(auctionID string, ch <-chan auction.Session)
	// Close 停止集散器，釋放所有資源
	Close()
}
