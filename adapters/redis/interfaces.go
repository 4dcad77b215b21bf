//go:generate mockgen -package=redis -destination=mock.go -source=interfaces.go

package redis

import (
	"context"
)

// IProducer 定義了stream生產者的操作介面，
// 成交紀錄經由它送上Redis stream
type IProducer[T any] interface {
	Start()
	Publish(data T) error
	Close()
}

// IGroupConsumer 定義了consumer group消費者的操作介面。
// 訊息必須逐一Done或Fail，嚴格順序模式下前一筆未確認前不會送出下一筆。
type IGroupConsumer[T any] interface {
	Start() error
	Subscribe() <-chan *Message[T]
	Close() error
}

// IConsumer 定義了廣播式消費者的操作介面，
// DocStore以它訂閱拍賣會文件的變更通知
type IConsumer[T any] interface {
	Start()
	Subscribe() <-chan T
	Close()
}

// IAutoRenewMutex 定義了自動續期分散式鎖的操作介面
type IAutoRenewMutex interface {
	Lock(ctx context.Context) (context.Context, error)
	Unlock() (bool, error)
	Valid() bool
}
