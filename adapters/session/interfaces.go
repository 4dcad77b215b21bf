//go:generate mockgen -package=session -destination=mock.go -source=interfaces.go

package session

import "context"

// IStore 是cookie session資料的後端儲存
type IStore interface {
	Load(ctx context.Context, name string) (map[string]string, error)
	Save(ctx context.Context, name string, data map[string]string) error
}

// ISession 是單一訪客的cookie session。
// 讀寫前必須先Load，Save會以目前內容整份覆寫後端。
type ISession interface {
	Load() error
	Get(key string) string
	Set(key, value string)
	Delete(key string)
	Clear()
	Save() error
}
