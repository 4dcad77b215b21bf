package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"pulsantiera/adapters/session"
)

// Store 提供基於Redis hash的session資料儲存，
// 用來記住回訪參與者在各場拍賣中的顯示名稱
type Store struct {
	client  *redis.Client
	options StoreOptions
}

// StoreOptions 定義了 Store 的配置選項
type StoreOptions struct {
	Prefix string
}

type StoreOption func(*StoreOptions)

// WithStorePrefix 設定 Store 的 key 前綴
func WithStorePrefix(prefix string) StoreOption {
	return func(o *StoreOptions) {
		o.Prefix = prefix
	}
}

// NewStore 建立一個新的 Store 實例
func NewStore(client *redis.Client, opts ...StoreOption) session.IStore {
	options := &StoreOptions{}
	for _, opt := range opts {
		opt(options)
	}

	return &Store{
		client:  client,
		options: *options,
	}
}

// Load 從 Redis 中載入指定名稱的資料
func (s *Store) Load(ctx context.Context, name string) (map[string]string, error) {
	const op = "redis.Store.Load"
	key := s.options.Prefix + name

	result, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to get hash, err=%w", op, err)
	}

	// key不存在時Redis返回空map
	return result, nil
}

// saveScript 原子性地刪除舊資料並設定新的hash欄位
var saveScript = redis.NewScript(`
local key = KEYS[1]
redis.call('DEL', key)
if #ARGV > 0 then
    redis.call('HSET', key, unpack(ARGV))
end
return 1
`)

// Save 將資料儲存到 Redis 中
func (s *Store) Save(ctx context.Context, name string, data map[string]string) error {
	const op = "redis.Store.Save"
	key := s.options.Prefix + name
	args := make([]any, 0, len(data)*2)
	for k, v := range data {
		args = append(args, k, v)
	}
	if err := saveScript.Run(ctx, s.client, []string{key}, args...).Err(); err != nil {
		return fmt.Errorf("[%s] Fail to execute save script, err=%w", op, err)
	}
	return nil
}
