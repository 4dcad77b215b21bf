package auction

import (
	"context"
	"errors"
	"fmt"
)

// MutateSession 執行「讀取快照→產生修改→條件提交」，
// 版本衝突時以最新快照重新產生修改後重試。
// build 返回空的修改集合時視為無操作，直接返回當前快照。
func MutateSession(ctx context.Context, store Store, sessionID string, maxRetries int, build func(*Session) ([]PatchOp, error)) (*Session, error) {
	const op = "MutateSession"
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		session, err := store.Read(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		ops, err := build(session)
		if err != nil {
			return nil, err
		}
		if len(ops) == 0 {
			return session, nil
		}
		committed, err := store.Commit(ctx, sessionID, session.Version, ops...)
		if err == nil {
			return committed, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("[%s] Fail to commit after %d retries, err=%w", op, maxRetries, lastErr)
}
