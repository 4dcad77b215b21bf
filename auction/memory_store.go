package auction

import (
	"context"
	"sync"
)

// MemoryStore 是 Store 的行程內實作，主要供測試與單機試跑使用。
// 正式部署使用 Redis 版本(adapters/redis.DocStore)。
type MemoryStore struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	subscribers map[string]map[chan Session]struct{}
}

// NewMemoryStore 建立一個空的行程內儲存層
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:    make(map[string]*Session),
		subscribers: make(map[string]map[chan Session]struct{}),
	}
}

func (m *MemoryStore) Create(ctx context.Context, session *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[session.ID]; ok {
		return ErrSessionExists
	}
	m.sessions[session.ID] = session.Clone()
	return nil
}

func (m *MemoryStore) Read(ctx context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	session, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session.Clone(), nil
}

func (m *MemoryStore) Commit(ctx context.Context, id string, expectedVersion uint64, ops ...PatchOp) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if session.Version != expectedVersion {
		return nil, ErrVersionConflict
	}
	applyPatch(session, ops)
	snapshot := session.Clone()
	for ch := range m.subscribers[id] {
		// 訂閱者來不及消化時丟棄這一版，之後的提交仍會送達
		select {
		case ch <- *snapshot:
		default:
		}
	}
	return snapshot, nil
}

func (m *MemoryStore) Subscribe(id string) (<-chan Session, func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[id]
	if !ok {
		return nil, nil, ErrSessionNotFound
	}
	ch := make(chan Session, 32)
	if m.subscribers[id] == nil {
		m.subscribers[id] = make(map[chan Session]struct{})
	}
	m.subscribers[id][ch] = struct{}{}
	// 訂閱當下的版本先送達
	ch <- *session.Clone()

	unsubscribe := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if _, ok := m.subscribers[id][ch]; ok {
			delete(m.subscribers[id], ch)
			close(ch)
		}
	}
	return ch, unsubscribe, nil
}
