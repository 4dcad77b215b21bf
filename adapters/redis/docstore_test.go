package redis

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulsantiera/auction"
)

func newTestSession(id string) *auction.Session {
	return &auction.Session{
		ID:        id,
		Name:      "Asta di prova",
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
}

func TestDocStoreCreate(t *testing.T) {
	_, client := setupTest(t)
	store, err := NewDocStore(client)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, newTestSession("a1")))

	// 同ID重複建立要被拒絕
	err = store.Create(ctx, newTestSession("a1"))
	assert.ErrorIs(t, err, auction.ErrSessionExists)
}

func TestDocStoreReadMissing(t *testing.T) {
	_, client := setupTest(t)
	store, err := NewDocStore(client)
	require.NoError(t, err)

	_, err = store.Read(context.Background(), "missing")
	assert.ErrorIs(t, err, auction.ErrSessionNotFound)
}

func TestDocStoreCommit(t *testing.T) {
	_, client := setupTest(t)
	store, err := NewDocStore(client)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, newTestSession("a1")))

	committed, err := store.Commit(ctx, "a1", 0,
		auction.SetCurrentLot("Lautaro Martinez"),
		auction.SetCurrentBid(5),
	)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), committed.Version)
	require.NotNil(t, committed.CurrentLot)
	assert.Equal(t, "Lautaro Martinez", *committed.CurrentLot)

	// 過期的版本號必須被拒絕，且不改動文件
	_, err = store.Commit(ctx, "a1", 0, auction.SetCurrentBid(99))
	assert.ErrorIs(t, err, auction.ErrVersionConflict)

	current, err := store.Read(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, uint32(5), current.CurrentBid)
	assert.Equal(t, uint64(1), current.Version)
}

func TestDocStoreCommitMissingSession(t *testing.T) {
	_, client := setupTest(t)
	store, err := NewDocStore(client)
	require.NoError(t, err)

	_, err = store.Commit(context.Background(), "missing", 0, auction.SetCurrentBid(1))
	assert.ErrorIs(t, err, auction.ErrSessionNotFound)
}

func TestDocStoreCommitPublishesSnapshot(t *testing.T) {
	_, client := setupTest(t)
	store, err := NewDocStore(client)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, newTestSession("a1")))
	_, err = store.Commit(ctx, "a1", 0, auction.SetCurrentBid(7))
	require.NoError(t, err)

	messages, err := client.XRange(ctx, "asta:a1:events", "-", "+").Result()
	require.NoError(t, err)
	// 建立時一筆，提交後一筆
	require.Len(t, messages, 2)

	snapshot, err := DecodeStreamValue[auction.Session](messages[1].Values)
	require.NoError(t, err)
	assert.Equal(t, uint32(7), snapshot.CurrentBid)
	assert.Equal(t, uint64(1), snapshot.Version)
}

func TestDocStoreSubscribeDeliversCurrentSnapshot(t *testing.T) {
	_, client := setupTest(t)
	store, err := NewDocStore(client)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, newTestSession("a1")))
	_, err = store.Commit(ctx, "a1", 0, auction.SetCurrentBid(3))
	require.NoError(t, err)

	updates, unsubscribe, err := store.Subscribe("a1")
	require.NoError(t, err)
	defer unsubscribe()

	select {
	case snapshot := <-updates:
		assert.Equal(t, uint32(3), snapshot.CurrentBid)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for initial snapshot")
	}
}

func waitForVersion(t *testing.T, updates <-chan auction.Session) auction.Session {
	t.Helper()
	select {
	case snapshot := <-updates:
		return snapshot
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for snapshot")
		return auction.Session{}
	}
}

func TestDocStoreSubscribeSeesEveryCommitInOrder(t *testing.T) {
	_, client := setupTest(t)
	store, err := NewDocStore(client)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, newTestSession("a1")))

	updates, unsubscribe, err := store.Subscribe("a1")
	require.NoError(t, err)
	defer unsubscribe()

	// 訂閱一返回就提交，這筆提交也不能漏
	_, err = store.Commit(ctx, "a1", 0, auction.SetCurrentBid(1))
	require.NoError(t, err)
	_, err = store.Commit(ctx, "a1", 1, auction.SetCurrentBid(2))
	require.NoError(t, err)

	for want := uint64(0); want <= 2; want++ {
		snapshot := waitForVersion(t, updates)
		assert.Equal(t, want, snapshot.Version)
	}
}

func TestDocStoreSubscribeDropsStaleReplay(t *testing.T) {
	_, client := setupTest(t)
	store, err := NewDocStore(client)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, newTestSession("a1")))
	_, err = store.Commit(ctx, "a1", 0, auction.SetCurrentBid(5))
	require.NoError(t, err)

	updates, unsubscribe, err := store.Subscribe("a1")
	require.NoError(t, err)
	defer unsubscribe()

	snapshot := waitForVersion(t, updates)
	require.Equal(t, uint64(1), snapshot.Version)

	// 把一份過期的快照塞回stream，模擬亂序送達的舊內容
	stale := newTestSession("a1")
	values, err := EncodeStreamValue(*stale)
	require.NoError(t, err)
	require.NoError(t, client.XAdd(ctx, &redis.XAddArgs{
		Stream: "asta:a1:events",
		Values: values,
	}).Err())

	_, err = store.Commit(ctx, "a1", 1, auction.SetCurrentBid(9))
	require.NoError(t, err)

	// 舊快照必須被攔下，下一筆直接是最新提交
	snapshot = waitForVersion(t, updates)
	assert.Equal(t, uint64(2), snapshot.Version)
	assert.Equal(t, uint32(9), snapshot.CurrentBid)
}

func TestDocStoreSubscribeMissingSession(t *testing.T) {
	_, client := setupTest(t)
	store, err := NewDocStore(client)
	require.NoError(t, err)

	_, _, err = store.Subscribe("missing")
	assert.ErrorIs(t, err, auction.ErrSessionNotFound)
}
