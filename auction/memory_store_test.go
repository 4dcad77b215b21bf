package auction_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"pulsantiera/auction"
)

func TestMemoryStore_CreateAndRead(t *testing.T) {
	defer goleak.VerifyNone(t)
	store := auction.NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, &auction.Session{ID: "a1", Name: "Asta"}))
	assert.ErrorIs(t, store.Create(ctx, &auction.Session{ID: "a1"}), auction.ErrSessionExists)

	doc, err := store.Read(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "Asta", doc.Name)
	assert.Equal(t, uint64(0), doc.Version)

	_, err = store.Read(ctx, "missing")
	assert.ErrorIs(t, err, auction.ErrSessionNotFound)
}

func TestMemoryStore_CommitBumpsVersion(t *testing.T) {
	defer goleak.VerifyNone(t)
	store := auction.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, &auction.Session{ID: "a1"}))

	doc, err := store.Commit(ctx, "a1", 0, auction.SetCurrentBid(5), auction.SetCurrentBidder("Alice"))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), doc.Version)
	assert.Equal(t, uint32(5), doc.CurrentBid)

	// 過期的版本號被拒絕
	_, err = store.Commit(ctx, "a1", 0, auction.SetCurrentBid(9))
	assert.ErrorIs(t, err, auction.ErrVersionConflict)

	_, err = store.Commit(ctx, "missing", 0, auction.SetCurrentBid(1))
	assert.ErrorIs(t, err, auction.ErrSessionNotFound)
}

func TestMemoryStore_SnapshotsAreDetached(t *testing.T) {
	defer goleak.VerifyNone(t)
	store := auction.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, &auction.Session{ID: "a1"}))

	doc, err := store.Read(ctx, "a1")
	require.NoError(t, err)
	doc.TakenLots = append(doc.TakenLots, "Maignan")
	doc.CurrentBid = 99

	// 改動快照不能影響儲存層
	fresh, err := store.Read(ctx, "a1")
	require.NoError(t, err)
	assert.Empty(t, fresh.TakenLots)
	assert.Equal(t, uint32(0), fresh.CurrentBid)
}

func TestMemoryStore_Subscribe(t *testing.T) {
	defer goleak.VerifyNone(t)
	store := auction.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, &auction.Session{ID: "a1"}))

	ch, unsubscribe, err := store.Subscribe("a1")
	require.NoError(t, err)

	// 訂閱當下的版本先送達
	initial := <-ch
	assert.Equal(t, uint64(0), initial.Version)

	_, err = store.Commit(ctx, "a1", 0, auction.SetCurrentBid(3))
	require.NoError(t, err)
	next := <-ch
	assert.Equal(t, uint64(1), next.Version)
	assert.Equal(t, uint32(3), next.CurrentBid)

	unsubscribe()
	_, open := <-ch
	assert.False(t, open)

	// 重複取消訂閱是安全的
	unsubscribe()

	_, _, err = store.Subscribe("missing")
	assert.ErrorIs(t, err, auction.ErrSessionNotFound)
}
