package sse_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"pulsantiera/adapters/sse"
	"pulsantiera/auction"
)

func newHubFixture(t *testing.T) (*auction.MemoryStore, *sse.Hub) {
	t.Helper()
	store := auction.NewMemoryStore()
	require.NoError(t, store.Create(context.Background(), &auction.Session{ID: "a1", Name: "Asta"}))
	hub := sse.NewHub(store, nil)
	t.Cleanup(hub.Close)
	return store, hub
}

func waitForSnapshot(t *testing.T, ch <-chan auction.Session) auction.Session {
	t.Helper()
	select {
	case snapshot := <-ch:
		return snapshot
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for snapshot")
		return auction.Session{}
	}
}

func waitForBid(t *testing.T, ch <-chan auction.Session, bid uint32) {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case snapshot := <-ch:
			if snapshot.CurrentBid == bid {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for bid %d", bid)
		}
	}
}

func TestHubBroadcastsCommits(t *testing.T) {
	defer goleak.VerifyNone(t)

	store, hub := newHubFixture(t)
	ch, err := hub.Subscribe("a1")
	require.NoError(t, err)
	defer hub.Unsubscribe("a1", ch)

	// 訂閱後第一則是當前快照
	snapshot := waitForSnapshot(t, ch)
	assert.Equal(t, uint64(0), snapshot.Version)

	_, err = store.Commit(context.Background(), "a1", 0, auction.SetCurrentBid(9))
	require.NoError(t, err)

	snapshot = waitForSnapshot(t, ch)
	assert.Equal(t, uint32(9), snapshot.CurrentBid)
	assert.Equal(t, uint64(1), snapshot.Version)
}

func TestHubSharesUpstreamAcrossSubscribers(t *testing.T) {
	defer goleak.VerifyNone(t)

	store, hub := newHubFixture(t)
	first, err := hub.Subscribe("a1")
	require.NoError(t, err)
	second, err := hub.Subscribe("a1")
	require.NoError(t, err)

	// 兩個訂閱者都必須先收到當前快照
	waitForSnapshot(t, first)
	waitForSnapshot(t, second)

	_, err = store.Commit(context.Background(), "a1", 0, auction.SetCurrentBid(5))
	require.NoError(t, err)

	waitForBid(t, first, 5)
	waitForBid(t, second, 5)

	hub.Unsubscribe("a1", first)
	hub.Unsubscribe("a1", second)
}

func TestHubDeliversSnapshotToLateSubscriber(t *testing.T) {
	defer goleak.VerifyNone(t)

	store, hub := newHubFixture(t)
	first, err := hub.Subscribe("a1")
	require.NoError(t, err)
	defer hub.Unsubscribe("a1", first)

	waitForSnapshot(t, first)
	_, err = store.Commit(context.Background(), "a1", 0, auction.SetCurrentBid(7))
	require.NoError(t, err)
	waitForBid(t, first, 7)

	// 拍賣會閒置中途加入的訂閱者不必等下一次commit就能拿到當前狀態
	late, err := hub.Subscribe("a1")
	require.NoError(t, err)
	defer hub.Unsubscribe("a1", late)

	snapshot := waitForSnapshot(t, late)
	assert.Equal(t, uint32(7), snapshot.CurrentBid)
	assert.Equal(t, uint64(1), snapshot.Version)
}

func TestHubSubscribeUnknownAuction(t *testing.T) {
	defer goleak.VerifyNone(t)

	_, hub := newHubFixture(t)
	_, err := hub.Subscribe("missing")
	assert.ErrorIs(t, err, auction.ErrSessionNotFound)
}

func TestHubSubscribeAfterClose(t *testing.T) {
	defer goleak.VerifyNone(t)

	_, hub := newHubFixture(t)
	hub.Close()

	_, err := hub.Subscribe("a1")
	assert.Error(t, err)
}
