package auction_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"pulsantiera/auction"
)

func TestCooldown_BlocksRivalsAfterBid(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	cd := auction.NewCooldown(
		auction.WithCooldownWindow(time.Second),
		auction.WithCooldownClock(clock),
	)

	cd.Observe("Alice", 5)
	assert.True(t, cd.Blocked("Bob"))
	// 最新出價者本人不受冷卻影響
	assert.False(t, cd.Blocked("Alice"))

	now = now.Add(1100 * time.Millisecond)
	assert.False(t, cd.Blocked("Bob"))
}

func TestCooldown_RestartsOnChange(t *testing.T) {
	now := time.Now()
	cd := auction.NewCooldown(
		auction.WithCooldownWindow(time.Second),
		auction.WithCooldownClock(func() time.Time { return now }),
	)

	cd.Observe("Alice", 5)
	now = now.Add(900 * time.Millisecond)
	// 相同的狀態重複觀察不能重啟窗口
	cd.Observe("Alice", 5)
	now = now.Add(200 * time.Millisecond)
	assert.False(t, cd.Blocked("Bob"))

	// 金額變動重啟窗口
	cd.Observe("Alice", 6)
	assert.True(t, cd.Blocked("Bob"))
}

func TestCooldown_ResetClearsTracking(t *testing.T) {
	now := time.Now()
	cd := auction.NewCooldown(
		auction.WithCooldownWindow(time.Second),
		auction.WithCooldownClock(func() time.Time { return now }),
	)

	cd.Observe("Alice", 5)
	assert.True(t, cd.Blocked("Bob"))

	// 空的出價者代表重置或新球員上拍
	cd.Observe("", 0)
	assert.False(t, cd.Blocked("Bob"))
}
