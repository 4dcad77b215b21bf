package auction

import (
	"sync"
	"time"
)

type cooldownOptions struct {
	window time.Duration
	now    func() time.Time
}

type CooldownOption func(*cooldownOptions)

// WithCooldownWindow 設置冷卻時間長度
func WithCooldownWindow(d time.Duration) CooldownOption {
	return func(o *cooldownOptions) {
		o.window = d
	}
}

// WithCooldownClock 注入時鐘(主要用於測試)
func WithCooldownClock(now func() time.Time) CooldownOption {
	return func(o *cooldownOptions) {
		o.now = now
	}
}

// Cooldown 在觀察到他人出價後，對其餘出價者給出約一秒的諮詢性封鎖。
// 這是操作體驗上的節流：避免出價按鈕在金額跳動的瞬間被誤按。
// 它不是正確性機制，任何出價仍須通過 Engine 的正式驗證才會提交。
type Cooldown struct {
	mu sync.Mutex

	lastBidder string
	lastAmount uint32
	seen       bool
	changedAt  time.Time

	options cooldownOptions
}

// NewCooldown 建立一個冷卻追蹤器，每場拍賣會一個
func NewCooldown(opts ...CooldownOption) *Cooldown {
	options := cooldownOptions{
		window: time.Second,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(&options)
	}
	return &Cooldown{options: options}
}

// Observe 餵入訂閱串流上觀察到的最新出價狀態。
// 出價者或金額相較上次觀察有變化時啟動冷卻窗口；
// 空的出價者標籤代表重置或新球員上拍，會清空追蹤狀態。
func (c *Cooldown) Observe(bidder string, amount uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if bidder == "" {
		c.seen = false
		c.lastBidder = ""
		c.lastAmount = 0
		return
	}
	if c.seen && bidder == c.lastBidder && amount == c.lastAmount {
		return
	}
	c.changedAt = c.options.now()
	c.seen = true
	c.lastBidder = bidder
	c.lastAmount = amount
}

// Blocked 判斷指定操作者此刻是否處於冷卻中。
// 最新出價者本人不受冷卻影響。
func (c *Cooldown) Blocked(actor string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.seen || actor == c.lastBidder {
		return false
	}
	return c.options.now().Before(c.changedAt.Add(c.options.window))
}
