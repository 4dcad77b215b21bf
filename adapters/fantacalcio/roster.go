package fantacalcio

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"pulsantiera/auction"
)

const defaultRosterTTL = 30 * time.Second

type rosterCounterOptions struct {
	ttl time.Duration
	now func() time.Time
}

type RosterCounterOption func(*rosterCounterOptions)

// WithRosterTTL 指定隊伍名單快照的有效期，過期後下次查詢會重新抓取
func WithRosterTTL(ttl time.Duration) RosterCounterOption {
	return func(o *rosterCounterOptions) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

// WithRosterClock 指定時間來源，測試時注入
func WithRosterClock(now func() time.Time) RosterCounterOption {
	return func(o *rosterCounterOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// TeamRosterCounter 以隊伍名單快照統計各位置的持有數。
// 快照在有效期內共用，名額檢查因此可能短暫落後外部系統。
type TeamRosterCounter struct {
	client  ITeamLister
	cfg     auction.GroupConfig
	options *rosterCounterOptions

	mu        sync.Mutex
	teams     []Team
	fetchedAt time.Time
}

// NewTeamRosterCounter 建立指向單一聯盟群組的名額統計器
func NewTeamRosterCounter(client ITeamLister, cfg auction.GroupConfig, opts ...RosterCounterOption) (*TeamRosterCounter, error) {
	if client == nil {
		return nil, fmt.Errorf("client cannot be nil")
	}
	options := &rosterCounterOptions{
		ttl: defaultRosterTTL,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(options)
	}
	return &TeamRosterCounter{
		client:  client,
		cfg:     cfg,
		options: options,
	}, nil
}

// CountByRole 返回買家目前持有指定位置的球員數。
// 查無買家的隊伍時 known 為 false，呼叫端應放行而非拒絕。
func (c *TeamRosterCounter) CountByRole(ctx context.Context, ownerEmail string, role auction.Role) (int, bool, error) {
	const op = "CountByRole"
	teams, err := c.snapshot(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("[%s] Fail to refresh rosters, err=%w", op, err)
	}
	for _, team := range teams {
		if !strings.EqualFold(team.Owner, ownerEmail) {
			continue
		}
		count := 0
		for _, p := range team.Players {
			if p.Role == role {
				count++
			}
		}
		return count, true, nil
	}
	return 0, false, nil
}

// Invalidate 使目前快照立即失效，售出成交後呼叫以加速名額收斂
func (c *TeamRosterCounter) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetchedAt = time.Time{}
}

func (c *TeamRosterCounter) snapshot(ctx context.Context) ([]Team, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.options.now()
	if !c.fetchedAt.IsZero() && now.Sub(c.fetchedAt) < c.options.ttl {
		return c.teams, nil
	}
	teams, err := c.client.GetTeams(ctx, c.cfg)
	if err != nil {
		// 抓取失敗時沿用過期快照，完全沒有快照才回報錯誤
		if c.fetchedAt.IsZero() {
			return nil, err
		}
		return c.teams, nil
	}
	c.teams = teams
	c.fetchedAt = now
	return c.teams, nil
}
