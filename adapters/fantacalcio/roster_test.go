package fantacalcio_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulsantiera/adapters/fantacalcio"
	"pulsantiera/auction"
)

type fakeTeamLister struct {
	teams []fantacalcio.Team
	err   error
	calls int
}

func (f *fakeTeamLister) GetTeams(ctx context.Context, cfg auction.GroupConfig) ([]fantacalcio.Team, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.teams, nil
}

func defenders(n int) []fantacalcio.TeamPlayer {
	players := make([]fantacalcio.TeamPlayer, n)
	for i := range players {
		players[i] = fantacalcio.TeamPlayer{Name: "D", Role: auction.RoleDifensore}
	}
	return players
}

func TestTeamRosterCounterCountsByRole(t *testing.T) {
	lister := &fakeTeamLister{teams: []fantacalcio.Team{
		{Name: "FC Gatti", Owner: "Alice@Example.com", Players: append(defenders(3), fantacalcio.TeamPlayer{Name: "G", Role: auction.RolePortiere})},
	}}
	counter, err := fantacalcio.NewTeamRosterCounter(lister, testGroupConfig)
	require.NoError(t, err)

	count, known, err := counter.CountByRole(context.Background(), "alice@example.com", auction.RoleDifensore)
	require.NoError(t, err)
	assert.True(t, known, "owner match is case-insensitive")
	assert.Equal(t, 3, count)

	_, known, err = counter.CountByRole(context.Background(), "nobody@example.com", auction.RolePortiere)
	require.NoError(t, err)
	assert.False(t, known)
}

func TestTeamRosterCounterCachesWithinTTL(t *testing.T) {
	now := time.Now()
	lister := &fakeTeamLister{teams: []fantacalcio.Team{{Owner: "alice@example.com", Players: defenders(1)}}}
	counter, err := fantacalcio.NewTeamRosterCounter(lister, testGroupConfig,
		fantacalcio.WithRosterTTL(30*time.Second),
		fantacalcio.WithRosterClock(func() time.Time { return now }),
	)
	require.NoError(t, err)

	for range 3 {
		_, _, err := counter.CountByRole(context.Background(), "alice@example.com", auction.RoleDifensore)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, lister.calls)

	now = now.Add(31 * time.Second)
	_, _, err = counter.CountByRole(context.Background(), "alice@example.com", auction.RoleDifensore)
	require.NoError(t, err)
	assert.Equal(t, 2, lister.calls)
}

func TestTeamRosterCounterInvalidateForcesRefresh(t *testing.T) {
	lister := &fakeTeamLister{teams: []fantacalcio.Team{{Owner: "alice@example.com", Players: defenders(1)}}}
	counter, err := fantacalcio.NewTeamRosterCounter(lister, testGroupConfig)
	require.NoError(t, err)

	_, _, err = counter.CountByRole(context.Background(), "alice@example.com", auction.RoleDifensore)
	require.NoError(t, err)
	counter.Invalidate()
	_, _, err = counter.CountByRole(context.Background(), "alice@example.com", auction.RoleDifensore)
	require.NoError(t, err)
	assert.Equal(t, 2, lister.calls)
}

func TestTeamRosterCounterFallsBackToStaleSnapshot(t *testing.T) {
	now := time.Now()
	lister := &fakeTeamLister{teams: []fantacalcio.Team{{Owner: "alice@example.com", Players: defenders(2)}}}
	counter, err := fantacalcio.NewTeamRosterCounter(lister, testGroupConfig,
		fantacalcio.WithRosterTTL(time.Second),
		fantacalcio.WithRosterClock(func() time.Time { return now }),
	)
	require.NoError(t, err)

	_, _, err = counter.CountByRole(context.Background(), "alice@example.com", auction.RoleDifensore)
	require.NoError(t, err)

	// 快照過期且重抓失敗時沿用舊資料
	lister.err = errors.New("upstream down")
	now = now.Add(2 * time.Second)
	count, known, err := counter.CountByRole(context.Background(), "alice@example.com", auction.RoleDifensore)
	require.NoError(t, err)
	assert.True(t, known)
	assert.Equal(t, 2, count)
}

func TestTeamRosterCounterErrorsWithoutAnySnapshot(t *testing.T) {
	lister := &fakeTeamLister{err: errors.New("upstream down")}
	counter, err := fantacalcio.NewTeamRosterCounter(lister, testGroupConfig)
	require.NoError(t, err)

	_, _, err = counter.CountByRole(context.Background(), "alice@example.com", auction.RoleDifensore)
	require.Error(t, err)
}
