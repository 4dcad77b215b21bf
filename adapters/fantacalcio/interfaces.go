//go:generate mockgen -package=fantacalcio -destination=mock.go -source=interfaces.go

package fantacalcio

import (
	"context"

	"pulsantiera/auction"
	"pulsantiera/catalog"
)

// IRosterClient 定義了名冊數據API客戶端的操作介面
type IRosterClient interface {
	GetAllPlayers(ctx context.Context, cfg auction.GroupConfig) ([]catalog.Player, error)
	NextPlayer(ctx context.Context, cfg auction.GroupConfig, role auction.Role, randomize bool) (string, error)
	GetTeams(ctx context.Context, cfg auction.GroupConfig) ([]Team, error)
	GetTeamName(ctx context.Context, cfg auction.GroupConfig, email string) (string, error)
	AssignPlayer(ctx context.Context, cfg auction.GroupConfig, email, playerName string, price uint32, randomize bool) (bool, error)
	GetGroup(ctx context.Context, groupID string) (*Group, error)
}

// ITeamLister 定義了名額檢查所需的最小介面
type ITeamLister interface {
	GetTeams(ctx context.Context, cfg auction.GroupConfig) ([]Team, error)
}
