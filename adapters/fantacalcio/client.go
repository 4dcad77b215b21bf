package fantacalcio

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"

	"pulsantiera/auction"
	"pulsantiera/catalog"
)

const defaultTimeout = 10 * time.Second

type clientOptions struct {
	httpClient *http.Client
	logger     *slog.Logger
}

type ClientOption func(*clientOptions)

// WithHTTPClient 指定底層HTTP客戶端，測試時注入
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(o *clientOptions) {
		if hc != nil {
			o.httpClient = hc
		}
	}
}

// WithClientLogger 指定客戶端使用的logger
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(o *clientOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Client 是名冊數據API的HTTP客戶端。
// 所有操作都以 GroupConfig 提供的座標定位聯盟資料。
type Client struct {
	baseURL string
	options *clientOptions
}

// NewClient 建立指向指定base URL的客戶端
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}
	options := &clientOptions{
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		options: options,
	}, nil
}

// playerStat 是API回傳的球員統計，鍵名為上游的壓縮格式
type playerStat struct {
	Name         string  `json:"n"`
	Role         int     `json:"r"`
	Squad        *squad  `json:"t"`
	Active       bool    `json:"a"`
	Average      float64 `json:"mv"`
	FantaAverage float64 `json:"fm"`
	Goals        int     `json:"gf"`
	Assists      int     `json:"ass"`
}

type squad struct {
	Name string `json:"n"`
	Abbr string `json:"a"`
}

// teamPlayer 是隊伍名單中的一名球員
type teamPlayer struct {
	Name   string          `json:"n"`
	Price  json.RawMessage `json:"p"`
	Squad  *squad          `json:"t"`
	Role   int             `json:"r"`
	Active bool            `json:"a"`
}

type teamInfo struct {
	Name    string       `json:"name"`
	Owner   string       `json:"owner"`
	Cost    int          `json:"cost"`
	Players []teamPlayer `json:"players"`
}

// TeamPlayer 是隊伍名單中一名球員的整理後資料
type TeamPlayer struct {
	Name      string       `json:"name"`
	Price     int          `json:"price"`
	SquadName string       `json:"squadName,omitempty"`
	SquadAbbr string       `json:"squadAbbr,omitempty"`
	Active    bool         `json:"active"`
	Role      auction.Role `json:"role"`
}

// Team 是一支隊伍目前的名單與花費快照
type Team struct {
	Name    string       `json:"name"`
	Owner   string       `json:"owner"`
	Cost    int          `json:"cost"`
	Players []TeamPlayer `json:"players"`
}

// Group 是聯盟群組的範圍設定
type Group struct {
	ID      string      `json:"id"`
	Name    string      `json:"name"`
	Leagues []GroupItem `json:"leagues"`
	Baskets []GroupItem `json:"baskets"`
	Years   []string    `json:"years"`
}

type GroupItem struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (c *Client) get(ctx context.Context, path string, query url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	return c.options.httpClient.Do(req)
}

// GetAllPlayers 取得指定年度的完整球員目錄
func (c *Client) GetAllPlayers(ctx context.Context, cfg auction.GroupConfig) ([]catalog.Player, error) {
	const op = "GetAllPlayers"
	query := url.Values{}
	query.Set("group", cfg.GroupID)
	query.Set("league", cfg.LeagueID)
	query.Set("year", cfg.Year)

	resp, err := c.get(ctx, "/GetAllPlayers", query)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to call roster API, err=%w", op, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("[%s] Fail to fetch players, status=%d", op, resp.StatusCode)
	}

	var stats []playerStat
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return nil, fmt.Errorf("[%s] Fail to decode response, err=%w", op, err)
	}

	players := make([]catalog.Player, 0, len(stats))
	for _, stat := range stats {
		role := auction.Role(stat.Role)
		if stat.Name == "" || !role.Valid() {
			continue
		}
		player := catalog.Player{
			Name:         stat.Name,
			Role:         role,
			Average:      stat.Average,
			FantaAverage: stat.FantaAverage,
			Goals:        stat.Goals,
			Assists:      stat.Assists,
			Active:       stat.Active,
		}
		if stat.Squad != nil {
			player.Squad = stat.Squad.Name
		}
		players = append(players, player)
	}
	return players, nil
}

// NextPlayer 取得指定位置下一名未被選走的球員，名冊耗盡時返回空字串
func (c *Client) NextPlayer(ctx context.Context, cfg auction.GroupConfig, role auction.Role, randomize bool) (string, error) {
	const op = "NextPlayer"
	query := url.Values{}
	query.Set("group", cfg.GroupID)
	query.Set("league", cfg.LeagueID)
	query.Set("year", cfg.Year)
	query.Set("role", strconv.Itoa(int(role)))
	query.Set("isRandom", strconv.FormatBool(randomize))

	resp, err := c.get(ctx, "/GetNextPlayer", query)
	if err != nil {
		return "", fmt.Errorf("[%s] Fail to call roster API, err=%w", op, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("[%s] Fail to fetch next player, status=%d", op, resp.StatusCode)
	}

	var body struct {
		Name string `json:"n"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("[%s] Fail to decode response, err=%w", op, err)
	}
	return strings.TrimSpace(body.Name), nil
}

// GetTeams 取得目前所有隊伍的名單與花費
func (c *Client) GetTeams(ctx context.Context, cfg auction.GroupConfig) ([]Team, error) {
	const op = "GetTeams"
	query := url.Values{}
	query.Set("group", cfg.GroupID)
	query.Set("basket", cfg.BasketID)
	query.Set("year", cfg.Year)

	resp, err := c.get(ctx, "/GetTeams", query)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to call roster API, err=%w", op, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("[%s] Fail to fetch teams, status=%d", op, resp.StatusCode)
	}

	var raw []teamInfo
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("[%s] Fail to decode response, err=%w", op, err)
	}

	return lo.Map(raw, func(item teamInfo, _ int) Team {
		return Team{
			Name:  item.Name,
			Owner: item.Owner,
			Cost:  item.Cost,
			Players: lo.Map(item.Players, func(p teamPlayer, _ int) TeamPlayer {
				player := TeamPlayer{
					Name:   p.Name,
					Price:  parseLoosePrice(p.Price),
					Active: p.Active,
					Role:   auction.Role(p.Role),
				}
				if p.Squad != nil {
					player.SquadName = p.Squad.Name
					player.SquadAbbr = p.Squad.Abbr
				}
				return player
			}),
		}
	}), nil
}

// GetTeamName 以聯絡信箱查詢隊伍名稱，查無時返回空字串
func (c *Client) GetTeamName(ctx context.Context, cfg auction.GroupConfig, email string) (string, error) {
	const op = "GetTeamName"
	if email == "" {
		return "", nil
	}
	query := url.Values{}
	query.Set("group", cfg.GroupID)
	query.Set("basket", cfg.BasketID)
	query.Set("year", cfg.Year)
	query.Set("email", email)

	resp, err := c.get(ctx, "/GetTeamName", query)
	if err != nil {
		return "", fmt.Errorf("[%s] Fail to call roster API, err=%w", op, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.options.logger.Warn("GetTeamName returned non-ok", slog.Int("status", resp.StatusCode))
		return "", nil
	}

	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		var body struct {
			TeamName string `json:"teamName"`
			Name     string `json:"name"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return "", nil
		}
		if body.TeamName != "" {
			return body.TeamName, nil
		}
		return body.Name, nil
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil
	}
	return strings.TrimSpace(string(raw)), nil
}

// AssignPlayer 將球員以指定價格指派給買家的隊伍，返回外部系統是否接受。
// 回應本文為布林字面值，空本文視為成功。
func (c *Client) AssignPlayer(ctx context.Context, cfg auction.GroupConfig, email, playerName string, price uint32, randomize bool) (bool, error) {
	const op = "AssignPlayer"
	if email == "" {
		return false, fmt.Errorf("[%s] Fail to assign player, missing email", op)
	}
	query := url.Values{}
	query.Set("group", cfg.GroupID)
	query.Set("league", cfg.LeagueID)
	query.Set("basket", cfg.BasketID)
	query.Set("year", cfg.Year)
	query.Set("email", email)
	query.Set("playerName", playerName)
	query.Set("price", strconv.FormatUint(uint64(price), 10))
	query.Set("isRandom", strconv.FormatBool(randomize))

	resp, err := c.get(ctx, "/SetPlayer", query)
	if err != nil {
		return false, fmt.Errorf("[%s] Fail to call roster API, err=%w", op, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(raw))
		if msg == "" {
			msg = resp.Status
		}
		return false, fmt.Errorf("[%s] Fail to assign player, status=%d, body=%s", op, resp.StatusCode, msg)
	}

	switch strings.ToLower(strings.TrimSpace(string(raw))) {
	case "false", "0":
		return false, nil
	default:
		return true, nil
	}
}

// GetGroup 解析群組的範圍設定，查無群組時返回nil
func (c *Client) GetGroup(ctx context.Context, groupID string) (*Group, error) {
	const op = "GetGroup"
	query := url.Values{}
	query.Set("group", groupID)

	resp, err := c.get(ctx, "/GetGroup", query)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to call roster API, err=%w", op, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("[%s] Fail to fetch group, status=%d", op, resp.StatusCode)
	}

	var group Group
	if err := json.NewDecoder(resp.Body).Decode(&group); err != nil {
		return nil, fmt.Errorf("[%s] Fail to decode response, err=%w", op, err)
	}
	if group.ID == "" {
		group.ID = groupID
	}
	return &group, nil
}

// parseLoosePrice 兼容數字與字串形式的價格欄位
func parseLoosePrice(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return n
		}
	}
	return 0
}
