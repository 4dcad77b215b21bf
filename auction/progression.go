//go:generate mockgen -package=auction -destination=mock_progression.go -source=progression.go

package auction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// RosterAPI 是外部名冊/數據系統中與進度控制相關的操作。
// 外部系統是球員歸屬的權威紀錄，AssignPlayer 失敗時本地狀態不得變動。
type RosterAPI interface {
	// NextPlayer 取得指定位置的下一名未選秀球員，名稱為空代表該位置已抽完
	NextPlayer(ctx context.Context, cfg GroupConfig, role Role, randomize bool) (string, error)
	// AssignPlayer 以成交價將球員指派給擁有者，返回外部系統是否接受
	AssignPlayer(ctx context.Context, cfg GroupConfig, ownerEmail, lot string, price uint32, randomize bool) (bool, error)
}

// Catalogue 是本地球員目錄，提供位置查詢與正規化名稱比對
type Catalogue interface {
	LotInfo
	// Match 以不分大小寫的正規化比對尋找球員，返回目錄中的正式名稱
	Match(name string) (canonical string, ok bool)
}

type controllerOptions struct {
	logger         *slog.Logger
	autoAdvance    bool
	advanceDelay   time.Duration
	advanceTimeout time.Duration
	randomizeNext  bool
	historySize    int
	maxRetries     int
}

type ControllerOption func(*controllerOptions)

// WithControllerLogger 設置日誌記錄器
func WithControllerLogger(logger *slog.Logger) ControllerOption {
	return func(o *controllerOptions) {
		o.logger = logger
	}
}

// WithControllerAutoAdvance 設置成交後是否自動帶出同位置的下一名球員
func WithControllerAutoAdvance(enabled bool) ControllerOption {
	return func(o *controllerOptions) {
		o.autoAdvance = enabled
	}
}

// WithControllerAdvanceDelay 設置自動前進前的緩衝時間，
// 讓儲存層的廣播先行沉澱
func WithControllerAdvanceDelay(d time.Duration) ControllerOption {
	return func(o *controllerOptions) {
		o.advanceDelay = d
	}
}

// WithControllerRandomizeNext 設置向外部API要求下一名球員時是否隨機抽取
func WithControllerRandomizeNext(randomize bool) ControllerOption {
	return func(o *controllerOptions) {
		o.randomizeNext = randomize
	}
}

// WithControllerHistorySize 設置「回到上一位」保留的歷史筆數
func WithControllerHistorySize(n int) ControllerOption {
	return func(o *controllerOptions) {
		o.historySize = n
	}
}

// Controller 負責球員的選定、上拍與結標，僅供拍賣官使用。
// 球員在單場拍賣中的生命週期：
//
//	NoLot → LotActive → {Sold | MarkedUnavailable} → NoLot
//
// LotActive 也可以經由手動重置直接回到 NoLot(操作者覆寫)。
type Controller struct {
	store     Store
	api       RosterAPI
	catalogue Catalogue

	mu        sync.Mutex
	histories map[string]*LotHistory

	options controllerOptions
}

// NewController 建立球員進度控制器
func NewController(store Store, api RosterAPI, catalogue Catalogue, opts ...ControllerOption) (*Controller, error) {
	if store == nil {
		return nil, errors.New("store cannot be nil")
	}
	if api == nil {
		return nil, errors.New("roster api cannot be nil")
	}
	if catalogue == nil {
		return nil, errors.New("catalogue cannot be nil")
	}

	options := controllerOptions{
		logger:         slog.Default(),
		autoAdvance:    true,
		advanceDelay:   500 * time.Millisecond,
		advanceTimeout: 10 * time.Second,
		randomizeNext:  true,
		historySize:    1,
		maxRetries:     3,
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &Controller{
		store:     store,
		api:       api,
		catalogue: catalogue,
		histories: make(map[string]*LotHistory),
		options:   options,
	}, nil
}

// SetLotManually 直接以名稱指定上拍球員並重置出價
func (c *Controller) SetLotManually(ctx context.Context, sessionID, lotName string) (*Session, error) {
	lotName = strings.TrimSpace(lotName)
	if lotName == "" {
		return nil, ErrLotNameRequired
	}
	return MutateSession(ctx, c.store, sessionID, c.options.maxRetries, func(s *Session) ([]PatchOp, error) {
		return []PatchOp{
			SetCurrentLot(lotName),
			SetCurrentBid(0),
			ClearCurrentBidder(),
			ClearCurrentBidderEmail(),
			SetActive(true),
		}, nil
	})
}

// FetchNextLotByRole 向外部API要求指定位置的下一名球員並上拍。
// 該位置抽完時返回 ErrPoolExhausted，這是預期中的終點而非異常，
// 拍賣官可改以手動選名繼續。
func (c *Controller) FetchNextLotByRole(ctx context.Context, sessionID string, role Role) (*Session, error) {
	const op = "Controller.FetchNextLotByRole"
	if !role.Valid() {
		return nil, fmt.Errorf("[%s] Invalid role: %d", op, int(role))
	}

	session, err := c.store.Read(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.GroupConfig == nil {
		return nil, ErrConfigurationNotReady
	}
	if session.IsLocked {
		return nil, ErrAuctionLocked
	}

	name, err := c.api.NextPlayer(ctx, *session.GroupConfig, role, c.options.randomizeNext)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to fetch next player, err=%w", op, err)
	}
	if strings.TrimSpace(name) == "" {
		c.options.logger.Info("Player pool exhausted for role",
			slog.String("op", op),
			slog.String("auctionID", sessionID),
			slog.String("role", role.String()))
		return nil, ErrPoolExhausted
	}

	canonical, ok := c.catalogue.Match(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrLotNotFound, name)
	}
	return c.SetLotManually(ctx, sessionID, canonical)
}

// MarkLotUnavailable 不經出價將球員標記為不可用(跳過這名球員)，
// 以零價、拍賣官買家的形式寫入成交紀錄。已標記過時是無操作。
func (c *Controller) MarkLotUnavailable(ctx context.Context, sessionID, lotName string) (*Session, error) {
	lotName = strings.TrimSpace(lotName)
	if lotName == "" {
		return nil, ErrLotNameRequired
	}
	return MutateSession(ctx, c.store, sessionID, c.options.maxRetries, func(s *Session) ([]PatchOp, error) {
		if s.IsTaken(lotName) {
			return nil, nil
		}
		return []PatchOp{
			AddTakenLot(lotName),
			AppendSale(Sale{
				Lot:    lotName,
				Price:  0,
				Buyer:  AuctioneerLabel,
				SoldAt: time.Now(),
			}),
		}, nil
	})
}

// CompleteSale 將當前球員以當前出價結標給最高出價者。
// 外部名冊系統是歸屬的權威紀錄：先呼叫外部指派，確認成功後才改動
// 本地狀態，失敗時中止且不留下任何本地變化。
func (c *Controller) CompleteSale(ctx context.Context, sessionID string) (*Sale, error) {
	const op = "Controller.CompleteSale"

	session, err := c.store.Read(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.CurrentLot == nil {
		return nil, ErrNoLotActive
	}
	if session.GroupConfig == nil {
		return nil, ErrConfigurationNotReady
	}

	lot := *session.CurrentLot
	label := "Base"
	if session.CurrentBidder != nil {
		label = *session.CurrentBidder
	}
	buyerEmail, ok := resolveBuyerEmail(session, label)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrBuyerUnresolved, label)
	}

	accepted, err := c.api.AssignPlayer(ctx, *session.GroupConfig, buyerEmail, lot, session.CurrentBid, false)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExternalAssignmentFailed, err)
	}
	if !accepted {
		return nil, fmt.Errorf("%w: assignment rejected", ErrExternalAssignmentFailed)
	}

	sale := Sale{
		Lot:        lot,
		Price:      session.CurrentBid,
		Buyer:      label,
		BuyerEmail: buyerEmail,
		SoldAt:     time.Now(),
	}
	if _, err := MutateSession(ctx, c.store, sessionID, c.options.maxRetries, func(s *Session) ([]PatchOp, error) {
		return []PatchOp{
			AddTakenLot(lot),
			AppendSale(sale),
			ClearCurrentLot(),
			SetCurrentBid(0),
			ClearCurrentBidder(),
			ClearCurrentBidderEmail(),
			SetActive(false),
		}, nil
	}); err != nil {
		// 外部已成交但本地提交失敗，需要人工比對或重試，不自動回復
		return nil, fmt.Errorf("[%s] External assignment succeeded but local commit failed, err=%w", op, err)
	}

	ref := LotRef{Name: lot}
	if role, ok := c.catalogue.RoleOf(lot); ok {
		ref.Role = role
		ref.HasRole = true
	}
	c.history(sessionID).Push(ref)

	c.options.logger.Info("Lot sold",
		slog.String("op", op),
		slog.String("auctionID", sessionID),
		slog.String("lot", lot),
		slog.String("buyer", label),
		slog.Uint64("price", uint64(sale.Price)))

	if c.options.autoAdvance && ref.HasRole {
		c.scheduleAdvance(sessionID, ref.Role)
	}
	return &sale, nil
}

// GoToPreviousLot 把最近結標的球員重新帶回拍賣(單層撤銷)。
// 鎖定中或沒有可回復的球員時靜默無操作，返回 false。
func (c *Controller) GoToPreviousLot(ctx context.Context, sessionID string) (bool, error) {
	session, err := c.store.Read(ctx, sessionID)
	if err != nil {
		return false, err
	}
	if session.IsLocked {
		return false, nil
	}
	ref, ok := c.history(sessionID).Pop()
	if !ok {
		return false, nil
	}
	if _, err := c.SetLotManually(ctx, sessionID, ref.Name); err != nil {
		return false, err
	}
	return true, nil
}

// scheduleAdvance 在短暫延遲後自動帶出同位置的下一名球員。
// 這是盡力而為的便利功能，任何失敗只記錄日誌，不影響剛完成的成交。
func (c *Controller) scheduleAdvance(sessionID string, role Role) {
	const op = "Controller.scheduleAdvance"
	time.AfterFunc(c.options.advanceDelay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.options.advanceTimeout)
		defer cancel()
		if _, err := c.FetchNextLotByRole(ctx, sessionID, role); err != nil {
			if errors.Is(err, ErrPoolExhausted) {
				return
			}
			c.options.logger.Warn("Fail to auto-advance to next lot",
				slog.String("op", op),
				slog.String("auctionID", sessionID),
				slog.String("role", role.String()),
				slog.Any("error", err))
		}
	})
}

func (c *Controller) history(sessionID string) *LotHistory {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.histories[sessionID]
	if !ok {
		h = NewLotHistory(c.options.historySize)
		c.histories[sessionID] = h
	}
	return h
}

// resolveBuyerEmail 解析買家身份。出價時保留下來的名冊信箱優先，
// 代出價的「隊名 (Banditore)」標籤只靠它才解析得開；
// 其後依序退回參賽者顯示名稱、參賽者信箱、標籤本身看起來像信箱
func resolveBuyerEmail(s *Session, label string) (string, bool) {
	if s.CurrentBidderEmail != nil && *s.CurrentBidderEmail != "" {
		return *s.CurrentBidderEmail, true
	}
	if label == "" || label == AuctioneerLabel || label == "Base" {
		return "", false
	}
	if p, ok := s.FindParticipant(label); ok && p.Email != "" {
		return p.Email, true
	}
	for _, p := range s.Participants {
		if p.Email != "" && strings.EqualFold(p.Email, label) {
			return p.Email, true
		}
	}
	if strings.Contains(label, "@") {
		return label, true
	}
	return "", false
}
