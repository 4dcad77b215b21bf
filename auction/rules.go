package auction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// AuctioneerLabel 是拍賣官代表性操作使用的顯示標籤
const AuctioneerLabel = "Banditore"

// Bidder 代表一次出價的發起者
type Bidder struct {
	// 顯示名稱，也是寫入 currentBidder 的標籤
	Name string
	// 名冊擁有者信箱，為空時跳過配額檢查
	Email string
}

type engineOptions struct {
	logger                *slog.Logger
	quotas                QuotaTable
	maxRetries            int
	allowResetWhileLocked bool
}

type EngineOption func(*engineOptions)

// WithEngineLogger 設置日誌記錄器
func WithEngineLogger(logger *slog.Logger) EngineOption {
	return func(o *engineOptions) {
		o.logger = logger
	}
}

// WithEngineQuotas 設置各位置的名冊配額表
func WithEngineQuotas(quotas QuotaTable) EngineOption {
	return func(o *engineOptions) {
		o.quotas = quotas
	}
}

// WithEngineMaxRetries 設置版本衝突時的重讀重試次數
func WithEngineMaxRetries(n int) EngineOption {
	return func(o *engineOptions) {
		o.maxRetries = n
	}
}

// WithEngineAllowResetWhileLocked 設置鎖定期間是否允許重置出價。
// 預設依慣例封鎖(政策選項)。
func WithEngineAllowResetWhileLocked(allow bool) EngineOption {
	return func(o *engineOptions) {
		o.allowResetWhileLocked = allow
	}
}

// Engine 是唯一被允許改動 currentBid/currentBidder/isActive 的守門人。
// 每個操作都是「讀取快照→驗證→條件提交」，版本衝突時以最新快照重新驗證。
type Engine struct {
	store   Store
	roster  RosterCounter
	lots    LotInfo
	options engineOptions
}

// NewEngine 建立出價規則引擎。
// roster 與 lots 允許為 nil，此時不套用位置配額(與來源系統在
// 名冊資料缺失時放行出價的行為一致)。
func NewEngine(store Store, roster RosterCounter, lots LotInfo, opts ...EngineOption) (*Engine, error) {
	if store == nil {
		return nil, errors.New("store cannot be nil")
	}

	options := engineOptions{
		logger:     slog.Default(),
		quotas:     DefaultQuotas(),
		maxRetries: 3,
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &Engine{
		store:   store,
		roster:  roster,
		lots:    lots,
		options: options,
	}, nil
}

// PlaceIncrementBid 以固定加價對當前球員出價
func (e *Engine) PlaceIncrementBid(ctx context.Context, sessionID string, bidder Bidder, delta uint32) (*Session, error) {
	const op = "Engine.PlaceIncrementBid"
	if delta == 0 {
		return nil, ErrBidTooLow
	}
	return e.mutate(ctx, sessionID, func(s *Session) ([]PatchOp, error) {
		if err := e.validateBid(ctx, s, bidder); err != nil {
			return nil, err
		}
		e.options.logger.Info("Higher bid occurs",
			slog.String("op", op),
			slog.String("auctionID", sessionID),
			slog.String("bidder", bidder.Name),
			slog.Uint64("bid", uint64(s.CurrentBid+delta)))
		return []PatchOp{
			SetCurrentBid(s.CurrentBid + delta),
			SetCurrentBidder(bidder.Name),
			SetCurrentBidderEmail(bidder.Email),
			SetActive(true),
		}, nil
	})
}

// PlaceFixedBid 以指定金額對當前球員出價，金額必須嚴格高於當前出價
func (e *Engine) PlaceFixedBid(ctx context.Context, sessionID string, bidder Bidder, amount uint32) (*Session, error) {
	const op = "Engine.PlaceFixedBid"
	return e.mutate(ctx, sessionID, func(s *Session) ([]PatchOp, error) {
		if err := e.validateBid(ctx, s, bidder); err != nil {
			return nil, err
		}
		if amount <= s.CurrentBid {
			return nil, ErrBidTooLow
		}
		e.options.logger.Info("Higher bid occurs",
			slog.String("op", op),
			slog.String("auctionID", sessionID),
			slog.String("bidder", bidder.Name),
			slog.Uint64("bid", uint64(amount)))
		return []PatchOp{
			SetCurrentBid(amount),
			SetCurrentBidder(bidder.Name),
			SetCurrentBidderEmail(bidder.Email),
			SetActive(true),
		}, nil
	})
}

// PlaceBidOnBehalf 由拍賣官代表一支隊伍出價，
// 標籤記為「隊名 (Banditore)」，配額以該隊擁有者的名冊計算
func (e *Engine) PlaceBidOnBehalf(ctx context.Context, sessionID, teamName, ownerEmail string, amount uint32) (*Session, error) {
	const op = "Engine.PlaceBidOnBehalf"
	label := fmt.Sprintf("%s (%s)", teamName, AuctioneerLabel)
	return e.mutate(ctx, sessionID, func(s *Session) ([]PatchOp, error) {
		if s.CurrentLot == nil {
			return nil, ErrNoLotActive
		}
		if s.IsLocked {
			return nil, ErrAuctionLocked
		}
		if err := e.checkRoleQuota(ctx, s, ownerEmail); err != nil {
			return nil, err
		}
		if amount <= s.CurrentBid {
			return nil, ErrBidTooLow
		}
		e.options.logger.Info("Auctioneer bids on behalf of a team",
			slog.String("op", op),
			slog.String("auctionID", sessionID),
			slog.String("team", teamName),
			slog.Uint64("bid", uint64(amount)))
		return []PatchOp{
			SetCurrentBid(amount),
			SetCurrentBidder(label),
			SetCurrentBidderEmail(ownerEmail),
			SetActive(true),
		}, nil
	})
}

// ResetBid 將出價歸零並清除出價者(冪等)。
// 鎖定期間依慣例封鎖，可透過 WithEngineAllowResetWhileLocked 放行。
func (e *Engine) ResetBid(ctx context.Context, sessionID string) (*Session, error) {
	return e.mutate(ctx, sessionID, func(s *Session) ([]PatchOp, error) {
		if s.IsLocked && !e.options.allowResetWhileLocked {
			return nil, ErrAuctionLocked
		}
		return []PatchOp{
			SetCurrentBid(0),
			ClearCurrentBidder(),
			ClearCurrentBidderEmail(),
			SetActive(false),
		}, nil
	})
}

// ToggleLock 無條件翻轉鎖定旗標
func (e *Engine) ToggleLock(ctx context.Context, sessionID string) (*Session, error) {
	return e.mutate(ctx, sessionID, func(s *Session) ([]PatchOp, error) {
		return []PatchOp{SetLocked(!s.IsLocked)}, nil
	})
}

// validateBid 檢查一般參賽者出價的共同前置條件
func (e *Engine) validateBid(ctx context.Context, s *Session, bidder Bidder) error {
	if s.CurrentLot == nil {
		return ErrNoLotActive
	}
	if s.IsLocked {
		return ErrAuctionLocked
	}
	if err := e.checkRoleQuota(ctx, s, bidder.Email); err != nil {
		return err
	}
	if s.CurrentBidder != nil && *s.CurrentBidder == bidder.Name {
		return ErrAlreadyHighestBidder
	}
	return nil
}

// checkRoleQuota 以外部名冊快照計算擁有者持有的同位置球員數。
// 名冊或目錄資料缺失時放行，快照查詢失敗時放行並記錄警告。
func (e *Engine) checkRoleQuota(ctx context.Context, s *Session, ownerEmail string) error {
	const op = "Engine.checkRoleQuota"
	if ownerEmail == "" || e.roster == nil || e.lots == nil || s.CurrentLot == nil {
		return nil
	}
	role, ok := e.lots.RoleOf(*s.CurrentLot)
	if !ok {
		return nil
	}
	limit, ok := e.options.quotas.Limit(role)
	if !ok {
		return nil
	}
	count, known, err := e.roster.CountByRole(ctx, ownerEmail, role)
	if err != nil {
		e.options.logger.Warn("Fail to count roster, skipping quota check",
			slog.String("op", op),
			slog.String("owner", ownerEmail),
			slog.Any("error", err))
		return nil
	}
	if known && count >= limit {
		return fmt.Errorf("%w: %s %d/%d", ErrRoleQuotaExceeded, role, count, limit)
	}
	return nil
}

// mutate 執行「讀取→驗證→條件提交」，版本衝突時以最新快照重試
func (e *Engine) mutate(ctx context.Context, sessionID string, build func(*Session) ([]PatchOp, error)) (*Session, error) {
	return MutateSession(ctx, e.store, sessionID, e.options.maxRetries, build)
}
