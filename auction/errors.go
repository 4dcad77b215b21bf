package auction

import "errors"

// 驗證類錯誤：前置條件失敗，立即回報給發起者，不需重試
var (
	ErrNoLotActive          = errors.New("no lot is currently up for bid")
	ErrAuctionLocked        = errors.New("auction is locked")
	ErrBidTooLow            = errors.New("bid must be higher than the current bid")
	ErrAlreadyHighestBidder = errors.New("caller is already the highest bidder")
	ErrRoleQuotaExceeded    = errors.New("role quota for this lot's role is already full")
	ErrLotNameRequired      = errors.New("lot name is required")
)

// 諮詢類錯誤：剛觀察到他人出價後的短暫冷卻，僅為操作體驗節流，
// 不能取代 Store 提交前的正式驗證
var ErrTransientlyBlocked = errors.New("temporarily blocked after a rival bid")

// 解析類錯誤：僅讓單一操作失敗，拍賣會狀態不受影響
var (
	ErrBuyerUnresolved = errors.New("unable to resolve the buyer identity")
	ErrLotNotFound     = errors.New("lot not found in the local catalogue")
)

// 外部依賴類錯誤
var (
	ErrConfigurationNotReady    = errors.New("group configuration is not ready")
	ErrPoolExhausted            = errors.New("no remaining lots for this role")
	ErrExternalAssignmentFailed = errors.New("external roster assignment failed")
)

// 儲存層錯誤
var (
	ErrSessionNotFound = errors.New("auction session not found")
	ErrVersionConflict = errors.New("session version conflict")
	ErrSessionExists   = errors.New("auction session already exists")
)
