package auction

import "sync"

// LotRef 記住一名曾經上拍的球員，供「回到上一位」使用
type LotRef struct {
	Name string
	// 售出當下已知的位置；目錄查不到時 HasRole 為 false
	Role    Role
	HasRole bool
}

// LotHistory 是有界的上拍歷史。
// 目前的政策是容量 1(單槽撤銷)，以明確的型別表達這個設計意圖，
// 之後要放寬只需調整容量。Pop 會清空該槽，因此連續撤銷兩次，
// 第二次是無操作。
type LotHistory struct {
	mu       sync.Mutex
	capacity int
	entries  []LotRef
}

// NewLotHistory 建立容量為 capacity 的歷史，capacity 小於 1 時視為 1
func NewLotHistory(capacity int) *LotHistory {
	if capacity < 1 {
		capacity = 1
	}
	return &LotHistory{capacity: capacity}
}

// Push 記錄最近清出的球員，超出容量時淘汰最舊的一筆
func (h *LotHistory) Push(ref LotRef) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, ref)
	if len(h.entries) > h.capacity {
		h.entries = h.entries[len(h.entries)-h.capacity:]
	}
}

// Pop 取出最近的一筆並將其從歷史中移除
func (h *LotHistory) Pop() (LotRef, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.entries) == 0 {
		return LotRef{}, false
	}
	ref := h.entries[len(h.entries)-1]
	h.entries = h.entries[:len(h.entries)-1]
	return ref, true
}

// Len 返回目前記住的筆數
func (h *LotHistory) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}
