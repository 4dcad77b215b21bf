package auction

import (
	"slices"
	"time"
)

// PatchOp 是對 Session 的一個局部修改。
// 所有會改動拍賣會狀態的程式碼都必須以 PatchOp 組合後交給 Store.Commit，
// 確保不變量(takenLots 唯一、salesHistory 只增不減)只在這一條路徑上維護。
type PatchOp func(*Session)

// SetCurrentLot 設定當前上拍球員並重置出價
func SetCurrentLot(name string) PatchOp {
	return func(s *Session) {
		s.CurrentLot = &name
	}
}

// ClearCurrentLot 清除當前上拍球員
func ClearCurrentLot() PatchOp {
	return func(s *Session) {
		s.CurrentLot = nil
	}
}

// SetCurrentBid 設定當前最高出價
func SetCurrentBid(amount uint32) PatchOp {
	return func(s *Session) {
		s.CurrentBid = amount
	}
}

// SetCurrentBidder 設定當前最高出價者的顯示標籤
func SetCurrentBidder(label string) PatchOp {
	return func(s *Session) {
		s.CurrentBidder = &label
	}
}

// ClearCurrentBidder 清除當前最高出價者
func ClearCurrentBidder() PatchOp {
	return func(s *Session) {
		s.CurrentBidder = nil
	}
}

// SetCurrentBidderEmail 設定當前最高出價者的名冊信箱；空字串等同清除，
// 避免換人出價後殘留上一位的信箱
func SetCurrentBidderEmail(email string) PatchOp {
	return func(s *Session) {
		if email == "" {
			s.CurrentBidderEmail = nil
			return
		}
		s.CurrentBidderEmail = &email
	}
}

// ClearCurrentBidderEmail 清除當前最高出價者的名冊信箱
func ClearCurrentBidderEmail() PatchOp {
	return func(s *Session) {
		s.CurrentBidderEmail = nil
	}
}

// SetActive 設定是否已有人出價
func SetActive(active bool) PatchOp {
	return func(s *Session) {
		s.IsActive = active
	}
}

// SetLocked 設定鎖定旗標
func SetLocked(locked bool) PatchOp {
	return func(s *Session) {
		s.IsLocked = locked
	}
}

// SetGroupConfig 設定外部名冊API座標
func SetGroupConfig(cfg GroupConfig) PatchOp {
	return func(s *Session) {
		s.GroupConfig = &cfg
	}
}

// AddParticipant 加入參賽者；同名已存在時不做任何事(冪等)
func AddParticipant(p Participant) PatchOp {
	return func(s *Session) {
		for _, existing := range s.Participants {
			if existing.Name == p.Name {
				return
			}
		}
		if p.JoinedAt.IsZero() {
			p.JoinedAt = time.Now()
		}
		s.Participants = append(s.Participants, p)
	}
}

// RemoveParticipant 以顯示名稱移除參賽者
func RemoveParticipant(name string) PatchOp {
	return func(s *Session) {
		s.Participants = slices.DeleteFunc(s.Participants, func(p Participant) bool {
			return p.Name == name
		})
	}
}

// AddTakenLot 將球員加入已售出集合；重複加入不產生第二筆
func AddTakenLot(name string) PatchOp {
	return func(s *Session) {
		if !slices.Contains(s.TakenLots, name) {
			s.TakenLots = append(s.TakenLots, name)
		}
	}
}

// AppendSale 追加一筆成交紀錄
func AppendSale(sale Sale) PatchOp {
	return func(s *Session) {
		if sale.SoldAt.IsZero() {
			sale.SoldAt = time.Now()
		}
		s.SalesHistory = append(s.SalesHistory, sale)
	}
}

// Apply 依序套用所有修改並遞增版本號，供 Store 實作使用
func (s *Session) Apply(ops ...PatchOp) {
	applyPatch(s, ops)
}

// applyPatch 依序套用所有修改並遞增版本號。
// 由各個 Store 實作共用，保證本地與遠端套用同一份語意。
func applyPatch(s *Session, ops []PatchOp) {
	for _, op := range ops {
		op(s)
	}
	s.Version++
}
