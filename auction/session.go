package auction

import (
	"slices"
	"time"
)

// Session 代表一場拍賣會的即時狀態文件，是整個服務的根聚合。
// 所有讀寫都必須透過 Store 進行，其他層只持有唯讀的快照。
type Session struct {
	ID        string    `json:"id" msgpack:"id"`
	Name      string    `json:"auctionName" msgpack:"auctionName"`
	CreatedAt time.Time `json:"createdAt" msgpack:"createdAt"`

	// 當前上拍球員；nil 表示目前沒有球員在拍
	CurrentLot *string `json:"currentPlayer" msgpack:"currentPlayer"`
	// 當前最高出價，球員上拍或售出時歸零
	CurrentBid uint32 `json:"currentBid" msgpack:"currentBid"`
	// 當前最高出價者的顯示標籤；尚無人出價時為 nil
	CurrentBidder *string `json:"currentBidder" msgpack:"currentBidder"`
	// 當前最高出價者的名冊信箱，代出價時在此保留隊伍擁有者，
	// 結標時不必再從標籤反查；無從得知時為 nil
	CurrentBidderEmail *string `json:"currentBidderEmail,omitempty" msgpack:"currentBidderEmail,omitempty"`
	// 是否已有人對當前球員出價
	IsActive bool `json:"isActive" msgpack:"isActive"`
	// 鎖定期間除了解鎖之外拒絕所有出價相關操作
	IsLocked bool `json:"isLocked" msgpack:"isLocked"`

	Participants []Participant `json:"participants" msgpack:"participants"`
	TakenLots    []string      `json:"takenPlayers" msgpack:"takenPlayers"`
	SalesHistory []Sale        `json:"salesHistory" msgpack:"salesHistory"`

	// 外部名冊API的座標；缺少時進度控制功能停用
	GroupConfig *GroupConfig `json:"groupConfig,omitempty" msgpack:"groupConfig,omitempty"`

	// 單調遞增的版本號，Commit 以它做條件寫入
	Version uint64 `json:"version" msgpack:"version"`
}

// Participant 代表以顯示名稱加入拍賣會的出價者
type Participant struct {
	Name     string    `json:"name" msgpack:"name"`
	JoinedAt time.Time `json:"joinedAt" msgpack:"joinedAt"`
	// 用於向外部系統解析名冊歸屬的聯絡身份，可為空
	Email string `json:"email,omitempty" msgpack:"email,omitempty"`
}

// Sale 代表一筆完成的成交紀錄
type Sale struct {
	Lot        string    `json:"playerName" msgpack:"playerName"`
	Price      uint32    `json:"price" msgpack:"price"`
	Buyer      string    `json:"buyer" msgpack:"buyer"`
	BuyerEmail string    `json:"buyerEmail,omitempty" msgpack:"buyerEmail,omitempty"`
	SoldAt     time.Time `json:"soldAt" msgpack:"soldAt"`
}

// GroupConfig 是呼叫外部名冊API前必須具備的聯盟座標
type GroupConfig struct {
	GroupID   string `json:"groupId" msgpack:"groupId"`
	GroupName string `json:"groupName" msgpack:"groupName"`
	LeagueID  string `json:"leagueId" msgpack:"leagueId"`
	BasketID  string `json:"basketId" msgpack:"basketId"`
	Year      string `json:"year" msgpack:"year"`
}

// Clone 返回完整的深拷貝，讓訂閱者拿到的快照與儲存層脫鉤
func (s *Session) Clone() *Session {
	clone := *s
	if s.CurrentLot != nil {
		lot := *s.CurrentLot
		clone.CurrentLot = &lot
	}
	if s.CurrentBidder != nil {
		bidder := *s.CurrentBidder
		clone.CurrentBidder = &bidder
	}
	if s.CurrentBidderEmail != nil {
		email := *s.CurrentBidderEmail
		clone.CurrentBidderEmail = &email
	}
	if s.GroupConfig != nil {
		cfg := *s.GroupConfig
		clone.GroupConfig = &cfg
	}
	clone.Participants = slices.Clone(s.Participants)
	clone.TakenLots = slices.Clone(s.TakenLots)
	clone.SalesHistory = slices.Clone(s.SalesHistory)
	return &clone
}

// FindParticipant 以顯示名稱尋找參賽者
func (s *Session) FindParticipant(name string) (Participant, bool) {
	for _, p := range s.Participants {
		if p.Name == name {
			return p, true
		}
	}
	return Participant{}, false
}

// IsTaken 檢查球員是否已售出或被標記為不可用
func (s *Session) IsTaken(lot string) bool {
	return slices.Contains(s.TakenLots, lot)
}
