package catalog

import (
	"sort"
	"strings"
	"sync"

	"pulsantiera/auction"
)

// Player 是目錄中的一名球員與其賽季數據。
// 對拍賣核心而言球員是唯讀的外部實體，規則引擎只關心位置。
type Player struct {
	Name         string       `json:"name"`
	Role         auction.Role `json:"role"`
	Squad        string       `json:"squad"`
	Average      float64      `json:"average"`
	FantaAverage float64      `json:"fantaAverage"`
	Goals        int          `json:"goals"`
	Assists      int          `json:"assists"`
	Active       bool         `json:"active"`
}

// Extra 是 CSV 匯入的補充情報，目錄中查無時各欄位為零值
type Extra struct {
	// 是否為預期先發
	Starter bool `json:"starter"`
	// 上季平均與上季fanta平均
	LastSeasonAverage      float64 `json:"lastSeasonAverage"`
	LastSeasonFantaAverage float64 `json:"lastSeasonFantaAverage"`
}

// SearchResult 是一筆搜尋結果，附帶是否已被買走的標記
type SearchResult struct {
	Player
	Extra Extra `json:"extra"`
	Taken bool  `json:"taken"`
}

// Catalog 保存整份球員目錄，提供正規化比對與搜尋。
// 內容來自外部數據API，啟動後整份替換，查詢走讀鎖。
type Catalog struct {
	mu      sync.RWMutex
	players []Player
	byKey   map[string]int
	extra   map[string]Extra
}

// New 建立空目錄
func New() *Catalog {
	return &Catalog{
		byKey: make(map[string]int),
		extra: make(map[string]Extra),
	}
}

// Replace 以新的球員清單整份替換目錄內容
func (c *Catalog) Replace(players []Player) {
	byKey := make(map[string]int, len(players))
	for i, p := range players {
		byKey[normalize(p.Name)] = i
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.players = players
	c.byKey = byKey
}

// MergeExtra 合併 CSV 匯入的補充情報，以正規化名稱為鍵
func (c *Catalog) MergeExtra(extra map[string]Extra) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for name, e := range extra {
		c.extra[normalize(name)] = e
	}
}

// Len 返回目錄中的球員數
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.players)
}

// Match 以不分大小寫的正規化精確比對尋找球員，返回目錄中的正式名稱。
// 這是外部API回傳名稱與本地目錄對齊的唯一規則。
func (c *Catalog) Match(name string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, ok := c.byKey[normalize(name)]
	if !ok {
		return "", false
	}
	return c.players[i].Name, true
}

// Lookup 返回球員的完整資料
func (c *Catalog) Lookup(name string) (Player, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, ok := c.byKey[normalize(name)]
	if !ok {
		return Player{}, false
	}
	return c.players[i], true
}

// RoleOf 返回球員的位置，實作 auction.LotInfo
func (c *Catalog) RoleOf(name string) (auction.Role, bool) {
	p, ok := c.Lookup(name)
	if !ok {
		return 0, false
	}
	return p.Role, true
}

// ExtraOf 返回球員的補充情報
func (c *Catalog) ExtraOf(name string) (Extra, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.extra[normalize(name)]
	return e, ok
}

// Search 依名稱片段與位置過濾球員。
// 已被買走的排在後面，其餘依fanta平均由高至低。
func (c *Catalog) Search(term string, role *auction.Role, taken []string) []SearchResult {
	takenSet := make(map[string]struct{}, len(taken))
	for _, name := range taken {
		takenSet[normalize(name)] = struct{}{}
	}
	term = normalize(term)

	c.mu.RLock()
	defer c.mu.RUnlock()

	results := make([]SearchResult, 0, 16)
	for _, p := range c.players {
		if role != nil && p.Role != *role {
			continue
		}
		key := normalize(p.Name)
		if term != "" && !strings.Contains(key, term) {
			continue
		}
		_, isTaken := takenSet[key]
		results = append(results, SearchResult{
			Player: p,
			Extra:  c.extra[key],
			Taken:  isTaken,
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Taken != results[j].Taken {
			return !results[i].Taken
		}
		return results[i].FantaAverage > results[j].FantaAverage
	})
	return results
}

// normalize 將名稱轉為比對用的鍵：去除前後空白、壓縮連續空白、轉小寫
func normalize(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}
