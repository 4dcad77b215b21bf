package auction

import "fmt"

// Role 代表球員的場上位置。
// 數值對應外部名冊API使用的編碼(0=門將、1=後衛、2=中場、3=前鋒)。
type Role int

const (
	RolePortiere Role = iota
	RoleDifensore
	RoleCentrocampista
	RoleAttaccante
)

var roleNames = map[Role]string{
	RolePortiere:       "Portiere",
	RoleDifensore:      "Difensore",
	RoleCentrocampista: "Centrocampista",
	RoleAttaccante:     "Attaccante",
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return fmt.Sprintf("Role(%d)", int(r))
}

// Valid 檢查是否為四種合法位置之一
func (r Role) Valid() bool {
	_, ok := roleNames[r]
	return ok
}

// ParseRole 將位置名稱解析為 Role
func ParseRole(name string) (Role, error) {
	for role, n := range roleNames {
		if n == name {
			return role, nil
		}
	}
	return 0, fmt.Errorf("unknown role %q", name)
}

// QuotaTable 定義每個位置單一參賽者名冊可持有的球員上限。
// 僅用於出價驗證，不會被本服務持久化。
type QuotaTable map[Role]int

// DefaultQuotas 返回經典陣容配置(3門將/8後衛/8中場/6前鋒)
func DefaultQuotas() QuotaTable {
	return QuotaTable{
		RolePortiere:       3,
		RoleDifensore:      8,
		RoleCentrocampista: 8,
		RoleAttaccante:     6,
	}
}

// Limit 返回指定位置的上限，未設定時視為不限制
func (q QuotaTable) Limit(r Role) (int, bool) {
	limit, ok := q[r]
	return limit, ok
}
