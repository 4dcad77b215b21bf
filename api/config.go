package api

import (
	"crypto/ed25519"
	"time"
)

type ServerConfig struct {
	// 服務實例的識別名稱，同時作為consumer group內的consumer名稱
	ID string

	OIDC        OIDCConfig
	DB          DBConfig
	Redis       RedisConfig
	Auth        AuthConfig
	Session     SessionConfig
	Fantacalcio FantacalcioConfig
	Policy      PolicyConfig
}

type OIDCConfig struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
}

type DBConfig struct {
	User     string
	Password string
	Host     string
	Port     int
	Database string
	Schema   string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// 所有key的共同前綴，用於和同一個Redis上的其他服務隔離
	KeyPrefix string

	StreamKeys    RedisStreamKeys
	ConsumerGroup string
}

type RedisStreamKeys struct {
	// 成交紀錄的stream，由成交持久化worker消費
	Sales string
}

type AuthConfig struct {
	PrivateKey     ed25519.PrivateKey
	Issuer         string
	Audience       string
	ExpireDuration time.Duration
}

type SessionConfig struct {
	KeyForCookie string
	CookieMaxAge time.Duration
}

type FantacalcioConfig struct {
	// 名冊數據API的基底URL
	BaseURL string
	// 啟動時載入球員目錄使用的聯盟座標
	GroupID  string
	LeagueID string
	BasketID string
	Year     string
	// 球員補充資料CSV(先發與上季數據)，可為空
	ExtraCSVPath string
}

type PolicyConfig struct {
	// 觀察到他人出價後的諮詢性冷卻時間
	CooldownWindow time.Duration
	// 成交後自動帶出下一名球員
	AutoAdvance bool
	// 自動前進前的緩衝時間
	AdvanceDelay time.Duration
	// 向外部API要求下一名球員時是否隨機抽取
	RandomizeNext bool
	// 名冊配額快照的允許過期時間
	RosterTTL time.Duration
}
