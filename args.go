package main

import (
	"crypto/ed25519"
	"encoding/base64"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"pulsantiera/api"
)

func ParseArgs() Args {
	// server config
	pflag.String("server-url", "0.0.0.0:8080", "")
	pflag.String("server-id", "", "")

	// oidc config
	pflag.String("oidc-issuer-url", "", "")
	pflag.String("oidc-client-id", "", "")
	pflag.String("oidc-client-secret", "", "")

	// auth config
	pflag.String("auth-key-seed", "", "base64-encoded ed25519 seed; ephemeral when empty")
	pflag.String("auth-issuer", "pulsantiera", "")
	pflag.String("auth-audience", "pulsantiera", "")
	pflag.Duration("auth-expire-duration", 3*time.Hour, "")

	// db config
	pflag.String("db-user", "", "")
	pflag.String("db-password", "", "")
	pflag.String("db-host", "", "")
	pflag.Int("db-port", 5432, "")
	pflag.String("db-database", "", "")
	pflag.String("db-schema", "", "")

	// redis config
	pflag.String("redis-addr", "", "")
	pflag.String("redis-password", "", "")
	pflag.Int("redis-db", 15, "")
	pflag.String("redis-key-prefix", "pulsantiera:", "")
	pflag.String("redis-stream-key-for-sales", "pulsantiera-sales-stream", "")
	pflag.String("redis-consumer-group", "pulsantiera-sales", "")

	// session config
	pflag.String("session-cookie-key", "pulsantiera-session", "")
	pflag.Duration("session-cookie-max-age", 24*time.Hour, "")

	// fantacalcio api config
	pflag.String("fc-base-url", "", "")
	pflag.String("fc-group", "", "")
	pflag.String("fc-league", "", "")
	pflag.String("fc-basket", "", "")
	pflag.String("fc-year", "", "")
	pflag.String("fc-extra-csv", "", "")

	// auction policy
	pflag.Duration("policy-cooldown-window", time.Second, "")
	pflag.Bool("policy-auto-advance", true, "")
	pflag.Duration("policy-advance-delay", 500*time.Millisecond, "")
	pflag.Bool("policy-randomize-next", true, "")
	pflag.Duration("policy-roster-ttl", 30*time.Second, "")

	// bind pflag to viper
	pflag.Parse()
	viper.BindPFlags(pflag.CommandLine)
	viper.AutomaticEnv()
	viper.SetEnvPrefix("PULSANTIERA")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	serverID := viper.GetString("server-id")
	if serverID == "" {
		serverID = "pulsantiera-" + uuid.NewString()
	}

	// initial arguments
	return Args{
		ServerURL: viper.GetString("server-url"),
		ServerConfig: api.ServerConfig{
			ID: serverID,
			OIDC: api.OIDCConfig{
				IssuerURL:    viper.GetString("oidc-issuer-url"),
				ClientID:     viper.GetString("oidc-client-id"),
				ClientSecret: viper.GetString("oidc-client-secret"),
			},
			DB: api.DBConfig{
				User:     viper.GetString("db-user"),
				Password: viper.GetString("db-password"),
				Host:     viper.GetString("db-host"),
				Port:     viper.GetInt("db-port"),
				Database: viper.GetString("db-database"),
				Schema:   viper.GetString("db-schema"),
			},
			Redis: api.RedisConfig{
				Addr:      viper.GetString("redis-addr"),
				Password:  viper.GetString("redis-password"),
				DB:        viper.GetInt("redis-db"),
				KeyPrefix: viper.GetString("redis-key-prefix"),
				StreamKeys: api.RedisStreamKeys{
					Sales: viper.GetString("redis-stream-key-for-sales"),
				},
				ConsumerGroup: viper.GetString("redis-consumer-group"),
			},
			Auth: api.AuthConfig{
				PrivateKey:     loadPrivateKey(viper.GetString("auth-key-seed")),
				Issuer:         viper.GetString("auth-issuer"),
				Audience:       viper.GetString("auth-audience"),
				ExpireDuration: viper.GetDuration("auth-expire-duration"),
			},
			Session: api.SessionConfig{
				KeyForCookie: viper.GetString("session-cookie-key"),
				CookieMaxAge: viper.GetDuration("session-cookie-max-age"),
			},
			Fantacalcio: api.FantacalcioConfig{
				BaseURL:      viper.GetString("fc-base-url"),
				GroupID:      viper.GetString("fc-group"),
				LeagueID:     viper.GetString("fc-league"),
				BasketID:     viper.GetString("fc-basket"),
				Year:         viper.GetString("fc-year"),
				ExtraCSVPath: viper.GetString("fc-extra-csv"),
			},
			Policy: api.PolicyConfig{
				CooldownWindow: viper.GetDuration("policy-cooldown-window"),
				AutoAdvance:    viper.GetBool("policy-auto-advance"),
				AdvanceDelay:   viper.GetDuration("policy-advance-delay"),
				RandomizeNext:  viper.GetBool("policy-randomize-next"),
				RosterTTL:      viper.GetDuration("policy-roster-ttl"),
			},
		},
	}
}

// loadPrivateKey 從base64編碼的seed還原簽章私鑰。
// 沒有提供時產生一把臨時的：重啟後既有token全部失效，
// 多實例部署必須提供固定的seed。
func loadPrivateKey(encodedSeed string) ed25519.PrivateKey {
	if encodedSeed == "" {
		slog.Warn("No auth key seed provided, using an ephemeral signing key")
		_, key, _ := ed25519.GenerateKey(nil)
		return key
	}
	seed, err := base64.StdEncoding.DecodeString(encodedSeed)
	if err != nil || len(seed) != ed25519.SeedSize {
		slog.Warn("Invalid auth key seed, using an ephemeral signing key")
		_, key, _ := ed25519.GenerateKey(nil)
		return key
	}
	return ed25519.NewKeyFromSeed(seed)
}

type Args struct {
	ServerURL    string
	ServerConfig api.ServerConfig
}

func (args Args) Validate() bool {
	return args.ServerURL != "" && args.ServerConfig.OIDC.IssuerURL != "" && args.ServerConfig.OIDC.ClientID != "" && args.ServerConfig.OIDC.ClientSecret != "" && args.ServerConfig.Fantacalcio.BaseURL != ""
}
