// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/joho/godotenv"
)

// ストアドライバー
const (
	StoreDriverSQLite   = "sqlite"
	StoreDriverPostgres = "postgres"
)

// IDトークン検証モード
const (
	IdentityModeOIDC = "oidc"
	IdentityModeJWKS = "jwks"
)

// Config はアプリケーション全体の設定を保持する。
// 起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Session
	SessionSecret     string `env:"SESSION_SECRET"`
	SessionAlgorithm  string `env:"SESSION_ALGORITHM" envDefault:"HS256"`
	SessionTTLMinutes int    `env:"SESSION_TTL_MINUTES" envDefault:"60"`

	// Store
	StoreDriver string `env:"STORE_DRIVER" envDefault:"sqlite"`
	DatabaseURL string `env:"DATABASE_URL"`
	SQLitePath  string `env:"SQLITE_PATH" envDefault:"file:tokenbridge.db?cache=shared"`

	// Identity
	IdentityMode            string        `env:"IDENTITY_MODE" envDefault:"oidc"`
	IdentityCredentialsFile string        `env:"IDENTITY_CREDENTIALS_FILE"`
	IdentityProjectID       string        `env:"IDENTITY_PROJECT_ID"`
	IdentityIssuerURL       string        `env:"IDENTITY_ISSUER_URL"`
	IdentityAudience        string        `env:"IDENTITY_AUDIENCE"`
	IdentityJWKSURL         string        `env:"IDENTITY_JWKS_URL" envDefault:"https://www.googleapis.com/service_accounts/v1/jwk/securetoken@system.gserviceaccount.com"`
	IdentityHTTPTimeout     time.Duration `env:"IDENTITY_HTTP_TIMEOUT" envDefault:"10s"`

	// Server
	ServerPort        string `env:"SERVER_PORT" envDefault:"8000"`
	CORSAllowedOrigin string `env:"CORS_ALLOWED_ORIGIN" envDefault:"*"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load は.envファイル（存在する場合）と環境変数からConfigを読み込み、検証する。
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return nil, fmt.Errorf("load .env file: %w", err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.SessionAlgorithm = strings.ToUpper(strings.TrimSpace(c.SessionAlgorithm))
	c.StoreDriver = strings.ToLower(strings.TrimSpace(c.StoreDriver))
	c.IdentityMode = strings.ToLower(strings.TrimSpace(c.IdentityMode))
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
}

// Validate は設定値の整合性を検証する。
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.SessionSecret, validation.Required),
		validation.Field(&c.SessionAlgorithm, validation.Required, validation.In("HS256", "HS384", "HS512")),
		validation.Field(&c.SessionTTLMinutes, validation.Required, validation.Min(1)),
		validation.Field(&c.StoreDriver, validation.Required, validation.In(StoreDriverSQLite, StoreDriverPostgres)),
		validation.Field(&c.DatabaseURL, validation.By(c.requireDatabaseURL)),
		validation.Field(&c.SQLitePath, validation.By(c.requireSQLitePath)),
		validation.Field(&c.IdentityMode, validation.Required, validation.In(IdentityModeOIDC, IdentityModeJWKS)),
		validation.Field(&c.IdentityProjectID, validation.By(c.requireProjectOrIssuer)),
		validation.Field(&c.IdentityJWKSURL, validation.By(c.requireJWKSURL)),
		validation.Field(&c.IdentityHTTPTimeout, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.ServerPort, validation.Required),
		validation.Field(&c.LogLevel, validation.In("debug", "info", "warn", "error")),
	)
}

func (c Config) requireDatabaseURL(value interface{}) error {
	if c.StoreDriver == StoreDriverPostgres && c.DatabaseURL == "" {
		return errors.New("is required when STORE_DRIVER is postgres")
	}
	return nil
}

func (c Config) requireSQLitePath(value interface{}) error {
	if c.StoreDriver == StoreDriverSQLite && c.SQLitePath == "" {
		return errors.New("is required when STORE_DRIVER is sqlite")
	}
	return nil
}

// requireProjectOrIssuer はIDトークンのissuerとaudienceを決められるだけの設定があるかを確認する。
// プロジェクトIDは認証情報ファイルから補完できる。
func (c Config) requireProjectOrIssuer(value interface{}) error {
	if c.IdentityProjectID != "" || c.IdentityCredentialsFile != "" {
		return nil
	}
	if c.IdentityIssuerURL != "" && c.IdentityAudience != "" {
		return nil
	}
	return errors.New("requires a project ID or credentials file, or both an issuer URL and an audience")
}

func (c Config) requireJWKSURL(value interface{}) error {
	if c.IdentityMode == IdentityModeJWKS && c.IdentityJWKSURL == "" {
		return errors.New("is required when IDENTITY_MODE is jwks")
	}
	return nil
}

// SessionTTL はセッショントークンの有効期間を返す。
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLMinutes) * time.Minute
}
