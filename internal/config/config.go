// Package config は環境変数からゲートウェイの設定を読み込む。
//
// カレントディレクトリに.envファイルがあれば先に読み込む。
// 既に設定されている環境変数は.envの値で上書きされない。
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config はゲートウェイの設定。
type Config struct {
	// Port はHTTPサーバーのリッスンポート。
	Port string
	// Environment は実行環境名（development, production など）。
	Environment string
	// LogLevel はログレベル（debug, info, warn, error）。
	LogLevel string
	// FrontendURL はCORSで許可するフロントエンドのオリジン。
	FrontendURL string

	// CRMAPIURL はCRM APIのベースURL。トークン情報の問い合わせ先も兼ねる。
	CRMAPIURL string
	// CRMTimeout はCRM API呼び出しのタイムアウト。
	CRMTimeout time.Duration
	// IntrospectionTimeout はトークン検証呼び出しのタイムアウト。
	IntrospectionTimeout time.Duration

	// OAuth はOAuth2認可コードフローの設定。
	OAuth OAuthConfig

	// RateLimitCapacity はPOST /contactの共有バケット容量。
	RateLimitCapacity int
	// RateLimitWindow は容量ぶんのトークンが補充されるまでの時間。
	RateLimitWindow time.Duration

	// WebhookDBPath はWebhookイベントを保存するSQLiteファイルのパス。空の場合は保存しない。
	WebhookDBPath string

	// DevTokensEnabled は開発用トークンの発行と検証を有効にするかどうか。
	DevTokensEnabled bool
	// DevTokenSecret は開発用トークンの署名鍵。
	DevTokenSecret string
}

// OAuthConfig はOAuth2クライアントの設定。
type OAuthConfig struct {
	// AuthorizeURL は認可画面のURL。クエリを含めてよい。
	AuthorizeURL string
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

// Load は.envファイルと環境変数から設定を読み込み、検証する。
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf(".envファイルの読み込みに失敗: %w", err)
	}
	return FromEnv()
}

// FromEnv は環境変数のみから設定を読み込み、検証する。
func FromEnv() (*Config, error) {
	var errs []error

	cfg := &Config{
		Port:        getEnvOr("PORT", "8080"),
		Environment: getEnvOr("ENVIRONMENT", "development"),
		LogLevel:    getEnvOr("LOG_LEVEL", "info"),
		FrontendURL: getEnvOr("FRONTEND_URL", "http://localhost:3000"),
		CRMAPIURL:   getEnvOr("CRM_API_URL", "https://api.hubapi.com"),
		OAuth: OAuthConfig{
			AuthorizeURL: getEnvOr("OAUTH_URL", ""),
			ClientID:     getEnvOr("OAUTH_CLIENT_ID", ""),
			ClientSecret: getEnvOr("OAUTH_CLIENT_SECRET", ""),
			RedirectURI:  getEnvOr("OAUTH_REDIRECT_URI", ""),
		},
		WebhookDBPath:  getEnvOr("WEBHOOK_DB_PATH", ""),
		DevTokenSecret: getEnvOr("DEV_TOKEN_SECRET", "dev-secret-key"),
	}
	cfg.CRMTimeout = collect[time.Duration](&errs)(getEnvAsDuration("CRM_TIMEOUT", 30*time.Second))
	cfg.IntrospectionTimeout = collect[time.Duration](&errs)(getEnvAsDuration("INTROSPECTION_TIMEOUT", 5*time.Second))
	cfg.RateLimitWindow = collect[time.Duration](&errs)(getEnvAsDuration("RATE_LIMIT_WINDOW", 10*time.Second))
	cfg.RateLimitCapacity = collect[int](&errs)(getEnvAsInt("RATE_LIMIT_CAPACITY", 110))
	cfg.DevTokensEnabled = collect[bool](&errs)(getEnvAsBool("DEV_TOKENS_ENABLED", false))

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// IsProduction は本番環境かどうかを返す。
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// DevTokensAllowed は開発用トークンを受け付けるかどうかを返す。本番環境では常にfalse。
func (c *Config) DevTokensAllowed() bool {
	return c.DevTokensEnabled && !c.IsProduction()
}

// Validate は設定値の妥当性を検証する。違反はすべてまとめて返す。
func (c *Config) Validate() error {
	var errs []error

	if p, err := strconv.Atoi(c.Port); err != nil || p < 1 || p > 65535 {
		errs = append(errs, fmt.Errorf("PORTが不正です: %q", c.Port))
	}
	if err := validateBaseURL("CRM_API_URL", c.CRMAPIURL); err != nil {
		errs = append(errs, err)
	}
	if c.OAuth.AuthorizeURL != "" {
		if err := validateBaseURL("OAUTH_URL", c.OAuth.AuthorizeURL); err != nil {
			errs = append(errs, err)
		}
	}
	if c.CRMTimeout <= 0 {
		errs = append(errs, errors.New("CRM_TIMEOUTは正の値である必要があります"))
	}
	if c.IntrospectionTimeout <= 0 {
		errs = append(errs, errors.New("INTROSPECTION_TIMEOUTは正の値である必要があります"))
	}
	if c.RateLimitCapacity <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_CAPACITYは正の値である必要があります"))
	}
	if c.RateLimitWindow <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_WINDOWは正の値である必要があります"))
	}
	if c.DevTokensAllowed() && c.DevTokenSecret == "" {
		errs = append(errs, errors.New("DEV_TOKEN_SECRETが設定されていません"))
	}
	return errors.Join(errs...)
}

// validateBaseURL はhttpまたはhttpsの絶対URLであることを検証する。
func validateBaseURL(key, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%sが不正です: %q", key, raw)
	}
	return nil
}

// collect は値とエラーの組からエラーをerrsに蓄積し、値のみを返す関数を生成する。
func collect[T any](errs *[]error) func(T, error) T {
	return func(v T, err error) T {
		if err != nil {
			*errs = append(*errs, err)
		}
		return v
	}
}

// getEnvOr は環境変数を取得し、設定されていない場合はデフォルト値を返す。
func getEnvOr(key, defaultValue string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return defaultValue
}

// getEnvAsInt は環境変数を整数として取得する。
func getEnvAsInt(key string, defaultValue int) (int, error) {
	v := getEnvOr(key, "")
	if v == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue, fmt.Errorf("%sは整数である必要があります: %q", key, v)
	}
	return n, nil
}

// getEnvAsDuration は環境変数を時間（例: "5s", "1m30s"）として取得する。
func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	v := getEnvOr(key, "")
	if v == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultValue, fmt.Errorf("%sは時間の形式である必要があります: %q", key, v)
	}
	return d, nil
}

// getEnvAsBool は環境変数を真偽値として取得する。
func getEnvAsBool(key string, defaultValue bool) (bool, error) {
	v := getEnvOr(key, "")
	if v == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultValue, fmt.Errorf("%sは真偽値である必要があります: %q", key, v)
	}
	return b, nil
}
