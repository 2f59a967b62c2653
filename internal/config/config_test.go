package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// envKeys は設定が参照する環境変数の一覧。
var envKeys = []string{
	"PORT", "ENVIRONMENT", "LOG_LEVEL", "FRONTEND_URL", "CRM_API_URL",
	"CRM_TIMEOUT", "INTROSPECTION_TIMEOUT", "OAUTH_URL", "OAUTH_CLIENT_ID",
	"OAUTH_CLIENT_SECRET", "OAUTH_REDIRECT_URI", "RATE_LIMIT_CAPACITY",
	"RATE_LIMIT_WINDOW", "WEBHOOK_DB_PATH", "DEV_TOKENS_ENABLED", "DEV_TOKEN_SECRET",
}

// clearEnv は設定に関わる環境変数を空にする。
// t.Setenvを使うため、呼び出すテストはt.Parallelを使えない。
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

// TestFromEnv は環境変数からの設定読み込みを検証する。
func TestFromEnv(t *testing.T) {
	t.Run("環境変数が無い場合は既定値が使われること", func(t *testing.T) {
		clearEnv(t)

		cfg, err := FromEnv()
		require.NoError(t, err)

		assert.Equal(t, "8080", cfg.Port)
		assert.Equal(t, "development", cfg.Environment)
		assert.Equal(t, "info", cfg.LogLevel)
		assert.Equal(t, "http://localhost:3000", cfg.FrontendURL)
		assert.Equal(t, "https://api.hubapi.com", cfg.CRMAPIURL)
		assert.Equal(t, 30*time.Second, cfg.CRMTimeout)
		assert.Equal(t, 5*time.Second, cfg.IntrospectionTimeout)
		assert.Equal(t, 110, cfg.RateLimitCapacity)
		assert.Equal(t, 10*time.Second, cfg.RateLimitWindow)
		assert.Empty(t, cfg.OAuth.AuthorizeURL)
		assert.Empty(t, cfg.WebhookDBPath)
		assert.False(t, cfg.DevTokensEnabled)
		assert.Equal(t, "dev-secret-key", cfg.DevTokenSecret)
	})

	t.Run("環境変数の値が反映されること", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("PORT", "9090")
		t.Setenv("ENVIRONMENT", "production")
		t.Setenv("CRM_API_URL", "http://crm.internal:8000")
		t.Setenv("OAUTH_URL", "https://app.hubspot.com/oauth/authorize?client_id=abc")
		t.Setenv("OAUTH_CLIENT_ID", "abc")
		t.Setenv("RATE_LIMIT_CAPACITY", "5")
		t.Setenv("RATE_LIMIT_WINDOW", "1m")
		t.Setenv("INTROSPECTION_TIMEOUT", "750ms")
		t.Setenv("CRM_TIMEOUT", "45s")
		t.Setenv("DEV_TOKENS_ENABLED", "true")

		cfg, err := FromEnv()
		require.NoError(t, err)

		assert.Equal(t, "9090", cfg.Port)
		assert.True(t, cfg.IsProduction())
		assert.Equal(t, "http://crm.internal:8000", cfg.CRMAPIURL)
		assert.Equal(t, "abc", cfg.OAuth.ClientID)
		assert.Equal(t, 5, cfg.RateLimitCapacity)
		assert.Equal(t, time.Minute, cfg.RateLimitWindow)
		assert.Equal(t, 750*time.Millisecond, cfg.IntrospectionTimeout)
		assert.Equal(t, 45*time.Second, cfg.CRMTimeout)
		assert.True(t, cfg.DevTokensEnabled)
		assert.False(t, cfg.DevTokensAllowed(), "本番環境では開発用トークンを受け付けない")
	})

	t.Run("型変換できない値はすべてまとめてエラーになること", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("RATE_LIMIT_CAPACITY", "many")
		t.Setenv("CRM_TIMEOUT", "30")
		t.Setenv("DEV_TOKENS_ENABLED", "yes please")

		_, err := FromEnv()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "RATE_LIMIT_CAPACITY")
		assert.Contains(t, err.Error(), "CRM_TIMEOUT")
		assert.Contains(t, err.Error(), "DEV_TOKENS_ENABLED")
	})
}

// TestCollect は値とエラーの組からエラーを蓄積する処理を検証する。
func TestCollect(t *testing.T) {
	t.Parallel()

	var errs []error
	n := collect[int](&errs)(7, nil)
	d := collect[time.Duration](&errs)(0, errors.New("durationが不正"))
	b := collect[bool](&errs)(true, nil)

	assert.Equal(t, 7, n)
	assert.Zero(t, d)
	assert.True(t, b)
	require.Len(t, errs, 1)
	assert.EqualError(t, errs[0], "durationが不正")
}

// TestLoad は.envファイルからの読み込みを検証する。
func TestLoad(t *testing.T) {
	t.Run(".envファイルの値が使われること", func(t *testing.T) {
		clearEnv(t)
		os.Unsetenv("RATE_LIMIT_CAPACITY")

		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("RATE_LIMIT_CAPACITY=7\n"), 0o600))
		t.Chdir(dir)
		t.Cleanup(func() { os.Unsetenv("RATE_LIMIT_CAPACITY") })

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, 7, cfg.RateLimitCapacity)
	})

	t.Run(".envファイルが無くてもエラーにならないこと", func(t *testing.T) {
		clearEnv(t)
		t.Chdir(t.TempDir())

		_, err := Load()
		assert.NoError(t, err)
	})
}

// TestValidate は設定値の検証を検証する。
func TestValidate(t *testing.T) {
	t.Parallel()

	valid := func() Config {
		return Config{
			Port:                 "8080",
			Environment:          "development",
			CRMAPIURL:            "https://api.hubapi.com",
			CRMTimeout:           time.Second,
			IntrospectionTimeout: time.Second,
			RateLimitCapacity:    110,
			RateLimitWindow:      10 * time.Second,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "正常な設定", mutate: func(*Config) {}},
		{name: "ポートが数値でない", mutate: func(c *Config) { c.Port = "http" }, wantErr: "PORT"},
		{name: "ポートが範囲外", mutate: func(c *Config) { c.Port = "70000" }, wantErr: "PORT"},
		{name: "CRMのURLにスキームが無い", mutate: func(c *Config) { c.CRMAPIURL = "api.hubapi.com" }, wantErr: "CRM_API_URL"},
		{name: "OAuthのURLが不正", mutate: func(c *Config) { c.OAuth.AuthorizeURL = "ftp://x" }, wantErr: "OAUTH_URL"},
		{name: "容量が0", mutate: func(c *Config) { c.RateLimitCapacity = 0 }, wantErr: "RATE_LIMIT_CAPACITY"},
		{name: "補充時間が負", mutate: func(c *Config) { c.RateLimitWindow = -time.Second }, wantErr: "RATE_LIMIT_WINDOW"},
		{name: "検証タイムアウトが0", mutate: func(c *Config) { c.IntrospectionTimeout = 0 }, wantErr: "INTROSPECTION_TIMEOUT"},
		{
			name: "開発用トークン有効時に署名鍵が空",
			mutate: func(c *Config) {
				c.DevTokensEnabled = true
				c.DevTokenSecret = ""
			},
			wantErr: "DEV_TOKEN_SECRET",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
