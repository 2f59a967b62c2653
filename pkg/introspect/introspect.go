// Package introspect はベアラートークンを上流の認可サーバーに問い合わせて検証する。
//
// 検証結果はValid、Invalid、UpstreamUnavailableのいずれかになる。
// 呼び出し側（認証ミドルウェア）はValid以外をすべて拒否として扱う。
package introspect

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/nao1215/crmgate/pkg/httpclient"
)

// DefaultTimeout はイントロスペクション呼び出しの既定タイムアウト。
const DefaultTimeout = 5 * time.Second

// Status は検証結果の種類。
type Status int

const (
	// StatusInvalid はトークンが無効であることを表す。
	StatusInvalid Status = iota
	// StatusValid はトークンが有効であることを表す。
	StatusValid
	// StatusUpstreamUnavailable は認可サーバーに到達できなかったことを表す。
	StatusUpstreamUnavailable
)

// String はログ出力用の名前を返す。
func (s Status) String() string {
	switch s {
	case StatusValid:
		return "valid"
	case StatusUpstreamUnavailable:
		return "upstream_unavailable"
	default:
		return "invalid"
	}
}

// Result はトークン検証の結果。PrincipalIDはStatusValidの場合のみ設定される。
type Result struct {
	Status      Status
	PrincipalID string
}

// Valid は有効な検証結果を生成する。
func Valid(principalID string) Result {
	return Result{Status: StatusValid, PrincipalID: principalID}
}

// Invalid は無効な検証結果を生成する。
func Invalid() Result {
	return Result{Status: StatusInvalid}
}

// Unavailable は認可サーバーに到達できなかった検証結果を生成する。
func Unavailable() Result {
	return Result{Status: StatusUpstreamUnavailable}
}

// IsValid は有効なトークンかどうかを返す。
func (r Result) IsValid() bool {
	return r.Status == StatusValid && r.PrincipalID != ""
}

// Validator はトークンを検証するインターフェース。
type Validator interface {
	Validate(ctx context.Context, token string) Result
}

// TokenInfo はアクセストークン情報エンドポイントのレスポンス。
type TokenInfo struct {
	Token     string   `json:"token"`
	User      string   `json:"user"`
	HubDomain string   `json:"hub_domain"`
	Scopes    []string `json:"scopes"`
	HubID     any      `json:"hub_id"`
	AppID     any      `json:"app_id"`
	ExpiresIn any      `json:"expires_in"`
	UserID    any      `json:"user_id"`
	TokenType string   `json:"token_type"`
}

// Client は認可サーバーのアクセストークン情報エンドポイントを呼び出すValidator。
type Client struct {
	http   *httpclient.Client
	logger *zap.Logger
}

// NewClient はbaseURLの認可サーバーに問い合わせるClientを生成する。
// timeoutが0以下の場合はDefaultTimeoutを使う。
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		http:   httpclient.New(baseURL, httpclient.WithTimeout(timeout)),
		logger: logger,
	}
}

// Validate はトークンを検証する。リトライは行わない。
// 問い合わせ自体も検証対象のトークンで認証する。
func (c *Client) Validate(ctx context.Context, token string) Result {
	if token == "" {
		return Invalid()
	}

	var info TokenInfo
	err := c.http.GetJSON(ctx, "/oauth/v1/access-tokens/"+url.PathEscape(token), &info, httpclient.WithBearer(token))
	if err != nil {
		var se *httpclient.StatusError
		if errors.As(err, &se) && se.StatusCode < http.StatusInternalServerError {
			c.logger.Debug("トークンが拒否されました", zap.Int("status", se.StatusCode))
			return Invalid()
		}
		if errors.Is(err, httpclient.ErrDecode) {
			c.logger.Debug("トークン情報のレスポンスが不正です", zap.Error(err))
			return Invalid()
		}
		c.logger.Warn("イントロスペクションに失敗", zap.Error(err))
		return Unavailable()
	}

	principal := stringify(info.UserID)
	if principal == "" {
		return Invalid()
	}
	return Valid(principal)
}

// stringify はJSONから読み取ったIDを文字列に変換する。
// 認可サーバーによって数値と文字列のどちらでも返るため両方を受け付ける。
func stringify(v any) string {
	switch id := v.(type) {
	case nil:
		return ""
	case string:
		return id
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	default:
		return fmt.Sprint(id)
	}
}
