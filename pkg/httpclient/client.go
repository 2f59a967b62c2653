package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultTimeout はCRM呼び出しの既定タイムアウト。
const DefaultTimeout = 30 * time.Second

// ErrDecode はレスポンスボディがJSONとして解釈できなかったことを表す。
var ErrDecode = errors.New("レスポンスボディのデシリアライズに失敗")

// Client はCRM APIを呼び出すためのHTTPクライアント。
type Client struct {
	// httpClient は内部で使用するHTTPクライアント。
	httpClient *http.Client
	// baseURL は接続先APIのベースURL。
	baseURL string
}

// Option はClientの生成オプション。
type Option func(*http.Client)

// WithTimeout はリクエスト全体のタイムアウトを設定する。
func WithTimeout(d time.Duration) Option {
	return func(c *http.Client) {
		c.Timeout = d
	}
}

// WithTransport は下位のRoundTripperを差し替える。
func WithTransport(rt http.RoundTripper) Option {
	return func(c *http.Client) {
		c.Transport = rt
	}
}

// New は新しいHTTPクライアントを生成する。
// baseURLには接続先のベースURL（例: "https://api.hubapi.com"）を指定する。
// 送信するリクエストにはAuthTransportが適用され、
// リクエストスコープのトークンがAuthorizationヘッダーとして付与される。
func New(baseURL string, opts ...Option) *Client {
	hc := &http.Client{
		Timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(hc)
	}
	hc.Transport = &AuthTransport{Base: hc.Transport}

	return &Client{
		httpClient: hc,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// RequestOption は個々のリクエストに対する追加設定。
type RequestOption func(*http.Request)

// WithBearer はAuthorizationヘッダーを明示的に設定する。
// 明示したヘッダーはAuthTransportによって上書きされない。
func WithBearer(token string) RequestOption {
	return func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
	}
}

// WithQuery はクエリパラメータを付与する。空の値は送信しない。
func WithQuery(params map[string]string) RequestOption {
	return func(r *http.Request) {
		q := r.URL.Query()
		for k, v := range params {
			if v != "" {
				q.Set(k, v)
			}
		}
		r.URL.RawQuery = q.Encode()
	}
}

// StatusError は接続先が2xx以外を返したことを表すエラー。
type StatusError struct {
	// StatusCode はレスポンスのHTTPステータスコード。
	StatusCode int
	// Body はレスポンスボディ。
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTPエラー: status=%d, body=%s", e.StatusCode, e.Body)
}

// IsClientError は4xxかどうかを返す。
func (e *StatusError) IsClientError() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// PostJSON は指定パスにJSONボディでPOSTリクエストを送信する。
// レスポンスボディをresultにデシリアライズする。
func (c *Client) PostJSON(ctx context.Context, path string, body any, result any, opts ...RequestOption) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("リクエストボディのシリアライズに失敗: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, "application/json", bytes.NewReader(jsonBody), result, opts)
}

// PostForm は指定パスにフォーム形式（application/x-www-form-urlencoded）でPOSTリクエストを送信する。
func (c *Client) PostForm(ctx context.Context, path string, form url.Values, result any, opts ...RequestOption) error {
	return c.do(ctx, http.MethodPost, path, "application/x-www-form-urlencoded", strings.NewReader(form.Encode()), result, opts)
}

// GetJSON は指定パスにGETリクエストを送信する。
// レスポンスボディをresultにデシリアライズする。
func (c *Client) GetJSON(ctx context.Context, path string, result any, opts ...RequestOption) error {
	return c.do(ctx, http.MethodGet, path, "", nil, result, opts)
}

// do はHTTPリクエストを実行する共通処理。
func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader, result any, opts []RequestOption) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	for _, opt := range opts {
		opt(req)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの送信に失敗: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("%w: %w", ErrDecode, err)
		}
	}
	return nil
}
