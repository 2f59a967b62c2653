package httpclient

import (
	"net/http"

	"github.com/nao1215/crmgate/pkg/tokenctx"
)

// AuthTransport はリクエストスコープのトークンをAuthorizationヘッダーに付与するRoundTripper。
//
// 呼び出し側は資格情報を受け渡す必要がない。コンテキストにトークンが無い場合は
// ヘッダー無しでそのまま送信する。すでにAuthorizationヘッダーがある場合は変更しない。
type AuthTransport struct {
	// Base は実際の送信を行うRoundTripper。nilの場合はhttp.DefaultTransportを使う。
	Base http.RoundTripper
}

// RoundTrip はhttp.RoundTripperを実装する。
func (t *AuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	if req.Header.Get("Authorization") != "" {
		return base.RoundTrip(req)
	}
	token, ok := tokenctx.Token(req.Context())
	if !ok {
		return base.RoundTrip(req)
	}

	// RoundTripperは元のリクエストを変更してはならない
	r := req.Clone(req.Context())
	r.Header.Set("Authorization", "Bearer "+token)
	return base.RoundTrip(r)
}
