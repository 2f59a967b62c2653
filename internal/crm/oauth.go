package crm

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/nao1215/crmgate/pkg/httpclient"
)

// tokenPath は認可コードをトークンに交換するエンドポイント。
const tokenPath = "/oauth/v1/token"

// OAuthCredentials はOAuth2クライアントの資格情報。
type OAuthCredentials struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

// OAuthClient は認可コードをアクセストークンに交換するクライアント。
type OAuthClient struct {
	http  *httpclient.Client
	creds OAuthCredentials
}

// NewOAuthClient はbaseURLのトークンエンドポイントを呼び出すOAuthClientを生成する。
func NewOAuthClient(baseURL string, creds OAuthCredentials, timeout time.Duration, opts ...httpclient.Option) *OAuthClient {
	opts = append([]httpclient.Option{httpclient.WithTimeout(timeout)}, opts...)
	return &OAuthClient{
		http:  httpclient.New(baseURL, opts...),
		creds: creds,
	}
}

// Exchange は認可コードcodeをアクセストークンに交換する。
// CRMが2xx以外を返した場合は*httpclient.StatusErrorをラップしたエラーを返す。
func (o *OAuthClient) Exchange(ctx context.Context, code string) (*AuthResponse, error) {
	form := url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {o.creds.ClientID},
		"client_secret": {o.creds.ClientSecret},
		"redirect_uri":  {o.creds.RedirectURI},
		"code":          {code},
	}

	var resp AuthResponse
	if err := o.http.PostForm(ctx, tokenPath, form, &resp); err != nil {
		return nil, fmt.Errorf("認可コードの交換に失敗: %w", err)
	}
	return &resp, nil
}
