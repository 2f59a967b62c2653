// Package crm はCRM（HubSpot互換API）の連絡先とOAuth2トークンのエンドポイントを呼び出す。
//
// 認証ヘッダーはhttpclient.AuthTransportがリクエストスコープのトークンから付与するため、
// Clientの呼び出し側はトークンを渡さない。
package crm

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/nao1215/crmgate/pkg/httpclient"
)

// contactsPath は連絡先オブジェクトのエンドポイント。
const contactsPath = "/crm/v3/objects/contacts"

// ErrContactExists はCRMが連絡先の作成を4xxで拒否したことを表す。
var ErrContactExists = errors.New("連絡先は既に存在します")

// Client はCRMの連絡先APIクライアント。
type Client struct {
	http *httpclient.Client
}

// NewClient はbaseURLのCRMを呼び出すClientを生成する。
func NewClient(baseURL string, timeout time.Duration, opts ...httpclient.Option) *Client {
	opts = append([]httpclient.Option{httpclient.WithTimeout(timeout)}, opts...)
	return &Client{http: httpclient.New(baseURL, opts...)}
}

// ListContacts は連絡先の一覧を取得する。
func (c *Client) ListContacts(ctx context.Context, params ListParams) (*ListContactsResponse, error) {
	query := map[string]string{"after": params.After}
	if params.Limit > 0 {
		query["limit"] = strconv.Itoa(params.Limit)
	}

	var resp ListContactsResponse
	if err := c.http.GetJSON(ctx, contactsPath, &resp, httpclient.WithQuery(query)); err != nil {
		return nil, fmt.Errorf("連絡先一覧の取得に失敗: %w", err)
	}
	return &resp, nil
}

// CreateContact は連絡先を作成する。
// CRMが4xxを返した場合はErrContactExistsを返す。
func (c *Client) CreateContact(ctx context.Context, req CreateContactRequest) (*Contact, error) {
	var created Contact
	err := c.http.PostJSON(ctx, contactsPath, newCreateContactPayload(req), &created)
	if err != nil {
		var se *httpclient.StatusError
		if errors.As(err, &se) && se.IsClientError() {
			return nil, fmt.Errorf("%w: %w", ErrContactExists, err)
		}
		return nil, fmt.Errorf("連絡先の作成に失敗: %w", err)
	}
	return &created, nil
}
