package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nao1215/crmgate/internal/crm"
	"github.com/nao1215/crmgate/pkg/introspect"
	"github.com/nao1215/crmgate/pkg/tokenctx"
)

// fakeCRM は認可サーバーと連絡先APIを兼ねるテスト用のCRM。
// "good-"で始まるトークンを有効、"down"を障害として扱う。
type fakeCRM struct {
	mu       sync.Mutex
	authSeen []string
}

func (f *fakeCRM) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /oauth/v1/access-tokens/{token}", func(w http.ResponseWriter, r *http.Request) {
		token := r.PathValue("token")
		switch {
		case token == "down":
			w.WriteHeader(http.StatusInternalServerError)
		case token == "good-no-user":
			_, _ = w.Write([]byte(`{"token":"good-no-user","hub_id":1}`))
		case strings.HasPrefix(token, "good-"):
			_, _ = w.Write([]byte(`{"user_id":"` + strings.TrimPrefix(token, "good-") + `","hub_id":1}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	mux.HandleFunc("POST /crm/v3/objects/contacts", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.authSeen = append(f.authSeen, r.Header.Get("Authorization"))
		f.mu.Unlock()

		var body struct {
			Properties map[string]string `json:"properties"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Properties["email"] == "dup@example.com" {
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"status":"error","message":"Contact already exists"}`))
			return
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"9","properties":{"email":"` + body.Properties["email"] + `"}}`))
	})
	return mux
}

// seen はCRMの連絡先APIが受け取ったAuthorizationヘッダーの一覧を返す。
func (f *fakeCRM) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.authSeen...)
}

// newPipelineEnv は実際のイントロスペクションとCRMクライアントを使うサーバーを生成する。
func newPipelineEnv(t *testing.T) (*testEnv, *fakeCRM) {
	t.Helper()

	fake := &fakeCRM{}
	ts := httptest.NewServer(fake.handler())
	t.Cleanup(ts.Close)

	env := newTestEnv(t, func(_ *Options, d *Deps) {
		d.Validator = introspect.NewClient(ts.URL, time.Second, zap.NewNop())
		d.Contacts = crm.NewClient(ts.URL, time.Second)
	})
	return env, fake
}

// TestPipeline は認証からCRM呼び出しまでを実際のクライアントで検証する。
func TestPipeline(t *testing.T) {
	t.Parallel()

	t.Run("受信したトークンがそのままCRMに転送されること", func(t *testing.T) {
		t.Parallel()

		env, fake := newPipelineEnv(t)
		w := env.do(http.MethodPost, "/contact", validContactBody, "good-alice")

		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		assert.Equal(t, []string{"Bearer good-alice"}, fake.seen())
	})

	t.Run("CRMの409は409として返ること", func(t *testing.T) {
		t.Parallel()

		env, _ := newPipelineEnv(t)
		w := env.do(http.MethodPost, "/contact", `{"email":"dup@example.com","firstName":"A","lastName":"B"}`, "good-alice")

		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "Contact already exists", decodeEnvelope(t, w).Message)
	})

	tests := []struct {
		name  string
		token string
	}{
		{name: "認可サーバーが404を返すトークンは401", token: "unknown"},
		{name: "user_idの無いトークンは401", token: "good-no-user"},
		{name: "認可サーバー障害時は401", token: "down"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			env, fake := newPipelineEnv(t)
			w := env.do(http.MethodPost, "/contact", validContactBody, tt.token)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, "Invalid Token", decodeEnvelope(t, w).Message)
			assert.Empty(t, fake.seen())
		})
	}
}

// echoContacts はコンテキストのトークンを連絡先IDとして返すContactService。
type echoContacts struct{}

func (echoContacts) ListContacts(ctx context.Context, _ crm.ListParams) (*crm.ListContactsResponse, error) {
	token, ok := tokenctx.Token(ctx)
	if !ok {
		return nil, errors.New("トークンがありません")
	}
	// 他のリクエストと処理が重なるように少し待つ
	time.Sleep(time.Millisecond)
	return &crm.ListContactsResponse{Results: []crm.Contact{{ID: token}}}, nil
}

func (echoContacts) CreateContact(context.Context, crm.CreateContactRequest) (*crm.Contact, error) {
	return nil, errors.New("未使用")
}

// TestConcurrentTokenIsolation は並行リクエスト間でトークンが混ざらず、
// すべてのスコープが解放されることを検証する。
// tokenctx.Liveはプロセス全体の値のため並列実行しない。
func TestConcurrentTokenIsolation(t *testing.T) {
	env := newTestEnv(t, func(_ *Options, d *Deps) {
		d.Validator = validatorFunc(func(_ context.Context, token string) introspect.Result {
			return introspect.Valid("p-" + token)
		})
		d.Contacts = echoContacts{}
	})
	before := tokenctx.Live()

	const n = 100
	got := make([]string, n)
	codes := make([]int, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w := env.do(http.MethodGet, "/contact", "", fmt.Sprintf("tok-%d", i))
			codes[i] = w.Code
			var resp crm.ListContactsResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err == nil && len(resp.Results) == 1 {
				got[i] = resp.Results[0].ID
			}
		}()
	}
	wg.Wait()

	for i := range n {
		assert.Equal(t, http.StatusOK, codes[i])
		assert.Equal(t, fmt.Sprintf("tok-%d", i), got[i], "リクエスト%dに別のトークンが見えている", i)
	}
	assert.Equal(t, before, tokenctx.Live(), "解放されていないトークンスコープがある")
}
