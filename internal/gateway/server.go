package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nao1215/crmgate/internal/config"
	"github.com/nao1215/crmgate/internal/crm"
	"github.com/nao1215/crmgate/internal/webhook"
	"github.com/nao1215/crmgate/pkg/event"
	"github.com/nao1215/crmgate/pkg/introspect"
	"github.com/nao1215/crmgate/pkg/middleware"
	"github.com/nao1215/crmgate/pkg/ratelimit"
	"github.com/nao1215/crmgate/pkg/validation"
)

// shutdownTimeout はグレースフルシャットダウンの待ち時間。
const shutdownTimeout = 10 * time.Second

// ContactService はCRMの連絡先APIを表す。*crm.Clientがこれを満たす。
type ContactService interface {
	ListContacts(ctx context.Context, params crm.ListParams) (*crm.ListContactsResponse, error)
	CreateContact(ctx context.Context, req crm.CreateContactRequest) (*crm.Contact, error)
}

// TokenExchanger は認可コードをトークンに交換する。*crm.OAuthClientがこれを満たす。
type TokenExchanger interface {
	Exchange(ctx context.Context, code string) (*crm.AuthResponse, error)
}

// EventReader は保存済みのWebhookイベントを参照する。*webhook.Storeがこれを満たす。
type EventReader interface {
	Recent(ctx context.Context, limit int) ([]*event.Record, error)
}

// Options はサーバーの動作設定。
type Options struct {
	// Port はリッスンポート。
	Port string
	// AuthorizeURL はGET /oauthのリダイレクト先。空の場合は503を返す。
	AuthorizeURL string
	// FrontendURL はCORSで許可するオリジン。
	FrontendURL string
	// DevTokenSecret は開発用トークンの署名鍵。空の場合はPOST /auth/dev-tokenを登録しない。
	DevTokenSecret string
}

// Deps はサーバーが使用する外部との接点。
type Deps struct {
	Validator introspect.Validator
	Limiter   middleware.Limiter
	Contacts  ContactService
	OAuth     TokenExchanger
	Sink      webhook.Sink
	// Events はnilの場合、GET /contact/webhook/eventsは404を返す。
	Events EventReader
	Logger *zap.Logger
}

// Server はゲートウェイのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// opts は動作設定。
	opts Options
	// deps は外部との接点。
	deps Deps
	// closers はClose時に解放するリソース。
	closers []io.Closer
}

// New は与えられた設定と依存でサーバーを生成する。
func New(opts Options, deps Deps) (*Server, error) {
	if err := validation.Register(); err != nil {
		return nil, fmt.Errorf("入力検証の初期化に失敗: %w", err)
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Sink == nil {
		deps.Sink = webhook.NewLogSink(deps.Logger)
	}

	router := gin.New()
	router.Use(middleware.Recovery(deps.Logger))
	router.Use(middleware.RequestLogger(deps.Logger))
	router.Use(middleware.CORS([]string{opts.FrontendURL}))

	s := &Server{
		router: router,
		opts:   opts,
		deps:   deps,
	}
	s.setupRoutes()
	return s, nil
}

// NewServer は設定cfgから本番用の依存を組み立ててサーバーを生成する。
func NewServer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Server, error) {
	var validator introspect.Validator = introspect.NewClient(cfg.CRMAPIURL, cfg.IntrospectionTimeout, logger)
	devSecret := ""
	if cfg.DevTokensAllowed() {
		validator = introspect.FirstValid(introspect.NewDevValidator(cfg.DevTokenSecret), validator)
		devSecret = cfg.DevTokenSecret
		logger.Warn("開発用トークンが有効です。本番環境では無効にしてください")
	}

	sinks := webhook.MultiSink{webhook.NewLogSink(logger)}
	deps := Deps{
		Validator: validator,
		Limiter:   ratelimit.New(cfg.RateLimitCapacity, cfg.RateLimitWindow),
		Contacts:  crm.NewClient(cfg.CRMAPIURL, cfg.CRMTimeout),
		OAuth: crm.NewOAuthClient(cfg.CRMAPIURL, crm.OAuthCredentials{
			ClientID:     cfg.OAuth.ClientID,
			ClientSecret: cfg.OAuth.ClientSecret,
			RedirectURI:  cfg.OAuth.RedirectURI,
		}, cfg.CRMTimeout),
		Logger: logger,
	}

	var closers []io.Closer
	if cfg.WebhookDBPath != "" {
		store, err := webhook.OpenStore(ctx, cfg.WebhookDBPath, logger)
		if err != nil {
			return nil, fmt.Errorf("Webhookイベントストアの初期化に失敗: %w", err)
		}
		sinks = append(sinks, store)
		deps.Events = store
		closers = append(closers, store)
	}
	deps.Sink = sinks

	s, err := New(Options{
		Port:           cfg.Port,
		AuthorizeURL:   cfg.OAuth.AuthorizeURL,
		FrontendURL:    cfg.FrontendURL,
		DevTokenSecret: devSecret,
	}, deps)
	if err != nil {
		for _, c := range closers {
			_ = c.Close()
		}
		return nil, err
	}
	s.closers = closers
	return s, nil
}

// Handler はルーティング済みのhttp.Handlerを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run はHTTPサーバーを起動し、ctxがキャンセルされるとグレースフルシャットダウンする。
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.opts.Port,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.deps.Logger.Info("シャットダウンを開始します")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("シャットダウンに失敗: %w", err)
	}
	return nil
}

// Close はサーバーが保持するリソースを解放する。
func (s *Server) Close() error {
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	log := s.deps.Logger

	// OAuth2認可コードフロー（認証不要）
	oauth := s.router.Group("/oauth")
	{
		oauth.GET("", s.handleOAuthStart())
		oauth.GET("/callback", s.handleOAuthCallback())
	}

	// 開発用トークン発行
	if s.opts.DevTokenSecret != "" {
		s.router.POST("/auth/dev-token", s.handleDevToken())
	}

	// CRMからのWebhook受信（認証不要）
	s.router.POST("/contact/webhook", s.handleWebhook())

	// 認証必須の連絡先API
	contact := s.router.Group("/contact")
	contact.Use(middleware.TokenAuth(s.deps.Validator, log))
	{
		contact.GET("", s.handleListContacts())
		contact.POST("", middleware.RateLimit(s.deps.Limiter, log), s.handleCreateContact())
		contact.GET("/webhook/events", s.handleListWebhookEvents())
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "crmgate"})
	})
}
