package gateway

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nao1215/crmgate/internal/crm"
	"github.com/nao1215/crmgate/pkg/apierror"
	"github.com/nao1215/crmgate/pkg/event"
	"github.com/nao1215/crmgate/pkg/httpclient"
	"github.com/nao1215/crmgate/pkg/introspect"
	"github.com/nao1215/crmgate/pkg/middleware"
	"github.com/nao1215/crmgate/pkg/validation"
)

const (
	// maxWebhookBodyBytes はWebhookボディの上限サイズ。
	maxWebhookBodyBytes = 1 << 20
	// devTokenTTL は開発用トークンの有効期間。
	devTokenTTL = 24 * time.Hour
	// defaultDevPrincipal は開発用トークンの既定のプリンシパルID。
	defaultDevPrincipal = "dev-user"
)

// handleOAuthStart は認可画面へリダイレクトするハンドラを返す。
func (s *Server) handleOAuthStart() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.opts.AuthorizeURL == "" {
			apierror.AbortStatus(c, http.StatusServiceUnavailable, "OAuth is not configured")
			return
		}
		c.Redirect(http.StatusFound, s.opts.AuthorizeURL)
	}
}

// handleOAuthCallback は認可コードをトークンに交換するハンドラを返す。
func (s *Server) handleOAuthCallback() gin.HandlerFunc {
	return func(c *gin.Context) {
		code := strings.TrimSpace(c.Query("code"))
		if code == "" {
			apierror.AbortValidation(c, []string{"code must not be blank"})
			return
		}
		if s.deps.OAuth == nil {
			apierror.AbortStatus(c, http.StatusServiceUnavailable, "OAuth is not configured")
			return
		}

		resp, err := s.deps.OAuth.Exchange(c.Request.Context(), code)
		if err != nil {
			var se *httpclient.StatusError
			if errors.As(err, &se) {
				s.deps.Logger.Info("認可コードが拒否されました", zap.Int("status", se.StatusCode))
				apierror.AbortStatus(c, se.StatusCode, "Invalid code")
				return
			}
			s.deps.Logger.Error("認可コードの交換に失敗", zap.Error(err))
			apierror.Abort(c, apierror.KindBadGateway)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

// devTokenRequest は開発用トークン発行のリクエストボディ。
type devTokenRequest struct {
	PrincipalID string `json:"principal_id"`
}

// handleDevToken は開発用トークンを発行するハンドラを返す。
// 本番環境では登録しない。
func (s *Server) handleDevToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req devTokenRequest
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
				apierror.AbortValidation(c, validation.Messages(err))
				return
			}
		}
		principal := strings.TrimSpace(req.PrincipalID)
		if principal == "" {
			principal = defaultDevPrincipal
		}

		token, err := introspect.IssueDevToken(s.opts.DevTokenSecret, principal, devTokenTTL)
		if err != nil {
			s.deps.Logger.Error("開発用トークンの発行に失敗", zap.Error(err))
			apierror.Abort(c, apierror.KindInternal)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"token":        token,
			"principal_id": principal,
			"expires_in":   int64(devTokenTTL.Seconds()),
		})
	}
}

// handleListContacts はCRMの連絡先一覧を返すハンドラを返す。
func (s *Server) handleListContacts() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, ok := queryLimit(c)
		if !ok {
			return
		}

		resp, err := s.deps.Contacts.ListContacts(c.Request.Context(), crm.ListParams{
			Limit: limit,
			After: c.Query("after"),
		})
		if err != nil {
			s.deps.Logger.Error("連絡先一覧の取得に失敗",
				zap.String("principal_id", middleware.PrincipalID(c)),
				zap.Error(err),
			)
			apierror.Abort(c, apierror.KindBadGateway)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

// handleCreateContact はCRMに連絡先を作成するハンドラを返す。
func (s *Server) handleCreateContact() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req crm.CreateContactRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			apierror.AbortValidation(c, validation.Messages(err))
			return
		}

		contact, err := s.deps.Contacts.CreateContact(c.Request.Context(), req)
		if err != nil {
			if errors.Is(err, crm.ErrContactExists) {
				s.deps.Logger.Info("連絡先の作成が拒否されました", zap.Error(err))
				apierror.Abort(c, apierror.KindUpstreamConflict)
				return
			}
			s.deps.Logger.Error("連絡先の作成に失敗",
				zap.String("principal_id", middleware.PrincipalID(c)),
				zap.Error(err),
			)
			apierror.Abort(c, apierror.KindBadGateway)
			return
		}
		c.JSON(http.StatusCreated, contact)
	}
}

// handleWebhook はCRMからのWebhookを受信するハンドラを返す。
// 記録先の失敗はログに残し、受信自体は成功として応答する。
func (s *Server) handleWebhook() gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBodyBytes))
		if err != nil {
			apierror.AbortValidation(c, []string{"request body is too large or unreadable"})
			return
		}

		records, err := event.DecodeBatch(body, time.Now())
		if err != nil {
			s.deps.Logger.Info("Webhookボディを解釈できません", zap.Error(err))
			apierror.AbortValidation(c, []string{"body must be a JSON array of contact events"})
			return
		}

		for _, r := range records {
			if err := s.deps.Sink.Record(c.Request.Context(), r); err != nil {
				s.deps.Logger.Warn("Webhookイベントの記録に失敗",
					zap.String("record_id", r.ID),
					zap.Int64("event_id", r.Event.EventID),
					zap.Error(err),
				)
			}
		}
		c.Status(http.StatusOK)
	}
}

// handleListWebhookEvents は保存済みのWebhookイベントを返すハンドラを返す。
func (s *Server) handleListWebhookEvents() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.deps.Events == nil {
			apierror.AbortStatus(c, http.StatusNotFound, "Webhook event store is not enabled")
			return
		}
		limit, ok := queryLimit(c)
		if !ok {
			return
		}

		records, err := s.deps.Events.Recent(c.Request.Context(), limit)
		if err != nil {
			s.deps.Logger.Error("Webhookイベントの取得に失敗", zap.Error(err))
			apierror.Abort(c, apierror.KindInternal)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"events": records,
			"count":  len(records),
		})
	}
}

// queryLimit はクエリパラメータlimitを読み取る。
// 未指定の場合は0を返す。不正な値の場合は400を書き込みfalseを返す。
func queryLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		apierror.AbortValidation(c, []string{"limit must be a positive integer"})
		return 0, false
	}
	return n, true
}
