package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nao1215/crmgate/pkg/apierror"
	"github.com/nao1215/crmgate/pkg/introspect"
	"github.com/nao1215/crmgate/pkg/tokenctx"
)

// contextKeyPrincipalID はGinコンテキストにプリンシパルIDを格納するキー。
const contextKeyPrincipalID = "principal_id"

// bearerPrefix はAuthorizationヘッダーのベアラースキーム接頭辞。
const bearerPrefix = "Bearer "

// TokenAuth はベアラートークンをvalidatorで検証するGinミドルウェアを返す。
// 検証に成功した場合、トークンをリクエストスコープに格納してから後続のハンドラーを実行し、
// ハンドラーの完了後（パニック時を含む）にスコープを解放する。
// トークンが無い、形式が不正、または検証に失敗した場合は401を返す。
func TokenAuth(validator introspect.Validator, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			logger.Debug("ベアラートークンがありません", zap.String("path", c.Request.URL.Path))
			apierror.Abort(c, apierror.KindAuthMissing)
			return
		}

		result := validator.Validate(c.Request.Context(), token)
		if !result.IsValid() {
			kind := apierror.KindAuthInvalid
			if result.Status == introspect.StatusUpstreamUnavailable {
				kind = apierror.KindUpstreamUnavailable
			}
			logger.Info("トークン検証に失敗",
				zap.String("path", c.Request.URL.Path),
				zap.Stringer("result", result.Status),
			)
			apierror.Abort(c, kind)
			return
		}

		original := c.Request
		ctx, release := tokenctx.Acquire(original.Context(), token, result.PrincipalID)
		defer func() {
			release()
			c.Request = original
		}()

		c.Request = original.WithContext(ctx)
		c.Set(contextKeyPrincipalID, result.PrincipalID)
		c.Next()
	}
}

// bearerToken はAuthorizationヘッダーからトークンを取り出す。
// "Bearer "で始まらない場合やトークンが空の場合はfalseを返す。
func bearerToken(header string) (string, bool) {
	token, found := strings.CutPrefix(header, bearerPrefix)
	if !found {
		return "", false
	}
	return token, token != ""
}

// PrincipalID はGinコンテキストから認証済みプリンシパルのIDを取得する。
// TokenAuthミドルウェアが事前に適用されている必要がある。
func PrincipalID(c *gin.Context) string {
	if id, ok := c.Get(contextKeyPrincipalID); ok {
		if s, ok := id.(string); ok {
			return s
		}
	}
	return ""
}
