package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// HeaderRequestID はリクエストIDを伝播するHTTPヘッダーキー。
const HeaderRequestID = "X-Request-ID"

// contextKeyRequestID はGinコンテキストにリクエストIDを格納するキー。
const contextKeyRequestID = "request_id"

// RequestLogger はリクエストごとにアクセスログを出力するGinミドルウェアを返す。
// クライアントがX-Request-IDを送らなかった場合はUUIDを採番し、レスポンスヘッダーに返す。
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(contextKeyRequestID, requestID)
		c.Header(HeaderRequestID, requestID)

		c.Next()

		fields := []zap.Field{
			zap.String("request_id", requestID),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if id := PrincipalID(c); id != "" {
			fields = append(fields, zap.String("principal_id", id))
		}

		switch status := c.Writer.Status(); {
		case status >= 500:
			logger.Error("request", fields...)
		case status >= 400:
			logger.Warn("request", fields...)
		default:
			logger.Info("request", fields...)
		}
	}
}

// RequestID はGinコンテキストからリクエストIDを取得する。
func RequestID(c *gin.Context) string {
	return c.GetString(contextKeyRequestID)
}
