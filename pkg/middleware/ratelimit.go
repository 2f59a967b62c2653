package middleware

import (
	"math"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nao1215/crmgate/pkg/apierror"
	"github.com/nao1215/crmgate/pkg/ratelimit"
)

// Limiter はリクエストごとにトークンを取得するレート制限器。
// *ratelimit.Bucketがこれを満たす。
type Limiter interface {
	TryConsume(n int) ratelimit.Decision
}

// RateLimit はリクエスト1件につきlimiterから1トークンを取得するGinミドルウェアを返す。
// 取得できなかった場合は後続のハンドラーを実行せずに429を返す。
func RateLimit(limiter Limiter, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		d := limiter.TryConsume(1)
		c.Header("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))

		if !d.Admitted {
			c.Header("Retry-After", strconv.Itoa(retryAfterSeconds(d)))
			logger.Info("レート制限により拒否",
				zap.String("method", c.Request.Method),
				zap.String("path", c.Request.URL.Path),
				zap.Duration("retry_after", d.RetryAfter),
			)
			apierror.Abort(c, apierror.KindRateLimitExceeded)
			return
		}

		c.Next()
	}
}

// retryAfterSeconds はRetry-Afterヘッダーに設定する秒数（切り上げ、最小1）を返す。
func retryAfterSeconds(d ratelimit.Decision) int {
	secs := int(math.Ceil(d.RetryAfter.Seconds()))
	return max(secs, 1)
}
