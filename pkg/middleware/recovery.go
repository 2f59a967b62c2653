package middleware

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nao1215/crmgate/pkg/apierror"
)

// Recovery はパニックからの回復を行うGinミドルウェアを返す。
// パニック発生時にスタックトレースをログに出力し、500エラーを返す。
// 最も外側に登録すること。
func Recovery(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("パニックから回復",
					zap.String("method", c.Request.Method),
					zap.String("path", c.Request.URL.Path),
					zap.Any("panic", r),
					zap.Stack("stack"),
				)
				apierror.Abort(c, apierror.KindInternal)
			}
		}()
		c.Next()
	}
}
