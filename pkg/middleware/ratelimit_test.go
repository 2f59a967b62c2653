package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"github.com/nao1215/crmgate/pkg/ratelimit"
)

// mockLimiter はLimiterのモック。
type mockLimiter struct {
	mock.Mock
}

func (m *mockLimiter) TryConsume(n int) ratelimit.Decision {
	return m.Called(n).Get(0).(ratelimit.Decision)
}

// TestRateLimit はRateLimitミドルウェアを検証する。
func TestRateLimit(t *testing.T) {
	t.Parallel()

	t.Run("トークンを取得できた場合はハンドラーが実行されること", func(t *testing.T) {
		t.Parallel()

		l := &mockLimiter{}
		l.On("TryConsume", 1).Return(ratelimit.Decision{Admitted: true, Remaining: 42}).Once()

		handlerCalled := false
		router := gin.New()
		router.POST("/contact", RateLimit(l, zap.NewNop()), func(c *gin.Context) {
			handlerCalled = true
			c.Status(http.StatusCreated)
		})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/contact", nil))

		assert.Equal(t, http.StatusCreated, w.Code)
		assert.True(t, handlerCalled)
		assert.Equal(t, "42", w.Header().Get("X-RateLimit-Remaining"))
		assert.Empty(t, w.Header().Get("Retry-After"))
		l.AssertExpectations(t)
	})

	t.Run("トークンが無い場合は429が返りハンドラーが実行されないこと", func(t *testing.T) {
		t.Parallel()

		l := &mockLimiter{}
		l.On("TryConsume", 1).Return(ratelimit.Decision{RetryAfter: 1500 * time.Millisecond}).Once()

		handlerCalled := false
		router := gin.New()
		router.POST("/contact", RateLimit(l, zap.NewNop()), func(c *gin.Context) {
			handlerCalled = true
		})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/contact", nil))

		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.False(t, handlerCalled)
		assert.Equal(t, "2", w.Header().Get("Retry-After"), "秒数は切り上げること")
		assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

		body := decodeError(t, w)
		assert.Equal(t, http.StatusTooManyRequests, body.Status)
		assert.Equal(t, "Too Many Requests", body.Error)
		assert.Equal(t, "Rate limit exceeded, try again later.", body.Message)
		assert.Equal(t, "/contact", body.Path)
	})

	t.Run("実際のバケットで容量を超えたリクエストが拒否されること", func(t *testing.T) {
		t.Parallel()

		now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		bucket := ratelimit.New(3, 10*time.Second, ratelimit.WithClock(func() time.Time { return now }))

		calls := 0
		router := gin.New()
		router.POST("/contact", RateLimit(bucket, zap.NewNop()), func(c *gin.Context) {
			calls++
			c.Status(http.StatusCreated)
		})

		codes := make([]int, 0, 4)
		for range 4 {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/contact", nil))
			codes = append(codes, w.Code)
		}

		assert.Equal(t, []int{http.StatusCreated, http.StatusCreated, http.StatusCreated, http.StatusTooManyRequests}, codes)
		assert.Equal(t, 3, calls)
	})
}

// TestRetryAfterSeconds はRetry-Afterの秒数計算を検証する。
func TestRetryAfterSeconds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   time.Duration
		want int
	}{
		{name: "0秒は1秒に切り上げ", in: 0, want: 1},
		{name: "1秒未満は1秒", in: 90 * time.Millisecond, want: 1},
		{name: "ちょうど1秒", in: time.Second, want: 1},
		{name: "1秒を超える場合は切り上げ", in: 1001 * time.Millisecond, want: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, retryAfterSeconds(ratelimit.Decision{RetryAfter: tt.in}))
		})
	}
}
