// Package ratelimit はプロセス全体で共有するトークンバケット方式のレート制限を提供する。
//
// バケットは容量いっぱいの状態で生成され、経過時間に比例して連続的に補充される。
// 補充量は容量を超えない。取得と補充の計算はアトミックに行われるため、
// 残り1トークンに対して2つのリクエストが同時に成功することはない。
package ratelimit

import (
	"math"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultCapacity はバケットの既定容量。
	DefaultCapacity = 110
	// DefaultWindow は既定容量ぶんのトークンが補充されるまでの時間。
	DefaultWindow = 10 * time.Second
)

// Decision はトークン取得の判定結果。
type Decision struct {
	// Admitted はリクエストを受け付けたかどうか。
	Admitted bool
	// Remaining は判定後にバケットに残っているトークン数（切り捨て）。
	Remaining int
	// RetryAfter は拒否時に、要求したトークンが貯まるまでの目安時間。
	RetryAfter time.Duration
}

// Bucket は共有トークンバケット。ゼロ値では使用できない。Newで生成すること。
type Bucket struct {
	limiter  *rate.Limiter
	capacity int
	now      func() time.Time
}

// Option はBucketの生成オプション。
type Option func(*Bucket)

// WithClock は現在時刻の取得関数を差し替える。テストで時間を固定するために使用する。
func WithClock(now func() time.Time) Option {
	return func(b *Bucket) {
		b.now = now
	}
}

// New は容量capacityで、window毎にcapacity個のトークンを補充するバケットを生成する。
// capacityが0以下、またはwindowが0以下の場合は既定値を使用する。
func New(capacity int, window time.Duration, opts ...Option) *Bucket {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if window <= 0 {
		window = DefaultWindow
	}

	b := &Bucket{
		capacity: capacity,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}

	// 110トークン/10秒 = 11トークン/秒
	perSecond := rate.Limit(float64(capacity) / window.Seconds())
	b.limiter = rate.NewLimiter(perSecond, capacity)
	// 生成時点の時刻で満タンにしておく。固定クロックのテストで補充量がずれないようにする。
	b.limiter.SetBurstAt(b.now(), capacity)
	return b
}

// TryConsume はn個のトークンの取得を試みる。
// 不足している場合はトークンを消費せずに拒否する。
func (b *Bucket) TryConsume(n int) Decision {
	t := b.now()
	if b.limiter.AllowN(t, n) {
		return Decision{
			Admitted:  true,
			Remaining: remaining(b.limiter.TokensAt(t)),
		}
	}

	tokens := b.limiter.TokensAt(t)
	missing := float64(n) - tokens
	var retry time.Duration
	if missing > 0 {
		retry = time.Duration(missing / float64(b.limiter.Limit()) * float64(time.Second))
	}
	return Decision{
		Admitted:   false,
		Remaining:  remaining(tokens),
		RetryAfter: retry,
	}
}

// Available は現在利用可能なトークン数を返す。値は容量を超えない。
func (b *Bucket) Available() float64 {
	return math.Min(b.limiter.TokensAt(b.now()), float64(b.capacity))
}

// Capacity はバケットの容量を返す。
func (b *Bucket) Capacity() int {
	return b.capacity
}

func remaining(tokens float64) int {
	if tokens <= 0 {
		return 0
	}
	return int(math.Floor(tokens))
}
