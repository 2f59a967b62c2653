// Package tokenctx はリクエスト単位で検証済みトークンを保持するスコープを提供する。
//
// 認証ミドルウェアがAcquireでスコープを作成し、リクエスト完了時に
// 解放関数を必ず呼び出す。スコープはリクエストのcontext.Contextに
// 紐付くため、並行する他のリクエストからは参照できない。
// 解放後は、コンテキストを保持し続けたゴルーチンからもトークンは見えなくなる。
package tokenctx

import (
	"context"
	"sync"
	"sync/atomic"
)

// scopeKey はコンテキストにスコープを格納するためのキー。
type scopeKey struct{}

// scope は1リクエスト分のトークン保持領域。
type scope struct {
	mu          sync.RWMutex
	token       string
	principalID string
	released    bool
	once        sync.Once
}

// live は未解放のスコープ数。
var live atomic.Int64

// Acquire はトークンとプリンシパルIDを保持するスコープを作成し、
// それを含む新しいコンテキストと解放関数を返す。
// 解放関数は何度呼んでも安全で、2回目以降は何もしない。
func Acquire(ctx context.Context, token, principalID string) (context.Context, func()) {
	s := &scope{token: token, principalID: principalID}
	live.Add(1)

	release := func() {
		s.once.Do(func() {
			s.mu.Lock()
			s.token = ""
			s.principalID = ""
			s.released = true
			s.mu.Unlock()
			live.Add(-1)
		})
	}
	return context.WithValue(ctx, scopeKey{}, s), release
}

// Token はコンテキストに紐付く有効なトークンを返す。
// スコープが無い、または解放済みの場合はfalseを返す。
func Token(ctx context.Context) (string, bool) {
	s, ok := ctx.Value(scopeKey{}).(*scope)
	if !ok {
		return "", false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.released || s.token == "" {
		return "", false
	}
	return s.token, true
}

// PrincipalID はトークンの持ち主の識別子を返す。
// スコープが無い、または解放済みの場合は空文字列を返す。
func PrincipalID(ctx context.Context) string {
	s, ok := ctx.Value(scopeKey{}).(*scope)
	if !ok {
		return ""
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.principalID
}

// Live はプロセス全体で未解放のスコープ数を返す。
func Live() int64 {
	return live.Load()
}
