// Package apierror はゲートウェイが返すエラーレスポンスの共通形式を提供する。
//
// 認証失敗、レート制限、入力検証エラー、CRM側のエラーなど、
// すべての失敗を同じJSON構造で返すことで、クライアントは
// 1つのパース処理だけでエラーを扱える。
package apierror

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Kind はゲートウェイが境界で扱う失敗の分類を表す。
type Kind int

const (
	// KindAuthMissing はAuthorizationヘッダーが無い、またはBearer形式でないことを表す。
	KindAuthMissing Kind = iota + 1
	// KindAuthInvalid はトークンが検証に失敗したことを表す。
	KindAuthInvalid
	// KindUpstreamUnavailable はイントロスペクション先に到達できなかったことを表す。
	// 認証の境界ではKindAuthInvalidと同じ応答に畳み込まれる。
	KindUpstreamUnavailable
	// KindRateLimitExceeded はリクエスト予算を使い切ったことを表す。
	KindRateLimitExceeded
	// KindValidationFailed はリクエストボディやパラメータの検証エラーを表す。
	KindValidationFailed
	// KindUpstreamConflict はコンタクト作成時にCRMが4xxを返したことを表す。
	KindUpstreamConflict
	// KindBadGateway はCRMとの通信に失敗したことを表す。
	KindBadGateway
	// KindInternal はゲートウェイ内部の予期しないエラーを表す。
	KindInternal
)

// メッセージ定数。クライアントが文字列で判定することがあるため変更しないこと。
const (
	MessageInvalidToken      = "Invalid Token"
	MessageRateLimitExceeded = "Rate limit exceeded, try again later."
	MessageValidationFailed  = "Validation Failed"
	MessageContactExists     = "Contact already exists"
	MessageBadGateway        = "CRM request failed"
	MessageInternal          = "Internal server error"
)

// String は分類名を返す。ログ出力で使用する。
func (k Kind) String() string {
	switch k {
	case KindAuthMissing:
		return "AuthMissing"
	case KindAuthInvalid:
		return "AuthInvalid"
	case KindUpstreamUnavailable:
		return "UpstreamUnavailable"
	case KindRateLimitExceeded:
		return "RateLimitExceeded"
	case KindValidationFailed:
		return "ValidationFailed"
	case KindUpstreamConflict:
		return "UpstreamConflict"
	case KindBadGateway:
		return "BadGateway"
	case KindInternal:
		return "Internal"
	default:
		return "Unknown"
	}
}

// Status は分類に対応するHTTPステータスコードを返す。
func (k Kind) Status() int {
	switch k {
	case KindAuthMissing, KindAuthInvalid, KindUpstreamUnavailable:
		return http.StatusUnauthorized
	case KindRateLimitExceeded:
		return http.StatusTooManyRequests
	case KindValidationFailed:
		return http.StatusBadRequest
	case KindUpstreamConflict:
		return http.StatusConflict
	case KindBadGateway:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Message は分類に対応する既定のメッセージを返す。
func (k Kind) Message() string {
	switch k {
	case KindAuthMissing, KindAuthInvalid, KindUpstreamUnavailable:
		return MessageInvalidToken
	case KindRateLimitExceeded:
		return MessageRateLimitExceeded
	case KindValidationFailed:
		return MessageValidationFailed
	case KindUpstreamConflict:
		return MessageContactExists
	case KindBadGateway:
		return MessageBadGateway
	default:
		return MessageInternal
	}
}

// Body はエラーレスポンスのJSON構造。
// フィールドの並び順がそのままJSONの出力順になる。
type Body struct {
	// Timestamp はエラー発生時刻（ISO-8601、UTC）。
	Timestamp string `json:"timestamp"`
	// Status はHTTPステータスコード。
	Status int `json:"status"`
	// Error はステータスコードの理由句（例: "Unauthorized"）。
	Error string `json:"error"`
	// Message は人が読むためのエラーメッセージ。
	Message string `json:"message"`
	// Path はリクエストパス。
	Path string `json:"path"`
	// Errors は入力検証エラーの一覧。検証エラー以外では出力しない。
	Errors []string `json:"errors,omitempty"`
}

// now は現在時刻を返す。テストで差し替える。
var now = time.Now

// timestampLayout はミリ秒精度のRFC 3339形式。
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// New は任意のステータスとメッセージでエラーボディを生成する。
func New(status int, message, path string) Body {
	return Body{
		Timestamp: now().UTC().Format(timestampLayout),
		Status:    status,
		Error:     http.StatusText(status),
		Message:   message,
		Path:      path,
	}
}

// FromKind は分類からエラーボディを生成する。
func FromKind(k Kind, path string) Body {
	return New(k.Status(), k.Message(), path)
}

// Validation はフィールド単位の検証エラーをまとめたエラーボディを生成する。
// errsは最初の1件で打ち切らず、すべての違反を含める。
func Validation(path string, errs []string) Body {
	b := New(http.StatusBadRequest, MessageValidationFailed, path)
	b.Errors = append([]string(nil), errs...)
	return b
}

// Abort は分類に応じたエラーレスポンスを書き込み、後続のハンドラを中断する。
func Abort(c *gin.Context, k Kind) {
	c.AbortWithStatusJSON(k.Status(), FromKind(k, c.Request.URL.Path))
}

// AbortStatus は任意のステータスとメッセージでエラーレスポンスを書き込み、処理を中断する。
func AbortStatus(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, New(status, message, c.Request.URL.Path))
}

// AbortValidation は検証エラーの一覧を400で返し、処理を中断する。
func AbortValidation(c *gin.Context, errs []string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, Validation(c.Request.URL.Path, errs))
}
