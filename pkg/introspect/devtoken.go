package introspect

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// devIssuer は開発用トークンの発行者名。
const devIssuer = "crmgate-dev"

// IssueDevToken は開発用のHS256トークンを発行する。
// CRMの認可サーバーを用意できないローカル開発環境で使用する。本番環境では無効化すること。
func IssueDevToken(secret, principalID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   principalID,
		Issuer:    devIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("開発用トークンの署名に失敗: %w", err)
	}
	return signed, nil
}

// DevValidator はIssueDevTokenで発行したトークンを検証するValidator。
type DevValidator struct {
	secret []byte
}

// NewDevValidator は署名鍵secretで検証するDevValidatorを生成する。
func NewDevValidator(secret string) *DevValidator {
	return &DevValidator{secret: []byte(secret)}
}

// Validate はトークンの署名、発行者、有効期限を検証する。
func (v *DevValidator) Validate(_ context.Context, token string) Result {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(_ *jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(devIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid || claims.Subject == "" {
		return Invalid()
	}
	return Valid(claims.Subject)
}
