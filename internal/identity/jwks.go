package identity

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/hitoshi/tokenbridge/internal/model"
)

const (
	jwksRefreshInterval  = time.Hour
	jwksRefreshRateLimit = 5 * time.Minute
	jwksRefreshTimeout   = 10 * time.Second
)

// firebaseClaims はJWKSVerifierがjwtでデコードするクレーム。
type firebaseClaims struct {
	UserID        string `json:"user_id"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	jwt.RegisteredClaims
}

// JWKSVerifier はJWKSエンドポイントの鍵でIDトークンを検証する。
// 鍵はバックグラウンドで定期的に再取得され、未知のkidを受け取った場合も再取得する。
type JWKSVerifier struct {
	jwks     *keyfunc.JWKS
	issuer   string
	audience string
	now      func() time.Time
}

// NewJWKSVerifier はjwksURLから鍵を取得してJWKSVerifierを生成する。
// 不要になったらCloseでバックグラウンドの再取得を停止すること。
func NewJWKSVerifier(jwksURL, issuer, audience string, httpClient *http.Client, logger *slog.Logger) (*JWKSVerifier, error) {
	if logger == nil {
		logger = slog.Default()
	}

	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{
		Client: httpClient,
		RefreshErrorHandler: func(err error) {
			logger.Error("failed to refresh JWKS",
				slog.String("url", jwksURL),
				slog.String("error", err.Error()),
			)
		},
		RefreshInterval:   jwksRefreshInterval,
		RefreshRateLimit:  jwksRefreshRateLimit,
		RefreshTimeout:    jwksRefreshTimeout,
		RefreshUnknownKID: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load JWKS from %s: %w", jwksURL, err)
	}

	return NewJWKSVerifierFromKeys(jwks, issuer, audience), nil
}

// NewJWKSVerifierFromKeys は取得済みの鍵セットからJWKSVerifierを生成する。
func NewJWKSVerifierFromKeys(jwks *keyfunc.JWKS, issuer, audience string) *JWKSVerifier {
	return &JWKSVerifier{
		jwks:     jwks,
		issuer:   issuer,
		audience: audience,
		now:      time.Now,
	}
}

// Verify はIDトークンを検証してクレームを返す。RS256以外の署名は拒否する。
func (v *JWKSVerifier) Verify(_ context.Context, rawIDToken string) (*model.VerifiedIdentity, error) {
	claims := &firebaseClaims{}
	_, err := jwt.ParseWithClaims(rawIDToken, claims, v.jwks.Keyfunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithStrictDecoding(),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidIdentityToken, err)
	}

	c := idTokenClaims{
		Subject:       claims.Subject,
		UserID:        claims.UserID,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		Name:          claims.Name,
	}
	return c.toIdentity()
}

// Close はバックグラウンドの鍵再取得を停止する。
func (v *JWKSVerifier) Close() {
	v.jwks.EndBackground()
}

// compile-time interface check
var _ Verifier = (*JWKSVerifier)(nil)
