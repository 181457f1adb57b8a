package session

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hitoshi/tokenbridge/internal/model"
)

// Issuer はセッショントークンを署名して発行する。
// 構築後は不変のため、複数のgoroutineから同時に使用できる。
type Issuer struct {
	key    []byte
	method *jwt.SigningMethodHMAC
	now    Clock
}

// IssuerOption はIssuerの設定オプション。
type IssuerOption func(*Issuer)

// WithClock は発行時刻の取得に使う時計を差し替える。
func WithClock(now Clock) IssuerOption {
	return func(i *Issuer) {
		i.now = now
	}
}

// NewIssuer はIssuerを生成する。
// 鍵が空の場合は model.ErrSigningKeyMissing を返す。
func NewIssuer(key []byte, algorithm string, opts ...IssuerOption) (*Issuer, error) {
	if len(key) == 0 {
		return nil, model.ErrSigningKeyMissing
	}
	method, err := signingMethod(algorithm)
	if err != nil {
		return nil, err
	}

	i := &Issuer{
		key:    append([]byte(nil), key...),
		method: method,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// Issue はクレームに iat=now, exp=now+ttl を設定して署名したトークンを返す。
// 引数のIssuedAt/ExpiresAtは無視され、実際に埋め込んだ値をissuedとして返す。
func (i *Issuer) Issue(claims model.SessionClaims, ttl time.Duration) (string, model.SessionClaims, error) {
	if ttl <= 0 {
		return "", model.SessionClaims{}, fmt.Errorf("session ttl must be positive: %s", ttl)
	}

	// NumericDateは秒精度のため、あらかじめ切り捨てておく
	issuedAt := i.now().UTC().Truncate(time.Second)
	expiresAt := issuedAt.Add(ttl)

	issued := model.SessionClaims{
		ID:        claims.ID,
		Role:      claims.Role,
		Email:     claims.Email,
		Name:      claims.Name,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	}

	token := jwt.NewWithClaims(i.method, tokenClaims{
		ID:    issued.ID,
		Role:  issued.Role.String(),
		Email: issued.Email,
		Name:  issued.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})

	signed, err := token.SignedString(i.key)
	if err != nil {
		return "", model.SessionClaims{}, fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, issued, nil
}
