package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hitoshi/tokenbridge/internal/model"
)

// Validator はセッショントークンの署名と有効期限を検証する。
type Validator struct {
	key    []byte
	method *jwt.SigningMethodHMAC
	now    Clock
}

// ValidatorOption はValidatorの設定オプション。
type ValidatorOption func(*Validator)

// WithValidatorClock は有効期限の判定に使う時計を差し替える。
func WithValidatorClock(now Clock) ValidatorOption {
	return func(v *Validator) {
		v.now = now
	}
}

// NewValidator はValidatorを生成する。鍵とアルゴリズムはIssuerと同じものを渡す。
func NewValidator(key []byte, algorithm string, opts ...ValidatorOption) (*Validator, error) {
	if len(key) == 0 {
		return nil, model.ErrSigningKeyMissing
	}
	method, err := signingMethod(algorithm)
	if err != nil {
		return nil, err
	}

	v := &Validator{
		key:    append([]byte(nil), key...),
		method: method,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Validate はトークンを検証してクレームを返す。
//
// 署名が正しく exp <= now のトークンは model.ErrExpiredSessionToken、
// それ以外の失敗（署名不一致、形式不正、アルゴリズム不一致、必須クレーム欠落）は
// model.ErrInvalidSessionToken を返す。署名が不正なトークンが期限切れと判定されることはない。
func (v *Validator) Validate(token string) (*model.SessionClaims, error) {
	claims := &tokenClaims{}
	_, err := jwt.ParseWithClaims(token, claims, v.keyFunc,
		jwt.WithValidMethods([]string{v.method.Alg()}),
		jwt.WithStrictDecoding(),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(0),
		jwt.WithTimeFunc(v.now),
	)

	// jwtは署名検証の後にクレームを検証するため、ErrTokenExpiredは署名が正しい場合にのみ返る
	expired := err != nil && errors.Is(err, jwt.ErrTokenExpired)
	if err != nil && !expired {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidSessionToken, err)
	}

	if claims.ID == "" {
		return nil, fmt.Errorf("%w: id claim is missing", model.ErrInvalidSessionToken)
	}
	role, roleErr := model.ParseRole(claims.Role)
	if roleErr != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidSessionToken, roleErr)
	}

	if expired {
		return nil, fmt.Errorf("%w: %v", model.ErrExpiredSessionToken, err)
	}

	result := &model.SessionClaims{
		ID:    claims.ID,
		Role:  role,
		Email: claims.Email,
		Name:  claims.Name,
	}
	if claims.IssuedAt != nil {
		result.IssuedAt = claims.IssuedAt.Time.UTC()
	}
	result.ExpiresAt = claims.ExpiresAt.Time.UTC()
	return result, nil
}

func (v *Validator) keyFunc(_ *jwt.Token) (interface{}, error) {
	return v.key, nil
}
