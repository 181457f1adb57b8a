package model

import "time"

// TokenTypeBearer はPOST /tokenで返すtoken_type。
const TokenTypeBearer = "bearer"

// VerifiedIdentity は外部IdPのIDトークンから検証済みで取り出したクレーム。
type VerifiedIdentity struct {
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
}

// SessionClaims は発行したセッショントークンに埋め込むクレーム。
// ExpiresAt = IssuedAt + TTL。発行後に変更されることはない。
type SessionClaims struct {
	ID        string
	Role      Role
	Email     string
	Name      string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// ExchangeRequest はPOST /tokenの入力。
// EmailとNameは呼び出し側が任意で付与するもので、検証済みクレームより優先されない。
type ExchangeRequest struct {
	IDToken string
	Email   string
	Name    string
}

// IssuedToken はトークン交換の結果。
type IssuedToken struct {
	AccessToken string
	TokenType   string
	ExpiresAt   time.Time
	Claims      SessionClaims
}
