// Package session はローカルで署名するセッショントークンの発行・検証と、
// セッションからユーザーを解決する機能を提供する。
package session

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// 受け付ける署名アルゴリズム。いずれもHMAC。
const (
	AlgorithmHS256 = "HS256"
	AlgorithmHS384 = "HS384"
	AlgorithmHS512 = "HS512"
)

// SupportedAlgorithms は設定で指定できるアルゴリズムの一覧。
var SupportedAlgorithms = []string{AlgorithmHS256, AlgorithmHS384, AlgorithmHS512}

// tokenClaims はセッショントークンのJWTペイロード。
// id, role, email, name に加えて登録済みクレームの iat, exp を持つ。
type tokenClaims struct {
	ID    string `json:"id"`
	Role  string `json:"role"`
	Email string `json:"email"`
	Name  string `json:"name"`
	jwt.RegisteredClaims
}

// signingMethod はアルゴリズム名からHMACの署名方式を返す。
func signingMethod(algorithm string) (*jwt.SigningMethodHMAC, error) {
	switch algorithm {
	case AlgorithmHS256:
		return jwt.SigningMethodHS256, nil
	case AlgorithmHS384:
		return jwt.SigningMethodHS384, nil
	case AlgorithmHS512:
		return jwt.SigningMethodHS512, nil
	default:
		return nil, fmt.Errorf("unsupported session algorithm: %q", algorithm)
	}
}

// Clock は現在時刻を返す関数。テストで差し替える。
type Clock func() time.Time
