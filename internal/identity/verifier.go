// Package identity は外部IdPが発行したIDトークンを検証する。
//
// 検証方式は2種類ある。
//   - OIDCVerifier: go-oidcのディスカバリで公開鍵を取得して検証する（既定）
//   - JWKSVerifier: 指定したJWKS URLの鍵をkeyfuncで保持し、jwtで検証する
//
// どちらも失敗時は model.ErrInvalidIdentityToken をラップしたエラーを返し、リトライは行わない。
package identity

import (
	"context"
	"fmt"

	"github.com/hitoshi/tokenbridge/internal/model"
)

// GoogleSecureTokenIssuerPrefix はFirebase IDトークンのissuerの接頭辞。
// issuerは "https://securetoken.google.com/<project_id>" となる。
const GoogleSecureTokenIssuerPrefix = "https://securetoken.google.com/"

// GoogleSecureTokenJWKSURL はFirebase IDトークンの署名鍵を公開するJWKSエンドポイント。
const GoogleSecureTokenJWKSURL = "https://www.googleapis.com/service_accounts/v1/jwk/securetoken@system.gserviceaccount.com"

// Verifier はIDトークンの検証インターフェース。
type Verifier interface {
	// Verify はIDトークンの署名・issuer・audience・有効期限を検証し、クレームを返す。
	Verify(ctx context.Context, rawIDToken string) (*model.VerifiedIdentity, error)
}

// IssuerForProject はプロジェクトIDからissuer URLを組み立てる。
func IssuerForProject(projectID string) string {
	return GoogleSecureTokenIssuerPrefix + projectID
}

// idTokenClaims はIDトークンから読み取るクレーム。
// Firebaseはsubと同じ値をuser_idにも入れる。
type idTokenClaims struct {
	Subject       string `json:"sub"`
	UserID        string `json:"user_id"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
}

// toIdentity はクレームをVerifiedIdentityに変換する。subjectが空の場合はエラー。
func (c *idTokenClaims) toIdentity() (*model.VerifiedIdentity, error) {
	subject := c.Subject
	if subject == "" {
		subject = c.UserID
	}
	if subject == "" {
		return nil, fmt.Errorf("%w: subject is empty", model.ErrInvalidIdentityToken)
	}

	return &model.VerifiedIdentity{
		Subject:       subject,
		Email:         c.Email,
		EmailVerified: c.EmailVerified,
		Name:          c.Name,
	}, nil
}
