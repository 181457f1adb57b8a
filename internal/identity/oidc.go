package identity

import (
	"context"
	"fmt"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/hitoshi/tokenbridge/internal/model"
	"golang.org/x/oauth2"
)

// OIDCVerifier はOpenID Connectのディスカバリで取得した鍵でIDトークンを検証する。
type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewOIDCVerifier はissuerURLのディスカバリ文書を取得してOIDCVerifierを生成する。
// 鍵の取得にはhttpClientを使用する。
// ctxは鍵の再取得にも使われるため、プロセスの寿命と同じものを渡すこと。
func NewOIDCVerifier(ctx context.Context, issuerURL, audience string, httpClient *http.Client) (*OIDCVerifier, error) {
	if httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)
	}

	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover identity provider %s: %w", issuerURL, err)
	}

	return &OIDCVerifier{
		verifier: provider.Verifier(&oidc.Config{
			ClientID:             audience,
			SupportedSigningAlgs: []string{oidc.RS256},
		}),
	}, nil
}

// NewStaticOIDCVerifier は与えられた鍵セットで検証するOIDCVerifierを生成する。
// ディスカバリを行わないため、鍵を固定する構成やテストで使用する。
func NewStaticOIDCVerifier(issuerURL, audience string, keySet oidc.KeySet) *OIDCVerifier {
	return &OIDCVerifier{
		verifier: oidc.NewVerifier(issuerURL, keySet, &oidc.Config{
			ClientID:             audience,
			SupportedSigningAlgs: []string{oidc.RS256},
		}),
	}
}

// Verify はIDトークンを検証してクレームを返す。
func (v *OIDCVerifier) Verify(ctx context.Context, rawIDToken string) (*model.VerifiedIdentity, error) {
	idToken, err := v.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidIdentityToken, err)
	}

	var claims idTokenClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%w: failed to decode claims: %v", model.ErrInvalidIdentityToken, err)
	}

	return claims.toIdentity()
}

// compile-time interface check
var _ Verifier = (*OIDCVerifier)(nil)
