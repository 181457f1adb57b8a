package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/tokenbridge/internal/config"
	"github.com/hitoshi/tokenbridge/internal/identity"
)

// identityTarget はIDトークンの期待するissuerとaudience。
type identityTarget struct {
	Issuer   string
	Audience string
}

// resolveIdentityTarget は設定と認証情報ファイルからissuerとaudienceを決める。
// 認証情報ファイルは設定されていれば常に読み込んで検証する。
// 明示的なプロジェクトIDはファイルのproject_idより優先される。
func resolveIdentityTarget(cfg *config.Config) (identityTarget, error) {
	var projectID string
	if cfg.IdentityCredentialsFile != "" {
		creds, err := identity.LoadCredentials(cfg.IdentityCredentialsFile)
		if err != nil {
			return identityTarget{}, err
		}
		projectID = creds.ProjectID
	}
	if cfg.IdentityProjectID != "" {
		projectID = cfg.IdentityProjectID
	}

	target := identityTarget{
		Issuer:   cfg.IdentityIssuerURL,
		Audience: cfg.IdentityAudience,
	}
	if target.Issuer == "" && projectID != "" {
		target.Issuer = identity.IssuerForProject(projectID)
	}
	if target.Audience == "" {
		target.Audience = projectID
	}

	if target.Issuer == "" || target.Audience == "" {
		return identityTarget{}, errors.New("identity issuer and audience could not be determined")
	}
	return target, nil
}

// newVerifier はIDENTITY_MODEに応じたVerifierを生成する。
// 返り値のcloseはバックグラウンド処理の停止に使う。
func newVerifier(ctx context.Context, cfg *config.Config) (identity.Verifier, func(), error) {
	target, err := resolveIdentityTarget(cfg)
	if err != nil {
		return nil, nil, err
	}

	httpClient := &http.Client{Timeout: cfg.IdentityHTTPTimeout}

	switch cfg.IdentityMode {
	case config.IdentityModeJWKS:
		v, err := identity.NewJWKSVerifier(cfg.IdentityJWKSURL, target.Issuer, target.Audience, httpClient, slog.Default())
		if err != nil {
			return nil, nil, err
		}
		slog.Info("identity verifier configured",
			slog.String("mode", cfg.IdentityMode),
			slog.String("issuer", target.Issuer),
			slog.String("jwks_url", cfg.IdentityJWKSURL),
		)
		return v, v.Close, nil

	case config.IdentityModeOIDC:
		v, err := identity.NewOIDCVerifier(ctx, target.Issuer, target.Audience, httpClient)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("identity verifier configured",
			slog.String("mode", cfg.IdentityMode),
			slog.String("issuer", target.Issuer),
		)
		return v, func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unsupported identity mode: %q", cfg.IdentityMode)
	}
}
