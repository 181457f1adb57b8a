// Package auth は外部IdPのIDトークンをセッショントークンに交換する認証フローを提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/hitoshi/tokenbridge/internal/identity"
	"github.com/hitoshi/tokenbridge/internal/metrics"
	"github.com/hitoshi/tokenbridge/internal/model"
)

// UserProvisioner はユーザーのget-or-createインターフェース。
type UserProvisioner interface {
	GetOrCreate(ctx context.Context, externalID string, role model.Role, email, name string) (*model.User, error)
}

// SessionIssuer はセッショントークン発行のインターフェース。
type SessionIssuer interface {
	Issue(claims model.SessionClaims, ttl time.Duration) (string, model.SessionClaims, error)
}

// SessionValidator はセッショントークン検証のインターフェース。
type SessionValidator interface {
	Validate(token string) (*model.SessionClaims, error)
}

// UserResolver はセッションからユーザーを解決するインターフェース。
type UserResolver interface {
	Resolve(ctx context.Context, externalID, sessionToken string) (*model.UserView, error)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionTTL time.Duration
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	verifier    identity.Verifier
	provisioner UserProvisioner
	issuer      SessionIssuer
	validator   SessionValidator
	resolver    UserResolver
	metrics     metrics.MetricsCollector
	config      ServiceConfig
}

// NewService はServiceを生成する。collectorがnilの場合はメトリクスを記録しない。
func NewService(
	verifier identity.Verifier,
	provisioner UserProvisioner,
	issuer SessionIssuer,
	validator SessionValidator,
	resolver UserResolver,
	collector metrics.MetricsCollector,
	config ServiceConfig,
) *Service {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Service{
		verifier:    verifier,
		provisioner: provisioner,
		issuer:      issuer,
		validator:   validator,
		resolver:    resolver,
		metrics:     collector,
		config:      config,
	}
}

// Exchange はIDトークンを検証し、ユーザーを取得または作成してセッショントークンを発行する。
//
// メール未確認のIDトークンは model.ErrEmailNotVerified で拒否し、ユーザーは作成しない。
// リクエストのEmail/Nameは検証済みクレームが空の場合にのみ使用する。
func (s *Service) Exchange(ctx context.Context, req model.ExchangeRequest) (*model.IssuedToken, error) {
	// 1. IDトークンを検証
	ident, err := s.verifier.Verify(ctx, req.IDToken)
	if err != nil {
		s.metrics.RecordTokenExchange(metrics.ExchangeResultInvalidIDToken)
		if !errors.Is(err, model.ErrInvalidIdentityToken) {
			err = fmt.Errorf("%w: %v", model.ErrInvalidIdentityToken, err)
		}
		return nil, err
	}

	// 2. メール確認済みであること
	if !ident.EmailVerified {
		s.metrics.RecordTokenExchange(metrics.ExchangeResultEmailNotVerified)
		slog.Info("token exchange rejected: email not verified",
			slog.String("external_id", ident.Subject),
		)
		return nil, model.ErrEmailNotVerified
	}

	// 3. ユーザーを取得または作成
	email, name := mergeProfile(ident, req)
	u, err := s.provisioner.GetOrCreate(ctx, ident.Subject, model.RoleMember, email, name)
	if err != nil {
		s.metrics.RecordTokenExchange(metrics.ExchangeResultError)
		return nil, fmt.Errorf("failed to provision user: %w", err)
	}

	// 4. 保存済みのロール・メール・名前でセッショントークンを発行
	token, issued, err := s.issuer.Issue(model.SessionClaims{
		ID:    u.ExternalID,
		Role:  u.Role,
		Email: u.Email,
		Name:  u.Name,
	}, s.config.SessionTTL)
	if err != nil {
		s.metrics.RecordTokenExchange(metrics.ExchangeResultError)
		return nil, fmt.Errorf("failed to issue session token: %w", err)
	}

	s.metrics.RecordTokenExchange(metrics.ExchangeResultOK)
	return &model.IssuedToken{
		AccessToken: token,
		TokenType:   model.TokenTypeBearer,
		ExpiresAt:   issued.ExpiresAt,
		Claims:      issued,
	}, nil
}

// Validate はセッショントークンを検証する。
func (s *Service) Validate(token string) (*model.SessionClaims, error) {
	claims, err := s.validator.Validate(token)
	switch {
	case err == nil:
		s.metrics.RecordSessionValidation(metrics.ValidationResultValid)
	case errors.Is(err, model.ErrExpiredSessionToken):
		s.metrics.RecordSessionValidation(metrics.ValidationResultExpired)
	default:
		s.metrics.RecordSessionValidation(metrics.ValidationResultInvalid)
	}
	return claims, err
}

// ResolveUser は外部IDまたはセッショントークンからユーザーを解決する。
func (s *Service) ResolveUser(ctx context.Context, externalID, sessionToken string) (*model.UserView, error) {
	return s.resolver.Resolve(ctx, externalID, sessionToken)
}

// mergeProfile は検証済みクレームを優先し、空の項目だけリクエストの値で補う。
// メールアドレスとして不正なリクエストのemailは無視する。
func mergeProfile(ident *model.VerifiedIdentity, req model.ExchangeRequest) (email, name string) {
	email = ident.Email
	if email == "" && req.Email != "" {
		if err := validation.Validate(req.Email, is.Email); err == nil {
			email = req.Email
		}
	}

	name = ident.Name
	if name == "" {
		name = req.Name
	}
	return email, name
}
