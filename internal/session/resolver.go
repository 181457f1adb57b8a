package session

import (
	"context"
	"fmt"

	"github.com/hitoshi/tokenbridge/internal/model"
	"github.com/hitoshi/tokenbridge/internal/repository"
)

// TokenValidator はセッショントークン検証のインターフェース。
type TokenValidator interface {
	Validate(token string) (*model.SessionClaims, error)
}

// Resolver は外部IDまたはセッショントークンからユーザーを解決する。
type Resolver struct {
	validator TokenValidator
	users     repository.UserRepository
}

// NewResolver はResolverを生成する。
func NewResolver(validator TokenValidator, users repository.UserRepository) *Resolver {
	return &Resolver{validator: validator, users: users}
}

// Resolve はユーザーを解決してUserViewを返す。
// externalIDが指定されていればそれを優先し、sessionTokenは参照しない。
func (r *Resolver) Resolve(ctx context.Context, externalID, sessionToken string) (*model.UserView, error) {
	key := externalID
	if key == "" {
		if sessionToken == "" {
			return nil, model.ErrMissingIdentifier
		}
		claims, err := r.validator.Validate(sessionToken)
		if err != nil {
			return nil, err
		}
		key = claims.ID
	}

	user, err := r.users.FindByExternalID(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrStoreUnavailable, err)
	}
	if user == nil {
		return nil, model.ErrUserNotFound
	}
	return user.View(), nil
}
