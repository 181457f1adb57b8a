// Package user はユーザーのプロビジョニング（get-or-create）を提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/tokenbridge/internal/metrics"
	"github.com/hitoshi/tokenbridge/internal/model"
	"github.com/hitoshi/tokenbridge/internal/repository"
	"github.com/hitoshi/tokenbridge/internal/security"
	"golang.org/x/sync/singleflight"
)

// provisionTimeout は共有されたget-or-create処理1回あたりの上限時間。
const provisionTimeout = 10 * time.Second

// Provisioner は外部IDに対応するユーザーを取得し、存在しなければ作成する。
//
// 同一外部IDに対するユーザーは高々1件であることを次の2段で保証する。
//   - プロセス内: singleflightで同じ外部IDの呼び出しを1回にまとめる
//   - プロセス間: ストアのexternal_id一意制約。作成に負けた側は勝者の行を読み直す
type Provisioner struct {
	users     repository.UserRepository
	sanitizer security.NameSanitizer
	metrics   metrics.MetricsCollector
	group     singleflight.Group
	newID     func() string
	now       func() time.Time
}

// NewProvisioner はProvisionerを生成する。
func NewProvisioner(
	users repository.UserRepository,
	sanitizer security.NameSanitizer,
	collector metrics.MetricsCollector,
) *Provisioner {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Provisioner{
		users:     users,
		sanitizer: sanitizer,
		metrics:   collector,
		newID:     func() string { return uuid.New().String() },
		now:       time.Now,
	}
}

// GetOrCreate は外部IDでユーザーを取得し、存在しなければ作成して返す。
// 既存ユーザーのロール・メール・名前は変更しない。
// roleが不正な値の場合はMEMBERで作成する。
// ストアのエラーは model.ErrStoreUnavailable をラップして返す。
func (p *Provisioner) GetOrCreate(ctx context.Context, externalID string, role model.Role, email, name string) (*model.User, error) {
	if externalID == "" {
		return nil, model.ErrMissingIdentifier
	}

	// 共有処理は呼び出し元のキャンセルから切り離して実行する
	ch := p.group.DoChan(externalID, func() (interface{}, error) {
		workCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), provisionTimeout)
		defer cancel()
		return p.getOrCreate(workCtx, externalID, role, email, name)
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("provisioning aborted: %w", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		// 共有された結果を呼び出し元ごとにコピーして返す
		u := *res.Val.(*model.User)
		return &u, nil
	}
}

func (p *Provisioner) getOrCreate(ctx context.Context, externalID string, role model.Role, email, name string) (*model.User, error) {
	existing, err := p.users.FindByExternalID(ctx, externalID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrStoreUnavailable, err)
	}
	if existing != nil {
		slog.Info("existing user logged in",
			slog.String("external_id", externalID),
		)
		return existing, nil
	}

	if !role.Valid() {
		role = model.RoleMember
	}
	if p.sanitizer != nil {
		name = p.sanitizer.Sanitize(name)
	}

	now := p.now().UTC()
	candidate := &model.User{
		ID:         p.newID(),
		ExternalID: externalID,
		Role:       role,
		Email:      email,
		Name:       name,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	created, err := p.users.CreateIfAbsent(ctx, candidate)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrStoreUnavailable, err)
	}
	if created {
		p.metrics.RecordUserProvisioned()
		slog.Info("new user provisioned",
			slog.String("external_id", externalID),
			slog.String("role", role.String()),
		)
		return candidate, nil
	}

	// 別のインスタンスが先に作成した
	winner, err := p.users.FindByExternalID(ctx, externalID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrStoreUnavailable, err)
	}
	if winner == nil {
		return nil, fmt.Errorf("%w: user %s vanished after conflicting insert", model.ErrStoreUnavailable, externalID)
	}
	slog.Info("existing user logged in",
		slog.String("external_id", externalID),
	)
	return winner, nil
}
