// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/tokenbridge/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
// external_idにはストア側で一意制約がかかっていることを前提とする。
type UserRepository interface {
	// FindByExternalID は外部IDでユーザーを取得する。見つからない場合はnilを返す。
	FindByExternalID(ctx context.Context, externalID string) (*model.User, error)

	// CreateIfAbsent はユーザーを作成する。
	// 同じexternal_idのユーザーが既に存在する場合は何もせず、createdにfalseを返す。
	CreateIfAbsent(ctx context.Context, user *model.User) (created bool, err error)
}

// HealthChecker はストアの疎通確認インターフェース。
// *sql.DB と *bun.DB がそのまま満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}
