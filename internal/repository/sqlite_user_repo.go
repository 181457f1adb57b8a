package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/tokenbridge/internal/model"
	"github.com/uptrace/bun"
)

// userRow はusersテーブルの行。
type userRow struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID         string    `bun:"id,pk"`
	ExternalID string    `bun:"external_id,notnull,unique"`
	Role       string    `bun:"role,notnull"`
	Email      string    `bun:"email,notnull"`
	Name       string    `bun:"name,notnull"`
	CreatedAt  time.Time `bun:"created_at,notnull"`
	UpdatedAt  time.Time `bun:"updated_at,notnull"`
}

func (row *userRow) toModel() (*model.User, error) {
	role, err := model.ParseRole(row.Role)
	if err != nil {
		return nil, err
	}
	return &model.User{
		ID:         row.ID,
		ExternalID: row.ExternalID,
		Role:       role,
		Email:      row.Email,
		Name:       row.Name,
		CreatedAt:  row.CreatedAt,
		UpdatedAt:  row.UpdatedAt,
	}, nil
}

// SQLiteUserRepo はbun経由でSQLiteを使用するユーザーリポジトリ。
type SQLiteUserRepo struct {
	db bun.IDB
}

// NewSQLiteUserRepo はSQLiteUserRepoを生成する。
func NewSQLiteUserRepo(db bun.IDB) *SQLiteUserRepo {
	return &SQLiteUserRepo{db: db}
}

// FindByExternalID は外部IDでユーザーを取得する。見つからない場合はnilを返す。
func (r *SQLiteUserRepo) FindByExternalID(ctx context.Context, externalID string) (*model.User, error) {
	row := new(userRow)
	err := r.db.NewSelect().
		Model(row).
		Where("external_id = ?", externalID).
		Limit(1).
		Scan(ctx)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by external ID: %w", err)
	}

	user, err := row.toModel()
	if err != nil {
		return nil, fmt.Errorf("failed to decode user role: %w", err)
	}
	return user, nil
}

// CreateIfAbsent はユーザーを作成する。既に同じexternal_idが存在する場合はcreated=falseを返す。
func (r *SQLiteUserRepo) CreateIfAbsent(ctx context.Context, user *model.User) (bool, error) {
	row := &userRow{
		ID:         user.ID,
		ExternalID: user.ExternalID,
		Role:       user.Role.String(),
		Email:      user.Email,
		Name:       user.Name,
		CreatedAt:  user.CreatedAt,
		UpdatedAt:  user.UpdatedAt,
	}

	result, err := r.db.NewInsert().
		Model(row).
		On("CONFLICT (external_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to insert user: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected == 1, nil
}

// compile-time interface check
var _ UserRepository = (*SQLiteUserRepo)(nil)
