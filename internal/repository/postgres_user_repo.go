package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/tokenbridge/internal/model"
	"github.com/jackc/pgerrcode"
	"github.com/lib/pq"
)

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// FindByExternalID は外部IDでユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByExternalID(ctx context.Context, externalID string) (*model.User, error) {
	user := &model.User{}
	var role string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, external_id, role, email, name, created_at, updated_at
		 FROM users
		 WHERE external_id = $1`,
		externalID,
	).Scan(&user.ID, &user.ExternalID, &role, &user.Email, &user.Name, &user.CreatedAt, &user.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by external ID: %w", err)
	}

	user.Role, err = model.ParseRole(role)
	if err != nil {
		return nil, fmt.Errorf("failed to decode user role: %w", err)
	}

	return user, nil
}

// CreateIfAbsent はユーザーを作成する。
// ON CONFLICT (external_id) DO NOTHING により、同時作成で負けた側は created=false になる。
func (r *PostgresUserRepo) CreateIfAbsent(ctx context.Context, user *model.User) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, external_id, role, email, name, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (external_id) DO NOTHING`,
		user.ID, user.ExternalID, user.Role.String(), user.Email, user.Name, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to insert user: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected == 1, nil
}

// isUniqueViolation は一意制約違反のエラーかどうかを判定する。
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == pgerrcode.UniqueViolation
	}
	return false
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
