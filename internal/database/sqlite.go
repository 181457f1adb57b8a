package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// sqliteCreateUsers はSQLite用のusersテーブル定義。
// external_idの一意制約がget-or-createの同時実行を直列化する。
const sqliteCreateUsers = `CREATE TABLE IF NOT EXISTS users (
    id          TEXT NOT NULL PRIMARY KEY,
    external_id TEXT NOT NULL,
    role        TEXT NOT NULL DEFAULT 'MEMBER' CHECK (role IN ('ADMIN', 'MEMBER')),
    email       TEXT NOT NULL,
    name        TEXT NOT NULL DEFAULT '',
    created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    CONSTRAINT users_external_id_key UNIQUE (external_id)
);`

// OpenSQLite はSQLiteデータベースをbun経由で開く。
// dsnには "file:tokenbridge.db?cache=shared" や "file::memory:?cache=shared" を指定する。
// SQLiteは単一ライターのため接続数を1に制限する。
func OpenSQLite(ctx context.Context, dsn string) (*bun.DB, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to sqlite database: %w", err)
	}

	return db, nil
}

// EnsureSQLiteSchema はusersテーブルが存在しなければ作成する。
func EnsureSQLiteSchema(ctx context.Context, db bun.IDB) error {
	if _, err := db.ExecContext(ctx, sqliteCreateUsers); err != nil {
		return fmt.Errorf("failed to create users table: %w", err)
	}
	return nil
}
