package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/tokenbridge/internal/config"
	"github.com/hitoshi/tokenbridge/internal/database"
	"github.com/hitoshi/tokenbridge/internal/repository"
)

// store は構成済みのユーザーストア。
type store struct {
	users  repository.UserRepository
	health repository.HealthChecker
	close  func() error
}

// openStore はSTORE_DRIVERに応じてユーザーストアを開き、スキーマを準備する。
func openStore(ctx context.Context, cfg *config.Config) (*store, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		db, err := database.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		slog.Info("database connection established",
			slog.String("driver", cfg.StoreDriver),
			slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
		)
		return &store{
			users:  repository.NewPostgresUserRepo(db),
			health: db,
			close:  db.Close,
		}, nil

	case config.StoreDriverSQLite:
		db, err := database.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite: %w", err)
		}
		if err := database.EnsureSQLiteSchema(ctx, db); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to prepare sqlite schema: %w", err)
		}
		slog.Info("database connection established",
			slog.String("driver", cfg.StoreDriver),
			slog.String("path", cfg.SQLitePath),
		)
		return &store{
			users:  repository.NewSQLiteUserRepo(db),
			health: db,
			close:  db.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unsupported store driver: %q", cfg.StoreDriver)
	}
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
