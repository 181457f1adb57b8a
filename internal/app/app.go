// Package app はアプリケーションの初期化と起動を行う。
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hitoshi/tokenbridge/internal/auth"
	"github.com/hitoshi/tokenbridge/internal/config"
	"github.com/hitoshi/tokenbridge/internal/database"
	"github.com/hitoshi/tokenbridge/internal/handler"
	"github.com/hitoshi/tokenbridge/internal/logger"
	"github.com/hitoshi/tokenbridge/internal/metrics"
	"github.com/hitoshi/tokenbridge/internal/security"
	"github.com/hitoshi/tokenbridge/internal/session"
	"github.com/hitoshi/tokenbridge/internal/user"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const shutdownTimeout = 30 * time.Second

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、LOG_LEVELに従ってJSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 設定読み込み前にログを使えるようにする
	logger.SetupDefault(w, slog.LevelInfo)

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))
	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8000"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("store_driver", cfg.StoreDriver),
		slog.String("identity_mode", cfg.IdentityMode),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(context.Background(), cfg)
	default:
		return runServe(cfg)
	}
}

// application は配線済みのHTTPハンドラーと、終了時に解放するリソースを保持する。
type application struct {
	handler http.Handler
	closers []func()
}

// Close は確保したリソースを逆順に解放する。
func (a *application) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// newApplication はストア・IDトークン検証・セッショントークン処理を配線してルーターを構築する。
// ctxはIDトークン検証の鍵取得に使われるため、アプリケーションの生存期間と同じ長さであること。
func newApplication(ctx context.Context, cfg *config.Config) (*application, error) {
	app := &application{}

	// 1. ストア
	st, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, func() {
		if err := st.close(); err != nil {
			slog.Warn("failed to close store", slog.String("error", err.Error()))
		}
	})

	// 2. IDトークン検証
	verifier, closeVerifier, err := newVerifier(ctx, cfg)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to configure identity verifier: %w", err)
	}
	app.closers = append(app.closers, closeVerifier)

	// 3. セッショントークン
	key := []byte(cfg.SessionSecret)
	issuer, err := session.NewIssuer(key, cfg.SessionAlgorithm)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to configure session issuer: %w", err)
	}
	validator, err := session.NewValidator(key, cfg.SessionAlgorithm)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to configure session validator: %w", err)
	}

	// 4. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	// 5. ドメインサービス
	provisioner := user.NewProvisioner(st.users, security.NewNameSanitizer(), collector)
	authService := auth.NewService(
		verifier,
		provisioner,
		issuer,
		validator,
		session.NewResolver(validator, st.users),
		collector,
		auth.ServiceConfig{SessionTTL: cfg.SessionTTL()},
	)

	// 6. ルーター
	app.handler = handler.NewRouter(&handler.RouterDeps{
		Logger:            slog.Default(),
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		Metrics:           collector,
		MetricsGatherer:   registry,
		AuthService:       authService,
		HealthChecker:     st.health,
	})

	return app, nil
}

// runServe はAPIサーバーモードで起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	app, err := newApplication(context.Background(), cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      app.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	stop, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
	case <-stop.Done():
	}
	slog.Info("shutting down API server...")

	ctx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runMigrate はユーザーストアのスキーマを作成する。
// PostgreSQLでは未適用のマイグレーションを順番に適用し、SQLiteではテーブルを作成する。
func runMigrate(ctx context.Context, cfg *config.Config) error {
	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		slog.Info("running database migrations",
			slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
		)
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}

	case config.StoreDriverSQLite:
		slog.Info("creating sqlite schema", slog.String("path", cfg.SQLitePath))
		db, err := database.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		defer db.Close()
		if err := database.EnsureSQLiteSchema(ctx, db); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}

	default:
		return fmt.Errorf("unsupported store driver: %q", cfg.StoreDriver)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}
