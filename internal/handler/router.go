package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/tokenbridge/internal/metrics"
	"github.com/hitoshi/tokenbridge/internal/middleware"
	"github.com/hitoshi/tokenbridge/internal/repository"
	"github.com/prometheus/client_golang/prometheus"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	CORSAllowedOrigin string
	Metrics           metrics.MetricsCollector

	// /metrics で公開するレジストリ。nilの場合はルートを登録しない
	MetricsGatherer prometheus.Gatherer

	AuthService   AuthServiceInterface
	HealthChecker repository.HealthChecker
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → Metrics → SecurityHeaders → CORS
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	collector := deps.Metrics
	if collector == nil {
		collector = metrics.Nop{}
	}

	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewMetricsMiddleware(collector))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	tokenHandler := NewTokenHandler(deps.AuthService)
	healthHandler := NewHealthHandler(deps.HealthChecker)

	r.Post("/token", tokenHandler.Token)
	r.Get("/validate", tokenHandler.Validate)
	r.Get("/user", tokenHandler.User)

	r.Get("/health", healthHandler.Health)
	if deps.MetricsGatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.MetricsGatherer))
	}

	return r
}
