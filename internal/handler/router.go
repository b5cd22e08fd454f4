package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/campustaxi/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
// AuthService・RoomService のうち nil のものはルートを登録しない。いずれかを登録する場合は RateLimiter が必須。
// これにより auth サービスと room サービスを別プロセスとして起動できる。
type RouterDeps struct {
	// ミドルウェア依存
	SessionResolver   middleware.SessionResolver
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRFEnabled       bool
	CSRFConfig        middleware.CSRFConfig
	Logger            *slog.Logger
	HTTPMetrics       middleware.HTTPRecorder
	PanicMetrics      middleware.PanicRecorder

	// 運用エンドポイント
	Health         http.Handler
	MetricsHandler http.Handler

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// ルーム
	RoomService RoomServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RealIP → Recovery → Logging → Metrics → SecurityHeaders → CORS → CSRF(任意)
//
// 状態を変更するルーム操作には Session → RateLimit(General) を追加で適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(chimw.RealIP)
	r.Use(middleware.NewRecoveryMiddleware(deps.PanicMetrics))
	r.Use(middleware.NewLoggingMiddleware(logger))
	if deps.HTTPMetrics != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.HTTPMetrics))
	}
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	if deps.CSRFEnabled {
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))
	}

	if deps.Health != nil {
		r.Method(http.MethodGet, "/health", deps.Health)
	}
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	sessionMW := middleware.NewSessionMiddleware(deps.SessionResolver)

	if deps.AuthService != nil {
		authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)

		r.Route("/auth", func(r chi.Router) {
			r.With(deps.RateLimiter.AuthMiddleware()).Post("/signup", authHandler.Signup)
			r.With(deps.RateLimiter.AuthMiddleware()).Post("/login", authHandler.Login)
			r.Post("/logout", authHandler.Logout)
			r.With(sessionMW).Get("/me", authHandler.Me)
			r.Method(http.MethodGet, "/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))
		})
	}

	if deps.RoomService != nil {
		roomHandler := NewRoomHandler(deps.RoomService)

		r.Route("/rooms", func(r chi.Router) {
			// --- 認証不要のルート ---
			r.Get("/", roomHandler.List)
			r.Get("/{id}", roomHandler.Get)

			// --- 認証が必要なルート ---
			// ミドルウェアスタック: Session → RateLimit(General)
			r.Group(func(r chi.Router) {
				r.Use(sessionMW)
				r.Use(deps.RateLimiter.GeneralMiddleware())

				r.With(deps.RateLimiter.RoomCreateMiddleware()).Post("/", roomHandler.Create)
				r.Post("/{id}/join", roomHandler.Join)
				r.Post("/{id}/leave", roomHandler.Leave)
			})
		})
	}

	return r
}
