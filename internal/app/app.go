// Package app はサブコマンドごとの依存関係のワイヤリングと起動処理を提供する。
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/campustaxi/internal/auth"
	"github.com/hitoshi/campustaxi/internal/config"
	"github.com/hitoshi/campustaxi/internal/database"
	"github.com/hitoshi/campustaxi/internal/handler"
	"github.com/hitoshi/campustaxi/internal/logger"
	"github.com/hitoshi/campustaxi/internal/metrics"
	"github.com/hitoshi/campustaxi/internal/middleware"
	"github.com/hitoshi/campustaxi/internal/repository"
	"github.com/hitoshi/campustaxi/internal/room"
	"github.com/hitoshi/campustaxi/internal/security"
	"github.com/hitoshi/campustaxi/internal/session"
	"github.com/hitoshi/campustaxi/internal/worker/cleanup"
)

const (
	// connectTimeout は起動時のPostgreSQL・Redis疎通確認のタイムアウト。
	connectTimeout = 5 * time.Second
	// shutdownTimeout はグレースフルシャットダウンの待機上限。
	shutdownTimeout = 30 * time.Second
)

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップし、環境変数からConfigを読み込む。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer, cmd Command) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, os.Getenv("LOG_LEVEL"), string(cmd))

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

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
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w, cmd)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("session_store", cfg.SessionStore),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServer(ctx, cfg, cmd)
	}
}

// stores はHTTPサーバーが使用する永続化層の実装をまとめたもの。
type stores struct {
	users    repository.UserRepository
	rooms    repository.RoomRepository
	sessions repository.SessionStore
	checks   map[string]repository.Pinger
}

// runServer はAPIサーバーモード（serve / auth / room）で起動する。
// DB接続とセッションストアを開き、依存関係をワイヤリングしてHTTPサーバーを起動する。
// ctxがキャンセルされるとグレースフルシャットダウンを行う。
func runServer(ctx context.Context, cfg *config.Config, cmd Command) error {
	// 1. DB接続
	db, err := database.OpenAndPing(ctx, cfg.DatabaseURL, connectTimeout)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	// 2. セッションストア
	sessionStore, checks, closeStore, err := openSessionStore(ctx, cfg, db)
	if err != nil {
		return err
	}
	defer closeStore()

	// 3. メトリクス
	reg := newRegistry()
	collector := metrics.NewCollector(reg)

	// 4. レート制限（req/min -> req/sec はミドルウェア側で変換する）
	rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfigPerMinute(
		cfg.RateLimitGeneral, cfg.RateLimitRoomCreate, cfg.RateLimitAuth,
	))
	defer rateLimiter.Stop()

	// 5. ルーターの構築
	deps := newRouterDeps(cmd, cfg, stores{
		users:    repository.NewPostgresUserRepo(db),
		rooms:    repository.NewPostgresRoomRepo(db),
		sessions: sessionStore,
		checks:   checks,
	}, collector, reg, rateLimiter)

	// 6. HTTPサーバーの起動
	return serveHTTP(ctx, ":"+cfg.ServerPort, handler.NewRouter(deps))
}

// newRouterDeps はコマンドに応じたサービスを組み立ててRouterDepsを返す。
// auth サービスは Issuer を、room サービスは Validator のみを持ち、両者はセッションストアだけを共有する。
func newRouterDeps(
	cmd Command,
	cfg *config.Config,
	st stores,
	collector *metrics.Collector,
	gatherer prometheus.Gatherer,
	rateLimiter *middleware.RateLimiter,
) *handler.RouterDeps {
	deps := &handler.RouterDeps{
		SessionResolver:   session.NewValidator(st.sessions, collector),
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		CSRFEnabled:       cfg.CSRFEnabled,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		Logger:         slog.Default(),
		HTTPMetrics:    collector,
		PanicMetrics:   collector,
		Health:         handler.NewHealthHandler(st.checks),
		MetricsHandler: metrics.Handler(gatherer),
	}

	sanitizer := security.NewTextSanitizer()

	if cmd.servesAuth() {
		issuer := session.NewIssuer(st.sessions, cfg.SessionTTL(), collector)
		deps.AuthService = auth.NewService(
			st.users, auth.NewBcryptHasher(cfg.BcryptCost), issuer, sanitizer, collector,
		)
		deps.AuthConfig = handler.AuthHandlerConfig{
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: issuer.TTL(),
		}
	}

	if cmd.servesRooms() {
		deps.RoomService = room.NewEngine(st.rooms, sanitizer, cfg.JoinFullPolicy, collector)
	}

	return deps
}

// openSessionStore は設定に応じたセッションストアを開く。
// 返されるchecksはヘルスチェック対象、closeは終了時に呼ぶ後始末関数。
func openSessionStore(ctx context.Context, cfg *config.Config, db *sql.DB) (
	repository.SessionStore, map[string]repository.Pinger, func(), error,
) {
	checks := map[string]repository.Pinger{"postgres": db}

	if cfg.SessionStore == config.SessionStorePostgres {
		slog.Info("using postgres session store")
		return repository.NewPostgresSessionRepo(db), checks, func() {}, nil
	}

	client, err := repository.ConnectRedis(cfg.RedisURL)
	if err != nil {
		return nil, nil, nil, err
	}
	store := repository.NewRedisSessionStore(client)

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := store.PingContext(pingCtx); err != nil {
		client.Close()
		return nil, nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	slog.Info("redis connection established")
	checks["redis"] = store

	return store, checks, func() { client.Close() }, nil
}

// newRegistry はアプリケーション用のPrometheusレジストリを生成する。
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// serveHTTP はHTTPサーバーを起動し、ctxがキャンセルされるまでブロックする。
// キャンセル後はshutdownTimeout以内にグレースフルシャットダウンする。
func serveHTTP(ctx context.Context, addr string, h http.Handler) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server starting", slog.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("HTTP server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// SESSION_STORE=postgres の場合は期限切れセッションの定期削除を行う。
// Redis はキーTTLで失効するため削除ジョブは起動しない。
// いずれの場合も /health と /metrics を提供し、ctxがキャンセルされるまでブロックする。
func runWorker(ctx context.Context, cfg *config.Config) error {
	// 1. DB接続
	db, err := database.OpenAndPing(ctx, cfg.DatabaseURL, connectTimeout)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	// 2. メトリクス
	reg := newRegistry()
	collector := metrics.NewCollector(reg)

	// 3. セッションクリーンアップジョブの起動
	if cfg.SessionStore == config.SessionStorePostgres {
		job := cleanup.NewSessionCleanupJob(repository.NewPostgresSessionRepo(db), slog.Default(), collector)
		go job.Start(ctx, cfg.SessionCleanupInterval)
	} else {
		slog.Info("session cleanup disabled: redis sessions expire by key TTL")
	}

	// 4. 運用エンドポイントのみのルーター
	router := handler.NewRouter(&handler.RouterDeps{
		Logger:         slog.Default(),
		HTTPMetrics:    collector,
		PanicMetrics:   collector,
		Health:         handler.NewHealthHandler(map[string]repository.Pinger{"postgres": db}),
		MetricsHandler: metrics.Handler(reg),
	})

	err = serveHTTP(ctx, ":"+cfg.ServerPort, router)
	slog.Info("worker stopped gracefully")
	return err
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	status, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed",
		slog.Uint64("version", uint64(status.Version)),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	healthURL := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(healthURL)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
