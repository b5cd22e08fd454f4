package app

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/campustaxi/internal/config"
	"github.com/hitoshi/campustaxi/internal/metrics"
	"github.com/hitoshi/campustaxi/internal/middleware"
	"github.com/hitoshi/campustaxi/internal/repository"
	"github.com/hitoshi/campustaxi/internal/room"
)

// restoreDefaultLogger はテスト終了時にグローバルロガーを元に戻す。
func restoreDefaultLogger(t *testing.T) {
	t.Helper()
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
}

func TestInit_WithValidConfig_Succeeds(t *testing.T) {
	restoreDefaultLogger(t)
	setTestEnv(t)

	var buf bytes.Buffer
	cfg, err := Init(&buf, CommandRoom)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg == nil {
		t.Fatal("expected non-nil config")
	}
	if cfg.DatabaseURL != testDatabaseURL {
		t.Errorf("DatabaseURL = %q, want %q", cfg.DatabaseURL, testDatabaseURL)
	}

	// slogのグローバルロガーがJSON出力でサービス名付きに設定されていること
	slog.Default().Info("init test")
	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON log output, got error: %v\nraw: %s", err, buf.String())
	}
	if entry["msg"] != "init test" {
		t.Errorf("msg = %q, want %q", entry["msg"], "init test")
	}
	if entry["service"] != "room" {
		t.Errorf("service = %q, want %q", entry["service"], "room")
	}
}

func TestInit_WithMissingConfig_ReturnsError(t *testing.T) {
	restoreDefaultLogger(t)
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "")

	var buf bytes.Buffer
	cfg, err := Init(&buf, CommandServe)
	if err == nil {
		t.Fatal("expected error for missing required env vars, got nil")
	}
	if cfg != nil {
		t.Error("expected nil config on error")
	}
}

func testConfig() *config.Config {
	return &config.Config{
		DatabaseURL:       testDatabaseURL,
		SessionStore:      config.SessionStoreRedis,
		SessionMaxAge:     3600,
		BcryptCost:        4,
		JoinFullPolicy:    room.JoinFullReject,
		RateLimitGeneral:  120,
		RateLimitAuth:     20,
		ServerPort:        "8080",
		CORSAllowedOrigin: "http://localhost:5173",
	}
}

func TestNewRouterDeps_MountsSurfacesPerCommand(t *testing.T) {
	restoreDefaultLogger(t)

	tests := []struct {
		cmd          Command
		wantAuth     bool
		wantRooms    bool
		roomsStatus  int
		signupStatus int
	}{
		// 未登録ルートは404、登録済みでも不正なボディは400になる
		{CommandServe, true, true, http.StatusOK, http.StatusBadRequest},
		{CommandAuth, true, false, http.StatusNotFound, http.StatusBadRequest},
		{CommandRoom, false, true, http.StatusOK, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(string(tt.cmd), func(t *testing.T) {
			reg := prometheus.NewRegistry()
			rl := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
			defer rl.Stop()

			deps := newRouterDeps(tt.cmd, testConfig(), stores{
				rooms:  &emptyRoomRepo{},
				checks: map[string]repository.Pinger{},
			}, metrics.NewCollector(reg), reg, rl)

			if (deps.AuthService != nil) != tt.wantAuth {
				t.Errorf("AuthService mounted = %v, want %v", deps.AuthService != nil, tt.wantAuth)
			}
			if (deps.RoomService != nil) != tt.wantRooms {
				t.Errorf("RoomService mounted = %v, want %v", deps.RoomService != nil, tt.wantRooms)
			}
			if tt.wantAuth && deps.AuthConfig.SessionMaxAge.Seconds() != 3600 {
				t.Errorf("SessionMaxAge = %v, want 1h", deps.AuthConfig.SessionMaxAge)
			}

			router := handlerFor(deps)

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/rooms", nil))
			if w.Code != tt.roomsStatus {
				t.Errorf("GET /rooms status = %d, want %d", w.Code, tt.roomsStatus)
			}

			w = httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/auth/signup", bytes.NewBufferString("{")))
			if w.Code != tt.signupStatus {
				t.Errorf("POST /auth/signup status = %d, want %d", w.Code, tt.signupStatus)
			}

			w = httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
			if w.Code != http.StatusOK {
				t.Errorf("GET /metrics status = %d, want 200", w.Code)
			}
		})
	}
}

func TestMaskDatabaseURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"postgres://user:secret@db:5432/campustaxi?sslmode=disable", "postgres://user:xxxxx@db:5432/campustaxi?sslmode=disable"},
		{"postgres://db:5432/campustaxi", "postgres://db:5432/campustaxi"},
		{"not a url", "***"},
	}

	for _, tt := range tests {
		if got := maskDatabaseURL(tt.in); got != tt.want {
			t.Errorf("maskDatabaseURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
