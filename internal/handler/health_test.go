package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/campustaxi/internal/repository"
)

type mockPinger struct {
	err error
}

func (m *mockPinger) PingContext(ctx context.Context) error {
	return m.err
}

var _ repository.Pinger = (*mockPinger)(nil)

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name       string
		checks     map[string]repository.Pinger
		wantStatus int
		wantState  map[string]string
	}{
		{
			name:       "all healthy",
			checks:     map[string]repository.Pinger{"postgres": &mockPinger{}, "redis": &mockPinger{}},
			wantStatus: http.StatusOK,
			wantState:  map[string]string{"postgres": "ok", "redis": "ok"},
		},
		{
			name:       "redis down",
			checks:     map[string]repository.Pinger{"postgres": &mockPinger{}, "redis": &mockPinger{err: errors.New("refused")}},
			wantStatus: http.StatusServiceUnavailable,
			wantState:  map[string]string{"postgres": "ok", "redis": "unavailable"},
		},
		{
			name:       "no dependencies",
			checks:     nil,
			wantStatus: http.StatusOK,
			wantState:  map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			NewHealthHandler(tt.checks).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			var body healthResponse
			decodeBody(t, w, &body)
			if len(body.Checks) != len(tt.wantState) {
				t.Fatalf("checks = %v, want %v", body.Checks, tt.wantState)
			}
			for name, state := range tt.wantState {
				if body.Checks[name] != state {
					t.Errorf("checks[%s] = %q, want %q", name, body.Checks[name], state)
				}
			}
		})
	}
}
