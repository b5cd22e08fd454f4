package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/campustaxi/internal/auth"
	"github.com/hitoshi/campustaxi/internal/middleware"
	"github.com/hitoshi/campustaxi/internal/model"
)

// --- モック定義 ---

type mockAuthService struct {
	signupFn      func(ctx context.Context, in auth.SignupInput) (*model.User, *model.Session, error)
	loginFn       func(ctx context.Context, email, password string) (*model.User, *model.Session, error)
	logoutFn      func(ctx context.Context, token string) error
	currentUserFn func(ctx context.Context, userID string) (*model.User, error)
}

func (m *mockAuthService) Signup(ctx context.Context, in auth.SignupInput) (*model.User, *model.Session, error) {
	return m.signupFn(ctx, in)
}

func (m *mockAuthService) Login(ctx context.Context, email, password string) (*model.User, *model.Session, error) {
	return m.loginFn(ctx, email, password)
}

func (m *mockAuthService) Logout(ctx context.Context, token string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, token)
	}
	return nil
}

func (m *mockAuthService) CurrentUser(ctx context.Context, userID string) (*model.User, error) {
	return m.currentUserFn(ctx, userID)
}

type mockRoomService struct {
	createFn   func(ctx context.Context, caller model.SessionIdentity, in model.CreateRoomInput) (*model.Room, error)
	joinFn     func(ctx context.Context, callerID, roomID string) (*model.Room, error)
	leaveFn    func(ctx context.Context, callerID, roomID string) (*model.Room, error)
	findFn     func(ctx context.Context, filter model.RoomFilter) ([]*model.Room, error)
	findByIDFn func(ctx context.Context, roomID string) (*model.Room, error)
}

func (m *mockRoomService) Create(ctx context.Context, caller model.SessionIdentity, in model.CreateRoomInput) (*model.Room, error) {
	return m.createFn(ctx, caller, in)
}

func (m *mockRoomService) Join(ctx context.Context, callerID, roomID string) (*model.Room, error) {
	return m.joinFn(ctx, callerID, roomID)
}

func (m *mockRoomService) Leave(ctx context.Context, callerID, roomID string) (*model.Room, error) {
	return m.leaveFn(ctx, callerID, roomID)
}

func (m *mockRoomService) Find(ctx context.Context, filter model.RoomFilter) ([]*model.Room, error) {
	return m.findFn(ctx, filter)
}

func (m *mockRoomService) FindByID(ctx context.Context, roomID string) (*model.Room, error) {
	return m.findByIDFn(ctx, roomID)
}

type mockResolver struct {
	resolveFn func(ctx context.Context, token string) (*model.SessionIdentity, error)
}

func (m *mockResolver) Resolve(ctx context.Context, token string) (*model.SessionIdentity, error) {
	return m.resolveFn(ctx, token)
}

// compile-time interface checks
var (
	_ AuthServiceInterface       = (*mockAuthService)(nil)
	_ AuthServiceInterface       = (*auth.Service)(nil)
	_ RoomServiceInterface       = (*mockRoomService)(nil)
	_ middleware.SessionResolver = (*mockResolver)(nil)
)

// --- ヘルパー ---

func jsonBody(t *testing.T, v any) *bytes.Reader {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal body: %v", err)
	}
	return bytes.NewReader(b)
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(w.Result().Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

func errorCodeOf(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body middleware.ErrorResponseBody
	decodeBody(t, w, &body)
	return body.Code
}

func withIdentity(r *http.Request, userID, name string) *http.Request {
	ctx := middleware.ContextWithIdentity(r.Context(), model.SessionIdentity{UserID: userID, Name: name})
	return r.WithContext(ctx)
}

func sampleRoom() *model.Room {
	ts := time.Date(2025, 11, 1, 9, 0, 0, 0, time.UTC)
	return &model.Room{
		ID:            "5f0c7a3e-8f2b-4c1d-9a8e-1b2c3d4e5f60",
		Title:         "Airport run",
		Departure:     "Campus Gate",
		Destination:   "Airport",
		DepartureTime: time.Date(2025, 11, 15, 10, 0, 0, 0, time.UTC),
		MaxPassenger:  4,
		HostID:        "U1",
		HostName:      "Alice",
		Participants:  []string{"U1"},
		CreatedAt:     ts,
		UpdatedAt:     ts,
	}
}
