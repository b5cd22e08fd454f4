package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/campustaxi/internal/model"
)

// 各実装がインターフェースを満たすことを検証
func TestRepositories_ImplementInterfaces(t *testing.T) {
	var _ UserRepository = (*PostgresUserRepo)(nil)
	var _ RoomRepository = (*PostgresRoomRepo)(nil)
	var _ SessionStore = (*PostgresSessionRepo)(nil)
	var _ SessionStore = (*RedisSessionStore)(nil)
}

// コンストラクタが正しく初期化されることを検証
func TestNewRepositories_Initialize(t *testing.T) {
	if NewPostgresUserRepo(nil) == nil {
		t.Fatal("expected non-nil user repo")
	}
	if NewPostgresRoomRepo(nil) == nil {
		t.Fatal("expected non-nil room repo")
	}
	if NewPostgresSessionRepo(nil) == nil {
		t.Fatal("expected non-nil session repo")
	}
	if NewRedisSessionStore(nil) == nil {
		t.Fatal("expected non-nil redis session store")
	}
}

func TestBuildFindRoomsQuery_NoFilter_OrdersByDepartureTime(t *testing.T) {
	query, args := buildFindRoomsQuery(model.RoomFilter{})

	if len(args) != 0 {
		t.Errorf("args = %v, want empty", args)
	}
	if strings.Contains(query, "WHERE") {
		t.Errorf("query should not contain WHERE: %s", query)
	}
	if !strings.HasSuffix(query, "ORDER BY departure_time ASC, created_at ASC") {
		t.Errorf("query should be ordered by departure_time: %s", query)
	}
}

func TestBuildFindRoomsQuery_AllFilters(t *testing.T) {
	query, args := buildFindRoomsQuery(model.RoomFilter{
		DepartureContains:   "카이스트",
		DestinationContains: "대전역",
		ParticipantID:       "user-1",
	})

	if len(args) != 3 {
		t.Fatalf("len(args) = %d, want 3", len(args))
	}
	if args[0] != "카이스트" || args[1] != "대전역" || args[2] != "user-1" {
		t.Errorf("args = %v", args)
	}

	wants := []string{
		"departure ILIKE '%' || $1 || '%'",
		"destination ILIKE '%' || $2 || '%'",
		"(host_id = $3 OR $3 = ANY(participants))",
	}
	for _, want := range wants {
		if !strings.Contains(query, want) {
			t.Errorf("query should contain %q: %s", want, query)
		}
	}
	if strings.Count(query, " AND ") != 2 {
		t.Errorf("conditions should be joined with AND: %s", query)
	}
}

func TestBuildFindRoomsQuery_ParticipantOnly_UsesFirstPlaceholder(t *testing.T) {
	query, args := buildFindRoomsQuery(model.RoomFilter{ParticipantID: "user-9"})

	if len(args) != 1 {
		t.Fatalf("len(args) = %d, want 1", len(args))
	}
	if !strings.Contains(query, "(host_id = $1 OR $1 = ANY(participants))") {
		t.Errorf("unexpected query: %s", query)
	}
}

func TestEscapeLike(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"station", "station"},
		{"100%", `100\%`},
		{"a_b", `a\_b`},
		{`back\slash`, `back\\slash`},
	}
	for _, tt := range tests {
		if got := escapeLike(tt.in); got != tt.want {
			t.Errorf("escapeLike(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if !isUniqueViolation(&pq.Error{Code: "23505"}) {
		t.Error("23505 should be treated as unique violation")
	}
	if !isUniqueViolation(fmt.Errorf("wrapped: %w", &pq.Error{Code: "23505"})) {
		t.Error("wrapped 23505 should be treated as unique violation")
	}
	if isUniqueViolation(&pq.Error{Code: "23503"}) {
		t.Error("23503 should not be treated as unique violation")
	}
	if isUniqueViolation(errors.New("other")) {
		t.Error("plain error should not be treated as unique violation")
	}
}

func TestSessionKey_UsesSharedPrefix(t *testing.T) {
	if got := sessionKey("abc"); got != "session:abc" {
		t.Errorf("sessionKey = %q, want %q", got, "session:abc")
	}
}

func TestDecodeSessionIdentity(t *testing.T) {
	identity, err := decodeSessionIdentity([]byte(`{"userId":"u-1","name":"민수"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if identity.UserID != "u-1" || identity.Name != "민수" {
		t.Errorf("identity = %+v", identity)
	}

	if _, err := decodeSessionIdentity([]byte(`not-json`)); err == nil {
		t.Error("expected error for malformed session JSON")
	}
}

func TestConnectRedis_ParsesURLAndAddr(t *testing.T) {
	client, err := ConnectRedis("redis://:secret@localhost:6380/2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer client.Close()
	opts := client.Options()
	if opts.Addr != "localhost:6380" {
		t.Errorf("Addr = %q, want %q", opts.Addr, "localhost:6380")
	}
	if opts.DB != 2 {
		t.Errorf("DB = %d, want 2", opts.DB)
	}

	plain, err := ConnectRedis("redis-host:6379")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer plain.Close()
	if plain.Options().Addr != "redis-host:6379" {
		t.Errorf("Addr = %q, want %q", plain.Options().Addr, "redis-host:6379")
	}
}

func TestConnectRedis_InvalidURL_ReturnsError(t *testing.T) {
	if _, err := ConnectRedis("redis://localhost:6379/not-a-db"); err == nil {
		t.Error("expected error for invalid redis url")
	}
}

// 到達不能なRedisに対するFindはnilではなくエラーを返すこと（期限切れと区別する）
func TestRedisSessionStore_Find_Unreachable_ReturnsError(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	store := NewRedisSessionStore(client)
	identity, err := store.Find(ctx, "token")
	if err == nil {
		t.Fatal("expected error for unreachable redis")
	}
	if identity != nil {
		t.Errorf("identity = %+v, want nil", identity)
	}
}
