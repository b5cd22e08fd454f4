package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/campustaxi/internal/model"
)

// SessionKeyPrefix はセッションレコードのRedisキー接頭辞。
// auth サービスと room サービスの間の契約なので変更しないこと。
const SessionKeyPrefix = "session:"

// ConnectRedis はURL（redis://...）またはhost:port形式の指定からRedisクライアントを生成する。
// 接続確認は行わないため、起動時に Ping で確認すること。
func ConnectRedis(redisURL string) (*redis.Client, error) {
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse redis url: %w", err)
		}
		return redis.NewClient(opt), nil
	}
	return redis.NewClient(&redis.Options{Addr: redisURL}), nil
}

// RedisSessionStore はRedisを使用したセッションストア。
// 値は {"userId","name"} のJSONで、有効期限はRedisのキーTTLに委ねる。
type RedisSessionStore struct {
	client *redis.Client
}

// NewRedisSessionStore はRedisSessionStoreを生成する。
func NewRedisSessionStore(client *redis.Client) *RedisSessionStore {
	return &RedisSessionStore{client: client}
}

// Create はセッションレコードを SET key value EX ttl で書き込む。
func (s *RedisSessionStore) Create(ctx context.Context, token string, identity model.SessionIdentity, ttl time.Duration) error {
	raw, err := json.Marshal(identity)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := s.client.Set(ctx, sessionKey(token), raw, ttl).Err(); err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// Find は指定トークンのセッションを取得する。キーが存在しない場合はnilを返す。
// userIdが空のレコードは不正なセッションとして存在しない扱いにする。
func (s *RedisSessionStore) Find(ctx context.Context, token string) (*model.SessionIdentity, error) {
	raw, err := s.client.Get(ctx, sessionKey(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find session: %w", err)
	}

	identity, err := decodeSessionIdentity(raw)
	if err != nil {
		return nil, err
	}
	if identity.UserID == "" {
		return nil, nil
	}
	return identity, nil
}

// Delete は指定トークンのセッションを削除する。
func (s *RedisSessionStore) Delete(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, sessionKey(token)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// PingContext はRedisへの疎通を確認する。ヘルスチェック用。
func (s *RedisSessionStore) PingContext(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// sessionKey はトークンからRedisキーを生成する。
func sessionKey(token string) string {
	return SessionKeyPrefix + token
}

// decodeSessionIdentity は保存済みJSONをSessionIdentityに変換する。
func decodeSessionIdentity(raw []byte) (*model.SessionIdentity, error) {
	identity := &model.SessionIdentity{}
	if err := json.Unmarshal(raw, identity); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return identity, nil
}

// compile-time interface check
var (
	_ SessionStore = (*RedisSessionStore)(nil)
	_ Pinger       = (*RedisSessionStore)(nil)
)
