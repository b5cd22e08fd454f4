package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/campustaxi/internal/model"
)

// PostgresSessionRepo はPostgreSQLを使用したセッションストア。
// SESSION_STORE=postgres の場合に Redis の代わりに使用する。
// 期限切れ行は読み取り時に除外し、物理削除は cleanup ワーカーが行う。
type PostgresSessionRepo struct {
	db *sql.DB
}

// NewPostgresSessionRepo はPostgresSessionRepoを生成する。
func NewPostgresSessionRepo(db *sql.DB) *PostgresSessionRepo {
	return &PostgresSessionRepo{db: db}
}

// Create はセッションレコードをTTL付きで作成する。
func (r *PostgresSessionRepo) Create(ctx context.Context, token string, identity model.SessionIdentity, ttl time.Duration) error {
	data, err := json.Marshal(identity)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	now := time.Now().UTC()
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO sessions (token, user_id, data, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		token, identity.UserID, data, now.Add(ttl), now,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// Find は指定トークンのセッションを取得する。期限切れの場合はnilを返す。
func (r *PostgresSessionRepo) Find(ctx context.Context, token string) (*model.SessionIdentity, error) {
	var data []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT data FROM sessions WHERE token = $1 AND expires_at > now()`,
		token,
	).Scan(&data)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}

	identity := &model.SessionIdentity{}
	if err := json.Unmarshal(data, identity); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return identity, nil
}

// Delete は指定トークンのセッションを削除する。
func (r *PostgresSessionRepo) Delete(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE token = $1`,
		token,
	)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteExpired は有効期限を過ぎたセッションを物理削除し、削除件数を返す。
// cleanup ワーカーから定期的に呼ばれる。
func (r *PostgresSessionRepo) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE expires_at <= now()`,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get deleted session count: %w", err)
	}
	return n, nil
}

// PingContext はPostgreSQLへの疎通を確認する。ヘルスチェック用。
func (r *PostgresSessionRepo) PingContext(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// compile-time interface check
var (
	_ SessionStore = (*PostgresSessionRepo)(nil)
	_ Pinger       = (*PostgresSessionRepo)(nil)
)
