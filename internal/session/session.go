// Package session はセッションの発行・破棄（Issuer）と検証（Validator）を提供する。
//
// auth サービスは Issuer でセッションレコードを書き込み、room サービスは Validator で
// 同じストアを読み取る。両者の間で共有されるのはストア上のレコード形式
// （キー session:<token>、値 {"userId","name"}）と Cookie 名 sid のみである。
package session

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/campustaxi/internal/model"
	"github.com/hitoshi/campustaxi/internal/repository"
)

// CookieName はセッショントークンを運ぶCookieの名前。
const CookieName = "sid"

// DefaultTTL はセッションの既定の有効期間。
// アクセスによる延長（スライディング）は行わない。
const DefaultTTL = 24 * time.Hour

// Recorder はセッション関連のメトリクス記録インターフェース。
type Recorder interface {
	RecordSessionCreated()
	RecordSessionResolved(outcome string)
}

// Resolve結果のメトリクスラベル。
const (
	OutcomeOK          = "ok"
	OutcomeNoToken     = "no_token"
	OutcomeExpired     = "expired"
	OutcomeStoreFailed = "store_error"
)

// Issuer はセッションの発行と破棄を行う。
type Issuer struct {
	store    repository.SessionStore
	ttl      time.Duration
	recorder Recorder
	newToken func() string
}

// NewIssuer はIssuerを生成する。ttlが0以下の場合はDefaultTTLを使用する。
// recorderはnilでもよい。
func NewIssuer(store repository.SessionStore, ttl time.Duration, recorder Recorder) *Issuer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Issuer{
		store:    store,
		ttl:      ttl,
		recorder: recorder,
		newToken: uuid.NewString,
	}
}

// TTL はセッションの有効期間を返す。Cookie の MaxAge に使用する。
func (i *Issuer) TTL() time.Duration {
	return i.ttl
}

// Create は新しいトークンを生成し、identityをTTL付きでストアに書き込む。
// 返されたTokenは呼び出し側がHttpOnly Cookieとしてクライアントに渡す。
func (i *Issuer) Create(ctx context.Context, identity model.SessionIdentity) (*model.Session, error) {
	token := i.newToken()
	now := time.Now().UTC()

	if err := i.store.Create(ctx, token, identity, i.ttl); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	if i.recorder != nil {
		i.recorder.RecordSessionCreated()
	}

	return &model.Session{
		Token:     token,
		Identity:  identity,
		ExpiresAt: now.Add(i.ttl),
		CreatedAt: now,
	}, nil
}

// Destroy はトークンに対応するセッションを削除する。
// トークンが空、または既に存在しない場合も成功として扱う。
func (i *Issuer) Destroy(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := i.store.Delete(ctx, token); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	slog.Info("session destroyed")
	return nil
}

// Validator はセッショントークンを検証し、SessionIdentityに解決する。
type Validator struct {
	store    repository.SessionStore
	recorder Recorder
}

// NewValidator はValidatorを生成する。recorderはnilでもよい。
func NewValidator(store repository.SessionStore, recorder Recorder) *Validator {
	return &Validator{store: store, recorder: recorder}
}

// Resolve はトークンをSessionIdentityに解決する。
//   - トークンが空: UNAUTHENTICATED
//   - ストアに存在しない: SESSION_EXPIRED（期限切れと偽造トークンは区別しない）
//   - ストア障害: ラップしたエラー（内部エラーとして扱う）
//
// 成功時は保存された値をそのまま返し、アカウントストアとの再照合は行わない。
func (v *Validator) Resolve(ctx context.Context, token string) (*model.SessionIdentity, error) {
	if token == "" {
		v.record(OutcomeNoToken)
		return nil, model.NewUnauthenticatedError()
	}

	identity, err := v.store.Find(ctx, token)
	if err != nil {
		v.record(OutcomeStoreFailed)
		return nil, fmt.Errorf("failed to resolve session: %w", err)
	}
	if identity == nil {
		v.record(OutcomeExpired)
		return nil, model.NewSessionExpiredError()
	}

	v.record(OutcomeOK)
	return identity, nil
}

func (v *Validator) record(outcome string) {
	if v.recorder != nil {
		v.recorder.RecordSessionResolved(outcome)
	}
}

// CookieConfig はセッションCookieの属性。
type CookieConfig struct {
	Domain string
	Secure bool
}

// SetCookie はセッショントークンをHttpOnly・Path=/ のCookieとして設定する。
func SetCookie(w http.ResponseWriter, token string, maxAge time.Duration, config CookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		Domain:   config.Domain,
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   config.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie はセッションCookieを削除する。
func ClearCookie(w http.ResponseWriter, config CookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		Domain:   config.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   config.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// TokenFromRequest はリクエストのCookieからセッショントークンを取り出す。
// Cookieがない場合は空文字列を返す。
func TokenFromRequest(r *http.Request) string {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}
