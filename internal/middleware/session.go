// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/campustaxi/internal/model"
	"github.com/hitoshi/campustaxi/internal/session"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// identityContextKey はリクエストコンテキストにセッションIDを格納するためのキー。
var identityContextKey = contextKey("session_identity")

// SessionResolver はセッショントークンの検証に必要なインターフェース。
// session.Validator が実装する。
type SessionResolver interface {
	Resolve(ctx context.Context, token string) (*model.SessionIdentity, error)
}

// NewSessionMiddleware は sid Cookie からセッションを読み取り、
// 検証済みの SessionIdentity をリクエストコンテキストに注入するミドルウェアを返す。
// トークンなし・期限切れには401、セッションストア障害には500を返す。
func NewSessionMiddleware(resolver SessionResolver) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := resolver.Resolve(r.Context(), session.TokenFromRequest(r))
			if err != nil {
				var apiErr *model.APIError
				if errors.As(err, &apiErr) {
					WriteErrorResponse(w, http.StatusUnauthorized, apiErr)
					return
				}
				slog.Error("failed to resolve session",
					slog.String("error", err.Error()),
					slog.String("path", r.URL.Path),
				)
				WriteInternalServerError(w)
				return
			}

			setLogUserID(r.Context(), identity.UserID)
			ctx := ContextWithIdentity(r.Context(), *identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IdentityFromContext はリクエストコンテキストからセッションIDを取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func IdentityFromContext(ctx context.Context) (model.SessionIdentity, error) {
	identity, ok := ctx.Value(identityContextKey).(model.SessionIdentity)
	if !ok || identity.UserID == "" {
		return model.SessionIdentity{}, fmt.Errorf("session identity not found in context")
	}
	return identity, nil
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
func UserIDFromContext(ctx context.Context) (string, error) {
	identity, err := IdentityFromContext(ctx)
	if err != nil {
		return "", err
	}
	return identity.UserID, nil
}

// ContextWithIdentity はコンテキストにセッションIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithIdentity(ctx context.Context, identity model.SessionIdentity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}
