// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"net/http"

	"github.com/hitoshi/healthtrack/internal/guard"
	"github.com/hitoshi/healthtrack/internal/model"
	"github.com/hitoshi/healthtrack/internal/session"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// identityContextKey はリクエストコンテキストにログインユーザーを格納するためのキー。
var identityContextKey = contextKey("identity")

// SessionReader はセッションの参照に必要なインターフェース。
// session.Storeの部分集合として定義する。
type SessionReader interface {
	CurrentSession() session.Snapshot
}

// NewSessionMiddleware はリクエスト受付時点のセッションを読み取り、
// ログイン中であればIdentityをリクエストコンテキストに注入する。
// 未ログインのリクエストもそのまま通す。アクセス制御はguardが行う。
func NewSessionMiddleware(src SessionReader) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			snap := src.CurrentSession()
			if snap.Authenticated() && snap.Identity != nil {
				r = r.WithContext(ContextWithIdentity(r.Context(), *snap.Identity))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// NewAPIGuardMiddleware はJSON APIのためのアクセス制御ミドルウェアを返す。
// 判定はguard.Evaluateで行い、リダイレクトの代わりに401と統一エラーレスポンスを返す。
func NewAPIGuardMiddleware(src SessionReader) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := guard.Evaluate(r.URL.RequestURI(), src.CurrentSession())
			if !d.Allowed() {
				w.Header().Set("Location", d.Location)
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// IdentityFromContext はリクエストコンテキストからログインユーザーを取得する。
// セッションミドルウェアを通過したログイン中のリクエストでのみ有効。
func IdentityFromContext(ctx context.Context) (model.Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(model.Identity)
	return identity, ok
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
func UserIDFromContext(ctx context.Context) (string, error) {
	identity, ok := IdentityFromContext(ctx)
	if !ok || identity.ID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return identity.ID, nil
}

// ContextWithIdentity はコンテキストにログインユーザーを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithIdentity(ctx context.Context, identity model.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}
