// Package handler はローカルUIのHTTPハンドラーを提供する。
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/healthtrack/internal/guard"
	"github.com/hitoshi/healthtrack/internal/health"
	"github.com/hitoshi/healthtrack/internal/model"
	"github.com/hitoshi/healthtrack/internal/reminder"
	"github.com/hitoshi/healthtrack/internal/security"
	"github.com/hitoshi/healthtrack/internal/session"
)

// genericErrorMessage は分類できないエラーの場合にユーザーへ表示するメッセージ。
const genericErrorMessage = "処理に失敗しました。しばらく待ってから再度お試しください。"

// supersededMessage はログイン操作が後続の操作に追い越された場合のメッセージ。
const supersededMessage = "別の操作によりログイン処理が中断されました。"

// SessionService はハンドラーが必要とするセッションストアのインターフェース。
// session.Storeが実装する。
type SessionService interface {
	CurrentSession() session.Snapshot
	Subscribe(fn func(session.Snapshot)) (unsubscribe func())
	Login(ctx context.Context, email, password string) error
	Signup(ctx context.Context, name, email, password string) error
	Logout(ctx context.Context)
	ExpireToken(ctx context.Context, token string) bool
}

// HealthService は測定記録の取得・登録を行うサービスのインターフェース。
type HealthService interface {
	List(ctx context.Context) ([]model.HealthReading, error)
	Submit(ctx context.Context, in health.ReadingInput) error
}

// ReminderService はリマインダー登録を行うサービスのインターフェース。
type ReminderService interface {
	Submit(ctx context.Context, userID string, in reminder.Input) error
}

var (
	_ SessionService  = (*session.Store)(nil)
	_ HealthService   = (*health.Service)(nil)
	_ ReminderService = (*reminder.Service)(nil)
)

// messages はエラーをユーザー向けの表示文言に変換する。
type messages struct {
	sanitizer security.MessageSanitizer
}

// userMessage はエラーの種類に応じた表示文言を返す。
// 連携サービスが返した文言はHTMLを除去してから表示する。
func (m messages) userMessage(err error) string {
	var (
		authErr   *model.AuthError
		remoteErr *model.RemoteError
		valErr    *model.ValidationError
	)
	var msg string
	switch {
	case errors.Is(err, session.ErrSuperseded):
		msg = supersededMessage
	case errors.As(err, &valErr):
		msg = valErr.Message
	case errors.As(err, &authErr):
		msg = authErr.Message
	case errors.As(err, &remoteErr):
		msg = remoteErr.Message
	default:
		slog.Error("unexpected handler error", slog.String("error", err.Error()))
		msg = genericErrorMessage
	}

	if plain := m.sanitizer.Plain(msg); plain != "" {
		return plain
	}
	return genericErrorMessage
}

// isRemoteUnauthorized は連携サービスがトークンを拒否したかどうかを返す。
func isRemoteUnauthorized(err error) bool {
	var remoteErr *model.RemoteError
	return errors.As(err, &remoteErr) && remoteErr.StatusCode == 401
}

// expireRejected は連携サービスがtokenを拒否した場合に、そのトークンのセッションを破棄する。
// 拒否されたかどうかと、セッションを破棄したかどうかを返す。
// リクエストの送信後に別のログインが反映されていれば、新しいセッションは破棄しない。
func expireRejected(ctx context.Context, sessions SessionService, token string, err error) (rejected, expired bool) {
	if !isRemoteUnauthorized(err) {
		return false, false
	}
	if sessions.ExpireToken(ctx, token) {
		slog.Info("backend rejected token, logging out")
		return true, true
	}
	slog.Info("backend rejected a token that is no longer current")
	return true, false
}

// redirectIfRejected は連携サービスがトークンを拒否した場合にリダイレクトしてtrueを返す。
// セッションを破棄した場合はログイン画面へ、既に別のセッションに切り替わっていた場合はrouteへ移動する。
func redirectIfRejected(w http.ResponseWriter, r *http.Request, sessions SessionService, route, token string, err error) bool {
	rejected, expired := expireRejected(r.Context(), sessions, token, err)
	if !rejected {
		return false
	}
	if expired {
		http.Redirect(w, r, guard.LoginURL(route), http.StatusSeeOther)
		return true
	}
	http.Redirect(w, r, route, http.StatusSeeOther)
	return true
}

func isValidationError(err error) bool {
	var valErr *model.ValidationError
	return errors.As(err, &valErr)
}
