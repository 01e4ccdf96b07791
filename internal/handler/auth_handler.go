package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/healthtrack/internal/guard"
)

// AuthHandler はログイン・サインアップ・ログアウト画面のハンドラー。
type AuthHandler struct {
	sessions SessionService
	views    *views
	msg      messages
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(sessions SessionService, v *views, msg messages) *AuthHandler {
	return &AuthHandler{sessions: sessions, views: v, msg: msg}
}

// LoginForm はログイン画面を表示する。
// GET /login?next=/dashboard
// ログイン済みの場合は遷移先へそのまま移動する。
func (h *AuthHandler) LoginForm(w http.ResponseWriter, r *http.Request) {
	next := r.URL.Query().Get("next")
	snap := h.sessions.CurrentSession()
	if snap.Authenticated() {
		http.Redirect(w, r, guard.SafeNext(next), http.StatusSeeOther)
		return
	}

	data := newPageData(r, "ログイン", snap)
	data.Next = next
	h.views.render(w, http.StatusOK, pageLogin, data)
}

// Login はログインフォームの送信を処理する。
// POST /login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.PostFormValue("email"))
	password := r.PostFormValue("password")
	next := r.PostFormValue("next")

	if err := h.sessions.Login(r.Context(), email, password); err != nil {
		slog.Info("login failed", slog.String("error", err.Error()))
		data := newPageData(r, "ログイン", h.sessions.CurrentSession())
		data.Next = next
		data.Form["email"] = email
		data.Error = h.msg.userMessage(err)
		h.views.render(w, http.StatusUnauthorized, pageLogin, data)
		return
	}

	http.Redirect(w, r, guard.SafeNext(next), http.StatusSeeOther)
}

// SignupForm はサインアップ画面を表示する。
// GET /signup
func (h *AuthHandler) SignupForm(w http.ResponseWriter, r *http.Request) {
	h.views.render(w, http.StatusOK, pageSignup, newPageData(r, "新規登録", h.sessions.CurrentSession()))
}

// Signup はサインアップフォームの送信を処理する。
// POST /signup
// アカウント作成に成功したら同じ資格情報でログインし、ダッシュボードへ移動する。
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.PostFormValue("name"))
	email := strings.TrimSpace(r.PostFormValue("email"))
	password := r.PostFormValue("password")

	renderError := func(status int, err error) {
		data := newPageData(r, "新規登録", h.sessions.CurrentSession())
		data.Form["name"] = name
		data.Form["email"] = email
		data.Error = h.msg.userMessage(err)
		h.views.render(w, status, pageSignup, data)
	}

	if err := h.sessions.Signup(r.Context(), name, email, password); err != nil {
		slog.Info("signup failed", slog.String("error", err.Error()))
		renderError(http.StatusBadRequest, err)
		return
	}

	if err := h.sessions.Login(r.Context(), email, password); err != nil {
		// アカウントは作成済みなので、ログイン画面で再試行してもらう
		slog.Warn("login after signup failed", slog.String("error", err.Error()))
		data := newPageData(r, "ログイン", h.sessions.CurrentSession())
		data.Form["email"] = email
		data.Flash = "登録が完了しました。ログインしてください。"
		data.Error = h.msg.userMessage(err)
		h.views.render(w, http.StatusUnauthorized, pageLogin, data)
		return
	}

	http.Redirect(w, r, guard.DefaultAfterLogin, http.StatusSeeOther)
}

// Logout はセッションを破棄してログイン画面へ移動する。
// POST /logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.sessions.Logout(r.Context())
	http.Redirect(w, r, guard.LoginPath, http.StatusSeeOther)
}
