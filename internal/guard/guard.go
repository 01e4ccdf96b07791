// Package guard はログインが必要な画面へのアクセス可否を判定する。
//
// 判定はセッションのスナップショットと要求されたルートだけから決まる純粋関数（Evaluate）で、
// 結果は「許可」か「ログイン画面へのリダイレクト」のいずれかに限られる。
package guard

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/hitoshi/healthtrack/internal/session"
)

// LoginPath はログイン画面のパス。
const LoginPath = "/login"

// DefaultAfterLogin はログイン後の遷移先が指定されていない場合の遷移先。
const DefaultAfterLogin = "/dashboard"

// Outcome は判定結果の種類。
type Outcome int

const (
	// Allow は要求されたルートの表示を許可する。
	Allow Outcome = iota
	// Redirect はログイン画面へリダイレクトする。
	Redirect
)

// String は判定結果の名前を返す。
func (o Outcome) String() string {
	if o == Allow {
		return "allow"
	}
	return "redirect"
}

// Decision は判定結果。
type Decision struct {
	Outcome Outcome `json:"-"`
	// Route は要求されたルート。
	Route string `json:"route"`
	// Location はRedirectの場合の遷移先。Allowの場合は空。
	Location string `json:"location,omitempty"`
}

// Allowed は表示が許可されたかどうかを返す。
func (d Decision) Allowed() bool {
	return d.Outcome == Allow
}

// SessionSource は判定に必要なセッションストアのインターフェース。
// session.Storeが実装する。
type SessionSource interface {
	CurrentSession() session.Snapshot
	Subscribe(fn func(session.Snapshot)) (unsubscribe func())
}

// Evaluate はセッションの状態から、routeの表示を許可するかリダイレクトするかを判定する。
func Evaluate(route string, snap session.Snapshot) Decision {
	if snap.Authenticated() {
		return Decision{Outcome: Allow, Route: route}
	}
	return Decision{Outcome: Redirect, Route: route, Location: LoginURL(route)}
}

// LoginURL はログイン後にrouteへ戻るためのログイン画面のURLを返す。
func LoginURL(route string) string {
	if route == "" {
		return LoginPath
	}
	return LoginPath + "?" + url.Values{"next": {route}}.Encode()
}

// SafeNext はログイン後の遷移先として使えるローカルパスを返す。
// 空・外部URL・スキーム相対URLの場合はDefaultAfterLoginを返す。
func SafeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return DefaultAfterLogin
	}
	u, err := url.Parse(next)
	if err != nil || u.IsAbs() || u.Host != "" {
		return DefaultAfterLogin
	}
	return next
}

// Middleware はリクエストのたびにセッションを判定し、
// 未ログインであればログイン画面へ303 See Otherでリダイレクトするミドルウェアを返す。
func Middleware(src SessionSource) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := Evaluate(r.URL.RequestURI(), src.CurrentSession())
			if !d.Allowed() {
				http.Redirect(w, r, d.Location, http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Watch はrouteの判定結果を直ちにfnへ渡し、以後セッションが変わるたびに再判定してfnを呼ぶ。
// 返り値の関数で監視を終了する。
func Watch(src SessionSource, route string, fn func(Decision)) (stop func()) {
	unsubscribe := src.Subscribe(func(snap session.Snapshot) {
		fn(Evaluate(route, snap))
	})
	fn(Evaluate(route, src.CurrentSession()))
	return unsubscribe
}
