package apiclient

import (
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"

	"golang.org/x/net/publicsuffix"
)

// sessionJar はバックエンドが設定したクッキーを保持するhttp.CookieJar。
// ログアウト時にresetで空のjarに差し替える。
type sessionJar struct {
	mu  sync.RWMutex
	jar http.CookieJar
}

func newSessionJar() (*sessionJar, error) {
	jar, err := newPublicSuffixJar()
	if err != nil {
		return nil, err
	}
	return &sessionJar{jar: jar}, nil
}

func newPublicSuffixJar() (*cookiejar.Jar, error) {
	return cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
}

// SetCookies はhttp.CookieJarを実装する。
func (j *sessionJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.jar != nil {
		j.jar.SetCookies(u, cookies)
	}
}

// Cookies はhttp.CookieJarを実装する。
func (j *sessionJar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.jar == nil {
		return nil
	}
	return j.jar.Cookies(u)
}

// reset は保持しているクッキーをすべて破棄する。
// 新しいjarを作れなかった場合もクッキーは送らない状態にする。
func (j *sessionJar) reset() error {
	fresh, err := newPublicSuffixJar()

	j.mu.Lock()
	defer j.mu.Unlock()
	if err != nil {
		j.jar = nil
		return err
	}
	j.jar = fresh
	return nil
}
