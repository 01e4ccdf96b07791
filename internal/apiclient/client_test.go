package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hitoshi/healthtrack/internal/model"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func newTestClient(t *testing.T, baseURL string, token string) *Client {
	t.Helper()
	var buf bytes.Buffer
	c, err := New(Config{BaseURL: baseURL, Timeout: 5 * time.Second}, newTestLogger(&buf), nil)
	if err != nil {
		t.Fatalf("New がエラーを返した: %v", err)
	}
	c.SetTokenSource(TokenSourceFunc(func() string { return token }))
	return c
}

func TestNew_InvalidScheme_ReturnsError(t *testing.T) {
	if _, err := New(Config{BaseURL: "ftp://example.com"}, nil, nil); err == nil {
		t.Fatal("ftpスキームはエラーになるべき")
	}
}

func TestResolveURL(t *testing.T) {
	tests := []struct {
		base string
		path string
		want string
	}{
		{"http://localhost:5000", "/api/data", "http://localhost:5000/api/data"},
		{"http://localhost:5000/", "api/auth/login", "http://localhost:5000/api/auth/login"},
		{"https://example.com/v1", "/api/reminders", "https://example.com/v1/api/reminders"},
	}

	for _, tt := range tests {
		c := newTestClient(t, tt.base, "")
		got, err := c.ResolveURL(tt.path)
		if err != nil {
			t.Fatalf("ResolveURL(%q) がエラーを返した: %v", tt.path, err)
		}
		if got != tt.want {
			t.Errorf("ResolveURL(%q) with base %q = %q, want %q", tt.path, tt.base, got, tt.want)
		}
	}
}

func TestResolveURL_AbsolutePathRejected(t *testing.T) {
	c := newTestClient(t, "http://localhost:5000", "")
	if _, err := c.ResolveURL("https://evil.example.com/api"); err == nil {
		t.Fatal("絶対URLはエラーになるべき")
	}
}

func TestClient_AttachesBearerHeaderWhenTokenPresent(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, "T")

	var out []model.HealthReading
	if err := c.Get(context.Background(), "/api/data", &out); err != nil {
		t.Fatalf("Get がエラーを返した: %v", err)
	}
	if gotAuth != "Bearer T" {
		t.Errorf("Authorization = %q, want %q", gotAuth, "Bearer T")
	}
}

func TestClient_OmitsBearerHeaderWhenAnonymous(t *testing.T) {
	var hasAuth bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hasAuth = r.Header["Authorization"]
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, "")

	if err := c.Get(context.Background(), "/api/data", nil); err != nil {
		t.Fatalf("Get がエラーを返した: %v", err)
	}
	if hasAuth {
		t.Error("未ログイン時にAuthorizationヘッダーを付与してはならない")
	}
}

func TestClient_NoTokenSource_OmitsBearerHeader(t *testing.T) {
	var hasAuth bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hasAuth = r.Header["Authorization"]
	}))
	defer server.Close()

	c, err := New(Config{BaseURL: server.URL, Timeout: time.Second}, nil, nil)
	if err != nil {
		t.Fatalf("New がエラーを返した: %v", err)
	}
	if err := c.Get(context.Background(), "/api/data", nil); err != nil {
		t.Fatalf("Get がエラーを返した: %v", err)
	}
	if hasAuth {
		t.Error("トークンソース未設定時にAuthorizationヘッダーを付与してはならない")
	}
}

func TestClient_TokenReadAtCallTime(t *testing.T) {
	var seen []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Header.Get("Authorization"))
	}))
	defer server.Close()

	token := ""
	c := newTestClient(t, server.URL, "")
	c.SetTokenSource(TokenSourceFunc(func() string { return token }))

	_ = c.Get(context.Background(), "/api/data", nil)
	token = "T2"
	_ = c.Get(context.Background(), "/api/data", nil)
	token = ""
	_ = c.Get(context.Background(), "/api/data", nil)

	want := []string{"", "Bearer T2", ""}
	if len(seen) != len(want) {
		t.Fatalf("リクエスト数 = %d, want %d", len(seen), len(want))
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("request %d: Authorization = %q, want %q", i, seen[i], want[i])
		}
	}
}

func TestClient_Post_SendsJSONBodyAndHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("HTTPメソッド = %s, want POST", r.Method)
		}
		if r.URL.Path != "/api/reminders" {
			t.Errorf("path = %s, want /api/reminders", r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q, want application/json", ct)
		}
		if r.Header.Get("X-Request-ID") == "" {
			t.Error("X-Request-ID ヘッダーが必要")
		}
		body, _ := io.ReadAll(r.Body)
		var got model.Reminder
		if err := json.Unmarshal(body, &got); err != nil {
			t.Fatalf("ボディのパースに失敗: %v", err)
		}
		if got.Medicine != "aspirin" {
			t.Errorf("medicine = %q, want aspirin", got.Medicine)
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, "T")

	var out struct {
		OK bool `json:"ok"`
	}
	err := c.Post(context.Background(), "/api/reminders", model.Reminder{Medicine: "aspirin"}, &out)
	if err != nil {
		t.Fatalf("Post がエラーを返した: %v", err)
	}
	if !out.OK {
		t.Error("レスポンスがデコードされていない")
	}
}

func TestClient_ErrorStatus_ReturnsRemoteErrorWithServerMessage(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"message key", `{"message":"bad credentials"}`, "bad credentials"},
		{"error key", `{"error":"invalid time"}`, "invalid time"},
		{"no message", `{}`, model.ConnectivityMessage},
		{"non json", `<html>oops</html>`, model.ConnectivityMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			c := newTestClient(t, server.URL, "")
			err := c.Get(context.Background(), "/api/data", nil)

			re, ok := IsRemoteError(err)
			if !ok {
				t.Fatalf("RemoteError を期待したが %T: %v", err, err)
			}
			if re.StatusCode != http.StatusBadRequest {
				t.Errorf("StatusCode = %d, want %d", re.StatusCode, http.StatusBadRequest)
			}
			if re.Message != tt.want {
				t.Errorf("Message = %q, want %q", re.Message, tt.want)
			}
		})
	}
}

func TestClient_Unreachable_ReturnsConnectivityError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	c := newTestClient(t, url, "")
	err := c.Get(context.Background(), "/api/data", nil)

	re, ok := IsRemoteError(err)
	if !ok {
		t.Fatalf("RemoteError を期待したが %T: %v", err, err)
	}
	if !re.Unreachable() {
		t.Errorf("Unreachable() = false, StatusCode = %d", re.StatusCode)
	}
	if re.Message != model.ConnectivityMessage {
		t.Errorf("Message = %q, want connectivity message", re.Message)
	}
}

func TestClient_CanceledContext_IsNotRemoteError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, "")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.Get(ctx, "/api/data", nil)
	if err == nil {
		t.Fatal("キャンセル済みコンテキストではエラーを返すべき")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("context.Canceled を期待したが %v", err)
	}
	if _, ok := IsRemoteError(err); ok {
		t.Error("キャンセルはRemoteErrorとして扱わない")
	}
}

func TestClient_InvalidJSONOnSuccess_ReturnsDecodeError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, "")

	var out []model.HealthReading
	err := c.Get(context.Background(), "/api/data", &out)
	if err == nil {
		t.Fatal("不正なJSONはエラーになるべき")
	}
	if _, ok := IsRemoteError(err); ok {
		t.Error("デコード失敗はRemoteErrorではない")
	}
}

func TestClient_CookiesSentUntilReset(t *testing.T) {
	var mu sync.Mutex
	var gotCookies []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/auth/login" {
			http.SetCookie(w, &http.Cookie{Name: "sid", Value: "S1", Path: "/"})
			w.WriteHeader(http.StatusOK)
			return
		}
		mu.Lock()
		gotCookies = append(gotCookies, r.Header.Get("Cookie"))
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	var token atomic.Value
	token.Store("T")
	var buf bytes.Buffer
	c, err := New(Config{BaseURL: server.URL, Timeout: 5 * time.Second}, newTestLogger(&buf), nil)
	if err != nil {
		t.Fatalf("New がエラーを返した: %v", err)
	}
	c.SetTokenSource(TokenSourceFunc(func() string { return token.Load().(string) }))

	if err := c.Post(context.Background(), "/api/auth/login", map[string]string{"email": "a@x.com"}, nil); err != nil {
		t.Fatalf("Post がエラーを返した: %v", err)
	}
	if err := c.Get(context.Background(), "/api/data", nil); err != nil {
		t.Fatalf("Get がエラーを返した: %v", err)
	}

	// ログアウト
	token.Store("")
	c.ResetCookies()
	if err := c.Get(context.Background(), "/api/data", nil); err != nil {
		t.Fatalf("Get がエラーを返した: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(gotCookies) != 2 {
		t.Fatalf("リクエスト数 = %d, want 2", len(gotCookies))
	}
	if gotCookies[0] != "sid=S1" {
		t.Errorf("ログイン中のCookie = %q, want %q", gotCookies[0], "sid=S1")
	}
	if gotCookies[1] != "" {
		t.Errorf("ログアウト後にCookieを送信した: %q", gotCookies[1])
	}
}

func TestSessionJar_ResetFailureDropsCookies(t *testing.T) {
	jar, err := newSessionJar()
	if err != nil {
		t.Fatalf("newSessionJar がエラーを返した: %v", err)
	}
	u, _ := url.Parse("http://backend.example.com/")
	jar.SetCookies(u, []*http.Cookie{{Name: "sid", Value: "S1"}})
	if got := jar.Cookies(u); len(got) != 1 {
		t.Fatalf("Cookies = %v, want 1件", got)
	}

	// 差し替え先がない状態でもクッキーは返さない
	jar.mu.Lock()
	jar.jar = nil
	jar.mu.Unlock()
	jar.SetCookies(u, []*http.Cookie{{Name: "sid", Value: "S2"}})
	if got := jar.Cookies(u); len(got) != 0 {
		t.Errorf("Cookies = %v, want 0件", got)
	}

	if err := jar.reset(); err != nil {
		t.Fatalf("reset がエラーを返した: %v", err)
	}
	jar.SetCookies(u, []*http.Cookie{{Name: "sid", Value: "S3"}})
	if got := jar.Cookies(u); len(got) != 1 || got[0].Value != "S3" {
		t.Errorf("reset後のCookies = %v, want sid=S3", got)
	}
}
