// Package apiclient はバックエンドサービス呼び出し用のHTTPクライアントを提供する。
// 起動時に設定した1つのベースURLに対して相対パスでリクエストを組み立て、
// ログイン中であればBearerトークンを付与する。
// リトライ・キャッシュ・キューイングは行わない。
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/healthtrack/internal/metrics"
	"github.com/hitoshi/healthtrack/internal/model"
)

const (
	// maxResponseSize はレスポンスボディの最大読み取りサイズ（4MB）。
	maxResponseSize = 4 << 20
	// userAgent はリクエストに付与するUser-Agent。
	userAgent = "healthtrack/1.0"
)

// TokenSource は呼び出し時点のBearerトークンを返す。
// 空文字列は未ログインを意味する。
type TokenSource interface {
	Token() string
}

// TokenSourceFunc は関数をTokenSourceとして扱うためのアダプタ。
type TokenSourceFunc func() string

// Token はTokenSourceを実装する。
func (f TokenSourceFunc) Token() string { return f() }

// Config はClientの設定。
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client はバックエンドサービスのHTTPクライアント。
type Client struct {
	httpClient *http.Client
	jar        *sessionJar
	baseURL    *url.URL
	tokens     atomic.Pointer[TokenSource]
	logger     *slog.Logger
	metrics    metrics.MetricsCollector
}

// New はClientを生成する。
// トークンソースは後からSetTokenSourceで設定する（未設定の間は認証ヘッダーを付けない）。
func New(cfg Config, logger *slog.Logger, collector metrics.MetricsCollector) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid base URL scheme: %q", base.Scheme)
	}

	jar, err := newSessionJar()
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}
	if collector == nil {
		collector = metrics.Nop{}
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout, Jar: jar},
		jar:        jar,
		baseURL:    base,
		logger:     logger,
		metrics:    collector,
	}, nil
}

// SetTokenSource はBearerトークンの取得元を設定する。
func (c *Client) SetTokenSource(src TokenSource) {
	c.tokens.Store(&src)
}

// ResetCookies はバックエンドが設定したクッキーをすべて破棄する。
// ログアウト後のリクエストにログイン中のクッキーを送らないために呼ぶ。
func (c *Client) ResetCookies() {
	if err := c.jar.reset(); err != nil {
		c.logger.Warn("failed to recreate cookie jar", slog.String("error", err.Error()))
	}
}

// ResolveURL は相対パスをベースURLに対して解決した絶対URLを返す。
func (c *Client) ResolveURL(path string) (string, error) {
	rel, err := url.Parse(strings.TrimLeft(path, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid path %q: %w", path, err)
	}
	if rel.IsAbs() || rel.Host != "" {
		return "", fmt.Errorf("path must be relative: %q", path)
	}
	return c.baseURL.ResolveReference(rel).String(), nil
}

// Get はGETリクエストを送信し、成功時のレスポンスボディをoutにデコードする。
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodGet, path, nil, out)
}

// Post はbodyをJSONとしてPOSTし、成功時のレスポンスボディをoutにデコードする。
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPost, path, body, out)
}

// Do はリクエストを1回だけ送信する。
// 2xx以外の応答は*model.RemoteErrorとして返す。
// 応答が得られなかった場合はStatusCode 0の*model.RemoteErrorを返す。
// outがnilの場合、成功時のボディは読み捨てる。
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	reqURL, err := c.ResolveURL(path)
	if err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	requestID := uuid.New().String()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Request-ID", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.currentToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.RecordAPILatency(time.Since(start))
	if err != nil {
		c.metrics.RecordAPIRequest(method, 0)
		// 呼び出し元によるキャンセルは接続失敗として扱わない
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("request %s %s canceled: %w", method, path, ctxErr)
		}
		c.logger.Warn("backend request failed",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("request_id", requestID),
			slog.String("error", err.Error()),
		)
		return &model.RemoteError{Message: model.ConnectivityMessage, Err: err}
	}
	defer resp.Body.Close()

	c.metrics.RecordAPIRequest(method, resp.StatusCode)

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return &model.RemoteError{
			StatusCode: resp.StatusCode,
			Message:    model.ConnectivityMessage,
			Err:        fmt.Errorf("failed to read response body: %w", err),
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := extractMessage(data)
		c.logger.Info("backend returned error status",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("request_id", requestID),
			slog.Int("http_status", resp.StatusCode),
		)
		if msg == "" {
			msg = model.ConnectivityMessage
		}
		return &model.RemoteError{StatusCode: resp.StatusCode, Message: msg}
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response from %s %s: %w", method, path, err)
	}
	return nil
}

// currentToken はトークンソースから現在のトークンを取得する。
func (c *Client) currentToken() string {
	src := c.tokens.Load()
	if src == nil || *src == nil {
		return ""
	}
	return (*src).Token()
}

// extractMessage はエラーレスポンスのボディからユーザー向けメッセージを取り出す。
// 認証・健康データサービスは {"message": ...}、リマインダーサービスは {"error": ...} を返す。
func extractMessage(data []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return ""
	}
	if m := strings.TrimSpace(payload.Message); m != "" {
		return m
	}
	return strings.TrimSpace(payload.Error)
}

// IsRemoteError はerrがRemoteErrorかどうかを判定し、該当すれば返す。
func IsRemoteError(err error) (*model.RemoteError, bool) {
	var re *model.RemoteError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}
