package handler

import (
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/healthtrack/internal/guard"
	"github.com/hitoshi/healthtrack/internal/metrics"
	"github.com/hitoshi/healthtrack/internal/middleware"
	"github.com/hitoshi/healthtrack/internal/security"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger      *slog.Logger
	RateLimiter *middleware.RateLimiter
	CSRF        middleware.CSRFConfig

	// セッション
	Sessions SessionService

	// 連携サービス
	HealthService   HealthService
	ReminderService ReminderService

	// メッセージの無害化（nilの場合は既定のポリシー）
	Sanitizer security.MessageSanitizer

	// メトリクス（nilの場合は/metricsを公開しない）
	Gatherer prometheus.Gatherer
}

// NewRouter はローカルUIの全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Session → Logging → Recovery → SecurityHeaders
//	  → CSRF → (AuthAttemptRateLimit | guard.Middleware | APIGuard)
//
// /health と /metrics と静的ファイルはCSRFの外に配置する。
func NewRouter(deps *RouterDeps) (http.Handler, error) {
	v, err := newViews()
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	static, err := fs.Sub(staticFS, "static")
	if err != nil {
		return nil, fmt.Errorf("failed to open static files: %w", err)
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sanitizer := deps.Sanitizer
	if sanitizer == nil {
		sanitizer = security.NewMessageSanitizer()
	}
	msg := messages{sanitizer: sanitizer}

	authHandler := NewAuthHandler(deps.Sessions, v, msg)
	dashHandler := NewDashboardHandler(deps.Sessions, deps.HealthService, v, msg)
	reminderHandler := NewReminderHandler(deps.Sessions, deps.ReminderService, v, msg)
	apiHandler := NewAPIHandler(deps.Sessions, deps.HealthService)
	eventsHandler := NewEventsHandler(deps.Sessions)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	// アクセスログにuser_idを含めるため、Loggingより前にIdentityを注入する
	r.Use(middleware.NewSessionMiddleware(deps.Sessions))
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())

	// --- CSRF対象外のルート ---
	r.Get("/health", healthz)
	if deps.Gatherer != nil {
		r.Handle("/metrics", metrics.SetupMetricsRoute(deps.Gatherer))
	}
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServerFS(static)))

	r.Group(func(r chi.Router) {
		r.Use(middleware.NewCSRFMiddleware(deps.CSRF))

		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			v.render(w, http.StatusOK, pageHome, newPageData(r, "ホーム", deps.Sessions.CurrentSession()))
		})
		r.Get("/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRF).ServeHTTP)
		r.Get("/api/session", apiHandler.Session)
		r.Get("/events", eventsHandler.Stream)
		r.Post("/logout", authHandler.Logout)

		// --- 認証画面 ---
		// ミドルウェアスタック: AuthAttemptRateLimit（POSTのみ）
		r.Group(func(r chi.Router) {
			r.Use(deps.RateLimiter.AuthAttemptMiddleware())

			r.Get("/login", authHandler.LoginForm)
			r.Post("/login", authHandler.Login)
			r.Get("/signup", authHandler.SignupForm)
			r.Post("/signup", authHandler.Signup)
		})

		// --- ログインが必要な画面 ---
		r.Group(func(r chi.Router) {
			r.Use(guard.Middleware(deps.Sessions))

			r.Get("/dashboard", dashHandler.Dashboard)
			r.Post("/dashboard/readings", dashHandler.SubmitReading)
			r.Get("/profile", dashHandler.Profile)
			r.Get(reminderRoute, reminderHandler.Form)
			r.Post(reminderRoute, reminderHandler.Submit)
		})

		// --- ログインが必要なJSON API ---
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewAPIGuardMiddleware(deps.Sessions))

			r.Get("/api/stats", apiHandler.Stats)
		})
	})

	return r, nil
}

// healthz はプロセスの死活確認に応答する。
// GET /health
func healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
