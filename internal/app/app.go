package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/healthtrack/internal/apiclient"
	"github.com/hitoshi/healthtrack/internal/auth"
	"github.com/hitoshi/healthtrack/internal/config"
	"github.com/hitoshi/healthtrack/internal/credstore"
	"github.com/hitoshi/healthtrack/internal/handler"
	"github.com/hitoshi/healthtrack/internal/health"
	"github.com/hitoshi/healthtrack/internal/logger"
	"github.com/hitoshi/healthtrack/internal/metrics"
	"github.com/hitoshi/healthtrack/internal/middleware"
	"github.com/hitoshi/healthtrack/internal/reminder"
	"github.com/hitoshi/healthtrack/internal/security"
	"github.com/hitoshi/healthtrack/internal/session"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルを反映する
	logger.SetLevel(cfg.LogLevel)

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("api_url", cfg.APIBaseURL),
		slog.String("credential_store", cfg.CredentialStore),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandStatus:
		return runStatus(ctx, w, cfg)
	case CommandLogout:
		return runLogout(ctx, cfg)
	default:
		return runServe(ctx, cfg)
	}
}

// runServe はローカルUIサーバーを起動する。
// ctxがキャンセルされる（SIGINTまたはSIGTERMを受信する）とグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	srv, err := newServer(ctx, cfg)
	if err != nil {
		return err
	}
	defer srv.close()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", slog.String("addr", srv.http.Addr))
		if err := srv.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// server は起動に必要な依存関係を組み立てた結果。
type server struct {
	http     *http.Server
	sessions *session.Store
	client   *apiclient.Client
	close    func()
}

// newServer は全依存関係をワイヤリングし、起動前のHTTPサーバーを返す。
// 資格情報ファイルの監視はctxがキャンセルされるまで続く。
func newServer(ctx context.Context, cfg *config.Config) (*server, error) {
	// 1. 資格情報ストア
	creds, closeCreds, err := openCredentialStore(cfg)
	if err != nil {
		return nil, err
	}

	// 2. メトリクス
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(reg)

	// 3. バックエンドクライアントとセッションストア
	client, err := apiclient.New(apiclient.Config{
		BaseURL: cfg.APIBaseURL,
		Timeout: cfg.HTTPTimeout,
	}, slog.Default(), collector)
	if err != nil {
		closeCreds()
		return nil, fmt.Errorf("failed to create API client: %w", err)
	}

	sessions := session.NewStore(auth.NewService(client), creds, slog.Default(), collector)
	client.SetTokenSource(sessions)
	unsubscribe := sessions.Subscribe(func(snap session.Snapshot) {
		if !snap.Authenticated() {
			client.ResetCookies()
		}
	})

	if err := sessions.Restore(ctx); err != nil {
		slog.Warn("failed to restore session, starting logged out", slog.String("error", err.Error()))
	}

	// 4. 他プロセスによるログイン・ログアウトの監視
	watchCtx, stopWatch := context.WithCancel(ctx)
	if watcher, ok := creds.(credstore.Watcher); ok && cfg.CredentialWatch {
		go watchCredentials(watchCtx, watcher, sessions)
	}

	// 5. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(middleware.NewAuthRateLimiterConfig(cfg.RateLimitAuth))

	router, err := handler.NewRouter(&handler.RouterDeps{
		Logger:      slog.Default(),
		RateLimiter: rateLimiter,
		CSRF:        middleware.CSRFConfig{CookieSecure: cfg.CookieSecure},

		Sessions:        sessions,
		HealthService:   health.NewService(client),
		ReminderService: reminder.NewService(client, time.Local),

		Sanitizer: security.NewMessageSanitizer(),
		Gatherer:  reg,
	})
	if err != nil {
		stopWatch()
		unsubscribe()
		rateLimiter.Stop()
		closeCreds()
		return nil, fmt.Errorf("failed to build router: %w", err)
	}

	return &server{
		http: &http.Server{
			Addr:         ":" + cfg.ServerPort,
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		sessions: sessions,
		client:   client,
		close: func() {
			stopWatch()
			unsubscribe()
			rateLimiter.Stop()
			closeCreds()
		},
	}, nil
}

// watchCredentials は資格情報の変更を監視し、変更のたびにセッションを再同期する。
func watchCredentials(ctx context.Context, watcher credstore.Watcher, sessions *session.Store) {
	err := watcher.Watch(ctx, func() {
		if err := sessions.Resync(ctx); err != nil {
			slog.Warn("failed to resync session", slog.String("error", err.Error()))
		}
	})
	if err != nil {
		slog.Error("credential watcher stopped", slog.String("error", err.Error()))
	}
}

// openCredentialStore は設定された方式の資格情報ストアを開く。
// 返り値の関数でストアを閉じる。
func openCredentialStore(cfg *config.Config) (credstore.Store, func(), error) {
	switch cfg.CredentialStore {
	case config.CredentialStoreSQLite:
		s, err := credstore.OpenSQLite(cfg.CredentialPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open credential database: %w", err)
		}
		return s, func() {
			if err := s.Close(); err != nil {
				slog.Warn("failed to close credential database", slog.String("error", err.Error()))
			}
		}, nil
	default:
		s, err := credstore.NewFileStore(cfg.CredentialPath, slog.Default())
		if err != nil {
			return nil, nil, err
		}
		return s, func() {}, nil
	}
}

// runMigrate はSQLite資格情報ストアのマイグレーションを実行する。
// ファイル方式の場合は何もしない。
func runMigrate(cfg *config.Config) error {
	if cfg.CredentialStore != config.CredentialStoreSQLite {
		slog.Info("credential store does not need migrations",
			slog.String("credential_store", cfg.CredentialStore),
		)
		return nil
	}

	slog.Info("running credential store migrations", slog.String("path", cfg.CredentialPath))

	if err := credstore.RunMigrations(cfg.CredentialPath); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("credential store migrations completed successfully")
	return nil
}

// runStatus は保存済みのログイン状態をwに出力する。
func runStatus(ctx context.Context, w io.Writer, cfg *config.Config) error {
	creds, closeCreds, err := openCredentialStore(cfg)
	if err != nil {
		return err
	}
	defer closeCreds()

	cred, err := creds.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load credential: %w", err)
	}
	if !cred.Complete() {
		_, err = fmt.Fprintln(w, "status: anonymous")
		return err
	}

	_, err = fmt.Fprintf(w, "status: authenticated\nuser: %s <%s> (id %s)\n",
		cred.Identity.Name, cred.Identity.Email, cred.Identity.ID)
	return err
}

// runLogout は保存済みの資格情報を削除する。
func runLogout(ctx context.Context, cfg *config.Config) error {
	creds, closeCreds, err := openCredentialStore(cfg)
	if err != nil {
		return err
	}
	defer closeCreds()

	if err := creds.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear credential: %w", err)
	}

	slog.Info("credential cleared")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}
