package config

import (
	"fmt"
	"net/url"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// 資格情報の保存方式
const (
	CredentialStoreFile   = "file"
	CredentialStoreSQLite = "sqlite"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Backend
	APIBaseURL  string
	HTTPTimeout time.Duration

	// Credential
	CredentialStore string
	CredentialPath  string
	CredentialWatch bool

	// Rate Limit
	RateLimitAuth int // req/min/client

	// Logging
	LogLevel string

	// Server
	ServerPort   string
	CookieSecure bool
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envがあれば先に読み込む（既存の環境変数は上書きしない）。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	var missing []string

	cfg.APIBaseURL = strings.TrimRight(os.Getenv("API_URL"), "/")
	if cfg.APIBaseURL == "" {
		missing = append(missing, "API_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	u, err := url.Parse(cfg.APIBaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("API_URL must be an absolute http(s) URL: %q", cfg.APIBaseURL)
	}

	cfg.HTTPTimeout = getEnvDuration("HTTP_TIMEOUT", 15*time.Second)
	cfg.CredentialStore = strings.ToLower(getEnvString("CREDENTIAL_STORE", CredentialStoreFile))
	switch cfg.CredentialStore {
	case CredentialStoreFile, CredentialStoreSQLite:
	default:
		return nil, fmt.Errorf("CREDENTIAL_STORE must be %q or %q: %q",
			CredentialStoreFile, CredentialStoreSQLite, cfg.CredentialStore)
	}
	cfg.CredentialPath = getEnvString("CREDENTIAL_PATH", DefaultCredentialPath(cfg.CredentialStore))
	cfg.CredentialWatch = getEnvBool("CREDENTIAL_WATCH", true)
	cfg.RateLimitAuth = getEnvInt("RATE_LIMIT_AUTH", 10)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieSecure = getEnvBool("COOKIE_SECURE", false)

	return cfg, nil
}

// DefaultCredentialPath は資格情報の既定の保存先を返す。
// ~/.config/healthtrack 配下に置き、ホームディレクトリが取得できない場合はカレントディレクトリを使う。
func DefaultCredentialPath(store string) string {
	name := "session.json"
	if store == CredentialStoreSQLite {
		name = "session.db"
	}

	u, err := user.Current()
	if err != nil || u.HomeDir == "" {
		return filepath.Join(".", ".healthtrack", name)
	}
	return filepath.Join(u.HomeDir, ".config", "healthtrack", name)
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
