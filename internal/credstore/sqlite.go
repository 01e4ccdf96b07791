package credstore

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"

	"github.com/hitoshi/healthtrack/internal/model"
)

// sessionKey は資格情報レコードの固定キー。
const sessionKey = "session"

//go:embed migrations/*.sql
var migrationsFS embed.FS

// NewMigrator はマイグレーション実行用のmigrateインスタンスを生成する。
// pathはSQLiteデータベースファイルのパスを指定する。
func NewMigrator(path string) (*migrate.Migrate, error) {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, "sqlite3://"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}

	return m, nil
}

// RunMigrations はすべてのマイグレーションを適用する。
// すでに最新の場合はエラーなしで返る。
func RunMigrations(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}

	m, err := NewMigrator(path)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// SQLiteStore は資格情報をSQLiteの1行に保存するStore。
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite はSQLiteデータベースを開き、スキーマを最新化したSQLiteStoreを返す。
func OpenSQLite(path string) (*SQLiteStore, error) {
	if err := RunMigrations(path); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close はデータベース接続を閉じる。
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Load は保存済みの資格情報を返す。存在しない場合はnilを返す。
func (s *SQLiteStore) Load(ctx context.Context) (*model.Credential, error) {
	var (
		token        string
		identityJSON string
		savedAt      string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT token, identity_json, saved_at FROM credentials WHERE key = ?`,
		sessionKey,
	).Scan(&token, &identityJSON, &savedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load credential: %w", err)
	}

	cred := &model.Credential{Token: token}
	if identityJSON != "" && identityJSON != "null" {
		var identity model.Identity
		if err := json.Unmarshal([]byte(identityJSON), &identity); err != nil {
			return nil, fmt.Errorf("failed to parse stored identity: %w", err)
		}
		cred.Identity = &identity
	}
	if t, err := time.Parse(time.RFC3339Nano, savedAt); err == nil {
		cred.SavedAt = t
	}

	return cred, nil
}

// Save は資格情報を保存する。既存のレコードは置き換える。
func (s *SQLiteStore) Save(ctx context.Context, cred *model.Credential) error {
	identityJSON, err := json.Marshal(cred.Identity)
	if err != nil {
		return fmt.Errorf("failed to encode identity: %w", err)
	}

	savedAt := cred.SavedAt
	if savedAt.IsZero() {
		savedAt = time.Now()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO credentials (key, token, identity_json, saved_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
		   token = excluded.token,
		   identity_json = excluded.identity_json,
		   saved_at = excluded.saved_at`,
		sessionKey, cred.Token, string(identityJSON), savedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}
	return nil
}

// Clear は保存済みの資格情報を削除する。
func (s *SQLiteStore) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM credentials WHERE key = ?`,
		sessionKey,
	)
	if err != nil {
		return fmt.Errorf("failed to clear credential: %w", err)
	}
	return nil
}

// compile-time interface check
var _ Store = (*SQLiteStore)(nil)
