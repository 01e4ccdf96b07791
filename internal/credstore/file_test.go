package credstore

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/hitoshi/healthtrack/internal/model"
)

func newTestCredential(token string) *model.Credential {
	return &model.Credential{
		Token:    token,
		Identity: &model.Identity{ID: "1", Name: "A", Email: "a@x.com"},
		SavedAt:  time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC),
	}
}

func TestFileStore_Load_MissingFileReturnsNil(t *testing.T) {
	s, err := NewFileStore(filepath.Join(t.TempDir(), "session.json"), nil)
	if err != nil {
		t.Fatalf("NewFileStore がエラーを返した: %v", err)
	}

	cred, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load がエラーを返した: %v", err)
	}
	if cred != nil {
		t.Errorf("ファイルが無い場合はnilを返すべき, got %+v", cred)
	}
}

func TestFileStore_SaveThenLoad(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(filepath.Join(t.TempDir(), "nested", "session.json"), nil)
	if err != nil {
		t.Fatalf("NewFileStore がエラーを返した: %v", err)
	}

	if err := s.Save(ctx, newTestCredential("T")); err != nil {
		t.Fatalf("Save がエラーを返した: %v", err)
	}

	cred, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load がエラーを返した: %v", err)
	}
	if !cred.Complete() {
		t.Fatalf("保存したレコードは完全であるべき: %+v", cred)
	}
	if cred.Token != "T" || cred.Identity.Name != "A" || cred.Identity.ID != "1" {
		t.Errorf("読み込んだ内容が一致しない: %+v / %+v", cred, cred.Identity)
	}
}

func TestFileStore_Save_ReplacesExistingAndRestrictsPermissions(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "session.json")
	s, _ := NewFileStore(path, nil)

	_ = s.Save(ctx, newTestCredential("first"))
	if err := s.Save(ctx, newTestCredential("second")); err != nil {
		t.Fatalf("Save がエラーを返した: %v", err)
	}

	cred, _ := s.Load(ctx)
	if cred.Token != "second" {
		t.Errorf("Token = %q, want %q", cred.Token, "second")
	}

	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("Stat がエラーを返した: %v", err)
		}
		if perm := info.Mode().Perm(); perm != 0o600 {
			t.Errorf("permission = %o, want 600", perm)
		}
	}

	// 一時ファイルが残っていないこと
	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("ディレクトリのエントリ数 = %d, want 1", len(entries))
	}
}

func TestFileStore_Clear_RemovesFileAndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "session.json")
	s, _ := NewFileStore(path, nil)

	_ = s.Save(ctx, newTestCredential("T"))

	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear がエラーを返した: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("Clear 後にファイルが残っている: %v", err)
	}
	if err := s.Clear(ctx); err != nil {
		t.Errorf("2回目の Clear はエラーにならないべき: %v", err)
	}
}

func TestFileStore_Load_CorruptFileReturnsError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	if err := os.WriteFile(path, []byte("{broken"), 0o600); err != nil {
		t.Fatal(err)
	}
	s, _ := NewFileStore(path, nil)

	if _, err := s.Load(context.Background()); err == nil {
		t.Fatal("壊れたファイルはエラーになるべき")
	}
}

func TestFileStore_Watch_NotifiesOnExternalChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	s, _ := NewFileStore(path, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan struct{}, 16)
	done := make(chan error, 1)
	go func() {
		done <- s.Watch(ctx, func() {
			select {
			case changed <- struct{}{}:
			default:
			}
		})
	}()

	// 監視開始を待たずに書き込むと取りこぼすため、通知が来るまで書き込みを繰り返す
	other, _ := NewFileStore(path, nil)
	deadline := time.After(5 * time.Second)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for notified := false; !notified; {
		select {
		case <-changed:
			notified = true
		case <-ticker.C:
			_ = other.Save(context.Background(), newTestCredential("external"))
		case <-deadline:
			t.Fatal("変更通知が届かなかった")
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch がエラーを返した: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Watch がキャンセル後に終了しなかった")
	}
}
