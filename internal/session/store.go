// Package session はプロセス内で唯一のログインセッションを保持するストアを提供する。
//
// Storeは「誰がログインしているか」の唯一の情報源であり、
// ログイン・サインアップ・ログアウトの操作と、状態遷移の購読を提供する。
// パッケージレベルの状態は持たず、生成したStoreを必要なコンポーネントに注入して使う。
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/healthtrack/internal/auth"
	"github.com/hitoshi/healthtrack/internal/credstore"
	"github.com/hitoshi/healthtrack/internal/metrics"
	"github.com/hitoshi/healthtrack/internal/model"
)

// ErrSuperseded は、応答が届いた時点で結果が古くなっていたログインを表す。
// 後から開始したログインが先に反映された場合、応答待ちの間にログアウトした場合、
// 呼び出し元のコンテキストが終了していた場合に返す。セッションは変更しない。
var ErrSuperseded = errors.New("login superseded")

// State はセッションの状態。
type State int

const (
	// Anonymous は未ログイン状態（Identityもトークンもない）。
	Anonymous State = iota
	// Authenticated はログイン済み状態（Identityとトークンの両方がある）。
	Authenticated
)

// String は状態名を返す。
func (s State) String() string {
	switch s {
	case Authenticated:
		return "authenticated"
	default:
		return "anonymous"
	}
}

// Snapshot はある時点のセッションの読み取り専用コピー。
type Snapshot struct {
	State    State
	Identity *model.Identity
	Token    string
}

// Authenticated はログイン済みかどうかを返す。
func (s Snapshot) Authenticated() bool {
	return s.State == Authenticated
}

// Authenticator は認証サービスのインターフェース。
type Authenticator interface {
	Login(ctx context.Context, email, password string) (*auth.LoginResult, error)
	Signup(ctx context.Context, name, email, password string) error
}

// Store はセッションを保持する。並行に呼び出してよい。
type Store struct {
	// persistMu は資格情報ストアへの入出力と通番の進行を直列化する。
	// 取得順はpersistMu、muの順。muを保持したまま入出力はしない。
	persistMu sync.Mutex

	mu       sync.RWMutex
	identity *model.Identity
	token    string
	// issued は最後に払い出したログインの通番。
	issued uint64
	// watermark は最後に反映したログインまたはログアウトの通番。
	// これ以下の通番のログイン応答は破棄する。persistMuとmuの両方を保持して更新する。
	watermark uint64

	subMu   sync.Mutex
	subs    map[int]func(Snapshot)
	nextSub int

	authn   Authenticator
	creds   credstore.Store
	logger  *slog.Logger
	metrics metrics.MetricsCollector
	now     func() time.Time
}

// NewStore はAnonymous状態のStoreを生成する。
// 永続化済みのセッションを読み込むにはRestoreを呼ぶ。
func NewStore(authn Authenticator, creds credstore.Store, logger *slog.Logger, collector metrics.MetricsCollector) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Store{
		subs:    make(map[int]func(Snapshot)),
		authn:   authn,
		creds:   creds,
		logger:  logger,
		metrics: collector,
		now:     time.Now,
	}
}

// CurrentSession は現在のセッションのスナップショットを返す。
func (s *Store) CurrentSession() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Token は現在のトークンを返す。未ログインなら空文字列。
// apiclient.TokenSourceを実装する。
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Login は認証サービスにログインし、成功すればセッションを置き換えて永続化する。
// 拒否された場合は*model.AuthErrorを返し、セッションと永続化済みレコードは変更しない。
// 応答が古くなっていた場合はErrSupersededを返す。
func (s *Store) Login(ctx context.Context, email, password string) error {
	s.mu.Lock()
	s.issued++
	seq := s.issued
	s.mu.Unlock()

	res, err := s.authn.Login(ctx, email, password)
	if err != nil {
		var authErr *model.AuthError
		if errors.As(err, &authErr) {
			s.metrics.RecordAuthFailure("login")
			s.logger.Info("login rejected",
				slog.Int("http_status", authErr.StatusCode),
				slog.String("message", authErr.Message),
			)
		}
		return err
	}

	s.persistMu.Lock()
	s.mu.RLock()
	watermark := s.watermark
	s.mu.RUnlock()
	if ctxErr := ctx.Err(); ctxErr != nil {
		s.persistMu.Unlock()
		return fmt.Errorf("%w: %w", ErrSuperseded, ctxErr)
	}
	if seq <= watermark {
		s.persistMu.Unlock()
		s.logger.Info("discarded stale login response",
			slog.Uint64("seq", seq),
			slog.Uint64("watermark", watermark),
		)
		return ErrSuperseded
	}

	identity := res.Identity
	cred := &model.Credential{Token: res.Token, Identity: &identity, SavedAt: s.now()}
	if err := s.creds.Save(ctx, cred); err != nil {
		s.persistMu.Unlock()
		return fmt.Errorf("failed to persist credential: %w", err)
	}

	s.mu.Lock()
	s.identity = &identity
	s.token = res.Token
	s.watermark = seq
	s.mu.Unlock()
	s.persistMu.Unlock()

	s.metrics.RecordSessionTransition(Authenticated.String())
	s.logger.Info("logged in", slog.String("user_id", identity.ID))
	s.notify()
	return nil
}

// Signup はアカウントを登録する。セッションは変更しない。
// ログイン状態にするには続けてLoginを呼ぶ必要がある。
func (s *Store) Signup(ctx context.Context, name, email, password string) error {
	if err := s.authn.Signup(ctx, name, email, password); err != nil {
		var authErr *model.AuthError
		if errors.As(err, &authErr) {
			s.metrics.RecordAuthFailure("signup")
		}
		return err
	}
	return nil
}

// Logout はセッションを破棄し、永続化済みレコードを削除する。常に成功する。
// 応答待ちのログインは以後すべて破棄される。
func (s *Store) Logout(ctx context.Context) {
	s.endSession(ctx, nil)
}

// ExpireToken は現在のトークンがtokenと一致する場合に限りログアウトし、trueを返す。
// バックエンドがトークンを拒否したときに使う。拒否されたリクエストの送信後に
// 別のログインが反映されていれば、新しいセッションは破棄しない。
func (s *Store) ExpireToken(ctx context.Context, token string) bool {
	if token == "" {
		return false
	}
	return s.endSession(ctx, func(current string) bool { return current == token })
}

// endSession はmatchesが現在のトークンを受け入れた場合（nilなら常に）セッションを破棄する。
// 永続化済みレコードの削除はs.muを解放してから行う。
func (s *Store) endSession(ctx context.Context, matches func(token string) bool) bool {
	s.persistMu.Lock()
	s.mu.Lock()
	if matches != nil && !matches(s.token) {
		s.mu.Unlock()
		s.persistMu.Unlock()
		return false
	}
	s.issued++
	s.watermark = s.issued
	wasAuthenticated := s.token != ""
	s.identity = nil
	s.token = ""
	s.mu.Unlock()

	if err := s.creds.Clear(ctx); err != nil {
		s.logger.Warn("failed to clear persisted credential", slog.String("error", err.Error()))
	}
	s.persistMu.Unlock()

	if wasAuthenticated {
		s.metrics.RecordSessionTransition(Anonymous.String())
		s.logger.Info("logged out")
	}
	s.notify()
	return true
}

// Restore は起動時に永続化済みレコードからセッションを復元する。
// トークンとIdentityの片方しかないレコードは破損として削除し、Anonymousのまま起動する。
func (s *Store) Restore(ctx context.Context) error {
	s.persistMu.Lock()
	cred, err := s.creds.Load(ctx)
	if err != nil {
		s.persistMu.Unlock()
		return fmt.Errorf("failed to load persisted credential: %w", err)
	}
	if cred == nil {
		s.persistMu.Unlock()
		return nil
	}
	if !cred.Complete() {
		s.logger.Warn("discarding incomplete persisted credential")
		err := s.creds.Clear(ctx)
		s.persistMu.Unlock()
		if err != nil {
			return fmt.Errorf("failed to clear incomplete credential: %w", err)
		}
		return nil
	}

	s.mu.Lock()
	changed := s.adoptLocked(cred)
	s.mu.Unlock()
	s.persistMu.Unlock()

	if changed {
		s.metrics.RecordSessionTransition(Authenticated.String())
		s.logger.Info("session restored", slog.String("user_id", cred.Identity.ID))
		s.notify()
	}
	return nil
}

// Resync は永続化済みレコードを読み直し、別プロセスによるログイン・ログアウトを反映する。
// 内容が現在のセッションと同じであれば何もしない。
func (s *Store) Resync(ctx context.Context) error {
	s.persistMu.Lock()
	cred, err := s.creds.Load(ctx)
	if err != nil {
		s.persistMu.Unlock()
		return fmt.Errorf("failed to load persisted credential: %w", err)
	}

	var to State
	var changed bool
	s.mu.Lock()
	if cred.Complete() {
		to = Authenticated
		changed = s.adoptLocked(cred)
	} else if s.token != "" {
		to = Anonymous
		changed = true
		s.issued++
		s.watermark = s.issued
		s.identity = nil
		s.token = ""
	}
	s.mu.Unlock()
	s.persistMu.Unlock()

	if changed {
		s.metrics.RecordSessionTransition(to.String())
		s.logger.Info("session changed externally", slog.String("state", to.String()))
		s.notify()
	}
	return nil
}

// Subscribe はセッションの状態遷移のたびに呼ばれる関数を登録し、登録解除関数を返す。
// fnはロックの外で同期的に呼ばれ、呼び出し時点の最新のスナップショットを受け取る。
func (s *Store) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
		})
	}
}

// adoptLocked は永続化済みレコードをセッションに反映する。
// 呼び出し元はs.muを保持していること。変更があればtrueを返す。
func (s *Store) adoptLocked(cred *model.Credential) bool {
	if s.token == cred.Token && s.identity != nil && *s.identity == *cred.Identity {
		return false
	}
	identity := *cred.Identity
	s.identity = &identity
	s.token = cred.Token
	s.issued++
	s.watermark = s.issued
	return true
}

func (s *Store) snapshotLocked() Snapshot {
	if s.token == "" || s.identity == nil {
		return Snapshot{State: Anonymous}
	}
	identity := *s.identity
	return Snapshot{State: Authenticated, Identity: &identity, Token: s.token}
}

// notify は購読者にセッションの変更を通知する。
func (s *Store) notify() {
	s.subMu.Lock()
	fns := make([]func(Snapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(s.CurrentSession())
	}
}
