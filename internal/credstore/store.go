// Package credstore はログイン資格情報（トークンとIdentity）の端末ローカル永続化を提供する。
// 保存されるのは常に1件のレコードのみで、レコードが存在しないことは未ログインを意味する。
package credstore

import (
	"context"

	"github.com/hitoshi/healthtrack/internal/model"
)

// Store は資格情報の永続化インターフェース。
type Store interface {
	// Load は保存済みの資格情報を返す。存在しない場合はnilを返す。
	Load(ctx context.Context) (*model.Credential, error)
	// Save は資格情報を保存する。既存のレコードは置き換える。
	Save(ctx context.Context, cred *model.Credential) error
	// Clear は保存済みの資格情報を削除する。存在しない場合もエラーにしない。
	Clear(ctx context.Context) error
}

// Watcher は外部プロセスによる資格情報の変更を通知できるStore。
type Watcher interface {
	// Watch はctxがキャンセルされるまで変更を監視し、変更のたびにonChangeを呼び出す。
	Watch(ctx context.Context, onChange func()) error
}
