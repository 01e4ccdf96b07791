package model

import "fmt"

// ConnectivityMessage はサーバーから応答が得られなかった場合にユーザーへ表示するメッセージ。
// サーバーが返すバリデーションメッセージとは区別する。
const ConnectivityMessage = "サーバーに接続できませんでした。ネットワーク接続を確認して再度お試しください。"

// APIError はローカルUIのJSONエンドポイントが返す統一エラーフォーマットを表す。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, remote, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthenticated = "UNAUTHENTICATED"
	ErrCodeRemoteFailed    = "REMOTE_FAILED"
	ErrCodeInvalidInput    = "INVALID_INPUT"
)

// AuthError はログインまたはサインアップが拒否されたことを表す。
// 認証情報の誤り、アカウントの重複、サービスへの接続不可を含む。
type AuthError struct {
	StatusCode int    // 0 は応答なし
	Message    string // ユーザーに表示するメッセージ
	Err        error
}

// Error はerrorインターフェースを実装する。
func (e *AuthError) Error() string {
	return e.Message
}

// Unwrap は原因となったエラーを返す。
func (e *AuthError) Unwrap() error {
	return e.Err
}

// RemoteError は連携サービスが成功以外の応答を返したことを表す。
type RemoteError struct {
	StatusCode int // 0 は応答なし（接続失敗）
	Message    string
	Err        error
}

// Error はerrorインターフェースを実装する。
func (e *RemoteError) Error() string {
	if e.StatusCode == 0 {
		return e.Message
	}
	return fmt.Sprintf("remote returned status %d: %s", e.StatusCode, e.Message)
}

// Unwrap は原因となったエラーを返す。
func (e *RemoteError) Unwrap() error {
	return e.Err
}

// Unreachable はサーバーから応答が得られなかったかどうかを返す。
func (e *RemoteError) Unreachable() bool {
	return e.StatusCode == 0
}

// ValidationError は送信前のクライアント側入力チェックの失敗を表す。
type ValidationError struct {
	Field   string
	Message string
}

// Error はerrorインターフェースを実装する。
func (e *ValidationError) Error() string {
	return e.Message
}

// NewRequiredFieldError は必須項目の未入力エラーを生成する。
func NewRequiredFieldError(field, label string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: fmt.Sprintf("%sを入力してください。", label),
	}
}

// NewUnauthenticatedError は未ログイン状態でのAPI呼び出しエラーを生成する。
func NewUnauthenticatedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthenticated,
		Message:  "ログインが必要です。",
		Category: "auth",
		Action:   "ログインしてから再度お試しください。",
	}
}

// NewRemoteFailedError は連携サービス呼び出し失敗のエラーを生成する。
func NewRemoteFailedError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeRemoteFailed,
		Message:  message,
		Category: "remote",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewInvalidInputError は入力値エラーを生成する。
func NewInvalidInputError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidInput,
		Message:  message,
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}
