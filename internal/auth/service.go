// Package auth はリモートの認証サービス（ログイン・サインアップ）の呼び出しを提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hitoshi/healthtrack/internal/model"
)

const (
	loginPath  = "/api/auth/login"
	signupPath = "/api/auth/signup"
)

// Requester は認証サービスが必要とするHTTPクライアントのインターフェース。
// apiclient.Clientの部分集合として定義する。
type Requester interface {
	Post(ctx context.Context, path string, body, out any) error
}

// LoginResult はログイン成功時に認証サービスから受け取る内容。
type LoginResult struct {
	Identity model.Identity
	Token    string
}

// loginResponse はログインAPIのレスポンス。
// identityキーを優先し、無ければuserキーを使う。
type loginResponse struct {
	Identity *model.Identity `json:"identity"`
	User     *model.Identity `json:"user"`
	Token    string          `json:"token"`
}

// Service は認証サービスのクライアント。
type Service struct {
	api Requester
}

// NewService はServiceを生成する。
func NewService(api Requester) *Service {
	return &Service{api: api}
}

// Login はメールアドレスとパスワードで認証し、Identityとトークンを返す。
// 拒否された場合は*model.AuthErrorを返す。
// トークンまたはIdentityが欠けた成功応答も拒否として扱う。
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	req := map[string]string{
		"email":    strings.TrimSpace(email),
		"password": password,
	}

	var resp loginResponse
	if err := s.api.Post(ctx, loginPath, req, &resp); err != nil {
		return nil, toAuthError(ctx, err)
	}

	identity := resp.Identity
	if identity == nil || identity.IsZero() {
		identity = resp.User
	}
	if resp.Token == "" || identity == nil || identity.IsZero() {
		return nil, &model.AuthError{
			Message: model.ConnectivityMessage,
			Err:     fmt.Errorf("login response is missing token or identity"),
		}
	}

	return &LoginResult{Identity: *identity, Token: resp.Token}, nil
}

// Signup はアカウントを登録する。ログイン状態は確立しない。
// 拒否された場合（メールアドレスの重複など）は*model.AuthErrorを返す。
func (s *Service) Signup(ctx context.Context, name, email, password string) error {
	req := map[string]string{
		"name":     strings.TrimSpace(name),
		"email":    strings.TrimSpace(email),
		"password": password,
	}

	if err := s.api.Post(ctx, signupPath, req, nil); err != nil {
		return toAuthError(ctx, err)
	}
	return nil
}

// toAuthError は呼び出しエラーを*model.AuthErrorに変換する。
// 呼び出し元によるキャンセルはそのまま返す。
func toAuthError(ctx context.Context, err error) error {
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return err
	}

	var re *model.RemoteError
	if errors.As(err, &re) {
		return &model.AuthError{StatusCode: re.StatusCode, Message: re.Message, Err: err}
	}
	return &model.AuthError{Message: model.ConnectivityMessage, Err: err}
}
