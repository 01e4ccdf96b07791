// Package model はドメインモデルを定義する。
package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Identity は認証サービスから取得したログインユーザーを表す。
// セッション中は不変として扱い、再ログイン時は丸ごと置き換える。
type Identity struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// UnmarshalJSON は認証サービスのユーザー表現を読み取る。
// idは数値・文字列のどちらも受け付け、"_id" キーにも対応する。
func (i *Identity) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID    json.RawMessage `json:"id"`
		OID   json.RawMessage `json:"_id"`
		Name  string          `json:"name"`
		Email string          `json:"email"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	idRaw := raw.ID
	if len(idRaw) == 0 || bytes.Equal(idRaw, []byte("null")) {
		idRaw = raw.OID
	}

	id, err := decodeFlexibleID(idRaw)
	if err != nil {
		return fmt.Errorf("invalid identity id: %w", err)
	}

	*i = Identity{ID: id, Name: raw.Name, Email: raw.Email}
	return nil
}

// decodeFlexibleID はJSONの数値または文字列のIDを文字列に変換する。
func decodeFlexibleID(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", err
	}
	return n.String(), nil
}

// IsZero はIdentityが空かどうかを返す。
func (i Identity) IsZero() bool {
	return strings.TrimSpace(i.ID) == "" && strings.TrimSpace(i.Email) == "" && strings.TrimSpace(i.Name) == ""
}

// Credential は端末ローカルに永続化される唯一のレコード。
// トークンとIdentityは常に組で保存する。
type Credential struct {
	Token    string    `json:"token"`
	Identity *Identity `json:"identity"`
	SavedAt  time.Time `json:"saved_at"`
}

// Complete はトークンとIdentityの両方が揃っているかを返す。
func (c *Credential) Complete() bool {
	return c != nil && c.Token != "" && c.Identity != nil && !c.Identity.IsZero()
}
