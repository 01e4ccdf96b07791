// Package security はアプリケーションのセキュリティ機能を提供する。
//
// MessageSanitizer はバックエンドから受け取ったエラーメッセージなどの文字列を
// 画面に表示する前にプレーンテキストへ変換する。
// bluemondayのStrictPolicyで全てのタグを除去する。
package security

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// maxMessageRunes は表示するメッセージの最大文字数。
const maxMessageRunes = 300

// MessageSanitizer はリモート由来の文字列をプレーンテキストに変換するインターフェース。
type MessageSanitizer interface {
	// Plain はタグを除去し、連続する空白を1つにまとめたテキストを返す。
	// 結果はHTMLエスケープされていない。出力時のエスケープはテンプレートに任せる。
	Plain(raw string) string
}

// messageSanitizer はMessageSanitizerの実装。
// bluemondayのポリシーはスレッドセーフに利用できる。
type messageSanitizer struct {
	policy *bluemonday.Policy
}

// NewMessageSanitizer はMessageSanitizerの新しいインスタンスを生成する。
func NewMessageSanitizer() MessageSanitizer {
	return &messageSanitizer{policy: bluemonday.StrictPolicy()}
}

// Plain はタグを除去したテキストを返す。
// maxMessageRunesを超える部分は切り詰めて末尾に「…」を付ける。
func (s *messageSanitizer) Plain(raw string) string {
	if raw == "" {
		return ""
	}

	// StrictPolicyはテキスト中の記号を実体参照にするため、テンプレートでの二重エスケープを避けて戻す
	text := html.UnescapeString(s.policy.Sanitize(raw))
	text = strings.Join(strings.Fields(text), " ")

	if utf8.RuneCountInString(text) > maxMessageRunes {
		runes := []rune(text)
		text = string(runes[:maxMessageRunes]) + "…"
	}
	return text
}
