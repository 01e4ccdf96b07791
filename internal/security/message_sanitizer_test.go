package security

import (
	"strings"
	"testing"
	"unicode/utf8"
)

// TestPlain_StripsTags はタグが除去されテキストだけが残ることを検証する。
func TestPlain_StripsTags(t *testing.T) {
	sanitizer := NewMessageSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"空文字列", "", ""},
		{"プレーンテキストはそのまま", "bad credentials", "bad credentials"},
		{"強調タグを除去", "<b>bad</b> credentials", "bad credentials"},
		{"scriptは中身ごと除去", `oops<script>alert("x")</script>`, "oops"},
		{"HTMLページ全体", "<html><body><h1>502 Bad Gateway</h1></body></html>", "502 Bad Gateway"},
		{"記号は実体参照にしない", `Tom & Jerry's "quote"`, `Tom & Jerry's "quote"`},
		{"空白をまとめる", "  User \n already\texists  ", "User already exists"},
		{"イベント属性を除去", `<img src=x onerror="alert(1)">画像`, "画像"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizer.Plain(tt.input)
			if got != tt.want {
				t.Errorf("Plain(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// TestPlain_Truncates は長いメッセージが切り詰められることを検証する。
func TestPlain_Truncates(t *testing.T) {
	sanitizer := NewMessageSanitizer()

	got := sanitizer.Plain(strings.Repeat("あ", maxMessageRunes+50))
	if n := utf8.RuneCountInString(got); n != maxMessageRunes+1 {
		t.Errorf("文字数 = %d, want %d", n, maxMessageRunes+1)
	}
	if !strings.HasSuffix(got, "…") {
		t.Error("切り詰めた場合は末尾に「…」を付ける")
	}
}

// TestPlain_Idempotent は同一入力に対して常に同一出力を返すことを検証する。
func TestPlain_Idempotent(t *testing.T) {
	sanitizer := NewMessageSanitizer()

	input := "<p>Invalid <em>time</em> format</p>"
	first := sanitizer.Plain(input)
	if second := sanitizer.Plain(first); second != first {
		t.Errorf("2回目の結果が異なる: %q != %q", second, first)
	}
}
