// Package security はアプリケーションのセキュリティ機能を提供する。
//
// NameSanitizer は外部IdPから受け取った表示名をプレーンテキストに正規化し、
// 保存・トークンへの埋め込み前にHTMLやスクリプトを取り除く。
package security

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// MaxNameLength は保存する表示名の最大文字数（usersテーブルのカラム長）。
const MaxNameLength = 255

// NameSanitizer は表示名のサニタイズ機能のインターフェースを定義する。
type NameSanitizer interface {
	// Sanitize は表示名からタグを除去し、空白を正規化したプレーンテキストを返す。
	// 空文字列の入力には空文字列を返す。同一入力に対して常に同一出力を返す。
	Sanitize(name string) string
}

// nameSanitizer はbluemondayのStrictPolicyで全タグを除去する。
type nameSanitizer struct {
	policy *bluemonday.Policy
}

// NewNameSanitizer はNameSanitizerの新しいインスタンスを生成する。
func NewNameSanitizer() *nameSanitizer {
	return &nameSanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize は表示名をプレーンテキストに変換する。
func (s *nameSanitizer) Sanitize(name string) string {
	if name == "" {
		return ""
	}

	// StrictPolicyは & などをエスケープするため、プレーンテキストに戻す
	cleaned := html.UnescapeString(s.policy.Sanitize(name))
	cleaned = strings.Join(strings.Fields(cleaned), " ")

	if utf8.RuneCountInString(cleaned) > MaxNameLength {
		cleaned = string([]rune(cleaned)[:MaxNameLength])
	}
	return cleaned
}
