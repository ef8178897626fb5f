// Package security はアプリケーションのセキュリティ機能を提供する。
//
// NameSanitizer はユーザー入力の氏名をメールHTMLに埋め込む前にサニタイズし、
// HTMLインジェクションからメール受信者を保護する。
package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// NameSanitizer はプレーンテキストの氏名サニタイズ機能のインターフェースを定義する。
type NameSanitizer interface {
	// Sanitize は全てのHTMLタグを除去したプレーンテキストを返す。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(name string) string
}

// nameSanitizer はNameSanitizerの実装。
// bluemondayのStrictPolicyを保持し、スレッドセーフにサニタイズ処理を行う。
type nameSanitizer struct {
	policy *bluemonday.Policy
}

// NewNameSanitizer はNameSanitizerの新しいインスタンスを生成する。
// StrictPolicyは一切のタグ・属性を許可せず、テキストのみを通過させる。
func NewNameSanitizer() *nameSanitizer {
	return &nameSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize は全てのHTMLタグを除去したプレーンテキストを返す。
func (s *nameSanitizer) Sanitize(name string) string {
	return strings.TrimSpace(s.policy.Sanitize(name))
}
