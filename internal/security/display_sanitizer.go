// Package security はアプリケーションのセキュリティ機能を提供する。
//
// DisplaySanitizerService はMiniAuthから受け取った文字列（アプリケーション名、
// 説明文、ユーザー名など）を画面表示前にサニタイズする。上流は信頼境界の
// 内側だが、アプリケーション名などは第三者が登録した値のため、
// タグの混入を前提に扱う。
package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// DisplaySanitizerService は表示用文字列のサニタイズ機能のインターフェースを定義する。
type DisplaySanitizerService interface {
	// SanitizeText は文字列からすべてのHTMLタグを除去して返す。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	SanitizeText(raw string) string

	// SanitizeURL はhttp/httpsのURLのみを通し、それ以外は空文字列を返す。
	// アプリケーションのWebサイトリンクなど、href属性に使う値に適用する。
	SanitizeURL(raw string) string
}

// displaySanitizer はDisplaySanitizerServiceの実装。
// bluemondayのStrictPolicyを保持し、スレッドセーフにサニタイズ処理を行う。
type displaySanitizer struct {
	policy *bluemonday.Policy
}

// NewDisplaySanitizer はDisplaySanitizerServiceの新しいインスタンスを生成する。
// StrictPolicyはすべてのタグと属性を除去し、テキストのみを残す。
func NewDisplaySanitizer() *displaySanitizer {
	return &displaySanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// SanitizeText は文字列からすべてのHTMLタグを除去して返す。
func (s *displaySanitizer) SanitizeText(raw string) string {
	return s.policy.Sanitize(raw)
}

// SanitizeURL はhttp/httpsのURLのみを通し、それ以外は空文字列を返す。
func (s *displaySanitizer) SanitizeURL(raw string) string {
	trimmed := strings.TrimSpace(raw)
	lower := strings.ToLower(trimmed)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return trimmed
	}
	return ""
}
