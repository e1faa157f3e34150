// Package security はアプリケーションのセキュリティ機能を提供する。
//
// 利用者が入力する自由記述（氏名、備考、特記事項など）と、
// 外部から取り込むイベント説明文を保存前に無害化する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer はプレーンテキスト入力の無害化を行う。
type TextSanitizer interface {
	// Sanitize はHTMLタグを全て除去し、前後の空白を取り除いたテキストを返す。
	// 実体参照は元の文字に戻すため "O'Brien" はそのまま保存される。
	Sanitize(input string) string
}

// HTMLSanitizer は限定的なHTMLを許可する無害化を行う。
type HTMLSanitizer interface {
	// SanitizeHTML は許可リスト外のタグと属性を除去したHTMLを返す。
	SanitizeHTML(rawHTML string) string
}

// textSanitizer はbluemondayのStrictPolicyによるTextSanitizer実装。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize はタグを除去したプレーンテキストを返す。
func (s *textSanitizer) Sanitize(input string) string {
	if input == "" {
		return ""
	}
	cleaned := s.policy.Sanitize(input)
	return strings.TrimSpace(html.UnescapeString(cleaned))
}

// descriptionSanitizer はイベント説明文用のHTMLSanitizer実装。
type descriptionSanitizer struct {
	policy *bluemonday.Policy
}

// NewDescriptionSanitizer はイベント説明文用のHTMLSanitizerを生成する。
// ポリシーの内容:
//   - 許可タグ: p, br, ul, ol, li, strong, em, a
//   - aタグ: httpsの絶対URLのみ、target="_blank" と rel="noopener noreferrer" を自動付与
//   - script, iframe, style, img および全てのon*イベント属性は除去
func NewDescriptionSanitizer() *descriptionSanitizer {
	p := bluemonday.NewPolicy()

	p.AllowElements("p", "br", "ul", "ol", "li", "strong", "em")

	p.AllowAttrs("href").OnElements("a")
	p.AllowURLSchemes("https")
	p.AllowRelativeURLs(false)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	return &descriptionSanitizer{policy: p}
}

// SanitizeHTML は説明文HTMLを無害化する。
func (s *descriptionSanitizer) SanitizeHTML(rawHTML string) string {
	return s.policy.Sanitize(rawHTML)
}

// compile-time interface check
var (
	_ TextSanitizer = (*textSanitizer)(nil)
	_ HTMLSanitizer = (*descriptionSanitizer)(nil)
)
