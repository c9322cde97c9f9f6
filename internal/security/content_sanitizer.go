package security

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizerService は保存前のHTMLを無害化する。
// 記事本文は許可リストのタグだけを残し、タイトルやコメントはプレーンテキストにする。
type ContentSanitizerService interface {
	// Sanitize は記事本文用のポリシーでHTMLを無害化する。同じ入力には同じ出力を返す。
	Sanitize(rawHTML string) string
	// SanitizeText はすべてのタグを除去し前後の空白を落とす。
	SanitizeText(raw string) string
}

// codeLanguageClass はシンタックスハイライト用に残すclass属性。
var codeLanguageClass = regexp.MustCompile(`^language-[a-z0-9+#-]{1,32}$`)

// ContentSanitizer はbluemondayのポリシーを保持する。並行利用できる。
type ContentSanitizer struct {
	article *bluemonday.Policy
	text    *bluemonday.Policy
}

// NewContentSanitizer は記事本文用とテキスト用のポリシーを構築する。
func NewContentSanitizer() *ContentSanitizer {
	return &ContentSanitizer{
		article: articlePolicy(),
		text:    bluemonday.StrictPolicy(),
	}
}

// articlePolicy は記事本文の許可リスト。
// script/iframe/styleとon*属性は許可リストにないため除去される。
func articlePolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements(
		"p", "br", "hr",
		"h2", "h3", "h4",
		"ul", "ol", "li",
		"strong", "em", "b", "i",
		"pre", "code",
		"figure", "figcaption",
	)
	p.AllowAttrs("cite").OnElements("blockquote")
	p.AllowElements("blockquote")
	p.AllowAttrs("class").Matching(codeLanguageClass).OnElements("code")

	// リンクは絶対URLのみ。外部リンクは新しいタブで開きリファラーを送らない
	p.AllowAttrs("href", "title").OnElements("a")
	p.RequireParseableURLs(true)
	p.AllowRelativeURLs(false)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	// 画像はhttpsのみ
	p.AllowAttrs("src", "alt").OnElements("img")
	p.AllowURLSchemeWithCustomPolicy("https", func(*url.URL) bool { return true })
	return p
}

// Sanitize は記事本文のHTMLを無害化する。
func (s *ContentSanitizer) Sanitize(rawHTML string) string {
	return s.article.Sanitize(rawHTML)
}

// SanitizeText はプレーンテキストを返す。
func (s *ContentSanitizer) SanitizeText(raw string) string {
	return strings.TrimSpace(s.text.Sanitize(raw))
}
