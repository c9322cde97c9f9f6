package article

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// DefaultExcerptLength は抜粋の最大文字数。
const DefaultExcerptLength = 160

// skipTextElements は抜粋に含めない要素。
var skipTextElements = map[string]bool{
	"script":     true,
	"style":      true,
	"pre":        true,
	"code":       true,
	"figcaption": true,
}

// Excerpt はHTMLからテキストを抽出し、空白を正規化してmaxRunes文字以内の抜粋を返す。
// 切り詰めた場合は末尾に"…"を付与する。
func Excerpt(rawHTML string, maxRunes int) string {
	if maxRunes <= 0 {
		maxRunes = DefaultExcerptLength
	}

	z := html.NewTokenizer(strings.NewReader(rawHTML))
	var b strings.Builder
	skipDepth := 0

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			// io.EOF以外のエラーでもそれまでに得たテキストで抜粋を作る
			return truncateRunes(strings.Join(strings.Fields(b.String()), " "), maxRunes)
		case html.StartTagToken:
			name, _ := z.TagName()
			if skipTextElements[string(name)] {
				skipDepth++
			}
			b.WriteByte(' ')
		case html.EndTagToken:
			name, _ := z.TagName()
			if skipTextElements[string(name)] && skipDepth > 0 {
				skipDepth--
			}
			b.WriteByte(' ')
		case html.SelfClosingTagToken:
			b.WriteByte(' ')
		case html.TextToken:
			if skipDepth == 0 {
				b.Write(z.Text())
			}
		}
	}
}

func truncateRunes(s string, maxRunes int) string {
	if utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:maxRunes])) + "…"
}
