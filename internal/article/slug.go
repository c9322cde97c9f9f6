package article

import (
	"strings"

	"github.com/google/uuid"
)

// maxSlugBaseLength はスラッグのうちタイトル由来部分の最大長。
const maxSlugBaseLength = 60

// Slugify は英数字以外をハイフンに置き換えた小文字のスラッグを返す。
// ASCII英数字を含まない入力では空文字列を返す。
func Slugify(s string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
		if b.Len() >= maxSlugBaseLength {
			break
		}
	}
	return strings.Trim(b.String(), "-")
}

// NewArticleSlug はタイトルから一意な記事スラッグを生成する。
// 同名タイトルの衝突を避けるため、UUID由来の短いサフィックスを付与する。
func NewArticleSlug(title string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	base := Slugify(title)
	if base == "" {
		return "article-" + suffix
	}
	return base + "-" + suffix
}
