package importer

import (
	"bytes"
	"mime"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// feedLink はHTMLのheadで告知されたフィードへのリンク。
type feedLink struct {
	url  string
	atom bool
}

// isHTMLResponse はContent-Typeがhtmlを示すかを返す。
func isHTMLResponse(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.TrimSpace(strings.Split(contentType, ";")[0])
	}
	return strings.Contains(strings.ToLower(mediaType), "html")
}

// looksLikeHTML はContent-Typeがない応答の先頭がHTML文書かを判定する。
func looksLikeHTML(body []byte) bool {
	head := body
	if len(head) > 512 {
		head = head[:512]
	}
	lower := bytes.ToLower(bytes.TrimSpace(head))
	return bytes.HasPrefix(lower, []byte("<!doctype html")) || bytes.HasPrefix(lower, []byte("<html"))
}

// discoverFeedURL はHTMLページのheadからフィードURLを探す。
// 相対URLはpageURLを基準に解決する。見つからない場合は空文字列を返す。
func discoverFeedURL(body []byte, pageURL string) string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	return selectFeedLink(parseFeedLinks(body, base), base.Hostname())
}

// parseFeedLinks はrel="alternate"のRSS/Atomリンクを出現順に返す。
// bodyに入った時点で解析を終える。
func parseFeedLinks(body []byte, base *url.URL) []feedLink {
	var links []feedLink
	tokenizer := html.NewTokenizer(bytes.NewReader(body))

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return links

		case html.EndTagToken:
			if tn, _ := tokenizer.TagName(); string(tn) == "head" {
				return links
			}

		case html.StartTagToken, html.SelfClosingTagToken:
			tn, hasAttr := tokenizer.TagName()
			switch string(tn) {
			case "body":
				return links
			case "link":
			default:
				continue
			}
			if !hasAttr {
				continue
			}

			var rel, linkType, href string
			for more := true; more; {
				var key, val []byte
				key, val, more = tokenizer.TagAttr()
				switch strings.ToLower(string(key)) {
				case "rel":
					rel = strings.ToLower(string(val))
				case "type":
					linkType = strings.ToLower(string(val))
				case "href":
					href = string(val)
				}
			}

			if rel != "alternate" || href == "" {
				continue
			}
			if linkType != "application/rss+xml" && linkType != "application/atom+xml" {
				continue
			}
			ref, err := url.Parse(href)
			if err != nil {
				continue
			}
			links = append(links, feedLink{
				url:  base.ResolveReference(ref).String(),
				atom: linkType == "application/atom+xml",
			})
		}
	}
}

// selectFeedLink は同一ホストのリンクを優先し、次にAtomを優先する。
// 同点の場合は先に出現したリンクを選ぶ。
func selectFeedLink(links []feedLink, host string) string {
	best, bestScore := "", -1
	for _, l := range links {
		score := 0
		if u, err := url.Parse(l.url); err == nil && strings.EqualFold(u.Hostname(), host) {
			score += 100
		}
		if l.atom {
			score += 10
		}
		if score > bestScore {
			best, bestScore = l.url, score
		}
	}
	return best
}
