// Package security はアプリケーションのセキュリティ機能を提供する。
//
// 記事本文は管理者が入力したHTMLをそのまま保存しているため、
// 表示直前にbluemondayの許可リストポリシーで無害化する。
package security

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizer は記事HTMLの無害化を行う。
type ContentSanitizer interface {
	// Sanitize は許可されたタグと属性だけを残したHTMLを返す。
	// 同一入力に対して常に同一出力を返す。
	Sanitize(rawHTML string) string

	// SafeImageURL はサムネイル等に使ってよい画像URLならそのまま、そうでなければ空文字列を返す。
	SafeImageURL(raw string) string
}

// imageSrcPattern はimgのsrcとして許可する形式（httpsの絶対URLまたはサイト内パス）。
var imageSrcPattern = regexp.MustCompile(`^(https://[^\s]+|/[^/\s][^\s]*)$`)

type contentSanitizer struct {
	policy *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerを生成する。
// ポリシー:
//   - 許可タグ: p, br, hr, h2-h4, a, ul, ol, li, blockquote, pre, code, strong, em, img
//   - a: hrefは相対URLも可。外部リンクにはtarget="_blank"とrel="noreferrer noopener"を付与
//   - img: srcはhttpsまたはサイト内の相対URLのみ
func NewContentSanitizer() ContentSanitizer {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		"p", "br", "hr", "h2", "h3", "h4",
		"ul", "ol", "li",
		"blockquote", "pre", "code",
		"strong", "em",
	)

	p.AllowAttrs("href").OnElements("a")
	p.AllowRelativeURLs(true)
	p.AllowURLSchemes("http", "https", "mailto")
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	p.AllowAttrs("alt").OnElements("img")
	p.AllowAttrs("src").Matching(imageSrcPattern).OnElements("img")

	return &contentSanitizer{policy: p}
}

// Sanitize はHTMLコンテンツをサニタイズして安全なHTMLを返す。
func (s *contentSanitizer) Sanitize(rawHTML string) string {
	return s.policy.Sanitize(rawHTML)
}

// SafeImageURL はhttpsの絶対URLか"/"始まりのサイト内パスのみを許可する。
func (s *contentSanitizer) SafeImageURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if strings.HasPrefix(raw, "/") && !strings.HasPrefix(raw, "//") {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "https" || u.Host == "" {
		return ""
	}
	return u.String()
}
