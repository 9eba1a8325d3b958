package render

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// Excerpt はHTMLからテキストだけを取り出し、最大maxRunes文字の抜粋を返す。
// script/styleの中身は含めず、連続する空白は1つにまとめる。
// 切り詰めた場合は末尾に"…"を付ける。
func Excerpt(rawHTML string, maxRunes int) string {
	if rawHTML == "" || maxRunes <= 0 {
		return ""
	}

	var sb strings.Builder
	tokenizer := html.NewTokenizer(strings.NewReader(rawHTML))
	skipDepth := 0

loop:
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			break loop
		case html.StartTagToken:
			tn, _ := tokenizer.TagName()
			if isSkippedTag(string(tn)) {
				skipDepth++
			}
			if isBlockTag(string(tn)) {
				sb.WriteByte(' ')
			}
		case html.EndTagToken:
			tn, _ := tokenizer.TagName()
			if isSkippedTag(string(tn)) && skipDepth > 0 {
				skipDepth--
			}
			if isBlockTag(string(tn)) {
				sb.WriteByte(' ')
			}
		case html.SelfClosingTagToken:
			sb.WriteByte(' ')
		case html.TextToken:
			if skipDepth == 0 {
				sb.Write(tokenizer.Text())
			}
		}
	}

	text := strings.Join(strings.Fields(sb.String()), " ")
	if utf8.RuneCountInString(text) <= maxRunes {
		return text
	}

	runes := []rune(text)
	return strings.TrimSpace(string(runes[:maxRunes])) + "…"
}

func isSkippedTag(name string) bool {
	return name == "script" || name == "style"
}

func isBlockTag(name string) bool {
	switch name {
	case "p", "br", "div", "li", "h1", "h2", "h3", "h4", "h5", "h6", "blockquote", "pre", "tr":
		return true
	}
	return false
}
