package render

import (
	"encoding/xml"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/hitoshi/wdblog/internal/model"
)

// feedDescriptionLength はRSSのdescriptionに使う抜粋の最大文字数。
const feedDescriptionLength = 300

type rss struct {
	XMLName xml.Name   `xml:"rss"`
	Version string     `xml:"version,attr"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title         string    `xml:"title"`
	Link          string    `xml:"link"`
	Description   string    `xml:"description"`
	LastBuildDate string    `xml:"lastBuildDate,omitempty"`
	Items         []rssItem `xml:"item"`
}

type rssItem struct {
	Title       string  `xml:"title"`
	Link        string  `xml:"link"`
	GUID        rssGUID `xml:"guid"`
	Author      string  `xml:"author,omitempty"`
	Description string  `xml:"description,omitempty"`
	PubDate     string  `xml:"pubDate,omitempty"`
}

type rssGUID struct {
	IsPermaLink bool   `xml:"isPermaLink,attr"`
	Value       string `xml:",chardata"`
}

// PostURL は公開URLを基準にした記事ページのURLを返す。
func PostURL(publicURL, id string) string {
	return strings.TrimRight(publicURL, "/") + "/posts/" + url.PathEscape(id)
}

// WriteFeed は記事一覧をRSS 2.0として書き出す。
// 記事の並びは引数の順序をそのまま使う。
func (r *Renderer) WriteFeed(w io.Writer, publicURL string, posts []model.Post) error {
	channel := rssChannel{
		Title:       r.site.Title,
		Link:        strings.TrimRight(publicURL, "/") + "/",
		Description: r.site.Description,
	}
	if channel.Description == "" {
		channel.Description = r.site.Title
	}

	var latest time.Time
	for _, p := range posts {
		link := PostURL(publicURL, p.ID)
		desc := p.PreviewText()
		if desc == "" {
			desc = Excerpt(p.Content(), feedDescriptionLength)
		}

		item := rssItem{
			Title:       p.Title(),
			Link:        link,
			GUID:        rssGUID{IsPermaLink: true, Value: link},
			Author:      p.Author(),
			Description: desc,
		}
		if !p.UpdatedDate.IsZero() {
			item.PubDate = p.UpdatedDate.UTC().Format(time.RFC1123Z)
			if p.UpdatedDate.After(latest) {
				latest = p.UpdatedDate
			}
		}
		channel.Items = append(channel.Items, item)
	}
	if !latest.IsZero() {
		channel.LastBuildDate = latest.UTC().Format(time.RFC1123Z)
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(rss{Version: "2.0", Channel: channel}); err != nil {
		return fmt.Errorf("failed to encode feed: %w", err)
	}
	return enc.Flush()
}
