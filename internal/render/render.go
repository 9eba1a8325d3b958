// Package render は記事ページ・管理画面のHTMLとRSSフィードを生成する。
// テンプレートはバイナリに埋め込まれ、ページごとにlayoutと組み合わせて解析する。
package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/hitoshi/wdblog/internal/config"
	"github.com/hitoshi/wdblog/internal/model"
	"github.com/hitoshi/wdblog/internal/security"
)

//go:embed templates/*.html
var templatesFS embed.FS

// ページ名
const (
	PageIndex    = "index"
	PagePost     = "post"
	PageAdmin    = "admin"
	PagePostForm = "post_form"
	PageAuth     = "auth"
	PageError    = "error"
)

var pageNames = []string{PageIndex, PagePost, PageAdmin, PagePostForm, PageAuth, PageError}

// indexExcerptLength は一覧に表示する抜粋の最大文字数。
const indexExcerptLength = 160

// PageMeta はheadに出力するページ単位のメタ情報。
type PageMeta struct {
	Title       string
	Description string
	URL         string
	OGType      string
}

// PostView はテンプレートに渡す記事の表示用データ。
type PostView struct {
	ID          string
	Title       string
	Author      string
	PreviewText string
	Thumbnail   string
	Content     template.HTML
	UpdatedDate time.Time
}

// PostForm は記事作成・編集フォームの値。
type PostForm struct {
	ID          string
	Author      string
	Title       string
	Thumbnail   string
	Content     string
	PreviewText string
}

// AuthForm はログイン・サインアップフォームの値。
type AuthForm struct {
	Email   string
	IsLogin bool
}

// Page はすべてのページテンプレートに渡すデータ。
type Page struct {
	Meta          PageMeta
	Site          config.Site
	Authenticated bool
	UserEmail     string
	CSRFToken     string
	Error         *model.APIError

	Posts []PostView
	Post  *PostView
	Form  PostForm
	Auth  AuthForm

	Status int
}

// Renderer は埋め込みテンプレートでページを描画する。
// 生成後は読み取り専用のため複数ゴルーチンから利用できる。
type Renderer struct {
	site      config.Site
	sanitizer security.ContentSanitizer
	pages     map[string]*template.Template
}

// New はテンプレートを解析してRendererを生成する。
func New(site config.Site, sanitizer security.ContentSanitizer) (*Renderer, error) {
	funcs := template.FuncMap{
		"date":    FormatDate,
		"isoDate": func(t time.Time) string { return t.UTC().Format(time.RFC3339) },
	}

	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		t, err := template.New("layout.html").Funcs(funcs).ParseFS(templatesFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		pages[name] = t
	}

	return &Renderer{
		site:      site,
		sanitizer: sanitizer,
		pages:     pages,
	}, nil
}

// Render は指定ページをwに書き出す。
// 途中で失敗した場合に中途半端なHTMLを出さないよう、バッファに描画してから書き込む。
func (r *Renderer) Render(w io.Writer, name string, page Page) error {
	t, ok := r.pages[name]
	if !ok {
		return fmt.Errorf("unknown page: %s", name)
	}
	page.Site = r.site
	if page.Meta.Title == "" {
		page.Meta.Title = r.site.Title
	}
	if page.Meta.Description == "" {
		page.Meta.Description = r.site.Description
	}
	if page.Meta.OGType == "" {
		page.Meta.OGType = "website"
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout.html", page); err != nil {
		return fmt.Errorf("failed to render %s: %w", name, err)
	}
	_, err := buf.WriteTo(w)
	return err
}

// PostView は記事を表示用データに変換する。本文はサニタイズ済みHTMLとして扱う。
func (r *Renderer) PostView(p model.Post) PostView {
	return PostView{
		ID:          p.ID,
		Title:       p.Title(),
		Author:      p.Author(),
		PreviewText: p.PreviewText(),
		Thumbnail:   r.sanitizer.SafeImageURL(p.Thumbnail()),
		Content:     template.HTML(r.sanitizer.Sanitize(p.Content())),
		UpdatedDate: p.UpdatedDate,
	}
}

// PostViews は一覧表示用に記事を変換する。プレビュー文が空の記事は本文の抜粋で補う。
func (r *Renderer) PostViews(posts []model.Post) []PostView {
	views := make([]PostView, 0, len(posts))
	for _, p := range posts {
		v := r.PostView(p)
		if v.PreviewText == "" {
			v.PreviewText = Excerpt(p.Content(), indexExcerptLength)
		}
		views = append(views, v)
	}
	return views
}

// FormFromPost は既存記事から編集フォームの初期値を作る。
func FormFromPost(p model.Post) PostForm {
	return PostForm{
		ID:          p.ID,
		Author:      p.Author(),
		Title:       p.Title(),
		Thumbnail:   p.Thumbnail(),
		Content:     p.Content(),
		PreviewText: p.PreviewText(),
	}
}

// Input はフォームの値を記事の作成入力に変換する。
func (f PostForm) Input() model.PostInput {
	return model.PostInput{
		"author":      f.Author,
		"title":       f.Title,
		"thumbnail":   f.Thumbnail,
		"content":     f.Content,
		"previewText": f.PreviewText,
	}
}

// FormatDate は記事の更新日時を表示用の文字列にする。ゼロ値は空文字列。
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2 January 2006")
}
