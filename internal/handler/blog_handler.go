package handler

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/wdblog/internal/middleware"
	"github.com/hitoshi/wdblog/internal/model"
	"github.com/hitoshi/wdblog/internal/render"
)

// BlogHandler は公開ページ（記事一覧・記事詳細・RSS・JSON）のHTTPハンドラー。
type BlogHandler struct {
	pages *pageWriter
}

// NewBlogHandler はBlogHandlerを生成する。
func NewBlogHandler(renderer *render.Renderer, publicURL string, logger *slog.Logger) *BlogHandler {
	return &BlogHandler{pages: newPageWriter(renderer, publicURL, logger)}
}

// postsResponse はGET /api/postsのレスポンス。
type postsResponse struct {
	Posts []model.Post `json:"posts"`
}

// Index は記事一覧ページを返す。
// GET /
func (h *BlogHandler) Index(w http.ResponseWriter, r *http.Request) {
	rc, ok := h.pages.renderContext(w, r)
	if !ok {
		return
	}

	h.pages.write(w, r, http.StatusOK, render.PageIndex, render.Page{
		Meta:  render.PageMeta{URL: strings.TrimRight(h.pages.publicURL, "/") + "/"},
		Posts: h.pages.renderer.PostViews(rc.State.All()),
	})
}

// Post は記事詳細ページを返す。存在しないIDは404ページ。
// GET /posts/{id}
func (h *BlogHandler) Post(w http.ResponseWriter, r *http.Request) {
	rc, ok := h.pages.renderContext(w, r)
	if !ok {
		return
	}

	id := chi.URLParam(r, "id")
	post, found := rc.State.Find(id)
	if !found {
		h.pages.writeError(w, r, model.NewPostNotFoundError(id))
		return
	}

	view := h.pages.renderer.PostView(post)
	h.pages.write(w, r, http.StatusOK, render.PagePost, render.Page{
		Meta: render.PageMeta{
			Title:       view.Title,
			Description: view.PreviewText,
			URL:         render.PostURL(h.pages.publicURL, post.ID),
			OGType:      "article",
		},
		Post: &view,
	})
}

// Feed はロード済みの記事からRSS 2.0フィードを返す。
// GET /feed.xml
func (h *BlogHandler) Feed(w http.ResponseWriter, r *http.Request) {
	rc, ok := h.pages.renderContext(w, r)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := h.pages.renderer.WriteFeed(&buf, h.pages.publicURL, rc.State.All()); err != nil {
		h.pages.logger.Error("フィードの生成に失敗しました", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	buf.WriteTo(w)
}

// ListPosts はロード済みの記事コレクションをJSONで返す。
// GET /api/posts
func (h *BlogHandler) ListPosts(w http.ResponseWriter, r *http.Request) {
	rc, ok := middleware.RenderContextFromContext(r.Context())
	if !ok {
		middleware.WriteInternalServerError(w)
		return
	}

	posts := rc.State.All()
	if posts == nil {
		posts = []model.Post{}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(postsResponse{Posts: posts})
}
