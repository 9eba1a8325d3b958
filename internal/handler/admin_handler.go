package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/wdblog/internal/middleware"
	"github.com/hitoshi/wdblog/internal/model"
	"github.com/hitoshi/wdblog/internal/render"
)

// AdminHandler は記事管理画面のHTTPハンドラー。
// 認証必須ミドルウェアの内側で使用する。
type AdminHandler struct {
	pages *pageWriter
}

// NewAdminHandler はAdminHandlerを生成する。
func NewAdminHandler(renderer *render.Renderer, publicURL string, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{pages: newPageWriter(renderer, publicURL, logger)}
}

// List は管理画面の記事一覧を返す。
// GET /admin
func (h *AdminHandler) List(w http.ResponseWriter, r *http.Request) {
	rc, ok := h.pages.renderContext(w, r)
	if !ok {
		return
	}

	h.pages.write(w, r, http.StatusOK, render.PageAdmin, render.Page{
		Meta:  render.PageMeta{Title: "Admin"},
		Posts: h.pages.renderer.PostViews(rc.State.All()),
	})
}

// NewPost は空の記事作成フォームを返す。
// GET /admin/new-post
func (h *AdminHandler) NewPost(w http.ResponseWriter, r *http.Request) {
	h.pages.write(w, r, http.StatusOK, render.PagePostForm, render.Page{
		Meta: render.PageMeta{Title: "New Post"},
	})
}

// CreatePost はフォームの内容で記事を作成し、成功したら管理画面へリダイレクトする。
// 失敗した場合は入力値を保ったままフォームを再表示する。
// POST /admin/new-post
func (h *AdminHandler) CreatePost(w http.ResponseWriter, r *http.Request) {
	rc, ok := h.pages.renderContext(w, r)
	if !ok {
		return
	}

	form := postFormFromRequest(r)
	if apiErr := validatePostForm(form); apiErr != nil {
		h.writeForm(w, r, "New Post", form, apiErr)
		return
	}

	post, err := rc.State.Create(r.Context(), form.Input())
	if err != nil {
		h.writeForm(w, r, "New Post", form, toAPIError(err, model.NewRemoteStoreFailedError()))
		return
	}

	h.pages.logger.Info("管理画面から記事を作成しました", slog.String("post_id", post.ID))
	http.Redirect(w, r, "/admin", http.StatusSeeOther)
}

// EditPost は既存記事の編集フォームを返す。
// GET /admin/posts/{id}
func (h *AdminHandler) EditPost(w http.ResponseWriter, r *http.Request) {
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

	h.pages.write(w, r, http.StatusOK, render.PagePostForm, render.Page{
		Meta: render.PageMeta{Title: "Edit Post"},
		Form: render.FormFromPost(post),
	})
}

// UpdatePost はフォームの内容を既存記事に上書きして保存する。
// フォームにないフィールドは既存の値を引き継ぐ。
// POST /admin/posts/{id}
func (h *AdminHandler) UpdatePost(w http.ResponseWriter, r *http.Request) {
	rc, ok := h.pages.renderContext(w, r)
	if !ok {
		return
	}

	id := chi.URLParam(r, "id")
	existing, found := rc.State.Find(id)
	if !found {
		h.pages.writeError(w, r, model.NewPostNotFoundError(id))
		return
	}

	form := postFormFromRequest(r)
	form.ID = id
	if apiErr := validatePostForm(form); apiErr != nil {
		h.writeForm(w, r, "Edit Post", form, apiErr)
		return
	}

	edited := existing.Clone()
	for k, v := range form.Input() {
		edited.Fields[k] = v
	}

	if err := rc.State.Edit(r.Context(), edited); err != nil {
		h.writeForm(w, r, "Edit Post", form, toAPIError(err, model.NewRemoteStoreFailedError()))
		return
	}

	http.Redirect(w, r, "/admin", http.StatusSeeOther)
}

func (h *AdminHandler) writeForm(w http.ResponseWriter, r *http.Request, title string, form render.PostForm, apiErr *model.APIError) {
	h.pages.write(w, r, middleware.StatusCode(apiErr), render.PagePostForm, render.Page{
		Meta:  render.PageMeta{Title: title},
		Form:  form,
		Error: apiErr,
	})
}

// postFormFromRequest はフォーム送信の値を読み取る。
func postFormFromRequest(r *http.Request) render.PostForm {
	return render.PostForm{
		Author:      strings.TrimSpace(r.PostFormValue("author")),
		Title:       strings.TrimSpace(r.PostFormValue("title")),
		Thumbnail:   strings.TrimSpace(r.PostFormValue("thumbnail")),
		Content:     r.PostFormValue("content"),
		PreviewText: r.PostFormValue("previewText"),
	}
}

// validatePostForm はタイトル必須のみを検証する。
func validatePostForm(form render.PostForm) *model.APIError {
	if form.Title == "" {
		return model.NewInvalidPostError("title is required")
	}
	return nil
}
