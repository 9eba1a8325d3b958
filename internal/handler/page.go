// Package handler はブログの公開ページ・管理画面・APIのHTTPハンドラーを提供する。
package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/wdblog/internal/middleware"
	"github.com/hitoshi/wdblog/internal/model"
	"github.com/hitoshi/wdblog/internal/poststore"
	"github.com/hitoshi/wdblog/internal/render"
	"github.com/hitoshi/wdblog/internal/store"
)

// pageWriter はリクエストのRenderContextとCSRFトークンをページデータに反映して描画する。
type pageWriter struct {
	renderer  *render.Renderer
	publicURL string
	logger    *slog.Logger
}

func newPageWriter(renderer *render.Renderer, publicURL string, logger *slog.Logger) *pageWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &pageWriter{renderer: renderer, publicURL: publicURL, logger: logger}
}

// write はページをstatusで書き出す。認証状態とCSRFトークンはリクエストから補完する。
func (p *pageWriter) write(w http.ResponseWriter, r *http.Request, status int, name string, page render.Page) {
	if rc, ok := middleware.RenderContextFromContext(r.Context()); ok {
		page.Authenticated = rc.Auth.IsAuthenticated()
		if claims, ok := rc.Auth.Claims(); ok {
			page.UserEmail = claims.Email
		}
	}
	page.CSRFToken = middleware.CSRFTokenFromContext(r.Context())
	page.Status = status

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := p.renderer.Render(w, name, page); err != nil {
		p.logger.Error("ページの描画に失敗しました",
			slog.String("page", name),
			slog.String("error", err.Error()),
		)
	}
}

// writeError はエラーページを描画する。
func (p *pageWriter) writeError(w http.ResponseWriter, r *http.Request, apiErr *model.APIError) {
	status := middleware.StatusCode(apiErr)
	p.write(w, r, status, render.PageError, render.Page{
		Meta:  render.PageMeta{Title: http.StatusText(status)},
		Error: apiErr,
	})
}

// BootstrapError はRenderContextミドルウェアの初期ロード失敗時にエラーページを返す。
func (p *pageWriter) BootstrapError(w http.ResponseWriter, r *http.Request, err error) {
	p.logger.Error("記事の初期ロードに失敗しました",
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	p.writeError(w, r, model.NewBootstrapFailedError())
}

// renderContext はリクエストのRenderContextを返す。
// 見つからない場合は500を書き込み、falseを返す。
func (p *pageWriter) renderContext(w http.ResponseWriter, r *http.Request) (*store.RenderContext, bool) {
	rc, ok := middleware.RenderContextFromContext(r.Context())
	if !ok {
		p.logger.Error("RenderContextがありません", slog.String("path", r.URL.Path))
		p.writeError(w, r, model.NewInternalError())
		return nil, false
	}
	return rc, true
}

// toAPIError は状態コンテナから返されたエラーを利用者向けのAPIErrorに変換する。
// APIErrorを含まない場合、リモートストアの401は未認証、それ以外はfallbackとして扱う。
func toAPIError(err error, fallback *model.APIError) *model.APIError {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	if poststore.IsUnauthorized(err) {
		return model.NewUnauthenticatedError()
	}
	return fallback
}
