package middleware

import (
	"log/slog"
	"net/http"

	"github.com/hitoshi/wdblog/internal/kvstore"
	"github.com/hitoshi/wdblog/internal/store"
)

// RenderContextFactory はリクエストごとのRenderContextを生成する。
type RenderContextFactory interface {
	New(cookies, local store.KeyValueStore) *store.RenderContext
}

// BootstrapErrorHandler は初期ロード失敗時のレスポンスを書き込む。
type BootstrapErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// NewRenderContextMiddleware はリクエストごとに新しいRenderContextを作るミドルウェアを返す。
// 初期ロード（記事コレクションの取得）を行い、続いてリクエストのCookieから認証トークンを復元する。
// 初期ロードに失敗した場合はonErrorにレスポンスを任せ、後続のハンドラーは呼ばない。
func NewRenderContextMiddleware(factory RenderContextFactory, cookieOpts kvstore.CookieOptions, logger *slog.Logger, onError BootstrapErrorHandler) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rc := factory.New(kvstore.NewCookie(w, r, cookieOpts), nil)
			ctx := ContextWithRenderContext(r.Context(), rc)

			if err := rc.Bootstrap(ctx); err != nil {
				onError(w, r.WithContext(ctx), err)
				return
			}

			if err := rc.Auth.Restore(store.RequestCookieSource(r.Header.Get("Cookie"))); err != nil {
				logger.Warn("認証トークンの復元に失敗しました",
					slog.String("render_id", rc.ID),
					slog.String("error", err.Error()),
				)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// NewRequireAuthMiddleware は未認証のリクエストをloginPathへリダイレクトするミドルウェアを返す。
// RenderContextミドルウェアの内側で使用する。
func NewRequireAuthMiddleware(loginPath string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rc, ok := RenderContextFromContext(r.Context())
			if !ok || !rc.Auth.IsAuthenticated() {
				http.Redirect(w, r, loginPath, http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
