package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/wdblog/internal/kvstore"
	"github.com/hitoshi/wdblog/internal/middleware"
	"github.com/hitoshi/wdblog/internal/render"
)

// loginPath は未認証時のリダイレクト先。
const loginPath = "/admin/auth"

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger *slog.Logger

	// ページ描画
	Renderer  *render.Renderer
	PublicURL string

	// リクエストごとのRenderContext生成
	Factory middleware.RenderContextFactory

	// Cookie・CORS
	CookieSecure      bool
	CookieDomain      string
	CORSAllowedOrigin string

	// 解析イベント受信
	TrackRecorder TrackRecorder

	// 運用エンドポイント。nilの場合はDB疎通確認・メトリクス公開を行わない
	HealthChecker  HealthChecker
	MetricsHandler http.Handler
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → Logging → CORS(/api) → CSRF(ページ) → RenderContext → RequireAuth(/admin)
//
// RenderContextはページ・/api/posts・/feed.xmlにのみ適用し、
// /api/track-data・/health・/metricsでは記事の初期ロードを行わない。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))

	pages := newPageWriter(deps.Renderer, deps.PublicURL, logger)
	blogHandler := NewBlogHandler(deps.Renderer, deps.PublicURL, logger)
	adminHandler := NewAdminHandler(deps.Renderer, deps.PublicURL, logger)
	authHandler := NewAuthHandler(deps.Renderer, deps.PublicURL, logger)
	trackHandler := NewTrackHandler(deps.TrackRecorder, logger)

	renderContext := middleware.NewRenderContextMiddleware(
		deps.Factory,
		kvstore.CookieOptions{Domain: deps.CookieDomain, Secure: deps.CookieSecure},
		logger,
		pages.BootstrapError,
	)
	requireAuth := middleware.NewRequireAuthMiddleware(loginPath)

	// --- 運用エンドポイント ---
	r.Get("/health", NewHealthHandler(deps.HealthChecker, logger))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// --- API ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

		r.Post("/api/track-data", trackHandler.Track)
		r.With(renderContext).Get("/api/posts", blogHandler.ListPosts)
	})

	// --- ページ ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewCSRFMiddleware(middleware.CSRFConfig{
			CookieSecure: deps.CookieSecure,
			CookieDomain: deps.CookieDomain,
		}))
		r.Use(renderContext)

		r.Get("/", blogHandler.Index)
		r.Get("/posts/{id}", blogHandler.Post)
		r.Get("/feed.xml", blogHandler.Feed)

		r.Get(loginPath, authHandler.Form)
		r.Post(loginPath, authHandler.Authenticate)
		r.Post("/admin/logout", authHandler.Logout)

		// 認証必須
		r.Group(func(r chi.Router) {
			r.Use(requireAuth)

			r.Get("/admin", adminHandler.List)
			r.Get("/admin/new-post", adminHandler.NewPost)
			r.Post("/admin/new-post", adminHandler.CreatePost)
			r.Get("/admin/posts/{id}", adminHandler.EditPost)
			r.Post("/admin/posts/{id}", adminHandler.UpdatePost)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		pages.write(w, r, http.StatusNotFound, render.PageError, render.Page{
			Meta: render.PageMeta{Title: http.StatusText(http.StatusNotFound)},
		})
	})

	return r
}
