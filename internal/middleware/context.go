// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"

	"github.com/hitoshi/wdblog/internal/store"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	renderContextKey = contextKey("render_context")
	csrfTokenKey     = contextKey("csrf_token")
	requestInfoKey   = contextKey("request_info")
)

// requestInfo はリクエストログに後から追記する値を保持する。
// ロギングミドルウェアが生成し、内側のミドルウェアが書き込む。
type requestInfo struct {
	renderID string
}

// RenderContextFromContext はリクエストに割り当てられたRenderContextを返す。
// RenderContextミドルウェアを通過したリクエストでのみ存在する。
func RenderContextFromContext(ctx context.Context) (*store.RenderContext, bool) {
	rc, ok := ctx.Value(renderContextKey).(*store.RenderContext)
	return rc, ok && rc != nil
}

// ContextWithRenderContext はコンテキストにRenderContextを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithRenderContext(ctx context.Context, rc *store.RenderContext) context.Context {
	if info, ok := ctx.Value(requestInfoKey).(*requestInfo); ok {
		info.renderID = rc.ID
	}
	return context.WithValue(ctx, renderContextKey, rc)
}

// CSRFTokenFromContext はフォームに埋め込むCSRFトークンを返す。
func CSRFTokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(csrfTokenKey).(string)
	return token
}
