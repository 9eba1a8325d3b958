package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/wdblog/internal/middleware"
	"github.com/hitoshi/wdblog/internal/model"
	"github.com/hitoshi/wdblog/internal/render"
)

// AuthHandler はログイン・サインアップ・ログアウトのHTTPハンドラー。
type AuthHandler struct {
	pages *pageWriter
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(renderer *render.Renderer, publicURL string, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{pages: newPageWriter(renderer, publicURL, logger)}
}

// Form はログインフォームを返す。?mode=signupの場合はサインアップフォーム。
// 認証済みの場合は管理画面へリダイレクトする。
// GET /admin/auth
func (h *AuthHandler) Form(w http.ResponseWriter, r *http.Request) {
	rc, ok := h.pages.renderContext(w, r)
	if !ok {
		return
	}
	if rc.Auth.IsAuthenticated() {
		http.Redirect(w, r, "/admin", http.StatusSeeOther)
		return
	}

	isLogin := r.URL.Query().Get("mode") != "signup"
	h.writeForm(w, r, http.StatusOK, render.AuthForm{IsLogin: isLogin}, nil)
}

// Authenticate はメールアドレス・パスワードで認証し、成功したら管理画面へリダイレクトする。
// isLoginフィールドが"false"の場合はサインアップとして扱う。
// POST /admin/auth
func (h *AuthHandler) Authenticate(w http.ResponseWriter, r *http.Request) {
	rc, ok := h.pages.renderContext(w, r)
	if !ok {
		return
	}

	form := render.AuthForm{
		Email:   strings.TrimSpace(r.PostFormValue("email")),
		IsLogin: r.PostFormValue("isLogin") != "false",
	}
	password := r.PostFormValue("password")
	if form.Email == "" || password == "" {
		h.writeForm(w, r, http.StatusBadRequest, form, model.NewInvalidRequestError("email and password are required"))
		return
	}

	creds := model.Credentials{Email: form.Email, Password: password}
	if err := rc.Auth.Authenticate(r.Context(), creds, form.IsLogin); err != nil {
		apiErr := toAPIError(err, model.NewAuthFailedError("identity service unavailable"))
		h.writeForm(w, r, middleware.StatusCode(apiErr), form, apiErr)
		return
	}

	http.Redirect(w, r, "/admin", http.StatusSeeOther)
}

// Logout は認証トークンを破棄してトップページへリダイレクトする。
// 未認証の状態で呼んでも同じ結果になる。
// POST /admin/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	rc, ok := h.pages.renderContext(w, r)
	if !ok {
		return
	}

	if err := rc.Auth.Logout(); err != nil {
		h.pages.logger.Warn("ログアウト処理に失敗しました", slog.String("error", err.Error()))
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *AuthHandler) writeForm(w http.ResponseWriter, r *http.Request, status int, form render.AuthForm, apiErr *model.APIError) {
	title := "Login"
	if !form.IsLogin {
		title = "Sign Up"
	}
	h.pages.write(w, r, status, render.PageAuth, render.Page{
		Meta:  render.PageMeta{Title: title},
		Auth:  form,
		Error: apiErr,
	})
}
