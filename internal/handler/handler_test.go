package handler

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/wdblog/internal/config"
	"github.com/hitoshi/wdblog/internal/model"
	"github.com/hitoshi/wdblog/internal/render"
	"github.com/hitoshi/wdblog/internal/security"
	"github.com/hitoshi/wdblog/internal/store"
)

// --- モック定義 ---

// mockPostStore はstore.PostStoreのモック実装。
type mockPostStore struct {
	listFn   func(ctx context.Context) ([]model.Post, error)
	createFn func(ctx context.Context, token string, doc map[string]any) (string, error)
	updateFn func(ctx context.Context, token, id string, doc map[string]any) error

	listCalls int
}

func (m *mockPostStore) ListPosts(ctx context.Context) ([]model.Post, error) {
	m.listCalls++
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return nil, nil
}

func (m *mockPostStore) CreatePost(ctx context.Context, token string, doc map[string]any) (string, error) {
	if m.createFn != nil {
		return m.createFn(ctx, token, doc)
	}
	return "new-id", nil
}

func (m *mockPostStore) UpdatePost(ctx context.Context, token, id string, doc map[string]any) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, token, id, doc)
	}
	return nil
}

// mockIdentity はstore.IdentityExchangerのモック実装。
type mockIdentity struct {
	exchangeFn func(ctx context.Context, creds model.Credentials, isLogin bool) (*model.IdentityResult, error)
}

func (m *mockIdentity) Exchange(ctx context.Context, creds model.Credentials, isLogin bool) (*model.IdentityResult, error) {
	if m.exchangeFn != nil {
		return m.exchangeFn(ctx, creds, isLogin)
	}
	return nil, errors.New("not configured")
}

// mockTrackRecorder はTrackRecorderのモック実装。
type mockTrackRecorder struct {
	recordFn func(ctx context.Context, data, remoteAddr string) (*model.TrackEvent, error)
}

func (m *mockTrackRecorder) Record(ctx context.Context, data, remoteAddr string) (*model.TrackEvent, error) {
	if m.recordFn != nil {
		return m.recordFn(ctx, data, remoteAddr)
	}
	return &model.TrackEvent{ID: "event-1", Data: data}, nil
}

// mockHealthChecker はHealthCheckerのモック実装。
type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) PingContext(ctx context.Context) error {
	return m.err
}

// --- テストヘルパー ---

const (
	testCSRFToken = "csrf-token-for-test"
	testPublicURL = "https://blog.example.com"
	testJWT       = "id-token-123"
)

type testEnv struct {
	remote   *mockPostStore
	identity *mockIdentity
	recorder *mockTrackRecorder
	health   HealthChecker
	metrics  http.Handler
	logs     bytes.Buffer
}

func newTestEnv() *testEnv {
	return &testEnv{
		remote:   &mockPostStore{},
		identity: &mockIdentity{},
		recorder: &mockTrackRecorder{},
	}
}

func (e *testEnv) router(t *testing.T) http.Handler {
	t.Helper()

	renderer, err := render.New(config.DefaultSite(), security.NewContentSanitizer())
	if err != nil {
		t.Fatalf("render.New() error = %v", err)
	}
	logger := slog.New(slog.NewJSONHandler(&e.logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	return NewRouter(&RouterDeps{
		Logger:    logger,
		Renderer:  renderer,
		PublicURL: testPublicURL,
		Factory: &store.Factory{
			Remote:   e.remote,
			Identity: e.identity,
			Logger:   logger,
		},
		CORSAllowedOrigin: "http://localhost:3000",
		TrackRecorder:     e.recorder,
		HealthChecker:     e.health,
		MetricsHandler:    e.metrics,
	})
}

func seedPosts() []model.Post {
	updated := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	return []model.Post{
		model.NewPost("p1", model.PostInput{
			"title":       "First Post",
			"author":      "Max",
			"previewText": "first preview",
			"content":     "<p>Hello<script>alert(1)</script></p>",
			"tags":        "go",
		}, updated),
		model.NewPost("p2", model.PostInput{
			"title":   "Second Post",
			"content": "<p>Second body</p>",
		}, updated),
	}
}

func (e *testEnv) withPosts() *testEnv {
	e.remote.listFn = func(context.Context) ([]model.Post, error) { return seedPosts(), nil }
	return e
}

// withAuth は有効期限内の認証Cookieを付与する。
func withAuth(req *http.Request) *http.Request {
	exp := time.Now().Add(time.Hour).UnixMilli()
	req.AddCookie(&http.Cookie{Name: store.CookieTokenKey, Value: testJWT})
	req.AddCookie(&http.Cookie{Name: store.CookieExpirationKey, Value: strconv.FormatInt(exp, 10)})
	return req
}

// newFormRequest はCSRFトークン付きのフォーム送信リクエストを生成する。
func newFormRequest(target string, values url.Values) *http.Request {
	if values == nil {
		values = url.Values{}
	}
	values.Set("csrf_token", testCSRFToken)
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: testCSRFToken})
	return req
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func findSetCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}
