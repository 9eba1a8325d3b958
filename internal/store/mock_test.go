package store

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/hitoshi/wdblog/internal/model"
)

// --- モック定義 ---

type mockPostStore struct {
	listFn   func(ctx context.Context) ([]model.Post, error)
	createFn func(ctx context.Context, token string, doc map[string]any) (string, error)
	updateFn func(ctx context.Context, token, id string, doc map[string]any) error

	listCalls   int
	createCalls int
	updateCalls int
}

func (m *mockPostStore) ListPosts(ctx context.Context) ([]model.Post, error) {
	m.listCalls++
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return []model.Post{}, nil
}

func (m *mockPostStore) CreatePost(ctx context.Context, token string, doc map[string]any) (string, error) {
	m.createCalls++
	if m.createFn != nil {
		return m.createFn(ctx, token, doc)
	}
	return "", nil
}

func (m *mockPostStore) UpdatePost(ctx context.Context, token, id string, doc map[string]any) error {
	m.updateCalls++
	if m.updateFn != nil {
		return m.updateFn(ctx, token, id, doc)
	}
	return nil
}

type mockIdentity struct {
	exchangeFn func(ctx context.Context, creds model.Credentials, isLogin bool) (*model.IdentityResult, error)
}

func (m *mockIdentity) Exchange(ctx context.Context, creds model.Credentials, isLogin bool) (*model.IdentityResult, error) {
	if m.exchangeFn != nil {
		return m.exchangeFn(ctx, creds, isLogin)
	}
	return nil, nil
}

type mockTracker struct {
	mu     sync.Mutex
	events []string
	err    error
}

func (m *mockTracker) Track(ctx context.Context, data string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, data)
	return m.err
}

func (m *mockTracker) Events() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.events...)
}

// recordingKV は操作履歴を記録するKeyValueStore。
type recordingKV struct {
	data map[string]string
	sets []string
	rems []string
	err  error
	// failKey が設定されている場合はそのキーへのSetだけが失敗する
	failKey string
}

func newRecordingKV() *recordingKV {
	return &recordingKV{data: make(map[string]string)}
}

func (r *recordingKV) Get(key string) (string, bool) {
	v, ok := r.data[key]
	return v, ok
}

func (r *recordingKV) Set(key, value string) error {
	if r.err != nil {
		return r.err
	}
	if r.failKey != "" && key == r.failKey {
		return errors.New("write failed: " + key)
	}
	r.sets = append(r.sets, key)
	r.data[key] = value
	return nil
}

func (r *recordingKV) Remove(key string) error {
	r.rems = append(r.rems, key)
	delete(r.data, key)
	return nil
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}
