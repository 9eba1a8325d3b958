// Package cli はコマンドラインから記事を管理するクライアントセッションを提供する。
// 認証トークンはローカルストア（JSONファイルまたはメモリ）に保存し、
// コマンドごとに新しいRenderContextへ復元して使う。
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hitoshi/wdblog/internal/model"
	"github.com/hitoshi/wdblog/internal/store"
)

// ContextFactory はRenderContextを生成する。*store.Factoryが満たす。
type ContextFactory interface {
	New(cookies, local store.KeyValueStore) *store.RenderContext
}

// Session はローカルストアに紐づくCLIセッション。
type Session struct {
	factory ContextFactory
	local   store.KeyValueStore
	logger  *slog.Logger
}

// NewSession はSessionを生成する。localにはkvstore.Fileかkvstore.Memoryを渡す。
func NewSession(factory ContextFactory, local store.KeyValueStore, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{factory: factory, local: local, logger: logger}
}

// Login はIdentityサービスで認証し、トークンをローカルストアに保存する。
// 解析ビーコンの送信完了を待ってから戻る。
func (s *Session) Login(ctx context.Context, creds model.Credentials, isLogin bool) (model.UserClaims, error) {
	rc := s.factory.New(nil, s.local)
	defer rc.Auth.Wait()

	if err := rc.Auth.Authenticate(ctx, creds, isLogin); err != nil {
		return model.UserClaims{}, err
	}
	claims, _ := rc.Auth.Claims()
	return claims, nil
}

// Logout はローカルストアのトークンを削除する。
func (s *Session) Logout() error {
	rc := s.factory.New(nil, s.local)
	return rc.Auth.Logout()
}

// Whoami は保存済みトークンが有効な場合にユーザー情報を返す。
// 期限切れのトークンはローカルストアから削除される。
func (s *Session) Whoami() (model.UserClaims, bool, error) {
	rc, err := s.restore()
	if err != nil {
		return model.UserClaims{}, false, err
	}
	if !rc.Auth.IsAuthenticated() {
		return model.UserClaims{}, false, nil
	}
	claims, _ := rc.Auth.Claims()
	return claims, true, nil
}

// Publish は入力から新しい記事を作成する。
func (s *Session) Publish(ctx context.Context, input model.PostInput) (model.Post, error) {
	rc, err := s.authenticated()
	if err != nil {
		return model.Post{}, err
	}
	return rc.State.Create(ctx, input)
}

// Edit は既存記事に入力のフィールドを上書きして保存する。
// 入力にないフィールドは既存の値を引き継ぐ。
func (s *Session) Edit(ctx context.Context, id string, input model.PostInput) (model.Post, error) {
	rc, err := s.authenticated()
	if err != nil {
		return model.Post{}, err
	}
	if err := rc.Bootstrap(ctx); err != nil {
		return model.Post{}, err
	}

	existing, ok := rc.State.Find(id)
	if !ok {
		return model.Post{}, model.NewPostNotFoundError(id)
	}
	edited := existing.Clone()
	for k, v := range input {
		edited.Fields[k] = v
	}
	if err := rc.State.Edit(ctx, edited); err != nil {
		return model.Post{}, err
	}

	updated, _ := rc.State.Find(id)
	return updated, nil
}

func (s *Session) restore() (*store.RenderContext, error) {
	rc := s.factory.New(nil, s.local)
	if err := rc.Auth.Restore(store.LocalSource{Store: s.local}); err != nil {
		return nil, fmt.Errorf("failed to restore session: %w", err)
	}
	return rc, nil
}

func (s *Session) authenticated() (*store.RenderContext, error) {
	rc, err := s.restore()
	if err != nil {
		return nil, err
	}
	if !rc.Auth.IsAuthenticated() {
		return nil, model.NewUnauthenticatedError()
	}
	return rc, nil
}

// LoadPostFile はYAML（JSONも可）の記事ファイルを読み込む。
// トップレベルはマッピングである必要があり、id・updatedDateは無視される。
func LoadPostFile(path string) (model.PostInput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read post file: %w", err)
	}

	var input map[string]any
	if err := yaml.Unmarshal(data, &input); err != nil {
		return nil, fmt.Errorf("failed to parse post file %s: %w", path, err)
	}
	if len(input) == 0 {
		return nil, model.NewInvalidPostError("post file is empty")
	}
	delete(input, model.FieldID)
	delete(input, model.FieldUpdatedDate)
	return model.PostInput(input), nil
}
