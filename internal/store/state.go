// Package store はレンダーコンテキストごとのアプリケーション状態（記事コレクションと認証トークン）を管理する。
//
// 書き込みはライトスルー: リモート記事ストアへの書き込みが成功した場合にのみメモリ上の状態を更新する。
// 失敗時はエラーを返し、状態は直前の値のまま残る。
package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/wdblog/internal/model"
)

// PostStore はリモート記事ストアのインターフェース。
// poststore.Client が実装する。
type PostStore interface {
	ListPosts(ctx context.Context) ([]model.Post, error)
	CreatePost(ctx context.Context, token string, doc map[string]any) (string, error)
	UpdatePost(ctx context.Context, token, id string, doc map[string]any) error
}

// State はレンダーコンテキスト1つ分のアプリケーション状態。
// プロセス全体で共有せず、リクエストまたはクライアントセッションごとに生成する。
type State struct {
	remote PostStore
	logger *slog.Logger
	now    func() time.Time

	mu    sync.Mutex
	posts []model.Post
	token *model.AuthToken
}

// NewState はStateを生成する。記事コレクションは空、トークンはなしで始まる。
func NewState(remote PostStore, logger *slog.Logger) *State {
	return &State{
		remote: remote,
		logger: logger,
		now:    time.Now,
		posts:  []model.Post{},
	}
}

// LoadAll はリモートストアから全記事を1回のリクエストで取得し、コレクションを置き換える。
// 失敗時はコレクションを変更せずにエラーを返す。リトライはしない。
func (s *State) LoadAll(ctx context.Context) error {
	posts, err := s.remote.ListPosts(ctx)
	if err != nil {
		s.logger.Error("記事一覧の取得に失敗しました", slog.String("error", err.Error()))
		return fmt.Errorf("failed to load posts: %w", err)
	}
	s.SetAll(posts)
	return nil
}

// SetAll はネットワークを介さずにコレクションを無条件に置き換える。
func (s *State) SetAll(posts []model.Post) {
	copied := make([]model.Post, len(posts))
	for i, p := range posts {
		copied[i] = p.Clone()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts = copied
}

// Create はupdatedDateを現在時刻で付与した記事をリモートストアに追加し、
// 成功した場合のみ採番されたIDとともにコレクション末尾へ追加する。
// 入力に含まれるid・updatedDateは無視する。
func (s *State) Create(ctx context.Context, input model.PostInput) (model.Post, error) {
	post := model.NewPost("", input, s.stamp())

	id, err := s.remote.CreatePost(ctx, s.tokenString(), post.Document())
	if err != nil {
		s.logger.Error("記事の作成に失敗しました", slog.String("error", err.Error()))
		return model.Post{}, fmt.Errorf("failed to create post: %w", err)
	}
	post.ID = id

	s.mu.Lock()
	s.posts = append(s.posts, post.Clone())
	s.mu.Unlock()

	s.logger.Info("記事を作成しました", slog.String("post_id", id))
	return post, nil
}

// Edit は記事全体をリモートストアの posts/{id} に書き込み、
// 成功した場合のみ同じIDを持つコレクション内のエントリを置き換える。
// コレクションに存在しないIDの場合はリモートへ送信せずに POST_NOT_FOUND を返す。
func (s *State) Edit(ctx context.Context, post model.Post) error {
	if post.ID == "" {
		return model.NewInvalidPostError("id is required")
	}
	if _, ok := s.Find(post.ID); !ok {
		return model.NewPostNotFoundError(post.ID)
	}

	edited := model.NewPost(post.ID, model.PostInput(post.Fields), s.stamp())

	if err := s.remote.UpdatePost(ctx, s.tokenString(), edited.ID, edited.Document()); err != nil {
		s.logger.Error("記事の更新に失敗しました",
			slog.String("post_id", post.ID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to edit post %s: %w", post.ID, err)
	}

	s.mu.Lock()
	for i := range s.posts {
		if s.posts[i].ID == edited.ID {
			s.posts[i] = edited.Clone()
			break
		}
	}
	s.mu.Unlock()

	s.logger.Info("記事を更新しました", slog.String("post_id", post.ID))
	return nil
}

// All は現在のコレクションのスナップショットを返す。
// 戻り値を変更してもStateには影響しない。
func (s *State) All() []model.Post {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Post, len(s.posts))
	for i, p := range s.posts {
		out[i] = p.Clone()
	}
	return out
}

// Find は指定IDの記事を返す。
func (s *State) Find(id string) (model.Post, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.posts {
		if p.ID == id {
			return p.Clone(), true
		}
	}
	return model.Post{}, false
}

// Token は現在のトークンのコピーを返す。未設定の場合はnil。
func (s *State) Token() *model.AuthToken {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token == nil {
		return nil
	}
	t := *s.token
	return &t
}

// IsAuthenticated はトークンが存在し、かつ有効期限内かを返す。
func (s *State) IsAuthenticated() bool {
	return s.Token().ValidAt(s.now())
}

func (s *State) setToken(t *model.AuthToken) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = t
}

func (s *State) clearToken() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = nil
}

func (s *State) tokenString() string {
	if t := s.Token(); t != nil {
		return t.Token
	}
	return ""
}

// stamp はupdatedDate用の現在時刻を返す。JSON表現と一致させるためミリ秒に切り捨てる。
func (s *State) stamp() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}
