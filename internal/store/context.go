package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hitoshi/wdblog/internal/metrics"
)

// ErrBootstrap は初期ロードの失敗を表す。
// 後続の書き込み失敗とは異なり、呼び出し元はエラーページとして扱う。
var ErrBootstrap = errors.New("bootstrap load failed")

// RenderContext はページレンダリング1回分の実行単位。
// サーバーではリクエストごと、クライアントではセッションごとに1つ作る。
type RenderContext struct {
	ID    string
	State *State
	Auth  *Authenticator

	metrics      metrics.MetricsCollector
	bootstrapped bool
}

// Bootstrap は最初の1回だけ記事コレクション全体を取得してStateに設定する。
// 2回目以降の呼び出しは何もしない。失敗時はErrBootstrapでラップしたエラーを返す。
func (rc *RenderContext) Bootstrap(ctx context.Context) error {
	if rc.bootstrapped {
		return nil
	}
	if err := rc.State.LoadAll(ctx); err != nil {
		rc.metrics.RecordBootstrap(false)
		return fmt.Errorf("%w: %w", ErrBootstrap, err)
	}
	rc.bootstrapped = true
	rc.metrics.RecordBootstrap(true)
	return nil
}

// Factory はRenderContextを組み立てるための共有依存関係。
// Factory自体は状態を持たないため複数ゴルーチンから利用できる。
type Factory struct {
	Remote   PostStore
	Identity IdentityExchanger
	Tracker  Tracker
	Logger   *slog.Logger
	Metrics  metrics.MetricsCollector
}

// New は新しいRenderContextを生成する。
// cookiesはCookieストア、localはクライアント側のみ指定するローカルストア。
func (f *Factory) New(cookies, local KeyValueStore) *RenderContext {
	id := uuid.New().String()

	logger := f.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("render_id", id))

	collector := f.Metrics
	if collector == nil {
		collector = metrics.Discard
	}

	state := NewState(f.Remote, logger)
	return &RenderContext{
		ID:      id,
		State:   state,
		Auth:    NewAuthenticator(state, f.Identity, f.Tracker, cookies, local, logger),
		metrics: collector,
	}
}
