// Package generate はブログを静的HTMLとして書き出す。
// 記事コレクションは1回だけロードし、すべてのページで共有する。
package generate

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/hitoshi/wdblog/internal/render"
	"github.com/hitoshi/wdblog/internal/store"
)

// ContextFactory はRenderContextを生成する。*store.Factoryが満たす。
type ContextFactory interface {
	New(cookies, local store.KeyValueStore) *store.RenderContext
}

// Result は生成結果の集計。
type Result struct {
	Pages   int
	Skipped []string
}

// Generator は静的サイトの生成器。
type Generator struct {
	factory   ContextFactory
	renderer  *render.Renderer
	publicURL string
	logger    *slog.Logger
}

// New はGeneratorを生成する。
func New(factory ContextFactory, renderer *render.Renderer, publicURL string, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		factory:   factory,
		renderer:  renderer,
		publicURL: publicURL,
		logger:    logger,
	}
}

// Run はdir配下に index.html、posts/{id}/index.html、feed.xml を書き出す。
// 生成は未認証の状態で行い、Cookie・ローカルストアは使用しない。
// ファイルシステムに書き込めない記事IDはスキップしてResult.Skippedに含める。
func (g *Generator) Run(ctx context.Context, dir string) (*Result, error) {
	rc := g.factory.New(nil, nil)
	if err := rc.Bootstrap(ctx); err != nil {
		return nil, err
	}
	if err := rc.Auth.Restore(nil); err != nil {
		return nil, fmt.Errorf("failed to reset auth state: %w", err)
	}

	posts := rc.State.All()
	result := &Result{}

	index := render.Page{
		Meta:  render.PageMeta{URL: strings.TrimRight(g.publicURL, "/") + "/"},
		Posts: g.renderer.PostViews(posts),
	}
	if err := g.writePage(filepath.Join(dir, "index.html"), render.PageIndex, index); err != nil {
		return nil, err
	}
	result.Pages++

	for _, post := range posts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !safePathSegment(post.ID) {
			g.logger.Warn("ファイル名に使えない記事IDをスキップしました", slog.String("post_id", post.ID))
			result.Skipped = append(result.Skipped, post.ID)
			continue
		}

		view := g.renderer.PostView(post)
		page := render.Page{
			Meta: render.PageMeta{
				Title:       view.Title,
				Description: view.PreviewText,
				URL:         render.PostURL(g.publicURL, post.ID),
				OGType:      "article",
			},
			Post: &view,
		}
		if err := g.writePage(filepath.Join(dir, "posts", post.ID, "index.html"), render.PagePost, page); err != nil {
			return nil, err
		}
		result.Pages++
	}

	var feed bytes.Buffer
	if err := g.renderer.WriteFeed(&feed, g.publicURL, posts); err != nil {
		return nil, fmt.Errorf("failed to render feed: %w", err)
	}
	if err := writeFile(filepath.Join(dir, "feed.xml"), feed.Bytes()); err != nil {
		return nil, err
	}

	g.logger.Info("静的サイトを生成しました",
		slog.String("render_id", rc.ID),
		slog.String("dir", dir),
		slog.Int("pages", result.Pages),
		slog.Int("skipped", len(result.Skipped)),
	)
	return result, nil
}

func (g *Generator) writePage(path, name string, page render.Page) error {
	var buf bytes.Buffer
	if err := g.renderer.Render(&buf, name, page); err != nil {
		return err
	}
	return writeFile(path, buf.Bytes())
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// safePathSegment はIDをそのまま1階層のディレクトリ名として使えるかを返す。
func safePathSegment(id string) bool {
	if id == "" || id == "." || id == ".." {
		return false
	}
	return !strings.ContainsAny(id, `/\`+"\x00")
}
