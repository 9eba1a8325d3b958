// Package poststore はリモート記事ストア（Firebase Realtime DatabaseのREST API）のクライアントを提供する。
// コレクションは {base}/posts.json 配下のキー・ドキュメント形式で保持される。
package poststore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hitoshi/wdblog/internal/metrics"
	"github.com/hitoshi/wdblog/internal/model"
)

// maxErrorBodySize はエラーレスポンスから読み取る最大バイト数。
const maxErrorBodySize = 4096

// StatusError はリモートストアが2xx以外のステータスを返したことを表す。
type StatusError struct {
	StatusCode int
	Body       string
}

// Error はerrorインターフェースを実装する。
func (e *StatusError) Error() string {
	return fmt.Sprintf("remote post store returned status %d: %s", e.StatusCode, e.Body)
}

// IsUnauthorized はトークン不正・期限切れによる拒否かを判定する。
func IsUnauthorized(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusUnauthorized || se.StatusCode == http.StatusForbidden
	}
	return false
}

// Client はリモート記事ストアのクライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
	metrics    metrics.MetricsCollector
}

// NewClient はClientを生成する。baseURLの末尾スラッシュは取り除く。
// collectorがnilの場合はメトリクスを記録しない。
func NewClient(httpClient *http.Client, logger *slog.Logger, baseURL string, collector metrics.MetricsCollector) *Client {
	if collector == nil {
		collector = metrics.Discard
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    strings.TrimRight(baseURL, "/"),
		metrics:    collector,
	}
}

// ListPosts はコレクション全体を1回のGETで取得する。
// 返却順はレスポンスJSONオブジェクトのキー順に一致する。
// 空のコレクション（null）は空スライスを返す。
func (c *Client) ListPosts(ctx context.Context) ([]model.Post, error) {
	resp, err := c.do(ctx, "list", http.MethodGet, c.collectionURL(""), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	posts, err := c.decodeOrderedPosts(resp.Body)
	if err != nil {
		c.logger.Error("記事一覧のパースに失敗しました", slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to decode post collection: %w", err)
	}
	return posts, nil
}

// CreatePost はドキュメントを追加し、ストアが採番したIDを返す。
// tokenはauthクエリパラメータとして付与する。
func (c *Client) CreatePost(ctx context.Context, token string, doc map[string]any) (string, error) {
	resp, err := c.do(ctx, "create", http.MethodPost, c.collectionURL(token), doc)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var result struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode create response: %w", err)
	}
	if result.Name == "" {
		return "", fmt.Errorf("create response has no generated id")
	}
	return result.Name, nil
}

// UpdatePost は posts/{id}.json のドキュメントを置き換える。
func (c *Client) UpdatePost(ctx context.Context, token, id string, doc map[string]any) error {
	if id == "" {
		return fmt.Errorf("post id is required")
	}
	resp, err := c.do(ctx, "update", http.MethodPut, c.documentURL(id, token), doc)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	// レスポンスは更新後のドキュメントのエコーなので読み捨てる
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// collectionURL は {base}/posts.json を組み立てる。
func (c *Client) collectionURL(token string) string {
	return withAuth(c.baseURL+"/posts.json", token)
}

// documentURL は {base}/posts/{id}.json を組み立てる。
func (c *Client) documentURL(id, token string) string {
	return withAuth(c.baseURL+"/posts/"+url.PathEscape(id)+".json", token)
}

func withAuth(u, token string) string {
	if token == "" {
		return u
	}
	return u + "?auth=" + url.QueryEscape(token)
}

// do はリクエストを送信し、2xxのレスポンスのみを返す。
// 失敗時はメトリクスとログを記録する。トークンはログに出さない。
func (c *Client) do(ctx context.Context, op, method, rawURL string, body any) (*http.Response, error) {
	start := time.Now()

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	c.metrics.RecordStoreLatency(op, time.Since(start))
	if err != nil {
		c.metrics.RecordStoreRequest(op, false)
		c.logger.Error("リモート記事ストアの呼び出しに失敗しました",
			slog.String("op", op),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("remote post store %s failed: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		c.metrics.RecordStoreRequest(op, false)
		c.logger.Error("リモート記事ストアがエラーステータスを返しました",
			slog.String("op", op),
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}

	c.metrics.RecordStoreRequest(op, true)
	return resp, nil
}

// decodeOrderedPosts はキー→ドキュメントのJSONオブジェクトを、キー順を保ったまま記事のスライスに変換する。
// 各記事のIDにはドキュメントキーを設定する。
// オブジェクトでない値の記事は警告を記録して読み飛ばし、コレクション全体は失敗させない。
func (c *Client) decodeOrderedPosts(r io.Reader) ([]model.Post, error) {
	dec := json.NewDecoder(r)

	tok, err := dec.Token()
	if err == io.EOF {
		return []model.Post{}, nil
	}
	if err != nil {
		return nil, err
	}
	if tok == nil {
		return []model.Post{}, nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("unexpected token %v: collection must be a JSON object", tok)
	}

	posts := []model.Post{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected key token %v", keyTok)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("failed to decode post %q: %w", key, err)
		}
		var doc map[string]any
		if err := json.Unmarshal(raw, &doc); err != nil {
			c.logger.Warn("記事ドキュメントがオブジェクトではないため読み飛ばしました",
				slog.String("post_id", key),
				slog.String("error", err.Error()),
			)
			continue
		}
		if doc == nil {
			continue
		}

		posts = append(posts, model.PostFromDocument(key, doc))
	}

	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return posts, nil
}
