// Package tracking は解析イベントの送信（ビーコン）と受信・保存を提供する。
package tracking

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// Payload はトラッキングエンドポイントが受け付けるリクエストボディ。
type Payload struct {
	Data string `json:"data"`
}

// BeaconClient は解析イベントをトラッキングURLへPOSTする。
type BeaconClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	url        string
}

// NewBeaconClient はBeaconClientを生成する。
func NewBeaconClient(httpClient *http.Client, logger *slog.Logger, url string) *BeaconClient {
	return &BeaconClient{
		httpClient: httpClient,
		logger:     logger,
		url:        url,
	}
}

// Track は {"data": data} をトラッキングURLへ送る。2xx以外はエラーを返す。
func (c *BeaconClient) Track(ctx context.Context, data string) error {
	body, err := json.Marshal(Payload{Data: data})
	if err != nil {
		return fmt.Errorf("failed to encode track payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create track request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("track request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("track endpoint returned status %d", resp.StatusCode)
	}

	c.logger.Debug("解析イベントを送信しました", slog.String("data", data))
	return nil
}
