// Package auth はFirebase Identity Toolkitによるメールアドレス・パスワード認証を提供する。
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/hitoshi/wdblog/internal/metrics"
	"github.com/hitoshi/wdblog/internal/model"
)

const (
	// DefaultIdentityBaseURL はIdentity Toolkit REST APIのベースURL。
	DefaultIdentityBaseURL = "https://identitytoolkit.googleapis.com/v1"

	signInPath = "/accounts:signInWithPassword"
	signUpPath = "/accounts:signUp"
)

// PasswordProviderConfig はPasswordProviderの設定。
type PasswordProviderConfig struct {
	APIKey string

	// テスト用にオーバーライド可能なURL
	BaseURL string
}

// PasswordProvider はメールアドレスとパスワードをIDトークンに交換する。
type PasswordProvider struct {
	config     PasswordProviderConfig
	httpClient *http.Client
	logger     *slog.Logger
	metrics    metrics.MetricsCollector
}

// NewPasswordProvider はPasswordProviderを生成する。
func NewPasswordProvider(config PasswordProviderConfig, httpClient *http.Client, logger *slog.Logger, collector metrics.MetricsCollector) *PasswordProvider {
	if config.BaseURL == "" {
		config.BaseURL = DefaultIdentityBaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if collector == nil {
		collector = metrics.Discard
	}
	return &PasswordProvider{
		config:     config,
		httpClient: httpClient,
		logger:     logger,
		metrics:    collector,
	}
}

// exchangeRequest はトークン交換リクエストのボディ。
type exchangeRequest struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	ReturnSecureToken bool   `json:"returnSecureToken"`
}

// identityErrorResponse はIdentity Toolkitのエラーレスポンス。
type identityErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Exchange はisLoginに応じてサインインまたはサインアップを行い、IDトークンを返す。
// Identity Toolkitが返したエラーは AUTH_FAILED の model.APIError に変換する。
func (p *PasswordProvider) Exchange(ctx context.Context, creds model.Credentials, isLogin bool) (*model.IdentityResult, error) {
	mode := "signUp"
	if isLogin {
		mode = "signIn"
	}

	res, err := p.exchange(ctx, mode, p.EndpointURL(isLogin), creds)
	p.metrics.RecordAuthAttempt(mode, err == nil)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// EndpointURL はモードに対応するエンドポイントURLを返す。
func (p *PasswordProvider) EndpointURL(isLogin bool) string {
	path := signUpPath
	if isLogin {
		path = signInPath
	}
	return p.config.BaseURL + path + "?key=" + url.QueryEscape(p.config.APIKey)
}

func (p *PasswordProvider) exchange(ctx context.Context, mode, endpoint string, creds model.Credentials) (*model.IdentityResult, error) {
	body, err := json.Marshal(exchangeRequest{
		Email:             creds.Email,
		Password:          creds.Password,
		ReturnSecureToken: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode exchange request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create exchange request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.logger.Error("Identityサービスの呼び出しに失敗しました",
			slog.String("mode", mode),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("identity exchange failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read identity response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp identityErrorResponse
		reason := fmt.Sprintf("status %d", resp.StatusCode)
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error.Message != "" {
			reason = errResp.Error.Message
		}
		p.logger.Warn("Identityサービスが認証を拒否しました",
			slog.String("mode", mode),
			slog.Int("http_status", resp.StatusCode),
			slog.String("reason", reason),
		)
		return nil, model.NewAuthFailedError(reason)
	}

	var result model.IdentityResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to decode identity response: %w", err)
	}
	if result.IDToken == "" {
		return nil, model.NewAuthFailedError("empty id token")
	}
	return &result, nil
}
