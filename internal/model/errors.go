// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, post, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodePostNotFound      = "POST_NOT_FOUND"
	ErrCodeInvalidPost       = "INVALID_POST"
	ErrCodeRemoteStoreFailed = "REMOTE_STORE_FAILED"
	ErrCodeAuthFailed        = "AUTH_FAILED"
	ErrCodeUnauthenticated   = "UNAUTHENTICATED"
	ErrCodeBootstrapFailed   = "BOOTSTRAP_FAILED"
	ErrCodeInvalidRequest    = "INVALID_REQUEST"
	ErrCodeInternal          = "INTERNAL_ERROR"
)

// NewPostNotFoundError は記事未検出エラーを生成する。
func NewPostNotFoundError(postID string) *APIError {
	return &APIError{
		Code:     ErrCodePostNotFound,
		Message:  fmt.Sprintf("指定された記事が見つかりません: %s", postID),
		Category: "post",
		Action:   "記事一覧を再読み込みしてから操作してください。",
	}
}

// NewInvalidPostError は入力不備エラーを生成する。
func NewInvalidPostError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidPost,
		Message:  fmt.Sprintf("記事の入力内容が不正です: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewRemoteStoreFailedError はリモートストアへの書き込み失敗エラーを生成する。
func NewRemoteStoreFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeRemoteStoreFailed,
		Message:  "記事の保存に失敗しました。",
		Category: "post",
		Action:   "ログイン状態を確認し、しばらく待ってから再度お試しください。",
	}
}

// NewAuthFailedError は認証失敗エラーを生成する。
// reasonにはIdentityサービスが返したエラーメッセージ（EMAIL_EXISTS等）を渡す。
func NewAuthFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeAuthFailed,
		Message:  fmt.Sprintf("認証に失敗しました: %s", reason),
		Category: "auth",
		Action:   "メールアドレスとパスワードを確認してください。",
	}
}

// NewUnauthenticatedError は未ログインエラーを生成する。
func NewUnauthenticatedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthenticated,
		Message:  "ログインが必要です。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewBootstrapFailedError は初期ロード失敗エラーを生成する。
func NewBootstrapFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeBootstrapFailed,
		Message:  "記事一覧を読み込めませんでした。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewInvalidRequestError はリクエスト形式の不備エラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("リクエストが不正です: %s", reason),
		Category: "validation",
		Action:   "リクエストの内容を確認してください。",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログにのみ記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
