package model

import "time"

// AuthToken はサインイン中ユーザーのBearerトークンと絶対有効期限を表す。
type AuthToken struct {
	Token     string
	ExpiresAt time.Time
}

// ValidAt は指定時刻においてトークンが有効かを返す。期限時刻ちょうどは無効。
func (t *AuthToken) ValidAt(now time.Time) bool {
	if t == nil || t.Token == "" {
		return false
	}
	return now.Before(t.ExpiresAt)
}

// ExpiresAtMillis は永続化用のエポックミリ秒表現を返す。
func (t *AuthToken) ExpiresAtMillis() int64 {
	return t.ExpiresAt.UnixMilli()
}

// Credentials はIdentityサービスに渡すメールアドレスとパスワード。
type Credentials struct {
	Email    string
	Password string
}

// IdentityResult はIdentityサービスのトークン交換結果。
// ExpiresInは秒数を表す10進文字列で返ってくる。
type IdentityResult struct {
	IDToken   string `json:"idToken"`
	ExpiresIn string `json:"expiresIn"`
	LocalID   string `json:"localId"`
	Email     string `json:"email"`
}

// UserClaims はIDトークン（JWT）から読み取った表示用のユーザー情報。
// 署名は検証しないため認可判断には使わない。
type UserClaims struct {
	UserID string
	Email  string
}
