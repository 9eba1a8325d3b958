package store

import "net/http"

// TokenSource はRestore時にトークンと有効期限（エポックミリ秒の文字列）を読み出す元。
// サーバーレンダリングではRequestCookieSource、クライアントではLocalSourceを呼び出し側で選ぶ。
type TokenSource interface {
	LoadToken() (token, expiration string)
}

// RequestCookieSource は受信リクエストのCookieヘッダー文字列から値を読む。
type RequestCookieSource string

// LoadToken はjwtとexpirationDateのCookie値を返す。見つからない値は空文字列。
func (s RequestCookieSource) LoadToken() (string, string) {
	header := string(s)
	if header == "" {
		return "", ""
	}
	token := cookieValue(header, CookieTokenKey)
	if token == "" {
		return "", ""
	}
	return token, cookieValue(header, CookieExpirationKey)
}

// cookieValue はCookieヘッダーの解析をnet/httpに任せる。
// 引用符で囲まれた値は引用符を外し、不正な形式のペアは読み飛ばす。
func cookieValue(header, name string) string {
	r := http.Request{Header: http.Header{"Cookie": {header}}}
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

// LocalSource はローカルのキーバリューストアから値を読む。
type LocalSource struct {
	Store KeyValueStore
}

// LoadToken はtokenとtokenExpirationの値を返す。
func (s LocalSource) LoadToken() (string, string) {
	if s.Store == nil {
		return "", ""
	}
	token, _ := s.Store.Get(LocalTokenKey)
	expiration, _ := s.Store.Get(LocalExpirationKey)
	return token, expiration
}
