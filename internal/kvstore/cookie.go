package kvstore

import (
	"net/http"
	"sync"
)

// CookieOptions はSet-Cookieに付与する属性。
type CookieOptions struct {
	Domain string
	Secure bool
	MaxAge int // 秒。0の場合はセッションCookie
}

// Cookie は1リクエスト分のCookieストア。
// 読み取りは受信リクエストのCookieと、このリクエスト中に設定した値を合わせて行う。
// 書き込みと削除はレスポンスのSet-Cookieヘッダーとして出力する。
type Cookie struct {
	w    http.ResponseWriter
	r    *http.Request
	opts CookieOptions

	mu      sync.Mutex
	pending map[string]*string // nilは削除済み
}

// NewCookie はリクエスト・レスポンスに紐づくCookieストアを生成する。
func NewCookie(w http.ResponseWriter, r *http.Request, opts CookieOptions) *Cookie {
	return &Cookie{w: w, r: r, opts: opts, pending: make(map[string]*string)}
}

// Get はCookie値を返す。
func (c *Cookie) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v, ok := c.pending[key]; ok {
		if v == nil {
			return "", false
		}
		return *v, true
	}
	ck, err := c.r.Cookie(key)
	if err != nil {
		return "", false
	}
	return ck.Value, true
}

// Set はSet-Cookieヘッダーを出力する。
func (c *Cookie) Set(key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	v := value
	c.pending[key] = &v
	http.SetCookie(c.w, c.cookie(key, value, c.opts.MaxAge))
	return nil
}

// Remove は有効期限切れのSet-Cookieヘッダーを出力する。
// リクエストにもこのリクエスト中の設定にも存在しないCookieの場合は何も出力しない。
func (c *Cookie) Remove(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, set := c.pending[key]
	_, err := c.r.Cookie(key)
	present := (set && v != nil) || (!set && err == nil)
	if !present {
		return nil
	}

	c.pending[key] = nil
	http.SetCookie(c.w, c.cookie(key, "", -1))
	return nil
}

func (c *Cookie) cookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   c.opts.Domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.opts.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}
