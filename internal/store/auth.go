package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hitoshi/wdblog/internal/model"
)

// 永続化キー。Cookieはサーバーレンダリング時にリクエストから読まれ、
// ローカルストアはクライアント側でのみ読まれる。
const (
	CookieTokenKey      = "jwt"
	CookieExpirationKey = "expirationDate"
	LocalTokenKey       = "token"
	LocalExpirationKey  = "tokenExpiration"
)

// trackAuthenticated は認証成功時に送る解析イベントのペイロード。
const trackAuthenticated = "Authenticated"

// defaultBeaconTimeout は解析ビーコン1回あたりの上限時間。
const defaultBeaconTimeout = 5 * time.Second

// IdentityExchanger はメールアドレス・パスワードをIDトークンに交換する。
// isLoginがtrueならサインイン、falseならサインアップのエンドポイントを使う。
type IdentityExchanger interface {
	Exchange(ctx context.Context, creds model.Credentials, isLogin bool) (*model.IdentityResult, error)
}

// Tracker は解析イベントを送信する。
type Tracker interface {
	Track(ctx context.Context, data string) error
}

// KeyValueStore は文字列キーで値を読み書きする永続ストア。
// Cookieストアとローカルストアの両方がこの形をとる。
type KeyValueStore interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	Remove(key string) error
}

// Authenticator はレンダーコンテキスト内の認証トークンのライフサイクルを管理する。
// 状態遷移: Anonymous →(Authenticate成功)→ Authenticated →(期限切れのRestore | Logout)→ Anonymous
type Authenticator struct {
	state    *State
	identity IdentityExchanger
	tracker  Tracker
	cookies  KeyValueStore
	local    KeyValueStore
	logger   *slog.Logger

	beaconTimeout time.Duration
	beacons       sync.WaitGroup
}

// NewAuthenticator はAuthenticatorを生成する。
// localはクライアント側のレンダーコンテキストでのみ指定し、サーバー側ではnilを渡す。
// trackerがnilの場合は解析ビーコンを送らない。
func NewAuthenticator(
	state *State,
	identity IdentityExchanger,
	tracker Tracker,
	cookies KeyValueStore,
	local KeyValueStore,
	logger *slog.Logger,
) *Authenticator {
	return &Authenticator{
		state:         state,
		identity:      identity,
		tracker:       tracker,
		cookies:       cookies,
		local:         local,
		logger:        logger,
		beaconTimeout: defaultBeaconTimeout,
	}
}

// Authenticate はIdentityサービスで認証し、得られたトークンをメモリ・Cookie・ローカルストアに保存する。
// 交換または永続化に失敗した場合はエラーを返し、メモリ上のトークンは直前の値のまま残る。
// 成功時は解析ビーコンを切り離したゴルーチンで送信し、その結果は戻り値に影響しない。
func (a *Authenticator) Authenticate(ctx context.Context, creds model.Credentials, isLogin bool) error {
	res, err := a.identity.Exchange(ctx, creds, isLogin)
	if err != nil {
		a.logger.Error("認証に失敗しました",
			slog.Bool("is_login", isLogin),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to authenticate: %w", err)
	}

	token, err := a.tokenFromResult(res)
	if err != nil {
		a.logger.Error("認証レスポンスが不正です", slog.String("error", err.Error()))
		return err
	}

	if err := a.persist(token); err != nil {
		a.logger.Error("トークンの保存に失敗しました", slog.String("error", err.Error()))
		return fmt.Errorf("failed to persist token: %w", err)
	}
	a.state.setToken(token)

	a.logger.Info("認証しました",
		slog.Bool("is_login", isLogin),
		slog.Time("expires_at", token.ExpiresAt),
	)

	a.sendBeacon(ctx)
	return nil
}

// Restore はトークンソースから候補値を読み出し、有効ならメモリに設定する。
// srcがnilの場合（静的生成など）は値なしとして扱う。
// トークンがない、期限が読めない、または現在時刻が期限以上の場合はLogoutする。
// 有効な場合もCookie・ローカルストアへの再保存は行わない。
func (a *Authenticator) Restore(src TokenSource) error {
	var token, expiration string
	if src != nil {
		token, expiration = src.LoadToken()
	}

	millis, err := strconv.ParseInt(expiration, 10, 64)
	if token == "" || err != nil {
		return a.Logout()
	}

	expiresAt := time.UnixMilli(millis)
	if !a.state.now().Before(expiresAt) {
		a.logger.Info("保存済みトークンの有効期限が切れています", slog.Time("expires_at", expiresAt))
		return a.Logout()
	}

	a.state.setToken(&model.AuthToken{Token: token, ExpiresAt: expiresAt})
	return nil
}

// Logout はメモリ上のトークンを消去し、Cookieとローカルストアのエントリを削除する。
// セッションがない状態で呼んでも副作用はない。
func (a *Authenticator) Logout() error {
	a.state.clearToken()

	var errs []error
	if a.cookies != nil {
		errs = append(errs,
			a.cookies.Remove(CookieTokenKey),
			a.cookies.Remove(CookieExpirationKey),
		)
	}
	if a.local != nil {
		errs = append(errs,
			a.local.Remove(LocalTokenKey),
			a.local.Remove(LocalExpirationKey),
		)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("failed to remove persisted token: %w", err)
	}
	return nil
}

// IsAuthenticated は有効なトークンを保持しているかを返す。
func (a *Authenticator) IsAuthenticated() bool {
	return a.state.IsAuthenticated()
}

// Claims は現在のIDトークンから表示用のユーザー情報を読み取る。
// 署名は検証しない。トークンがないかJWTとして読めない場合はfalseを返す。
func (a *Authenticator) Claims() (model.UserClaims, bool) {
	t := a.state.Token()
	if t == nil {
		return model.UserClaims{}, false
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(t.Token, claims); err != nil {
		return model.UserClaims{}, false
	}

	uc := model.UserClaims{}
	uc.Email, _ = claims["email"].(string)
	uc.UserID, _ = claims["user_id"].(string)
	if uc.UserID == "" {
		uc.UserID, _ = claims.GetSubject()
	}
	return uc, true
}

// Wait は送信中の解析ビーコンがすべて終わるまで待つ。
func (a *Authenticator) Wait() {
	a.beacons.Wait()
}

func (a *Authenticator) tokenFromResult(res *model.IdentityResult) (*model.AuthToken, error) {
	if res == nil || res.IDToken == "" {
		return nil, model.NewAuthFailedError("empty id token")
	}
	secs, err := strconv.ParseInt(res.ExpiresIn, 10, 64)
	if err != nil {
		return nil, model.NewAuthFailedError(fmt.Sprintf("invalid expiresIn %q", res.ExpiresIn))
	}
	expiresAt := a.state.now().Add(time.Duration(secs) * time.Second).Truncate(time.Millisecond)
	return &model.AuthToken{Token: res.IDToken, ExpiresAt: expiresAt}, nil
}

// persist はトークンと有効期限をCookie・ローカルストアに書き込む。
// 途中で失敗した場合は書き込み済みのキーを元の値に戻し、各ストアの組が食い違わないようにする。
func (a *Authenticator) persist(t *model.AuthToken) error {
	millis := strconv.FormatInt(t.ExpiresAtMillis(), 10)

	var written []savedEntry
	write := func(kv KeyValueStore, key, value string) error {
		prev, existed := kv.Get(key)
		if err := kv.Set(key, value); err != nil {
			return err
		}
		written = append(written, savedEntry{kv: kv, key: key, prev: prev, existed: existed})
		return nil
	}

	var err error
	if a.cookies != nil {
		if err = write(a.cookies, CookieTokenKey, t.Token); err == nil {
			err = write(a.cookies, CookieExpirationKey, millis)
		}
	}
	if err == nil && a.local != nil {
		if err = write(a.local, LocalTokenKey, t.Token); err == nil {
			err = write(a.local, LocalExpirationKey, millis)
		}
	}
	if err != nil {
		a.rollback(written)
		return err
	}
	return nil
}

// savedEntry は書き込み前のキーの状態。
type savedEntry struct {
	kv      KeyValueStore
	key     string
	prev    string
	existed bool
}

// rollback は書き込みと逆順に元の値を復元する。復元の失敗はログに残すのみ。
func (a *Authenticator) rollback(entries []savedEntry) {
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		var err error
		if e.existed {
			err = e.kv.Set(e.key, e.prev)
		} else {
			err = e.kv.Remove(e.key)
		}
		if err != nil {
			a.logger.Warn("保存済みトークンの復元に失敗しました",
				slog.String("key", e.key),
				slog.String("error", err.Error()),
			)
		}
	}
}

// sendBeacon は解析イベントをベストエフォートで送る。
// 呼び出し元のキャンセルに巻き込まれないよう、キャンセルを切り離したコンテキストを使う。
func (a *Authenticator) sendBeacon(ctx context.Context) {
	if a.tracker == nil {
		return
	}

	a.beacons.Add(1)
	go func() {
		defer a.beacons.Done()

		bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.beaconTimeout)
		defer cancel()

		if err := a.tracker.Track(bctx, trackAuthenticated); err != nil {
			a.logger.Warn("解析ビーコンの送信に失敗しました", slog.String("error", err.Error()))
		}
	}()
}
