package store

import (
	"bytes"
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hitoshi/wdblog/internal/model"
)

func newTestAuthenticator(identity IdentityExchanger, tracker Tracker, cookies, local KeyValueStore) (*Authenticator, *State) {
	var buf bytes.Buffer
	s := newTestState(&mockPostStore{})
	a := NewAuthenticator(s, identity, tracker, cookies, local, newTestLogger(&buf))
	return a, s
}

func millis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func TestAuthenticator_Authenticate_PersistsTokenEverywhere(t *testing.T) {
	var gotCreds model.Credentials
	var gotLogin bool
	identity := &mockIdentity{
		exchangeFn: func(ctx context.Context, creds model.Credentials, isLogin bool) (*model.IdentityResult, error) {
			gotCreds = creds
			gotLogin = isLogin
			return &model.IdentityResult{IDToken: "T", ExpiresIn: "3600"}, nil
		},
	}
	tracker := &mockTracker{}
	cookies := newRecordingKV()
	local := newRecordingKV()
	a, s := newTestAuthenticator(identity, tracker, cookies, local)

	err := a.Authenticate(context.Background(), model.Credentials{Email: "x@y.com", Password: "p"}, true)
	if err != nil {
		t.Fatalf("Authenticate がエラーを返した: %v", err)
	}
	a.Wait()

	if gotCreds.Email != "x@y.com" || gotCreds.Password != "p" || !gotLogin {
		t.Errorf("Exchange 引数 = (%+v, %v)", gotCreds, gotLogin)
	}

	tok := s.Token()
	if tok == nil || tok.Token != "T" {
		t.Fatalf("token = %+v, want T", tok)
	}
	wantExp := fixedNow.Add(3600 * time.Second)
	if !tok.ExpiresAt.Equal(wantExp) {
		t.Errorf("ExpiresAt = %v, want %v", tok.ExpiresAt, wantExp)
	}

	if v, _ := cookies.Get(CookieTokenKey); v != "T" {
		t.Errorf("cookie jwt = %q, want T", v)
	}
	if v, _ := cookies.Get(CookieExpirationKey); v != millis(wantExp) {
		t.Errorf("cookie expirationDate = %q, want %s", v, millis(wantExp))
	}
	if v, _ := local.Get(LocalTokenKey); v != "T" {
		t.Errorf("local token = %q, want T", v)
	}
	if v, _ := local.Get(LocalExpirationKey); v != millis(wantExp) {
		t.Errorf("local tokenExpiration = %q, want %s", v, millis(wantExp))
	}

	events := tracker.Events()
	if len(events) != 1 || events[0] != "Authenticated" {
		t.Errorf("tracker events = %v, want [Authenticated]", events)
	}
	if !a.IsAuthenticated() {
		t.Error("認証後は IsAuthenticated が true であるべき")
	}
}

func TestAuthenticator_Authenticate_SignUpMode(t *testing.T) {
	var gotLogin = true
	identity := &mockIdentity{
		exchangeFn: func(ctx context.Context, creds model.Credentials, isLogin bool) (*model.IdentityResult, error) {
			gotLogin = isLogin
			return &model.IdentityResult{IDToken: "T", ExpiresIn: "60"}, nil
		},
	}
	a, _ := newTestAuthenticator(identity, nil, newRecordingKV(), nil)

	if err := a.Authenticate(context.Background(), model.Credentials{Email: "a@b.c", Password: "p"}, false); err != nil {
		t.Fatalf("Authenticate がエラーを返した: %v", err)
	}
	if gotLogin {
		t.Error("isLogin=false がExchangeに渡されていない")
	}
}

func TestAuthenticator_Authenticate_FailureKeepsPriorToken(t *testing.T) {
	identity := &mockIdentity{
		exchangeFn: func(ctx context.Context, creds model.Credentials, isLogin bool) (*model.IdentityResult, error) {
			return nil, model.NewAuthFailedError("INVALID_PASSWORD")
		},
	}
	tracker := &mockTracker{}
	cookies := newRecordingKV()
	a, s := newTestAuthenticator(identity, tracker, cookies, nil)
	prior := &model.AuthToken{Token: "prior", ExpiresAt: fixedNow.Add(time.Hour)}
	s.setToken(prior)

	err := a.Authenticate(context.Background(), model.Credentials{Email: "x@y.com", Password: "bad"}, true)
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeAuthFailed {
		t.Fatalf("err = %v, want AUTH_FAILED", err)
	}
	a.Wait()

	if tok := s.Token(); tok == nil || tok.Token != "prior" {
		t.Errorf("token = %+v, want prior", tok)
	}
	if len(cookies.sets) != 0 {
		t.Errorf("失敗時にCookieを書き込んではならない: %v", cookies.sets)
	}
	if len(tracker.Events()) != 0 {
		t.Error("失敗時に解析ビーコンを送ってはならない")
	}
}

func TestAuthenticator_Authenticate_InvalidExpiresIn(t *testing.T) {
	identity := &mockIdentity{
		exchangeFn: func(ctx context.Context, creds model.Credentials, isLogin bool) (*model.IdentityResult, error) {
			return &model.IdentityResult{IDToken: "T", ExpiresIn: "soon"}, nil
		},
	}
	a, s := newTestAuthenticator(identity, nil, newRecordingKV(), nil)

	if err := a.Authenticate(context.Background(), model.Credentials{}, true); err == nil {
		t.Fatal("不正なexpiresInはエラーになるべき")
	}
	if s.Token() != nil {
		t.Error("部分的なトークンを保存してはならない")
	}
}

func TestAuthenticator_Authenticate_PersistFailureKeepsMemory(t *testing.T) {
	identity := &mockIdentity{
		exchangeFn: func(ctx context.Context, creds model.Credentials, isLogin bool) (*model.IdentityResult, error) {
			return &model.IdentityResult{IDToken: "T", ExpiresIn: "3600"}, nil
		},
	}
	local := newRecordingKV()
	local.err = errors.New("disk full")
	a, s := newTestAuthenticator(identity, nil, newRecordingKV(), local)

	if err := a.Authenticate(context.Background(), model.Credentials{}, true); err == nil {
		t.Fatal("永続化失敗はエラーになるべき")
	}
	if s.Token() != nil {
		t.Error("永続化に失敗したトークンをメモリに設定してはならない")
	}
}

func TestAuthenticator_Authenticate_PartialPersistFailureRestoresStores(t *testing.T) {
	identity := &mockIdentity{
		exchangeFn: func(ctx context.Context, creds model.Credentials, isLogin bool) (*model.IdentityResult, error) {
			return &model.IdentityResult{IDToken: "new", ExpiresIn: "3600"}, nil
		},
	}
	cookies := newRecordingKV()
	cookies.data[CookieTokenKey] = "old"
	cookies.data[CookieExpirationKey] = "1000"
	local := newRecordingKV()
	local.data[LocalTokenKey] = "old"
	local.data[LocalExpirationKey] = "1000"
	// トークンは書けたが有効期限の書き込みで失敗する
	local.failKey = LocalExpirationKey
	a, s := newTestAuthenticator(identity, nil, cookies, local)

	if err := a.Authenticate(context.Background(), model.Credentials{}, true); err == nil {
		t.Fatal("永続化失敗はエラーになるべき")
	}
	if s.Token() != nil {
		t.Error("永続化に失敗したトークンをメモリに設定してはならない")
	}

	for _, kv := range []struct {
		name  string
		store *recordingKV
		key   string
		want  string
	}{
		{"cookie jwt", cookies, CookieTokenKey, "old"},
		{"cookie expirationDate", cookies, CookieExpirationKey, "1000"},
		{"local token", local, LocalTokenKey, "old"},
		{"local tokenExpiration", local, LocalExpirationKey, "1000"},
	} {
		if got, _ := kv.store.Get(kv.key); got != kv.want {
			t.Errorf("%s = %q, want %q（元の値に戻すべき）", kv.name, got, kv.want)
		}
	}
}

func TestAuthenticator_Authenticate_PartialPersistFailureRemovesNewKeys(t *testing.T) {
	identity := &mockIdentity{
		exchangeFn: func(ctx context.Context, creds model.Credentials, isLogin bool) (*model.IdentityResult, error) {
			return &model.IdentityResult{IDToken: "new", ExpiresIn: "3600"}, nil
		},
	}
	local := newRecordingKV()
	local.failKey = LocalExpirationKey
	a, _ := newTestAuthenticator(identity, nil, nil, local)

	if err := a.Authenticate(context.Background(), model.Credentials{}, true); err == nil {
		t.Fatal("永続化失敗はエラーになるべき")
	}
	if _, ok := local.Get(LocalTokenKey); ok {
		t.Error("書き込み前に存在しなかったキーは削除されるべき")
	}
}

func TestAuthenticator_Authenticate_BeaconFailureIsIgnored(t *testing.T) {
	identity := &mockIdentity{
		exchangeFn: func(ctx context.Context, creds model.Credentials, isLogin bool) (*model.IdentityResult, error) {
			return &model.IdentityResult{IDToken: "T", ExpiresIn: "3600"}, nil
		},
	}
	tracker := &mockTracker{err: errors.New("tracking endpoint down")}
	a, s := newTestAuthenticator(identity, tracker, newRecordingKV(), nil)

	if err := a.Authenticate(context.Background(), model.Credentials{}, true); err != nil {
		t.Fatalf("ビーコン失敗が認証結果に影響した: %v", err)
	}
	a.Wait()
	if s.Token() == nil {
		t.Error("トークンが設定されていない")
	}
}

func TestAuthenticator_Authenticate_BeaconSurvivesCallerCancel(t *testing.T) {
	identity := &mockIdentity{
		exchangeFn: func(ctx context.Context, creds model.Credentials, isLogin bool) (*model.IdentityResult, error) {
			return &model.IdentityResult{IDToken: "T", ExpiresIn: "3600"}, nil
		},
	}
	ctxErr := make(chan error, 1)
	tracker := trackerFunc(func(ctx context.Context, data string) error {
		ctxErr <- ctx.Err()
		return nil
	})
	a, _ := newTestAuthenticator(identity, tracker, newRecordingKV(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	if err := a.Authenticate(ctx, model.Credentials{}, true); err != nil {
		t.Fatalf("Authenticate がエラーを返した: %v", err)
	}
	cancel()
	a.Wait()

	if err := <-ctxErr; err != nil {
		t.Errorf("ビーコンのコンテキストが呼び出し元のキャンセルに巻き込まれた: %v", err)
	}
}

type trackerFunc func(ctx context.Context, data string) error

func (f trackerFunc) Track(ctx context.Context, data string) error { return f(ctx, data) }

func TestAuthenticator_Restore_ValidCookieInstallsWithoutPersisting(t *testing.T) {
	cookies := newRecordingKV()
	a, s := newTestAuthenticator(&mockIdentity{}, nil, cookies, nil)

	exp := fixedNow.Add(time.Hour)
	header := "theme=dark; jwt=T; expirationDate=" + millis(exp)
	if err := a.Restore(RequestCookieSource(header)); err != nil {
		t.Fatalf("Restore がエラーを返した: %v", err)
	}

	tok := s.Token()
	if tok == nil || tok.Token != "T" || !tok.ExpiresAt.Equal(exp) {
		t.Errorf("token = %+v, want T expiring %v", tok, exp)
	}
	if len(cookies.sets) != 0 || len(cookies.rems) != 0 {
		t.Errorf("Restore で永続ストアを変更してはならない: sets=%v rems=%v", cookies.sets, cookies.rems)
	}
}

func TestAuthenticator_Restore_FromLocalSource(t *testing.T) {
	local := newRecordingKV()
	local.data[LocalTokenKey] = "L"
	local.data[LocalExpirationKey] = millis(fixedNow.Add(time.Minute))
	a, s := newTestAuthenticator(&mockIdentity{}, nil, newRecordingKV(), local)

	if err := a.Restore(LocalSource{Store: local}); err != nil {
		t.Fatalf("Restore がエラーを返した: %v", err)
	}
	if tok := s.Token(); tok == nil || tok.Token != "L" {
		t.Errorf("token = %+v, want L", tok)
	}
}

func TestAuthenticator_Restore_ExpiredIsIdempotent(t *testing.T) {
	cookies := newRecordingKV()
	local := newRecordingKV()
	local.data[LocalTokenKey] = "old"
	local.data[LocalExpirationKey] = millis(fixedNow.Add(-time.Minute))
	cookies.data[CookieTokenKey] = "old"
	cookies.data[CookieExpirationKey] = millis(fixedNow.Add(-time.Minute))
	a, s := newTestAuthenticator(&mockIdentity{}, nil, cookies, local)
	src := LocalSource{Store: local}

	for i := 0; i < 2; i++ {
		if err := a.Restore(src); err != nil {
			t.Fatalf("Restore(%d回目) がエラーを返した: %v", i+1, err)
		}
		if s.Token() != nil || a.IsAuthenticated() {
			t.Errorf("Restore(%d回目) 後は未認証であるべき", i+1)
		}
	}

	for _, key := range []string{CookieTokenKey, CookieExpirationKey} {
		if _, ok := cookies.Get(key); ok {
			t.Errorf("cookie %s が削除されていない", key)
		}
	}
	for _, key := range []string{LocalTokenKey, LocalExpirationKey} {
		if _, ok := local.Get(key); ok {
			t.Errorf("local %s が削除されていない", key)
		}
	}
}

func TestAuthenticator_Restore_ExpiryBoundaryIsExpired(t *testing.T) {
	a, s := newTestAuthenticator(&mockIdentity{}, nil, newRecordingKV(), nil)

	header := "jwt=T; expirationDate=" + millis(fixedNow)
	if err := a.Restore(RequestCookieSource(header)); err != nil {
		t.Fatalf("Restore がエラーを返した: %v", err)
	}
	if s.Token() != nil {
		t.Error("expirationDate == now は期限切れとして扱うべき")
	}
}

func TestAuthenticator_Restore_AbsentValuesLogout(t *testing.T) {
	tests := []struct {
		name string
		src  TokenSource
	}{
		{"静的生成（ソースなし）", nil},
		{"Cookieヘッダーなし", RequestCookieSource("")},
		{"jwt Cookieなし", RequestCookieSource("expirationDate=99999999999999")},
		{"expirationDate Cookieなし", RequestCookieSource("jwt=T")},
		{"expirationDate が数値でない", RequestCookieSource("jwt=T; expirationDate=tomorrow")},
		{"ローカルストアが空", LocalSource{Store: newRecordingKV()}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, s := newTestAuthenticator(&mockIdentity{}, nil, newRecordingKV(), nil)
			s.setToken(&model.AuthToken{Token: "stale", ExpiresAt: fixedNow.Add(time.Hour)})

			if err := a.Restore(tt.src); err != nil {
				t.Fatalf("Restore がエラーを返した: %v", err)
			}
			if s.Token() != nil {
				t.Errorf("token = %+v, want nil", s.Token())
			}
		})
	}
}

func TestAuthenticator_Logout_Idempotent(t *testing.T) {
	cookies := newRecordingKV()
	local := newRecordingKV()
	a, s := newTestAuthenticator(&mockIdentity{}, nil, cookies, local)

	if err := a.Logout(); err != nil {
		t.Fatalf("セッションなしの Logout がエラーを返した: %v", err)
	}
	if err := a.Logout(); err != nil {
		t.Fatalf("2回目の Logout がエラーを返した: %v", err)
	}
	if s.Token() != nil {
		t.Error("Logout 後にトークンが残っている")
	}
	if len(cookies.rems) != 4 || len(local.rems) != 4 {
		t.Errorf("削除呼び出し回数 cookies=%d local=%d, want 4/4", len(cookies.rems), len(local.rems))
	}
}

func TestAuthenticator_Logout_ServerContextSkipsLocal(t *testing.T) {
	cookies := newRecordingKV()
	a, _ := newTestAuthenticator(&mockIdentity{}, nil, cookies, nil)

	if err := a.Logout(); err != nil {
		t.Fatalf("Logout がエラーを返した: %v", err)
	}
	if len(cookies.rems) != 2 {
		t.Errorf("cookie削除回数 = %d, want 2", len(cookies.rems))
	}
}

func TestAuthenticator_Claims(t *testing.T) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"email":   "x@y.com",
		"user_id": "uid-1",
		"exp":     fixedNow.Add(time.Hour).Unix(),
	}).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("JWTの生成に失敗: %v", err)
	}

	a, s := newTestAuthenticator(&mockIdentity{}, nil, newRecordingKV(), nil)
	if _, ok := a.Claims(); ok {
		t.Error("トークンなしで Claims が取得できてはならない")
	}

	s.setToken(&model.AuthToken{Token: signed, ExpiresAt: fixedNow.Add(time.Hour)})
	claims, ok := a.Claims()
	if !ok {
		t.Fatal("Claims が取得できない")
	}
	if claims.Email != "x@y.com" || claims.UserID != "uid-1" {
		t.Errorf("claims = %+v", claims)
	}

	s.setToken(&model.AuthToken{Token: "not-a-jwt", ExpiresAt: fixedNow.Add(time.Hour)})
	if _, ok := a.Claims(); ok {
		t.Error("JWTでないトークンで Claims が取得できてはならない")
	}
}

func TestRequestCookieSource_ValueContainingEquals(t *testing.T) {
	token, exp := RequestCookieSource("jwt=a.b=c; expirationDate=1").LoadToken()
	if token != "a.b=c" || exp != "1" {
		t.Errorf("LoadToken = (%q, %q), want (a.b=c, 1)", token, exp)
	}
}

func TestRequestCookieSource_Parsing(t *testing.T) {
	tests := []struct {
		name      string
		header    string
		wantToken string
		wantExp   string
	}{
		{"引用符付きの値", `jwt="T"; expirationDate="1700000000000"`, "T", "1700000000000"},
		{"空白の揺れ", `theme=dark;jwt=T;   expirationDate=1`, "T", "1"},
		{"似た名前のCookie", `xjwt=other; jwt=T; expirationDate=1`, "T", "1"},
		{"不正なペアは読み飛ばす", `broken; jwt=T; expirationDate=1`, "T", "1"},
		{"jwtが空", `jwt=; expirationDate=1`, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, exp := RequestCookieSource(tt.header).LoadToken()
			if token != tt.wantToken || exp != tt.wantExp {
				t.Errorf("LoadToken(%q) = (%q, %q), want (%q, %q)", tt.header, token, exp, tt.wantToken, tt.wantExp)
			}
		})
	}
}
