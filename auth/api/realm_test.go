package api

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andrebq/sealgate/auth"
	"github.com/andrebq/sealgate/internal/testutil"
	"github.com/julienschmidt/httprouter"
	"github.com/steinfletcher/apitest"
	jsonpath "github.com/steinfletcher/apitest-jsonpath"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type testRealm struct {
	realm   *Realm
	program *auth.Program
	lookups *testutil.CountingLookup
	handler http.Handler
}

func acquireRealm(ctx context.Context, t *testing.T, registrationOpen bool) (*testRealm, func()) {
	store, cleanup := testutil.AcquireStore(ctx, t, "api")
	key, err := auth.GenerateKey(nil)
	require.NoError(t, err)
	keys, err := auth.NewKeyring(key, nil, true)
	require.NoError(t, err)
	sealer := auth.NewSealer(keys, time.Hour)
	program := auth.NewProgram(store, auth.NewHasher(bcrypt.MinCost), sealer, auth.Options{RegistrationOpen: registrationOpen})
	lookups := &testutil.CountingLookup{Next: store}
	realm := NewRealm(program, auth.NewResolver(sealer, lookups), auth.NewGuard("/login"), Options{})
	return &testRealm{
		realm:   realm,
		program: program,
		lookups: lookups,
		handler: realm.Handler(),
	}, cleanup
}

func (tr *testRealm) login(t *testing.T, user, passwd string) string {
	res := apitest.New().
		Handler(tr.handler).
		Post("/auth/login").
		JSON(fmt.Sprintf(`{"username": %q, "password": %q}`, user, passwd)).
		Expect(t).
		Status(http.StatusOK).
		Assert(jsonpath.Present("$.token")).
		CookiePresent(DefaultCookieName).
		End()
	return sessionCookie(t, res.Response).Value
}

func sessionCookie(t *testing.T, res *http.Response) *http.Cookie {
	for _, c := range res.Cookies() {
		if c.Name == DefaultCookieName {
			return c
		}
	}
	t.Fatal("session cookie not found")
	return nil
}

func TestRegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	tr, cleanup := acquireRealm(ctx, t, true)
	defer cleanup()

	apitest.New().
		Handler(tr.handler).
		Post("/auth/register").
		JSON(`{"username": "Alice", "password": "correct horse battery"}`).
		Expect(t).
		Status(http.StatusCreated).
		Assert(jsonpath.Equal("$.username", "alice")).
		Assert(jsonpath.Present("$.id")).
		End()

	apitest.New().
		Handler(tr.handler).
		Post("/auth/register").
		FormData("username", "alice").
		FormData("password", "another long password").
		Expect(t).
		Status(http.StatusConflict).
		End()

	apitest.New().
		Handler(tr.handler).
		Post("/auth/register").
		JSON(`{"username": "bob", "password": "short"}`).
		Expect(t).
		Status(http.StatusBadRequest).
		Assert(jsonpath.Equal("$.field", "password")).
		End()

	apitest.New().
		Handler(tr.handler).
		Post("/auth/login").
		JSON(`{"username": "alice", "password": "wrong password!"}`).
		Expect(t).
		Status(http.StatusUnauthorized).
		CookieNotPresent(DefaultCookieName).
		End()

	token := tr.login(t, "alice", "correct horse battery")

	apitest.New().
		Handler(tr.handler).
		Get("/api/whoami").
		Header("Authorization", "Bearer "+token).
		Expect(t).
		Status(http.StatusOK).
		Assert(jsonpath.Equal("$.username", "alice")).
		End()

	apitest.New().
		Handler(tr.handler).
		Get("/api/whoami").
		Cookie(DefaultCookieName, token).
		Expect(t).
		Status(http.StatusOK).
		Assert(jsonpath.Equal("$.username", "alice")).
		End()
}

func TestRegistrationClosed(t *testing.T) {
	ctx := context.Background()
	tr, cleanup := acquireRealm(ctx, t, false)
	defer cleanup()

	apitest.New().
		Handler(tr.handler).
		Post("/auth/register").
		JSON(`{"username": "alice", "password": "correct horse battery"}`).
		Expect(t).
		Status(http.StatusForbidden).
		End()

	// a broken body must not tell closed apart from open
	apitest.New().
		Handler(tr.handler).
		Post("/auth/register").
		JSON(`{not json`).
		Expect(t).
		Status(http.StatusForbidden).
		End()

	apitest.New().
		Handler(tr.handler).
		Post("/auth/register").
		FormData("username", "").
		Expect(t).
		Status(http.StatusForbidden).
		End()
}

func TestProtect(t *testing.T) {
	ctx := context.Background()
	tr, cleanup := acquireRealm(ctx, t, true)
	defer cleanup()

	var count int32
	router := httprouter.New()
	tr.realm.Mount(router)
	router.Handler(http.MethodGet, "/private", tr.realm.Protect(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&count, 1)
		w.WriteHeader(http.StatusOK)
	})))
	handler := tr.realm.Middleware(router)

	apitest.Handler(handler).Get("/private").Expect(t).
		Status(http.StatusSeeOther).
		Header("Location", "/login").
		CookieNotPresent(DefaultCookieName).
		End()

	res := apitest.Handler(handler).Get("/private").Cookie(DefaultCookieName, "bm90LWEtdG9rZW4").Expect(t).
		Status(http.StatusSeeOther).
		Header("Location", "/login").
		CookiePresent(DefaultCookieName).
		End()
	assert.True(t, sessionCookie(t, res.Response).MaxAge < 0, "rejected cookie should be expired")

	apitest.Handler(handler).Get("/private").Header("Authorization", "Bearer bm90LWEtdG9rZW4").Expect(t).
		Status(http.StatusUnauthorized).
		End()
	assert.Equal(t, int32(0), atomic.LoadInt32(&count), "protected handler must not run for rejected requests")

	apitest.New().Handler(handler).Post("/auth/register").
		JSON(`{"username": "alice", "password": "correct horse battery"}`).
		Expect(t).Status(http.StatusCreated).End()
	token := tr.login(t, "alice", "correct horse battery")

	apitest.Handler(handler).Get("/private").Header("Authorization", "Bearer "+token).Expect(t).
		Status(http.StatusOK).
		End()
	assert.Equal(t, int32(1), atomic.LoadInt32(&count))
}

func TestMeNeverFails(t *testing.T) {
	ctx := context.Background()
	tr, cleanup := acquireRealm(ctx, t, true)
	defer cleanup()

	apitest.Handler(tr.handler).Get("/auth/me").Expect(t).
		Status(http.StatusOK).
		Assert(jsonpath.Equal("$.authenticated", false)).
		Assert(jsonpath.NotPresent("$.user")).
		End()

	res := apitest.Handler(tr.handler).Get("/auth/me").Cookie(DefaultCookieName, "garbage").Expect(t).
		Status(http.StatusOK).
		Assert(jsonpath.Equal("$.authenticated", false)).
		End()
	assert.True(t, sessionCookie(t, res.Response).MaxAge < 0)

	_, err := tr.program.Register(ctx, "alice", auth.PlainText("correct horse battery"))
	require.NoError(t, err)
	token := tr.login(t, "alice", "correct horse battery")

	before := tr.lookups.Calls()
	apitest.Handler(tr.handler).Get("/auth/me").Cookie(DefaultCookieName, token).Expect(t).
		Status(http.StatusOK).
		Assert(jsonpath.Equal("$.authenticated", true)).
		Assert(jsonpath.Equal("$.user.username", "alice")).
		CookieNotPresent(DefaultCookieName).
		End()
	assert.Equal(t, before+1, tr.lookups.Calls(), "one request should confirm the user once")
}

func TestLogoutKeepsTheme(t *testing.T) {
	ctx := context.Background()
	tr, cleanup := acquireRealm(ctx, t, true)
	defer cleanup()

	_, err := tr.program.Register(ctx, "alice", auth.PlainText("correct horse battery"))
	require.NoError(t, err)
	token := tr.login(t, "alice", "correct horse battery")

	res := apitest.Handler(tr.handler).Put("/auth/theme").Cookie(DefaultCookieName, token).
		JSON(`{"theme": "dark"}`).
		Expect(t).
		Status(http.StatusNoContent).
		CookiePresent(DefaultCookieName).
		End()
	themed := sessionCookie(t, res.Response).Value

	apitest.Handler(tr.handler).Get("/auth/me").Cookie(DefaultCookieName, themed).Expect(t).
		Status(http.StatusOK).
		Assert(jsonpath.Equal("$.authenticated", true)).
		Assert(jsonpath.Equal("$.theme", "dark")).
		End()

	res = apitest.Handler(tr.handler).Post("/auth/logout").Cookie(DefaultCookieName, themed).Expect(t).
		Status(http.StatusNoContent).
		CookiePresent(DefaultCookieName).
		End()
	anonymous := sessionCookie(t, res.Response)
	assert.True(t, anonymous.MaxAge > 0)

	apitest.Handler(tr.handler).Get("/auth/me").Cookie(DefaultCookieName, anonymous.Value).Expect(t).
		Status(http.StatusOK).
		Assert(jsonpath.Equal("$.authenticated", false)).
		Assert(jsonpath.Equal("$.theme", "dark")).
		CookieNotPresent(DefaultCookieName).
		End()

	apitest.Handler(tr.handler).Get("/api/whoami").Cookie(DefaultCookieName, anonymous.Value).Expect(t).
		Status(http.StatusSeeOther).
		End()

	res = apitest.Handler(tr.handler).Post("/auth/logout").Cookie(DefaultCookieName, token).Expect(t).
		Status(http.StatusNoContent).
		End()
	assert.True(t, sessionCookie(t, res.Response).MaxAge < 0, "logout without preferences should drop the cookie")
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	tr, cleanup := acquireRealm(ctx, t, true)
	defer cleanup()

	_, err := tr.program.Register(ctx, "alice", auth.PlainText("correct horse battery"))
	require.NoError(t, err)
	token := tr.login(t, "alice", "correct horse battery")

	apitest.Handler(tr.handler).Post("/api/password").Header("Authorization", "Bearer "+token).
		JSON(`{"current": "not the password", "next": "staple battery horse"}`).
		Expect(t).
		Status(http.StatusForbidden).
		End()

	apitest.Handler(tr.handler).Post("/api/password").Header("Authorization", "Bearer "+token).
		JSON(`{"current": "correct horse battery", "next": "staple battery horse"}`).
		Expect(t).
		Status(http.StatusNoContent).
		End()

	apitest.Handler(tr.handler).Post("/auth/login").
		JSON(`{"username": "alice", "password": "correct horse battery"}`).
		Expect(t).
		Status(http.StatusUnauthorized).
		End()
	tr.login(t, "alice", "staple battery horse")
}

func TestDeletedUserIsRedirected(t *testing.T) {
	ctx := context.Background()
	tr, cleanup := acquireRealm(ctx, t, true)
	defer cleanup()

	profile, err := tr.program.Register(ctx, "alice", auth.PlainText("correct horse battery"))
	require.NoError(t, err)
	token := tr.login(t, "alice", "correct horse battery")
	require.NoError(t, tr.program.Delete(ctx, profile.ID))

	res := apitest.Handler(tr.handler).Get("/api/whoami").Cookie(DefaultCookieName, token).Expect(t).
		Status(http.StatusSeeOther).
		Header("Location", "/login").
		End()
	assert.True(t, sessionCookie(t, res.Response).MaxAge < 0)
}
