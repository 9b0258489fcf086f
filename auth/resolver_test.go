package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/andrebq/sealgate/credstore"
	"github.com/andrebq/sealgate/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type fixedLookup struct {
	profile credstore.Profile
	panics  bool
}

func (f fixedLookup) LookupByID(ctx context.Context, id string) (credstore.Profile, error) {
	if f.panics {
		panic("store exploded")
	}
	return f.profile, nil
}

func TestRegisterLoginResolve(t *testing.T) {
	ctx := context.Background()
	env, cleanup := acquireEnv(ctx, t, Options{RegistrationOpen: true})
	defer cleanup()

	profile := mustRegister(ctx, t, env, "Alice", "wonderland")
	token := mustLogin(ctx, t, env, "alice", "wonderland")

	res := env.resolver.Resolve(ctx, token)
	id, ok := res.Identity()
	require.True(t, ok)
	require.Equal(t, StateConfirmed, res.State())
	require.Equal(t, profile.ID, id.ID)
	require.Equal(t, "alice", id.Username)
	require.False(t, res.ClearToken())
}

func TestResolveUsesStoreUsername(t *testing.T) {
	ctx := context.Background()
	env, cleanup := acquireEnv(ctx, t, Options{})
	defer cleanup()

	profile := mustRegister(ctx, t, env, "before", "password1")
	token := mustLogin(ctx, t, env, "before", "password1")
	require.NoError(t, env.program.Rename(ctx, profile.ID, "after"))

	id, ok := env.resolver.Resolve(ctx, token).Identity()
	require.True(t, ok)
	require.Equal(t, "after", id.Username, "username must come from the store, not the token")
}

func TestResolveNoToken(t *testing.T) {
	ctx := context.Background()
	env, cleanup := acquireEnv(ctx, t, Options{})
	defer cleanup()

	res := env.resolver.Resolve(ctx, "")
	_, ok := res.Identity()
	require.False(t, ok)
	require.Equal(t, StateNoToken, res.State())
	require.False(t, res.ClearToken())
}

func TestResolveTamperedToken(t *testing.T) {
	ctx := context.Background()
	env, cleanup := acquireEnv(ctx, t, Options{})
	defer cleanup()

	mustRegister(ctx, t, env, "mallory", "password1")
	mustRegister(ctx, t, env, "victim", "password1")
	token := mustLogin(ctx, t, env, "mallory", "password1")

	for i := 0; i < len(token); i++ {
		b := []byte(token)
		b[i] ^= 1
		res := env.resolver.Resolve(ctx, string(b))
		if _, ok := res.Identity(); ok {
			t.Fatalf("tampered token at %v resolved to an identity", i)
		}
		if !res.ClearToken() {
			t.Fatalf("tampered token at %v should be cleared", i)
		}
	}
}

func TestResolveDeletedUser(t *testing.T) {
	ctx := context.Background()
	env, cleanup := acquireEnv(ctx, t, Options{})
	defer cleanup()

	profile := mustRegister(ctx, t, env, "ghost", "password1")
	token := mustLogin(ctx, t, env, "ghost", "password1")
	require.NoError(t, env.program.Delete(ctx, profile.ID))

	_, err := env.sealer.Unseal(token)
	require.NoError(t, err, "the token itself is still fine")

	res := env.resolver.Resolve(ctx, token)
	_, ok := res.Identity()
	require.False(t, ok)
	require.Equal(t, StateRejected, res.State())
	require.True(t, res.ClearToken())
}

func TestResolveDisabledUser(t *testing.T) {
	ctx := context.Background()
	env, cleanup := acquireEnv(ctx, t, Options{})
	defer cleanup()

	profile := mustRegister(ctx, t, env, "sleepy", "password1")
	token := mustLogin(ctx, t, env, "sleepy", "password1")
	require.NoError(t, env.program.SetDisabled(ctx, profile.ID, true))

	_, ok := env.resolver.Resolve(ctx, token).Identity()
	require.False(t, ok)
}

func TestResolveStoreFailureFailsClosed(t *testing.T) {
	ctx := context.Background()
	sealer := NewSealer(testKeyring(t), 0)
	token, err := sealer.Seal(Payload{ID: uuid.NewString()})
	require.NoError(t, err)

	for name, lookup := range map[string]UserLookup{
		"error": &testutil.CountingLookup{Err: errors.New("disk on fire")},
		"panic": fixedLookup{panics: true},
	} {
		res := NewResolver(sealer, lookup).Resolve(ctx, token)
		if _, ok := res.Identity(); ok {
			t.Errorf("%v: store failure should not resolve", name)
		}
		if !res.ClearToken() {
			t.Errorf("%v: store failure should clear the token", name)
		}
	}
}

func TestResolveMalformedID(t *testing.T) {
	ctx := context.Background()
	sealer := NewSealer(testKeyring(t), 0)
	token, err := sealer.Seal(Payload{ID: "1"})
	require.NoError(t, err)
	counter := &testutil.CountingLookup{Next: fixedLookup{profile: credstore.Profile{ID: "1", Username: "root"}}}

	res := NewResolver(sealer, counter).Resolve(ctx, token)
	_, ok := res.Identity()
	require.False(t, ok)
	require.Equal(t, 0, counter.Calls(), "malformed ids never reach the store")
}

func TestEmptyIdentityIsAbsent(t *testing.T) {
	ctx := context.Background()
	sealer := NewSealer(testKeyring(t), 0)
	token, err := sealer.Seal(Payload{ID: uuid.NewString()})
	require.NoError(t, err)

	// a store that answers with an empty record instead of an error
	res := NewResolver(sealer, fixedLookup{profile: credstore.Profile{}}).Resolve(ctx, token)
	_, ok := res.Identity()
	require.False(t, ok)

	res = Confirmed(Identity{Username: "nobody"})
	_, ok = res.Identity()
	require.False(t, ok)
	require.Equal(t, StateRejected, res.State())

	var zero Resolution
	_, ok = zero.Identity()
	require.False(t, ok)
	require.False(t, Identity{Username: "x"}.Valid())
}

func TestLoggedOutTokenKeepsTheme(t *testing.T) {
	ctx := context.Background()
	env, cleanup := acquireEnv(ctx, t, Options{})
	defer cleanup()

	mustRegister(ctx, t, env, "painter", "password1")
	token := mustLogin(ctx, t, env, "painter", "password1")
	token, err := env.program.SetTheme(token, "dark")
	require.NoError(t, err)

	out := env.program.Logout(token)
	require.NotEmpty(t, out)
	res := env.resolver.Resolve(ctx, out)
	_, ok := res.Identity()
	require.False(t, ok)
	require.Equal(t, StateNoToken, res.State())
	require.Equal(t, "dark", res.Theme())
	require.False(t, res.ClearToken())

	require.Empty(t, env.program.Logout(""), "logout twice must not fail")
	require.Empty(t, env.program.Logout("garbage"))
}
