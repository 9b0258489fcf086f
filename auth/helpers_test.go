package auth

import (
	"context"
	"testing"
	"time"

	"github.com/andrebq/sealgate/credstore"
	"github.com/andrebq/sealgate/internal/testutil"
	"golang.org/x/crypto/bcrypt"
)

type testEnv struct {
	store    *credstore.Store
	sealer   *Sealer
	program  *Program
	resolver *Resolver
}

func testKeyring(t *testing.T) *Keyring {
	k, err := GenerateKey(nil)
	if err != nil {
		t.Fatal(err)
	}
	kr, err := NewKeyring(k, nil, true)
	if err != nil {
		t.Fatal(err)
	}
	return kr
}

func acquireEnv(ctx context.Context, t *testing.T, opts Options) (*testEnv, func()) {
	store, cleanup := testutil.AcquireStore(ctx, t, "auth")
	sealer := NewSealer(testKeyring(t), time.Hour)
	env := &testEnv{
		store:    store,
		sealer:   sealer,
		program:  NewProgram(store, NewHasher(bcrypt.MinCost), sealer, opts),
		resolver: NewResolver(sealer, store),
	}
	return env, cleanup
}

func mustRegister(ctx context.Context, t *testing.T, env *testEnv, user, passwd string) credstore.Profile {
	open := env.program.RegistrationOpen()
	env.program.SetRegistrationOpen(true)
	defer env.program.SetRegistrationOpen(open)
	p, err := env.program.Register(ctx, user, PlainText(passwd))
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func mustLogin(ctx context.Context, t *testing.T, env *testEnv, user, passwd string) string {
	token, err := env.program.Login(ctx, user, PlainText(passwd))
	if err != nil {
		t.Fatal(err)
	}
	return token
}
