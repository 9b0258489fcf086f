package auth

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHashAndVerify(t *testing.T) {
	ctx := context.Background()
	h := NewHasher(bcrypt.MinCost)
	digest, err := h.Hash(ctx, PlainText("correct horse"))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(digest, "$2a$04$"), "digest should encode algorithm and cost: %v", digest)

	again, err := h.Hash(ctx, PlainText("correct horse"))
	require.NoError(t, err)
	require.NotEqual(t, digest, again, "salt must be random")

	ok, err := h.Verify(ctx, PlainText("correct horse"), digest)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = h.Verify(ctx, PlainText("correct horsE"), digest)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestVerifyMalformedDigest(t *testing.T) {
	ctx := context.Background()
	h := NewHasher(bcrypt.MinCost)
	for _, digest := range []string{
		"",
		"short",
		"not-a-bcrypt-digest-but-long-enough-to-pass-the-length-check-xxxxxxx",
		"$2a$99$abcdefghijklmnopqrstuuabcdefghijklmnopqrstuvwxyz01234",
	} {
		ok, err := h.Verify(ctx, PlainText("password"), digest)
		if err != nil {
			t.Errorf("malformed digest %q should not be an error, got %v", digest, err)
		}
		if ok {
			t.Errorf("malformed digest %q should never verify", digest)
		}
	}
}

func TestNeedsRehash(t *testing.T) {
	ctx := context.Background()
	weak := NewHasher(bcrypt.MinCost)
	digest, err := weak.Hash(ctx, PlainText("password"))
	require.NoError(t, err)
	require.False(t, weak.NeedsRehash(digest))
	require.True(t, NewHasher(bcrypt.MinCost+1).NeedsRehash(digest))
	require.Equal(t, DefaultCost, NewHasher(0).Cost())
}
