package auth

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	// DefaultCost keeps a single hash around 100ms on current hardware,
	// bump it as hardware gets faster.
	DefaultCost = 12

	// MaxPasswordBytes is the longest input bcrypt will consider.
	MaxPasswordBytes = 72
)

type (
	Hasher struct {
		cost int
	}
)

func NewHasher(cost int) *Hasher {
	if cost == 0 {
		cost = DefaultCost
	}
	return &Hasher{cost: cost}
}

func (h *Hasher) Cost() int {
	return h.cost
}

// Hash returns the encoded digest (algorithm, cost, salt and hash) of passwd.
func (h *Hasher) Hash(ctx context.Context, passwd PlainText) (string, error) {
	buf, err := bcrypt.GenerateFromPassword(passwd, h.cost)
	if err != nil {
		return "", fmt.Errorf("unable to hash password, cause %w", err)
	}
	return string(buf), nil
}

// Verify reports whether passwd matches digest. A malformed digest is a
// mismatch, not an error.
func (h *Hasher) Verify(ctx context.Context, passwd PlainText, digest string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(digest), passwd)
	if err == nil {
		return true, nil
	}
	if malformedDigest(err) {
		return false, nil
	}
	return false, fmt.Errorf("unable to verify password, cause %w", err)
}

// NeedsRehash is true when digest was produced with a different work
// factor than the one currently configured.
func (h *Hasher) NeedsRehash(digest string) bool {
	cost, err := bcrypt.Cost([]byte(digest))
	if err != nil {
		return true
	}
	return cost != h.cost
}

func malformedDigest(err error) bool {
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) ||
		errors.Is(err, bcrypt.ErrHashTooShort) ||
		errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return true
	}
	var prefix bcrypt.InvalidHashPrefixError
	var cost bcrypt.InvalidCostError
	var version bcrypt.HashVersionTooNewError
	return errors.As(err, &prefix) || errors.As(err, &cost) || errors.As(err, &version)
}
