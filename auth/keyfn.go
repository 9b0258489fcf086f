package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
)

const (
	SecretEnvVar = "SEALGATE_SECRET"

	// MinPassphraseLength is the shortest secret accepted when it is not a
	// base64 encoded key.
	MinPassphraseLength = 32
)

type (
	PlainText []byte
	Key       [32]byte

	KeyFn func(context.Context) (*Key, error)

	// Keyring holds the key used to seal new tokens plus retired keys that
	// are still accepted when opening old ones.
	Keyring struct {
		current   *Key
		previous  []*Key
		ephemeral bool
	}
)

var (
	errMissingSecret = errors.New("refusing to start without a session secret in production")
)

func (p PlainText) Zero() {
	for i := range p {
		p[i] = 0
	}
}

func (k *Key) Zero() {
	for i := range k {
		k[i] = 0
	}
}

// ParseSecret turns an operator provided secret into a Key. The secret is
// either the base64 encoding of exactly 32 bytes or a passphrase with at
// least MinPassphraseLength characters.
func ParseSecret(secret string) (*Key, error) {
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		buf, err := enc.DecodeString(secret)
		if err == nil && len(buf) == len(Key{}) {
			var k Key
			copy(k[:], buf)
			PlainText(buf).Zero()
			return &k, nil
		}
	}
	if len(secret) < MinPassphraseLength {
		return nil, fmt.Errorf("auth: secret must be a base64 encoded 32 byte key or a passphrase with at least %v characters", MinPassphraseLength)
	}
	return DeriveKey(PlainText(secret)), nil
}

// GenerateKey reads a fresh random key from entropy.
func GenerateKey(entropy io.Reader) (*Key, error) {
	if entropy == nil {
		entropy = rand.Reader
	}
	var k Key
	_, err := io.ReadFull(entropy, k[:])
	if err != nil {
		return nil, fmt.Errorf("auth: unable to generate key, cause %w", err)
	}
	return &k, nil
}

// EncodeKey returns the representation accepted by ParseSecret.
func EncodeKey(k *Key) string {
	return base64.StdEncoding.EncodeToString(k[:])
}

// KeyFNFromEnv reads the secret kept at varname and clears the variable,
// so child processes and later reads of the environment cannot see it.
//
// An empty variable produces a KeyFn returning (nil, nil), the caller
// decides the posture for a missing secret.
func KeyFNFromEnv(varname string, getfn func(string) string, setfn func(string, string) error) (KeyFn, error) {
	if getfn == nil {
		getfn = os.Getenv
	}
	if setfn == nil {
		setfn = os.Setenv
	}
	val := getfn(varname)
	setfn(varname, "")
	if val == "" {
		return func(context.Context) (*Key, error) { return nil, nil }, nil
	}
	rootKey, err := ParseSecret(val)
	if err != nil {
		return nil, err
	}
	return func(_ context.Context) (*Key, error) {
		var k Key
		copy(k[:], rootKey[:])
		return &k, nil
	}, nil
}

// NewKeyring builds the process keyring. A nil current key is replaced by
// an ephemeral one unless production is set, in which case it fails.
func NewKeyring(current *Key, previous []*Key, production bool) (*Keyring, error) {
	kr := &Keyring{previous: previous}
	if current != nil {
		kr.current = current
		return kr, nil
	}
	if production {
		return nil, errMissingSecret
	}
	k, err := GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	kr.current = k
	kr.ephemeral = true
	return kr, nil
}

// Ephemeral is true when the current key was generated at startup, all
// sessions are lost when the process restarts.
func (k *Keyring) Ephemeral() bool {
	return k.ephemeral
}

func (k *Keyring) keys() []*Key {
	return append([]*Key{k.current}, k.previous...)
}
