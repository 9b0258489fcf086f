package auth

import (
	"golang.org/x/crypto/argon2"
)

var (
	passphraseSalt = []byte("sealgate/session-key/v1")
)

// DeriveKey stretches a passphrase into a session Key. The output must be
// stable across restarts, so every parameter (parallelism included) is
// fixed.
func DeriveKey(passphrase PlainText) *Key {
	var k Key
	// 7 passes over 10 MB should be a good replacement
	// for 1 pass over 64 MB of ram.
	buf := argon2.IDKey(passphrase, passphraseSalt, 7, 10*1024, 4, uint32(len(k)))
	copy(k[:], buf)
	PlainText(buf).Zero()
	return &k
}
