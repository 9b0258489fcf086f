package auth

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	// DefaultMaxAge matches a two week session.
	DefaultMaxAge = 14 * 24 * time.Hour

	nonceSize      = 24
	maxTokenLength = 4096
)

var (
	tokenEncoding = base64.RawURLEncoding.Strict()
)

type (
	// Payload is what travels inside a sealed token. Only ID matters for
	// security and even that is re-checked against the store on every use.
	Payload struct {
		ID      string `json:"id,omitempty"`
		Theme   string `json:"theme,omitempty"`
		Expires int64  `json:"exp"`
	}

	Sealer struct {
		keys    *Keyring
		maxAge  time.Duration
		now     func() time.Time
		entropy io.Reader
	}
)

func NewSealer(keys *Keyring, maxAge time.Duration) *Sealer {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Sealer{
		keys:    keys,
		maxAge:  maxAge,
		now:     time.Now,
		entropy: rand.Reader,
	}
}

func (s *Sealer) MaxAge() time.Duration {
	return s.maxAge
}

// Seal encrypts p with the current key. A payload without an expiration
// gets one maxAge from now, re-sealing an existing payload keeps it.
func (s *Sealer) Seal(p Payload) (string, error) {
	if p.Expires == 0 {
		p.Expires = s.now().Add(s.maxAge).Unix()
	}
	msg, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("unable to encode session payload, cause %w", err)
	}
	var nonce [nonceSize]byte
	_, err = io.ReadFull(s.entropy, nonce[:])
	if err != nil {
		return "", fmt.Errorf("unable to generate nonce, cause %w", err)
	}
	box := secretbox.Seal(nonce[:], msg, &nonce, (*[32]byte)(s.keys.current))
	return tokenEncoding.EncodeToString(box), nil
}

// Unseal opens token with any key from the keyring. Every failure,
// including expiration, returns ErrInvalidToken.
func (s *Sealer) Unseal(token string) (Payload, error) {
	if len(token) == 0 || len(token) > maxTokenLength {
		return Payload{}, ErrInvalidToken
	}
	box, err := tokenEncoding.DecodeString(token)
	if err != nil || len(box) < nonceSize+secretbox.Overhead {
		return Payload{}, ErrInvalidToken
	}
	var nonce [nonceSize]byte
	copy(nonce[:], box[:nonceSize])
	var msg []byte
	var opened bool
	for _, k := range s.keys.keys() {
		msg, opened = secretbox.Open(nil, box[nonceSize:], &nonce, (*[32]byte)(k))
		if opened {
			break
		}
	}
	if !opened {
		return Payload{}, ErrInvalidToken
	}
	var p Payload
	err = json.Unmarshal(msg, &p)
	if err != nil {
		return Payload{}, ErrInvalidToken
	}
	if p.Expires <= s.now().Unix() {
		return Payload{}, ErrInvalidToken
	}
	return p, nil
}
