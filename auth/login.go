package auth

import (
	"context"

	"github.com/andrebq/sealgate/credstore"
	"github.com/andrebq/sealgate/internal/logutil"
	"golang.org/x/crypto/bcrypt"
)

const dummyPassword = "sealgate-timing-equalizer"

// Login checks the credentials and returns a freshly sealed token holding
// only the user id.
//
// Unknown users, wrong passwords and disabled users all fail with
// ErrInvalidCredentials and all pay for one password comparison.
func (p *Program) Login(ctx context.Context, username string, passwd PlainText) (string, error) {
	defer passwd.Zero()
	log := logutil.GetOrDefault(ctx)
	if p.throttle != nil && !p.throttle.Allowed(username) {
		return "", ErrThrottled
	}
	if username == "" || len(passwd) == 0 || len(passwd) > MaxPasswordBytes {
		p.failed(username)
		return "", ErrInvalidCredentials
	}
	creds, err := p.store.LookupCredentials(ctx, username)
	if credstore.IsNotFound(err) {
		p.hasher.Verify(ctx, passwd, p.dummy(ctx))
		p.failed(username)
		return "", ErrInvalidCredentials
	} else if err != nil {
		log.Error().Err(err).Msg("Unable to lookup credentials")
		return "", storeUnavailable("login", err)
	}
	ok, err := p.hasher.Verify(ctx, passwd, creds.PassHash)
	if err != nil {
		log.Error().Err(err).Msg("Unable to verify password")
		return "", err
	}
	if !ok || creds.Disabled {
		p.failed(username)
		return "", ErrInvalidCredentials
	}
	if p.throttle != nil {
		p.throttle.Reset(username)
	}
	if p.hasher.NeedsRehash(creds.PassHash) {
		p.rehash(ctx, creds.ID, passwd)
	}
	token, err := p.sealer.Seal(Payload{ID: creds.ID})
	if err != nil {
		return "", err
	}
	log.Info().Str("user.id", creds.ID).Msg("User logged in")
	return token, nil
}

// Logout drops the identity from token and keeps the preferences. It
// returns the replacement token, empty when nothing is worth keeping.
func (p *Program) Logout(token string) string {
	payload, err := p.sealer.Unseal(token)
	if err != nil || payload.Theme == "" {
		return ""
	}
	out, err := p.sealer.Seal(Payload{Theme: payload.Theme})
	if err != nil {
		return ""
	}
	return out
}

func (p *Program) failed(username string) {
	if p.throttle != nil {
		p.throttle.Fail(username)
	}
}

func (p *Program) rehash(ctx context.Context, id string, passwd PlainText) {
	log := logutil.GetOrDefault(ctx)
	digest, err := p.hasher.Hash(ctx, passwd)
	if err != nil {
		log.Warn().Err(err).Msg("Unable to upgrade password digest")
		return
	}
	err = p.store.UpdatePassword(ctx, id, digest)
	if err != nil {
		log.Warn().Err(err).Str("user.id", id).Msg("Unable to store upgraded password digest")
	}
}

// dummy is the digest unknown users are compared against. If the configured
// hasher cannot produce it, bcrypt's default cost is used instead so the
// comparison still does real work.
func (p *Program) dummy(ctx context.Context) string {
	p.dummyOnce.Do(func() {
		digest, err := p.hasher.Hash(ctx, PlainText(dummyPassword))
		if err == nil {
			p.dummyDigest = digest
			return
		}
		log := logutil.GetOrDefault(ctx)
		log.Error().Err(err).Msg("Unable to compute timing digest, using bcrypt default cost")
		buf, err := bcrypt.GenerateFromPassword([]byte(dummyPassword), bcrypt.DefaultCost)
		if err != nil {
			log.Error().Err(err).Msg("Unable to compute fallback timing digest")
			return
		}
		p.dummyDigest = string(buf)
	})
	return p.dummyDigest
}
