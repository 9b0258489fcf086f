package auth

import (
	"context"

	"github.com/andrebq/sealgate/credstore"
	"github.com/andrebq/sealgate/internal/logutil"
)

// Register creates a new user. Input is validated before any hashing so
// bad requests are rejected cheaply.
//
// When registration is closed it fails with ErrRegistrationClosed before
// looking at the input, nothing is revealed about existing usernames.
func (p *Program) Register(ctx context.Context, username string, passwd PlainText) (credstore.Profile, error) {
	defer passwd.Zero()
	if !p.RegistrationOpen() {
		return credstore.Profile{}, ErrRegistrationClosed
	}
	username = credstore.NormalizeUsername(username)
	if err := p.check(credentialsInput{Username: username, Password: passwd}); err != nil {
		return credstore.Profile{}, err
	}
	if p.policy != nil {
		if err := p.policy(ctx, username, passwd); err != nil {
			return credstore.Profile{}, err
		}
	}
	digest, err := p.hasher.Hash(ctx, passwd)
	if err != nil {
		return credstore.Profile{}, err
	}
	log := logutil.GetOrDefault(ctx)
	profile, err := p.store.CreateUser(ctx, username, digest)
	if err != nil {
		err = mapStoreError("register", err)
		if err != ErrAlreadyExists {
			log.Error().Err(err).Msg("Unable to store new user")
		}
		return credstore.Profile{}, err
	}
	log.Info().Str("user.id", profile.ID).Msg("User registered")
	return profile, nil
}

// SetPassword replaces the password of id without asking for the old one,
// it is meant for operators.
func (p *Program) SetPassword(ctx context.Context, id string, passwd PlainText) error {
	defer passwd.Zero()
	if err := p.check(passwordInput{Password: passwd}); err != nil {
		return err
	}
	digest, err := p.hasher.Hash(ctx, passwd)
	if err != nil {
		return err
	}
	return mapStoreError("set password", p.store.UpdatePassword(ctx, id, digest))
}

// ChangePassword replaces the password of id after checking the current
// one. A wrong current password is reported as ErrInvalidCredentials.
func (p *Program) ChangePassword(ctx context.Context, id string, current, next PlainText) error {
	defer current.Zero()
	defer next.Zero()
	if err := p.check(passwordInput{Password: next}); err != nil {
		return err
	}
	creds, err := p.store.LookupCredentialsByID(ctx, id)
	if err != nil {
		err = mapStoreError("change password", err)
		if err == ErrNotFound {
			return ErrInvalidCredentials
		}
		return err
	}
	ok, err := p.hasher.Verify(ctx, current, creds.PassHash)
	if err != nil {
		return err
	}
	if !ok || creds.Disabled {
		return ErrInvalidCredentials
	}
	digest, err := p.hasher.Hash(ctx, next)
	if err != nil {
		return err
	}
	return mapStoreError("change password", p.store.UpdatePassword(ctx, id, digest))
}
