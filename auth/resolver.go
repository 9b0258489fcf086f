package auth

import (
	"context"

	"github.com/andrebq/sealgate/credstore"
	"github.com/andrebq/sealgate/internal/logutil"
	"github.com/google/uuid"
)

type (
	// UserLookup is the part of the credential store needed to confirm
	// a session.
	UserLookup interface {
		LookupByID(ctx context.Context, id string) (credstore.Profile, error)
	}

	Resolver struct {
		sealer *Sealer
		users  UserLookup
	}
)

func NewResolver(sealer *Sealer, users UserLookup) *Resolver {
	return &Resolver{
		sealer: sealer,
		users:  users,
	}
}

// Resolve turns a token into a confirmed identity. Nothing in the token
// besides the user id is trusted and the id is always re-read from the
// store, so deleted or disabled users stop resolving immediately.
//
// Resolve never fails, every problem becomes a rejected resolution.
func (r *Resolver) Resolve(ctx context.Context, token string) Resolution {
	log := logutil.GetOrDefault(ctx)
	if token == "" {
		return Resolution{state: StateNoToken}
	}
	payload, err := r.sealer.Unseal(token)
	if err != nil {
		log.Debug().Msg("Session token could not be unsealed")
		return Rejected(true)
	}
	if payload.ID == "" {
		// logged out, the token only carries preferences
		return Resolution{state: StateNoToken, theme: payload.Theme}
	}
	if _, err := uuid.Parse(payload.ID); err != nil {
		log.Warn().Msg("Session token carries a malformed user id")
		return Rejected(true)
	}
	profile, err := r.lookup(ctx, payload.ID)
	if err != nil {
		if credstore.IsNotFound(err) {
			log.Info().Str("user.id", payload.ID).Msg("Session references a user that no longer exists")
		} else {
			log.Error().Err(err).Str("user.id", payload.ID).Msg("Unable to confirm session against the credential store")
		}
		return Rejected(true)
	}
	if profile.Disabled {
		log.Info().Str("user.id", payload.ID).Msg("Session references a disabled user")
		return Rejected(true)
	}
	if profile.ID != payload.ID {
		return Rejected(true)
	}
	res := Confirmed(Identity{ID: profile.ID, Username: profile.Username})
	res.theme = payload.Theme
	return res
}

func (r *Resolver) lookup(ctx context.Context, id string) (p credstore.Profile, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = storeUnavailable("session lookup", panicError{rec})
		}
	}()
	return r.users.LookupByID(ctx, id)
}
