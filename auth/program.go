package auth

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/andrebq/sealgate/credstore"
	"github.com/go-playground/validator/v10"
)

type (
	// CredentialStore is everything the program needs from credstore.Store.
	CredentialStore interface {
		UserLookup
		CreateUser(ctx context.Context, username string, passHash string) (credstore.Profile, error)
		LookupCredentials(ctx context.Context, username string) (credstore.Credentials, error)
		LookupCredentialsByID(ctx context.Context, id string) (credstore.Credentials, error)
		UpdatePassword(ctx context.Context, id string, passHash string) error
		RenameUser(ctx context.Context, id string, username string) error
		SetDisabled(ctx context.Context, id string, disabled bool) error
		DeleteUser(ctx context.Context, id string) error
	}

	// PolicyFn is an extra registration check run after the built-in
	// validation and before any hashing work.
	PolicyFn func(ctx context.Context, username string, passwd PlainText) error

	Options struct {
		RegistrationOpen bool
		Throttle         *Throttle
		Policy           PolicyFn
	}

	// Program implements registration, login and account maintenance on
	// top of a credential store.
	Program struct {
		store            CredentialStore
		hasher           *Hasher
		sealer           *Sealer
		throttle         *Throttle
		policy           PolicyFn
		validate         *validator.Validate
		registrationOpen atomic.Bool

		dummyOnce   sync.Once
		dummyDigest string
	}

	credentialsInput struct {
		Username string    `validate:"required,min=3,max=32,username"`
		Password PlainText `validate:"min=8,max=72"`
	}

	usernameInput struct {
		Username string `validate:"required,min=3,max=32,username"`
	}

	passwordInput struct {
		Password PlainText `validate:"min=8,max=72"`
	}

	themeInput struct {
		Theme string `validate:"omitempty,max=32,alphanum"`
	}
)

var (
	reValidUsername = regexp.MustCompile(`^[\p{L}\p{N}._-]+$`)
)

func NewProgram(store CredentialStore, hasher *Hasher, sealer *Sealer, opts Options) *Program {
	v := validator.New()
	v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return reValidUsername.MatchString(fl.Field().String())
	})
	p := &Program{
		store:    store,
		hasher:   hasher,
		sealer:   sealer,
		throttle: opts.Throttle,
		policy:   opts.Policy,
		validate: v,
	}
	p.registrationOpen.Store(opts.RegistrationOpen)
	return p
}

func (p *Program) RegistrationOpen() bool {
	return p.registrationOpen.Load()
}

func (p *Program) SetRegistrationOpen(open bool) {
	p.registrationOpen.Store(open)
}

func (p *Program) Sealer() *Sealer {
	return p.sealer
}

func (p *Program) Delete(ctx context.Context, id string) error {
	return mapStoreError("delete user", p.store.DeleteUser(ctx, id))
}

func (p *Program) SetDisabled(ctx context.Context, id string, disabled bool) error {
	return mapStoreError("change user state", p.store.SetDisabled(ctx, id, disabled))
}

func (p *Program) Rename(ctx context.Context, id string, username string) error {
	username = credstore.NormalizeUsername(username)
	if err := p.check(usernameInput{Username: username}); err != nil {
		return err
	}
	return mapStoreError("rename user", p.store.RenameUser(ctx, id, username))
}

// SetTheme returns token re-sealed with a new display theme. An invalid or
// missing token starts a fresh anonymous one.
func (p *Program) SetTheme(token string, theme string) (string, error) {
	if err := p.check(themeInput{Theme: theme}); err != nil {
		return "", err
	}
	payload, err := p.sealer.Unseal(token)
	if err != nil {
		payload = Payload{}
	}
	payload.Theme = theme
	return p.sealer.Seal(payload)
}

func (p *Program) check(input interface{}) error {
	err := p.validate.Struct(input)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return fmt.Errorf("unable to validate input, cause %w", err)
	}
	fe := verrs[0]
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return ValidationError{Field: field, Reason: "is required"}
	case "min":
		return ValidationError{Field: field, Reason: fmt.Sprintf("must have at least %v characters", fe.Param())}
	case "max":
		return ValidationError{Field: field, Reason: fmt.Sprintf("must have at most %v characters", fe.Param())}
	case "username":
		return ValidationError{Field: field, Reason: "may only contain letters, digits, '.', '_' and '-'"}
	case "alphanum":
		return ValidationError{Field: field, Reason: "may only contain letters and digits"}
	}
	return ValidationError{Field: field, Reason: "is not valid"}
}

func mapStoreError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case credstore.IsNotFound(err):
		return ErrNotFound
	case credstore.IsExists(err):
		return ErrAlreadyExists
	}
	return storeUnavailable(op, err)
}
