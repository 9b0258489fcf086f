package auth

import (
	"context"
	"errors"
)

const (
	OutcomeOK Outcome = iota
	OutcomeRedirect
	OutcomeFail
)

type (
	Outcome byte

	// Result is what a guarded operation hands back to the routing layer:
	// either a value, a redirect to the login boundary, or a failure.
	Result[T any] struct {
		Outcome    Outcome
		Value      T
		Target     string
		ClearToken bool
		Err        error
	}

	Guard struct {
		loginPath string
	}
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeRedirect:
		return "redirect"
	case OutcomeFail:
		return "fail"
	}
	return "unknown"
}

func NewGuard(loginPath string) *Guard {
	if loginPath == "" {
		loginPath = "/login"
	}
	return &Guard{loginPath: loginPath}
}

func (g *Guard) LoginPath() string {
	return g.loginPath
}

// Authorize waits for the request check and only accepts when its
// Authorized flag is set. A request without a check is rejected.
func (g *Guard) Authorize(ctx context.Context) Result[Identity] {
	c := CheckFrom(ctx)
	if c == nil {
		return g.redirect(false)
	}
	res, err := c.Resolve(ctx)
	if err != nil {
		return Result[Identity]{Outcome: OutcomeFail, Err: err}
	}
	id, ok := res.Identity()
	if !ok || !c.Authorized() {
		return g.redirect(res.ClearToken())
	}
	return Result[Identity]{Outcome: OutcomeOK, Value: id}
}

func (g *Guard) redirect(clear bool) Result[Identity] {
	return Result[Identity]{
		Outcome:    OutcomeRedirect,
		Target:     g.loginPath,
		ClearToken: clear,
		Err:        ErrUnauthenticated,
	}
}

// Run calls accessor only after the guard accepted the request. Protected
// data is never fetched for a request that ends up redirected.
func Run[T any](ctx context.Context, g *Guard, accessor func(context.Context, Identity) (T, error)) Result[T] {
	auth := g.Authorize(ctx)
	if auth.Outcome != OutcomeOK {
		return Result[T]{
			Outcome:    auth.Outcome,
			Target:     auth.Target,
			ClearToken: auth.ClearToken,
			Err:        auth.Err,
		}
	}
	val, err := accessor(ctx, auth.Value)
	if errors.Is(err, ErrUnauthenticated) {
		return Result[T]{Outcome: OutcomeRedirect, Target: g.loginPath, Err: err}
	} else if err != nil {
		return Result[T]{Outcome: OutcomeFail, Err: err}
	}
	return Result[T]{Outcome: OutcomeOK, Value: val}
}
