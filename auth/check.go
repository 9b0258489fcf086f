package auth

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

type (
	// Check resolves the token of a single request at most once, no
	// matter how many call sites ask for the current user or how many of
	// them ask at the same time.
	Check struct {
		resolver *Resolver
		token    string
		detached context.Context

		group      singleflight.Group
		mu         sync.Mutex
		resolved   bool
		result     Resolution
		done       chan struct{}
		authorized atomic.Bool
	}

	checkKey struct{}
)

// NewCheck prepares the check for one request. ctx is only used for its
// values (logger and such), its cancellation is ignored so a client that
// goes away does not tear down store work half way.
func NewCheck(ctx context.Context, resolver *Resolver, token string) *Check {
	return &Check{
		resolver: resolver,
		token:    token,
		detached: context.WithoutCancel(ctx),
		done:     make(chan struct{}),
	}
}

func WithCheck(ctx context.Context, c *Check) context.Context {
	return context.WithValue(ctx, checkKey{}, c)
}

func CheckFrom(ctx context.Context) *Check {
	c, _ := ctx.Value(checkKey{}).(*Check)
	return c
}

// Resolve returns the memoized resolution, running the resolver if no
// other caller did it yet. If ctx is cancelled while waiting the caller
// gets ctx.Err() and the resolution keeps going for everyone else.
func (c *Check) Resolve(ctx context.Context) (Resolution, error) {
	if res, ok := c.cached(); ok {
		return res, nil
	}
	ch := c.group.DoChan("resolve", func() (interface{}, error) {
		if res, ok := c.cached(); ok {
			return res, nil
		}
		res := c.resolver.Resolve(c.detached, c.token)
		c.mu.Lock()
		// authorized must be set before resolved is visible to Peek.
		if _, ok := res.Identity(); ok {
			c.authorized.Store(true)
		}
		c.result = res
		c.resolved = true
		c.mu.Unlock()
		close(c.done)
		return res, nil
	})
	select {
	case <-ctx.Done():
		return Resolution{}, ctx.Err()
	case r := <-ch:
		return r.Val.(Resolution), nil
	}
}

func (c *Check) cached() (Resolution, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result, c.resolved
}

// Authorized is the one boolean consumers should gate protected content
// on. It becomes true once, after a confirmed resolution, and stays true
// for the rest of the request.
func (c *Check) Authorized() bool {
	return c.authorized.Load()
}

// Done is closed when the resolution finished, whatever its outcome.
func (c *Check) Done() <-chan struct{} {
	return c.done
}

// Peek returns the resolution without waiting, ok is false while it is
// still pending or was never asked for.
func (c *Check) Peek() (res Resolution, ok bool) {
	return c.cached()
}

// ClearToken reports whether the finished resolution asked for the client
// token to be removed. It is false while the resolution is pending.
func (c *Check) ClearToken() bool {
	res, ok := c.cached()
	return ok && res.ClearToken()
}

// CurrentUser never fails: a missing check, a rejected session or a
// cancelled wait all read as "no user".
func CurrentUser(ctx context.Context) (Identity, bool) {
	c := CheckFrom(ctx)
	if c == nil {
		return Identity{}, false
	}
	res, err := c.Resolve(ctx)
	if err != nil {
		return Identity{}, false
	}
	return res.Identity()
}

// RequireUser returns the confirmed identity or ErrUnauthenticated.
func RequireUser(ctx context.Context) (Identity, error) {
	id, ok := CurrentUser(ctx)
	if !ok {
		return Identity{}, ErrUnauthenticated
	}
	return id, nil
}
