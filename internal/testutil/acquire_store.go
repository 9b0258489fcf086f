package testutil

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/andrebq/sealgate/credstore"
)

type (
	TestLog interface {
		Fatal(...interface{})
		Log(...interface{})
	}

	// CountingLookup wraps a UserLookup and counts how many times the
	// store was asked to confirm a user.
	CountingLookup struct {
		Next interface {
			LookupByID(ctx context.Context, id string) (credstore.Profile, error)
		}
		Delay time.Duration
		Err   error

		calls int32
	}
)

func AcquireStore(ctx context.Context, t TestLog, name string) (*credstore.Store, func()) {
	dir, err := os.MkdirTemp("", "sealgate-tests")
	if err != nil {
		t.Fatal(err)
	}
	abspath := filepath.Join(dir, name, "users.db")
	s, err := credstore.Open(ctx, abspath)
	if err != nil {
		t.Fatal(err)
	}
	return s, func() {
		err := s.Close()
		if err != nil {
			t.Log("unable to close credential store", err)
		}
		err = os.RemoveAll(dir)
		if err != nil {
			t.Log("unable to cleanup temp dir", dir)
		}
	}
}

func (c *CountingLookup) LookupByID(ctx context.Context, id string) (credstore.Profile, error) {
	atomic.AddInt32(&c.calls, 1)
	if c.Delay > 0 {
		time.Sleep(c.Delay)
	}
	if c.Err != nil {
		return credstore.Profile{}, c.Err
	}
	if c.Next == nil {
		return credstore.Profile{}, credstore.UserNotFound{Key: id}
	}
	return c.Next.LookupByID(ctx, id)
}

func (c *CountingLookup) Calls() int {
	return int(atomic.LoadInt32(&c.calls))
}
