package auth

import (
	"encoding/binary"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/allegro/bigcache/v3"
	"github.com/andrebq/sealgate/credstore"
	"github.com/cespare/xxhash/v2"
)

type (
	// Throttle counts failed logins per username. It does not care if the
	// username exists, so it cannot be used to probe for accounts.
	Throttle struct {
		cache       *bigcache.BigCache
		maxFailures int
		window      time.Duration
		now         func() time.Time
		mu          sync.Mutex
	}
)

func NewThrottle(maxFailures int, window time.Duration) (*Throttle, error) {
	if maxFailures <= 0 {
		maxFailures = 5
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	cfg := bigcache.DefaultConfig(window)
	cfg.Verbose = false
	cache, err := bigcache.NewBigCache(cfg)
	if err != nil {
		return nil, err
	}
	return &Throttle{
		cache:       cache,
		maxFailures: maxFailures,
		window:      window,
		now:         time.Now,
	}, nil
}

// Allowed is false once username collected maxFailures inside the window.
func (t *Throttle) Allowed(username string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	count, _ := t.load(t.key(username))
	return count < t.maxFailures
}

func (t *Throttle) Fail(username string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := t.key(username)
	count, since := t.load(key)
	if count == 0 {
		since = t.now()
	}
	var buf [12]byte
	binary.BigEndian.PutUint64(buf[:8], uint64(since.Unix()))
	binary.BigEndian.PutUint32(buf[8:], uint32(count+1))
	t.cache.Set(key, buf[:])
}

func (t *Throttle) Reset(username string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cache.Delete(t.key(username))
}

func (t *Throttle) Close() error {
	return t.cache.Close()
}

func (t *Throttle) load(key string) (int, time.Time) {
	buf, err := t.cache.Get(key)
	if errors.Is(err, bigcache.ErrEntryNotFound) || len(buf) != 12 {
		return 0, time.Time{}
	}
	since := time.Unix(int64(binary.BigEndian.Uint64(buf[:8])), 0)
	if t.now().Sub(since) > t.window {
		return 0, time.Time{}
	}
	return int(binary.BigEndian.Uint32(buf[8:])), since
}

func (t *Throttle) key(username string) string {
	return strconv.FormatUint(xxhash.Sum64String(credstore.NormalizeUsername(username)), 16)
}
