// Package idempotency implements an idempotency-key cache: a POST
// request carrying an Idempotency-Key header is executed once, and
// replayed requests bearing the same key (scoped to the same API key)
// receive the original response instead of re-running the handler.
package idempotency

import (
	"fmt"
	"sync"

	"github.com/EnaiaInc/paper-tiger/pkg/clock"
)

// State is the lifecycle stage of a cached idempotency key.
type State int

const (
	// Absent means the key has never been seen.
	Absent State = iota
	// InFlight means a request with this key is currently being processed.
	InFlight
	// Complete means a request with this key has finished and its response
	// is cached.
	Complete
)

// Record is a cached idempotent response.
type Record struct {
	State      State
	StatusCode int
	Body       []byte
	ExpiresAt  int64
}

// ErrConflict is returned by Begin when a request with the same key is
// already in flight.
var ErrConflict = fmt.Errorf("idempotency: request with this key is already in progress")

// Cache is a concurrent idempotency-key store, keyed by "<apiKey>:<idempotencyKey>".
// Entries expire after a TTL measured against a clock.Clock so tests can
// fast-forward expiry instead of sleeping.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*Record
	clock   *clock.Clock
	ttl     int64 // seconds
}

// New creates a Cache with the given TTL (seconds), driven by clk.
func New(clk *clock.Clock, ttlSeconds int64) *Cache {
	return &Cache{
		entries: make(map[string]*Record),
		clock:   clk,
		ttl:     ttlSeconds,
	}
}

func key(apiKey, idemKey string) string {
	return apiKey + ":" + idemKey
}

// Begin records the start of processing for (apiKey, idemKey). It returns:
//   - (Absent, nil, nil) if this is a new key: the caller should process the
//     request and call Complete when done.
//   - (Complete, record, nil) if a response is already cached: the caller
//     should replay that response verbatim instead of re-executing.
//   - (InFlight, nil, ErrConflict) if a request with this key is currently
//     being processed: the caller should respond 409 idempotency_conflict.
//
// Non-2xx responses are not cached: Complete is only called by handlers
// on success, so a failed attempt leaves the key InFlight-then-Absent,
// letting the client retry.
func (c *Cache) Begin(apiKey, idemKey string) (State, *Record, error) {
	if idemKey == "" {
		return Absent, nil, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	k := key(apiKey, idemKey)
	now := c.clock.Now()

	rec, ok := c.entries[k]
	if ok && rec.State == Complete && rec.ExpiresAt > now {
		return Complete, rec, nil
	}
	if ok && rec.State == InFlight {
		return InFlight, nil, ErrConflict
	}

	c.entries[k] = &Record{State: InFlight}
	return Absent, nil, nil
}

// Complete stores the final response for (apiKey, idemKey) and marks it
// Complete. Forget releases the in-flight marker without caching anything,
// used when the handler errors or the response should not be cached.
func (c *Cache) Complete(apiKey, idemKey string, statusCode int, body []byte) {
	if idemKey == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	k := key(apiKey, idemKey)
	c.entries[k] = &Record{
		State:      Complete,
		StatusCode: statusCode,
		Body:       body,
		ExpiresAt:  c.clock.Now() + c.ttl,
	}
}

// Forget removes the in-flight marker for (apiKey, idemKey) without caching
// a response, letting a failed attempt be retried with the same key.
func (c *Cache) Forget(apiKey, idemKey string) {
	if idemKey == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key(apiKey, idemKey))
}

// Sweep removes every expired Complete entry. Callers run this
// periodically rather than on every lookup, to keep Begin cheap.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	removed := 0
	for k, rec := range c.entries {
		if rec.State == Complete && rec.ExpiresAt <= now {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Len reports the number of cached entries, including in-flight markers.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
