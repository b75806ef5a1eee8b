package chaos

import (
	"math/rand"
	"sync"
	"time"
)

// PaymentOutcome is the result of a chaos-sampled payment attempt.
type PaymentOutcome struct {
	Declined    bool
	DeclineCode string // vendor-style decline code, e.g. "insufficient_funds"
}

// defaultDeclineWeights mirrors the common decline-code distribution real
// payment processors report, used when a config supplies no weights of its
// own.
var defaultDeclineWeights = map[string]float64{
	"card_declined":       0.4,
	"insufficient_funds":  0.3,
	"expired_card":        0.1,
	"incorrect_cvc":       0.1,
	"processing_error":    0.1,
}

// Coordinator samples payment, event, and API faults from a shared Config
// and rng, and counts every decision (read back through Snapshot).
type Coordinator struct {
	mu    sync.Mutex
	cfg   Config
	rng   *rand.Rand
	stats Stats

	// Event-chaos buffering state (see event.go).
	eventPending []interface{}
	eventTimer   *time.Timer
	eventFlushFn func([]interface{})
}

// New creates a Coordinator whose rng is seeded with rngSeed, so a given
// seed always yields the same sequence of decisions.
func New(cfg Config, rngSeed int64) *Coordinator {
	return &Coordinator{
		cfg:   cfg,
		rng:   rand.New(rand.NewSource(rngSeed)),
		stats: newStats(),
	}
}

// SetConfig swaps the active configuration.
func (c *Coordinator) SetConfig(cfg Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg = cfg
}

// Config returns a copy of the active configuration.
func (c *Coordinator) Config() Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// EvaluatePayment decides whether a payment attempt for customerID should
// decline, in precedence order: customer override, then global failure
// rate, then (if declining) a weighted decline-code sample.
func (c *Coordinator) EvaluatePayment(customerID string) PaymentOutcome {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.PaymentAttempts++

	if !c.cfg.Payment.Enabled {
		return PaymentOutcome{}
	}

	if override, ok := c.cfg.Payment.CustomerOverrides[customerID]; ok {
		if override.ForceDecline {
			c.stats.PaymentDeclines++
			return PaymentOutcome{Declined: true, DeclineCode: override.DeclineCode}
		}
		return PaymentOutcome{}
	}

	if c.rng.Float64() >= c.cfg.Payment.GlobalFailureRate {
		return PaymentOutcome{}
	}

	code := c.sampleDeclineCodeLocked()
	c.stats.PaymentDeclines++
	c.stats.DeclinesByCode[code]++
	return PaymentOutcome{Declined: true, DeclineCode: code}
}

// sampleDeclineCodeLocked must be called with c.mu held.
func (c *Coordinator) sampleDeclineCodeLocked() string {
	weights := c.cfg.Payment.DeclineWeights
	if len(weights) == 0 {
		weights = defaultDeclineWeights
	}

	var total float64
	for _, w := range weights {
		total += w
	}
	if total <= 0 {
		return "card_declined"
	}

	pick := c.rng.Float64() * total
	var cumulative float64
	// Map iteration order is random in Go, so which code a given `pick`
	// maps to varies between calls; each code is still chosen with
	// probability weight/total, whatever the visitation order.
	for code, w := range weights {
		cumulative += w
		if pick <= cumulative {
			return code
		}
	}
	return "card_declined"
}

// Stats is a snapshot of chaos decision counters across all three domains.
type Stats struct {
	PaymentAttempts int64
	PaymentDeclines int64
	DeclinesByCode  map[string]int64

	EventsPublished int64
	EventsBuffered  int64
	EventsReordered int64
	EventsDuplicated int64

	APIRequests    int64
	APITimeouts    int64
	APIRateLimited int64
	APIServerError int64
}

// newStats returns a Stats with its map initialized.
func newStats() Stats {
	return Stats{DeclinesByCode: make(map[string]int64)}
}

// Snapshot returns a copy of the current statistics.
func (c *Coordinator) Snapshot() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	byCode := make(map[string]int64, len(c.stats.DeclinesByCode))
	for k, v := range c.stats.DeclinesByCode {
		byCode[k] = v
	}
	snap := c.stats
	snap.DeclinesByCode = byCode
	return snap
}

// Reset zeroes every counter, keeping the active configuration.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats = newStats()
}
