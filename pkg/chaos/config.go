// Package chaos implements a fault-injection coordinator: per-customer
// and global decline sampling for payments, buffer/reorder/duplicate
// fault injection for the event pipeline, and timeout/rate-limit/
// server-error bands for the API layer. Its faults model business
// outcomes (decline codes, event ordering) rather than raw HTTP-response
// shaping.
package chaos

import "fmt"

// CustomerOverride pins a specific payment outcome for one customer,
// bypassing the global failure rate and decline-weight sampling. Used by
// test suites that want a specific customer to always decline a specific
// way.
type CustomerOverride struct {
	ForceDecline bool
	DeclineCode  string
}

// PaymentConfig configures payment-chaos sampling.
type PaymentConfig struct {
	Enabled           bool
	GlobalFailureRate float64 // 0.0-1.0, chance any payment attempt declines
	// DeclineWeights maps decline code -> relative weight, consulted when a
	// payment is chosen to decline and no CustomerOverride specifies a code.
	DeclineWeights map[string]float64
	// CustomerOverrides maps customer id -> forced outcome, highest precedence.
	CustomerOverrides map[string]CustomerOverride
}

// EventConfig configures event-pipeline chaos: buffering, reordering, and
// duplication of emitted events before they reach subscribers.
type EventConfig struct {
	Enabled              bool
	BufferProbability    float64       // chance an event is held back instead of delivered immediately
	ReorderProbability   float64       // chance a buffered batch is shuffled before flush
	DuplicateProbability float64       // chance an event is redelivered a second time
	FlushAfter           int64         // wall-clock seconds before a buffered batch force-flushes (<= 0 means 1)
}

// APIConfig configures API-level faults independent of payment outcome:
// artificial timeouts, rate limiting, and bare server errors.
type APIConfig struct {
	Enabled            bool
	TimeoutProbability    float64
	RateLimitProbability  float64
	ServerErrorProbability float64
}

// Config bundles the three chaos domains.
type Config struct {
	Payment PaymentConfig
	Event   EventConfig
	API     APIConfig
}

// Validate checks that every probability is within [0, 1], mirroring the
// teacher's ChaosConfig.Validate/validateProbability pattern.
func (c *Config) Validate() error {
	probs := map[string]float64{
		"payment.globalFailureRate":     c.Payment.GlobalFailureRate,
		"event.bufferProbability":      c.Event.BufferProbability,
		"event.reorderProbability":     c.Event.ReorderProbability,
		"event.duplicateProbability":   c.Event.DuplicateProbability,
		"api.timeoutProbability":       c.API.TimeoutProbability,
		"api.rateLimitProbability":     c.API.RateLimitProbability,
		"api.serverErrorProbability":   c.API.ServerErrorProbability,
	}
	for name, v := range probs {
		if v < 0.0 || v > 1.0 {
			return fmt.Errorf("chaos: %s must be between 0.0 and 1.0, got %v", name, v)
		}
	}
	for code, w := range c.Payment.DeclineWeights {
		if w < 0 {
			return fmt.Errorf("chaos: decline weight for %q must be >= 0, got %v", code, w)
		}
	}
	return nil
}
