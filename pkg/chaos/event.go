package chaos

import "time"

// EventSubmit decides, for one published item, whether it should be
// delivered immediately, buffered for later (possibly reordered with
// other buffered items), or duplicated. flush is called with one or more
// items whenever a batch is ready to deliver — immediately for an
// undisturbed item, or later (by the one-shot timer) for a buffered batch.
//
// item is an opaque interface{} rather than telemetry.Event so chaos has
// no dependency on the telemetry package; the caller (pkg/webhook's
// Pipeline.Submit) supplies the flush callback.
func (c *Coordinator) EventSubmit(item interface{}, flush func([]interface{})) {
	c.mu.Lock()
	c.stats.EventsPublished++

	if !c.cfg.Event.Enabled || c.rng.Float64() >= c.cfg.Event.BufferProbability {
		dup := c.maybeDuplicateLocked()
		c.mu.Unlock()
		batch := []interface{}{item}
		if dup {
			batch = append(batch, item)
		}
		flush(batch)
		return
	}

	c.stats.EventsBuffered++
	c.eventPending = append(c.eventPending, item)
	if c.eventTimer == nil {
		delay := time.Duration(c.cfg.Event.FlushAfter) * time.Second
		if delay <= 0 {
			delay = time.Second
		}
		c.eventFlushFn = flush
		c.eventTimer = time.AfterFunc(delay, c.flushPending)
	}
	c.mu.Unlock()
}

// flushPending delivers every buffered event, per the one-shot timer
// (re-armed on the next Submit call once it fires).
func (c *Coordinator) flushPending() {
	c.mu.Lock()
	batch := c.eventPending
	c.eventPending = nil
	c.eventTimer = nil
	flush := c.eventFlushFn
	c.eventFlushFn = nil

	if c.cfg.Event.ReorderProbability > 0 && c.rng.Float64() < c.cfg.Event.ReorderProbability && len(batch) > 1 {
		c.stats.EventsReordered++
		c.rng.Shuffle(len(batch), func(i, j int) { batch[i], batch[j] = batch[j], batch[i] })
	}
	c.mu.Unlock()

	if flush != nil && len(batch) > 0 {
		flush(batch)
	}
}

// maybeDuplicateLocked must be called with c.mu held.
func (c *Coordinator) maybeDuplicateLocked() bool {
	if c.cfg.Event.DuplicateProbability <= 0 {
		return false
	}
	if c.rng.Float64() < c.cfg.Event.DuplicateProbability {
		c.stats.EventsDuplicated++
		return true
	}
	return false
}
