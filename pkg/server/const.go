package server

// idempotencyTTLSeconds is how long a completed idempotent response stays
// cached.
const idempotencyTTLSeconds = 24 * 60 * 60

// webhookWorkerCount is the size of the webhook delivery worker pool.
const webhookWorkerCount = 4

// idempotencySweepPeriodSeconds is how often (in virtual-clock seconds)
// the idempotency cache is swept for expired entries: hourly in real
// time, but driven by the virtual clock so accelerated/manual modes sweep
// proportionally.
const idempotencySweepPeriodSeconds = 60 * 60
