// Package clock provides the process-wide virtual time source used by the
// mock server.
//
// The clock exposes a single notion of "now" shared by the idempotency
// cache, the billing engine, and event timestamps. It supports three
// interchangeable modes:
//
//   - real: wall-clock time.
//   - accelerated: wall-clock time scaled by an integer multiplier.
//   - manual: frozen time that only moves via explicit Advance calls.
//
// All state (start, offset, mode, multiplier) is guarded by a single mutex
// so that readers never observe a torn combination of the four fields.
package clock
