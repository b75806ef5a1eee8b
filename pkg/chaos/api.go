package chaos

// APIAction is the outcome of an API-chaos evaluation for one request.
type APIAction int

const (
	// APIActionNone means the request should proceed normally.
	APIActionNone APIAction = iota
	// APIActionTimeout means the handler should hang until the client gives
	// up (simulated by sleeping past any reasonable client timeout).
	APIActionTimeout
	// APIActionRateLimited means the handler should respond 429 immediately.
	APIActionRateLimited
	// APIActionServerError means the handler should respond with a bare 5xx.
	APIActionServerError
)

// EvaluateAPI samples one of three independent, mutually exclusive
// API-level faults in a fixed precedence (timeout, then rate limit, then
// server error), each gated by its own probability band.
func (c *Coordinator) EvaluateAPI() APIAction {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.APIRequests++

	if !c.cfg.API.Enabled {
		return APIActionNone
	}

	roll := c.rng.Float64()
	switch {
	case roll < c.cfg.API.TimeoutProbability:
		c.stats.APITimeouts++
		return APIActionTimeout
	case roll < c.cfg.API.TimeoutProbability+c.cfg.API.RateLimitProbability:
		c.stats.APIRateLimited++
		return APIActionRateLimited
	case roll < c.cfg.API.TimeoutProbability+c.cfg.API.RateLimitProbability+c.cfg.API.ServerErrorProbability:
		c.stats.APIServerError++
		return APIActionServerError
	default:
		return APIActionNone
	}
}
