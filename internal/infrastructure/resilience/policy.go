package resilience

import "time"

// Config controls retries and the per-operation circuit breaker shared by the
// OpenAI, Vision and NATS clients.
type Config struct {
	RetryMaxAttempts    int
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration
	RetryMultiplier     float64
	// RetryJitter shortens each wait by a random fraction in [0, RetryJitter).
	RetryJitter float64
	// RetryAfterCap bounds how long a server-provided Retry-After hint may stretch a wait.
	RetryAfterCap time.Duration

	BreakerEnabled          bool
	BreakerMinRequests      uint32
	BreakerFailureRatio     float64
	BreakerOpenTimeout      time.Duration
	BreakerHalfOpenMaxCalls uint32
}

func DefaultConfig() Config {
	return Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: 250 * time.Millisecond,
		RetryMaxBackoff:     2 * time.Second,
		RetryMultiplier:     2.0,
		RetryJitter:         0.2,
		RetryAfterCap:       10 * time.Second,

		BreakerEnabled:          true,
		BreakerMinRequests:      10,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      30 * time.Second,
		BreakerHalfOpenMaxCalls: 2,
	}
}

// FromSettings starts from DefaultConfig and applies the deployment's attempt
// limit and breaker switch.
func FromSettings(maxAttempts int, breakerEnabled bool) Config {
	cfg := DefaultConfig()
	if maxAttempts > 0 {
		cfg.RetryMaxAttempts = maxAttempts
	}
	cfg.BreakerEnabled = breakerEnabled
	return cfg
}

func (c Config) normalize() Config {
	out := c
	def := DefaultConfig()

	if out.RetryMaxAttempts <= 0 {
		out.RetryMaxAttempts = def.RetryMaxAttempts
	}
	if out.RetryInitialBackoff <= 0 {
		out.RetryInitialBackoff = def.RetryInitialBackoff
	}
	if out.RetryMaxBackoff < out.RetryInitialBackoff {
		out.RetryMaxBackoff = out.RetryInitialBackoff
	}
	if out.RetryMultiplier < 1.0 {
		out.RetryMultiplier = def.RetryMultiplier
	}
	if out.RetryJitter < 0 || out.RetryJitter >= 1 {
		out.RetryJitter = 0
	}
	if out.RetryAfterCap < 0 {
		out.RetryAfterCap = 0
	}

	if out.BreakerMinRequests == 0 {
		out.BreakerMinRequests = def.BreakerMinRequests
	}
	if out.BreakerFailureRatio <= 0 || out.BreakerFailureRatio > 1 {
		out.BreakerFailureRatio = def.BreakerFailureRatio
	}
	if out.BreakerOpenTimeout <= 0 {
		out.BreakerOpenTimeout = def.BreakerOpenTimeout
	}
	if out.BreakerHalfOpenMaxCalls == 0 {
		out.BreakerHalfOpenMaxCalls = def.BreakerHalfOpenMaxCalls
	}
	return out
}
