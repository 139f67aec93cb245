// Package resilience provides launch rate limiting and retry backoff.
package resilience

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter controls how fast children may be launched.
type RateLimiter interface {
	// Allow checks if a launch is allowed for the given binary.
	Allow(binary string) bool

	// Wait blocks until a launch is allowed or the context is canceled.
	Wait(ctx context.Context, binary string) error

	// SetLimit updates the rate limit for a binary.
	SetLimit(binary string, limit rate.Limit, burst int)
}

// RateLimiterConfig configures the rate limiter.
type RateLimiterConfig struct {
	// DefaultLimit is the default launches per second.
	DefaultLimit float64 `yaml:"default_limit"`

	// DefaultBurst is the default burst size.
	DefaultBurst int `yaml:"default_burst"`

	// PerBinary enables per-binary rate limiting.
	PerBinary bool `yaml:"per_binary"`

	// BinaryLimits contains per-binary rate limits.
	BinaryLimits map[string]BinaryLimit `yaml:"binary_limits"`
}

// BinaryLimit defines the launch rate limit for a specific binary.
type BinaryLimit struct {
	Limit float64 `yaml:"limit"`
	Burst int     `yaml:"burst"`
}

// DefaultRateLimiterConfig returns default configuration.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		DefaultLimit: 100,
		DefaultBurst: 150,
		PerBinary:    true,
		BinaryLimits: make(map[string]BinaryLimit),
	}
}

// rateLimiter implements RateLimiter.
type rateLimiter struct {
	config         RateLimiterConfig
	globalLimiter  *rate.Limiter
	binaryLimiters map[string]*rate.Limiter
	mu             sync.RWMutex
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(config RateLimiterConfig) RateLimiter {
	rl := &rateLimiter{
		config:         config,
		globalLimiter:  rate.NewLimiter(rate.Limit(config.DefaultLimit), config.DefaultBurst),
		binaryLimiters: make(map[string]*rate.Limiter),
	}

	for binary, limit := range config.BinaryLimits {
		rl.binaryLimiters[binary] = rate.NewLimiter(rate.Limit(limit.Limit), limit.Burst)
	}

	return rl
}

// Allow implements RateLimiter.Allow.
func (rl *rateLimiter) Allow(binary string) bool {
	if !rl.config.PerBinary {
		return rl.globalLimiter.Allow()
	}

	return rl.getLimiter(binary).Allow()
}

// Wait implements RateLimiter.Wait.
func (rl *rateLimiter) Wait(ctx context.Context, binary string) error {
	if !rl.config.PerBinary {
		return rl.globalLimiter.Wait(ctx)
	}

	return rl.getLimiter(binary).Wait(ctx)
}

// SetLimit implements RateLimiter.SetLimit.
func (rl *rateLimiter) SetLimit(binary string, limit rate.Limit, burst int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if limiter, ok := rl.binaryLimiters[binary]; ok {
		limiter.SetLimit(limit)
		limiter.SetBurst(burst)
	} else {
		rl.binaryLimiters[binary] = rate.NewLimiter(limit, burst)
	}
}

func (rl *rateLimiter) getLimiter(binary string) *rate.Limiter {
	rl.mu.RLock()
	limiter, ok := rl.binaryLimiters[binary]
	rl.mu.RUnlock()

	if ok {
		return limiter
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	// Double-check after acquiring write lock
	if existing, ok := rl.binaryLimiters[binary]; ok {
		return existing
	}

	newLimiter := rate.NewLimiter(rate.Limit(rl.config.DefaultLimit), rl.config.DefaultBurst)
	rl.binaryLimiters[binary] = newLimiter
	return newLimiter
}

// NoopRateLimiter returns a limiter that always allows.
func NoopRateLimiter() RateLimiter {
	return &noopRateLimiter{}
}

type noopRateLimiter struct{}

func (noopRateLimiter) Allow(binary string) bool                        { return true }
func (noopRateLimiter) Wait(ctx context.Context, binary string) error   { return nil }
func (noopRateLimiter) SetLimit(binary string, l rate.Limit, burst int) {}
