package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrUnavailable is returned while the circuit breaker is open.
var ErrUnavailable = errors.New("llm provider unavailable")

// GuardConfig configures the rate limiter and circuit breaker around a Client.
type GuardConfig struct {
	// RequestsPerSecond limits calls to the provider; <= 0 disables limiting.
	RequestsPerSecond float64
	Burst             int
	// ConsecutiveFailures trips the breaker.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the breaker stays open before probing again.
	OpenTimeout time.Duration
}

// DefaultGuardConfig returns the default guard settings.
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		RequestsPerSecond:   2,
		Burst:               2,
		ConsecutiveFailures: 5,
		OpenTimeout:         30 * time.Second,
	}
}

// GuardedClient wraps a Client with a token-bucket rate limiter and a circuit breaker.
type GuardedClient struct {
	inner   Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewGuardedClient wraps inner. A nil logger disables logging.
func NewGuardedClient(inner Client, cfg GuardConfig, logger *zap.Logger) *GuardedClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = DefaultGuardConfig().ConsecutiveFailures
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = DefaultGuardConfig().OpenTimeout
	}

	g := &GuardedClient{inner: inner, logger: logger}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	threshold := cfg.ConsecutiveFailures
	g.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "llm-classifier",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// Caller cancellations say nothing about provider health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return g
}

// GenerateContent generates text content through the guard.
func (g *GuardedClient) GenerateContent(ctx context.Context, prompt string, tier ModelTier) (string, error) {
	return g.GenerateWithSystem(ctx, "", prompt, tier)
}

// GenerateWithSystem waits for a rate-limit token, then calls the provider unless the breaker is open.
func (g *GuardedClient) GenerateWithSystem(ctx context.Context, system, prompt string, tier ModelTier) (string, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limiter wait: %w", err)
		}
	}

	out, err := g.breaker.Execute(func() (interface{}, error) {
		return g.inner.GenerateWithSystem(ctx, system, prompt, tier)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return "", err
	}
	return out.(string), nil
}

// State reports the breaker state, e.g. "closed" or "open".
func (g *GuardedClient) State() string {
	return g.breaker.State().String()
}

// GetModel returns the model name for a tier
func (g *GuardedClient) GetModel(tier ModelTier) string {
	return g.inner.GetModel(tier)
}

// Close releases the wrapped client.
func (g *GuardedClient) Close() error {
	return g.inner.Close()
}
