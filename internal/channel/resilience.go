package channel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"github.com/felixgeelhaar/fortify/ratelimit"

	"draw-engine/internal/model"
)

// GuardConfig configures per-platform rate limits and per-channel breakers.
type GuardConfig struct {
	// RatePerMinute caps sends per channel type (0 = unlimited).
	RatePerMinute int
	// BreakerThreshold opens a channel's breaker after this many consecutive failures (0 = disabled).
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

// Guard throttles sends per platform and stops calling channels that keep failing.
type Guard struct {
	cfg     GuardConfig
	limiter ratelimit.RateLimiter

	mu       sync.Mutex
	breakers map[string]circuitbreaker.CircuitBreaker[struct{}]
}

// NewGuard creates a Guard.
func NewGuard(cfg GuardConfig) *Guard {
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = 2 * time.Minute
	}
	g := &Guard{cfg: cfg, breakers: make(map[string]circuitbreaker.CircuitBreaker[struct{}])}
	if cfg.RatePerMinute > 0 {
		g.limiter = ratelimit.New(&ratelimit.Config{
			Rate:     cfg.RatePerMinute,
			Burst:    cfg.RatePerMinute,
			Interval: time.Minute,
		})
	}
	return g
}

// Do runs send for ch: wait for a platform token, then call through the
// channel's breaker. An open breaker fails without calling send.
func (g *Guard) Do(ctx context.Context, ch *model.Channel, send func(ctx context.Context) error) error {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx, string(ch.Type)); err != nil {
			return fmt.Errorf("rate limit %s: %w", ch.Type, err)
		}
	}

	cb := g.breaker(ch.ID)
	if cb == nil {
		return send(ctx)
	}
	_, err := cb.Execute(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, send(ctx)
	})
	return err
}

func (g *Guard) breaker(channelID string) circuitbreaker.CircuitBreaker[struct{}] {
	if g.cfg.BreakerThreshold <= 0 {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if cb, ok := g.breakers[channelID]; ok {
		return cb
	}
	threshold := uint32(g.cfg.BreakerThreshold) // #nosec G115 -- bounded config value
	cb := circuitbreaker.New[struct{}](circuitbreaker.Config{
		MaxRequests: 1,
		Interval:    g.cfg.BreakerCooldown,
		Timeout:     g.cfg.BreakerCooldown,
		ReadyToTrip: func(counts circuitbreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
	})
	g.breakers[channelID] = cb
	return cb
}

// BreakerState returns "closed", "half-open", "open" or "disabled" for a channel.
func (g *Guard) BreakerState(channelID string) string {
	if g.cfg.BreakerThreshold <= 0 {
		return "disabled"
	}
	g.mu.Lock()
	cb, ok := g.breakers[channelID]
	g.mu.Unlock()
	if !ok {
		return "closed"
	}
	return cb.State().String()
}

// Close releases the rate limiter.
func (g *Guard) Close() error {
	if g.limiter != nil {
		return g.limiter.Close()
	}
	return nil
}
