package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/aristath/waverunner/internal/log"
	"github.com/aristath/waverunner/internal/scheduler"
)

// BreakerRegistry keeps one circuit breaker per agent. After Threshold
// consecutive failed attempts the agent's breaker opens and further attempts
// fail immediately until Cooldown has passed.
type BreakerRegistry struct {
	threshold uint32
	cooldown  time.Duration
	logger    log.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewBreakerRegistry creates a registry. A zero threshold disables breaking.
func NewBreakerRegistry(threshold uint32, cooldown time.Duration, logger log.Logger) *BreakerRegistry {
	if logger == nil {
		logger = log.Noop
	}
	return &BreakerRegistry{
		threshold: threshold,
		cooldown:  cooldown,
		logger:    logger.WithValues(log.Kv{"svc": "orchestrator.BreakerRegistry"}),
		breakers:  make(map[string]*gobreaker.CircuitBreaker),
	}
}

// Get returns the circuit breaker for the given agent, creating it if needed.
func (r *BreakerRegistry) Get(agent string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[agent]; ok {
		return cb
	}

	threshold := r.threshold
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        agent,
		MaxRequests: 1, // One probe attempt in half-open state
		Interval:    0, // Don't clear counts automatically
		Timeout:     r.cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			r.logger.Warningf("circuit breaker %q: %s -> %s", name, from, to)
		},
		IsSuccessful: func(err error) bool {
			// Run cancellation says nothing about the agent
			return err == nil || errors.Is(err, context.Canceled)
		},
	})

	r.breakers[agent] = cb
	return cb
}

// Wrap guards e with the agent's breaker. With breaking disabled e is returned as is.
// An open breaker surfaces as gobreaker.ErrOpenState, which counts as a failed attempt.
func (r *BreakerRegistry) Wrap(agent string, e Executor) Executor {
	if r == nil || r.threshold == 0 {
		return e
	}
	cb := r.Get(agent)
	return ExecutorFunc(func(ctx context.Context, task *scheduler.Task) (string, error) {
		out, err := cb.Execute(func() (interface{}, error) {
			return e.Execute(ctx, task)
		})
		if err != nil {
			return "", err
		}
		return out.(string), nil
	})
}
