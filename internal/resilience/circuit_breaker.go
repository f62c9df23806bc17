// Package resilience implements circuit-breaker and retry policies for
// surviving transient failures. The embedding client uses
// ExternalBreaker and rag_ingest uses Retry; the backend adapters use
// neither.
package resilience

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/ragforge/rag-mcp/internal/observability"
)

// State is one of the three circuit breaker states.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Errors returned by Execute when the breaker itself rejects a call.
var (
	ErrOpen               = errors.New("circuit breaker is open")
	ErrTimeout            = errors.New("circuit breaker timeout")
	ErrMaxHalfOpenRequests = errors.New("circuit breaker: max half-open requests exceeded")
)

// Config tunes a breaker's trip and recovery thresholds. Zero values
// fall back to DefaultConfig.
type Config struct {
	FailureThreshold    int
	FailureRatio        float64
	ResetTimeout        time.Duration
	SuccessThreshold    int
	TimeoutThreshold    time.Duration
	MaxRequestsHalfOpen int
	MinimumRequestCount int
}

// DefaultConfig returns the standard circuit breaker defaults used
// across the backend adapters.
func DefaultConfig() Config {
	return Config{
		FailureThreshold:    5,
		FailureRatio:        0.6,
		ResetTimeout:        30 * time.Second,
		SuccessThreshold:    2,
		TimeoutThreshold:    5 * time.Second,
		MaxRequestsHalfOpen: 5,
		MinimumRequestCount: 10,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.FailureThreshold == 0 {
		c.FailureThreshold = d.FailureThreshold
	}
	if c.FailureRatio == 0 {
		c.FailureRatio = d.FailureRatio
	}
	if c.ResetTimeout == 0 {
		c.ResetTimeout = d.ResetTimeout
	}
	if c.SuccessThreshold == 0 {
		c.SuccessThreshold = d.SuccessThreshold
	}
	if c.TimeoutThreshold == 0 {
		c.TimeoutThreshold = d.TimeoutThreshold
	}
	if c.MaxRequestsHalfOpen == 0 {
		c.MaxRequestsHalfOpen = d.MaxRequestsHalfOpen
	}
	if c.MinimumRequestCount == 0 {
		c.MinimumRequestCount = d.MinimumRequestCount
	}
	return c
}

// counts tracks request outcomes within the current window.
type counts struct {
	Requests             int
	Successes            int
	Failures             int
	ConsecutiveSuccesses int
	ConsecutiveFailures  int
}

func (c *counts) recordSuccess() {
	c.Requests++
	c.Successes++
	c.ConsecutiveSuccesses++
	c.ConsecutiveFailures = 0
}

func (c *counts) recordFailure() {
	c.Requests++
	c.Failures++
	c.ConsecutiveFailures++
	c.ConsecutiveSuccesses = 0
}

// CircuitBreaker wraps calls to a single backend adapter, tripping open
// after a run of failures and probing for recovery in half-open state.
type CircuitBreaker struct {
	name   string
	config Config

	state           atomic.Value // State
	counts          atomic.Value // *counts
	lastFailureTime atomic.Value // time.Time
	lastStateChange atomic.Value // time.Time
	halfOpenInFlight atomic.Int32

	mu sync.Mutex

	logger  observability.Logger
	metrics observability.MetricsClient
}

// NewCircuitBreaker constructs a CircuitBreaker named for the adapter it
// protects, e.g. "vector_index" or "object_store".
func NewCircuitBreaker(name string, config Config, logger observability.Logger, metrics observability.MetricsClient) *CircuitBreaker {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNoopMetrics()
	}
	cb := &CircuitBreaker{name: name, config: config.withDefaults(), logger: logger, metrics: metrics}
	cb.state.Store(StateClosed)
	cb.counts.Store(&counts{})
	cb.lastFailureTime.Store(time.Time{})
	cb.lastStateChange.Store(time.Now())
	return cb
}

// Execute runs fn under circuit-breaker protection. fn is started in a
// goroutine so ctx cancellation and the breaker's own timeout threshold
// can both preempt it without fn needing to be context-aware itself.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	start := time.Now()

	if err := cb.canExecute(); err != nil {
		cb.metrics.IncrementCounterWithLabels("circuit_breaker_requests_total", 1, map[string]string{"name": cb.name, "status": "rejected"})
		return nil, err
	}

	if cb.State() == StateHalfOpen {
		cb.halfOpenInFlight.Add(1)
		defer cb.halfOpenInFlight.Add(-1)
	}

	type result struct {
		value interface{}
		err   error
	}
	resultCh := make(chan result, 1)
	go func() {
		value, err := fn()
		resultCh <- result{value: value, err: err}
	}()

	select {
	case <-ctx.Done():
		cb.recordFailure()
		cb.recordOutcome("timeout", time.Since(start))
		return nil, ctx.Err()
	case <-time.After(cb.config.TimeoutThreshold):
		cb.recordFailure()
		cb.recordOutcome("timeout", time.Since(start))
		return nil, ErrTimeout
	case res := <-resultCh:
		if res.err != nil {
			cb.recordFailure()
			cb.recordOutcome("failure", time.Since(start))
			return nil, res.err
		}
		cb.recordSuccess()
		cb.recordOutcome("success", time.Since(start))
		return res.value, nil
	}
}

func (cb *CircuitBreaker) canExecute() error {
	switch cb.State() {
	case StateClosed:
		return nil
	case StateOpen:
		last := cb.lastFailureTime.Load().(time.Time)
		if time.Since(last) > cb.config.ResetTimeout {
			cb.transitionTo(StateHalfOpen)
			return nil
		}
		return ErrOpen
	case StateHalfOpen:
		if int(cb.halfOpenInFlight.Load()) >= cb.config.MaxRequestsHalfOpen {
			return ErrMaxHalfOpenRequests
		}
		return nil
	default:
		return fmt.Errorf("resilience: unknown state %v", cb.State())
	}
}

func (cb *CircuitBreaker) State() State { return cb.state.Load().(State) }

func (cb *CircuitBreaker) getCounts() *counts {
	c := cb.counts.Load().(*counts)
	cp := *c
	return &cp
}

func (cb *CircuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	c := cb.getCounts()
	c.recordSuccess()
	cb.counts.Store(c)
	if cb.State() == StateHalfOpen && c.ConsecutiveSuccesses >= cb.config.SuccessThreshold {
		cb.transitionTo(StateClosed)
	}
}

func (cb *CircuitBreaker) recordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	c := cb.getCounts()
	c.recordFailure()
	cb.counts.Store(c)
	cb.lastFailureTime.Store(time.Now())

	switch cb.State() {
	case StateClosed:
		if c.ConsecutiveFailures >= cb.config.FailureThreshold {
			cb.transitionTo(StateOpen)
		} else if c.Requests >= cb.config.MinimumRequestCount {
			if float64(c.Failures)/float64(c.Requests) >= cb.config.FailureRatio {
				cb.transitionTo(StateOpen)
			}
		}
	case StateHalfOpen:
		cb.transitionTo(StateOpen)
	}
}

func (cb *CircuitBreaker) transitionTo(next State) {
	prev := cb.State()
	if prev == next {
		return
	}
	cb.state.Store(next)
	cb.lastStateChange.Store(time.Now())
	if next == StateHalfOpen {
		cb.counts.Store(&counts{})
		cb.halfOpenInFlight.Store(0)
	}
	cb.logger.Info("circuit breaker state changed", map[string]interface{}{
		"name": cb.name, "from": prev.String(), "to": next.String(),
	})
	cb.metrics.IncrementCounterWithLabels("circuit_breaker_state_changes_total", 1, map[string]string{
		"name": cb.name, "from": prev.String(), "to": next.String(),
	})
	cb.metrics.RecordGauge("circuit_breaker_current_state", float64(next), map[string]string{"name": cb.name})
}

func (cb *CircuitBreaker) recordOutcome(status string, d time.Duration) {
	labels := map[string]string{"name": cb.name, "status": status, "state": cb.State().String()}
	cb.metrics.IncrementCounterWithLabels("circuit_breaker_requests_total", 1, labels)
	cb.metrics.RecordHistogram("circuit_breaker_request_duration_seconds", d.Seconds(), labels)
}

// Reset forces the breaker back to closed, used by admin tooling.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.transitionTo(StateClosed)
	cb.counts.Store(&counts{})
	cb.halfOpenInFlight.Store(0)
}

// Manager owns one named CircuitBreaker per backend adapter, creating
// them lazily with DefaultConfig when first referenced.
type Manager struct {
	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
	logger   observability.Logger
	metrics  observability.MetricsClient
}

// NewManager constructs a Manager pre-seeded with named configs, e.g.
// {"vector_index": Config{...}, "object_store": Config{...}}.
func NewManager(logger observability.Logger, metrics observability.MetricsClient, configs map[string]Config) *Manager {
	m := &Manager{breakers: make(map[string]*CircuitBreaker), logger: logger, metrics: metrics}
	for name, cfg := range configs {
		m.breakers[name] = NewCircuitBreaker(name, cfg, logger, metrics)
	}
	return m
}

// Get returns the named breaker, creating one with DefaultConfig if it
// does not yet exist.
func (m *Manager) Get(name string) *CircuitBreaker {
	m.mu.RLock()
	cb, ok := m.breakers[name]
	m.mu.RUnlock()
	if ok {
		return cb
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if cb, ok = m.breakers[name]; ok {
		return cb
	}
	cb = NewCircuitBreaker(name, DefaultConfig(), m.logger, m.metrics)
	m.breakers[name] = cb
	return cb
}

// Execute runs fn through the named breaker, creating it if necessary.
func (m *Manager) Execute(ctx context.Context, name string, fn func() (interface{}, error)) (interface{}, error) {
	return m.Get(name).Execute(ctx, fn)
}
