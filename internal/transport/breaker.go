package transport

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned without dialing when a host's circuit is open.
var ErrCircuitOpen = errors.New("circuit open for host")

// CircuitState is the state of one host's circuit.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitHalfOpen
	CircuitOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitHalfOpen:
		return "half-open"
	case CircuitOpen:
		return "open"
	default:
		return "unknown"
	}
}

// BreakerSettings configures the per-host circuit.
type BreakerSettings struct {
	// Threshold is the number of consecutive failures that opens the circuit.
	Threshold uint32
	// Cooldown is how long an open circuit rejects fetches before letting
	// one trial fetch through.
	Cooldown time.Duration
	// OnStateChange is called whenever a host's circuit changes state.
	OnStateChange func(host string, from, to CircuitState)
}

// DefaultBreakerSettings returns the settings used by the client.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		Threshold: 3,
		Cooldown:  30 * time.Second,
	}
}

type circuit struct {
	state    CircuitState
	failures uint32
	probing  bool
	openedAt time.Time
}

// Breaker short-circuits fetches to hosts that keep failing. Each host has
// its own circuit, so one dead host does not block loads from another.
type Breaker struct {
	settings BreakerSettings
	now      func() time.Time

	mu    sync.Mutex
	hosts map[string]*circuit
}

// NewBreaker creates a breaker with the given settings.
func NewBreaker(settings BreakerSettings) *Breaker {
	if settings.Threshold == 0 {
		settings.Threshold = 3
	}
	if settings.Cooldown == 0 {
		settings.Cooldown = 30 * time.Second
	}
	return &Breaker{
		settings: settings,
		now:      time.Now,
		hosts:    make(map[string]*circuit),
	}
}

// State returns the current state of host's circuit.
func (b *Breaker) State(host string) CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.hosts[host]
	if !ok {
		return CircuitClosed
	}
	return b.current(host, c)
}

// Do runs fn unless host's circuit is open. A nil error from fn counts as a
// success; a failure is anything for which failed returns true.
func (b *Breaker) Do(host string, fn func() error, failed func(error) bool) error {
	if err := b.before(host); err != nil {
		return err
	}

	err := fn()
	b.after(host, err != nil && failed(err))
	return err
}

func (b *Breaker) before(host string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.hosts[host]
	if !ok {
		c = &circuit{}
		b.hosts[host] = c
	}

	switch b.current(host, c) {
	case CircuitOpen:
		return ErrCircuitOpen
	case CircuitHalfOpen:
		if c.probing {
			return ErrCircuitOpen
		}
		c.probing = true
	}
	return nil
}

func (b *Breaker) after(host string, failure bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.hosts[host]
	state := b.current(host, c)
	c.probing = false

	if !failure {
		c.failures = 0
		b.setState(host, c, CircuitClosed)
		return
	}

	c.failures++
	if state == CircuitHalfOpen || c.failures >= b.settings.Threshold {
		b.setState(host, c, CircuitOpen)
	}
}

// current advances an open circuit to half-open once the cooldown expired.
func (b *Breaker) current(host string, c *circuit) CircuitState {
	if c.state == CircuitOpen && b.now().Sub(c.openedAt) >= b.settings.Cooldown {
		b.setState(host, c, CircuitHalfOpen)
	}
	return c.state
}

func (b *Breaker) setState(host string, c *circuit, state CircuitState) {
	if c.state == state {
		return
	}
	prev := c.state
	c.state = state
	if state == CircuitOpen {
		c.openedAt = b.now()
	}
	if state == CircuitClosed {
		c.failures = 0
	}
	if b.settings.OnStateChange != nil {
		b.settings.OnStateChange(host, prev, state)
	}
}
