package resilience

import (
	"errors"
	"sync"
	"time"
)

var (
	ErrCircuitOpen     = errors.New("circuit breaker is open")
	ErrTooManyRequests = errors.New("too many requests")
)

// State of a breaker
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

var stateNames = map[State]string{
	StateClosed:   "closed",
	StateHalfOpen: "half-open",
	StateOpen:     "open",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Settings configures a breaker. Zero values take the defaults noted.
type Settings struct {
	// FailureThreshold consecutive failures open the circuit (default 5)
	FailureThreshold uint32
	// Cooldown is how long an open circuit rejects calls (default 60s)
	Cooldown time.Duration
	// Probes trial calls are admitted while half-open; that many
	// successes close the circuit (default 1)
	Probes uint32
	// ResetInterval clears the closed-state counts periodically; zero never does
	ResetInterval time.Duration
	// IsSuccessful classifies a returned error; by default only nil succeeds
	IsSuccessful func(err error) bool
	// OnStateChange observes transitions; called with the breaker locked
	OnStateChange func(name string, from, to State)
	Now           func() time.Time
}

func (s Settings) withDefaults() Settings {
	if s.FailureThreshold == 0 {
		s.FailureThreshold = 5
	}
	if s.Cooldown <= 0 {
		s.Cooldown = 60 * time.Second
	}
	if s.Probes == 0 {
		s.Probes = 1
	}
	if s.IsSuccessful == nil {
		s.IsSuccessful = func(err error) bool { return err == nil }
	}
	if s.Now == nil {
		s.Now = time.Now
	}
	return s
}

// Counts are the call statistics of the current state period
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

func (c *Counts) success() {
	c.TotalSuccesses++
	c.ConsecutiveSuccesses++
	c.ConsecutiveFailures = 0
}

func (c *Counts) failure() {
	c.TotalFailures++
	c.ConsecutiveFailures++
	c.ConsecutiveSuccesses = 0
}

// Breaker short-circuits calls to a dependency that keeps failing
type Breaker struct {
	name string
	cfg  Settings

	mu     sync.Mutex
	state  State
	period uint64 // bumped on every transition and reset; stale outcomes are dropped
	counts Counts
	until  time.Time
}

// New creates a closed breaker
func New(name string, settings Settings) *Breaker {
	b := &Breaker{name: name, cfg: settings.withDefaults()}
	b.reset(b.cfg.Now())
	return b
}

// Name returns the breaker's key
func (b *Breaker) Name() string {
	return b.name
}

// State returns the current state, applying any due timeout
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advance(b.cfg.Now())
	return b.state
}

// Counts returns the counts of the current state period
func (b *Breaker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts
}

// Do runs fn if the breaker admits it and records the outcome. A rejected
// call returns ErrCircuitOpen or ErrTooManyRequests without running fn.
// A panic in fn counts as a failure and is re-raised.
func (b *Breaker) Do(fn func() error) error {
	period, err := b.admit()
	if err != nil {
		return err
	}

	ok := false
	defer func() {
		if !ok {
			b.record(period, false)
		}
	}()

	err = fn()
	ok = true
	b.record(period, b.cfg.IsSuccessful(err))
	return err
}

func (b *Breaker) admit() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.advance(b.cfg.Now())
	if b.state == StateOpen {
		return 0, ErrCircuitOpen
	}
	if b.state == StateHalfOpen && b.counts.Requests >= b.cfg.Probes {
		return 0, ErrTooManyRequests
	}
	b.counts.Requests++
	return b.period, nil
}

func (b *Breaker) record(period uint64, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.cfg.Now()
	b.advance(now)
	if period != b.period {
		return
	}

	switch {
	case success:
		b.counts.success()
		if b.state == StateHalfOpen && b.counts.ConsecutiveSuccesses >= b.cfg.Probes {
			b.transition(StateClosed, now)
		}
	case b.state == StateHalfOpen:
		b.transition(StateOpen, now)
	default:
		b.counts.failure()
		if b.counts.ConsecutiveFailures >= b.cfg.FailureThreshold {
			b.transition(StateOpen, now)
		}
	}
}

// advance applies the cooldown and reset deadlines as of now
func (b *Breaker) advance(now time.Time) {
	if b.until.IsZero() || now.Before(b.until) {
		return
	}
	switch b.state {
	case StateOpen:
		b.transition(StateHalfOpen, now)
	case StateClosed:
		b.reset(now)
	}
}

func (b *Breaker) transition(to State, now time.Time) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	b.reset(now)
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.name, from, to)
	}
}

// reset starts a new period for the current state
func (b *Breaker) reset(now time.Time) {
	b.period++
	b.counts = Counts{}
	b.until = time.Time{}
	switch {
	case b.state == StateOpen:
		b.until = now.Add(b.cfg.Cooldown)
	case b.state == StateClosed && b.cfg.ResetInterval > 0:
		b.until = now.Add(b.cfg.ResetInterval)
	}
}
