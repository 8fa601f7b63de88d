package breaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ErrOpen is returned when a call is short-circuited without being attempted.
var ErrOpen = errors.New("circuit breaker open")

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

var breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "circuit_breaker_state",
	Help: "Current breaker state per target (0=closed, 1=open, 2=half_open)",
}, []string{"target"})

type Config struct {
	// Window is the number of most recent call outcomes considered.
	Window int
	// FailureThreshold trips the breaker when the failure ratio over a
	// full window reaches it.
	FailureThreshold float64
	// Cooldown is how long the breaker stays open before probing.
	Cooldown time.Duration
	// ProbeSuccesses is the run of half-open successes required to close.
	ProbeSuccesses int
}

func (c *Config) withDefaults() {
	if c.Window <= 0 {
		c.Window = 10
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 0.5
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 10 * time.Second
	}
	if c.ProbeSuccesses <= 0 {
		c.ProbeSuccesses = 3
	}
}

// Breaker guards one named downstream target. State is process-local and
// rebuilt closed on restart; it protects, it does not decide correctness.
type Breaker struct {
	name string
	cfg  Config

	mu           sync.Mutex
	state        State
	outcomes     []bool // ring of call results, true = failure
	idx          int
	filled       int
	openUntil    time.Time
	probeRun     int
	probesInFly  int
	lastChangeAt time.Time

	now func() time.Time
}

func New(name string, cfg Config) *Breaker {
	cfg.withDefaults()
	b := &Breaker{
		name:     name,
		cfg:      cfg,
		state:    StateClosed,
		outcomes: make([]bool, cfg.Window),
		now:      time.Now,
	}
	breakerState.WithLabelValues(name).Set(0)
	return b
}

func (b *Breaker) Name() string { return b.name }

// State reports the current state, applying the open->half-open move when
// the cooldown has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refresh()
	return b.state
}

// Allow reports whether a call may proceed. It returns ErrOpen while the
// breaker is open or when the half-open probe budget is exhausted.
// A successful Allow must be paired with exactly one Success or Failure.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refresh()

	switch b.state {
	case StateOpen:
		return ErrOpen
	case StateHalfOpen:
		if b.probesInFly >= b.cfg.ProbeSuccesses {
			return ErrOpen
		}
		b.probesInFly++
		return nil
	default:
		return nil
	}
}

// Success records a successful call outcome.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateHalfOpen {
		b.probesInFly--
		b.probeRun++
		if b.probeRun >= b.cfg.ProbeSuccesses {
			b.transition(StateClosed)
			b.reset()
		}
		return
	}
	b.record(false)
}

// Failure records a failed call outcome. Any half-open probe failure
// reopens immediately with a fresh cooldown.
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateHalfOpen {
		b.probesInFly--
		b.open()
		return
	}

	b.record(true)
}

// Do runs call under the breaker. When the call is short-circuited or
// fails and a fallback is given, the fallback result is returned instead.
func (b *Breaker) Do(ctx context.Context, call func(ctx context.Context) error, fallback func(ctx context.Context, cause error) error) error {
	if err := b.Allow(); err != nil {
		if fallback != nil {
			return fallback(ctx, err)
		}
		return err
	}

	err := call(ctx)
	if err != nil {
		b.Failure()
		if fallback != nil {
			return fallback(ctx, err)
		}
		return err
	}
	b.Success()
	return nil
}

// refresh moves open to half-open once the cooldown elapses. Callers hold mu.
func (b *Breaker) refresh() {
	if b.state == StateOpen && !b.now().Before(b.openUntil) {
		b.transition(StateHalfOpen)
		b.probeRun = 0
		b.probesInFly = 0
	}
}

func (b *Breaker) open() {
	b.transition(StateOpen)
	b.openUntil = b.now().Add(b.cfg.Cooldown)
}

func (b *Breaker) reset() {
	for i := range b.outcomes {
		b.outcomes[i] = false
	}
	b.idx = 0
	b.filled = 0
	b.probeRun = 0
	b.probesInFly = 0
}

// record stores one outcome and re-evaluates the failure ratio. The
// check runs on every outcome once the window is full: the ratio can
// cross the threshold on a window-filling success too, when the
// failures came first.
func (b *Breaker) record(failed bool) {
	b.outcomes[b.idx] = failed
	b.idx = (b.idx + 1) % b.cfg.Window
	if b.filled < b.cfg.Window {
		b.filled++
	}

	if b.state != StateClosed || b.filled < b.cfg.Window {
		return
	}
	failures := 0
	for _, f := range b.outcomes {
		if f {
			failures++
		}
	}
	ratio := float64(failures) / float64(b.cfg.Window)
	if ratio >= b.cfg.FailureThreshold {
		b.open()
	}
}

func (b *Breaker) transition(to State) {
	b.state = to
	b.lastChangeAt = b.now()
	breakerState.WithLabelValues(b.name).Set(float64(to))
}

// Registry holds one breaker per named target so call paths share state
// for the same downstream without ambient singletons.
type Registry struct {
	mu       sync.Mutex
	cfg      Config
	breakers map[string]*Breaker
}

func NewRegistry(cfg Config) *Registry {
	cfg.withDefaults()
	return &Registry{
		cfg:      cfg,
		breakers: make(map[string]*Breaker),
	}
}

func (r *Registry) Get(name string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[name]; ok {
		return b
	}
	b := New(name, r.cfg)
	r.breakers[name] = b
	return b
}
