package resilience

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

var breakerNopLogger = zerolog.Nop()

// ErrOpenCircuit is returned when the circuit breaker refuses a request.
var ErrOpenCircuit = errors.New("resilience: circuit breaker open")

// maxBackoff caps a single retry sleep.
const maxBackoff = 10 * time.Second

// State represents the current breaker state.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// gauge is the value exported on outbound_breaker_state.
func (s State) gauge() float64 {
	switch s {
	case Closed:
		return 0
	case Open:
		return 1
	case HalfOpen:
		return 2
	default:
		return -1
	}
}

// Settings tunes when a Breaker trips and how it recovers.
type Settings struct {
	// MinRequests is the sample size required before FailureRatio is evaluated.
	MinRequests  int
	FailureRatio float64
	OpenFor      time.Duration
	// Probes is the number of half-open requests allowed in flight. All of them
	// must succeed before the breaker closes again.
	Probes int
}

func (s Settings) normalised() Settings {
	if s.MinRequests <= 0 {
		s.MinRequests = 1
	}
	switch {
	case s.FailureRatio <= 0:
		s.FailureRatio = 0.5
	case s.FailureRatio > 1:
		s.FailureRatio = 1
	}
	if s.OpenFor <= 0 {
		s.OpenFor = 30 * time.Second
	}
	if s.Probes <= 0 {
		s.Probes = 1
	}
	return s
}

type window struct {
	ok, failed int
}

func (w window) total() int { return w.ok + w.failed }

// halve keeps the ratio while bounding the counters on long healthy runs.
func (w *window) halve() {
	w.ok = (w.ok + 1) / 2
	w.failed = (w.failed + 1) / 2
}

// Breaker is a failure-ratio circuit breaker guarding one outbound dependency,
// typically the payment gateway.
type Breaker struct {
	mu       sync.Mutex
	cfg      Settings
	state    State
	counts   window
	inFlight int
	probesOK int
	openedAt time.Time
	target   string
	logger   *zerolog.Logger
	now      func() time.Time
}

// NewBreaker opens once failureRatio of at least minRequests calls fail and stays
// open for openFor before admitting a single probe.
func NewBreaker(minRequests int, failureRatio float64, openFor time.Duration) *Breaker {
	return NewBreakerWithSettings(Settings{
		MinRequests:  minRequests,
		FailureRatio: failureRatio,
		OpenFor:      openFor,
		Probes:       1,
	})
}

func NewBreakerWithSettings(s Settings) *Breaker {
	return &Breaker{cfg: s.normalised(), state: Closed, now: time.Now}
}

// WithTarget sets the dependency name used for metric labels and logs.
func (b *Breaker) WithTarget(target string) *Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.target = strings.TrimSpace(target)
	b.recordStateLocked()
	return b
}

func (b *Breaker) WithLogger(logger zerolog.Logger) *Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logger = &logger
	return b
}

// WithClock replaces time.Now. Tests use it to skip the cool-off.
func (b *Breaker) WithClock(now func() time.Time) *Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	if now != nil {
		b.now = now
	}
	return b
}

// State returns the current state without side effects.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow reports whether a request may go out. Every true result must be followed
// by exactly one Report.
func (b *Breaker) Allow(ctx context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == Open {
		if b.now().Sub(b.openedAt) < b.cfg.OpenFor {
			return false
		}
		b.changeStateLocked(ctx, HalfOpen)
	}
	if b.state == HalfOpen {
		if b.inFlight >= b.cfg.Probes {
			return false
		}
		b.inFlight++
	}
	return true
}

// Report records the outcome of an allowed request.
func (b *Breaker) Report(ctx context.Context, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		return
	case HalfOpen:
		if b.inFlight > 0 {
			b.inFlight--
		}
		if !success {
			b.changeStateLocked(ctx, Open)
			return
		}
		b.probesOK++
		if b.probesOK >= b.cfg.Probes {
			b.changeStateLocked(ctx, Closed)
		}
		return
	}

	if success {
		b.counts.ok++
	} else {
		b.counts.failed++
	}
	total := b.counts.total()
	if total < b.cfg.MinRequests {
		return
	}
	if float64(b.counts.failed)/float64(total) >= b.cfg.FailureRatio {
		b.changeStateLocked(ctx, Open)
		return
	}
	if total > b.cfg.MinRequests*2 {
		b.counts.halve()
	}
}

// Backoff returns base doubled per attempt, spread by ±jitterPct and capped at ten seconds.
func Backoff(base time.Duration, attempt int, jitterPct float64) time.Duration {
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt && d < maxBackoff; i++ {
		d *= 2
	}
	if d > maxBackoff {
		d = maxBackoff
	}
	if jitterPct <= 0 {
		return d
	}
	spread := float64(d) * jitterPct
	return d + time.Duration((rand.Float64()*2-1)*spread)
}

func (b *Breaker) changeStateLocked(ctx context.Context, next State) {
	prev := b.state
	if prev == next {
		b.recordStateLocked()
		return
	}
	b.state = next
	b.counts = window{}
	b.inFlight = 0
	b.probesOK = 0
	switch next {
	case Open:
		b.openedAt = b.now()
	case Closed:
		b.openedAt = time.Time{}
	}
	b.recordStateLocked()
	b.recordTransition(ctx, prev, next)
}

func (b *Breaker) recordStateLocked() {
	breakerState.WithLabelValues(b.label()).Set(b.state.gauge())
}

func (b *Breaker) recordTransition(ctx context.Context, from, to State) {
	label := b.label()
	breakerTransitions.WithLabelValues(label, from.String(), to.String()).Inc()
	if to == Open {
		breakerOpened.WithLabelValues(label).Inc()
	}

	evt := b.loggerFor(ctx).Info().
		Str("target", label).
		Str("from_state", from.String()).
		Str("to_state", to.String())
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		evt = evt.Str("trace_id", sc.TraceID().String())
	}
	if to == Open {
		evt = evt.Dur("open_for", b.cfg.OpenFor)
	}
	evt.Msg("breaker_transition")
}

func (b *Breaker) label() string {
	if b.target == "" {
		return "default"
	}
	return b.target
}

func (b *Breaker) loggerFor(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l != nil && l.GetLevel() != zerolog.Disabled {
		return l
	}
	if b.logger == nil {
		return &breakerNopLogger
	}
	return b.logger
}
