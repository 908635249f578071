// Package poller runs a fetch on a fixed interval with one in-flight request at
// a time. Starting a cycle cancels the previous one and late responses from a
// superseded cycle are discarded.
package poller

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/cablewatch/cablemap/internal/metrics"
)

// DefaultInterval is the polling period used across the dashboard.
const DefaultInterval = 2 * time.Second

// Policy decides whether a successful result ends the session.
type Policy int

const (
	// PollForever keeps polling until Stop.
	PollForever Policy = iota
	// StopOnFirstResult stops after the first non-empty success.
	StopOnFirstResult
)

func (p Policy) String() string {
	if p == StopOnFirstResult {
		return "stop_on_first_result"
	}
	return "poll_forever"
}

// State is the observable phase of a poller.
type State int

const (
	Idle State = iota
	Fetching
	Stopped
)

func (s State) String() string {
	switch s {
	case Fetching:
		return "fetching"
	case Stopped:
		return "stopped"
	}
	return "idle"
}

// FetchFunc performs one request bound to ctx.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// Config tunes a Poller. Zero values fall back to defaults.
type Config[T any] struct {
	Name     string
	Interval time.Duration
	Policy   Policy

	// IsEmpty classifies a success as empty. Nil treats nil pointers and
	// zero-length slices, maps and strings as empty.
	IsEmpty func(T) bool

	// OnResult and OnError run on the poller goroutine and must not call Stop.
	// OnError never sees aborted requests.
	OnResult func(T)
	OnError  func(error)

	Logger  *slog.Logger
	Metrics *metrics.Collector
}

// Stats is a point-in-time view of a poller.
type Stats struct {
	State       State
	Cycles      int
	Failures    int
	Discarded   int
	LastSuccess time.Time
	LastError   error
}

type result[T any] struct {
	gen     uint64
	value   T
	err     error
	started time.Time
}

// Poller is a cancellable repeating fetch.
type Poller[T any] struct {
	fetch FetchFunc[T]
	cfg   Config[T]

	mu      sync.Mutex
	started bool
	stats   Stats

	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// New creates a Poller. It does nothing until Start.
func New[T any](fetch FetchFunc[T], cfg Config[T]) *Poller[T] {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.IsEmpty == nil {
		cfg.IsEmpty = isZeroLength[T]
	}
	if cfg.Name == "" {
		cfg.Name = "poller"
	}
	return &Poller[T]{
		fetch: fetch,
		cfg:   cfg,
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

// Name returns the configured name.
func (p *Poller[T]) Name() string { return p.cfg.Name }

// Start fetches immediately and then on every tick until Stop, ctx is done, or
// the policy ends the session. Calling Start again, or after Stop, is a no-op.
func (p *Poller[T]) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stats.State == Stopped {
		return
	}
	p.started = true
	go p.run(ctx)
}

// Stop ends the session and cancels any in-flight request. No callback runs after
// Stop returns. Safe to call more than once and before Start.
func (p *Poller[T]) Stop() {
	p.stopOnce.Do(func() { close(p.quit) })

	p.mu.Lock()
	started := p.started
	if !started {
		p.stats.State = Stopped
	}
	p.mu.Unlock()

	if started {
		<-p.done
	}
}

// Done is closed once the poller goroutine has exited.
func (p *Poller[T]) Done() <-chan struct{} { return p.done }

// Stats returns a snapshot of the poller's counters.
func (p *Poller[T]) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

func (p *Poller[T]) run(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.cfg.Interval)
	results := make(chan result[T])

	var (
		gen    uint64
		cancel context.CancelFunc
	)
	defer func() {
		ticker.Stop()
		if cancel != nil {
			cancel()
		}
		p.setState(Stopped)
	}()

	begin := func() {
		if cancel != nil {
			cancel()
		}
		gen++
		cycleCtx, cycleCancel := context.WithCancel(ctx)
		cancel = cycleCancel
		g, started := gen, time.Now()
		p.setState(Fetching)

		go func() {
			v, err := p.fetch(cycleCtx)
			p.send(results, result[T]{gen: g, value: v, err: err, started: started})
		}()
	}

	begin()
	for {
		select {
		case <-p.quit:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			begin()
		case r := <-results:
			select {
			case <-p.quit:
				return
			default:
			}
			if r.gen != gen {
				p.discard(r)
				continue
			}
			cancel()
			cancel = nil
			if p.deliver(r) {
				return
			}
		}
	}
}

// send hands r to the run loop, or drops it once the loop has exited. A late
// response can outlive the session under StopOnFirstResult.
func (p *Poller[T]) send(results chan<- result[T], r result[T]) {
	select {
	case results <- r:
	case <-p.done:
	}
}

// deliver hands a current result to the callbacks and reports whether the
// session is over.
func (p *Poller[T]) deliver(r result[T]) bool {
	elapsed := time.Since(r.started)

	if r.err != nil {
		if errors.Is(r.err, context.Canceled) {
			p.cfg.Metrics.ObservePoll(p.cfg.Name, metrics.OutcomeAborted, elapsed)
			p.cfg.Logger.Debug("poll aborted", "poller", p.cfg.Name)
			p.finishCycle(func(s *Stats) {})
			return false
		}
		p.cfg.Metrics.ObservePoll(p.cfg.Name, metrics.OutcomeFailure, elapsed)
		p.cfg.Logger.Warn("poll failed", "poller", p.cfg.Name, "error", r.err)
		p.finishCycle(func(s *Stats) {
			s.Failures++
			s.LastError = r.err
		})
		if p.cfg.OnError != nil {
			p.cfg.OnError(r.err)
		}
		return false
	}

	p.cfg.Metrics.ObservePoll(p.cfg.Name, metrics.OutcomeSuccess, elapsed)
	p.finishCycle(func(s *Stats) {
		s.LastSuccess = time.Now()
		s.LastError = nil
	})
	if p.cfg.OnResult != nil {
		p.cfg.OnResult(r.value)
	}
	if p.cfg.Policy == StopOnFirstResult && !p.cfg.IsEmpty(r.value) {
		p.cfg.Logger.Debug("poll session complete", "poller", p.cfg.Name)
		return true
	}
	return false
}

func (p *Poller[T]) discard(r result[T]) {
	outcome := metrics.OutcomeStale
	if errors.Is(r.err, context.Canceled) {
		outcome = metrics.OutcomeAborted
	}
	p.cfg.Metrics.ObservePoll(p.cfg.Name, outcome, time.Since(r.started))
	p.mu.Lock()
	p.stats.Discarded++
	p.mu.Unlock()
}

func (p *Poller[T]) finishCycle(update func(*Stats)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats.Cycles++
	p.stats.State = Idle
	update(&p.stats)
}

func (p *Poller[T]) setState(s State) {
	p.mu.Lock()
	p.stats.State = s
	p.mu.Unlock()
}

func isZeroLength[T any](v T) bool {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Invalid:
		return true
	case reflect.Slice, reflect.Map, reflect.String, reflect.Array, reflect.Chan:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
