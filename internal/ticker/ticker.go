package ticker

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"gridd.sh/internal/gerrors"
	"gridd.sh/internal/metrics"
	"gridd.sh/internal/simulation"
)

// Series is one named live metric driven by a bounded random walk.
type Series struct {
	Name     string  `json:"name"`
	Value    float64 `json:"value"`
	Lower    float64 `json:"lower"`
	Upper    float64 `json:"upper"`
	MaxDelta float64 `json:"maxDelta"`
}

// Snapshot is an immutable copy of all series values at one tick.
type Snapshot map[string]float64

// Ticker owns a set of metric series and advances them all on a fixed
// period, publishing snapshots to subscribers. It replaces the per-panel
// timer-plus-mutate pattern with one owned scheduling source.
type Ticker struct {
	mu     sync.RWMutex
	series map[string]*Series
	subs   map[chan Snapshot]struct{}
	walker *simulation.Walker
	period time.Duration
	logger *slog.Logger
	done   chan struct{}
	closed bool
}

// New creates a Ticker advancing every period. A nil rng falls back to a
// time-seeded source.
func New(period time.Duration, rng *rand.Rand) *Ticker {
	if period <= 0 {
		period = 3 * time.Second
	}
	return &Ticker{
		series: make(map[string]*Series),
		subs:   make(map[chan Snapshot]struct{}),
		walker: simulation.NewWalker(rng),
		period: period,
		logger: slog.Default().With("component", "ticker"),
		done:   make(chan struct{}),
	}
}

// Register adds a series. The initial value is clamped into bounds.
func (t *Ticker) Register(name string, initial, lower, upper, maxDelta float64) error {
	if lower > upper {
		return gerrors.Newf(gerrors.ErrCodeInvalidRange,
			"lower bound %.2f exceeds upper bound %.2f for series %q", lower, upper, name)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.series[name]; exists {
		return gerrors.Newf(gerrors.ErrCodeDuplicateSeries, "series %q already registered", name)
	}

	if initial < lower {
		initial = lower
	}
	if initial > upper {
		initial = upper
	}

	t.series[name] = &Series{
		Name:     name,
		Value:    initial,
		Lower:    lower,
		Upper:    upper,
		MaxDelta: maxDelta,
	}
	metrics.TickerSeries.Set(float64(len(t.series)))
	return nil
}

// Unregister removes a series; future ticks no longer touch it.
func (t *Ticker) Unregister(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.series, name)
	metrics.TickerSeries.Set(float64(len(t.series)))
}

// Tick advances every registered series one random-walk step and
// publishes the resulting snapshot. Production code drives this through
// Run; tests call it directly for determinism.
func (t *Ticker) Tick() {
	t.mu.Lock()
	for _, s := range t.series {
		next, err := t.walker.Step(s.Value, s.Lower, s.Upper, s.MaxDelta)
		if err != nil {
			// Bounds were validated at registration, so this only
			// fires if a series was corrupted in place.
			t.logger.Error("skipping series", "series", s.Name, "error", err)
			continue
		}
		s.Value = next
	}
	snap := t.snapshotLocked()
	t.mu.Unlock()

	metrics.TickerTicks.Inc()
	t.publish(snap)
}

// Snapshot returns a copy of all current values.
func (t *Ticker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snapshotLocked()
}

func (t *Ticker) snapshotLocked() Snapshot {
	snap := make(Snapshot, len(t.series))
	for name, s := range t.series {
		snap[name] = s.Value
	}
	return snap
}

// Subscribe returns a channel of snapshots and a cancel function. Slow
// subscribers miss snapshots rather than blocking the tick loop.
func (t *Ticker) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 8)

	t.mu.Lock()
	t.subs[ch] = struct{}{}
	t.mu.Unlock()

	cancel := func() {
		t.mu.Lock()
		if _, ok := t.subs[ch]; ok {
			delete(t.subs, ch)
			close(ch)
		}
		t.mu.Unlock()
	}
	return ch, cancel
}

func (t *Ticker) publish(snap Snapshot) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for ch := range t.subs {
		select {
		case ch <- snap:
		default:
		}
	}
}

// Run drives Tick on the configured period until ctx is cancelled or the
// ticker is closed.
func (t *Ticker) Run(ctx context.Context) {
	tick := time.NewTicker(t.period)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.done:
			return
		case <-tick.C:
			t.Tick()
		}
	}
}

// Close stops the run loop and drops all subscribers. Ticks must not
// fire after the owning view is torn down.
func (t *Ticker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	close(t.done)
	for ch := range t.subs {
		delete(t.subs, ch)
		close(ch)
	}
}
