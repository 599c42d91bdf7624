package simulation

import (
	"math/rand"
	"time"

	"gridd.sh/internal/gerrors"
)

// Walker applies bounded random walk steps to numeric values. Every live
// metric series in the dashboard is driven by one of these. The RNG is
// injected so tests can seed it.
type Walker struct {
	rng *rand.Rand
}

// NewWalker creates a Walker. A nil rng falls back to a time-seeded source.
func NewWalker(rng *rand.Rand) *Walker {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Walker{rng: rng}
}

// Step nudges current by a uniform delta in [-maxDelta/2, +maxDelta/2] and
// clamps the result to [lower, upper]. Fails if lower > upper rather than
// silently swapping the bounds.
func (w *Walker) Step(current, lower, upper, maxDelta float64) (float64, error) {
	if lower > upper {
		return 0, gerrors.Newf(gerrors.ErrCodeInvalidRange,
			"lower bound %.2f exceeds upper bound %.2f", lower, upper)
	}

	next := current + (w.rng.Float64()-0.5)*maxDelta
	if next < lower {
		next = lower
	}
	if next > upper {
		next = upper
	}
	return next, nil
}
