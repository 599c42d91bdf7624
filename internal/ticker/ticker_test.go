package ticker

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridd.sh/internal/gerrors"
)

func newTestTicker(t *testing.T) *Ticker {
	t.Helper()
	tk := New(time.Hour, rand.New(rand.NewSource(1)))
	t.Cleanup(tk.Close)
	return tk
}

func TestRegisterValidation(t *testing.T) {
	tk := newTestTicker(t)

	err := tk.Register("freq", 50, 49.8, 50.2, 0.05)
	require.NoError(t, err)

	err = tk.Register("freq", 50, 49.8, 50.2, 0.05)
	require.Error(t, err)
	assert.Equal(t, gerrors.ErrCodeDuplicateSeries, gerrors.CodeOf(err))

	err = tk.Register("inverted", 50, 60, 40, 1)
	require.Error(t, err)
	assert.Equal(t, gerrors.ErrCodeInvalidRange, gerrors.CodeOf(err))
}

func TestRegisterClampsInitial(t *testing.T) {
	tk := newTestTicker(t)

	require.NoError(t, tk.Register("low", -5, 0, 100, 1))
	require.NoError(t, tk.Register("high", 500, 0, 100, 1))

	snap := tk.Snapshot()
	assert.Equal(t, 0.0, snap["low"])
	assert.Equal(t, 100.0, snap["high"])
}

func TestTickKeepsSeriesInBounds(t *testing.T) {
	tk := newTestTicker(t)

	require.NoError(t, tk.Register("demand", 180, 100, 260, 8))
	require.NoError(t, tk.Register("price", 40, 10, 200, 5))

	for i := 0; i < 1000; i++ {
		tk.Tick()
		snap := tk.Snapshot()
		require.GreaterOrEqual(t, snap["demand"], 100.0)
		require.LessOrEqual(t, snap["demand"], 260.0)
		require.GreaterOrEqual(t, snap["price"], 10.0)
		require.LessOrEqual(t, snap["price"], 200.0)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	tk := newTestTicker(t)
	require.NoError(t, tk.Register("demand", 180, 100, 260, 8))

	snap := tk.Snapshot()
	snap["demand"] = -1

	assert.Equal(t, 180.0, tk.Snapshot()["demand"])
}

func TestUnregisterRemovesSeries(t *testing.T) {
	tk := newTestTicker(t)
	require.NoError(t, tk.Register("demand", 180, 100, 260, 8))
	require.NoError(t, tk.Register("price", 40, 10, 200, 5))

	tk.Unregister("demand")
	tk.Tick()

	snap := tk.Snapshot()
	_, ok := snap["demand"]
	assert.False(t, ok)
	_, ok = snap["price"]
	assert.True(t, ok)
}

func TestSubscribeReceivesSnapshots(t *testing.T) {
	tk := newTestTicker(t)
	require.NoError(t, tk.Register("demand", 180, 100, 260, 8))

	ch, cancel := tk.Subscribe()
	defer cancel()

	tk.Tick()

	select {
	case snap := <-ch:
		_, ok := snap["demand"]
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("no snapshot delivered")
	}
}

func TestSlowSubscriberDoesNotBlockTick(t *testing.T) {
	tk := newTestTicker(t)
	require.NoError(t, tk.Register("demand", 180, 100, 260, 8))

	_, cancel := tk.Subscribe()
	defer cancel()

	// Never drain the channel; ticks past the buffer must still return.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			tk.Tick()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("tick blocked on a slow subscriber")
	}
}

func TestCancelThenCloseIsSafe(t *testing.T) {
	tk := New(time.Hour, rand.New(rand.NewSource(1)))
	require.NoError(t, tk.Register("demand", 180, 100, 260, 8))

	_, cancel := tk.Subscribe()
	cancel()
	cancel() // double cancel is a no-op

	tk.Close()
	tk.Close() // idempotent
}

func TestCloseDropsSubscribers(t *testing.T) {
	tk := New(time.Hour, rand.New(rand.NewSource(1)))
	ch, _ := tk.Subscribe()

	tk.Close()

	_, open := <-ch
	assert.False(t, open)
}
