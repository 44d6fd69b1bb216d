package schedule

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/KevinKickass/OpenRoadwayCore/internal/comm"
)

type fakePoller struct {
	mu      sync.Mutex
	rounds  map[comm.PollClass]int
	pending []func(*comm.Completer)
	hold    bool
}

func (f *fakePoller) Poll(period comm.PollClass, fn func(*comm.Completer)) *comm.Completer {
	c := comm.NewCompleter(period.String(), fn)
	f.mu.Lock()
	f.rounds[period]++
	hold := f.hold
	if hold {
		f.pending = append(f.pending, func(*comm.Completer) { c.Seal() })
	}
	f.mu.Unlock()
	if !hold {
		c.Seal()
	}
	return c
}

func (f *fakePoller) count(period comm.PollClass) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rounds[period]
}

func (f *fakePoller) release() {
	f.mu.Lock()
	pending := f.pending
	f.pending = nil
	f.hold = false
	f.mu.Unlock()
	for _, fn := range pending {
		fn(nil)
	}
}

func TestTickSkipsBusyRound(t *testing.T) {
	f := &fakePoller{rounds: make(map[comm.PollClass]int), hold: true}
	timer := NewPollTimer(f, 0, 0, zap.NewNop())

	timer.Tick(comm.Poll30Sec)
	timer.Tick(comm.Poll30Sec)
	assert.Equal(t, 1, f.count(comm.Poll30Sec))
	assert.Equal(t, 1, timer.Skipped(comm.Poll30Sec))

	timer.Tick(comm.Poll5Min)
	assert.Equal(t, 1, f.count(comm.Poll5Min))

	f.release()
	timer.Tick(comm.Poll30Sec)
	assert.Equal(t, 2, f.count(comm.Poll30Sec))
}

func TestTimerRunsRounds(t *testing.T) {
	f := &fakePoller{rounds: make(map[comm.PollClass]int)}
	timer := NewPollTimer(f, 10*time.Millisecond, 25*time.Millisecond, zap.NewNop())
	timer.Start()
	timer.Start()
	require.True(t, timer.IsRunning())

	require.Eventually(t, func() bool {
		return f.count(comm.Poll30Sec) >= 3 && f.count(comm.Poll5Min) >= 1
	}, 2*time.Second, 5*time.Millisecond)

	timer.Stop()
	timer.Stop()
	assert.False(t, timer.IsRunning())
	n := f.count(comm.Poll30Sec)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, n, f.count(comm.Poll30Sec))
}
