// Package schedule drives the periodic poll rounds of the comm links.
package schedule

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/KevinKickass/OpenRoadwayCore/internal/comm"
)

// Poller runs one poll round and calls fn when it is complete.
type Poller interface {
	Poll(period comm.PollClass, fn func(*comm.Completer)) *comm.Completer
}

// PollTimer starts a 30-second and a 5-minute poll round on fixed
// intervals. A round still running when its next tick arrives is skipped.
type PollTimer struct {
	poller   Poller
	interval map[comm.PollClass]time.Duration
	logger   *zap.Logger

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
	busy     map[comm.PollClass]bool
	skipped  map[comm.PollClass]int
}

func NewPollTimer(poller Poller, poll30s, poll5m time.Duration, logger *zap.Logger) *PollTimer {
	return &PollTimer{
		poller: poller,
		interval: map[comm.PollClass]time.Duration{
			comm.Poll30Sec: poll30s,
			comm.Poll5Min:  poll5m,
		},
		logger:  logger,
		busy:    make(map[comm.PollClass]bool),
		skipped: make(map[comm.PollClass]int),
	}
}

func (t *PollTimer) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return
	}
	t.running = true
	t.stopChan = make(chan struct{})
	for period, interval := range t.interval {
		if interval <= 0 {
			continue
		}
		t.wg.Add(1)
		go t.loop(period, interval, t.stopChan)
	}
	t.logger.Info("Poll timer started",
		zap.Duration("poll_30s", t.interval[comm.Poll30Sec]),
		zap.Duration("poll_5m", t.interval[comm.Poll5Min]))
}

func (t *PollTimer) Stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.running = false
	close(t.stopChan)
	t.mu.Unlock()

	t.wg.Wait()
	t.logger.Info("Poll timer stopped")
}

func (t *PollTimer) IsRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// Skipped returns how many rounds of period were skipped because the
// previous round was still running.
func (t *PollTimer) Skipped(period comm.PollClass) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.skipped[period]
}

func (t *PollTimer) loop(period comm.PollClass, interval time.Duration, stop <-chan struct{}) {
	defer t.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			t.Tick(period)
		}
	}
}

// Tick starts one round of period unless the previous one is unfinished.
func (t *PollTimer) Tick(period comm.PollClass) {
	t.mu.Lock()
	if t.busy[period] {
		t.skipped[period]++
		t.mu.Unlock()
		t.logger.Warn("Poll round still running, skipping", zap.String("period", period.String()))
		return
	}
	t.busy[period] = true
	t.mu.Unlock()

	t.poller.Poll(period, func(c *comm.Completer) {
		t.mu.Lock()
		t.busy[period] = false
		t.mu.Unlock()
		t.logger.Debug("Poll round complete",
			zap.String("period", period.String()),
			zap.Duration("elapsed", c.Elapsed()),
			zap.Int("failed", c.Failed()))
	})
}
