package comm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	selectorWaitAttempts = 20
	selectorWaitInterval = 200 * time.Millisecond
)

// SelectorSource hands out the running selector to link workers.
type SelectorSource interface {
	Selector(ctx context.Context) *Selector
}

// SelectorThread runs one Selector in a background goroutine. It is built
// once by the composition root and passed to every poller.
type SelectorThread struct {
	logger  *zap.Logger
	tick    time.Duration
	metrics *Metrics

	mu       sync.RWMutex
	selector *Selector
	err      error

	cancel context.CancelFunc
	done   chan struct{}

	attempts int
	interval time.Duration
}

// NewSelectorThread creates a selector thread. Call Start to run it.
func NewSelectorThread(logger *zap.Logger, tick time.Duration, metrics *Metrics) *SelectorThread {
	return &SelectorThread{
		logger:   logger,
		tick:     tick,
		metrics:  metrics,
		done:     make(chan struct{}),
		attempts: selectorWaitAttempts,
		interval: selectorWaitInterval,
	}
}

// Start launches the select loop. It returns immediately; the selector
// becomes visible to Selector once the loop is running.
func (t *SelectorThread) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	go t.run(ctx)
}

func (t *SelectorThread) run(ctx context.Context) {
	defer close(t.done)

	sel := NewSelector(t.logger, t.tick, t.metrics)
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("Selector loop panic", zap.Any("panic", r))
			t.fail(fmt.Errorf("selector panic: %v", r))
		}
		sel.Close()
	}()

	t.mu.Lock()
	t.selector = sel
	t.mu.Unlock()

	t.logger.Info("Selector thread started")
	err := sel.SelectLoop(ctx)
	if err != nil && ctx.Err() == nil {
		t.logger.Error("Selector loop failed", zap.Error(err))
	}
	t.fail(err)
}

// fail clears the reference so callers see a dead loop as nil.
func (t *SelectorThread) fail(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.selector = nil
	if t.err == nil {
		t.err = err
	}
}

// Selector returns the running selector, waiting briefly for a loop that
// has not finished starting. It returns nil if no loop is running.
func (t *SelectorThread) Selector(ctx context.Context) *Selector {
	for i := 0; i < t.attempts; i++ {
		t.mu.RLock()
		sel := t.selector
		t.mu.RUnlock()
		if sel != nil {
			return sel
		}
		select {
		case <-ctx.Done():
			return nil
		case <-t.done:
			return nil
		case <-time.After(t.interval):
		}
	}
	return nil
}

// Running reports whether the select loop is live.
func (t *SelectorThread) Running() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.selector != nil
}

// Err returns the error that stopped the loop, if any.
func (t *SelectorThread) Err() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.err
}

// Stop ends the select loop and waits for it to exit.
func (t *SelectorThread) Stop() {
	if t.cancel == nil {
		return
	}
	t.cancel()
	<-t.done
	t.logger.Info("Selector thread stopped")
}
