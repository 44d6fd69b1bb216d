package comm

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// MessagePoller is the protocol driver of one comm link.
type MessagePoller interface {
	Link() *CommLink
	Protocol() string

	// CreateOperation builds an operation scaffold for c with the link's
	// retry budget.
	CreateOperation(c *Controller, name string, prio Priority, first Phase) *Operation

	IsAddressValid(drop int) bool

	Poll30Second(c *Controller, done *Completer)
	Poll5Minute(c *Controller, done *Completer)
	Download(c *Controller, reset bool, prio Priority)
	StartTest(c *Controller)

	Start(ctx context.Context) error
	Destroy()
	QueueLen() int
}

// Protocol describes the wire behavior a Poller needs from a protocol.
type Protocol struct {
	Name string
	// Split cuts the response stream into frames.
	Split bufio.SplitFunc
	// AddressValid reports whether a drop address is legal.
	AddressValid func(drop int) bool
}

// PollerConfig holds the retry and timing settings for one link.
type PollerConfig struct {
	Retries      int
	ParseRetries int
}

// DefaultPollerConfig returns the settings used when none are configured.
func DefaultPollerConfig() PollerConfig {
	return PollerConfig{Retries: 3, ParseRetries: 1}
}

// Poller serializes operations of one link onto its messenger. Protocol
// pollers embed it and override the scheduling hooks they support.
type Poller struct {
	link      *CommLink
	proto     Protocol
	messenger Messenger
	selectors SelectorSource
	cfg       PollerConfig
	metrics   *Metrics
	logger    *zap.Logger

	queue *OpQueue

	mu        sync.Mutex
	cancel    context.CancelFunc
	running   bool
	destroyed bool
	wg        sync.WaitGroup
}

// NewPoller creates the runtime for one link.
func NewPoller(link *CommLink, proto Protocol, m Messenger, sel SelectorSource,
	cfg PollerConfig, metrics *Metrics, logger *zap.Logger) *Poller {
	return &Poller{
		link:      link,
		proto:     proto,
		messenger: m,
		selectors: sel,
		cfg:       cfg,
		metrics:   metrics,
		logger:    logger.With(zap.String("link", link.Name), zap.String("protocol", proto.Name)),
		queue:     NewOpQueue(),
	}
}

func (p *Poller) Link() *CommLink { return p.link }

func (p *Poller) Protocol() string { return p.proto.Name }

func (p *Poller) Messenger() Messenger { return p.messenger }

func (p *Poller) Logger() *zap.Logger { return p.logger }

func (p *Poller) QueueLen() int { return p.queue.Len() }

// IsAddressValid uses the protocol check, accepting any non-negative drop
// when the protocol has none.
func (p *Poller) IsAddressValid(drop int) bool {
	if p.proto.AddressValid == nil {
		return drop >= 0
	}
	return p.proto.AddressValid(drop)
}

func (p *Poller) CreateOperation(c *Controller, name string, prio Priority, first Phase) *Operation {
	op := NewOperation(name, c, prio, first)
	op.SetRetries(p.cfg.Retries)
	return op
}

// Poll30Second does nothing unless the protocol overrides it.
func (p *Poller) Poll30Second(c *Controller, done *Completer) {}

// Poll5Minute does nothing unless the protocol overrides it.
func (p *Poller) Poll5Minute(c *Controller, done *Completer) {}

// Download does nothing unless the protocol overrides it.
func (p *Poller) Download(c *Controller, reset bool, prio Priority) {}

// StartTest does nothing unless the protocol overrides it.
func (p *Poller) StartTest(c *Controller) {}

// Start launches the link worker.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.destroyed {
		return ErrLinkClosed
	}
	if p.running {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true
	p.wg.Add(1)
	go p.work(ctx)

	p.logger.Info("Link poller started", zap.String("uri", p.link.URI))
	return nil
}

// Add validates op and enqueues it. Invalid operations fail immediately
// without touching the transport.
func (p *Poller) Add(op *Operation) error {
	if err := p.check(op); err != nil {
		p.logger.Warn("Operation rejected",
			zap.String("operation", op.Name),
			zap.Error(err))
		op.abort(err)
		p.metrics.observeDone(p.link.Name, op.State())
		return err
	}
	if op.Retries() < 0 {
		op.SetRetries(p.cfg.Retries)
	}
	if err := p.queue.Push(op); err != nil {
		op.abort(err)
		return err
	}
	p.metrics.setQueueDepth(p.link.Name, p.queue.Len())
	return nil
}

// Submit enqueues op and tracks it with done, if given.
func (p *Poller) Submit(op *Operation, done *Completer) {
	if done != nil {
		done.Track(op)
	}
	p.Add(op)
}

func (p *Poller) check(op *Operation) error {
	c := op.Controller
	if c == nil {
		return &ConfigError{Controller: p.link.Name, Reason: "operation without controller"}
	}
	if !c.Active {
		return &ConfigError{Controller: c.Name, Reason: "controller inactive"}
	}
	if !p.IsAddressValid(c.Drop) {
		return &ConfigError{Controller: c.Name, Reason: fmt.Sprintf("invalid drop address %d", c.Drop)}
	}
	return nil
}

// Destroy stops the worker, closes the messenger and fails every operation
// still queued with ErrLinkClosed.
func (p *Poller) Destroy() {
	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return
	}
	p.destroyed = true
	cancel := p.cancel
	p.mu.Unlock()

	pending := p.queue.Close()
	if cancel != nil {
		cancel()
	}
	p.messenger.Close()
	p.wg.Wait()

	for _, op := range pending {
		op.abort(ErrLinkClosed)
		p.metrics.observeDone(p.link.Name, op.State())
	}
	p.metrics.setQueueDepth(p.link.Name, 0)
	p.logger.Info("Link poller destroyed", zap.Int("drained", len(pending)))
}

func (p *Poller) isDestroyed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.destroyed
}

func (p *Poller) work(ctx context.Context) {
	defer p.wg.Done()

	for {
		op, err := p.queue.Next(ctx)
		if err != nil {
			return
		}
		p.metrics.setQueueDepth(p.link.Name, p.queue.Len())
		p.perform(ctx, op)
	}
}

func (p *Poller) perform(ctx context.Context, op *Operation) {
	phase, err := op.begin()
	if err != nil {
		p.logger.Error("Operation state error", zap.String("operation", op.Name), zap.Error(err))
		return
	}
	start := time.Now()
	defer func() { p.metrics.observeAttempt(p.link.Name, time.Since(start)) }()

	if !p.messenger.IsOpen() {
		if err := p.messenger.Open(ctx); err != nil {
			p.failed(op, phase, err)
			return
		}
	}

	x := newExchange(op, p.messenger, p.selectors, p.proto.Split, p.logger)
	for phase != nil {
		next, err := phase(ctx, x)
		if err != nil {
			p.failed(op, phase, err)
			return
		}
		phase = next
	}

	op.Controller.CommSucceeded()
	op.succeed()
	p.metrics.observeDone(p.link.Name, StateSucceeded)
	p.logger.Debug("Operation succeeded",
		zap.String("operation", op.Name),
		zap.String("controller", op.Controller.Name),
		zap.Int("attempt", op.Attempts()))
}

// failed classifies err, closes the messenger after transport faults and
// either requeues op or finishes it.
func (p *Poller) failed(op *Operation, phase Phase, err error) {
	class := Classify(err)
	state := StateFailed
	if class == ClassTimeout {
		state = StateTimedOut
	}
	if class == ClassTransport || class == ClassTimeout {
		p.messenger.Close()
	}
	op.fail(phase, state, err)
	p.metrics.observeFailure(p.link.Name, class)

	fields := []zap.Field{
		zap.String("operation", op.Name),
		zap.String("controller", op.Controller.Name),
		zap.Int("attempt", op.Attempts()),
		zap.Error(err),
	}
	switch class {
	case ClassTimeout:
		p.logger.Warn("Operation timed out", fields...)
	case ClassParsing:
		p.logger.Warn("Operation parsing error", fields...)
	default:
		p.logger.Warn("Operation failed", fields...)
	}

	if p.isDestroyed() {
		op.abort(ErrLinkClosed)
		p.metrics.observeDone(p.link.Name, op.State())
		return
	}

	limit := RetryLimit(err, op.Retries(), p.cfg.ParseRetries)
	if op.Attempts() <= limit {
		if rerr := op.requeue(); rerr == nil {
			if perr := p.queue.Push(op); perr == nil {
				p.metrics.setQueueDepth(p.link.Name, p.queue.Len())
				return
			}
			op.abort(ErrLinkClosed)
			p.metrics.observeDone(p.link.Name, op.State())
			return
		}
	}

	if !errors.Is(err, ErrLinkClosed) {
		op.Controller.CommFailed(err)
	}
	op.finish()
	p.metrics.observeDone(p.link.Name, op.State())
	p.logger.Error("Operation exhausted retries",
		zap.String("operation", op.Name),
		zap.String("controller", op.Controller.Name),
		zap.String("state", op.State().String()),
		zap.Int("attempts", op.Attempts()),
		zap.Error(err))
}
