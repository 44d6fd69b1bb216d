package comm

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	defaultSelectorTick = 50 * time.Millisecond
	selectorBufferSize  = 1024
	selectorEventQueue  = 256
)

// Handler receives readiness events for one registration. Handler methods
// run on the selector goroutine and must not block.
type Handler interface {
	// Readable delivers bytes read from the channel. Returning true keeps
	// the registration armed for more data.
	Readable(p []byte) bool

	// Failed delivers a read error, end of stream or timeout. The
	// registration is already removed when Failed is called.
	Failed(err error)
}

// Key is one channel registration.
type Key struct {
	id       uint64
	src      io.Reader
	handler  Handler
	timeout  time.Duration
	deadline time.Time
}

type readEvent struct {
	key  *Key
	data []byte
	err  error
}

// Selector multiplexes readiness for all registered channels of all links.
// Blocking reads park in the runtime netpoller; one loop dispatches the
// results and expires registrations past their deadline.
type Selector struct {
	logger  *zap.Logger
	tick    time.Duration
	metrics *Metrics

	mu     sync.Mutex
	keys   map[uint64]*Key
	nextID uint64
	closed bool

	events chan readEvent
	done   chan struct{}
	once   sync.Once
}

// NewSelector creates a selector. Call SelectLoop to run it.
func NewSelector(logger *zap.Logger, tick time.Duration, metrics *Metrics) *Selector {
	if tick <= 0 {
		tick = defaultSelectorTick
	}
	return &Selector{
		logger:  logger,
		tick:    tick,
		metrics: metrics,
		keys:    make(map[uint64]*Key),
		events:  make(chan readEvent, selectorEventQueue),
		done:    make(chan struct{}),
	}
}

// Register arms src for read readiness. The handler fails with a
// TimeoutError when nothing completes within timeout (0 = no timeout).
func (s *Selector) Register(src io.Reader, timeout time.Duration, h Handler) (*Key, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrNoSelector
	}
	s.nextID++
	k := &Key{id: s.nextID, src: src, handler: h, timeout: timeout}
	if timeout > 0 {
		k.deadline = time.Now().Add(timeout)
	}
	s.keys[k.id] = k
	n := len(s.keys)
	s.mu.Unlock()

	s.metrics.setRegistrations(n)
	go s.pump(k)
	return k, nil
}

// Cancel removes a registration. Data that arrives for it later is dropped.
func (s *Selector) Cancel(k *Key) {
	if k == nil {
		return
	}
	s.remove(k)
}

// Len returns the number of active registrations.
func (s *Selector) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keys)
}

// SelectLoop blocks until a registered channel is ready, dispatches it and
// repeats until ctx is done or the selector is closed.
func (s *Selector) SelectLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return nil
		case ev := <-s.events:
			s.dispatch(ev)
		case now := <-ticker.C:
			s.expire(now)
		}
	}
}

// Close stops the selector and fails every remaining registration.
func (s *Selector) Close() error {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		keys := make([]*Key, 0, len(s.keys))
		for id, k := range s.keys {
			keys = append(keys, k)
			delete(s.keys, id)
		}
		s.mu.Unlock()

		close(s.done)
		s.metrics.setRegistrations(0)
		for _, k := range keys {
			k.handler.Failed(&TransportError{Op: "select", Err: ErrNoSelector})
		}
	})
	return nil
}

func (s *Selector) pump(k *Key) {
	buf := make([]byte, selectorBufferSize)
	n, err := k.src.Read(buf)
	select {
	case s.events <- readEvent{key: k, data: buf[:n], err: err}:
	case <-s.done:
	}
}

func (s *Selector) isActive(k *Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.keys[k.id]
	return ok
}

func (s *Selector) remove(k *Key) bool {
	s.mu.Lock()
	_, ok := s.keys[k.id]
	delete(s.keys, k.id)
	n := len(s.keys)
	s.mu.Unlock()

	if ok {
		s.metrics.setRegistrations(n)
	}
	return ok
}

func (s *Selector) dispatch(ev readEvent) {
	k := ev.key
	if !s.isActive(k) {
		return
	}

	more := true
	if len(ev.data) > 0 {
		more = k.handler.Readable(ev.data)
	}

	switch {
	case ev.err != nil:
		if s.remove(k) {
			k.handler.Failed(ev.err)
		}
	case !more:
		s.remove(k)
	default:
		if s.isActive(k) {
			go s.pump(k)
		}
	}
}

func (s *Selector) expire(now time.Time) {
	var expired []*Key

	s.mu.Lock()
	for id, k := range s.keys {
		if !k.deadline.IsZero() && now.After(k.deadline) {
			expired = append(expired, k)
			delete(s.keys, id)
		}
	}
	n := len(s.keys)
	s.mu.Unlock()

	if len(expired) == 0 {
		return
	}
	s.metrics.setRegistrations(n)
	for _, k := range expired {
		k.handler.Failed(&TimeoutError{Op: "read", Timeout: k.timeout.String()})
	}
}

// IsTimeout reports whether err is a selector or transport timeout.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}
