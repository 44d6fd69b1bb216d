// Package commtest provides in-memory messengers and selector helpers for
// protocol tests.
package commtest

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/KevinKickass/OpenRoadwayCore/internal/comm"
)

type chunk struct {
	data []byte
	eof  bool
}

// Messenger is a scripted comm.Messenger. Input is queued with Feed or
// produced by Respond for every write.
type Messenger struct {
	// Respond, if set, returns the device reply to one written request.
	// A nil reply means the device stays silent.
	Respond func(req []byte) []byte

	// OpenErr, if set, is returned by Open.
	OpenErr error

	mu       sync.Mutex
	open     bool
	opens    int
	closes   int
	timeout  time.Duration
	timeouts []time.Duration
	writes   [][]byte
	pending  []byte
	in       chan chunk
	closed   chan struct{}
}

func NewMessenger(timeout time.Duration) *Messenger {
	return &Messenger{
		timeout: timeout,
		in:      make(chan chunk, 256),
		closed:  make(chan struct{}),
	}
}

// Feed queues bytes for the next reads.
func (m *Messenger) Feed(p []byte) {
	m.in <- chunk{data: append([]byte(nil), p...)}
}

// FeedString queues a string for the next reads.
func (m *Messenger) FeedString(s string) { m.Feed([]byte(s)) }

// FeedEOF makes a later read report end of stream.
func (m *Messenger) FeedEOF() { m.in <- chunk{eof: true} }

func (m *Messenger) Open(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.OpenErr != nil {
		return m.OpenErr
	}
	if m.open {
		return nil
	}
	m.open = true
	m.opens++
	m.closed = make(chan struct{})
	return nil
}

func (m *Messenger) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.open {
		return nil
	}
	m.open = false
	m.closes++
	m.pending = nil
	close(m.closed)
	return nil
}

func (m *Messenger) Read(p []byte) (int, error) {
	m.mu.Lock()
	if !m.open {
		m.mu.Unlock()
		return 0, &comm.TransportError{Op: "read", Err: comm.ErrNotOpen}
	}
	if len(m.pending) > 0 {
		n := copy(p, m.pending)
		m.pending = m.pending[n:]
		m.mu.Unlock()
		return n, nil
	}
	closed, timeout := m.closed, m.timeout
	m.mu.Unlock()

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case c := <-m.in:
		if c.eof {
			return 0, io.EOF
		}
		n := copy(p, c.data)
		if n < len(c.data) {
			m.mu.Lock()
			m.pending = append(m.pending, c.data[n:]...)
			m.mu.Unlock()
		}
		return n, nil
	case <-closed:
		return 0, &comm.TransportError{Op: "read", Err: comm.ErrNotOpen}
	case <-expired:
		return 0, &comm.TimeoutError{Op: "read", Timeout: timeout.String()}
	}
}

func (m *Messenger) Write(p []byte) (int, error) {
	m.mu.Lock()
	if !m.open {
		m.mu.Unlock()
		return 0, &comm.TransportError{Op: "write", Err: comm.ErrNotOpen}
	}
	req := append([]byte(nil), p...)
	m.writes = append(m.writes, req)
	respond := m.Respond
	m.mu.Unlock()

	if respond != nil {
		if reply := respond(req); reply != nil {
			m.Feed(reply)
		}
	}
	return len(p), nil
}

func (m *Messenger) SetTimeout(d time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeout = d
	m.timeouts = append(m.timeouts, d)
	return nil
}

func (m *Messenger) Timeout() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timeout
}

func (m *Messenger) IsOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open
}

// Opens returns how often the messenger was opened.
func (m *Messenger) Opens() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opens
}

// Closes returns how often an open messenger was closed.
func (m *Messenger) Closes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closes
}

// Writes returns every request written so far.
func (m *Messenger) Writes() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.writes))
	copy(out, m.writes)
	return out
}

// Timeouts returns every timeout set through SetTimeout, in order.
func (m *Messenger) Timeouts() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]time.Duration, len(m.timeouts))
	copy(out, m.timeouts)
	return out
}

// StartSelector runs a selector thread for the duration of the test.
func StartSelector(t testing.TB) *comm.SelectorThread {
	t.Helper()
	st := comm.NewSelectorThread(zap.NewNop(), 5*time.Millisecond, nil)
	st.Start(context.Background())
	t.Cleanup(st.Stop)
	return st
}

// Selector is a static comm.SelectorSource wrapping one selector.
type Selector struct {
	S *comm.Selector
}

func (s Selector) Selector(ctx context.Context) *comm.Selector { return s.S }
