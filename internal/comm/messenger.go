package comm

import (
	"context"
	"io"
	"net"
	"sync"
	"time"
)

// Messenger owns the channel for one comm link. Only one operation uses a
// messenger at a time; the link poller enforces this, not the messenger.
type Messenger interface {
	io.Reader
	io.Writer

	// Open establishes the channel. It fails with a TransportError when the
	// endpoint is unreachable.
	Open(ctx context.Context) error

	// Close releases the channel. Calling Close more than once is a no-op.
	Close() error

	// SetTimeout bounds blocking reads.
	SetTimeout(d time.Duration) error

	Timeout() time.Duration

	IsOpen() bool
}

// NetMessenger is a Messenger over a stream or datagram socket.
type NetMessenger struct {
	network string
	address string

	mu      sync.Mutex
	conn    net.Conn
	timeout time.Duration
}

// NewStreamMessenger creates a TCP messenger.
func NewStreamMessenger(address string, timeout time.Duration) *NetMessenger {
	return &NetMessenger{network: "tcp", address: address, timeout: timeout}
}

// NewDatagramMessenger creates a UDP messenger. Each Read returns one datagram.
func NewDatagramMessenger(address string, timeout time.Duration) *NetMessenger {
	return &NetMessenger{network: "udp", address: address, timeout: timeout}
}

func (m *NetMessenger) Open(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn != nil {
		return nil
	}

	dialer := net.Dialer{Timeout: m.timeout}
	conn, err := dialer.DialContext(ctx, m.network, m.address)
	if err != nil {
		return Transport("open "+m.address, err)
	}
	m.conn = conn
	return nil
}

func (m *NetMessenger) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn == nil {
		return nil
	}
	err := m.conn.Close()
	m.conn = nil
	return err
}

func (m *NetMessenger) current() (net.Conn, time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn, m.timeout
}

func (m *NetMessenger) Read(p []byte) (int, error) {
	conn, timeout := m.current()
	if conn == nil {
		return 0, &TransportError{Op: "read", Err: ErrNotOpen}
	}
	if timeout > 0 {
		conn.SetReadDeadline(time.Now().Add(timeout))
	}
	n, err := conn.Read(p)
	if err != nil && err != io.EOF {
		return n, Transport("read "+m.address, err)
	}
	return n, err
}

func (m *NetMessenger) Write(p []byte) (int, error) {
	conn, timeout := m.current()
	if conn == nil {
		return 0, &TransportError{Op: "write", Err: ErrNotOpen}
	}
	if timeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(timeout))
	}
	n, err := conn.Write(p)
	if err != nil {
		return n, Transport("write "+m.address, err)
	}
	return n, nil
}

func (m *NetMessenger) SetTimeout(d time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeout = d
	return nil
}

func (m *NetMessenger) Timeout() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timeout
}

func (m *NetMessenger) IsOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn != nil
}

// String returns the link URI form of the messenger.
func (m *NetMessenger) String() string {
	return m.network + "://" + m.address
}
