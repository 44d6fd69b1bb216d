package comm

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/goburrow/serial"
)

// serialPollInterval is the port-level read timeout. Reads loop at this
// granularity so the messenger timeout can change while the port stays open
// (a modem dial must not drop carrier).
const serialPollInterval = 100 * time.Millisecond

// SerialMessenger is a Messenger over a local serial port.
type SerialMessenger struct {
	config serial.Config

	mu      sync.Mutex
	port    serial.Port
	timeout time.Duration
}

// NewSerialMessenger creates a messenger for a serial device (8N1 by default).
func NewSerialMessenger(address string, baud int, timeout time.Duration) *SerialMessenger {
	if baud <= 0 {
		baud = 9600
	}
	return &SerialMessenger{
		config: serial.Config{
			Address:  address,
			BaudRate: baud,
			DataBits: 8,
			StopBits: 1,
			Parity:   "N",
			Timeout:  serialPollInterval,
		},
		timeout: timeout,
	}
}

func (m *SerialMessenger) Open(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.port != nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return Transport("open "+m.config.Address, err)
	}
	port, err := serial.Open(&m.config)
	if err != nil {
		return Transport("open "+m.config.Address, err)
	}
	m.port = port
	return nil
}

func (m *SerialMessenger) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.port == nil {
		return nil
	}
	err := m.port.Close()
	m.port = nil
	return err
}

func (m *SerialMessenger) current() (serial.Port, time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.port, m.timeout
}

func (m *SerialMessenger) Read(p []byte) (int, error) {
	port, timeout := m.current()
	if port == nil {
		return 0, &TransportError{Op: "read", Err: ErrNotOpen}
	}
	deadline := time.Now().Add(timeout)
	for {
		n, err := port.Read(p)
		if n > 0 || (err != nil && !errors.Is(err, serial.ErrTimeout)) {
			if err != nil {
				return n, Transport("read "+m.config.Address, err)
			}
			return n, nil
		}
		if timeout > 0 && time.Now().After(deadline) {
			return 0, &TimeoutError{Op: "read " + m.config.Address, Timeout: timeout.String()}
		}
		if !m.IsOpen() {
			return 0, &TransportError{Op: "read", Err: ErrNotOpen}
		}
	}
}

func (m *SerialMessenger) Write(p []byte) (int, error) {
	port, _ := m.current()
	if port == nil {
		return 0, &TransportError{Op: "write", Err: ErrNotOpen}
	}
	n, err := port.Write(p)
	if err != nil {
		return n, Transport("write "+m.config.Address, err)
	}
	return n, nil
}

func (m *SerialMessenger) SetTimeout(d time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeout = d
	return nil
}

func (m *SerialMessenger) Timeout() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timeout
}

func (m *SerialMessenger) IsOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.port != nil
}
