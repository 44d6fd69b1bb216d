package comm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

const (
	// maxResponseLine bounds a single modem response line.
	maxResponseLine = 128
	// maxResponseLines bounds the lines read while waiting for one result.
	maxResponseLines = 8
)

// Modem describes a dialup modem.
type Modem struct {
	Name string
	// Config is an optional AT configuration string sent before dialing.
	Config string
	// Timeout bounds the wait for CONNECT after dialing.
	Timeout time.Duration
}

// ModemMessenger dials a modem over another messenger, then hands the
// connected stream to the protocol. All calls except Open are forwarded.
type ModemMessenger struct {
	wrapped Messenger
	modem   Modem
	phone   string

	mu      sync.Mutex
	timeout time.Duration
}

// NewModemMessenger wraps m with modem dialup to phone.
func NewModemMessenger(m Messenger, modem Modem, phone string) *ModemMessenger {
	return &ModemMessenger{
		wrapped: m,
		modem:   modem,
		phone:   phone,
		timeout: m.Timeout(),
	}
}

// Open opens the wrapped messenger and performs the AT handshake. On any
// handshake failure the wrapped messenger is closed again.
func (m *ModemMessenger) Open(ctx context.Context) error {
	if m.wrapped.IsOpen() {
		return nil
	}
	if err := m.wrapped.Open(ctx); err != nil {
		return err
	}
	if err := m.connect(); err != nil {
		m.wrapped.Close()
		return Transport("modem "+m.modem.Name, err)
	}
	return nil
}

func (m *ModemMessenger) connect() error {
	if m.modem.Config != "" {
		if err := m.configure(); err != nil {
			return err
		}
	}
	if err := m.writeLine("ATDT" + m.phone); err != nil {
		return err
	}

	timeout := m.Timeout()
	if m.modem.Timeout > 0 {
		if err := m.wrapped.SetTimeout(m.modem.Timeout); err != nil {
			return err
		}
	}
	defer m.wrapped.SetTimeout(timeout)
	return m.waitForConnect()
}

func (m *ModemMessenger) configure() error {
	if err := m.writeLine("\r\n\r\n" + m.modem.Config); err != nil {
		return err
	}
	for range maxResponseLines {
		resp, err := m.readLine()
		if err != nil {
			return fmt.Errorf("modem config error: %w", err)
		}
		upper := strings.ToUpper(resp)
		switch {
		case strings.Contains(upper, "OK"):
			return nil
		case strings.Contains(upper, "ERROR"):
			return fmt.Errorf("modem config error: %s", resp)
		}
	}
	return fmt.Errorf("modem config error: no result in %d lines", maxResponseLines)
}

// waitForConnect skips echo and OK lines until CONNECT or a failure result.
func (m *ModemMessenger) waitForConnect() error {
	for range maxResponseLines {
		resp, err := m.readLine()
		if err != nil {
			return fmt.Errorf("modem connect error: %w", err)
		}
		upper := strings.ToUpper(resp)
		switch {
		case strings.Contains(upper, "CONNECT"):
			return nil
		case strings.Contains(upper, "NO CARRIER"),
			strings.Contains(upper, "BUSY"),
			strings.Contains(upper, "NO DIALTONE"),
			strings.Contains(upper, "NO ANSWER"),
			strings.Contains(upper, "ERROR"):
			return fmt.Errorf("modem connect error: %s", resp)
		}
	}
	return fmt.Errorf("modem connect error: no result in %d lines", maxResponseLines)
}

func (m *ModemMessenger) writeLine(s string) error {
	_, err := m.wrapped.Write([]byte(s + "\r\n"))
	return err
}

// readLine reads one byte at a time so no device data past the
// response is consumed.
func (m *ModemMessenger) readLine() (string, error) {
	var sb strings.Builder
	b := make([]byte, 1)
	for sb.Len() < maxResponseLine {
		n, err := m.wrapped.Read(b)
		if n == 1 {
			if b[0] == '\n' {
				if line := strings.TrimSpace(sb.String()); line != "" {
					return line, nil
				}
				sb.Reset()
				continue
			}
			sb.WriteByte(b[0])
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				if line := strings.TrimSpace(sb.String()); line != "" {
					return line, nil
				}
				return "", io.ErrUnexpectedEOF
			}
			return "", err
		}
	}
	return sb.String(), nil
}

func (m *ModemMessenger) Close() error { return m.wrapped.Close() }

func (m *ModemMessenger) Read(p []byte) (int, error) { return m.wrapped.Read(p) }

func (m *ModemMessenger) Write(p []byte) (int, error) { return m.wrapped.Write(p) }

// SetTimeout sets the device timeout used after the connection is made.
func (m *ModemMessenger) SetTimeout(d time.Duration) error {
	if err := m.wrapped.SetTimeout(d); err != nil {
		return err
	}
	m.mu.Lock()
	m.timeout = d
	m.mu.Unlock()
	return nil
}

func (m *ModemMessenger) Timeout() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timeout
}

func (m *ModemMessenger) IsOpen() bool { return m.wrapped.IsOpen() }
