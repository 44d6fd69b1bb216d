package comm

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// HTTPMessenger fetches a resource on Open and exposes the response body
// as its input stream. The body is consumed once; the messenger closes
// itself at end of stream so the next operation re-fetches.
type HTTPMessenger struct {
	url    string
	client *http.Client

	mu      sync.Mutex
	body    io.ReadCloser
	timeout time.Duration
}

// NewHTTPMessenger creates a messenger for an http(s) URL.
func NewHTTPMessenger(url string, timeout time.Duration) *HTTPMessenger {
	return &HTTPMessenger{
		url:     url,
		client:  &http.Client{},
		timeout: timeout,
	}
}

func (m *HTTPMessenger) Open(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.body != nil {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.url, nil)
	if err != nil {
		return &ConfigError{Controller: m.url, Reason: err.Error()}
	}
	m.client.Timeout = m.timeout
	resp, err := m.client.Do(req)
	if err != nil {
		return Transport("open "+m.url, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return &TransportError{Op: "open " + m.url, Err: fmt.Errorf("http status %d", resp.StatusCode)}
	}
	m.body = resp.Body
	return nil
}

func (m *HTTPMessenger) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.body == nil {
		return nil
	}
	err := m.body.Close()
	m.body = nil
	return err
}

func (m *HTTPMessenger) Read(p []byte) (int, error) {
	m.mu.Lock()
	body := m.body
	m.mu.Unlock()

	if body == nil {
		return 0, &TransportError{Op: "read", Err: ErrNotOpen}
	}
	n, err := body.Read(p)
	if err == io.EOF {
		m.Close()
		return n, io.EOF
	}
	if err != nil {
		return n, Transport("read "+m.url, err)
	}
	return n, nil
}

// Write is not supported; requests are implied by Open.
func (m *HTTPMessenger) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	return 0, &TransportError{Op: "write", Err: ErrNotSupported}
}

func (m *HTTPMessenger) SetTimeout(d time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeout = d
	return nil
}

func (m *HTTPMessenger) Timeout() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timeout
}

func (m *HTTPMessenger) IsOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.body != nil
}
