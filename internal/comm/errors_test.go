package comm_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KevinKickass/OpenRoadwayCore/internal/comm"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want comm.ErrorClass
	}{
		{"transport", &comm.TransportError{Op: "read", Err: io.ErrUnexpectedEOF}, comm.ClassTransport},
		{"wrapped parsing", fmt.Errorf("decode: %w", comm.Parsing("bad length %d", 3)), comm.ClassParsing},
		{"timeout", &comm.TimeoutError{Op: "read", Timeout: "1s"}, comm.ClassTimeout},
		{"deadline", context.DeadlineExceeded, comm.ClassTimeout},
		{"config", &comm.ConfigError{Controller: "c1", Reason: "no drop"}, comm.ClassConfiguration},
		{"unknown", errors.New("boom"), comm.ClassTransport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, comm.Classify(tt.err))
		})
	}
}

func TestRetryLimit(t *testing.T) {
	assert.Equal(t, 3, comm.RetryLimit(&comm.TransportError{Op: "x", Err: io.EOF}, 3, 1))
	assert.Equal(t, 3, comm.RetryLimit(&comm.TimeoutError{Op: "x"}, 3, 1))
	assert.Equal(t, 1, comm.RetryLimit(comm.Parsing("bad"), 3, 1))
	assert.Equal(t, 0, comm.RetryLimit(comm.Parsing("bad"), 0, 1))
	assert.Equal(t, 0, comm.RetryLimit(&comm.ConfigError{}, 3, 1))
	assert.Equal(t, 0, comm.RetryLimit(comm.ErrLinkClosed, 3, 1))
	assert.False(t, comm.IsRetryable(nil))
}

func TestTransportWrapping(t *testing.T) {
	assert.Nil(t, comm.Transport("read", nil))

	to := &comm.TimeoutError{Op: "read", Timeout: "1s"}
	assert.Same(t, to, comm.Transport("read", to))

	err := comm.Transport("open", errors.New("refused"))
	var te *comm.TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "open", te.Op)
	assert.Contains(t, err.Error(), "refused")
}

func TestStateTransitions(t *testing.T) {
	assert.NoError(t, comm.ValidateTransition(comm.StatePending, comm.StateInProgress))
	assert.NoError(t, comm.ValidateTransition(comm.StateInProgress, comm.StateTimedOut))
	assert.NoError(t, comm.ValidateTransition(comm.StateFailed, comm.StatePending))
	assert.Error(t, comm.ValidateTransition(comm.StateSucceeded, comm.StatePending))
	assert.Error(t, comm.ValidateTransition(comm.StatePending, comm.StateSucceeded))
	assert.True(t, comm.StateTimedOut.IsTerminal())
	assert.False(t, comm.StateInProgress.IsTerminal())
}

func TestNewMessengerSchemes(t *testing.T) {
	tests := []struct {
		uri  string
		want string
	}{
		{"tcp://10.0.0.1:5000", "*comm.NetMessenger"},
		{"udp://10.0.0.1:161", "*comm.NetMessenger"},
		{"serial:///dev/ttyS0?baud=19200", "*comm.SerialMessenger"},
		{"http://feed.example/msgs", "*comm.HTTPMessenger"},
		{"modem:tcp://10.0.0.9:4001?phone=5551234&config=ATZ", "*comm.ModemMessenger"},
	}
	for _, tt := range tests {
		m, err := comm.NewMessenger(tt.uri, time.Second)
		require.NoError(t, err, tt.uri)
		assert.Equal(t, tt.want, fmt.Sprintf("%T", m))
		assert.Equal(t, time.Second, m.Timeout())
	}

	for _, bad := range []string{
		"ftp://host",
		"serial:///dev/ttyS0?baud=fast",
		"modem:tcp://10.0.0.9:4001",
		"modem:tcp://10.0.0.9:4001?phone=1&connect_timeout=soon",
	} {
		_, err := comm.NewMessenger(bad, time.Second)
		var ce *comm.ConfigError
		assert.True(t, errors.As(err, &ce), bad)
	}
}
