package comm

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const modemScheme = "modem:"

// NewMessenger builds a messenger from a comm link URI:
//
//	tcp://host:port
//	udp://host:port
//	serial:///dev/ttyS0?baud=9600
//	http://host/path, https://host/path
//	modem:tcp://host:port?phone=5551234&config=ATZ&connect_timeout=30s
func NewMessenger(uri string, timeout time.Duration) (Messenger, error) {
	if strings.HasPrefix(uri, modemScheme) {
		return newModemFromURI(strings.TrimPrefix(uri, modemScheme), timeout)
	}

	u, err := url.Parse(uri)
	if err != nil {
		return nil, &ConfigError{Controller: uri, Reason: fmt.Sprintf("invalid uri: %v", err)}
	}

	switch u.Scheme {
	case "tcp":
		return NewStreamMessenger(u.Host, timeout), nil
	case "udp":
		return NewDatagramMessenger(u.Host, timeout), nil
	case "serial":
		baud := 9600
		if b := u.Query().Get("baud"); b != "" {
			baud, err = strconv.Atoi(b)
			if err != nil {
				return nil, &ConfigError{Controller: uri, Reason: "invalid baud rate " + b}
			}
		}
		return NewSerialMessenger(u.Path, baud, timeout), nil
	case "http", "https":
		return NewHTTPMessenger(uri, timeout), nil
	default:
		return nil, &ConfigError{Controller: uri, Reason: "unsupported scheme " + u.Scheme}
	}
}

func newModemFromURI(inner string, timeout time.Duration) (Messenger, error) {
	u, err := url.Parse(inner)
	if err != nil {
		return nil, &ConfigError{Controller: inner, Reason: fmt.Sprintf("invalid modem uri: %v", err)}
	}
	q := u.Query()
	phone := q.Get("phone")
	if phone == "" {
		return nil, &ConfigError{Controller: inner, Reason: "modem uri without phone number"}
	}
	modem := Modem{Name: u.Host, Config: q.Get("config"), Timeout: 30 * time.Second}
	if ct := q.Get("connect_timeout"); ct != "" {
		d, err := time.ParseDuration(ct)
		if err != nil {
			return nil, &ConfigError{Controller: inner, Reason: "invalid connect_timeout " + ct}
		}
		modem.Timeout = d
	}

	// Only transport parameters stay on the wrapped uri.
	q.Del("phone")
	q.Del("config")
	q.Del("connect_timeout")
	u.RawQuery = q.Encode()

	wrapped, err := NewMessenger(u.String(), timeout)
	if err != nil {
		return nil, err
	}
	return NewModemMessenger(wrapped, modem, phone), nil
}
