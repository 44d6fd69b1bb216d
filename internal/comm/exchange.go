package comm

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"sync"

	"go.uber.org/zap"
)

// QueryProp is a property that can be read from a controller.
type QueryProp interface {
	EncodeQuery(buf *bytes.Buffer) error
	DecodeQuery(resp []byte) error
}

// StoreProp is a property that can be written to a controller.
type StoreProp interface {
	EncodeStore(buf *bytes.Buffer) error
	DecodeStore(resp []byte) error
}

// NoReply is implemented by store properties the device never acknowledges.
type NoReply interface {
	NoReply() bool
}

// Exchange performs request/response I/O for the phases of one attempt.
// Responses are awaited through the selector and cut into frames by split.
type Exchange struct {
	op        *Operation
	messenger Messenger
	selectors SelectorSource
	split     bufio.SplitFunc
	logger    *zap.Logger

	// pending holds bytes read past the end of the last frame.
	pending []byte
}

func newExchange(op *Operation, m Messenger, sel SelectorSource, split bufio.SplitFunc, logger *zap.Logger) *Exchange {
	if split == nil {
		split = ScanDatagram
	}
	return &Exchange{op: op, messenger: m, selectors: sel, split: split, logger: logger}
}

// Operation returns the operation this exchange serves.
func (x *Exchange) Operation() *Operation { return x.op }

// Messenger returns the link messenger.
func (x *Exchange) Messenger() Messenger { return x.messenger }

// Query sends a read request for p and decodes the response.
func (x *Exchange) Query(ctx context.Context, p QueryProp) error {
	if err := x.Send(p.EncodeQuery); err != nil {
		return err
	}
	resp, err := x.Await(ctx)
	if err != nil {
		return err
	}
	return p.DecodeQuery(resp)
}

// Store sends a write request for p and decodes the acknowledgment.
func (x *Exchange) Store(ctx context.Context, p StoreProp) error {
	if err := x.Send(p.EncodeStore); err != nil {
		return err
	}
	if nr, ok := p.(NoReply); ok && nr.NoReply() {
		return nil
	}
	resp, err := x.Await(ctx)
	if err != nil {
		return err
	}
	return p.DecodeStore(resp)
}

// Send encodes a request and writes it. An empty request writes nothing.
func (x *Exchange) Send(encode func(*bytes.Buffer) error) error {
	var buf bytes.Buffer
	if err := encode(&buf); err != nil {
		return err
	}
	if buf.Len() == 0 {
		return nil
	}
	if _, err := x.messenger.Write(buf.Bytes()); err != nil {
		return Transport("write", err)
	}
	return nil
}

// Await waits for one response frame. Bytes following the frame are kept
// for the next call.
func (x *Exchange) Await(ctx context.Context) ([]byte, error) {
	w := &frameWaiter{split: x.split, buf: x.pending, result: make(chan frameResult, 1)}
	x.pending = nil
	if len(w.buf) > 0 && w.scan(false) {
		return x.collect(<-w.result)
	}

	sel := x.selectors.Selector(ctx)
	if sel == nil {
		return nil, &TransportError{Op: "await", Err: ErrNoSelector}
	}
	key, err := sel.Register(x.messenger, x.messenger.Timeout(), w)
	if err != nil {
		return nil, Transport("register", err)
	}

	select {
	case <-ctx.Done():
		sel.Cancel(key)
		return nil, &TransportError{Op: "await", Err: ctx.Err()}
	case r := <-w.result:
		return x.collect(r)
	}
}

func (x *Exchange) collect(r frameResult) ([]byte, error) {
	if r.err == nil {
		x.pending = r.rest
	}
	return r.frame, r.err
}

type frameResult struct {
	frame []byte
	rest  []byte
	err   error
}

// frameWaiter accumulates chunks until split yields a complete frame.
type frameWaiter struct {
	split  bufio.SplitFunc
	buf    []byte
	once   sync.Once
	result chan frameResult
}

func (w *frameWaiter) deliver(r frameResult) {
	w.once.Do(func() {
		w.result <- r
	})
}

func (w *frameWaiter) Readable(p []byte) bool {
	w.buf = append(w.buf, p...)
	return !w.scan(false)
}

func (w *frameWaiter) Failed(err error) {
	if errors.Is(err, io.EOF) {
		if !w.scan(true) {
			w.deliver(frameResult{err: &TransportError{Op: "read", Err: io.ErrUnexpectedEOF}})
		}
		return
	}
	w.deliver(frameResult{err: err})
}

// scan runs split over the buffer, discarding skipped bytes, and reports
// whether a result was delivered.
func (w *frameWaiter) scan(atEOF bool) bool {
	for {
		adv, token, err := w.split(w.buf, atEOF)
		if err != nil {
			w.deliver(frameResult{err: asParsing(err)})
			return true
		}
		if token != nil {
			r := frameResult{frame: append([]byte(nil), token...)}
			if adv > 0 && adv < len(w.buf) {
				r.rest = append([]byte(nil), w.buf[adv:]...)
			}
			w.deliver(r)
			return true
		}
		if adv <= 0 || adv > len(w.buf) {
			return false
		}
		w.buf = w.buf[adv:]
	}
}

func asParsing(err error) error {
	var pe *ParsingError
	if errors.As(err, &pe) {
		return err
	}
	return &ParsingError{Detail: "framing", Err: err}
}

// ScanDatagram treats every chunk read as one complete frame.
func ScanDatagram(data []byte, atEOF bool) (int, []byte, error) {
	if len(data) == 0 {
		return 0, nil, nil
	}
	return len(data), data, nil
}

// ScanDelimited returns a split function for frames ending in delim. The
// delimiter is not part of the frame.
func ScanDelimited(delim byte) bufio.SplitFunc {
	return func(data []byte, atEOF bool) (int, []byte, error) {
		if i := bytes.IndexByte(data, delim); i >= 0 {
			return i + 1, data[:i], nil
		}
		if atEOF && len(data) > 0 {
			return len(data), data, nil
		}
		return 0, nil, nil
	}
}

// ScanAll returns the whole stream as one frame at end of stream.
func ScanAll(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF {
		if data == nil {
			data = []byte{}
		}
		return len(data), data, nil
	}
	return 0, nil, nil
}
