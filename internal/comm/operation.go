package comm

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Phase is one step of an operation. It returns the next phase, or nil
// when the operation is complete.
type Phase func(ctx context.Context, x *Exchange) (Phase, error)

// Operation is a sequence of phases against one controller.
type Operation struct {
	ID         uuid.UUID
	Name       string
	Controller *Controller
	Priority   Priority

	// Resumable operations restart at the failed phase on retry instead
	// of the first one.
	Resumable bool

	first Phase

	mu       sync.Mutex
	phase    Phase
	state    State
	retries  int
	attempts int
	err      error
	finished bool
	started  time.Time
	ended    time.Time
	onDone   []func(*Operation)
	done     chan struct{}
}

// NewOperation creates a pending operation starting at phase first.
func NewOperation(name string, c *Controller, prio Priority, first Phase) *Operation {
	return &Operation{
		ID:         uuid.New(),
		Name:       name,
		Controller: c,
		Priority:   prio,
		first:      first,
		phase:      first,
		state:      StatePending,
		retries:    -1,
		done:       make(chan struct{}),
	}
}

// SetRetries sets the retry budget. An operation with n retries makes at
// most n+1 attempts.
func (o *Operation) SetRetries(n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if n < 0 {
		n = 0
	}
	o.retries = n
}

func (o *Operation) Retries() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.retries
}

func (o *Operation) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Operation) Attempts() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.attempts
}

// Err returns the error of the last failed attempt.
func (o *Operation) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.err
}

// Duration returns the time from the first attempt to completion.
func (o *Operation) Duration() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.started.IsZero() {
		return 0
	}
	if o.ended.IsZero() {
		return time.Since(o.started)
	}
	return o.ended.Sub(o.started)
}

// OnDone registers fn to run once the operation is finished. If it already
// is, fn runs immediately.
func (o *Operation) OnDone(fn func(*Operation)) {
	o.mu.Lock()
	if o.finished {
		o.mu.Unlock()
		fn(o)
		return
	}
	o.onDone = append(o.onDone, fn)
	o.mu.Unlock()
}

// Done is closed once the operation is finished.
func (o *Operation) Done() <-chan struct{} { return o.done }

// Wait blocks until the operation is finished and returns its final error.
func (o *Operation) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-o.done:
		return o.Err()
	}
}

// IsDone reports whether the operation reached its final state.
func (o *Operation) IsDone() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.finished
}

func (o *Operation) transition(to State) error {
	if err := ValidateTransition(o.state, to); err != nil {
		return err
	}
	o.state = to
	return nil
}

// begin moves the operation to IN_PROGRESS and returns the phase to run.
func (o *Operation) begin() (Phase, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.transition(StateInProgress); err != nil {
		return nil, err
	}
	o.attempts++
	if o.started.IsZero() {
		o.started = time.Now()
	}
	return o.phase, nil
}

// fail records a failed attempt at phase. The operation stays in its
// failed state until it is requeued or finished.
func (o *Operation) fail(phase Phase, state State, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.err = err
	if o.Resumable && phase != nil {
		o.phase = phase
	} else {
		o.phase = o.first
	}
	if o.transition(state) != nil {
		o.state = StateFailed
	}
}

// requeue puts a failed operation back to PENDING for another attempt.
func (o *Operation) requeue() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.transition(StatePending)
}

func (o *Operation) succeed() {
	o.mu.Lock()
	o.err = nil
	o.state = StateSucceeded
	o.mu.Unlock()
	o.finish()
}

// abort fails an operation that never got to run.
func (o *Operation) abort(err error) {
	o.mu.Lock()
	o.err = err
	if o.state != StateTimedOut {
		o.state = StateFailed
	}
	o.mu.Unlock()
	o.finish()
}

func (o *Operation) finish() {
	o.mu.Lock()
	if o.finished {
		o.mu.Unlock()
		return
	}
	o.finished = true
	o.ended = time.Now()
	callbacks := o.onDone
	o.onDone = nil
	close(o.done)
	o.mu.Unlock()

	for _, fn := range callbacks {
		fn(o)
	}
}
