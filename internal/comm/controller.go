package comm

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// PollClass is how often a comm link is polled.
type PollClass int

const (
	PollOnDemand PollClass = iota
	Poll30Sec
	Poll5Min
)

func (p PollClass) String() string {
	switch p {
	case Poll30Sec:
		return "30s"
	case Poll5Min:
		return "5m"
	default:
		return "on_demand"
	}
}

// ParsePollClass parses "30s", "5m" or "on_demand".
func ParsePollClass(s string) (PollClass, error) {
	switch s {
	case "30s":
		return Poll30Sec, nil
	case "5m":
		return Poll5Min, nil
	case "", "on_demand":
		return PollOnDemand, nil
	default:
		return PollOnDemand, fmt.Errorf("unknown poll class: %s", s)
	}
}

// ControllerIO is a device object bound to a controller pin.
type ControllerIO interface {
	Name() string
}

// Recorder is implemented by device objects that accept decoded values.
type Recorder interface {
	ControllerIO
	Record(key string, value any)
}

// FailureSink is implemented by device objects that report comm state.
type FailureSink interface {
	CommFailed(err error)
	CommRestored()
}

// CommLink is one channel to a set of controllers.
type CommLink struct {
	Name     string
	Protocol string
	URI      string
	Poll     PollClass
	Timeout  time.Duration
	Active   bool

	mu          sync.RWMutex
	controllers map[string]*Controller
}

func NewCommLink(name, protocol, uri string) *CommLink {
	return &CommLink{
		Name:        name,
		Protocol:    protocol,
		URI:         uri,
		Active:      true,
		controllers: make(map[string]*Controller),
	}
}

// AddController attaches c to the link.
func (l *CommLink) AddController(c *Controller) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c.link = l
	l.controllers[c.Name] = c
}

func (l *CommLink) Controller(name string) (*Controller, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	c, ok := l.controllers[name]
	return c, ok
}

// Controllers returns the link's controllers ordered by drop address.
func (l *CommLink) Controllers() []*Controller {
	l.mu.RLock()
	defer l.mu.RUnlock()
	list := make([]*Controller, 0, len(l.controllers))
	for _, c := range l.controllers {
		list = append(list, c)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Drop != list[j].Drop {
			return list[i].Drop < list[j].Drop
		}
		return list[i].Name < list[j].Name
	})
	return list
}

// Controller is one addressable device endpoint on a comm link.
type Controller struct {
	Name     string
	Drop     int
	Active   bool
	Password string

	link *CommLink

	mu        sync.RWMutex
	io        map[int]ControllerIO
	failures  int64
	successes int64
	failed    bool
	lastError string
	lastOK    time.Time
}

func NewController(name string, drop int) *Controller {
	return &Controller{
		Name:   name,
		Drop:   drop,
		Active: true,
		io:     make(map[int]ControllerIO),
	}
}

// Link returns the comm link the controller is attached to, or nil.
func (c *Controller) Link() *CommLink { return c.link }

// Bind maps a device object to a pin, replacing any previous binding.
func (c *Controller) Bind(pin int, dev ControllerIO) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.io[pin] = dev
}

// IO returns the device object on pin.
func (c *Controller) IO(pin int) (ControllerIO, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	dev, ok := c.io[pin]
	return dev, ok
}

// Recorder returns the device object on pin if it accepts values.
func (c *Controller) Recorder(pin int) (Recorder, bool) {
	dev, ok := c.IO(pin)
	if !ok {
		return nil, false
	}
	r, ok := dev.(Recorder)
	return r, ok
}

// Record stores a value on the device object at pin, if there is one.
// It reports whether a recorder took the value.
func (c *Controller) Record(pin int, key string, value any) bool {
	r, ok := c.Recorder(pin)
	if ok {
		r.Record(key, value)
	}
	return ok
}

// Pins returns the bound pins in ascending order.
func (c *Controller) Pins() []int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	pins := make([]int, 0, len(c.io))
	for pin := range c.io {
		pins = append(pins, pin)
	}
	sort.Ints(pins)
	return pins
}

// CommFailed records a device-communication failure and forwards it to the
// bound device objects.
func (c *Controller) CommFailed(err error) {
	c.mu.Lock()
	c.failures++
	c.failed = true
	if err != nil {
		c.lastError = err.Error()
	}
	sinks := c.sinks()
	c.mu.Unlock()

	for _, s := range sinks {
		s.CommFailed(err)
	}
}

// CommSucceeded records a successful operation. Device objects are told
// when communication comes back after a failure.
func (c *Controller) CommSucceeded() {
	c.mu.Lock()
	c.successes++
	c.lastOK = time.Now()
	restored := c.failed
	c.failed = false
	var sinks []FailureSink
	if restored {
		sinks = c.sinks()
	}
	c.mu.Unlock()

	for _, s := range sinks {
		s.CommRestored()
	}
}

func (c *Controller) sinks() []FailureSink {
	var sinks []FailureSink
	for _, dev := range c.io {
		if s, ok := dev.(FailureSink); ok {
			sinks = append(sinks, s)
		}
	}
	return sinks
}

// ControllerStatus is a snapshot of controller comm state.
type ControllerStatus struct {
	Name      string    `json:"name"`
	Link      string    `json:"link"`
	Drop      int       `json:"drop"`
	Active    bool      `json:"active"`
	Failed    bool      `json:"failed"`
	Failures  int64     `json:"failures"`
	Successes int64     `json:"successes"`
	LastError string    `json:"last_error,omitempty"`
	LastOK    time.Time `json:"last_ok,omitempty"`
	Pins      []int     `json:"pins"`
}

func (c *Controller) Status() ControllerStatus {
	pins := c.Pins()
	c.mu.RLock()
	defer c.mu.RUnlock()
	st := ControllerStatus{
		Name:      c.Name,
		Drop:      c.Drop,
		Active:    c.Active,
		Failed:    c.failed,
		Failures:  c.failures,
		Successes: c.successes,
		LastError: c.lastError,
		LastOK:    c.lastOK,
		Pins:      pins,
	}
	if c.link != nil {
		st.Link = c.link.Name
	}
	return st
}
