package devices

import (
	"sync"
	"time"

	"github.com/KevinKickass/OpenRoadwayCore/internal/protocol/monstream"
	"github.com/KevinKickass/OpenRoadwayCore/internal/protocol/pelcop"
	"github.com/KevinKickass/OpenRoadwayCore/internal/types"
)

// Event types published by device objects.
const (
	EventValue         = "value"
	EventCommFailed    = "comm_failed"
	EventCommRestored  = "comm_restored"
	EventFeedMessage   = "feed_message"
	EventCameraCommand = "camera_command"
)

// Event is a change on one device object.
type Event struct {
	Type      string           `json:"type"`
	Device    string           `json:"device"`
	Kind      types.DeviceKind `json:"kind"`
	Key       string           `json:"key,omitempty"`
	Value     any              `json:"value,omitempty"`
	Error     string           `json:"error,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// EventSink receives device events. Publish must not block.
type EventSink interface {
	Publish(Event)
}

// DeviceStatus is a snapshot of one device object.
type DeviceStatus struct {
	Name       string           `json:"name"`
	Kind       types.DeviceKind `json:"kind"`
	Controller string           `json:"controller"`
	Pin        int              `json:"pin"`
	Failed     bool             `json:"failed"`
	LastError  string           `json:"last_error,omitempty"`
	Values     map[string]any   `json:"values"`
	Updated    time.Time        `json:"updated,omitempty"`
}

// Device is the common part of every device object: it keeps the latest
// decoded values and the comm state reported by its controller.
type Device struct {
	name       string
	kind       types.DeviceKind
	controller string
	pin        int
	events     EventSink

	mu        sync.RWMutex
	values    map[string]any
	failed    bool
	lastError string
	updated   time.Time
}

func newDevice(cfg types.DeviceConfig, controller string, events EventSink) *Device {
	return &Device{
		name:       cfg.Name,
		kind:       cfg.Kind,
		controller: controller,
		pin:        cfg.Pin,
		events:     events,
		values:     make(map[string]any),
	}
}

func (d *Device) Name() string { return d.name }

func (d *Device) Kind() types.DeviceKind { return d.kind }

func (d *Device) publish(ev Event) {
	if d.events == nil {
		return
	}
	ev.Device = d.name
	ev.Kind = d.kind
	ev.Timestamp = time.Now()
	d.events.Publish(ev)
}

func (d *Device) Record(key string, value any) {
	d.mu.Lock()
	d.values[key] = value
	d.updated = time.Now()
	d.mu.Unlock()
	d.publish(Event{Type: EventValue, Key: key, Value: value})
}

// Value returns the latest recorded value for key.
func (d *Device) Value(key string) (any, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	v, ok := d.values[key]
	return v, ok
}

func (d *Device) CommFailed(err error) {
	d.mu.Lock()
	first := !d.failed
	d.failed = true
	if err != nil {
		d.lastError = err.Error()
	}
	msg := d.lastError
	d.mu.Unlock()
	if first {
		d.publish(Event{Type: EventCommFailed, Error: msg})
	}
}

func (d *Device) CommRestored() {
	d.mu.Lock()
	d.failed = false
	d.mu.Unlock()
	d.publish(Event{Type: EventCommRestored})
}

func (d *Device) Status() DeviceStatus {
	d.mu.RLock()
	defer d.mu.RUnlock()
	values := make(map[string]any, len(d.values))
	for k, v := range d.values {
		values[k] = v
	}
	return DeviceStatus{
		Name:       d.name,
		Kind:       d.kind,
		Controller: d.controller,
		Pin:        d.pin,
		Failed:     d.failed,
		LastError:  d.lastError,
		Values:     values,
		Updated:    d.updated,
	}
}

// Object is implemented by every device object kind.
type Object interface {
	Name() string
	Kind() types.DeviceKind
	Record(key string, value any)
	CommFailed(err error)
	CommRestored()
	Status() DeviceStatus
}

// Sign is a dynamic message sign.
type Sign struct {
	*Device
}

// SetFeedMessage stores the message from a feed. An empty message blanks
// the sign.
func (s *Sign) SetFeedMessage(multi string) {
	s.mu.Lock()
	s.values["feed_message"] = multi
	s.updated = time.Now()
	s.mu.Unlock()
	s.publish(Event{Type: EventFeedMessage, Value: multi})
}

// FeedMessage returns the active feed message.
func (s *Sign) FeedMessage() string {
	v, _ := s.Value("feed_message")
	msg, _ := v.(string)
	return msg
}

// Camera is a PTZ camera addressed by number.
type Camera struct {
	*Device
	number int
}

func (c *Camera) Number() int { return c.number }

// Control records a keyboard command for the camera.
func (c *Camera) Control(cmd pelcop.CamCommand) {
	c.mu.Lock()
	c.values["last_command"] = cmd.String()
	c.values["monitor"] = cmd.Monitor
	if cmd.Action == pelcop.ActionRecallPreset {
		c.values["preset"] = cmd.Preset
	}
	c.updated = time.Now()
	c.mu.Unlock()
	c.publish(Event{Type: EventCameraCommand, Value: cmd.String()})
}

// Monitor is a video monitor on a switcher or decoder.
type Monitor struct {
	*Device
	number int
	style  *types.MonitorStyle
}

func (m *Monitor) MonNum() int { return m.number }

// Style returns the configured style, if any.
func (m *Monitor) Style() (monstream.Style, bool) {
	if m.style == nil {
		return monstream.Style{}, false
	}
	return monstream.Style{
		Accent:      m.style.Accent,
		ForceAspect: m.style.ForceAspect,
		FontSz:      m.style.FontSz,
	}, true
}

// Detector is a vehicle detection zone.
type Detector struct {
	*Device
	active bool
}

func (d *Detector) IsActive() bool { return d.active }

// NewObject creates the device object for cfg. Meters and sensors use the
// plain Device.
func NewObject(cfg types.DeviceConfig, controller string, events EventSink) Object {
	base := newDevice(cfg, controller, events)
	switch cfg.Kind {
	case types.KindSign:
		return &Sign{Device: base}
	case types.KindCamera:
		return &Camera{Device: base, number: cfg.Number}
	case types.KindMonitor:
		return &Monitor{Device: base, number: cfg.Number, style: cfg.Style}
	case types.KindDetector:
		return &Detector{Device: base, active: types.IsActive(cfg.Active)}
	default:
		return base
	}
}
