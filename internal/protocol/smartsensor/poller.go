// Package smartsensor polls Wavetronix SmartSensor radar detectors over
// their text memory protocol.
package smartsensor

import (
	"context"

	"go.uber.org/zap"

	"github.com/KevinKickass/OpenRoadwayCore/internal/comm"
)

const Name = "smartsensor"

// SensorPin is the pin recording sensor-wide values. Lane n reports on
// pin n.
const SensorPin = 0

// Detector is a lane detector bound to a controller pin.
type Detector interface {
	comm.ControllerIO
	IsActive() bool
}

// Protocol returns the wire description of SmartSensor links.
func Protocol() comm.Protocol {
	return comm.Protocol{
		Name:         Name,
		Split:        comm.ScanDelimited('\r'),
		AddressValid: func(drop int) bool { return drop >= 0 && drop <= 9999 },
	}
}

// Poller drives one SmartSensor link.
type Poller struct {
	*comm.Poller
}

func NewPoller(link *comm.CommLink, m comm.Messenger, sel comm.SelectorSource,
	cfg comm.PollerConfig, metrics *comm.Metrics, logger *zap.Logger) *Poller {
	return &Poller{Poller: comm.NewPoller(link, Protocol(), m, sel, cfg, metrics, logger)}
}

func hasActiveDetector(c *comm.Controller) bool {
	for _, pin := range c.Pins() {
		io, _ := c.IO(pin)
		if d, ok := io.(Detector); ok && d.IsActive() {
			return true
		}
	}
	return false
}

// Poll30Second reads binned samples, but only from controllers with an
// active detector.
func (p *Poller) Poll30Second(c *comm.Controller, done *comm.Completer) {
	if !hasActiveDetector(c) {
		return
	}
	query := func(ctx context.Context, x *comm.Exchange) (comm.Phase, error) {
		prop := &BinnedSamplesProp{Drop: c.Drop}
		if err := x.Query(ctx, prop); err != nil {
			return nil, err
		}
		for i, lane := range prop.Lanes {
			pin := i + 1
			c.Record(pin, "volume", lane.Volume)
			c.Record(pin, "occupancy", lane.Occupancy)
			c.Record(pin, "speed", lane.Speed)
		}
		c.Record(SensorPin, "interval", prop.Interval)
		return nil, nil
	}
	p.Submit(p.CreateOperation(c, "GetBinnedSamples", comm.PriorityPoll30Sec, query), done)
}

// Download checks the vehicle classification and restores the defaults
// when they were changed or reset is requested.
func (p *Poller) Download(c *comm.Controller, reset bool, prio comm.Priority) {
	if !c.Active {
		return
	}
	var class Classification

	store := func(ctx context.Context, x *comm.Exchange) (comm.Phase, error) {
		def := DefaultClassification()
		if err := x.Store(ctx, ClassificationProp(c.Drop, &def)); err != nil {
			return nil, err
		}
		c.Record(SensorPin, "classification_default", true)
		return nil, nil
	}

	query := func(ctx context.Context, x *comm.Exchange) (comm.Phase, error) {
		if err := x.Query(ctx, ClassificationProp(c.Drop, &class)); err != nil {
			return nil, err
		}
		if reset || !class.IsDefault() {
			p.Logger().Info("Restoring default classification",
				zap.String("controller", c.Name),
				zap.Bool("reset", reset))
			return store, nil
		}
		c.Record(SensorPin, "classification_default", true)
		return nil, nil
	}

	op := p.CreateOperation(c, "InitializeSensor", prio, query)
	op.Resumable = true
	p.Add(op)
}

// StartTest reads the sensor firmware version.
func (p *Poller) StartTest(c *comm.Controller) {
	query := func(ctx context.Context, x *comm.Exchange) (comm.Phase, error) {
		prop := &VersionProp{Drop: c.Drop}
		if err := x.Query(ctx, prop); err != nil {
			return nil, err
		}
		c.Record(SensorPin, "version", prop.Version)
		return nil, nil
	}
	p.Add(p.CreateOperation(c, "SensorDiagnostic", comm.PriorityDiagnostic, query))
}
