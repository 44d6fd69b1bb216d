// Package vicon controls Vicon video matrix switchers.
package vicon

import (
	"context"

	"go.uber.org/zap"

	"github.com/KevinKickass/OpenRoadwayCore/internal/comm"
)

const Name = "vicon"

// Monitor is a switcher output bound to a controller pin.
type Monitor interface {
	comm.ControllerIO
	MonNum() int
}

// Protocol returns the wire description of Vicon links.
func Protocol() comm.Protocol {
	return comm.Protocol{
		Name:  Name,
		Split: comm.ScanDelimited('\r'),
	}
}

// Poller drives one switcher link.
type Poller struct {
	*comm.Poller
}

func NewPoller(link *comm.CommLink, m comm.Messenger, sel comm.SelectorSource,
	cfg comm.PollerConfig, metrics *comm.Metrics, logger *zap.Logger) *Poller {
	return &Poller{Poller: comm.NewPoller(link, Protocol(), m, sel, cfg, metrics, logger)}
}

// SelectCamera switches monitor to camera.
func (p *Poller) SelectCamera(c *comm.Controller, monitor, camera int) *comm.Operation {
	return p.store(c, "SelectCamera", &SelectCameraProp{Monitor: monitor, Camera: camera})
}

// StartTour starts tour on monitor.
func (p *Poller) StartTour(c *comm.Controller, monitor, tour int) *comm.Operation {
	return p.store(c, "StartTour", &StartTourProp{Monitor: monitor, Tour: tour})
}

func (p *Poller) store(c *comm.Controller, name string, prop comm.StoreProp) *comm.Operation {
	op := p.CreateOperation(c, name, comm.PriorityCommand,
		func(ctx context.Context, x *comm.Exchange) (comm.Phase, error) {
			return nil, x.Store(ctx, prop)
		})
	p.Add(op)
	return op
}

// Poll30Second queries the camera and tour of every bound monitor.
func (p *Poller) Poll30Second(c *comm.Controller, done *comm.Completer) {
	for _, pin := range c.Pins() {
		io, _ := c.IO(pin)
		mon, ok := io.(Monitor)
		if !ok {
			continue
		}
		pin, num := pin, mon.MonNum()
		var queryTour comm.Phase
		queryCamera := func(ctx context.Context, x *comm.Exchange) (comm.Phase, error) {
			prop := &CameraProp{Monitor: num}
			if err := x.Query(ctx, prop); err != nil {
				return nil, err
			}
			c.Record(pin, "camera", prop.Camera)
			return queryTour, nil
		}
		queryTour = func(ctx context.Context, x *comm.Exchange) (comm.Phase, error) {
			prop := &TourProp{Monitor: num}
			if err := x.Query(ctx, prop); err != nil {
				return nil, err
			}
			c.Record(pin, "tour", prop.Tour)
			return nil, nil
		}
		p.Submit(p.CreateOperation(c, "QueryMonitor", comm.PriorityPoll30Sec, queryCamera), done)
	}
}
