// Package monstream drives MonStream video decoders over a separator
// delimited text protocol.
package monstream

import (
	"context"

	"go.uber.org/zap"

	"github.com/KevinKickass/OpenRoadwayCore/internal/comm"
)

const Name = "monstream"

// Protocol returns the wire description of MonStream links.
func Protocol() comm.Protocol {
	return comm.Protocol{
		Name:  Name,
		Split: comm.ScanDelimited(recordSep),
	}
}

// Poller drives one MonStream link.
type Poller struct {
	*comm.Poller
}

func NewPoller(link *comm.CommLink, m comm.Messenger, sel comm.SelectorSource,
	cfg comm.PollerConfig, metrics *comm.Metrics, logger *zap.Logger) *Poller {
	return &Poller{Poller: comm.NewPoller(link, Protocol(), m, sel, cfg, metrics, logger)}
}

func monitorAt(c *comm.Controller, pin int) Monitor {
	io, _ := c.IO(pin)
	mon, _ := io.(Monitor)
	return mon
}

func maxPin(c *comm.Controller) int {
	pins := c.Pins()
	if len(pins) == 0 {
		return 0
	}
	return pins[len(pins)-1]
}

// Download configures every monitor pin of c, one pin per phase.
func (p *Poller) Download(c *comm.Controller, reset bool, prio comm.Priority) {
	last := maxPin(c)
	if last < 1 {
		return
	}
	op := p.CreateOperation(c, "MonitorConfig", prio, p.storeMonitor(c, 1, last))
	op.Resumable = true
	p.Add(op)
}

func (p *Poller) storeMonitor(c *comm.Controller, pin, last int) comm.Phase {
	return func(ctx context.Context, x *comm.Exchange) (comm.Phase, error) {
		prop := &MonitorProp{Pin: pin, Monitor: monitorAt(c, pin)}
		if err := x.Store(ctx, prop); err != nil {
			return nil, err
		}
		if pin >= last {
			return nil, nil
		}
		return p.storeMonitor(c, pin+1, last), nil
	}
}

// Switch plays a camera stream on the monitor at pin.
func (p *Poller) Switch(c *comm.Controller, prop *SwitchProp) *comm.Operation {
	op := p.CreateOperation(c, "MonitorSwitch", comm.PriorityCommand,
		func(ctx context.Context, x *comm.Exchange) (comm.Phase, error) {
			if err := x.Store(ctx, prop); err != nil {
				return nil, err
			}
			c.Record(prop.Pin, "camera", prop.Camera)
			return nil, nil
		})
	p.Add(op)
	return op
}

// Poll30Second queries decoder status and reads one record per bound
// monitor.
func (p *Poller) Poll30Second(c *comm.Controller, done *comm.Completer) {
	var expect int
	for _, pin := range c.Pins() {
		if monitorAt(c, pin) != nil {
			expect++
		}
	}
	if expect == 0 {
		return
	}
	query := func(ctx context.Context, x *comm.Exchange) (comm.Phase, error) {
		prop := &StatusProp{}
		if err := x.Query(ctx, prop); err != nil {
			return nil, err
		}
		p.recordStatus(c, prop.Status)
		return p.readStatus(c, expect-1), nil
	}
	p.Submit(p.CreateOperation(c, "QueryStatus", comm.PriorityPoll30Sec, query), done)
}

func (p *Poller) readStatus(c *comm.Controller, remaining int) comm.Phase {
	if remaining <= 0 {
		return nil
	}
	return func(ctx context.Context, x *comm.Exchange) (comm.Phase, error) {
		rec, err := x.Await(ctx)
		if err != nil {
			return nil, err
		}
		st, err := ParseStatus(rec)
		if err != nil {
			return nil, err
		}
		p.recordStatus(c, st)
		return p.readStatus(c, remaining-1), nil
	}
}

func (p *Poller) recordStatus(c *comm.Controller, st Status) {
	if !c.Record(st.Pin, "camera", st.Camera) {
		p.Logger().Debug("Status for unbound pin", zap.Int("pin", st.Pin))
		return
	}
	c.Record(st.Pin, "stat", st.Stat)
}
