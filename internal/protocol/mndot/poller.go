// Package mndot polls 170 traffic controllers running the MnDOT
// detector and ramp meter firmware.
package mndot

import (
	"context"
	"encoding/binary"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/KevinKickass/OpenRoadwayCore/internal/comm"
)

const Name = "mndot"

// Memory map of the controller firmware.
const (
	addrData30Second = 0x0300
	addrMeterStatus  = 0x010C

	detectorInputs = 24
	meters         = 2
)

// Detector n is bound to pin n; meters follow the detectors.
const (
	MeterPin1 = detectorInputs + 1
	MeterPin2 = detectorInputs + 2
)

// Protocol returns the wire description of MnDOT links.
func Protocol() comm.Protocol {
	return comm.Protocol{
		Name:         Name,
		Split:        ScanMessage,
		AddressValid: func(drop int) bool { return drop >= 1 && drop <= maxDrop },
	}
}

// Poller drives one MnDOT 170 link.
type Poller struct {
	*comm.Poller

	now func() time.Time
}

func NewPoller(link *comm.CommLink, m comm.Messenger, sel comm.SelectorSource,
	cfg comm.PollerConfig, metrics *comm.Metrics, logger *zap.Logger) *Poller {
	return &Poller{
		Poller: comm.NewPoller(link, Protocol(), m, sel, cfg, metrics, logger),
		now:    time.Now,
	}
}

// checkDownload schedules a download when the controller asked for one.
func (p *Poller) checkDownload(c *comm.Controller, err error) error {
	if errors.Is(err, ErrDownloadRequest) {
		p.Logger().Info("Controller requested download", zap.String("controller", c.Name))
		p.Download(c, false, comm.PriorityDownload)
	}
	return err
}

// Poll30Second reads the 30-second detector data buffer: one volume byte
// per input followed by a 16-bit scan count per input.
func (p *Poller) Poll30Second(c *comm.Controller, done *comm.Completer) {
	query := func(ctx context.Context, x *comm.Exchange) (comm.Phase, error) {
		mem := &MemoryProp{Drop: c.Drop, Address: addrData30Second, Length: detectorInputs * 3}
		if err := x.Query(ctx, mem); err != nil {
			return nil, p.checkDownload(c, err)
		}
		for i := 0; i < detectorInputs; i++ {
			scans := binary.BigEndian.Uint16(mem.Data[detectorInputs+i*2:])
			c.Record(i+1, "volume", int(mem.Data[i]))
			c.Record(i+1, "scans", int(scans))
		}
		return nil, nil
	}
	p.Submit(p.CreateOperation(c, "QuerySamples30Sec", comm.PriorityPoll30Sec, query), done)
}

// Poll5Minute reads the current rate of both ramp meters.
func (p *Poller) Poll5Minute(c *comm.Controller, done *comm.Completer) {
	query := func(ctx context.Context, x *comm.Exchange) (comm.Phase, error) {
		mem := &MemoryProp{Drop: c.Drop, Address: addrMeterStatus, Length: meters}
		if err := x.Query(ctx, mem); err != nil {
			return nil, p.checkDownload(c, err)
		}
		for i, pin := range []int{MeterPin1, MeterPin2} {
			rate := MeterRate(mem.Data[i])
			if !rate.IsValid() {
				return nil, comm.Parsing("meter %d: invalid rate %d", i+1, rate)
			}
			c.Record(pin, "meter_rate", rate.String())
			c.Record(pin, "metering", rate.IsMetering())
			c.Record(pin, "central_control", rate.IsCentralControl())
		}
		return nil, nil
	}
	p.Submit(p.CreateOperation(c, "QueryMeterStatus", comm.PriorityPoll5Min, query), done)
}

// Download synchronizes the controller clock, restarting it first when
// reset is set.
func (p *Poller) Download(c *comm.Controller, reset bool, prio comm.Priority) {
	syncClock := func(ctx context.Context, x *comm.Exchange) (comm.Phase, error) {
		if err := x.Store(ctx, &ClockProp{Drop: c.Drop, Time: p.now()}); err != nil {
			return nil, err
		}
		return nil, nil
	}
	restart := func(ctx context.Context, x *comm.Exchange) (comm.Phase, error) {
		if err := x.Store(ctx, &RestartProp{Drop: c.Drop}); err != nil {
			return nil, err
		}
		return syncClock, nil
	}

	first := syncClock
	if reset {
		first = restart
	}
	op := p.CreateOperation(c, "Download170", prio, first)
	op.Resumable = true
	p.Add(op)
}

// StartTest queries the stored event record count.
func (p *Poller) StartTest(c *comm.Controller) {
	query := func(ctx context.Context, x *comm.Exchange) (comm.Phase, error) {
		prop := &RecordCountProp{Drop: c.Drop}
		if err := x.Query(ctx, prop); err != nil {
			return nil, err
		}
		c.Record(0, "record_count", prop.Count)
		return nil, nil
	}
	p.Add(p.CreateOperation(c, "QueryRecordCount", comm.PriorityDiagnostic, query))
}
