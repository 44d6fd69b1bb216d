// Package ntcip polls dynamic message signs over SNMP (NTCIP 1201/1203).
package ntcip

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/KevinKickass/OpenRoadwayCore/internal/comm"
)

const (
	Name = "ntcip"

	// SignPin is the controller pin a sign is bound to.
	SignPin = 1

	defaultCommunity  = "public"
	defaultPixelLimit = 40
)

// Protocol returns the wire description of NTCIP links.
func Protocol() comm.Protocol {
	return comm.Protocol{
		Name:         Name,
		Split:        ScanMessage,
		AddressValid: func(drop int) bool { return drop >= 0 && drop <= 0xFFFF },
	}
}

// Poller drives one NTCIP comm link.
type Poller struct {
	*comm.Poller

	community  string
	pixelLimit int

	mu    sync.Mutex
	reqID int32
}

func NewPoller(link *comm.CommLink, m comm.Messenger, sel comm.SelectorSource,
	cfg comm.PollerConfig, metrics *comm.Metrics, logger *zap.Logger) *Poller {
	return &Poller{
		Poller:     comm.NewPoller(link, Protocol(), m, sel, cfg, metrics, logger),
		community:  defaultCommunity,
		pixelLimit: defaultPixelLimit,
	}
}

// request builds a request for c. The controller password, when set, is
// the SNMP community.
func (p *Poller) request(c *comm.Controller, objs ...Object) *Request {
	p.mu.Lock()
	p.reqID++
	id := p.reqID
	p.mu.Unlock()

	community := p.community
	if c.Password != "" {
		community = c.Password
	}
	return &Request{Community: community, ID: id, Objects: objs}
}

func (p *Poller) get(ctx context.Context, x *comm.Exchange, objs ...Object) error {
	return x.Query(ctx, p.request(x.Operation().Controller, objs...))
}

func (p *Poller) set(ctx context.Context, x *comm.Exchange, objs ...Object) error {
	return x.Store(ctx, p.request(x.Operation().Controller, objs...))
}

// Poll5Minute queries sign illumination and color status.
func (p *Poller) Poll5Minute(c *comm.Controller, done *comm.Completer) {
	var queryColor comm.Phase

	queryIllum := func(ctx context.Context, x *comm.Exchange) (comm.Phase, error) {
		control := DmsIllumControl()
		level := DmsIllumBrightLevelStatus()
		rows := DmsLightSensorNumRows()
		if err := p.get(ctx, x, control, level, rows); err != nil {
			return nil, err
		}
		c.Record(SignPin, "illum_control", control.Value())
		c.Record(SignPin, "bright_level", level.Int)
		c.Record(SignPin, "light_sensor_rows", rows.Int)
		return queryColor, nil
	}

	queryColor = func(ctx context.Context, x *comm.Exchange) (comm.Phase, error) {
		scheme := DmsColorScheme()
		if err := p.get(ctx, x, scheme); err != nil {
			return nil, err
		}
		c.Record(SignPin, "color_scheme", scheme.Value())
		return nil, nil
	}

	p.Submit(p.CreateOperation(c, "QueryDMSStatus", comm.PriorityPoll5Min, queryIllum), done)
}

// Download sends the sign configuration and reads back module and font
// information. A failed download resumes at the failed phase.
func (p *Poller) Download(c *comm.Controller, reset bool, prio comm.Priority) {
	var storeCommLoss, storePixelHigh, queryModule, queryFonts comm.Phase

	resetSign := func(ctx context.Context, x *comm.Exchange) (comm.Phase, error) {
		sw := DmsSWReset()
		sw.Int = 1
		if err := p.set(ctx, x, sw); err != nil {
			return nil, err
		}
		return storeCommLoss, nil
	}

	storeCommLoss = func(ctx context.Context, x *comm.Exchange) (comm.Phase, error) {
		msg := DmsCommunicationsLossMessage()
		msg.Memory = MemoryBlank
		msg.Number = 1
		if err := p.set(ctx, x, msg); err != nil {
			return nil, err
		}
		return storePixelHigh, nil
	}

	storePixelHigh = func(ctx context.Context, x *comm.Exchange) (comm.Phase, error) {
		limit := LedPixelHigh()
		limit.Int = p.pixelLimit
		if err := p.set(ctx, x, limit); err != nil {
			return nil, err
		}
		return queryModule, nil
	}

	queryModule = func(ctx context.Context, x *comm.Exchange) (comm.Phase, error) {
		mk, model := ModuleMake(1), ModuleModel(1)
		if err := p.get(ctx, x, mk, model); err != nil {
			return nil, err
		}
		c.Record(SignPin, "module_make", mk.Value())
		c.Record(SignPin, "module_model", model.Value())
		return queryFonts, nil
	}

	queryFonts = func(ctx context.Context, x *comm.Exchange) (comm.Phase, error) {
		num := NumFonts()
		if err := p.get(ctx, x, num); err != nil {
			return nil, err
		}
		c.Record(SignPin, "num_fonts", num.Int)
		if num.Int <= 0 {
			return nil, nil
		}
		return p.queryFontVersion(c, 1, num.Int, nil), nil
	}

	first := storeCommLoss
	if reset {
		first = resetSign
	}
	op := p.CreateOperation(c, "DownloadDMS", prio, first)
	op.Resumable = true
	p.Add(op)
}

// queryFontVersion reads fontVersionID for rows row..last, one row per phase.
func (p *Poller) queryFontVersion(c *comm.Controller, row, last int, versions []int) comm.Phase {
	return func(ctx context.Context, x *comm.Exchange) (comm.Phase, error) {
		v := FontVersionID(row)
		if err := p.get(ctx, x, v); err != nil {
			return nil, fmt.Errorf("font %d: %w", row, err)
		}
		versions = append(versions, v.Int)
		if row >= last {
			c.Record(SignPin, "font_versions", versions)
			return nil, nil
		}
		return p.queryFontVersion(c, row+1, last, versions), nil
	}
}

// StartTest reads the pixel and sensor failure status of the sign.
func (p *Poller) StartTest(c *comm.Controller) {
	var queryLamp comm.Phase

	querySensors := func(ctx context.Context, x *comm.Exchange) (comm.Phase, error) {
		failures := SensorFailures()
		if err := p.get(ctx, x, failures); err != nil {
			return nil, err
		}
		c.Record(SignPin, "sensor_failures", failures.Value())
		return queryLamp, nil
	}

	queryLamp = func(ctx context.Context, x *comm.Exchange) (comm.Phase, error) {
		lamp := DmsLampMfrStatus(1)
		if err := p.get(ctx, x, lamp); err != nil {
			return nil, err
		}
		c.Record(SignPin, "lamp_status", lamp.Value())
		return nil, nil
	}

	p.Add(p.CreateOperation(c, "PixelTest", comm.PriorityDiagnostic, querySensors))
}
