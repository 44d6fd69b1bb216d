package devices

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/KevinKickass/OpenRoadwayCore/internal/comm"
	"github.com/KevinKickass/OpenRoadwayCore/internal/types"
)

// Composer builds comm links from catalog entries and binds device objects
// to controller pins.
type Composer struct {
	events EventSink
	logger *zap.Logger
}

func NewComposer(events EventSink, logger *zap.Logger) *Composer {
	return &Composer{events: events, logger: logger}
}

// Composition is a link with the device objects bound on it.
type Composition struct {
	Link    *comm.CommLink
	Objects []Object
}

// Compose builds the link described by cfg. A zero timeout in cfg takes
// defaultTimeout.
func (c *Composer) Compose(cfg types.LinkConfig, defaultTimeout time.Duration) (*Composition, error) {
	poll, err := comm.ParsePollClass(cfg.Poll)
	if err != nil {
		return nil, fmt.Errorf("link %s: %w", cfg.Name, err)
	}

	link := comm.NewCommLink(cfg.Name, cfg.Protocol, cfg.URI)
	link.Poll = poll
	link.Active = types.IsActive(cfg.Active)
	link.Timeout = defaultTimeout
	if cfg.TimeoutMs > 0 {
		link.Timeout = time.Duration(cfg.TimeoutMs) * time.Millisecond
	}

	comp := &Composition{Link: link}
	names := make(map[string]bool)
	for _, cc := range cfg.Controllers {
		if _, dup := link.Controller(cc.Name); dup {
			return nil, fmt.Errorf("link %s: duplicate controller %s", cfg.Name, cc.Name)
		}
		ctl := comm.NewController(cc.Name, cc.Drop)
		ctl.Active = types.IsActive(cc.Active)
		ctl.Password = cc.Password

		for _, dc := range cc.Devices {
			if names[dc.Name] {
				return nil, fmt.Errorf("link %s: duplicate device %s", cfg.Name, dc.Name)
			}
			if _, taken := ctl.IO(dc.Pin); taken {
				return nil, fmt.Errorf("controller %s: pin %d bound twice", cc.Name, dc.Pin)
			}
			names[dc.Name] = true
			obj := NewObject(dc, cc.Name, c.events)
			ctl.Bind(dc.Pin, obj)
			comp.Objects = append(comp.Objects, obj)
		}
		link.AddController(ctl)
	}

	c.logger.Debug("Link composed",
		zap.String("link", cfg.Name),
		zap.String("protocol", cfg.Protocol),
		zap.String("poll", poll.String()),
		zap.Int("controllers", len(cfg.Controllers)),
		zap.Int("devices", len(comp.Objects)))

	return comp, nil
}
