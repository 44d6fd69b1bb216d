// Package modbus polls Modbus TCP field devices described by a register
// profile.
package modbus

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/KevinKickass/OpenRoadwayCore/internal/comm"
	"github.com/KevinKickass/OpenRoadwayCore/internal/types"
)

const (
	Name = "modbus"

	// RegisterPin is the pin whose device object records register values.
	RegisterPin = 1
)

// Protocol returns the wire description of Modbus TCP links. The drop is
// the unit ID.
func Protocol() comm.Protocol {
	return comm.Protocol{
		Name:         Name,
		Split:        ScanFrame,
		AddressValid: func(drop int) bool { return drop >= 0 && drop <= 247 },
	}
}

// Poller drives one Modbus TCP link.
type Poller struct {
	*comm.Poller

	profile *types.RegisterProfile
	fast    []*types.RegisterDefinition
	slow    []*types.RegisterDefinition

	mu   sync.Mutex
	txID uint16
}

// NewPoller creates a poller for devices sharing profile. Registers in a
// "5m" group are read by the 5-minute poll; all others every 30 seconds.
func NewPoller(link *comm.CommLink, m comm.Messenger, sel comm.SelectorSource,
	cfg comm.PollerConfig, metrics *comm.Metrics, logger *zap.Logger, profile *types.RegisterProfile) *Poller {
	p := &Poller{
		Poller:  comm.NewPoller(link, Protocol(), m, sel, cfg, metrics, logger),
		profile: profile,
	}
	if profile == nil {
		return p
	}
	slow := make(map[string]bool)
	for _, g := range profile.Groups {
		if g.Poll == comm.Poll5Min.String() {
			for _, name := range g.Registers {
				slow[name] = true
			}
		}
	}
	for i := range profile.Registers {
		reg := &profile.Registers[i]
		if slow[reg.Name] {
			p.slow = append(p.slow, reg)
		} else {
			p.fast = append(p.fast, reg)
		}
	}
	return p
}

func (p *Poller) nextTransaction() uint16 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.txID++
	return p.txID
}

func (p *Poller) Poll30Second(c *comm.Controller, done *comm.Completer) {
	p.pollRegisters(c, "ReadRegisters30Sec", comm.PriorityPoll30Sec, p.fast, done)
}

func (p *Poller) Poll5Minute(c *comm.Controller, done *comm.Completer) {
	p.pollRegisters(c, "ReadRegisters5Min", comm.PriorityPoll5Min, p.slow, done)
}

func (p *Poller) pollRegisters(c *comm.Controller, name string, prio comm.Priority,
	regs []*types.RegisterDefinition, done *comm.Completer) {
	if len(regs) == 0 {
		return
	}
	p.Submit(p.CreateOperation(c, name, prio, p.readRegister(c, regs)), done)
}

// readRegister reads regs[0] and chains a phase for the rest.
func (p *Poller) readRegister(c *comm.Controller, regs []*types.RegisterDefinition) comm.Phase {
	return func(ctx context.Context, x *comm.Exchange) (comm.Phase, error) {
		prop := &RegisterProp{
			TransactionID: p.nextTransaction(),
			Unit:          uint8(c.Drop),
			Register:      regs[0],
		}
		if err := x.Query(ctx, prop); err != nil {
			return nil, err
		}
		c.Record(RegisterPin, regs[0].Name, prop.Value)
		if len(regs) == 1 {
			return nil, nil
		}
		return p.readRegister(c, regs[1:]), nil
	}
}

// Write stores value in the named register. Unknown registers fail the
// operation without I/O.
func (p *Poller) Write(c *comm.Controller, register string, value any) *comm.Operation {
	var reg *types.RegisterDefinition
	if p.profile != nil {
		reg, _ = p.profile.Register(register)
	}
	op := p.CreateOperation(c, "WriteRegister", comm.PriorityCommand,
		func(ctx context.Context, x *comm.Exchange) (comm.Phase, error) {
			if reg == nil {
				return nil, &comm.ConfigError{Controller: c.Name, Reason: "register not found: " + register}
			}
			prop := &RegisterProp{
				TransactionID: p.nextTransaction(),
				Unit:          uint8(c.Drop),
				Register:      reg,
				Value:         value,
			}
			if err := x.Store(ctx, prop); err != nil {
				return nil, err
			}
			c.Record(RegisterPin, reg.Name, value)
			return nil, nil
		})
	p.Add(op)
	return op
}
