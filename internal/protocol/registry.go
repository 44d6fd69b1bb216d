// Package protocol maps comm link protocol names to their pollers.
package protocol

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/KevinKickass/OpenRoadwayCore/internal/comm"
	"github.com/KevinKickass/OpenRoadwayCore/internal/protocol/mndot"
	"github.com/KevinKickass/OpenRoadwayCore/internal/protocol/modbus"
	"github.com/KevinKickass/OpenRoadwayCore/internal/protocol/monstream"
	"github.com/KevinKickass/OpenRoadwayCore/internal/protocol/msgfeed"
	"github.com/KevinKickass/OpenRoadwayCore/internal/protocol/ntcip"
	"github.com/KevinKickass/OpenRoadwayCore/internal/protocol/pelcop"
	"github.com/KevinKickass/OpenRoadwayCore/internal/protocol/smartsensor"
	"github.com/KevinKickass/OpenRoadwayCore/internal/protocol/vicon"
	"github.com/KevinKickass/OpenRoadwayCore/internal/types"
)

// Deps carries the collaborators some protocols need beyond the link.
type Deps struct {
	Messenger comm.Messenger
	Selectors comm.SelectorSource
	Config    comm.PollerConfig
	Metrics   *comm.Metrics
	Logger    *zap.Logger

	// Cameras resolves camera numbers for keyboard links.
	Cameras pelcop.CameraDirectory
	// Signs resolves sign names for message feeds.
	Signs msgfeed.SignDirectory
	// Profile describes the registers of Modbus devices.
	Profile *types.RegisterProfile
}

// Constructor creates the poller of one link.
type Constructor func(link *comm.CommLink, d Deps) (comm.MessagePoller, error)

// Registry holds the known protocols.
type Registry struct {
	ctors map[string]Constructor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{ctors: make(map[string]Constructor)}
}

// Default returns a registry with every built-in protocol.
func Default() *Registry {
	r := NewRegistry()
	r.Register(ntcip.Name, func(link *comm.CommLink, d Deps) (comm.MessagePoller, error) {
		return ntcip.NewPoller(link, d.Messenger, d.Selectors, d.Config, d.Metrics, d.Logger), nil
	})
	r.Register(pelcop.Name, func(link *comm.CommLink, d Deps) (comm.MessagePoller, error) {
		return pelcop.NewPoller(link, d.Messenger, d.Selectors, d.Config, d.Metrics, d.Logger, d.Cameras), nil
	})
	r.Register(monstream.Name, func(link *comm.CommLink, d Deps) (comm.MessagePoller, error) {
		return monstream.NewPoller(link, d.Messenger, d.Selectors, d.Config, d.Metrics, d.Logger), nil
	})
	r.Register(smartsensor.Name, func(link *comm.CommLink, d Deps) (comm.MessagePoller, error) {
		return smartsensor.NewPoller(link, d.Messenger, d.Selectors, d.Config, d.Metrics, d.Logger), nil
	})
	r.Register(mndot.Name, func(link *comm.CommLink, d Deps) (comm.MessagePoller, error) {
		return mndot.NewPoller(link, d.Messenger, d.Selectors, d.Config, d.Metrics, d.Logger), nil
	})
	r.Register(vicon.Name, func(link *comm.CommLink, d Deps) (comm.MessagePoller, error) {
		return vicon.NewPoller(link, d.Messenger, d.Selectors, d.Config, d.Metrics, d.Logger), nil
	})
	r.Register(msgfeed.Name, func(link *comm.CommLink, d Deps) (comm.MessagePoller, error) {
		if d.Signs == nil {
			return nil, &comm.ConfigError{Controller: link.Name, Reason: "message feed without sign directory"}
		}
		return msgfeed.NewPoller(link, d.Messenger, d.Selectors, d.Config, d.Metrics, d.Logger, d.Signs), nil
	})
	r.Register(modbus.Name, func(link *comm.CommLink, d Deps) (comm.MessagePoller, error) {
		if d.Profile == nil {
			return nil, &comm.ConfigError{Controller: link.Name, Reason: "modbus link without register profile"}
		}
		return modbus.NewPoller(link, d.Messenger, d.Selectors, d.Config, d.Metrics, d.Logger, d.Profile), nil
	})
	return r
}

// Register adds or replaces the constructor for name.
func (r *Registry) Register(name string, ctor Constructor) {
	r.ctors[name] = ctor
}

// Names returns the registered protocol names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.ctors))
	for name := range r.ctors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Create builds the poller for link.Protocol.
func (r *Registry) Create(link *comm.CommLink, d Deps) (comm.MessagePoller, error) {
	ctor, ok := r.ctors[link.Protocol]
	if !ok {
		return nil, &comm.ConfigError{Controller: link.Name, Reason: fmt.Sprintf("unknown protocol %q", link.Protocol)}
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return ctor(link, d)
}
