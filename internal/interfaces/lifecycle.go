package interfaces

import (
	"context"

	"github.com/KevinKickass/OpenRoadwayCore/internal/comm"
	"github.com/KevinKickass/OpenRoadwayCore/internal/config"
	"github.com/KevinKickass/OpenRoadwayCore/internal/devices"
	"github.com/KevinKickass/OpenRoadwayCore/internal/storage"
)

// SystemStatus represents the current system state
type SystemStatus struct {
	State             string `json:"state"`
	Error             string `json:"error,omitempty"`
	SelectorRunning   bool   `json:"selector_running"`
	LinkCount         int    `json:"link_count"`
	ActiveLinks       int    `json:"active_links"`
	ControllerCount   int    `json:"controller_count"`
	FailedControllers int    `json:"failed_controllers"`
	DeviceCount       int    `json:"device_count"`
	QueuedOperations  int    `json:"queued_operations"`
}

type LifecycleManager interface {
	Config() *config.Config
	// Storage is nil when the database is disabled.
	Storage() storage.StatusStore
	DeviceManager() *devices.Manager
	Metrics() *comm.Metrics
	GetCurrentStatus() SystemStatus
	Shutdown(ctx context.Context) error
}
