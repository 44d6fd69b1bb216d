package system

import (
	"sync"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/KevinKickass/OpenRoadwayCore/internal/devices"
)

// linkService is the health service name of a comm link.
func linkService(name string) string { return "link/" + name }

// linkHealth reports a link as serving unless every active controller on
// it has failed. Inactive links are not serving.
func linkHealth(link devices.LinkStatus) healthpb.HealthCheckResponse_ServingStatus {
	if !link.Active {
		return healthpb.HealthCheckResponse_NOT_SERVING
	}
	active := 0
	failed := 0
	for _, c := range link.Controllers {
		if !c.Active {
			continue
		}
		active++
		if c.Failed {
			failed++
		}
	}
	if active > 0 && failed == active {
		return healthpb.HealthCheckResponse_NOT_SERVING
	}
	return healthpb.HealthCheckResponse_SERVING
}

// healthReporter keeps the gRPC health service in sync with link state.
type healthReporter struct {
	server *health.Server

	mu    sync.Mutex
	known map[string]bool
}

func newHealthReporter() *healthReporter {
	return &healthReporter{server: health.NewServer(), known: make(map[string]bool)}
}

// update sets the status of every link and of the whole process. Links no
// longer loaded are reported as unknown.
func (h *healthReporter) update(serving bool, links []devices.LinkStatus) {
	h.mu.Lock()
	defer h.mu.Unlock()

	overall := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		overall = healthpb.HealthCheckResponse_SERVING
	}
	h.server.SetServingStatus("", overall)

	seen := make(map[string]bool, len(links))
	for _, link := range links {
		seen[link.Name] = true
		status := linkHealth(link)
		if !serving {
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
		h.server.SetServingStatus(linkService(link.Name), status)
	}
	for name := range h.known {
		if !seen[name] {
			h.server.SetServingStatus(linkService(name), healthpb.HealthCheckResponse_SERVICE_UNKNOWN)
		}
	}
	h.known = seen
}

func (h *healthReporter) shutdown() {
	h.server.Shutdown()
}
