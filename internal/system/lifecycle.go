package system

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/KevinKickass/OpenRoadwayCore/internal/api/rest"
	"github.com/KevinKickass/OpenRoadwayCore/internal/api/websocket"
	"github.com/KevinKickass/OpenRoadwayCore/internal/comm"
	"github.com/KevinKickass/OpenRoadwayCore/internal/config"
	"github.com/KevinKickass/OpenRoadwayCore/internal/devices"
	"github.com/KevinKickass/OpenRoadwayCore/internal/interfaces"
	"github.com/KevinKickass/OpenRoadwayCore/internal/schedule"
	"github.com/KevinKickass/OpenRoadwayCore/internal/storage"
	"github.com/KevinKickass/OpenRoadwayCore/internal/types"
)

const healthInterval = 5 * time.Second

type LifecycleManager struct {
	config  *config.Config
	db      *storage.PostgresClient
	store   storage.StatusStore
	metrics *comm.Metrics
	logger  *zap.Logger

	links    *devices.LinkLoader
	profiles *devices.ProfileLoader

	selector   *comm.SelectorThread
	hub        *websocket.Hub
	timer      *schedule.PollTimer
	health     *healthReporter
	restServer *rest.Server
	grpcServer *grpc.Server

	mu           sync.RWMutex
	currentState SystemState
	lastError    error
	dm           *devices.Manager

	// runCtx lives until Shutdown; pollers started on reload use it.
	runCtx       context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	shutdownChan chan struct{}
	shutdownOnce sync.Once
}

// NewLifecycleManager wires the engine. db may be nil when the database is
// disabled.
func NewLifecycleManager(db *storage.PostgresClient, cfg *config.Config, logger *zap.Logger) (*LifecycleManager, error) {
	validator, err := devices.NewValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to create validator: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := comm.NewMetrics(reg)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	lm := &LifecycleManager{
		config:       cfg,
		db:           db,
		metrics:      metrics,
		logger:       logger,
		links:        devices.NewLinkLoader(validator),
		profiles:     devices.NewProfileLoader(validator, cfg.Profiles.SearchPaths),
		hub:          websocket.NewHub(logger.Named("websocket")),
		health:       newHealthReporter(),
		currentState: StateInitializing,
		shutdownChan: make(chan struct{}),
	}
	if db != nil {
		lm.store = db
	}
	return lm, nil
}

// Start starts the selector, the link pollers and the API servers.
func (lm *LifecycleManager) Start(ctx context.Context) error {
	lm.logger.Info("Starting OpenRoadwayCore")

	runCtx, cancel := context.WithCancel(context.Background())
	lm.runCtx, lm.cancel = runCtx, cancel

	lm.selector = comm.NewSelectorThread(lm.logger.Named("selector"), lm.config.Comm.SelectorTick, lm.metrics)
	lm.selector.Start(runCtx)
	go lm.hub.Run(runCtx)

	dm, err := lm.loadManager(ctx)
	if err != nil {
		lm.setError(err)
		return err
	}
	lm.mu.Lock()
	lm.dm = dm
	lm.mu.Unlock()

	if err := dm.Start(runCtx); err != nil {
		// Links that failed to start are retried by their next operation.
		lm.logger.Warn("Some link pollers failed to start", zap.Error(err))
	}

	lm.timer = schedule.NewPollTimer(lm, lm.config.Comm.Poll30s, lm.config.Comm.Poll5m, lm.logger.Named("schedule"))
	lm.timer.Start()

	if lm.store != nil && lm.config.Comm.SnapshotInterval > 0 {
		lm.wg.Add(1)
		go lm.snapshotLoop(runCtx, lm.config.Comm.SnapshotInterval)
	}

	if err := lm.startGRPCServer(); err != nil {
		lm.setError(fmt.Errorf("failed to start gRPC: %w", err))
		return err
	}

	if err := lm.startRESTServer(); err != nil {
		lm.setError(fmt.Errorf("failed to start REST API: %w", err))
		return err
	}

	if err := lm.transition(StateRunning); err != nil {
		return err
	}
	lm.wg.Add(1)
	go lm.healthLoop(runCtx)

	lm.logger.Info("System started successfully",
		zap.Int("grpc_port", lm.config.Server.GRPCPort),
		zap.Int("http_port", lm.config.Server.HTTPPort),
		zap.Int("links", len(dm.Links())))
	return nil
}

func (lm *LifecycleManager) loadManager(ctx context.Context) (*devices.Manager, error) {
	cat, err := lm.loadCatalog(ctx)
	if err != nil {
		return nil, err
	}

	dm := devices.NewManager(devices.Options{
		Selectors:      lm.selector,
		Poller:         lm.config.Comm.PollerConfig(),
		Metrics:        lm.metrics,
		Events:         lm.hub,
		Profiles:       lm.profiles,
		DefaultTimeout: lm.config.Comm.DefaultTimeout,
	}, lm.logger.Named("devices"))

	if err := dm.Load(cat); err != nil {
		return nil, fmt.Errorf("failed to load link catalog: %w", err)
	}
	return dm, nil
}

func (lm *LifecycleManager) loadCatalog(ctx context.Context) (*types.LinkCatalog, error) {
	if lm.config.Links.FromDatabase {
		if lm.db == nil {
			return nil, errors.New("links.from_database requires the database to be enabled")
		}
		lm.logger.Info("Loading link catalog from database")
		return lm.db.LoadLinkCatalog(ctx)
	}
	lm.logger.Info("Loading link catalog", zap.Strings("files", lm.config.Links.Files))
	return lm.links.Load(lm.config.Links.Files...)
}

// Reload rebuilds every link from the catalog. The running links are kept
// if the new catalog does not load.
func (lm *LifecycleManager) Reload(ctx context.Context) error {
	if err := lm.transition(StateReloading); err != nil {
		return err
	}
	lm.profiles.ClearCache()

	next, err := lm.loadManager(ctx)
	if err != nil {
		lm.logger.Error("Catalog reload failed, keeping current links", zap.Error(err))
		if terr := lm.transition(StateRunning); terr != nil {
			return terr
		}
		return err
	}

	lm.mu.Lock()
	prev := lm.dm
	lm.dm = next
	lm.mu.Unlock()

	// Transports are exclusive, so the old pollers go first.
	if err := prev.StopAll(ctx); err != nil {
		lm.logger.Warn("Old link pollers did not stop in time", zap.Error(err))
	}
	if err := next.Start(lm.runCtx); err != nil {
		lm.logger.Warn("Some link pollers failed to start", zap.Error(err))
	}

	lm.logger.Info("Link catalog reloaded", zap.Int("links", len(next.Links())))
	return lm.transition(StateRunning)
}

// Poll runs one poll round on the current links.
func (lm *LifecycleManager) Poll(period comm.PollClass, fn func(*comm.Completer)) *comm.Completer {
	dm := lm.DeviceManager()
	if dm == nil {
		done := comm.NewCompleter(period.String(), fn)
		done.Seal()
		return done
	}
	return dm.Poll(period, fn)
}

func (lm *LifecycleManager) healthLoop(ctx context.Context) {
	defer lm.wg.Done()
	ticker := time.NewTicker(healthInterval)
	defer ticker.Stop()

	lm.refreshHealth()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			lm.refreshHealth()
		}
	}
}

func (lm *LifecycleManager) refreshHealth() {
	var links []devices.LinkStatus
	if dm := lm.DeviceManager(); dm != nil {
		links = dm.Links()
	}
	serving := lm.State() == StateRunning && lm.selector.Running()
	lm.health.update(serving, links)
}

// Shutdown gracefully shuts down the system
func (lm *LifecycleManager) Shutdown(ctx context.Context) error {
	var shutdownErr error

	lm.shutdownOnce.Do(func() {
		lm.logger.Info("Shutting down system")
		if err := lm.transition(StateStopping); err != nil {
			lm.logger.Warn("Unexpected state at shutdown", zap.Error(err))
			lm.setState(StateStopping)
		}

		shutdownErr = lm.gracefulShutdown(ctx)

		lm.setState(StateStopped)
		close(lm.shutdownChan)
	})

	return shutdownErr
}

// Done is closed once Shutdown has completed.
func (lm *LifecycleManager) Done() <-chan struct{} { return lm.shutdownChan }

func (lm *LifecycleManager) gracefulShutdown(ctx context.Context) error {
	if lm.timer != nil {
		lm.timer.Stop()
	}
	lm.health.update(false, nil)

	var (
		wg    sync.WaitGroup
		errMu sync.Mutex
		errs  []error
	)
	report := func(err error) {
		errMu.Lock()
		defer errMu.Unlock()
		errs = append(errs, err)
	}

	// 1. Stop all link pollers; queued operations fail with ErrLinkClosed
	if dm := lm.DeviceManager(); dm != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := dm.StopAll(ctx); err != nil {
				report(fmt.Errorf("device manager stop failed: %w", err))
			}
		}()
	}

	// 2. REST API Server graceful shutdown
	if lm.restServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()

			if err := lm.restServer.Shutdown(shutdownCtx); err != nil {
				report(fmt.Errorf("rest api shutdown failed: %w", err))
			}
		}()
	}

	// 3. gRPC Server graceful stop
	if lm.grpcServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lm.logger.Info("Stopping gRPC health server")
			lm.health.shutdown()
			lm.grpcServer.GracefulStop()
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		lm.logger.Info("Graceful shutdown completed")
	case <-ctx.Done():
		lm.logger.Warn("Shutdown timeout, forcing stop")
		report(fmt.Errorf("shutdown timeout exceeded"))
	}

	if lm.cancel != nil {
		lm.cancel()
	}
	if lm.selector != nil {
		lm.selector.Stop()
	}
	lm.wg.Wait()

	errMu.Lock()
	defer errMu.Unlock()
	return errors.Join(errs...)
}

func (lm *LifecycleManager) startGRPCServer() error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", lm.config.Server.GRPCPort))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	lm.grpcServer = grpc.NewServer()
	healthpb.RegisterHealthServer(lm.grpcServer, lm.health.server)

	go func() {
		lm.logger.Info("gRPC server listening",
			zap.String("address", lis.Addr().String()),
			zap.String("services", "grpc.health.v1.Health"))
		if err := lm.grpcServer.Serve(lis); err != nil {
			lm.logger.Error("gRPC server failed", zap.Error(err))
		}
	}()

	return nil
}

func (lm *LifecycleManager) startRESTServer() error {
	lm.restServer = rest.NewServer(lm.config, lm, lm.logger.Named("rest"), lm.hub)
	return lm.restServer.Start()
}

func (lm *LifecycleManager) transition(to SystemState) error {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	if err := ValidateTransition(lm.currentState, to); err != nil {
		return err
	}
	lm.currentState = to
	return nil
}

func (lm *LifecycleManager) setState(state SystemState) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	lm.currentState = state
}

func (lm *LifecycleManager) setError(err error) {
	lm.logger.Error("System error", zap.Error(err))
	lm.mu.Lock()
	defer lm.mu.Unlock()
	lm.currentState = StateError
	lm.lastError = err
}

func (lm *LifecycleManager) State() SystemState {
	lm.mu.RLock()
	defer lm.mu.RUnlock()
	return lm.currentState
}

func (lm *LifecycleManager) Config() *config.Config { return lm.config }

// Storage returns nil when the database is disabled.
func (lm *LifecycleManager) Storage() storage.StatusStore { return lm.store }

func (lm *LifecycleManager) Metrics() *comm.Metrics { return lm.metrics }

func (lm *LifecycleManager) DeviceManager() *devices.Manager {
	lm.mu.RLock()
	defer lm.mu.RUnlock()
	return lm.dm
}

// GetCurrentStatus returns current system status (Interface implementation)
func (lm *LifecycleManager) GetCurrentStatus() interfaces.SystemStatus {
	lm.mu.RLock()
	status := interfaces.SystemStatus{State: lm.currentState.String()}
	if lm.lastError != nil {
		status.Error = lm.lastError.Error()
	}
	lm.mu.RUnlock()
	status.SelectorRunning = lm.selector != nil && lm.selector.Running()

	dm := lm.DeviceManager()
	if dm == nil {
		return status
	}

	for _, link := range dm.Links() {
		status.LinkCount++
		if link.Active {
			status.ActiveLinks++
		}
		status.QueuedOperations += link.QueueLen
		for _, c := range link.Controllers {
			status.ControllerCount++
			if c.Failed {
				status.FailedControllers++
			}
		}
	}
	status.DeviceCount = len(dm.Objects())
	return status
}
