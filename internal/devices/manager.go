package devices

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/KevinKickass/OpenRoadwayCore/internal/comm"
	"github.com/KevinKickass/OpenRoadwayCore/internal/protocol"
	"github.com/KevinKickass/OpenRoadwayCore/internal/protocol/msgfeed"
	"github.com/KevinKickass/OpenRoadwayCore/internal/protocol/pelcop"
	"github.com/KevinKickass/OpenRoadwayCore/internal/types"
)

var (
	ErrNotFound = errors.New("not found")
	ErrInactive = errors.New("inactive")
	// ErrUnsupported is returned for requests the link protocol cannot serve.
	ErrUnsupported = errors.New("unsupported by protocol")
)

// MessengerFactory opens the transport for a link URI.
type MessengerFactory func(uri string, timeout time.Duration) (comm.Messenger, error)

type Options struct {
	Registry       *protocol.Registry
	Selectors      comm.SelectorSource
	Poller         comm.PollerConfig
	Metrics        *comm.Metrics
	Events         EventSink
	Profiles       *ProfileLoader
	DefaultTimeout time.Duration
	NewMessenger   MessengerFactory
}

type linkRuntime struct {
	link    *comm.CommLink
	poller  comm.MessagePoller
	profile string
}

// Manager owns the comm links, their pollers and the device objects bound
// on them.
type Manager struct {
	opts     Options
	composer *Composer

	mu          sync.RWMutex
	links       map[string]*linkRuntime
	controllers map[string]*comm.Controller
	objects     map[string]Object
	logger      *zap.Logger
}

func NewManager(opts Options, logger *zap.Logger) *Manager {
	if opts.Registry == nil {
		opts.Registry = protocol.Default()
	}
	if opts.NewMessenger == nil {
		opts.NewMessenger = comm.NewMessenger
	}
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = 5 * time.Second
	}
	return &Manager{
		opts:        opts,
		composer:    NewComposer(opts.Events, logger),
		links:       make(map[string]*linkRuntime),
		controllers: make(map[string]*comm.Controller),
		objects:     make(map[string]Object),
		logger:      logger,
	}
}

// Load builds a poller for every link in cat. Nothing is added if any link
// is invalid.
func (m *Manager) Load(cat *types.LinkCatalog) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	links := make(map[string]*linkRuntime)
	controllers := make(map[string]*comm.Controller)
	objects := make(map[string]Object)

	for _, cfg := range cat.Links {
		if _, dup := m.links[cfg.Name]; dup {
			return fmt.Errorf("link %s already loaded", cfg.Name)
		}
		if _, dup := links[cfg.Name]; dup {
			return fmt.Errorf("duplicate link %s", cfg.Name)
		}
		rt, comp, err := m.build(cfg)
		if err != nil {
			return err
		}
		for _, c := range rt.link.Controllers() {
			if _, dup := controllers[c.Name]; dup || m.controllers[c.Name] != nil {
				return fmt.Errorf("link %s: controller %s defined on another link", cfg.Name, c.Name)
			}
			controllers[c.Name] = c
		}
		for _, obj := range comp.Objects {
			if _, dup := objects[obj.Name()]; dup || m.objects[obj.Name()] != nil {
				return fmt.Errorf("link %s: device %s defined on another link", cfg.Name, obj.Name())
			}
			objects[obj.Name()] = obj
		}
		links[cfg.Name] = rt
	}

	for name, rt := range links {
		m.links[name] = rt
	}
	for name, c := range controllers {
		m.controllers[name] = c
	}
	for name, obj := range objects {
		m.objects[name] = obj
	}
	m.logger.Info("Link catalog loaded",
		zap.Int("links", len(links)),
		zap.Int("controllers", len(controllers)),
		zap.Int("devices", len(objects)))
	return nil
}

func (m *Manager) build(cfg types.LinkConfig) (*linkRuntime, *Composition, error) {
	comp, err := m.composer.Compose(cfg, m.opts.DefaultTimeout)
	if err != nil {
		return nil, nil, err
	}
	link := comp.Link

	deps := protocol.Deps{
		Selectors: m.opts.Selectors,
		Config:    m.opts.Poller,
		Metrics:   m.opts.Metrics,
		Logger:    m.logger,
		Cameras:   m,
		Signs:     m,
	}
	if cfg.Profile != "" {
		if m.opts.Profiles == nil {
			return nil, nil, fmt.Errorf("link %s: no profile loader for profile %s", cfg.Name, cfg.Profile)
		}
		if deps.Profile, err = m.opts.Profiles.Load(cfg.Profile); err != nil {
			return nil, nil, fmt.Errorf("link %s: %w", cfg.Name, err)
		}
	}
	if deps.Messenger, err = m.opts.NewMessenger(link.URI, link.Timeout); err != nil {
		return nil, nil, fmt.Errorf("link %s: %w", cfg.Name, err)
	}

	poller, err := m.opts.Registry.Create(link, deps)
	if err != nil {
		return nil, nil, fmt.Errorf("link %s: %w", cfg.Name, err)
	}
	for _, c := range link.Controllers() {
		if !poller.IsAddressValid(c.Drop) {
			return nil, nil, fmt.Errorf("link %s: controller %s has invalid drop %d for %s",
				cfg.Name, c.Name, c.Drop, cfg.Protocol)
		}
	}
	return &linkRuntime{link: link, poller: poller, profile: cfg.Profile}, comp, nil
}

// Start starts the pollers of all active links.
func (m *Manager) Start(ctx context.Context) error {
	var errs []error
	for _, rt := range m.runtimes() {
		if !rt.link.Active {
			continue
		}
		if err := rt.poller.Start(ctx); err != nil {
			m.logger.Error("Failed to start link poller", zap.String("link", rt.link.Name), zap.Error(err))
			errs = append(errs, fmt.Errorf("link %s: %w", rt.link.Name, err))
		}
	}
	return errors.Join(errs...)
}

// StopAll destroys every poller. Queued operations fail with
// comm.ErrLinkClosed.
func (m *Manager) StopAll(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, rt := range m.runtimes() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rt.poller.Destroy()
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stopping link pollers: %w", ctx.Err())
	}
}

func (m *Manager) runtimes() []*linkRuntime {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := make([]*linkRuntime, 0, len(m.links))
	for _, rt := range m.links {
		list = append(list, rt)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].link.Name < list[j].link.Name })
	return list
}

// Poll runs one poll period across links. A link's class is the period of
// its data poll (Poll30Second); the 5-minute hook runs on every scheduled
// link. fn is called once all operations of the round are done.
func (m *Manager) Poll(period comm.PollClass, fn func(*comm.Completer)) *comm.Completer {
	done := comm.NewCompleter(period.String(), fn)
	for _, rt := range m.runtimes() {
		if !rt.link.Active || rt.link.Poll == comm.PollOnDemand {
			continue
		}
		for _, c := range rt.link.Controllers() {
			if !c.Active {
				continue
			}
			if rt.link.Poll == period {
				rt.poller.Poll30Second(c, done)
			}
			if period == comm.Poll5Min {
				rt.poller.Poll5Minute(c, done)
			}
		}
	}
	done.Seal()
	return done
}

func (m *Manager) controllerRuntime(name string) (*comm.Controller, *linkRuntime, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.controllers[name]
	if !ok {
		return nil, nil, fmt.Errorf("controller %s: %w", name, ErrNotFound)
	}
	rt := m.links[c.Link().Name]
	if !rt.link.Active || !c.Active {
		return nil, nil, fmt.Errorf("controller %s: %w", name, ErrInactive)
	}
	return c, rt, nil
}

// Download queues a configuration download to the named controller.
func (m *Manager) Download(name string, reset bool) error {
	c, rt, err := m.controllerRuntime(name)
	if err != nil {
		return err
	}
	rt.poller.Download(c, reset, comm.PriorityDownload)
	m.logger.Info("Download requested", zap.String("controller", name), zap.Bool("reset", reset))
	return nil
}

// Test queues the protocol self test of the named controller.
func (m *Manager) Test(name string) error {
	c, rt, err := m.controllerRuntime(name)
	if err != nil {
		return err
	}
	rt.poller.StartTest(c)
	return nil
}

type registerWriter interface {
	Write(c *comm.Controller, register string, value any) *comm.Operation
}

// WriteRegister stores a register value on a Modbus controller and waits
// for the result.
func (m *Manager) WriteRegister(ctx context.Context, name, register string, value any) error {
	c, rt, err := m.controllerRuntime(name)
	if err != nil {
		return err
	}
	w, ok := rt.poller.(registerWriter)
	if !ok {
		return fmt.Errorf("controller %s: register write: %w", name, ErrUnsupported)
	}
	return w.Write(c, register, value).Wait(ctx)
}

// Controller returns the named controller.
func (m *Manager) Controller(name string) (*comm.Controller, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.controllers[name]
	return c, ok
}

// Object returns the named device object.
func (m *Manager) Object(name string) (Object, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[name]
	return obj, ok
}

// Objects returns all device objects sorted by name.
func (m *Manager) Objects() []Object {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := make([]Object, 0, len(m.objects))
	for _, obj := range m.objects {
		list = append(list, obj)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name() < list[j].Name() })
	return list
}

// Sign finds a sign for message feeds.
func (m *Manager) Sign(name string) (msgfeed.Sign, bool) {
	obj, ok := m.Object(name)
	if !ok {
		return nil, false
	}
	s, ok := obj.(*Sign)
	return s, ok
}

// Camera finds a camera by number on any link.
func (m *Manager) Camera(num int) (pelcop.Camera, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, obj := range m.objects {
		if cam, ok := obj.(*Camera); ok && cam.Number() == num {
			return cam, true
		}
	}
	return nil, false
}

// LinkStatus is a snapshot of one comm link.
type LinkStatus struct {
	Name        string                  `json:"name"`
	Protocol    string                  `json:"protocol"`
	URI         string                  `json:"uri"`
	Poll        string                  `json:"poll"`
	Active      bool                    `json:"active"`
	Profile     string                  `json:"profile,omitempty"`
	QueueLen    int                     `json:"queue_len"`
	Controllers []comm.ControllerStatus `json:"controllers"`
}

func statusOf(rt *linkRuntime) LinkStatus {
	st := LinkStatus{
		Name:     rt.link.Name,
		Protocol: rt.link.Protocol,
		URI:      rt.link.URI,
		Poll:     rt.link.Poll.String(),
		Active:   rt.link.Active,
		Profile:  rt.profile,
		QueueLen: rt.poller.QueueLen(),
	}
	for _, c := range rt.link.Controllers() {
		st.Controllers = append(st.Controllers, c.Status())
	}
	return st
}

// Links returns the status of every link sorted by name.
func (m *Manager) Links() []LinkStatus {
	runtimes := m.runtimes()
	list := make([]LinkStatus, 0, len(runtimes))
	for _, rt := range runtimes {
		list = append(list, statusOf(rt))
	}
	return list
}

// Link returns the status of the named link.
func (m *Manager) Link(name string) (LinkStatus, bool) {
	m.mu.RLock()
	rt, ok := m.links[name]
	m.mu.RUnlock()
	if !ok {
		return LinkStatus{}, false
	}
	return statusOf(rt), true
}
