// Package pelcop serves Pelco P camera keyboards. The keyboard initiates
// every exchange; the poller answers each camera request with the monitor
// status and forwards the command to the selected camera.
package pelcop

import (
	"bytes"
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/KevinKickass/OpenRoadwayCore/internal/comm"
)

const (
	Name = "pelcop"

	// sessionLimit bounds the requests handled by one keyboard session so
	// queued operations on the link still run.
	sessionLimit = 100
)

// Camera receives keyboard commands.
type Camera interface {
	comm.ControllerIO
	Number() int
	Control(cmd CamCommand)
}

// CameraDirectory finds cameras by keyboard camera number.
type CameraDirectory interface {
	Camera(num int) (Camera, bool)
}

// Protocol returns the wire description of Pelco P keyboard links.
func Protocol() comm.Protocol {
	return comm.Protocol{
		Name:         Name,
		Split:        ScanFrame,
		AddressValid: func(drop int) bool { return drop >= 1 && drop <= 99 },
	}
}

// Poller drives one keyboard link.
type Poller struct {
	*comm.Poller

	cameras CameraDirectory

	mu       sync.Mutex
	monitors map[int]int
}

// NewPoller creates a keyboard poller. With a nil directory, cameras are
// found among the devices bound to the link's controllers.
func NewPoller(link *comm.CommLink, m comm.Messenger, sel comm.SelectorSource,
	cfg comm.PollerConfig, metrics *comm.Metrics, logger *zap.Logger, cameras CameraDirectory) *Poller {
	if cameras == nil {
		cameras = linkCameras{link: link}
	}
	return &Poller{
		Poller:   comm.NewPoller(link, Protocol(), m, sel, cfg, metrics, logger),
		cameras:  cameras,
		monitors: make(map[int]int),
	}
}

// MonitorCamera returns the camera last selected on monitor.
func (p *Poller) MonitorCamera(monitor int) (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cam, ok := p.monitors[monitor]
	return cam, ok
}

// Poll30Second opens a keyboard session. The session ends successfully
// once the keyboard has been idle for one link timeout.
func (p *Poller) Poll30Second(c *comm.Controller, done *comm.Completer) {
	p.Submit(p.CreateOperation(c, "KeyboardSession", comm.PriorityCommand, p.listen(0)), done)
}

func (p *Poller) listen(handled int) comm.Phase {
	return func(ctx context.Context, x *comm.Exchange) (comm.Phase, error) {
		if handled >= sessionLimit {
			return nil, nil
		}
		body, err := x.Await(ctx)
		if err != nil {
			if comm.IsTimeout(err) {
				return nil, nil
			}
			return nil, err
		}
		if len(body) == 0 || body[0] != reqCamControl {
			p.Logger().Debug("Ignoring keyboard request", zap.Binary("body", body))
			return p.listen(handled + 1), nil
		}
		cmd, err := DecodeCamControl(body)
		if err != nil {
			return nil, err
		}
		p.dispatch(cmd)
		if err := x.Send(func(buf *bytes.Buffer) error {
			return encodeMonStatus(buf, cmd.Monitor, cmd.Camera)
		}); err != nil {
			return nil, err
		}
		return p.listen(handled + 1), nil
	}
}

func (p *Poller) dispatch(cmd CamCommand) {
	p.mu.Lock()
	p.monitors[cmd.Monitor] = cmd.Camera
	p.mu.Unlock()

	cam, ok := p.cameras.Camera(cmd.Camera)
	if !ok {
		p.Logger().Warn("Keyboard selected unknown camera",
			zap.Int("camera", cmd.Camera),
			zap.Int("monitor", cmd.Monitor))
		return
	}
	p.Logger().Debug("Camera command", zap.String("camera", cam.Name()), zap.Stringer("command", cmd))
	cam.Control(cmd)
}

type linkCameras struct {
	link *comm.CommLink
}

func (l linkCameras) Camera(num int) (Camera, bool) {
	for _, c := range l.link.Controllers() {
		for _, pin := range c.Pins() {
			io, _ := c.IO(pin)
			if cam, ok := io.(Camera); ok && cam.Number() == num {
				return cam, true
			}
		}
	}
	return nil, false
}
