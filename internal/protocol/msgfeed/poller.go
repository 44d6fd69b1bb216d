// Package msgfeed reads sign messages from an HTTP feed and activates them
// on the named signs.
package msgfeed

import (
	"bufio"
	"bytes"
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/KevinKickass/OpenRoadwayCore/internal/comm"
)

const Name = "msgfeed"

// Sign accepts feed messages. An empty message blanks the feed.
type Sign interface {
	SetFeedMessage(multi string)
}

// SignDirectory finds signs by name.
type SignDirectory interface {
	Sign(name string) (Sign, bool)
}

// Protocol returns the wire description of message feeds. The whole
// response body is one frame.
func Protocol() comm.Protocol {
	return comm.Protocol{Name: Name, Split: comm.ScanAll}
}

// Poller reads one feed.
type Poller struct {
	*comm.Poller

	signs SignDirectory
	loc   *time.Location
	now   func() time.Time
}

func NewPoller(link *comm.CommLink, m comm.Messenger, sel comm.SelectorSource,
	cfg comm.PollerConfig, metrics *comm.Metrics, logger *zap.Logger, signs SignDirectory) *Poller {
	return &Poller{
		Poller: comm.NewPoller(link, Protocol(), m, sel, cfg, metrics, logger),
		signs:  signs,
		loc:    time.Local,
		now:    time.Now,
	}
}

// Poll30Second fetches the feed and activates every line.
func (p *Poller) Poll30Second(c *comm.Controller, done *comm.Completer) {
	read := func(ctx context.Context, x *comm.Exchange) (comm.Phase, error) {
		body, err := x.Await(ctx)
		if err != nil {
			return nil, err
		}
		n := p.activate(body)
		c.Record(0, "feed_lines", n)
		return nil, nil
	}
	p.Submit(p.CreateOperation(c, "ReadFeed", comm.PriorityDeviceData, read), done)
}

func (p *Poller) activate(body []byte) int {
	now := p.now()
	lines := 0
	sc := bufio.NewScanner(bytes.NewReader(body))
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		lines++
		msg, err := ParseLine(line, p.loc)
		if err != nil {
			p.Logger().Warn("Feed line rejected", zap.Error(err))
			continue
		}
		p.Activate(msg, now)
	}
	return lines
}

// Activate sends msg to its sign, or blanks the sign if msg is not valid
// at now. It reports whether the message was valid.
func (p *Poller) Activate(msg Message, now time.Time) bool {
	var sign Sign
	ok := false
	if p.signs != nil {
		sign, ok = p.signs.Sign(msg.Sign)
	}
	if !ok {
		p.Logger().Info("Feed message for unknown sign", zap.String("sign", msg.Sign))
		return false
	}

	valid := ValidMulti(msg.Multi) && !msg.Expired(now)
	fields := []zap.Field{
		zap.String("sign", msg.Sign),
		zap.String("multi", msg.Multi),
		zap.Time("expire", msg.Expire),
	}
	if valid {
		sign.SetFeedMessage(msg.Multi)
		p.Logger().Debug("Feed message valid", fields...)
	} else {
		sign.SetFeedMessage("")
		p.Logger().Debug("Feed message invalid", fields...)
	}
	return valid
}
