package msgfeed

import (
	"strings"
	"time"

	"github.com/KevinKickass/OpenRoadwayCore/internal/comm"
)

// Layouts accepted for the expiry field.
var expireLayouts = []string{time.RFC3339, "2006-01-02 15:04:05"}

// Message is one feed line: a sign, the MULTI text to show and the time
// the message stops being valid.
type Message struct {
	Sign   string
	Multi  string
	Expire time.Time
}

// ParseLine parses a tab-delimited feed line. A missing or unparsable
// expiry leaves Expire zero, which makes the message expired.
func ParseLine(line string, loc *time.Location) (Message, error) {
	fields := strings.SplitN(strings.TrimRight(line, "\r"), "\t", 3)
	msg := Message{Sign: strings.TrimSpace(fields[0])}
	if msg.Sign == "" {
		return msg, comm.Parsing("feed line without sign: %q", line)
	}
	if len(fields) > 1 {
		msg.Multi = fields[1]
	}
	if len(fields) > 2 {
		msg.Expire = parseTime(strings.TrimSpace(fields[2]), loc)
	}
	return msg, nil
}

func parseTime(s string, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	for _, layout := range expireLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t
		}
	}
	return time.Time{}
}

// Expired reports whether the message is past its expiry at now.
func (m Message) Expired(now time.Time) bool {
	return m.Expire.IsZero() || !m.Expire.After(now)
}

// ValidMulti checks MULTI markup: tags are bracketed, unnested and closed.
// Doubled brackets are literal.
func ValidMulti(s string) bool {
	if s == "" {
		return false
	}
	inTag := false
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '[' && !inTag:
			if i+1 < len(s) && s[i+1] == '[' {
				i++
				continue
			}
			inTag = true
		case c == '[':
			return false
		case c == ']' && inTag:
			inTag = false
		case c == ']':
			if i+1 < len(s) && s[i+1] == ']' {
				i++
				continue
			}
			return false
		case c < 0x20 || c > 0x7E:
			return false
		}
	}
	return !inTag
}
