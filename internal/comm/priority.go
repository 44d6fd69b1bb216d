package comm

import (
	"fmt"
	"strings"
)

// Priority orders operations within one link queue. Lower values run first.
type Priority int

const (
	PriorityUrgent Priority = iota
	PriorityCommand
	PriorityDownload
	PriorityDeviceData
	PriorityPoll30Sec
	PriorityPoll5Min
	PriorityDiagnostic
)

var priorityNames = []string{
	"URGENT",
	"COMMAND",
	"DOWNLOAD",
	"DEVICE_DATA",
	"POLL_30_SEC",
	"POLL_5_MIN",
	"DIAGNOSTIC",
}

func (p Priority) String() string {
	if p < 0 || int(p) >= len(priorityNames) {
		return "UNKNOWN"
	}
	return priorityNames[p]
}

// ParsePriority parses a priority name, case-insensitively.
func ParsePriority(s string) (Priority, error) {
	for i, name := range priorityNames {
		if strings.EqualFold(s, name) {
			return Priority(i), nil
		}
	}
	return 0, fmt.Errorf("unknown priority: %s", s)
}
