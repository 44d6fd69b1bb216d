package storage

import (
	"time"

	"github.com/google/uuid"
)

// LinkRecord is a stored comm link definition.
type LinkRecord struct {
	ID         uuid.UUID `json:"id"`
	LinkName   string    `json:"link_name"`
	Protocol   string    `json:"protocol"`
	Definition []byte    `json:"definition"` // JSONB
	Enabled    bool      `json:"enabled"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// StatusSnapshot is the state of one device object at a point in time.
type StatusSnapshot struct {
	ID         uuid.UUID      `json:"id"`
	DeviceName string         `json:"device_name"`
	Kind       string         `json:"kind"`
	Controller string         `json:"controller"`
	Failed     bool           `json:"failed"`
	LastError  string         `json:"last_error,omitempty"`
	Fields     map[string]any `json:"fields"` // JSONB
	RecordedAt time.Time      `json:"recorded_at"`
}
