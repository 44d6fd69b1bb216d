package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// StatusStore persists device status snapshots.
type StatusStore interface {
	SaveSnapshots(ctx context.Context, snaps []StatusSnapshot) error
	LatestSnapshot(ctx context.Context, device string) (*StatusSnapshot, error)
}

var ErrNoSnapshot = errors.New("no snapshot")

// SaveSnapshots writes snaps in one batch.
func (p *PostgresClient) SaveSnapshots(ctx context.Context, snaps []StatusSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, s := range snaps {
		fields, err := json.Marshal(s.Fields)
		if err != nil {
			return fmt.Errorf("failed to marshal fields of %s: %w", s.DeviceName, err)
		}
		id := s.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		batch.Queue(`
			INSERT INTO device_status (id, device_name, kind, controller, failed, last_error, fields, recorded_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, id, s.DeviceName, s.Kind, s.Controller, s.Failed, s.LastError, fields, s.RecordedAt)
	}
	if err := p.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to save snapshots: %w", err)
	}
	return nil
}

// LatestSnapshot returns the most recent snapshot of device.
func (p *PostgresClient) LatestSnapshot(ctx context.Context, device string) (*StatusSnapshot, error) {
	var s StatusSnapshot
	var fields []byte
	err := p.pool.QueryRow(ctx, `
		SELECT id, device_name, kind, controller, failed, last_error, fields, recorded_at
		FROM device_status
		WHERE device_name = $1
		ORDER BY recorded_at DESC
		LIMIT 1
	`, device).Scan(&s.ID, &s.DeviceName, &s.Kind, &s.Controller, &s.Failed, &s.LastError, &fields, &s.RecordedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", device, ErrNoSnapshot)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot: %w", err)
	}
	if err := json.Unmarshal(fields, &s.Fields); err != nil {
		return nil, fmt.Errorf("failed to unmarshal fields: %w", err)
	}
	return &s, nil
}
