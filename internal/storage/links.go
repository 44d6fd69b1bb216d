package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/KevinKickass/OpenRoadwayCore/internal/types"
)

var ErrLinkNotFound = errors.New("link not found")

// SaveLink inserts or replaces a comm link definition.
func (p *PostgresClient) SaveLink(ctx context.Context, link types.LinkConfig) (uuid.UUID, error) {
	definition, err := json.Marshal(link)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to marshal link: %w", err)
	}

	var id uuid.UUID
	err = p.pool.QueryRow(ctx, `
		INSERT INTO comm_links (id, link_name, protocol, definition, enabled)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (link_name) DO UPDATE
		SET protocol = EXCLUDED.protocol,
		    definition = EXCLUDED.definition,
		    enabled = EXCLUDED.enabled,
		    updated_at = now()
		RETURNING id
	`, uuid.New(), link.Name, link.Protocol, definition, types.IsActive(link.Active)).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to save link %s: %w", link.Name, err)
	}
	return id, nil
}

// SaveCatalog stores every link of cat in one transaction.
func (p *PostgresClient) SaveCatalog(ctx context.Context, cat *types.LinkCatalog) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, link := range cat.Links {
		definition, err := json.Marshal(link)
		if err != nil {
			return fmt.Errorf("failed to marshal link %s: %w", link.Name, err)
		}
		batch.Queue(`
			INSERT INTO comm_links (id, link_name, protocol, definition, enabled)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (link_name) DO UPDATE
			SET protocol = EXCLUDED.protocol, definition = EXCLUDED.definition,
			    enabled = EXCLUDED.enabled, updated_at = now()
		`, uuid.New(), link.Name, link.Protocol, definition, types.IsActive(link.Active))
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to save catalog: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// LoadLinkCatalog returns every stored link ordered by name. Disabled links
// are returned with active set to false.
func (p *PostgresClient) LoadLinkCatalog(ctx context.Context) (*types.LinkCatalog, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT link_name, definition, enabled
		FROM comm_links
		ORDER BY link_name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query links: %w", err)
	}
	defer rows.Close()

	cat := &types.LinkCatalog{}
	for rows.Next() {
		var name string
		var definition []byte
		var enabled bool
		if err := rows.Scan(&name, &definition, &enabled); err != nil {
			return nil, fmt.Errorf("failed to scan link: %w", err)
		}
		link, err := decodeLink(definition, enabled)
		if err != nil {
			return nil, fmt.Errorf("link %s: %w", name, err)
		}
		cat.Links = append(cat.Links, link)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating links: %w", err)
	}
	return cat, nil
}

func decodeLink(definition []byte, enabled bool) (types.LinkConfig, error) {
	var link types.LinkConfig
	if err := json.Unmarshal(definition, &link); err != nil {
		return link, fmt.Errorf("failed to unmarshal definition: %w", err)
	}
	if !enabled {
		off := false
		link.Active = &off
	}
	return link, nil
}

// DeleteLink removes the named link.
func (p *PostgresClient) DeleteLink(ctx context.Context, name string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM comm_links WHERE link_name = $1`, name)
	if err != nil {
		return fmt.Errorf("failed to delete link: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", name, ErrLinkNotFound)
	}
	return nil
}
