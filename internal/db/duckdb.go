// Package db mirrors the current polygon snapshot into an in-memory DuckDB
// database for ad-hoc SQL.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/joeblew999/plat-polygons/internal/identity"
	"github.com/joeblew999/plat-polygons/internal/pipeline"
)

var schema = []string{`
CREATE TABLE IF NOT EXISTS polygons (
	position INTEGER,
	id       INTEGER,
	name     VARCHAR,
	comments VARCHAR,
	status   VARCHAR,
	color    VARCHAR,
	wkt      VARCHAR,
	rendered BOOLEAN,
	load_id  VARCHAR
)`, `
CREATE TABLE IF NOT EXISTS loads (
	load_id    VARCHAR,
	generation UBIGINT,
	loaded_at  TIMESTAMP,
	records    INTEGER,
	rendered   INTEGER,
	skipped    INTEGER
)`}

// Mirror holds the snapshot tables. Nothing is written to disk.
type Mirror struct {
	db *sql.DB
	mu sync.Mutex
}

// dsn opens an in-memory database without access to local files or the network.
const dsn = "?enable_external_access=false"

// Open creates an in-memory database with the mirror schema. The
// configuration is locked once the schema exists, so queries cannot turn
// external access back on.
func Open(ctx context.Context) (*Mirror, error) {
	conn, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening duckdb: %w", err)
	}
	for _, stmt := range schema {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			conn.Close()
			return nil, fmt.Errorf("creating mirror schema: %w", err)
		}
	}
	if _, err := conn.ExecContext(ctx, "SET lock_configuration = true"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("locking configuration: %w", err)
	}
	return &Mirror{db: conn}, nil
}

// DB returns the underlying connection for queries.
func (m *Mirror) DB() *sql.DB {
	return m.db
}

// Close closes the database.
func (m *Mirror) Close() error {
	return m.db.Close()
}

// Replace swaps the polygons table for the snapshot's records and appends a
// row to the load history. Missing tables are recreated first.
func (m *Mirror) Replace(ctx context.Context, snap *pipeline.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range schema {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("restoring schema: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM polygons"); err != nil {
		return fmt.Errorf("clearing polygons: %w", err)
	}

	rendered := make(map[identity.ID]bool, len(snap.Rendered))
	for _, id := range snap.Rendered {
		rendered[id] = true
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO polygons (position, id, name, comments, status, color, wkt, rendered, load_id) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for i, rec := range snap.Records {
		id := identity.Hash(rec.Polygon)
		if _, err := stmt.ExecContext(ctx,
			i, int32(id), rec.Name, rec.Comments, string(rec.Status), rec.Color, rec.Polygon, rendered[id], snap.LoadID,
		); err != nil {
			return fmt.Errorf("inserting polygon %d: %w", i, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO loads (load_id, generation, loaded_at, records, rendered, skipped) VALUES (?, ?, ?, ?, ?, ?)",
		snap.LoadID, snap.Generation, snap.LoadedAt, len(snap.Records), len(snap.Rendered), len(snap.Skipped),
	); err != nil {
		return fmt.Errorf("recording load: %w", err)
	}

	return tx.Commit()
}

var _ pipeline.Mirror = (*Mirror)(nil)
