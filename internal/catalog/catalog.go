// Package catalog discovers the target database's structure and serves it
// as immutable snapshots.
package catalog

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/sqlpilot/internal/db"
	"github.com/sells-group/sqlpilot/internal/model"
)

// DiscoveryError marks a schema discovery failure. Discovery failures are
// fatal for the question cycle; no partial or stale snapshot is substituted.
type DiscoveryError struct {
	Err error
}

func (e *DiscoveryError) Error() string {
	return "catalog: discovery failed: " + e.Err.Error()
}

func (e *DiscoveryError) Unwrap() error {
	return e.Err
}

const tablesQuery = `
	SELECT table_name
	FROM information_schema.tables
	WHERE table_schema = 'public'
	  AND table_type = 'BASE TABLE'
	ORDER BY table_name`

const columnsQuery = `
	SELECT table_name, column_name, data_type
	FROM information_schema.columns
	WHERE table_schema = 'public'
	ORDER BY table_name, ordinal_position`

const foreignKeysQuery = `
	SELECT
		tc.table_name  AS source_table,
		kcu.column_name AS source_column,
		ccu.table_name  AS target_table,
		ccu.column_name AS target_column
	FROM information_schema.table_constraints AS tc
	JOIN information_schema.key_column_usage AS kcu
	  ON tc.constraint_name = kcu.constraint_name
	 AND tc.table_schema = kcu.table_schema
	JOIN information_schema.constraint_column_usage AS ccu
	  ON ccu.constraint_name = tc.constraint_name
	 AND ccu.table_schema = tc.table_schema
	WHERE tc.constraint_type = 'FOREIGN KEY'
	ORDER BY tc.table_name, kcu.column_name`

// Catalog caches the most recent snapshot. The cache is invalidated or
// refreshed only explicitly, never per call.
type Catalog struct {
	pool db.Pool

	mu       sync.RWMutex
	snapshot *model.SchemaSnapshot
}

// New creates a Catalog over the given pool.
func New(pool db.Pool) *Catalog {
	return &Catalog{pool: pool}
}

// Snapshot returns the cached snapshot, discovering one if none is cached.
func (c *Catalog) Snapshot(ctx context.Context) (*model.SchemaSnapshot, error) {
	c.mu.RLock()
	snap := c.snapshot
	c.mu.RUnlock()
	if snap != nil {
		return snap, nil
	}
	return c.Refresh(ctx)
}

// Refresh discovers the schema and replaces the cached snapshot.
func (c *Catalog) Refresh(ctx context.Context) (*model.SchemaSnapshot, error) {
	snap, err := c.discover(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.snapshot = snap
	c.mu.Unlock()

	zap.L().Info("schema snapshot captured",
		zap.Int("tables", len(snap.Tables)),
		zap.Int("foreign_keys", len(snap.ForeignKeys)),
	)
	return snap, nil
}

// Invalidate drops the cached snapshot. The next Snapshot call rediscovers.
func (c *Catalog) Invalidate() {
	c.mu.Lock()
	c.snapshot = nil
	c.mu.Unlock()
}

// discover runs the three metadata queries concurrently and assembles the
// snapshot.
func (c *Catalog) discover(ctx context.Context) (*model.SchemaSnapshot, error) {
	var (
		tableNames []string
		columns    map[string][]model.Column
		fks        []model.ForeignKey
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		tableNames, err = c.listTables(gCtx)
		return err
	})
	g.Go(func() error {
		var err error
		columns, err = c.listColumns(gCtx)
		return err
	})
	g.Go(func() error {
		var err error
		fks, err = c.listForeignKeys(gCtx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, &DiscoveryError{Err: err}
	}

	tables := make([]model.Table, 0, len(tableNames))
	for _, name := range tableNames {
		tables = append(tables, model.Table{Name: name, Columns: columns[name]})
	}

	return &model.SchemaSnapshot{
		Tables:      tables,
		ForeignKeys: fks,
		CapturedAt:  time.Now().UTC(),
	}, nil
}

func (c *Catalog) listTables(ctx context.Context) ([]string, error) {
	rows, err := c.pool.Query(ctx, tablesQuery)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: list tables")
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, eris.Wrap(err, "catalog: scan table name")
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (c *Catalog) listColumns(ctx context.Context) (map[string][]model.Column, error) {
	rows, err := c.pool.Query(ctx, columnsQuery)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: list columns")
	}
	defer rows.Close()

	byTable := make(map[string][]model.Column)
	for rows.Next() {
		var table, column, dataType string
		if err := rows.Scan(&table, &column, &dataType); err != nil {
			return nil, eris.Wrap(err, "catalog: scan column")
		}
		byTable[table] = append(byTable[table], model.Column{Name: column, DataType: dataType})
	}
	return byTable, rows.Err()
}

func (c *Catalog) listForeignKeys(ctx context.Context) ([]model.ForeignKey, error) {
	rows, err := c.pool.Query(ctx, foreignKeysQuery)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: list foreign keys")
	}
	defer rows.Close()

	var fks []model.ForeignKey
	for rows.Next() {
		var fk model.ForeignKey
		if err := rows.Scan(&fk.SourceTable, &fk.SourceColumn, &fk.TargetTable, &fk.TargetColumn); err != nil {
			return nil, eris.Wrap(err, "catalog: scan foreign key")
		}
		fks = append(fks, fk)
	}
	return fks, rows.Err()
}
