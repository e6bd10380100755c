package cluster

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/veldtdb/go-veldt/internal/core/observability/log"
)

// nodesSchema keeps one row per member. The uniqueness constraint on address
// backstops the in-process validation; updated_at is recorded per row for
// observability only, the in-process version counter stays authoritative.
const nodesSchema = `
CREATE TABLE IF NOT EXISTS nodes (
	id         INTEGER NOT NULL PRIMARY KEY,
	address    TEXT    NOT NULL UNIQUE,
	role       INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
)`

type nodeRow struct {
	ID        int64    `db:"id"`
	Address   string   `db:"address"`
	Role      NodeRole `db:"role"`
	UpdatedAt int64    `db:"updated_at"`
}

// SQLNodeStore is a NodeStore persisted in a single SQL table. Every mutation
// rewrites the table inside one transaction.
type SQLNodeStore struct {
	*memCore
	db  *sqlx.DB
	now func() time.Time
	log log.Log
}

var _ NodeStore = (*SQLNodeStore)(nil)

// NewSQLNodeStore creates the table if needed and loads any existing rows.
// The caller owns the db handle.
func NewSQLNodeStore(ctx context.Context, db *sqlx.DB, logger log.Log) (*SQLNodeStore, error) {
	s := &SQLNodeStore{
		db:  db,
		now: time.Now,
		log: logger.With(log.String("component", "sql_node_store")),
	}
	s.memCore = newMemCore(s.persistRows)

	if _, err := db.ExecContext(ctx, nodesSchema); err != nil {
		return nil, fmt.Errorf("create nodes table: %w: %w", ErrStore, err)
	}

	nodes, err := s.loadRows(ctx)
	if err != nil {
		return nil, err
	}
	if err := validateNodes(nodes); err != nil {
		return nil, err
	}
	s.memCore.seed(nodes)

	s.log.Debug("Node store opened", log.Int("nodes", len(nodes)))
	return s, nil
}

func (s *SQLNodeStore) loadRows(ctx context.Context) ([]NodeInfo, error) {
	var rows []nodeRow
	if err := s.db.SelectContext(ctx, &rows, "SELECT id, address, role, updated_at FROM nodes ORDER BY id"); err != nil {
		return nil, fmt.Errorf("load nodes: %w: %w", ErrStore, err)
	}
	nodes := make([]NodeInfo, 0, len(rows))
	for _, row := range rows {
		nodes = append(nodes, NodeInfo{
			ID:      uint64(row.ID),
			Address: row.Address,
			Role:    row.Role,
		})
	}
	return nodes, nil
}

func (s *SQLNodeStore) persistRows(ctx context.Context, nodes []NodeInfo) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w: %w", ErrStore, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM nodes"); err != nil {
		return fmt.Errorf("clear nodes: %w: %w", ErrStore, err)
	}

	updatedAt := s.now().Unix()
	for _, node := range nodes {
		row := nodeRow{
			ID:        int64(node.ID),
			Address:   node.Address,
			Role:      node.Role,
			UpdatedAt: updatedAt,
		}
		const insert = `INSERT INTO nodes (id, address, role, updated_at)
			VALUES (:id, :address, :role, :updated_at)`
		if _, err := tx.NamedExecContext(ctx, insert, row); err != nil {
			return fmt.Errorf("insert node %d: %w: %w", node.ID, ErrStore, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit nodes: %w: %w", ErrStore, err)
	}

	s.log.Debug("Node rows persisted", log.Int("nodes", len(nodes)))
	return nil
}
