package cluster

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veldtdb/go-veldt/internal/core/observability/log"
)

func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := sqlx.Open("sqlite3", filepath.Join(t.TempDir(), "nodes.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSQLNodeStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	store, err := NewSQLNodeStore(ctx, db, log.Nop())
	require.NoError(t, err)
	require.NoError(t, store.SetAll(ctx, testNodes()))

	got, err := store.GetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, testNodes(), got)
}

func TestSQLNodeStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	store, err := NewSQLNodeStore(ctx, db, log.Nop())
	require.NoError(t, err)
	require.NoError(t, store.SetAll(ctx, testNodes()))
	require.NoError(t, store.Upsert(ctx, NodeInfo{ID: 2, Address: "127.0.0.1:9202", Role: Voter}))

	reopened, err := NewSQLNodeStore(ctx, db, log.Nop())
	require.NoError(t, err)

	node, err := reopened.GetByID(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9202", node.Address)

	_, err = reopened.GetByAddress(ctx, "127.0.0.1:9002")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLNodeStore_RecordsUpdatedAt(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	store, err := NewSQLNodeStore(ctx, db, log.Nop())
	require.NoError(t, err)
	require.NoError(t, store.SetAll(ctx, testNodes()))

	var stamps []int64
	require.NoError(t, db.SelectContext(ctx, &stamps, "SELECT updated_at FROM nodes"))
	require.Len(t, stamps, len(testNodes()))
	for _, stamp := range stamps {
		assert.Positive(t, stamp)
	}
}

func TestSQLNodeStore_RemoveDeletesRow(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	store, err := NewSQLNodeStore(ctx, db, log.Nop())
	require.NoError(t, err)
	require.NoError(t, store.SetAll(ctx, testNodes()))

	existed, err := store.Remove(ctx, 3)
	require.NoError(t, err)
	assert.True(t, existed)

	var count int
	require.NoError(t, db.GetContext(ctx, &count, "SELECT COUNT(*) FROM nodes"))
	assert.Equal(t, len(testNodes())-1, count)
}

func TestSQLNodeStore_InvalidRoleRowRejectedOnLoad(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	_, err := db.ExecContext(ctx, nodesSchema)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx,
		"INSERT INTO nodes (id, address, role, updated_at) VALUES (1, '127.0.0.1:9001', 9, 0)")
	require.NoError(t, err)

	_, err = NewSQLNodeStore(ctx, db, log.Nop())
	require.Error(t, err)
}
