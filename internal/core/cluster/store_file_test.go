package cluster

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veldtdb/go-veldt/internal/core/observability/log"
)

func TestFileNodeStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cluster.yaml")

	store, err := NewFileNodeStore(path, log.Nop())
	require.NoError(t, err)
	require.NoError(t, store.SetAll(ctx, testNodes()))
	require.NoError(t, store.Upsert(ctx, NodeInfo{ID: 4, Address: "127.0.0.1:9004", Role: Spare}))

	reopened, err := NewFileNodeStore(path, log.Nop())
	require.NoError(t, err)

	want, err := store.GetAll(ctx)
	require.NoError(t, err)
	got, err := reopened.GetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// The version counter is in-process only.
	version, err := reopened.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), version)
}

func TestFileNodeStore_MissingFileStartsEmpty(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cluster.yaml")

	store, err := NewFileNodeStore(path, log.Nop())
	require.NoError(t, err)

	nodes, err := store.GetAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, nodes)

	// Nothing was written just by opening.
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestFileNodeStore_SnapshotIsWholeFileReplace(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cluster.yaml")

	store, err := NewFileNodeStore(path, log.Nop())
	require.NoError(t, err)
	require.NoError(t, store.SetAll(ctx, testNodes()))
	require.NoError(t, store.SetAll(ctx, testNodes()[:1]))

	// No temporary file is left behind and the snapshot is the final set.
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))

	reopened, err := NewFileNodeStore(path, log.Nop())
	require.NoError(t, err)
	nodes, err := reopened.GetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, testNodes()[:1], nodes)
}

func TestFileNodeStore_CorruptSnapshotRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cluster.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{nonsense"), 0o600))

	_, err := NewFileNodeStore(path, log.Nop())
	assert.ErrorIs(t, err, ErrSerialization)
}

func TestFileNodeStore_InvalidSnapshotContentsRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cluster.yaml")
	data := "- ID: 1\n  Address: 127.0.0.1:9001\n  Role: 0\n- ID: 1\n  Address: 127.0.0.1:9002\n  Role: 0\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	_, err := NewFileNodeStore(path, log.Nop())
	var invalid *InvalidNodeError
	assert.ErrorAs(t, err, &invalid)
}
