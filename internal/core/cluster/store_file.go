package cluster

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/veldtdb/go-veldt/internal/core/observability/log"
)

// FileNodeStore is a NodeStore backed by a durable YAML snapshot file.
//
// Every mutation serializes the full node list, writes it to a temporary
// path, syncs, then renames over the target path, so the on-disk file is
// always either the old or the new complete snapshot.
type FileNodeStore struct {
	*memCore
	path string
	log  log.Log
}

var _ NodeStore = (*FileNodeStore)(nil)

// NewFileNodeStore opens (or creates) a store persisted at path. An existing
// snapshot file is loaded and validated before the store becomes usable.
func NewFileNodeStore(path string, logger log.Log) (*FileNodeStore, error) {
	s := &FileNodeStore{
		path: path,
		log:  logger.With(log.String("component", "file_node_store"), log.String("path", path)),
	}
	s.memCore = newMemCore(s.persistSnapshot)

	nodes, err := s.loadSnapshot()
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

func (s *FileNodeStore) loadSnapshot() ([]NodeInfo, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read node snapshot: %w: %w", ErrIO, err)
	}

	var nodes []NodeInfo
	if err := yaml.Unmarshal(data, &nodes); err != nil {
		return nil, fmt.Errorf("decode node snapshot: %w: %w", ErrSerialization, err)
	}
	return nodes, nil
}

func (s *FileNodeStore) persistSnapshot(_ context.Context, nodes []NodeInfo) error {
	data, err := yaml.Marshal(nodes)
	if err != nil {
		return fmt.Errorf("encode node snapshot: %w: %w", ErrSerialization, err)
	}

	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("open temporary snapshot: %w: %w", ErrIO, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write snapshot: %w: %w", ErrIO, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("sync snapshot: %w: %w", ErrIO, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close snapshot: %w: %w", ErrIO, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace snapshot: %w: %w", ErrIO, err)
	}

	s.log.Debug("Node snapshot persisted", log.Int("nodes", len(nodes)))
	return nil
}
