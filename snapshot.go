package halcache

import (
	"fmt"

	"github.com/aweris/halcache/internal/compression"
	"github.com/aweris/halcache/internal/store"
)

// Snapshot encodes every settled entry so another Cache can pick up where
// this one stopped. Entries still loading are left out and lifecycle flags
// are not kept.
func (c *Cache) Snapshot() ([]byte, error) {
	data, err := store.Marshal(c.store)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}

	comp, err := compression.NewCompressor(compression.LevelDefault)
	if err != nil {
		return nil, fmt.Errorf("create compressor: %w", err)
	}
	defer comp.Close()

	return comp.Compress(data), nil
}

// Restore merges a snapshot into the cache. Restored entries replace cached
// ones with the same key.
func (c *Cache) Restore(data []byte) error {
	comp, err := compression.NewCompressor(compression.LevelDefault)
	if err != nil {
		return fmt.Errorf("create compressor: %w", err)
	}
	defer comp.Close()

	raw, err := comp.Decompress(data)
	if err != nil {
		return fmt.Errorf("restore snapshot: %w", err)
	}
	keys, err := store.Unmarshal(c.store, raw)
	if err != nil {
		return fmt.Errorf("restore snapshot: %w", err)
	}
	c.log.Debug().Int("entries", len(keys)).Msg("restored snapshot")
	return nil
}
