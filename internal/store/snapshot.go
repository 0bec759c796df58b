package store

import (
	"encoding/json"
	"fmt"
	"sort"
)

// snapshotVersion guards against restoring data written by an incompatible
// layout.
const snapshotVersion = 1

type snapshot struct {
	Version int               `json:"version"`
	Entries map[string]*Entry `json:"entries"`
}

// Marshal encodes every settled entry of s. Loading placeholders are skipped
// and lifecycle flags are not persisted.
func Marshal(s Store) ([]byte, error) {
	out := snapshot{Version: snapshotVersion, Entries: make(map[string]*Entry)}
	for uri, e := range s.Entries() {
		if e.Meta.Loading {
			continue
		}
		out.Entries[uri] = e
	}
	return json.Marshal(out)
}

// Unmarshal decodes a snapshot written by Marshal and merges it into s.
// It returns the restored keys in sorted order.
func Unmarshal(s Store, data []byte) ([]string, error) {
	var in snapshot
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if in.Version != snapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", in.Version)
	}

	entries := make(map[string]*Entry, len(in.Entries))
	keys := make([]string, 0, len(in.Entries))
	for uri, e := range in.Entries {
		if e == nil {
			continue
		}
		if e.Fields == nil {
			e.Fields = make(map[string]any)
		}
		if e.Links == nil {
			e.Links = make(map[string]Link)
		}
		entries[uri] = e
		keys = append(keys, uri)
	}
	s.Add(entries)

	sort.Strings(keys)
	return keys, nil
}
