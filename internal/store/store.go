// Package store implements the normalized entity table.
//
// The table is flat: one Entry per canonical URI, holding the entity's own
// fields plus references to other entries. Nothing else owns entity state.
// Entries are copy-on-write, so a pointer obtained from Get is a stable
// snapshot that later mutations never touch.
package store

import (
	"iter"

	"github.com/aweris/halcache/internal/future"
)

// Store is the flat key-value table of entities.
type Store interface {
	// Get returns the entry stored under uri.
	Get(uri string) (*Entry, bool)

	// Has reports whether uri is present (loading or not).
	Has(uri string) bool

	// AddEmpty inserts a loading placeholder whose first fetch settles load.
	AddEmpty(uri string, load *future.Future[*Entry]) *Entry

	// Add merges fetched entities into the table and marks them settled.
	Add(entries map[string]*Entry) map[string]*Entry

	// MarkReloading flags uri as reloading with the given pending result.
	MarkReloading(uri string, load *future.Future[*Entry]) bool

	// ReloadingFailed clears the reloading flag, keeping the old data.
	ReloadingFailed(uri string)

	// MarkDeleting flags uri as being deleted.
	MarkDeleting(uri string) bool

	// DeletingFailed clears the deleting flag.
	DeletingFailed(uri string)

	// Purge removes uri.
	Purge(uri string)

	// PurgeLoading removes uri only while it is still a loading placeholder.
	PurgeLoading(uri string) bool

	// PurgeAll empties the table.
	PurgeAll()

	// Len returns the number of entries.
	Len() int

	// Entries iterates over a point-in-time copy of the table.
	Entries() iter.Seq2[string, *Entry]
}
