package halcache

import (
	"github.com/aweris/halcache/internal/future"
	"github.com/aweris/halcache/internal/store"
)

// Future is the eventual result of a fetch.
// Re-exported from internal/future for convenience.
type Future[T any] = future.Future[T]

// Link is a reference to another entity.
// Re-exported from internal/store for convenience.
type Link = store.Link

// Meta holds the identity and lifecycle flags of an entity.
// Re-exported from internal/store for convenience.
type Meta = store.Meta

// Params fills the variables of a templated link.
type Params map[string]any
