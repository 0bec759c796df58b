// Package remote shares cache snapshots through an OCI registry.
//
// A snapshot is pushed as a single-layer artifact:
//   - the layer holds the snapshot bytes unchanged
//   - the config labels record the snapshot format
//   - credentials come from the Docker keychain unless an Authenticator is set
package remote

import (
	"errors"
	"fmt"

	"github.com/google/go-containerregistry/pkg/name"
)

const (
	// DefaultConcurrency is the number of parallel blob uploads.
	DefaultConcurrency = 4

	formatLabel   = "dev.halcache.format"
	formatVersion = "1"
)

// ErrNotSnapshot is returned when a pulled artifact was not pushed by Registry.
var ErrNotSnapshot = errors.New("halcache: artifact is not a cache snapshot")

// Registry pushes and pulls snapshots for one image reference.
type Registry struct {
	ref         name.Reference
	auth        Authenticator
	concurrency int
}

// New creates a registry from a standard Docker ref (e.g. "ttl.sh/halcache/state:main").
func New(imageRef string, auth Authenticator) (*Registry, error) {
	ref, err := name.ParseReference(imageRef, name.WithDefaultTag("latest"))
	if err != nil {
		return nil, fmt.Errorf("invalid image ref %q: %w", imageRef, err)
	}
	return &Registry{ref: ref, auth: auth, concurrency: DefaultConcurrency}, nil
}

// SetConcurrency sets the number of parallel uploads.
func (r *Registry) SetConcurrency(n int) {
	if n > 0 {
		r.concurrency = n
	}
}

func (r *Registry) String() string { return r.ref.String() }
func (r *Registry) Host() string   { return r.ref.Context().RegistryStr() }

// WithTag returns a registry for the same repository under another tag.
func (r *Registry) WithTag(tag string) (*Registry, error) {
	ref, err := name.NewTag(r.ref.Context().String()+":"+tag, name.WithDefaultTag("latest"))
	if err != nil {
		return nil, err
	}
	return &Registry{ref: ref, auth: r.auth, concurrency: r.concurrency}, nil
}
