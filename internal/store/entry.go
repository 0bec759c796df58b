package store

import (
	"maps"
	"slices"

	"github.com/aweris/halcache/internal/future"
)

// Link points at another entry.
//
// A plain link has only Href. Templated links carry an RFC 6570 template in
// Href. Virtual links point at an embedded collection that has no URI of its
// own and lives under the synthetic key "owner#relation".
type Link struct {
	Href      string `json:"href"`
	Templated bool   `json:"templated,omitempty"`
	Virtual   bool   `json:"virtual,omitempty"`
}

// Meta holds the identity and lifecycle flags of an entry.
type Meta struct {
	Self string `json:"self"`

	Loading   bool `json:"-"`
	Reloading bool `json:"-"`
	Deleting  bool `json:"-"`

	// Virtual entries are embedded collections addressed through their
	// owner. Reloading one means reloading Owner and re-reading Relation.
	Virtual  bool   `json:"virtual,omitempty"`
	Owner    string `json:"owner,omitempty"`
	Relation string `json:"relation,omitempty"`
}

// Entry is one normalized entity.
type Entry struct {
	Meta Meta `json:"meta"`

	// Fields holds plain values: strings, numbers, booleans, nil, and
	// objects or arrays that are not entities themselves.
	Fields map[string]any `json:"fields,omitempty"`

	// Links is the relation table.
	Links map[string]Link `json:"links,omitempty"`

	// Collection entries expose Items.
	Collection bool   `json:"collection,omitempty"`
	Items      []Link `json:"items,omitempty"`

	// Load settles with the current data once no fetch is outstanding.
	Load *future.Future[*Entry] `json:"-"`
}

// NewEntry returns an empty entity stored under self.
func NewEntry(self string) *Entry {
	return &Entry{
		Meta:   Meta{Self: self},
		Fields: make(map[string]any),
		Links:  make(map[string]Link),
	}
}

// Clone returns a shallow copy with its own field, link and item tables.
func (e *Entry) Clone() *Entry {
	c := *e
	c.Fields = maps.Clone(e.Fields)
	c.Links = maps.Clone(e.Links)
	c.Items = slices.Clone(e.Items)
	return &c
}

// References reports whether any relation or collection item of e points at
// uri.
func (e *Entry) References(uri string) bool {
	for _, l := range e.Links {
		if l.Href == uri && !l.Templated {
			return true
		}
	}
	for _, l := range e.Items {
		if l.Href == uri {
			return true
		}
	}
	return false
}
