// Package hal flattens HAL+JSON documents into store entries.
//
// Every object carrying _links.self becomes its own entry and is replaced at
// its original location by a reference. Arrays of embedded objects become
// collection entries: under the relation "items" the owner itself is the
// collection, a relation that also has a plain link becomes a collection
// stored at that link, and anything else becomes a virtual collection under
// "owner#relation".
package hal

import (
	"errors"
	"fmt"

	"github.com/aweris/halcache/internal/store"
	"github.com/aweris/halcache/internal/uri"
)

// ItemsRelation is the embedded relation that turns its owner into a
// standalone collection.
const ItemsRelation = "items"

var ErrNoSelfLink = errors.New("hal: document has no self link")

// Normalizer converts documents relative to an API base.
type Normalizer struct {
	Base string
}

// Normalize flattens doc and returns the canonical key of its root entity
// together with every entry found in it.
func (n Normalizer) Normalize(doc map[string]any) (string, map[string]*store.Entry, error) {
	w := &walker{base: n.Base, out: make(map[string]*store.Entry)}
	self, ok := w.entity(doc)
	if !ok {
		return "", nil, ErrNoSelfLink
	}
	return self, w.out, nil
}

// SelfHref returns the raw _links.self.href of doc.
func SelfHref(doc map[string]any) (string, bool) {
	links, _ := doc["_links"].(map[string]any)
	self, _ := links["self"].(map[string]any)
	href, ok := self["href"].(string)
	return href, ok
}

// SetSelfHref overwrites _links.self.href of doc, creating it if needed.
func SetSelfHref(doc map[string]any, href string) {
	links, ok := doc["_links"].(map[string]any)
	if !ok {
		links = make(map[string]any)
		doc["_links"] = links
	}
	links["self"] = map[string]any{"href": href}
}

type walker struct {
	base string
	out  map[string]*store.Entry
}

func (w *walker) canon(href string) string {
	return uri.Normalize(href, w.base)
}

// entity flattens one object. It reports false when obj has no self link.
func (w *walker) entity(obj map[string]any) (string, bool) {
	href, ok := SelfHref(obj)
	if !ok {
		return "", false
	}
	self := w.canon(href)
	e := store.NewEntry(self)

	for k, v := range obj {
		if k == "_links" || k == "_embedded" {
			continue
		}
		e.Fields[k] = v
	}

	links, _ := obj["_links"].(map[string]any)
	for rel, raw := range links {
		if rel == "self" {
			continue
		}
		switch l := raw.(type) {
		case map[string]any:
			if link, ok := w.link(l); ok {
				e.Links[rel] = link
			}
		case []any:
			refs := make([]store.Link, 0, len(l))
			for _, item := range l {
				m, ok := item.(map[string]any)
				if !ok {
					continue
				}
				if link, ok := w.link(m); ok && !link.Templated {
					refs = append(refs, link)
				}
			}
			w.collection(e, rel, refs, "")
		}
	}

	embedded, _ := obj["_embedded"].(map[string]any)
	for rel, raw := range embedded {
		switch v := raw.(type) {
		case map[string]any:
			if sub, ok := w.entity(v); ok {
				e.Links[rel] = store.Link{Href: sub}
			} else {
				e.Fields[rel] = v
			}
		case []any:
			refs, ok := w.items(v)
			if !ok {
				e.Fields[rel] = v
				continue
			}
			w.collection(e, rel, refs, standaloneHref(links, rel))
		default:
			e.Fields[rel] = v
		}
	}

	w.put(e)
	return self, true
}

func (w *walker) link(l map[string]any) (store.Link, bool) {
	href, _ := l["href"].(string)
	if href == "" {
		return store.Link{}, false
	}
	if templated, _ := l["templated"].(bool); templated {
		return store.Link{Href: uri.StripBase(href, w.base), Templated: true}, true
	}
	return store.Link{Href: w.canon(href)}, true
}

// items flattens an embedded array. It reports false when the array holds
// values that are not entities, in which case it is kept as a plain field.
func (w *walker) items(arr []any) ([]store.Link, bool) {
	refs := make([]store.Link, 0, len(arr))
	for _, item := range arr {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, false
		}
		sub, ok := w.entity(m)
		if !ok {
			return nil, false
		}
		refs = append(refs, store.Link{Href: sub})
	}
	return refs, true
}

func (w *walker) collection(owner *store.Entry, rel string, refs []store.Link, standalone string) {
	if rel == ItemsRelation {
		owner.Collection = true
		owner.Items = refs
		delete(owner.Links, rel)
		return
	}

	if standalone != "" {
		key := w.canon(standalone)
		if key != owner.Meta.Self {
			c := store.NewEntry(key)
			c.Collection = true
			c.Items = refs
			w.put(c)
			owner.Links[rel] = store.Link{Href: key}
			return
		}
	}

	key := VirtualKey(owner.Meta.Self, rel)
	c := store.NewEntry(key)
	c.Collection = true
	c.Items = refs
	c.Meta.Virtual = true
	c.Meta.Owner = owner.Meta.Self
	c.Meta.Relation = rel
	w.put(c)
	owner.Links[rel] = store.Link{Href: key, Virtual: true}
}

// put stores e, merging into an entry already produced from the same
// document so an entity embedded twice keeps the union of what was seen.
func (w *walker) put(e *store.Entry) {
	prev, ok := w.out[e.Meta.Self]
	if !ok {
		w.out[e.Meta.Self] = e
		return
	}
	for k, v := range e.Fields {
		prev.Fields[k] = v
	}
	for k, v := range e.Links {
		prev.Links[k] = v
	}
	if e.Collection {
		prev.Collection = true
		prev.Items = e.Items
	}
	if e.Meta.Virtual {
		prev.Meta = e.Meta
	}
}

func standaloneHref(links map[string]any, rel string) string {
	l, ok := links[rel].(map[string]any)
	if !ok {
		return ""
	}
	if templated, _ := l["templated"].(bool); templated {
		return ""
	}
	href, _ := l["href"].(string)
	return href
}

// VirtualKey is the store key of the embedded collection rel of owner.
func VirtualKey(owner, rel string) string {
	return fmt.Sprintf("%s#%s", owner, rel)
}
