package halcache

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"github.com/yosida95/uritemplate/v3"

	"github.com/aweris/halcache/internal/future"
	"github.com/aweris/halcache/internal/store"
	"github.com/aweris/halcache/internal/uri"
)

// Kind tells the variants of View apart.
type Kind int

const (
	KindEntity Kind = iota
	KindCollection
	KindPlaceholder
)

func (k Kind) String() string {
	switch k {
	case KindEntity:
		return "entity"
	case KindCollection:
		return "collection"
	case KindPlaceholder:
		return "placeholder"
	default:
		return "unknown"
	}
}

// View is a navigable, read-only presentation of a cached entity.
//
// Views are recreated on every access and never go stale in place: an
// entity view shows the data cached when it was made. A placeholder stands
// in for data still being fetched; every relation followed through it is
// again a placeholder, so chains like v.Rel("book").Rel("author") never
// block and settle once the underlying fetches do.
type View interface {
	Kind() Kind

	// Self is the store key, "" for a placeholder of unknown identity.
	Self() string
	// SelfURL is Self joined with the base URL.
	SelfURL() string
	Meta() Meta

	Field(name string) (any, bool)
	Fields() map[string]any
	Relations() []string

	// Rel follows a relation. Templated relations are expanded with the
	// union of params.
	Rel(name string, params ...Params) View

	// Items lists the members of a collection without those being deleted.
	Items() Items
	// AllItems lists every member of a collection.
	AllItems() Items

	// Load settles with the concrete view once no fetch is outstanding.
	Load() *Future[View]
	Reload() *Future[View]

	Create(ctx context.Context, data any) (View, error)
	Update(ctx context.Context, data any) (View, error)
	Delete(ctx context.Context) error
	Href(ctx context.Context, relation string, params Params) (string, error)

	String() string
	MarshalJSON() ([]byte, error)
}

// view returns the materialized view of key, starting a fetch when needed.
func (c *Cache) view(key string, force bool) View {
	f := c.load(key, force)
	e, ok := c.store.Get(key)
	if !ok {
		return c.placeholder(key, future.Then(f, c.wrapEntry))
	}
	return c.wrap(e)
}

// wrap is the single dispatch point from store data to a view variant.
func (c *Cache) wrap(e *store.Entry) View {
	if e.Meta.Loading {
		return c.placeholder(e.Meta.Self, future.Then(e.Load, c.wrapEntry))
	}
	return &entity{c: c, e: e}
}

func (c *Cache) wrapEntry(e *store.Entry) (View, error) {
	return c.wrap(e), nil
}

func (c *Cache) expand(template string, params Params) (string, error) {
	tmpl, err := uritemplate.New(template)
	if err != nil {
		return "", fmt.Errorf("parse template %q: %w", template, err)
	}
	values := uritemplate.Values{}
	for k, v := range params {
		values.Set(k, templateValue(v))
	}
	expanded, err := tmpl.Expand(values)
	if err != nil {
		return "", fmt.Errorf("expand template %q: %w", template, err)
	}
	return uri.Normalize(expanded, c.opts.BaseURL), nil
}

func templateValue(v any) uritemplate.Value {
	switch t := v.(type) {
	case string:
		return uritemplate.String(t)
	case []string:
		return uritemplate.List(t...)
	case map[string]string:
		kv := make([]string, 0, len(t)*2)
		for _, k := range slices.Sorted(maps.Keys(t)) {
			kv = append(kv, k, t[k])
		}
		return uritemplate.KV(kv...)
	default:
		return uritemplate.String(fmt.Sprint(t))
	}
}

// entity is the view of settled data, an entity or a collection.
type entity struct {
	c *Cache
	e *store.Entry
}

func (v *entity) Kind() Kind {
	if v.e.Collection {
		return KindCollection
	}
	return KindEntity
}

func (v *entity) Self() string    { return v.e.Meta.Self }
func (v *entity) SelfURL() string { return v.c.url(v.e.Meta.Self) }
func (v *entity) Meta() Meta      { return v.e.Meta }

func (v *entity) Field(name string) (any, bool) {
	f, ok := v.e.Fields[name]
	return f, ok
}

func (v *entity) Fields() map[string]any {
	return maps.Clone(v.e.Fields)
}

func (v *entity) Relations() []string {
	return slices.Sorted(maps.Keys(v.e.Links))
}

func (v *entity) Rel(name string, params ...Params) View {
	link, ok := v.e.Links[name]
	if !ok {
		return v.c.failed(&NotARelationError{Relation: name, Self: v.e.Meta.Self, Value: v.e.Fields[name]})
	}
	if !link.Templated {
		return v.c.view(link.Href, false)
	}

	merged := Params{}
	for _, p := range params {
		maps.Copy(merged, p)
	}
	key, err := v.c.expand(link.Href, merged)
	if err != nil {
		return v.c.failed(err)
	}
	return v.c.view(key, false)
}

func (v *entity) Items() Items    { return v.c.items(v.e, false) }
func (v *entity) AllItems() Items { return v.c.items(v.e, true) }

func (v *entity) Load() *Future[View] {
	if v.e.Meta.Reloading {
		return future.Then(v.e.Load, v.c.wrapEntry)
	}
	return future.Resolved[View](v)
}

func (v *entity) Reload() *Future[View] {
	return v.c.Reload(v)
}

func (v *entity) Create(ctx context.Context, data any) (View, error) {
	return v.c.Create(ctx, v, data)
}

func (v *entity) Update(ctx context.Context, data any) (View, error) {
	return v.c.Update(ctx, v, data)
}

func (v *entity) Delete(ctx context.Context) error {
	return v.c.Delete(ctx, v)
}

func (v *entity) Href(ctx context.Context, relation string, params Params) (string, error) {
	return v.c.ResolveHref(ctx, v, relation, params)
}

func (v *entity) String() string {
	return v.e.Meta.Self
}

// MarshalJSON renders the stored data: plain fields, relations as
// {"href": ...}, collection members under "items" and the self key under
// "_meta".
func (v *entity) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(v.e.Fields)+len(v.e.Links)+2)
	maps.Copy(out, v.e.Fields)
	for rel, l := range v.e.Links {
		out[rel] = l
	}
	if v.e.Collection {
		items := v.e.Items
		if items == nil {
			items = []store.Link{}
		}
		out["items"] = items
	}
	out["_meta"] = map[string]any{"self": v.e.Meta.Self}
	return json.Marshal(out)
}
