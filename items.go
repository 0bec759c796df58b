package halcache

import (
	"github.com/aweris/halcache/internal/future"
	"github.com/aweris/halcache/internal/store"
)

// Items is the member list of a collection. A list whose members are still
// being fetched holds the members known so far and settles through Load.
// Filter, Map and FlatMap apply both to the current members and, deferred,
// to the settled ones.
type Items interface {
	All() []View
	Len() int
	Load() *Future[[]View]

	// Find returns the first member matching fn. When none matches the
	// result is a failed placeholder wrapping ErrNoMatch.
	Find(fn func(View) bool) View
	Filter(fn func(View) bool) Items
	Map(fn func(View) View) Items
	FlatMap(fn func(View) []View) Items
}

// items resolves the members of a collection entry. Members that are all
// cached resolve directly; otherwise the fetch strategy decides between one
// reload of the collection and one fetch per member.
func (c *Cache) items(e *store.Entry, all bool) Items {
	if !e.Collection {
		return viewList{}
	}
	refs := e.Items
	if c.known(refs) {
		return viewList(c.wrapRefs(refs, all))
	}

	if c.opts.FetchStrategy == AvoidNPlusOne {
		c.log.Debug().Str("uri", e.Meta.Self).Int("items", len(refs)).Msg("reloading collection for unloaded items")
		return c.loadingItems(nil, future.Then(c.reload(e.Meta.Self), func(fresh *store.Entry) ([]View, error) {
			return c.wrapRefs(fresh.Items, all), nil
		}))
	}

	existing := c.wrapRefs(refs, all)
	loads := make([]*future.Future[View], len(existing))
	for i, v := range existing {
		loads[i] = v.Load()
	}
	return c.loadingItems(existing, future.Then(future.All(loads), func([]View) ([]View, error) {
		return c.wrapRefs(refs, all), nil
	}))
}

// known reports whether every ref is cached and settled.
func (c *Cache) known(refs []store.Link) bool {
	for _, r := range refs {
		e, ok := c.store.Get(r.Href)
		if !ok || e.Meta.Loading {
			return false
		}
	}
	return true
}

// wrapRefs materializes refs, leaving out members being deleted unless all
// is set. Unknown members are fetched.
func (c *Cache) wrapRefs(refs []store.Link, all bool) []View {
	out := make([]View, 0, len(refs))
	for _, r := range refs {
		if e, ok := c.store.Get(r.Href); ok && e.Meta.Deleting && !all {
			continue
		}
		out = append(out, c.view(r.Href, false))
	}
	return out
}

func (c *Cache) loadingItems(existing []View, load *future.Future[[]View]) Items {
	return &loadingList{c: c, existing: existing, load: load}
}

// viewList is a settled member list.
type viewList []View

func (l viewList) All() []View           { return l }
func (l viewList) Len() int              { return len(l) }
func (l viewList) Load() *Future[[]View] { return future.Resolved([]View(l)) }

func (l viewList) Find(fn func(View) bool) View {
	for _, v := range l {
		if fn(v) {
			return v
		}
	}
	return failedView(ErrNoMatch)
}

func (l viewList) Filter(fn func(View) bool) Items { return viewList(filter(l, fn)) }
func (l viewList) Map(fn func(View) View) Items    { return viewList(mapViews(l, fn)) }
func (l viewList) FlatMap(fn func(View) []View) Items {
	return viewList(flatMap(l, fn))
}

// loadingList is a member list still being fetched.
type loadingList struct {
	c        *Cache
	existing []View
	load     *future.Future[[]View]
}

func (l *loadingList) All() []View           { return l.existing }
func (l *loadingList) Len() int              { return len(l.existing) }
func (l *loadingList) Load() *Future[[]View] { return l.load }

func (l *loadingList) Find(fn func(View) bool) View {
	return l.c.pending(future.Then(l.load, func(vs []View) (View, error) {
		for _, v := range vs {
			if fn(v) {
				return v, nil
			}
		}
		return nil, ErrNoMatch
	}))
}

func (l *loadingList) Filter(fn func(View) bool) Items {
	return l.derive(func(vs []View) []View { return filter(vs, fn) })
}

func (l *loadingList) Map(fn func(View) View) Items {
	return l.derive(func(vs []View) []View { return mapViews(vs, fn) })
}

func (l *loadingList) FlatMap(fn func(View) []View) Items {
	return l.derive(func(vs []View) []View { return flatMap(vs, fn) })
}

func (l *loadingList) derive(op func([]View) []View) Items {
	return l.c.loadingItems(op(l.existing), future.Then(l.load, func(vs []View) ([]View, error) {
		return op(vs), nil
	}))
}

func filter(vs []View, fn func(View) bool) []View {
	out := make([]View, 0, len(vs))
	for _, v := range vs {
		if fn(v) {
			out = append(out, v)
		}
	}
	return out
}

func mapViews(vs []View, fn func(View) View) []View {
	out := make([]View, len(vs))
	for i, v := range vs {
		out[i] = fn(v)
	}
	return out
}

func flatMap(vs []View, fn func(View) []View) []View {
	var out []View
	for _, v := range vs {
		out = append(out, fn(v)...)
	}
	return out
}
