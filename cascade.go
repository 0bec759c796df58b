package halcache

import (
	"context"
	"slices"

	"github.com/sourcegraph/conc/pool"
)

// referencing returns the keys to reload after key disappeared: every entry
// with a relation or item pointing at key, with embedded collections
// replaced by the entity that owns them. Entries being deleted are left out.
func (c *Cache) referencing(key string) []string {
	seen := make(map[string]bool)
	for k, e := range c.store.Entries() {
		if e.Meta.Deleting || !e.References(key) {
			continue
		}
		target := k
		if e.Meta.Virtual {
			target = e.Meta.Owner
		}
		if target == key || seen[target] {
			continue
		}
		if o, ok := c.store.Get(target); ok && (o.Meta.Deleting || o.Meta.Loading) {
			continue
		}
		seen[target] = true
	}

	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// cascade reloads refs in parallel. A failing reload is logged and does not
// stop the others; a 404 among them starts a cascade of its own.
func (c *Cache) cascade(key string, refs []string) {
	if len(refs) == 0 {
		return
	}

	p := pool.New().WithMaxGoroutines(c.opts.Concurrency).WithContext(c.opts.Context)
	for _, ref := range refs {
		p.Go(func(ctx context.Context) error {
			if _, err := c.load(ref, true).Await(ctx); err != nil {
				c.log.Warn().Err(err).Str("uri", key).Str("referencing", ref).Msg("cascade reload failed")
			}
			return nil
		})
	}
	_ = p.Wait()
}
