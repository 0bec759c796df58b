package halcache

import (
	"context"

	"github.com/aweris/halcache/internal/future"
)

// placeholder stands in for a view that is not available yet.
type placeholder struct {
	c     *Cache
	self  string
	known bool
	load  *future.Future[View]
}

func (c *Cache) placeholder(self string, load *future.Future[View]) *placeholder {
	return &placeholder{c: c, self: self, known: true, load: load}
}

// pending is a placeholder whose identity is only known once load settles.
func (c *Cache) pending(load *future.Future[View]) *placeholder {
	return &placeholder{c: c, load: load}
}

func (c *Cache) failed(err error) *placeholder {
	return c.pending(future.Failed[View](err))
}

// failedView is a placeholder for an error raised outside any cache.
func failedView(err error) View {
	return &placeholder{load: future.Failed[View](err)}
}

// then derives a placeholder from the settled view.
func (p *placeholder) then(fn func(View) *future.Future[View]) *placeholder {
	return p.c.pending(future.Chain(p.load, func(v View) *future.Future[View] {
		if v == nil {
			return future.Failed[View](ErrNoMatch)
		}
		return fn(v)
	}))
}

func (p *placeholder) Kind() Kind { return KindPlaceholder }

func (p *placeholder) Self() string { return p.self }

func (p *placeholder) SelfURL() string {
	if !p.known {
		return ""
	}
	return p.c.url(p.self)
}

func (p *placeholder) Meta() Meta {
	return Meta{Self: p.self, Loading: true}
}

func (p *placeholder) Field(string) (any, bool) { return nil, false }
func (p *placeholder) Fields() map[string]any   { return map[string]any{} }
func (p *placeholder) Relations() []string      { return nil }

func (p *placeholder) Rel(name string, params ...Params) View {
	return p.then(func(v View) *future.Future[View] {
		return v.Rel(name, params...).Load()
	})
}

func (p *placeholder) Items() Items {
	return p.c.loadingItems(nil, future.Chain(p.load, func(v View) *future.Future[[]View] {
		return v.Items().Load()
	}))
}

func (p *placeholder) AllItems() Items {
	return p.c.loadingItems(nil, future.Chain(p.load, func(v View) *future.Future[[]View] {
		return v.AllItems().Load()
	}))
}

func (p *placeholder) Load() *Future[View] { return p.load }

func (p *placeholder) Reload() *Future[View] {
	if p.known {
		return p.c.Reload(p)
	}
	return future.Chain(p.load, func(v View) *future.Future[View] { return v.Reload() })
}

func (p *placeholder) Create(ctx context.Context, data any) (View, error) {
	v, err := p.load.Await(ctx)
	if err != nil {
		return nil, err
	}
	return v.Create(ctx, data)
}

func (p *placeholder) Update(ctx context.Context, data any) (View, error) {
	v, err := p.load.Await(ctx)
	if err != nil {
		return nil, err
	}
	return v.Update(ctx, data)
}

func (p *placeholder) Delete(ctx context.Context) error {
	v, err := p.load.Await(ctx)
	if err != nil {
		return err
	}
	return v.Delete(ctx)
}

func (p *placeholder) Href(ctx context.Context, relation string, params Params) (string, error) {
	v, err := p.load.Await(ctx)
	if err != nil {
		return "", err
	}
	return v.Href(ctx, relation, params)
}

// String is empty so a placeholder renders as nothing.
func (p *placeholder) String() string { return "" }

func (p *placeholder) MarshalJSON() ([]byte, error) {
	return []byte("{}"), nil
}
