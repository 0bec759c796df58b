package halcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/rs/zerolog"

	"github.com/aweris/halcache/internal/future"
	"github.com/aweris/halcache/internal/hal"
	"github.com/aweris/halcache/internal/store"
	"github.com/aweris/halcache/internal/uri"
)

const (
	opFetch  = "fetch"
	opReload = "reload"
	opCreate = "post to"
	opUpdate = "patch"
	opDelete = "delete"
)

// Cache is a normalized HAL+JSON entity cache.
type Cache struct {
	transport Transport
	store     store.Store
	hal       hal.Normalizer
	opts      *Options
	log       zerolog.Logger

	// mu makes the check-then-start of a fetch atomic per key.
	mu sync.Mutex
	// reloads holds the unrecovered future of every reload in flight.
	// Guarded by mu.
	reloads map[string]*future.Future[*store.Entry]

	// cascades holds the URIs whose deletion cascade is running.
	cascades sync.Map
}

// New creates an empty cache fetching through t.
func New(t Transport, opts ...Option) *Cache {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return &Cache{
		transport: t,
		store:     store.NewMemoryStore(),
		hal:       hal.Normalizer{Base: o.BaseURL},
		opts:      o,
		log:       o.Logger,
		reloads:   make(map[string]*future.Future[*store.Entry]),
	}
}

// Get returns a view of target. Unknown targets are fetched in the
// background and returned as a placeholder. With WithForceReload a known
// target is refetched while its current data keeps being served.
//
// A placeholder without a known URI is returned as is.
func (c *Cache) Get(target any, opts ...GetOption) (View, error) {
	o := &getOptions{}
	for _, opt := range opts {
		opt(o)
	}
	if p, ok := target.(*placeholder); ok && !p.known {
		return p, nil
	}
	key, err := c.key("get", target)
	if err != nil {
		return nil, err
	}
	return c.view(key, o.force), nil
}

// Root returns a view of the API root.
func (c *Cache) Root() View {
	return c.view("", false)
}

// Reload refetches target. The returned future fails if the reload fails;
// the cache keeps the previous data in that case. Reloading an embedded
// collection reloads the entity it is embedded in.
func (c *Cache) Reload(target any) *Future[View] {
	key, err := c.key(opReload, target)
	if err != nil {
		return future.Failed[View](err)
	}
	return future.Then(c.reload(key), c.wrapEntry)
}

// Create posts data to the collection target and returns the created
// entity, or nil when the server answered without content.
func (c *Cache) Create(ctx context.Context, target any, data any) (View, error) {
	key, err := c.key("create", target)
	if err != nil {
		return nil, err
	}
	if c.isVirtual(key) {
		return nil, &VirtualResourceError{Op: "create"}
	}
	body, err := encodeBody(data)
	if err != nil {
		return nil, fmt.Errorf("encode body: %w", err)
	}

	c.log.Debug().Str("op", opCreate).Str("uri", key).Msg("request")
	resp, err := c.transport.Post(ctx, c.url(key), body)
	if err = classify(opCreate, key, resp, err); err != nil {
		c.heal(err)
		return nil, err
	}
	if resp.Status == http.StatusNoContent || len(resp.Body) == 0 {
		return nil, nil
	}

	self, err := c.storeDocument(resp.Body, "", false)
	if err != nil {
		return nil, fmt.Errorf("%s %q: %w", opCreate, key, err)
	}
	return c.view(self, false), nil
}

// Update patches target with data and returns the updated entity. An
// unknown target is shown as loading until the request settles.
func (c *Cache) Update(ctx context.Context, target any, data any) (View, error) {
	key, err := c.key("update", target)
	if err != nil {
		return nil, err
	}
	if c.isVirtual(key) {
		return nil, &VirtualResourceError{Op: "update"}
	}
	body, err := encodeBody(data)
	if err != nil {
		return nil, fmt.Errorf("encode body: %w", err)
	}

	var pending *future.Future[*store.Entry]
	c.mu.Lock()
	if !c.store.Has(key) {
		pending = future.New[*store.Entry]()
		c.store.AddEmpty(key, pending)
	}
	c.mu.Unlock()

	e, err := c.patch(ctx, key, body)
	if pending != nil {
		if err != nil {
			c.store.PurgeLoading(key)
		}
		pending.Settle(e, err)
	}
	if err != nil {
		return nil, err
	}
	return c.wrap(e), nil
}

func (c *Cache) patch(ctx context.Context, key string, body []byte) (*store.Entry, error) {
	c.log.Debug().Str("op", opUpdate).Str("uri", key).Msg("request")
	resp, err := c.transport.Patch(ctx, c.url(key), body)
	if err = classify(opUpdate, key, resp, err); err != nil {
		c.heal(err)
		return nil, err
	}
	if len(resp.Body) == 0 {
		return c.fetchEntry(key, opUpdate)
	}
	return c.storeEntry(key, resp.Body, opUpdate)
}

// Delete deletes target on the server, reloads every cached entity that
// referenced it and purges it. Until the server confirms, target stays in
// the cache flagged as deleting.
func (c *Cache) Delete(ctx context.Context, target any) error {
	key, err := c.key(opDelete, target)
	if err != nil {
		return err
	}
	if c.isVirtual(key) {
		return &VirtualResourceError{Op: "delete"}
	}

	c.store.MarkDeleting(key)
	c.log.Debug().Str("op", opDelete).Str("uri", key).Msg("request")
	resp, err := c.transport.Delete(ctx, c.url(key))
	if err = classify(opDelete, key, resp, err); err != nil {
		c.store.DeletingFailed(key)
		c.heal(err)
		return err
	}
	c.deleted(key)
	return nil
}

// ResolveHref loads target and returns the key the relation points at, with
// templated links expanded from params. It returns "" when target has no
// such relation.
func (c *Cache) ResolveHref(ctx context.Context, target any, relation string, params Params) (string, error) {
	key, err := c.key("href", target)
	if err != nil {
		return "", err
	}
	e, err := c.load(key, false).Await(ctx)
	if err != nil {
		return "", err
	}
	link, ok := e.Links[relation]
	if !ok || link.Href == "" {
		return "", nil
	}
	if link.Templated {
		return c.expand(link.Href, params)
	}
	return link.Href, nil
}

// Purge removes target from the cache without touching the server.
func (c *Cache) Purge(target any) error {
	key, err := c.key("purge", target)
	if err != nil {
		return err
	}
	c.purge(key)
	return nil
}

// PurgeAll empties the cache.
func (c *Cache) PurgeAll() {
	c.store.PurgeAll()
}

// IsUnknown reports whether u has never been requested or was purged.
func (c *Cache) IsUnknown(u string) bool {
	return !c.store.Has(uri.Normalize(u, c.opts.BaseURL))
}

// Len returns the number of cached entries, loading ones included.
func (c *Cache) Len() int {
	return c.store.Len()
}

// load is the single entry point deciding between the cached entry, a
// request already in flight and a new request.
func (c *Cache) load(key string, force bool) *future.Future[*store.Entry] {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.store.Get(key)
	switch {
	case ok && e.Meta.Loading:
		c.log.Debug().Str("uri", key).Msg("joining request in flight")
		return e.Load

	case ok && force && e.Meta.Reloading:
		c.log.Debug().Str("uri", key).Msg("joining reload in flight")
		if f, running := c.reloads[key]; running {
			return f
		}
		return e.Load

	case !ok:
		f := future.New[*store.Entry]()
		c.store.AddEmpty(key, f)
		go c.fetch(key, opFetch, f)
		return f

	case force:
		f := future.New[*store.Entry]()
		old := e
		// Readers of the stored future see the old data if the reload fails.
		// Callers forcing the reload share f and get the error.
		c.reloads[key] = f
		c.store.MarkReloading(key, future.Catch(f, func(error) *store.Entry {
			if cur, ok := c.store.Get(key); ok {
				return cur
			}
			return old
		}))
		go c.fetch(key, opReload, f)
		return f
	}

	return e.Load
}

// reload forces a fetch of key. Embedded collections are reloaded through
// the entity that embeds them.
func (c *Cache) reload(key string) *future.Future[*store.Entry] {
	e, ok := c.store.Get(key)
	if !ok || !e.Meta.Virtual {
		return c.load(key, true)
	}

	owner, rel := e.Meta.Owner, e.Meta.Relation
	return future.Then(c.load(owner, true), func(o *store.Entry) (*store.Entry, error) {
		link, ok := o.Links[rel]
		if !ok {
			return nil, &NotARelationError{Relation: rel, Self: owner, Value: o.Fields[rel]}
		}
		v, ok := c.store.Get(link.Href)
		if !ok {
			return nil, fmt.Errorf("%s %q: relation %q points at %q which is not cached", opReload, owner, rel, link.Href)
		}
		return v, nil
	})
}

func (c *Cache) fetch(key, op string, f *future.Future[*store.Entry]) {
	if op == opReload {
		defer c.reloadDone(key, f)
	}
	e, err := c.fetchEntry(key, op)
	if err != nil {
		if op == opReload {
			c.store.ReloadingFailed(key)
		} else {
			c.store.PurgeLoading(key)
		}
		f.Reject(err)
		return
	}
	f.Resolve(e)
}

// reloadDone forgets f unless a newer reload of key already replaced it.
func (c *Cache) reloadDone(key string, f *future.Future[*store.Entry]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reloads[key] == f {
		delete(c.reloads, key)
	}
}

// fetchEntry GETs key and stores the response. A key with a fragment
// addresses an embedded collection and is served by fetching its owner.
func (c *Cache) fetchEntry(key, op string) (*store.Entry, error) {
	target := uri.StripFragment(key)

	c.log.Debug().Str("op", op).Str("uri", target).Msg("request")
	resp, err := c.transport.Get(c.opts.Context, c.url(target))
	if err = classify(op, target, resp, err); err != nil {
		c.heal(err)
		return nil, err
	}
	return c.storeEntry(key, resp.Body, op)
}

// storeEntry stores the document in body, which was requested as key, and
// returns the settled entry for key.
func (c *Cache) storeEntry(key string, body []byte, op string) (*store.Entry, error) {
	if _, err := c.storeDocument(body, uri.StripFragment(key), true); err != nil {
		return nil, fmt.Errorf("%s %q: %w", op, key, err)
	}
	e, ok := c.store.Get(key)
	if !ok || e.Meta.Loading {
		return nil, fmt.Errorf("%s %q: response does not contain the requested resource", op, key)
	}
	return e, nil
}

// storeDocument normalizes a HAL document into the store and returns the key
// of its root entity. Documents fetched by key are given that key as self
// link when WithForceRequestedSelfLink is set; the API root always is.
func (c *Cache) storeDocument(body []byte, requested string, byKey bool) (string, error) {
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return "", fmt.Errorf("decode document: %w", err)
	}
	if doc == nil {
		return "", errors.New("decode document: not an object")
	}

	if byKey && (c.opts.ForceRequestedSelfLink || requested == "") {
		hal.SetSelfHref(doc, requested)
	}

	self, entries, err := c.hal.Normalize(doc)
	if err != nil {
		return "", err
	}
	c.store.Add(entries)
	return self, nil
}

// deleted reloads every entry referencing key and then purges key. Entries
// already being deleted are skipped, which is what ends cycles; a cascade
// for a key that is already running is not started twice.
func (c *Cache) deleted(key string) {
	if _, running := c.cascades.LoadOrStore(key, struct{}{}); running {
		return
	}
	defer c.cascades.Delete(key)

	refs := c.referencing(key)
	c.log.Debug().Str("uri", key).Strs("referencing", refs).Msg("cascade")
	c.cascade(key, refs)
	c.purge(key)
}

func (c *Cache) url(key string) string {
	return uri.Join(c.opts.BaseURL, key)
}

func (c *Cache) isVirtual(key string) bool {
	e, ok := c.store.Get(key)
	return ok && e.Meta.Virtual
}

// purge removes key together with the embedded collections it owns.
func (c *Cache) purge(key string) {
	c.store.Purge(key)
	for k, e := range c.store.Entries() {
		if e.Meta.Virtual && e.Meta.Owner == key {
			c.store.Purge(k)
		}
	}
}

// key resolves a target to its store key.
func (c *Cache) key(op string, target any) (string, error) {
	switch t := target.(type) {
	case string:
		return uri.Normalize(t, c.opts.BaseURL), nil
	case Link:
		if t.Templated {
			return "", &NotAnEntityError{Op: op, Value: t.Href}
		}
		return uri.Normalize(t.Href, c.opts.BaseURL), nil
	case *Link:
		if t == nil {
			return "", &NotAnEntityError{Op: op, Value: t}
		}
		return c.key(op, *t)
	case *placeholder:
		if t == nil || !t.known {
			return "", &NotAnEntityError{Op: op, Value: t}
		}
		return t.self, nil
	case *entity:
		if t == nil || t.e == nil {
			return "", &NotAnEntityError{Op: op, Value: target}
		}
		return t.e.Meta.Self, nil
	case View:
		if t == nil {
			return "", &NotAnEntityError{Op: op, Value: t}
		}
		return uri.Normalize(t.Self(), c.opts.BaseURL), nil
	default:
		return "", &NotAnEntityError{Op: op, Value: target}
	}
}

func encodeBody(data any) ([]byte, error) {
	switch d := data.(type) {
	case nil:
		return nil, nil
	case []byte:
		return d, nil
	case json.RawMessage:
		return d, nil
	default:
		return json.Marshal(d)
	}
}

// classify turns a transport result into the error reported for op.
func classify(op, key string, resp *Response, err error) error {
	if err != nil {
		return &TransportError{Op: op, URI: key, Err: err}
	}
	if resp == nil {
		return &TransportError{Op: op, URI: key, Err: errors.New("no response")}
	}
	if resp.Status >= http.StatusBadRequest {
		return &ServerError{Op: op, URI: key, Status: resp.Status, Body: resp.Body}
	}
	return nil
}

// heal reacts to a server saying a resource is gone by running the same
// cascade a successful delete does.
func (c *Cache) heal(err error) {
	var se *ServerError
	if !errors.As(err, &se) || !se.Gone() {
		return
	}
	c.log.Info().Str("uri", se.URI).Int("status", se.Status).Msg("resource is gone, cascading")
	c.store.MarkDeleting(se.URI)
	c.deleted(se.URI)
}
