package halcache

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reply struct {
	status int
	body   string
	err    error
}

type fakeTransport struct {
	mu      sync.Mutex
	replies map[string][]reply
	gates   map[string]chan struct{}
	calls   map[string]int
	bodies  map[string][]byte
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		replies: make(map[string][]reply),
		gates:   make(map[string]chan struct{}),
		calls:   make(map[string]int),
		bodies:  make(map[string][]byte),
	}
}

// on queues a reply for method and url. The last queued reply is repeated.
func (f *fakeTransport) on(method, url string, status int, body string) *fakeTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := method + " " + url
	f.replies[k] = append(f.replies[k], reply{status: status, body: body})
	return f
}

func (f *fakeTransport) fail(method, url string, err error) *fakeTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := method + " " + url
	f.replies[k] = append(f.replies[k], reply{err: err})
	return f
}

// gate holds requests for method and url until the returned func is called.
func (f *fakeTransport) gate(method, url string) func() {
	ch := make(chan struct{})
	f.mu.Lock()
	f.gates[method+" "+url] = ch
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.gates, method+" "+url)
			f.mu.Unlock()
			close(ch)
		})
	}
}

func (f *fakeTransport) count(method, url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method+" "+url]
}

func (f *fakeTransport) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *fakeTransport) do(ctx context.Context, method, url string, body []byte) (*Response, error) {
	k := method + " " + url
	f.mu.Lock()
	f.calls[k]++
	f.bodies[k] = body
	gate := f.gates[k]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	queue := f.replies[k]
	if len(queue) == 0 {
		return &Response{Status: http.StatusNotFound}, nil
	}
	r := queue[0]
	if len(queue) > 1 {
		f.replies[k] = queue[1:]
	}
	if r.err != nil {
		return nil, r.err
	}
	return &Response{Status: r.status, Body: []byte(r.body)}, nil
}

func (f *fakeTransport) Get(ctx context.Context, url string) (*Response, error) {
	return f.do(ctx, http.MethodGet, url, nil)
}

func (f *fakeTransport) Post(ctx context.Context, url string, body []byte) (*Response, error) {
	return f.do(ctx, http.MethodPost, url, body)
}

func (f *fakeTransport) Patch(ctx context.Context, url string, body []byte) (*Response, error) {
	return f.do(ctx, http.MethodPatch, url, body)
}

func (f *fakeTransport) Delete(ctx context.Context, url string) (*Response, error) {
	return f.do(ctx, http.MethodDelete, url, nil)
}

func await[T any](t *testing.T, f *Future[T]) (T, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	v, err := f.Await(ctx)
	require.NotErrorIs(t, err, context.DeadlineExceeded, "future did not settle")
	return v, err
}

func mustAwait[T any](t *testing.T, f *Future[T]) T {
	t.Helper()
	v, err := await(t, f)
	require.NoError(t, err)
	return v
}

func get(t *testing.T, c *Cache, target any) View {
	t.Helper()
	v, err := c.Get(target)
	require.NoError(t, err)
	return v
}

func loaded(t *testing.T, c *Cache, target any) View {
	t.Helper()
	return mustAwait(t, get(t, c, target).Load())
}

func field(t *testing.T, v View, name string) any {
	t.Helper()
	f, ok := v.Field(name)
	require.True(t, ok, "field %q missing on %s", name, v.Self())
	return f
}

const booksDoc = `{
	"_links": {"self": {"href": "/books"}},
	"_embedded": {"items": [
		{"title": "Dune", "_links": {"self": {"href": "/books/1"}}},
		{"title": "Emma", "_links": {"self": {"href": "/books/2"}}}
	]}
}`

const booksWithoutFirstDoc = `{
	"_links": {"self": {"href": "/books"}},
	"_embedded": {"items": [
		{"title": "Emma", "_links": {"self": {"href": "/books/2"}}}
	]}
}`

func TestGetUnknownReturnsPlaceholder(t *testing.T) {
	ft := newFakeTransport().on("GET", "/books/1", 200, `{"title": "Dune", "_links": {"self": {"href": "/books/1"}}}`)
	release := ft.gate("GET", "/books/1")
	c := New(ft)

	v := get(t, c, "/books/1")
	assert.Equal(t, KindPlaceholder, v.Kind())
	assert.Equal(t, "", v.String())
	assert.Equal(t, "/books/1", v.Self())
	assert.True(t, v.Meta().Loading)
	assert.False(t, c.IsUnknown("/books/1"))

	b, err := v.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(b))

	release()
	book := mustAwait(t, v.Load())
	assert.Equal(t, KindEntity, book.Kind())
	assert.Equal(t, "Dune", field(t, book, "title"))
	assert.Equal(t, "/books/1", book.String())

	assert.Equal(t, KindEntity, get(t, c, "/books/1").Kind())
}

func TestGetCoalescesRequests(t *testing.T) {
	ft := newFakeTransport().on("GET", "/camps/1", 200, `{"id": 1, "_links": {"self": {"href": "/camps/1"}}}`)
	release := ft.gate("GET", "/camps/1")
	c := New(ft)

	a := get(t, c, "/camps/1")
	b := get(t, c, "/camps/1?")
	release()

	va := mustAwait(t, a.Load())
	vb := mustAwait(t, b.Load())
	assert.Equal(t, va.Self(), vb.Self())
	assert.Equal(t, 1, ft.count("GET", "/camps/1"))

	// A settled entity is served from the cache.
	get(t, c, "/camps/1")
	assert.Equal(t, 1, ft.count("GET", "/camps/1"))
}

func TestReloadCoalescesRequests(t *testing.T) {
	ft := newFakeTransport().
		on("GET", "/camps", 200, `{"id": 1, "_links": {"self": {"href": "/camps"}}}`).
		on("GET", "/camps", 200, `{"id": 2, "_links": {"self": {"href": "/camps"}}}`)
	c := New(ft)
	loaded(t, c, "/camps")

	release := ft.gate("GET", "/camps")
	first := c.Reload("/camps")
	second := c.Reload("/camps")
	release()

	assert.Equal(t, float64(2), field(t, mustAwait(t, first), "id"))
	assert.Equal(t, float64(2), field(t, mustAwait(t, second), "id"))
	assert.Equal(t, 2, ft.count("GET", "/camps"))
}

func TestReloadFailureReachesEveryCaller(t *testing.T) {
	ft := newFakeTransport().
		on("GET", "/camps", 200, `{"id": 1, "_links": {"self": {"href": "/camps"}}}`).
		on("GET", "/camps", 500, ``).
		on("GET", "/camps", 200, `{"id": 3, "_links": {"self": {"href": "/camps"}}}`)
	c := New(ft)
	loaded(t, c, "/camps")

	release := ft.gate("GET", "/camps")
	first := c.Reload("/camps")
	second := c.Reload("/camps")
	reading := get(t, c, "/camps").Load()
	release()

	_, err1 := await(t, first)
	_, err2 := await(t, second)
	require.Error(t, err1)
	assert.Equal(t, err1, err2)
	assert.Equal(t, 2, ft.count("GET", "/camps"))

	// Plain readers keep the old data.
	assert.Equal(t, float64(1), field(t, mustAwait(t, reading), "id"))

	// A later reload starts a new request.
	assert.Equal(t, float64(3), field(t, mustAwait(t, c.Reload("/camps")), "id"))
	assert.Equal(t, 3, ft.count("GET", "/camps"))
}

func TestReloadServesOldDataUntilDone(t *testing.T) {
	ft := newFakeTransport().
		on("GET", "/camps", 200, `{"id": 1, "_links": {"self": {"href": "/camps"}}}`).
		on("GET", "/camps", 200, `{"id": 2, "_links": {"self": {"href": "/camps"}}}`)
	c := New(ft)
	loaded(t, c, "/camps")

	release := ft.gate("GET", "/camps")
	reload := c.Reload("/camps")

	during := get(t, c, "/camps")
	assert.Equal(t, KindEntity, during.Kind())
	assert.Equal(t, float64(1), field(t, during, "id"))
	assert.True(t, during.Meta().Reloading)

	release()
	assert.Equal(t, float64(2), field(t, mustAwait(t, reload), "id"))
	assert.Equal(t, float64(2), field(t, mustAwait(t, during.Load()), "id"))

	after := get(t, c, "/camps")
	assert.Equal(t, float64(2), field(t, after, "id"))
	assert.False(t, after.Meta().Reloading)
}

func TestGetWithForceReload(t *testing.T) {
	ft := newFakeTransport().
		on("GET", "/camps", 200, `{"id": 1, "_links": {"self": {"href": "/camps"}}}`).
		on("GET", "/camps", 200, `{"id": 2, "_links": {"self": {"href": "/camps"}}}`)
	c := New(ft)
	loaded(t, c, "/camps")

	v, err := c.Get("/camps", WithForceReload())
	require.NoError(t, err)
	assert.Equal(t, float64(1), field(t, v, "id"))
	assert.Equal(t, float64(2), field(t, mustAwait(t, v.Load()), "id"))
}

func TestReloadFailureKeepsData(t *testing.T) {
	ft := newFakeTransport().
		on("GET", "/camps", 200, `{"id": 1, "_links": {"self": {"href": "/camps"}}}`).
		on("GET", "/camps", 500, `oops`)
	c := New(ft)
	loaded(t, c, "/camps")

	_, err := await(t, c.Reload("/camps"))
	var se *ServerError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 500, se.Status)
	assert.Equal(t, []byte("oops"), se.Body)
	assert.EqualError(t, err, `error trying to reload "/camps": 500 Internal Server Error`)

	v := get(t, c, "/camps")
	assert.Equal(t, float64(1), field(t, v, "id"))
	assert.False(t, v.Meta().Reloading)
}

func TestFirstFetchFailureLeavesNothing(t *testing.T) {
	ft := newFakeTransport().on("GET", "/camps", 500, ``)
	c := New(ft)

	_, err := await(t, get(t, c, "/camps").Load())
	require.Error(t, err)
	assert.True(t, c.IsUnknown("/camps"))
	assert.Equal(t, 0, c.Len())
}

func TestErrorClasses(t *testing.T) {
	ft := newFakeTransport().
		on("GET", "/secret", 403, ``).
		fail("GET", "/offline", io.ErrUnexpectedEOF).
		on("GET", "/gone", 404, ``)
	c := New(ft)

	_, err := await(t, get(t, c, "/secret").Load())
	assert.ErrorIs(t, err, ErrForbidden)
	assert.EqualError(t, err, `no permission to fetch "/secret"`)

	_, err = await(t, get(t, c, "/offline").Load())
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Equal(t, "/offline", te.URI)

	_, err = await(t, get(t, c, "/gone").Load())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.EqualError(t, err, `could not fetch "/gone": resource was deleted`)

	_, err = c.Get(42)
	assert.ErrorIs(t, err, ErrNotAnEntity)
	assert.ErrorIs(t, c.Delete(context.Background(), 3.14), ErrNotAnEntity)
	_, err = await(t, c.Reload(nil))
	assert.ErrorIs(t, err, ErrNotAnEntity)

	var missing *entity
	_, err = c.Get(View(missing))
	assert.ErrorIs(t, err, ErrNotAnEntity)
	assert.ErrorIs(t, c.Purge(View(missing)), ErrNotAnEntity)
}

func TestDeletingFiltersItems(t *testing.T) {
	ft := newFakeTransport().
		on("GET", "/books", 200, booksDoc).
		on("GET", "/books", 200, booksWithoutFirstDoc).
		on("DELETE", "/books/1", 204, ``)
	c := New(ft)

	books := loaded(t, c, "/books")
	require.Equal(t, KindCollection, books.Kind())
	require.Equal(t, 2, books.Items().Len())

	release := ft.gate("DELETE", "/books/1")
	done := make(chan error, 1)
	go func() { done <- c.Delete(context.Background(), "/books/1") }()

	require.Eventually(t, func() bool {
		return get(t, c, "/books/1").Meta().Deleting
	}, 2*time.Second, 5*time.Millisecond)

	books = get(t, c, "/books")
	assert.Equal(t, 1, books.Items().Len())
	assert.Equal(t, 2, books.AllItems().Len())
	assert.Equal(t, "/books/2", books.Items().All()[0].Self())

	release()
	require.NoError(t, <-done)

	assert.True(t, c.IsUnknown("/books/1"))
	assert.Equal(t, 2, ft.count("GET", "/books"))
	books = get(t, c, "/books")
	assert.Equal(t, 1, books.AllItems().Len())
}

const shelfDoc = `{"_links": {"self": {"href": "/shelf"}, "books": [{"href": "/books/1"}, {"href": "/books/3"}]}}`

func TestDeletingFiltersLoadingItems(t *testing.T) {
	for _, strategy := range []FetchStrategy{PerItemFetch, AvoidNPlusOne} {
		t.Run(strategy.String(), func(t *testing.T) {
			ft := newFakeTransport().
				on("GET", "/shelf", 200, shelfDoc).
				on("GET", "/books/1", 200, `{"_links": {"self": {"href": "/books/1"}}}`).
				on("GET", "/books/3", 200, `{"_links": {"self": {"href": "/books/3"}}}`).
				on("DELETE", "/books/1", 204, ``)
			c := New(ft, WithFetchStrategy(strategy))
			loaded(t, c, "/books/1")
			loaded(t, c, "/shelf")

			releaseDelete := ft.gate("DELETE", "/books/1")
			done := make(chan error, 1)
			go func() { done <- c.Delete(context.Background(), "/books/1") }()
			require.Eventually(t, func() bool {
				return get(t, c, "/books/1").Meta().Deleting
			}, 2*time.Second, 5*time.Millisecond)

			releaseBook := ft.gate("GET", "/books/3")
			releaseShelf := ft.gate("GET", "/shelf")
			books := get(t, c, "/shelf").Rel("books")
			require.Equal(t, KindCollection, books.Kind())
			items, all := books.Items(), books.AllItems()
			if strategy == PerItemFetch {
				assert.Equal(t, 1, items.Len())
				assert.Equal(t, 2, all.Len())
			}
			releaseShelf()
			releaseBook()

			assert.Equal(t, []string{"/books/3"}, selves(mustAwait(t, items.Load())))
			assert.Equal(t, []string{"/books/1", "/books/3"}, selves(mustAwait(t, all.Load())))

			releaseDelete()
			require.NoError(t, <-done)
			assert.True(t, c.IsUnknown("/books/1"))
		})
	}
}

func TestDeleteFailureClearsDeleting(t *testing.T) {
	ft := newFakeTransport().
		on("GET", "/books/1", 200, `{"_links": {"self": {"href": "/books/1"}}}`).
		on("DELETE", "/books/1", 500, ``)
	c := New(ft)
	loaded(t, c, "/books/1")

	err := c.Delete(context.Background(), "/books/1")
	assert.EqualError(t, err, `error trying to delete "/books/1": 500 Internal Server Error`)

	v := get(t, c, "/books/1")
	assert.False(t, v.Meta().Deleting)
	assert.Equal(t, KindEntity, v.Kind())
}

func TestCascadeDelete(t *testing.T) {
	ft := newFakeTransport().
		on("GET", "/authors/99", 200, `{
			"id": 99,
			"_links": {"self": {"href": "/authors/99"}},
			"_embedded": {"books": [{
				"id": 123,
				"_links": {"self": {"href": "/books/123"}, "author": {"href": "/authors/99"}},
				"_embedded": {"chapters": [{
					"id": 444,
					"_links": {"self": {"href": "/chapters/444"}, "book": {"href": "/books/123"}},
					"_embedded": {"pages": [{
						"id": 1234,
						"_links": {"self": {"href": "/pages/1234"}, "chapter": {"href": "/chapters/444"}}
					}]}
				}]}
			}]}
		}`).
		on("DELETE", "/authors/99", 204, ``).
		on("GET", "/books/123", 404, ``).
		on("GET", "/chapters/444", 404, ``).
		on("GET", "/pages/1234", 404, ``)
	c := New(ft)

	author := loaded(t, c, "/authors/99")
	for _, uri := range []string{"/books/123", "/chapters/444", "/pages/1234"} {
		require.False(t, c.IsUnknown(uri), uri)
	}
	books := mustAwait(t, author.Rel("books").Load())
	require.Equal(t, 1, books.Items().Len())

	require.NoError(t, author.Delete(context.Background()))

	for _, uri := range []string{"/authors/99", "/books/123", "/chapters/444", "/pages/1234"} {
		assert.True(t, c.IsUnknown(uri), uri)
	}
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, 1, ft.count("GET", "/authors/99"))
	assert.Equal(t, 1, ft.count("GET", "/books/123"))
	assert.Equal(t, 1, ft.count("GET", "/chapters/444"))
	assert.Equal(t, 1, ft.count("GET", "/pages/1234"))
}

func TestCircularReferences(t *testing.T) {
	t.Run("referencing entity reloads once", func(t *testing.T) {
		ft := newFakeTransport().
			on("GET", "/a", 200, `{"_links": {"self": {"href": "/a"}, "b": {"href": "/b"}}}`).
			on("GET", "/b", 200, `{"_links": {"self": {"href": "/b"}, "a": {"href": "/a"}}}`).
			on("GET", "/b", 200, `{"_links": {"self": {"href": "/b"}}}`).
			on("DELETE", "/a", 204, ``)
		c := New(ft)
		loaded(t, c, "/a")
		loaded(t, c, "/b")

		require.NoError(t, c.Delete(context.Background(), "/a"))

		assert.True(t, c.IsUnknown("/a"))
		assert.False(t, c.IsUnknown("/b"))
		assert.Equal(t, 1, ft.count("GET", "/a"))
		assert.Equal(t, 2, ft.count("GET", "/b"))
		assert.Empty(t, get(t, c, "/b").Relations())
	})

	t.Run("both gone", func(t *testing.T) {
		ft := newFakeTransport().
			on("GET", "/a", 200, `{"_links": {"self": {"href": "/a"}, "b": {"href": "/b"}}}`).
			on("GET", "/b", 200, `{"_links": {"self": {"href": "/b"}, "a": {"href": "/a"}}}`).
			on("GET", "/b", 404, ``).
			on("DELETE", "/a", 204, ``)
		c := New(ft)
		loaded(t, c, "/a")
		loaded(t, c, "/b")

		require.NoError(t, c.Delete(context.Background(), "/a"))

		assert.Equal(t, 0, c.Len())
		assert.Equal(t, 1, ft.count("GET", "/a"))
		assert.Equal(t, 2, ft.count("GET", "/b"))
	})
}

func TestNotFoundSelfHeals(t *testing.T) {
	ft := newFakeTransport().
		on("GET", "/books", 200, booksDoc).
		on("GET", "/books", 200, booksWithoutFirstDoc).
		on("GET", "/books/1", 404, ``)
	c := New(ft)
	loaded(t, c, "/books")

	_, err := await(t, c.Reload("/books/1"))
	assert.ErrorIs(t, err, ErrNotFound)

	assert.True(t, c.IsUnknown("/books/1"))
	assert.Equal(t, 2, ft.count("GET", "/books"))
	assert.Equal(t, 1, get(t, c, "/books").AllItems().Len())
}

const campLinkedPeriods = `{
	"_links": {
		"self": {"href": "/camps/1"},
		"periods": [{"href": "/periods/1"}, {"href": "/periods/2"}, {"href": "/periods/3"}]
	}
}`

const campEmbeddedPeriods = `{
	"_links": {"self": {"href": "/camps/1"}},
	"_embedded": {"periods": [
		{"n": 1, "_links": {"self": {"href": "/periods/1"}}},
		{"n": 2, "_links": {"self": {"href": "/periods/2"}}},
		{"n": 3, "_links": {"self": {"href": "/periods/3"}}}
	]}
}`

func selves(vs []View) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = v.Self()
	}
	return out
}

func TestItemsFetchStrategy(t *testing.T) {
	want := []string{"/periods/1", "/periods/2", "/periods/3"}

	t.Run("avoid n+1", func(t *testing.T) {
		ft := newFakeTransport().
			on("GET", "/camps/1", 200, campLinkedPeriods).
			on("GET", "/camps/1", 200, campEmbeddedPeriods)
		c := New(ft, WithFetchStrategy(AvoidNPlusOne))

		camp := loaded(t, c, "/camps/1")
		periods := camp.Rel("periods")
		require.Equal(t, KindCollection, periods.Kind())
		assert.True(t, periods.Meta().Virtual)

		items := periods.Items()
		assert.Equal(t, 0, items.Len())
		assert.Equal(t, want, selves(mustAwait(t, items.Load())))

		assert.Equal(t, 2, ft.count("GET", "/camps/1"))
		assert.Equal(t, 2, ft.total())

		// Every member is cached now.
		items = get(t, c, "/camps/1").Rel("periods").Items()
		assert.Equal(t, want, selves(items.All()))
		assert.Equal(t, 2, ft.total())
	})

	t.Run("per item", func(t *testing.T) {
		ft := newFakeTransport().on("GET", "/camps/1", 200, campLinkedPeriods)
		for _, u := range want {
			ft.on("GET", u, 200, `{"_links": {"self": {"href": "`+u+`"}}}`)
		}
		c := New(ft, WithFetchStrategy(PerItemFetch))
		camp := loaded(t, c, "/camps/1")

		var releases []func()
		for _, u := range want {
			releases = append(releases, ft.gate("GET", u))
		}

		items := camp.Rel("periods").Items()
		assert.Equal(t, 3, items.Len())
		for _, v := range items.All() {
			assert.Equal(t, KindPlaceholder, v.Kind())
		}
		for _, release := range releases {
			release()
		}
		assert.Equal(t, want, selves(mustAwait(t, items.Load())))

		assert.Equal(t, 1, ft.count("GET", "/camps/1"))
		for _, u := range want {
			assert.Equal(t, 1, ft.count("GET", u), u)
		}
	})
}

func TestItemsOperations(t *testing.T) {
	ft := newFakeTransport().
		on("GET", "/camps/1", 200, campLinkedPeriods).
		on("GET", "/camps/1", 200, campEmbeddedPeriods)
	c := New(ft)

	items := loaded(t, c, "/camps/1").Rel("periods").Items()

	odd := items.Filter(func(v View) bool {
		n, _ := v.Field("n")
		return n != float64(2)
	})
	assert.Equal(t, []string{"/periods/1", "/periods/3"}, selves(mustAwait(t, odd.Load())))

	second := items.Find(func(v View) bool {
		n, _ := v.Field("n")
		return n == float64(2)
	})
	assert.Equal(t, KindPlaceholder, second.Kind())
	assert.Equal(t, "/periods/2", mustAwait(t, second.Load()).Self())

	_, err := await(t, items.Find(func(View) bool { return false }).Load())
	assert.ErrorIs(t, err, ErrNoMatch)

	doubled := items.FlatMap(func(v View) []View { return []View{v, v} })
	assert.Len(t, mustAwait(t, doubled.Load()), 6)

	settled := get(t, c, "/camps/1").Rel("periods").Items()
	assert.Equal(t, 3, settled.Map(func(v View) View { return v }).Len())
	assert.Equal(t, "/periods/3", settled.Find(func(v View) bool { return v.Self() == "/periods/3" }).Self())
}

func TestPlaceholderChain(t *testing.T) {
	ft := newFakeTransport().
		on("GET", "/", 200, `{"_links": {"self": {"href": "/"}, "book": {"href": "/books/1"}}}`).
		on("GET", "/books/1", 200, `{"title": "Dune", "_links": {"self": {"href": "/books/1"}, "author": {"href": "/authors/9"}}}`).
		on("GET", "/authors/9", 200, `{"name": "Frank", "_links": {"self": {"href": "/authors/9"}}}`)
	release := ft.gate("GET", "/")
	c := New(ft)

	author := c.Root().Rel("book").Rel("author")
	assert.Equal(t, KindPlaceholder, author.Kind())
	assert.Equal(t, "", author.String())
	assert.Equal(t, "", author.Self())
	assert.Equal(t, 0, ft.count("GET", "/books/1"))

	same, err := c.Get(author)
	require.NoError(t, err)
	assert.Same(t, author, same)

	release()
	v := mustAwait(t, author.Load())
	assert.Equal(t, "/authors/9", v.Self())
	assert.Equal(t, "Frank", field(t, v, "name"))
}

func TestPlaceholderItems(t *testing.T) {
	ft := newFakeTransport().
		on("GET", "/", 200, `{"_links": {"self": {"href": "/"}, "books": {"href": "/books"}}}`).
		on("GET", "/books", 200, booksDoc)
	release := ft.gate("GET", "/")
	c := New(ft)

	items := c.Root().Rel("books").Items()
	assert.Equal(t, 0, items.Len())
	titles := items.Map(func(v View) View { return v })

	release()
	assert.Equal(t, []string{"/books/1", "/books/2"}, selves(mustAwait(t, titles.Load())))
}

func TestRelOnPlainField(t *testing.T) {
	ft := newFakeTransport().on("GET", "/books/1", 200, `{"title": "Dune", "_links": {"self": {"href": "/books/1"}}}`)
	c := New(ft)

	// Through a placeholder the error only shows on Load.
	chained := get(t, c, "/books/1").Rel("title")
	_, err := await(t, chained.Load())
	var nr *NotARelationError
	require.ErrorAs(t, err, &nr)
	assert.Equal(t, "Dune", nr.Value)
	assert.ErrorIs(t, err, ErrNotARelation)

	_, err = await(t, get(t, c, "/books/1").Rel("missing").Load())
	assert.ErrorIs(t, err, ErrNotARelation)
}

func TestTemplatedRelation(t *testing.T) {
	ft := newFakeTransport().
		on("GET", "/", 200, `{"_links": {"self": {"href": "/"}, "book": {"href": "/books{/id}{?include}", "templated": true}}}`).
		on("GET", "/books/7", 200, `{"_links": {"self": {"href": "/books/7"}}}`)
	c := New(ft)
	root := mustAwait(t, c.Root().Load())

	book := mustAwait(t, root.Rel("book", Params{"id": 7}).Load())
	assert.Equal(t, "/books/7", book.Self())

	ctx := context.Background()
	href, err := c.ResolveHref(ctx, "", "book", Params{"id": 7, "include": "author"})
	require.NoError(t, err)
	assert.Equal(t, "/books/7?include=author", href)

	href, err = root.Href(ctx, "missing", nil)
	require.NoError(t, err)
	assert.Equal(t, "", href)

	href, err = book.Href(ctx, "book", nil)
	require.NoError(t, err)
	assert.Equal(t, "", href)

	_, err = c.Get(Link{Href: "/books{/id}", Templated: true})
	assert.ErrorIs(t, err, ErrNotAnEntity)
}

func TestCreate(t *testing.T) {
	ft := newFakeTransport().
		on("POST", "/books", 201, `{"title": "New", "_links": {"self": {"href": "/books/5"}}}`).
		on("POST", "/likes", 204, ``)
	c := New(ft)
	ctx := context.Background()

	v, err := c.Create(ctx, "/books", map[string]any{"title": "New"})
	require.NoError(t, err)
	assert.Equal(t, "/books/5", v.Self())
	assert.Equal(t, "New", field(t, v, "title"))
	assert.JSONEq(t, `{"title": "New"}`, string(ft.bodies["POST /books"]))

	v, err = c.Create(ctx, "/likes", nil)
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestUpdate(t *testing.T) {
	ft := newFakeTransport().
		on("PATCH", "/books/9", 200, `{"title": "Renamed", "_links": {"self": {"href": "/books/9"}}}`).
		on("PATCH", "/books/10", 422, `{"title": "invalid"}`)
	c := New(ft)
	ctx := context.Background()

	v, err := c.Update(ctx, "/books/9", map[string]any{"title": "Renamed"})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", field(t, v, "title"))
	assert.False(t, c.IsUnknown("/books/9"))

	_, err = c.Update(ctx, "/books/10", map[string]any{"title": ""})
	var se *ServerError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 422, se.Status)
	assert.True(t, c.IsUnknown("/books/10"))
}

func TestVirtualResources(t *testing.T) {
	ft := newFakeTransport().
		on("GET", "/camps/1", 200, campEmbeddedPeriods).
		on("GET", "/camps/1", 200, campEmbeddedPeriods)
	c := New(ft)
	ctx := context.Background()

	periods := loaded(t, c, "/camps/1").Rel("periods")
	require.Equal(t, "/camps/1#periods", periods.Self())

	assert.ErrorIs(t, periods.Delete(ctx), ErrVirtualResource)
	_, err := periods.Create(ctx, map[string]any{})
	assert.ErrorIs(t, err, ErrVirtualResource)
	_, err = periods.Update(ctx, map[string]any{})
	assert.ErrorIs(t, err, ErrVirtualResource)
	assert.EqualError(t, periods.Delete(ctx), "delete is not implemented for virtual resources")

	reloaded := mustAwait(t, periods.Reload())
	assert.Equal(t, "/camps/1#periods", reloaded.Self())
	assert.Equal(t, 3, reloaded.Items().Len())
	assert.Equal(t, 2, ft.count("GET", "/camps/1"))
	assert.Equal(t, 0, ft.count("GET", "/camps/1#periods"))
}

func TestPurge(t *testing.T) {
	ft := newFakeTransport().on("GET", "/camps/1", 200, campEmbeddedPeriods)
	c := New(ft)
	loaded(t, c, "/camps/1")
	require.False(t, c.IsUnknown("/camps/1#periods"))

	require.NoError(t, c.Purge("/camps/1"))
	assert.True(t, c.IsUnknown("/camps/1"))
	assert.True(t, c.IsUnknown("/camps/1#periods"))
	assert.False(t, c.IsUnknown("/periods/1"))

	assert.ErrorIs(t, c.Purge(42), ErrNotAnEntity)
	assert.Equal(t, 3, c.Len())
	c.PurgeAll()
	assert.Equal(t, 0, c.Len())
}

func TestBaseURL(t *testing.T) {
	ft := newFakeTransport().
		on("GET", "https://api.example.com/api/books/1", 200,
			`{"_links": {"self": {"href": "https://api.example.com/api/books/1"}, "author": {"href": "/api/authors/9"}}}`)
	c := New(ft, WithBaseURL("https://api.example.com/api"))

	book := loaded(t, c, "https://api.example.com/api/books/1")
	assert.Equal(t, "/books/1", book.Self())
	assert.Equal(t, "https://api.example.com/api/books/1", book.SelfURL())
	assert.False(t, c.IsUnknown("/books/1"))

	href, err := book.Href(context.Background(), "author", nil)
	require.NoError(t, err)
	assert.Equal(t, "/authors/9", href)
}

func TestForceRequestedSelfLink(t *testing.T) {
	ft := newFakeTransport().on("GET", "/profile", 200, `{"name": "me", "_links": {"self": {"href": "/users/1"}}}`)
	c := New(ft, WithForceRequestedSelfLink())

	v := loaded(t, c, "/profile")
	assert.Equal(t, "/profile", v.Self())
	assert.True(t, c.IsUnknown("/users/1"))
}

func TestEntityMarshalJSON(t *testing.T) {
	ft := newFakeTransport().on("GET", "/books", 200, booksDoc)
	c := New(ft)

	b, err := loaded(t, c, "/books").MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"items": [{"href": "/books/1"}, {"href": "/books/2"}],
		"_meta": {"self": "/books"}
	}`, string(b))
}

func TestSnapshotRestore(t *testing.T) {
	ft := newFakeTransport().on("GET", "/books", 200, booksDoc)
	c := New(ft)
	loaded(t, c, "/books")

	data, err := c.Snapshot()
	require.NoError(t, err)

	offline := newFakeTransport()
	restored := New(offline)
	require.NoError(t, restored.Restore(data))

	books := get(t, restored, "/books")
	assert.Equal(t, KindCollection, books.Kind())
	assert.Equal(t, []string{"/books/1", "/books/2"}, selves(books.Items().All()))
	assert.Equal(t, "Dune", field(t, get(t, restored, "/books/1"), "title"))
	assert.Equal(t, 0, offline.total())

	assert.Error(t, restored.Restore([]byte("not a snapshot")))
}

func TestContextCancelsFetches(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ft := newFakeTransport().on("GET", "/slow", 200, `{"_links": {"self": {"href": "/slow"}}}`)
	ft.gate("GET", "/slow")
	c := New(ft, WithContext(ctx))

	v := get(t, c, "/slow")
	cancel()

	_, err := await(t, v.Load())
	assert.True(t, errors.Is(err, context.Canceled))
	assert.True(t, c.IsUnknown("/slow"))
}
