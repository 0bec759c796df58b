// Package halcache provides a client-side cache for HAL+JSON APIs with lazily
// resolved, placeholder-safe views.
//
// Fetched documents are flattened into one table keyed by canonical URI:
// embedded entities become entries of their own and are referenced from
// where they were embedded. Callers never see that table. They get views
// whose relations fetch on first use, and whose not-yet-fetched parts are
// placeholders that can be chained and rendered before any data arrives.
// Concurrent requests for the same URI share a single fetch.
//
// Basic usage:
//
//	c := halcache.New(halcache.NewHTTPTransport(), halcache.WithBaseURL("https://api.example.com"))
//
//	// Navigate from the API root; nothing blocks here
//	book := c.Root().Rel("books", halcache.Params{"id": 123})
//	author := book.Rel("author")
//
//	// Wait for the chain to settle
//	v, err := author.Load().Await(ctx)
//	fmt.Println(v.Field("name"))
//
//	// Collections
//	books, _ := c.Get("/books")
//	for _, b := range books.Items().All() {
//	    fmt.Println(b.Self())
//	}
//
//	// Writes
//	created, _ := c.Create(ctx, "/books", map[string]any{"title": "New"})
//	c.Update(ctx, created, map[string]any{"title": "Renamed"})
//
//	// Deleting reloads every cached entity that referenced the book
//	c.Delete(ctx, created)
//
// Persisting the cache between runs:
//
//	data, _ := c.Snapshot()
//	other := halcache.New(t)
//	other.Restore(data)
package halcache
