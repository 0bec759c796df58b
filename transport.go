package halcache

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/gregjones/httpcache"
)

// Response is what a Transport got back from the server.
type Response struct {
	Status int
	Body   []byte
}

// Transport issues the HTTP requests of a Cache. A non-nil error means no
// response was received. Error statuses are returned as a Response.
type Transport interface {
	Get(ctx context.Context, url string) (*Response, error)
	Post(ctx context.Context, url string, body []byte) (*Response, error)
	Patch(ctx context.Context, url string, body []byte) (*Response, error)
	Delete(ctx context.Context, url string) (*Response, error)
}

// HTTPTransport is a Transport over net/http speaking HAL+JSON.
type HTTPTransport struct {
	http   *http.Client
	header http.Header
}

// TransportOption is a functional option for configuring NewHTTPTransport.
type TransportOption func(*HTTPTransport)

// WithHTTPClient sets the underlying client.
func WithHTTPClient(h *http.Client) TransportOption {
	return func(t *HTTPTransport) { t.http = h }
}

// WithHeader adds a header sent with every request.
func WithHeader(key, value string) TransportOption {
	return func(t *HTTPTransport) { t.header.Add(key, value) }
}

// WithResponseCache keeps cacheable GET responses in memory and revalidates
// them with the server, honouring Cache-Control and ETag headers.
func WithResponseCache() TransportOption {
	return func(t *HTTPTransport) {
		ct := httpcache.NewMemoryCacheTransport()
		if t.http.Transport != nil {
			ct.Transport = t.http.Transport
		}
		client := *t.http
		client.Transport = ct
		t.http = &client
	}
}

func NewHTTPTransport(opts ...TransportOption) *HTTPTransport {
	t := &HTTPTransport{
		http:   http.DefaultClient,
		header: make(http.Header),
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

func (t *HTTPTransport) Get(ctx context.Context, url string) (*Response, error) {
	return t.do(ctx, http.MethodGet, url, nil)
}

func (t *HTTPTransport) Post(ctx context.Context, url string, body []byte) (*Response, error) {
	return t.do(ctx, http.MethodPost, url, body)
}

func (t *HTTPTransport) Patch(ctx context.Context, url string, body []byte) (*Response, error) {
	return t.do(ctx, http.MethodPatch, url, body)
}

func (t *HTTPTransport) Delete(ctx context.Context, url string) (*Response, error) {
	return t.do(ctx, http.MethodDelete, url, nil)
}

func (t *HTTPTransport) do(ctx context.Context, method, url string, body []byte) (*Response, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, r)
	if err != nil {
		return nil, err
	}
	for k, vs := range t.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/hal+json, application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := t.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s %s: %w", method, url, err)
	}
	return &Response{Status: resp.StatusCode, Body: b}, nil
}
