package halcache

import (
	"context"

	"github.com/rs/zerolog"
)

// FetchStrategy decides how a collection with unloaded items is resolved.
type FetchStrategy int

const (
	// AvoidNPlusOne reloads the collection (or the entity embedding it) once
	// instead of fetching every item.
	AvoidNPlusOne FetchStrategy = iota
	// PerItemFetch fetches each unloaded item on its own.
	PerItemFetch
)

func (s FetchStrategy) String() string {
	switch s {
	case AvoidNPlusOne:
		return "avoid-n+1"
	case PerItemFetch:
		return "per-item"
	default:
		return "unknown"
	}
}

// DefaultConcurrency bounds the reloads a single cascade runs in parallel.
const DefaultConcurrency = 4

// Options configures a Cache.
type Options struct {
	BaseURL                string
	FetchStrategy          FetchStrategy
	ForceRequestedSelfLink bool
	Logger                 zerolog.Logger
	Concurrency            int
	Context                context.Context
}

// Option is a functional option for configuring New.
type Option func(*Options)

func defaultOptions() *Options {
	return &Options{
		FetchStrategy: AvoidNPlusOne,
		Logger:        zerolog.Nop(),
		Concurrency:   DefaultConcurrency,
		Context:       context.Background(),
	}
}

// WithBaseURL sets the API base. Store keys are URIs with this prefix
// stripped, and requests go to the base joined with the key.
func WithBaseURL(base string) Option {
	return func(o *Options) { o.BaseURL = base }
}

// WithFetchStrategy selects how collections with unloaded items resolve.
func WithFetchStrategy(s FetchStrategy) Option {
	return func(o *Options) { o.FetchStrategy = s }
}

// WithForceRequestedSelfLink stores every fetched document under the URI it
// was requested with, ignoring the self link the server sent.
func WithForceRequestedSelfLink() Option {
	return func(o *Options) { o.ForceRequestedSelfLink = true }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

// WithConcurrency sets the number of parallel reloads during a cascade.
func WithConcurrency(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.Concurrency = n
		}
	}
}

// WithContext sets the context background fetches run under. Cancelling it
// makes outstanding and future fetches fail.
func WithContext(ctx context.Context) Option {
	return func(o *Options) {
		if ctx != nil {
			o.Context = ctx
		}
	}
}

// GetOption configures a single Get.
type GetOption func(*getOptions)

type getOptions struct {
	force bool
}

// WithForceReload makes Get refetch a known entity. The current data keeps
// being served until the reload completes.
func WithForceReload() GetOption {
	return func(o *getOptions) { o.force = true }
}
