package store

import (
	"log/slog"

	"github.com/jacentio/nestdoc/backend"
	"github.com/jacentio/nestdoc/backend/firestoredb"
)

// DefaultMaxRetries is the retry budget used when MAX_RETRIES is unset.
const DefaultMaxRetries = 3

type options struct {
	source        Source
	logger        *slog.Logger
	dialer        backend.Dialer
	maxRetries    int
	defaultScopes func() []string
}

// Option configures New.
type Option interface {
	apply(*options)
}

type optionFunc func(*options)

func (f optionFunc) apply(o *options) {
	f(o)
}

// WithSource sets the configuration source. Defaults to the process environment.
func WithSource(src Source) Option {
	return optionFunc(func(o *options) {
		o.source = src
	})
}

// WithLogger sets the logger. A nil logger means slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return optionFunc(func(o *options) {
		o.logger = logger
	})
}

// WithDialer opens the backend with d instead of the one named by BACKEND.
func WithDialer(d backend.Dialer) Option {
	return optionFunc(func(o *options) {
		o.dialer = d
	})
}

// WithDefaultMaxRetries sets the retry budget used when MAX_RETRIES is unset.
func WithDefaultMaxRetries(n int) Option {
	return optionFunc(func(o *options) {
		o.maxRetries = n
	})
}

// WithDefaultScopes sets the provider of the scopes used when SCOPES is unset.
func WithDefaultScopes(f func() []string) Option {
	return optionFunc(func(o *options) {
		o.defaultScopes = f
	})
}

func newOptions(opts []Option) *options {
	o := &options{
		source:        Env{},
		maxRetries:    DefaultMaxRetries,
		defaultScopes: firestoredb.DefaultScopes,
	}
	for _, opt := range opts {
		opt.apply(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}
