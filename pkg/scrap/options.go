// Package scrap provides the public API for the scrapscript interpreter.
package scrap

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"github.com/tliron/commonlog"

	"nickandperla.net/scrap/internal/eval"
	"nickandperla.net/scrap/internal/store"
	"nickandperla.net/scrap/internal/value"
)

// Option configures a Runtime.
type Option func(*Runtime)

// WithSQLiteStore configures SQLite persistence at the given path.
func WithSQLiteStore(path string) Option {
	return func(r *Runtime) {
		s, err := store.NewSQLite(path)
		if err != nil {
			r.err = err
			return
		}
		r.backend = s
	}
}

// WithMemoryStore configures an in-memory store. This is the default.
func WithMemoryStore() Option {
	return func(r *Runtime) {
		r.backend = store.NewMemory()
	}
}

// WithBackend configures a custom store backend.
func WithBackend(b store.Backend) Option {
	return func(r *Runtime) {
		r.backend = b
	}
}

// WithRemote fetches scraps missing from the store from the scrap server
// at url. A zero timeout keeps the client default.
func WithRemote(url string, timeout time.Duration) Option {
	return func(r *Runtime) {
		r.remote = url
		r.remoteTimeout = timeout
	}
}

// WithFetcher fetches missing scraps with f. It takes precedence over
// WithRemote.
func WithFetcher(f store.Fetcher) Option {
	return func(r *Runtime) {
		r.fetcher = f
	}
}

// WithFetchTimeout bounds hash reference resolution and $$fetch.
func WithFetchTimeout(timeout time.Duration) Option {
	return func(r *Runtime) {
		r.fetchTimeout = timeout
	}
}

// WithPrelude sets a custom prelude source to be loaded on startup.
// If not set, the standard prelude is used. The source must be a
// definition group.
func WithPrelude(source string) Option {
	return func(r *Runtime) {
		r.prelude = source
	}
}

// WithNoStdlib disables loading the prelude.
func WithNoStdlib() Option {
	return func(r *Runtime) {
		r.noStdlib = true
	}
}

// WithNative adds a builtin. name must start with "$$".
func WithNative(name string, fn NativeFunc) Option {
	return func(r *Runtime) {
		r.evalOpts = append(r.evalOpts, eval.WithNative(name, fn))
	}
}

// WithLogger sets the logger used by the runtime and its evaluator.
func WithLogger(log commonlog.Logger) Option {
	return func(r *Runtime) {
		r.log = log
	}
}

// WithRegisterer registers the store metrics with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(r *Runtime) {
		r.registerer = reg
	}
}

// WithFs sets the filesystem EvalFile reads from. The default is the OS
// filesystem.
func WithFs(fs afero.Fs) Option {
	return func(r *Runtime) {
		r.fs = fs
	}
}

// Value is a scrapscript value.
type Value = value.Value

// NativeFunc implements a builtin.
type NativeFunc = value.NativeFunc

// Kind classifies evaluation errors.
type Kind = eval.Kind

// KindOf reports the kind of an evaluation error.
func KindOf(err error) (Kind, bool) {
	return eval.KindOf(err)
}
