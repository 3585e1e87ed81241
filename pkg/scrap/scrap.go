// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

package scrap

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"github.com/tliron/commonlog"

	"nickandperla.net/scrap/internal/errwrap"
	"nickandperla.net/scrap/internal/eval"
	"nickandperla.net/scrap/internal/expr"
	"nickandperla.net/scrap/internal/flat"
	"nickandperla.net/scrap/internal/hash"
	"nickandperla.net/scrap/internal/parser"
	"nickandperla.net/scrap/internal/provider"
	"nickandperla.net/scrap/internal/stdlib"
	"nickandperla.net/scrap/internal/store"
	"nickandperla.net/scrap/internal/value"
)

// LastResult is the session name bound to the most recent result.
const LastResult = "_"

// Runtime is a scrapscript session. Definitions evaluated with Eval stay
// in scope for later calls. It is safe for concurrent use; calls are
// serialized.
type Runtime struct {
	evaluator *eval.Evaluator
	store     *store.ObjectStore
	backend   store.Backend
	fetcher   store.Fetcher
	fs        afero.Fs
	log       commonlog.Logger

	registerer    prometheus.Registerer
	remote        string
	remoteTimeout time.Duration
	fetchTimeout  time.Duration
	prelude       string
	noStdlib      bool
	evalOpts      []eval.Option

	// err is the first error from an option.
	err error

	mu  sync.Mutex
	env *value.Env
}

// New creates a new runtime with the given options and loads the prelude.
func New(ctx context.Context, opts ...Option) (*Runtime, error) {
	r := &Runtime{
		fs:           afero.NewOsFs(),
		log:          commonlog.GetLogger("scrap"),
		fetchTimeout: eval.DefaultFetchTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.err != nil {
		return nil, r.err
	}
	if r.backend == nil {
		r.backend = store.NewMemory()
	}

	storeOpts := []store.Option{store.WithLogger(r.log), store.WithFetchTimeout(r.fetchTimeout)}
	if r.registerer != nil {
		storeOpts = append(storeOpts, store.WithRegisterer(r.registerer))
	}
	if r.fetcher == nil && r.remote != "" {
		httpOpts := []provider.HTTPOption{provider.WithURL(r.remote)}
		if r.remoteTimeout > 0 {
			httpOpts = append(httpOpts, provider.WithTimeout(r.remoteTimeout))
		}
		r.fetcher = provider.NewHTTP(httpOpts...)
	}
	if r.fetcher != nil {
		storeOpts = append(storeOpts, store.WithFetcher(r.fetcher))
	}
	r.store = store.New(r.backend, storeOpts...)

	evalOpts := []eval.Option{
		eval.WithResolver(r.store),
		eval.WithLogger(r.log),
		eval.WithFetchTimeout(r.fetchTimeout),
	}
	r.evaluator = eval.New(append(evalOpts, r.evalOpts...)...)

	if !r.noStdlib {
		if err := r.loadPrelude(ctx); err != nil {
			return nil, errwrap.Append(err, r.store.Close())
		}
	}
	return r, nil
}

func (r *Runtime) loadPrelude(ctx context.Context) error {
	var (
		n   expr.Node
		err error
	)
	if r.prelude == "" {
		n, err = stdlib.Parse()
	} else {
		n, err = parser.Parse(r.prelude)
	}
	if err != nil {
		return errwrap.Wrapf(err, "cannot parse prelude")
	}
	_, env, err := r.evaluator.Run(ctx, n, nil)
	if err != nil {
		return errwrap.Wrapf(err, "cannot load prelude")
	}
	r.env = env
	return nil
}

// Eval evaluates src in the session scope. A definition extends the scope
// for later calls, and every successful result is bound to _.
func (r *Runtime) Eval(ctx context.Context, src string) (Value, error) {
	n, err := parser.Parse(src)
	if err != nil {
		return nil, err
	}
	return r.EvalNode(ctx, n)
}

// EvalNode is Eval for an already parsed expression.
func (r *Runtime) EvalNode(ctx context.Context, n expr.Node) (Value, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, env, err := r.evaluator.Run(ctx, n, r.env)
	if err != nil {
		return nil, err
	}
	r.env = env.Extend(map[string]value.Value{LastResult: v})
	return v, nil
}

// EvalFile evaluates the program in the file at path.
func (r *Runtime) EvalFile(ctx context.Context, path string) (Value, error) {
	data, err := afero.ReadFile(r.fs, path)
	if err != nil {
		return nil, errwrap.Wrapf(err, "cannot read %s", path)
	}
	return r.Eval(ctx, string(data))
}

// Apply evaluates the program src and applies the resulting function to
// arg, which is parsed and evaluated in the session scope.
func (r *Runtime) Apply(ctx context.Context, src, arg string) (Value, error) {
	fn, err := parser.Parse(src)
	if err != nil {
		return nil, err
	}
	x, err := parser.Parse(arg)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	env := r.env
	r.mu.Unlock()
	return r.evaluator.Eval(ctx, &expr.Apply{At: expr.At{P: fn.Pos()}, Func: fn, Arg: x}, env)
}

// Put stores the closed program src and returns its hash.
func (r *Runtime) Put(src string) (hash.Hash, error) {
	n, err := parser.Parse(src)
	if err != nil {
		return hash.Hash{}, err
	}
	return r.store.Put(n)
}

// Hash returns the canonical hash of the program src.
func (r *Runtime) Hash(src string) (hash.Hash, error) {
	n, err := parser.Parse(src)
	if err != nil {
		return hash.Hash{}, err
	}
	return hash.Sum(n), nil
}

// Flat returns the flat encoding of the program src.
func (r *Runtime) Flat(src string) ([]byte, error) {
	n, err := parser.Parse(src)
	if err != nil {
		return nil, err
	}
	return flat.Encode(n)
}

// Names returns the names in the session scope and the builtins, sorted.
func (r *Runtime) Names() []string {
	r.mu.Lock()
	names := r.env.Names()
	r.mu.Unlock()
	names = append(names, r.evaluator.Natives()...)
	sort.Strings(names)
	return names
}

// Store returns the object store.
func (r *Runtime) Store() *store.ObjectStore {
	return r.store
}

// Close releases resources.
func (r *Runtime) Close() error {
	return r.store.Close()
}
