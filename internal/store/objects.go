// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/tliron/commonlog"
	"golang.org/x/sync/singleflight"

	"nickandperla.net/scrap/internal/errwrap"
	"nickandperla.net/scrap/internal/expr"
	"nickandperla.net/scrap/internal/flat"
	"nickandperla.net/scrap/internal/hash"
	"nickandperla.net/scrap/internal/value"
)

// DefaultFetchTimeout bounds a shared fetch unless WithFetchTimeout is set.
const DefaultFetchTimeout = 30 * time.Second

// ErrHashMismatch is returned when fetched data does not hash to the
// requested hash.
var ErrHashMismatch = errors.New("fetched scrap does not match its hash")

// OpenTermError is returned by Put for terms with free variables.
type OpenTermError struct {
	Free []string
}

func (e *OpenTermError) Error() string {
	return fmt.Sprintf("cannot store open term: unbound %s", strings.Join(e.Free, ", "))
}

// Fetcher retrieves flat encoded scraps from elsewhere. It returns
// ErrNotFound when the scrap is unknown.
type Fetcher interface {
	Fetch(ctx context.Context, h hash.Hash) ([]byte, error)
}

// ObjectStore maps canonical hashes to scraps. It layers memoized values
// and a remote fetcher over a Backend.
type ObjectStore struct {
	backend Backend
	fetcher Fetcher
	log     commonlog.Logger
	metrics *metrics
	group   singleflight.Group
	timeout time.Duration

	mu   sync.RWMutex
	memo map[hash.Hash]value.Value
}

// Option configures an ObjectStore.
type Option func(*ObjectStore)

// WithFetcher sets where missing scraps are fetched from.
func WithFetcher(f Fetcher) Option {
	return func(s *ObjectStore) { s.fetcher = f }
}

// WithFetchTimeout bounds a shared fetch. Each Resolve caller is further
// bounded by its own context.
func WithFetchTimeout(d time.Duration) Option {
	return func(s *ObjectStore) { s.timeout = d }
}

// WithRegisterer registers the store metrics with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(s *ObjectStore) { s.metrics = newMetrics(reg) }
}

// WithLogger sets the logger.
func WithLogger(log commonlog.Logger) Option {
	return func(s *ObjectStore) { s.log = log }
}

// New creates an object store over backend.
func New(backend Backend, opts ...Option) *ObjectStore {
	s := &ObjectStore{
		backend: backend,
		log:     commonlog.GetLogger("scrap.store"),
		timeout: DefaultFetchTimeout,
		memo:    make(map[hash.Hash]value.Value),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = newMetrics(nil)
	}
	return s
}

// Put stores n and returns its canonical hash. Storing a term that is
// alpha-equivalent to a stored one keeps the first entry.
func (s *ObjectStore) Put(n expr.Node) (hash.Hash, error) {
	if free := expr.FreeVars(n); len(free) > 0 {
		return hash.Hash{}, &OpenTermError{Free: free}
	}
	data, err := flat.Encode(n)
	if err != nil {
		return hash.Hash{}, err
	}
	h := hash.Sum(n)
	stored, err := s.backend.Put(h, data)
	if err != nil {
		return hash.Hash{}, err
	}
	if stored {
		s.log.Debugf("stored %s (%d bytes)", h, len(data))
	}
	return h, nil
}

// Lookup returns the locally stored scrap for h.
func (s *ObjectStore) Lookup(h hash.Hash) (expr.Node, bool, error) {
	data, ok, err := s.backend.Get(h)
	if err != nil || !ok {
		return nil, false, err
	}
	n, err := flat.Decode(data)
	if err != nil {
		return nil, false, errwrap.Wrapf(err, "decode %s", h)
	}
	return n, true, nil
}

// Data returns the stored flat encoding for h.
func (s *ObjectStore) Data(h hash.Hash) ([]byte, bool, error) {
	return s.backend.Get(h)
}

// Memoize records the evaluated value of the scrap h.
func (s *ObjectStore) Memoize(h hash.Hash, v value.Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.memo[h]; !ok {
		s.memo[h] = v
	}
}

// Memoized returns the value recorded by Memoize.
func (s *ObjectStore) Memoized(h hash.Hash) (value.Value, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.memo[h]
	if ok {
		s.metrics.memoHits.Inc()
	}
	return v, ok
}

// Resolve returns the scrap for h, fetching and verifying it if it is not
// stored locally. Concurrent resolutions of the same hash share one fetch.
func (s *ObjectStore) Resolve(ctx context.Context, h hash.Hash) (expr.Node, error) {
	s.metrics.lookups.Inc()
	n, ok, err := s.Lookup(h)
	if err != nil {
		return nil, err
	}
	if ok {
		s.metrics.hits.Inc()
		return n, nil
	}
	s.metrics.misses.Inc()
	if s.fetcher == nil {
		return nil, ErrNotFound
	}

	// The fetch is shared, so it must outlive any one caller's deadline.
	ch := s.group.DoChan(h.Hex(), func() (interface{}, error) {
		fctx := context.WithoutCancel(ctx)
		if s.timeout > 0 {
			var cancel context.CancelFunc
			fctx, cancel = context.WithTimeout(fctx, s.timeout)
			defer cancel()
		}
		return s.fetch(fctx, h)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(expr.Node), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *ObjectStore) fetch(ctx context.Context, h hash.Hash) (expr.Node, error) {
	s.metrics.fetches.Inc()
	s.log.Infof("fetching %s", h)
	data, err := s.fetcher.Fetch(ctx, h)
	if err != nil {
		s.metrics.fetchFailures.Inc()
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, errwrap.Wrapf(err, "fetch %s", h)
	}
	n, err := flat.Decode(data)
	if err != nil {
		s.metrics.fetchFailures.Inc()
		return nil, errwrap.Wrapf(err, "decode fetched %s", h)
	}
	if got := hash.Sum(n); got != h {
		s.metrics.fetchFailures.Inc()
		s.log.Warningf("fetched %s hashes to %s", h, got)
		return nil, fmt.Errorf("%w: wanted %s, got %s", ErrHashMismatch, h, got)
	}
	if free := expr.FreeVars(n); len(free) > 0 {
		s.metrics.fetchFailures.Inc()
		return nil, &OpenTermError{Free: free}
	}
	if _, err := s.backend.Put(h, data); err != nil {
		return nil, err
	}
	return n, nil
}

// Len returns the number of locally stored scraps.
func (s *ObjectStore) Len() (int, error) {
	return s.backend.Len()
}

// Close closes the backend.
func (s *ObjectStore) Close() error {
	return s.backend.Close()
}
