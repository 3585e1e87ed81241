package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"nickandperla.net/scrap/internal/expr"
	"nickandperla.net/scrap/internal/flat"
	"nickandperla.net/scrap/internal/hash"
	"nickandperla.net/scrap/internal/parser"
	"nickandperla.net/scrap/internal/value"
)

func parse(t *testing.T, src string) expr.Node {
	t.Helper()
	n, err := parser.Parse(src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return n
}

func testBackend(t *testing.T, b Backend) {
	h := hash.Hash{1, 2, 3}

	_, ok, err := b.Get(h)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if ok {
		t.Fatalf("expected no entry")
	}

	stored, err := b.Put(h, []byte("first"))
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if !stored {
		t.Errorf("expected first Put to store")
	}

	stored, err = b.Put(h, []byte("second"))
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if stored {
		t.Errorf("expected second Put to be a no-op")
	}

	got, ok, err := b.Get(h)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !ok || string(got) != "first" {
		t.Errorf("expected 'first', got %q", got)
	}

	n, err := b.Len()
	if err != nil {
		t.Fatalf("Len failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 entry, got %d", n)
	}
}

func TestMemoryStore(t *testing.T) {
	s := NewMemory()
	defer s.Close()
	testBackend(t, s)
}

func TestSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scrap-test.db")

	s, err := NewSQLite(path)
	if err != nil {
		t.Fatalf("Failed to create SQLite store: %v", err)
	}
	testBackend(t, s)

	// Close and reopen to verify persistence
	s.Close()

	s2, err := NewSQLite(path)
	if err != nil {
		t.Fatalf("Failed to reopen SQLite store: %v", err)
	}
	defer s2.Close()

	got, ok, err := s2.Get(hash.Hash{1, 2, 3})
	if err != nil {
		t.Fatalf("Get after reopen failed: %v", err)
	}
	if !ok || string(got) != "first" {
		t.Errorf("expected 'first' after reopen, got %q", got)
	}

	version, err := s2.Version()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if version != SchemaVersion {
		t.Errorf("expected schema version %d, got %d", SchemaVersion, version)
	}
}

func TestSQLiteRejectsUnknownSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scrap-test.db")
	s, err := NewSQLite(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.setVersion(99); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s.Close()

	if _, err := NewSQLite(path); err == nil {
		t.Fatalf("expected schema version error")
	}
}

func TestPutIsIdempotentAcrossRenaming(t *testing.T) {
	s := New(NewMemory())
	h1, err := s.Put(parse(t, "x -> x"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h2, err := s.Put(parse(t, "y -> y"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("alpha-equivalent terms got different hashes %s and %s", h1, h2)
	}

	n, ok, err := s.Lookup(h1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatalf("expected entry for %s", h1)
	}
	if n.String() != "x -> x" {
		t.Errorf("expected the first stored spelling, got %s", n)
	}
	if count, _ := s.Len(); count != 1 {
		t.Errorf("expected 1 entry, got %d", count)
	}
}

func TestPutRejectsOpenTerms(t *testing.T) {
	s := New(NewMemory())
	_, err := s.Put(parse(t, "x -> x + y"))
	var open *OpenTermError
	if !errors.As(err, &open) {
		t.Fatalf("expected OpenTermError, got %v", err)
	}
	if len(open.Free) != 1 || open.Free[0] != "y" {
		t.Errorf("unexpected free names %v", open.Free)
	}

	if _, err := s.Put(parse(t, "$$add 1")); err != nil {
		t.Errorf("builtins are not free: %v", err)
	}
	if _, err := s.Put(parse(t, "1 : int")); err != nil {
		t.Errorf("type annotations are not free: %v", err)
	}
}

type fetcherFunc func(ctx context.Context, h hash.Hash) ([]byte, error)

func (f fetcherFunc) Fetch(ctx context.Context, h hash.Hash) ([]byte, error) { return f(ctx, h) }

func encode(t *testing.T, n expr.Node) []byte {
	t.Helper()
	b, err := flat.Encode(n)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return b
}

func TestResolveFetchesAndCaches(t *testing.T) {
	term := parse(t, "[1, 2, 3]")
	want := hash.Sum(term)
	data := encode(t, term)
	var calls int32
	reg := prometheus.NewRegistry()
	s := New(NewMemory(), WithRegisterer(reg), WithFetcher(fetcherFunc(func(ctx context.Context, h hash.Hash) ([]byte, error) {
		atomic.AddInt32(&calls, 1)
		if h != want {
			return nil, ErrNotFound
		}
		return data, nil
	})))

	for i := 0; i < 2; i++ {
		n, err := s.Resolve(context.Background(), want)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n.String() != "[1, 2, 3]" {
			t.Errorf("unexpected term %s", n)
		}
	}
	if calls != 1 {
		t.Errorf("expected 1 fetch, got %d", calls)
	}
	if got := testutil.ToFloat64(s.metrics.hits); got != 1 {
		t.Errorf("expected 1 hit, got %v", got)
	}
	if got := testutil.ToFloat64(s.metrics.misses); got != 1 {
		t.Errorf("expected 1 miss, got %v", got)
	}

	_, err := s.Resolve(context.Background(), hash.Hash{9})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestResolveRejectsMismatch(t *testing.T) {
	want := hash.Sum(parse(t, "1"))
	wrong := encode(t, parse(t, "2"))
	s := New(NewMemory(), WithFetcher(fetcherFunc(func(ctx context.Context, h hash.Hash) ([]byte, error) {
		return wrong, nil
	})))

	_, err := s.Resolve(context.Background(), want)
	if !errors.Is(err, ErrHashMismatch) {
		t.Fatalf("expected ErrHashMismatch, got %v", err)
	}
	if _, ok, _ := s.Lookup(want); ok {
		t.Errorf("mismatched data was cached")
	}
	if got := testutil.ToFloat64(s.metrics.fetchFailures); got != 1 {
		t.Errorf("expected 1 fetch failure, got %v", got)
	}
}

func TestResolveHonoursDeadline(t *testing.T) {
	s := New(NewMemory(), WithFetcher(fetcherFunc(func(ctx context.Context, h hash.Hash) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := s.Resolve(ctx, hash.Hash{4})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestResolveOutlivesFirstCaller(t *testing.T) {
	term := parse(t, `"late"`)
	want := hash.Sum(term)
	data := encode(t, term)
	started := make(chan struct{})
	release := make(chan struct{})
	fetchErr := make(chan error, 2)
	var once sync.Once
	s := New(NewMemory(), WithFetcher(fetcherFunc(func(ctx context.Context, h hash.Hash) ([]byte, error) {
		once.Do(func() { close(started) })
		<-release
		fetchErr <- ctx.Err()
		return data, ctx.Err()
	})))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	first := make(chan error, 1)
	go func() {
		_, err := s.Resolve(ctx, want)
		first <- err
	}()
	<-started
	if err := <-first; !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	second := make(chan error, 1)
	go func() {
		_, err := s.Resolve(context.Background(), want)
		second <- err
	}()
	close(release)
	if err := <-fetchErr; err != nil {
		t.Errorf("shared fetch was cancelled with its first caller: %v", err)
	}
	if err := <-second; err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if _, ok, _ := s.Lookup(want); !ok {
		t.Errorf("fetched scrap was not stored")
	}
}

func TestResolveUsesStoreTimeout(t *testing.T) {
	s := New(NewMemory(), WithFetchTimeout(10*time.Millisecond), WithFetcher(fetcherFunc(func(ctx context.Context, h hash.Hash) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})))

	_, err := s.Resolve(context.Background(), hash.Hash{5})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestResolveSharesConcurrentFetches(t *testing.T) {
	term := parse(t, `"shared"`)
	want := hash.Sum(term)
	data := encode(t, term)
	release := make(chan struct{})
	var calls int32
	s := New(NewMemory(), WithFetcher(fetcherFunc(func(ctx context.Context, h hash.Hash) ([]byte, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return data, nil
	})))

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Resolve(context.Background(), want)
			errs <- err
		}()
	}
	// Give the goroutines time to join the in-flight fetch.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if calls > 8 || calls < 1 {
		t.Errorf("unexpected fetch count %d", calls)
	}
	if n, _ := s.Len(); n != 1 {
		t.Errorf("expected 1 stored entry, got %d", n)
	}
}

func TestMemoize(t *testing.T) {
	s := New(NewMemory())
	h := hash.Hash{7}
	if _, ok := s.Memoized(h); ok {
		t.Fatalf("unexpected memo entry")
	}
	s.Memoize(h, value.NewInt(1))
	s.Memoize(h, value.NewInt(2))
	v, ok := s.Memoized(h)
	if !ok {
		t.Fatalf("expected memo entry")
	}
	if v.String() != "1" {
		t.Errorf("expected the first memoized value, got %s", v)
	}
}
