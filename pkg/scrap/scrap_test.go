package scrap

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"

	"nickandperla.net/scrap/internal/eval"
	"nickandperla.net/scrap/internal/flat"
	"nickandperla.net/scrap/internal/hash"
	"nickandperla.net/scrap/internal/parser"
	"nickandperla.net/scrap/internal/provider"
)

func newRuntime(t *testing.T, opts ...Option) *Runtime {
	t.Helper()
	r, err := New(context.Background(), opts...)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func TestSession(t *testing.T) {
	r := newRuntime(t, WithMemoryStore())
	ctx := context.Background()

	tests := []struct {
		src  string
		want string
	}{
		{"x = 20", "20"},
		{"x + 1", "21"},
		{"_ * 2", "42"},
		{"k = double 1 . double = n -> n * 2 . triple = n -> n * 3", "2"},
		{"triple (double x)", "120"},
		{"map double [1, 2]", "[2, 4]"},
		{"$$add 1 2", "3"},
	}
	for index, tc := range tests {
		v, err := r.Eval(ctx, tc.src)
		if err != nil {
			t.Errorf("test #%d: unexpected error: %v", index, err)
			continue
		}
		if got := v.String(); got != tc.want {
			t.Errorf("test #%d: expected %s, got %s", index, tc.want, got)
		}
	}
}

func TestFailedEvalKeepsScope(t *testing.T) {
	r := newRuntime(t)
	ctx := context.Background()
	if _, err := r.Eval(ctx, "a = 1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := r.Eval(ctx, "a = nope")
	if kind, ok := KindOf(err); !ok || kind != eval.UnboundVariable {
		t.Fatalf("expected UnboundVariable, got %v", err)
	}
	v, err := r.Eval(ctx, "a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.String() != "1" {
		t.Errorf("expected 1, got %s", v)
	}
}

func TestNoStdlibOption(t *testing.T) {
	r := newRuntime(t, WithNoStdlib())
	_, err := r.Eval(context.Background(), "map")
	if kind, ok := KindOf(err); !ok || kind != eval.UnboundVariable {
		t.Errorf("expected UnboundVariable, got %v", err)
	}
}

func TestCustomPrelude(t *testing.T) {
	r := newRuntime(t, WithPrelude("greeting = \"hello world\""))
	v, err := r.Eval(context.Background(), "greeting")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.String() != `"hello world"` {
		t.Errorf("expected the custom prelude, got %s", v)
	}
	if _, err := r.Eval(context.Background(), "map"); err == nil {
		t.Errorf("expected the standard prelude to be replaced")
	}
}

func TestBadPrelude(t *testing.T) {
	if _, err := New(context.Background(), WithPrelude("x = y")); err == nil {
		t.Errorf("expected an error")
	}
}

func TestEvalFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/prog.scrap", []byte("f 5\n. f = n -> n + 1\n"), 0644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r := newRuntime(t, WithFs(fs))
	v, err := r.EvalFile(context.Background(), "/prog.scrap")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.String() != "6" {
		t.Errorf("expected 6, got %s", v)
	}
	if _, err := r.EvalFile(context.Background(), "/missing.scrap"); err == nil {
		t.Errorf("expected an error for a missing file")
	}
}

func TestApply(t *testing.T) {
	r := newRuntime(t)
	v, err := r.Apply(context.Background(), "n -> n * 2", "21")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.String() != "42" {
		t.Errorf("expected 42, got %s", v)
	}
}

func TestPutHashAndResolve(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scraps.db")
	ctx := context.Background()

	r, err := New(ctx, WithSQLiteStore(path))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h, err := r.Put("x -> x + 1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	same, err := r.Hash("y -> y + 1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if same != h {
		t.Errorf("alpha-equivalent programs must share a hash: %s != %s", same, h)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	r2, err := New(ctx, WithSQLiteStore(path))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer r2.Close()
	v, err := r2.Eval(ctx, h.Ref()+" 41")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.String() != "42" {
		t.Errorf("expected 42, got %s", v)
	}
}

func TestPutRejectsOpenTerm(t *testing.T) {
	r := newRuntime(t)
	if _, err := r.Put("x + 1"); err == nil {
		t.Errorf("expected an error for a term with free names")
	}
}

func TestFetcher(t *testing.T) {
	n, err := parser.Parse("[1, 2, 3]")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := flat.Encode(n)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h := hash.Sum(n)
	mock := provider.NewMock(map[hash.Hash][]byte{h: data})

	r := newRuntime(t, WithFetcher(mock))
	for index := 0; index < 3; index++ {
		v, err := r.Eval(context.Background(), "$$listlength "+h.Ref())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if v.String() != "3" {
			t.Errorf("test #%d: expected 3, got %s", index, v)
		}
	}
	if mock.Calls() != 1 {
		t.Errorf("expected a single fetch, got %d", mock.Calls())
	}
}

func TestFlat(t *testing.T) {
	r := newRuntime(t, WithNoStdlib())
	b, err := r.Flat("3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(b) != "i\x06" {
		t.Errorf("expected i\\x06, got %q", b)
	}
}

func TestNames(t *testing.T) {
	r := newRuntime(t, WithNoStdlib())
	if _, err := r.Eval(context.Background(), "zebra = 1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	names := r.Names()
	found := map[string]bool{}
	for _, name := range names {
		found[name] = true
	}
	for _, want := range []string{"zebra", "_", "$$add", "$$hash"} {
		if !found[want] {
			t.Errorf("expected %s in %v", want, names)
		}
	}
}
