package eval

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"nickandperla.net/scrap/internal/hash"
	"nickandperla.net/scrap/internal/parser"
	"nickandperla.net/scrap/internal/store"
	"nickandperla.net/scrap/internal/value"
)

func evalSource(t *testing.T, e *Evaluator, src string) (value.Value, error) {
	t.Helper()
	n, err := parser.Parse(src)
	if err != nil {
		t.Fatalf("parse %q: unexpected error: %v", src, err)
	}
	return e.Eval(context.Background(), n, nil)
}

func TestEval(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"1 + 2", "3"},
		{`(| 0 -> "zero" | x -> "nonzero") 0`, `"zero"`},
		{`(| 0 -> "zero" | x -> "nonzero") 5`, `"nonzero"`},
		{"(| {a = x, ...rest} -> [x, rest]) {a = 1, b = 2, c = 3}", "[1, {b = 2, c = 3}]"},
		{"f 5 . f = | 0 -> 0 | n -> g (n - 1) . g = | 0 -> 1 | n -> f (n - 1)", "1"},
		{"(| x -> 1 | 0 -> 2) 0", "1"},
		{`(| x ? x > 0 -> "pos" | _ -> "non") (-1)`, `"non"`},
		{`(| x ? x > 0 -> "pos" | _ -> "non") 3`, `"pos"`},
		{"{a = 9, ...r} . r = {a = 1, b = 2}", "{a = 9, b = 2}"},
		{"[0, ...xs] . xs = [1, 2]", "[0, 1, 2]"},
		{"a . [a, b] = [1, 2]", "1"},
		{"b . {a = a, b = b} = {a = 1, b = 2}", "2"},
		{"1 >+ [2]", "[1, 2]"},
		{"[1] +< 2", "[1, 2]"},
		{`"a" ++ "b"`, `"ab"`},
		{"[1] ++ [2, 3]", "[1, 2, 3]"},
		{"{a = 1} ++ {b = 2}", "{a = 1, b = 2}"},
		{"7 // 2", "3"},
		{"-7 // 2", "-4"},
		{"-7 % 3", "2"},
		{"7 % -3", "-2"},
		{"1 / 2", "0.5"},
		{"10^400 / 10^399", "10.0"},
		{"10^399 / 10^400", "0.1"},
		{"2 ^ 10", "1024"},
		{"2 ^ 100", "1267650600228229401496703205376"},
		{"1 + 1.5", "2.5"},
		{"1 < 2", "#true ()"},
		{"2 <= 1", "#false ()"},
		{`"abc" < "abd"`, "#true ()"},
		{"[1, 2] == [1, 2]", "#true ()"},
		{"1 == 1.0", "#false ()"},
		{"{a = 1, b = 2} == {b = 2, a = 1}", "#true ()"},
		{"#true () && #false ()", "#false ()"},
		{"#false () && (1 + ())", "#false ()"},
		{"#true () || (1 + ())", "#true ()"},
		{"1 ! 2", "2"},
		{"1 : int", "1"},
		{"{a = 1}@a", "1"},
		{"[10, 20]@1", "20"},
		{"xs@i . xs = [1, 2, 3] . i = 2", "3"},
		{"1 ? 1 == 1", "1"},
		{"1 |> (x -> x + 1)", "2"},
		{"(x -> x + 1) <| 1", "2"},
		{"((x -> x + 1) >> (x -> x * 2)) 3", "8"},
		{"((x -> x + 1) << (x -> x * 2)) 3", "7"},
		{"#none", "#none"},
		{"#some 1", "#some 1"},
		{"#some (-1)", "#some (-1)"},
		{"()", "()"},
		{"x -> x", "x -> x"},
		{"fact 20 . fact = | 0 -> 1 | n -> n * fact (n - 1)", "2432902008176640000"},
		{"x = 3", "3"},
		{"$$add 3 4", "7"},
		{"$$listlength [1, 2, 3]", "3"},
		{"$$listlength []", "0"},
		{"$$deserialize ~~aQY=", "3"},
		{"$$deserialize ~~KwIraQJpBA==", "3"},
		{`$$jsondecode "{\"a\": [1, 2.5, \"x\", true, null], \"b\": {}}"`, `{a = [1, 2.5, "x", #true (), ()], b = {}}`},
		{"($$deserialize ($$serialize f)) 2 . f = x -> x + y . y = 1", "3"},
		{"($$deserialize ($$serialize fact)) 5 . fact = | 0 -> 1 | n -> n * fact (n - 1)", "120"},
		{"($$deserialize ($$serialize ($$add 40))) 2", "42"},
	}
	e := New()
	for index, tc := range tests {
		got, err := evalSource(t, e, tc.src)
		if err != nil {
			t.Errorf("test #%d: %s: unexpected error: %v", index, tc.src, err)
			continue
		}
		if got.String() != tc.want {
			t.Errorf("test #%d: %s: expected %s, got %s", index, tc.src, tc.want, got)
		}
	}
}

func TestEvalErrors(t *testing.T) {
	tests := []struct {
		src  string
		kind Kind
	}{
		{"(0 -> 1) 1", ArgumentMismatch},
		{"(| 0 -> 1 | 1 -> 2) 3", NonExhaustiveMatch},
		{"(| #some x -> x) #none", NonExhaustiveMatch},
		{"x", UnboundVariable},
		{"$$nope 1", UnboundVariable},
		{"1 + \"a\"", TypeMismatch},
		{"1 2", TypeMismatch},
		{"{a = 1, a = 2}", DuplicateField},
		{"() + 1", HoleEncountered},
		{"() 1", HoleEncountered},
		{"()@a", HoleEncountered},
		{"1 ? 1 == 2", AssertionFailed},
		{"x . x = x", CircularBinding},
		{"a . a = b . b = a", CircularBinding},
		{"1 / 0", ArithmeticError},
		{"1 // 0", ArithmeticError},
		{"1 % 0", ArithmeticError},
		{"10^400 / 1", ArithmeticError},
		{"10^309 + 0.5", ArithmeticError},
		{"10^309 // 2.0", ArithmeticError},
		{"(| [x, 1] -> 0 | _ -> x) [5, 2]", UnboundVariable},
		{"(| {a = x, b = 1} -> 0 | _ -> x) {a = 5, b = 2}", UnboundVariable},
		{"[1, 2]@5", IndexOutOfRange},
		{"[1, 2]@(-1)", IndexOutOfRange},
		{"{a = 1}@b", MissingField},
		{"1@0", TypeMismatch},
		{"[a, b] = [1]", BindingMismatch},
		{"a . [a, b] = [1]", BindingMismatch},
		{"$sha256'0000000000000000000000000000000000000000000000000000000000000000", UnresolvedReference},
		{"$$listlength 1", TypeMismatch},
		{"#true () && 1", TypeMismatch},
		{"(| x ? 1 -> x) 1", TypeMismatch},
	}
	e := New()
	for index, tc := range tests {
		_, err := evalSource(t, e, tc.src)
		if err == nil {
			t.Errorf("test #%d: %s: expected %s error", index, tc.src, tc.kind)
			continue
		}
		var ee *Error
		if !errors.As(err, &ee) {
			t.Errorf("test #%d: %s: expected *Error, got %T: %v", index, tc.src, err, err)
			continue
		}
		if ee.Kind != tc.kind {
			t.Errorf("test #%d: %s: expected %s, got %v", index, tc.src, tc.kind, err)
		}
	}
}

func TestKindOfParseError(t *testing.T) {
	_, err := parser.Parse("[1,")
	kind, ok := KindOf(err)
	if !ok || kind != ParseError {
		t.Fatalf("expected ParseError, got %v %v", kind, ok)
	}
	if _, ok := KindOf(errors.New("plain")); ok {
		t.Errorf("plain errors have no kind")
	}
	if k, ok := ParseKind("HoleEncountered"); !ok || k != HoleEncountered {
		t.Errorf("ParseKind failed: %v %v", k, ok)
	}
}

func TestWhereBindingEvaluatedOnce(t *testing.T) {
	var calls int32
	e := New(WithNative("$$tick", func(ctx context.Context, arg value.Value) (value.Value, error) {
		atomic.AddInt32(&calls, 1)
		return arg, nil
	}))
	got, err := evalSource(t, e, "x + x . x = $$tick 1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.String() != "2" {
		t.Errorf("expected 2, got %s", got)
	}
	if calls != 1 {
		t.Errorf("expected the binding to be evaluated once, got %d", calls)
	}

	calls = 0
	if _, err := evalSource(t, e, "1 . x = $$tick 1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 0 {
		t.Errorf("unreferenced binding was evaluated %d times", calls)
	}
}

func TestConcurrentForceSharesResult(t *testing.T) {
	var calls int32
	e := New(WithNative("$$slow", func(ctx context.Context, arg value.Value) (value.Value, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(20 * time.Millisecond)
		return arg, nil
	}))
	h, err := evalSource(t, e, "h . h = _ -> y . y = $$slow 7")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	env := value.NewEnv(nil, map[string]value.Value{"h": h})
	call, err := parser.Parse("h ()")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var wg sync.WaitGroup
	results := make(chan string, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := e.Eval(context.Background(), call, env)
			if err != nil {
				results <- err.Error()
				return
			}
			results <- v.String()
		}()
	}
	wg.Wait()
	close(results)
	for got := range results {
		if got != "7" {
			t.Errorf("expected 7, got %s", got)
		}
	}
	if calls != 1 {
		t.Errorf("expected one evaluation, got %d", calls)
	}
}

func TestRunDefinitions(t *testing.T) {
	e := New()
	ctx := context.Background()
	def, err := parser.Parse("a = 1 . b = a + 1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v, env, err := e.Run(ctx, def, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.String() != "1" {
		t.Errorf("expected 1, got %s", v)
	}
	names := env.Names()
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Errorf("unexpected names %v", names)
	}

	use, err := parser.Parse("b * 10")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v, next, err := e.Run(ctx, use, env)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.String() != "20" {
		t.Errorf("expected 20, got %s", v)
	}
	if next != env {
		t.Errorf("an expression must not change the scope")
	}

	bad, err := parser.Parse("c = missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, next, err := e.Run(ctx, bad, env); err == nil || next != env {
		t.Errorf("expected a failed definition to keep the scope, got %v", err)
	}
}

func TestRunRecursiveDefinition(t *testing.T) {
	e := New()
	def, err := parser.Parse("count = | 0 -> 0 | n -> 1 + count (n - 1)")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, env, err := e.Run(context.Background(), def, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	use, _ := parser.Parse("count 10000")
	v, err := e.Eval(context.Background(), use, env)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.String() != "10000" {
		t.Errorf("expected 10000, got %s", v)
	}
}

func TestSerialize(t *testing.T) {
	e := New()
	tests := []struct {
		src  string
		want string
	}{
		{"$$serialize 3", "i\x06"},
		{`$$serialize "hello"`, "s\nhello"},
		{"$$serialize #none", "n\x08none"},
		{"$$serialize (x -> x)", "fv\x02xv\x02x"},
	}
	for index, tc := range tests {
		got, err := evalSource(t, e, tc.src)
		if err != nil {
			t.Fatalf("test #%d: unexpected error: %v", index, err)
		}
		b, ok := got.(*value.Bytes)
		if !ok {
			t.Fatalf("test #%d: expected bytes, got %s", index, got.Kind())
		}
		if string(b.V) != tc.want {
			t.Errorf("test #%d: %s: expected %q, got %q", index, tc.src, tc.want, b.V)
		}
	}

	_, err := evalSource(t, e, "$$serialize f . f = x -> g x . g = y -> f y")
	if kind, _ := KindOf(err); kind != TypeMismatch {
		t.Errorf("expected mutually recursive closures to be rejected, got %v", err)
	}
}

func TestHashBuiltin(t *testing.T) {
	e := New()
	got, err := evalSource(t, e, "$$hash (y -> y)")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	n, _ := parser.Parse("x -> x")
	if want := hash.Sum(n).String(); got.String() != quoted(want) {
		t.Errorf("expected %s, got %s", want, got)
	}
}

// quoted renders s the way text values print.
func quoted(s string) string { return `"` + s + `"` }

func TestHashReference(t *testing.T) {
	s := store.New(store.NewMemory())
	n, _ := parser.Parse("x -> x * 2")
	h, err := s.Put(n)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	e := New(WithResolver(s))
	got, err := evalSource(t, e, h.Ref()+" 21")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.String() != "42" {
		t.Errorf("expected 42, got %s", got)
	}
	if _, ok := s.Memoized(h); !ok {
		t.Errorf("expected the resolved value to be memoized")
	}

	_, err = evalSource(t, e, hash.Hash{1}.Ref())
	if kind, _ := KindOf(err); kind != UnresolvedReference {
		t.Fatalf("expected UnresolvedReference, got %v", err)
	}
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected the cause to be ErrNotFound, got %v", err)
	}
}

type fetcherFunc func(ctx context.Context, h hash.Hash) ([]byte, error)

func (f fetcherFunc) Fetch(ctx context.Context, h hash.Hash) ([]byte, error) { return f(ctx, h) }

func TestHashReferenceMismatch(t *testing.T) {
	s := store.New(store.NewMemory(), store.WithFetcher(fetcherFunc(func(ctx context.Context, h hash.Hash) ([]byte, error) {
		return []byte("i\x04"), nil
	})))
	want := hash.Hash{2}
	e := New(WithResolver(s))
	_, err := evalSource(t, e, want.Ref())
	if kind, _ := KindOf(err); kind != UnresolvedReference {
		t.Fatalf("expected UnresolvedReference, got %v", err)
	}
	if !errors.Is(err, store.ErrHashMismatch) {
		t.Errorf("expected ErrHashMismatch cause, got %v", err)
	}
	if _, ok, _ := s.Lookup(want); ok {
		t.Errorf("mismatched content was cached")
	}
}

func TestFetchTimeout(t *testing.T) {
	s := store.New(store.NewMemory(), store.WithFetcher(fetcherFunc(func(ctx context.Context, h hash.Hash) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})))
	e := New(WithResolver(s), WithFetchTimeout(20*time.Millisecond))
	_, err := evalSource(t, e, hash.Hash{3}.Ref())
	if kind, _ := KindOf(err); kind != UnresolvedReference {
		t.Fatalf("expected UnresolvedReference, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded cause, got %v", err)
	}
}

func TestCancelAbortsEvaluation(t *testing.T) {
	e := New()
	n, err := parser.Parse("f 0 . f = x -> f x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = e.Eval(ctx, n, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
