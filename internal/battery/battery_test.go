package battery

import (
	"context"
	"strings"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/afero"

	"nickandperla.net/scrap/internal/eval"
)

const sample = `
[[case]]
name = "addition"
input = "1 + 2"
expect = "3"

[[case]]
name = "prelude map"
input = "map (x -> x * 2) [1, 2, 3]"
expect = "[2, 4, 6]"

[[case]]
name = "where"
input = "a + b . a = 1 . b = 2"
expect = "1 + 2"

[[case]]
name = "unbound"
input = "nope"
error = "UnboundVariable"

[[case]]
name = "parse"
input = "1 +"
error = "ParseError"

[[case]]
name = "wrong value"
input = "1 + 1"
expect = "3"

[[case]]
name = "wrong kind"
input = "1 / 0"
error = "NonExhaustiveMatch"
`

func TestRun(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/tests/sample.toml", []byte(sample), 0644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := Load(fs, "/tests/sample.toml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r, err := NewRunner(eval.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	results, err := r.Run(context.Background(), b)
	if err == nil {
		t.Fatalf("expected failures to be reported")
	}
	want := []bool{true, true, true, true, true, false, false}
	if len(results) != len(want) {
		t.Fatalf("expected %d results, got %d", len(want), len(results))
	}
	for index, res := range results {
		if res.Passed != want[index] {
			t.Errorf("test #%d (%s): expected passed=%v, got %v\n%s", index, res.Case.Name, want[index], res.Passed, spew.Sdump(res))
		}
	}
	for _, name := range []string{"wrong value", "wrong kind"} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("expected failure for %q in %v", name, err)
		}
	}
	if !strings.Contains(results[6].Reason, "ArithmeticError") {
		t.Errorf("expected the actual kind in the reason, got %s", results[6].Reason)
	}
}

func TestRunAllPass(t *testing.T) {
	b, err := Parse(`
[[case]]
name = "record"
input = "{a = 1, b = 2}"
expect = "{a = 1, b = 2}"
`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r, err := NewRunner(eval.New(), WithoutPrelude())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	results, err := r.Run(context.Background(), b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 || !results[0].Passed {
		t.Errorf("expected one passing case, got %s", spew.Sdump(results))
	}
}

func TestWithoutPrelude(t *testing.T) {
	b, err := Parse(`
[[case]]
name = "no map"
input = "map"
error = "UnboundVariable"
`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r, err := NewRunner(eval.New(), WithoutPrelude())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := r.Run(context.Background(), b); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{`[[case]]
input = "1"
expect = "1"`, "no name"},
		{`[[case]]
name = "both"
input = "1"
expect = "1"
error = "ParseError"`, "exactly one"},
		{`[[case]]
name = "neither"
input = "1"`, "exactly one"},
		{`[[case]]
name = "kind"
input = "1"
error = "Oops"`, "unknown error kind"},
		{`[[case]`, "parse error"},
	}
	for index, tc := range tests {
		_, err := Parse(tc.src)
		if err == nil {
			t.Errorf("test #%d: expected an error", index)
			continue
		}
		if !strings.Contains(err.Error(), tc.want) {
			t.Errorf("test #%d: expected %q in %v", index, tc.want, err)
		}
	}
}

func TestRunCancelled(t *testing.T) {
	b, err := Parse(sample)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r, err := NewRunner(eval.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	results, err := r.Run(ctx, b)
	if err != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results, got %d", len(results))
	}
}
