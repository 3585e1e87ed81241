package errwrap

import (
	"errors"
	"strings"
	"testing"
)

func TestAppend(t *testing.T) {
	a := errors.New("a")
	b := errors.New("b")

	if err := Append(nil, nil); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
	if err := Append(a, nil); err != a {
		t.Errorf("expected a, got %v", err)
	}
	if err := Append(nil, b); err != b {
		t.Errorf("expected b, got %v", err)
	}
	err := Append(a, b)
	if !errors.Is(err, a) || !errors.Is(err, b) {
		t.Errorf("expected both errors in %v", err)
	}
	if !strings.Contains(err.Error(), "2 errors occurred") {
		t.Errorf("unexpected message: %s", err)
	}
}

func TestWrapf(t *testing.T) {
	if Wrapf(nil, "context") != nil {
		t.Errorf("wrapping nil should stay nil")
	}
	base := errors.New("base")
	err := Wrapf(base, "open %s", "x.db")
	if err.Error() != "open x.db: base" {
		t.Errorf("unexpected message: %s", err)
	}
	if Cause(err) != base {
		t.Errorf("cause lost")
	}
	if !errors.Is(err, base) {
		t.Errorf("errors.Is does not see through Wrapf")
	}
	if String(nil) != "" || String(base) != "base" {
		t.Errorf("unexpected String result")
	}
}
