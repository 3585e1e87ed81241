// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

package value

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// ErrCircular is returned when a binding is forced while its own value is
// still being computed by the same evaluation.
var ErrCircular = errors.New("binding depends on itself")

type thunkState int

const (
	unevaluated thunkState = iota
	inProgress
	evaluated
)

// Thunk is a lazily computed binding. It is computed at most once; callers
// from other evaluations wait for the first one to finish.
type Thunk struct {
	mu      sync.Mutex
	state   thunkState
	owner   any
	done    chan struct{}
	val     Value
	err     error
	compute func(ctx context.Context, owner any) (Value, error)
}

// NewThunk wraps compute, which receives the owner of the evaluation that
// forces the thunk first.
func NewThunk(compute func(ctx context.Context, owner any) (Value, error)) *Thunk {
	return &Thunk{compute: compute}
}

// Evaluated wraps an already known value.
func Evaluated(v Value) *Thunk {
	return &Thunk{state: evaluated, val: v}
}

// Force returns the value of the thunk, computing it if needed. owner
// identifies the calling evaluation.
func (t *Thunk) Force(ctx context.Context, owner any) (Value, error) {
	t.mu.Lock()
	switch t.state {
	case evaluated:
		v, err := t.val, t.err
		t.mu.Unlock()
		return v, err
	case inProgress:
		if t.owner == owner {
			t.mu.Unlock()
			return nil, ErrCircular
		}
		done := t.done
		t.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		// The computing evaluation may have been cancelled and reset the
		// thunk, in which case this caller takes over.
		return t.Force(ctx, owner)
	}
	t.state = inProgress
	t.owner = owner
	t.done = make(chan struct{})
	compute := t.compute
	t.mu.Unlock()

	v, err := compute(ctx, owner)

	t.mu.Lock()
	defer t.mu.Unlock()
	if err != nil && ctx.Err() != nil {
		t.state = unevaluated
	} else {
		t.val, t.err = v, err
		t.state = evaluated
		t.compute = nil
	}
	t.owner = nil
	close(t.done)
	return v, err
}

// Env is one scope of a scope chain. Scopes are immutable once built.
type Env struct {
	parent *Env
	vars   map[string]*Thunk
}

// NewEnv returns a scope holding vals, whose lookups fall back to parent.
func NewEnv(parent *Env, vals map[string]Value) *Env {
	e := &Env{parent: parent, vars: make(map[string]*Thunk, len(vals))}
	for name, v := range vals {
		e.vars[name] = Evaluated(v)
	}
	return e
}

// Recursive returns a scope whose bindings can refer to the scope itself.
// build receives the new scope and returns its bindings; the scope is not
// visible to anyone else until build returns.
func Recursive(parent *Env, build func(scope *Env) map[string]*Thunk) *Env {
	e := &Env{parent: parent}
	e.vars = build(e)
	return e
}

// Extend returns a child scope of e holding vals. An empty vals returns e.
func (e *Env) Extend(vals map[string]Value) *Env {
	if len(vals) == 0 {
		return e
	}
	return NewEnv(e, vals)
}

// Lookup finds the binding of name in the nearest enclosing scope.
func (e *Env) Lookup(name string) (*Thunk, bool) {
	for s := e; s != nil; s = s.parent {
		if t, ok := s.vars[name]; ok {
			return t, true
		}
	}
	return nil, false
}

// Names returns every name visible from e, sorted.
func (e *Env) Names() []string {
	seen := map[string]bool{}
	var names []string
	for s := e; s != nil; s = s.parent {
		for name := range s.vars {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)
	return names
}
