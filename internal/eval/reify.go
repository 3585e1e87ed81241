// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

package eval

import (
	"context"

	"nickandperla.net/scrap/internal/expr"
	"nickandperla.net/scrap/internal/token"
	"nickandperla.net/scrap/internal/value"
)

// reify turns a value back into a closed term that evaluates to it.
// A closure becomes its function wrapped in a where-group binding each of
// its free names; builtins become their names.
func (r *run) reify(ctx context.Context, v value.Value) (expr.Node, error) {
	rf := &reifier{run: r, ctx: ctx, active: map[*value.Closure]bool{}}
	return rf.node(v)
}

type reifier struct {
	run    *run
	ctx    context.Context
	active map[*value.Closure]bool
}

func (rf *reifier) node(v value.Value) (expr.Node, error) {
	switch v := v.(type) {
	case *value.Int:
		return &expr.Int{Value: v.V}, nil
	case *value.Float:
		return &expr.Float{Value: v.V}, nil
	case *value.String:
		return &expr.String{Value: v.V}, nil
	case *value.Bytes:
		return &expr.Bytes{Value: v.V}, nil
	case *value.Hole:
		return &expr.Hole{}, nil
	case *value.Native:
		return &expr.Var{Name: v.Name}, nil
	case *value.Variant:
		if v.Payload == nil {
			return &expr.Variant{Tag: v.Tag}, nil
		}
		payload, err := rf.node(v.Payload)
		if err != nil {
			return nil, err
		}
		return &expr.Variant{Tag: v.Tag, Payload: payload}, nil
	case *value.List:
		list := &expr.List{Elems: make([]expr.Node, 0, len(v.Elems))}
		for _, e := range v.Elems {
			n, err := rf.node(e)
			if err != nil {
				return nil, err
			}
			list.Elems = append(list.Elems, n)
		}
		return list, nil
	case *value.Record:
		rec := &expr.Record{Fields: make([]expr.Field, 0, len(v.Keys))}
		for _, k := range v.Keys {
			n, err := rf.node(v.Fields[k])
			if err != nil {
				return nil, err
			}
			rec.Fields = append(rec.Fields, expr.Field{Name: k, Value: n})
		}
		return rec, nil
	case *value.Closure:
		return rf.closure(v)
	}
	return nil, errorf(TypeMismatch, token.Pos{}, "cannot serialize a %s", v.Kind())
}

func (rf *reifier) closure(c *value.Closure) (expr.Node, error) {
	fn := c.Source
	if fn == nil {
		fn = &expr.Function{Param: c.Param, Body: c.Body}
	}
	free := expr.FreeVars(fn)
	if len(free) == 0 {
		return fn, nil
	}
	if rf.active[c] {
		return nil, errorf(TypeMismatch, fn.Pos(), "cannot serialize a cyclic closure")
	}
	rf.active[c] = true
	defer delete(rf.active, c)

	w := &expr.Where{At: fn.At, Body: fn}
	for _, name := range free {
		t, ok := c.Env.Lookup(name)
		if !ok {
			return nil, errorf(UnboundVariable, fn.Pos(), "name %s is not defined", name)
		}
		v, err := rf.run.force(rf.ctx, t, name, fn.Pos())
		if err != nil {
			return nil, err
		}
		var bound expr.Node = fn
		if self, ok := v.(*value.Closure); !ok || self != c {
			if bound, err = rf.node(v); err != nil {
				return nil, err
			}
		}
		w.Bindings = append(w.Bindings, expr.Binding{Pattern: &expr.Bind{Name: name}, Value: bound})
	}
	return w, nil
}
