// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

package eval

import (
	"bytes"
	"context"
	"math"
	"math/big"
	"strings"

	"nickandperla.net/scrap/internal/expr"
	"nickandperla.net/scrap/internal/value"
)

func (r *run) boolean(ctx context.Context, n expr.Node, env *value.Env, op string) (bool, error) {
	v, err := r.eval(ctx, n, env)
	if err != nil {
		return false, err
	}
	if _, ok := v.(*value.Hole); ok {
		return false, errorf(HoleEncountered, n.Pos(), "hole used as operand of %s", op)
	}
	truth, ok := value.AsBool(v)
	if !ok {
		return false, errorf(TypeMismatch, n.Pos(), "%s expects booleans, got %s", op, v.Kind())
	}
	return truth, nil
}

func (r *run) binop(ctx context.Context, n *expr.Binop, env *value.Env) (value.Value, error) {
	switch n.Op {
	case "&&", "||":
		l, err := r.boolean(ctx, n.Left, env, n.Op)
		if err != nil {
			return nil, err
		}
		if l == (n.Op == "||") {
			return value.Bool(l), nil
		}
		rt, err := r.boolean(ctx, n.Right, env, n.Op)
		if err != nil {
			return nil, err
		}
		return value.Bool(rt), nil

	case "!":
		if _, err := r.eval(ctx, n.Left, env); err != nil {
			return nil, err
		}
		return r.eval(ctx, n.Right, env)

	case ":":
		// Type annotations are not checked.
		return r.eval(ctx, n.Left, env)
	}

	l, err := r.eval(ctx, n.Left, env)
	if err != nil {
		return nil, err
	}
	rt, err := r.eval(ctx, n.Right, env)
	if err != nil {
		return nil, err
	}
	if _, ok := l.(*value.Hole); ok {
		return nil, errorf(HoleEncountered, n.Left.Pos(), "hole used as operand of %s", n.Op)
	}
	if _, ok := rt.(*value.Hole); ok {
		return nil, errorf(HoleEncountered, n.Right.Pos(), "hole used as operand of %s", n.Op)
	}

	switch n.Op {
	case "+", "-", "*", "/", "//", "%", "^":
		return arith(n, l, rt)
	case "==":
		return value.Bool(value.Equal(l, rt)), nil
	case "/=":
		return value.Bool(!value.Equal(l, rt)), nil
	case "<", ">", "<=", ">=":
		c, err := compare(n, l, rt)
		if err != nil {
			return nil, err
		}
		switch n.Op {
		case "<":
			return value.Bool(c < 0), nil
		case ">":
			return value.Bool(c > 0), nil
		case "<=":
			return value.Bool(c <= 0), nil
		}
		return value.Bool(c >= 0), nil
	case "++":
		return concat(n, l, rt)
	case ">+":
		list, ok := rt.(*value.List)
		if !ok {
			return nil, errorf(TypeMismatch, n.Right.Pos(), ">+ expects a list on the right, got %s", rt.Kind())
		}
		elems := make([]value.Value, 0, len(list.Elems)+1)
		elems = append(elems, l)
		return &value.List{Elems: append(elems, list.Elems...)}, nil
	case "+<":
		list, ok := l.(*value.List)
		if !ok {
			return nil, errorf(TypeMismatch, n.Left.Pos(), "+< expects a list on the left, got %s", l.Kind())
		}
		elems := make([]value.Value, 0, len(list.Elems)+1)
		elems = append(elems, list.Elems...)
		return &value.List{Elems: append(elems, rt)}, nil
	}
	return nil, errorf(TypeMismatch, n.Pos(), "unknown operator %s", n.Op)
}

// numbers extracts the operands of an arithmetic operator. Mixing ints and
// floats promotes to float.
func numbers(n *expr.Binop, l, r value.Value) (li, ri *big.Int, lf, rf float64, isFloat bool, err error) {
	toFloat := func(v value.Value, side expr.Node) (float64, *big.Int, bool, error) {
		switch v := v.(type) {
		case *value.Int:
			f, _ := new(big.Float).SetInt(v.V).Float64()
			return f, v.V, false, nil
		case *value.Float:
			return v.V, nil, true, nil
		}
		return 0, nil, false, errorf(TypeMismatch, side.Pos(), "%s expects numbers, got %s", n.Op, v.Kind())
	}
	lf, li, lFloat, err := toFloat(l, n.Left)
	if err != nil {
		return nil, nil, 0, 0, false, err
	}
	rf, ri, rFloat, err := toFloat(r, n.Right)
	if err != nil {
		return nil, nil, 0, 0, false, err
	}
	return li, ri, lf, rf, lFloat || rFloat, nil
}

func arith(n *expr.Binop, l, r value.Value) (value.Value, error) {
	li, ri, lf, rf, isFloat, err := numbers(n, l, r)
	if err != nil {
		return nil, err
	}
	divides := n.Op == "/" || n.Op == "//" || n.Op == "%"
	if divides && rf == 0 {
		return nil, errorf(ArithmeticError, n.Pos(), "division by zero")
	}

	if !isFloat {
		switch n.Op {
		case "+":
			return &value.Int{V: new(big.Int).Add(li, ri)}, nil
		case "-":
			return &value.Int{V: new(big.Int).Sub(li, ri)}, nil
		case "*":
			return &value.Int{V: new(big.Int).Mul(li, ri)}, nil
		case "//":
			q, m := new(big.Int).QuoRem(li, ri, new(big.Int))
			if m.Sign() != 0 && m.Sign() != ri.Sign() {
				q.Sub(q, big.NewInt(1))
			}
			return &value.Int{V: q}, nil
		case "%":
			m := new(big.Int).Rem(li, ri)
			if m.Sign() != 0 && m.Sign() != ri.Sign() {
				m.Add(m, ri)
			}
			return &value.Int{V: m}, nil
		case "/":
			f, _ := new(big.Rat).SetFrac(li, ri).Float64()
			if math.IsInf(f, 0) {
				return nil, errorf(ArithmeticError, n.Pos(), "integer division result too large for a float")
			}
			return &value.Float{V: f}, nil
		case "^":
			if ri.Sign() >= 0 {
				return &value.Int{V: new(big.Int).Exp(li, ri, nil)}, nil
			}
		}
	}

	// Past here an int operand is used as a float64.
	if (li != nil && math.IsInf(lf, 0)) || (ri != nil && math.IsInf(rf, 0)) {
		return nil, errorf(ArithmeticError, n.Pos(), "integer too large to convert to float")
	}

	switch n.Op {
	case "+":
		return &value.Float{V: lf + rf}, nil
	case "-":
		return &value.Float{V: lf - rf}, nil
	case "*":
		return &value.Float{V: lf * rf}, nil
	case "/":
		return &value.Float{V: lf / rf}, nil
	case "//":
		return &value.Float{V: math.Floor(lf / rf)}, nil
	case "%":
		m := math.Mod(lf, rf)
		if m != 0 && (m < 0) != (rf < 0) {
			m += rf
		}
		return &value.Float{V: m}, nil
	case "^":
		return &value.Float{V: math.Pow(lf, rf)}, nil
	}
	return nil, errorf(TypeMismatch, n.Pos(), "unknown operator %s", n.Op)
}

func compare(n *expr.Binop, l, r value.Value) (int, error) {
	if ls, ok := l.(*value.String); ok {
		rs, ok := r.(*value.String)
		if !ok {
			return 0, errorf(TypeMismatch, n.Right.Pos(), "cannot compare text with %s", r.Kind())
		}
		return strings.Compare(ls.V, rs.V), nil
	}
	li, ri, lf, rf, isFloat, err := numbers(n, l, r)
	if err != nil {
		return 0, err
	}
	if !isFloat {
		return li.Cmp(ri), nil
	}
	switch {
	case lf < rf:
		return -1, nil
	case lf > rf:
		return 1, nil
	}
	return 0, nil
}

func concat(n *expr.Binop, l, r value.Value) (value.Value, error) {
	mismatch := func() error {
		return errorf(TypeMismatch, n.Pos(), "cannot concatenate %s and %s", l.Kind(), r.Kind())
	}
	switch l := l.(type) {
	case *value.String:
		r, ok := r.(*value.String)
		if !ok {
			return nil, mismatch()
		}
		return &value.String{V: l.V + r.V}, nil
	case *value.Bytes:
		r, ok := r.(*value.Bytes)
		if !ok {
			return nil, mismatch()
		}
		return &value.Bytes{V: bytes.Join([][]byte{l.V, r.V}, nil)}, nil
	case *value.List:
		r, ok := r.(*value.List)
		if !ok {
			return nil, mismatch()
		}
		elems := make([]value.Value, 0, len(l.Elems)+len(r.Elems))
		elems = append(elems, l.Elems...)
		return &value.List{Elems: append(elems, r.Elems...)}, nil
	case *value.Record:
		r, ok := r.(*value.Record)
		if !ok {
			return nil, mismatch()
		}
		out := value.NewRecord()
		for _, k := range l.Keys {
			out.Set(k, l.Fields[k])
		}
		for _, k := range r.Keys {
			out.Set(k, r.Fields[k])
		}
		return out, nil
	}
	return nil, mismatch()
}
