// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

package flat

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"math/big"
	"unicode/utf8"

	"nickandperla.net/scrap/internal/expr"
	"nickandperla.net/scrap/internal/parser"
	"nickandperla.net/scrap/internal/token"
)

// ErrMalformed is wrapped by every decoding error.
var ErrMalformed = errors.New("malformed flat encoding")

// Decode parses one term from b. Trailing bytes are an error.
func Decode(b []byte) (expr.Node, error) {
	d := &decoder{buf: b}
	n, err := d.node()
	if err != nil {
		return nil, err
	}
	if d.pos != len(d.buf) {
		return nil, d.errorf("%d trailing bytes", len(d.buf)-d.pos)
	}
	return n, nil
}

type ref struct {
	node     expr.Node
	building bool
}

type decoder struct {
	buf  []byte
	pos  int
	refs []*ref
}

func (d *decoder) errorf(format string, args ...any) error {
	return fmt.Errorf("%w at byte %d: %s", ErrMalformed, d.pos, fmt.Sprintf(format, args...))
}

func (d *decoder) byte() (byte, error) {
	if d.pos >= len(d.buf) {
		return 0, d.errorf("unexpected end of input")
	}
	b := d.buf[d.pos]
	d.pos++
	return b, nil
}

func (d *decoder) peek() (byte, error) {
	if d.pos >= len(d.buf) {
		return 0, d.errorf("unexpected end of input")
	}
	return d.buf[d.pos] &^ FlagRef, nil
}

func (d *decoder) read(n int) ([]byte, error) {
	if n < 0 || n > len(d.buf)-d.pos {
		return nil, d.errorf("length %d out of range", n)
	}
	b := d.buf[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}

func (d *decoder) short() (int64, error) {
	u, n := binary.Uvarint(d.buf[d.pos:])
	if n <= 0 {
		return 0, d.errorf("bad varint")
	}
	d.pos += n
	return int64(u>>1) ^ -int64(u&1), nil
}

func (d *decoder) length() (int, error) {
	v, err := d.short()
	if err != nil {
		return 0, err
	}
	if v < 0 || v > int64(len(d.buf)) {
		return 0, d.errorf("length %d out of range", v)
	}
	return int(v), nil
}

func (d *decoder) string() (string, error) {
	n, err := d.length()
	if err != nil {
		return "", err
	}
	b, err := d.read(n)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", d.errorf("string is not valid UTF-8")
	}
	return string(b), nil
}

func (d *decoder) long() (*big.Int, error) {
	n, err := d.length()
	if err != nil {
		return nil, err
	}
	z := new(big.Int)
	raw, err := d.read(n * 8)
	if err != nil {
		return nil, err
	}
	for i := n - 1; i >= 0; i-- {
		z.Lsh(z, 64)
		z.Or(z, new(big.Int).SetUint64(binary.LittleEndian.Uint64(raw[i*8:])))
	}
	// undo zigzag
	neg := z.Bit(0) == 1
	z.Rsh(z, 1)
	if neg {
		z.Neg(z)
		z.Sub(z, big.NewInt(1))
	}
	return z, nil
}

func (d *decoder) node() (expr.Node, error) {
	raw, err := d.byte()
	if err != nil {
		return nil, err
	}
	flagged := raw&FlagRef != 0
	tag := raw &^ FlagRef
	if flagged && tag != TagList && tag != TagClosure {
		return nil, d.errorf("tag %q cannot carry the reference flag", tag)
	}

	switch tag {
	case TagRef:
		idx, err := d.short()
		if err != nil {
			return nil, err
		}
		if idx < 0 || idx >= int64(len(d.refs)) {
			return nil, d.errorf("reference %d out of range", idx)
		}
		r := d.refs[idx]
		if r.building {
			if _, isList := r.node.(*expr.List); isList {
				return nil, d.errorf("list contains itself")
			}
		}
		if r.node == nil {
			return nil, d.errorf("reference %d names a pattern", idx)
		}
		return r.node, nil

	case TagShort:
		v, err := d.short()
		if err != nil {
			return nil, err
		}
		return &expr.Int{Value: big.NewInt(v)}, nil

	case TagLong:
		v, err := d.long()
		if err != nil {
			return nil, err
		}
		return &expr.Int{Value: v}, nil

	case TagFloat:
		b, err := d.read(8)
		if err != nil {
			return nil, err
		}
		return &expr.Float{Value: math.Float64frombits(binary.LittleEndian.Uint64(b))}, nil

	case TagString:
		s, err := d.string()
		if err != nil {
			return nil, err
		}
		return &expr.String{Value: s}, nil

	case TagBytes:
		n, err := d.length()
		if err != nil {
			return nil, err
		}
		b, err := d.read(n)
		if err != nil {
			return nil, err
		}
		return &expr.Bytes{Value: append([]byte(nil), b...)}, nil

	case TagHole:
		return &expr.Hole{}, nil

	case TagVar:
		name, err := d.string()
		if err != nil {
			return nil, err
		}
		if name == "" {
			return nil, d.errorf("empty variable name")
		}
		return &expr.Var{Name: name}, nil

	case TagHashRef:
		b, err := d.read(32)
		if err != nil {
			return nil, err
		}
		h := &expr.HashRef{}
		copy(h.Digest[:], b)
		return h, nil

	case TagBareTag, TagVariant:
		name, err := d.string()
		if err != nil {
			return nil, err
		}
		v := &expr.Variant{Tag: name}
		if tag == TagVariant {
			if v.Payload, err = d.node(); err != nil {
				return nil, err
			}
		}
		return v, nil

	case TagList:
		if !flagged {
			return nil, d.errorf("list without reference flag")
		}
		n, err := d.length()
		if err != nil {
			return nil, err
		}
		l := &expr.List{}
		r := &ref{node: l, building: true}
		d.refs = append(d.refs, r)
		for i := 0; i < n; i++ {
			spread, ok, err := d.spread()
			if err != nil {
				return nil, err
			}
			if ok {
				if i != n-1 {
					return nil, d.errorf("spread must be the last list element")
				}
				l.Spread = spread
				break
			}
			elem, err := d.node()
			if err != nil {
				return nil, err
			}
			l.Elems = append(l.Elems, elem)
		}
		r.building = false
		return l, nil

	case TagRecord:
		n, err := d.length()
		if err != nil {
			return nil, err
		}
		rec := &expr.Record{}
		for i := 0; i < n; i++ {
			key, err := d.string()
			if err != nil {
				return nil, err
			}
			if key == spreadKey {
				spread, ok, err := d.spread()
				if err != nil {
					return nil, err
				}
				if !ok || i != n-1 {
					return nil, d.errorf("misplaced record spread")
				}
				rec.Spread = spread
				break
			}
			val, err := d.node()
			if err != nil {
				return nil, err
			}
			rec.Fields = append(rec.Fields, expr.Field{Name: key, Value: val})
		}
		return rec, nil

	case TagBinop:
		op, err := d.string()
		if err != nil {
			return nil, err
		}
		if !binop(op) {
			return nil, d.errorf("unknown operator %q", op)
		}
		l, err := d.node()
		if err != nil {
			return nil, err
		}
		r, err := d.node()
		if err != nil {
			return nil, err
		}
		return &expr.Binop{Op: op, Left: l, Right: r}, nil

	case TagApply:
		fn, err := d.node()
		if err != nil {
			return nil, err
		}
		arg, err := d.node()
		if err != nil {
			return nil, err
		}
		return &expr.Apply{Func: fn, Arg: arg}, nil

	case TagFunction:
		param, err := d.pattern()
		if err != nil {
			return nil, err
		}
		body, err := d.node()
		if err != nil {
			return nil, err
		}
		return &expr.Function{Param: param, Body: body}, nil

	case TagMatchFn, TagGuardedFn:
		return d.matchFunction(tag == TagGuardedFn)

	case TagClosure:
		return d.closure()

	case TagWhere:
		body, err := d.node()
		if err != nil {
			return nil, err
		}
		if t, err := d.byte(); err != nil {
			return nil, err
		} else if t != TagAssign {
			return nil, d.errorf("where without a binding")
		}
		b, err := d.binding()
		if err != nil {
			return nil, err
		}
		return &expr.Where{Body: body, Bindings: []expr.Binding{b}}, nil

	case TagWhereGroup:
		body, err := d.node()
		if err != nil {
			return nil, err
		}
		n, err := d.length()
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, d.errorf("empty where group")
		}
		w := &expr.Where{Body: body}
		for i := 0; i < n; i++ {
			b, err := d.binding()
			if err != nil {
				return nil, err
			}
			w.Bindings = append(w.Bindings, b)
		}
		return w, nil

	case TagAssign:
		b, err := d.binding()
		if err != nil {
			return nil, err
		}
		return &expr.Assign{Pattern: b.Pattern, Value: b.Value}, nil

	case TagAccess:
		target, err := d.node()
		if err != nil {
			return nil, err
		}
		key, err := d.node()
		if err != nil {
			return nil, err
		}
		return &expr.Access{Target: target, Key: key}, nil

	case TagAssert:
		v, err := d.node()
		if err != nil {
			return nil, err
		}
		cond, err := d.node()
		if err != nil {
			return nil, err
		}
		return &expr.Assert{Value: v, Cond: cond}, nil

	case TagSpread, TagNamedRest:
		return nil, d.errorf("spread outside of a list or record")
	}
	return nil, d.errorf("unknown tag %q", tag)
}

// spread consumes a spread marker if one comes next.
func (d *decoder) spread() (*expr.Var, bool, error) {
	t, err := d.peek()
	if err != nil {
		return nil, false, err
	}
	switch t {
	case TagSpread:
		d.pos++
		return &expr.Var{Name: "_"}, true, nil
	case TagNamedRest:
		d.pos++
		name, err := d.string()
		if err != nil {
			return nil, false, err
		}
		return &expr.Var{Name: name}, true, nil
	}
	return nil, false, nil
}

func (d *decoder) pattern() (expr.Pattern, error) {
	at := d.pos
	n, err := d.node()
	if err != nil {
		return nil, err
	}
	p, err := parser.ToPattern(n)
	if err != nil {
		return nil, fmt.Errorf("%w at byte %d: %v", ErrMalformed, at, err)
	}
	// Patterns are not values; later references must not resolve to them.
	for _, r := range d.refs {
		if r.node == n {
			r.node = nil
		}
	}
	return p, nil
}

func (d *decoder) binding() (expr.Binding, error) {
	p, err := d.pattern()
	if err != nil {
		return expr.Binding{}, err
	}
	v, err := d.node()
	if err != nil {
		return expr.Binding{}, err
	}
	return expr.Binding{Pattern: p, Value: v}, nil
}

func (d *decoder) matchFunction(guarded bool) (expr.Node, error) {
	n, err := d.length()
	if err != nil {
		return nil, err
	}
	cases := make([]expr.Case, 0, n)
	for i := 0; i < n; i++ {
		p, err := d.pattern()
		if err != nil {
			return nil, err
		}
		c := expr.Case{Pattern: p}
		if guarded {
			flag, err := d.byte()
			if err != nil {
				return nil, err
			}
			switch flag {
			case 0:
			case 1:
				if c.Guard, err = d.node(); err != nil {
					return nil, err
				}
			default:
				return nil, d.errorf("bad guard flag %d", flag)
			}
		}
		if c.Body, err = d.node(); err != nil {
			return nil, err
		}
		cases = append(cases, c)
	}
	return expr.NewMatchFunction(token.Pos{}, cases), nil
}

// closure decodes a function with its captured environment as a where-group
// around the function, so that evaluating the result rebuilds the closure.
func (d *decoder) closure() (expr.Node, error) {
	fn, err := d.node()
	if err != nil {
		return nil, err
	}
	if _, ok := fn.(*expr.Function); !ok {
		return nil, d.errorf("closure over %T", fn)
	}
	d.refs = append(d.refs, &ref{node: fn})
	n, err := d.length()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return fn, nil
	}
	w := &expr.Where{Body: fn}
	for i := 0; i < n; i++ {
		key, err := d.string()
		if err != nil {
			return nil, err
		}
		v, err := d.node()
		if err != nil {
			return nil, err
		}
		w.Bindings = append(w.Bindings, expr.Binding{Pattern: &expr.Bind{Name: key}, Value: v})
	}
	return w, nil
}

func binop(op string) bool {
	switch op {
	case "->", "|>", "<|", ">>", "<<", "?", "@", "=", ".", ",", "|", "...", "::", ">*":
		return false
	}
	return token.IsOperator(op)
}
