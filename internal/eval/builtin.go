package eval

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"

	"nickandperla.net/scrap/internal/expr"
	"nickandperla.net/scrap/internal/flat"
	"nickandperla.net/scrap/internal/hash"
	"nickandperla.net/scrap/internal/token"
	"nickandperla.net/scrap/internal/value"
)

// BuiltinFunc is the signature for builtin functions.
type BuiltinFunc func(e *Evaluator, ctx context.Context, arg value.Value) (value.Value, error)

var builtinNames = []string{
	"$$add",
	"$$listlength",
	"$$serialize",
	"$$deserialize",
	"$$jsondecode",
	"$$fetch",
	"$$hash",
}

// getBuiltin returns the builtin function for the given name, or nil if not found.
func getBuiltin(name string) BuiltinFunc {
	switch name {
	case "$$add":
		return builtinAdd
	case "$$listlength":
		return builtinListLength
	case "$$serialize":
		return builtinSerialize
	case "$$deserialize":
		return builtinDeserialize
	case "$$jsondecode":
		return builtinJSONDecode
	case "$$fetch":
		return builtinFetch
	case "$$hash":
		return builtinHash
	}
	return nil
}

func argError(name string, want string, got value.Value) error {
	return errorf(TypeMismatch, token.Pos{}, "%s expected %s, but got %s", strings.TrimPrefix(name, "$$"), want, got.Kind())
}

// builtinAdd returns y -> x + y, so that it can be serialized like any
// other closure.
func builtinAdd(e *Evaluator, ctx context.Context, arg value.Value) (value.Value, error) {
	fn := &expr.Function{
		Param: &expr.Bind{Name: "y"},
		Body:  &expr.Binop{Op: "+", Left: &expr.Var{Name: "x"}, Right: &expr.Var{Name: "y"}},
	}
	env := value.NewEnv(nil, map[string]value.Value{"x": arg})
	return &value.Closure{Param: fn.Param, Body: fn.Body, Env: env, Source: fn}, nil
}

func builtinListLength(e *Evaluator, ctx context.Context, arg value.Value) (value.Value, error) {
	list, ok := arg.(*value.List)
	if !ok {
		return nil, argError("$$listlength", "list", arg)
	}
	return value.NewInt(int64(len(list.Elems))), nil
}

func builtinSerialize(e *Evaluator, ctx context.Context, arg value.Value) (value.Value, error) {
	n, err := (&run{e: e}).reify(ctx, arg)
	if err != nil {
		return nil, err
	}
	b, err := flat.Encode(n)
	if err != nil {
		return nil, errorf(TypeMismatch, token.Pos{}, "cannot serialize %s: %v", arg.Kind(), err)
	}
	return &value.Bytes{V: b}, nil
}

func builtinDeserialize(e *Evaluator, ctx context.Context, arg value.Value) (value.Value, error) {
	b, ok := arg.(*value.Bytes)
	if !ok {
		return nil, argError("$$deserialize", "bytes", arg)
	}
	n, err := flat.Decode(b.V)
	if err != nil {
		return nil, &Error{Kind: TypeMismatch, Msg: err.Error(), Err: err}
	}
	return (&run{e: e}).eval(ctx, n, nil)
}

func builtinHash(e *Evaluator, ctx context.Context, arg value.Value) (value.Value, error) {
	n, err := (&run{e: e}).reify(ctx, arg)
	if err != nil {
		return nil, err
	}
	return &value.String{V: hash.Sum(n).String()}, nil
}

func builtinFetch(e *Evaluator, ctx context.Context, arg value.Value) (value.Value, error) {
	url, ok := arg.(*value.String)
	if !ok {
		return nil, argError("$$fetch", "text", arg)
	}
	if e.fetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.fetchTimeout)
		defer cancel()
	}
	fail := func(err error) error {
		return &Error{Kind: UnresolvedReference, Msg: fmt.Sprintf("fetch %s: %v", url.V, err), Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url.V, nil)
	if err != nil {
		return nil, fail(err)
	}
	e.log.Infof("fetching %s", url.V)
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fail(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, fail(fmt.Errorf("unexpected status %s", resp.Status))
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fail(err)
	}
	return &value.String{V: string(body)}, nil
}

func builtinJSONDecode(e *Evaluator, ctx context.Context, arg value.Value) (value.Value, error) {
	text, ok := arg.(*value.String)
	if !ok {
		return nil, argError("$$jsondecode", "text", arg)
	}
	dec := json.NewDecoder(strings.NewReader(text.V))
	dec.UseNumber()
	v, err := decodeJSON(dec)
	if err == nil {
		if _, err = dec.Token(); err == io.EOF {
			return v, nil
		}
		if err == nil {
			err = fmt.Errorf("trailing data after JSON value")
		}
	}
	return nil, &Error{Kind: TypeMismatch, Msg: "jsondecode: " + err.Error(), Err: err}
}

// decodeJSON reads one JSON value token by token so that object keys keep
// their order.
func decodeJSON(dec *json.Decoder) (value.Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch tok := tok.(type) {
	case json.Delim:
		switch tok {
		case '[':
			list := &value.List{}
			for dec.More() {
				v, err := decodeJSON(dec)
				if err != nil {
					return nil, err
				}
				list.Elems = append(list.Elems, v)
			}
			_, err := dec.Token()
			return list, err
		case '{':
			rec := value.NewRecord()
			for dec.More() {
				key, err := dec.Token()
				if err != nil {
					return nil, err
				}
				v, err := decodeJSON(dec)
				if err != nil {
					return nil, err
				}
				rec.Set(key.(string), v)
			}
			_, err := dec.Token()
			return rec, err
		}
	case json.Number:
		if i, ok := new(big.Int).SetString(tok.String(), 10); ok {
			return &value.Int{V: i}, nil
		}
		f, err := tok.Float64()
		if err != nil {
			return nil, err
		}
		return &value.Float{V: f}, nil
	case string:
		return &value.String{V: tok}, nil
	case bool:
		return value.Bool(tok), nil
	case nil:
		return &value.Hole{}, nil
	}
	return nil, fmt.Errorf("unexpected JSON token %v", tok)
}
