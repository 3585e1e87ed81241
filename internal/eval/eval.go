// Package eval interprets scrapscript syntax trees.
package eval

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/sanity-io/litter"
	"github.com/tliron/commonlog"

	"nickandperla.net/scrap/internal/expr"
	"nickandperla.net/scrap/internal/hash"
	"nickandperla.net/scrap/internal/match"
	"nickandperla.net/scrap/internal/token"
	"nickandperla.net/scrap/internal/value"
)

// Resolver finds the scraps named by hash references and caches their
// values. *store.ObjectStore implements it.
type Resolver interface {
	Resolve(ctx context.Context, h hash.Hash) (expr.Node, error)
	Memoized(h hash.Hash) (value.Value, bool)
	Memoize(h hash.Hash, v value.Value)
}

// DefaultFetchTimeout bounds hash reference resolution and $$fetch.
const DefaultFetchTimeout = 30 * time.Second

// Evaluator interprets scrapscript expressions.
type Evaluator struct {
	resolver     Resolver
	log          commonlog.Logger
	natives      map[string]*value.Native
	fetchTimeout time.Duration
	client       *http.Client
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithResolver sets where hash references are resolved.
func WithResolver(r Resolver) Option {
	return func(e *Evaluator) { e.resolver = r }
}

// WithLogger sets the logger.
func WithLogger(log commonlog.Logger) Option {
	return func(e *Evaluator) { e.log = log }
}

// WithNative adds or replaces a builtin. name must start with "$$".
func WithNative(name string, fn value.NativeFunc) Option {
	return func(e *Evaluator) { e.natives[name] = &value.Native{Name: name, Fn: fn} }
}

// WithFetchTimeout bounds each hash reference resolution and $$fetch call.
// Zero disables the bound.
func WithFetchTimeout(d time.Duration) Option {
	return func(e *Evaluator) { e.fetchTimeout = d }
}

// WithHTTPClient sets the client used by $$fetch.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Evaluator) { e.client = c }
}

// New creates a new Evaluator.
func New(opts ...Option) *Evaluator {
	e := &Evaluator{
		log:          commonlog.GetLogger("scrap.eval"),
		natives:      make(map[string]*value.Native),
		fetchTimeout: DefaultFetchTimeout,
		client:       http.DefaultClient,
	}
	for _, name := range builtinNames {
		fn := getBuiltin(name)
		e.natives[name] = &value.Native{Name: name, Fn: func(ctx context.Context, arg value.Value) (value.Value, error) {
			return fn(e, ctx, arg)
		}}
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Natives returns the names of the builtins, sorted.
func (e *Evaluator) Natives() []string {
	names := make([]string, 0, len(e.natives))
	for name := range e.natives {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var dumper = litter.Options{StripPackageNames: true, HidePrivateFields: true, HideZeroValues: true}

// run is the state of one evaluation. It owns the thunks it forces.
type run struct {
	e *Evaluator
}

// Eval evaluates n in env. A nil env is the empty scope.
func (e *Evaluator) Eval(ctx context.Context, n expr.Node, env *value.Env) (value.Value, error) {
	if e.log.AllowLevel(commonlog.Debug) {
		e.log.Debugf("eval %s", dumper.Sdump(n))
	}
	r := &run{e: e}
	return r.eval(ctx, n, env)
}

// Run evaluates n in env like Eval, but a definition (x = ... or a group
// of them joined with ".") extends env instead of being discarded. The
// returned scope holds the definitions; it is env itself for anything
// else.
func (e *Evaluator) Run(ctx context.Context, n expr.Node, env *value.Env) (value.Value, *value.Env, error) {
	var bindings []expr.Binding
	switch n := n.(type) {
	case *expr.Assign:
		bindings = []expr.Binding{{Pattern: n.Pattern, Value: n.Value}}
	case *expr.Where:
		a, ok := n.Body.(*expr.Assign)
		if !ok {
			break
		}
		bindings = append([]expr.Binding{{Pattern: a.Pattern, Value: a.Value}}, n.Bindings...)
	}
	if bindings == nil {
		v, err := e.Eval(ctx, n, env)
		return v, env, err
	}

	r := &run{e: e}
	scope, values := r.group(bindings, env)
	// Definitions are forced immediately so that errors surface where
	// they are made.
	for _, b := range bindings {
		for _, name := range expr.Names(b.Pattern) {
			t, _ := scope.Lookup(name)
			if _, err := r.force(ctx, t, name, b.Value.Pos()); err != nil {
				return nil, env, err
			}
		}
	}
	v, err := r.force(ctx, values[0], "", n.Pos())
	if err != nil {
		return nil, env, err
	}
	return v, scope, nil
}

// group binds a where-group. Every binding can see the whole group. It
// returns the new scope and, per binding, the thunk of its bound value.
func (r *run) group(bindings []expr.Binding, env *value.Env) (*value.Env, []*value.Thunk) {
	values := make([]*value.Thunk, len(bindings))
	scope := value.Recursive(env, func(scope *value.Env) map[string]*value.Thunk {
		vars := make(map[string]*value.Thunk)
		for i, b := range bindings {
			t := value.NewThunk(func(ctx context.Context, owner any) (value.Value, error) {
				return owner.(*run).eval(ctx, b.Value, scope)
			})
			values[i] = t
			if p, ok := b.Pattern.(*expr.Bind); ok {
				vars[p.Name] = t
				continue
			}
			for _, name := range expr.Names(b.Pattern) {
				vars[name] = value.NewThunk(func(ctx context.Context, owner any) (value.Value, error) {
					v, err := owner.(*run).force(ctx, t, name, b.Value.Pos())
					if err != nil {
						return nil, err
					}
					m, ok := match.Match(b.Pattern, v)
					if !ok {
						return nil, errorf(BindingMismatch, b.Value.Pos(), "%s does not match pattern %s", v, b.Pattern)
					}
					return m[name], nil
				})
			}
		}
		return vars
	})
	return scope, values
}

func (r *run) force(ctx context.Context, t *value.Thunk, name string, pos token.Pos) (value.Value, error) {
	v, err := t.Force(ctx, r)
	if errors.Is(err, value.ErrCircular) {
		if name == "" {
			return nil, errorf(CircularBinding, pos, "binding depends on itself")
		}
		return nil, errorf(CircularBinding, pos, "%s depends on itself", name)
	}
	return v, err
}

func (r *run) lookup(ctx context.Context, n *expr.Var, env *value.Env) (value.Value, error) {
	if expr.IsBuiltinName(n.Name) {
		if native, ok := r.e.natives[n.Name]; ok {
			return native, nil
		}
		return nil, errorf(UnboundVariable, n.Pos(), "no builtin named %s", n.Name)
	}
	t, ok := env.Lookup(n.Name)
	if !ok {
		return nil, errorf(UnboundVariable, n.Pos(), "name %s is not defined", n.Name)
	}
	return r.force(ctx, t, n.Name, n.Pos())
}

func (r *run) eval(ctx context.Context, node expr.Node, env *value.Env) (value.Value, error) {
	// Tail positions loop instead of recursing.
	for {
		switch n := node.(type) {
		case *expr.Int:
			return &value.Int{V: n.Value}, nil

		case *expr.Float:
			return &value.Float{V: n.Value}, nil

		case *expr.String:
			return &value.String{V: n.Value}, nil

		case *expr.Bytes:
			return &value.Bytes{V: n.Value}, nil

		case *expr.Hole:
			return &value.Hole{}, nil

		case *expr.Var:
			return r.lookup(ctx, n, env)

		case *expr.HashRef:
			return r.resolve(ctx, n)

		case *expr.Variant:
			if n.Payload == nil {
				return &value.Variant{Tag: n.Tag}, nil
			}
			payload, err := r.eval(ctx, n.Payload, env)
			if err != nil {
				return nil, err
			}
			return &value.Variant{Tag: n.Tag, Payload: payload}, nil

		case *expr.List:
			return r.list(ctx, n, env)

		case *expr.Record:
			return r.record(ctx, n, env)

		case *expr.Binop:
			return r.binop(ctx, n, env)

		case *expr.Function:
			return &value.Closure{Param: n.Param, Body: n.Body, Env: env, Source: n}, nil

		case *expr.Apply:
			fn, err := r.eval(ctx, n.Func, env)
			if err != nil {
				return nil, err
			}
			arg, err := r.eval(ctx, n.Arg, env)
			if err != nil {
				return nil, err
			}
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			switch f := fn.(type) {
			case *value.Closure:
				b, ok := match.Match(f.Param, arg)
				if !ok {
					return nil, errorf(ArgumentMismatch, n.Pos(), "cannot apply %s to %s", f, arg)
				}
				node, env = f.Body, f.Env.Extend(b)
				continue
			case *value.Native:
				return f.Fn(ctx, arg)
			case *value.Hole:
				return nil, errorf(HoleEncountered, n.Func.Pos(), "cannot apply a hole")
			}
			return nil, errorf(TypeMismatch, n.Func.Pos(), "cannot apply a %s", fn.Kind())

		case *expr.Match:
			scrutinee, err := r.eval(ctx, n.Scrutinee, env)
			if err != nil {
				return nil, err
			}
			next, scope, err := r.choose(ctx, n, scrutinee, env)
			if err != nil {
				return nil, err
			}
			node, env = next, scope
			continue

		case *expr.Where:
			env, _ = r.group(n.Bindings, env)
			node = n.Body
			continue

		case *expr.Assign:
			_, values := r.group([]expr.Binding{{Pattern: n.Pattern, Value: n.Value}}, env)
			v, err := r.force(ctx, values[0], "", n.Pos())
			if err != nil {
				return nil, err
			}
			if _, ok := match.Match(n.Pattern, v); !ok {
				return nil, errorf(BindingMismatch, n.Pos(), "%s does not match pattern %s", v, n.Pattern)
			}
			return v, nil

		case *expr.Access:
			return r.access(ctx, n, env)

		case *expr.Assert:
			cond, err := r.eval(ctx, n.Cond, env)
			if err != nil {
				return nil, err
			}
			truth, ok := value.AsBool(cond)
			if !ok {
				return nil, errorf(TypeMismatch, n.Cond.Pos(), "assertion condition must be a boolean, got %s", cond.Kind())
			}
			if !truth {
				return nil, errorf(AssertionFailed, n.Cond.Pos(), "condition %s failed", n.Cond)
			}
			node = n.Value
			continue
		}
		return nil, errorf(TypeMismatch, node.Pos(), "cannot evaluate %T", node)
	}
}

// choose finds the first case matching v and returns its body and scope.
func (r *run) choose(ctx context.Context, n *expr.Match, v value.Value, env *value.Env) (expr.Node, *value.Env, error) {
	for _, c := range n.Cases {
		b, ok := match.Match(c.Pattern, v)
		if !ok {
			continue
		}
		scope := env.Extend(b)
		if c.Guard != nil {
			g, err := r.eval(ctx, c.Guard, scope)
			if err != nil {
				return nil, nil, err
			}
			truth, ok := value.AsBool(g)
			if !ok {
				return nil, nil, errorf(TypeMismatch, c.Guard.Pos(), "guard must be a boolean, got %s", g.Kind())
			}
			if !truth {
				continue
			}
		}
		return c.Body, scope, nil
	}
	return nil, nil, errorf(NonExhaustiveMatch, n.Pos(), "no case matches %s value %s", v.Kind(), v)
}

func (r *run) spread(ctx context.Context, v *expr.Var, env *value.Env) (value.Value, error) {
	if v.Name == "" {
		return nil, errorf(TypeMismatch, v.Pos(), "spread in a literal needs a name")
	}
	return r.lookup(ctx, v, env)
}

func (r *run) list(ctx context.Context, n *expr.List, env *value.Env) (value.Value, error) {
	elems := make([]value.Value, 0, len(n.Elems))
	for _, e := range n.Elems {
		v, err := r.eval(ctx, e, env)
		if err != nil {
			return nil, err
		}
		elems = append(elems, v)
	}
	if n.Spread != nil {
		base, err := r.spread(ctx, n.Spread, env)
		if err != nil {
			return nil, err
		}
		bl, ok := base.(*value.List)
		if !ok {
			return nil, errorf(TypeMismatch, n.Spread.Pos(), "cannot spread a %s into a list", base.Kind())
		}
		elems = append(elems, bl.Elems...)
	}
	return &value.List{Elems: elems}, nil
}

func (r *run) record(ctx context.Context, n *expr.Record, env *value.Env) (value.Value, error) {
	seen := make(map[string]bool, len(n.Fields))
	for _, f := range n.Fields {
		if seen[f.Name] {
			return nil, errorf(DuplicateField, n.Pos(), "field %s is defined more than once", f.Name)
		}
		seen[f.Name] = true
	}
	rec := value.NewRecord()
	for _, f := range n.Fields {
		v, err := r.eval(ctx, f.Value, env)
		if err != nil {
			return nil, err
		}
		rec.Set(f.Name, v)
	}
	if n.Spread != nil {
		base, err := r.spread(ctx, n.Spread, env)
		if err != nil {
			return nil, err
		}
		br, ok := base.(*value.Record)
		if !ok {
			return nil, errorf(TypeMismatch, n.Spread.Pos(), "cannot spread a %s into a record", base.Kind())
		}
		for _, k := range br.Keys {
			if !seen[k] {
				rec.Set(k, br.Fields[k])
			}
		}
	}
	return rec, nil
}

func (r *run) access(ctx context.Context, n *expr.Access, env *value.Env) (value.Value, error) {
	target, err := r.eval(ctx, n.Target, env)
	if err != nil {
		return nil, err
	}
	switch t := target.(type) {
	case *value.Record:
		key, ok := n.Key.(*expr.Var)
		if !ok {
			return nil, errorf(TypeMismatch, n.Key.Pos(), "record fields are accessed by name, got %s", n.Key)
		}
		v, ok := t.Get(key.Name)
		if !ok {
			return nil, errorf(MissingField, n.Key.Pos(), "record has no field %s", key.Name)
		}
		return v, nil

	case *value.List:
		key, err := r.eval(ctx, n.Key, env)
		if err != nil {
			return nil, err
		}
		i, ok := key.(*value.Int)
		if !ok {
			return nil, errorf(TypeMismatch, n.Key.Pos(), "lists are indexed by int, got %s", key.Kind())
		}
		if !i.V.IsInt64() || i.V.Sign() < 0 || i.V.Int64() >= int64(len(t.Elems)) {
			return nil, errorf(IndexOutOfRange, n.Key.Pos(), "index %s out of range for list of length %d", i.V, len(t.Elems))
		}
		return t.Elems[i.V.Int64()], nil

	case *value.Hole:
		return nil, errorf(HoleEncountered, n.Target.Pos(), "cannot access a hole")
	}
	return nil, errorf(TypeMismatch, n.Target.Pos(), "cannot access a %s", target.Kind())
}

func (r *run) resolve(ctx context.Context, n *expr.HashRef) (value.Value, error) {
	h := hash.Hash(n.Digest)
	res := r.e.resolver
	if res == nil {
		return nil, errorf(UnresolvedReference, n.Pos(), "no object store to resolve %s", h)
	}
	if v, ok := res.Memoized(h); ok {
		return v, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fetchCtx := ctx
	if r.e.fetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, r.e.fetchTimeout)
		defer cancel()
	}
	r.e.log.Debugf("resolving %s", h)
	term, err := res.Resolve(fetchCtx, h)
	if err != nil {
		return nil, &Error{Kind: UnresolvedReference, Pos: n.Pos(), Msg: "cannot resolve " + h.String() + ": " + err.Error(), Err: err}
	}
	// Scraps are closed, so they only see the builtins.
	v, err := r.eval(ctx, term, nil)
	if err != nil {
		return nil, err
	}
	res.Memoize(h, v)
	return v, nil
}
