// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

// Package battery runs TOML files of scrapscript test cases.
//
// A battery file is a list of [[case]] tables:
//
//	[[case]]
//	name = "addition"
//	input = "1 + 2"
//	expect = "3"
//
//	[[case]]
//	name = "missing name"
//	input = "x"
//	error = "UnboundVariable"
//
// Each case is evaluated in a fresh scope holding the prelude. An expect
// case passes when the input evaluates to a value structurally equal to
// the evaluated expect source. An error case passes when evaluation fails
// with the named error kind.
package battery

import (
	"context"
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/spf13/afero"
	"github.com/tliron/commonlog"

	"nickandperla.net/scrap/internal/errwrap"
	"nickandperla.net/scrap/internal/eval"
	"nickandperla.net/scrap/internal/expr"
	"nickandperla.net/scrap/internal/parser"
	"nickandperla.net/scrap/internal/stdlib"
	"nickandperla.net/scrap/internal/value"
)

// Case is one test case.
type Case struct {
	Name   string `toml:"name"`
	Input  string `toml:"input"`
	Expect string `toml:"expect"`
	Error  string `toml:"error"`
}

// Battery is a parsed battery file.
type Battery struct {
	Cases []Case `toml:"case"`
}

// Parse decodes a battery from TOML source and validates its cases.
func Parse(src string) (*Battery, error) {
	var b Battery
	if _, err := toml.Decode(src, &b); err != nil {
		return nil, errwrap.Wrapf(err, "parse error in battery")
	}
	for i, c := range b.Cases {
		if c.Name == "" {
			return nil, fmt.Errorf("case #%d has no name", i)
		}
		if (c.Expect == "") == (c.Error == "") {
			return nil, fmt.Errorf("case %q needs exactly one of expect or error", c.Name)
		}
		if c.Error != "" {
			if _, ok := eval.ParseKind(c.Error); !ok {
				return nil, fmt.Errorf("case %q: unknown error kind %s", c.Name, c.Error)
			}
		}
	}
	return &b, nil
}

// Load reads and parses the battery file at path.
func Load(fs afero.Fs, path string) (*Battery, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errwrap.Wrapf(err, "cannot read %s", path)
	}
	b, err := Parse(string(data))
	if err != nil {
		return nil, errwrap.Wrapf(err, "in %s", path)
	}
	return b, nil
}

// Result is the outcome of one case.
type Result struct {
	Case   Case
	Passed bool
	// Got is the value the input evaluated to, if it did.
	Got value.Value
	// Err is the evaluation error, if there was one.
	Err error
	// Reason explains a failure.
	Reason string
}

// Runner evaluates batteries.
type Runner struct {
	evaluator *eval.Evaluator
	prelude   expr.Node
	log       commonlog.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithoutPrelude runs cases in an empty scope.
func WithoutPrelude() RunnerOption {
	return func(r *Runner) {
		r.prelude = nil
	}
}

// WithLogger sets the logger.
func WithLogger(log commonlog.Logger) RunnerOption {
	return func(r *Runner) {
		r.log = log
	}
}

// NewRunner returns a Runner that evaluates cases with e.
func NewRunner(e *eval.Evaluator, opts ...RunnerOption) (*Runner, error) {
	prelude, err := stdlib.Parse()
	if err != nil {
		return nil, errwrap.Wrapf(err, "cannot parse prelude")
	}
	r := &Runner{
		evaluator: e,
		prelude:   prelude,
		log:       commonlog.GetLogger("scrap.battery"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Run evaluates every case. The returned error combines the failures; it
// is nil when all cases pass. A cancelled ctx stops the run.
func (r *Runner) Run(ctx context.Context, b *Battery) ([]Result, error) {
	var results []Result
	var failures error
	for _, c := range b.Cases {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res := r.runCase(ctx, c)
		results = append(results, res)
		if res.Passed {
			r.log.Debugf("pass: %s", c.Name)
			continue
		}
		r.log.Infof("fail: %s: %s", c.Name, res.Reason)
		failures = errwrap.Append(failures, fmt.Errorf("%s: %s", c.Name, res.Reason))
	}
	return results, failures
}

func (r *Runner) scope(ctx context.Context) (*value.Env, error) {
	if r.prelude == nil {
		return nil, nil
	}
	_, env, err := r.evaluator.Run(ctx, r.prelude, nil)
	return env, err
}

func (r *Runner) evaluate(ctx context.Context, src string, env *value.Env) (value.Value, error) {
	n, err := parser.Parse(src)
	if err != nil {
		return nil, err
	}
	return r.evaluator.Eval(ctx, n, env)
}

func (r *Runner) runCase(ctx context.Context, c Case) Result {
	res := Result{Case: c}
	env, err := r.scope(ctx)
	if err != nil {
		res.Err = err
		res.Reason = fmt.Sprintf("prelude failed: %v", err)
		return res
	}

	res.Got, res.Err = r.evaluate(ctx, c.Input, env)

	if c.Error != "" {
		want, _ := eval.ParseKind(c.Error)
		got, ok := eval.KindOf(res.Err)
		switch {
		case res.Err == nil:
			res.Reason = fmt.Sprintf("expected %s, got %s", want, res.Got)
		case !ok || got != want:
			res.Reason = fmt.Sprintf("expected %s, got error %v", want, res.Err)
		default:
			res.Passed = true
		}
		return res
	}

	if res.Err != nil {
		res.Reason = fmt.Sprintf("unexpected error: %v", res.Err)
		return res
	}
	want, err := r.evaluate(ctx, c.Expect, env)
	if err != nil {
		res.Reason = fmt.Sprintf("cannot evaluate expect: %v", err)
		return res
	}
	if !value.Equal(res.Got, want) {
		res.Reason = fmt.Sprintf("expected %s, got %s", want, res.Got)
		return res
	}
	res.Passed = true
	return res
}
