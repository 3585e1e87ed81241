// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/alexflint/go-arg"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"

	"nickandperla.net/scrap/internal/battery"
	"nickandperla.net/scrap/internal/config"
	"nickandperla.net/scrap/internal/errwrap"
	"nickandperla.net/scrap/internal/eval"
	"nickandperla.net/scrap/internal/provider"
	"nickandperla.net/scrap/pkg/scrap"
)

// CLI parses args and runs the selected command. With no command it starts
// the REPL.
func CLI(ctx context.Context, argv []string, e *env) error {
	args := Args{}
	parser, err := arg.NewParser(arg.Config{Program: "scrap"}, &args)
	if err != nil {
		// programming error
		return errwrap.Wrapf(err, "cli config error")
	}
	err = parser.Parse(argv)
	if err == arg.ErrHelp {
		parser.WriteHelp(e.stdout)
		return nil
	}
	if err == arg.ErrVersion {
		fmt.Fprintf(e.stdout, "%s\n", version)
		return nil
	}
	if err != nil {
		return errwrap.Wrapf(err, "cli parse error")
	}

	cfg, err := config.FindAndLoad(e.fs, e.wd)
	if err != nil {
		return err
	}
	verbosity := cfg.Log.Verbosity
	if args.Verbosity > 0 {
		verbosity = args.Verbosity
	}
	if args.Debug {
		verbosity = 2
	}
	configureLogging(verbosity)

	if ok, err := args.Run(ctx, cfg, e); err != nil {
		return err
	} else if ok {
		return nil
	}
	return (&ReplArgs{}).Run(ctx, &args, cfg, e)
}

// Args are the command line arguments.
type Args struct {
	Debug     bool   `arg:"--debug" help:"enable debug logging"`
	Verbosity int    `arg:"-v,--verbosity" help:"log verbosity (0 is errors only)"`
	DB        string `arg:"--db" help:"SQLite store path (default from scrap.toml, else in memory)"`
	Remote    string `arg:"--remote" help:"scrap server to fetch missing scraps from"`
	NoStdlib  bool   `arg:"--no-stdlib" help:"do not load the prelude"`

	EvalCmd  *EvalArgs  `arg:"subcommand:eval" help:"evaluate a program file"`
	ApplyCmd *ApplyArgs `arg:"subcommand:apply" help:"evaluate a program given on the command line"`
	ReplCmd  *ReplArgs  `arg:"subcommand:repl" help:"start the interactive loop"`
	TestCmd  *TestArgs  `arg:"subcommand:test" help:"run a test battery"`
	FlatCmd  *FlatArgs  `arg:"subcommand:flat" help:"write the flat encoding of a program"`
	HashCmd  *HashArgs  `arg:"subcommand:hash" help:"print the canonical hash of a program"`
	PutCmd   *PutArgs   `arg:"subcommand:put" help:"store a program and print its hash reference"`
	ServeCmd *ServeArgs `arg:"subcommand:serve" help:"serve stored scraps over HTTP"`
}

// Version implements arg.Versioned.
func (obj *Args) Version() string {
	return version
}

// Description implements arg.Described.
func (obj *Args) Description() string {
	return "scrap evaluates scrapscript programs"
}

// Run runs the selected subcommand. It returns false if none was selected.
func (obj *Args) Run(ctx context.Context, cfg *config.Config, e *env) (bool, error) {
	if cmd := obj.EvalCmd; cmd != nil {
		return true, cmd.Run(ctx, obj, cfg, e)
	}
	if cmd := obj.ApplyCmd; cmd != nil {
		return true, cmd.Run(ctx, obj, cfg, e)
	}
	if cmd := obj.ReplCmd; cmd != nil {
		return true, cmd.Run(ctx, obj, cfg, e)
	}
	if cmd := obj.TestCmd; cmd != nil {
		return true, cmd.Run(ctx, obj, cfg, e)
	}
	if cmd := obj.FlatCmd; cmd != nil {
		return true, cmd.Run(ctx, obj, cfg, e)
	}
	if cmd := obj.HashCmd; cmd != nil {
		return true, cmd.Run(ctx, obj, cfg, e)
	}
	if cmd := obj.PutCmd; cmd != nil {
		return true, cmd.Run(ctx, obj, cfg, e)
	}
	if cmd := obj.ServeCmd; cmd != nil {
		return true, cmd.Run(ctx, obj, cfg, e)
	}
	return false, nil // nobody activated
}

// options builds runtime options from the flags, falling back to cfg.
func (obj *Args) options(cfg *config.Config, e *env) []scrap.Option {
	opts := []scrap.Option{scrap.WithFs(e.fs)}

	switch path := obj.DB; {
	case path != "":
		opts = append(opts, scrap.WithSQLiteStore(path))
	case cfg.Store.Path != "":
		opts = append(opts, scrap.WithSQLiteStore(cfg.Resolve(cfg.Store.Path)))
	default:
		opts = append(opts, scrap.WithMemoryStore())
	}

	remote := cfg.Remote.URL
	if obj.Remote != "" {
		remote = obj.Remote
	}
	if remote != "" {
		opts = append(opts, scrap.WithRemote(remote, cfg.Remote.Timeout.Duration))
	}
	if t := cfg.Remote.Timeout.Duration; t > 0 {
		opts = append(opts, scrap.WithFetchTimeout(t))
	}
	if obj.NoStdlib {
		opts = append(opts, scrap.WithNoStdlib())
	}
	return opts
}

func (obj *Args) runtime(ctx context.Context, cfg *config.Config, e *env, extra ...scrap.Option) (*scrap.Runtime, error) {
	return scrap.New(ctx, append(obj.options(cfg, e), extra...)...)
}

// readSource reads the file at path, or stdin when path is "" or "-".
func readSource(e *env, path string) (string, error) {
	if path == "" || path == "-" {
		data, err := io.ReadAll(e.stdin)
		if err != nil {
			return "", errwrap.Wrapf(err, "cannot read stdin")
		}
		return string(data), nil
	}
	data, err := afero.ReadFile(e.fs, path)
	if err != nil {
		return "", errwrap.Wrapf(err, "cannot read %s", path)
	}
	return string(data), nil
}

// EvalArgs is the eval command.
type EvalArgs struct {
	File string `arg:"positional" help:"program file, or - for stdin"`
}

// Run evaluates the program and prints its value.
func (obj *EvalArgs) Run(ctx context.Context, args *Args, cfg *config.Config, e *env) error {
	src, err := readSource(e, obj.File)
	if err != nil {
		return err
	}
	rt, err := args.runtime(ctx, cfg, e)
	if err != nil {
		return err
	}
	defer rt.Close()
	v, err := rt.Eval(ctx, src)
	if err != nil {
		return err
	}
	fmt.Fprintln(e.stdout, v)
	return nil
}

// ApplyArgs is the apply command.
type ApplyArgs struct {
	Program string `arg:"positional,required" help:"program source"`
	Arg     string `arg:"positional" help:"argument source; the program must then be a function"`
}

// Run evaluates the program, applied to the argument if one was given.
func (obj *ApplyArgs) Run(ctx context.Context, args *Args, cfg *config.Config, e *env) error {
	rt, err := args.runtime(ctx, cfg, e)
	if err != nil {
		return err
	}
	defer rt.Close()

	var v scrap.Value
	if obj.Arg == "" {
		v, err = rt.Eval(ctx, obj.Program)
	} else {
		v, err = rt.Apply(ctx, obj.Program, obj.Arg)
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(e.stdout, v)
	return nil
}

// TestArgs is the test command.
type TestArgs struct {
	File string `arg:"positional,required" help:"battery file"`
}

// Run runs the battery and reports each case.
func (obj *TestArgs) Run(ctx context.Context, args *Args, cfg *config.Config, e *env) error {
	b, err := battery.Load(e.fs, obj.File)
	if err != nil {
		return err
	}
	var opts []battery.RunnerOption
	if args.NoStdlib {
		opts = append(opts, battery.WithoutPrelude())
	}
	r, err := battery.NewRunner(eval.New(), opts...)
	if err != nil {
		return err
	}
	results, err := r.Run(ctx, b)
	passed := 0
	for _, res := range results {
		if res.Passed {
			passed++
			fmt.Fprintf(e.stdout, "PASS %s\n", res.Case.Name)
			continue
		}
		fmt.Fprintf(e.stdout, "FAIL %s: %s\n", res.Case.Name, res.Reason)
	}
	fmt.Fprintf(e.stdout, "%d/%d passed\n", passed, len(b.Cases))
	if err != nil {
		return fmt.Errorf("%d of %d cases failed", len(results)-passed, len(b.Cases))
	}
	return nil
}

// FlatArgs is the flat command.
type FlatArgs struct {
	File string `arg:"positional" help:"program file, or - for stdin"`
}

// Run writes the flat encoding of the program.
func (obj *FlatArgs) Run(ctx context.Context, args *Args, cfg *config.Config, e *env) error {
	src, err := readSource(e, obj.File)
	if err != nil {
		return err
	}
	rt, err := args.runtime(ctx, cfg, e, scrap.WithNoStdlib())
	if err != nil {
		return err
	}
	defer rt.Close()
	b, err := rt.Flat(src)
	if err != nil {
		return err
	}
	_, err = e.stdout.Write(b)
	return err
}

// HashArgs is the hash command.
type HashArgs struct {
	File string `arg:"positional" help:"program file, or - for stdin"`
}

// Run prints the hash reference of the program.
func (obj *HashArgs) Run(ctx context.Context, args *Args, cfg *config.Config, e *env) error {
	src, err := readSource(e, obj.File)
	if err != nil {
		return err
	}
	rt, err := args.runtime(ctx, cfg, e, scrap.WithNoStdlib())
	if err != nil {
		return err
	}
	defer rt.Close()
	h, err := rt.Hash(src)
	if err != nil {
		return err
	}
	fmt.Fprintln(e.stdout, h.Ref())
	return nil
}

// PutArgs is the put command.
type PutArgs struct {
	File string `arg:"positional" help:"program file, or - for stdin"`
}

// Run stores the program and prints its hash reference.
func (obj *PutArgs) Run(ctx context.Context, args *Args, cfg *config.Config, e *env) error {
	src, err := readSource(e, obj.File)
	if err != nil {
		return err
	}
	rt, err := args.runtime(ctx, cfg, e, scrap.WithNoStdlib())
	if err != nil {
		return err
	}
	h, err := rt.Put(src)
	if err != nil {
		return errwrap.Append(err, rt.Close())
	}
	fmt.Fprintln(e.stdout, h.Ref())
	return rt.Close()
}

// ServeArgs is the serve command.
type ServeArgs struct {
	Addr string `arg:"--addr" default:":8080" help:"listen address"`

	// listening is called with the bound address once the server accepts
	// connections.
	listening func(addr string) `arg:"-"`
}

// Run serves the store until ctx is done.
func (obj *ServeArgs) Run(ctx context.Context, args *Args, cfg *config.Config, e *env) error {
	reg := prometheus.NewRegistry()
	rt, err := args.runtime(ctx, cfg, e, scrap.WithNoStdlib(), scrap.WithRegisterer(reg))
	if err != nil {
		return err
	}
	defer rt.Close()

	ln, err := net.Listen("tcp", obj.Addr)
	if err != nil {
		return errwrap.Wrapf(err, "cannot listen on %s", obj.Addr)
	}
	srv := &http.Server{
		Handler:           provider.NewHandler(rt.Store(), reg),
		ReadHeaderTimeout: 10 * time.Second,
	}
	fmt.Fprintf(e.stderr, "serving scraps on %s\n", ln.Addr())
	if obj.listening != nil {
		obj.listening(ln.Addr().String())
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdown); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// errorLine formats an evaluation error for display.
func errorLine(err error) string {
	msg := err.Error()
	if _, ok := eval.KindOf(err); !ok {
		msg = "error: " + msg
	}
	return strings.TrimSpace(msg)
}
