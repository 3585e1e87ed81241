package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/afero"
	"golang.org/x/term"

	"nickandperla.net/scrap/internal/config"
	"nickandperla.net/scrap/internal/parser"
	"nickandperla.net/scrap/pkg/scrap"
)

const (
	prompt       = ">>> "
	promptMore   = "... "
	bannerFormat = "scrap %s (Ctrl+D to exit, _ is the last result)\n"

	// maxLine bounds a single line of piped input.
	maxLine = 16 << 20
)

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// ReplArgs is the repl command.
type ReplArgs struct {
	History string `arg:"--history" help:"history file (default from scrap.toml)"`
}

// Run reads and evaluates input until EOF. Definitions stay in scope.
func (obj *ReplArgs) Run(ctx context.Context, args *Args, cfg *config.Config, e *env) error {
	rt, err := args.runtime(ctx, cfg, e)
	if err != nil {
		return err
	}
	defer rt.Close()

	s := &session{rt: rt, fs: e.fs, out: e.stdout}
	if !e.interactive {
		return s.basic(ctx, e.stdin)
	}

	history := obj.History
	if history == "" {
		history = cfg.Resolve(cfg.REPL.History)
	}
	fmt.Fprintf(e.stdout, bannerFormat, version)
	return s.interactive(ctx, history)
}

// session accumulates input lines until they form a complete program.
type session struct {
	rt  *scrap.Runtime
	fs  afero.Fs
	out io.Writer
	buf strings.Builder
}

// pending reports whether incomplete input is buffered.
func (s *session) pending() bool {
	return s.buf.Len() > 0
}

// feed adds a line of input, evaluating the buffer once it parses. It
// returns false while the input is incomplete.
func (s *session) feed(ctx context.Context, line string) bool {
	s.buf.WriteString(line)
	s.buf.WriteString("\n")
	src := s.buf.String()
	if strings.TrimSpace(src) == "" {
		s.buf.Reset()
		return true
	}

	n, err := parser.Parse(src)
	if parser.IsIncomplete(err) {
		return false
	}
	s.buf.Reset()
	if err != nil {
		fmt.Fprintln(s.out, errorLine(err))
		return true
	}
	v, err := s.rt.EvalNode(ctx, n)
	if err != nil {
		fmt.Fprintln(s.out, errorLine(err))
		return true
	}
	fmt.Fprintln(s.out, v)
	return true
}

// basic handles non-TTY input.
func (s *session) basic(ctx context.Context, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(nil, maxLine)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.feed(ctx, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	if s.pending() {
		fmt.Fprintln(s.out, "error: unexpected end of input")
	}
	return nil
}

// interactive handles TTY input with line editing and history.
func (s *session) interactive(ctx context.Context, historyPath string) error {
	state := liner.NewLiner()
	defer state.Close()
	state.SetCtrlCAborts(true)
	state.SetWordCompleter(s.complete)

	if historyPath != "" {
		loadHistory(s.fs, historyPath, state)
		defer saveHistory(s.fs, historyPath, state)
	}

	var entry strings.Builder
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		p := prompt
		if s.pending() {
			p = promptMore
		}
		line, err := state.Prompt(p)
		if err != nil {
			switch {
			case errors.Is(err, liner.ErrPromptAborted):
				s.buf.Reset()
				entry.Reset()
				continue
			case errors.Is(err, io.EOF):
				fmt.Fprintln(s.out)
				return nil
			}
			return err
		}
		if entry.Len() > 0 {
			entry.WriteString("\n")
		}
		entry.WriteString(line)
		if s.feed(ctx, line) {
			if trimmed := strings.TrimSpace(entry.String()); trimmed != "" {
				state.AppendHistory(trimmed)
			}
			entry.Reset()
		}
	}
}

// history is the part of liner.State that persists entries.
type history interface {
	ReadHistory(r io.Reader) (int, error)
	WriteHistory(w io.Writer) (int, error)
}

// loadHistory reads entries from path. A missing file is not an error.
func loadHistory(fs afero.Fs, path string, h history) error {
	f, err := fs.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = h.ReadHistory(f)
	return err
}

func saveHistory(fs afero.Fs, path string, h history) error {
	f, err := fs.Create(path)
	if err != nil {
		return err
	}
	if _, err := h.WriteHistory(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// complete completes the name under the cursor from the session scope.
func (s *session) complete(line string, pos int) (head string, completions []string, tail string) {
	start := pos
	for start > 0 && isNameByte(line[start-1]) {
		start--
	}
	word := line[start:pos]
	if word == "" {
		return line[:pos], nil, line[pos:]
	}
	for _, name := range s.rt.Names() {
		if strings.HasPrefix(name, word) {
			completions = append(completions, name)
		}
	}
	return line[:start], completions, line[pos:]
}

func isNameByte(b byte) bool {
	switch {
	case b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z', b >= '0' && b <= '9':
		return true
	case b == '_', b == '$', b == '\'':
		return true
	}
	return false
}
