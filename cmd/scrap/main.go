// Command scrap is the scrapscript interpreter CLI.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/afero"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
)

// version is set at build time.
var version = "dev"

// env is what a command needs from the process.
type env struct {
	fs     afero.Fs
	wd     string
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	// interactive reports whether stdin is a terminal.
	interactive bool
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	wd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "scrap: %v\n", err)
		os.Exit(1)
	}
	e := &env{
		fs:          afero.NewOsFs(),
		wd:          wd,
		stdin:       os.Stdin,
		stdout:      os.Stdout,
		stderr:      os.Stderr,
		interactive: isTerminal(os.Stdin),
	}
	if err := CLI(ctx, os.Args[1:], e); err != nil {
		fmt.Fprintf(os.Stderr, "scrap: %v\n", err)
		os.Exit(1)
	}
}

func configureLogging(verbosity int) {
	commonlog.Configure(verbosity, nil)
}
