// Command clippy-check runs clippy and reports its diagnostics as a GitHub
// check run.
//
// Usage:
//
//	clippy-check                          # inside a workflow, inputs from INPUT_*
//	clippy-check --dry-run --format=sarif # local run, no API calls
//	clippy-check translate out.jsonl      # convert saved clippy output
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-githubactions"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// env abstracts os.Getenv so tests can supply a workflow environment.
type env = func(string) string

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr, os.Getenv); err != nil {
		reportError(os.Stdout, os.Stderr, os.Getenv, err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer, getenv env) error {
	root := newRootCmd(stdout, stderr, getenv)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// reportError surfaces a fatal error as a workflow error annotation when
// running under Actions and as a plain line otherwise.
func reportError(stdout, stderr io.Writer, getenv env, err error) {
	if getenv("GITHUB_ACTIONS") == "true" {
		action := githubactions.New(githubactions.WithWriter(stdout), githubactions.WithGetenv(getenv))
		action.Errorf("%v", err)
		return
	}
	fmt.Fprintf(stderr, "clippy-check: %v\n", err)
}

func newLogger(w io.Writer, level string, getenv env) (*zerolog.Logger, error) {
	if level == "" {
		level = zerolog.LevelInfoValue
		if getenv("RUNNER_DEBUG") == "1" {
			level = zerolog.LevelDebugValue
		}
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	logger := zerolog.New(zerolog.ConsoleWriter{Out: w, NoColor: getenv("NO_COLOR") != ""}).
		Level(lvl).
		With().Timestamp().
		Logger()
	return &logger, nil
}
