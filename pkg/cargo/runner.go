package cargo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"os/exec"
	"time"

	"github.com/mattn/go-shellwords"
	"github.com/rs/zerolog"
)

// DefaultBinary is the clippy driver installed by rustup.
const DefaultBinary = "cargo-clippy"

// waitDelay bounds how long a cancelled run may hold its pipes open.
const waitDelay = 2 * time.Second

// BaseArgs select quiet, machine-readable output.
var BaseArgs = []string{"-q", "--message-format=json"}

// Runner invokes clippy as a child process.
type Runner struct {
	// Binary defaults to DefaultBinary.
	Binary string
	// Dir is the working directory; empty means the current one.
	Dir string
	// Echo, if set, receives a copy of the raw stdout.
	Echo io.Writer
	// Stderr defaults to os.Stderr.
	Stderr io.Writer
	Logger *zerolog.Logger
}

func (r *Runner) binary() string {
	if r.Binary == "" {
		return DefaultBinary
	}
	return r.Binary
}

func (r *Runner) logger() *zerolog.Logger {
	if r.Logger == nil {
		nop := zerolog.Nop()
		return &nop
	}
	return r.Logger
}

// Events starts clippy with BaseArgs followed by extraArgs and yields the
// decoded events as they arrive on stdout. Clippy's exit status is not
// treated as a failure: a non-zero exit is how it reports denied lints,
// and those are already in the stream. Breaking out of the sequence early
// kills the process. Cancelling ctx ends the sequence with ctx's error.
func (r *Runner) Events(ctx context.Context, extraArgs []string) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		bin := r.binary()
		args := append(append([]string{}, BaseArgs...), extraArgs...)

		cmd := exec.CommandContext(ctx, bin, args...)
		cmd.Dir = r.Dir
		cmd.WaitDelay = waitDelay
		cmd.Stderr = r.Stderr
		if cmd.Stderr == nil {
			cmd.Stderr = os.Stderr
		}

		stdout, err := cmd.StdoutPipe()
		if err != nil {
			yield(Event{}, fmt.Errorf("stdout pipe for %s: %w", bin, err))
			return
		}

		r.logger().Debug().Str("binary", bin).Strs("args", args).Msg("starting linter")
		if err := cmd.Start(); err != nil {
			yield(Event{}, fmt.Errorf("start %s: %w", bin, err))
			return
		}

		var src io.Reader = stdout
		if r.Echo != nil {
			src = io.TeeReader(stdout, r.Echo)
		}

		for ev, err := range Stream(src) {
			if err != nil {
				r.stop(cmd)
				yield(Event{}, interrupted(ctx, bin, err))
				return
			}
			if !yield(ev, nil) {
				r.stop(cmd)
				return
			}
		}

		werr := cmd.Wait()
		if ctx.Err() != nil {
			yield(Event{}, interrupted(ctx, bin, werr))
			return
		}
		if werr != nil {
			var exitErr *exec.ExitError
			if errors.As(werr, &exitErr) {
				r.logger().Debug().Int("exit_code", exitErr.ExitCode()).Msg("linter exited non-zero")
				return
			}
			yield(Event{}, fmt.Errorf("wait for %s: %w", bin, werr))
		}
	}
}

func (r *Runner) stop(cmd *exec.Cmd) {
	_ = cmd.Process.Kill()
	_ = cmd.Wait()
}

// interrupted prefers the context error once ctx is done, since a killed
// process otherwise looks like an ordinary non-zero exit or a torn line.
func interrupted(ctx context.Context, bin string, err error) error {
	if cerr := ctx.Err(); cerr != nil {
		return fmt.Errorf("%s interrupted: %w", bin, cerr)
	}
	return err
}

// SplitArgs splits the user-supplied argument string the way a POSIX
// shell would, without expanding variables.
func SplitArgs(s string) ([]string, error) {
	args, err := shellwords.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("parse linter args %q: %w", s, err)
	}
	return args, nil
}
