// Package pipeline runs clippy and publishes its findings as a check run.
//
// The stages run strictly in order: make sure the linter is installed,
// stream and translate its diagnostics, assemble the report, publish it.
// The first error ends the run and nothing is published after it.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"time"

	"github.com/google/go-github/v66/github"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-githubactions"

	"github.com/dkoosis/clippycheck/pkg/annotate"
	"github.com/dkoosis/clippycheck/pkg/cargo"
	"github.com/dkoosis/clippycheck/pkg/checks"
	"github.com/dkoosis/clippycheck/pkg/config"
	"github.com/dkoosis/clippycheck/pkg/report"
)

// Toolchain makes the linter available.
type Toolchain interface {
	EnsureAvailable(ctx context.Context) (string, error)
}

// Linter streams diagnostics for one invocation.
type Linter interface {
	Events(ctx context.Context, args []string) iter.Seq2[cargo.Event, error]
}

// Publisher submits a finished report.
type Publisher interface {
	Publish(ctx context.Context, r report.Report, repo checks.Repo) (*github.CheckRun, error)
}

// Deps are the collaborators of a run. Publisher may be nil for dry runs.
type Deps struct {
	Toolchain Toolchain
	Linter    Linter
	Publisher Publisher
	// Action receives workflow commands (groups, debug lines, summary).
	Action *githubactions.Action
	Logger *zerolog.Logger
	// Now and NewID default to time.Now and uuid.NewString.
	Now   func() time.Time
	NewID func() string
}

// Result is what a successful run produced.
type Result struct {
	Report report.Report
	// CheckRun is nil for dry runs.
	CheckRun *github.CheckRun
}

// Run executes the pipeline once.
func Run(ctx context.Context, cfg config.Config, deps Deps) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	deps = withDefaults(deps)
	if !cfg.DryRun && deps.Publisher == nil {
		return nil, fmt.Errorf("%w: no publisher configured", config.ErrInvalid)
	}
	args, err := cfg.LinterArgs()
	if err != nil {
		return nil, err
	}

	path, err := deps.Toolchain.EnsureAvailable(ctx)
	if err != nil {
		return nil, err
	}
	deps.Logger.Debug().Str("path", path).Msg("linter available")

	startedAt := deps.Now()
	deps.Action.Group(cfg.Name)
	annotations, err := annotate.Collect(deps.Linter.Events(ctx, args))
	deps.Action.EndGroup()
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", cfg.Binary, err)
	}
	debugJSON(deps.Action, annotations)

	assembler := report.Assembler{Title: cfg.Title, Now: deps.Now, NewID: deps.NewID}
	rep := assembler.Assemble(cfg.Name, cfg.SHA, startedAt, annotations)

	counts := rep.Counts()
	deps.Logger.Info().
		Str("conclusion", string(rep.Conclusion)).
		Int("failures", counts.Failure).
		Int("warnings", counts.Warning).
		Int("notices", counts.Notice).
		Msg("report assembled")

	res := &Result{Report: rep}
	if !cfg.DryRun {
		repo, err := cfg.Repo()
		if err != nil {
			return nil, err
		}
		run, err := deps.Publisher.Publish(ctx, rep, repo)
		if err != nil {
			return nil, err
		}
		res.CheckRun = run
		debugJSON(deps.Action, run)
		deps.Logger.Info().Int64("check_run_id", run.GetID()).Str("url", run.GetHTMLURL()).Msg("check run published")
	}

	if cfg.StepSummary {
		deps.Action.AddStepSummary(rep.Markdown())
	}
	return res, nil
}

func withDefaults(d Deps) Deps {
	if d.Action == nil {
		d.Action = githubactions.New()
	}
	if d.Logger == nil {
		nop := zerolog.Nop()
		d.Logger = &nop
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.NewID == nil {
		d.NewID = uuid.NewString
	}
	return d
}

func debugJSON(action *githubactions.Action, v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		action.Debugf("marshal debug output: %v", err)
		return
	}
	action.Debugf("%s", data)
}
