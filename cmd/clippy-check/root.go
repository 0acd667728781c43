package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/sethvargo/go-githubactions"
	"github.com/spf13/cobra"

	"github.com/dkoosis/clippycheck/pkg/cargo"
	"github.com/dkoosis/clippycheck/pkg/checks"
	"github.com/dkoosis/clippycheck/pkg/config"
	"github.com/dkoosis/clippycheck/pkg/pipeline"
	"github.com/dkoosis/clippycheck/pkg/report"
	"github.com/dkoosis/clippycheck/pkg/toolchain"
)

type rootOptions struct {
	configPath string
	output     string
	logLevel   string

	args       string
	token      string
	repo       string
	sha        string
	apiURL     string
	name       string
	format     string
	workingDir string
	dryRun     bool
}

func newRootCmd(stdout, stderr io.Writer, getenv env) *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "clippy-check",
		Short:         "Run clippy and publish its diagnostics as a GitHub check run",
		Version:       Version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCheck(cmd, opts, stdout, stderr, getenv)
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "YAML configuration file")
	pf.StringVar(&opts.logLevel, "log-level", "", "log level (debug|info|warn|error); defaults to debug when RUNNER_DEBUG=1")
	pf.StringVar(&opts.format, "format", config.FormatJSON, "report format for --dry-run and translate (json|sarif)")
	pf.StringVarP(&opts.output, "output", "o", "", "write the report to this file instead of stdout")
	pf.StringVar(&opts.name, "name", "", "check run name")
	pf.StringVar(&opts.sha, "sha", "", "commit to attach the check run to (default $GITHUB_SHA)")

	f := cmd.Flags()
	f.StringVar(&opts.args, "args", "", "extra arguments passed to clippy")
	f.StringVar(&opts.token, "token", "", "GitHub token (default input token, then $GITHUB_TOKEN)")
	f.StringVar(&opts.repo, "repo", "", "owner/name of the repository (default $GITHUB_REPOSITORY)")
	f.StringVar(&opts.apiURL, "api-url", "", "GitHub API URL (default $GITHUB_API_URL)")
	f.StringVarP(&opts.workingDir, "working-directory", "C", "", "directory to run clippy in")
	f.BoolVar(&opts.dryRun, "dry-run", false, "print the report instead of publishing it")

	cmd.AddCommand(newTranslateCmd(opts, stdout, getenv))
	cmd.AddCommand(newVersionCmd(stdout))
	return cmd
}

// loadConfig layers defaults, the config file, the workflow environment
// and finally explicitly set flags.
func loadConfig(cmd *cobra.Command, opts *rootOptions, action *githubactions.Action, getenv env) (config.Config, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		if err := config.LoadFile(opts.configPath, &cfg); err != nil {
			return cfg, err
		}
	}
	if err := config.FromAction(action, &cfg); err != nil {
		return cfg, err
	}
	if cfg.Token == "" {
		cfg.Token = getenv("GITHUB_TOKEN")
	}

	flags := cmd.Flags()
	overrides := []struct {
		flag string
		dst  *string
		val  string
	}{
		{"args", &cfg.Args, opts.args},
		{"token", &cfg.Token, opts.token},
		{"repo", &cfg.Repository, opts.repo},
		{"sha", &cfg.SHA, opts.sha},
		{"api-url", &cfg.APIURL, opts.apiURL},
		{"name", &cfg.Name, opts.name},
		{"format", &cfg.Format, opts.format},
		{"working-directory", &cfg.WorkingDirectory, opts.workingDir},
	}
	for _, o := range overrides {
		if flags.Changed(o.flag) {
			*o.dst = o.val
		}
	}
	if flags.Changed("dry-run") {
		cfg.DryRun = opts.dryRun
	}

	// Only write a step summary where the runner collects one.
	cfg.StepSummary = cfg.StepSummary && getenv("GITHUB_STEP_SUMMARY") != ""
	return cfg, cfg.Validate()
}

func runCheck(cmd *cobra.Command, opts *rootOptions, stdout, stderr io.Writer, getenv env) error {
	logger, err := newLogger(stderr, opts.logLevel, getenv)
	if err != nil {
		return err
	}
	inputs := githubactions.New(githubactions.WithWriter(stderr), githubactions.WithGetenv(getenv))
	cfg, err := loadConfig(cmd, opts, inputs, getenv)
	if err != nil {
		return err
	}

	underActions := getenv("GITHUB_ACTIONS") == "true"
	commands := commandWriter(stdout, stderr, underActions, cfg.DryRun && opts.output == "")
	action := githubactions.New(githubactions.WithWriter(commands), githubactions.WithGetenv(getenv))

	var echo io.Writer
	if underActions {
		echo = commands
	}

	deps := pipeline.Deps{
		Toolchain: &toolchain.Checker{
			Binary:    cfg.Binary,
			Component: cfg.Component,
			Installer: toolchain.RustupInstaller{Command: cfg.Installer},
			Warn:      action.Warningf,
		},
		Linter: &cargo.Runner{
			Binary: cfg.Binary,
			Dir:    cfg.WorkingDirectory,
			Echo:   echo,
			Stderr: stderr,
			Logger: logger,
		},
		Action: action,
		Logger: logger,
	}
	if !cfg.DryRun {
		client, err := checks.NewClient(cfg.Token, cfg.APIURL)
		if err != nil {
			return err
		}
		deps.Publisher = &checks.Publisher{
			Client:    client,
			BatchSize: cfg.MaxAnnotationsPerRequest,
			Logger:    logger,
		}
	}

	res, err := pipeline.Run(cmd.Context(), cfg, deps)
	if err != nil {
		return err
	}

	if cfg.DryRun {
		if err := writeReport(stdout, opts.output, cfg.Format, res.Report); err != nil {
			return err
		}
	}
	printSummary(stderr, res.Report)
	return nil
}

// commandWriter picks where workflow commands go. The Actions runner only
// reads them from stdout, and stdout must stay clean when it carries the
// report.
func commandWriter(stdout, stderr io.Writer, underActions, reportOnStdout bool) io.Writer {
	if underActions && !reportOnStdout {
		return stdout
	}
	return stderr
}

func writeReport(stdout io.Writer, path, format string, r report.Report) (err error) {
	w := stdout
	if path != "" {
		f, ferr := os.Create(path)
		if ferr != nil {
			return fmt.Errorf("create report file: %w", ferr)
		}
		defer func() {
			if cerr := f.Close(); err == nil {
				err = cerr
			}
		}()
		w = f
	}

	switch format {
	case config.FormatSARIF:
		return sarifEncode(w, r)
	default:
		return r.WriteJSON(w)
	}
}

var (
	successColor = color.New(color.FgGreen, color.Bold)
	failureColor = color.New(color.FgRed, color.Bold)
	countColor   = color.New(color.FgYellow)
)

func printSummary(w io.Writer, r report.Report) {
	c := r.Counts()
	verdict := successColor.Sprint(r.Conclusion)
	if r.Conclusion == report.ConclusionFailure {
		verdict = failureColor.Sprint(r.Conclusion)
	}
	fmt.Fprintf(w, "%s: %s (%s failures, %s warnings, %s notices)\n",
		r.Name, verdict,
		countColor.Sprint(c.Failure), countColor.Sprint(c.Warning), countColor.Sprint(c.Notice))
}
