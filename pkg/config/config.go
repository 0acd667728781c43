// Package config builds the run configuration once, from defaults, an
// optional YAML file, and the GitHub Actions environment.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/sethvargo/go-githubactions"
	"gopkg.in/yaml.v3"

	"github.com/dkoosis/clippycheck/pkg/cargo"
	"github.com/dkoosis/clippycheck/pkg/checks"
	"github.com/dkoosis/clippycheck/pkg/report"
	"github.com/dkoosis/clippycheck/pkg/toolchain"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Output formats for dry runs and offline translation.
const (
	FormatJSON  = "json"
	FormatSARIF = "sarif"
)

// Config is everything a run needs. It is built once at startup and
// passed down explicitly.
type Config struct {
	Name  string `yaml:"name" validate:"required"`
	Title string `yaml:"title" validate:"required"`

	// Args is the extra linter argument string, split shell-style.
	Args             string `yaml:"args"`
	Binary           string `yaml:"binary" validate:"required"`
	Component        string `yaml:"component" validate:"required"`
	Installer        string `yaml:"installer" validate:"required"`
	WorkingDirectory string `yaml:"working_directory"`

	Token      string `yaml:"-"`
	Repository string `yaml:"repository"`
	SHA        string `yaml:"sha"`
	APIURL     string `yaml:"api_url" validate:"omitempty,url"`

	MaxAnnotationsPerRequest int `yaml:"max_annotations_per_request" validate:"min=1,max=50"`

	DryRun      bool   `yaml:"dry_run"`
	Format      string `yaml:"format" validate:"oneof=json sarif"`
	StepSummary bool   `yaml:"step_summary"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Name:                     report.DefaultName,
		Title:                    report.DefaultTitle,
		Binary:                   cargo.DefaultBinary,
		Component:                toolchain.DefaultComponent,
		Installer:                toolchain.DefaultInstaller,
		MaxAnnotationsPerRequest: checks.MaxAnnotationsPerRequest,
		Format:                   FormatJSON,
		StepSummary:              true,
	}
}

// LoadFile overlays the YAML file at path onto cfg. Keys absent from the
// file keep their current values.
func LoadFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		// An empty file decodes to io.EOF.
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%w: parse %s: %w", ErrInvalid, path, err)
	}
	return nil
}

// Inputs declared by the action.
const (
	InputArgs             = "args"
	InputToken            = "token"
	InputName             = "name"
	InputWorkingDirectory = "working-directory"
	InputDryRun           = "dry-run"
)

// FromAction overlays action inputs and the workflow context onto cfg.
// Empty inputs leave cfg untouched.
func FromAction(action *githubactions.Action, cfg *Config) error {
	setString(&cfg.Args, action.GetInput(InputArgs))
	setString(&cfg.Token, action.GetInput(InputToken))
	setString(&cfg.Name, action.GetInput(InputName))
	setString(&cfg.WorkingDirectory, action.GetInput(InputWorkingDirectory))

	if raw := action.GetInput(InputDryRun); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("%w: input %s: %w", ErrInvalid, InputDryRun, err)
		}
		cfg.DryRun = v
	}

	ghctx, err := action.Context()
	if err != nil {
		return fmt.Errorf("read workflow context: %w", err)
	}
	setString(&cfg.SHA, ghctx.SHA)
	setString(&cfg.Repository, ghctx.Repository)
	setString(&cfg.APIURL, ghctx.APIURL)
	return nil
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

// Validate checks field constraints. Publishing additionally needs a
// token, a commit and an owner/name repository.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if _, err := c.LinterArgs(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if c.DryRun {
		return nil
	}

	var missing []string
	if c.Token == "" {
		missing = append(missing, "token")
	}
	if c.SHA == "" {
		missing = append(missing, "sha")
	}
	if c.Repository == "" {
		missing = append(missing, "repository")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalid, strings.Join(missing, ", "))
	}
	if _, err := checks.ParseRepo(c.Repository); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

// LinterArgs splits Args into arguments for the linter.
func (c Config) LinterArgs() ([]string, error) {
	return cargo.SplitArgs(c.Args)
}

// Repo parses Repository.
func (c Config) Repo() (checks.Repo, error) {
	return checks.ParseRepo(c.Repository)
}
