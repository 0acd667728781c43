// Package toolchain makes sure the linter binary is installed.
package toolchain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
)

// ErrToolUnavailable is returned when the linter is still missing after
// the installation attempt.
var ErrToolUnavailable = errors.New("tool unavailable")

// Defaults for clippy under rustup.
const (
	DefaultBinary    = "cargo-clippy"
	DefaultInstaller = "rustup"
	DefaultComponent = "clippy"
)

// Finder locates a binary. It reports absence with ok=false rather than
// an error.
type Finder interface {
	Find(name string) (path string, ok bool)
}

// Installer installs a toolchain component.
type Installer interface {
	Install(ctx context.Context, component string) error
}

// PathFinder searches PATH.
type PathFinder struct{}

// Find implements Finder.
func (PathFinder) Find(name string) (string, bool) {
	path, err := exec.LookPath(name)
	if err != nil {
		return "", false
	}
	return path, true
}

// RustupInstaller runs "<Command> component add <component>".
type RustupInstaller struct {
	// Command defaults to DefaultInstaller.
	Command string
	// Stdout and Stderr default to os.Stdout and os.Stderr.
	Stdout io.Writer
	Stderr io.Writer
}

// Install implements Installer.
func (r RustupInstaller) Install(ctx context.Context, component string) error {
	command := r.Command
	if command == "" {
		command = DefaultInstaller
	}

	cmd := exec.CommandContext(ctx, command, "component", "add", component)
	cmd.Stdout = r.Stdout
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	cmd.Stderr = r.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s component add %s: %w", command, component, err)
	}
	return nil
}

// Checker ensures Binary is available, installing Component once if not.
type Checker struct {
	Binary    string
	Component string
	Finder    Finder
	Installer Installer
	// Warn receives the non-fatal "installing" notice.
	Warn func(format string, args ...any)
}

// EnsureAvailable returns the binary's path. A missing binary triggers one
// installation attempt; if the binary is still missing afterwards, or the
// installer fails, the error wraps ErrToolUnavailable.
func (c *Checker) EnsureAvailable(ctx context.Context) (string, error) {
	binary := c.Binary
	if binary == "" {
		binary = DefaultBinary
	}
	component := c.Component
	if component == "" {
		component = DefaultComponent
	}
	finder := c.Finder
	if finder == nil {
		finder = PathFinder{}
	}
	installer := c.Installer
	if installer == nil {
		installer = RustupInstaller{}
	}

	if path, ok := finder.Find(binary); ok {
		return path, nil
	}

	if c.Warn != nil {
		c.Warn("%s not found, installing...", component)
	}
	if err := installer.Install(ctx, component); err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrToolUnavailable, binary, err)
	}

	path, ok := finder.Find(binary)
	if !ok {
		return "", fmt.Errorf("%w: %s not found after installing %s", ErrToolUnavailable, binary, component)
	}
	return path, nil
}
