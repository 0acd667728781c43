//go:build mage

// Tiered quality checks.
//
// Tiers:
//
//	mage        Build, lint, test (default)
//	mage qa     Full quality: race detection, all linters, govulncheck
//	mage build  Build bin/clippy-check with version metadata
package main

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Default target runs standard build + lint + test.
var Default = All

// ----------------------------------------------------------------------------
// Tier 1: Standard (default)
// ----------------------------------------------------------------------------

// All runs build, lint, and test.
func All() error {
	fmt.Println("═══ Build + Lint + Test ═══")
	return runSequential(
		step{"Build", "go", []string{"build", "./..."}},
		step{"Test", "go", []string{"test", "-cover", "./..."}},
		step{"Vet", "go", []string{"vet", "./..."}},
		step{"Gofmt", "gofmt", []string{"-l", "."}},
		step{"Staticcheck", "golangci-lint", []string{"run", "--enable-only", "staticcheck", "./..."}},
		step{"Gosec", "golangci-lint", []string{"run", "--enable-only", "gosec", "./..."}},
	)
}

// Build compiles the action binary into bin/.
func Build() error {
	ldflags := "-s -w -X main.Version=" + version()
	return runSequential(
		step{"Build/clippy-check", "go", []string{"build", "-trimpath", "-ldflags", ldflags, "-o", "bin/clippy-check", "./cmd/clippy-check"}},
	)
}

// ----------------------------------------------------------------------------
// Tier 2: Full QA
// ----------------------------------------------------------------------------

// Qa runs comprehensive quality checks: race detection, all linters, govulncheck.
func Qa() error {
	fmt.Println("═══ Full QA ═══")
	return runSequential(
		step{"Build", "go", []string{"build", "./..."}},
		step{"Test", "go", []string{"test", "-cover", "./..."}},
		step{"Race", "go", []string{"test", "-race", "-timeout=5m", "./..."}},
		step{"Golangci-lint", "golangci-lint", []string{"run", "./..."}},
		step{"Govulncheck", "govulncheck", []string{"./..."}},
	)
}

// ----------------------------------------------------------------------------
// Utility: Clean
// ----------------------------------------------------------------------------

// Clean removes build artifacts.
func Clean() error {
	fmt.Println("Cleaning build artifacts...")
	return os.RemoveAll("bin")
}

// ----------------------------------------------------------------------------
// Helpers
// ----------------------------------------------------------------------------

type step struct {
	name string
	cmd  string
	args []string
}

func runSequential(steps ...step) error {
	for _, s := range steps {
		fmt.Printf("→ %s\n", s.name)
		cmd := exec.Command(s.cmd, s.args...)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Run(); err != nil {
			return fmt.Errorf("%s failed: %w", s.name, err)
		}
	}
	return nil
}

// version prefers VERSION, then the nearest git tag.
func version() string {
	if v := os.Getenv("VERSION"); v != "" {
		return v
	}
	out, err := exec.Command("git", "describe", "--tags", "--always", "--dirty").Output()
	if err != nil {
		return "dev"
	}
	return strings.TrimSpace(string(out))
}
