package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkoosis/clippycheck/pkg/config"
)

const clippyOutput = `{"reason":"compiler-artifact","package_id":"demo 0.1.0"}
{"reason":"compiler-message","message":{"level":"warning","rendered":"warning: unneeded return","message":"unneeded return","code":{"code":"clippy::needless_return"},"spans":[{"file_name":"src/lib.rs","line_start":3,"line_end":3,"is_primary":true}]}}
{"reason":"compiler-message","message":{"level":"error","rendered":"error: mismatched types","message":"mismatched types","code":{"code":"E0308"},"spans":[{"file_name":"src/main.rs","line_start":9,"line_end":10,"is_primary":true}]}}
{"reason":"build-finished","success":false}
`

func envFrom(m map[string]string) env {
	return func(k string) string { return m[k] }
}

func writeFile(t *testing.T, dir, name, content string, mode os.FileMode) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), mode))
	return p
}

// fakeClippyConfig writes a stand-in clippy and a config file pointing at it.
func fakeClippyConfig(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fake requires a POSIX shell")
	}
	dir := t.TempDir()
	out := writeFile(t, dir, "out.jsonl", clippyOutput, 0o644)
	bin := writeFile(t, dir, "cargo-clippy", "#!/bin/sh\ncat '"+out+"'\nexit 101\n", 0o755)
	return writeFile(t, dir, "clippy-check.yml", "binary: "+bin+"\n", 0o644)
}

func TestCLITranslateRoundTrip(t *testing.T) {
	tempDir := t.TempDir()
	input := writeFile(t, tempDir, "clippy.jsonl", clippyOutput, 0o644)
	sarifPath := filepath.Join(tempDir, "clippy.sarif")

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"translate", input, "--format", "sarif", "-o", sarifPath}, &stdout, &stderr, envFrom(nil))
	require.NoError(t, err)

	data, err := os.ReadFile(sarifPath)
	require.NoError(t, err)

	var log struct {
		Runs []struct {
			Results []struct {
				RuleID string `json:"ruleId"`
				Level  string `json:"level"`
			} `json:"results"`
		} `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(data, &log))
	require.Len(t, log.Runs, 1)
	require.Len(t, log.Runs[0].Results, 2)
	assert.Equal(t, "clippy::needless_return", log.Runs[0].Results[0].RuleID)
	assert.Equal(t, "warning", log.Runs[0].Results[0].Level)
	assert.Equal(t, "E0308", log.Runs[0].Results[1].RuleID)
	assert.Equal(t, "error", log.Runs[0].Results[1].Level)
}

func TestCLITranslateJSONFromStdinPath(t *testing.T) {
	input := writeFile(t, t.TempDir(), "clippy.jsonl", clippyOutput, 0o644)

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"translate", input, "--sha", "abc"}, &stdout, &stderr, envFrom(nil))
	require.NoError(t, err)

	var body struct {
		HeadSHA    string `json:"head_sha"`
		Conclusion string `json:"conclusion"`
		Output     struct {
			Annotations []map[string]any `json:"annotations"`
		} `json:"output"`
	}
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &body))
	assert.Equal(t, "abc", body.HeadSHA)
	assert.Equal(t, "failure", body.Conclusion)
	assert.Len(t, body.Output.Annotations, 2)
}

func TestCLITranslateRejectsMalformedInput(t *testing.T) {
	input := writeFile(t, t.TempDir(), "bad.jsonl", "{\"reason\":\"build-finished\"}\nnope\n", 0o644)

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"translate", input}, &stdout, &stderr, envFrom(nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestCLIDryRunWritesReport(t *testing.T) {
	cfgPath := fakeClippyConfig(t)
	reportPath := filepath.Join(t.TempDir(), "report.json")

	var stdout, stderr bytes.Buffer
	err := run(context.Background(),
		[]string{"--config", cfgPath, "--dry-run", "-o", reportPath},
		&stdout, &stderr, envFrom(map[string]string{"GITHUB_SHA": "cafef00d", "NO_COLOR": "1"}))
	require.NoError(t, err)

	assert.NotContains(t, stdout.String(), "::group::")
	assert.Contains(t, stderr.String(), "::group::clippy")
	assert.Contains(t, stderr.String(), "clippy: failure")

	data, err := os.ReadFile(reportPath)
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal(data, &body))
	assert.Equal(t, "cafef00d", body["head_sha"])
	assert.Equal(t, "failure", body["conclusion"])
	assert.Equal(t, "completed", body["status"])
}

func TestCLIDryRunPrintsParseableReportOnStdout(t *testing.T) {
	for _, actions := range []string{"", "true"} {
		t.Run("GITHUB_ACTIONS="+actions, func(t *testing.T) {
			cfgPath := fakeClippyConfig(t)

			var stdout, stderr bytes.Buffer
			err := run(context.Background(),
				[]string{"--config", cfgPath, "--dry-run"},
				&stdout, &stderr, envFrom(map[string]string{
					"GITHUB_ACTIONS": actions,
					"GITHUB_SHA":     "cafef00d",
					"RUNNER_DEBUG":   "1",
					"NO_COLOR":       "1",
				}))
			require.NoError(t, err)

			var body map[string]any
			require.NoError(t, json.Unmarshal(stdout.Bytes(), &body), "stdout: %s", stdout.String())
			assert.Equal(t, "failure", body["conclusion"])
			assert.Contains(t, stderr.String(), "::endgroup::")
		})
	}
}

func TestCLIDryRunPrintsSARIFOnStdout(t *testing.T) {
	cfgPath := fakeClippyConfig(t)

	var stdout, stderr bytes.Buffer
	err := run(context.Background(),
		[]string{"--config", cfgPath, "--dry-run", "--format", "sarif"},
		&stdout, &stderr, envFrom(map[string]string{"GITHUB_SHA": "cafef00d", "RUNNER_DEBUG": "1"}))
	require.NoError(t, err)

	var log struct {
		Version string `json:"version"`
	}
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &log), "stdout: %s", stdout.String())
	assert.Equal(t, "2.1.0", log.Version)
}

func TestCLIPublishesCheckRun(t *testing.T) {
	cfgPath := fakeClippyConfig(t)

	var got map[string]any
	var path, auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":99,"html_url":"https://github.com/octo/demo/runs/99"}`))
	}))
	defer srv.Close()

	environment := envFrom(map[string]string{
		"GITHUB_ACTIONS":    "true",
		"INPUT_TOKEN":       "ghs_abc",
		"GITHUB_SHA":        "cafef00d",
		"GITHUB_REPOSITORY": "octo/demo",
		"GITHUB_API_URL":    srv.URL,
	})

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"--config", cfgPath}, &stdout, &stderr, environment)
	require.NoError(t, err)

	assert.Contains(t, stdout.String(), "::group::clippy")
	assert.Contains(t, stdout.String(), `"reason":"compiler-artifact"`, "linter output is echoed into the group")
	assert.Equal(t, "/repos/octo/demo/check-runs", path)
	assert.Equal(t, "Bearer ghs_abc", auth)
	assert.Equal(t, "clippy", got["name"])
	assert.Equal(t, "cafef00d", got["head_sha"])
	assert.Equal(t, "failure", got["conclusion"])

	output := got["output"].(map[string]any)
	assert.Len(t, output["annotations"], 2)
}

func TestCLIRequiresTokenWhenPublishing(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), nil, &stdout, &stderr,
		envFrom(map[string]string{"GITHUB_SHA": "x", "GITHUB_REPOSITORY": "octo/demo"}))
	require.ErrorIs(t, err, config.ErrInvalid)
	assert.Contains(t, err.Error(), "token")
}

func TestReportErrorUsesWorkflowCommandUnderActions(t *testing.T) {
	var stdout, stderr bytes.Buffer
	reportError(&stdout, &stderr, envFrom(map[string]string{"GITHUB_ACTIONS": "true"}), assert.AnError)
	assert.True(t, strings.HasPrefix(stdout.String(), "::error::"))
	assert.Empty(t, stderr.String())

	stdout.Reset()
	reportError(&stdout, &stderr, envFrom(nil), assert.AnError)
	assert.Empty(t, stdout.String())
	assert.Contains(t, stderr.String(), "clippy-check: ")
}

func TestVersionCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"version"}, &stdout, &stderr, envFrom(nil)))
	assert.True(t, strings.HasPrefix(stdout.String(), "clippy-check dev"))
}
