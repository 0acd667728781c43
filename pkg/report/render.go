package report

import (
	"fmt"
	"strings"

	"github.com/dkoosis/clippycheck/pkg/sarif"
)

// clippyURI points SARIF consumers at the linter's documentation.
const clippyURI = "https://github.com/rust-lang/rust-clippy"

// maxSummaryRows caps the annotation table in the step summary.
const maxSummaryRows = 20

// SARIF converts the report into a SARIF log with a single run.
func (r Report) SARIF() *sarif.Log {
	run := sarif.Run{
		Tool: sarif.Tool{Driver: sarif.Driver{
			Name:           r.Name,
			InformationURI: clippyURI,
		}},
		Results: []sarif.Result{},
	}

	start, end := r.StartedAt, r.CompletedAt
	run.Invocations = []sarif.Invocation{{
		ExecutionSuccessful: true,
		StartTimeUTC:        &start,
		EndTimeUTC:          &end,
	}}

	for _, a := range r.Output.Annotations {
		ruleID := a.RuleID
		if ruleID == "" {
			ruleID = r.Name
		}
		run.Tool.Driver.AddRule(ruleID, a.Title, lintHelpURI(ruleID))

		text := a.Title
		if text == "" {
			text = a.Message
		}
		run.Results = append(run.Results, sarif.Result{
			RuleID:  ruleID,
			Level:   sarif.LevelFor(string(a.Level)),
			Message: sarif.Message{Text: text},
			Locations: []sarif.Location{{
				PhysicalLocation: sarif.PhysicalLocation{
					ArtifactLocation: sarif.ArtifactLocation{URI: a.Path},
					Region:           &sarif.Region{StartLine: a.StartLine, EndLine: a.EndLine},
				},
			}},
		})
	}

	log := sarif.NewLog()
	log.Runs = append(log.Runs, run)
	return log
}

func lintHelpURI(ruleID string) string {
	name, ok := strings.CutPrefix(ruleID, "clippy::")
	if !ok {
		return ""
	}
	return "https://rust-lang.github.io/rust-clippy/master/index.html#" + name
}

// Markdown renders the report for a job step summary.
func (r Report) Markdown() string {
	var b strings.Builder
	c := r.Counts()

	fmt.Fprintf(&b, "### %s: %s\n\n", r.Output.Title, r.Conclusion)
	fmt.Fprintf(&b, "%s\n\n", r.Output.Summary)
	if c.Total() == 0 {
		return b.String()
	}

	b.WriteString("| Level | Count |\n|---|---:|\n")
	fmt.Fprintf(&b, "| failure | %d |\n", c.Failure)
	fmt.Fprintf(&b, "| warning | %d |\n", c.Warning)
	fmt.Fprintf(&b, "| notice | %d |\n\n", c.Notice)

	b.WriteString("| Location | Level | Title |\n|---|---|---|\n")
	for i, a := range r.Output.Annotations {
		if i == maxSummaryRows {
			fmt.Fprintf(&b, "\n_…and %d more_\n", len(r.Output.Annotations)-maxSummaryRows)
			break
		}
		fmt.Fprintf(&b, "| `%s:%d` | %s | %s |\n", a.Path, a.StartLine, a.Level, escapeCell(a.Title))
	}
	return b.String()
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}
