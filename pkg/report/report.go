// Package report assembles annotations into a check-run report.
package report

import (
	"encoding/json"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/dkoosis/clippycheck/pkg/annotate"
)

// DefaultName is the check-run name shown on the commit.
const DefaultName = "clippy"

// DefaultTitle is the output title of the check run.
const DefaultTitle = "Clippy"

// Summaries used for output.summary.
const (
	SummaryIssues   = "Found some issues"
	SummaryNoIssues = "No issues found"
)

// Status of a check run. Reports are always created completed.
type Status string

const StatusCompleted Status = "completed"

// Conclusion of a completed check run.
type Conclusion string

const (
	ConclusionSuccess Conclusion = "success"
	ConclusionFailure Conclusion = "failure"
)

// Report is the body of a check-run creation request.
type Report struct {
	Name        string     `json:"name"`
	HeadSHA     string     `json:"head_sha"`
	ExternalID  string     `json:"external_id,omitempty"`
	Status      Status     `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt time.Time  `json:"completed_at"`
	Conclusion  Conclusion `json:"conclusion"`
	Output      Output     `json:"output"`
}

// Output is the check run's output block.
type Output struct {
	Title       string                `json:"title"`
	Summary     string                `json:"summary"`
	Annotations []annotate.Annotation `json:"annotations"`
}

// Assembler builds reports. The zero value is ready to use.
type Assembler struct {
	// Title defaults to DefaultTitle.
	Title string
	// Now defaults to time.Now.
	Now func() time.Time
	// NewID generates the external id; nil leaves it empty.
	NewID func() string
}

// Assemble builds a report stamped with the current time and a fresh
// external id.
func Assemble(name, headSHA string, startedAt time.Time, annotations []annotate.Annotation) Report {
	a := Assembler{NewID: uuid.NewString}
	return a.Assemble(name, headSHA, startedAt, annotations)
}

// Assemble builds a report. Only failure-level annotations fail the check;
// warnings and notices are informational.
func (a Assembler) Assemble(name, headSHA string, startedAt time.Time, annotations []annotate.Annotation) Report {
	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	title := a.Title
	if title == "" {
		title = DefaultTitle
	}
	if annotations == nil {
		annotations = []annotate.Annotation{}
	}

	r := Report{
		Name:        name,
		HeadSHA:     headSHA,
		Status:      StatusCompleted,
		StartedAt:   startedAt.UTC(),
		CompletedAt: now().UTC(),
		Conclusion:  conclusion(annotations),
		Output: Output{
			Title:       title,
			Summary:     summary(annotations),
			Annotations: annotations,
		},
	}
	if a.NewID != nil {
		r.ExternalID = a.NewID()
	}
	return r
}

func conclusion(annotations []annotate.Annotation) Conclusion {
	for _, a := range annotations {
		if a.Level == annotate.LevelFailure {
			return ConclusionFailure
		}
	}
	return ConclusionSuccess
}

func summary(annotations []annotate.Annotation) string {
	if len(annotations) > 0 {
		return SummaryIssues
	}
	return SummaryNoIssues
}

// Counts tallies annotations per level.
type Counts struct {
	Failure int
	Warning int
	Notice  int
}

// Total is the number of annotations.
func (c Counts) Total() int {
	return c.Failure + c.Warning + c.Notice
}

// Counts tallies the report's annotations per level.
func (r Report) Counts() Counts {
	var c Counts
	for _, a := range r.Output.Annotations {
		switch a.Level {
		case annotate.LevelFailure:
			c.Failure++
		case annotate.LevelNotice:
			c.Notice++
		default:
			c.Warning++
		}
	}
	return c
}

// WriteJSON writes the report as indented JSON.
func (r Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
