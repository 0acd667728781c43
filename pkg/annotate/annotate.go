// Package annotate maps clippy diagnostics onto check-run annotations.
package annotate

import (
	"iter"
	"strings"

	"github.com/dkoosis/clippycheck/pkg/cargo"
)

// Level is a check-run annotation level.
type Level string

const (
	LevelNotice  Level = "notice"
	LevelWarning Level = "warning"
	LevelFailure Level = "failure"
)

// Annotation is one entry of a check run's output.annotations.
type Annotation struct {
	Path      string `json:"path"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
	Level     Level  `json:"annotation_level"`
	Message   string `json:"message"`
	Title     string `json:"title"`

	// RuleID is the lint code (clippy::needless_return, E0308). It is not
	// part of the check-run payload.
	RuleID string `json:"-"`
}

// Translate converts a compiler-message event with a primary span into an
// annotation. Any other event yields false.
func Translate(ev cargo.Event) (Annotation, bool) {
	if ev.Reason != cargo.ReasonCompilerMessage || ev.Message == nil {
		return Annotation{}, false
	}

	span, ok := ev.Message.PrimarySpan()
	if !ok {
		return Annotation{}, false
	}

	msg := ev.Message
	a := Annotation{
		Path:      span.FileName,
		StartLine: span.LineStart,
		EndLine:   span.LineEnd,
		Level:     ParseLevel(msg.Level),
		Message:   msg.Rendered,
		Title:     msg.Message,
	}
	if a.Message == "" {
		a.Message = msg.Message
	}
	if msg.Code != nil {
		a.RuleID = msg.Code.Code
	}
	return a, true
}

// ParseLevel maps a rustc level onto an annotation level. The three
// annotation levels pass through unchanged.
func ParseLevel(level string) Level {
	switch l := Level(level); l {
	case LevelNotice, LevelWarning, LevelFailure:
		return l
	}

	switch {
	case strings.HasPrefix(level, "error"):
		return LevelFailure
	case level == "note", level == "help", level == "failure-note":
		return LevelNotice
	default:
		return LevelWarning
	}
}

// Collect translates every event in seq, keeping stream order. It stops at
// the first stream error.
func Collect(seq iter.Seq2[cargo.Event, error]) ([]Annotation, error) {
	out := []Annotation{}
	for ev, err := range seq {
		if err != nil {
			return nil, err
		}
		if a, ok := Translate(ev); ok {
			out = append(out, a)
		}
	}
	return out, nil
}
