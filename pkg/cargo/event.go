// Package cargo runs clippy in JSON message mode and decodes its output.
package cargo

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"

	"github.com/dkoosis/clippycheck/pkg/jsonl"
)

// ReasonCompilerMessage marks an event that carries a diagnostic.
const ReasonCompilerMessage = "compiler-message"

// ErrMissingReason is returned for a JSON object without a reason field.
var ErrMissingReason = errors.New("missing reason")

// Event is one line of cargo's --message-format=json output. Only
// compiler-message events carry a Message; build-finished,
// compiler-artifact and the like leave it nil.
type Event struct {
	Reason    string      `json:"reason"`
	PackageID string      `json:"package_id,omitempty"`
	Message   *Diagnostic `json:"message,omitempty"`
}

// Diagnostic is a rustc diagnostic as embedded in a compiler-message.
type Diagnostic struct {
	Message  string `json:"message"`
	Code     *Code  `json:"code,omitempty"`
	Level    string `json:"level"`
	Spans    []Span `json:"spans"`
	Rendered string `json:"rendered"`
}

// Code identifies the lint or error code, e.g. clippy::needless_return.
type Code struct {
	Code        string `json:"code"`
	Explanation string `json:"explanation,omitempty"`
}

// Span is a source region a diagnostic points at.
type Span struct {
	FileName    string `json:"file_name"`
	LineStart   int    `json:"line_start"`
	LineEnd     int    `json:"line_end"`
	ColumnStart int    `json:"column_start"`
	ColumnEnd   int    `json:"column_end"`
	IsPrimary   bool   `json:"is_primary"`
}

// PrimarySpan returns the first span flagged primary.
func (d *Diagnostic) PrimarySpan() (Span, bool) {
	if d == nil {
		return Span{}, false
	}
	for _, s := range d.Spans {
		if s.IsPrimary {
			return s, true
		}
	}
	return Span{}, false
}

// Decode parses a single output line.
func Decode(raw []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return Event{}, err
	}
	if ev.Reason == "" {
		return Event{}, ErrMissingReason
	}
	return ev, nil
}

// Stream decodes cargo JSON lines from r. The sequence ends at EOF or
// after yielding the first error.
func Stream(r io.Reader) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		for rec, err := range jsonl.Decode(r, Decode) {
			if err != nil {
				yield(Event{}, fmt.Errorf("decode clippy output: %w", err))
				return
			}
			if !yield(rec.Value, nil) {
				return
			}
		}
	}
}
