// Package sarif provides types and helpers for emitting SARIF output.
package sarif

import (
	"encoding/json"
	"io"
	"time"
)

// Version is the SARIF schema version.
const Version = "2.1.0"

// SchemaURI is the published JSON schema for Version.
const SchemaURI = "https://json.schemastore.org/sarif-2.1.0.json"

// Levels understood by SARIF consumers.
const (
	LevelError   = "error"
	LevelWarning = "warning"
	LevelNote    = "note"
)

// Log is the top-level SARIF structure.
type Log struct {
	Version string `json:"version"`
	Schema  string `json:"$schema,omitempty"`
	Runs    []Run  `json:"runs"`
}

// Run represents a single analysis run.
type Run struct {
	Tool        Tool         `json:"tool"`
	Invocations []Invocation `json:"invocations,omitempty"`
	Results     []Result     `json:"results"`
}

// Tool describes the analysis tool.
type Tool struct {
	Driver Driver `json:"driver"`
}

// Driver describes the tool's identity and the rules it reported.
type Driver struct {
	Name           string                `json:"name"`
	Version        string                `json:"version,omitempty"`
	InformationURI string                `json:"informationUri,omitempty"`
	Rules          []ReportingDescriptor `json:"rules,omitempty"`
}

// ReportingDescriptor describes a rule referenced by results.
type ReportingDescriptor struct {
	ID               string   `json:"id"`
	ShortDescription *Message `json:"shortDescription,omitempty"`
	HelpURI          string   `json:"helpUri,omitempty"`
}

// Invocation records when the tool ran and whether it finished cleanly.
type Invocation struct {
	ExecutionSuccessful bool       `json:"executionSuccessful"`
	StartTimeUTC        *time.Time `json:"startTimeUtc,omitempty"`
	EndTimeUTC          *time.Time `json:"endTimeUtc,omitempty"`
}

// Result is a single finding.
type Result struct {
	RuleID    string     `json:"ruleId"`
	Level     string     `json:"level,omitempty"`
	Message   Message    `json:"message"`
	Locations []Location `json:"locations,omitempty"`
}

// Message contains the finding's text.
type Message struct {
	Text string `json:"text"`
}

// Location describes where a result was found.
type Location struct {
	PhysicalLocation PhysicalLocation `json:"physicalLocation"`
}

// PhysicalLocation describes a file location.
type PhysicalLocation struct {
	ArtifactLocation ArtifactLocation `json:"artifactLocation"`
	Region           *Region          `json:"region,omitempty"`
}

// ArtifactLocation describes a file path.
type ArtifactLocation struct {
	URI string `json:"uri"`
}

// Region describes a span within a file.
type Region struct {
	StartLine   int `json:"startLine,omitempty"`
	StartColumn int `json:"startColumn,omitempty"`
	EndLine     int `json:"endLine,omitempty"`
	EndColumn   int `json:"endColumn,omitempty"`
}

// NewLog creates a new SARIF log with default values.
func NewLog() *Log {
	return &Log{
		Version: Version,
		Schema:  SchemaURI,
		Runs:    []Run{},
	}
}

// LevelFor maps a check-run annotation level onto a SARIF level.
func LevelFor(annotationLevel string) string {
	switch annotationLevel {
	case "failure":
		return LevelError
	case "notice":
		return LevelNote
	default:
		return LevelWarning
	}
}

// AddRule registers id on the driver once and returns its index.
func (d *Driver) AddRule(id, description, helpURI string) int {
	for i, r := range d.Rules {
		if r.ID == id {
			return i
		}
	}
	rule := ReportingDescriptor{ID: id, HelpURI: helpURI}
	if description != "" {
		rule.ShortDescription = &Message{Text: description}
	}
	d.Rules = append(d.Rules, rule)
	return len(d.Rules) - 1
}

// Encoder wraps a JSON encoder with SARIF-friendly defaults.
type Encoder struct {
	enc *json.Encoder
}

// NewEncoder creates an indented JSON encoder for SARIF logs.
func NewEncoder(w io.Writer) *Encoder {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return &Encoder{enc: enc}
}

// Encode writes the SARIF log.
func (e *Encoder) Encode(log *Log) error {
	return e.enc.Encode(log)
}
