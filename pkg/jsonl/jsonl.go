// Package jsonl streams newline-delimited JSON documents.
package jsonl

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"iter"
)

// MaxLineSize bounds a single line. Rendered compiler diagnostics can be
// large but stay well below this.
const MaxLineSize = 1024 * 1024

// Record is one decoded line together with its 1-based line number.
type Record[T any] struct {
	Line  int
	Value T
}

// LineError reports a line that could not be decoded.
type LineError struct {
	Line int
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: invalid JSON: %v", e.Line, e.Err)
}

func (e *LineError) Unwrap() error {
	return e.Err
}

// Unmarshal is the default decode function for Decode.
func Unmarshal[T any](raw []byte) (T, error) {
	var v T
	err := json.Unmarshal(raw, &v)
	return v, err
}

// Decode returns a lazy sequence over the JSON lines in r. Each line is
// trimmed and decoded independently; blank lines are skipped. The sequence
// stops after the first error, which is yielded as a *LineError for decode
// failures or as the underlying read error otherwise.
func Decode[T any](r io.Reader, decode func([]byte) (T, error)) iter.Seq2[Record[T], error] {
	if decode == nil {
		decode = Unmarshal[T]
	}

	return func(yield func(Record[T], error) bool) {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), MaxLineSize)

		line := 0
		for scanner.Scan() {
			line++
			raw := bytes.TrimSpace(scanner.Bytes())
			if len(raw) == 0 {
				continue
			}

			value, err := decode(raw)
			if err != nil {
				yield(Record[T]{Line: line}, &LineError{Line: line, Err: err})
				return
			}

			if !yield(Record[T]{Line: line, Value: value}, nil) {
				return
			}
		}

		if err := scanner.Err(); err != nil {
			yield(Record[T]{Line: line}, fmt.Errorf("read line %d: %w", line+1, err))
		}
	}
}
