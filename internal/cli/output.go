// Package cli provides output formatting helpers for CLI commands.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"text/tabwriter"
)

// Formatter renders command output as human-readable text, JSON, or JSONL.
type Formatter struct {
	out   io.Writer
	json  bool
	jsonl bool
}

// NewFormatter builds a formatter using the current CLI flags.
func NewFormatter(out io.Writer) *Formatter {
	return &Formatter{
		out:   out,
		json:  IsJSONOutput(),
		jsonl: IsJSONLOutput(),
	}
}

// Write formats and writes output based on CLI flags.
func (f *Formatter) Write(value any) error {
	switch {
	case f.jsonl:
		return f.writeLines(value)
	case f.json:
		data, err := json.MarshalIndent(value, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		_, err = fmt.Fprintln(f.out, string(data))
		return err
	default:
		_, err := fmt.Fprintln(f.out, value)
		return err
	}
}

// writeLines emits one JSON object per line, expanding slices.
func (f *Formatter) writeLines(value any) error {
	v := reflect.ValueOf(value)
	if v.IsValid() && (v.Kind() == reflect.Slice || v.Kind() == reflect.Array) {
		for i := 0; i < v.Len(); i++ {
			if err := f.writeLine(v.Index(i).Interface()); err != nil {
				return err
			}
		}
		return nil
	}
	return f.writeLine(value)
}

func (f *Formatter) writeLine(value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal JSONL: %w", err)
	}
	_, err = fmt.Fprintln(f.out, string(data))
	return err
}

// table writes a tab-aligned table with a styled header row. fill receives
// the tabwriter and writes one row per line.
func table(out io.Writer, header string, fill func(w io.Writer)) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, renderHeader(header))
	fill(w)
	return w.Flush()
}
