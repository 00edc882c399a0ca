package cli

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"testing"
)

type sample struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestFormatterJSON(t *testing.T) {
	var buf bytes.Buffer
	f := &Formatter{out: &buf, json: true}

	if err := f.Write(sample{Name: "aria", Count: 3}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if !strings.Contains(buf.String(), `"name": "aria"`) {
		t.Fatalf("unexpected JSON output: %s", buf.String())
	}
}

func TestFormatterJSONLExpandsSlices(t *testing.T) {
	var buf bytes.Buffer
	f := &Formatter{out: &buf, jsonl: true}

	if err := f.Write([]sample{{Name: "a"}, {Name: "b"}}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 JSONL lines, got %d: %s", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], `{"name":"a"`) {
		t.Fatalf("unexpected first line: %s", lines[0])
	}
}

func TestFormatterHuman(t *testing.T) {
	var buf bytes.Buffer
	f := &Formatter{out: &buf}

	if err := f.Write("all quiet"); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if strings.TrimSpace(buf.String()) != "all quiet" {
		t.Fatalf("unexpected human output: %s", buf.String())
	}
}

func TestTableAlignsColumns(t *testing.T) {
	t.Setenv("NO_COLOR", "1")

	var buf bytes.Buffer
	err := table(&buf, "NAME\tCOUNT", func(w io.Writer) {
		fmt.Fprintf(w, "%s\t%d\n", "aria", 3)
	})
	if err != nil {
		t.Fatalf("table failed: %v", err)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header and one row, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[0], "NAME") || !strings.Contains(lines[1], "aria") {
		t.Fatalf("unexpected table output: %q", buf.String())
	}
}
