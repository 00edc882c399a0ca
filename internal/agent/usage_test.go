package agent

import (
	"encoding/json"
	"testing"
)

func TestSumUsageTokensShapes(t *testing.T) {
	tests := []struct {
		name     string
		records  []string
		expected int
	}{
		{
			name:     "openai shape",
			records:  []string{`{"prompt_tokens": 100, "completion_tokens": 50}`},
			expected: 150,
		},
		{
			name:     "anthropic shape",
			records:  []string{`{"input_tokens": 100, "output_tokens": 50}`},
			expected: 150,
		},
		{
			name:     "gemini shape",
			records:  []string{`{"promptTokenCount": 100, "candidatesTokenCount": 50}`},
			expected: 150,
		},
		{
			name: "mixed records sum across shapes",
			records: []string{
				`{"prompt_tokens": 10, "completion_tokens": 5}`,
				`{"input_tokens": 20, "output_tokens": 5, "cache_creation_input_tokens": 999}`,
				`{"promptTokenCount": 30, "candidatesTokenCount": 5}`,
			},
			expected: 75,
		},
		{
			name:     "total only",
			records:  []string{`{"total_tokens": 42}`},
			expected: 42,
		},
		{
			name:     "extra non-numeric fields are ignored",
			records:  []string{`{"model": "sonnet", "prompt_tokens": 7, "completion_tokens": 3}`},
			expected: 10,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := make([]json.RawMessage, 0, len(tt.records))
			for _, r := range tt.records {
				raw = append(raw, json.RawMessage(r))
			}
			total, unparsed := SumUsageTokens(raw)
			if total != tt.expected {
				t.Fatalf("expected %d tokens, got %d", tt.expected, total)
			}
			if unparsed != 0 {
				t.Fatalf("expected no unparsed records, got %d", unparsed)
			}
		})
	}
}

func TestSumUsageTokensMalformed(t *testing.T) {
	records := []json.RawMessage{
		json.RawMessage(`not json at all`),
		json.RawMessage(`{"mystery_field": 12}`),
		json.RawMessage(`{"input_tokens": 5, "output_tokens": 5}`),
	}

	total, unparsed := SumUsageTokens(records)
	if total != 10 {
		t.Fatalf("expected malformed records to contribute zero, got %d", total)
	}
	if unparsed != 2 {
		t.Fatalf("expected 2 unparsed records, got %d", unparsed)
	}
}

func TestSumUsageTokensEmpty(t *testing.T) {
	total, unparsed := SumUsageTokens(nil)
	if total != 0 || unparsed != 0 {
		t.Fatalf("expected zeros for empty input, got %d/%d", total, unparsed)
	}
}
