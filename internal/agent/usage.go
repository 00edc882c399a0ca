package agent

import "encoding/json"

// Usage field names vary by upstream provider; each pair is (input, output).
var usageFieldPairs = [][2]string{
	{"prompt_tokens", "completion_tokens"},
	{"input_tokens", "output_tokens"},
	{"promptTokenCount", "candidatesTokenCount"},
}

// SumUsageTokens totals input+output tokens across usage records. Records with
// unknown shapes, or that fail to parse, contribute zero: budget accounting is
// best-effort and a malformed usage payload must never fail a wake attempt.
// The second return value is the number of records that could not be parsed.
func SumUsageTokens(records []json.RawMessage) (int, int) {
	total := 0
	unparsed := 0

	for _, raw := range records {
		var fields map[string]any
		if err := json.Unmarshal(raw, &fields); err != nil {
			unparsed++
			continue
		}

		matched := false
		for _, pair := range usageFieldPairs {
			in, hasIn := numericField(fields, pair[0])
			out, hasOut := numericField(fields, pair[1])
			if !hasIn && !hasOut {
				continue
			}
			matched = true
			total += in + out
			break
		}

		// Some providers report a precomputed total instead.
		if !matched {
			if v, ok := numericField(fields, "total_tokens"); ok {
				matched = true
				total += v
			}
		}
		if !matched {
			unparsed++
		}
	}

	return total, unparsed
}

func numericField(fields map[string]any, name string) (int, bool) {
	value, ok := fields[name]
	if !ok {
		return 0, false
	}
	switch v := value.(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n), true
		}
	}
	return 0, false
}
