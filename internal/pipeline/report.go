package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format selects the report encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text", "txt":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported report format %q (use text, json or yaml)", s)
	}
}

// Encode renders the report in the given format.
func (r Report) Encode(format Format) ([]byte, error) {
	switch format {
	case FormatText, "":
		var b strings.Builder
		fmt.Fprintf(&b, "# run %s: %s (%d succeeded, %d skipped, %d failed, %d canceled)\n",
			r.RunID, r.Status, r.Succeeded, r.Skipped, r.Failed, r.Canceled)
		for _, line := range r.Lines() {
			b.WriteString(line)
			b.WriteByte('\n')
		}
		return []byte(b.String()), nil
	case FormatJSON:
		data, err := json.MarshalIndent(r, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode report: %w", err)
		}
		return append(data, '\n'), nil
	case FormatYAML:
		data, err := yaml.Marshal(r)
		if err != nil {
			return nil, fmt.Errorf("encode report: %w", err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("unsupported report format %q", format)
	}
}
