package report

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Output formats
const (
	FormatText     = "text"
	FormatMarkdown = "markdown"
	FormatJSON     = "json"
	FormatYAML     = "yaml"
)

// Formats lists every supported format
var Formats = []string{FormatText, FormatMarkdown, FormatJSON, FormatYAML}

// Write renders the report to w in the given format
func Write(w io.Writer, r *Report, format string) error {
	switch format {
	case "", FormatText:
		return NewTextFormatter(w).Format(r)
	case FormatMarkdown:
		return NewMarkdownFormatter(w).Format(r)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("invalid format: %s (must be one of text, markdown, json, yaml)", format)
	}
}
