package report

import (
	"encoding/json"
	"fmt"
	"io"

	"sigs.k8s.io/yaml"
)

// Format is how a report is written.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

var Formats = []Format{FormatTable, FormatJSON, FormatYAML}

func (f Format) Validate() error {
	switch f {
	case FormatTable, FormatJSON, FormatYAML:
		return nil
	default:
		return fmt.Errorf("output format must be one of %v, not %q", Formats, f)
	}
}

// Renderer is a report that can be printed as tables.
type Renderer interface {
	Render(w io.Writer) error
}

// Write prints the report in the format. Structured formats serialize the
// report itself.
func Write(w io.Writer, format Format, report Renderer) error {
	switch format {
	case FormatJSON:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(report); err != nil {
			return fmt.Errorf("could not marshal report: %w", err)
		}
		return nil
	case FormatYAML:
		raw, err := yaml.Marshal(report)
		if err != nil {
			return fmt.Errorf("could not marshal report: %w", err)
		}
		_, err = w.Write(raw)
		return err
	default:
		return report.Render(w)
	}
}
