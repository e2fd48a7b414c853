package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/wesleyorama2/libload/internal/performance/engine"
)

// JSONReport is the machine-readable form of a run.
type JSONReport struct {
	Name string `json:"name"`
	*engine.Report
}

// WriteJSON writes report as indented JSON.
func WriteJSON(w io.Writer, name string, report *engine.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(JSONReport{Name: name, Report: report}); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return nil
}

// WriteJSONFile writes report to path, replacing any existing file.
func WriteJSONFile(path, name string, report *engine.Report) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	if err := WriteJSON(f, name, report); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
