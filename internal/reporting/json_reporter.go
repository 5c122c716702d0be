package reporting

import (
	"fmt"
	"io"
	"sync"

	jsoniter "github.com/json-iterator/go"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// jsonDocument is the on-disk shape: the report plus its summary.
type jsonDocument struct {
	*Report
	Summary Summary `json:"summary"`
}

// JSONReporter writes the full report model as indented JSON.
type JSONReporter struct {
	writer io.WriteCloser
	mu     sync.Mutex
}

func NewJSONReporter(writer io.WriteCloser) *JSONReporter {
	return &JSONReporter{writer: writer}
}

func (r *JSONReporter) Write(report *Report) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	encoder := jsonAPI.NewEncoder(r.writer)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(jsonDocument{Report: report, Summary: report.Summary()}); err != nil {
		return fmt.Errorf("failed to encode JSON report: %w", err)
	}
	return nil
}

func (r *JSONReporter) Close() error {
	if err := r.writer.Close(); err != nil {
		return fmt.Errorf("failed to close output writer: %w", err)
	}
	return nil
}

// ReadJSON decodes a report previously written by JSONReporter.
func ReadJSON(reader io.Reader) (*Report, error) {
	var doc struct {
		Report
		Summary Summary `json:"summary"`
	}
	if err := jsonAPI.NewDecoder(reader).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode JSON report: %w", err)
	}
	return &doc.Report, nil
}
