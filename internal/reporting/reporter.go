// -- internal/reporting/reporter.go --
package reporting

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Reporter renders a finished run to an output.
type Reporter interface {
	// Write renders the report. It is called once per reporter.
	Write(report *Report) error
	// Close finalizes the output and closes any underlying resources (e.g., file handles).
	Close() error
}

// nopWriteCloser wraps an io.Writer and provides a no-op Close method.
type nopWriteCloser struct {
	io.Writer
}

func (nwc *nopWriteCloser) Close() error {
	return nil
}

// Extensions maps each supported format to the file extension of its output.
var Extensions = map[string]string{
	"html":  ".html",
	"json":  ".json",
	"junit": ".xml",
	"sarif": ".sarif",
}

// Stdout is the report path that sends every format to standard output.
const Stdout = "stdout"

// PathFor derives the output file of a format from the configured report path
// by swapping its extension. Stdout is returned unchanged.
func PathFor(reportPath, format string) string {
	if reportPath == Stdout {
		return reportPath
	}
	ext, ok := Extensions[strings.ToLower(format)]
	if !ok {
		ext = "." + strings.ToLower(format)
	}
	return strings.TrimSuffix(reportPath, filepath.Ext(reportPath)) + ext
}

// New creates a reporter for format writing to outputPath ("" or Stdout for
// standard output). Links to evidence in the HTML report are made relative to
// the output file's directory.
func New(format, outputPath, toolVersion string) (Reporter, error) {
	format = strings.ToLower(format)
	if _, ok := Extensions[format]; !ok {
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}

	var writer io.WriteCloser
	baseDir := "."
	isStdOut := outputPath == "" || outputPath == Stdout

	if isStdOut {
		writer = &nopWriteCloser{os.Stdout}
	} else {
		if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create output directory for %s: %w", outputPath, err)
		}
		f, err := os.Create(outputPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create output file %s: %w", outputPath, err)
		}
		writer = f
		baseDir = filepath.Dir(outputPath)
	}

	switch format {
	case "html":
		return NewHTMLReporter(writer, baseDir), nil
	case "json":
		return NewJSONReporter(writer), nil
	case "junit":
		return NewJUnitReporter(writer), nil
	default:
		return NewSARIFReporter(writer, toolVersion), nil
	}
}
