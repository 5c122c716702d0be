package reporting

import (
	"fmt"
	"html/template"
	"io"
	"path/filepath"
	"sync"
	"time"
)

var htmlTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"duration": func(d time.Duration) string { return d.Round(time.Millisecond).String() },
	"stamp":    func(t time.Time) string { return t.Format(time.RFC3339) },
}).Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Report.Tool}} report {{.Report.RunID}}</title>
<style>
body { font-family: sans-serif; margin: 2em; }
table { border-collapse: collapse; }
td, th { border: 1px solid #ccc; padding: 4px 8px; text-align: left; vertical-align: top; }
.passed { color: #1a7f37; } .failed { color: #cf222e; } .errored { color: #9a6700; }
pre { background: #f6f8fa; padding: 8px; white-space: pre-wrap; }
img { max-width: 480px; border: 1px solid #ccc; }
</style>
</head>
<body>
<h1>{{.Report.Tool}} run {{.Report.RunID}}</h1>
<p>Target: <a href="{{.Report.BaseURL}}">{{.Report.BaseURL}}</a><br>
Started: {{stamp .Report.StartedAt}} &middot; Duration: {{duration .Report.Duration}}</p>
{{with .Report.SuiteError}}<p class="errored" id="suite-error">Suite error: {{.}}</p>{{end}}
<table id="summary">
<tr><th>Total</th><th>Passed</th><th>Failed</th><th>Errored</th></tr>
<tr><td>{{.Summary.Total}}</td><td class="passed">{{.Summary.Passed}}</td><td class="failed">{{.Summary.Failed}}</td><td class="errored">{{.Summary.Errored}}</td></tr>
</table>
{{range .Entries}}
<section class="scenario" id="scenario-{{.Index}}" data-outcome="{{.Outcome}}">
<h2>{{.Scenario}} <span class="outcome {{.Outcome}}">{{.Outcome}}</span></h2>
{{with .Description}}<p>{{.}}</p>{{end}}
<p>Duration: {{duration .Duration}}</p>
{{if .Failing}}<p class="failing-step">Failed at step {{.Failing.Index}} ({{.Failing.Kind}}): {{.Failing.Description}}</p>{{end}}
{{with .Error}}<pre class="error">{{.}}</pre>{{end}}
<table class="steps">
<tr><th>#</th><th>Kind</th><th>Step</th><th>Status</th><th>Duration</th></tr>
{{range .Steps}}<tr class="{{.Status}}"><td>{{.Index}}</td><td>{{.Kind}}</td><td>{{.Description}}</td><td>{{.Status}}</td><td>{{duration .Duration}}</td></tr>
{{end}}</table>
{{if .Logs}}<pre class="logs">{{range .Logs}}{{.}}
{{end}}</pre>{{end}}
{{if .EvidenceHref}}<p class="evidence"><a href="{{.EvidenceHref}}"><img src="{{.EvidenceHref}}" alt="screenshot of {{.Scenario}}"></a></p>{{end}}
{{with .EvidenceError}}<p class="evidence-error">Evidence capture failed: {{.}}</p>{{end}}
</section>
{{end}}
</body>
</html>
`))

type htmlEntry struct {
	Entry
	Failing      *StepRecord
	EvidenceHref string
}

type htmlView struct {
	Report  *Report
	Summary Summary
	Entries []htmlEntry
}

// HTMLReporter writes a single readable page. Screenshots are linked relative
// to the directory of the page so the report and evidence can be moved together.
type HTMLReporter struct {
	writer  io.WriteCloser
	baseDir string
	mu      sync.Mutex
}

func NewHTMLReporter(writer io.WriteCloser, baseDir string) *HTMLReporter {
	return &HTMLReporter{writer: writer, baseDir: baseDir}
}

func (r *HTMLReporter) Write(report *Report) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	view := htmlView{Report: report, Summary: report.Summary()}
	for _, e := range report.Entries {
		he := htmlEntry{Entry: e}
		if step, ok := e.Failing(); ok {
			he.Failing = &step
		}
		if e.Evidence != nil {
			he.EvidenceHref = relativeHref(r.baseDir, e.Evidence.Path)
		}
		view.Entries = append(view.Entries, he)
	}

	if err := htmlTemplate.Execute(r.writer, view); err != nil {
		return fmt.Errorf("failed to render HTML report: %w", err)
	}
	return nil
}

func (r *HTMLReporter) Close() error {
	if err := r.writer.Close(); err != nil {
		return fmt.Errorf("failed to close output writer: %w", err)
	}
	return nil
}

// relativeHref returns target relative to baseDir with forward slashes,
// falling back to target itself when no relative path exists.
func relativeHref(baseDir, target string) string {
	absBase, err1 := filepath.Abs(baseDir)
	absTarget, err2 := filepath.Abs(target)
	if err1 != nil || err2 != nil {
		return filepath.ToSlash(target)
	}
	rel, err := filepath.Rel(absBase, absTarget)
	if err != nil {
		return filepath.ToSlash(target)
	}
	return filepath.ToSlash(rel)
}
