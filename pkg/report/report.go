package report

import (
	"encoding/csv"
	"fmt"
	"html/template"
	"io"
	"path/filepath"
	"strconv"
	"time"

	siem "github.com/markuskont/go-mini-siem"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// DirLayout names the per-run output folder
const DirLayout = "2006-01-02_15-04"

// File names written into each run folder
const (
	CSVFile  = "findings.csv"
	HTMLFile = "report.html"
)

// timestamp layout for report cells
const cellTime = "2006-01-02 15:04:05"

// Config parametrizes a Writer
type Config struct {
	// parent folder, a timestamped folder is created inside
	Dir string
	// defaults to the OS filesystem
	Fs afero.Fs
	// names the run folder, time.Now if nil
	Now func() time.Time

	Logger logrus.FieldLogger
}

// Writer renders findings into a tabular export and an HTML document
type Writer struct {
	dir string
	fs  afero.Fs
	now func() time.Time
	log logrus.FieldLogger
}

// NewWriter instantiates a Writer
func NewWriter(c Config) *Writer {
	w := &Writer{dir: c.Dir, fs: c.Fs, now: c.Now, log: c.Logger}
	if w.fs == nil {
		w.fs = afero.NewOsFs()
	}
	if w.now == nil {
		w.now = time.Now
	}
	if w.log == nil {
		w.log = logrus.StandardLogger()
	}
	return w
}

// Write creates the run folder and both reports, returning the folder path
func (w Writer) Write(findings siem.Findings) (string, error) {
	out := filepath.Join(w.dir, w.now().Format(DirLayout))
	if err := w.fs.MkdirAll(out, 0o755); err != nil {
		return "", err
	}
	for name, render := range map[string]func(io.Writer, siem.Findings) error{
		CSVFile:  WriteCSV,
		HTMLFile: WriteHTML,
	} {
		if err := w.writeFile(filepath.Join(out, name), findings, render); err != nil {
			return out, err
		}
	}
	w.log.WithFields(logrus.Fields{
		"dir":      out,
		"findings": len(findings),
	}).Info("reports written")
	return out, nil
}

func (w Writer) writeFile(path string, findings siem.Findings, render func(io.Writer, siem.Findings) error) error {
	f, err := w.fs.Create(path)
	if err != nil {
		return err
	}
	if err := render(f, findings); err != nil {
		f.Close()
		return fmt.Errorf("%s: %w", path, err)
	}
	return f.Close()
}

// CSVHeader is the column layout of findings.csv
var CSVHeader = []string{
	"ID", "Rule", "SamAccountName", "Reason", "Severity",
	"WindowStart", "When", "Count", "SourceFile",
}

// WriteCSV writes one row per finding, in finding order
func WriteCSV(out io.Writer, findings siem.Findings) error {
	w := csv.NewWriter(out)
	if err := w.Write(CSVHeader); err != nil {
		return err
	}
	for _, f := range findings {
		if err := w.Write([]string{
			f.ID,
			f.Rule,
			f.Actor,
			f.Reason,
			f.Severity,
			f.WindowStart.Format(cellTime),
			f.WindowEnd.Format(cellTime),
			strconv.Itoa(f.Count),
			f.SourceFiles,
		}); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// RowClass maps severity to a table row style
func RowClass(s siem.Severity) string {
	switch s {
	case siem.SeverityCritical, siem.SeverityHigh:
		return "table-danger"
	case siem.SeverityMedium:
		return "table-warning"
	default:
		return "table-light"
	}
}

var tpl = template.Must(template.New("report").Funcs(template.FuncMap{
	"rowclass": func(f siem.Finding) string { return RowClass(f.Level()) },
	"when":     func(t time.Time) string { return t.Format(cellTime) },
}).Parse(`<!doctype html><html><head>
<meta charset="utf-8"><title>Mini-SIEM Findings</title>
<link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/bootstrap@5/dist/css/bootstrap.min.css">
</head><body class="p-4">
<h1>Mini-SIEM Findings ({{ len . }})</h1>
<table class="table table-sm table-bordered">
<thead><tr><th>User</th><th>Rule</th><th>Reason</th><th>Severity</th><th>When</th><th>Count</th><th>Source</th></tr></thead>
<tbody>
{{- range . }}
<tr class="{{ rowclass . }}"><td>{{ .Actor }}</td><td>{{ .Rule }}</td><td>{{ .Reason }}</td><td>{{ .Severity }}</td><td>{{ when .WindowEnd }}</td><td>{{ .Count }}</td><td>{{ .SourceFiles }}</td></tr>
{{- end }}
</tbody></table></body></html>
`))

// WriteHTML renders findings as a single page table, rows styled by severity
func WriteHTML(out io.Writer, findings siem.Findings) error {
	return tpl.Execute(out, findings)
}
