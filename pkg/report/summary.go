package report

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	siem "github.com/markuskont/go-mini-siem"
)

var severityColor = map[siem.Severity]*color.Color{
	siem.SeverityCritical: color.New(color.FgRed, color.Bold),
	siem.SeverityHigh:     color.New(color.FgRed),
	siem.SeverityMedium:   color.New(color.FgYellow),
	siem.SeverityLow:      color.New(color.FgCyan),
}

var dim = color.New(color.FgHiBlack)

// Summary prints one line per finding, colored by severity
func Summary(out io.Writer, findings siem.Findings) {
	if len(findings) == 0 {
		dim.Fprintln(out, "no findings")
		return
	}
	for _, f := range findings {
		c, ok := severityColor[f.Level()]
		if !ok {
			c = dim
		}
		c.Fprintf(out, "%-8s", f.Severity)
		fmt.Fprintf(out, " %s actor=%s count=%d when=%s %s\n",
			f.Rule, f.Actor, f.Count, f.WindowEnd.Format(cellTime), f.Reason)
	}
}
