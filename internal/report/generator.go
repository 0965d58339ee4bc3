package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"gopkg.in/yaml.v3"

	"authscan/internal/authlog"
)

// Format specifies the output format for reports.
type Format string

const (
	FormatText     Format = "text"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
	FormatYAML     Format = "yaml"
)

// Formats lists the supported formats.
var Formats = []Format{FormatText, FormatJSON, FormatMarkdown, FormatYAML}

// ParseFormat maps a name to a Format. "md" and "yml" are accepted.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text", "txt":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown report format: %s", s)
	}
}

const (
	rule     = "========================================"
	thinRule = "----------------------------------------"
)

// ReportGenerator renders a Document in one format.
type ReportGenerator struct {
	format Format
	loc    *time.Location
	now    func() time.Time
	stdout io.Writer
	check  func([]byte) error
}

// NewReportGenerator creates a new report generator.
func NewReportGenerator(format Format) *ReportGenerator {
	return &ReportGenerator{
		format: format,
		loc:    time.Local,
		now:    time.Now,
		stdout: os.Stdout,
	}
}

// WithLocation sets the zone report times are shown in.
func (g *ReportGenerator) WithLocation(loc *time.Location) *ReportGenerator {
	if loc != nil {
		g.loc = loc
	}
	return g
}

// WithClock replaces the clock used for the generation time.
func (g *ReportGenerator) WithClock(now func() time.Time) *ReportGenerator {
	if now != nil {
		g.now = now
	}
	return g
}

// WithStdout sets where WriteFile sends a report whose path is "-".
func (g *ReportGenerator) WithStdout(w io.Writer) *ReportGenerator {
	if w != nil {
		g.stdout = w
	}
	return g
}

// WithCheck registers fn to vet the rendered bytes before WriteFile
// writes them. A check error leaves the destination untouched.
func (g *ReportGenerator) WithCheck(fn func([]byte) error) *ReportGenerator {
	g.check = fn
	return g
}

// Format returns the configured format.
func (g *ReportGenerator) Format() Format {
	return g.format
}

// Stamp sets doc.GeneratedAt from the generator clock.
func (g *ReportGenerator) Stamp(doc *Document) {
	doc.GeneratedAt = g.now().In(g.loc)
}

// Generate writes doc in the configured format.
func (g *ReportGenerator) Generate(doc *Document, w io.Writer) error {
	if doc.GeneratedAt.IsZero() {
		g.Stamp(doc)
	}

	switch g.format {
	case FormatText:
		return g.generateText(doc, w)
	case FormatJSON:
		return g.generateJSON(doc, w)
	case FormatMarkdown:
		return g.generateMarkdown(doc, w)
	case FormatYAML:
		return g.generateYAML(doc, w)
	default:
		return fmt.Errorf("unknown format: %s", g.format)
	}
}

// WriteFile renders doc to path. A path of "-" writes to the generator's
// stdout.
func (g *ReportGenerator) WriteFile(doc *Document, path string) error {
	var buf bytes.Buffer
	if err := g.Generate(doc, &buf); err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	if g.check != nil {
		if err := g.check(buf.Bytes()); err != nil {
			return err
		}
	}
	if path == "-" {
		if _, err := g.stdout.Write(buf.Bytes()); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		return nil
	}
	return writeAtomic(path, buf.Bytes())
}

// writeAtomic writes data to path, creating parent directories. The file
// is only replaced once the data is complete.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("create report directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write report: %w", err)
	}
	if err := tmp.Chmod(0644); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close report: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace report: %w", err)
	}
	return nil
}

func (g *ReportGenerator) stamp(t time.Time) string {
	return t.In(g.loc).Format(authlog.TimestampLayout)
}

// generateText writes the plain-text security report.
func (g *ReportGenerator) generateText(doc *Document, w io.Writer) error {
	var b strings.Builder

	fmt.Fprintln(&b, rule)
	fmt.Fprintln(&b, "   LOG ANALYZER SECURITY REPORT")
	fmt.Fprintln(&b, rule)
	fmt.Fprintf(&b, "Report Generated: %s\n", g.stamp(doc.GeneratedAt))
	fmt.Fprintln(&b, rule)
	fmt.Fprintln(&b)

	fmt.Fprintln(&b, "SUMMARY STATISTICS")
	fmt.Fprintln(&b, thinRule)
	s := doc.Summary
	if s.TotalEntries == 0 {
		fmt.Fprintln(&b, "WARNING: No log entries were processed.")
		fmt.Fprintln(&b, "The log file may be empty or invalid.")
	} else {
		fmt.Fprintf(&b, "Total Log Entries: %d\n", s.TotalEntries)
		fmt.Fprintf(&b, "Successful Logins: %d\n", s.SuccessfulLogins)
		fmt.Fprintf(&b, "Failed Logins: %d\n", s.FailedLogins)
		fmt.Fprintf(&b, "Suspicious Events Detected: %d\n", s.SuspiciousEvents)
	}
	fmt.Fprintln(&b)

	fmt.Fprintln(&b, "DETECTED ANOMALIES")
	fmt.Fprintln(&b, thinRule)
	if len(doc.Events) == 0 {
		fmt.Fprintln(&b, "No anomalies detected.")
		fmt.Fprintln(&b, "All login activity appears normal.")
	}
	for i, ev := range doc.Events {
		fmt.Fprintf(&b, "\n[%d] %s\n", i+1, ev.Kind.Label())
		fmt.Fprintf(&b, "    Username: %s\n", ev.User)
		switch len(ev.Sources) {
		case 0:
			fmt.Fprintln(&b, "    IP Address(es): N/A")
		case 1:
			fmt.Fprintf(&b, "    IP Address(es): %s\n", ev.Sources[0])
		default:
			fmt.Fprintln(&b, "    IP Address(es):")
			for _, src := range ev.Sources {
				fmt.Fprintf(&b, "        - %s\n", src)
			}
		}
		fmt.Fprintf(&b, "    First Occurrence: %s\n", g.stamp(ev.FirstSeen))
		fmt.Fprintf(&b, "    Last Occurrence: %s\n", g.stamp(ev.LastSeen))
		fmt.Fprintf(&b, "    Event Count: %d\n", ev.Count)
		if ev.Description != "" {
			fmt.Fprintf(&b, "    Details: %s\n", ev.Description)
		}
	}
	fmt.Fprintln(&b)

	fmt.Fprintln(&b, rule)
	fmt.Fprintln(&b, "         END OF REPORT")
	fmt.Fprintln(&b, rule)

	_, err := io.WriteString(w, b.String())
	return err
}

// generateJSON outputs the report as JSON.
func (g *ReportGenerator) generateJSON(doc *Document, w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(doc)
}

// generateYAML outputs the report as YAML.
func (g *ReportGenerator) generateYAML(doc *Document, w io.Writer) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(doc); err != nil {
		return err
	}
	return encoder.Close()
}

const markdownTemplate = `# Log Analyzer Security Report

*Generated {{stamp .GeneratedAt}}{{if .RunID}} (run ` + "`{{.RunID}}`" + `){{end}}*

## Summary

| Metric | Value |
|--------|-------|
| Total Log Entries | {{.Summary.TotalEntries}} |
| Successful Logins | {{.Summary.SuccessfulLogins}} |
| Failed Logins | {{.Summary.FailedLogins}} |
| Suspicious Events Detected | {{.Summary.SuspiciousEvents}} |
{{- if .Input.InvalidLines}}
| Invalid Lines Skipped | {{.Input.InvalidLines}} |
{{- end}}

## Detected Anomalies
{{if not .Events}}
No anomalies detected. All login activity appears normal.
{{else}}
| # | Type | User | Source(s) | First | Last | Count |
|---|------|------|-----------|-------|------|-------|
{{range $i, $e := .Events -}}
| {{inc $i}} | {{$e.Kind.Label}} | {{$e.User}} | {{join $e.Sources}} | {{stamp $e.FirstSeen}} | {{stamp $e.LastSeen}} | {{$e.Count}} |
{{end}}
{{range $i, $e := .Events -}}
{{inc $i}}. {{$e.Description}}
{{end -}}
{{end}}
---
*Detector settings: threshold {{.Settings.FailedThreshold}}, window {{.Settings.WindowMinutes}} min, business hours {{.Settings.BusinessHourStart}}:00-{{.Settings.BusinessHourEnd}}:00 ({{.Settings.Timezone}})*
`

// generateMarkdown outputs the report as Markdown.
func (g *ReportGenerator) generateMarkdown(doc *Document, w io.Writer) error {
	funcs := template.FuncMap{
		"stamp": g.stamp,
		"inc":   func(i int) int { return i + 1 },
		"join":  func(s []string) string { return strings.Join(s, ", ") },
	}

	t, err := template.New("report").Funcs(funcs).Parse(markdownTemplate)
	if err != nil {
		return fmt.Errorf("parse template: %w", err)
	}
	return t.Execute(w, doc)
}
