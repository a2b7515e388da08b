package wfeatures

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

var statusColors = map[Status]color.Attribute{
	StatusPassed:  color.FgGreen,
	StatusFailed:  color.FgRed,
	StatusErrored: color.FgYellow,
}

// String returns a human-readable summary of the report.
func (r *Report) String() string {
	var b strings.Builder
	r.Format(&b, false)
	return b.String()
}

// Format writes a human-readable summary of the report to w.
// When colored is true, statuses are highlighted with ANSI escapes.
func (r *Report) Format(w io.Writer, colored bool) {
	if r.Baseline != nil {
		fmt.Fprintf(w, "Baseline: %s (impact %.1f)\n", r.Baseline.Name, r.Baseline.Impact)
		if r.Baseline.Title != "" {
			fmt.Fprintf(w, "  %s\n", r.Baseline.Title)
		}
	}
	if r.Host != "" {
		fmt.Fprintf(w, "Host: %s", r.Host)
		if r.HostVersion != "" {
			fmt.Fprintf(w, " (%s)", r.HostVersion)
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintln(w)

	for _, res := range r.Results {
		writeResult(w, res, colored)
	}
	fmt.Fprintln(w)

	s := r.Summary
	fmt.Fprintf(w, "%d checks: %d passed, %d failed, %d errored\n", s.Total, s.Passed, s.Failed, s.Errored)
}

func writeResult(w io.Writer, res CheckResult, colored bool) {
	label := strings.ToUpper(res.Status.String())
	if colored {
		label = colorize(res.Status, label)
	}

	want := "not installed"
	if res.Expected {
		want = "installed"
	}
	fmt.Fprintf(w, "  %s %s: expected %s", label, res.Name, want)

	switch res.Status {
	case StatusErrored:
		fmt.Fprintf(w, " (error: %v)\n", res.Err)
	case StatusFailed:
		fmt.Fprintf(w, ", got %s\n", res.State)
		fmt.Fprintf(w, "      %s\n", Diagnose(res))
	default:
		fmt.Fprintf(w, ", got %s\n", res.State)
	}
}

// colorize always emits escapes; the caller decides whether w is a terminal.
func colorize(s Status, text string) string {
	c := color.New(statusColors[s])
	c.EnableColor()
	return c.Sprint(text)
}

// String returns a human-readable listing of the baseline.
func (b *Baseline) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Baseline: %s (impact %.1f)\n", b.Name, b.Impact)
	if b.Title != "" {
		fmt.Fprintf(&sb, "  %s\n", b.Title)
	}
	if b.Description != "" {
		fmt.Fprintf(&sb, "  %s\n", b.Description)
	}
	sb.WriteString("\nFeatures:\n")
	for _, exp := range b.Expectations {
		want := "not installed"
		if exp.Installed {
			want = "installed"
		}
		fmt.Fprintf(&sb, "  %s: %s\n", exp.Name, want)
	}
	return sb.String()
}
