//go:build linux || darwin

package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/cboone/outcheck/internal/casefile"
)

type summary struct {
	Total, Passed, Failed, Errored int
	Duration                       time.Duration
}

func summarize(results []casefile.Result) summary {
	var s summary
	for _, r := range results {
		s.Total++
		s.Duration += r.Duration
		switch r.Status {
		case casefile.Passed:
			s.Passed++
		case casefile.Failed:
			s.Failed++
		case casefile.Errored:
			s.Errored++
		}
	}
	return s
}

// writeReport renders one row per case and a totals footer.
func writeReport(w io.Writer, runID string, results []casefile.Result, color bool) summary {
	s := summarize(results)

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(fmt.Sprintf("outcheck results (run %s)", runID))
	t.AppendHeader(table.Row{"File", "Case", "Duration", "Status", "Error"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "File", AutoMerge: true},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Error", WidthMax: 80, WidthMaxEnforcer: text.WrapSoft},
	})

	for _, r := range results {
		t.AppendRow(table.Row{
			r.File,
			r.Case,
			formatDuration(r.Duration),
			strings.ToUpper(string(r.Status)),
			errorText(r.Err),
		})
	}

	switch {
	case !color:
		t.SetStyle(table.StyleLight)
	case s.Errored > 0:
		t.SetStyle(table.StyleColoredBlackOnYellowWhite)
	case s.Failed > 0:
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	default:
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	}

	t.AppendFooter(table.Row{
		"TOTAL",
		fmt.Sprintf("%d passed / %d failed / %d errors", s.Passed, s.Failed, s.Errored),
		formatDuration(s.Duration),
		"",
		"",
	})
	t.Render()
	return s
}

// errorText keeps the first line of an error; the full text goes to the log.
func errorText(err error) string {
	if err == nil {
		return ""
	}
	first, _, _ := strings.Cut(err.Error(), "\n")
	return first
}

func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.2fs", d.Seconds())
}
