package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/gyaneshwarpardhi/electrondump/internal/store"
)

var (
	accent  = lipgloss.Color("#FF0000")
	muted   = lipgloss.Color("#666666")
	success = lipgloss.Color("#00CC66")
	white   = lipgloss.Color("#FFFFFF")
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(white)
	labelStyle   = lipgloss.NewStyle().Foreground(muted).Width(12)
	failStyle    = lipgloss.NewStyle().Foreground(accent).Bold(true)
	successStyle = lipgloss.NewStyle().Foreground(success).Bold(true)
)

func renderSummary(r *jobResult) string {
	status := successStyle.Render("✓ done")
	if r.Err != nil {
		status = failStyle.Render("✗ failed")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", status, titleStyle.Render(r.Output))
	line := func(label, value string) {
		fmt.Fprintf(&b, "  %s %s\n", labelStyle.Render(label), value)
	}
	line("job", r.ID)
	line("input", r.Input)
	line("columns", fmt.Sprint(r.Columns))
	line("events", fmt.Sprint(r.Stats.Events))
	line("rows", fmt.Sprint(r.Stats.Rows))
	line("suppressed", fmt.Sprint(r.Stats.Suppressed))
	line("truncated", fmt.Sprintf("%d records", r.Stats.Dropped))
	line("duration", r.Duration.Round(time.Millisecond).String())
	return strings.TrimRight(b.String(), "\n")
}

func renderJobs(jobs []*store.Job) string {
	if len(jobs) == 0 {
		return lipgloss.NewStyle().Foreground(muted).Render("no jobs recorded")
	}
	head := lipgloss.NewStyle().Bold(true).Foreground(white)
	cell := lipgloss.NewStyle().PaddingRight(2)

	rows := [][]string{{"ID", "STATUS", "EVENTS", "ROWS", "N", "STARTED", "OUTPUT"}}
	for _, j := range jobs {
		rows = append(rows, []string{
			j.ID, j.Status, fmt.Sprint(j.Events), fmt.Sprint(j.Rows), fmt.Sprint(j.MaxObjects),
			j.StartedAt.Local().Format("2006-01-02 15:04:05"), j.Output,
		})
	}

	widths := make([]int, len(rows[0]))
	for _, row := range rows {
		for i, v := range row {
			widths[i] = max(widths[i], lipgloss.Width(v))
		}
	}

	var b strings.Builder
	for ri, row := range rows {
		for i, v := range row {
			st := cell.Width(widths[i] + 2)
			switch {
			case ri == 0:
				st = st.Inherit(head)
			case i == 1 && v == store.StatusFailed:
				st = st.Inherit(failStyle)
			case i == 1 && v == store.StatusCompleted:
				st = st.Inherit(successStyle)
			}
			b.WriteString(st.Render(v))
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}
