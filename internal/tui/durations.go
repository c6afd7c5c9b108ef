package tui

import (
	"fmt"

	"github.com/NimbleMarkets/ntcharts/barchart"
	"github.com/charmbracelet/lipgloss"

	"github.com/tinytelemetry/snapvault/internal/model"
)

var (
	barOK   = lipgloss.NewStyle().Foreground(ColorGreen).Background(ColorGreen)
	barFail = lipgloss.NewStyle().Foreground(ColorRed).Background(ColorRed)
)

// renderDurations draws run durations oldest to newest, failed runs in red.
// runs are expected newest first, as returned by RecentRuns.
func renderDurations(runs []model.RunRecord, width, height int) string {
	title := sectionTitleStyle.Render("Run durations")
	if len(runs) == 0 {
		return lipgloss.JoinVertical(lipgloss.Left, title, helpStyle.Render("No runs recorded"))
	}

	maxBars := max(1, width/2)
	n := min(len(runs), maxBars)

	bc := barchart.New(max(width, 2), max(height, 3),
		barchart.WithBarGap(1),
		barchart.WithBarWidth(1),
		barchart.WithNoAxis(),
	)

	var longest float64
	for i := n - 1; i >= 0; i-- {
		r := runs[i]
		secs := r.Elapsed.Seconds()
		longest = max(longest, secs)
		style := barOK
		if !r.Success {
			style = barFail
		}
		bc.Push(barchart.BarData{
			Values: []barchart.BarValue{{Name: r.ID, Value: secs, Style: style}},
		})
	}
	bc.Draw()

	legend := helpStyle.Render(fmt.Sprintf("last %d runs, longest %.1fs", n, longest))
	return lipgloss.JoinVertical(lipgloss.Left, title, bc.View(), legend)
}
