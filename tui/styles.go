package tui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/lukemcguire/linkrot/result"
)

// ANSI palette indexes.
const (
	colorGreen  = lipgloss.Color("10")
	colorRed    = lipgloss.Color("9")
	colorBlue   = lipgloss.Color("12")
	colorYellow = lipgloss.Color("11")
	colorPink   = lipgloss.Color("205")
)

var (
	summaryStyle  = lipgloss.NewStyle().Bold(true)
	cleanStyle    = lipgloss.NewStyle().Bold(true).Foreground(colorGreen)
	errorStyle    = lipgloss.NewStyle().Bold(true).Foreground(colorRed)
	columnStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorBlue)
	groupStyle    = lipgloss.NewStyle().Bold(true).Foreground(colorYellow)
	dimStyle      = lipgloss.NewStyle().Faint(true)
	cellStyle     = lipgloss.NewStyle()
	statusStyle   = lipgloss.NewStyle().Foreground(colorRed)
	spinnerStyle  = lipgloss.NewStyle().Foreground(colorPink)
	brokenHeaders = []string{"URL", "Status", "Detail", "Found On"}
)

const (
	statusColumn    = 1
	maxSourcesShown = 2
)

// RenderSummary draws the broken links of a report as one table per
// category, in result.Categories order, followed by the run totals.
func RenderSummary(report *result.Report) string {
	if report == nil {
		return errorStyle.Render("No results available.")
	}

	totals := fmt.Sprintf("Checked %d links across %d posts in %s",
		report.Stats.LinksChecked, report.Stats.PostsFound,
		report.Stats.Duration.Round(time.Millisecond))

	broken := report.Broken()
	if len(broken) == 0 {
		return cleanStyle.Render("No broken links found!") + "\n" + dimStyle.Render(totals) + "\n"
	}

	byCategory := make(map[result.Category][]result.LinkCheckResult)
	for _, link := range broken {
		byCategory[link.ErrorType] = append(byCategory[link.ErrorType], link)
	}

	var b strings.Builder
	for _, cat := range result.Categories() {
		group := byCategory[cat]
		if len(group) == 0 {
			continue
		}
		fmt.Fprintln(&b, groupStyle.Render(fmt.Sprintf("%s (%d)", result.FormatCategory(cat), len(group))))
		fmt.Fprintln(&b, brokenTable(group).Render())
		fmt.Fprintln(&b)
	}
	fmt.Fprintln(&b, summaryStyle.Render(fmt.Sprintf("Found %d broken links. %s", report.Stats.BrokenCount, totals)))
	return b.String()
}

func brokenTable(links []result.LinkCheckResult) *table.Table {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		Headers(brokenHeaders...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return columnStyle
			case col == statusColumn:
				return statusStyle
			default:
				return cellStyle
			}
		})
	for _, link := range links {
		t.Row(link.URL, statusCell(link), link.Detail, sourcesCell(link.Sources))
	}
	return t
}

func statusCell(link result.LinkCheckResult) string {
	if !link.HasStatus() {
		return "-"
	}
	return strconv.Itoa(link.StatusCode)
}

func sourcesCell(sources []string) string {
	if len(sources) <= maxSourcesShown {
		return strings.Join(sources, "\n")
	}
	shown := strings.Join(sources[:maxSourcesShown], "\n")
	return fmt.Sprintf("%s\n(+%d more)", shown, len(sources)-maxSourcesShown)
}
