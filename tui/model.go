// Package tui provides the Bubble Tea terminal UI for linkrot, displaying
// live progress and a styled summary of the report.
package tui

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/lukemcguire/linkrot/crawler"
	"github.com/lukemcguire/linkrot/result"
)

// Runner produces a report. *crawler.Crawler implements it.
type Runner interface {
	Run(ctx context.Context) (*result.Report, error)
}

// Model is the Bubble Tea model for a linkrot run.
type Model struct {
	ctx        context.Context
	cancel     context.CancelFunc
	runner     Runner
	spinner    spinner.Model
	progressCh <-chan crawler.Event

	last     crawler.Event
	quitting bool
	done     bool
	report   *result.Report
	err      error
	width    int
}

// NewModel creates a TUI model wired to the given runner and progress channel.
func NewModel(ctx context.Context, cancel context.CancelFunc, runner Runner, progressCh <-chan crawler.Event) Model {
	spin := spinner.New()
	spin.Spinner = spinner.Dot
	spin.Style = spinnerStyle
	return Model{
		ctx:        ctx,
		cancel:     cancel,
		runner:     runner,
		spinner:    spin,
		progressCh: progressCh,
	}
}

// Init starts the spinner, the run, and the progress listener concurrently.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.startRun(), waitForProgress(m.progressCh))
}

func (m Model) startRun() tea.Cmd {
	return func() tea.Msg {
		report, err := m.runner.Run(m.ctx)
		return DoneMsg{Report: report, Err: err}
	}
}

// Update handles messages from the Bubble Tea runtime. The first Ctrl+C
// cancels the run and waits for the partial report; a second one quits
// immediately.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if m.quitting {
				return m, tea.Quit
			}
			m.quitting = true
			if m.cancel != nil {
				m.cancel()
			}
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width

	case ProgressMsg:
		m.last = msg.Event
		return m, waitForProgress(m.progressCh)

	case DoneMsg:
		m.done = true
		m.report = msg.Report
		m.err = msg.Err
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the current TUI state.
func (m Model) View() string {
	if m.done {
		out := ""
		if m.report != nil {
			out = RenderSummary(m.report)
		}
		if m.err != nil {
			out += errorStyle.Render("Error: "+m.err.Error()) + "\n"
		}
		return out
	}

	status := fmt.Sprintf("%s %s...", m.spinner.View(), m.last.Phase)
	if m.last.Total > 0 {
		status += fmt.Sprintf(" %d/%d, broken %d", m.last.Done, m.last.Total, m.last.Broken)
	}
	if m.quitting {
		status += dimStyle.Render("  (stopping, press again to quit)")
	}
	current := dimStyle
	if m.width > 0 {
		current = current.MaxWidth(m.width)
	}
	return status + "\n" + current.Render("  "+m.last.URL) + "\n"
}

// HasBrokenLinks reports whether the run found any broken links.
func (m Model) HasBrokenLinks() bool {
	return m.report != nil && m.report.Stats.BrokenCount > 0
}

// Report returns the run's report, or nil if it has not completed.
func (m Model) Report() *result.Report {
	return m.report
}

// Err returns the error the run ended with, if any.
func (m Model) Err() error {
	return m.err
}
