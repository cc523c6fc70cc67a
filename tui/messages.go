package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/lukemcguire/linkrot/crawler"
	"github.com/lukemcguire/linkrot/result"
)

// ProgressMsg carries one progress event from the crawler.
type ProgressMsg struct {
	Event crawler.Event
}

// DoneMsg signals the run has completed.
type DoneMsg struct {
	Report *result.Report
	Err    error
}

// waitForProgress returns a tea.Cmd that reads one event from the progress
// channel. A closed channel yields nil so the listener simply stops; the
// report itself arrives from startRun.
func waitForProgress(ch <-chan crawler.Event) tea.Cmd {
	return func() tea.Msg {
		evt, ok := <-ch
		if !ok {
			return nil
		}
		return ProgressMsg{Event: evt}
	}
}
