package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rusenback/dockersmoke/internal/model"
)

// maxLogLines bounds the log buffer kept for the log panel
const maxLogLines = 500

type stageStatus int

const (
	stagePending stageStatus = iota
	stageRunning
	stagePassed
	stageFailed
)

type stageState struct {
	status  stageStatus
	message string
	started time.Time
	elapsed time.Duration
}

// Result is what the run goroutine reports when the run ends
type Result struct {
	Record *model.RunRecord
	Err    error
}

// Model represents the TUI application state
type Model struct {
	title  string
	stages map[model.Stage]*stageState
	cancel func()
	width  int
	height int

	logs           []model.LogEntry
	logsScroll     int
	logsAutoScroll bool
	// readyLine is the message that ended the readiness wait.
	readyLine string

	events  <-chan model.Event
	results <-chan Result

	result     *Result
	cancelling bool
}

// Message types for Bubbletea update loop
type tickMsg time.Time

type eventMsg struct {
	event model.Event
}

type resultMsg struct {
	result Result
}

// NewModel creates a TUI model watching one run. cancel aborts the run;
// the run still cleans up and reports on results.
func NewModel(title string, events <-chan model.Event, results <-chan Result, cancel func()) Model {
	stages := make(map[model.Stage]*stageState, len(model.Stages))
	for _, s := range model.Stages {
		stages[s] = &stageState{}
	}

	return Model{
		title:          title,
		stages:         stages,
		cancel:         cancel,
		events:         events,
		results:        results,
		logsAutoScroll: true,
	}
}

// Init initializes the model and returns initial commands
func (m Model) Init() tea.Cmd {
	return tea.Batch(waitForEvent(m.events), waitForResult(m.results), tickCmd())
}

// Done reports whether the run has finished.
func (m Model) Done() bool {
	return m.result != nil
}

// Result returns the run result once the run has finished.
func (m Model) Result() (Result, bool) {
	if m.result == nil {
		return Result{}, false
	}
	return *m.result, true
}
