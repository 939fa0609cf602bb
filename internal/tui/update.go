package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rusenback/dockersmoke/internal/model"
)

// Update handles messages and updates the model state
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if m.Done() {
				return m, tea.Quit
			}
			if !m.cancelling && m.cancel != nil {
				m.cancel()
			}
			m.cancelling = true

		case "pgup":
			// Scroll logs up by half page
			if m.logsScroll > 0 {
				m.logsScroll -= m.scrollStep()
				if m.logsScroll < 0 {
					m.logsScroll = 0
				}
				m.logsAutoScroll = false
			}

		case "pgdown":
			maxScroll := m.calculateMaxScroll()
			m.logsScroll += m.scrollStep()
			if m.logsScroll >= maxScroll {
				m.logsScroll = maxScroll
				m.logsAutoScroll = true
			}

		case "home":
			m.logsScroll = 0
			m.logsAutoScroll = false

		case "end":
			m.logsScroll = m.calculateMaxScroll()
			m.logsAutoScroll = true

		case "a":
			m.logsAutoScroll = !m.logsAutoScroll
			if m.logsAutoScroll {
				m.logsScroll = m.calculateMaxScroll()
			}
		}

	case eventMsg:
		m.applyEvent(msg.event)
		return m, waitForEvent(m.events)

	case resultMsg:
		result := msg.result
		m.result = &result
		return m, nil

	case tickMsg:
		now := time.Time(msg)
		for _, s := range m.stages {
			if s.status == stageRunning {
				s.elapsed = now.Sub(s.started)
			}
		}
		if !m.Done() {
			return m, tickCmd()
		}
	}

	return m, nil
}

// applyEvent folds a run event into the stage list or the log buffer
func (m *Model) applyEvent(e model.Event) {
	if e.Log != nil && !e.Done {
		m.logs = append(m.logs, *e.Log)
		if len(m.logs) > maxLogLines {
			m.logs = m.logs[len(m.logs)-maxLogLines:]
		}
		if m.logsAutoScroll {
			m.logsScroll = m.calculateMaxScroll()
		}
		return
	}

	s, ok := m.stages[e.Stage]
	if !ok {
		return
	}
	switch {
	case e.Err != nil:
		s.status = stageFailed
		s.message = e.Err.Error()
	case e.Done:
		s.status = stagePassed
		s.message = e.Message
		if e.Log != nil {
			m.readyLine = e.Log.Message
		}
	default:
		if s.status == stagePending {
			s.started = e.Time
		}
		s.status = stageRunning
		s.message = e.Message
	}
	if !s.started.IsZero() && s.status != stageRunning {
		s.elapsed = e.Time.Sub(s.started)
	}
}

func (m Model) scrollStep() int {
	step := m.calculateVisibleLogLines() / 2
	if step < 1 {
		step = 1
	}
	return step
}
