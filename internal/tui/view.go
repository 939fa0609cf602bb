package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/rusenback/dockersmoke/internal/model"
)

// View renders the TUI interface
func (m Model) View() string {
	width := m.width
	if width <= 0 {
		width = 100
	}

	header := headerStyle.Render(" dockersmoke ") + " " + titleStyle.Render(truncate(m.title, width-16))

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		m.renderStagePanel(width),
		m.renderLogPanel(width),
		m.renderResult(),
		m.renderHelp(),
	)
}

// renderStagePanel lists the run stages with their status
func (m Model) renderStagePanel(width int) string {
	var b strings.Builder
	for i, stage := range model.Stages {
		s := m.stages[stage]

		var icon string
		style := pendingStyle
		switch s.status {
		case stageRunning:
			icon, style = "◐", runningStyle
		case stagePassed:
			icon, style = "✓", passedStyle
		case stageFailed:
			icon, style = "✗", failedStyle
		default:
			icon = "·"
		}

		line := fmt.Sprintf("%s %-8s %6s  %s", icon, stage, formatElapsed(s.elapsed), s.message)
		b.WriteString(style.Render(truncate(line, width-6)))
		if i < len(model.Stages)-1 {
			b.WriteString("\n")
		}
	}

	return panelStyle.Width(width - 2).Render(b.String())
}

// renderResult renders the outcome once the run ended
func (m Model) renderResult() string {
	switch {
	case m.result == nil && m.cancelling:
		return runningStyle.Render("cancelling, removing container...")
	case m.result == nil:
		return ""
	case m.result.Err != nil:
		return failedStyle.Render("FAILED: " + m.result.Err.Error())
	default:
		msg := "PASSED"
		if rec := m.result.Record; rec != nil {
			msg = fmt.Sprintf("PASSED: HTTP %d on port %d in %s", rec.StatusCode, rec.HostPort, formatElapsed(rec.Duration))
		}
		return passedStyle.Render(msg)
	}
}

func (m Model) renderHelp() string {
	if m.Done() {
		return helpStyle.Render("q: quit • pgup/pgdown: scroll • home/end • a: auto-scroll")
	}
	return helpStyle.Render("q: cancel run • pgup/pgdown: scroll • home/end • a: auto-scroll")
}
