package tui

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/rusenback/dockersmoke/internal/model"
)

var (
	errorPattern = regexp.MustCompile(`(?i)\b(error|fatal|failed|exception|panic)\b`)
	warnPattern  = regexp.MustCompile(`(?i)\b(warn|warning)\b`)
	debugPattern = regexp.MustCompile(`(?i)\b(debug|trace)\b`)
	urlPattern   = regexp.MustCompile(`https?://[^\s]+`)

	timestampStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6C7086"))
	errorLogStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F38BA8"))
	warnLogStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FAB387"))
	debugLogStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#6C7086"))
	plainLogStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#CDD6F4"))
	urlStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#89DCEB"))
	readyLineStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#A6E3A1"))

	stdoutMark = lipgloss.NewStyle().Foreground(lipgloss.Color("#A6E3A1")).Render("○")
	stderrMark = lipgloss.NewStyle().Foreground(lipgloss.Color("#F38BA8")).Render("●")
)

// renderLogPanel renders the visible window of container log lines
func (m Model) renderLogPanel(width int) string {
	visible := m.calculateVisibleLogLines()

	start := m.logsScroll
	if start > len(m.logs) {
		start = len(m.logs)
	}
	end := start + visible
	if end > len(m.logs) {
		end = len(m.logs)
	}

	scroll := "auto"
	if !m.logsAutoScroll {
		scroll = fmt.Sprintf("%d/%d", end, len(m.logs))
	}
	lines := make([]string, 0, visible+1)
	lines = append(lines, titleStyle.Render("Container logs")+" "+timestampStyle.Render("["+scroll+"]"))

	if len(m.logs) == 0 {
		lines = append(lines, timestampStyle.Render("waiting for output..."))
	}
	for _, entry := range m.logs[start:end] {
		lines = append(lines, renderLogLine(entry, entry.Message == m.readyLine, width-6))
	}

	return panelStyle.Width(width - 2).Render(strings.Join(lines, "\n"))
}

// renderLogLine formats one entry as "time mark message". The line that
// satisfied the readiness wait is shown in bold green.
func renderLogLine(entry model.LogEntry, ready bool, maxWidth int) string {
	mark := stdoutMark
	if entry.Stream == model.StreamStderr {
		mark = stderrMark
	}
	prefix := timestampStyle.Render(entry.Timestamp.Format("15:04:05")) + " " + mark + " "

	// Truncate before styling so escape codes are never cut.
	msg := entry.Message
	if room := maxWidth - lipgloss.Width(prefix); room > 3 && len(msg) > room {
		msg = truncate(msg, room)
	}

	if ready {
		return prefix + readyLineStyle.Render(msg)
	}
	return prefix + styleMessage(msg)
}

// styleMessage colours a message by the log level it mentions and
// highlights URLs.
func styleMessage(msg string) string {
	style := plainLogStyle
	switch {
	case errorPattern.MatchString(msg):
		style = errorLogStyle
	case warnPattern.MatchString(msg):
		style = warnLogStyle
	case debugPattern.MatchString(msg):
		style = debugLogStyle
	}

	locs := urlPattern.FindAllStringIndex(msg, -1)
	if len(locs) == 0 {
		return style.Render(msg)
	}

	var b strings.Builder
	last := 0
	for _, loc := range locs {
		b.WriteString(style.Render(msg[last:loc[0]]))
		b.WriteString(urlStyle.Render(msg[loc[0]:loc[1]]))
		last = loc[1]
	}
	b.WriteString(style.Render(msg[last:]))
	return b.String()
}
