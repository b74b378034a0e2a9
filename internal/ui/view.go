package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// view renders the full session screen: title, transcript viewport,
// input line, status bar.
func view(m *Model) string {
	if !m.ready {
		return "starting session..."
	}

	title := m.styles.Title.Render("cortex-voice")

	input := m.styles.InputArea.Width(m.width).Render(m.input.View())

	status := viewStatus(m)

	return lipgloss.JoinVertical(
		lipgloss.Left,
		title,
		m.viewport.View(),
		input,
		status,
	)
}

// viewStatus renders the bottom bar: conversation phase, mic badge and
// key hints.
func viewStatus(m *Model) string {
	state := m.styles.StateBadge.Render(strings.ToUpper(m.state))

	var mic string
	if m.muted {
		mic = m.styles.MuteBadge.Render("MIC MUTED")
	} else {
		mic = m.styles.LiveBadge.Render("MIC LIVE")
	}

	hints := m.styles.Help.Render("enter send · ctrl+t mute · ctrl+c quit")

	left := lipgloss.JoinHorizontal(lipgloss.Top, state, " ", mic)
	gap := m.width - lipgloss.Width(left) - lipgloss.Width(hints) - 2
	if gap < 1 {
		gap = 1
	}

	bar := left + strings.Repeat(" ", gap) + hints
	return m.styles.StatusBar.Width(m.width).Render(bar)
}
