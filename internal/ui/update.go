package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/normanking/cortex-voice/internal/bus"
)

// update is the message handler behind Model.Update.
func update(m *Model, msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return handleResize(m, msg)

	case tea.KeyMsg:
		return handleKey(m, msg)

	case eventMsg:
		applyEvent(m, msg.event)
		return m, waitForEvent(m.events)

	case eventsClosedMsg:
		return m, tea.Quit
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func handleResize(m *Model, msg tea.WindowSizeMsg) (tea.Model, tea.Cmd) {
	m.width = msg.Width
	m.height = msg.Height

	// One row for the title, one for the status bar, two for the
	// bordered input line.
	chromeRows := 4
	vpHeight := msg.Height - chromeRows
	if vpHeight < 1 {
		vpHeight = 1
	}

	if !m.ready {
		m.viewport = viewport.New(msg.Width, vpHeight)
		m.ready = true
	} else {
		m.viewport.Width = msg.Width
		m.viewport.Height = vpHeight
	}
	m.input.Width = msg.Width - 4
	m.syncViewport()
	return m, nil
}

func handleKey(m *Model, msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		if m.unsub != nil {
			m.unsub()
		}
		return m, tea.Quit

	case key.Matches(msg, m.keys.Mute):
		// The mute_changed event echoes back and updates the badge.
		m.controller.ToggleMute()
		return m, nil

	case key.Matches(msg, m.keys.Send):
		text := strings.TrimSpace(m.input.Value())
		if text == "" {
			return m, nil
		}
		m.input.Reset()
		if err := m.controller.SendText(text); err != nil {
			m.appendLine(m.styles.ErrorLine.Render(fmt.Sprintf("send failed: %v", err)))
		}
		return m, textinput.Blink

	case key.Matches(msg, m.keys.PageUp):
		m.viewport.PageUp()
		return m, nil

	case key.Matches(msg, m.keys.PageDown):
		m.viewport.PageDown()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// applyEvent folds one bus event into the view state.
func applyEvent(m *Model, e bus.Event) {
	switch e.Type {
	case bus.EventStateChange:
		m.state = e.State

	case bus.EventTranscript:
		m.appendModelText(e.Text)

	case bus.EventUserText:
		m.appendLine(m.styles.UserLabel.Render("you     ") + m.styles.UserLine.Render(e.Text))

	case bus.EventToolCallStarted:
		m.appendLine(m.styles.ToolLine.Render(fmt.Sprintf("⚙ %s …", e.Capability)))

	case bus.EventToolCallFinished:
		if e.Success {
			m.appendLine(m.styles.ToolLine.Render(fmt.Sprintf("⚙ %s ✓", e.Capability)))
		} else {
			m.appendLine(m.styles.ErrorLine.Render(fmt.Sprintf("⚙ %s ✗ %s", e.Capability, e.Err)))
		}

	case bus.EventMuteChanged:
		m.muted = e.Muted

	case bus.EventBackendLost:
		m.appendLine(m.styles.ErrorLine.Render(fmt.Sprintf("backend %s lost; its capabilities are gone", e.Backend)))

	case bus.EventInfo:
		m.appendLine(m.styles.InfoLine.Render(e.Text))

	case bus.EventError:
		m.appendLine(m.styles.ErrorLine.Render(e.Err))

	case bus.EventMicReady, bus.EventPeerConnected,
		bus.EventPlaybackStart, bus.EventPlaybackEnd:
		// Reflected by the status bar, not the transcript.
	}
}
