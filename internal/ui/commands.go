package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/normanking/cortex-voice/internal/bus"
)

// eventMsg delivers one bus event into the Bubble Tea update loop.
type eventMsg struct {
	event bus.Event
}

// eventsClosedMsg signals that the bus subscription ended.
type eventsClosedMsg struct{}

// waitForEvent blocks on the event channel and hands the next event to
// Update. Update re-arms it after each delivery.
func waitForEvent(events <-chan bus.Event) tea.Cmd {
	return func() tea.Msg {
		e, ok := <-events
		if !ok {
			return eventsClosedMsg{}
		}
		return eventMsg{event: e}
	}
}
