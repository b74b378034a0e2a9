package ui

import (
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/normanking/cortex-voice/internal/bus"
)

// Controller is the slice of the session the view drives.
// *session.Orchestrator satisfies it.
type Controller interface {
	SendText(text string) error
	ToggleMute() bool
	Muted() bool
}

// Model is the Bubble Tea model for the session view.
type Model struct {
	width  int
	height int
	ready  bool

	styles Styles
	keys   KeyMap

	viewport viewport.Model
	input    textinput.Model

	// lines is the rendered transcript, one entry per displayed row.
	lines []string

	// modelOpen marks the last line as a model fragment still growing;
	// consecutive transcript events append to it instead of starting a
	// new row.
	modelOpen bool

	state string
	muted bool

	controller Controller
	events     <-chan bus.Event
	unsub      func()
}

// New builds the session view. It subscribes to the bus; the
// subscription is released when the view quits.
func New(ctrl Controller, events *bus.Bus, themeName string) *Model {
	input := textinput.New()
	input.Placeholder = "type to the assistant, enter to send"
	input.CharLimit = 512
	input.Focus()

	ch := make(chan bus.Event, 64)
	subID := events.Subscribe("", func(e bus.Event) {
		select {
		case ch <- e:
		default:
			// The view is behind; dropping a display event is harmless.
		}
	})
	unsub := func() { events.Unsubscribe(subID) }

	return &Model{
		styles:     NewStyles(GetTheme(themeName)),
		keys:       DefaultKeyMap(),
		input:      input,
		state:      "connecting",
		muted:      ctrl.Muted(),
		controller: ctrl,
		events:     ch,
		unsub:      unsub,
	}
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, waitForEvent(m.events))
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	return update(m, msg)
}

// View implements tea.Model.
func (m *Model) View() string {
	return view(m)
}

// appendLine adds a finished row to the transcript and follows the
// tail.
func (m *Model) appendLine(line string) {
	m.lines = append(m.lines, line)
	m.modelOpen = false
	m.syncViewport()
}

// appendModelText merges consecutive model fragments into one row, the
// way they arrive from the stream.
func (m *Model) appendModelText(text string) {
	if m.modelOpen && len(m.lines) > 0 {
		m.lines[len(m.lines)-1] += text
	} else {
		m.lines = append(m.lines, m.styles.ModelLine.Render("gemini  ")+text)
		m.modelOpen = true
	}
	m.syncViewport()
}

func (m *Model) syncViewport() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(joinLines(m.lines))
	m.viewport.GotoBottom()
}

func joinLines(lines []string) string {
	out := ""
	for i, l := range lines {
		if i > 0 {
			out += "\n"
		}
		out += l
	}
	return out
}
