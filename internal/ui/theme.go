// Package ui renders the voice session as a Bubble Tea terminal
// application: a scrolling transcript, a typed-input line, and a
// status bar showing the conversation phase and mic state.
package ui

// Theme defines the color palette for the session view. Colors are
// hex strings for lipgloss.Color().
type Theme struct {
	Name string

	Background string
	Foreground string
	Border     string

	Primary   string // titles, the user's lines
	Secondary string // model transcript text
	Success   string // live mic, successful tool calls
	Warning   string // mute badge, pending tool calls
	Error     string // errors, lost backends
	Muted     string // timestamps, info lines

	StatusBg string // status bar background
}

// ThemeDark is the default palette.
var ThemeDark = Theme{
	Name:       "dark",
	Background: "#1e1e1e",
	Foreground: "#d4d4d4",
	Border:     "#3e3e42",
	Primary:    "#007acc",
	Secondary:  "#9cdcfe",
	Success:    "#4ec9b0",
	Warning:    "#dcdcaa",
	Error:      "#f48771",
	Muted:      "#6a737d",
	StatusBg:   "#252526",
}

// ThemeLight is a high-contrast palette for light terminals.
var ThemeLight = Theme{
	Name:       "light",
	Background: "#fafafa",
	Foreground: "#24292e",
	Border:     "#d1d5da",
	Primary:    "#0366d6",
	Secondary:  "#005cc5",
	Success:    "#22863a",
	Warning:    "#b08800",
	Error:      "#d73a49",
	Muted:      "#6a737d",
	StatusBg:   "#f1f3f5",
}

var availableThemes = map[string]Theme{
	"dark":  ThemeDark,
	"light": ThemeLight,
}

// GetTheme retrieves a theme by name, falling back to dark.
func GetTheme(name string) Theme {
	if theme, ok := availableThemes[name]; ok {
		return theme
	}
	return ThemeDark
}
