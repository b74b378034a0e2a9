package ui

import "github.com/charmbracelet/lipgloss"

// Styles holds pre-computed lipgloss styles for every region of the
// session view.
type Styles struct {
	theme Theme

	Title     lipgloss.Style
	StatusBar lipgloss.Style

	StateBadge lipgloss.Style
	MuteBadge  lipgloss.Style
	LiveBadge  lipgloss.Style

	UserLabel lipgloss.Style
	UserLine  lipgloss.Style
	ModelLine lipgloss.Style
	ToolLine  lipgloss.Style
	InfoLine  lipgloss.Style
	ErrorLine lipgloss.Style

	InputArea lipgloss.Style
	Help      lipgloss.Style
}

// NewStyles computes the full style set for a theme.
func NewStyles(theme Theme) Styles {
	s := Styles{theme: theme}

	s.Title = lipgloss.NewStyle().
		Foreground(lipgloss.Color(theme.Primary)).
		Bold(true)

	s.StatusBar = lipgloss.NewStyle().
		Foreground(lipgloss.Color(theme.Foreground)).
		Background(lipgloss.Color(theme.StatusBg)).
		Padding(0, 1)

	s.StateBadge = lipgloss.NewStyle().
		Foreground(lipgloss.Color(theme.Background)).
		Background(lipgloss.Color(theme.Primary)).
		Bold(true).
		Padding(0, 1)

	s.MuteBadge = lipgloss.NewStyle().
		Foreground(lipgloss.Color(theme.Background)).
		Background(lipgloss.Color(theme.Warning)).
		Bold(true).
		Padding(0, 1)

	s.LiveBadge = lipgloss.NewStyle().
		Foreground(lipgloss.Color(theme.Background)).
		Background(lipgloss.Color(theme.Success)).
		Bold(true).
		Padding(0, 1)

	s.UserLabel = lipgloss.NewStyle().
		Foreground(lipgloss.Color(theme.Primary)).
		Bold(true)

	s.UserLine = lipgloss.NewStyle().
		Foreground(lipgloss.Color(theme.Foreground))

	s.ModelLine = lipgloss.NewStyle().
		Foreground(lipgloss.Color(theme.Secondary))

	s.ToolLine = lipgloss.NewStyle().
		Foreground(lipgloss.Color(theme.Warning))

	s.InfoLine = lipgloss.NewStyle().
		Foreground(lipgloss.Color(theme.Muted)).
		Italic(true)

	s.ErrorLine = lipgloss.NewStyle().
		Foreground(lipgloss.Color(theme.Error)).
		Bold(true)

	s.InputArea = lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderTop(true).
		BorderForeground(lipgloss.Color(theme.Border))

	s.Help = lipgloss.NewStyle().
		Foreground(lipgloss.Color(theme.Muted))

	return s
}

// Theme returns the palette behind these styles.
func (s *Styles) Theme() Theme {
	return s.theme
}
