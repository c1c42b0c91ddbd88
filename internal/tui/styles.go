package tui

import "github.com/charmbracelet/lipgloss"

const (
	colorAccent = "154"
	colorUser   = "81"
	colorGray   = "245"
	colorBorder = "238"
	colorRed    = "196"
)

// Styles holds the chat styles.
type Styles struct {
	Title      lipgloss.Style
	Scope      lipgloss.Style
	User       lipgloss.Style
	Assistant  lipgloss.Style
	Source     lipgloss.Style
	Error      lipgloss.Style
	Status     lipgloss.Style
	Transcript lipgloss.Style
	Input      lipgloss.Style
}

// DefaultStyles returns the colour styles.
func DefaultStyles() Styles {
	return Styles{
		Title:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(colorAccent)),
		Scope:      lipgloss.NewStyle().Foreground(lipgloss.Color(colorGray)),
		User:       lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(colorUser)),
		Assistant:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(colorAccent)),
		Source:     lipgloss.NewStyle().Foreground(lipgloss.Color(colorGray)),
		Error:      lipgloss.NewStyle().Foreground(lipgloss.Color(colorRed)),
		Status:     lipgloss.NewStyle().Foreground(lipgloss.Color(colorGray)),
		Transcript: lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color(colorBorder)).Padding(0, 1),
		Input:      lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color(colorBorder)).Padding(0, 1),
	}
}

// NoColorStyles returns styles for NO_COLOR terminals. Borders are kept.
func NoColorStyles() Styles {
	return Styles{
		Title:      lipgloss.NewStyle().Bold(true),
		Scope:      lipgloss.NewStyle(),
		User:       lipgloss.NewStyle().Bold(true),
		Assistant:  lipgloss.NewStyle().Bold(true),
		Source:     lipgloss.NewStyle(),
		Error:      lipgloss.NewStyle(),
		Status:     lipgloss.NewStyle(),
		Transcript: lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1),
		Input:      lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1),
	}
}
