package ui

import (
	"github.com/charmbracelet/lipgloss"
)

// Styles holds the lipgloss styles of the chat view.
type Styles struct {
	Header       lipgloss.Style
	Connected    lipgloss.Style
	Disconnected lipgloss.Style
	UserLabel    lipgloss.Style
	UserText     lipgloss.Style
	BotLabel     lipgloss.Style
	Cancelled    lipgloss.Style
	Error        lipgloss.Style
	Status       lipgloss.Style
	Help         lipgloss.Style
	Input        lipgloss.Style
}

// DefaultStyles returns the default palette.
func DefaultStyles() Styles {
	return Styles{
		Header:       lipgloss.NewStyle().Bold(true).Padding(0, 1),
		Connected:    lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		Disconnected: lipgloss.NewStyle().Foreground(lipgloss.Color("203")),
		UserLabel:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		UserText:     lipgloss.NewStyle().PaddingLeft(2),
		BotLabel:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("170")),
		Cancelled:    lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("241")),
		Error:        lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		Status:       lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
		Help:         lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		Input:        lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("62")),
	}
}
