package main

import "github.com/charmbracelet/lipgloss"

// Color palette for the chat TUI.
var (
	colorPrimary = lipgloss.Color("#8BC34A") // Lime Green
	colorAccent  = lipgloss.Color("#2196F3") // Blue
	colorMuted   = lipgloss.Color("#6b7280")
	colorError   = lipgloss.Color("#e53935")
	colorBorder  = lipgloss.Color("#2a3850")
)

// chatStyles holds the lipgloss styles used by the chat view.
type chatStyles struct {
	Title     lipgloss.Style
	You       lipgloss.Style
	Assistant lipgloss.Style
	System    lipgloss.Style
	Muted     lipgloss.Style
	Error     lipgloss.Style
	Spinner   lipgloss.Style
	Prompt    lipgloss.Style
	Footer    lipgloss.Style
	InputBox  lipgloss.Style
}

func defaultChatStyles() chatStyles {
	return chatStyles{
		Title:     lipgloss.NewStyle().Bold(true).Foreground(colorPrimary),
		You:       lipgloss.NewStyle().Bold(true).Foreground(colorAccent).MarginTop(1),
		Assistant: lipgloss.NewStyle().Bold(true).Foreground(colorPrimary).MarginTop(1),
		System:    lipgloss.NewStyle().Foreground(colorMuted).Italic(true),
		Muted:     lipgloss.NewStyle().Foreground(colorMuted),
		Error:     lipgloss.NewStyle().Foreground(colorError),
		Spinner:   lipgloss.NewStyle().Foreground(colorPrimary),
		Prompt:    lipgloss.NewStyle().Foreground(colorPrimary),
		Footer:    lipgloss.NewStyle().Foreground(colorMuted),
		InputBox: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1),
	}
}
