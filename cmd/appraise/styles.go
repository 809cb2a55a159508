package main

import "github.com/charmbracelet/lipgloss"

var (
	colorPrice  = lipgloss.Color("#2ECC71")
	colorAccent = lipgloss.Color("#20B9B4")
	colorWarn   = lipgloss.Color("#F4D03F")
	colorError  = lipgloss.Color("#E74C3C")
	colorMuted  = lipgloss.Color("#7F8C8D")
)

var styles = struct {
	Title  lipgloss.Style
	Prompt lipgloss.Style
	Price  lipgloss.Style
	Muted  lipgloss.Style
	Warn   lipgloss.Style
	Error  lipgloss.Style
	Header lipgloss.Style
	Box    lipgloss.Style
}{
	Title:  lipgloss.NewStyle().Bold(true).Foreground(colorAccent),
	Prompt: lipgloss.NewStyle().Foreground(colorAccent),
	Price:  lipgloss.NewStyle().Bold(true).Foreground(colorPrice),
	Muted:  lipgloss.NewStyle().Foreground(colorMuted),
	Warn:   lipgloss.NewStyle().Foreground(colorWarn),
	Error:  lipgloss.NewStyle().Foreground(colorError),
	Header: lipgloss.NewStyle().Bold(true).Underline(true),
	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colorAccent).
		Padding(0, 1),
}
