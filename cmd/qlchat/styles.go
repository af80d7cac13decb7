package main

import "github.com/charmbracelet/lipgloss"

type styles struct {
	title      lipgloss.Style
	header     lipgloss.Style
	help       lipgloss.Style
	errText    lipgloss.Style
	notice     lipgloss.Style
	reconnect  lipgloss.Style
	cursor     lipgloss.Style
	entry      lipgloss.Style
	preview    lipgloss.Style
	groupBadge lipgloss.Style
	ownSender  lipgloss.Style
	sender     lipgloss.Style
	pending    lipgloss.Style
	inputFrame lipgloss.Style
	label      lipgloss.Style
}

func newStyles() styles {
	accent := lipgloss.Color("62")
	muted := lipgloss.Color("241")
	red := lipgloss.Color("196")
	yellow := lipgloss.Color("214")
	green := lipgloss.Color("42")

	return styles{
		title:      lipgloss.NewStyle().Bold(true).Foreground(accent),
		header:     lipgloss.NewStyle().Bold(true),
		help:       lipgloss.NewStyle().Foreground(muted),
		errText:    lipgloss.NewStyle().Foreground(red),
		notice:     lipgloss.NewStyle().Foreground(yellow),
		reconnect:  lipgloss.NewStyle().Foreground(yellow).Italic(true),
		cursor:     lipgloss.NewStyle().Bold(true).Foreground(accent),
		entry:      lipgloss.NewStyle(),
		preview:    lipgloss.NewStyle().Foreground(muted),
		groupBadge: lipgloss.NewStyle().Foreground(green),
		ownSender:  lipgloss.NewStyle().Bold(true).Foreground(accent),
		sender:     lipgloss.NewStyle().Bold(true),
		pending:    lipgloss.NewStyle().Foreground(muted).Italic(true),
		inputFrame: lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(muted).Padding(0, 1),
		label:      lipgloss.NewStyle().Foreground(muted),
	}
}
