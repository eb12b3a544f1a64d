package cli

import (
	"github.com/charmbracelet/lipgloss"
)

var (
	folderStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	documentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	fragmentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	gistStyle     = lipgloss.NewStyle().Faint(true)
	idStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	branchStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).MarginRight(1)
	headerStyle   = lipgloss.NewStyle().Bold(true).Underline(true)
	warnStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)
