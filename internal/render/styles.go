package render

import "github.com/charmbracelet/lipgloss"

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62"))

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("69"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	risingStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("196"))

	fallingStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("82"))

	flatStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	seasonalStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("226"))
)

// heatShades run from no usage to full intensity.
var heatShades = []lipgloss.Style{
	lipgloss.NewStyle().Foreground(lipgloss.Color("236")),
	lipgloss.NewStyle().Foreground(lipgloss.Color("22")),
	lipgloss.NewStyle().Foreground(lipgloss.Color("28")),
	lipgloss.NewStyle().Foreground(lipgloss.Color("34")),
	lipgloss.NewStyle().Foreground(lipgloss.Color("82")),
}

var heatGlyphs = []string{"·", "░", "▒", "▓", "█"}
