package styles

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/rendis/geodrill/internal/model"
)

var (
	// Colors
	Primary   = lipgloss.Color("#7C3AED") // violet
	Secondary = lipgloss.Color("#06B6D4") // cyan
	Success   = lipgloss.Color("#22C55E") // green
	Warning   = lipgloss.Color("#F59E0B") // amber
	Error     = lipgloss.Color("#EF4444") // red
	Muted     = lipgloss.Color("#6B7280") // gray
	Text      = lipgloss.Color("#E5E7EB") // light gray
	NoData    = lipgloss.Color("#374151")

	// ClassColors runs from the lowest class to the highest.
	ClassColors = []lipgloss.Color{
		"#1A9850",
		"#91CF60",
		"#FEE08B",
		"#FC8D59",
		"#D73027",
		"#A50026",
		"#67001F",
	}

	Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(Primary).
		MarginBottom(1)

	Subtitle = lipgloss.NewStyle().
			Bold(true).
			Foreground(Secondary)

	Label = lipgloss.NewStyle().
		Foreground(Muted).
		Width(14)

	Value = lipgloss.NewStyle().
		Foreground(Text)

	ActiveItem = lipgloss.NewStyle().
			Foreground(Primary).
			Bold(true)

	InactiveItem = lipgloss.NewStyle().
			Foreground(Muted)

	StatusBar = lipgloss.NewStyle().
			Foreground(Muted).
			MarginTop(1)

	Border = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(Muted).
		Padding(1, 2)

	ErrorText = lipgloss.NewStyle().
			Foreground(Error).
			Bold(true)
)

// ClassColor maps a class index out of n classes onto the palette. A
// negative class is a region without data.
func ClassColor(class, n int) lipgloss.Color {
	if class < 0 || n <= 0 {
		return NoData
	}
	if n == 1 {
		return ClassColors[0]
	}
	i := class * (len(ClassColors) - 1) / (n - 1)
	if i >= len(ClassColors) {
		i = len(ClassColors) - 1
	}
	return ClassColors[i]
}

func StatusColor(s model.Status) lipgloss.Color {
	switch s {
	case model.StatusCritical:
		return Error
	case model.StatusWarning:
		return Warning
	}
	return Success
}
