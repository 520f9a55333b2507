package ui

import (
	"github.com/charmbracelet/lipgloss"

	"echojournal/internal/echo"
)

// Color palette
const (
	PrimaryBlue   = "#2563EB"
	PrimaryGreen  = "#059669"
	PrimaryPurple = "#7C3AED"

	AccentOrange = "#EA580C"
	AccentCyan   = "#0891B2"
	AccentPink   = "#DB2777"
	AccentYellow = "#CA8A04"

	TextPrimary   = "#F8FAFC"
	TextSecondary = "#CBD5E1"
	TextMuted     = "#64748B"
	Border        = "#334155"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(TextPrimary)).
			Background(lipgloss.Color(PrimaryBlue)).
			Padding(0, 1)

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(TextPrimary)).
			Background(lipgloss.Color(AccentPink))

	normalStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(TextSecondary))

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(TextMuted))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(PrimaryGreen))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(AccentOrange))

	recordingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(AccentOrange)).
			Bold(true)

	waveformStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(AccentCyan))

	playedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(PrimaryPurple))

	vuMeterStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(PrimaryGreen))

	chipStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(TextPrimary)).
			Background(lipgloss.Color(Border)).
			Padding(0, 1)

	activeChipStyle = chipStyle.
			Background(lipgloss.Color(PrimaryPurple))

	statusBarStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(TextPrimary)).
			Background(lipgloss.Color(PrimaryBlue)).
			Padding(0, 1)

	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(Border)).
			Padding(1, 2)

	headerBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color(PrimaryBlue)).
				Padding(0, 1)

	listBorderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(Border)).
			Padding(1, 2)

	focusedFieldStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color(AccentPink)).
				Bold(true)
)

var moodColors = map[echo.Mood]string{
	echo.MoodExcited:  AccentYellow,
	echo.MoodPeaceful: AccentCyan,
	echo.MoodNeutral:  TextSecondary,
	echo.MoodSad:      PrimaryBlue,
	echo.MoodStressed: AccentOrange,
}

var moodIcons = map[echo.Mood]string{
	echo.MoodExcited:  "★",
	echo.MoodPeaceful: "☁",
	echo.MoodNeutral:  "●",
	echo.MoodSad:      "☂",
	echo.MoodStressed: "⚡",
}

func moodIcon(m echo.Mood) string {
	if icon, ok := moodIcons[m]; ok {
		return icon
	}
	return "○"
}

func moodStyle(m echo.Mood) lipgloss.Style {
	c, ok := moodColors[m]
	if !ok {
		c = TextMuted
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color(c))
}

// moodLabel is the icon and title, colored for m.
func moodLabel(m echo.Mood) string {
	if m == "" {
		return mutedStyle.Render("no mood")
	}
	return moodStyle(m).Render(moodIcon(m) + " " + m.Title())
}
