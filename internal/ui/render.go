package ui

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"echojournal/internal/capture"
	"echojournal/internal/echo"
	"echojournal/internal/waveform"
)

var barRunes = []rune("·▁▂▃▄▅▆▇█")

func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	switch m.screen {
	case screenSettings:
		return m.renderSettings()
	case screenFilter:
		return m.renderFilter()
	case screenEntry:
		if m.entry != nil {
			return lipgloss.JoinVertical(lipgloss.Left, m.renderEntry(), m.renderStatusBar())
		}
	}
	return m.renderMain()
}

func (m Model) renderMain() string {
	var sections []string
	sections = append(sections, m.renderHeader())
	if v := m.renderVisualizer(); v != "" {
		sections = append(sections, v)
	}
	sections = append(sections, m.renderMainContent())
	sections = append(sections, m.renderStatusBar())
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderHeader() string {
	title := titleStyle.Render(" ECHOJOURNAL ")

	var status string
	rec := m.captureState
	switch rec.Status {
	case capture.NormalCapture:
		indicator := "●"
		if m.pulse > 10 {
			indicator = " "
		}
		status = recordingStyle.Render(fmt.Sprintf("%s REC %s", indicator, rec.ElapsedText()))
	case capture.Paused:
		status = recordingStyle.Render("❚❚ PAUSED " + rec.ElapsedText())
	case capture.QuickCapture:
		status = recordingStyle.Render("● QUICK CAPTURE  release with .")
	default:
		switch {
		case m.track != nil && m.track.IsPlaying:
			status = successStyle.Render("▶ PLAYING")
		case len(m.visible) == 1:
			status = normalStyle.Render("1 echo")
		default:
			status = normalStyle.Render(fmt.Sprintf("%d echos", len(m.visible)))
		}
	}

	header := lipgloss.JoinHorizontal(lipgloss.Top, title, " ", status, "  ", m.renderChips())
	return headerBorderStyle.Render(header)
}

func (m Model) renderVisualizer() string {
	var lines []string

	if m.captureState.Recording() {
		bars := waveform.Normalize(m.levels, float64(levelHistory), 1, 0)
		lines = append(lines, waveformStyle.Render("Input: "+renderBars(bars)))
		var level float32
		if n := len(m.levels); n > 0 {
			level = m.levels[n-1]
		}
		lines = append(lines, vuMeterStyle.Render(renderVUMeter("L", level, 30)))
	}

	if m.track != nil {
		if e, ok := m.playing(); ok {
			progress := echo.ProgressRatio(m.track.DurationPlayed, e.AudioPlaybackLength)
			lines = append(lines, successStyle.Render(renderTimeline(progress, 50)))
			lines = append(lines, mutedStyle.Render(fmt.Sprintf("%s / %s",
				formatDuration(m.track.DurationPlayed), formatDuration(e.AudioPlaybackLength))))
		}
	}

	if len(lines) == 0 {
		return ""
	}
	return borderStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func (m Model) playing() (echo.Echo, bool) {
	for _, e := range m.echos {
		if e.ID == m.playingID {
			return e, true
		}
	}
	return echo.Echo{}, false
}

// renderMainContent puts the echo list next to the selected echo.
func (m Model) renderMainContent() string {
	listView := listBorderStyle.Render(m.echoList.View())
	return lipgloss.JoinHorizontal(lipgloss.Top, listView, "  ", m.renderDetail())
}

func (m Model) renderDetail() string {
	e, ok := m.selected()
	if !ok {
		return ""
	}
	width := max(m.width-56, 20)

	var lines []string
	lines = append(lines, normalStyle.Bold(true).Render(e.Title))
	lines = append(lines, moodLabel(e.Mood)+mutedStyle.Render(
		"  "+e.RecordedAt.Format("Mon, Jan 2 15:04")+"  "+formatDuration(e.AudioPlaybackLength)))
	if len(e.Topics) > 0 {
		var chips []string
		for _, t := range e.Topics {
			chips = append(chips, chipStyle.Render("#"+t))
		}
		lines = append(lines, strings.Join(chips, " "))
	}
	lines = append(lines, "")

	var progress float64
	if m.track != nil && m.playingID == e.ID {
		progress = echo.ProgressRatio(m.track.DurationPlayed, e.AudioPlaybackLength)
	}
	bars := waveform.Normalize(e.AudioAmplitudes, float64(width), 1, 0)
	lines = append(lines, renderWaveform(bars, progress))

	if e.Note != "" {
		lines = append(lines, "", lipgloss.NewStyle().Width(width).Render(normalStyle.Render(e.Note)))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

// renderBars draws one rune per bar height in [0,1].
func renderBars(bars []float32) string {
	var b strings.Builder
	top := len(barRunes) - 1
	for _, v := range bars {
		h := int(math.Round(float64(v) * float64(top)))
		h = min(max(h, 0), top)
		b.WriteRune(barRunes[h])
	}
	return b.String()
}

// renderWaveform colors the bars before progress as played.
func renderWaveform(bars []float32, progress float64) string {
	if len(bars) == 0 {
		return mutedStyle.Render("no waveform")
	}
	split := int(progress * float64(len(bars)))
	split = min(max(split, 0), len(bars))
	return playedStyle.Render(renderBars(bars[:split])) + waveformStyle.Render(renderBars(bars[split:]))
}

func renderVUMeter(label string, level float32, width int) string {
	filled := int(level * float32(width))
	filled = min(max(filled, 0), width)

	glyph := "▄"
	switch {
	case level > 0.8:
		glyph = "█"
	case level > 0.6:
		glyph = "▆"
	}
	return label + ": [" + strings.Repeat(glyph, filled) + strings.Repeat(" ", width-filled) + "]"
}

func renderTimeline(progress float64, width int) string {
	filled := int(progress * float64(width))
	filled = min(max(filled, 0), width)
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", width-filled) + "]"
}

func (m Model) renderStatusBar() string {
	var status string
	switch {
	case m.captureState.Recording():
		status = recordingStyle.Render("● RECORDING")
	case m.track != nil && m.track.IsPlaying:
		status = successStyle.Render("▶ PLAYING")
	case m.track != nil:
		status = normalStyle.Render("❚❚ PAUSED")
	default:
		status = normalStyle.Render("Ready")
	}

	if m.notification != "" {
		if m.notifyErr {
			status += " | " + errorStyle.Render(m.notification)
		} else {
			status += " | " + successStyle.Render(m.notification)
		}
	}

	helpView := m.help.View(keys)
	if m.screen == screenEntry {
		helpView = m.help.View(entryKeys)
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		statusBarStyle.Render(status),
		helpView,
	)
}
