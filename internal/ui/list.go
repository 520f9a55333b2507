package ui

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"echojournal/internal/echo"
	"echojournal/internal/journal"
)

// echoItem is one row of the echo list.
type echoItem struct {
	echo   echo.Echo
	header string
}

func (i echoItem) Title() string {
	return moodIcon(i.echo.Mood) + " " + truncateText(i.echo.Title, 30)
}

func (i echoItem) Description() string {
	desc := fmt.Sprintf("%s %s, %s", i.header, i.echo.RecordedAt.Format("15:04"),
		formatDuration(i.echo.AudioPlaybackLength))
	if len(i.echo.Topics) > 0 {
		desc += " " + truncateText("#"+strings.Join(i.echo.Topics, " #"), 20)
	}
	return desc
}

func (i echoItem) FilterValue() string {
	return i.echo.Title + " " + strings.Join(i.echo.Topics, " ")
}

type placeholderItem struct{ filtered bool }

func (p placeholderItem) Title() string {
	if p.filtered {
		return "No echos match the filters. Press f to change them."
	}
	return "No echos yet. Press SPACE to record your first one!"
}

func (p placeholderItem) Description() string { return "" }

func (p placeholderItem) FilterValue() string { return "" }

func truncateText(text string, maxLength int) string {
	r := []rune(text)
	if len(r) <= maxLength {
		return text
	}
	return string(r[:maxLength-3]) + "..."
}

func formatDuration(d time.Duration) string {
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}

// listItems flattens day sections into list rows.
func listItems(sections []journal.DaySection) ([]list.Item, []echo.Echo) {
	var items []list.Item
	var ordered []echo.Echo
	for _, sec := range sections {
		for _, e := range sec.Echos {
			items = append(items, echoItem{echo: e, header: sec.Header})
			ordered = append(ordered, e)
		}
	}
	return items, ordered
}

// refreshList applies the filters to every echo and keeps the selection on
// the same echo when it is still visible.
func (m *Model) refreshList() {
	var selectedID string
	if e, ok := m.selected(); ok {
		selectedID = e.ID
	}

	filtered := journal.Filter(m.echos, m.moodFilter, m.topicFilter)
	items, ordered := listItems(journal.GroupByDay(filtered, m.deps.Now()))
	m.visible = ordered
	if len(items) == 0 {
		filtering := len(m.moodFilter) > 0 || len(m.topicFilter) > 0
		m.echoList.SetItems([]list.Item{placeholderItem{filtered: filtering}})
		m.echoList.SetShowStatusBar(false)
		return
	}
	m.echoList.SetItems(items)
	m.echoList.SetShowStatusBar(true)
	if i := slices.IndexFunc(ordered, func(e echo.Echo) bool { return e.ID == selectedID }); i >= 0 {
		m.echoList.Select(i)
	}
}

func (m Model) selected() (echo.Echo, bool) {
	if len(m.visible) == 0 {
		return echo.Echo{}, false
	}
	i := m.echoList.Index()
	if i < 0 || i >= len(m.visible) {
		return echo.Echo{}, false
	}
	return m.visible[i], true
}

// filterOption is one toggle row on the filter screen.
type filterOption struct {
	mood  echo.Mood
	topic string
}

func (m Model) filterOptions() []filterOption {
	opts := make([]filterOption, 0, len(echo.Moods)+len(m.topics))
	for _, mood := range echo.Moods {
		opts = append(opts, filterOption{mood: mood})
	}
	for _, t := range m.topics {
		opts = append(opts, filterOption{topic: t})
	}
	return opts
}

func (m Model) handleFilterKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	opts := m.filterOptions()
	switch {
	case key.Matches(msg, keys.Escape), key.Matches(msg, keys.Quit), key.Matches(msg, keys.Filter):
		m.screen = screenList

	case key.Matches(msg, keys.Up):
		if m.filterIdx > 0 {
			m.filterIdx--
		}

	case key.Matches(msg, keys.Down):
		if m.filterIdx < len(opts)-1 {
			m.filterIdx++
		}

	case key.Matches(msg, keys.Toggle):
		if m.filterIdx < len(opts) {
			m.toggleFilter(opts[m.filterIdx])
		}

	case key.Matches(msg, keys.Clear):
		m.moodFilter = nil
		m.topicFilter = nil
		m.refreshList()
	}
	return m, nil
}

func (m *Model) toggleFilter(opt filterOption) {
	if opt.mood != "" {
		m.moodFilter = journal.Toggle(m.moodFilter, opt.mood)
	} else {
		m.topicFilter = journal.Toggle(m.topicFilter, opt.topic)
	}
	m.refreshList()
}

func (m Model) renderFilter() string {
	var lines []string
	for i, opt := range m.filterOptions() {
		checked := false
		label := ""
		if opt.mood != "" {
			checked = slices.Contains(m.moodFilter, opt.mood)
			label = moodLabel(opt.mood)
		} else {
			checked = slices.Contains(m.topicFilter, opt.topic)
			label = normalStyle.Render("#" + opt.topic)
		}

		box := "[ ] "
		if checked {
			box = successStyle.Render("[x] ")
		}
		cursor := "  "
		if i == m.filterIdx {
			cursor = selectedStyle.Render("▶ ")
		}
		if i == len(echo.Moods) {
			lines = append(lines, "", mutedStyle.Render("Topics"))
		}
		lines = append(lines, cursor+box+label)
	}
	if len(m.topics) == 0 {
		lines = append(lines, "", mutedStyle.Render("No topics yet"))
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render(" FILTER ECHOS "),
		"",
		m.renderChips(),
		"",
		mutedStyle.Render("Moods"),
		lipgloss.JoinVertical(lipgloss.Left, lines...),
		"",
		mutedStyle.Render("↑/↓ select  space toggle  c clear  esc back"),
	)
}

func (m Model) renderChips() string {
	mood := chipStyle
	if len(m.moodFilter) > 0 {
		mood = activeChipStyle
	}
	topic := chipStyle
	if len(m.topicFilter) > 0 {
		topic = activeChipStyle
	}
	return lipgloss.JoinHorizontal(lipgloss.Top,
		mood.Render(journal.MoodChipTitle(m.moodFilter)),
		" ",
		topic.Render(journal.TopicChipTitle(m.topicFilter)),
	)
}
