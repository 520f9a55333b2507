package ui

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"echojournal/internal/config"
	"echojournal/internal/device"
	"echojournal/internal/echo"
	"echojournal/internal/entry"
)

const (
	rowInputDevice = iota
	rowOutputDevice
	rowVolume
	rowDefaultMood
	rowDefaultTopics
	settingsRows
)

type (
	settingsMoodMsg   struct{ mood echo.Mood }
	settingsTopicsMsg struct{ topics []string }
)

// settingsScreen edits audio devices, volume and the entry defaults.
type settingsScreen struct {
	prefs echo.SettingsPreferences
	audio Audio
	cfg   config.Config

	moodCh   <-chan echo.Mood
	topicsCh <-chan []string

	devices       []device.Info
	idx           int
	defaultMood   echo.Mood
	defaultTopics []string
	editing       bool
	topicsInput   textinput.Model
	err           string
}

func newSettingsScreen(ctx context.Context, deps Deps) settingsScreen {
	ti := textinput.New()
	ti.Placeholder = "work, family, health"
	ti.CharLimit = 200
	ti.Width = 40

	return settingsScreen{
		prefs:       deps.Settings,
		audio:       deps.Audio,
		cfg:         deps.Config,
		moodCh:      deps.Settings.ObserveDefaultMood(ctx),
		topicsCh:    deps.Settings.ObserveDefaultTopics(ctx),
		topicsInput: ti,
	}
}

func (s settingsScreen) listen() tea.Cmd {
	return tea.Batch(
		listen(s.moodCh, func(v echo.Mood) tea.Msg { return settingsMoodMsg{v} }),
		listen(s.topicsCh, func(v []string) tea.Msg { return settingsTopicsMsg{v} }),
	)
}

func (s settingsScreen) update(msg tea.Msg) (settingsScreen, tea.Cmd) {
	switch msg := msg.(type) {
	case settingsMoodMsg:
		s.defaultMood = msg.mood
		return s, listen(s.moodCh, func(v echo.Mood) tea.Msg { return settingsMoodMsg{v} })
	case settingsTopicsMsg:
		s.defaultTopics = msg.topics
		return s, listen(s.topicsCh, func(v []string) tea.Msg { return settingsTopicsMsg{v} })
	}
	return s, nil
}

// open refreshes the device list when the screen is shown.
func (s settingsScreen) open() settingsScreen {
	s.idx = 0
	s.editing = false
	s.err = ""
	if s.audio != nil {
		s.devices = s.audio.Devices()
		s.cfg.Volume = s.audio.Volume()
	}
	return s
}

// deviceOptions lists device ids for one direction, the system default ("") first.
func deviceOptions(devices []device.Info, input bool) []string {
	opts := []string{""}
	for _, d := range devices {
		if d.ID == "" {
			continue
		}
		if (input && d.IsInput) || (!input && d.IsOutput) {
			opts = append(opts, d.ID)
		}
	}
	return opts
}

// cycle steps delta positions from cur through opts, wrapping around. An
// unknown cur starts from the first option.
func cycle[T comparable](opts []T, cur T, delta int) T {
	if len(opts) == 0 {
		return cur
	}
	i := slices.Index(opts, cur)
	if i < 0 {
		return opts[0]
	}
	n := len(opts)
	return opts[((i+delta)%n+n)%n]
}

// stepVolume moves v by delta tenths and keeps it in [0.1, 1].
func stepVolume(v float64, delta int) float64 {
	v = math.Round((v+float64(delta)*0.1)*10) / 10
	return math.Min(math.Max(v, 0.1), 1)
}

// parseTopics splits comma or space separated input into clean topic names.
func parseTopics(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool { return r == ',' || r == ' ' })
	topics := make([]string, 0, len(fields))
	for _, f := range fields {
		topics = append(topics, entry.KeepTopicChars(f))
	}
	return echo.DistinctTopics(topics)
}

func (s settingsScreen) deviceName(id string) string {
	if id == "" {
		return "System default"
	}
	for _, d := range s.devices {
		if d.ID == id {
			return d.Name
		}
	}
	return fmt.Sprintf("Unknown Device (ID: %s)", id)
}

func (m Model) handleSettingsKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	s := &m.settings

	if s.editing {
		var cmd tea.Cmd
		switch {
		case key.Matches(msg, keys.Enter):
			s.editing = false
			s.topicsInput.Blur()
			if err := s.prefs.SaveDefaultTopics(m.ctx, parseTopics(s.topicsInput.Value())); err != nil {
				m.log.Error("saving default topics", "error", err)
				s.err = err.Error()
			}
		case key.Matches(msg, keys.Escape):
			s.editing = false
			s.topicsInput.Blur()
		default:
			s.topicsInput, cmd = s.topicsInput.Update(msg)
		}
		return m, cmd
	}

	switch {
	case key.Matches(msg, keys.Escape), key.Matches(msg, keys.Quit):
		m.applySettings()
		m.screen = screenList

	case key.Matches(msg, keys.Up):
		if s.idx > 0 {
			s.idx--
		}

	case key.Matches(msg, keys.Down):
		if s.idx < settingsRows-1 {
			s.idx++
		}

	case key.Matches(msg, keys.Left):
		m.adjustSetting(-1)

	case key.Matches(msg, keys.Right):
		m.adjustSetting(1)

	case key.Matches(msg, keys.Enter):
		switch s.idx {
		case rowInputDevice, rowOutputDevice:
			if s.audio != nil {
				s.devices = s.audio.Devices()
			}
		case rowDefaultTopics:
			s.editing = true
			s.topicsInput.SetValue(strings.Join(s.defaultTopics, ", "))
			s.topicsInput.CursorEnd()
			s.topicsInput.Focus()
		}
	}
	return m, nil
}

func (m *Model) adjustSetting(delta int) {
	s := &m.settings
	switch s.idx {
	case rowInputDevice:
		s.cfg.InputDevice = cycle(deviceOptions(s.devices, true), s.cfg.InputDevice, delta)
	case rowOutputDevice:
		s.cfg.OutputDevice = cycle(deviceOptions(s.devices, false), s.cfg.OutputDevice, delta)
	case rowVolume:
		s.cfg.Volume = stepVolume(s.cfg.Volume, delta)
		if s.audio != nil {
			s.audio.SetVolume(s.cfg.Volume)
		}
	case rowDefaultMood:
		mood := cycle(echo.Moods, s.defaultMood, delta)
		if err := s.prefs.SaveDefaultMood(m.ctx, mood); err != nil {
			m.log.Error("saving default mood", "error", err)
			s.err = err.Error()
			return
		}
		s.defaultMood = mood
	}
}

// applySettings hands device choices to the audio host and persists them.
func (m *Model) applySettings() {
	s := &m.settings
	changed := s.cfg.InputDevice != m.deps.Config.InputDevice ||
		s.cfg.OutputDevice != m.deps.Config.OutputDevice ||
		s.cfg.Volume != m.deps.Config.Volume
	if !changed {
		return
	}
	m.deps.Config.InputDevice = s.cfg.InputDevice
	m.deps.Config.OutputDevice = s.cfg.OutputDevice
	m.deps.Config.Volume = s.cfg.Volume
	if s.audio != nil {
		s.audio.SelectDevices(s.cfg.InputDevice, s.cfg.OutputDevice)
		s.audio.SetVolume(s.cfg.Volume)
	}
	if m.deps.Config.Path == "" {
		return
	}
	if err := m.deps.Config.SaveAudio(); err != nil {
		m.log.Error("saving audio settings", "error", err)
		m.showError("Could not save settings")
		return
	}
	m.showNotification("Settings saved")
}

func (m Model) renderSettings() string {
	s := m.settings
	var sections []string
	sections = append(sections, titleStyle.Render(" ECHOJOURNAL SETTINGS "), "")

	topics := "none"
	if len(s.defaultTopics) > 0 {
		topics = "#" + strings.Join(s.defaultTopics, " #")
	}
	names := []string{
		"Input Device:",
		"Output Device:",
		"Volume:",
		"Default Mood:",
		"Default Topics:",
	}
	values := []string{
		s.deviceName(s.cfg.InputDevice),
		s.deviceName(s.cfg.OutputDevice),
		fmt.Sprintf("%.0f%%", s.cfg.Volume*100),
		moodLabel(s.defaultMood),
		topics,
	}

	var lines []string
	for i, name := range names {
		line := "  "
		if i == s.idx {
			line = selectedStyle.Render("▶ ")
		}
		line += normalStyle.Render(fmt.Sprintf("%-16s", name))
		if i == rowDefaultTopics && s.editing {
			line += s.topicsInput.View()
		} else {
			line += successStyle.Render(values[i])
		}
		if i == s.idx && !s.editing {
			if i == rowDefaultTopics {
				line += " " + mutedStyle.Render("enter to edit")
			} else {
				line += " " + mutedStyle.Render("← →")
			}
		}
		lines = append(lines, line)
	}
	sections = append(sections, lipgloss.JoinVertical(lipgloss.Left, lines...))

	if s.audio == nil {
		sections = append(sections, "", mutedStyle.Render("Audio system: unavailable"))
	} else {
		sections = append(sections, "", mutedStyle.Render(fmt.Sprintf("Audio system: %d devices", len(s.devices))))
	}
	if s.err != "" {
		sections = append(sections, errorStyle.Render(s.err))
	}

	sections = append(sections, lipgloss.JoinVertical(lipgloss.Left,
		"",
		"Navigation:",
		"  ↑/↓     Select setting",
		"  ←/→     Change value",
		"  ENTER   Refresh devices / edit topics",
		"  ESC/q   Save and exit",
	))
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}
