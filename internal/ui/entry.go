package ui

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"echojournal/internal/echo"
	"echojournal/internal/entry"
)

type entryField int

const (
	fieldTitle entryField = iota
	fieldMood
	fieldTopics
	fieldNote
	fieldCount
)

const maxSuggestions = 5

// Messages carry their flow so updates from a closed form are dropped.
type (
	entryReadyMsg struct {
		flow *entry.Flow
		err  error
	}
	entryStateMsg struct {
		flow  *entry.Flow
		state entry.State
	}
	entryEventMsg struct {
		flow *entry.Flow
		ev   entry.Event
	}
)

// entryScreen is the form shown after a recording is finished.
type entryScreen struct {
	flow    *entry.Flow
	ctx     context.Context
	cancel  context.CancelFunc
	stateCh <-chan entry.State

	state      entry.State
	focus      entryField
	title      textinput.Model
	topic      textinput.Model
	note       textinput.Model
	moodIdx    int
	suggestion int
}

func newEntryScreen(parent context.Context, flow *entry.Flow) *entryScreen {
	ctx, cancel := context.WithCancel(parent)

	title := textinput.New()
	title.Placeholder = "What is on your mind?"
	title.CharLimit = 60
	title.Width = 40
	title.Focus()

	topic := textinput.New()
	topic.Placeholder = "Add topic"
	topic.CharLimit = 30
	topic.Width = 20

	note := textinput.New()
	note.Placeholder = "Add a note (optional)"
	note.CharLimit = 280
	note.Width = 50

	return &entryScreen{
		flow:    flow,
		ctx:     ctx,
		cancel:  cancel,
		stateCh: flow.Subscribe(ctx),
		state:   flow.State(),
		title:   title,
		topic:   topic,
		note:    note,
	}
}

func (e *entryScreen) listenState() tea.Cmd {
	flow := e.flow
	return listen(e.stateCh, func(s entry.State) tea.Msg { return entryStateMsg{flow: flow, state: s} })
}

func (e *entryScreen) listenEvents() tea.Cmd {
	flow := e.flow
	return listenUntil(e.ctx, flow.Events(), func(ev entry.Event) tea.Msg { return entryEventMsg{flow: flow, ev: ev} })
}

// resize reports the waveform track width in terminal cells.
func (e *entryScreen) resize(width int) {
	e.flow.Dispatch(entry.TrackSizeAvailable{
		TrackWidth: float64(max(width-12, 10)),
		BarWidth:   1,
		Spacing:    0,
	})
}

func (e *entryScreen) close() {
	e.flow.Close()
	e.cancel()
}

func (e *entryScreen) setFocus(f entryField) {
	switch e.focus {
	case fieldMood:
		if e.state.ShowMoodSelector {
			e.flow.Dispatch(entry.DismissMoodSelector{})
		}
	case fieldTopics:
		if e.state.ShowTopicSuggestions {
			e.flow.Dispatch(entry.DismissTopicSuggestions{})
		}
	}
	e.focus = (f + fieldCount) % fieldCount
	e.title.Blur()
	e.topic.Blur()
	e.note.Blur()
	switch e.focus {
	case fieldTitle:
		e.title.Focus()
	case fieldTopics:
		e.topic.Focus()
	case fieldNote:
		e.note.Focus()
	}
}

func (m *Model) openEntry(details echo.RecordingDetails) tea.Cmd {
	flow := entry.New(details, entry.Deps{
		Storage:  m.deps.Storage,
		Player:   m.deps.Player,
		Echos:    m.deps.Echos,
		Settings: m.deps.Settings,
		Logger:   m.deps.Logger,
		Now:      m.deps.Now,
	})
	es := newEntryScreen(m.ctx, flow)
	m.entry = es
	m.screen = screenEntry
	es.resize(m.width)

	ctx := m.ctx
	return tea.Batch(
		func() tea.Msg { return entryReadyMsg{flow: flow, err: flow.Init(ctx)} },
		es.listenState(),
		es.listenEvents(),
	)
}

func (m *Model) closeEntry() {
	if m.entry != nil {
		m.entry.close()
		m.entry = nil
	}
	m.screen = screenList
}

func (m Model) updateEntry(msg tea.Msg) (tea.Model, tea.Cmd) {
	e := m.entry
	switch msg := msg.(type) {
	case entryReadyMsg:
		if e == nil || e.flow != msg.flow {
			return m, nil
		}
		if msg.err != nil {
			m.log.Warn("loading entry defaults", "error", msg.err)
		}
		e.state = e.flow.State()
		e.moodIdx = max(slices.Index(echo.Moods, e.state.SelectedMood), 0)

	case entryStateMsg:
		if e == nil || e.flow != msg.flow {
			return m, nil
		}
		e.state = msg.state
		if e.topic.Value() != msg.state.TopicText {
			e.topic.SetValue(msg.state.TopicText)
		}
		if e.suggestion >= len(msg.state.SearchResults) {
			e.suggestion = 0
		}
		return m, e.listenState()

	case entryEventMsg:
		if e == nil || e.flow != msg.flow {
			return m, nil
		}
		switch ev := msg.ev.(type) {
		case entry.Saved:
			m.showNotification(fmt.Sprintf("Saved %q", ev.Echo.Title))
			m.closeEntry()
			return m, nil
		case entry.SaveFailed:
			m.log.Error("save failed", "error", ev.Err)
			m.closeEntry()
			m.showError("Could not save the recording")
			return m, m.cleanUpRecording()
		case entry.PlaybackFailed:
			m.showError("Cannot play the recording")
		case entry.Discarded:
			m.closeEntry()
			m.showNotification("Recording discarded")
			return m, m.cleanUpRecording()
		}
		return m, e.listenEvents()
	}
	return m, nil
}

// cleanUpRecording removes the abandoned temporary recording off the UI loop.
func (m Model) cleanUpRecording() tea.Cmd {
	storage, ctx, log := m.deps.Storage, m.ctx, m.log
	return func() tea.Msg {
		if err := storage.CleanUpTemporaryFiles(ctx); err != nil {
			log.Warn("removing abandoned recording", "error", err)
		}
		return nil
	}
}

func (m Model) handleEntryKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	e := m.entry
	if e == nil {
		m.screen = screenList
		return m, nil
	}
	st := e.flow.State()
	e.state = st

	if st.ShowConfirmLeave {
		switch {
		case key.Matches(msg, entryKeys.Confirm):
			e.flow.Dispatch(entry.ConfirmLeave{})
		case key.Matches(msg, entryKeys.Deny):
			e.flow.Dispatch(entry.DismissConfirmLeave{})
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, entryKeys.Save):
		if !st.CanSave() {
			m.showError("Add a title and a mood to save")
			return m, nil
		}
		flow, ctx := e.flow, m.ctx
		return m, func() tea.Msg {
			flow.Save(ctx)
			return nil
		}

	case key.Matches(msg, entryKeys.Play):
		if st.Playback == entry.Playing {
			e.flow.Dispatch(entry.PauseAudio{})
		} else {
			e.flow.Dispatch(entry.PlayAudio{})
		}
		return m, nil

	case key.Matches(msg, entryKeys.Next):
		e.setFocus(e.focus + 1)
		return m, nil

	case key.Matches(msg, entryKeys.Prev):
		e.setFocus(e.focus - 1)
		return m, nil

	case key.Matches(msg, entryKeys.Cancel):
		switch {
		case e.focus == fieldMood && st.ShowMoodSelector:
			e.flow.Dispatch(entry.DismissMoodSelector{})
		case e.focus == fieldTopics && st.ShowTopicSuggestions:
			e.flow.Dispatch(entry.DismissTopicSuggestions{})
		default:
			e.flow.Dispatch(entry.Cancel{})
		}
		return m, nil
	}

	var cmd tea.Cmd
	switch e.focus {
	case fieldTitle:
		e.title, cmd = e.title.Update(msg)
		e.flow.Dispatch(entry.TitleChanged{Text: e.title.Value()})
	case fieldNote:
		e.note, cmd = e.note.Update(msg)
		e.flow.Dispatch(entry.NoteChanged{Text: e.note.Value()})
	case fieldMood:
		e.handleMoodKeys(msg, st)
	case fieldTopics:
		cmd = e.handleTopicKeys(msg, st)
	}
	return m, cmd
}

func (e *entryScreen) handleMoodKeys(msg tea.KeyMsg, st entry.State) {
	if !st.ShowMoodSelector {
		if key.Matches(msg, keys.Toggle) {
			e.moodIdx = max(slices.Index(echo.Moods, st.SelectedMood), 0)
			e.flow.Dispatch(entry.SelectMood{})
		}
		return
	}
	switch {
	case key.Matches(msg, keys.Left), key.Matches(msg, keys.Up):
		e.moodIdx = (e.moodIdx - 1 + len(echo.Moods)) % len(echo.Moods)
		e.flow.Dispatch(entry.MoodClick{Mood: echo.Moods[e.moodIdx]})
	case key.Matches(msg, keys.Right), key.Matches(msg, keys.Down):
		e.moodIdx = (e.moodIdx + 1) % len(echo.Moods)
		e.flow.Dispatch(entry.MoodClick{Mood: echo.Moods[e.moodIdx]})
	case key.Matches(msg, keys.Enter):
		if st.SelectedMood == "" {
			e.flow.Dispatch(entry.MoodClick{Mood: echo.Moods[e.moodIdx]})
		}
		e.flow.Dispatch(entry.ConfirmMood{})
	}
}

func (e *entryScreen) handleTopicKeys(msg tea.KeyMsg, st entry.State) tea.Cmd {
	suggestions := visibleSuggestions(st)
	switch msg.Type {
	case tea.KeyEnter:
		switch {
		case st.ShowTopicSuggestions && e.suggestion < len(suggestions):
			e.flow.Dispatch(entry.TopicClick{Topic: suggestions[e.suggestion]})
		case st.TopicText != "":
			e.flow.Dispatch(entry.TopicClick{Topic: st.TopicText})
		}
		e.topic.SetValue("")
		e.suggestion = 0
		return nil
	case tea.KeyUp:
		if e.suggestion > 0 {
			e.suggestion--
		}
		return nil
	case tea.KeyDown:
		if e.suggestion < len(suggestions)-1 {
			e.suggestion++
		}
		return nil
	case tea.KeyBackspace:
		if e.topic.Value() == "" && len(st.Topics) > 0 {
			e.flow.Dispatch(entry.RemoveTopic{Topic: st.Topics[len(st.Topics)-1]})
			return nil
		}
	}

	var cmd tea.Cmd
	e.topic, cmd = e.topic.Update(msg)
	text := entry.KeepTopicChars(e.topic.Value())
	if text != e.topic.Value() {
		e.topic.SetValue(text)
	}
	if text != st.TopicText {
		e.suggestion = 0
		e.flow.Dispatch(entry.TopicTextChanged{Text: text})
	}
	return cmd
}

func visibleSuggestions(st entry.State) []string {
	if !st.ShowTopicSuggestions {
		return nil
	}
	out := slices.DeleteFunc(slices.Clone(st.SearchResults), func(t string) bool {
		return slices.Contains(st.Topics, t)
	})
	if len(out) > maxSuggestions {
		out = out[:maxSuggestions]
	}
	return out
}

func (m Model) renderEntry() string {
	e := m.entry
	st := e.state

	label := func(f entryField, text string) string {
		if e.focus == f {
			return focusedFieldStyle.Render(fmt.Sprintf("%-8s", text))
		}
		return normalStyle.Render(fmt.Sprintf("%-8s", text))
	}

	var sections []string
	sections = append(sections, lipgloss.JoinHorizontal(lipgloss.Top,
		titleStyle.Render(" NEW ECHO "), " ",
		mutedStyle.Render(formatDuration(st.TotalDuration)+" recorded")))
	sections = append(sections, "")

	sections = append(sections, label(fieldTitle, "Title")+e.title.View())

	moodLine := label(fieldMood, "Mood") + moodLabel(st.Mood)
	sections = append(sections, moodLine)
	if st.ShowMoodSelector {
		var moods []string
		for _, mood := range echo.Moods {
			text := moodIcon(mood) + " " + mood.Title()
			if mood == st.SelectedMood {
				moods = append(moods, selectedStyle.Render(text))
			} else {
				moods = append(moods, moodStyle(mood).Render(text))
			}
		}
		sections = append(sections, "        "+strings.Join(moods, "  "))
	}

	topicLine := label(fieldTopics, "Topics")
	for _, t := range st.Topics {
		topicLine += chipStyle.Render("#"+t) + " "
	}
	sections = append(sections, topicLine+e.topic.View())
	if suggestions := visibleSuggestions(st); len(suggestions) > 0 || (st.ShowTopicSuggestions && st.TopicText != "") {
		for i, s := range suggestions {
			row := "  #" + s
			if i == e.suggestion {
				row = selectedStyle.Render("▶ #" + s)
			}
			sections = append(sections, "        "+row)
		}
		if !slices.Contains(st.SearchResults, st.TopicText) {
			sections = append(sections, "        "+mutedStyle.Render(fmt.Sprintf("enter: create #%s", st.TopicText)))
		}
	}

	sections = append(sections, label(fieldNote, "Note")+e.note.View())
	sections = append(sections, "")

	playing := "▶"
	if st.Playback == entry.Playing {
		playing = "❚❚"
	}
	sections = append(sections, borderStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
		renderWaveform(st.Bars, st.Progress()),
		mutedStyle.Render(fmt.Sprintf("%s %s / %s", playing,
			formatDuration(st.DurationPlayed), formatDuration(st.TotalDuration))),
	)))

	if st.ShowConfirmLeave {
		sections = append(sections, borderStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
			errorStyle.Render("Discard this recording?"),
			mutedStyle.Render("y discard  n keep editing"),
		)))
	}

	saveHint := mutedStyle.Render("ctrl+s save")
	if st.CanSave() {
		saveHint = successStyle.Render("ctrl+s save")
	}
	sections = append(sections, saveHint)
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}
