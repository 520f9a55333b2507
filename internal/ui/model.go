// Package ui is the terminal front end: the echo list, recording controls,
// the entry form and the settings screen.
package ui

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"

	"echojournal/internal/capture"
	"echojournal/internal/config"
	"echojournal/internal/device"
	"echojournal/internal/echo"
)

const (
	notificationTTL = 3 * time.Second
	levelHistory    = 60
)

// Audio is the device surface the settings screen edits.
type Audio interface {
	Devices() []device.Info
	SelectDevices(input, output string)
	SetVolume(v float64)
	Volume() float64
}

// Storage moves finished recordings and exports saved ones.
type Storage interface {
	echo.RecordingStorage
	Export(src, dir string) (string, error)
}

type Deps struct {
	Config   config.Config
	Recorder echo.VoiceRecorder
	Player   echo.AudioPlayer
	Storage  Storage
	Echos    echo.EchoDataSource
	Settings echo.SettingsPreferences
	// Audio may be nil when no device host is available.
	Audio  Audio
	Logger *slog.Logger
	Now    func() time.Time
	// ExportDir defaults to ~/Downloads.
	ExportDir string
}

type screen int

const (
	screenList screen = iota
	screenFilter
	screenEntry
	screenSettings
)

// Messages
type (
	tickMsg         time.Time
	echosMsg        []echo.Echo
	topicsMsg       []string
	captureStateMsg capture.State
	captureEventMsg struct{ ev capture.Event }
	recorderMsg     echo.RecorderSnapshot
	trackMsg        struct{ track *echo.AudioTrack }
	exportedMsg     struct {
		path string
		err  error
	}
)

// Model is the bubbletea model for the whole application.
type Model struct {
	deps    Deps
	log     *slog.Logger
	ctx     context.Context
	stop    context.CancelFunc
	capture *capture.Controller

	echosCh   <-chan []echo.Echo
	topicsCh  <-chan []string
	captureCh <-chan capture.State
	recCh     <-chan echo.RecorderSnapshot
	trackCh   <-chan *echo.AudioTrack

	screen screen
	width  int
	height int

	echos       []echo.Echo
	topics      []string
	moodFilter  []echo.Mood
	topicFilter []string
	visible     []echo.Echo
	echoList    list.Model
	filterIdx   int

	captureState capture.State
	levels       []float32
	pulse        int

	track     *echo.AudioTrack
	playingID string

	entry    *entryScreen
	settings settingsScreen

	help           help.Model
	notification   string
	notificationAt time.Time
	notifyErr      bool
}

// New subscribes to every observable dependency. Cancelling ctx, or quitting
// the program, ends the subscriptions.
func New(ctx context.Context, deps Deps) Model {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	if deps.ExportDir == "" {
		home, _ := os.UserHomeDir()
		deps.ExportDir = filepath.Join(home, "Downloads")
	}
	ctx, stop := context.WithCancel(ctx)

	ctrl := capture.New(deps.Recorder, capture.Options{
		MinDuration: deps.Config.MinRecordingDuration,
		Logger:      log,
	})

	h := help.New()
	h.Width = 80

	echoList := list.New([]list.Item{}, list.NewDefaultDelegate(), 0, 0)
	echoList.Title = "ECHOS"
	echoList.Styles.Title = titleStyle
	echoList.SetShowHelp(false)
	echoList.SetFilteringEnabled(false)
	echoList.SetSize(44, 15)

	return Model{
		deps:      deps,
		log:       log.With("component", "ui"),
		ctx:       ctx,
		stop:      stop,
		capture:   ctrl,
		echosCh:   deps.Echos.ObserveEchos(ctx),
		topicsCh:  deps.Echos.ObserveTopics(ctx),
		captureCh: ctrl.Subscribe(ctx),
		recCh:     deps.Recorder.Subscribe(ctx),
		trackCh:   deps.Player.Subscribe(ctx),
		echoList:  echoList,
		help:      h,
		settings:  newSettingsScreen(ctx, deps),
	}
}

// listen delivers the next value of ch as a message. A closed channel yields
// no message, which ends the listening loop.
func listen[T any](ch <-chan T, wrap func(T) tea.Msg) tea.Cmd {
	return func() tea.Msg {
		v, ok := <-ch
		if !ok {
			return nil
		}
		return wrap(v)
	}
}

// listenUntil is listen for channels that are never closed.
func listenUntil[T any](ctx context.Context, ch <-chan T, wrap func(T) tea.Msg) tea.Cmd {
	return func() tea.Msg {
		select {
		case v := <-ch:
			return wrap(v)
		case <-ctx.Done():
			return nil
		}
	}
}

func tick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) listenEchos() tea.Cmd {
	return listen(m.echosCh, func(v []echo.Echo) tea.Msg { return echosMsg(v) })
}

func (m Model) listenTopics() tea.Cmd {
	return listen(m.topicsCh, func(v []string) tea.Msg { return topicsMsg(v) })
}

func (m Model) listenCapture() tea.Cmd {
	return listen(m.captureCh, func(v capture.State) tea.Msg { return captureStateMsg(v) })
}

func (m Model) listenCaptureEvents() tea.Cmd {
	return listenUntil(m.ctx, m.capture.Events(), func(ev capture.Event) tea.Msg { return captureEventMsg{ev} })
}

func (m Model) listenRecorder() tea.Cmd {
	return listen(m.recCh, func(v echo.RecorderSnapshot) tea.Msg { return recorderMsg(v) })
}

func (m Model) listenTrack() tea.Cmd {
	return listen(m.trackCh, func(v *echo.AudioTrack) tea.Msg { return trackMsg{v} })
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		tick(),
		m.listenEchos(),
		m.listenTopics(),
		m.listenCapture(),
		m.listenCaptureEvents(),
		m.listenRecorder(),
		m.listenTrack(),
		m.settings.listen(),
	)
}

func (m *Model) showNotification(message string) {
	m.notification = message
	m.notificationAt = m.deps.Now()
	m.notifyErr = false
}

func (m *Model) showError(message string) {
	m.showNotification(message)
	m.notifyErr = true
}

// shutdown releases audio before the program exits.
func (m *Model) shutdown() {
	if m.capture.State().Recording() {
		m.capture.Dispatch(m.ctx, capture.Cancel{})
	}
	if m.entry != nil {
		m.entry.close()
		m.entry = nil
	}
	m.deps.Player.Stop()
	m.stop()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.echoList.SetSize(44, max(msg.Height-16, 5))
		if m.entry != nil {
			m.entry.resize(m.width)
		}

	case tea.BlurMsg:
		m.capture.Dispatch(m.ctx, capture.ForegroundLost{})

	case tea.FocusMsg:
		m.capture.Dispatch(m.ctx, capture.ForegroundRegained{})

	case tea.KeyMsg:
		switch m.screen {
		case screenEntry:
			return m.handleEntryKeys(msg)
		case screenSettings:
			return m.handleSettingsKeys(msg)
		case screenFilter:
			return m.handleFilterKeys(msg)
		default:
			return m.handleMainKeys(msg)
		}

	case tickMsg:
		now := time.Time(msg)
		if m.captureState.Recording() {
			m.pulse = (m.pulse + 1) % 20
		}
		if !m.notificationAt.IsZero() && now.Sub(m.notificationAt) > notificationTTL {
			m.notification = ""
			m.notificationAt = time.Time{}
		}
		cmds = append(cmds, tick())

	case echosMsg:
		m.echos = msg
		m.refreshList()
		cmds = append(cmds, m.listenEchos())

	case topicsMsg:
		m.topics = msg
		cmds = append(cmds, m.listenTopics())

	case captureStateMsg:
		m.captureState = capture.State(msg)
		if !m.captureState.Recording() {
			m.levels = nil
		}
		cmds = append(cmds, m.listenCapture())

	case captureEventMsg:
		cmds = append(cmds, m.handleCaptureEvent(msg.ev), m.listenCaptureEvents())

	case recorderMsg:
		if amps := msg.Details.Amplitudes; len(amps) > 0 && msg.State == echo.RecorderRecording {
			m.levels = append(m.levels, amps[len(amps)-1])
			if len(m.levels) > levelHistory {
				m.levels = m.levels[len(m.levels)-levelHistory:]
			}
		}
		cmds = append(cmds, m.listenRecorder())

	case trackMsg:
		m.track = msg.track
		if m.track == nil {
			m.playingID = ""
		}
		cmds = append(cmds, m.listenTrack())

	case exportedMsg:
		if msg.err != nil {
			m.showError(fmt.Sprintf("Export failed: %v", msg.err))
		} else {
			m.showNotification("Exported to " + msg.path)
		}

	case entryReadyMsg, entryStateMsg, entryEventMsg:
		return m.updateEntry(msg)

	case settingsMoodMsg, settingsTopicsMsg:
		var cmd tea.Cmd
		m.settings, cmd = m.settings.update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *Model) handleCaptureEvent(ev capture.Event) tea.Cmd {
	switch ev := ev.(type) {
	case capture.PermissionNeeded:
		// terminal sessions already own the microphone
		method := m.capture.State().Method
		m.capture.Dispatch(m.ctx, capture.PermissionGranted{})
		if method == capture.MethodQuick {
			m.capture.Dispatch(m.ctx, capture.QuickPress{})
		}
	case capture.RecordingTooShort:
		m.showError(fmt.Sprintf("Recording too short, hold for at least %s", m.minDuration()))
	case capture.RecordingUnavailable:
		m.showError(fmt.Sprintf("Microphone unavailable: %v", ev.Err))
	case capture.DoneRecording:
		m.deps.Player.Stop()
		return m.openEntry(ev.Details)
	}
	return nil
}

func (m Model) minDuration() time.Duration {
	if d := m.deps.Config.MinRecordingDuration; d > 0 {
		return d
	}
	return capture.DefaultMinDuration
}

func (m Model) handleMainKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	rec := m.capture.State()

	switch {
	case key.Matches(msg, keys.Quit):
		m.shutdown()
		return m, tea.Quit

	case key.Matches(msg, keys.Help):
		m.help.ShowAll = !m.help.ShowAll

	case key.Matches(msg, keys.Settings):
		if !rec.Recording() {
			m.screen = screenSettings
			m.settings = m.settings.open()
		}

	case key.Matches(msg, keys.Filter):
		if !rec.Recording() {
			m.screen = screenFilter
			m.filterIdx = 0
		}

	case key.Matches(msg, keys.Record):
		switch rec.Status {
		case capture.NotRecording:
			m.deps.Player.Stop()
			m.capture.Dispatch(m.ctx, capture.RecordFabClick{})
		case capture.NormalCapture, capture.Paused:
			m.capture.Dispatch(m.ctx, capture.Complete{})
		}

	case key.Matches(msg, keys.Quick):
		switch rec.Status {
		case capture.NotRecording:
			m.deps.Player.Stop()
			m.capture.Dispatch(m.ctx, capture.RequestQuickPermission{})
		case capture.QuickCapture:
			m.capture.Dispatch(m.ctx, capture.QuickRelease{})
		}

	case key.Matches(msg, keys.Pause):
		switch rec.Status {
		case capture.NormalCapture:
			m.capture.Dispatch(m.ctx, capture.Pause{})
		case capture.Paused:
			m.capture.Dispatch(m.ctx, capture.Resume{})
		}

	case key.Matches(msg, keys.Discard):
		switch rec.Status {
		case capture.QuickCapture:
			m.capture.Dispatch(m.ctx, capture.QuickRelease{Cancelled: true})
		case capture.NormalCapture, capture.Paused:
			m.capture.Dispatch(m.ctx, capture.Cancel{})
			m.showNotification("Recording discarded")
		}

	case key.Matches(msg, keys.Play):
		if !rec.Recording() {
			m.togglePlayback()
		}

	case key.Matches(msg, keys.Stop):
		m.deps.Player.Stop()

	case key.Matches(msg, keys.Export):
		if e, ok := m.selected(); ok {
			cmds = append(cmds, m.export(e))
		}

	case key.Matches(msg, keys.Up), key.Matches(msg, keys.Down):
		var cmd tea.Cmd
		m.echoList, cmd = m.echoList.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

// togglePlayback plays the selected echo, or pauses/resumes it when it is
// already the active track.
func (m *Model) togglePlayback() {
	e, ok := m.selected()
	if !ok {
		return
	}
	if t := m.deps.Player.ActiveTrack(); t != nil && m.playingID == e.ID {
		if t.IsPlaying {
			m.deps.Player.Pause()
		} else {
			m.deps.Player.Resume()
		}
		return
	}
	if err := m.deps.Player.Play(e.AudioFilePath, nil); err != nil {
		m.log.Warn("playback failed", "id", e.ID, "error", err)
		m.showError("Cannot play this echo")
		m.playingID = ""
		return
	}
	m.playingID = e.ID
}

func (m Model) export(e echo.Echo) tea.Cmd {
	storage, dir := m.deps.Storage, m.deps.ExportDir
	return func() tea.Msg {
		path, err := storage.Export(e.AudioFilePath, dir)
		return exportedMsg{path: path, err: err}
	}
}
