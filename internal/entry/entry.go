// Package entry turns a finished recording into a saved echo.
package entry

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode"

	"echojournal/internal/echo"
	"echojournal/internal/metrics"
	"echojournal/internal/watch"
	"echojournal/internal/waveform"
)

type PlaybackState int

const (
	Stopped PlaybackState = iota
	Playing
	Paused
)

func (p PlaybackState) String() string {
	switch p {
	case Playing:
		return "PLAYING"
	case Paused:
		return "PAUSED"
	}
	return "STOPPED"
}

type State struct {
	Title string
	Note  string

	// Mood is the confirmed mood; SelectedMood is the pick inside the open selector.
	Mood             echo.Mood
	SelectedMood     echo.Mood
	ShowMoodSelector bool

	Topics               []string
	TopicText            string
	SearchResults        []string
	ShowTopicSuggestions bool

	Playback       PlaybackState
	DurationPlayed time.Duration
	TotalDuration  time.Duration
	// Bars is the normalized waveform for the last reported track size.
	Bars []float32

	ShowConfirmLeave bool

	playGen uint64
}

func (s State) CanSave() bool {
	return strings.TrimSpace(s.Title) != "" && s.Mood != ""
}

// Progress is the played fraction of the recording in [0,1].
func (s State) Progress() float64 {
	return echo.ProgressRatio(s.DurationPlayed, s.TotalDuration)
}

type Action interface{ isAction() }

type (
	TitleChanged            struct{ Text string }
	NoteChanged             struct{ Text string }
	TopicTextChanged        struct{ Text string }
	TopicClick              struct{ Topic string }
	RemoveTopic             struct{ Topic string }
	DismissTopicSuggestions struct{}
	SelectMood              struct{}
	MoodClick               struct{ Mood echo.Mood }
	ConfirmMood             struct{}
	DismissMoodSelector     struct{}
	PlayAudio               struct{}
	PauseAudio              struct{}
	// TrackSizeAvailable reports the waveform track geometry in cells or pixels.
	TrackSizeAvailable  struct{ TrackWidth, BarWidth, Spacing float64 }
	Cancel              struct{}
	DismissConfirmLeave struct{}
	ConfirmLeave        struct{}
)

func (TitleChanged) isAction()            {}
func (NoteChanged) isAction()             {}
func (TopicTextChanged) isAction()        {}
func (TopicClick) isAction()              {}
func (RemoveTopic) isAction()             {}
func (DismissTopicSuggestions) isAction() {}
func (SelectMood) isAction()              {}
func (MoodClick) isAction()               {}
func (ConfirmMood) isAction()             {}
func (DismissMoodSelector) isAction()     {}
func (PlayAudio) isAction()               {}
func (PauseAudio) isAction()              {}
func (TrackSizeAvailable) isAction()      {}
func (Cancel) isAction()                  {}
func (DismissConfirmLeave) isAction()     {}
func (ConfirmLeave) isAction()            {}

type Event interface{ isEvent() }

type (
	Saved          struct{ Echo echo.Echo }
	SaveFailed     struct{ Err error }
	PlaybackFailed struct{ Err error }
	// Discarded means the user left without saving.
	Discarded struct{}
)

func (Saved) isEvent()          {}
func (SaveFailed) isEvent()     {}
func (PlaybackFailed) isEvent() {}
func (Discarded) isEvent()      {}

type Deps struct {
	Storage  echo.RecordingStorage
	Player   echo.AudioPlayer
	Echos    echo.EchoDataSource
	Settings echo.SettingsPreferences
	Logger   *slog.Logger
	Now      func() time.Time
}

// Flow is one entry-creation session for one recording.
type Flow struct {
	details echo.RecordingDetails
	deps    Deps
	log     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	stopSearch  context.CancelFunc
	stopObserve context.CancelFunc

	state  *watch.Value[State]
	events chan Event
}

// New takes ownership of details; the recorder must not touch the file again.
func New(details echo.RecordingDetails, deps Deps) *Flow {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Flow{
		details: details.Clone(),
		deps:    deps,
		log:     log.With("component", "entry"),
		ctx:     ctx,
		cancel:  cancel,
		state: watch.New(State{
			ShowMoodSelector: true,
			Topics:           []string{},
			TotalDuration:    details.Duration,
		}),
		events: make(chan Event, 8),
	}
}

// Init applies the stored default mood and topics. It reads only the first
// value of each preference.
func (f *Flow) Init(ctx context.Context) error {
	sub, cancel := context.WithCancel(ctx)
	defer cancel()

	var mood echo.Mood
	select {
	case mood = <-f.deps.Settings.ObserveDefaultMood(sub):
	case <-ctx.Done():
		return ctx.Err()
	}
	var topics []string
	select {
	case topics = <-f.deps.Settings.ObserveDefaultTopics(sub):
	case <-ctx.Done():
		return ctx.Err()
	}

	f.state.Update(func(s State) State {
		if mood.Valid() {
			s.Mood = mood
			s.SelectedMood = mood
			s.ShowMoodSelector = false
		}
		s.Topics = echo.DistinctTopics(topics)
		return s
	})
	f.log.Debug("entry defaults applied", "mood", string(mood), "topics", len(topics))
	return nil
}

func (f *Flow) State() State { return f.state.Get() }

func (f *Flow) Subscribe(ctx context.Context) <-chan State { return f.state.Subscribe(ctx) }

func (f *Flow) Events() <-chan Event { return f.events }

// Details is the recording this flow was created for.
func (f *Flow) Details() echo.RecordingDetails { return f.details.Clone() }

// Close stops playback and background work.
func (f *Flow) Close() {
	f.mu.Lock()
	f.endObserve()
	f.endSearch()
	f.mu.Unlock()
	f.cancel()
	if t := f.deps.Player.ActiveTrack(); t != nil {
		f.deps.Player.Stop()
	}
}

func (f *Flow) Dispatch(a Action) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch a := a.(type) {
	case TitleChanged:
		f.update(func(s *State) { s.Title = a.Text })
	case NoteChanged:
		f.update(func(s *State) { s.Note = a.Text })
	case TopicTextChanged:
		f.topicTextChanged(a.Text)
	case TopicClick:
		f.endSearch()
		f.update(func(s *State) {
			s.Topics = echo.DistinctTopics(append(slices.Clone(s.Topics), a.Topic))
			s.TopicText = ""
			s.SearchResults = nil
			s.ShowTopicSuggestions = false
		})
	case RemoveTopic:
		f.update(func(s *State) {
			s.Topics = slices.DeleteFunc(slices.Clone(s.Topics), func(t string) bool { return t == a.Topic })
		})
	case DismissTopicSuggestions:
		f.update(func(s *State) { s.ShowTopicSuggestions = false })
	case SelectMood:
		f.update(func(s *State) { s.ShowMoodSelector = true })
	case MoodClick:
		f.update(func(s *State) { s.SelectedMood = a.Mood })
	case ConfirmMood:
		f.update(func(s *State) {
			s.Mood = s.SelectedMood
			s.ShowMoodSelector = false
		})
	case DismissMoodSelector:
		f.update(func(s *State) { s.ShowMoodSelector = false })
	case PlayAudio:
		f.play()
	case PauseAudio:
		f.deps.Player.Pause()
	case TrackSizeAvailable:
		f.normalize(a.TrackWidth, a.BarWidth, a.Spacing)
	case Cancel:
		f.update(func(s *State) { s.ShowConfirmLeave = true })
	case DismissConfirmLeave:
		f.update(func(s *State) { s.ShowConfirmLeave = false })
	case ConfirmLeave:
		f.update(func(s *State) { s.ShowConfirmLeave = false })
		f.emit(Discarded{})
	default:
		f.log.Warn("unknown entry action", "action", fmt.Sprintf("%T", a))
	}
}

func (f *Flow) update(fn func(s *State)) State {
	return f.state.Update(func(s State) State {
		fn(&s)
		return s
	})
}

// KeepTopicChars drops everything but letters and digits.
func KeepTopicChars(text string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return -1
	}, text)
}

func (f *Flow) topicTextChanged(text string) {
	query := KeepTopicChars(text)
	f.endSearch()
	f.update(func(s *State) {
		s.TopicText = query
		if query == "" {
			s.SearchResults = nil
			s.ShowTopicSuggestions = false
		}
	})
	if query == "" {
		return
	}

	ctx, cancel := context.WithCancel(f.ctx)
	f.stopSearch = cancel
	results := f.deps.Echos.SearchTopics(ctx, query)
	go func() {
		for found := range results {
			f.update(func(s *State) {
				if s.TopicText != query {
					return
				}
				s.SearchResults = found
				s.ShowTopicSuggestions = !slices.Contains(s.Topics, query)
			})
		}
	}()
}

func (f *Flow) endSearch() {
	if f.stopSearch != nil {
		f.stopSearch()
		f.stopSearch = nil
	}
}

func (f *Flow) play() {
	if f.state.Get().Playback == Paused && f.deps.Player.ActiveTrack() != nil {
		f.deps.Player.Resume()
		return
	}
	if !f.details.HasFile() {
		f.emit(PlaybackFailed{Err: fmt.Errorf("%w: recording has no file", echo.ErrPlaybackUnavailable)})
		return
	}

	f.endObserve()
	gen := f.update(func(s *State) {
		s.playGen++
		s.Playback = Stopped
		s.DurationPlayed = 0
	}).playGen

	err := f.deps.Player.Play(f.details.FilePath, func() {
		f.update(func(s *State) {
			if s.playGen != gen {
				return
			}
			s.playGen++
			s.Playback = Stopped
			s.DurationPlayed = 0
		})
	})
	if err != nil {
		f.log.Warn("review playback failed", "path", f.details.FilePath, "error", err)
		f.emit(PlaybackFailed{Err: err})
		return
	}

	ctx, cancel := context.WithCancel(f.ctx)
	f.stopObserve = cancel
	tracks := f.deps.Player.Subscribe(ctx)
	go func() {
		for t := range tracks {
			if t == nil {
				continue
			}
			track := *t
			f.update(func(s *State) {
				if s.playGen != gen {
					return
				}
				s.Playback = Paused
				if track.IsPlaying {
					s.Playback = Playing
				}
				s.DurationPlayed = track.DurationPlayed
			})
		}
	}()
}

func (f *Flow) endObserve() {
	if f.stopObserve != nil {
		f.stopObserve()
		f.stopObserve = nil
	}
}

// normalize runs off the caller's goroutine; large recordings take a while.
func (f *Flow) normalize(trackWidth, barWidth, spacing float64) {
	amps := f.details.Amplitudes
	go func() {
		start := time.Now()
		bars := waveform.Normalize(amps, trackWidth, barWidth, spacing)
		metrics.NormalizeDuration.Observe(time.Since(start).Seconds())
		if f.ctx.Err() != nil {
			return
		}
		f.update(func(s *State) { s.Bars = bars })
	}()
}

// Save moves the recording to permanent storage and inserts the echo.
// It does nothing unless CanSave holds.
func (f *Flow) Save(ctx context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()

	s := f.state.Get()
	if !f.details.HasFile() || !s.CanSave() {
		return
	}
	if !s.Mood.Valid() {
		panic(fmt.Sprintf("entry: mood must be set before saving, got %q", s.Mood))
	}

	path, ok := f.deps.Storage.SavePersistently(ctx, f.details.FilePath)
	if !ok {
		metrics.SaveFailures.Inc()
		f.log.Error("saving recording failed", "path", f.details.FilePath)
		f.emit(SaveFailed{Err: fmt.Errorf("%w: %s", echo.ErrSaveFailed, f.details.FilePath)})
		return
	}

	e := echo.Echo{
		Mood:                s.Mood,
		Title:               strings.TrimSpace(s.Title),
		Note:                strings.TrimSpace(s.Note),
		Topics:              slices.Clone(s.Topics),
		AudioFilePath:       path,
		AudioPlaybackLength: f.details.Duration,
		AudioAmplitudes:     slices.Clone(f.details.Amplitudes),
		RecordedAt:          f.deps.Now(),
	}
	saved, err := f.deps.Echos.InsertEcho(ctx, e)
	if err != nil {
		metrics.SaveFailures.Inc()
		f.log.Error("inserting echo failed", "path", path, "error", err)
		f.emit(SaveFailed{Err: fmt.Errorf("%w: %w", echo.ErrSaveFailed, err)})
		return
	}

	metrics.EchosSaved.Inc()
	f.log.Info("echo saved", "id", saved.ID, "mood", string(saved.Mood), "topics", len(saved.Topics))
	f.emit(Saved{Echo: saved})
}

func (f *Flow) emit(ev Event) {
	select {
	case f.events <- ev:
	default:
		f.log.Warn("entry event dropped", "event", fmt.Sprintf("%T", ev))
	}
}
