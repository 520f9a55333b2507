package echotest

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"echojournal/internal/echo"
	"echojournal/internal/watch"
)

// Recorder is an echo.VoiceRecorder whose samples are driven by Advance.
type Recorder struct {
	// FilePath is bound to every session started.
	FilePath string
	StartErr error

	mu    sync.Mutex
	calls map[string]int
	snap  *watch.Value[echo.RecorderSnapshot]
}

var _ echo.VoiceRecorder = (*Recorder)(nil)

func NewRecorder() *Recorder {
	return &Recorder{
		FilePath: "/tmp/temp_recording_test.wav",
		calls:    make(map[string]int),
		snap:     watch.New(echo.RecorderSnapshot{State: echo.RecorderIdle}),
	}
}

func (r *Recorder) record(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[name]++
}

// Calls reports how often Start, Pause, Resume, Stop or Cancel ran.
func (r *Recorder) Calls(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[name]
}

func (r *Recorder) Start(context.Context) error {
	r.record("Start")
	if r.StartErr != nil {
		return fmt.Errorf("%w: %w", echo.ErrRecordingUnavailable, r.StartErr)
	}
	switch r.snap.Get().State {
	case echo.RecorderRecording, echo.RecorderPaused:
		return echo.ErrAlreadyRecording
	}
	r.snap.Set(echo.RecorderSnapshot{
		State:   echo.RecorderRecording,
		Details: echo.RecordingDetails{FilePath: r.FilePath, Amplitudes: []float32{}},
	})
	return nil
}

// Advance simulates sampling ticks totalling d, each reporting amp.
func (r *Recorder) Advance(d time.Duration, amp float32) {
	r.snap.Update(func(s echo.RecorderSnapshot) echo.RecorderSnapshot {
		if s.State != echo.RecorderRecording {
			return s
		}
		s.Details = s.Details.Clone()
		s.Details.Duration += d
		s.Details.Amplitudes = append(s.Details.Amplitudes, amp)
		return s
	})
}

func (r *Recorder) transition(from []echo.RecorderState, to echo.RecorderState) error {
	cur := r.snap.Get().State
	for _, f := range from {
		if cur == f {
			r.snap.Update(func(s echo.RecorderSnapshot) echo.RecorderSnapshot {
				s.State = to
				return s
			})
			return nil
		}
	}
	return fmt.Errorf("%w: from %s", echo.ErrInvalidTransition, cur)
}

func (r *Recorder) Pause() error {
	r.record("Pause")
	return r.transition([]echo.RecorderState{echo.RecorderRecording}, echo.RecorderPaused)
}

func (r *Recorder) Resume() error {
	r.record("Resume")
	return r.transition([]echo.RecorderState{echo.RecorderPaused}, echo.RecorderRecording)
}

func (r *Recorder) Stop() (echo.RecordingDetails, error) {
	r.record("Stop")
	err := r.transition([]echo.RecorderState{echo.RecorderRecording, echo.RecorderPaused}, echo.RecorderStopped)
	if err != nil {
		return echo.RecordingDetails{}, err
	}
	return r.snap.Get().Details.Clone(), nil
}

func (r *Recorder) Cancel() {
	r.record("Cancel")
	r.snap.Set(echo.RecorderSnapshot{State: echo.RecorderIdle})
}

func (r *Recorder) State() echo.RecorderState { return r.snap.Get().State }

func (r *Recorder) Details() echo.RecordingDetails { return r.snap.Get().Details.Clone() }

func (r *Recorder) Subscribe(ctx context.Context) <-chan echo.RecorderSnapshot {
	return r.snap.Subscribe(ctx)
}

// Player is an echo.AudioPlayer that completes only when Finish is called.
type Player struct {
	PlayErr error

	mu         sync.Mutex
	calls      map[string]int
	played     []string
	onComplete func()
	track      *watch.Value[*echo.AudioTrack]
}

var _ echo.AudioPlayer = (*Player)(nil)

func NewPlayer() *Player {
	return &Player{
		calls: make(map[string]int),
		track: watch.New[*echo.AudioTrack](nil),
	}
}

func (p *Player) record(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls[name]++
}

// Calls reports how often Play, Pause, Resume or Stop ran.
func (p *Player) Calls(name string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[name]
}

// Played lists the paths passed to Play.
func (p *Player) Played() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.played...)
}

func (p *Player) Play(filePath string, onComplete func()) error {
	p.record("Play")
	if p.PlayErr != nil {
		return fmt.Errorf("%w: %w", echo.ErrPlaybackUnavailable, p.PlayErr)
	}
	p.mu.Lock()
	p.played = append(p.played, filePath)
	p.onComplete = onComplete
	p.mu.Unlock()
	p.track.Set(&echo.AudioTrack{IsPlaying: true})
	return nil
}

func (p *Player) Pause() {
	p.record("Pause")
	if t := p.track.Get(); t != nil {
		p.track.Set(&echo.AudioTrack{IsPlaying: false, DurationPlayed: t.DurationPlayed})
	}
}

func (p *Player) Resume() {
	p.record("Resume")
	if t := p.track.Get(); t != nil {
		p.track.Set(&echo.AudioTrack{IsPlaying: true, DurationPlayed: t.DurationPlayed})
	}
}

func (p *Player) Stop() {
	p.record("Stop")
	p.mu.Lock()
	p.onComplete = nil
	p.mu.Unlock()
	p.track.Set(nil)
}

// Progress publishes a new play head position for the active track.
func (p *Player) Progress(d time.Duration) {
	if t := p.track.Get(); t != nil {
		p.track.Set(&echo.AudioTrack{IsPlaying: t.IsPlaying, DurationPlayed: d})
	}
}

// Finish simulates the track reaching its end.
func (p *Player) Finish() {
	p.mu.Lock()
	cb := p.onComplete
	p.onComplete = nil
	p.mu.Unlock()
	p.track.Set(nil)
	if cb != nil {
		cb()
	}
}

func (p *Player) ActiveTrack() *echo.AudioTrack {
	if t := p.track.Get(); t != nil {
		cp := *t
		return &cp
	}
	return nil
}

func (p *Player) Subscribe(ctx context.Context) <-chan *echo.AudioTrack {
	return p.track.Subscribe(ctx)
}

// RecordingStorage pretends to move files under /persistent.
type RecordingStorage struct {
	mu             sync.Mutex
	ShouldFailSave bool
	saved          []string
	cleanups       int
}

var _ echo.RecordingStorage = (*RecordingStorage)(nil)

func (s *RecordingStorage) SavePersistently(_ context.Context, tempFilePath string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ShouldFailSave {
		return "", false
	}
	saved := filepath.Join("/persistent", filepath.Base(tempFilePath))
	s.saved = append(s.saved, saved)
	return saved, true
}

func (s *RecordingStorage) CleanUpTemporaryFiles(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanups++
	return nil
}

func (s *RecordingStorage) SavedPaths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.saved...)
}

func (s *RecordingStorage) Cleanups() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cleanups
}

// EchoDataSource keeps echoes and topics in memory.
type EchoDataSource struct {
	mu     sync.Mutex
	nextID int
	echos  *watch.Value[[]echo.Echo]
	topics *watch.Value[[]string]
}

var _ echo.EchoDataSource = (*EchoDataSource)(nil)

func NewEchoDataSource(topics ...string) *EchoDataSource {
	return &EchoDataSource{
		echos:  watch.New([]echo.Echo{}),
		topics: watch.New(echo.DistinctTopics(topics)),
	}
}

func (d *EchoDataSource) ObserveEchos(ctx context.Context) <-chan []echo.Echo {
	return d.echos.Subscribe(ctx)
}

func (d *EchoDataSource) ObserveTopics(ctx context.Context) <-chan []string {
	return d.topics.Subscribe(ctx)
}

func (d *EchoDataSource) SearchTopics(ctx context.Context, query string) <-chan []string {
	q := strings.ToLower(strings.TrimSpace(query))
	return watch.Map(ctx, d.topics.Subscribe(ctx), func(all []string) []string {
		var out []string
		for _, t := range all {
			if strings.Contains(strings.ToLower(t), q) {
				out = append(out, t)
			}
		}
		return out
	})
}

func (d *EchoDataSource) InsertEcho(_ context.Context, e echo.Echo) (echo.Echo, error) {
	d.mu.Lock()
	d.nextID++
	e.ID = fmt.Sprintf("echo-%d", d.nextID)
	d.mu.Unlock()

	d.echos.Update(func(all []echo.Echo) []echo.Echo {
		return append([]echo.Echo{e}, all...)
	})
	d.topics.Update(func(all []string) []string {
		return echo.DistinctTopics(append(append([]string(nil), all...), e.Topics...))
	})
	return e, nil
}

// Inserted returns every echo inserted so far, newest first.
func (d *EchoDataSource) Inserted() []echo.Echo {
	return d.echos.Get()
}

// SettingsPreferences keeps defaults in memory.
type SettingsPreferences struct {
	mood   *watch.Value[echo.Mood]
	topics *watch.Value[[]string]
}

var _ echo.SettingsPreferences = (*SettingsPreferences)(nil)

func NewSettingsPreferences() *SettingsPreferences {
	return &SettingsPreferences{
		mood:   watch.New(echo.MoodNeutral),
		topics: watch.New([]string{}),
	}
}

func (s *SettingsPreferences) ObserveDefaultMood(ctx context.Context) <-chan echo.Mood {
	return s.mood.Subscribe(ctx)
}

func (s *SettingsPreferences) ObserveDefaultTopics(ctx context.Context) <-chan []string {
	return s.topics.Subscribe(ctx)
}

func (s *SettingsPreferences) SaveDefaultMood(_ context.Context, mood echo.Mood) error {
	s.mood.Set(mood)
	return nil
}

func (s *SettingsPreferences) SaveDefaultTopics(_ context.Context, topics []string) error {
	s.topics.Set(echo.DistinctTopics(topics))
	return nil
}
