package entry_test

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"echojournal/internal/echo"
	"echojournal/internal/echotest"
	"echojournal/internal/entry"
)

var recordedAt = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

type fixture struct {
	flow     *entry.Flow
	storage  *echotest.RecordingStorage
	player   *echotest.Player
	echos    *echotest.EchoDataSource
	settings *echotest.SettingsPreferences
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fx := &fixture{
		storage:  &echotest.RecordingStorage{},
		player:   echotest.NewPlayer(),
		echos:    echotest.NewEchoDataSource("hello", "helloworld", "work"),
		settings: echotest.NewSettingsPreferences(),
	}
	details := echo.RecordingDetails{
		FilePath:   "/tmp/temp_recording_abc.wav",
		Duration:   2 * time.Second,
		Amplitudes: []float32{0.25, 0.75, 0.5, 0.5, 0, 1},
	}
	fx.flow = entry.New(details, entry.Deps{
		Storage:  fx.storage,
		Player:   fx.player,
		Echos:    fx.echos,
		Settings: fx.settings,
		Now:      func() time.Time { return recordedAt },
	})
	t.Cleanup(fx.flow.Close)
	return fx
}

func (fx *fixture) init(t *testing.T) {
	t.Helper()
	if err := fx.flow.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
}

func waitState(t *testing.T, f *entry.Flow, cond func(entry.State) bool) entry.State {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for s := range f.Subscribe(ctx) {
		if cond(s) {
			return s
		}
	}
	t.Fatalf("state condition not met, last %+v", f.State())
	return entry.State{}
}

func nextEvent(t *testing.T, f *entry.Flow) entry.Event {
	t.Helper()
	select {
	case ev := <-f.Events():
		return ev
	case <-time.After(time.Second):
		t.Fatalf("no event")
		return nil
	}
}

func TestInitAppliesDefaults(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	if err := fx.settings.SaveDefaultMood(ctx, echo.MoodSad); err != nil {
		t.Fatal(err)
	}
	if err := fx.settings.SaveDefaultTopics(ctx, []string{"work", "family"}); err != nil {
		t.Fatal(err)
	}
	fx.init(t)

	s := fx.flow.State()
	if s.Mood != echo.MoodSad || s.SelectedMood != echo.MoodSad || s.ShowMoodSelector {
		t.Fatalf("default mood not applied: %+v", s)
	}
	if !reflect.DeepEqual(s.Topics, []string{"work", "family"}) {
		t.Fatalf("default topics not applied: %q", s.Topics)
	}
	if s.TotalDuration != 2*time.Second {
		t.Fatalf("unexpected total duration %v", s.TotalDuration)
	}

	// later changes to the defaults do not leak into a running flow
	if err := fx.settings.SaveDefaultMood(ctx, echo.MoodExcited); err != nil {
		t.Fatal(err)
	}
	time.Sleep(10 * time.Millisecond)
	if fx.flow.State().Mood != echo.MoodSad {
		t.Fatalf("flow followed a later default")
	}
}

func TestCanSave(t *testing.T) {
	fx := newFixture(t)
	if fx.flow.State().CanSave() {
		t.Fatalf("empty flow must not be savable")
	}
	fx.flow.Dispatch(entry.TitleChanged{Text: "   "})
	fx.flow.Dispatch(entry.MoodClick{Mood: echo.MoodPeaceful})
	fx.flow.Dispatch(entry.ConfirmMood{})
	if fx.flow.State().CanSave() {
		t.Fatalf("blank title must not be savable")
	}
	fx.flow.Dispatch(entry.TitleChanged{Text: "Morning walk"})
	if !fx.flow.State().CanSave() {
		t.Fatalf("title and mood set, expected savable")
	}
}

func TestSaveSuccess(t *testing.T) {
	fx := newFixture(t)
	fx.init(t)
	fx.flow.Dispatch(entry.TitleChanged{Text: "  Morning walk "})
	fx.flow.Dispatch(entry.NoteChanged{Text: "sunny"})
	fx.flow.Dispatch(entry.TopicClick{Topic: "work"})

	fx.flow.Save(context.Background())

	saved, ok := nextEvent(t, fx.flow).(entry.Saved)
	if !ok {
		t.Fatalf("expected Saved")
	}
	inserted := fx.echos.Inserted()
	if len(inserted) != 1 {
		t.Fatalf("expected one echo, got %d", len(inserted))
	}
	e := inserted[0]
	if e.ID == "" || e.ID != saved.Echo.ID {
		t.Fatalf("saved event does not carry the inserted echo: %+v", saved.Echo)
	}
	if e.Title != "Morning walk" || e.Note != "sunny" || e.Mood != echo.MoodNeutral {
		t.Fatalf("unexpected echo fields: %+v", e)
	}
	if e.AudioFilePath != "/persistent/temp_recording_abc.wav" {
		t.Fatalf("unexpected audio path %q", e.AudioFilePath)
	}
	if e.AudioPlaybackLength != 2*time.Second || !e.RecordedAt.Equal(recordedAt) {
		t.Fatalf("unexpected length or timestamp: %+v", e)
	}
	want := []float32{0.25, 0.75, 0.5, 0.5, 0, 1}
	if !reflect.DeepEqual(e.AudioAmplitudes, want) {
		t.Fatalf("amplitudes must be stored raw, got %v", e.AudioAmplitudes)
	}
	if !reflect.DeepEqual(e.Topics, []string{"work"}) {
		t.Fatalf("unexpected topics %q", e.Topics)
	}
}

func TestSaveFailure(t *testing.T) {
	fx := newFixture(t)
	fx.init(t)
	fx.storage.ShouldFailSave = true
	fx.flow.Dispatch(entry.TitleChanged{Text: "Evening"})

	fx.flow.Save(context.Background())

	ev, ok := nextEvent(t, fx.flow).(entry.SaveFailed)
	if !ok {
		t.Fatalf("expected SaveFailed")
	}
	if !errors.Is(ev.Err, echo.ErrSaveFailed) {
		t.Fatalf("unexpected error %v", ev.Err)
	}
	if n := len(fx.echos.Inserted()); n != 0 {
		t.Fatalf("echo inserted despite failed save: %d", n)
	}
}

func TestSaveIgnoredUntilSavable(t *testing.T) {
	fx := newFixture(t)
	fx.init(t)

	fx.flow.Save(context.Background())

	select {
	case ev := <-fx.flow.Events():
		t.Fatalf("unexpected event %T", ev)
	case <-time.After(20 * time.Millisecond):
	}
	if len(fx.storage.SavedPaths()) != 0 {
		t.Fatalf("storage touched without a title")
	}
}

func TestMoodSelector(t *testing.T) {
	fx := newFixture(t)
	fx.init(t)

	fx.flow.Dispatch(entry.SelectMood{})
	fx.flow.Dispatch(entry.MoodClick{Mood: echo.MoodExcited})
	fx.flow.Dispatch(entry.DismissMoodSelector{})
	if s := fx.flow.State(); s.Mood != echo.MoodNeutral || s.ShowMoodSelector {
		t.Fatalf("dismiss must keep the confirmed mood: %+v", s)
	}

	fx.flow.Dispatch(entry.SelectMood{})
	fx.flow.Dispatch(entry.ConfirmMood{})
	if s := fx.flow.State(); s.Mood != echo.MoodExcited || s.ShowMoodSelector {
		t.Fatalf("confirm did not apply selection: %+v", s)
	}
}

func TestKeepTopicChars(t *testing.T) {
	tests := map[string]string{
		"hello":      "hello",
		"he llo-1!":  "hello1",
		"#café 2":    "café2",
		"   ":        "",
		"日記 today": "日記today",
	}
	for in, want := range tests {
		if got := entry.KeepTopicChars(in); got != want {
			t.Errorf("KeepTopicChars(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTopicSuggestions(t *testing.T) {
	fx := newFixture(t)
	fx.init(t)

	fx.flow.Dispatch(entry.TopicTextChanged{Text: "hel-"})
	s := waitState(t, fx.flow, func(s entry.State) bool { return len(s.SearchResults) > 0 })
	if s.TopicText != "hel" {
		t.Fatalf("topic text not filtered: %q", s.TopicText)
	}
	if !reflect.DeepEqual(s.SearchResults, []string{"hello", "helloworld"}) || !s.ShowTopicSuggestions {
		t.Fatalf("unexpected suggestions: %q show=%v", s.SearchResults, s.ShowTopicSuggestions)
	}

	fx.flow.Dispatch(entry.TopicClick{Topic: "hello"})
	fx.flow.Dispatch(entry.TopicClick{Topic: "hello"})
	s = fx.flow.State()
	if !reflect.DeepEqual(s.Topics, []string{"hello"}) {
		t.Fatalf("topics must stay distinct: %q", s.Topics)
	}
	if s.TopicText != "" || s.ShowTopicSuggestions {
		t.Fatalf("picking a topic must reset the search: %+v", s)
	}

	fx.flow.Dispatch(entry.RemoveTopic{Topic: "hello"})
	if len(fx.flow.State().Topics) != 0 {
		t.Fatalf("topic not removed")
	}

	fx.flow.Dispatch(entry.TopicTextChanged{Text: "wo"})
	waitState(t, fx.flow, func(s entry.State) bool { return s.ShowTopicSuggestions })
	fx.flow.Dispatch(entry.DismissTopicSuggestions{})
	if fx.flow.State().ShowTopicSuggestions {
		t.Fatalf("suggestions not dismissed")
	}
}

func TestReviewPlayback(t *testing.T) {
	fx := newFixture(t)
	fx.init(t)

	fx.flow.Dispatch(entry.PlayAudio{})
	if got := fx.player.Played(); !reflect.DeepEqual(got, []string{"/tmp/temp_recording_abc.wav"}) {
		t.Fatalf("unexpected played files %q", got)
	}
	waitState(t, fx.flow, func(s entry.State) bool { return s.Playback == entry.Playing })

	fx.player.Progress(500 * time.Millisecond)
	s := waitState(t, fx.flow, func(s entry.State) bool { return s.DurationPlayed == 500*time.Millisecond })
	if s.Progress() != 0.25 {
		t.Fatalf("expected progress 0.25, got %v", s.Progress())
	}

	fx.flow.Dispatch(entry.PauseAudio{})
	waitState(t, fx.flow, func(s entry.State) bool { return s.Playback == entry.Paused })

	fx.flow.Dispatch(entry.PlayAudio{})
	if fx.player.Calls("Resume") != 1 || fx.player.Calls("Play") != 1 {
		t.Fatalf("play while paused must resume: play=%d resume=%d",
			fx.player.Calls("Play"), fx.player.Calls("Resume"))
	}
	waitState(t, fx.flow, func(s entry.State) bool { return s.Playback == entry.Playing })

	fx.player.Finish()
	s = waitState(t, fx.flow, func(s entry.State) bool { return s.Playback == entry.Stopped })
	if s.DurationPlayed != 0 {
		t.Fatalf("completion must reset position, got %v", s.DurationPlayed)
	}
}

func TestReviewPlaybackUnavailable(t *testing.T) {
	fx := newFixture(t)
	fx.player.PlayErr = errors.New("corrupt file")

	fx.flow.Dispatch(entry.PlayAudio{})

	ev, ok := nextEvent(t, fx.flow).(entry.PlaybackFailed)
	if !ok || !errors.Is(ev.Err, echo.ErrPlaybackUnavailable) {
		t.Fatalf("expected PlaybackFailed, got %#v", ev)
	}
	if fx.flow.State().Playback != entry.Stopped {
		t.Fatalf("failed playback left state %s", fx.flow.State().Playback)
	}
}

func TestTrackSizeNormalizes(t *testing.T) {
	fx := newFixture(t)

	fx.flow.Dispatch(entry.TrackSizeAvailable{TrackWidth: 30, BarWidth: 8, Spacing: 2})

	s := waitState(t, fx.flow, func(s entry.State) bool { return len(s.Bars) > 0 })
	if len(s.Bars) != 3 {
		t.Fatalf("expected 3 bars, got %d", len(s.Bars))
	}
	for _, b := range s.Bars {
		if b != 1 {
			t.Fatalf("equal chunk averages must all be 1, got %v", s.Bars)
		}
	}
	if len(fx.flow.Details().Amplitudes) != 6 {
		t.Fatalf("normalization must not alter the raw samples")
	}
}

func TestLeaveConfirmation(t *testing.T) {
	fx := newFixture(t)

	fx.flow.Dispatch(entry.Cancel{})
	if !fx.flow.State().ShowConfirmLeave {
		t.Fatalf("cancel must ask for confirmation")
	}
	fx.flow.Dispatch(entry.DismissConfirmLeave{})
	if fx.flow.State().ShowConfirmLeave {
		t.Fatalf("dismiss must hide the dialog")
	}
	fx.flow.Dispatch(entry.Cancel{})
	fx.flow.Dispatch(entry.ConfirmLeave{})
	if _, ok := nextEvent(t, fx.flow).(entry.Discarded); !ok {
		t.Fatalf("expected Discarded")
	}
}
