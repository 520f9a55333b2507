package echo

import (
	"context"
	"time"
)

// RecorderState is the lifecycle of a VoiceRecorder session.
type RecorderState int

const (
	RecorderIdle RecorderState = iota
	RecorderRecording
	RecorderPaused
	RecorderStopped
)

func (s RecorderState) String() string {
	switch s {
	case RecorderRecording:
		return "RECORDING"
	case RecorderPaused:
		return "PAUSED"
	case RecorderStopped:
		return "STOPPED_WITH_RESULT"
	default:
		return "IDLE"
	}
}

// RecorderSnapshot is what recorder subscribers observe on every change.
type RecorderSnapshot struct {
	State   RecorderState
	Details RecordingDetails
}

// VoiceRecorder owns at most one recording session at a time.
type VoiceRecorder interface {
	Start(ctx context.Context) error
	Pause() error
	Resume() error
	Stop() (RecordingDetails, error)
	Cancel()
	State() RecorderState
	Details() RecordingDetails
	Subscribe(ctx context.Context) <-chan RecorderSnapshot
}

// AudioPlayer owns at most one playback track at a time.
// Subscribers receive nil while no track is active. Published tracks are never mutated.
type AudioPlayer interface {
	Play(filePath string, onComplete func()) error
	Pause()
	Resume()
	Stop()
	ActiveTrack() *AudioTrack
	Subscribe(ctx context.Context) <-chan *AudioTrack
}

// RecordingStorage moves finished recordings out of temporary storage.
type RecordingStorage interface {
	// SavePersistently returns the permanent path, or false on any I/O failure.
	SavePersistently(ctx context.Context, tempFilePath string) (string, bool)
	CleanUpTemporaryFiles(ctx context.Context) error
}

// EchoDataSource persists echoes and their topics. Observe and Search channels
// emit the current result first and then after every change, until ctx is done.
type EchoDataSource interface {
	ObserveEchos(ctx context.Context) <-chan []Echo
	ObserveTopics(ctx context.Context) <-chan []string
	SearchTopics(ctx context.Context, query string) <-chan []string
	InsertEcho(ctx context.Context, e Echo) (Echo, error)
}

// SettingsPreferences holds persisted user defaults for new entries.
type SettingsPreferences interface {
	ObserveDefaultMood(ctx context.Context) <-chan Mood
	ObserveDefaultTopics(ctx context.Context) <-chan []string
	SaveDefaultMood(ctx context.Context, mood Mood) error
	SaveDefaultTopics(ctx context.Context, topics []string) error
}

// ProgressRatio is played/total clamped to [0,1]; zero when total is unknown.
func ProgressRatio(played, total time.Duration) float64 {
	if total <= 0 {
		return 0
	}
	r := float64(played) / float64(total)
	switch {
	case r < 0:
		return 0
	case r > 1:
		return 1
	}
	return r
}
