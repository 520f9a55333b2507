package echo

import "errors"

var (
	// ErrRecordingUnavailable means the capture backend could not be opened
	// (missing microphone permission, busy hardware, storage failure).
	ErrRecordingUnavailable = errors.New("recording unavailable")

	ErrSaveFailed          = errors.New("save failed")
	ErrRecordingTooShort   = errors.New("recording too short")
	ErrPlaybackUnavailable = errors.New("playback unavailable")

	ErrAlreadyRecording  = errors.New("a recording session is already active")
	ErrInvalidTransition = errors.New("invalid state transition")
)
