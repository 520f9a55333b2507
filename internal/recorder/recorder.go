// Package recorder implements the voice recording session state machine.
//
// A Recorder owns one capture session at a time:
//
//	IDLE -> Start -> RECORDING <-> PAUSED -> Stop -> STOPPED_WITH_RESULT
//
// Cancel returns to IDLE from any state and deletes the temporary file.
// While RECORDING a sampling loop appends one amplitude sample and adds one
// interval to the duration per tick.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"echojournal/internal/echo"
	"echojournal/internal/metrics"
	"echojournal/internal/tick"
	"echojournal/internal/watch"
)

// TempPrefix starts the name of every temporary recording file.
const TempPrefix = "temp_recording_"

// DefaultInterval is the amplitude sampling cadence.
const DefaultInterval = 100 * time.Millisecond

// Backend opens capture sessions on an audio input.
type Backend interface {
	Open(path string) (Capture, error)
}

// Capture is one open input stream writing to a file.
type Capture interface {
	Start() error
	Pause() error
	Resume() error
	// Amplitude returns the peak level in [0,1] seen since the previous call.
	Amplitude() float32
	// Close stops capturing and finalizes the file.
	Close() error
}

type Options struct {
	TempDir  string
	Interval time.Duration
	Source   tick.Source
	Logger   *slog.Logger
}

type Recorder struct {
	backend Backend
	opts    Options
	log     *slog.Logger

	// opMu serializes lifecycle calls. The sampling loop never takes it,
	// so holding it while halting the loop cannot deadlock.
	opMu    sync.Mutex
	capture Capture
	loop    *tick.Loop

	snap *watch.Value[echo.RecorderSnapshot]
}

var _ echo.VoiceRecorder = (*Recorder)(nil)

func New(backend Backend, opts Options) *Recorder {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.TempDir == "" {
		opts.TempDir = os.TempDir()
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Recorder{
		backend: backend,
		opts:    opts,
		log:     log.With("component", "recorder"),
		snap:    watch.New(echo.RecorderSnapshot{State: echo.RecorderIdle}),
	}
}

// Start opens a new session. A second Start while RECORDING or PAUSED is
// rejected with echo.ErrAlreadyRecording and leaves the session untouched.
func (r *Recorder) Start(ctx context.Context) error {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	switch r.snap.Get().State {
	case echo.RecorderRecording, echo.RecorderPaused:
		return echo.ErrAlreadyRecording
	}

	if err := os.MkdirAll(r.opts.TempDir, 0755); err != nil {
		metrics.Recordings.WithLabelValues("unavailable").Inc()
		return fmt.Errorf("%w: create temp dir: %w", echo.ErrRecordingUnavailable, err)
	}
	path := filepath.Join(r.opts.TempDir, TempPrefix+uuid.NewString()+".wav")

	capture, err := r.backend.Open(path)
	if err != nil {
		metrics.Recordings.WithLabelValues("unavailable").Inc()
		r.log.Warn("capture backend unavailable", "error", err)
		return fmt.Errorf("%w: %w", echo.ErrRecordingUnavailable, err)
	}
	if err := capture.Start(); err != nil {
		if cerr := capture.Close(); cerr != nil {
			r.log.Warn("closing failed capture", "error", cerr)
		}
		removeFile(path, r.log)
		metrics.Recordings.WithLabelValues("unavailable").Inc()
		r.log.Warn("capture stream did not start", "error", err)
		return fmt.Errorf("%w: %w", echo.ErrRecordingUnavailable, err)
	}

	r.capture = capture
	r.snap.Set(echo.RecorderSnapshot{
		State: echo.RecorderRecording,
		Details: echo.RecordingDetails{
			FilePath:   path,
			Amplitudes: []float32{},
		},
	})
	r.startLoop()

	metrics.Recordings.WithLabelValues("started").Inc()
	metrics.RecordingsActive.Set(1)
	r.log.Info("recording started", "path", path)
	return nil
}

func (r *Recorder) Pause() error {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	if s := r.snap.Get().State; s != echo.RecorderRecording {
		return fmt.Errorf("%w: pause from %s", echo.ErrInvalidTransition, s)
	}
	r.haltLoop()
	if err := r.capture.Pause(); err != nil {
		r.log.Warn("pausing capture stream", "error", err)
	}
	snap := r.snap.Update(func(s echo.RecorderSnapshot) echo.RecorderSnapshot {
		s.State = echo.RecorderPaused
		return s
	})
	r.log.Info("recording paused", "duration", snap.Details.Duration)
	return nil
}

func (r *Recorder) Resume() error {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	if s := r.snap.Get().State; s != echo.RecorderPaused {
		return fmt.Errorf("%w: resume from %s", echo.ErrInvalidTransition, s)
	}
	if err := r.capture.Resume(); err != nil {
		return fmt.Errorf("%w: %w", echo.ErrRecordingUnavailable, err)
	}
	r.snap.Update(func(s echo.RecorderSnapshot) echo.RecorderSnapshot {
		s.State = echo.RecorderRecording
		return s
	})
	r.startLoop()
	r.log.Info("recording resumed")
	return nil
}

// Stop finalizes the file and returns the session result. The sampling loop
// has exited before Stop returns, so the result is never touched again.
func (r *Recorder) Stop() (echo.RecordingDetails, error) {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	switch s := r.snap.Get().State; s {
	case echo.RecorderRecording, echo.RecorderPaused:
	default:
		return echo.RecordingDetails{}, fmt.Errorf("%w: stop from %s", echo.ErrInvalidTransition, s)
	}

	r.haltLoop()
	r.closeCapture()

	snap := r.snap.Update(func(s echo.RecorderSnapshot) echo.RecorderSnapshot {
		s.State = echo.RecorderStopped
		s.Details = s.Details.Clone()
		return s
	})

	metrics.Recordings.WithLabelValues("completed").Inc()
	metrics.RecordingsActive.Set(0)
	metrics.RecordingDuration.Observe(snap.Details.Duration.Seconds())
	r.log.Info("recording stopped",
		"path", snap.Details.FilePath,
		"duration", snap.Details.Duration,
		"samples", len(snap.Details.Amplitudes))
	return snap.Details.Clone(), nil
}

// Cancel discards the session and its temporary file. Safe from any state.
func (r *Recorder) Cancel() {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	prev := r.snap.Get()
	r.haltLoop()
	r.closeCapture()
	if prev.Details.FilePath != "" {
		removeFile(prev.Details.FilePath, r.log)
	}
	r.snap.Set(echo.RecorderSnapshot{State: echo.RecorderIdle})

	if prev.State == echo.RecorderRecording || prev.State == echo.RecorderPaused {
		metrics.Recordings.WithLabelValues("cancelled").Inc()
		metrics.RecordingsActive.Set(0)
	}
	if prev.State != echo.RecorderIdle {
		r.log.Info("recording cancelled", "from", prev.State.String())
	}
}

func (r *Recorder) State() echo.RecorderState {
	return r.snap.Get().State
}

// Details returns a copy of the current session data.
func (r *Recorder) Details() echo.RecordingDetails {
	return r.snap.Get().Details.Clone()
}

// Subscribe streams snapshots. Amplitude slices in snapshots are read-only.
func (r *Recorder) Subscribe(ctx context.Context) <-chan echo.RecorderSnapshot {
	return r.snap.Subscribe(ctx)
}

func (r *Recorder) startLoop() {
	capture := r.capture
	interval := r.opts.Interval
	r.loop = tick.Run(r.opts.Source, interval, func(time.Time) bool {
		amp := capture.Amplitude()
		r.snap.Update(func(s echo.RecorderSnapshot) echo.RecorderSnapshot {
			if s.State != echo.RecorderRecording {
				return s
			}
			s.Details.Duration += interval
			s.Details.Amplitudes = append(s.Details.Amplitudes, amp)
			return s
		})
		return true
	})
}

func (r *Recorder) haltLoop() {
	r.loop.Halt()
	r.loop = nil
}

func (r *Recorder) closeCapture() {
	if r.capture == nil {
		return
	}
	if err := r.capture.Close(); err != nil {
		r.log.Warn("closing capture", "error", err)
	}
	r.capture = nil
}

func removeFile(path string, log *slog.Logger) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("removing temporary recording", "path", path, "error", err)
	}
}
