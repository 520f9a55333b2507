// Package capture arbitrates between the standard and quick recording entry
// points and decides what happens to a finished recording.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"echojournal/internal/echo"
	"echojournal/internal/metrics"
	"echojournal/internal/watch"
)

// DefaultMinDuration is the shortest recording handed to entry creation.
const DefaultMinDuration = 1500 * time.Millisecond

type Method int

const (
	MethodNone Method = iota
	MethodStandard
	MethodQuick
)

func (m Method) String() string {
	switch m {
	case MethodStandard:
		return "STANDARD"
	case MethodQuick:
		return "QUICK"
	}
	return "NONE"
}

type Status int

const (
	NotRecording Status = iota
	NormalCapture
	QuickCapture
	Paused
)

func (s Status) String() string {
	switch s {
	case NormalCapture:
		return "NORMAL_CAPTURE"
	case QuickCapture:
		return "QUICK_CAPTURE"
	case Paused:
		return "PAUSED"
	}
	return "NOT_RECORDING"
}

// State is what the recording controls render.
type State struct {
	Method Method
	Status Status
	// Elapsed is only tracked for standard capture.
	Elapsed time.Duration

	session uint64
}

func (s State) Recording() bool { return s.Status != NotRecording }

func (s State) ElapsedText() string { return FormatElapsed(s.Elapsed) }

// FormatElapsed renders d as MM:SS.cc.
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	m := d / time.Minute
	s := (d % time.Minute) / time.Second
	cs := (d % time.Second) / (10 * time.Millisecond)
	return fmt.Sprintf("%02d:%02d.%02d", m, s, cs)
}

// Action is an input from the user or the host application.
type Action interface{ isAction() }

type (
	RecordFabClick         struct{}
	RequestQuickPermission struct{}
	PermissionGranted      struct{}
	PermissionDenied       struct{}
	QuickPress             struct{}
	// QuickRelease ends a press-and-hold. Cancelled marks a drag-away release.
	QuickRelease struct{ Cancelled bool }
	Pause        struct{}
	Resume       struct{}
	Cancel       struct{}
	Complete     struct{}
	// ForegroundLost is sent when the host application stops being visible.
	ForegroundLost     struct{}
	ForegroundRegained struct{}
)

func (RecordFabClick) isAction()         {}
func (RequestQuickPermission) isAction() {}
func (PermissionGranted) isAction()      {}
func (PermissionDenied) isAction()       {}
func (QuickPress) isAction()             {}
func (QuickRelease) isAction()           {}
func (Pause) isAction()                  {}
func (Resume) isAction()                 {}
func (Cancel) isAction()                 {}
func (Complete) isAction()               {}
func (ForegroundLost) isAction()         {}
func (ForegroundRegained) isAction()     {}

// Event is a one-shot notification for the view layer.
type Event interface{ isEvent() }

type (
	PermissionNeeded     struct{}
	RecordingTooShort    struct{}
	RecordingUnavailable struct{ Err error }
	// DoneRecording hands the finished recording to entry creation.
	DoneRecording struct{ Details echo.RecordingDetails }
)

func (PermissionNeeded) isEvent()     {}
func (RecordingTooShort) isEvent()    {}
func (RecordingUnavailable) isEvent() {}
func (DoneRecording) isEvent()        {}

type Options struct {
	MinDuration time.Duration
	Logger      *slog.Logger
}

type Controller struct {
	rec  echo.VoiceRecorder
	opts Options
	log  *slog.Logger

	mu          sync.Mutex
	session     uint64
	stopForward context.CancelFunc

	state  *watch.Value[State]
	events chan Event
}

func New(rec echo.VoiceRecorder, opts Options) *Controller {
	if opts.MinDuration <= 0 {
		opts.MinDuration = DefaultMinDuration
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Controller{
		rec:    rec,
		opts:   opts,
		log:    log.With("component", "capture"),
		state:  watch.New(State{}),
		events: make(chan Event, 16),
	}
}

func (c *Controller) State() State { return c.state.Get() }

func (c *Controller) Subscribe(ctx context.Context) <-chan State { return c.state.Subscribe(ctx) }

// Events delivers one-shot notifications. It is never closed.
func (c *Controller) Events() <-chan Event { return c.events }

// Dispatch applies one action. Actions are serialized.
func (c *Controller) Dispatch(ctx context.Context, a Action) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch a := a.(type) {
	case RecordFabClick:
		c.setMethod(MethodStandard)
		c.emit(ctx, PermissionNeeded{})
	case RequestQuickPermission:
		c.setMethod(MethodQuick)
		c.emit(ctx, PermissionNeeded{})
	case PermissionGranted:
		if c.state.Get().Method == MethodStandard {
			c.start(ctx, MethodStandard)
		}
	case PermissionDenied:
		c.log.Info("microphone permission denied")
		c.setMethod(MethodNone)
	case QuickPress:
		c.start(ctx, MethodQuick)
	case QuickRelease:
		if c.state.Get().Status != QuickCapture {
			return
		}
		if a.Cancelled {
			c.cancel()
			return
		}
		c.complete(ctx)
	case Pause:
		c.pause()
	case Resume:
		c.resume(ctx)
	case Cancel:
		c.cancel()
	case Complete:
		c.complete(ctx)
	case ForegroundLost:
		switch c.state.Get().Status {
		case NormalCapture:
			c.log.Info("foreground lost, pausing recording")
			c.pause()
		case QuickCapture:
			c.log.Info("foreground lost during quick capture, discarding")
			c.cancel()
		}
	case ForegroundRegained:
		// paused recordings stay paused until the user resumes
	default:
		c.log.Warn("unknown capture action", "action", fmt.Sprintf("%T", a))
	}
}

func (c *Controller) setMethod(m Method) {
	c.state.Update(func(s State) State {
		s.Method = m
		return s
	})
}

func (c *Controller) start(ctx context.Context, method Method) {
	if c.state.Get().Recording() {
		c.log.Warn("start ignored, already recording", "method", method.String())
		return
	}
	if err := c.rec.Start(ctx); err != nil {
		if errors.Is(err, echo.ErrAlreadyRecording) {
			c.log.Warn("recorder busy", "error", err)
			return
		}
		c.log.Warn("recording unavailable", "error", err)
		c.state.Set(State{session: c.session})
		c.emit(ctx, RecordingUnavailable{Err: err})
		return
	}

	c.session++
	status := NormalCapture
	if method == MethodQuick {
		status = QuickCapture
	}
	c.state.Set(State{Method: method, Status: status, session: c.session})
	if method == MethodStandard {
		c.forwardElapsed(c.session)
	}
	c.log.Info("capture started", "method", method.String())
}

// forwardElapsed mirrors the recorder's duration into State until the
// session ends.
func (c *Controller) forwardElapsed(session uint64) {
	ctx, cancel := context.WithCancel(context.Background())
	c.stopForward = cancel
	snaps := c.rec.Subscribe(ctx)
	go func() {
		for snap := range snaps {
			d := snap.Details.Duration
			c.state.Update(func(s State) State {
				if s.session != session || !s.Recording() || d < s.Elapsed {
					return s
				}
				s.Elapsed = d
				return s
			})
		}
	}()
}

func (c *Controller) endForward() {
	if c.stopForward != nil {
		c.stopForward()
		c.stopForward = nil
	}
}

func (c *Controller) pause() {
	if c.state.Get().Status != NormalCapture {
		return
	}
	if err := c.rec.Pause(); err != nil {
		c.log.Warn("pause failed", "error", err)
		return
	}
	c.state.Update(func(s State) State {
		s.Status = Paused
		return s
	})
}

func (c *Controller) resume(ctx context.Context) {
	if c.state.Get().Status != Paused {
		return
	}
	if err := c.rec.Resume(); err != nil {
		c.log.Warn("resume failed", "error", err)
		if errors.Is(err, echo.ErrRecordingUnavailable) {
			c.cancel()
			c.emit(ctx, RecordingUnavailable{Err: err})
		}
		return
	}
	c.state.Update(func(s State) State {
		s.Status = NormalCapture
		return s
	})
}

// cancel discards the running session. A handed-off recording belongs to the
// entry flow, so an idle cancel leaves the recorder alone.
func (c *Controller) cancel() {
	if !c.state.Get().Recording() {
		c.state.Set(State{session: c.session})
		return
	}
	c.endForward()
	c.rec.Cancel()
	c.state.Set(State{session: c.session})
}

func (c *Controller) complete(ctx context.Context) {
	if !c.state.Get().Recording() {
		return
	}
	c.endForward()
	details, err := c.rec.Stop()
	c.state.Set(State{session: c.session})
	if err != nil {
		c.log.Warn("stop failed", "error", err)
		c.rec.Cancel()
		return
	}

	if details.Duration < c.opts.MinDuration {
		c.log.Info("recording too short",
			"duration", details.Duration,
			"min", c.opts.MinDuration)
		c.rec.Cancel()
		metrics.Recordings.WithLabelValues("too_short").Inc()
		c.emit(ctx, RecordingTooShort{})
		return
	}
	c.log.Info("capture finished", "path", details.FilePath, "duration", details.Duration)
	c.emit(ctx, DoneRecording{Details: details})
}

func (c *Controller) emit(ctx context.Context, ev Event) {
	select {
	case c.events <- ev:
	case <-ctx.Done():
		c.log.Warn("event dropped", "event", fmt.Sprintf("%T", ev), "error", ctx.Err())
	}
}
