package capture_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"echojournal/internal/capture"
	"echojournal/internal/echo"
	"echojournal/internal/echotest"
	"echojournal/internal/recorder"
	"echojournal/internal/tick"
)

func newController() (*capture.Controller, *echotest.Recorder) {
	rec := echotest.NewRecorder()
	return capture.New(rec, capture.Options{MinDuration: 1500 * time.Millisecond}), rec
}

func nextEvent(t *testing.T, c *capture.Controller) capture.Event {
	t.Helper()
	select {
	case ev := <-c.Events():
		return ev
	case <-time.After(time.Second):
		t.Fatalf("no event")
		return nil
	}
}

func expectNoEvent(t *testing.T, c *capture.Controller) {
	t.Helper()
	select {
	case ev := <-c.Events():
		t.Fatalf("unexpected event %T", ev)
	case <-time.After(20 * time.Millisecond):
	}
}

func startStandard(t *testing.T, ctx context.Context, c *capture.Controller) {
	t.Helper()
	c.Dispatch(ctx, capture.RecordFabClick{})
	if _, ok := nextEvent(t, c).(capture.PermissionNeeded); !ok {
		t.Fatalf("expected PermissionNeeded")
	}
	c.Dispatch(ctx, capture.PermissionGranted{})
	if s := c.State(); s.Status != capture.NormalCapture || s.Method != capture.MethodStandard {
		t.Fatalf("expected standard capture, got %s/%s", s.Method, s.Status)
	}
}

func TestTooShortRecordingIsDiscarded(t *testing.T) {
	ctx := context.Background()
	c, rec := newController()
	startStandard(t, ctx, c)

	for i := 0; i < 8; i++ {
		rec.Advance(100*time.Millisecond, 0.3)
	}
	c.Dispatch(ctx, capture.Complete{})

	if _, ok := nextEvent(t, c).(capture.RecordingTooShort); !ok {
		t.Fatalf("expected RecordingTooShort")
	}
	expectNoEvent(t, c)
	if rec.Calls("Cancel") != 1 {
		t.Fatalf("short recording file was not discarded")
	}
	if c.State().Recording() {
		t.Fatalf("still recording after completion")
	}
}

func TestLongEnoughRecordingIsHandedOff(t *testing.T) {
	ctx := context.Background()
	c, rec := newController()
	startStandard(t, ctx, c)

	rec.Advance(1500*time.Millisecond, 0.6)
	c.Dispatch(ctx, capture.Complete{})

	done, ok := nextEvent(t, c).(capture.DoneRecording)
	if !ok {
		t.Fatalf("expected DoneRecording")
	}
	if done.Details.Duration != 1500*time.Millisecond || done.Details.FilePath != rec.FilePath {
		t.Fatalf("unexpected details: %+v", done.Details)
	}
	if rec.Calls("Cancel") != 0 {
		t.Fatalf("completed recording must not be cancelled")
	}
}

func TestForegroundLossPausesWithoutAutoResume(t *testing.T) {
	ctx := context.Background()
	c, rec := newController()
	startStandard(t, ctx, c)
	rec.Advance(time.Second, 0.5)

	c.Dispatch(ctx, capture.ForegroundLost{})
	if rec.State() != echo.RecorderPaused {
		t.Fatalf("recorder expected PAUSED, got %s", rec.State())
	}
	if c.State().Status != capture.Paused {
		t.Fatalf("expected PAUSED status, got %s", c.State().Status)
	}

	c.Dispatch(ctx, capture.ForegroundRegained{})
	if rec.State() != echo.RecorderPaused || c.State().Status != capture.Paused {
		t.Fatalf("recording resumed without user action")
	}
	if rec.Calls("Resume") != 0 {
		t.Fatalf("Resume called %d times", rec.Calls("Resume"))
	}

	c.Dispatch(ctx, capture.Resume{})
	if rec.State() != echo.RecorderRecording || c.State().Status != capture.NormalCapture {
		t.Fatalf("explicit resume did not resume")
	}
}

func TestQuickCaptureHold(t *testing.T) {
	ctx := context.Background()
	c, rec := newController()

	c.Dispatch(ctx, capture.RequestQuickPermission{})
	if _, ok := nextEvent(t, c).(capture.PermissionNeeded); !ok {
		t.Fatalf("expected PermissionNeeded")
	}
	c.Dispatch(ctx, capture.PermissionGranted{})
	if c.State().Recording() {
		t.Fatalf("quick capture must wait for the press")
	}

	c.Dispatch(ctx, capture.QuickPress{})
	if s := c.State(); s.Status != capture.QuickCapture || s.Method != capture.MethodQuick {
		t.Fatalf("expected quick capture, got %s/%s", s.Method, s.Status)
	}
	for i := 0; i < 20; i++ {
		rec.Advance(100*time.Millisecond, 0.4)
	}
	c.Dispatch(ctx, capture.QuickRelease{})

	done, ok := nextEvent(t, c).(capture.DoneRecording)
	if !ok {
		t.Fatalf("expected DoneRecording")
	}
	if done.Details.Duration != 2*time.Second {
		t.Fatalf("expected 2s, got %v", done.Details.Duration)
	}
	if !done.Details.HasFile() {
		t.Fatalf("expected a file path")
	}
	if len(done.Details.Amplitudes) != 20 {
		t.Fatalf("expected 20 samples, got %d", len(done.Details.Amplitudes))
	}
	if c.State().Elapsed != 0 {
		t.Fatalf("quick capture must not track elapsed time")
	}
}

func TestQuickCaptureCancelledRelease(t *testing.T) {
	ctx := context.Background()
	c, rec := newController()
	c.Dispatch(ctx, capture.QuickPress{})
	rec.Advance(3*time.Second, 0.4)

	c.Dispatch(ctx, capture.QuickRelease{Cancelled: true})

	expectNoEvent(t, c)
	if rec.Calls("Cancel") != 1 || rec.Calls("Stop") != 0 {
		t.Fatalf("expected cancel only, got cancel=%d stop=%d", rec.Calls("Cancel"), rec.Calls("Stop"))
	}
	if c.State().Recording() {
		t.Fatalf("still recording")
	}
}

func TestIdleCancelKeepsHandedOffRecording(t *testing.T) {
	ctx := context.Background()
	backend := &echotest.CaptureBackend{}
	backend.SetLevel(0.5)
	m := tick.NewManual()
	rec := recorder.New(backend, recorder.Options{
		TempDir:  t.TempDir(),
		Interval: 100 * time.Millisecond,
		Source:   m.Source,
	})
	c := capture.New(rec, capture.Options{MinDuration: 1500 * time.Millisecond})

	c.Dispatch(ctx, capture.QuickPress{})
	for i := 0; i < 16; i++ {
		if !m.Fire() {
			t.Fatalf("tick %d was not consumed", i)
		}
	}
	deadline := time.Now().Add(time.Second)
	for len(rec.Details().Amplitudes) < 16 {
		if time.Now().After(deadline) {
			t.Fatalf("recorder did not sample")
		}
		time.Sleep(time.Millisecond)
	}
	c.Dispatch(ctx, capture.QuickRelease{})

	done, ok := nextEvent(t, c).(capture.DoneRecording)
	if !ok {
		t.Fatalf("expected DoneRecording")
	}

	c.Dispatch(ctx, capture.Cancel{})

	if _, err := os.Stat(done.Details.FilePath); err != nil {
		t.Fatalf("handed-off recording removed: %v", err)
	}
	if rec.State() != echo.RecorderStopped {
		t.Fatalf("expected recorder to keep its result, got %s", rec.State())
	}
	if c.State().Recording() {
		t.Fatalf("idle cancel started recording")
	}
}

func TestIdleCancelDoesNotTouchRecorder(t *testing.T) {
	ctx := context.Background()
	c, rec := newController()
	startStandard(t, ctx, c)
	rec.Advance(2*time.Second, 0.5)
	c.Dispatch(ctx, capture.Complete{})
	if _, ok := nextEvent(t, c).(capture.DoneRecording); !ok {
		t.Fatalf("expected DoneRecording")
	}

	c.Dispatch(ctx, capture.Cancel{})

	if rec.Calls("Cancel") != 0 {
		t.Fatalf("idle cancel reached the recorder")
	}
	if rec.State() != echo.RecorderStopped {
		t.Fatalf("expected STOPPED_WITH_RESULT, got %s", rec.State())
	}
}

func TestQuickCaptureForegroundLossCancels(t *testing.T) {
	ctx := context.Background()
	c, rec := newController()
	c.Dispatch(ctx, capture.QuickPress{})

	c.Dispatch(ctx, capture.ForegroundLost{})

	if rec.State() != echo.RecorderIdle || rec.Calls("Cancel") != 1 {
		t.Fatalf("expected interrupted quick capture to be cancelled")
	}
	expectNoEvent(t, c)
}

func TestStandardCaptureTracksElapsed(t *testing.T) {
	ctx := context.Background()
	c, rec := newController()
	sub, cancel := context.WithCancel(ctx)
	defer cancel()
	states := c.Subscribe(sub)

	startStandard(t, ctx, c)
	rec.Advance(1200*time.Millisecond, 0.2)

	deadline := time.After(time.Second)
	for {
		select {
		case s := <-states:
			if s.Elapsed == 1200*time.Millisecond {
				if got := s.ElapsedText(); got != "00:01.20" {
					t.Fatalf("ElapsedText = %q", got)
				}
				c.Dispatch(ctx, capture.Cancel{})
				if c.State().Elapsed != 0 {
					t.Fatalf("elapsed not reset by cancel")
				}
				return
			}
		case <-deadline:
			t.Fatalf("elapsed never reached 1.2s, last %v", c.State().Elapsed)
		}
	}
}

func TestPauseResumeCancel(t *testing.T) {
	ctx := context.Background()
	c, rec := newController()
	startStandard(t, ctx, c)

	c.Dispatch(ctx, capture.Pause{})
	c.Dispatch(ctx, capture.Pause{})
	if rec.Calls("Pause") != 1 {
		t.Fatalf("pause forwarded %d times", rec.Calls("Pause"))
	}
	c.Dispatch(ctx, capture.Resume{})
	c.Dispatch(ctx, capture.Cancel{})

	if rec.State() != echo.RecorderIdle {
		t.Fatalf("expected IDLE, got %s", rec.State())
	}
	if s := c.State(); s.Recording() || s.Method != capture.MethodNone {
		t.Fatalf("unexpected state after cancel: %s/%s", s.Method, s.Status)
	}
	expectNoEvent(t, c)
}

func TestRecordingUnavailable(t *testing.T) {
	ctx := context.Background()
	c, rec := newController()
	rec.StartErr = errors.New("microphone busy")

	c.Dispatch(ctx, capture.QuickPress{})

	ev, ok := nextEvent(t, c).(capture.RecordingUnavailable)
	if !ok {
		t.Fatalf("expected RecordingUnavailable")
	}
	if !errors.Is(ev.Err, echo.ErrRecordingUnavailable) {
		t.Fatalf("unexpected error %v", ev.Err)
	}
	if c.State().Recording() {
		t.Fatalf("recording state set after failed start")
	}
}

func TestPermissionDeniedClearsMethod(t *testing.T) {
	ctx := context.Background()
	c, rec := newController()
	c.Dispatch(ctx, capture.RecordFabClick{})
	nextEvent(t, c)

	c.Dispatch(ctx, capture.PermissionDenied{})
	c.Dispatch(ctx, capture.PermissionGranted{})

	if rec.Calls("Start") != 0 {
		t.Fatalf("recording started after denial")
	}
	if c.State().Method != capture.MethodNone {
		t.Fatalf("method not cleared")
	}
}

func TestFormatElapsed(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "00:00.00"},
		{1234 * time.Millisecond, "00:01.23"},
		{61*time.Second + 50*time.Millisecond, "01:01.05"},
		{-time.Second, "00:00.00"},
	}
	for _, tt := range tests {
		if got := capture.FormatElapsed(tt.in); got != tt.want {
			t.Errorf("FormatElapsed(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
