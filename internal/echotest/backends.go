// Package echotest provides test doubles for every capability interface.
package echotest

import (
	"errors"
	"os"
	"sync"
	"time"

	"echojournal/internal/player"
	"echojournal/internal/recorder"
)

// CaptureBackend is a recorder.Backend that creates an empty file per session
// and reports a fixed amplitude level.
type CaptureBackend struct {
	mu       sync.Mutex
	OpenErr  error
	StartErr error
	level    float32
	captures []*Capture
}

var _ recorder.Backend = (*CaptureBackend)(nil)

func (b *CaptureBackend) Open(path string) (recorder.Capture, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.OpenErr != nil {
		return nil, b.OpenErr
	}
	if err := os.WriteFile(path, nil, 0644); err != nil {
		return nil, err
	}
	c := &Capture{Path: path, level: b.level, startErr: b.StartErr}
	b.captures = append(b.captures, c)
	return c, nil
}

// SetLevel changes the amplitude reported by current and future captures.
func (b *CaptureBackend) SetLevel(v float32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.level = v
	for _, c := range b.captures {
		c.setLevel(v)
	}
}

// Last returns the most recently opened capture, or nil.
func (b *CaptureBackend) Last() *Capture {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.captures) == 0 {
		return nil
	}
	return b.captures[len(b.captures)-1]
}

// Capture counts the lifecycle calls it receives.
type Capture struct {
	Path string

	mu       sync.Mutex
	level    float32
	startErr error
	calls    map[string]int
}

func (c *Capture) record(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calls == nil {
		c.calls = make(map[string]int)
	}
	c.calls[name]++
}

// Calls reports how often the named method (Start, Pause, Resume, Close) ran.
func (c *Capture) Calls(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[name]
}

func (c *Capture) setLevel(v float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.level = v
}

func (c *Capture) Start() error {
	c.record("Start")
	return c.startErr
}

func (c *Capture) Pause() error  { c.record("Pause"); return nil }
func (c *Capture) Resume() error { c.record("Resume"); return nil }
func (c *Capture) Close() error  { c.record("Close"); return nil }

func (c *Capture) Amplitude() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.level
}

// ErrMissingFile is returned by PlaybackBackend for unavailable paths.
var ErrMissingFile = errors.New("no such track")

// PlaybackBackend is a player.Backend whose streams advance only when told to.
type PlaybackBackend struct {
	mu          sync.Mutex
	Length      time.Duration
	Unavailable map[string]bool
	streams     []*Stream
}

var _ player.Backend = (*PlaybackBackend)(nil)

func (b *PlaybackBackend) Open(path string) (player.Stream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Unavailable[path] {
		return nil, ErrMissingFile
	}
	s := &Stream{Path: path, length: b.Length}
	b.streams = append(b.streams, s)
	return s, nil
}

func (b *PlaybackBackend) Last() *Stream {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.streams) == 0 {
		return nil
	}
	return b.streams[len(b.streams)-1]
}

type Stream struct {
	Path string

	mu     sync.Mutex
	length time.Duration
	pos    time.Duration
	paused bool
	closed bool
}

// Advance moves the play head, clamped to the track length.
func (s *Stream) Advance(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pos = min(s.pos+d, s.length)
}

func (s *Stream) Start() error { return nil }

func (s *Stream) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = true
	return nil
}

func (s *Stream) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = false
	return nil
}

func (s *Stream) Position() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}

func (s *Stream) Duration() time.Duration { return s.length }

func (s *Stream) Finished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos >= s.length
}

func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
