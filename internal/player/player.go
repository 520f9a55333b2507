// Package player manages the single active playback track.
package player

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"echojournal/internal/echo"
	"echojournal/internal/metrics"
	"echojournal/internal/tick"
	"echojournal/internal/watch"
)

// DefaultInterval is the progress update cadence.
const DefaultInterval = 100 * time.Millisecond

// Backend opens audio files on an output device.
type Backend interface {
	Open(path string) (Stream, error)
}

// Stream is one opened track.
type Stream interface {
	Start() error
	Pause() error
	Resume() error
	Position() time.Duration
	Duration() time.Duration
	// Finished reports whether the end of the track has been played.
	Finished() bool
	Close() error
}

type Options struct {
	Interval time.Duration
	Source   tick.Source
	Logger   *slog.Logger
}

type Player struct {
	backend Backend
	opts    Options
	log     *slog.Logger

	opMu       sync.Mutex
	stream     Stream
	path       string
	loop       *tick.Loop
	onComplete func()
	// gen changes whenever the active track is replaced or torn down, so a
	// completion racing a Stop or a new Play is discarded.
	gen uint64

	track *watch.Value[*echo.AudioTrack]
}

var _ echo.AudioPlayer = (*Player)(nil)

func New(backend Backend, opts Options) *Player {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Player{
		backend: backend,
		opts:    opts,
		log:     log.With("component", "player"),
		track:   watch.New[*echo.AudioTrack](nil),
	}
}

// Play starts filePath from the beginning, stopping any active track first.
// onComplete runs once, on its own goroutine, when the track ends naturally.
// When the file cannot be opened no track becomes active and the returned
// error wraps echo.ErrPlaybackUnavailable.
func (p *Player) Play(filePath string, onComplete func()) error {
	p.opMu.Lock()
	defer p.opMu.Unlock()

	p.stopLocked()

	stream, err := p.backend.Open(filePath)
	if err != nil {
		metrics.Playbacks.WithLabelValues("unavailable").Inc()
		p.log.Warn("cannot open track", "path", filePath, "error", err)
		return fmt.Errorf("%w: %w", echo.ErrPlaybackUnavailable, err)
	}
	if err := stream.Start(); err != nil {
		if cerr := stream.Close(); cerr != nil {
			p.log.Warn("closing track", "error", cerr)
		}
		metrics.Playbacks.WithLabelValues("unavailable").Inc()
		p.log.Warn("cannot start track", "path", filePath, "error", err)
		return fmt.Errorf("%w: %w", echo.ErrPlaybackUnavailable, err)
	}

	p.stream = stream
	p.path = filePath
	p.onComplete = onComplete
	p.track.Set(&echo.AudioTrack{IsPlaying: true})
	p.startLoop()

	metrics.Playbacks.WithLabelValues("started").Inc()
	p.log.Info("playback started", "path", filePath, "length", stream.Duration())
	return nil
}

// Pause freezes the position. No-op unless a track is playing.
func (p *Player) Pause() {
	p.opMu.Lock()
	defer p.opMu.Unlock()

	cur := p.track.Get()
	if p.stream == nil || cur == nil || !cur.IsPlaying {
		return
	}
	p.haltLoop()
	if err := p.stream.Pause(); err != nil {
		p.log.Warn("pausing track", "error", err)
	}
	p.track.Set(&echo.AudioTrack{IsPlaying: false, DurationPlayed: p.stream.Position()})
}

// Resume continues a paused track. No-op unless a track is paused.
func (p *Player) Resume() {
	p.opMu.Lock()
	defer p.opMu.Unlock()

	cur := p.track.Get()
	if p.stream == nil || cur == nil || cur.IsPlaying {
		return
	}
	if err := p.stream.Resume(); err != nil {
		p.log.Warn("resuming track", "error", err)
		return
	}
	p.track.Set(&echo.AudioTrack{IsPlaying: true, DurationPlayed: cur.DurationPlayed})
	p.startLoop()
}

// Stop tears the track down. onComplete is not invoked.
func (p *Player) Stop() {
	p.opMu.Lock()
	defer p.opMu.Unlock()
	p.stopLocked()
}

// ActiveTrack is nil when nothing is loaded.
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

func (p *Player) stopLocked() {
	if p.stream == nil {
		return
	}
	p.gen++
	p.haltLoop()
	if err := p.stream.Close(); err != nil {
		p.log.Warn("closing track", "error", err)
	}
	p.stream = nil
	p.onComplete = nil
	p.track.Set(nil)
	metrics.Playbacks.WithLabelValues("stopped").Inc()
	p.log.Info("playback stopped", "path", p.path)
}

func (p *Player) startLoop() {
	stream := p.stream
	gen := p.gen
	p.loop = tick.Run(p.opts.Source, p.opts.Interval, func(time.Time) bool {
		if stream.Finished() {
			go p.complete(gen)
			return false
		}
		p.track.Set(&echo.AudioTrack{IsPlaying: true, DurationPlayed: stream.Position()})
		return true
	})
}

func (p *Player) haltLoop() {
	p.loop.Halt()
	p.loop = nil
}

func (p *Player) complete(gen uint64) {
	p.opMu.Lock()
	if p.gen != gen || p.stream == nil {
		p.opMu.Unlock()
		return
	}
	p.gen++
	p.loop = nil
	if err := p.stream.Close(); err != nil {
		p.log.Warn("closing finished track", "error", err)
	}
	p.stream = nil
	cb := p.onComplete
	p.onComplete = nil
	path := p.path
	p.track.Set(nil)
	p.opMu.Unlock()

	metrics.Playbacks.WithLabelValues("completed").Inc()
	p.log.Info("playback completed", "path", path)
	if cb != nil {
		cb()
	}
}
