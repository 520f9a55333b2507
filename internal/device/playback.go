package device

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"echojournal/internal/player"
)

// PlaybackBackend plays WAV files on the selected output device.
type PlaybackBackend struct {
	host *Host
}

var _ player.Backend = (*PlaybackBackend)(nil)

func (b *PlaybackBackend) Open(path string) (player.Stream, error) {
	h := b.host
	track, err := readWAV(path)
	if err != nil {
		return nil, err
	}
	if track.channels <= 0 || track.sampleRate <= 0 {
		return nil, fmt.Errorf("%s: %w", path, errNotWAV)
	}
	dev, err := h.outputDevice()
	if err != nil {
		return nil, fmt.Errorf("output device: %w", err)
	}
	if dev == nil {
		return nil, errors.New("no output device available")
	}

	params := portaudio.HighLatencyParameters(nil, dev)
	params.SampleRate = float64(track.sampleRate)
	params.Output.Channels = track.channels
	params.FramesPerBuffer = h.cfg.FramesPerBuffer

	o := &output{track: track, volume: h.Volume()}
	stream, err := portaudio.OpenStream(params, o.process)
	if err != nil {
		return nil, fmt.Errorf("open output stream: %w", err)
	}
	o.stream = stream
	h.log.Info("output stream opened", "device", dev.Name, "path", path, "length", track.Duration())
	return o, nil
}

type output struct {
	stream *portaudio.Stream
	track  pcm
	volume float64

	mu      sync.Mutex
	pos     int
	running bool
}

// process runs on the PortAudio callback thread.
func (o *output) process(out []int16) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pos = fill(out, o.track.samples, o.pos, o.volume)
}

func (o *output) Start() error {
	if err := o.stream.Start(); err != nil {
		return fmt.Errorf("start output stream: %w", err)
	}
	o.mu.Lock()
	o.running = true
	o.mu.Unlock()
	return nil
}

func (o *output) Pause() error {
	o.mu.Lock()
	running := o.running
	o.running = false
	o.mu.Unlock()
	if !running {
		return nil
	}
	return o.stream.Stop()
}

func (o *output) Resume() error {
	o.mu.Lock()
	running := o.running
	o.mu.Unlock()
	if running {
		return nil
	}
	return o.Start()
}

func (o *output) Position() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	frames := o.pos / o.track.channels
	return time.Duration(frames) * time.Second / time.Duration(o.track.sampleRate)
}

func (o *output) Duration() time.Duration { return o.track.Duration() }

func (o *output) Finished() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.pos >= len(o.track.samples)
}

func (o *output) Close() error {
	o.mu.Lock()
	running := o.running
	o.running = false
	o.mu.Unlock()

	var errs []error
	if running {
		if err := o.stream.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop output stream: %w", err))
		}
	}
	if err := o.stream.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close output stream: %w", err))
	}
	return errors.Join(errs...)
}

// fill copies data[pos:] into out with volume applied, padding with silence
// past the end, and returns the new position.
func fill(out []int16, data []int16, pos int, volume float64) int {
	for i := range out {
		if pos < len(data) {
			out[i] = clamp16(float64(data[pos]) * volume)
			pos++
		} else {
			out[i] = 0
		}
	}
	return pos
}
