package device

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/gordonklaus/portaudio"

	"echojournal/internal/recorder"
)

// CaptureBackend records from the selected input device.
type CaptureBackend struct {
	host *Host
}

var _ recorder.Backend = (*CaptureBackend)(nil)

func (b *CaptureBackend) Open(path string) (recorder.Capture, error) {
	h := b.host
	dev, err := h.inputDevice()
	if err != nil {
		return nil, fmt.Errorf("input device: %w", err)
	}
	if dev == nil || dev.MaxInputChannels == 0 {
		return nil, errors.New("no input device available")
	}

	params := portaudio.HighLatencyParameters(dev, nil)
	params.SampleRate = captureRate(h.cfg.SampleRate, dev.DefaultSampleRate)
	params.Input.Channels = min(h.cfg.Channels, dev.MaxInputChannels)
	params.FramesPerBuffer = h.cfg.FramesPerBuffer

	w, err := createWAV(path, int(params.SampleRate), params.Input.Channels)
	if err != nil {
		return nil, err
	}
	c := &capture{wav: w, path: path, host: h}
	stream, err := portaudio.OpenStream(params, c.process)
	if err != nil {
		w.Close()
		os.Remove(path)
		return nil, fmt.Errorf("open input stream: %w", err)
	}
	c.stream = stream
	h.log.Info("input stream opened",
		"device", dev.Name,
		"sample_rate", params.SampleRate,
		"channels", params.Input.Channels)
	return c, nil
}

type capture struct {
	host   *Host
	path   string
	stream *portaudio.Stream
	wav    *wavWriter

	mu      sync.Mutex
	peak    float32
	running bool
}

// process runs on the PortAudio callback thread.
func (c *capture) process(in []int16) {
	c.wav.Write(in)
	p := peakLevel(in)
	c.mu.Lock()
	if p > c.peak {
		c.peak = p
	}
	c.mu.Unlock()
}

func (c *capture) Start() error {
	if err := c.stream.Start(); err != nil {
		return fmt.Errorf("start input stream: %w", err)
	}
	c.setRunning(true)
	return nil
}

func (c *capture) Pause() error {
	if !c.setRunning(false) {
		return nil
	}
	return c.stream.Stop()
}

func (c *capture) Resume() error {
	if c.isRunning() {
		return nil
	}
	return c.Start()
}

// Amplitude returns the peak since the previous call and resets it.
func (c *capture) Amplitude() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := c.peak
	c.peak = 0
	return p
}

func (c *capture) Close() error {
	var errs []error
	if c.setRunning(false) {
		if err := c.stream.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop input stream: %w", err))
		}
	}
	if err := c.stream.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close input stream: %w", err))
	}
	if err := c.wav.Close(); err != nil {
		errs = append(errs, err)
	}
	c.host.log.Info("input stream closed", "path", c.path, "frames", c.wav.Frames())
	return errors.Join(errs...)
}

// setRunning stores v and reports the previous value.
func (c *capture) setRunning(v bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.running
	c.running = v
	return prev
}

func (c *capture) isRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// peakLevel is the largest absolute sample scaled to [0,1].
func peakLevel(in []int16) float32 {
	var peak float32
	for _, s := range in {
		v := float32(s) / 32768.0
		if v < 0 {
			v = -v
		}
		if v > peak {
			peak = v
		}
	}
	return peak
}

// captureRate prefers the configured sample rate and falls back to the
// device default.
func captureRate(configured int, deviceDefault float64) float64 {
	if configured > 0 {
		return float64(configured)
	}
	if deviceDefault > 0 {
		return deviceDefault
	}
	return 44100
}
