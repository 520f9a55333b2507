package device

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const bitDepth = 16

// pcmFormat 1 is uncompressed PCM in the WAV fmt chunk.
const pcmFormat = 1

var errNotWAV = errors.New("not a valid wav file")

// wavWriter appends 16-bit frames to a WAV file. The header is finalized on Close.
type wavWriter struct {
	mu     sync.Mutex
	file   *os.File
	enc    *wav.Encoder
	buf    *audio.IntBuffer
	frames int
	err    error
}

func createWAV(path string, sampleRate, channels int) (*wavWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	return &wavWriter{
		file: f,
		enc:  wav.NewEncoder(f, sampleRate, bitDepth, channels, pcmFormat),
		buf: &audio.IntBuffer{
			Format:         &audio.Format{NumChannels: channels, SampleRate: sampleRate},
			SourceBitDepth: bitDepth,
		},
	}, nil
}

// Write appends interleaved samples. The first error sticks and is
// reported by Close.
func (w *wavWriter) Write(samples []int16) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil || w.enc == nil || len(samples) == 0 {
		return
	}
	if cap(w.buf.Data) < len(samples) {
		w.buf.Data = make([]int, len(samples))
	}
	w.buf.Data = w.buf.Data[:len(samples)]
	for i, s := range samples {
		w.buf.Data[i] = int(s)
	}
	if err := w.enc.Write(w.buf); err != nil {
		w.err = fmt.Errorf("write pcm: %w", err)
		return
	}
	w.frames += len(samples) / w.buf.Format.NumChannels
}

// Frames is the number of frames written so far.
func (w *wavWriter) Frames() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.frames
}

func (w *wavWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.enc == nil {
		return w.err
	}
	err := w.err
	if cerr := w.enc.Close(); cerr != nil && err == nil {
		err = fmt.Errorf("finalize wav: %w", cerr)
	}
	if cerr := w.file.Close(); cerr != nil && err == nil {
		err = cerr
	}
	w.enc = nil
	return err
}

// pcm is a decoded track held in memory.
type pcm struct {
	samples    []int16
	sampleRate int
	channels   int
}

func (p pcm) Duration() time.Duration {
	if p.sampleRate <= 0 || p.channels <= 0 {
		return 0
	}
	frames := len(p.samples) / p.channels
	return time.Duration(frames) * time.Second / time.Duration(p.sampleRate)
}

// readWAV decodes a whole file, rescaling other bit depths to 16 bits.
func readWAV(path string) (pcm, error) {
	f, err := os.Open(path)
	if err != nil {
		return pcm{}, err
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return pcm{}, fmt.Errorf("%s: %w", path, errNotWAV)
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return pcm{}, fmt.Errorf("decode %s: %w", path, err)
	}

	depth := int(d.BitDepth)
	out := make([]int16, len(buf.Data))
	for i, v := range buf.Data {
		switch {
		case depth > bitDepth:
			v >>= depth - bitDepth
		case depth == 8:
			// 8-bit wav is unsigned
			v = (v - 128) << 8
		}
		out[i] = clamp16(float64(v))
	}
	return pcm{samples: out, sampleRate: int(d.SampleRate), channels: int(d.NumChans)}, nil
}

func clamp16(v float64) int16 {
	switch {
	case v > 32767:
		return 32767
	case v < -32768:
		return -32768
	}
	return int16(v)
}
