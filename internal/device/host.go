// Package device binds the recorder and player to real audio hardware
// through PortAudio, storing recordings as 16-bit PCM WAV files.
package device

import (
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// Info describes one audio device.
type Info struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	IsDefault bool   `json:"is_default"`
	IsInput   bool   `json:"is_input"`
	IsOutput  bool   `json:"is_output"`
}

type Config struct {
	SampleRate      int
	Channels        int
	FramesPerBuffer int
	// InputDevice and OutputDevice are PortAudio indexes; empty selects the
	// system default.
	InputDevice  string
	OutputDevice string
	Volume       float64
	Logger       *slog.Logger
}

// Host owns the PortAudio library for the lifetime of the process.
type Host struct {
	cfg Config
	log *slog.Logger

	mu     sync.Mutex
	volume float64
}

// Open initializes PortAudio. Close must be called on shutdown.
func Open(cfg Config) (*Host, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 44100
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.FramesPerBuffer <= 0 {
		cfg.FramesPerBuffer = 1024
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize portaudio: %w", err)
	}
	h := &Host{cfg: cfg, log: log.With("component", "device"), volume: ClampVolume(cfg.Volume)}
	h.log.Info("portaudio initialized", "version", portaudio.VersionText())
	return h, nil
}

func (h *Host) Close() error {
	if err := portaudio.Terminate(); err != nil {
		return fmt.Errorf("terminate portaudio: %w", err)
	}
	return nil
}

// Input returns the capture side of the host.
func (h *Host) Input() *CaptureBackend { return &CaptureBackend{host: h} }

// Output returns the playback side of the host.
func (h *Host) Output() *PlaybackBackend { return &PlaybackBackend{host: h} }

// SetVolume changes the gain applied to tracks opened afterwards.
func (h *Host) SetVolume(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.volume = ClampVolume(v)
}

func (h *Host) Volume() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.volume
}

// SelectDevices changes the devices used by sessions opened afterwards.
func (h *Host) SelectDevices(input, output string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cfg.InputDevice = input
	h.cfg.OutputDevice = output
	h.log.Info("audio devices selected", "input", input, "output", output)
}

// Devices lists every device with at least one channel. When enumeration
// fails a single fallback entry standing for the system default is returned.
func (h *Host) Devices() []Info {
	fallback := func(reason string) []Info {
		return []Info{{
			ID:        "",
			Name:      "Default Device (" + reason + ")",
			IsDefault: true,
			IsInput:   true,
			IsOutput:  true,
		}}
	}

	apis, err := portaudio.HostApis()
	if err != nil {
		h.log.Warn("listing host apis", "error", err)
		return fallback("Error")
	}
	defaultInput, _ := portaudio.DefaultInputDevice()
	defaultOutput, _ := portaudio.DefaultOutputDevice()

	var devices []Info
	for _, api := range apis {
		for _, dev := range api.Devices {
			if dev.MaxInputChannels == 0 && dev.MaxOutputChannels == 0 {
				continue
			}
			devices = append(devices, Info{
				ID:   strconv.Itoa(dev.Index),
				Name: fmt.Sprintf("%s (%s)", dev.Name, api.Name),
				IsDefault: (defaultInput != nil && dev.Index == defaultInput.Index) ||
					(defaultOutput != nil && dev.Index == defaultOutput.Index),
				IsInput:  dev.MaxInputChannels > 0,
				IsOutput: dev.MaxOutputChannels > 0,
			})
		}
	}
	if len(devices) == 0 {
		return fallback("No devices found")
	}
	return devices
}

func (h *Host) inputDevice() (*portaudio.DeviceInfo, error) {
	h.mu.Lock()
	id := h.cfg.InputDevice
	h.mu.Unlock()
	if dev := deviceByID(id); dev != nil && dev.MaxInputChannels > 0 {
		return dev, nil
	}
	if id != "" {
		h.log.Warn("configured input device not found, using default", "id", id)
	}
	return portaudio.DefaultInputDevice()
}

func (h *Host) outputDevice() (*portaudio.DeviceInfo, error) {
	h.mu.Lock()
	id := h.cfg.OutputDevice
	h.mu.Unlock()
	if dev := deviceByID(id); dev != nil && dev.MaxOutputChannels > 0 {
		return dev, nil
	}
	if id != "" {
		h.log.Warn("configured output device not found, using default", "id", id)
	}
	return portaudio.DefaultOutputDevice()
}

func deviceByID(id string) *portaudio.DeviceInfo {
	if id == "" {
		return nil
	}
	idx, err := strconv.Atoi(id)
	if err != nil {
		return nil
	}
	devices, err := portaudio.Devices()
	if err != nil || idx < 0 || idx >= len(devices) {
		return nil
	}
	return devices[idx]
}

// ClampVolume keeps a gain within (0,1]; anything outside means full volume.
func ClampVolume(v float64) float64 {
	if v <= 0 || v > 1 {
		return 1
	}
	return v
}
