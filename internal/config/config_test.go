package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadCreatesDefaults(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DataDir != dir || cfg.Path != filepath.Join(dir, ConfigFile) {
		t.Fatalf("unexpected paths: %+v", cfg)
	}
	if _, err := os.Stat(cfg.Path); err != nil {
		t.Fatalf("config file not created: %v", err)
	}
	if cfg.SampleRate != DefaultSampleRate || cfg.Channels != 1 || cfg.FramesPerBuffer != 1024 {
		t.Fatalf("unexpected audio defaults: %+v", cfg)
	}
	if cfg.SampleInterval != 100*time.Millisecond || cfg.MinRecordingDuration != 1500*time.Millisecond {
		t.Fatalf("unexpected timing defaults: %+v", cfg)
	}
	if cfg.Volume != 1 || cfg.MonitorAddr != "" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.RecordingsDir() != filepath.Join(dir, "recordings") || cfg.TempDir() != filepath.Join(dir, "tmp") {
		t.Fatalf("unexpected derived dirs")
	}

	// a second load reads the file it created
	again, err := Load(dir)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if again.SampleRate != cfg.SampleRate || again.MinRecordingDuration != cfg.MinRecordingDuration {
		t.Fatalf("reload differs: %+v", again)
	}
}

func TestLoadRepairsInvalidValues(t *testing.T) {
	dir := t.TempDir()
	content := "sample_rate: -1\nchannels: 0\nvolume: 3.5\nsample_interval: 0s\nmin_recording_duration: 2s\n"
	if err := os.WriteFile(filepath.Join(dir, ConfigFile), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SampleRate != DefaultSampleRate || cfg.Channels != DefaultChannels {
		t.Fatalf("audio values not repaired: %+v", cfg)
	}
	if cfg.Volume != 1 {
		t.Fatalf("volume not clamped: %v", cfg.Volume)
	}
	if cfg.SampleInterval != DefaultInterval {
		t.Fatalf("interval not repaired: %v", cfg.SampleInterval)
	}
	if cfg.MinRecordingDuration != 2*time.Second {
		t.Fatalf("valid value overwritten: %v", cfg.MinRecordingDuration)
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("ECHOJOURNAL_SAMPLE_RATE", "48000")
	t.Setenv("ECHOJOURNAL_MONITOR_ADDR", "127.0.0.1:9100")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SampleRate != 48000 || cfg.MonitorAddr != "127.0.0.1:9100" {
		t.Fatalf("env not applied: %+v", cfg)
	}
}

func TestSaveAudio(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg.InputDevice = "3"
	cfg.OutputDevice = "5"
	cfg.Volume = 0.5
	if err := cfg.SaveAudio(); err != nil {
		t.Fatalf("SaveAudio: %v", err)
	}

	got, err := Load(dir)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.InputDevice != "3" || got.OutputDevice != "5" || got.Volume != 0.5 {
		t.Fatalf("audio choices not saved: %+v", got)
	}
}

func TestLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"WARN":  slog.LevelWarn,
		"":      slog.LevelInfo,
		"loud":  slog.LevelInfo,
	}
	for in, want := range tests {
		if got := (Config{LogLevel: in}).Level(); got != want {
			t.Errorf("Level(%q) = %v, want %v", in, got, want)
		}
	}
}
