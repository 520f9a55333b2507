// Package config loads application settings from defaults, an optional
// .env file, ECHOJOURNAL_* environment variables and <data_dir>/config.yaml.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	AppName    = "echojournal"
	EnvPrefix  = "ECHOJOURNAL"
	ConfigFile = "config.yaml"

	DefaultSampleRate      = 44100
	DefaultChannels        = 1
	DefaultFramesPerBuffer = 1024
	DefaultInterval        = 100 * time.Millisecond
	DefaultMinRecording    = 1500 * time.Millisecond
)

type Config struct {
	DataDir              string        `mapstructure:"data_dir"`
	SampleRate           int           `mapstructure:"sample_rate"`
	Channels             int           `mapstructure:"channels"`
	FramesPerBuffer      int           `mapstructure:"frames_per_buffer"`
	SampleInterval       time.Duration `mapstructure:"sample_interval"`
	ProgressInterval     time.Duration `mapstructure:"progress_interval"`
	MinRecordingDuration time.Duration `mapstructure:"min_recording_duration"`
	InputDevice          string        `mapstructure:"input_device"`
	OutputDevice         string        `mapstructure:"output_device"`
	Volume               float64       `mapstructure:"volume"`
	MonitorAddr          string        `mapstructure:"monitor_addr"`
	LogLevel             string        `mapstructure:"log_level"`

	// Path is the config file that was read or created.
	Path string `mapstructure:"-"`
}

func (c Config) RecordingsDir() string { return filepath.Join(c.DataDir, "recordings") }
func (c Config) TempDir() string       { return filepath.Join(c.DataDir, "tmp") }
func (c Config) DatabasePath() string  { return filepath.Join(c.DataDir, "echos.db") }
func (c Config) SettingsPath() string  { return filepath.Join(c.DataDir, "settings.yaml") }
func (c Config) LogPath() string       { return filepath.Join(c.DataDir, AppName+".log") }

// Level parses LogLevel, defaulting to info.
func (c Config) Level() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// DefaultDataDir is ~/.echojournal.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "." + AppName
	}
	return filepath.Join(home, "."+AppName)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("data_dir", DefaultDataDir())
	v.SetDefault("sample_rate", DefaultSampleRate)
	v.SetDefault("channels", DefaultChannels)
	v.SetDefault("frames_per_buffer", DefaultFramesPerBuffer)
	v.SetDefault("sample_interval", DefaultInterval)
	v.SetDefault("progress_interval", DefaultInterval)
	v.SetDefault("min_recording_duration", DefaultMinRecording)
	v.SetDefault("input_device", "")
	v.SetDefault("output_device", "")
	v.SetDefault("volume", 1.0)
	v.SetDefault("monitor_addr", "")
	v.SetDefault("log_level", "info")
	return v
}

// Load resolves the configuration. A non-empty dataDir overrides every
// other source for the data directory. The config file is created with
// defaults when missing.
func Load(dataDir string) (Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := newViper()
	if dataDir == "" {
		dataDir = v.GetString("data_dir")
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return Config{}, fmt.Errorf("create data dir: %w", err)
	}

	path := filepath.Join(dataDir, ConfigFile)
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		v.Set("data_dir", dataDir)
		if err := v.WriteConfigAs(path); err != nil {
			return Config{}, fmt.Errorf("create config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.DataDir = dataDir
	cfg.Path = path
	cfg.repair()
	return cfg, nil
}

// repair replaces unusable audio values with defaults.
func (c *Config) repair() {
	if c.SampleRate <= 0 {
		c.SampleRate = DefaultSampleRate
	}
	if c.Channels <= 0 {
		c.Channels = DefaultChannels
	}
	if c.FramesPerBuffer <= 0 {
		c.FramesPerBuffer = DefaultFramesPerBuffer
	}
	if c.SampleInterval <= 0 {
		c.SampleInterval = DefaultInterval
	}
	if c.ProgressInterval <= 0 {
		c.ProgressInterval = DefaultInterval
	}
	if c.MinRecordingDuration <= 0 {
		c.MinRecordingDuration = DefaultMinRecording
	}
	if c.Volume <= 0 || c.Volume > 1 {
		c.Volume = 1
	}
}

// SaveAudio writes the device and volume choices back to the config file.
func (c Config) SaveAudio() error {
	v := viper.New()
	v.SetConfigFile(c.Path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", c.Path, err)
	}
	v.Set("input_device", c.InputDevice)
	v.Set("output_device", c.OutputDevice)
	v.Set("volume", c.Volume)
	if err := v.WriteConfigAs(c.Path); err != nil {
		return fmt.Errorf("write config %s: %w", c.Path, err)
	}
	return nil
}
