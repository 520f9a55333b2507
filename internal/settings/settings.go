// Package settings persists the user's entry defaults in a YAML file.
package settings

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"

	"echojournal/internal/echo"
	"echojournal/internal/watch"
)

const (
	keyDefaultMood   = "default_mood"
	keyDefaultTopics = "default_topics"
)

// Preferences is an echo.SettingsPreferences backed by viper.
type Preferences struct {
	path string
	log  *slog.Logger

	mu sync.Mutex
	v  *viper.Viper

	mood   *watch.Value[echo.Mood]
	topics *watch.Value[[]string]
}

var _ echo.SettingsPreferences = (*Preferences)(nil)

// Open reads path, creating it with defaults when it does not exist.
func Open(path string, logger *slog.Logger) (*Preferences, error) {
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "settings")

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetDefault(keyDefaultMood, string(echo.MoodNeutral))
	v.SetDefault(keyDefaultTopics, []string{})

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create settings dir: %w", err)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read settings: %w", err)
		}
		log.Info("settings file not found, creating one with defaults", "path", path)
		if err := v.WriteConfigAs(path); err != nil {
			return nil, fmt.Errorf("create settings: %w", err)
		}
	}

	mood, err := echo.ParseMood(v.GetString(keyDefaultMood))
	if err != nil {
		log.Warn("invalid default mood, using neutral", "error", err)
		mood = echo.MoodNeutral
	}
	return &Preferences{
		path:   path,
		log:    log,
		v:      v,
		mood:   watch.New(mood),
		topics: watch.New(echo.DistinctTopics(v.GetStringSlice(keyDefaultTopics))),
	}, nil
}

func (p *Preferences) ObserveDefaultMood(ctx context.Context) <-chan echo.Mood {
	return p.mood.Subscribe(ctx)
}

func (p *Preferences) ObserveDefaultTopics(ctx context.Context) <-chan []string {
	return p.topics.Subscribe(ctx)
}

func (p *Preferences) SaveDefaultMood(_ context.Context, mood echo.Mood) error {
	if !mood.Valid() {
		return fmt.Errorf("save default mood: unknown mood %q", mood)
	}
	if err := p.write(keyDefaultMood, string(mood)); err != nil {
		return err
	}
	p.mood.Set(mood)
	return nil
}

func (p *Preferences) SaveDefaultTopics(_ context.Context, topics []string) error {
	topics = echo.DistinctTopics(topics)
	if err := p.write(keyDefaultTopics, topics); err != nil {
		return err
	}
	p.topics.Set(topics)
	return nil
}

func (p *Preferences) write(key string, value any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.v.Set(key, value)
	if err := p.v.WriteConfigAs(p.path); err != nil {
		p.log.Error("writing settings", "key", key, "error", err)
		return fmt.Errorf("write settings: %w", err)
	}
	p.log.Info("setting saved", "key", key)
	return nil
}
