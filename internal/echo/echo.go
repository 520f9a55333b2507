package echo

import (
	"fmt"
	"strings"
	"time"
)

// Mood is the closed set of feelings an echo can be tagged with.
type Mood string

const (
	MoodExcited  Mood = "excited"
	MoodPeaceful Mood = "peaceful"
	MoodNeutral  Mood = "neutral"
	MoodSad      Mood = "sad"
	MoodStressed Mood = "stressed"
)

// Moods lists every mood in display order.
var Moods = []Mood{MoodStressed, MoodSad, MoodNeutral, MoodPeaceful, MoodExcited}

func (m Mood) Valid() bool {
	for _, v := range Moods {
		if v == m {
			return true
		}
	}
	return false
}

func (m Mood) Title() string {
	if m == "" {
		return ""
	}
	return strings.ToUpper(string(m[:1])) + string(m[1:])
}

// ParseMood accepts any casing of a mood name.
func ParseMood(s string) (Mood, error) {
	m := Mood(strings.ToLower(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", fmt.Errorf("unknown mood %q", s)
	}
	return m, nil
}

// Echo is a saved journal entry.
type Echo struct {
	ID                  string        `json:"id"`
	Mood                Mood          `json:"mood"`
	Title               string        `json:"title"`
	Note                string        `json:"note,omitempty"`
	Topics              []string      `json:"topics"`
	AudioFilePath       string        `json:"audio_file_path"`
	AudioPlaybackLength time.Duration `json:"audio_playback_length"`

	// Raw samples as captured; normalization for a given width happens at render time.
	AudioAmplitudes []float32 `json:"audio_amplitudes"`

	RecordedAt time.Time `json:"recorded_at"`
}

// RecordingDetails describes a recording that has not been saved yet.
type RecordingDetails struct {
	// FilePath is empty until the capture backend binds a file.
	FilePath   string
	Duration   time.Duration
	Amplitudes []float32
}

func (d RecordingDetails) HasFile() bool { return d.FilePath != "" }

// Clone returns a copy that shares no memory with d.
func (d RecordingDetails) Clone() RecordingDetails {
	out := d
	if d.Amplitudes != nil {
		out.Amplitudes = make([]float32, len(d.Amplitudes))
		copy(out.Amplitudes, d.Amplitudes)
	}
	return out
}

// AudioTrack is the state of the one active playback.
type AudioTrack struct {
	IsPlaying      bool
	DurationPlayed time.Duration
}

// DistinctTopics trims topics and drops blanks and repeats, keeping first occurrence order.
func DistinctTopics(topics []string) []string {
	seen := make(map[string]struct{}, len(topics))
	out := make([]string, 0, len(topics))
	for _, t := range topics {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
