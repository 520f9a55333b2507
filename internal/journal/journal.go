// Package journal shapes saved echoes for the list view: day sections,
// mood and topic filters, and filter chip labels.
package journal

import (
	"fmt"
	"slices"
	"sort"
	"time"

	"echojournal/internal/echo"
)

// DaySection is one header in the echo list.
type DaySection struct {
	Key    string
	Header string
	Echos  []echo.Echo
}

func dayKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// DayHeader is "Today", "Yesterday" or a short date relative to now.
func DayHeader(t, now time.Time) string {
	t = t.In(now.Location())
	switch dayKey(t) {
	case dayKey(now):
		return "Today"
	case dayKey(now.AddDate(0, 0, -1)):
		return "Yesterday"
	}
	if t.Year() != now.Year() {
		return t.Format("Mon, Jan 2 2006")
	}
	return t.Format("Mon, Jan 2")
}

// GroupByDay buckets echos by calendar day in now's location, newest day
// first and newest echo first within a day.
func GroupByDay(echos []echo.Echo, now time.Time) []DaySection {
	byKey := make(map[string]*DaySection)
	var keys []string
	for _, e := range echos {
		at := e.RecordedAt.In(now.Location())
		k := dayKey(at)
		sec, ok := byKey[k]
		if !ok {
			sec = &DaySection{Key: k, Header: DayHeader(at, now)}
			byKey[k] = sec
			keys = append(keys, k)
		}
		sec.Echos = append(sec.Echos, e)
	}

	sort.Sort(sort.Reverse(sort.StringSlice(keys)))
	out := make([]DaySection, 0, len(keys))
	for _, k := range keys {
		sec := byKey[k]
		sort.SliceStable(sec.Echos, func(i, j int) bool {
			return sec.Echos[i].RecordedAt.After(sec.Echos[j].RecordedAt)
		})
		out = append(out, *sec)
	}
	return out
}

// Filter keeps echos whose mood is one of moods and that carry at least one
// of topics. An empty set does not filter.
func Filter(echos []echo.Echo, moods []echo.Mood, topics []string) []echo.Echo {
	out := make([]echo.Echo, 0, len(echos))
	for _, e := range echos {
		if len(moods) > 0 && !slices.Contains(moods, e.Mood) {
			continue
		}
		if len(topics) > 0 && !slices.ContainsFunc(e.Topics, func(t string) bool {
			return slices.Contains(topics, t)
		}) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Toggle adds v when absent and removes it otherwise.
func Toggle[T comparable](set []T, v T) []T {
	if i := slices.Index(set, v); i >= 0 {
		return slices.Delete(slices.Clone(set), i, i+1)
	}
	return append(slices.Clone(set), v)
}

// TopicChipTitle labels the topic filter chip.
func TopicChipTitle(topics []string) string {
	switch len(topics) {
	case 0:
		return "All topics"
	case 1:
		return topics[0]
	case 2:
		return topics[0] + " " + topics[1]
	}
	return fmt.Sprintf("%s, %s +%d", topics[0], topics[1], len(topics)-2)
}

// MoodChipTitle labels the mood filter chip.
func MoodChipTitle(moods []echo.Mood) string {
	switch len(moods) {
	case 0:
		return "All moods"
	case 1:
		return moods[0].Title()
	case 2:
		return moods[0].Title() + ", " + moods[1].Title()
	}
	return fmt.Sprintf("%s, %s +%d", moods[0].Title(), moods[1].Title(), len(moods)-2)
}
