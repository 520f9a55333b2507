package journal_test

import (
	"reflect"
	"testing"
	"time"

	"echojournal/internal/echo"
	"echojournal/internal/journal"
)

var now = time.Date(2026, 10, 18, 15, 0, 0, 0, time.UTC)

func at(daysAgo, hour int) time.Time {
	d := now.AddDate(0, 0, -daysAgo)
	return time.Date(d.Year(), d.Month(), d.Day(), hour, 0, 0, 0, time.UTC)
}

func TestGroupByDay(t *testing.T) {
	echos := []echo.Echo{
		{ID: "a", RecordedAt: at(0, 8)},
		{ID: "b", RecordedAt: at(2, 9)},
		{ID: "c", RecordedAt: at(0, 14)},
		{ID: "d", RecordedAt: at(1, 23)},
		{ID: "e", RecordedAt: at(300, 10)},
	}

	sections := journal.GroupByDay(echos, now)

	var headers []string
	var ids [][]string
	for _, s := range sections {
		headers = append(headers, s.Header)
		var row []string
		for _, e := range s.Echos {
			row = append(row, e.ID)
		}
		ids = append(ids, row)
	}
	wantHeaders := []string{"Today", "Yesterday", "Fri, Oct 16", "Mon, Dec 22 2025"}
	if !reflect.DeepEqual(headers, wantHeaders) {
		t.Fatalf("headers = %q, want %q", headers, wantHeaders)
	}
	wantIDs := [][]string{{"c", "a"}, {"d"}, {"b"}, {"e"}}
	if !reflect.DeepEqual(ids, wantIDs) {
		t.Fatalf("ids = %q, want %q", ids, wantIDs)
	}
}

func TestGroupByDayEmpty(t *testing.T) {
	if got := journal.GroupByDay(nil, now); len(got) != 0 {
		t.Fatalf("expected no sections, got %d", len(got))
	}
}

func TestFilter(t *testing.T) {
	echos := []echo.Echo{
		{ID: "1", Mood: echo.MoodSad, Topics: []string{"work"}},
		{ID: "2", Mood: echo.MoodExcited, Topics: []string{"family", "trip"}},
		{ID: "3", Mood: echo.MoodSad},
		{ID: "4", Mood: echo.MoodNeutral, Topics: []string{"trip"}},
	}
	tests := []struct {
		name   string
		moods  []echo.Mood
		topics []string
		want   []string
	}{
		{"no filter", nil, nil, []string{"1", "2", "3", "4"}},
		{"mood", []echo.Mood{echo.MoodSad}, nil, []string{"1", "3"}},
		{"moods", []echo.Mood{echo.MoodSad, echo.MoodNeutral}, nil, []string{"1", "3", "4"}},
		{"topic", nil, []string{"trip"}, []string{"2", "4"}},
		{"both", []echo.Mood{echo.MoodExcited}, []string{"trip", "work"}, []string{"2"}},
		{"nothing matches", []echo.Mood{echo.MoodPeaceful}, nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, e := range journal.Filter(echos, tt.moods, tt.topics) {
				got = append(got, e.ID)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestToggle(t *testing.T) {
	set := journal.Toggle([]string{"a", "b"}, "c")
	set = journal.Toggle(set, "a")
	if !reflect.DeepEqual(set, []string{"b", "c"}) {
		t.Fatalf("Toggle = %q", set)
	}
}

func TestChipTitles(t *testing.T) {
	topicTests := []struct {
		in   []string
		want string
	}{
		{nil, "All topics"},
		{[]string{"work"}, "work"},
		{[]string{"work", "family"}, "work family"},
		{[]string{"work", "family", "trip", "gym"}, "work, family +2"},
	}
	for _, tt := range topicTests {
		if got := journal.TopicChipTitle(tt.in); got != tt.want {
			t.Errorf("TopicChipTitle(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	moods := []echo.Mood{echo.MoodSad, echo.MoodExcited, echo.MoodNeutral}
	if got := journal.MoodChipTitle(moods); got != "Sad, Excited +1" {
		t.Errorf("MoodChipTitle = %q", got)
	}
	if got := journal.MoodChipTitle(moods[:2]); got != "Sad, Excited" {
		t.Errorf("MoodChipTitle = %q", got)
	}
	if got := journal.MoodChipTitle(nil); got != "All moods" {
		t.Errorf("MoodChipTitle = %q", got)
	}
}
