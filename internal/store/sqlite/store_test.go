package sqlite_test

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"echojournal/internal/echo"
	"echojournal/internal/store/sqlite"
)

func openStore(t *testing.T, path string) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(context.Background(), path, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func recv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		if !ok {
			t.Fatalf("channel closed")
		}
		return v
	case <-time.After(time.Second):
		t.Fatalf("nothing received")
	}
	var zero T
	return zero
}

func sample(title string, at time.Time, topics ...string) echo.Echo {
	return echo.Echo{
		Mood:                echo.MoodPeaceful,
		Title:               title,
		Topics:              topics,
		AudioFilePath:       "/data/recordings/" + title + ".wav",
		AudioPlaybackLength: 2500 * time.Millisecond,
		AudioAmplitudes:     []float32{0.25, 0.5, 1},
		RecordedAt:          at,
	}
}

func TestInsertAndObserve(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := openStore(t, filepath.Join(t.TempDir(), "echos.db"))

	echos := s.ObserveEchos(ctx)
	if got := recv(t, echos); len(got) != 0 {
		t.Fatalf("expected empty store, got %d", len(got))
	}

	base := time.Date(2026, 4, 2, 8, 0, 0, 0, time.UTC)
	first, err := s.InsertEcho(ctx, sample("first", base, "work", "Work", "work"))
	if err != nil {
		t.Fatalf("InsertEcho: %v", err)
	}
	if first.ID == "" {
		t.Fatalf("id not assigned")
	}
	if _, err := s.InsertEcho(ctx, sample("second", base.Add(time.Hour), "family")); err != nil {
		t.Fatalf("InsertEcho: %v", err)
	}

	var got []echo.Echo
	for len(got) != 2 {
		got = recv(t, echos)
	}
	if got[0].Title != "second" || got[1].Title != "first" {
		t.Fatalf("expected newest first, got %q, %q", got[0].Title, got[1].Title)
	}
	e := got[1]
	if e.ID != first.ID || e.Mood != echo.MoodPeaceful || e.AudioPlaybackLength != 2500*time.Millisecond {
		t.Fatalf("unexpected echo %+v", e)
	}
	if !e.RecordedAt.Equal(base) {
		t.Fatalf("recorded at %v, want %v", e.RecordedAt, base)
	}
	if !reflect.DeepEqual(e.AudioAmplitudes, []float32{0.25, 0.5, 1}) {
		t.Fatalf("amplitudes = %v", e.AudioAmplitudes)
	}
	if !reflect.DeepEqual(e.Topics, []string{"work", "Work"}) {
		t.Fatalf("topics = %q", e.Topics)
	}

	topics := recv(t, s.ObserveTopics(ctx))
	if !reflect.DeepEqual(topics, []string{"family", "work", "Work"}) &&
		!reflect.DeepEqual(topics, []string{"family", "Work", "work"}) {
		t.Fatalf("topics = %q", topics)
	}
}

func TestInsertRejectsInvalidMood(t *testing.T) {
	s := openStore(t, filepath.Join(t.TempDir(), "echos.db"))
	e := sample("bad", time.Now())
	e.Mood = ""
	if _, err := s.InsertEcho(context.Background(), e); err == nil {
		t.Fatalf("expected error for missing mood")
	}
}

func TestSearchTopicsIsLive(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := openStore(t, filepath.Join(t.TempDir(), "echos.db"))
	if _, err := s.InsertEcho(ctx, sample("a", time.Now(), "Hello", "world", "50%_off")); err != nil {
		t.Fatal(err)
	}

	results := s.SearchTopics(ctx, "hel")
	if got := recv(t, results); !reflect.DeepEqual(got, []string{"Hello"}) {
		t.Fatalf("search = %q", got)
	}

	if _, err := s.InsertEcho(ctx, sample("b", time.Now(), "helpers")); err != nil {
		t.Fatal(err)
	}
	if got := recv(t, results); !reflect.DeepEqual(got, []string{"Hello", "helpers"}) {
		t.Fatalf("search after insert = %q", got)
	}

	if got := recv(t, s.SearchTopics(ctx, "%_")); !reflect.DeepEqual(got, []string{"50%_off"}) {
		t.Fatalf("wildcards must match literally, got %q", got)
	}
}

func TestReopenKeepsDataAndSchema(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "echos.db")

	s, err := sqlite.Open(ctx, path, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := s.InsertEcho(ctx, sample("kept", time.Now(), "t")); err != nil {
		t.Fatal(err)
	}
	v1, err := s.SchemaVersion(ctx)
	if err != nil {
		t.Fatal(err)
	}
	s.Close()

	s2 := openStore(t, path)
	v2, err := s2.SchemaVersion(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if v1 != v2 || v2 != 1 {
		t.Fatalf("schema version changed on reopen: %d -> %d", v1, v2)
	}
	sub, cancel := context.WithCancel(ctx)
	defer cancel()
	if got := recv(t, s2.ObserveEchos(sub)); len(got) != 1 || got[0].Title != "kept" {
		t.Fatalf("data lost on reopen: %+v", got)
	}
}
