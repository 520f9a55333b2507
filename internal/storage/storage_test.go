package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestStorage(t *testing.T) (*Storage, string) {
	t.Helper()
	root := t.TempDir()
	tmp := filepath.Join(root, "tmp")
	if err := os.MkdirAll(tmp, 0755); err != nil {
		t.Fatal(err)
	}
	s := New(filepath.Join(root, "recordings"), tmp, nil)
	s.now = func() time.Time { return time.Date(2026, 5, 1, 10, 20, 30, 0, time.UTC) }
	return s, tmp
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestSavePersistentlyMovesFile(t *testing.T) {
	s, tmp := newTestStorage(t)
	src := filepath.Join(tmp, "temp_recording_1.wav")
	writeFile(t, src, "RIFF")

	dst, ok := s.SavePersistently(context.Background(), src)
	if !ok {
		t.Fatalf("save failed")
	}
	if want := filepath.Join(s.Dir(), "echo_2026-05-01_10-20-30.wav"); dst != want {
		t.Fatalf("saved to %q, want %q", dst, want)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Fatalf("temporary file still present")
	}
	data, err := os.ReadFile(dst)
	if err != nil || string(data) != "RIFF" {
		t.Fatalf("saved content %q, err %v", data, err)
	}

	// same second: a second save must not overwrite the first
	src2 := filepath.Join(tmp, "temp_recording_2.wav")
	writeFile(t, src2, "second")
	dst2, ok := s.SavePersistently(context.Background(), src2)
	if !ok || dst2 == dst {
		t.Fatalf("second save got %q ok=%v", dst2, ok)
	}
}

func TestSavePersistentlyMissingFile(t *testing.T) {
	s, tmp := newTestStorage(t)
	dst, ok := s.SavePersistently(context.Background(), filepath.Join(tmp, "temp_recording_gone.wav"))
	if ok || dst != "" {
		t.Fatalf("expected failure, got %q ok=%v", dst, ok)
	}
}

func TestSavePersistentlyCancelled(t *testing.T) {
	s, tmp := newTestStorage(t)
	src := filepath.Join(tmp, "temp_recording_1.wav")
	writeFile(t, src, "RIFF")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, ok := s.SavePersistently(ctx, src); ok {
		t.Fatalf("expected cancelled save to fail")
	}
	if _, err := os.Stat(src); err != nil {
		t.Fatalf("cancelled save must leave the file: %v", err)
	}
}

func TestCleanUpTemporaryFiles(t *testing.T) {
	s, tmp := newTestStorage(t)
	writeFile(t, filepath.Join(tmp, "temp_recording_a.wav"), "a")
	writeFile(t, filepath.Join(tmp, "temp_recording_b.wav"), "b")
	keep := filepath.Join(tmp, "notes.txt")
	writeFile(t, keep, "keep")

	if err := s.CleanUpTemporaryFiles(context.Background()); err != nil {
		t.Fatalf("CleanUpTemporaryFiles: %v", err)
	}
	left, err := os.ReadDir(tmp)
	if err != nil {
		t.Fatal(err)
	}
	if len(left) != 1 || left[0].Name() != "notes.txt" {
		t.Fatalf("unexpected leftovers: %v", left)
	}
}

func TestExport(t *testing.T) {
	s, tmp := newTestStorage(t)
	src := filepath.Join(tmp, "echo_x.wav")
	writeFile(t, src, "audio")
	out := filepath.Join(t.TempDir(), "Downloads")

	dst, err := s.Export(src, out)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if filepath.Base(dst) != "export_2026-05-01_10-20-30_echo_x.wav" {
		t.Fatalf("unexpected export name %q", dst)
	}
	if _, err := os.Stat(src); err != nil {
		t.Fatalf("export must keep the source: %v", err)
	}
}

func TestFormatBytes(t *testing.T) {
	tests := map[int64]string{
		0:               "0 B",
		1023:            "1023 B",
		1536:            "1.5 KB",
		5 * 1024 * 1024: "5.0 MB",
		3 << 30:         "3.0 GB",
	}
	for in, want := range tests {
		if got := FormatBytes(in); got != want {
			t.Errorf("FormatBytes(%d) = %q, want %q", in, got, want)
		}
	}
}
