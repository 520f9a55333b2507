// Package storage keeps recordings on the local filesystem.
package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"echojournal/internal/echo"
	"echojournal/internal/recorder"
)

const timestampLayout = "2006-01-02_15-04-05"

// Storage moves finished recordings from the temp dir to the recordings dir.
type Storage struct {
	dir     string
	tempDir string
	log     *slog.Logger
	now     func() time.Time
}

var _ echo.RecordingStorage = (*Storage)(nil)

func New(dir, tempDir string, logger *slog.Logger) *Storage {
	if logger == nil {
		logger = slog.Default()
	}
	return &Storage{
		dir:     dir,
		tempDir: tempDir,
		log:     logger.With("component", "storage"),
		now:     time.Now,
	}
}

// Dir is where saved recordings live.
func (s *Storage) Dir() string { return s.dir }

// SavePersistently moves tempFilePath to <dir>/echo_<timestamp>.wav. Any
// I/O failure is logged and reported as ok == false.
func (s *Storage) SavePersistently(ctx context.Context, tempFilePath string) (string, bool) {
	if err := ctx.Err(); err != nil {
		s.log.Warn("save cancelled", "path", tempFilePath, "error", err)
		return "", false
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		s.log.Error("creating recordings dir", "dir", s.dir, "error", err)
		return "", false
	}
	dst, err := s.freeName("echo_"+s.now().Format(timestampLayout), filepath.Ext(tempFilePath))
	if err != nil {
		s.log.Error("choosing recording name", "error", err)
		return "", false
	}
	if err := move(tempFilePath, dst); err != nil {
		s.log.Error("saving recording", "from", tempFilePath, "to", dst, "error", err)
		return "", false
	}
	s.log.Info("recording saved", "path", dst)
	return dst, true
}

// freeName returns <dir>/<base><ext>, suffixed with a counter when taken.
func (s *Storage) freeName(base, ext string) (string, error) {
	if ext == "" {
		ext = ".wav"
	}
	for i := 0; i < 1000; i++ {
		name := base + ext
		if i > 0 {
			name = fmt.Sprintf("%s_%d%s", base, i, ext)
		}
		p := filepath.Join(s.dir, name)
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			return p, nil
		} else if err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("no free name for %s", base)
}

// CleanUpTemporaryFiles removes recordings left behind in the temp dir.
func (s *Storage) CleanUpTemporaryFiles(ctx context.Context) error {
	matches, err := filepath.Glob(filepath.Join(s.tempDir, recorder.TempPrefix+"*"))
	if err != nil {
		return fmt.Errorf("list temporary recordings: %w", err)
	}
	var errs []error
	for _, m := range matches {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := os.Remove(m); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		s.log.Debug("removed temporary recording", "path", m)
	}
	if len(matches) > 0 {
		s.log.Info("temporary recordings cleaned up", "count", len(matches))
	}
	return errors.Join(errs...)
}

// Export copies a saved recording into dir and returns the new path.
func (s *Storage) Export(src, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	dst := filepath.Join(dir, fmt.Sprintf("export_%s_%s", s.now().Format(timestampLayout), filepath.Base(src)))
	if err := copyFile(src, dst); err != nil {
		return "", fmt.Errorf("export %s: %w", src, err)
	}
	s.log.Info("recording exported", "from", src, "to", dst)
	return dst, nil
}

// move renames src to dst, falling back to copy and remove across devices.
func move(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	} else if errors.Is(err, os.ErrNotExist) {
		return err
	}
	if err := copyFile(src, dst); err != nil {
		os.Remove(dst)
		return err
	}
	return os.Remove(src)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := out.ReadFrom(in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// FormatBytes renders a file size like "1.5 MB".
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
