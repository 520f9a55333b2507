// Package sqlite stores echoes and topics in a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // registers "sqlite3" driver

	"echojournal/internal/echo"
	"echojournal/internal/watch"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Store is an echo.EchoDataSource. Observers see a fresh snapshot after
// every write.
type Store struct {
	db  *sql.DB
	log *slog.Logger

	// wmu serializes writes with the snapshot refresh that follows them.
	wmu    sync.Mutex
	echos  *watch.Value[[]echo.Echo]
	topics *watch.Value[[]string]
}

var _ echo.EchoDataSource = (*Store)(nil)

// Open opens or creates the database at path and applies pending migrations.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("echo store open: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err = db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("echo store ping: %w", err)
	}
	if err = migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("echo store migrate: %w", err)
	}

	s := &Store{
		db:     db,
		log:    logger.With("component", "store"),
		echos:  watch.New([]echo.Echo{}),
		topics: watch.New([]string{}),
	}
	if err := s.refresh(ctx); err != nil {
		db.Close()
		return nil, err
	}
	s.log.Info("echo store opened", "path", path, "echos", len(s.echos.Get()))
	return s, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`)
	if err != nil {
		return err
	}

	var current int
	row := db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), -1) FROM schema_version`)
	if err = row.Scan(&current); err != nil {
		return err
	}

	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	for i := current + 1; i < len(entries); i++ {
		data, readErr := migrationFS.ReadFile("migrations/" + entries[i].Name())
		if readErr != nil {
			return fmt.Errorf("read migration %d: %w", i, readErr)
		}
		if _, execErr := db.ExecContext(ctx, string(data)); execErr != nil {
			return fmt.Errorf("migration %d: %w", i, execErr)
		}
		if _, execErr := db.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES (?)`, i); execErr != nil {
			return fmt.Errorf("migration %d record: %w", i, execErr)
		}
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// SchemaVersion is the last applied migration.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), -1) FROM schema_version`).Scan(&v)
	return v, err
}

// InsertEcho stores e under a new id and returns it with the id set.
func (s *Store) InsertEcho(ctx context.Context, e echo.Echo) (echo.Echo, error) {
	if !e.Mood.Valid() {
		return echo.Echo{}, fmt.Errorf("insert echo: invalid mood %q", e.Mood)
	}
	e.ID = uuid.NewString()
	e.Topics = echo.DistinctTopics(e.Topics)
	if e.AudioAmplitudes == nil {
		e.AudioAmplitudes = []float32{}
	}
	amps, err := json.Marshal(e.AudioAmplitudes)
	if err != nil {
		return echo.Echo{}, fmt.Errorf("encode amplitudes: %w", err)
	}

	s.wmu.Lock()
	defer s.wmu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return echo.Echo{}, err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO echos (id, mood, title, note, audio_file_path, audio_playback_length_ms, audio_amplitudes, recorded_at_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.Mood), e.Title, e.Note, e.AudioFilePath,
		e.AudioPlaybackLength.Milliseconds(), string(amps), e.RecordedAt.UnixMilli(),
	)
	if err != nil {
		return echo.Echo{}, fmt.Errorf("insert echo: %w", err)
	}
	for i, t := range e.Topics {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO topics (name) VALUES (?)`, t); err != nil {
			return echo.Echo{}, fmt.Errorf("insert topic %q: %w", t, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO echo_topics (echo_id, topic, position) VALUES (?, ?, ?)`, e.ID, t, i); err != nil {
			return echo.Echo{}, fmt.Errorf("link topic %q: %w", t, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return echo.Echo{}, fmt.Errorf("commit echo: %w", err)
	}

	if err := s.refresh(ctx); err != nil {
		s.log.Warn("refreshing observers after insert", "error", err)
	}
	s.log.Info("echo inserted", "id", e.ID, "topics", len(e.Topics))
	return e, nil
}

// ObserveEchos emits every echo, newest first.
func (s *Store) ObserveEchos(ctx context.Context) <-chan []echo.Echo {
	return s.echos.Subscribe(ctx)
}

// ObserveTopics emits every known topic, sorted.
func (s *Store) ObserveTopics(ctx context.Context) <-chan []string {
	return s.topics.Subscribe(ctx)
}

// SearchTopics emits the topics containing query, ignoring case, and emits
// again whenever topics change.
func (s *Store) SearchTopics(ctx context.Context, query string) <-chan []string {
	pattern := "%" + escapeLike(strings.TrimSpace(query)) + "%"
	return watch.Map(ctx, s.topics.Subscribe(ctx), func([]string) []string {
		found, err := s.searchTopics(ctx, pattern)
		if err != nil {
			s.log.Warn("topic search failed", "query", query, "error", err)
			return []string{}
		}
		return found
	})
}

func (s *Store) searchTopics(ctx context.Context, pattern string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name FROM topics WHERE name LIKE ? ESCAPE '\' ORDER BY name COLLATE NOCASE`, pattern)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	found := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		found = append(found, name)
	}
	return found, rows.Err()
}

func escapeLike(q string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(q)
}

// refresh reloads both snapshots and publishes them.
func (s *Store) refresh(ctx context.Context) error {
	echos, err := s.listEchos(ctx)
	if err != nil {
		return fmt.Errorf("load echos: %w", err)
	}
	topics, err := s.listTopics(ctx)
	if err != nil {
		return fmt.Errorf("load topics: %w", err)
	}
	s.echos.Set(echos)
	s.topics.Set(topics)
	return nil
}

func (s *Store) listEchos(ctx context.Context) ([]echo.Echo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, mood, title, note, audio_file_path, audio_playback_length_ms, audio_amplitudes, recorded_at_ms
		FROM echos
		ORDER BY recorded_at_ms DESC, rowid DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	echos := []echo.Echo{}
	index := make(map[string]int)
	for rows.Next() {
		var (
			e        echo.Echo
			mood     string
			lengthMs int64
			amps     string
			atMs     int64
		)
		if err := rows.Scan(&e.ID, &mood, &e.Title, &e.Note, &e.AudioFilePath, &lengthMs, &amps, &atMs); err != nil {
			return nil, err
		}
		e.Mood = echo.Mood(mood)
		e.AudioPlaybackLength = time.Duration(lengthMs) * time.Millisecond
		e.RecordedAt = time.UnixMilli(atMs)
		if err := json.Unmarshal([]byte(amps), &e.AudioAmplitudes); err != nil {
			return nil, fmt.Errorf("decode amplitudes of %s: %w", e.ID, err)
		}
		e.Topics = []string{}
		index[e.ID] = len(echos)
		echos = append(echos, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	trows, err := s.db.QueryContext(ctx, `SELECT echo_id, topic FROM echo_topics ORDER BY echo_id, position`)
	if err != nil {
		return nil, err
	}
	defer trows.Close()
	for trows.Next() {
		var id, topic string
		if err := trows.Scan(&id, &topic); err != nil {
			return nil, err
		}
		if i, ok := index[id]; ok {
			echos[i].Topics = append(echos[i].Topics, topic)
		}
	}
	return echos, trows.Err()
}

func (s *Store) listTopics(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM topics ORDER BY name COLLATE NOCASE`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	topics := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		topics = append(topics, name)
	}
	return topics, rows.Err()
}
