// Package steplog persists every environment step: reward, action, info and
// episode flags go to SQLite, and frames are written as JPEG files every Nth
// episode.
package steplog

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/bhandras/gymharness/internal/env"
	"github.com/bhandras/gymharness/pkg/logger"
)

//go:embed migrations/*.sql
var migrations embed.FS

// stepsPerChunk groups frames into directories of this many env steps.
const stepsPerChunk = 10000

// Options configures a Store.
type Options struct {
	// Dir receives steps.db and the frame directories.
	Dir string
	// App is recorded with the run.
	App string
	// PixelsEveryNEpisodes stores frames for episodes divisible by N; 0
	// disables frames.
	PixelsEveryNEpisodes int
	// JPEGQuality defaults to 92.
	JPEGQuality int
}

// Store is an env.Recorder backed by SQLite.
type Store struct {
	db    *sql.DB
	runID string
	opts  Options
}

var _ env.Recorder = (*Store)(nil)

// Open opens (or creates) the step database in opts.Dir, runs migrations and
// registers a new run.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("steplog dir is required")
	}
	if opts.JPEGQuality <= 0 {
		opts.JPEGQuality = 92
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", opts.Dir, err)
	}

	dsn := filepath.Join(opts.Dir, "steps.db") + "?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Sessions record from their own goroutines; one writer avoids
	// SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	s := &Store{db: db, runID: uuid.NewString(), opts: opts}
	if _, err := db.ExecContext(ctx,
		"INSERT INTO runs (id, app) VALUES (?, ?)", s.runID, opts.App); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to register run: %w", err)
	}
	logger.Infof("steplog: run %s logging to %s", s.runID, opts.Dir)
	return s, nil
}

// runMigrations applies embedded migrations in name order, recording each
// in schema_migrations.
func runMigrations(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	entries, err := migrations.ReadDir("migrations")
	if err != nil {
		return err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		version := strings.TrimSuffix(name, ".sql")

		var count int
		err := db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM schema_migrations WHERE version = ?", version).Scan(&count)
		if err != nil {
			return fmt.Errorf("failed to check migration status: %w", err)
		}
		if count > 0 {
			continue
		}

		migrationSQL, err := migrations.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", name, err)
		}
		if _, err := db.ExecContext(ctx, string(migrationSQL)); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", name, err)
		}
		if _, err := db.ExecContext(ctx,
			"INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("failed to record migration: %w", err)
		}
	}
	return nil
}

// RunID returns the id of the run this store records.
func (s *Store) RunID() string { return s.runID }

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

type actionRecord struct {
	Discrete   []int      `msgpack:"discrete"`
	Continuous [2]float64 `msgpack:"continuous"`
}

// Record implements env.Recorder.
func (s *Store) Record(ctx context.Context, rec env.StepRecord) error {
	res := rec.Result

	action, err := msgpack.Marshal(actionRecord{
		Discrete:   rec.Action.Discrete,
		Continuous: rec.Action.Continuous,
	})
	if err != nil {
		return fmt.Errorf("encode action: %w", err)
	}
	info, err := msgpack.Marshal(map[string]any(res.Info))
	if err != nil {
		return fmt.Errorf("encode info: %w", err)
	}

	var framePath sql.NullString
	if s.storesFrames(rec.Episode) && !res.Frame.Empty() {
		path, err := s.writeFrame(rec.Instance, res.EnvStep, res.Frame)
		if err != nil {
			return err
		}
		framePath = sql.NullString{String: path, Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO steps (
			run_id, instance, episode, episode_step, env_step,
			reward, terminated, truncated, tick_delta,
			action, info, frame_path
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		s.runID, rec.Instance, rec.Episode, res.EpisodeStep, res.EnvStep,
		res.Reward, res.Terminated, res.Truncated, res.TickDelta,
		action, info, framePath,
	)
	if err != nil {
		return fmt.Errorf("insert step: %w", err)
	}
	return nil
}

func (s *Store) storesFrames(episode int) bool {
	n := s.opts.PixelsEveryNEpisodes
	return n > 0 && episode%n == 0
}

// Step is a stored step as read back from the database.
type Step struct {
	Instance    int
	Episode     int
	EpisodeStep int
	EnvStep     int64
	Reward      float64
	Terminated  bool
	Truncated   bool
	TickDelta   int64
	Action      env.Action
	Info        env.Info
	FramePath   string
}

// Steps returns the recorded steps of one instance in env-step order.
func (s *Store) Steps(ctx context.Context, instance int) ([]Step, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT episode, episode_step, env_step, reward, terminated, truncated,
			tick_delta, action, info, frame_path
		FROM steps
		WHERE run_id = ? AND instance = ?
		ORDER BY env_step
	`, s.runID, instance)
	if err != nil {
		return nil, fmt.Errorf("query steps: %w", err)
	}
	defer rows.Close()

	var out []Step
	for rows.Next() {
		st := Step{Instance: instance}
		var (
			actionBlob, infoBlob []byte
			framePath            sql.NullString
		)
		if err := rows.Scan(&st.Episode, &st.EpisodeStep, &st.EnvStep, &st.Reward,
			&st.Terminated, &st.Truncated, &st.TickDelta,
			&actionBlob, &infoBlob, &framePath); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}

		var a actionRecord
		if err := msgpack.Unmarshal(actionBlob, &a); err != nil {
			return nil, fmt.Errorf("decode action: %w", err)
		}
		st.Action = env.Action{Discrete: a.Discrete, Continuous: a.Continuous}

		var info map[string]any
		if err := msgpack.Unmarshal(infoBlob, &info); err != nil {
			return nil, fmt.Errorf("decode info: %w", err)
		}
		st.Info = env.Info(info)
		st.FramePath = framePath.String
		out = append(out, st)
	}
	return out, rows.Err()
}
