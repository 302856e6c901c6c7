// Package journal keeps the history of task runs in a SQLite database.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/entrhq/repoman/pkg/types"
	"go.uber.org/zap"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by Get for an unknown run ID.
var ErrNotFound = errors.New("run not found")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	instruction TEXT NOT NULL,
	status TEXT NOT NULL,
	state TEXT NOT NULL,
	branch TEXT,
	commit_sha TEXT,
	error TEXT,
	dry_run INTEGER NOT NULL DEFAULT 0,
	canceled INTEGER NOT NULL DEFAULT 0,
	started_at INTEGER NOT NULL,
	ended_at INTEGER NOT NULL,
	result_json TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

CREATE TABLE IF NOT EXISTS outcomes (
	run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	seq INTEGER NOT NULL,
	path TEXT NOT NULL,
	status TEXT NOT NULL,
	changed INTEGER NOT NULL DEFAULT 0,
	lines_added INTEGER NOT NULL DEFAULT 0,
	lines_removed INTEGER NOT NULL DEFAULT 0,
	error TEXT,
	PRIMARY KEY (run_id, seq)
);
`

// Run is the summary of one recorded task.
type Run struct {
	ID          string
	Instruction string
	Status      types.TaskStatus
	State       types.TaskState
	Branch      string
	CommitSHA   string
	Error       string
	DryRun      bool
	Canceled    bool
	StartTime   time.Time
	EndTime     time.Time

	// Outcomes is the number of mutation outcomes, Changed the number of
	// outcomes that changed a file.
	Outcomes int
	Changed  int
}

// Duration returns the wall-clock time of the run.
func (r Run) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}

// Journal records task results. It implements headless.Recorder.
type Journal struct {
	db     *sql.DB
	path   string
	logger *zap.Logger
}

// Option configures a Journal.
type Option func(*Journal)

// WithLogger sets the structured logger.
func WithLogger(l *zap.Logger) Option {
	return func(j *Journal) {
		if l != nil {
			j.logger = l
		}
	}
}

// Open opens (creating if needed) the journal database at path.
func Open(ctx context.Context, path string, opts ...Option) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	// One writer at a time; SQLite serializes anyway and this avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	j := &Journal{db: db, path: path, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(j)
	}

	for _, stmt := range []string{"PRAGMA foreign_keys = ON", "PRAGMA busy_timeout = 5000", schema} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to initialize journal: %w", err)
		}
	}
	return j, nil
}

// Path returns the database file path.
func (j *Journal) Path() string {
	return j.path
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Record stores a task result, replacing any earlier record with the same ID.
func (j *Journal) Record(ctx context.Context, result *types.TaskResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM outcomes WHERE run_id = ?`, result.ID); err != nil {
		return fmt.Errorf("failed to clear outcomes: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO runs
		 (id, instruction, status, state, branch, commit_sha, error, dry_run, canceled, started_at, ended_at, result_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		result.ID, result.Instruction, string(result.Status), string(result.State),
		result.Branch, result.CommitSHA, result.Error,
		result.DryRun, result.Canceled,
		result.StartTime.UnixNano(), result.EndTime.UnixNano(),
		string(data),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	for i, o := range result.Outcomes {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO outcomes (run_id, seq, path, status, changed, lines_added, lines_removed, error)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			result.ID, i, o.Path, string(o.Status), o.Changed(), o.LinesAdded, o.LinesRemoved, o.ErrorMessage(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert outcome %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	j.logger.Debug("run recorded", zap.String("task", result.ID), zap.Int("outcomes", len(result.Outcomes)))
	return nil
}

// Recent returns up to limit runs, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := j.db.QueryContext(ctx,
		`SELECT r.id, r.instruction, r.status, r.state, r.branch, r.commit_sha, r.error,
		        r.dry_run, r.canceled, r.started_at, r.ended_at,
		        (SELECT COUNT(*) FROM outcomes o WHERE o.run_id = r.id),
		        (SELECT COUNT(*) FROM outcomes o WHERE o.run_id = r.id AND o.changed = 1)
		 FROM runs r
		 ORDER BY r.started_at DESC, r.rowid DESC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r                Run
			status, state    string
			branch, sha, msg sql.NullString
			started, ended   int64
		)
		if err := rows.Scan(&r.ID, &r.Instruction, &status, &state, &branch, &sha, &msg,
			&r.DryRun, &r.Canceled, &started, &ended, &r.Outcomes, &r.Changed); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.Status = types.TaskStatus(status)
		r.State = types.TaskState(state)
		r.Branch, r.CommitSHA, r.Error = branch.String, sha.String, msg.String
		r.StartTime, r.EndTime = time.Unix(0, started), time.Unix(0, ended)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Get returns the full result of one run. Outcome errors come back as plain
// error values carrying the recorded message.
func (j *Journal) Get(ctx context.Context, id string) (*types.TaskResult, error) {
	var data string
	err := j.db.QueryRowContext(ctx, `SELECT result_json FROM runs WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run %s: %w", id, err)
	}

	var result types.TaskResult
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		return nil, fmt.Errorf("failed to decode run %s: %w", id, err)
	}

	rows, err := j.db.QueryContext(ctx, `SELECT seq, error FROM outcomes WHERE run_id = ? AND error != ''`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load outcomes of %s: %w", id, err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			seq int
			msg string
		)
		if err := rows.Scan(&seq, &msg); err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		if seq >= 0 && seq < len(result.Outcomes) {
			result.Outcomes[seq].Err = errors.New(msg)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &result, nil
}
