// Package journal keeps a local SQLite record of every launch: terminal
// phase, exit code and the full transition history. The journal is written
// on the container's own filesystem layer, so like every other side effect
// of the sequence it lives exactly as long as the container does.
package journal

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hookline/stagezero/pkg/lifecycle"
)

// Record is one launch outcome.
type Record struct {
	RunID       string                 `json:"run_id" yaml:"run_id"`
	Service     string                 `json:"service" yaml:"service"`
	BaseImage   string                 `json:"base_image" yaml:"base_image"`
	WorkDir     string                 `json:"workdir" yaml:"workdir"`
	Artifact    string                 `json:"artifact" yaml:"artifact"`
	Phase       lifecycle.Phase        `json:"phase" yaml:"phase"`
	Reason      lifecycle.ExitReason   `json:"reason" yaml:"reason"`
	ExitCode    int                    `json:"exit_code" yaml:"exit_code"`
	Error       string                 `json:"error,omitempty" yaml:"error,omitempty"`
	StartedAt   time.Time              `json:"started_at" yaml:"started_at"`
	FinishedAt  time.Time              `json:"finished_at" yaml:"finished_at"`
	Transitions []lifecycle.Transition `json:"transitions,omitempty" yaml:"transitions,omitempty"`
}

// Journal is a SQLite-backed launch log.
type Journal struct {
	db *sql.DB
	mu sync.Mutex
}

// Open creates or opens the journal database.
func Open(path string) (*Journal, error) {
	// WAL plus a busy timeout keeps the single writer robust if a
	// sidecar reads the journal while a launch is still running.
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", path)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	j := &Journal{db: db}
	if err := j.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize journal schema: %w", err)
	}
	return j, nil
}

func (j *Journal) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS launches (
		run_id TEXT PRIMARY KEY,
		service TEXT NOT NULL,
		base_image TEXT NOT NULL,
		workdir TEXT NOT NULL,
		artifact TEXT NOT NULL,
		phase TEXT NOT NULL,
		reason TEXT NOT NULL,
		exit_code INTEGER NOT NULL,
		error TEXT,
		started_at DATETIME NOT NULL,
		finished_at DATETIME NOT NULL,
		transitions TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_launches_started_at ON launches(started_at);
	`
	_, err := j.db.Exec(schema)
	return err
}

// Append stores one launch record.
func (j *Journal) Append(rec Record) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	transitions, err := json.Marshal(rec.Transitions)
	if err != nil {
		return fmt.Errorf("marshal transitions: %w", err)
	}

	_, err = j.db.Exec(`
		INSERT OR REPLACE INTO launches
		(run_id, service, base_image, workdir, artifact, phase, reason, exit_code, error, started_at, finished_at, transitions)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.RunID, rec.Service, rec.BaseImage, rec.WorkDir, rec.Artifact,
		string(rec.Phase), string(rec.Reason), rec.ExitCode, rec.Error,
		rec.StartedAt, rec.FinishedAt, string(transitions))

	return err
}

// Recent returns the most recent launches, newest first.
func (j *Journal) Recent(limit int) ([]Record, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.Query(`
		SELECT run_id, service, base_image, workdir, artifact, phase, reason, exit_code, error, started_at, finished_at, transitions
		FROM launches
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query launches: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var phase, reason, transitionsJSON string
		var errText sql.NullString

		if err := rows.Scan(&rec.RunID, &rec.Service, &rec.BaseImage, &rec.WorkDir,
			&rec.Artifact, &phase, &reason, &rec.ExitCode, &errText,
			&rec.StartedAt, &rec.FinishedAt, &transitionsJSON); err != nil {
			return nil, fmt.Errorf("scan launch: %w", err)
		}

		rec.Phase = lifecycle.Phase(phase)
		rec.Reason = lifecycle.ExitReason(reason)
		rec.Error = errText.String
		if transitionsJSON != "" && transitionsJSON != "null" {
			if err := json.Unmarshal([]byte(transitionsJSON), &rec.Transitions); err != nil {
				return nil, fmt.Errorf("parse transitions for %s: %w", rec.RunID, err)
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}
