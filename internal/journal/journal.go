// Package journal provides SQLite-based persistence for sync runs.
// Every full reindex and webhook batch is recorded with the object IDs it
// wrote and deleted, so operators can see what changed and when.
package journal

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kilupskalvis/contentsync/internal/models"
	_ "modernc.org/sqlite"
)

const currentSchemaVersion = 1

// timeLayout is fixed width so that stored timestamps sort as text
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrRunNotFound is returned when no run matches an ID prefix
var ErrRunNotFound = errors.New("run not found")

// Journal represents the SQLite run journal
type Journal struct {
	db *sql.DB
}

// New opens or creates the journal database at dbPath
func New(dbPath string) (*Journal, error) {
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create journal directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	return &Journal{db: db}, nil
}

// Close closes the database connection
func (j *Journal) Close() error {
	return j.db.Close()
}

// Initialize creates the database schema
func (j *Journal) Initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sync_runs (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		codenames JSON,
		upserted JSON,
		deleted JSON,
		error TEXT
	);

	CREATE TABLE IF NOT EXISTS journal_schema_version (
		version INTEGER PRIMARY KEY
	);

	CREATE INDEX IF NOT EXISTS idx_sync_runs_started ON sync_runs(started_at);
	`

	if _, err := j.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	_, err := j.db.Exec("INSERT OR REPLACE INTO journal_schema_version (version) VALUES (?)", currentSchemaVersion)
	if err != nil {
		return fmt.Errorf("failed to set schema version: %w", err)
	}
	return nil
}

// Record stores a finished run
func (j *Journal) Record(run *models.SyncRun) error {
	codenames, err := json.Marshal(nonNil(run.Codenames))
	if err != nil {
		return fmt.Errorf("marshal codenames: %w", err)
	}
	upserted, err := json.Marshal(nonNil(run.Upserted))
	if err != nil {
		return fmt.Errorf("marshal upserted: %w", err)
	}
	deleted, err := json.Marshal(nonNil(run.Deleted))
	if err != nil {
		return fmt.Errorf("marshal deleted: %w", err)
	}

	var errText sql.NullString
	if run.Error != "" {
		errText = sql.NullString{String: run.Error, Valid: true}
	}

	_, err = j.db.Exec(`
		INSERT OR REPLACE INTO sync_runs (id, kind, started_at, finished_at, codenames, upserted, deleted, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, string(run.Kind),
		run.StartedAt.UTC().Format(timeLayout),
		run.FinishedAt.UTC().Format(timeLayout),
		string(codenames), string(upserted), string(deleted), errText,
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ShortID(), err)
	}
	return nil
}

// Recent returns up to limit runs, newest first. A limit <= 0 returns all runs.
func (j *Journal) Recent(limit int) ([]*models.SyncRun, error) {
	query := `
		SELECT id, kind, started_at, finished_at, codenames, upserted, deleted, error
		FROM sync_runs ORDER BY started_at DESC, id`
	var args []interface{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := j.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.SyncRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetByShortID retrieves a run by ID prefix
func (j *Journal) GetByShortID(shortID string) (*models.SyncRun, error) {
	row := j.db.QueryRow(`
		SELECT id, kind, started_at, finished_at, codenames, upserted, deleted, error
		FROM sync_runs WHERE id LIKE ? ORDER BY started_at DESC LIMIT 1`, shortID+"%")
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, shortID)
	}
	return run, err
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row scanner) (*models.SyncRun, error) {
	var run models.SyncRun
	var kind, startedAt string
	var finishedAt, codenames, upserted, deleted, errText sql.NullString

	if err := row.Scan(&run.ID, &kind, &startedAt, &finishedAt, &codenames, &upserted, &deleted, &errText); err != nil {
		return nil, err
	}

	run.Kind = models.RunKind(kind)
	run.StartedAt = parseTimestamp(startedAt)
	if finishedAt.Valid {
		run.FinishedAt = parseTimestamp(finishedAt.String)
	}
	if errText.Valid {
		run.Error = errText.String
	}

	for _, f := range []struct {
		src sql.NullString
		dst *[]string
	}{
		{codenames, &run.Codenames},
		{upserted, &run.Upserted},
		{deleted, &run.Deleted},
	} {
		*f.dst = []string{}
		if !f.src.Valid || f.src.String == "" {
			continue
		}
		if err := json.Unmarshal([]byte(f.src.String), f.dst); err != nil {
			return nil, fmt.Errorf("unmarshal run %s: %w", run.ID, err)
		}
	}

	return &run, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// parseTimestamp parses a timestamp string from SQLite in various formats
func parseTimestamp(s string) time.Time {
	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02 15:04:05-07:00",
		"2006-01-02 15:04:05",
	}
	for _, f := range formats {
		if t, err := time.Parse(f, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
