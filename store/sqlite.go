// Package store keeps the history of workflow runs in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/GraphResearcher/AutoData/engine"
	"github.com/GraphResearcher/AutoData/types"
)

// MemoryPath opens a private in-memory database
const MemoryPath = ":memory:"

var ErrRunNotFound = errors.New("run not found")

// timeLayout keeps every stored timestamp the same width so that text
// ordering matches time ordering
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id TEXT PRIMARY KEY,
	project_name TEXT NOT NULL,
	target_url TEXT,
	query TEXT,
	started_at TEXT,
	finished_at TEXT,
	is_complete INTEGER NOT NULL DEFAULT 0,
	stop_reason TEXT,
	total_tasks INTEGER NOT NULL DEFAULT 0,
	failed_tasks INTEGER NOT NULL DEFAULT 0,
	error_count INTEGER NOT NULL DEFAULT 0,
	articles_count INTEGER NOT NULL DEFAULT 0,
	csv_output_path TEXT,
	report_json TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	run_id TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
	seq INTEGER NOT NULL,
	type TEXT NOT NULL,
	status TEXT NOT NULL,
	assigned_to TEXT,
	input_json TEXT,
	output_json TEXT,
	error TEXT,
	created_at TEXT,
	started_at TEXT,
	completed_at TEXT
);

CREATE INDEX IF NOT EXISTS idx_tasks_run ON tasks(run_id, seq);
`

// Store persists run reports and task histories
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// Every connection to :memory: is a separate database
	if path == MemoryPath {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRun stores the report and replaces the task history of the run
func (s *Store) SaveRun(ctx context.Context, report engine.Report, st *types.State) (err error) {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs (
			run_id, project_name, target_url, query, started_at, finished_at,
			is_complete, stop_reason, total_tasks, failed_tasks, error_count,
			articles_count, csv_output_path, report_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		report.RunID, report.ProjectName, report.TargetURL, report.Query,
		formatTime(report.StartedAt), formatTime(report.FinishedAt),
		report.IsComplete, report.StopReason, report.TotalTasks, report.FailedTasks,
		report.ErrorCount, report.ArticlesCount, report.CSVOutputPath, string(reportJSON),
	)
	if err != nil {
		return fmt.Errorf("save run %s: %w", report.RunID, err)
	}

	if st == nil {
		return tx.Commit()
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM tasks WHERE run_id = ?`, report.RunID); err != nil {
		return fmt.Errorf("clear tasks of %s: %w", report.RunID, err)
	}
	for i, t := range st.TaskHistory {
		var input, output []byte
		if input, err = json.Marshal(t.Input); err != nil {
			return fmt.Errorf("marshal input of task %s: %w", t.ID, err)
		}
		if output, err = json.Marshal(t.Output); err != nil {
			return fmt.Errorf("marshal output of task %s: %w", t.ID, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO tasks (
				id, run_id, seq, type, status, assigned_to, input_json, output_json,
				error, created_at, started_at, completed_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID, report.RunID, i, string(t.Type), string(t.Status), string(t.AssignedTo),
			string(input), string(output), t.Error,
			formatTime(t.CreatedAt), formatTimePtr(t.StartedAt), formatTimePtr(t.CompletedAt),
		)
		if err != nil {
			return fmt.Errorf("save task %s: %w", t.ID, err)
		}
	}
	return tx.Commit()
}

// GetRun returns the stored report of a run
func (s *Store) GetRun(ctx context.Context, runID string) (engine.Report, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT report_json FROM runs WHERE run_id = ?`, runID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return engine.Report{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return engine.Report{}, fmt.Errorf("get run %s: %w", runID, err)
	}
	var r engine.Report
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return engine.Report{}, fmt.Errorf("decode run %s: %w", runID, err)
	}
	return r, nil
}

// ListRuns returns the most recent reports, newest first
func (s *Store) ListRuns(ctx context.Context, limit int) ([]engine.Report, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `SELECT report_json FROM runs ORDER BY started_at DESC, run_id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []engine.Report
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var r engine.Report
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, fmt.Errorf("decode run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListTasks returns the task history of a run in dispatch order
func (s *Store) ListTasks(ctx context.Context, runID string) ([]*types.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, status, assigned_to, input_json, output_json, error,
		       created_at, started_at, completed_at
		FROM tasks WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("list tasks of %s: %w", runID, err)
	}
	defer rows.Close()

	var out []*types.Task
	for rows.Next() {
		var (
			t                            types.Task
			taskType, status, assignedTo string
			input, output, taskErr       sql.NullString
			created, started, completed  sql.NullString
		)
		if err := rows.Scan(&t.ID, &taskType, &status, &assignedTo, &input, &output, &taskErr,
			&created, &started, &completed); err != nil {
			return nil, err
		}
		t.Type = types.TaskType(taskType)
		t.Status = types.TaskStatus(status)
		t.AssignedTo = types.AgentRole(assignedTo)
		t.Error = taskErr.String
		if err := decodeMap(input, &t.Input); err != nil {
			return nil, fmt.Errorf("decode input of task %s: %w", t.ID, err)
		}
		if err := decodeMap(output, &t.Output); err != nil {
			return nil, fmt.Errorf("decode output of task %s: %w", t.ID, err)
		}
		t.CreatedAt = parseTime(created.String)
		t.StartedAt = parseTimePtr(started)
		t.CompletedAt = parseTimePtr(completed)
		out = append(out, &t)
	}
	return out, rows.Err()
}

func decodeMap(s sql.NullString, dst *map[string]any) error {
	if !s.Valid || s.String == "" || s.String == "null" {
		return nil
	}
	return json.Unmarshal([]byte(s.String), dst)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

// parseTime accepts any fractional precision
func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseTimePtr(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := parseTime(s.String)
	return &t
}
