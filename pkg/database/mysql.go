package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"dev/bravebird/ui-verify/pkg/models"

	_ "github.com/go-sql-driver/mysql"
)

// DB represents the database connection
type DB struct {
	conn *sql.DB
}

// New creates a new database connection
func New(dsn string) (*DB, error) {
	conn, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{conn: conn}, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS scenario_runs (
		id VARCHAR(36) PRIMARY KEY,
		scenario VARCHAR(255) NOT NULL,
		base_url VARCHAR(2048) NOT NULL DEFAULT '',
		temporal_run_id VARCHAR(255) NOT NULL DEFAULT '',
		temporal_workflow_id VARCHAR(255) NOT NULL DEFAULT '',
		status VARCHAR(32) NOT NULL,
		started_at DATETIME NULL,
		completed_at DATETIME NULL,
		error_message TEXT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		INDEX idx_scenario_runs_scenario (scenario, created_at)
	)`,
	`CREATE TABLE IF NOT EXISTS step_results (
		run_id VARCHAR(36) NOT NULL,
		step_index INT NOT NULL,
		step_type VARCHAR(32) NOT NULL,
		status VARCHAR(32) NOT NULL,
		screenshot_path VARCHAR(2048) NOT NULL DEFAULT '',
		content MEDIUMTEXT NULL,
		console_messages JSON NULL,
		error_message TEXT NULL,
		duration_ms BIGINT NOT NULL DEFAULT 0,
		PRIMARY KEY (run_id, step_index),
		FOREIGN KEY (run_id) REFERENCES scenario_runs(id) ON DELETE CASCADE
	)`,
}

// Migrate creates the tables if they do not exist
func (db *DB) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate schema: %w", err)
		}
	}
	return nil
}

// ==================== Scenario Runs ====================

// CreateRun creates a new scenario run
func (db *DB) CreateRun(ctx context.Context, run *models.ScenarioRun) error {
	query := `
		INSERT INTO scenario_runs (id, scenario, base_url, temporal_run_id, temporal_workflow_id, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.conn.ExecContext(ctx, query,
		run.ID,
		run.Scenario,
		run.BaseURL,
		run.TemporalRunID,
		run.TemporalWorkflowID,
		run.Status,
		run.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// MarkRunStarted records the Temporal execution backing a run. Only a pending
// run moves to running; a run the workflow already finished keeps its status.
func (db *DB) MarkRunStarted(ctx context.Context, id, workflowID, runID string, startedAt time.Time) error {
	query := `
		UPDATE scenario_runs
		SET temporal_workflow_id = ?, temporal_run_id = ?,
		    status = CASE WHEN status = ? THEN ? ELSE status END,
		    started_at = COALESCE(started_at, ?)
		WHERE id = ?
	`

	_, err := db.conn.ExecContext(ctx, query, workflowID, runID,
		models.StatusPending, models.StatusRunning, startedAt, id)
	return err
}

const runColumns = `id, scenario, base_url, temporal_run_id, temporal_workflow_id, status,
		       started_at, completed_at, error_message`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (models.ScenarioRun, error) {
	var run models.ScenarioRun
	var errMsg sql.NullString
	err := row.Scan(
		&run.ID,
		&run.Scenario,
		&run.BaseURL,
		&run.TemporalRunID,
		&run.TemporalWorkflowID,
		&run.Status,
		&run.StartedAt,
		&run.CompletedAt,
		&errMsg,
	)
	run.ErrorMessage = errMsg.String
	return run, err
}

// GetRun retrieves a scenario run by ID. A missing run returns nil, nil.
func (db *DB) GetRun(ctx context.Context, id string) (*models.ScenarioRun, error) {
	query := `SELECT ` + runColumns + ` FROM scenario_runs WHERE id = ?`

	run, err := scanRun(db.conn.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	return &run, nil
}

// ListRuns retrieves the most recent runs, optionally filtered by scenario name
func (db *DB) ListRuns(ctx context.Context, scenario string, limit int) ([]models.ScenarioRun, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + runColumns + ` FROM scenario_runs`
	args := []interface{}{}
	if scenario != "" {
		query += ` WHERE scenario = ?`
		args = append(args, scenario)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []models.ScenarioRun{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// UpdateRunStatus updates the status of a scenario run
func (db *DB) UpdateRunStatus(ctx context.Context, id string, status models.RunStatus, errorMsg string) error {
	query := `
		UPDATE scenario_runs
		SET status = ?, error_message = ?,
		    completed_at = CASE WHEN ? IN ('success', 'failed', 'canceled') THEN NOW() ELSE completed_at END
		WHERE id = ?
	`

	_, err := db.conn.ExecContext(ctx, query, status, errorMsg, status, id)
	return err
}

// ==================== Step Results ====================

// SaveRunResult stores the final status and step results of a run in one transaction
func (db *DB) SaveRunResult(ctx context.Context, result models.ScenarioResult) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		UPDATE scenario_runs
		SET status = ?, error_message = ?, completed_at = NOW()
		WHERE id = ?
	`, result.Status, result.ErrorMessage, result.RunID)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM step_results WHERE run_id = ?`, result.RunID); err != nil {
		return fmt.Errorf("failed to clear step results: %w", err)
	}

	query := `
		INSERT INTO step_results (run_id, step_index, step_type, status, screenshot_path,
		                          content, console_messages, error_message, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	for _, step := range result.Steps {
		console, err := encodeConsole(step.ConsoleMessages)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, query,
			result.RunID,
			step.Index,
			step.Type,
			step.Status,
			step.ScreenshotPath,
			nullString(step.Content),
			console,
			nullString(step.ErrorMessage),
			step.Duration,
		)
		if err != nil {
			return fmt.Errorf("failed to insert step result %d: %w", step.Index, err)
		}
	}

	return tx.Commit()
}

// GetStepResults retrieves step results for a run in step order
func (db *DB) GetStepResults(ctx context.Context, runID string) ([]models.StepResult, error) {
	query := `
		SELECT step_index, step_type, status, screenshot_path, content,
		       console_messages, error_message, duration_ms
		FROM step_results
		WHERE run_id = ?
		ORDER BY step_index
	`

	rows, err := db.conn.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get results: %w", err)
	}
	defer rows.Close()

	results := []models.StepResult{}
	for rows.Next() {
		var (
			result  models.StepResult
			content sql.NullString
			console sql.NullString
			errMsg  sql.NullString
		)
		err := rows.Scan(
			&result.Index,
			&result.Type,
			&result.Status,
			&result.ScreenshotPath,
			&content,
			&console,
			&errMsg,
			&result.Duration,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		result.Content = content.String
		result.ErrorMessage = errMsg.String
		if result.ConsoleMessages, err = decodeConsole(console); err != nil {
			return nil, err
		}
		results = append(results, result)
	}

	return results, rows.Err()
}

// ==================== Helpers ====================

func encodeConsole(msgs []models.ConsoleMessage) (sql.NullString, error) {
	if len(msgs) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(msgs)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode console messages: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func decodeConsole(s sql.NullString) ([]models.ConsoleMessage, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	var msgs []models.ConsoleMessage
	if err := json.Unmarshal([]byte(s.String), &msgs); err != nil {
		return nil, fmt.Errorf("failed to decode console messages: %w", err)
	}
	return msgs, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
