// Package storage persists workflow definitions and paused execution
// envelopes in a SQL database. It supports sqlite, postgres and mysql behind
// one query set written with `?` placeholders, converted for postgres.
// Concurrency is handled by database-level locking (transactions).
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anuj67851/genai-workflow-maker/pkg/workflow"

	// SQL drivers
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

var (
	ErrWorkflowNotFound  = errors.New("workflow not found")
	ErrExecutionNotFound = errors.New("execution state not found")
)

// StatusPaused is the only status under which execution states are readable.
const StatusPaused = "paused"

// ExecutionState is one persisted paused envelope.
type ExecutionState struct {
	ExecutionID string
	WorkflowID  int64
	Status      string
	Envelope    json.RawMessage
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Store is the SQL-backed persistence layer.
type Store struct {
	db      *sql.DB
	dialect string
}

// New wraps an open database connection and creates the schema if needed.
func New(db *sql.DB, dialect string) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	switch dialect {
	case "postgres", "mysql", "sqlite", "sqlite3":
		if dialect == "sqlite3" {
			dialect = "sqlite"
		}
	default:
		return nil, fmt.Errorf("unsupported dialect: %s (supported: postgres, mysql, sqlite)", dialect)
	}

	s := &Store{db: db, dialect: dialect}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// Open connects to the database and initialises the store. The driver name
// doubles as the dialect ("sqlite3", "postgres", "mysql").
func Open(driver, dsn string) (*Store, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	store, err := New(db, driver)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) workflowsSchema() string {
	idColumn := "id INTEGER PRIMARY KEY AUTOINCREMENT"
	switch s.dialect {
	case "postgres":
		idColumn = "id BIGSERIAL PRIMARY KEY"
	case "mysql":
		idColumn = "id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY"
	}
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS workflows (
    %s,
    name VARCHAR(255) NOT NULL UNIQUE,
    description TEXT,
    owner VARCHAR(255),
    triggers TEXT,
    steps TEXT NOT NULL,
    raw_definition TEXT,
    start_step_id VARCHAR(255) NOT NULL,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
)`, idColumn)
}

const executionStatesSchemaSQL = `
CREATE TABLE IF NOT EXISTS execution_states (
    execution_id VARCHAR(255) PRIMARY KEY,
    workflow_id BIGINT NOT NULL,
    status VARCHAR(32) NOT NULL,
    envelope TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
)`

const executionStatesIndexSQL = `
CREATE INDEX IF NOT EXISTS idx_execution_states_workflow ON execution_states(workflow_id)`

func (s *Store) initSchema() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Execute each statement separately for SQLite compatibility.
	statements := []string{
		s.workflowsSchema(),
		executionStatesSchemaSQL,
	}
	if s.dialect != "mysql" {
		statements = append(statements, executionStatesIndexSQL)
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// =============================================================================
// Workflows
// =============================================================================

// SaveWorkflow upserts by name and returns the stored id. A save under an
// existing name replaces the definition but keeps the id, so routing and
// workflow_call references stay valid across edits.
func (s *Store) SaveWorkflow(ctx context.Context, wf *workflow.Workflow) (int64, error) {
	if err := wf.Validate(); err != nil {
		return 0, err
	}

	stepsJSON, err := json.Marshal(wf.Steps)
	if err != nil {
		return 0, fmt.Errorf("failed to serialise steps: %w", err)
	}
	triggersJSON, err := json.Marshal(wf.Triggers)
	if err != nil {
		return 0, fmt.Errorf("failed to serialise triggers: %w", err)
	}

	now := time.Now().UTC()
	var query string
	switch s.dialect {
	case "mysql":
		query = `INSERT INTO workflows (name, description, owner, triggers, steps, raw_definition, start_step_id, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE description = VALUES(description), owner = VALUES(owner), triggers = VALUES(triggers),
steps = VALUES(steps), raw_definition = VALUES(raw_definition), start_step_id = VALUES(start_step_id), updated_at = VALUES(updated_at)`
	default:
		query = `INSERT INTO workflows (name, description, owner, triggers, steps, raw_definition, start_step_id, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(name) DO UPDATE SET description = excluded.description, owner = excluded.owner, triggers = excluded.triggers,
steps = excluded.steps, raw_definition = excluded.raw_definition, start_step_id = excluded.start_step_id, updated_at = excluded.updated_at`
	}
	if s.dialect == "postgres" {
		query = convertToPostgresPlaceholders(query)
	}

	_, err = s.db.ExecContext(ctx, query,
		wf.Name, wf.Description, wf.Owner, string(triggersJSON), string(stepsJSON),
		string(wf.RawDefinition), wf.StartStepID, now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to save workflow %q: %w", wf.Name, err)
	}

	idQuery := `SELECT id FROM workflows WHERE name = ?`
	if s.dialect == "postgres" {
		idQuery = convertToPostgresPlaceholders(idQuery)
	}
	var id int64
	if err := s.db.QueryRowContext(ctx, idQuery, wf.Name).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to read back workflow id: %w", err)
	}
	wf.ID = id
	return id, nil
}

const workflowColumns = `id, name, description, owner, triggers, steps, raw_definition, start_step_id, created_at, updated_at`

// GetWorkflow loads a workflow by id.
func (s *Store) GetWorkflow(ctx context.Context, id int64) (*workflow.Workflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows WHERE id = ?`
	if s.dialect == "postgres" {
		query = convertToPostgresPlaceholders(query)
	}
	return s.scanWorkflow(s.db.QueryRowContext(ctx, query, id))
}

// GetWorkflowByName loads a workflow by its unique name.
func (s *Store) GetWorkflowByName(ctx context.Context, name string) (*workflow.Workflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows WHERE name = ?`
	if s.dialect == "postgres" {
		query = convertToPostgresPlaceholders(query)
	}
	return s.scanWorkflow(s.db.QueryRowContext(ctx, query, name))
}

func (s *Store) scanWorkflow(row *sql.Row) (*workflow.Workflow, error) {
	var wf workflow.Workflow
	var triggersJSON, stepsJSON, rawDefinition string
	err := row.Scan(&wf.ID, &wf.Name, &wf.Description, &wf.Owner, &triggersJSON,
		&stepsJSON, &rawDefinition, &wf.StartStepID, &wf.CreatedAt, &wf.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrWorkflowNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow: %w", err)
	}

	if err := json.Unmarshal([]byte(stepsJSON), &wf.Steps); err != nil {
		return nil, fmt.Errorf("corrupt steps for workflow %d: %w", wf.ID, err)
	}
	if triggersJSON != "" && triggersJSON != "null" {
		if err := json.Unmarshal([]byte(triggersJSON), &wf.Triggers); err != nil {
			return nil, fmt.Errorf("corrupt triggers for workflow %d: %w", wf.ID, err)
		}
	}
	if rawDefinition != "" {
		wf.RawDefinition = json.RawMessage(rawDefinition)
	}
	return &wf, nil
}

// ListWorkflows returns summaries of every stored workflow, newest first.
func (s *Store) ListWorkflows(ctx context.Context) ([]workflow.Summary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description, owner, triggers, updated_at FROM workflows ORDER BY updated_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}
	defer rows.Close()

	summaries := []workflow.Summary{}
	for rows.Next() {
		var sum workflow.Summary
		var triggersJSON string
		if err := rows.Scan(&sum.ID, &sum.Name, &sum.Description, &sum.Owner, &triggersJSON, &sum.UpdatedAt); err != nil {
			return nil, err
		}
		if triggersJSON != "" && triggersJSON != "null" {
			if err := json.Unmarshal([]byte(triggersJSON), &sum.Triggers); err != nil {
				return nil, fmt.Errorf("corrupt triggers for workflow %d: %w", sum.ID, err)
			}
		}
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}

// DeleteWorkflow removes the workflow and every execution state that belongs
// to it, in one transaction.
func (s *Store) DeleteWorkflow(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stateQuery := `DELETE FROM execution_states WHERE workflow_id = ?`
	wfQuery := `DELETE FROM workflows WHERE id = ?`
	if s.dialect == "postgres" {
		stateQuery = convertToPostgresPlaceholders(stateQuery)
		wfQuery = convertToPostgresPlaceholders(wfQuery)
	}

	if _, err := tx.ExecContext(ctx, stateQuery, id); err != nil {
		return fmt.Errorf("failed to delete execution states: %w", err)
	}
	result, err := tx.ExecContext(ctx, wfQuery, id)
	if err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrWorkflowNotFound
	}
	return tx.Commit()
}

// =============================================================================
// Execution states
// =============================================================================

// SaveExecutionState inserts or replaces the persisted envelope for an
// execution. The engine calls this before acknowledging a suspension.
func (s *Store) SaveExecutionState(ctx context.Context, executionID string, workflowID int64, status string, envelope []byte) error {
	now := time.Now().UTC()
	var query string
	switch s.dialect {
	case "mysql":
		query = `INSERT INTO execution_states (execution_id, workflow_id, status, envelope, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE workflow_id = VALUES(workflow_id), status = VALUES(status), envelope = VALUES(envelope), updated_at = VALUES(updated_at)`
	default:
		query = `INSERT INTO execution_states (execution_id, workflow_id, status, envelope, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(execution_id) DO UPDATE SET workflow_id = excluded.workflow_id, status = excluded.status, envelope = excluded.envelope, updated_at = excluded.updated_at`
	}
	if s.dialect == "postgres" {
		query = convertToPostgresPlaceholders(query)
	}

	if _, err := s.db.ExecContext(ctx, query, executionID, workflowID, status, string(envelope), now, now); err != nil {
		return fmt.Errorf("failed to save execution state %s: %w", executionID, err)
	}
	return nil
}

// GetExecutionState returns the persisted state, but only while it is paused.
// Completed or failed executions have no readable state.
func (s *Store) GetExecutionState(ctx context.Context, executionID string) (*ExecutionState, error) {
	query := `SELECT execution_id, workflow_id, status, envelope, created_at, updated_at
FROM execution_states WHERE execution_id = ? AND status = ?`
	if s.dialect == "postgres" {
		query = convertToPostgresPlaceholders(query)
	}

	var state ExecutionState
	var envelope string
	err := s.db.QueryRowContext(ctx, query, executionID, StatusPaused).Scan(
		&state.ExecutionID, &state.WorkflowID, &state.Status, &envelope, &state.CreatedAt, &state.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrExecutionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read execution state: %w", err)
	}
	state.Envelope = json.RawMessage(envelope)
	return &state, nil
}

// DeleteExecutionState removes the persisted envelope. Deleting a missing
// state is not an error; terminal cleanup is idempotent.
func (s *Store) DeleteExecutionState(ctx context.Context, executionID string) error {
	query := `DELETE FROM execution_states WHERE execution_id = ?`
	if s.dialect == "postgres" {
		query = convertToPostgresPlaceholders(query)
	}
	if _, err := s.db.ExecContext(ctx, query, executionID); err != nil {
		return fmt.Errorf("failed to delete execution state %s: %w", executionID, err)
	}
	return nil
}

// convertToPostgresPlaceholders rewrites `?` markers as `$1, $2, ...`.
func convertToPostgresPlaceholders(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 20)
	paramNum := 1
	for _, c := range query {
		if c == '?' {
			b.WriteString(fmt.Sprintf("$%d", paramNum))
			paramNum++
		} else {
			b.WriteRune(c)
		}
	}
	return b.String()
}
