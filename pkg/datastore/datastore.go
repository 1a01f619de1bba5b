// Package datastore is the structured data service behind the database_save
// and database_query actions: parameterised queries returning row maps and
// primary-key upserts built from template-resolved objects.
package datastore

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	// SQL drivers
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// identifierRe is the allowed shape for table and column names. Identifiers
// come from workflow definitions, not from end users, but they are still
// never interpolated without this check.
var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// TableSchema describes one table for the admin introspection endpoint.
type TableSchema struct {
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
}

type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Service executes workflow-issued SQL against the application database.
type Service struct {
	db      *sql.DB
	dialect string
}

func New(db *sql.DB, dialect string) (*Service, error) {
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
	return &Service{db: db, dialect: dialect}, nil
}

// Open connects to the database and wraps it in a Service.
func Open(driver, dsn string) (*Service, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	svc, err := New(db, driver)
	if err != nil {
		db.Close()
		return nil, err
	}
	return svc, nil
}

func (s *Service) Close() error {
	return s.db.Close()
}

// Exec runs a statement outside the workflow path (schema setup, fixtures).
func (s *Service) Exec(ctx context.Context, query string, params ...any) error {
	if s.dialect == "postgres" {
		query = convertToPostgresPlaceholders(query)
	}
	_, err := s.db.ExecContext(ctx, query, params...)
	return err
}

// Query runs a parameterised query and returns each row as a column→value
// map. Byte slices are normalised to strings so results serialise cleanly
// into the execution envelope.
func (s *Service) Query(ctx context.Context, query string, params []any) ([]map[string]any, error) {
	if s.dialect == "postgres" {
		query = convertToPostgresPlaceholders(query)
	}

	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	results := []map[string]any{}
	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, err
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = normaliseValue(values[i])
		}
		results = append(results, row)
	}
	return results, rows.Err()
}

// Upsert inserts row into table; on a conflict over pkColumns every non-key
// column is updated from the incoming row. When every column is part of the
// key the statement degrades to insert-or-ignore.
func (s *Service) Upsert(ctx context.Context, table string, row map[string]any, pkColumns []string) error {
	if len(row) == 0 {
		return fmt.Errorf("upsert into %s: row is empty", table)
	}
	if len(pkColumns) == 0 {
		return fmt.Errorf("upsert into %s: primary key columns are required", table)
	}
	if err := checkIdentifier(table); err != nil {
		return err
	}

	columns := make([]string, 0, len(row))
	for col := range row {
		if err := checkIdentifier(col); err != nil {
			return err
		}
		columns = append(columns, col)
	}
	sort.Strings(columns)

	isKey := make(map[string]bool, len(pkColumns))
	for _, col := range pkColumns {
		if err := checkIdentifier(col); err != nil {
			return err
		}
		if _, present := row[col]; !present {
			return fmt.Errorf("upsert into %s: primary key column %s missing from row", table, col)
		}
		isKey[col] = true
	}

	var updates []string
	for _, col := range columns {
		if !isKey[col] {
			updates = append(updates, col)
		}
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	params := make([]any, 0, len(columns))
	for _, col := range columns {
		params = append(params, bindValue(row[col]))
	}

	var query string
	switch s.dialect {
	case "mysql":
		if len(updates) == 0 {
			query = fmt.Sprintf("INSERT IGNORE INTO %s (%s) VALUES (%s)",
				table, strings.Join(columns, ", "), placeholders)
		} else {
			assignments := make([]string, len(updates))
			for i, col := range updates {
				assignments[i] = fmt.Sprintf("%s = VALUES(%s)", col, col)
			}
			query = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON DUPLICATE KEY UPDATE %s",
				table, strings.Join(columns, ", "), placeholders, strings.Join(assignments, ", "))
		}
	default:
		if len(updates) == 0 {
			query = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(%s) DO NOTHING",
				table, strings.Join(columns, ", "), placeholders, strings.Join(pkColumns, ", "))
		} else {
			assignments := make([]string, len(updates))
			for i, col := range updates {
				assignments[i] = fmt.Sprintf("%s = excluded.%s", col, col)
			}
			query = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(%s) DO UPDATE SET %s",
				table, strings.Join(columns, ", "), placeholders, strings.Join(pkColumns, ", "), strings.Join(assignments, ", "))
		}
	}
	if s.dialect == "postgres" {
		query = convertToPostgresPlaceholders(query)
	}

	if _, err := s.db.ExecContext(ctx, query, params...); err != nil {
		return fmt.Errorf("upsert into %s failed: %w", table, err)
	}
	return nil
}

// ListTablesAndSchema enumerates the user tables and their columns.
func (s *Service) ListTablesAndSchema(ctx context.Context) ([]TableSchema, error) {
	names, err := s.tableNames(ctx)
	if err != nil {
		return nil, err
	}

	schemas := make([]TableSchema, 0, len(names))
	for _, name := range names {
		columns, err := s.tableColumns(ctx, name)
		if err != nil {
			return nil, err
		}
		schemas = append(schemas, TableSchema{Name: name, Columns: columns})
	}
	return schemas, nil
}

func (s *Service) tableNames(ctx context.Context) ([]string, error) {
	var query string
	switch s.dialect {
	case "sqlite":
		query = `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`
	case "postgres":
		query = `SELECT tablename FROM pg_tables WHERE schemaname = 'public' ORDER BY tablename`
	case "mysql":
		query = `SELECT table_name FROM information_schema.tables WHERE table_schema = DATABASE() ORDER BY table_name`
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *Service) tableColumns(ctx context.Context, table string) ([]Column, error) {
	if err := checkIdentifier(table); err != nil {
		return nil, err
	}

	if s.dialect == "sqlite" {
		rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		var columns []Column
		for rows.Next() {
			var cid int
			var name, colType string
			var notNull, pk int
			var defaultValue sql.NullString
			if err := rows.Scan(&cid, &name, &colType, &notNull, &defaultValue, &pk); err != nil {
				return nil, err
			}
			columns = append(columns, Column{Name: name, Type: colType})
		}
		return columns, rows.Err()
	}

	query := `SELECT column_name, data_type FROM information_schema.columns WHERE table_name = ? ORDER BY ordinal_position`
	if s.dialect == "postgres" {
		query = convertToPostgresPlaceholders(query)
	}
	rows, err := s.db.QueryContext(ctx, query, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []Column
	for rows.Next() {
		var col Column
		if err := rows.Scan(&col.Name, &col.Type); err != nil {
			return nil, err
		}
		columns = append(columns, col)
	}
	return columns, rows.Err()
}

func checkIdentifier(name string) error {
	if !identifierRe.MatchString(name) {
		return fmt.Errorf("invalid SQL identifier %q", name)
	}
	return nil
}

func normaliseValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

// bindValue converts envelope values the drivers cannot bind directly.
func bindValue(v any) any {
	switch val := v.(type) {
	case nil, string, bool, int, int64, float64, []byte, time.Time:
		return val
	default:
		return fmt.Sprint(val)
	}
}

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
