package datastore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc, err := Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })

	require.NoError(t, svc.Exec(context.Background(), `
		CREATE TABLE tickets (
			ticket_id TEXT PRIMARY KEY,
			username TEXT,
			summary TEXT,
			priority TEXT
		)`))
	return svc
}

func TestQueryReturnsRowMaps(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Exec(ctx,
		`INSERT INTO tickets (ticket_id, username, summary, priority) VALUES (?, ?, ?, ?)`,
		"IT-0001", "j.doe", "cracked screen", "High"))

	rows, err := svc.Query(ctx, `SELECT ticket_id, username FROM tickets WHERE priority = ?`, []any{"High"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "IT-0001", rows[0]["ticket_id"])
	assert.Equal(t, "j.doe", rows[0]["username"])
}

func TestQueryEmptyResult(t *testing.T) {
	svc := newTestService(t)
	rows, err := svc.Query(context.Background(), `SELECT * FROM tickets`, nil)
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.NotNil(t, rows, "empty result is a list, not nil")
}

func TestUpsertInsertsThenUpdates(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	row := map[string]any{
		"ticket_id": "IT-0002",
		"username":  "a.smith",
		"summary":   "vpn broken",
		"priority":  "Medium",
	}
	require.NoError(t, svc.Upsert(ctx, "tickets", row, []string{"ticket_id"}))

	row["priority"] = "High"
	require.NoError(t, svc.Upsert(ctx, "tickets", row, []string{"ticket_id"}))

	rows, err := svc.Query(ctx, `SELECT priority FROM tickets WHERE ticket_id = ?`, []any{"IT-0002"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "High", rows[0]["priority"])
}

func TestUpsertAllColumnsArePK(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	require.NoError(t, svc.Exec(ctx, `CREATE TABLE tags (name TEXT PRIMARY KEY)`))

	row := map[string]any{"name": "urgent"}
	require.NoError(t, svc.Upsert(ctx, "tags", row, []string{"name"}))
	// Insert-or-ignore on re-save.
	require.NoError(t, svc.Upsert(ctx, "tags", row, []string{"name"}))

	rows, err := svc.Query(ctx, `SELECT count(*) AS n FROM tags`, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, rows[0]["n"])
}

func TestUpsertValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	assert.Error(t, svc.Upsert(ctx, "tickets", map[string]any{}, []string{"ticket_id"}),
		"empty row")
	assert.Error(t, svc.Upsert(ctx, "tickets", map[string]any{"a": 1}, nil),
		"missing pk columns")
	assert.Error(t, svc.Upsert(ctx, "tickets; DROP TABLE tickets", map[string]any{"a": 1}, []string{"a"}),
		"malformed table name")
	assert.Error(t, svc.Upsert(ctx, "tickets", map[string]any{"bad-col": 1}, []string{"bad-col"}),
		"malformed column name")
	assert.Error(t, svc.Upsert(ctx, "tickets", map[string]any{"username": "x"}, []string{"ticket_id"}),
		"pk column absent from row")
}

func TestListTablesAndSchema(t *testing.T) {
	svc := newTestService(t)

	schemas, err := svc.ListTablesAndSchema(context.Background())
	require.NoError(t, err)
	require.Len(t, schemas, 1)
	assert.Equal(t, "tickets", schemas[0].Name)

	names := make([]string, 0, len(schemas[0].Columns))
	for _, col := range schemas[0].Columns {
		names = append(names, col.Name)
	}
	assert.ElementsMatch(t, []string{"ticket_id", "username", "summary", "priority"}, names)
}
