package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testVars() *Vars {
	return &Vars{
		Query: "laptop is slow",
		Context: map[string]any{
			"department": "finance",
			"priority":   3,
		},
		Inputs: map[string]any{
			"ticket_id": "IT-4821",
			"diagnosis": map[string]any{"cause": "disk", "confidence": 0.9},
			"ids":       []any{float64(1), float64(2)},
		},
		State: map[string]any{
			"execution_id": "exec-1",
		},
	}
}

func TestFillStringMode(t *testing.T) {
	tests := []struct {
		name string
		tmpl string
		want any
	}{
		{"plain text untouched", "no placeholders here", "no placeholders here"},
		{"query substitution", "user said: {query}", "user said: laptop is slow"},
		{"context key", "dept={context.department}", "dept=finance"},
		{"input key", "ticket {input.ticket_id} created", "ticket IT-4821 created"},
		{"state key", "run {state.execution_id}", "run exec-1"},
		{"missing key becomes empty", "x{input.nope}y", "xy"},
		{"non-string embedded as json", "p={context.priority}", "p=3"},
		{"map embedded as json", "d: {input.diagnosis}", `d: {"cause":"disk","confidence":0.9}`},
		{"unknown source left alone", "{bogus.key}", "{bogus.key}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Fill(tt.tmpl, testVars()))
		})
	}
}

func TestFillWholePlaceholderPreservesType(t *testing.T) {
	vars := testVars()

	got := Fill("{input.diagnosis}", vars)
	m, ok := got.(map[string]any)
	require.True(t, ok, "whole placeholder should keep map type")
	assert.Equal(t, "disk", m["cause"])

	assert.Equal(t, 3, Fill("{context.priority}", vars))
	assert.Equal(t, []any{float64(1), float64(2)}, Fill("{input.ids}", vars))

	// Surrounding whitespace still counts as a whole placeholder.
	assert.Equal(t, 3, Fill("  {context.priority}  ", vars))

	// Missing value in whole-placeholder position is nil, not "".
	assert.Nil(t, Fill("{input.absent}", vars))
}

func TestFillEnvPlaceholder(t *testing.T) {
	t.Setenv("WF_TEST_TOKEN", "s3cret")
	assert.Equal(t, "token=s3cret", Fill("token={env.WF_TEST_TOKEN}", testVars()))
	assert.Equal(t, "s3cret", Fill("{env.WF_TEST_TOKEN}", testVars()))
}

func TestFillJSON(t *testing.T) {
	vars := testVars()

	got, err := FillJSON(`{"ticket": "{input.ticket_id}", "details": "{input.diagnosis}", "note": "dept {context.department}"}`, vars)
	require.NoError(t, err)

	obj, ok := got.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "IT-4821", obj["ticket"])
	assert.Equal(t, "note dept finance", obj["note"])

	details, ok := obj["details"].(map[string]any)
	require.True(t, ok, "whole-placeholder leaf keeps structure")
	assert.Equal(t, 0.9, details["confidence"])
}

func TestFillJSONUndefinedKeyBecomesNull(t *testing.T) {
	got, err := FillJSON(`{"missing": "{input.absent}"}`, testVars())
	require.NoError(t, err)
	obj := got.(map[string]any)
	val, present := obj["missing"]
	assert.True(t, present)
	assert.Nil(t, val)
}

func TestFillJSONNestedArrays(t *testing.T) {
	got, err := FillJSON(`{"rows": [{"id": "{input.ticket_id}"}, {"id": "static"}]}`, testVars())
	require.NoError(t, err)
	rows := got.(map[string]any)["rows"].([]any)
	assert.Equal(t, "IT-4821", rows[0].(map[string]any)["id"])
	assert.Equal(t, "static", rows[1].(map[string]any)["id"])
}

func TestFillJSONBadTemplate(t *testing.T) {
	_, err := FillJSON(`{"unterminated": `, testVars())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBadTemplate)

	// A bare whole placeholder is accepted even though it is not JSON.
	got, err := FillJSON(`{input.diagnosis}`, testVars())
	require.NoError(t, err)
	assert.IsType(t, map[string]any{}, got)
}

func TestFillSQL(t *testing.T) {
	vars := testVars()

	sql, params, err := FillSQL(
		`INSERT INTO tickets (id, dept, note) VALUES ('{input.ticket_id}', "{context.department}", {query})`, vars)
	require.NoError(t, err)
	assert.Equal(t, `INSERT INTO tickets (id, dept, note) VALUES (?, ?, ?)`, sql)
	assert.Equal(t, []any{"IT-4821", "finance", "laptop is slow"}, params)
}

func TestFillSQLMissingValueBindsNull(t *testing.T) {
	sql, params, err := FillSQL(`SELECT * FROM t WHERE a = '{input.absent}'`, testVars())
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM t WHERE a = ?`, sql)
	require.Len(t, params, 1)
	assert.Nil(t, params[0])
}

func TestFillSQLStructuredValueEncodedAsJSON(t *testing.T) {
	_, params, err := FillSQL(`INSERT INTO t (d) VALUES ({input.diagnosis})`, testVars())
	require.NoError(t, err)
	require.Len(t, params, 1)
	assert.JSONEq(t, `{"cause":"disk","confidence":0.9}`, params[0].(string))
}

func TestFillSQLEmptyTemplate(t *testing.T) {
	_, _, err := FillSQL("   ", testVars())
	assert.Error(t, err)
}

func TestFillTextHistory(t *testing.T) {
	vars := testVars()
	vars.History = []map[string]any{{"step_id": "s1", "success": true}}
	out := FillText("so far: {history}", vars)
	assert.Contains(t, out, `"step_id":"s1"`)
}
