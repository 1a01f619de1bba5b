package storage

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anuj67851/genai-workflow-maker/pkg/workflow"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleWorkflow(name string) *workflow.Workflow {
	return &workflow.Workflow{
		Name:        name,
		Description: "demo workflow",
		Owner:       "j.doe",
		Triggers:    []string{"it", "support"},
		StartStepID: "greet",
		Steps: map[string]*workflow.Step{
			"greet": {
				StepID:         "greet",
				ActionType:     workflow.ActionDisplayMessage,
				PromptTemplate: "Hello {context.username}",
				OnSuccess:      workflow.End,
			},
		},
		RawDefinition: json.RawMessage(`{"nodes":[],"edges":[]}`),
	}
}

func TestSaveWorkflowAssignsID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.SaveWorkflow(ctx, sampleWorkflow("alpha"))
	require.NoError(t, err)
	assert.Greater(t, id, int64(0))

	id2, err := store.SaveWorkflow(ctx, sampleWorkflow("beta"))
	require.NoError(t, err)
	assert.NotEqual(t, id, id2)
}

func TestSaveWorkflowUpsertsByName(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first, err := store.SaveWorkflow(ctx, sampleWorkflow("alpha"))
	require.NoError(t, err)

	updated := sampleWorkflow("alpha")
	updated.Description = "second revision"
	second, err := store.SaveWorkflow(ctx, updated)
	require.NoError(t, err)
	assert.Equal(t, first, second, "saving under an existing name keeps the id")

	got, err := store.GetWorkflow(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, "second revision", got.Description)
}

func TestGetWorkflowRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	wf := sampleWorkflow("round-trip")
	id, err := store.SaveWorkflow(ctx, wf)
	require.NoError(t, err)

	got, err := store.GetWorkflow(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, wf.Name, got.Name)
	assert.Equal(t, wf.Triggers, got.Triggers)
	assert.Equal(t, wf.StartStepID, got.StartStepID)
	require.Contains(t, got.Steps, "greet")
	assert.Equal(t, workflow.ActionDisplayMessage, got.Steps["greet"].ActionType)
	assert.JSONEq(t, string(wf.RawDefinition), string(got.RawDefinition))

	byName, err := store.GetWorkflowByName(ctx, "round-trip")
	require.NoError(t, err)
	assert.Equal(t, id, byName.ID)
}

func TestGetWorkflowNotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetWorkflow(context.Background(), 999)
	assert.ErrorIs(t, err, ErrWorkflowNotFound)

	_, err = store.GetWorkflowByName(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrWorkflowNotFound)
}

func TestSaveWorkflowRejectsInvalid(t *testing.T) {
	store := newTestStore(t)
	wf := sampleWorkflow("bad")
	wf.Steps["greet"].OnSuccess = "ghost"
	_, err := store.SaveWorkflow(context.Background(), wf)
	assert.Error(t, err)
}

func TestListWorkflows(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	empty, err := store.ListWorkflows(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = store.SaveWorkflow(ctx, sampleWorkflow("alpha"))
	require.NoError(t, err)
	_, err = store.SaveWorkflow(ctx, sampleWorkflow("beta"))
	require.NoError(t, err)

	summaries, err := store.ListWorkflows(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	names := []string{summaries[0].Name, summaries[1].Name}
	assert.ElementsMatch(t, []string{"alpha", "beta"}, names)
	assert.Equal(t, []string{"it", "support"}, summaries[0].Triggers)
}

func TestExecutionStateLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	wfID, err := store.SaveWorkflow(ctx, sampleWorkflow("host"))
	require.NoError(t, err)

	envelope := []byte(`{"execution_id":"exec-1","current_step_id":"greet"}`)
	require.NoError(t, store.SaveExecutionState(ctx, "exec-1", wfID, StatusPaused, envelope))

	got, err := store.GetExecutionState(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, wfID, got.WorkflowID)
	assert.JSONEq(t, string(envelope), string(got.Envelope))

	// Re-save replaces the envelope in place.
	updated := []byte(`{"execution_id":"exec-1","current_step_id":"END"}`)
	require.NoError(t, store.SaveExecutionState(ctx, "exec-1", wfID, StatusPaused, updated))
	got, err = store.GetExecutionState(ctx, "exec-1")
	require.NoError(t, err)
	assert.JSONEq(t, string(updated), string(got.Envelope))

	require.NoError(t, store.DeleteExecutionState(ctx, "exec-1"))
	_, err = store.GetExecutionState(ctx, "exec-1")
	assert.ErrorIs(t, err, ErrExecutionNotFound)

	// Deleting again is a no-op.
	assert.NoError(t, store.DeleteExecutionState(ctx, "exec-1"))
}

func TestGetExecutionStateOnlyReturnsPaused(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	wfID, err := store.SaveWorkflow(ctx, sampleWorkflow("host"))
	require.NoError(t, err)

	require.NoError(t, store.SaveExecutionState(ctx, "exec-1", wfID, "running", []byte(`{}`)))
	_, err = store.GetExecutionState(ctx, "exec-1")
	assert.ErrorIs(t, err, ErrExecutionNotFound)

	require.NoError(t, store.SaveExecutionState(ctx, "exec-1", wfID, StatusPaused, []byte(`{}`)))
	_, err = store.GetExecutionState(ctx, "exec-1")
	assert.NoError(t, err)
}

func TestDeleteWorkflowCascadesExecutionStates(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	wfID, err := store.SaveWorkflow(ctx, sampleWorkflow("doomed"))
	require.NoError(t, err)
	otherID, err := store.SaveWorkflow(ctx, sampleWorkflow("survivor"))
	require.NoError(t, err)

	require.NoError(t, store.SaveExecutionState(ctx, "exec-1", wfID, StatusPaused, []byte(`{}`)))
	require.NoError(t, store.SaveExecutionState(ctx, "exec-2", wfID, StatusPaused, []byte(`{}`)))
	require.NoError(t, store.SaveExecutionState(ctx, "exec-3", otherID, StatusPaused, []byte(`{}`)))

	require.NoError(t, store.DeleteWorkflow(ctx, wfID))

	_, err = store.GetWorkflow(ctx, wfID)
	assert.ErrorIs(t, err, ErrWorkflowNotFound)
	_, err = store.GetExecutionState(ctx, "exec-1")
	assert.ErrorIs(t, err, ErrExecutionNotFound)
	_, err = store.GetExecutionState(ctx, "exec-2")
	assert.ErrorIs(t, err, ErrExecutionNotFound)

	// States of other workflows are untouched.
	_, err = store.GetExecutionState(ctx, "exec-3")
	assert.NoError(t, err)
}

func TestDeleteWorkflowNotFound(t *testing.T) {
	store := newTestStore(t)
	err := store.DeleteWorkflow(context.Background(), 12345)
	assert.ErrorIs(t, err, ErrWorkflowNotFound)
}
