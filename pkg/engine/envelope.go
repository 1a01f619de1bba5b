package engine

import (
	"encoding/json"
	"fmt"

	"github.com/anuj67851/genai-workflow-maker/pkg/template"
	"github.com/anuj67851/genai-workflow-maker/pkg/workflow"
)

// Envelope is the durable state of one execution. It is owned by the engine
// while a step runs and by the persistence store while suspended; it is never
// shared concurrently.
type Envelope struct {
	ExecutionID     string           `json:"execution_id"`
	WorkflowID      int64            `json:"workflow_id"`
	Query           string           `json:"query"`
	InitialContext  map[string]any   `json:"initial_context,omitempty"`
	CollectedInputs map[string]any   `json:"collected_inputs"`
	StepHistory     []map[string]any `json:"step_history"`
	CurrentStepID   string           `json:"current_step_id"`
	FinalResponse   string           `json:"final_response,omitempty"`
}

// NewEnvelope initialises the state for a fresh execution positioned at the
// workflow's start step.
func NewEnvelope(executionID string, wf *workflow.Workflow, query string, initialContext map[string]any) *Envelope {
	return &Envelope{
		ExecutionID:     executionID,
		WorkflowID:      wf.ID,
		Query:           query,
		InitialContext:  initialContext,
		CollectedInputs: make(map[string]any),
		StepHistory:     []map[string]any{},
		CurrentStepID:   wf.StartStepID,
	}
}

// DecodeEnvelope restores a persisted envelope.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("corrupt execution envelope: %w", err)
	}
	if env.CollectedInputs == nil {
		env.CollectedInputs = make(map[string]any)
	}
	return &env, nil
}

// Encode serialises the envelope for persistence.
func (e *Envelope) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to serialise envelope: %w", err)
	}
	return data, nil
}

// Vars exposes the envelope to the template evaluator.
func (e *Envelope) Vars() *template.Vars {
	return &template.Vars{
		Query:   e.Query,
		Context: e.InitialContext,
		Inputs:  e.CollectedInputs,
		State: map[string]any{
			"execution_id":    e.ExecutionID,
			"workflow_id":     e.WorkflowID,
			"query":           e.Query,
			"current_step_id": e.CurrentStepID,
			"final_response":  e.FinalResponse,
		},
		History: e.StepHistory,
	}
}

// appendHistory records one step result or marker. History is append-only.
func (e *Envelope) appendHistory(entry map[string]any) {
	e.StepHistory = append(e.StepHistory, entry)
}

// lastHistory returns the most recent history entry, or nil.
func (e *Envelope) lastHistory() map[string]any {
	if len(e.StepHistory) == 0 {
		return nil
	}
	return e.StepHistory[len(e.StepHistory)-1]
}

// historyJSON renders the step history for LLM prompts.
func (e *Envelope) historyJSON() string {
	data, err := json.Marshal(e.StepHistory)
	if err != nil {
		return "[]"
	}
	return string(data)
}
