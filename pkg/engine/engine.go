// Package engine drives workflow executions: it dispatches steps to their
// action handlers, routes success and failure edges, pauses on human-input
// steps with a durably persisted envelope, and resumes paused executions.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/anuj67851/genai-workflow-maker/internal/httpclient"
	"github.com/anuj67851/genai-workflow-maker/pkg/datastore"
	"github.com/anuj67851/genai-workflow-maker/pkg/extract"
	"github.com/anuj67851/genai-workflow-maker/pkg/model"
	"github.com/anuj67851/genai-workflow-maker/pkg/storage"
	"github.com/anuj67851/genai-workflow-maker/pkg/tools"
	"github.com/anuj67851/genai-workflow-maker/pkg/vector"
	"github.com/anuj67851/genai-workflow-maker/pkg/workflow"
)

var (
	// ErrNoMatchingWorkflow is returned by routed starts when no stored
	// workflow matches the query.
	ErrNoMatchingWorkflow = errors.New("no workflow matches the query")
)

// maxStepsPerExecution bounds runaway graphs. A legitimate workflow with
// loops stays well below this.
const maxStepsPerExecution = 1000

// httpRequestTimeout applies to http_request steps.
const httpRequestTimeout = 30 * time.Second

// Services are the external capabilities handlers draw on. Chat, Store and
// Tools are required; the rest may be nil, in which case the steps that need
// them fail with a configuration error.
type Services struct {
	Chat      model.ChatService
	Embedder  model.EmbeddingService
	Reranker  model.RerankService
	Store     *storage.Store
	Tools     *tools.Registry
	Vectors   vector.Provider
	Data      *datastore.Service
	Extractor *extract.Service
}

// Engine executes workflows. All exported methods are safe for concurrent
// use; operations on the same execution id are serialised.
type Engine struct {
	services Services
	http     *httpclient.Client

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New builds an engine over the given services.
func New(services Services) (*Engine, error) {
	if services.Chat == nil {
		return nil, fmt.Errorf("chat service is required")
	}
	if services.Store == nil {
		return nil, fmt.Errorf("persistence store is required")
	}
	if services.Tools == nil {
		services.Tools = tools.NewRegistry()
	}
	return &Engine{
		services: services,
		http:     httpclient.New(httpclient.WithTimeout(httpRequestTimeout)),
		locks:    make(map[string]*sync.Mutex),
	}, nil
}

// lockExecution serialises operations on one execution id.
func (e *Engine) lockExecution(executionID string) func() {
	e.mu.Lock()
	lock, ok := e.locks[executionID]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[executionID] = lock
	}
	e.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// =============================================================================
// Control surface
// =============================================================================

// StartExecutionByID starts the given workflow directly.
func (e *Engine) StartExecutionByID(ctx context.Context, workflowID int64, query string, initialContext map[string]any) (*Response, error) {
	wf, err := e.services.Store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	return e.start(ctx, wf, query, initialContext)
}

// StartExecution routes the query against the stored workflows and starts
// the selected one. Returns ErrNoMatchingWorkflow when nothing matches.
func (e *Engine) StartExecution(ctx context.Context, query string, initialContext map[string]any) (*Response, error) {
	wf, err := e.selectWorkflow(ctx, query)
	if err != nil {
		return nil, err
	}
	return e.start(ctx, wf, query, initialContext)
}

func (e *Engine) start(ctx context.Context, wf *workflow.Workflow, query string, initialContext map[string]any) (*Response, error) {
	env := NewEnvelope(uuid.NewString(), wf, query, initialContext)
	unlock := e.lockExecution(env.ExecutionID)
	defer unlock()

	executionsStarted.Inc()
	slog.Info("starting execution",
		"execution_id", env.ExecutionID, "workflow", wf.Name, "workflow_id", wf.ID)
	return e.run(ctx, wf, env)
}

// ResumeExecution feeds a user-supplied value into a paused execution and
// re-enters the driver loop. The value is text for human_input, a list of
// extracted text blocks for file_ingestion, and a list of stored file paths
// for file_storage.
func (e *Engine) ResumeExecution(ctx context.Context, executionID string, value any) (*Response, error) {
	unlock := e.lockExecution(executionID)
	defer unlock()

	state, err := e.services.Store.GetExecutionState(ctx, executionID)
	if err != nil {
		return nil, err
	}
	wf, err := e.services.Store.GetWorkflow(ctx, state.WorkflowID)
	if err != nil {
		return nil, fmt.Errorf("workflow %d for paused execution is gone: %w", state.WorkflowID, err)
	}
	env, err := DecodeEnvelope(state.Envelope)
	if err != nil {
		return e.terminalFailure(ctx, env2(executionID, state.WorkflowID), err.Error())
	}

	step, ok := wf.Step(env.CurrentStepID)
	if !ok {
		return e.terminalFailure(ctx, env,
			fmt.Sprintf("paused step %q no longer exists in workflow %q", env.CurrentStepID, wf.Name))
	}

	if step.OutputKey != "" {
		env.CollectedInputs[step.OutputKey] = value
	}
	env.appendHistory(map[string]any{
		"step_id": step.StepID,
		"type":    string(step.ActionType),
		"event":   "human_input_provided",
	})
	if step.OnSuccess != "" {
		env.CurrentStepID = step.OnSuccess
	} else {
		env.CurrentStepID = workflow.End
	}

	slog.Info("resuming execution", "execution_id", executionID, "step", step.StepID)
	return e.run(ctx, wf, env)
}

// PendingStep returns the step a paused execution is waiting on. Callers use
// it to decide how to interpret the resume value (text, extracted documents,
// or stored file paths).
func (e *Engine) PendingStep(ctx context.Context, executionID string) (*workflow.Step, error) {
	state, err := e.services.Store.GetExecutionState(ctx, executionID)
	if err != nil {
		return nil, err
	}
	wf, err := e.services.Store.GetWorkflow(ctx, state.WorkflowID)
	if err != nil {
		return nil, err
	}
	env, err := DecodeEnvelope(state.Envelope)
	if err != nil {
		return nil, err
	}
	step, ok := wf.Step(env.CurrentStepID)
	if !ok {
		return nil, fmt.Errorf("paused step %q no longer exists", env.CurrentStepID)
	}
	return step, nil
}

// env2 builds a minimal envelope for failure reporting when the stored one
// cannot be decoded.
func env2(executionID string, workflowID int64) *Envelope {
	return &Envelope{ExecutionID: executionID, WorkflowID: workflowID}
}

// =============================================================================
// Driver loop
// =============================================================================

func (e *Engine) run(ctx context.Context, wf *workflow.Workflow, env *Envelope) (*Response, error) {
	// Loop context stack: start_loop step ids for loops currently in flight.
	// In-memory only; loops never cross a suspension.
	var loopStack []string

	for steps := 0; ; steps++ {
		if steps >= maxStepsPerExecution {
			return e.terminalFailure(ctx, env,
				fmt.Sprintf("execution exceeded %d steps; aborting", maxStepsPerExecution))
		}
		if env.CurrentStepID == workflow.End {
			return e.finalise(ctx, env)
		}
		step, ok := wf.Step(env.CurrentStepID)
		if !ok {
			return e.terminalFailure(ctx, env,
				fmt.Sprintf("step %q not found in workflow %q", env.CurrentStepID, wf.Name))
		}

		res := e.dispatch(ctx, step, env)
		recordStep(string(step.ActionType), res)

		switch res.kind {
		case kindSuspend:
			if len(loopStack) > 0 {
				return e.terminalFailure(ctx, env,
					fmt.Sprintf("step %q suspends inside a loop body; loops cannot pause", step.StepID))
			}
			return e.suspendExecution(ctx, env, step, res)

		case kindLoopBodyStart:
			loopStack = append(loopStack, step.StepID)
			env.CurrentStepID = res.nextStepOverride

		case kindLoopIterationComplete:
			if len(loopStack) == 0 {
				return e.terminalFailure(ctx, env,
					fmt.Sprintf("end_loop step %q has no owning start_loop", step.StepID))
			}
			owner := loopStack[len(loopStack)-1]
			loopStack = loopStack[:len(loopStack)-1]
			env.appendHistory(res.historyEntry())
			env.CurrentStepID = owner

		case kindSuccess:
			if step.OutputKey != "" && res.hasOutput {
				env.CollectedInputs[step.OutputKey] = res.output
			}
			env.appendHistory(res.historyEntry())
			switch {
			case res.nextStepOverride != "":
				env.CurrentStepID = res.nextStepOverride
			case step.OnSuccess != "":
				env.CurrentStepID = step.OnSuccess
			default:
				env.CurrentStepID = workflow.End
			}

		case kindFailure:
			env.appendHistory(res.historyEntry())
			slog.Warn("step failed",
				"execution_id", env.ExecutionID, "step", step.StepID,
				"action", step.ActionType, "error", res.errText)
			if step.OnFailure != "" {
				env.CurrentStepID = step.OnFailure
				continue
			}
			return e.terminalFailure(ctx, env,
				fmt.Sprintf("step %q failed: %s", step.StepID, res.errText))
		}
	}
}

// suspendExecution persists the envelope, then acknowledges the pause. The
// persist happens first so a crash after the acknowledgement reproduces the
// same paused state.
func (e *Engine) suspendExecution(ctx context.Context, env *Envelope, step *workflow.Step, res result) (*Response, error) {
	env.appendHistory(map[string]any{
		"step_id":    step.StepID,
		"type":       string(step.ActionType),
		"event":      "human_input_pending",
		"prompt":     res.prompt,
		"output_key": step.OutputKey,
	})

	data, err := env.Encode()
	if err != nil {
		return e.terminalFailure(ctx, env, err.Error())
	}
	if err := e.services.Store.SaveExecutionState(ctx, env.ExecutionID, env.WorkflowID, storage.StatusPaused, data); err != nil {
		return e.terminalFailure(ctx, env, fmt.Sprintf("failed to persist paused state: %v", err))
	}

	executionsSuspended.Inc()
	slog.Info("execution suspended",
		"execution_id", env.ExecutionID, "step", step.StepID, "pause_type", res.pauseType)

	return &Response{
		Status:           res.pauseType,
		ExecutionID:      env.ExecutionID,
		PauseType:        res.pauseType,
		Prompt:           res.prompt,
		OutputKey:        step.OutputKey,
		AllowedFileTypes: step.AllowedFileTypes,
		MaxFiles:         step.MaxFiles,
		StoragePath:      step.StoragePath,
	}, nil
}

// finalise synthesises a final response when no llm_response produced one,
// removes the persisted envelope and reports completion.
func (e *Engine) finalise(ctx context.Context, env *Envelope) (*Response, error) {
	if env.FinalResponse == "" {
		prompt := fmt.Sprintf(
			"A workflow just finished processing the user's request. "+
				"Write a short, friendly summary of the outcome for the user.\n\n"+
				"Original request: %s\n\nExecution history:\n%s",
			env.Query, env.historyJSON())
		resp, err := e.services.Chat.Chat(ctx, &model.ChatRequest{
			Messages:    []model.Message{{Role: "user", Content: prompt}},
			Temperature: model.Float64Ptr(0.5),
		})
		if err != nil {
			slog.Warn("failed to synthesise final response", "execution_id", env.ExecutionID, "error", err)
			env.FinalResponse = "The workflow completed successfully."
		} else {
			env.FinalResponse = strings.TrimSpace(resp.Message.Content)
		}
	}

	if err := e.services.Store.DeleteExecutionState(ctx, env.ExecutionID); err != nil {
		slog.Warn("failed to delete execution state", "execution_id", env.ExecutionID, "error", err)
	}

	executionsCompleted.Inc()
	slog.Info("execution completed", "execution_id", env.ExecutionID, "steps", len(env.StepHistory))
	return &Response{Status: StatusCompleted, Response: env.FinalResponse, Envelope: env}, nil
}

// terminalFailure reports a non-recoverable failure and removes any persisted
// envelope for the execution.
func (e *Engine) terminalFailure(ctx context.Context, env *Envelope, errText string) (*Response, error) {
	if err := e.services.Store.DeleteExecutionState(ctx, env.ExecutionID); err != nil {
		slog.Warn("failed to delete execution state", "execution_id", env.ExecutionID, "error", err)
	}

	executionsFailed.Inc()
	slog.Error("execution failed", "execution_id", env.ExecutionID, "error", errText)
	return &Response{Status: StatusFailed, Error: errText, ExecutionID: env.ExecutionID}, nil
}

// =============================================================================
// Workflow routing
// =============================================================================

// selectWorkflow asks the model to pick the stored workflow matching a
// natural-language query. The model answers with a workflow name, which is
// resolved back to the stored id.
func (e *Engine) selectWorkflow(ctx context.Context, query string) (*workflow.Workflow, error) {
	summaries, err := e.services.Store.ListWorkflows(ctx)
	if err != nil {
		return nil, err
	}
	if len(summaries) == 0 {
		return nil, ErrNoMatchingWorkflow
	}

	var catalogue strings.Builder
	for _, sum := range summaries {
		fmt.Fprintf(&catalogue, "- name: %s\n  triggers: %s\n  description: %s\n",
			sum.Name, strings.Join(sum.Triggers, ", "), sum.Description)
	}

	prompt := fmt.Sprintf(
		"Select the workflow that best handles the user's request.\n\n"+
			"Available workflows:\n%s\n"+
			"User request: %s\n\n"+
			"Answer with exactly one workflow name from the list, or NONE if no workflow applies.",
		catalogue.String(), query)

	resp, err := e.services.Chat.Chat(ctx, &model.ChatRequest{
		Messages:    []model.Message{{Role: "user", Content: prompt}},
		Temperature: model.Float64Ptr(0),
	})
	if err != nil {
		return nil, fmt.Errorf("workflow routing failed: %w", err)
	}

	name := strings.Trim(strings.TrimSpace(resp.Message.Content), `"'`)
	if name == "" || strings.EqualFold(name, "NONE") {
		return nil, ErrNoMatchingWorkflow
	}
	for _, sum := range summaries {
		if strings.EqualFold(sum.Name, name) {
			return e.services.Store.GetWorkflow(ctx, sum.ID)
		}
	}
	return nil, fmt.Errorf("%w: router picked unknown workflow %q", ErrNoMatchingWorkflow, name)
}
