package engine

import (
	"github.com/anuj67851/genai-workflow-maker/pkg/workflow"
)

// Pause types reported to the caller while an execution waits for input.
const (
	PauseAwaitingInput      = "awaiting_input"
	PauseAwaitingFileUpload = "awaiting_file_upload"
)

// Execution statuses in the control-surface response.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// resultKind classifies what a handler asks the driver loop to do next.
type resultKind int

const (
	kindSuccess resultKind = iota
	kindFailure
	kindSuspend
	kindLoopBodyStart
	kindLoopIterationComplete
)

// result is the record a handler returns to the driver loop.
type result struct {
	kind   resultKind
	step   *workflow.Step
	output any

	// hasOutput distinguishes "output is nil" from "no output produced";
	// only results with an output feed output_key writes.
	hasOutput bool

	// errText is set on failure results.
	errText string

	// nextStepOverride redirects routing away from on_success
	// (intelligent_router, loop body entry).
	nextStepOverride string

	// pauseType and prompt describe a suspension to the caller.
	pauseType string
	prompt    string

	// extra fields are merged into the history entry (tool_name, tool_args).
	extra map[string]any
}

func success(step *workflow.Step, output any) result {
	return result{kind: kindSuccess, step: step, output: output, hasOutput: true}
}

func failure(step *workflow.Step, errText string) result {
	return result{kind: kindFailure, step: step, errText: errText}
}

func suspend(step *workflow.Step, pauseType, prompt string) result {
	return result{kind: kindSuspend, step: step, pauseType: pauseType, prompt: prompt}
}

// historyEntry renders the result as a step_history record.
func (r result) historyEntry() map[string]any {
	entry := map[string]any{
		"step_id": r.step.StepID,
		"type":    string(r.step.ActionType),
		"success": r.kind != kindFailure,
	}
	if r.hasOutput {
		entry["output"] = r.output
	}
	if r.errText != "" {
		entry["error"] = r.errText
	}
	for k, v := range r.extra {
		entry[k] = v
	}
	return entry
}

// Response is the control-surface view of an execution's state after a call
// to Start or Resume.
type Response struct {
	Status   string `json:"status"`
	Response string `json:"response,omitempty"`
	Error    string `json:"error,omitempty"`

	// Suspension fields.
	ExecutionID      string   `json:"execution_id,omitempty"`
	PauseType        string   `json:"pause_type,omitempty"`
	Prompt           string   `json:"prompt,omitempty"`
	OutputKey        string   `json:"output_key,omitempty"`
	AllowedFileTypes []string `json:"allowed_file_types,omitempty"`
	MaxFiles         int      `json:"max_files,omitempty"`
	StoragePath      string   `json:"storage_path,omitempty"`

	// Envelope is included on completion for callers that inspect history.
	Envelope *Envelope `json:"envelope,omitempty"`
}
