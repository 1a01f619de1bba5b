package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"sort"
	"strings"

	"github.com/anuj67851/genai-workflow-maker/pkg/model"
	"github.com/anuj67851/genai-workflow-maker/pkg/template"
	"github.com/anuj67851/genai-workflow-maker/pkg/tools"
	"github.com/anuj67851/genai-workflow-maker/pkg/workflow"
)

// dispatch routes a step to its handler. A panicking handler is converted to
// a step failure so the driver loop can follow on_failure.
func (e *Engine) dispatch(ctx context.Context, step *workflow.Step, env *Envelope) (res result) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("handler panicked",
				"step", step.StepID, "action", step.ActionType, "panic", r)
			res = failure(step, fmt.Sprintf("internal error in %s handler: %v", step.ActionType, r))
		}
	}()

	slog.Debug("executing step",
		"execution_id", env.ExecutionID, "step", step.StepID, "action", step.ActionType)

	switch step.ActionType {
	case workflow.ActionHumanInput:
		return e.handleHumanInput(step, env)
	case workflow.ActionFileIngestion, workflow.ActionFileStorage:
		return e.handleFileUpload(step, env)
	case workflow.ActionDisplayMessage:
		return e.handleDisplayMessage(step, env)
	case workflow.ActionLLMResponse:
		return e.handleLLMResponse(ctx, step, env)
	case workflow.ActionConditionCheck:
		return e.handleConditionCheck(ctx, step, env)
	case workflow.ActionAgenticToolUse:
		return e.handleAgenticToolUse(ctx, step, env)
	case workflow.ActionDirectToolCall:
		return e.handleDirectToolCall(ctx, step, env)
	case workflow.ActionIntelligentRouter:
		return e.handleIntelligentRouter(ctx, step, env)
	case workflow.ActionHTTPRequest:
		return e.handleHTTPRequest(ctx, step, env)
	case workflow.ActionDatabaseSave:
		return e.handleDatabaseSave(ctx, step, env)
	case workflow.ActionDatabaseQuery:
		return e.handleDatabaseQuery(ctx, step, env)
	case workflow.ActionVectorDBIngestion:
		return e.handleVectorIngestion(ctx, step, env)
	case workflow.ActionVectorDBQuery:
		return e.handleVectorQuery(ctx, step, env)
	case workflow.ActionCrossEncoderRerank:
		return e.handleRerank(ctx, step, env)
	case workflow.ActionWorkflowCall:
		return e.handleWorkflowCall(ctx, step, env)
	case workflow.ActionStartLoop:
		return e.handleStartLoop(step, env)
	case workflow.ActionEndLoop:
		return e.handleEndLoop(step, env)
	default:
		return failure(step, fmt.Sprintf("unknown action type %q", step.ActionType))
	}
}

// ===== Suspending actions =====

func (e *Engine) handleHumanInput(step *workflow.Step, env *Envelope) result {
	prompt := template.FillText(step.PromptTemplate, env.Vars())
	return suspend(step, PauseAwaitingInput, prompt)
}

func (e *Engine) handleFileUpload(step *workflow.Step, env *Envelope) result {
	prompt := template.FillText(step.PromptTemplate, env.Vars())
	return suspend(step, PauseAwaitingFileUpload, prompt)
}

// ===== Messages and LLM calls =====

func (e *Engine) handleDisplayMessage(step *workflow.Step, env *Envelope) result {
	return success(step, template.FillText(step.PromptTemplate, env.Vars()))
}

func (e *Engine) handleLLMResponse(ctx context.Context, step *workflow.Step, env *Envelope) result {
	instruction := template.FillText(step.PromptTemplate, env.Vars())
	content := fmt.Sprintf("%s\n\nOriginal user query: %s\n\nExecution history:\n%s",
		instruction, env.Query, env.historyJSON())

	resp, err := e.services.Chat.Chat(ctx, &model.ChatRequest{
		Messages:    []model.Message{{Role: "user", Content: content}},
		Model:       step.ModelName,
		Temperature: model.Float64Ptr(0.5),
	})
	if err != nil {
		return failure(step, fmt.Sprintf("llm call failed: %v", err))
	}

	text := strings.TrimSpace(resp.Message.Content)
	env.FinalResponse = text
	return success(step, text)
}

var finalAnswerRe = regexp.MustCompile(`(?is)<final_answer>\s*(TRUE|FALSE)\s*</final_answer>`)

func (e *Engine) handleConditionCheck(ctx context.Context, step *workflow.Step, env *Envelope) result {
	condition := template.FillText(step.PromptTemplate, env.Vars())
	envelopeJSON, _ := json.Marshal(env)

	prompt := fmt.Sprintf(
		"Evaluate whether the following condition holds for the current execution state.\n\n"+
			"Execution state:\n%s\n\nCondition: %s\n\n"+
			"Reply with a <reasoning>...</reasoning> block followed by a "+
			"<final_answer>TRUE</final_answer> or <final_answer>FALSE</final_answer> block.",
		envelopeJSON, condition)

	resp, err := e.services.Chat.Chat(ctx, &model.ChatRequest{
		Messages:    []model.Message{{Role: "user", Content: prompt}},
		Model:       step.ModelName,
		Temperature: model.Float64Ptr(0),
	})
	if err != nil {
		return failure(step, fmt.Sprintf("condition evaluation failed: %v", err))
	}

	verdict, ok := parseVerdict(resp.Message.Content)
	if !ok {
		return failure(step, fmt.Sprintf("could not parse condition verdict from %q",
			truncate(resp.Message.Content, 200)))
	}
	if verdict {
		return success(step, true)
	}
	// FALSE routes through on_failure; the boolean still lands in history.
	return result{kind: kindFailure, step: step, output: false, hasOutput: true,
		errText: "condition evaluated to FALSE"}
}

// parseVerdict reads the final-answer tag, falling back to a substring check
// that only accepts an unambiguous answer.
func parseVerdict(text string) (bool, bool) {
	if m := finalAnswerRe.FindStringSubmatch(text); m != nil {
		return strings.EqualFold(m[1], "TRUE"), true
	}
	upper := strings.ToUpper(text)
	hasTrue := strings.Contains(upper, "TRUE")
	hasFalse := strings.Contains(upper, "FALSE")
	if hasTrue == hasFalse {
		return false, false
	}
	return hasTrue, true
}

// ===== Tool actions =====

func (e *Engine) handleAgenticToolUse(ctx context.Context, step *workflow.Step, env *Envelope) result {
	instruction := template.FillText(step.PromptTemplate, env.Vars())

	selection := step.ToolSelection
	if selection == "" {
		selection = "auto"
	}

	var defs []tools.Definition
	var system string
	switch selection {
	case "auto":
		defs = e.services.Tools.Definitions()
		system = "You are a workflow automation step. Use the available tools to complete the task. Pick the single most appropriate tool and call it."
	case "manual":
		selected, err := e.services.Tools.ByNames(step.ToolNames)
		if err != nil {
			return failure(step, err.Error())
		}
		for _, tool := range selected {
			defs = append(defs, tool.Definition())
		}
		system = "You are a workflow automation step. Complete the task by calling one of the provided tools."
	case "none":
		system = "You are a workflow automation step. Answer the task directly; no tools are available."
	default:
		return failure(step, fmt.Sprintf("unknown tool_selection %q", selection))
	}

	req := &model.ChatRequest{
		Messages: []model.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: instruction},
		},
		Model: step.ModelName,
	}
	if len(defs) > 0 {
		req.Tools = toModelTools(defs)
		req.ToolChoice = "auto"
	}

	resp, err := e.services.Chat.Chat(ctx, req)
	if err != nil {
		return failure(step, fmt.Sprintf("llm call failed: %v", err))
	}

	if len(resp.Message.ToolCalls) > 0 {
		call := resp.Message.ToolCalls[0]
		var args map[string]any
		if call.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
				return failure(step, fmt.Sprintf("malformed tool arguments for %s: %v", call.Function.Name, err))
			}
		}
		tool, err := e.services.Tools.Lookup(call.Function.Name)
		if err != nil {
			return failure(step, err.Error())
		}
		out, err := tool.Call(ctx, args)
		if err != nil {
			return failure(step, fmt.Sprintf("tool %q failed: %v", call.Function.Name, err))
		}
		res := success(step, out)
		res.extra = map[string]any{"tool_name": call.Function.Name, "tool_args": args}
		return res
	}

	if selection == "none" {
		return success(step, strings.TrimSpace(resp.Message.Content))
	}
	return failure(step, "model did not select a tool")
}

func (e *Engine) handleDirectToolCall(ctx context.Context, step *workflow.Step, env *Envelope) result {
	if step.TargetToolName == "" {
		return failure(step, "target_tool_name is required")
	}

	args := map[string]any{}
	if step.DataTemplate != "" {
		resolved, err := template.FillJSON(step.DataTemplate, env.Vars())
		if err != nil {
			return failure(step, fmt.Sprintf("bad arguments template: %v", err))
		}
		m, ok := resolved.(map[string]any)
		if !ok {
			return failure(step, "arguments template must resolve to an object")
		}
		args = m
	}

	tool, err := e.services.Tools.Lookup(step.TargetToolName)
	if err != nil {
		return failure(step, err.Error())
	}
	out, err := tool.Call(ctx, args)
	if err != nil {
		return failure(step, fmt.Sprintf("tool %q failed: %v", step.TargetToolName, err))
	}
	res := success(step, out)
	res.extra = map[string]any{"tool_name": step.TargetToolName, "tool_args": args}
	return res
}

func toModelTools(defs []tools.Definition) []model.Tool {
	out := make([]model.Tool, len(defs))
	for i, def := range defs {
		out[i] = model.Tool{
			Type: "function",
			Function: model.ToolFunction{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.Parameters,
			},
		}
	}
	return out
}

// ===== Dynamic routing =====

func (e *Engine) handleIntelligentRouter(ctx context.Context, step *workflow.Step, env *Envelope) result {
	if len(step.Routes) == 0 {
		return failure(step, "no routes configured")
	}
	instruction := template.FillText(step.PromptTemplate, env.Vars())

	labels := make([]string, 0, len(step.Routes))
	for label := range step.Routes {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	prompt := fmt.Sprintf(
		"%s\n\nUser query: %s\n\nPick exactly one of the following routes: %s\n"+
			"Answer with the route name only.",
		instruction, env.Query, strings.Join(labels, ", "))

	resp, err := e.services.Chat.Chat(ctx, &model.ChatRequest{
		Messages:    []model.Message{{Role: "user", Content: prompt}},
		Model:       step.ModelName,
		Temperature: model.Float64Ptr(0),
	})
	if err != nil {
		return failure(step, fmt.Sprintf("routing call failed: %v", err))
	}

	reply := strings.Trim(strings.TrimSpace(resp.Message.Content), `"'`)
	target, ok := step.Routes[reply]
	if !ok {
		for label, t := range step.Routes {
			if strings.EqualFold(label, reply) {
				reply, target, ok = label, t, true
				break
			}
		}
	}
	if !ok {
		return failure(step, fmt.Sprintf("router returned unknown route %q", reply))
	}

	res := success(step, map[string]any{"chosen_route": reply, "next_step_id": target})
	res.nextStepOverride = target
	return res
}

// ===== HTTP =====

func (e *Engine) handleHTTPRequest(ctx context.Context, step *workflow.Step, env *Envelope) result {
	if step.HTTPMethod == "" {
		return failure(step, "http_method is required")
	}
	url := template.FillText(step.URLTemplate, env.Vars())
	if url == "" {
		return failure(step, "url_template resolved to an empty URL")
	}

	headers := map[string]any{}
	if step.HeadersTemplate != "" {
		resolved, err := template.FillJSON(step.HeadersTemplate, env.Vars())
		if err != nil {
			return failure(step, fmt.Sprintf("bad headers template: %v", err))
		}
		m, ok := resolved.(map[string]any)
		if !ok {
			return failure(step, "headers template must resolve to an object")
		}
		headers = m
	}

	var body io.Reader
	hasBody := false
	if step.BodyTemplate != "" {
		resolved, err := template.FillJSON(step.BodyTemplate, env.Vars())
		if err != nil {
			return failure(step, fmt.Sprintf("bad body template: %v", err))
		}
		encoded, err := json.Marshal(resolved)
		if err != nil {
			return failure(step, fmt.Sprintf("failed to encode request body: %v", err))
		}
		body = bytes.NewReader(encoded)
		hasBody = true
	}

	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(step.HTTPMethod), url, body)
	if err != nil {
		return failure(step, fmt.Sprintf("failed to build request: %v", err))
	}
	for name, value := range headers {
		req.Header.Set(name, fmt.Sprint(value))
	}
	if hasBody && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.http.Do(req)
	if err != nil {
		return failure(step, fmt.Sprintf("request failed: %v", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return failure(step, fmt.Sprintf("failed to read response: %v", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return failure(step, fmt.Sprintf("HTTP %d: %s", resp.StatusCode, truncate(string(raw), 500)))
	}

	var parsed any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		parsed = string(raw)
	}
	respHeaders := make(map[string]string, len(resp.Header))
	for name := range resp.Header {
		respHeaders[name] = resp.Header.Get(name)
	}
	return success(step, map[string]any{
		"status_code": resp.StatusCode,
		"headers":     respHeaders,
		"body":        parsed,
	})
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
