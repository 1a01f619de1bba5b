// Package model defines the narrow LLM adapter seam: chat completion with
// tool calling, batch embedding, and cross-encoder reranking. The engine only
// depends on these interfaces; production implementations speak the
// OpenAI-compatible HTTP API and tests supply in-memory fakes.
package model

import "context"

// Message is a single chat turn.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall is an assistant-requested function invocation.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall carries the function name and its JSON-encoded arguments.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Tool is an OpenAI-style function tool offered to the model.
type Tool struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

type ToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// ChatRequest is a single completion call. Model and Temperature override the
// client's defaults when set.
type ChatRequest struct {
	Messages    []Message
	Tools       []Tool
	ToolChoice  string
	Model       string
	Temperature *float64
}

// ChatResponse is the assistant's reply, including any tool calls.
type ChatResponse struct {
	Message      Message
	FinishReason string
	Usage        Usage
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// RerankResult scores one document against the rerank query.
type RerankResult struct {
	Index int     `json:"index"`
	Text  string  `json:"text,omitempty"`
	Score float64 `json:"relevance_score"`
}

// ChatService produces chat completions.
type ChatService interface {
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
}

// EmbeddingService embeds a batch of texts. An empty model selects the
// service's default.
type EmbeddingService interface {
	Embed(ctx context.Context, texts []string, model string) ([][]float32, error)
}

// RerankService scores query/document pairs with a cross-encoder.
type RerankService interface {
	Rerank(ctx context.Context, query string, documents []string, topN int) ([]RerankResult, error)
}

// Float64Ptr is a convenience for per-request temperature overrides.
func Float64Ptr(v float64) *float64 { return &v }
