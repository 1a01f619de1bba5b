package model

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
	"sync"
)

// FakeChat is an in-memory ChatService for tests. Responses are consumed in
// FIFO order; when the queue is empty ChatFunc (if set) handles the request,
// otherwise a canned reply is produced.
type FakeChat struct {
	mu        sync.Mutex
	queue     []ChatResponse
	ChatFunc  func(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
	Requests  []*ChatRequest
	FailWith  error
	Fallback  string
}

var _ ChatService = (*FakeChat)(nil)

func NewFakeChat(responses ...string) *FakeChat {
	fake := &FakeChat{Fallback: "ok"}
	for _, text := range responses {
		fake.QueueText(text)
	}
	return fake
}

// QueueText enqueues a plain assistant reply.
func (f *FakeChat) QueueText(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = append(f.queue, ChatResponse{
		Message:      Message{Role: "assistant", Content: text},
		FinishReason: "stop",
	})
}

// QueueToolCall enqueues an assistant reply that invokes a tool.
func (f *FakeChat) QueueToolCall(name, arguments string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = append(f.queue, ChatResponse{
		Message: Message{
			Role: "assistant",
			ToolCalls: []ToolCall{{
				ID:       fmt.Sprintf("call_%d", len(f.queue)+1),
				Type:     "function",
				Function: FunctionCall{Name: name, Arguments: arguments},
			}},
		},
		FinishReason: "tool_calls",
	})
}

func (f *FakeChat) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	f.mu.Lock()
	f.Requests = append(f.Requests, req)
	if f.FailWith != nil {
		err := f.FailWith
		f.mu.Unlock()
		return nil, err
	}
	if len(f.queue) > 0 {
		resp := f.queue[0]
		f.queue = f.queue[1:]
		f.mu.Unlock()
		return &resp, nil
	}
	f.mu.Unlock()

	if f.ChatFunc != nil {
		return f.ChatFunc(ctx, req)
	}
	return &ChatResponse{
		Message:      Message{Role: "assistant", Content: f.Fallback},
		FinishReason: "stop",
	}, nil
}

// FakeEmbedder produces deterministic embeddings: texts sharing words land
// near each other, so similarity search in tests behaves plausibly.
type FakeEmbedder struct {
	Dimension int
}

var _ EmbeddingService = (*FakeEmbedder)(nil)

func NewFakeEmbedder() *FakeEmbedder {
	return &FakeEmbedder{Dimension: 64}
}

func (f *FakeEmbedder) Embed(ctx context.Context, texts []string, model string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		embeddings[i] = f.embedOne(text)
	}
	return embeddings, nil
}

func (f *FakeEmbedder) embedOne(text string) []float32 {
	vec := make([]float32, f.Dimension)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(word))
		vec[h.Sum32()%uint32(f.Dimension)] += 1
	}
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		vec[0] = 1
		return vec
	}
	inv := 1 / sqrt32(norm)
	for i := range vec {
		vec[i] *= inv
	}
	return vec
}

func sqrt32(v float32) float32 {
	// Newton iteration is plenty for test vectors.
	x := v
	for i := 0; i < 16; i++ {
		x = 0.5 * (x + v/x)
	}
	return x
}

// FakeReranker scores documents by shared-word overlap with the query.
type FakeReranker struct{}

var _ RerankService = (*FakeReranker)(nil)

func (f *FakeReranker) Rerank(ctx context.Context, query string, documents []string, topN int) ([]RerankResult, error) {
	queryWords := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(query)) {
		queryWords[w] = true
	}

	results := make([]RerankResult, 0, len(documents))
	for i, doc := range documents {
		var overlap int
		for _, w := range strings.Fields(strings.ToLower(doc)) {
			if queryWords[w] {
				overlap++
			}
		}
		results = append(results, RerankResult{Index: i, Text: doc, Score: float64(overlap)})
	}
	sort.SliceStable(results, func(a, b int) bool { return results[a].Score > results[b].Score })
	if topN > 0 && len(results) > topN {
		results = results[:topN]
	}
	return results, nil
}
