package model

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *OpenAIClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewOpenAIClient(OpenAIConfig{
		BaseURL: srv.URL,
		APIKey:  "test-key",
	})
	require.NoError(t, err)
	return client
}

func TestOpenAIClientChat(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "gpt-4o", payload["model"], "default model applied")

		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{
				"message":       map[string]any{"role": "assistant", "content": "hello there"},
				"finish_reason": "stop",
			}},
			"usage": map[string]int{"prompt_tokens": 5, "completion_tokens": 3, "total_tokens": 8},
		})
	})

	resp, err := client.Chat(context.Background(), &ChatRequest{
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello there", resp.Message.Content)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Equal(t, 8, resp.Usage.TotalTokens)
}

func TestOpenAIClientChatParsesToolCalls(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{
				"message": map[string]any{
					"role": "assistant",
					"tool_calls": []map[string]any{{
						"id":   "call_1",
						"type": "function",
						"function": map[string]any{
							"name":      "check_known_outages",
							"arguments": `{"software_name":"VPN Service"}`,
						},
					}},
				},
				"finish_reason": "tool_calls",
			}},
		})
	})

	resp, err := client.Chat(context.Background(), &ChatRequest{
		Messages:   []Message{{Role: "user", Content: "is the vpn down?"}},
		ToolChoice: "auto",
	})
	require.NoError(t, err)
	require.Len(t, resp.Message.ToolCalls, 1)
	assert.Equal(t, "check_known_outages", resp.Message.ToolCalls[0].Function.Name)
	assert.JSONEq(t, `{"software_name":"VPN Service"}`, resp.Message.ToolCalls[0].Function.Arguments)
}

func TestOpenAIClientChatAPIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error": {"message": "bad key"}}`))
	})

	_, err := client.Chat(context.Background(), &ChatRequest{
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 401")
}

func TestOpenAIClientEmbed(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)

		var payload embeddingRequestPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "text-embedding-3-small", payload.Model)

		// Out-of-order indices must still land in input order.
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"index": 1, "embedding": []float32{0.4, 0.5}},
				{"index": 0, "embedding": []float32{0.1, 0.2}},
			},
		})
	})

	got, err := client.Embed(context.Background(), []string{"first", "second"}, "")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, []float32{0.1, 0.2}, got[0])
	assert.Equal(t, []float32{0.4, 0.5}, got[1])
}

func TestOpenAIClientEmbedEmptyInput(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected for empty input")
	})
	got, err := client.Embed(context.Background(), nil, "")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestOpenAIClientRequiresAPIKey(t *testing.T) {
	_, err := NewOpenAIClient(OpenAIConfig{})
	assert.Error(t, err)
}

func TestRerankClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rerank", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"index": 2, "relevance_score": 0.92},
				{"index": 0, "relevance_score": 0.31},
			},
		})
	}))
	defer srv.Close()

	client, err := NewRerankClient(RerankConfig{BaseURL: srv.URL})
	require.NoError(t, err)

	results, err := client.Rerank(context.Background(), "vpn down",
		[]string{"printer guide", "lunch menu", "vpn outage notes"}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 2, results[0].Index)
	assert.Equal(t, "vpn outage notes", results[0].Text, "text filled from documents")
}

func TestRerankClientEmptyDocuments(t *testing.T) {
	client, err := NewRerankClient(RerankConfig{BaseURL: "http://localhost:0"})
	require.NoError(t, err)

	results, err := client.Rerank(context.Background(), "q", nil, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestFakeChatQueueOrder(t *testing.T) {
	fake := NewFakeChat("one", "two")
	fake.QueueToolCall("create_support_ticket", `{"username":"j.doe","issue_summary":"x"}`)

	r1, _ := fake.Chat(context.Background(), &ChatRequest{})
	r2, _ := fake.Chat(context.Background(), &ChatRequest{})
	r3, _ := fake.Chat(context.Background(), &ChatRequest{})

	assert.Equal(t, "one", r1.Message.Content)
	assert.Equal(t, "two", r2.Message.Content)
	require.Len(t, r3.Message.ToolCalls, 1)
	assert.Equal(t, "create_support_ticket", r3.Message.ToolCalls[0].Function.Name)
	assert.Len(t, fake.Requests, 3)
}

func TestFakeEmbedderSimilarity(t *testing.T) {
	fake := NewFakeEmbedder()
	vecs, err := fake.Embed(context.Background(), []string{
		"the vpn service is down",
		"vpn connectivity problems",
		"cafeteria lunch menu",
	}, "")
	require.NoError(t, err)

	dot := func(a, b []float32) float32 {
		var sum float32
		for i := range a {
			sum += a[i] * b[i]
		}
		return sum
	}
	assert.Greater(t, dot(vecs[0], vecs[1]), dot(vecs[0], vecs[2]),
		"texts sharing words should be more similar")
}

func TestFakeRerankerOrdersByOverlap(t *testing.T) {
	fake := &FakeReranker{}
	results, err := fake.Rerank(context.Background(), "vpn outage",
		[]string{"menu for lunch", "vpn outage reported in building A"}, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, results[0].Index)
}
