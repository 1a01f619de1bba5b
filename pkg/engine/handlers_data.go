package engine

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"

	"github.com/google/uuid"

	"github.com/anuj67851/genai-workflow-maker/pkg/model"
	"github.com/anuj67851/genai-workflow-maker/pkg/rag"
	"github.com/anuj67851/genai-workflow-maker/pkg/template"
	"github.com/anuj67851/genai-workflow-maker/pkg/workflow"
)

// defaultTopK applies when a vector_db_query step leaves top_k unset.
const defaultTopK = 5

// ===== Structured data =====

func (e *Engine) handleDatabaseSave(ctx context.Context, step *workflow.Step, env *Envelope) result {
	if e.services.Data == nil {
		return failure(step, "structured data store is not configured")
	}
	if step.TableName == "" {
		return failure(step, "table_name is required")
	}

	resolved, err := template.FillJSON(step.DataTemplate, env.Vars())
	if err != nil {
		return failure(step, fmt.Sprintf("bad data template: %v", err))
	}
	row, ok := resolved.(map[string]any)
	if !ok {
		return failure(step, "data template must resolve to an object")
	}

	if err := e.services.Data.Upsert(ctx, step.TableName, row, step.PrimaryKeyColumns); err != nil {
		return failure(step, fmt.Sprintf("database save failed: %v", err))
	}
	return success(step, fmt.Sprintf("Successfully saved record to %s", step.TableName))
}

func (e *Engine) handleDatabaseQuery(ctx context.Context, step *workflow.Step, env *Envelope) result {
	if e.services.Data == nil {
		return failure(step, "structured data store is not configured")
	}

	sqlText, params, err := template.FillSQL(step.QueryTemplate, env.Vars())
	if err != nil {
		return failure(step, fmt.Sprintf("bad query template: %v", err))
	}
	rows, err := e.services.Data.Query(ctx, sqlText, params)
	if err != nil {
		return failure(step, fmt.Sprintf("database query failed: %v", err))
	}
	return success(step, rows)
}

// ===== Vector store =====

func (e *Engine) handleVectorIngestion(ctx context.Context, step *workflow.Step, env *Envelope) result {
	if e.services.Vectors == nil || e.services.Embedder == nil {
		return failure(step, "vector store is not configured")
	}
	if step.CollectionName == "" {
		return failure(step, "collection_name is required")
	}

	resolved := template.Fill(step.PromptTemplate, env.Vars())
	texts, ok := toStringList(resolved)
	if !ok {
		return failure(step, "prompt_template must resolve to text or a list of texts")
	}

	splitter, err := rag.NewSplitter(rag.SplitterConfig{
		Size:    step.ChunkSize,
		Overlap: step.ChunkOverlap,
	})
	if err != nil {
		return failure(step, fmt.Sprintf("bad chunking configuration: %v", err))
	}

	var chunks []string
	for _, text := range texts {
		chunks = append(chunks, splitter.Split(text)...)
	}
	if len(chunks) == 0 {
		return success(step, fmt.Sprintf("Ingested 0 chunks into collection %q", step.CollectionName))
	}

	vectors, err := e.services.Embedder.Embed(ctx, chunks, step.EmbeddingModel)
	if err != nil {
		return failure(step, fmt.Sprintf("embedding failed: %v", err))
	}
	if err := e.services.Vectors.Ingest(ctx, step.CollectionName, chunks, vectors); err != nil {
		return failure(step, fmt.Sprintf("vector ingestion failed: %v", err))
	}
	return success(step, fmt.Sprintf("Ingested %d chunks into collection %q", len(chunks), step.CollectionName))
}

func (e *Engine) handleVectorQuery(ctx context.Context, step *workflow.Step, env *Envelope) result {
	if e.services.Vectors == nil || e.services.Embedder == nil {
		return failure(step, "vector store is not configured")
	}

	queryText := template.FillText(step.PromptTemplate, env.Vars())
	topK := step.TopK
	if topK <= 0 {
		topK = defaultTopK
	}

	vectors, err := e.services.Embedder.Embed(ctx, []string{queryText}, step.EmbeddingModel)
	if err != nil {
		return failure(step, fmt.Sprintf("embedding failed: %v", err))
	}
	results, err := e.services.Vectors.Query(ctx, step.CollectionName, vectors[0], topK)
	if err != nil {
		return failure(step, fmt.Sprintf("vector query failed: %v", err))
	}

	docs := make([]string, 0, len(results))
	for _, r := range results {
		docs = append(docs, r.Content)
	}
	return success(step, map[string]any{"query": queryText, "retrieved_docs": docs})
}

func (e *Engine) handleRerank(ctx context.Context, step *workflow.Step, env *Envelope) result {
	if e.services.Reranker == nil {
		return failure(step, "reranker is not configured")
	}

	resolved := template.Fill(step.PromptTemplate, env.Vars())
	pair, ok := resolved.(map[string]any)
	if !ok {
		return failure(step, "prompt_template must resolve to an object with query and retrieved_docs")
	}
	query, _ := pair["query"].(string)
	docs, ok := toStringList(pair["retrieved_docs"])
	if !ok {
		return failure(step, "retrieved_docs must be a list of texts")
	}
	if len(docs) == 0 {
		return success(step, []model.RerankResult{})
	}

	topN := step.RerankTopN
	if topN <= 0 {
		topN = len(docs)
	}
	ranked, err := e.services.Reranker.Rerank(ctx, query, docs, topN)
	if err != nil {
		return failure(step, fmt.Sprintf("rerank failed: %v", err))
	}
	return success(step, ranked)
}

// ===== Sub-workflow calls =====

func (e *Engine) handleWorkflowCall(ctx context.Context, step *workflow.Step, env *Envelope) result {
	if step.TargetWorkflowID == 0 {
		return failure(step, "target_workflow_id is required")
	}

	childContext := map[string]any{}
	if step.InputMappings != "" {
		resolved, err := template.FillJSON(step.InputMappings, env.Vars())
		if err != nil {
			return failure(step, fmt.Sprintf("bad input mappings: %v", err))
		}
		m, ok := resolved.(map[string]any)
		if !ok {
			return failure(step, "input_mappings must resolve to an object")
		}
		childContext = m
	}

	childQuery := env.Query
	if q, ok := childContext["query"].(string); ok && q != "" {
		childQuery = q
	}

	childWF, err := e.services.Store.GetWorkflow(ctx, step.TargetWorkflowID)
	if err != nil {
		return failure(step, fmt.Sprintf("sub-workflow %d: %v", step.TargetWorkflowID, err))
	}

	childEnv := NewEnvelope(uuid.NewString(), childWF, childQuery, childContext)
	resp, err := e.run(ctx, childWF, childEnv)
	if err != nil {
		return failure(step, fmt.Sprintf("sub-workflow failed: %v", err))
	}
	switch resp.Status {
	case StatusCompleted:
		return success(step, resp.Response)
	case StatusFailed:
		return failure(step, fmt.Sprintf("sub-workflow %q failed: %s", childWF.Name, resp.Error))
	default:
		// The child persisted a paused envelope before we saw the
		// suspension; it is unreachable, so clean it up.
		if err := e.services.Store.DeleteExecutionState(ctx, resp.ExecutionID); err != nil {
			slog.Warn("failed to delete orphaned sub-workflow state",
				"execution_id", resp.ExecutionID, "error", err)
		}
		return failure(step, fmt.Sprintf("sub-workflow %q attempted to pause for input; sub-workflows must be non-interactive", childWF.Name))
	}
}

// ===== Loops =====

func loopSlotKey(stepID string) string {
	return "__loop_state_" + stepID
}

// handleStartLoop is re-entrant: the driver loop returns here after every
// iteration's end_loop. Iteration state lives in a hidden collected_inputs
// slot so the handler itself stays stateless.
func (e *Engine) handleStartLoop(step *workflow.Step, env *Envelope) result {
	if step.LoopBodyStartStepID == "" {
		return failure(step, "loop has no body")
	}

	slotKey := loopSlotKey(step.StepID)
	raw, entered := env.CollectedInputs[slotKey]

	var slot map[string]any
	if entered {
		var ok bool
		slot, ok = raw.(map[string]any)
		if !ok {
			return failure(step, "loop state slot is corrupt")
		}
	} else {
		resolved := template.Fill(step.InputCollectionVariable, env.Vars())
		collection, ok := toAnyList(resolved)
		if !ok {
			return failure(step, fmt.Sprintf("loop input %q did not resolve to a list", step.InputCollectionVariable))
		}
		slot = map[string]any{"collection": collection, "index": 0, "results": []any{}}
		env.CollectedInputs[slotKey] = slot
	}

	collection, _ := toAnyList(slot["collection"])
	index := toInt(slot["index"])
	results, _ := toAnyList(slot["results"])
	if results == nil {
		results = []any{}
	}

	// Aggregate the previous iteration's end_loop output.
	if entered {
		if last := env.lastHistory(); last != nil && last["type"] == string(workflow.ActionEndLoop) {
			results = append(results, last["output"])
			slot["results"] = results
		}
	}

	if index >= len(collection) {
		delete(env.CollectedInputs, slotKey)
		return success(step, results)
	}

	if step.CurrentItemOutputKey != "" {
		env.CollectedInputs[step.CurrentItemOutputKey] = collection[index]
	}
	slot["index"] = index + 1
	return result{kind: kindLoopBodyStart, step: step, nextStepOverride: step.LoopBodyStartStepID}
}

func (e *Engine) handleEndLoop(step *workflow.Step, env *Envelope) result {
	var out any
	if step.ValueToReturn != "" {
		out = template.Fill(step.ValueToReturn, env.Vars())
	} else if last := env.lastHistory(); last != nil {
		out = last["output"]
	}
	return result{kind: kindLoopIterationComplete, step: step, output: out, hasOutput: true}
}

// ===== Conversion helpers =====

// toAnyList accepts any slice value and returns it as []any.
func toAnyList(v any) ([]any, bool) {
	switch list := v.(type) {
	case nil:
		return nil, false
	case []any:
		return list, true
	case []string:
		out := make([]any, len(list))
		for i, s := range list {
			out[i] = s
		}
		return out, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// toStringList accepts a string or a list of values and returns texts.
// Non-string list elements are rendered as text.
func toStringList(v any) ([]string, bool) {
	if s, ok := v.(string); ok {
		return []string{s}, true
	}
	list, ok := toAnyList(v)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		} else {
			out = append(out, fmt.Sprint(item))
		}
	}
	return out, true
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}
