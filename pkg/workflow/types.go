// Package workflow defines the canonical workflow graph model: typed steps
// connected by success/failure edges, plus the conversion from the authoring
// graph format and structural validation.
package workflow

import (
	"encoding/json"
	"time"
)

// End is the sentinel edge target that terminates a path. It is not a step.
const End = "END"

// ActionType selects the handler that executes a step.
type ActionType string

const (
	ActionHumanInput         ActionType = "human_input"
	ActionFileIngestion      ActionType = "file_ingestion"
	ActionFileStorage        ActionType = "file_storage"
	ActionLLMResponse        ActionType = "llm_response"
	ActionConditionCheck     ActionType = "condition_check"
	ActionAgenticToolUse     ActionType = "agentic_tool_use"
	ActionDirectToolCall     ActionType = "direct_tool_call"
	ActionIntelligentRouter  ActionType = "intelligent_router"
	ActionHTTPRequest        ActionType = "http_request"
	ActionDatabaseSave       ActionType = "database_save"
	ActionDatabaseQuery      ActionType = "database_query"
	ActionVectorDBIngestion  ActionType = "vector_db_ingestion"
	ActionVectorDBQuery      ActionType = "vector_db_query"
	ActionCrossEncoderRerank ActionType = "cross_encoder_rerank"
	ActionWorkflowCall       ActionType = "workflow_call"
	ActionDisplayMessage     ActionType = "display_message"
	ActionStartLoop          ActionType = "start_loop"
	ActionEndLoop            ActionType = "end_loop"
)

// AllActionTypes lists every dispatchable action type.
var AllActionTypes = []ActionType{
	ActionHumanInput, ActionFileIngestion, ActionFileStorage,
	ActionLLMResponse, ActionConditionCheck, ActionAgenticToolUse,
	ActionDirectToolCall, ActionIntelligentRouter, ActionHTTPRequest,
	ActionDatabaseSave, ActionDatabaseQuery, ActionVectorDBIngestion,
	ActionVectorDBQuery, ActionCrossEncoderRerank, ActionWorkflowCall,
	ActionDisplayMessage, ActionStartLoop, ActionEndLoop,
}

// Suspending reports whether the action type pauses the execution until an
// external input arrives.
func (a ActionType) Suspending() bool {
	switch a {
	case ActionHumanInput, ActionFileIngestion, ActionFileStorage:
		return true
	}
	return false
}

func (a ActionType) Valid() bool {
	for _, t := range AllActionTypes {
		if a == t {
			return true
		}
	}
	return false
}

// Step is a single workflow node. The struct is a flattened tagged record:
// which fields are meaningful depends on ActionType, everything else stays at
// its zero value and is omitted from serialisation.
type Step struct {
	StepID      string     `json:"step_id" mapstructure:"step_id"`
	Description string     `json:"description,omitempty" mapstructure:"description"`
	ActionType  ActionType `json:"action_type" mapstructure:"action_type"`
	OnSuccess   string     `json:"on_success,omitempty" mapstructure:"on_success"`
	OnFailure   string     `json:"on_failure,omitempty" mapstructure:"on_failure"`
	OutputKey   string     `json:"output_key,omitempty" mapstructure:"output_key"`

	// Prompt-driven actions (human_input, llm_response, condition_check,
	// agentic_tool_use, intelligent_router, display_message, vector actions).
	PromptTemplate string `json:"prompt_template,omitempty" mapstructure:"prompt_template"`
	ModelName      string `json:"model_name,omitempty" mapstructure:"model_name"`

	// File actions.
	AllowedFileTypes []string `json:"allowed_file_types,omitempty" mapstructure:"allowed_file_types"`
	MaxFiles         int      `json:"max_files,omitempty" mapstructure:"max_files"`
	StoragePath      string   `json:"storage_path,omitempty" mapstructure:"storage_path"`

	// Tool actions.
	ToolSelection  string   `json:"tool_selection,omitempty" mapstructure:"tool_selection"`
	ToolNames      []string `json:"tool_names,omitempty" mapstructure:"tool_names"`
	TargetToolName string   `json:"target_tool_name,omitempty" mapstructure:"target_tool_name"`
	DataTemplate   string   `json:"data_template,omitempty" mapstructure:"data_template"`

	// intelligent_router.
	Routes map[string]string `json:"routes,omitempty" mapstructure:"routes"`

	// http_request.
	HTTPMethod      string `json:"http_method,omitempty" mapstructure:"http_method"`
	URLTemplate     string `json:"url_template,omitempty" mapstructure:"url_template"`
	HeadersTemplate string `json:"headers_template,omitempty" mapstructure:"headers_template"`
	BodyTemplate    string `json:"body_template,omitempty" mapstructure:"body_template"`

	// database_save / database_query.
	TableName         string   `json:"table_name,omitempty" mapstructure:"table_name"`
	PrimaryKeyColumns []string `json:"primary_key_columns,omitempty" mapstructure:"primary_key_columns"`
	QueryTemplate     string   `json:"query_template,omitempty" mapstructure:"query_template"`

	// Vector actions.
	CollectionName string `json:"collection_name,omitempty" mapstructure:"collection_name"`
	ChunkSize      int    `json:"chunk_size,omitempty" mapstructure:"chunk_size"`
	ChunkOverlap   int    `json:"chunk_overlap,omitempty" mapstructure:"chunk_overlap"`
	EmbeddingModel string `json:"embedding_model,omitempty" mapstructure:"embedding_model"`
	TopK           int    `json:"top_k,omitempty" mapstructure:"top_k"`
	RerankTopN     int    `json:"rerank_top_n,omitempty" mapstructure:"rerank_top_n"`

	// workflow_call.
	TargetWorkflowID int64  `json:"target_workflow_id,omitempty" mapstructure:"target_workflow_id"`
	InputMappings    string `json:"input_mappings,omitempty" mapstructure:"input_mappings"`

	// start_loop / end_loop.
	InputCollectionVariable string `json:"input_collection_variable,omitempty" mapstructure:"input_collection_variable"`
	CurrentItemOutputKey    string `json:"current_item_output_key,omitempty" mapstructure:"current_item_output_key"`
	LoopBodyStartStepID     string `json:"loop_body_start_step_id,omitempty" mapstructure:"loop_body_start_step_id"`
	ValueToReturn           string `json:"value_to_return,omitempty" mapstructure:"value_to_return"`
}

// Targets returns every edge target the step can route to, excluding the
// loop-body entry (which is validated separately).
func (s *Step) Targets() []string {
	targets := make([]string, 0, 2+len(s.Routes))
	if s.OnSuccess != "" {
		targets = append(targets, s.OnSuccess)
	}
	if s.OnFailure != "" {
		targets = append(targets, s.OnFailure)
	}
	for _, target := range s.Routes {
		targets = append(targets, target)
	}
	return targets
}

// Workflow is the canonical graph form plus metadata.
type Workflow struct {
	ID            int64            `json:"id"`
	Name          string           `json:"name"`
	Description   string           `json:"description,omitempty"`
	Owner         string           `json:"owner,omitempty"`
	Triggers      []string         `json:"triggers,omitempty"`
	StartStepID   string           `json:"start_step_id"`
	Steps         map[string]*Step `json:"steps"`
	RawDefinition json.RawMessage  `json:"raw_definition,omitempty"`
	CreatedAt     time.Time        `json:"created_at,omitempty"`
	UpdatedAt     time.Time        `json:"updated_at,omitempty"`
}

// Step returns the step with the given id.
func (w *Workflow) Step(id string) (*Step, bool) {
	s, ok := w.Steps[id]
	return s, ok
}

// Summary is the listing view of a workflow.
type Summary struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Owner       string    `json:"owner,omitempty"`
	Triggers    []string  `json:"triggers,omitempty"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
}
