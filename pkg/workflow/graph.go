package workflow

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// Graph is the authoring format produced by the workflow editor. Node
// positions and any extra fields ride along untouched in RawDefinition; only
// id, type, data and the edge wiring matter for canonicalisation.
type Graph struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}

type GraphNode struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	Data     map[string]any `json:"data"`
	Position map[string]any `json:"position,omitempty"`
}

type GraphEdge struct {
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"sourceHandle,omitempty"`
}

// DecodeGraph parses raw authoring JSON.
func DecodeGraph(raw []byte) (*Graph, error) {
	var g Graph
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, fmt.Errorf("failed to parse authoring graph: %w", err)
	}
	return &g, nil
}

// FromGraph canonicalises an authoring graph into a Workflow. The raw
// authoring JSON is preserved verbatim in RawDefinition for lossless editor
// round-trip.
func FromGraph(name, description, owner string, triggers []string, raw []byte) (*Workflow, error) {
	g, err := DecodeGraph(raw)
	if err != nil {
		return nil, err
	}

	startStepID, steps, err := canonicalise(g)
	if err != nil {
		return nil, err
	}

	return &Workflow{
		Name:          name,
		Description:   description,
		Owner:         owner,
		Triggers:      triggers,
		StartStepID:   startStepID,
		Steps:         steps,
		RawDefinition: json.RawMessage(raw),
	}, nil
}

// canonicalise converts nodes and edges into the canonical step map.
func canonicalise(g *Graph) (string, map[string]*Step, error) {
	steps := make(map[string]*Step)
	startNodes := make(map[string]bool)
	endNodes := make(map[string]bool)

	for _, node := range g.Nodes {
		kind := strings.TrimSuffix(node.Type, "Node")
		switch kind {
		case "start":
			startNodes[node.ID] = true
			continue
		case "end":
			endNodes[node.ID] = true
			continue
		}

		step, err := decodeStep(node, kind)
		if err != nil {
			return "", nil, fmt.Errorf("node %s: %w", node.ID, err)
		}
		steps[node.ID] = step
	}

	normalise := func(target string) string {
		if target == "end" || endNodes[target] {
			return End
		}
		return target
	}

	startStepID := End
	for _, edge := range g.Edges {
		if startNodes[edge.Source] {
			startStepID = normalise(edge.Target)
			continue
		}

		step, ok := steps[edge.Source]
		if !ok {
			return "", nil, fmt.Errorf("edge from unknown node %s", edge.Source)
		}
		routeEdge(step, edge.SourceHandle, normalise(edge.Target))
	}

	for _, step := range steps {
		if step.OnSuccess == "" {
			step.OnSuccess = End
		}
	}

	return startStepID, steps, nil
}

// routeEdge assigns an edge target to the step field the handle names. Routing
// depends on the action type: condition checks and loops have dedicated
// handles, routers treat every non-failure handle as a route label.
func routeEdge(step *Step, handle, target string) {
	switch step.ActionType {
	case ActionConditionCheck:
		switch handle {
		case "onFailure":
			step.OnFailure = target
		default:
			step.OnSuccess = target
		}
	case ActionIntelligentRouter:
		if handle == "onFailure" {
			step.OnFailure = target
			return
		}
		if handle == "" {
			step.OnSuccess = target
			return
		}
		if step.Routes == nil {
			step.Routes = make(map[string]string)
		}
		step.Routes[handle] = target
	case ActionStartLoop:
		switch handle {
		case "loopBody":
			step.LoopBodyStartStepID = target
		case "onFailure":
			step.OnFailure = target
		default:
			step.OnSuccess = target
		}
	default:
		switch handle {
		case "onFailure":
			step.OnFailure = target
		default:
			step.OnSuccess = target
		}
	}
}

// decodeStep builds a typed Step from a node's data map. Template fields the
// editor emits as JSON objects are normalised to their JSON text form, since
// handlers evaluate them as JSON templates.
func decodeStep(node GraphNode, kind string) (*Step, error) {
	data := make(map[string]any, len(node.Data))
	for k, v := range node.Data {
		data[k] = v
	}

	for _, field := range []string{"data_template", "headers_template", "body_template", "input_mappings"} {
		if val, ok := data[field]; ok {
			switch val.(type) {
			case map[string]any, []any:
				encoded, err := json.Marshal(val)
				if err != nil {
					return nil, fmt.Errorf("field %s is not encodable: %w", field, err)
				}
				data[field] = string(encoded)
			}
		}
	}

	step := &Step{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           step,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(data); err != nil {
		return nil, fmt.Errorf("failed to decode step data: %w", err)
	}

	step.StepID = node.ID
	if step.ActionType == "" {
		step.ActionType = ActionType(kind)
	}
	if !step.ActionType.Valid() {
		return nil, fmt.Errorf("unknown action type %q", step.ActionType)
	}
	return step, nil
}
