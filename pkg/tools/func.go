package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	"github.com/mitchellh/mapstructure"
)

// FuncTool adapts a plain Go function into a Tool. The parameter schema is
// generated from the argument struct's tags:
//
//	type Args struct {
//	    Service string `json:"service_name" jsonschema:"required,description=Service to check"`
//	    Limit   int    `json:"limit,omitempty" jsonschema:"description=Max results,default=10"`
//	}
type FuncTool[T any] struct {
	name        string
	description string
	parameters  map[string]any
	fn          func(ctx context.Context, args T) (any, error)
}

// NewFunc builds a FuncTool, reflecting the parameter schema from T.
func NewFunc[T any](name, description string, fn func(ctx context.Context, args T) (any, error)) (*FuncTool[T], error) {
	parameters, err := generateSchema[T]()
	if err != nil {
		return nil, fmt.Errorf("failed to generate schema for tool %s: %w", name, err)
	}
	return &FuncTool[T]{
		name:        name,
		description: description,
		parameters:  parameters,
		fn:          fn,
	}, nil
}

// MustFunc is NewFunc for statically known argument types; it panics on
// schema generation failure, which can only happen for unrepresentable types.
func MustFunc[T any](name, description string, fn func(ctx context.Context, args T) (any, error)) *FuncTool[T] {
	tool, err := NewFunc(name, description, fn)
	if err != nil {
		panic(err)
	}
	return tool
}

func (t *FuncTool[T]) Definition() Definition {
	return Definition{
		Name:        t.name,
		Description: t.description,
		Parameters:  t.parameters,
	}
}

func (t *FuncTool[T]) Call(ctx context.Context, args map[string]any) (any, error) {
	var typed T
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &typed,
		TagName:          "json",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(args); err != nil {
		return nil, fmt.Errorf("invalid arguments for tool %s: %w", t.name, err)
	}
	return t.fn(ctx, typed)
}

// generateSchema reflects an argument struct into the flat object schema the
// chat completions API expects.
func generateSchema[T any]() (map[string]any, error) {
	reflector := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		DoNotReference:             true,
	}
	schema := reflector.Reflect(new(T))

	data, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	var schemaMap map[string]any
	if err := json.Unmarshal(data, &schemaMap); err != nil {
		return nil, err
	}
	delete(schemaMap, "$schema")
	delete(schemaMap, "$id")

	if schemaMap["type"] != "object" {
		return schemaMap, nil
	}
	result := map[string]any{
		"type": "object",
	}
	if properties, ok := schemaMap["properties"]; ok {
		result["properties"] = properties
	} else {
		result["properties"] = map[string]any{}
	}
	if required, ok := schemaMap["required"]; ok {
		result["required"] = required
	}
	if addProps, ok := schemaMap["additionalProperties"]; ok {
		result["additionalProperties"] = addProps
	}
	return result, nil
}
