// Package template implements the placeholder substitution language shared by
// all action handlers.
//
// Templates are plain strings containing placeholders of the forms:
//
//	{query}          the originating user query
//	{context.KEY}    a value from the execution's initial context
//	{input.KEY}      a value from collected_inputs
//	{state.KEY}      a top-level envelope field
//	{env.KEY}        a process environment variable
//	{history}        the step history as indented JSON
//
// Three evaluation modes are exposed: Fill (string mode with the
// whole-placeholder type-preservation rule), FillJSON (recursive resolution
// inside a JSON document) and FillSQL (placeholder extraction into positional
// parameters). The whole-placeholder rule is load-bearing: a template that
// consists of exactly one placeholder yields the referenced value with its
// original type, so structured values can flow between steps without being
// flattened to text.
package template

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// ErrBadTemplate is returned by FillJSON when the template is not valid JSON
// and is not a single whole placeholder.
var ErrBadTemplate = errors.New("template is not valid JSON")

// Vars is the evaluator's view of an execution envelope.
type Vars struct {
	// Query is the originating user query ({query}).
	Query string

	// Context holds the caller-supplied initial context ({context.KEY}).
	Context map[string]any

	// Inputs holds collected step outputs ({input.KEY}).
	Inputs map[string]any

	// State holds top-level envelope fields ({state.KEY}).
	State map[string]any

	// History is the step history, used by {history}.
	History []map[string]any
}

var placeholderRe = regexp.MustCompile(`\{(query|history|(?:context|input|state|env)\.[A-Za-z0-9_]+)\}`)

// wholePlaceholderRe matches a template that is exactly one placeholder
// (surrounding whitespace allowed).
var wholePlaceholderRe = regexp.MustCompile(`^\{(query|history|(?:context|input|state|env)\.[A-Za-z0-9_]+)\}$`)

// Fill resolves every placeholder in tmpl.
//
// If the template consists of exactly one placeholder, the referenced value is
// returned with its original type (a missing value yields nil). Otherwise the
// result is always a string: missing values become the empty string and
// non-string values are embedded as compact JSON.
func Fill(tmpl string, vars *Vars) any {
	if tmpl == "" {
		return ""
	}
	if m := wholePlaceholderRe.FindStringSubmatch(strings.TrimSpace(tmpl)); m != nil {
		val, _ := resolve(m[1], vars)
		return val
	}
	return FillText(tmpl, vars)
}

// FillText resolves every placeholder in tmpl and always returns a string.
func FillText(tmpl string, vars *Vars) string {
	if tmpl == "" {
		return ""
	}
	return placeholderRe.ReplaceAllStringFunc(tmpl, func(match string) string {
		ref := match[1 : len(match)-1]
		val, ok := resolve(ref, vars)
		if !ok || val == nil {
			return ""
		}
		return stringify(val)
	})
}

// FillJSON parses tmpl as a JSON document and resolves placeholders inside
// every string leaf. A leaf that is exactly one placeholder keeps the
// referenced value's type (or becomes JSON null when undefined); any other
// leaf is resolved in string mode.
//
// If tmpl does not parse as JSON, the whole-placeholder rule is tried as a
// fallback; otherwise ErrBadTemplate is returned.
func FillJSON(tmpl string, vars *Vars) (any, error) {
	trimmed := strings.TrimSpace(tmpl)
	if trimmed == "" {
		return nil, nil
	}

	var doc any
	if err := json.Unmarshal([]byte(trimmed), &doc); err != nil {
		if m := wholePlaceholderRe.FindStringSubmatch(trimmed); m != nil {
			val, _ := resolve(m[1], vars)
			return val, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrBadTemplate, err)
	}

	return resolveNode(doc, vars), nil
}

// FillSQL replaces each placeholder in tmpl (optionally wrapped in single or
// double quotes) with a positional `?` marker and collects the resolved values
// in order. Missing values are passed through as nil so the driver binds NULL.
func FillSQL(tmpl string, vars *Vars) (string, []any, error) {
	if strings.TrimSpace(tmpl) == "" {
		return "", nil, errors.New("empty SQL template")
	}

	var params []any
	quoted := regexp.MustCompile(`'` + placeholderRe.String() + `'|"` + placeholderRe.String() + `"|` + placeholderRe.String())
	sanitised := quoted.ReplaceAllStringFunc(tmpl, func(match string) string {
		inner := strings.Trim(match, `'"`)
		ref := inner[1 : len(inner)-1]
		val, ok := resolve(ref, vars)
		if !ok {
			val = nil
		}
		params = append(params, sqlValue(val))
		return "?"
	})

	return sanitised, params, nil
}

// resolveNode walks a decoded JSON document, resolving string leaves.
func resolveNode(node any, vars *Vars) any {
	switch v := node.(type) {
	case string:
		if m := wholePlaceholderRe.FindStringSubmatch(strings.TrimSpace(v)); m != nil {
			val, _ := resolve(m[1], vars)
			return val
		}
		return FillText(v, vars)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, child := range v {
			out[k] = resolveNode(child, vars)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, child := range v {
			out[i] = resolveNode(child, vars)
		}
		return out
	default:
		return node
	}
}

// resolve looks up a placeholder reference. The second return reports whether
// the reference named an existing value.
func resolve(ref string, vars *Vars) (any, bool) {
	if vars == nil {
		vars = &Vars{}
	}

	switch {
	case ref == "query":
		return vars.Query, true
	case ref == "history":
		return historyValue(vars.History), true
	}

	source, key, ok := strings.Cut(ref, ".")
	if !ok {
		return nil, false
	}

	switch source {
	case "context":
		val, ok := vars.Context[key]
		return val, ok
	case "input":
		val, ok := vars.Inputs[key]
		return val, ok
	case "state":
		val, ok := vars.State[key]
		return val, ok
	case "env":
		val, ok := os.LookupEnv(key)
		if !ok {
			return nil, false
		}
		return val, true
	}
	return nil, false
}

func historyValue(history []map[string]any) any {
	if history == nil {
		return []map[string]any{}
	}
	return history
}

// stringify renders a resolved value for embedding inside a larger string.
// Strings pass through untouched; everything else becomes compact JSON.
func stringify(val any) string {
	if s, ok := val.(string); ok {
		return s
	}
	b, err := json.Marshal(val)
	if err != nil {
		return fmt.Sprint(val)
	}
	return string(b)
}

// sqlValue normalises a resolved value for parameter binding. Structured
// values are bound as their JSON encoding since SQL drivers cannot accept
// maps or slices directly.
func sqlValue(val any) any {
	switch val.(type) {
	case nil, string, bool, int, int64, float64, []byte:
		return val
	default:
		return stringify(val)
	}
}
