package models

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// LLMTool is a callable tool which may be offered to a model.
type LLMTool interface {
	// Call the tool with the arguments the model decided on. The context is
	// cancelled on caller disconnect or when the tool times out.
	Call(ctx context.Context, input Input) (string, error)

	// Specification returns the name, description and parameter schema
	// sent to the providers.
	Specification() Specification
}

type Input map[string]any

type Call struct {
	ID     string `json:"id,omitempty"`
	Name   string `json:"name"`
	Inputs *Input `json:"arguments,omitempty"`
}

// Patch the call so that all vendors accept it: a missing id is generated
// and nil inputs become an empty object.
func (c *Call) Patch() {
	if c.ID == "" {
		c.ID = "call_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	}
	if c.Inputs == nil {
		c.Inputs = &Input{}
	}
}

// Args returns the inputs of the call, never nil.
func (c Call) Args() Input {
	if c.Inputs == nil {
		return Input{}
	}
	return *c.Inputs
}

// ArgumentsJSON returns the inputs as a JSON object string, the format most
// vendors expect for function arguments.
func (c Call) ArgumentsJSON() string {
	b, err := json.Marshal(c.Args())
	if err != nil {
		return "{}"
	}
	return string(b)
}

// PrettyPrint the call, showing name and what input params is used
// on a concise way
func (c Call) PrettyPrint() string {
	inp := c.Args()
	keys := make([]string, 0, len(inp))
	for k := range inp {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	params := make([]string, 0, len(keys))
	for _, k := range keys {
		params = append(params, fmt.Sprintf("'%v': '%v'", k, inp[k]))
	}
	return fmt.Sprintf("Call: '%s', inputs: [ %s ]", c.Name, strings.Join(params, ","))
}

func (c Call) JSON() string {
	json, err := json.Marshal(c)
	if err != nil {
		return fmt.Sprintf("ERROR: Failed to unmarshal: %v", err)
	}
	return string(json)
}

type Specification struct {
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Inputs      *InputSchema `json:"parameters,omitempty"`
}

type InputSchema struct {
	Type       string                     `json:"type"`
	Required   []string                   `json:"required"`
	Properties map[string]ParameterObject `json:"properties"`
}

// Patch the input schema, making it compatible with mcp servers and the
// strictest vendor validators.
func (is *InputSchema) Patch() {
	if is.Required == nil {
		is.Required = make([]string, 0)
	}
	if is.Properties == nil {
		is.Properties = make(map[string]ParameterObject)
	}
	if is.Type == "" {
		is.Type = "object"
	}
	for k, p := range is.Properties {
		if p.Type == "array" && p.Items == nil {
			p.Items = &ParameterObject{Type: "string"}
			is.Properties[k] = p
		}
	}
}

// IsOk checks if the input schema is ok
func (is *InputSchema) IsOk() bool {
	for _, p := range is.Properties {
		if p.Type == "array" && p.Items == nil {
			return false
		}
	}
	return true
}

type ParameterObject struct {
	Type        string                     `json:"type,omitempty"`
	Description string                     `json:"description,omitempty"`
	Enum        *[]string                  `json:"enum,omitempty"`
	Items       *ParameterObject           `json:"items,omitempty"`
	Properties  map[string]ParameterObject `json:"properties,omitempty"`
	Required    []string                   `json:"required,omitempty"`
}

// InputSchemaFromRaw converts an arbitrary JSON schema object, as returned
// by integration servers, into an InputSchema. Union types such as
// ["string","null"] collapse to their first non-null member.
func InputSchemaFromRaw(raw json.RawMessage) (InputSchema, error) {
	var m map[string]any
	if len(raw) == 0 {
		is := InputSchema{}
		is.Patch()
		return is, nil
	}
	if err := json.Unmarshal(raw, &m); err != nil {
		return InputSchema{}, fmt.Errorf("failed to unmarshal schema: %w", err)
	}
	return InputSchemaFromMap(m), nil
}

// InputSchemaFromMap is InputSchemaFromRaw for already decoded schemas.
func InputSchemaFromMap(m map[string]any) InputSchema {
	p := parameterFromMap(m)
	is := InputSchema{
		Type:       p.Type,
		Required:   p.Required,
		Properties: p.Properties,
	}
	is.Patch()
	return is
}

// parameterFromMap converts one schema node. Properties without any type
// information keep an empty type, meaning any value is accepted.
func parameterFromMap(m map[string]any) ParameterObject {
	if schemaType(m["type"]) == "" {
		if alt, ok := firstNonNullAlternative(m); ok {
			p := parameterFromMap(alt)
			if d, ok := m["description"].(string); ok && d != "" {
				p.Description = d
			}
			return p
		}
	}
	p := ParameterObject{Type: schemaType(m["type"])}
	if d, ok := m["description"].(string); ok {
		p.Description = d
	}
	if enum, ok := m["enum"].([]any); ok {
		vals := make([]string, 0, len(enum))
		for _, e := range enum {
			vals = append(vals, fmt.Sprintf("%v", e))
		}
		p.Enum = &vals
	}
	if items, ok := m["items"].(map[string]any); ok {
		it := parameterFromMap(items)
		p.Items = &it
	}
	if props, ok := m["properties"].(map[string]any); ok {
		p.Properties = make(map[string]ParameterObject, len(props))
		for k, v := range props {
			if vm, ok := v.(map[string]any); ok {
				p.Properties[k] = parameterFromMap(vm)
			}
		}
	}
	if req, ok := m["required"].([]any); ok {
		for _, r := range req {
			if s, ok := r.(string); ok {
				p.Required = append(p.Required, s)
			}
		}
	}
	if p.Type == "" && p.Properties != nil {
		p.Type = "object"
	}
	return p
}

// firstNonNullAlternative picks the first anyOf or oneOf member which isn't
// {"type":"null"}.
func firstNonNullAlternative(m map[string]any) (map[string]any, bool) {
	for _, key := range []string{"anyOf", "oneOf"} {
		alts, ok := m[key].([]any)
		if !ok {
			continue
		}
		for _, a := range alts {
			am, ok := a.(map[string]any)
			if !ok {
				continue
			}
			if t, _ := am["type"].(string); t == "null" {
				continue
			}
			return am, true
		}
	}
	return nil, false
}

func schemaType(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		for _, e := range t {
			if s, ok := e.(string); ok && s != "null" {
				return s
			}
		}
	}
	return ""
}
