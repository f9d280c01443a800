// Package tools defines the provider contract the agent loop calls tools
// through, with in-process and MCP-backed implementations and a registry that
// routes calls between them.
package tools

import (
	"context"
	"encoding/json"

	"github.com/loganventer/loganventerprofile-sub000/pkg/llm"
)

// Descriptor advertises one tool to the model. InputSchema is an object-typed
// JSON schema.
type Descriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// LLMTool converts the descriptor to the shape LLM providers accept.
func (d Descriptor) LLMTool() llm.Tool {
	return llm.Tool{
		Name:        d.Name,
		Description: d.Description,
		Parameters:  d.InputSchema,
	}
}

// Provider is a source of tools. Execute never fails: errors come back as a
// JSON object with an "error" field so the model can read them.
type Provider interface {
	Name() string
	// Initialize prepares the provider. It is safe to call more than once.
	Initialize(ctx context.Context) error
	Tools() []Descriptor
	Execute(ctx context.Context, name string, input json.RawMessage) string
	Validate(name string, input json.RawMessage) bool
	Dispose(ctx context.Context) error
	// Available reports whether the provider contributes tools right now.
	Available() bool
}

// ErrorResult renders msg as {"error": msg}.
func ErrorResult(msg string) string {
	data, err := json.Marshal(map[string]string{"error": msg})
	if err != nil {
		return `{"error":"internal error"}`
	}
	return string(data)
}

// JSONResult renders v, or an error result when v cannot be encoded.
func JSONResult(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ErrorResult("failed to encode tool result")
	}
	return string(data)
}

// stringSchema describes an object with one required, length-bounded string
// property.
func stringSchema(field, description string, maxLen int) map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			field: map[string]any{
				"type":        "string",
				"description": description,
				"maxLength":   maxLen,
			},
		},
		"required": []string{field},
	}
}
