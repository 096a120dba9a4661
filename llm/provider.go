package llm

import (
	"context"
	"encoding/json"
	"fmt"
)

// Provider generates tool calls from an LLM
type Provider interface {
	// Name returns the provider name ("openai", "gemini")
	Name() string
	// GenerateToolCalls sends the request and returns the tool calls the
	// model asked for, in order
	GenerateToolCalls(ctx context.Context, request *ToolRequest) (*ToolResponse, error)
}

// ToolDefinition describes one function the model may call
type ToolDefinition struct {
	Name        string
	Description string
	// Parameters is a JSON schema object
	Parameters map[string]any
}

// ToolRequest is a provider-neutral tool-calling request
type ToolRequest struct {
	Model         string
	SystemPrompt  string
	UserPrompt    string
	Tools         []ToolDefinition
	ReasoningMode string
}

// ToolCall is one function call returned by the model
type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// Usage is the token usage of one request
type Usage struct {
	InputTokens     int
	OutputTokens    int
	ReasoningTokens int
	TotalTokens     int
}

// ToolResponse holds the tool calls and any text the model produced
type ToolResponse struct {
	Calls []ToolCall
	Text  string
	Usage Usage
}

// DecodeArguments unmarshals the call arguments into v
func (c ToolCall) DecodeArguments(v any) error {
	args := c.Arguments
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("invalid arguments for %s: %w", c.Name, err)
	}
	return nil
}
