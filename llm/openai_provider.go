package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
	"github.com/openai/openai-go/shared"
)

const (
	// Reasoning effort levels
	reasoningNone    = "none"
	reasoningMinimal = "minimal"
	reasoningLow     = "low"
	reasoningMedium  = "medium"
	reasoningHigh    = "high"
	reasoningMin     = "min"
	reasoningMed     = "med"

	// Provider name
	providerNameOpenAI = "openai"

	functionCallType = "function_call"

	// Logging limits
	maxArgsLogLength = 100
	maxPreviewChars  = 200
)

// OpenAIProvider implements the Provider interface using OpenAI's Responses API
type OpenAIProvider struct {
	client *openai.Client
}

// NewOpenAIProvider creates a new OpenAI provider
func NewOpenAIProvider(apiKey string, opts ...option.RequestOption) *OpenAIProvider {
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	client := openai.NewClient(opts...)
	return &OpenAIProvider{
		client: &client,
	}
}

// Name returns the provider name
func (p *OpenAIProvider) Name() string {
	return providerNameOpenAI
}

// GenerateToolCalls implements tool-calling generation using OpenAI's Responses API
func (p *OpenAIProvider) GenerateToolCalls(ctx context.Context, request *ToolRequest) (*ToolResponse, error) {
	startTime := time.Now()
	log.Printf("🎵 OPENAI TOOL REQUEST STARTED (Model: %s, tools: %d)", request.Model, len(request.Tools))

	transaction := sentry.StartTransaction(ctx, "openai.generate_tool_calls")
	defer transaction.Finish()

	transaction.SetTag("model", request.Model)
	transaction.SetTag("provider", providerNameOpenAI)

	params := p.buildRequestParams(request)

	span := transaction.StartChild("openai.api_call")
	resp, err := p.client.Responses.New(transaction.Context(), params)
	apiDuration := time.Since(startTime)
	span.Finish()

	if err != nil {
		log.Printf("❌ OPENAI REQUEST FAILED after %v: %v", apiDuration, err)
		transaction.SetTag("success", "false")
		sentry.CaptureException(err)
		return nil, fmt.Errorf("openai request failed: %w", err)
	}
	log.Printf("⏱️  OPENAI API CALL COMPLETED in %v", apiDuration)

	result := p.processResponse(resp)
	transaction.SetTag("success", "true")
	transaction.SetData("tool_calls", len(result.Calls))
	log.Printf("✅ OPENAI TOOL REQUEST COMPLETED in %v (tool calls: %d)", time.Since(startTime), len(result.Calls))
	return result, nil
}

func (p *OpenAIProvider) buildRequestParams(request *ToolRequest) responses.ResponseNewParams {
	inputItems := responses.ResponseInputParam{
		responses.ResponseInputItemParamOfMessage(request.UserPrompt, responses.EasyInputMessageRoleUser),
	}

	tools := make([]responses.ToolUnionParam, 0, len(request.Tools))
	for _, def := range request.Tools {
		tool := responses.ToolParamOfFunction(def.Name, def.Parameters, false)
		if def.Description != "" {
			tool.OfFunction.Description = openai.String(def.Description)
		}
		tools = append(tools, tool)
	}

	return responses.ResponseNewParams{
		Model: request.Model,
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: inputItems,
		},
		Instructions:      openai.String(request.SystemPrompt),
		Tools:             tools,
		ParallelToolCalls: openai.Bool(true),
		Reasoning: shared.ReasoningParam{
			Effort: reasoningEffort(request.ReasoningMode),
		},
	}
}

// reasoningEffort maps a reasoning mode to the API enum, defaulting to low
func reasoningEffort(mode string) shared.ReasoningEffort {
	switch mode {
	case reasoningNone:
		return shared.ReasoningEffort("none")
	case reasoningMinimal, reasoningMin, reasoningLow:
		return responses.ReasoningEffortLow
	case reasoningMedium, reasoningMed:
		return responses.ReasoningEffortMedium
	case reasoningHigh:
		return responses.ReasoningEffortHigh
	default:
		return responses.ReasoningEffortLow
	}
}

// processResponse extracts function calls, text and usage from a response
func (p *OpenAIProvider) processResponse(resp *responses.Response) *ToolResponse {
	result := &ToolResponse{
		Text: resp.OutputText(),
		Usage: Usage{
			InputTokens:     int(resp.Usage.InputTokens),
			OutputTokens:    int(resp.Usage.OutputTokens),
			ReasoningTokens: int(resp.Usage.OutputTokensDetails.ReasoningTokens),
			TotalTokens:     int(resp.Usage.TotalTokens),
		},
	}

	for _, item := range resp.Output {
		if item.Type != functionCallType {
			continue
		}
		call := item.AsFunctionCall()
		log.Printf("   🛠️  Tool Call: %s", call.Name)
		log.Printf("     Arguments: %s", truncate(call.Arguments, maxArgsLogLength))

		sentry.AddBreadcrumb(&sentry.Breadcrumb{
			Category: "tool",
			Message:  fmt.Sprintf("Tool called: %s", call.Name),
			Level:    sentry.LevelInfo,
			Data: map[string]interface{}{
				"tool_name":   call.Name,
				"args_length": len(call.Arguments),
			},
		})

		result.Calls = append(result.Calls, ToolCall{
			ID:        call.CallID,
			Name:      call.Name,
			Arguments: json.RawMessage(call.Arguments),
		})
	}

	if len(result.Calls) == 0 && result.Text != "" {
		log.Printf("ℹ️  NO TOOL CALLS, text output: %s", truncate(result.Text, maxPreviewChars))
	}
	logUsageStats(result.Usage)
	return result
}

// logUsageStats logs token usage statistics
func logUsageStats(usage Usage) {
	log.Printf("📊 USAGE: input=%d, output=%d, reasoning=%d, total=%d",
		usage.InputTokens, usage.OutputTokens, usage.ReasoningTokens, usage.TotalTokens)
}

// truncate truncates a string to maxLen characters
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
