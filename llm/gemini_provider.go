package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/getsentry/sentry-go"
	"google.golang.org/genai"
)

const providerNameGemini = "gemini"

// GeminiProvider implements the Provider interface using the Gemini API
type GeminiProvider struct {
	client *genai.Client
}

// NewGeminiProvider creates a new Gemini provider
func NewGeminiProvider(ctx context.Context, apiKey string) (*GeminiProvider, error) {
	return NewGeminiProviderWithConfig(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
}

// NewGeminiProviderWithConfig creates a Gemini provider from a full client config
func NewGeminiProviderWithConfig(ctx context.Context, cfg *genai.ClientConfig) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &GeminiProvider{client: client}, nil
}

// Name returns the provider name
func (p *GeminiProvider) Name() string {
	return providerNameGemini
}

// GenerateToolCalls implements tool-calling generation with Gemini function declarations
func (p *GeminiProvider) GenerateToolCalls(ctx context.Context, request *ToolRequest) (*ToolResponse, error) {
	startTime := time.Now()
	log.Printf("🎵 GEMINI TOOL REQUEST STARTED (Model: %s, tools: %d)", request.Model, len(request.Tools))

	transaction := sentry.StartTransaction(ctx, "gemini.generate_tool_calls")
	defer transaction.Finish()

	transaction.SetTag("model", request.Model)
	transaction.SetTag("provider", providerNameGemini)

	decls := make([]*genai.FunctionDeclaration, 0, len(request.Tools))
	for _, def := range request.Tools {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:                 def.Name,
			Description:          def.Description,
			ParametersJsonSchema: def.Parameters,
		})
	}
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(request.SystemPrompt, genai.RoleUser),
		Tools:             []*genai.Tool{{FunctionDeclarations: decls}},
	}

	span := transaction.StartChild("gemini.api_call")
	resp, err := p.client.Models.GenerateContent(transaction.Context(), request.Model,
		genai.Text(request.UserPrompt), config)
	span.Finish()

	if err != nil {
		log.Printf("❌ GEMINI REQUEST FAILED after %v: %v", time.Since(startTime), err)
		transaction.SetTag("success", "false")
		sentry.CaptureException(err)
		return nil, fmt.Errorf("gemini request failed: %w", err)
	}

	result := &ToolResponse{Text: resp.Text()}
	for i, fc := range resp.FunctionCalls() {
		args, err := json.Marshal(fc.Args)
		if err != nil {
			return nil, fmt.Errorf("could not encode arguments of %s: %w", fc.Name, err)
		}
		id := fc.ID
		if id == "" {
			id = fmt.Sprintf("call_%d", i+1)
		}
		log.Printf("   🛠️  Tool Call: %s", fc.Name)
		result.Calls = append(result.Calls, ToolCall{ID: id, Name: fc.Name, Arguments: args})
	}
	if usage := resp.UsageMetadata; usage != nil {
		result.Usage = Usage{
			InputTokens:     int(usage.PromptTokenCount),
			OutputTokens:    int(usage.CandidatesTokenCount),
			ReasoningTokens: int(usage.ThoughtsTokenCount),
			TotalTokens:     int(usage.TotalTokenCount),
		}
	}
	logUsageStats(result.Usage)

	transaction.SetTag("success", "true")
	log.Printf("✅ GEMINI TOOL REQUEST COMPLETED in %v (tool calls: %d)", time.Since(startTime), len(result.Calls))
	return result, nil
}
