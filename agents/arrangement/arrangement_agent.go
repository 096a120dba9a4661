package arrangement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/Conceptual-Machines/magda-timeline-go/config"
	"github.com/Conceptual-Machines/magda-timeline-go/engine"
	"github.com/Conceptual-Machines/magda-timeline-go/host"
	"github.com/Conceptual-Machines/magda-timeline-go/llm"
	"github.com/Conceptual-Machines/magda-timeline-go/metrics"
	"github.com/Conceptual-Machines/magda-timeline-go/models"
	"github.com/Conceptual-Machines/magda-timeline-go/prompt"
)

const toolSource = "agent"

// ArrangementAgent turns natural-language edit requests into tool calls and
// runs them against the arrangement
type ArrangementAgent struct {
	provider     llm.Provider
	toolbox      *Toolbox
	model        string
	systemPrompt string
	metrics      *metrics.SentryMetrics
}

// NewArrangementAgent creates an agent that edits through e. If provider is
// nil, OpenAI is used.
func NewArrangementAgent(cfg *config.Config, provider llm.Provider, e *engine.Engine) (*ArrangementAgent, error) {
	systemPrompt, err := prompt.NewArrangementPromptBuilder(e.Settings().TimeSignature).BuildPrompt()
	if err != nil {
		return nil, fmt.Errorf("failed to build system prompt: %w", err)
	}

	if provider == nil {
		provider = llm.NewOpenAIProvider(cfg.OpenAIAPIKey)
	}

	agent := &ArrangementAgent{
		provider:     provider,
		toolbox:      NewToolbox(e),
		model:        cfg.Model,
		systemPrompt: systemPrompt,
		metrics:      metrics.NewSentryMetrics(),
	}

	log.Printf("🎵 ARRANGEMENT AGENT INITIALIZED:")
	log.Printf("   Provider: %s", provider.Name())
	log.Printf("   Model: %s", cfg.Model)
	log.Printf("   Time signature: %s", e.Settings().TimeSignature)

	return agent, nil
}

// GenerateEdits asks the model for edits to the clips on tracks and runs
// every returned tool call in order. A tool that fails softly is reported
// in its action and the rest still run. A partial edit stops the run; the
// actions performed so far are returned together with the error.
func (a *ArrangementAgent) GenerateEdits(
	ctx context.Context, question string, tracks []host.TrackID, reasoningMode string,
) (*models.EditActionsOutput, error) {
	startTime := time.Now()
	log.Printf("🎵 ARRANGEMENT REQUEST STARTED (Model: %s)", a.model)

	transaction := sentry.StartTransaction(ctx, "arrangement.generate_edits")
	defer transaction.Finish()
	transaction.SetTag("model", a.model)
	transaction.SetTag("track_count", fmt.Sprintf("%d", len(tracks)))
	ctx = transaction.Context()

	output, err := a.generate(ctx, question, tracks, reasoningMode)
	duration := time.Since(startTime)
	a.metrics.RecordGenerationDuration(ctx, duration, err == nil)

	if err != nil {
		transaction.SetTag("success", "false")
		sentry.CaptureException(err)
		log.Printf("❌ ARRANGEMENT REQUEST FAILED after %v: %v", duration, err)
		return output, err
	}

	transaction.SetTag("success", "true")
	transaction.SetTag("action_count", fmt.Sprintf("%d", len(output.Actions)))
	log.Printf("✅ ARRANGEMENT REQUEST COMPLETE: %d actions in %v", len(output.Actions), duration)
	return output, nil
}

func (a *ArrangementAgent) generate(
	ctx context.Context, question string, tracks []host.TrackID, reasoningMode string,
) (*models.EditActionsOutput, error) {
	state, err := a.toolbox.Engine().ListClips(ctx, tracks)
	if err != nil {
		return nil, fmt.Errorf("failed to read arrangement state: %w", err)
	}
	userPrompt, err := buildUserPrompt(question, state)
	if err != nil {
		return nil, err
	}

	log.Printf("🚀 PROVIDER REQUEST: %s model=%s, clips=%d", a.provider.Name(), a.model, len(state))
	resp, err := a.provider.GenerateToolCalls(ctx, &llm.ToolRequest{
		Model:         a.model,
		SystemPrompt:  a.systemPrompt,
		UserPrompt:    userPrompt,
		Tools:         ToolDefinitions(),
		ReasoningMode: reasoningMode,
	})
	if err != nil {
		return nil, fmt.Errorf("provider request failed: %w", err)
	}

	a.metrics.RecordTokenUsage(ctx, a.model,
		resp.Usage.TotalTokens, resp.Usage.InputTokens, resp.Usage.OutputTokens, resp.Usage.ReasoningTokens)

	if len(resp.Calls) == 0 {
		if resp.Text != "" {
			log.Printf("⚠️  Model answered without tool calls: %s", truncate(resp.Text, maxArgsLogLength))
		}
		return nil, fmt.Errorf("no tool calls in response")
	}

	output := &models.EditActionsOutput{}
	for _, call := range resp.Calls {
		action := models.EditAction{Tool: call.Name}
		if err := call.DecodeArguments(&action.Arguments); err != nil {
			action.Error = err.Error()
			output.Actions = append(output.Actions, action)
			continue
		}

		result, err := a.toolbox.Execute(ctx, toolSource, call.Name, call.Arguments)
		if result != nil {
			action.Clips = result.Clips
			action.Warnings = result.Warnings
		}
		if err != nil {
			action.Error = err.Error()
			output.Actions = append(output.Actions, action)
			if errors.Is(err, engine.ErrPartialEdit) {
				return output, fmt.Errorf("%s stopped the run: %w", call.Name, err)
			}
			continue
		}
		output.Actions = append(output.Actions, action)
	}
	return output, nil
}

// buildUserPrompt combines the request with the current clips as JSON
func buildUserPrompt(question string, state []models.ClipInfo) (string, error) {
	if state == nil {
		state = []models.ClipInfo{}
	}
	raw, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode arrangement state: %w", err)
	}

	var b strings.Builder
	b.WriteString("Current arrangement state:\n")
	b.Write(raw)
	b.WriteString("\n\nRequest: ")
	b.WriteString(strings.TrimSpace(question))
	return b.String(), nil
}
