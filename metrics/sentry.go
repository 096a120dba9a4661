package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
)

// SentryMetrics handles custom metrics for Sentry
type SentryMetrics struct {
	enabled bool
}

// NewSentryMetrics creates a new Sentry metrics client
func NewSentryMetrics() *SentryMetrics {
	return &SentryMetrics{
		enabled: true, // Always enabled if Sentry is configured
	}
}

// NewDisabledMetrics returns a client that records nothing
func NewDisabledMetrics() *SentryMetrics {
	return &SentryMetrics{}
}

// EditOperation summarizes one arrangement edit for reporting
type EditOperation struct {
	Name      string
	Clips     int
	Warnings  int
	HostCalls int
	Duration  time.Duration
	Success   bool
}

// RecordEditOperation records one engine operation (lengthen, split, slice, move)
func (m *SentryMetrics) RecordEditOperation(ctx context.Context, op EditOperation) {
	if m == nil || !m.enabled {
		return
	}

	span := sentry.StartSpan(ctx, "arrangement."+op.Name)
	defer span.Finish()

	span.SetTag("operation", op.Name)
	span.SetTag("success", fmt.Sprintf("%t", op.Success))
	span.SetTag("had_warnings", fmt.Sprintf("%t", op.Warnings > 0))

	span.SetData("clips", op.Clips)
	span.SetData("warnings", op.Warnings)
	span.SetData("host_calls", op.HostCalls)
	span.SetData("duration_ms", op.Duration.Milliseconds())

	if op.Success {
		span.Status = sentry.SpanStatusOK
	} else {
		span.Status = sentry.SpanStatusInternalError
	}
	span.Description = fmt.Sprintf("Arrangement %s: %d clips, %d host calls", op.Name, op.Clips, op.HostCalls)
}

// RecordTokenUsage records LLM token usage metrics
func (m *SentryMetrics) RecordTokenUsage(ctx context.Context, model string, totalTokens, inputTokens, outputTokens, reasoningTokens int) {
	if m == nil || !m.enabled {
		return
	}

	if transaction := sentry.TransactionFromContext(ctx); transaction != nil {
		transaction.SetTag("llm.model", model)
		transaction.SetTag("llm.total_tokens", fmt.Sprintf("%d", totalTokens))
		transaction.SetData("llm.total_tokens", totalTokens)
		transaction.SetData("llm.input_tokens", inputTokens)
		transaction.SetData("llm.output_tokens", outputTokens)
		transaction.SetData("llm.reasoning_tokens", reasoningTokens)
	}

	span := sentry.StartSpan(ctx, "llm.token_usage")
	defer span.Finish()

	span.SetTag("model", model)
	span.SetData("total_tokens", totalTokens)
	span.SetData("input_tokens", inputTokens)
	span.SetData("output_tokens", outputTokens)
	span.SetData("reasoning_tokens", reasoningTokens)

	span.Status = sentry.SpanStatusOK
	span.Description = fmt.Sprintf("Token Usage: %s", model)
}

// RecordToolCall records one tool dispatch coming from an agent or the MCP server
func (m *SentryMetrics) RecordToolCall(ctx context.Context, source, tool string, success bool) {
	if m == nil || !m.enabled {
		return
	}

	span := sentry.StartSpan(ctx, "tool.call")
	defer span.Finish()

	span.SetTag("source", source)
	span.SetTag("tool", tool)
	span.SetTag("success", fmt.Sprintf("%t", success))
	span.SetData("success", success)

	if success {
		span.Status = sentry.SpanStatusOK
	} else {
		span.Status = sentry.SpanStatusInternalError
	}
	span.Description = fmt.Sprintf("Tool Call: %s (%s)", tool, source)
}

// RecordGenerationDuration records generation request duration
func (m *SentryMetrics) RecordGenerationDuration(ctx context.Context, duration time.Duration, success bool) {
	if m == nil || !m.enabled {
		return
	}

	span := sentry.StartSpan(ctx, "generation.request")
	defer span.Finish()

	span.SetTag("success", fmt.Sprintf("%t", success))
	span.SetData("duration_ms", duration.Milliseconds())
	span.SetData("success", success)

	if success {
		span.Status = sentry.SpanStatusOK
	} else {
		span.Status = sentry.SpanStatusInternalError
	}

	span.Description = fmt.Sprintf("Generation Request: %t", success)
}

// InitSentry configures the Sentry client when dsn is set. The returned
// function flushes pending events and is safe to call when Sentry is off.
func InitSentry(dsn, release string) (func(), error) {
	if dsn == "" {
		return func() {}, nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Release:          release,
		EnableTracing:    true,
		TracesSampleRate: 1.0,
	})
	if err != nil {
		return func() {}, fmt.Errorf("sentry init failed: %w", err)
	}
	return func() { sentry.Flush(2 * time.Second) }, nil
}
