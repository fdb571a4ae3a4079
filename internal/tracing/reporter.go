// Package tracing composes usage records into the Langfuse trace graph:
// one trace per report, a root span carrying the conversation summary, a
// nested generation carrying token usage, and one flat span per tool
// invocation.
package tracing

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/tracehook/internal/langfuse"
	"github.com/thebtf/tracehook/pkg/models"
)

// Prompt and response are clipped harder at the trace boundary than at
// the hook boundary, so traces stay cheap to list in the UI.
const (
	tracePromptRunes   = 500
	traceResponseRunes = 1000
)

// Observation names as they appear in Langfuse.
const (
	rootSpanName       = "claude-code-usage"
	generationName     = "claude-code-generation"
	toolSpanNamePrefix = "tool:"
)

// Sink consumes the observation events the reporter composes. The
// langfuse client is the production implementation.
type Sink interface {
	CreateTrace(langfuse.TraceBody)
	CreateSpan(langfuse.ObservationBody)
	CreateGeneration(langfuse.ObservationBody)
	Flush(ctx context.Context) error
}

// Reporter turns usage records into trace batches.
type Reporter struct {
	sink Sink
}

// NewReporter returns a Reporter writing to sink.
func NewReporter(sink Sink) *Reporter {
	return &Reporter{sink: sink}
}

// Report composes the trace graph for one record and flushes it. The
// trace ID is returned even when delivery fails so callers can log it.
func (r *Reporter) Report(ctx context.Context, rec *models.UsageRecord) (string, error) {
	traceID := langfuse.NewTraceID()
	now := time.Now().UTC()

	prompt := models.Truncate(rec.UserPrompt, tracePromptRunes)
	response := models.Truncate(rec.AssistantResponse, traceResponseRunes)

	tags := []string{"claude-code", rec.Context.Model}
	if rec.RepoFullName != "" {
		tags = append(tags, "repo:"+rec.RepoFullName)
	}
	r.sink.CreateTrace(langfuse.TraceBody{
		ID:        traceID,
		Timestamp: now,
		Name:      rootSpanName,
		UserID:    rec.GitHubUsername,
		SessionID: rec.SessionID,
		Tags:      tags,
	})

	// Optional fields are omitted from the root span so its metadata
	// only carries what the session actually produced.
	spanMeta := map[string]any{
		"project_name": rec.ProjectName,
		"timestamp":    rec.Timestamp.Format(time.RFC3339),
		"total_tokens": rec.Context.TotalTokens(),
	}
	if rec.RepoFullName != "" {
		spanMeta["repo_full_name"] = rec.RepoFullName
	}
	if rec.RepoURL != "" {
		spanMeta["repo_url"] = rec.RepoURL
	}
	if rec.MessageCount > 0 {
		spanMeta["message_count"] = rec.MessageCount
	}
	if len(rec.ToolCalls) > 0 {
		spanMeta["tool_count"] = len(rec.ToolCalls)
	}

	rootID := langfuse.NewObservationID()
	r.sink.CreateSpan(langfuse.ObservationBody{
		ID:        rootID,
		TraceID:   traceID,
		Name:      rootSpanName,
		StartTime: now,
		EndTime:   now,
		Input:     map[string]any{"user_prompt": prompt},
		Output:    map[string]any{"assistant_response": response},
		Metadata:  spanMeta,
	})

	// The generation keeps repo fields present even when empty so
	// dashboards can group on them uniformly.
	r.sink.CreateGeneration(langfuse.ObservationBody{
		ID:                  langfuse.NewObservationID(),
		TraceID:             traceID,
		ParentObservationID: rootID,
		Name:                generationName,
		StartTime:           now,
		EndTime:             now,
		Model:               rec.Context.Model,
		Input:               prompt,
		Output:              response,
		Metadata: map[string]any{
			"duration_ms":    rec.Context.DurationMS,
			"project":        rec.ProjectName,
			"repo_full_name": rec.RepoFullName,
			"repo_url":       rec.RepoURL,
			"message_count":  rec.MessageCount,
		},
		UsageDetails: map[string]int64{
			"input":  rec.Context.InputTokens,
			"output": rec.Context.OutputTokens,
			"total":  rec.Context.TotalTokens(),
		},
	})

	// Tool spans hang off the trace itself, not the root span.
	for _, call := range rec.ToolCalls {
		r.sink.CreateSpan(langfuse.ObservationBody{
			ID:        langfuse.NewObservationID(),
			TraceID:   traceID,
			Name:      toolSpanNamePrefix + call.Name,
			StartTime: now,
			EndTime:   now,
			Metadata: map[string]any{
				"tool_id":   call.ID,
				"tool_name": call.Name,
			},
		})
	}

	if err := r.sink.Flush(ctx); err != nil {
		return traceID, fmt.Errorf("deliver trace: %w", err)
	}

	log.Debug().
		Str("trace_id", traceID).
		Str("user_id", rec.GitHubUsername).
		Int64("total_tokens", rec.Context.TotalTokens()).
		Int("tool_calls", len(rec.ToolCalls)).
		Msg("Reported usage trace")
	return traceID, nil
}
