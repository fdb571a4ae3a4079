// Package api defines the wire types shared by the server, the hooks,
// and the admin CLI.
package api

import (
	"time"

	"github.com/thebtf/tracehook/pkg/models"
)

// Response status values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// ToolCallPayload mirrors models.ToolCall on the wire.
type ToolCallPayload struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Input map[string]any `json:"input,omitempty"`
}

// ReportRequest is the body of POST /api/report.
type ReportRequest struct {
	UserPrompt        string            `json:"user_prompt"`
	AssistantResponse string            `json:"assistant_response"`
	InputTokens       int64             `json:"input_tokens"`
	OutputTokens      int64             `json:"output_tokens"`
	Model             string            `json:"model"`
	DurationMS        int64             `json:"duration_ms"`
	GitHubUsername    string            `json:"github_username"`
	SessionID         string            `json:"session_id"`
	ProjectName       string            `json:"project_name,omitempty"`
	RepoFullName      string            `json:"repo_full_name,omitempty"`
	RepoURL           string            `json:"repo_url,omitempty"`
	MessageCount      int               `json:"message_count"`
	ToolCalls         []ToolCallPayload `json:"tool_calls,omitempty"`
}

// ReportResponse is the body returned by POST /api/report. TraceID is
// null when delivery failed.
type ReportResponse struct {
	Status     string  `json:"status"`
	TraceID    *string `json:"trace_id"`
	Message    string  `json:"message"`
	TokensUsed int64   `json:"tokens_used,omitempty"`
	ErrorType  string  `json:"error_type,omitempty"`
}

// GenerateTokenRequest is the body of POST /api/tokens/generate.
type GenerateTokenRequest struct {
	UserID string   `json:"user_id"`
	Scopes []string `json:"scopes,omitempty"`
}

// GenerateTokenResponse returns the full token, the only time it is
// ever shown.
type GenerateTokenResponse struct {
	Status  string   `json:"status"`
	Token   string   `json:"token"`
	UserID  string   `json:"user_id"`
	Scopes  []string `json:"scopes"`
	Message string   `json:"message"`
}

// RevokeTokenRequest is the body of POST /api/tokens/revoke.
type RevokeTokenRequest struct {
	Token string `json:"token"`
}

// RevokeTokenResponse is the body returned by POST /api/tokens/revoke.
type RevokeTokenResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Revoked bool   `json:"revoked"`
}

// TokenSummary lists one token with its value truncated to a preview.
type TokenSummary struct {
	TokenPreview string    `json:"token_preview"`
	UserID       string    `json:"user_id"`
	Scopes       []string  `json:"scopes"`
	Revoked      bool      `json:"revoked"`
	CreatedAt    time.Time `json:"created_at"`
}

// TokenListResponse is the body of GET /api/tokens.
type TokenListResponse struct {
	Status string         `json:"status"`
	Count  int            `json:"count"`
	Tokens []TokenSummary `json:"tokens"`
}

// JournalEntryPayload is one journaled report outcome on the wire.
type JournalEntryPayload struct {
	TraceID      string    `json:"trace_id"`
	UserID       string    `json:"user_id"`
	SessionID    string    `json:"session_id"`
	Project      string    `json:"project"`
	Model        string    `json:"model"`
	InputTokens  int64     `json:"input_tokens"`
	OutputTokens int64     `json:"output_tokens"`
	DurationMS   int64     `json:"duration_ms"`
	ToolCount    int       `json:"tool_count"`
	Status       string    `json:"status"`
	Error        string    `json:"error,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// RecentReportsResponse is the body of GET /api/reports/recent.
type RecentReportsResponse struct {
	Status  string                `json:"status"`
	Count   int                   `json:"count"`
	Totals  map[string]int64      `json:"totals"`
	Reports []JournalEntryPayload `json:"reports"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status             string `json:"status"`
	Server             string `json:"server"`
	Version            string `json:"version"`
	LangfuseConfigured bool   `json:"langfuse_configured"`
}

// ErrorResponse is the generic body for auth and validation rejections.
type ErrorResponse struct {
	Error string `json:"error"`
}

// FromRecord builds the wire request for a parsed usage record.
func FromRecord(rec *models.UsageRecord) ReportRequest {
	req := ReportRequest{
		UserPrompt:        rec.UserPrompt,
		AssistantResponse: rec.AssistantResponse,
		InputTokens:       rec.Context.InputTokens,
		OutputTokens:      rec.Context.OutputTokens,
		Model:             rec.Context.Model,
		DurationMS:        rec.Context.DurationMS,
		GitHubUsername:    rec.GitHubUsername,
		SessionID:         rec.SessionID,
		ProjectName:       rec.ProjectName,
		RepoFullName:      rec.RepoFullName,
		RepoURL:           rec.RepoURL,
		MessageCount:      rec.MessageCount,
	}
	for _, call := range rec.ToolCalls {
		req.ToolCalls = append(req.ToolCalls, ToolCallPayload{ID: call.ID, Name: call.Name, Input: call.Input})
	}
	return req
}

// Record converts the request into a usage record, applying the model
// sentinel, clamping negative counts, and stamping the receive time.
func (r ReportRequest) Record() *models.UsageRecord {
	model := r.Model
	if model == "" {
		model = models.UnknownModel
	}

	rec := &models.UsageRecord{
		UserPrompt:        r.UserPrompt,
		AssistantResponse: r.AssistantResponse,
		Context: models.UsageContext{
			InputTokens:  clampNonNegative(r.InputTokens),
			OutputTokens: clampNonNegative(r.OutputTokens),
			Model:        model,
			DurationMS:   clampNonNegative(r.DurationMS),
		},
		GitHubUsername: r.GitHubUsername,
		SessionID:      r.SessionID,
		ProjectName:    r.ProjectName,
		RepoFullName:   r.RepoFullName,
		RepoURL:        r.RepoURL,
		MessageCount:   r.MessageCount,
		Timestamp:      time.Now(),
	}
	for _, call := range r.ToolCalls {
		input := call.Input
		if input == nil {
			input = map[string]any{}
		}
		name := call.Name
		if name == "" {
			name = "unknown"
		}
		rec.ToolCalls = append(rec.ToolCalls, models.ToolCall{ID: call.ID, Name: name, Input: input})
	}
	return rec
}

// clampNonNegative floors counts and durations at zero. These fields
// are non-negative quantities; a negative value from a client is noise.
func clampNonNegative(n int64) int64 {
	if n < 0 {
		return 0
	}
	return n
}
