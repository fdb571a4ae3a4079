// Package models contains domain models for tracehook.
package models

import "time"

// Sentinel values used when a transcript yields no usable content.
const (
	NoPrompt     = "[No prompt]"
	NoResponse   = "[No response]"
	UnknownModel = "unknown"
)

// UsageContext holds the token and timing metrics for one usage event.
// Token counts come from the last assistant entry that reported them,
// never a sum across entries.
type UsageContext struct {
	InputTokens  int64  `json:"input_tokens"`
	OutputTokens int64  `json:"output_tokens"`
	Model        string `json:"model"`
	DurationMS   int64  `json:"duration_ms"`
}

// TotalTokens returns input plus output tokens.
func (c UsageContext) TotalTokens() int64 {
	return c.InputTokens + c.OutputTokens
}

// ToolCall is a single tool invocation extracted from a transcript.
type ToolCall struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Input map[string]any `json:"input"`
}

// UsageRecord is the summary derived from one session transcript. It is
// produced by the transcript parser and consumed by the usage reporter.
// UserPrompt and AssistantResponse are truncated before leaving the
// process; callers must assume the values may be cut short.
type UsageRecord struct {
	UserPrompt        string       `json:"user_prompt"`
	AssistantResponse string       `json:"assistant_response"`
	Context           UsageContext `json:"context"`
	GitHubUsername    string       `json:"github_username"`
	SessionID         string       `json:"session_id"`
	ProjectName       string       `json:"project_name,omitempty"`
	RepoFullName      string       `json:"repo_full_name,omitempty"`
	RepoURL           string       `json:"repo_url,omitempty"`
	MessageCount      int          `json:"message_count"`
	ToolCalls         []ToolCall   `json:"tool_calls,omitempty"`
	Timestamp         time.Time    `json:"timestamp"`
}

// Truncate cuts s to at most max runes. No ellipsis is appended.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
