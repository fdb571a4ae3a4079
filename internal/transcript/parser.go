// Package transcript reconstructs a usage record from a Claude Code
// session transcript (newline-delimited JSON) and locates transcripts
// on disk from a session id and working directory.
package transcript

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/tracehook/internal/privacy"
	"github.com/thebtf/tracehook/pkg/models"
)

// ErrTranscriptUnavailable marks a transcript source that cannot be
// opened or read. Fatal to the single report, never to the process.
var ErrTranscriptUnavailable = errors.New("transcript unavailable")

// fileDumpMarker prefixes user entries that inline file contents
// (line-numbered dumps echoed by the host tool). Such entries are not
// authored user intent and are never selected as the last prompt.
const fileDumpMarker = "     1→"

// maxFieldRunes bounds prompt and response text leaving the parser.
const maxFieldRunes = 2000

// Transcript lines can carry entire file dumps, so the scanner needs
// far more than the bufio default.
const (
	scanBufInitial = 256 * 1024
	scanBufMax     = 2 * 1024 * 1024
)

// rawEntry is one transcript line. Fields we do not consume are left
// undeclared so unknown entry types decode without error.
type rawEntry struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId"`
	Timestamp string      `json:"timestamp"`
	Message   *rawMessage `json:"message"`
}

type rawMessage struct {
	Role    string          `json:"role"`
	Model   string          `json:"model"`
	Content json.RawMessage `json:"content"`
	Usage   *rawUsage       `json:"usage"`
}

type rawUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// partKind tags the decoded variants of a message content element.
type partKind int

const (
	partText partKind = iota
	partToolUse
	partToolResult
)

// contentPart is one decoded element of a message content value.
type contentPart struct {
	kind partKind
	text string
	tool models.ToolCall
}

// rawItem covers the object shapes that appear inside content arrays.
type rawItem struct {
	Type    string          `json:"type"`
	Text    string          `json:"text"`
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Input   map[string]any  `json:"input"`
	Content json.RawMessage `json:"content"`
}

// decodeContent turns the polymorphic content value (a bare string, or
// an array mixing strings, text items, tool_use items, and tool
// results) into tagged parts. Anything unrecognized is dropped.
func decodeContent(raw json.RawMessage) []contentPart {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}

	if trimmed[0] == '"' {
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return nil
		}
		return []contentPart{{kind: partText, text: text}}
	}

	if trimmed[0] != '[' {
		return nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil
	}

	parts := make([]contentPart, 0, len(items))
	for _, item := range items {
		item = bytes.TrimSpace(item)
		if len(item) == 0 {
			continue
		}
		if item[0] == '"' {
			var text string
			if err := json.Unmarshal(item, &text); err == nil {
				parts = append(parts, contentPart{kind: partText, text: text})
			}
			continue
		}
		if item[0] != '{' {
			continue
		}
		var obj rawItem
		if err := json.Unmarshal(item, &obj); err != nil {
			continue
		}
		switch {
		case obj.Type == "text":
			parts = append(parts, contentPart{kind: partText, text: obj.Text})
		case obj.Type == "tool_use":
			tool := models.ToolCall{ID: obj.ID, Name: obj.Name, Input: obj.Input}
			if tool.Name == "" {
				tool.Name = "unknown"
			}
			if tool.Input == nil {
				tool.Input = map[string]any{}
			}
			parts = append(parts, contentPart{kind: partToolUse, tool: tool})
		case len(obj.Content) > 0:
			// Tool result: echoes file/command output, must not
			// pollute prompt or response text.
			parts = append(parts, contentPart{kind: partToolResult})
		}
	}
	return parts
}

// parser accumulates state across transcript entries.
type parser struct {
	userPieces      []string
	assistantPieces []string
	toolCalls       []models.ToolCall
	inputTokens     int64
	outputTokens    int64
	model           string
	sessionID       string
	firstTimestamp  string
	lastTimestamp   string
	messageCount    int
	skippedLines    int
}

// Parse reads the transcript at path and derives a usage record.
func Parse(path string) (*models.UsageRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTranscriptUnavailable, err)
	}
	defer f.Close()

	rec, err := ParseReader(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrTranscriptUnavailable, path, err)
	}
	return rec, nil
}

// ParseReader derives a usage record from a stream of transcript lines.
// Individual lines that fail to parse are skipped; only a failure to
// read the stream itself is an error.
func ParseReader(r io.Reader) (*models.UsageRecord, error) {
	p := &parser{
		model:     models.UnknownModel,
		sessionID: "unknown",
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, scanBufInitial), scanBufMax)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var entry rawEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			p.skippedLines++
			continue
		}
		p.observe(&entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if p.skippedLines > 0 {
		log.Debug().Int("lines", p.skippedLines).Msg("Skipped unparseable transcript lines")
	}
	return p.record(), nil
}

// observe folds one entry into the parser state.
func (p *parser) observe(entry *rawEntry) {
	if entry.SessionID != "" {
		p.sessionID = entry.SessionID
	}
	if entry.Timestamp != "" {
		if p.firstTimestamp == "" {
			p.firstTimestamp = entry.Timestamp
		}
		p.lastTimestamp = entry.Timestamp
	}

	role := ""
	if entry.Message != nil {
		role = entry.Message.Role
	}

	switch {
	case entry.Type == "user" || role == "user":
		p.messageCount++
		if entry.Message == nil {
			return
		}
		for _, part := range decodeContent(entry.Message.Content) {
			if part.kind == partText {
				p.userPieces = append(p.userPieces, part.text)
			}
		}

	case entry.Type == "assistant" || role == "assistant":
		p.messageCount++
		if entry.Message == nil {
			return
		}
		if entry.Message.Model != "" {
			p.model = entry.Message.Model
		}
		// Each entry reports the token cost of that entire API call,
		// context included. Overwrite, never sum.
		if usage := entry.Message.Usage; usage != nil {
			if usage.InputTokens > 0 {
				p.inputTokens = usage.InputTokens
			}
			if usage.OutputTokens > 0 {
				p.outputTokens = usage.OutputTokens
			}
		}
		for _, part := range decodeContent(entry.Message.Content) {
			switch part.kind {
			case partText:
				p.assistantPieces = append(p.assistantPieces, part.text)
			case partToolUse:
				p.toolCalls = append(p.toolCalls, part.tool)
			}
		}
	}
}

// record finalizes the accumulated state into a usage record.
func (p *parser) record() *models.UsageRecord {
	// The last prompt is the newest user piece holding authored intent:
	// not a file dump echo, not entirely injected or private content.
	var lastPrompt string
	for i := len(p.userPieces) - 1; i >= 0; i-- {
		piece := p.userPieces[i]
		if strings.HasPrefix(piece, fileDumpMarker) || privacy.IsEntirelyStripped(piece) {
			continue
		}
		lastPrompt = privacy.Clean(piece)
		break
	}

	var lastResponse string
	for i := len(p.assistantPieces) - 1; i >= 0; i-- {
		if piece := p.assistantPieces[i]; !privacy.IsEntirelyStripped(piece) {
			lastResponse = privacy.Clean(piece)
			break
		}
	}

	// Estimates fill in only when the transcript reported no usage,
	// and only from text that was actually selected.
	inputTokens := p.inputTokens
	if inputTokens == 0 && lastPrompt != "" {
		inputTokens = estimateTokens(lastPrompt)
	}
	outputTokens := p.outputTokens
	if outputTokens == 0 && lastResponse != "" {
		outputTokens = estimateTokens(lastResponse)
	}

	rec := &models.UsageRecord{
		UserPrompt:        models.NoPrompt,
		AssistantResponse: models.NoResponse,
		Context: models.UsageContext{
			InputTokens:  inputTokens,
			OutputTokens: outputTokens,
			Model:        p.model,
			DurationMS:   durationMS(p.firstTimestamp, p.lastTimestamp),
		},
		SessionID:    p.sessionID,
		MessageCount: p.messageCount,
		ToolCalls:    p.toolCalls,
		Timestamp:    time.Now(),
	}
	if lastPrompt != "" {
		rec.UserPrompt = models.Truncate(lastPrompt, maxFieldRunes)
	}
	if lastResponse != "" {
		rec.AssistantResponse = models.Truncate(lastResponse, maxFieldRunes)
	}
	return rec
}

// estimateTokens approximates tokens as one per four characters,
// never below one. Callers pass non-empty text only.
func estimateTokens(text string) int64 {
	n := int64(len(text) / 4)
	if n < 1 {
		return 1
	}
	return n
}

// durationMS computes the wall-clock spread between the first and last
// timestamps. Missing or unparseable stamps and out-of-order clocks
// all collapse to zero; duration is never fatal.
func durationMS(first, last string) int64 {
	if first == "" || last == "" {
		return 0
	}
	t1, ok1 := parseStamp(first)
	t2, ok2 := parseStamp(last)
	if !ok1 || !ok2 {
		return 0
	}
	d := t2.Sub(t1).Milliseconds()
	if d < 0 {
		return 0
	}
	return d
}

func parseStamp(s string) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	if t, err := time.Parse("2006-01-02T15:04:05", s); err == nil {
		return t, true
	}
	return time.Time{}, false
}
