// Package langfuse implements a minimal client for the Langfuse batch
// ingestion API. Events queue in memory and ship on Flush as a single
// POST to /api/public/ingestion with basic auth.
package langfuse

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Event types understood by the ingestion endpoint.
const (
	eventTraceCreate      = "trace-create"
	eventSpanCreate       = "span-create"
	eventGenerationCreate = "generation-create"
)

// TraceBody is the trace-create payload.
type TraceBody struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Name      string    `json:"name,omitempty"`
	UserID    string    `json:"userId,omitempty"`
	SessionID string    `json:"sessionId,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
}

// ObservationBody is the span-create and generation-create payload.
type ObservationBody struct {
	ID                  string           `json:"id"`
	TraceID             string           `json:"traceId"`
	ParentObservationID string           `json:"parentObservationId,omitempty"`
	Name                string           `json:"name"`
	StartTime           time.Time        `json:"startTime"`
	EndTime             time.Time        `json:"endTime"`
	Model               string           `json:"model,omitempty"`
	Input               any              `json:"input,omitempty"`
	Output              any              `json:"output,omitempty"`
	Metadata            map[string]any   `json:"metadata,omitempty"`
	UsageDetails        map[string]int64 `json:"usageDetails,omitempty"`
}

// ingestionEvent wraps one body in the batch envelope.
type ingestionEvent struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
	Body      any    `json:"body"`
}

type ingestionRequest struct {
	Batch []ingestionEvent `json:"batch"`
}

type ingestionFailure struct {
	ID      string `json:"id"`
	Status  int    `json:"status"`
	Message string `json:"message"`
}

type ingestionResponse struct {
	Errors []ingestionFailure `json:"errors"`
}

// Client queues ingestion events for a single Langfuse project. All
// methods are safe for concurrent use. Without credentials the client
// composes events normally and drops them at Flush, mirroring how the
// hosted SDKs disable themselves.
type Client struct {
	host      string
	publicKey string
	secretKey string
	http      *http.Client

	mu    sync.Mutex
	queue []ingestionEvent
}

// New returns a Client for host authenticated with the given key pair.
func New(host, publicKey, secretKey string) *Client {
	return &Client{
		host:      strings.TrimRight(host, "/"),
		publicKey: publicKey,
		secretKey: secretKey,
		http:      &http.Client{Timeout: 10 * time.Second},
	}
}

// Configured reports whether both API keys are present.
func (c *Client) Configured() bool {
	return c.publicKey != "" && c.secretKey != ""
}

// Host returns the ingestion host.
func (c *Client) Host() string {
	return c.host
}

// CreateTrace queues a trace-create event.
func (c *Client) CreateTrace(body TraceBody) {
	c.enqueue(eventTraceCreate, body)
}

// CreateSpan queues a span-create event.
func (c *Client) CreateSpan(body ObservationBody) {
	c.enqueue(eventSpanCreate, body)
}

// CreateGeneration queues a generation-create event.
func (c *Client) CreateGeneration(body ObservationBody) {
	c.enqueue(eventGenerationCreate, body)
}

// Pending returns the number of queued events.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

func (c *Client) enqueue(eventType string, body any) {
	event := ingestionEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Body:      body,
	}
	c.mu.Lock()
	c.queue = append(c.queue, event)
	c.mu.Unlock()
}

// Flush ships the queued events as one batch. The queue is drained
// either way; a failed batch is dropped and reported to the caller,
// which owns any retry decision.
func (c *Client) Flush(ctx context.Context) error {
	c.mu.Lock()
	events := c.queue
	c.queue = nil
	c.mu.Unlock()

	if len(events) == 0 {
		return nil
	}
	if !c.Configured() {
		log.Debug().Int("events", len(events)).Msg("Langfuse not configured, dropping batch")
		return nil
	}

	payload, err := json.Marshal(ingestionRequest{Batch: events})
	if err != nil {
		return fmt.Errorf("encode ingestion batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+"/api/public/ingestion", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build ingestion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.publicKey, c.secretKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post ingestion batch: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	// 207 means the batch was accepted but some events were rejected.
	if resp.StatusCode == http.StatusMultiStatus {
		var parsed ingestionResponse
		if err := json.Unmarshal(body, &parsed); err == nil && len(parsed.Errors) > 0 {
			for _, failure := range parsed.Errors {
				log.Warn().
					Str("event_id", failure.ID).
					Int("status", failure.Status).
					Str("message", failure.Message).
					Msg("Langfuse rejected event")
			}
			return fmt.Errorf("langfuse rejected %d of %d events", len(parsed.Errors), len(events))
		}
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("langfuse ingestion returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	log.Debug().Int("events", len(events)).Msg("Flushed Langfuse batch")
	return nil
}

// NewTraceID returns a 32-char lowercase hex trace identifier.
func NewTraceID() string {
	u := uuid.New()
	return hex.EncodeToString(u[:])
}

// NewObservationID returns a 16-char lowercase hex observation identifier.
func NewObservationID() string {
	u := uuid.New()
	return hex.EncodeToString(u[:8])
}
