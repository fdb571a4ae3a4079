package langfuse

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedRequest struct {
	path        string
	contentType string
	user        string
	pass        string
	body        []byte
}

func captureServer(t *testing.T, status int, response string) (*httptest.Server, *[]capturedRequest) {
	t.Helper()
	var calls []capturedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		user, pass, _ := r.BasicAuth()
		calls = append(calls, capturedRequest{
			path:        r.URL.Path,
			contentType: r.Header.Get("Content-Type"),
			user:        user,
			pass:        pass,
			body:        body,
		})
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

// TestFlush_PostsBatch tests the envelope shape, auth, and endpoint of
// a successful flush.
func TestFlush_PostsBatch(t *testing.T) {
	srv, calls := captureServer(t, http.StatusOK, `{"successes":[],"errors":[]}`)
	client := New(srv.URL, "pk-lf-test", "sk-lf-test")

	client.CreateTrace(TraceBody{ID: "trace-1", Timestamp: time.Now(), UserID: "alice"})
	client.CreateSpan(ObservationBody{ID: "span-1", TraceID: "trace-1", Name: "claude-code-usage"})
	require.Equal(t, 2, client.Pending())

	require.NoError(t, client.Flush(context.Background()))
	assert.Equal(t, 0, client.Pending())

	require.Len(t, *calls, 1)
	call := (*calls)[0]
	assert.Equal(t, "/api/public/ingestion", call.path)
	assert.Equal(t, "application/json", call.contentType)
	assert.Equal(t, "pk-lf-test", call.user)
	assert.Equal(t, "sk-lf-test", call.pass)

	var envelope struct {
		Batch []struct {
			ID        string          `json:"id"`
			Type      string          `json:"type"`
			Timestamp string          `json:"timestamp"`
			Body      json.RawMessage `json:"body"`
		} `json:"batch"`
	}
	require.NoError(t, json.Unmarshal(call.body, &envelope))
	require.Len(t, envelope.Batch, 2)
	assert.Equal(t, "trace-create", envelope.Batch[0].Type)
	assert.Equal(t, "span-create", envelope.Batch[1].Type)
	assert.NotEmpty(t, envelope.Batch[0].ID)
	assert.NotEmpty(t, envelope.Batch[0].Timestamp)

	var trace TraceBody
	require.NoError(t, json.Unmarshal(envelope.Batch[0].Body, &trace))
	assert.Equal(t, "trace-1", trace.ID)
	assert.Equal(t, "alice", trace.UserID)
}

// TestFlush_Empty tests that an empty queue makes no request.
func TestFlush_Empty(t *testing.T) {
	srv, calls := captureServer(t, http.StatusOK, "{}")
	client := New(srv.URL, "pk", "sk")

	require.NoError(t, client.Flush(context.Background()))
	assert.Empty(t, *calls)
}

// TestFlush_Unconfigured tests that a keyless client drops its queue
// without calling out.
func TestFlush_Unconfigured(t *testing.T) {
	srv, calls := captureServer(t, http.StatusOK, "{}")
	client := New(srv.URL, "", "")
	assert.False(t, client.Configured())

	client.CreateTrace(TraceBody{ID: "trace-1"})
	require.NoError(t, client.Flush(context.Background()))
	assert.Empty(t, *calls)
	assert.Equal(t, 0, client.Pending())
}

// TestFlush_ServerError tests that non-2xx responses surface as errors
// and the queue stays drained.
func TestFlush_ServerError(t *testing.T) {
	srv, _ := captureServer(t, http.StatusInternalServerError, "boom")
	client := New(srv.URL, "pk", "sk")

	client.CreateTrace(TraceBody{ID: "trace-1"})
	err := client.Flush(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
	assert.Equal(t, 0, client.Pending())
}

// TestFlush_PartialFailure tests 207 handling when some events are
// rejected.
func TestFlush_PartialFailure(t *testing.T) {
	response := `{"successes":[{"id":"a","status":201}],"errors":[{"id":"b","status":400,"message":"invalid body"}]}`
	srv, _ := captureServer(t, http.StatusMultiStatus, response)
	client := New(srv.URL, "pk", "sk")

	client.CreateTrace(TraceBody{ID: "trace-1"})
	client.CreateSpan(ObservationBody{ID: "span-1", TraceID: "trace-1", Name: "x"})

	err := client.Flush(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rejected 1 of 2")
}

// TestFlush_MultiStatusAllAccepted tests that a 207 with no errors is
// treated as success.
func TestFlush_MultiStatusAllAccepted(t *testing.T) {
	srv, _ := captureServer(t, http.StatusMultiStatus, `{"successes":[{"id":"a","status":201}],"errors":[]}`)
	client := New(srv.URL, "pk", "sk")

	client.CreateTrace(TraceBody{ID: "trace-1"})
	assert.NoError(t, client.Flush(context.Background()))
}

// TestNew_TrimsHost tests trailing slash normalization.
func TestNew_TrimsHost(t *testing.T) {
	client := New("https://cloud.langfuse.com/", "pk", "sk")
	assert.Equal(t, "https://cloud.langfuse.com", client.Host())
}

// TestIdentifiers tests the shape of generated trace and observation
// identifiers.
func TestIdentifiers(t *testing.T) {
	traceID := NewTraceID()
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{32}$`), traceID)

	obsID := NewObservationID()
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{16}$`), obsID)

	assert.NotEqual(t, NewTraceID(), NewTraceID())
}
