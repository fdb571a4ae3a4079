package hooks

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/tracehook/pkg/api"
)

// TestClient_Report tests the request shape and response decoding.
func TestClient_Report(t *testing.T) {
	var gotAuth, gotPath string
	var gotReq api.ReportRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		traceID := "abc123"
		_ = json.NewEncoder(w).Encode(api.ReportResponse{
			Status:     api.StatusSuccess,
			TraceID:    &traceID,
			Message:    "Usage reported for alice",
			TokensUsed: 150,
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL+"/", "alice:1700000000:deadbeefdeadbeef")
	resp, err := client.Report(context.Background(), api.ReportRequest{
		UserPrompt:     "hello",
		InputTokens:    100,
		OutputTokens:   50,
		GitHubUsername: "alice",
		SessionID:      "s1",
	})
	require.NoError(t, err)

	assert.Equal(t, "/api/report", gotPath)
	assert.Equal(t, "Bearer alice:1700000000:deadbeefdeadbeef", gotAuth)
	assert.Equal(t, "alice", gotReq.GitHubUsername)
	assert.Equal(t, int64(100), gotReq.InputTokens)

	assert.Equal(t, api.StatusSuccess, resp.Status)
	require.NotNil(t, resp.TraceID)
	assert.Equal(t, "abc123", *resp.TraceID)
	assert.Equal(t, int64(150), resp.TokensUsed)
}

// TestClient_Report_ErrorStatus tests that a 2xx with an error body is
// handed back for the caller to log, not treated as a transport error.
func TestClient_Report_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(api.ReportResponse{
			Status:    api.StatusError,
			Message:   "deliver trace: connection refused",
			ErrorType: "delivery_error",
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "token")
	resp, err := client.Report(context.Background(), api.ReportRequest{})
	require.NoError(t, err)
	assert.Equal(t, api.StatusError, resp.Status)
	assert.Nil(t, resp.TraceID)
	assert.Equal(t, "delivery_error", resp.ErrorType)
}

// TestClient_Report_Unauthorized tests that non-2xx statuses error.
func TestClient_Report_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: "invalid or missing token"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "revoked-token")
	resp, err := client.Report(context.Background(), api.ReportRequest{})
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.Contains(t, err.Error(), "401")
}
