package server

import (
	"net/http"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/tracehook/internal/journal"
	"github.com/thebtf/tracehook/internal/metrics"
	"github.com/thebtf/tracehook/pkg/api"
	"github.com/thebtf/tracehook/pkg/models"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

// tokenPreview truncates a token for listings; full values are only
// returned once, at issuance.
func tokenPreview(token string) string {
	if len(token) > 20 {
		token = token[:20]
	}
	return token + "..."
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	if !s.ready.Load() {
		status = "starting"
	}
	writeJSON(w, http.StatusOK, api.HealthResponse{
		Status:             status,
		Server:             "tracehook",
		Version:            s.version,
		LangfuseConfigured: s.config.LangfuseConfigured(),
	})
}

// handleReport delivers one usage record to the trace sink. Delivery
// failures come back as a structured error body on a 200, never as a
// transport fault; the hook only logs them.
func (s *Service) handleReport(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	var req api.ReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, api.ReportResponse{
			Status:    api.StatusError,
			Message:   "invalid request body",
			ErrorType: "validation_error",
		})
		return
	}

	rec := req.Record()
	traceID, err := s.reporter.Report(r.Context(), rec)

	entry := journal.Entry{
		TraceID:      traceID,
		UserID:       rec.GitHubUsername,
		SessionID:    rec.SessionID,
		Project:      rec.ProjectName,
		Model:        rec.Context.Model,
		InputTokens:  rec.Context.InputTokens,
		OutputTokens: rec.Context.OutputTokens,
		DurationMS:   rec.Context.DurationMS,
		ToolCount:    len(rec.ToolCalls),
		Status:       journal.StatusDelivered,
	}
	if err != nil {
		entry.Status = journal.StatusFailed
		entry.Error = err.Error()
	}
	if s.journal != nil {
		if jerr := s.journal.Record(r.Context(), entry); jerr != nil {
			log.Warn().Err(jerr).Msg("Failed to journal report")
		}
	}

	if err != nil {
		metrics.Get().ReportHandled(r.Context(), journal.StatusFailed, time.Since(started))
		log.Error().Err(err).
			Str("user_id", rec.GitHubUsername).
			Str("session_id", rec.SessionID).
			Msg("Failed to deliver usage report")
		writeJSON(w, http.StatusOK, api.ReportResponse{
			Status:    api.StatusError,
			TraceID:   nil,
			Message:   err.Error(),
			ErrorType: "delivery_error",
		})
		return
	}

	metrics.Get().ReportHandled(r.Context(), journal.StatusDelivered, time.Since(started))
	log.Info().
		Str("user_id", rec.GitHubUsername).
		Str("trace_id", traceID).
		Str("project", rec.ProjectName).
		Int64("total_tokens", rec.Context.TotalTokens()).
		Msg("Usage reported")
	writeJSON(w, http.StatusOK, api.ReportResponse{
		Status:     api.StatusSuccess,
		TraceID:    &traceID,
		Message:    "Usage reported for " + rec.GitHubUsername,
		TokensUsed: rec.Context.TotalTokens(),
	})
}

func (s *Service) handleGenerateToken(w http.ResponseWriter, r *http.Request) {
	var req api.GenerateTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: "invalid request body"})
		return
	}
	if req.UserID == "" {
		writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: "user_id is required"})
		return
	}

	token, err := s.registry.Generate(req.UserID, req.Scopes)
	if err != nil {
		log.Error().Err(err).Str("user_id", req.UserID).Msg("Failed to issue token")
		writeJSON(w, http.StatusInternalServerError, api.ErrorResponse{Error: "failed to persist token"})
		return
	}

	scopes := req.Scopes
	if len(scopes) == 0 {
		scopes = models.DefaultScopes
	}
	metrics.Get().TokenIssued(r.Context())
	writeJSON(w, http.StatusOK, api.GenerateTokenResponse{
		Status:  api.StatusSuccess,
		Token:   token,
		UserID:  req.UserID,
		Scopes:  scopes,
		Message: "Token generated for " + req.UserID + ". Keep it secure!",
	})
}

func (s *Service) handleRevokeToken(w http.ResponseWriter, r *http.Request) {
	var req api.RevokeTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
		writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: "token is required"})
		return
	}

	revoked, err := s.registry.Revoke(req.Token)
	if err != nil {
		log.Error().Err(err).Msg("Failed to persist revocation")
		writeJSON(w, http.StatusInternalServerError, api.RevokeTokenResponse{
			Status:  api.StatusError,
			Message: "failed to persist revocation",
			Revoked: false,
		})
		return
	}
	if !revoked {
		writeJSON(w, http.StatusNotFound, api.RevokeTokenResponse{
			Status:  api.StatusError,
			Message: "Token not found",
			Revoked: false,
		})
		return
	}

	metrics.Get().TokenRevoked(r.Context())
	writeJSON(w, http.StatusOK, api.RevokeTokenResponse{
		Status:  api.StatusSuccess,
		Message: "Token revoked successfully",
		Revoked: true,
	})
}

func (s *Service) handleListTokens(w http.ResponseWriter, r *http.Request) {
	includeRevoked, _ := strconv.ParseBool(r.URL.Query().Get("include_revoked"))

	infos := s.registry.List(includeRevoked)
	summaries := make([]api.TokenSummary, 0, len(infos))
	for _, info := range infos {
		summaries = append(summaries, api.TokenSummary{
			TokenPreview: tokenPreview(info.Token),
			UserID:       info.UserID,
			Scopes:       info.Scopes,
			Revoked:      info.Revoked,
			CreatedAt:    info.CreatedAt,
		})
	}

	writeJSON(w, http.StatusOK, api.TokenListResponse{
		Status: api.StatusSuccess,
		Count:  len(summaries),
		Tokens: summaries,
	})
}

func (s *Service) handleRecentReports(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeJSON(w, http.StatusServiceUnavailable, api.ErrorResponse{Error: "journal not configured"})
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := s.journal.Recent(r.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read journal")
		writeJSON(w, http.StatusInternalServerError, api.ErrorResponse{Error: "failed to read journal"})
		return
	}
	totals, err := s.journal.CountByStatus(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to count journal")
		writeJSON(w, http.StatusInternalServerError, api.ErrorResponse{Error: "failed to read journal"})
		return
	}

	reports := make([]api.JournalEntryPayload, 0, len(entries))
	for _, e := range entries {
		reports = append(reports, api.JournalEntryPayload{
			TraceID:      e.TraceID,
			UserID:       e.UserID,
			SessionID:    e.SessionID,
			Project:      e.Project,
			Model:        e.Model,
			InputTokens:  e.InputTokens,
			OutputTokens: e.OutputTokens,
			DurationMS:   e.DurationMS,
			ToolCount:    e.ToolCount,
			Status:       e.Status,
			Error:        e.Error,
			CreatedAt:    e.CreatedAt,
		})
	}

	writeJSON(w, http.StatusOK, api.RecentReportsResponse{
		Status:  api.StatusSuccess,
		Count:   len(reports),
		Totals:  totals,
		Reports: reports,
	})
}
