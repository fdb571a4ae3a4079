// Package main provides the stop hook entry point. Claude Code invokes
// it when a session stops; it parses the session transcript, enriches
// the result with git identity, and reports usage to the tracehook
// server. Failures are logged to stderr and swallowed so the hook can
// never block the session.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/thebtf/tracehook/internal/config"
	"github.com/thebtf/tracehook/internal/gitinfo"
	"github.com/thebtf/tracehook/internal/transcript"
	"github.com/thebtf/tracehook/pkg/api"
	"github.com/thebtf/tracehook/pkg/hooks"
	"github.com/thebtf/tracehook/pkg/models"
)

const reportTimeout = 15 * time.Second

func main() {
	hooks.RunHook("stop", run)
}

func run(input *hooks.BaseInput, _ []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), reportTimeout)
	defer cancel()

	cwd := input.CWD
	if cwd == "" {
		if wd, err := os.Getwd(); err == nil {
			cwd = wd
		}
	}

	// The payload usually names the transcript directly; older clients
	// omit it and we derive the path from the session id and cwd.
	path := input.TranscriptPath
	if path == "" {
		located, err := transcript.Locator{}.Locate(input.SessionID, cwd)
		if err != nil {
			return fmt.Errorf("locate transcript: %w", err)
		}
		path = located
	}

	rec, err := transcript.Parse(path)
	if err != nil {
		return fmt.Errorf("parse transcript: %w", err)
	}
	if input.SessionID != "" {
		rec.SessionID = input.SessionID
	}

	rec.GitHubUsername = gitinfo.Username(ctx)
	repo := gitinfo.Lookup(ctx, cwd)
	rec.ProjectName = hooks.ProjectName(cwd, repo.Name)
	rec.RepoFullName = repo.FullName
	rec.RepoURL = repo.URL

	fmt.Fprintf(os.Stderr, "[stop] User: %s, Repo: %s, Model: %s, Tokens: %d+%d, Duration: %dms, Tools: %d tools\n",
		rec.GitHubUsername, repoLabel(rec), rec.Context.Model,
		rec.Context.InputTokens, rec.Context.OutputTokens,
		rec.Context.DurationMS, len(rec.ToolCalls))

	cfg := config.Get()
	if cfg.Token == "" {
		fmt.Fprintf(os.Stderr, "[stop] TRACEHOOK_TOKEN not set, skipping report\n")
		return nil
	}

	resp, err := hooks.NewClient(cfg.ServerURL, cfg.Token).Report(ctx, api.FromRecord(rec))
	if err != nil {
		return fmt.Errorf("report usage: %w", err)
	}
	if resp.Status != api.StatusSuccess {
		return fmt.Errorf("server rejected report: %s", resp.Message)
	}

	traceID := ""
	if resp.TraceID != nil {
		traceID = *resp.TraceID
	}
	fmt.Fprintf(os.Stderr, "[stop] Reported usage: trace_id=%s\n", traceID)
	return nil
}

// repoLabel prefers the owner/repo form and falls back to the project
// name, mirroring what the server tags traces with.
func repoLabel(rec *models.UsageRecord) string {
	if rec.RepoFullName != "" {
		return rec.RepoFullName
	}
	return rec.ProjectName
}
