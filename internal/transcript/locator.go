package transcript

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrTranscriptNotFound marks a session whose project directory or
// transcript file does not exist under the projects root.
var ErrTranscriptNotFound = errors.New("transcript not found")

// Locator resolves session transcripts under the Claude Code projects
// root (~/.claude/projects by default).
type Locator struct {
	// Root overrides the projects root. Empty means ~/.claude/projects.
	Root string
}

// Locate maps (sessionID, cwd) to a transcript path. It prefers
// <sessionID>.jsonl inside the project directory derived from cwd and
// falls back to the most recently modified *.jsonl there.
func (l Locator) Locate(sessionID, cwd string) (string, error) {
	root := l.Root
	if root == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		root = filepath.Join(home, ".claude", "projects")
	}

	dir := filepath.Join(root, ProjectSlug(cwd))
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return "", fmt.Errorf("%w: project folder %s", ErrTranscriptNotFound, dir)
	}

	exact := filepath.Join(dir, sessionID+".jsonl")
	if _, err := os.Stat(exact); err == nil {
		return exact, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTranscriptNotFound, err)
	}

	var newest string
	var newestMod time.Time
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".jsonl") {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			continue
		}
		if newest == "" || fi.ModTime().After(newestMod) {
			newest = entry.Name()
			newestMod = fi.ModTime()
		}
	}
	if newest == "" {
		return "", fmt.Errorf("%w: no transcripts in %s", ErrTranscriptNotFound, dir)
	}
	return filepath.Join(dir, newest), nil
}

// ProjectSlug converts a working directory into the folder name Claude
// Code uses under its projects root: path separators become dashes with
// a leading dash, and a Windows drive letter drops its colon, so
// /home/user/app maps to -home-user-app and C:\Users\u\app to
// -C-Users-u-app.
func ProjectSlug(cwd string) string {
	normalized := strings.ReplaceAll(cwd, "\\", "/")
	parts := strings.Split(normalized, "/")
	elems := make([]string, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			continue
		}
		if len(part) == 2 && part[1] == ':' {
			part = part[:1]
		}
		elems = append(elems, part)
	}
	return "-" + strings.Join(elems, "-")
}
