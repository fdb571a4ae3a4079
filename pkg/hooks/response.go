// Package hooks provides the Claude Code hook protocol for tracehook.
package hooks

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// HookResponse is the response sent back to Claude Code.
type HookResponse struct {
	Continue bool `json:"continue"`
}

// BaseInput contains the fields Claude Code sends to stop hooks.
type BaseInput struct {
	SessionID      string `json:"session_id"`
	CWD            string `json:"cwd"`
	TranscriptPath string `json:"transcript_path"`
	HookEventName  string `json:"hook_event_name"`
	StopHookActive bool   `json:"stop_hook_active"`
}

// ReadInput parses a hook payload, returning the raw bytes alongside so
// diagnostic hooks can log them verbatim.
func ReadInput(r io.Reader) (*BaseInput, []byte, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("read hook input: %w", err)
	}

	var input BaseInput
	if err := json.Unmarshal(data, &input); err != nil {
		return nil, data, fmt.Errorf("parse hook input: %w", err)
	}
	return &input, data, nil
}

// WriteResponse writes a hook response to stdout.
func WriteResponse(hookName string, cont bool) {
	response := HookResponse{Continue: cont}
	data, _ := json.Marshal(response)
	fmt.Println(string(data))
}

// WriteError logs an error to stderr. The session is never blocked on a
// hook failure, so this does not change the response.
func WriteError(hookName string, err error) {
	fmt.Fprintf(os.Stderr, "[%s] Error: %v\n", hookName, err)
}

// RunHook executes a hook with common boilerplate handling: stdin
// reading, JSON unmarshaling, and the always-continue response. Handler
// errors are logged and swallowed; usage reporting must never hold a
// session hostage.
func RunHook(hookName string, handler func(input *BaseInput, raw []byte) error) {
	defer WriteResponse(hookName, true)

	input, raw, err := ReadInput(os.Stdin)
	if err != nil {
		WriteError(hookName, err)
		return
	}

	if err := handler(input, raw); err != nil {
		WriteError(hookName, err)
	}
}

// ProjectName derives the project label for a session: the repository
// name when the working directory has an origin remote, the directory
// base name otherwise.
func ProjectName(cwd, repoName string) string {
	if repoName != "" {
		return repoName
	}
	return filepath.Base(cwd)
}
