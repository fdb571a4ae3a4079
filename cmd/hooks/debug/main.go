// Package main provides the debug hook entry point. It dumps the
// environment and the raw hook payload to stderr and an append-only log
// file, then lets the session continue. Wire it in place of the stop
// hook when diagnosing what Claude Code actually sends.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/thebtf/tracehook/internal/config"
	"github.com/thebtf/tracehook/pkg/hooks"
)

const logFileName = "debug_hook.log"

// envMarkers selects which environment variables are worth dumping.
var envMarkers = []string{"CLAUDE", "TRANSCRIPT", "SESSION", "TRACEHOOK", "ANTHROPIC", "LANGFUSE"}

type dumpLogger struct {
	file *os.File
}

func newDumpLogger() *dumpLogger {
	path := filepath.Join(config.DataDir(), logFileName)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[debug-hook] cannot open %s: %v\n", path, err)
		return &dumpLogger{}
	}
	return &dumpLogger{file: f}
}

func (l *dumpLogger) log(format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	fmt.Fprintf(os.Stderr, "[debug-hook] %s\n", line)
	if l.file != nil {
		fmt.Fprintf(l.file, "[%s] %s\n", time.Now().Format(time.RFC3339Nano), line)
	}
}

func (l *dumpLogger) close() {
	if l.file != nil {
		l.file.Close()
	}
}

func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

func main() {
	logger := newDumpLogger()
	defer logger.close()

	logger.log("%s", strings.Repeat("=", 50))
	logger.log("Stop hook triggered")

	logger.log("Environment variables:")
	env := os.Environ()
	sort.Strings(env)
	for _, kv := range env {
		key, value, _ := strings.Cut(kv, "=")
		upper := strings.ToUpper(key)
		for _, marker := range envMarkers {
			if strings.Contains(upper, marker) {
				logger.log("  %s=%s", key, clip(value, 100))
				break
			}
		}
	}

	logger.log("Reading stdin...")
	stdin, err := io.ReadAll(os.Stdin)
	if err != nil {
		logger.log("Stdin read error: %v", err)
	}
	logger.log("Stdin length: %d bytes", len(stdin))
	logger.log("Stdin content: %s", clip(string(stdin), 500))

	if len(strings.TrimSpace(string(stdin))) > 0 {
		var payload map[string]any
		if err := json.Unmarshal(stdin, &payload); err != nil {
			logger.log("JSON parse error: %v", err)
		} else {
			keys := make([]string, 0, len(payload))
			for k := range payload {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			logger.log("Parsed payload keys: %v", keys)
			for _, k := range keys {
				logger.log("  %s: %s", k, clip(fmt.Sprintf("%v", payload[k]), 200))
			}
		}
	}

	logger.log("%s", strings.Repeat("=", 50))
	hooks.WriteResponse("debug", true)
}
