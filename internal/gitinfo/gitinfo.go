// Package gitinfo shells out to git for the identity fields attached to
// usage reports: the global user.name and the origin remote of the
// session's working directory.
package gitinfo

import (
	"context"
	"os/exec"
	"strings"
)

// UnknownUser is reported when git is unavailable or unconfigured.
const UnknownUser = "unknown"

// RepoInfo describes the origin remote of a working directory.
type RepoInfo struct {
	URL      string // full remote URL as configured
	FullName string // owner/repo, GitHub remotes only
	Name     string // last path segment of the remote
}

// Username returns git's global user.name, or "unknown" when git is
// missing or the value is unset.
func Username(ctx context.Context) string {
	out, err := exec.CommandContext(ctx, "git", "config", "--global", "user.name").Output()
	if err != nil {
		return UnknownUser
	}
	name := strings.TrimSpace(string(out))
	if name == "" {
		return UnknownUser
	}
	return name
}

// Lookup inspects the origin remote of dir. Directories outside a git
// repository, or without an origin remote, yield the zero value.
func Lookup(ctx context.Context, dir string) RepoInfo {
	cmd := exec.CommandContext(ctx, "git", "remote", "get-url", "origin")
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return RepoInfo{}
	}
	url := strings.TrimSpace(string(out))
	if url == "" {
		return RepoInfo{}
	}
	return parseRemote(url)
}

// parseRemote extracts owner/repo and the bare repo name from a remote
// URL. owner/repo is only derived for GitHub remotes, which is what the
// repo: trace tag keys on downstream.
func parseRemote(url string) RepoInfo {
	info := RepoInfo{URL: url}

	clean := strings.TrimSuffix(url, ".git")
	if strings.Contains(clean, "github.com") {
		if strings.HasPrefix(clean, "git@") {
			// git@github.com:owner/repo
			parts := strings.Split(clean, ":")
			info.FullName = parts[len(parts)-1]
		} else if idx := strings.Index(clean, "github.com/"); idx >= 0 {
			// https://github.com/owner/repo
			info.FullName = clean[idx+len("github.com/"):]
		}
	}

	segments := strings.Split(clean, "/")
	info.Name = segments[len(segments)-1]
	return info
}
