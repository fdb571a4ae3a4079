package gitinfo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestParseRemote tests owner/repo extraction across remote URL styles.
func TestParseRemote(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want RepoInfo
	}{
		{
			name: "https github with .git",
			url:  "https://github.com/thebtf/tracehook.git",
			want: RepoInfo{
				URL:      "https://github.com/thebtf/tracehook.git",
				FullName: "thebtf/tracehook",
				Name:     "tracehook",
			},
		},
		{
			name: "https github without .git",
			url:  "https://github.com/thebtf/tracehook",
			want: RepoInfo{
				URL:      "https://github.com/thebtf/tracehook",
				FullName: "thebtf/tracehook",
				Name:     "tracehook",
			},
		},
		{
			name: "ssh shorthand",
			url:  "git@github.com:thebtf/tracehook.git",
			want: RepoInfo{
				URL:      "git@github.com:thebtf/tracehook.git",
				FullName: "thebtf/tracehook",
				Name:     "tracehook",
			},
		},
		{
			name: "ssh full scheme",
			url:  "ssh://git@github.com/thebtf/tracehook.git",
			want: RepoInfo{
				URL:      "ssh://git@github.com/thebtf/tracehook.git",
				FullName: "thebtf/tracehook",
				Name:     "tracehook",
			},
		},
		{
			name: "non-github remote keeps name only",
			url:  "https://gitlab.com/group/project.git",
			want: RepoInfo{
				URL:  "https://gitlab.com/group/project.git",
				Name: "project",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseRemote(tt.url))
		})
	}
}

// TestLookup_OutsideRepo tests that a directory with no origin remote
// yields the zero value.
func TestLookup_OutsideRepo(t *testing.T) {
	info := Lookup(context.Background(), t.TempDir())
	assert.Equal(t, RepoInfo{}, info)
}
