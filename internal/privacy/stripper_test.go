package privacy

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripPrivateTags(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "no tags",
			input:    "Hello world",
			expected: "Hello world",
		},
		{
			name:     "single private tag",
			input:    "Hello <private>secret</private> world",
			expected: "Hello  world",
		},
		{
			name:     "multiple private tags",
			input:    "Hello <private>secret1</private> and <private>secret2</private> world",
			expected: "Hello  and  world",
		},
		{
			name:     "multiline private tag",
			input:    "Hello <private>\nmultiline\nsecret\n</private> world",
			expected: "Hello  world",
		},
		{
			name:     "entirely private",
			input:    "<private>everything is secret</private>",
			expected: "",
		},
		{
			name:     "unmatched opening tag",
			input:    "Hello <private>unclosed",
			expected: "Hello <private>unclosed",
		},
		{
			name:     "unmatched closing tag",
			input:    "Hello </private> world",
			expected: "Hello </private> world",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, StripPrivateTags(tt.input))
		})
	}
}

func TestStripInjectedTags(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "no tags",
			input:    "Hello world",
			expected: "Hello world",
		},
		{
			name:     "system reminder",
			input:    "fix the bug<system-reminder>background noise</system-reminder>",
			expected: "fix the bug",
		},
		{
			name:     "slash command echo",
			input:    "<command-name>/compact</command-name><command-args></command-args>",
			expected: "",
		},
		{
			name:     "command output",
			input:    "<local-command-stdout>42 files changed</local-command-stdout>",
			expected: "",
		},
		{
			name:     "multiline reminder",
			input:    "question\n<system-reminder>\nlong\ninjected\nblock\n</system-reminder>",
			expected: "question\n",
		},
		{
			name:     "private tags untouched",
			input:    "Hello <private>secret</private>",
			expected: "Hello <private>secret</private>",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, StripInjectedTags(tt.input))
		})
	}
}

func TestClean(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "plain text",
			input:    "Hello world",
			expected: "Hello world",
		},
		{
			name:     "strips private tags and trims",
			input:    "  Hello <private>secret</private> world  ",
			expected: "Hello  world",
		},
		{
			name:     "strips injected tags and trims",
			input:    "what does this do?\n<system-reminder>irrelevant</system-reminder>\n",
			expected: "what does this do?",
		},
		{
			name:     "strips both kinds",
			input:    "token is <private>abc</private><system-reminder>noise</system-reminder> ok?",
			expected: "token is  ok?",
		},
		{
			name:     "entirely stripped content",
			input:    "  <private>secret</private>  ",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Clean(tt.input))
		})
	}
}

func TestIsEntirelyStripped(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected bool
	}{
		{
			name:     "authored text",
			input:    "Hello world",
			expected: false,
		},
		{
			name:     "entirely private",
			input:    "<private>secret</private>",
			expected: true,
		},
		{
			name:     "slash command only",
			input:    "<command-name>/clear</command-name>",
			expected: true,
		},
		{
			name:     "mixed authored and private",
			input:    "Hello <private>secret</private>",
			expected: false,
		},
		{
			name:     "empty string",
			input:    "",
			expected: true,
		},
		{
			name:     "whitespace only",
			input:    "   ",
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsEntirelyStripped(tt.input))
		})
	}
}

func TestStripPrivateTags_EdgeCases(t *testing.T) {
	t.Run("html-like content is not confused with tags", func(t *testing.T) {
		input := "Hello <div>world</div>"
		assert.Equal(t, input, StripPrivateTags(input))
	})

	t.Run("case sensitive tags", func(t *testing.T) {
		input := "Hello <PRIVATE>secret</PRIVATE> world"
		assert.Equal(t, input, StripPrivateTags(input))
	})

	t.Run("very long private content", func(t *testing.T) {
		input := "Hello <private>" + strings.Repeat("x", 10000) + "</private> world"
		assert.Equal(t, "Hello  world", StripPrivateTags(input))
	})
}
