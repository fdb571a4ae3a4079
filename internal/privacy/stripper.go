// Package privacy removes content that must not leave the machine in a
// usage report. Prompts can carry user-marked <private> spans, and
// transcripts interleave host-injected wrappers (system reminders,
// slash-command echoes) that are not authored user intent. Both are
// stripped before any text is reported.
package privacy

import (
	"regexp"
	"strings"
)

// privateTagRegex matches <private>...</private> spans.
var privateTagRegex = regexp.MustCompile(`(?s)<private>.*?</private>`)

// injectedTags are wrapper elements the host tool writes into
// transcript entries. Their content was never typed by the user.
var injectedTags = []string{
	"system-reminder",
	"command-name",
	"command-message",
	"command-args",
	"local-command-stdout",
	"local-command-stderr",
}

var injectedTagRegexes = compileTagRegexes(injectedTags)

func compileTagRegexes(tags []string) []*regexp.Regexp {
	regexes := make([]*regexp.Regexp, 0, len(tags))
	for _, tag := range tags {
		regexes = append(regexes, regexp.MustCompile(`(?s)<`+tag+`>.*?</`+tag+`>`))
	}
	return regexes
}

// StripPrivateTags removes all <private>...</private> content from text.
func StripPrivateTags(text string) string {
	return privateTagRegex.ReplaceAllString(text, "")
}

// StripInjectedTags removes all host-injected wrapper content from text.
func StripInjectedTags(text string) string {
	for _, re := range injectedTagRegexes {
		text = re.ReplaceAllString(text, "")
	}
	return text
}

// Clean strips private and injected spans and trims whitespace. This is
// the function to use on any text before it is reported.
func Clean(text string) string {
	text = StripPrivateTags(text)
	text = StripInjectedTags(text)
	return strings.TrimSpace(text)
}

// IsEntirelyStripped reports whether nothing reportable remains after
// cleaning.
func IsEntirelyStripped(text string) bool {
	return Clean(text) == ""
}
