// Package contextusage derives crude, log-only observability signals
// from an inbound request body. Its output never affects the request.
package contextusage

import (
	"regexp"
	"strings"
)

// Summary is logged verbatim alongside a request's correlation id.
type Summary struct {
	FileReferences  []string `json:"file_references"`
	Mentions        []string `json:"mentions"`
	EstimatedTokens int      `json:"estimated_tokens"`
	ToolCount       int      `json:"tool_count"`
	MessageCount    int      `json:"message_count"`
}

var (
	fileRefPattern = regexp.MustCompile(`\b[\w./-]+\.(?:go|ts|tsx|js|jsx|py|rb|java|rs|c|cpp|h|hpp|md|json|yaml|yml|toml|sh)\b`)
	mentionPattern = regexp.MustCompile(`@[\w./-]+`)

	falsePositiveSubstrings = []string{"node_modules", ".git", "://"}
	versionLikePattern      = regexp.MustCompile(`^v?\d+\.\d+(\.\d+)?$`)
)

// Extract computes a Summary from the concatenated text content of
// messages and a tool/message count the caller has already derived from
// the parsed body.
func Extract(messageTexts []string, toolCount, messageCount int) Summary {
	joined := strings.Join(messageTexts, "\n")

	totalBytes := 0
	for _, t := range messageTexts {
		totalBytes += len(t)
	}

	return Summary{
		FileReferences:  extractFileReferences(joined),
		Mentions:        dedupe(mentionPattern.FindAllString(joined, -1)),
		EstimatedTokens: totalBytes / 4,
		ToolCount:       toolCount,
		MessageCount:    messageCount,
	}
}

func extractFileReferences(text string) []string {
	var out []string
	for _, loc := range fileRefPattern.FindAllStringIndex(text, -1) {
		c := text[loc[0]:loc[1]]
		// The pattern does not match a URL's scheme, so check the whole
		// whitespace-delimited token the match sits in for "://".
		tokenStart := strings.LastIndexAny(text[:loc[0]], " \t\n\r") + 1
		if isFalsePositive(c) || strings.Contains(text[tokenStart:loc[1]], "://") {
			continue
		}
		out = append(out, c)
	}
	return dedupe(out)
}

func isFalsePositive(s string) bool {
	for _, fp := range falsePositiveSubstrings {
		if strings.Contains(s, fp) {
			return true
		}
	}
	return versionLikePattern.MatchString(s)
}

func dedupe(items []string) []string {
	seen := make(map[string]bool, len(items))
	var out []string
	for _, it := range items {
		if seen[it] {
			continue
		}
		seen[it] = true
		out = append(out, it)
	}
	return out
}
