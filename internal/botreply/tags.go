// Package botreply implements the bot-reply orchestration pipeline: persona
// prompt construction, conversation context rendering, model output parsing,
// the per-bot reply policy, and the concurrent per-group orchestrator.
package botreply

import (
	"regexp"
	"strings"
)

// ExtractTag returns the trimmed inner content of the first occurrence of
// <tag>...</tag> in text. The match is non-greedy and spans newlines.
// Absent or malformed tags yield "", which downstream treats as "no signal"
// rather than an error.
func ExtractTag(text, tag string) string {
	quoted := regexp.QuoteMeta(tag)
	re := regexp.MustCompile(`(?s)<` + quoted + `>(.*?)</` + quoted + `>`)

	match := re.FindStringSubmatch(text)
	if match == nil {
		return ""
	}
	return strings.TrimSpace(match[1])
}
