package botreply

import (
	"strings"
)

// HistoryEntry is one prior message with its sender resolved to a
// human-readable display name.
type HistoryEntry struct {
	SenderName string
	Content    string
}

// BuildConversationContext renders the history window plus the triggering
// message into the transcript block appended after the persona prompt.
// History is rendered oldest-first as "sender: content" lines; truncation to
// the window bound happens upstream when the window is assembled.
func BuildConversationContext(history []HistoryEntry, currentSenderName, currentMessage string) string {
	lines := make([]string, 0, len(history))
	for _, entry := range history {
		lines = append(lines, entry.SenderName+": "+entry.Content)
	}
	historyText := strings.Join(lines, "\n")

	return "\n\n[历史对话记录]\n" + historyText + "\n\n[当前发言]\n" + currentSenderName + ": " + currentMessage
}
