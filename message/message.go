// Package message defines the chat message model shared by every pipeline
// stage, plus the coarse token estimator and the fenced-code segmenter that
// rewrite stages use to keep code blocks untouched.
package message

import "strings"

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Valid reports whether r is one of the four known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		return true
	}
	return false
}

// Message is a single chat turn. Content is always plain text.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Path selects the optimization profile for a request.
type Path string

const (
	PathTalk Path = "talk"
	PathCode Path = "code"
)

// Valid reports whether p is a known path.
func (p Path) Valid() bool {
	return p == PathTalk || p == PathCode
}

// Clone returns a deep copy of msgs. Stages that rewrite content operate on
// a clone so the baseline sequence stays available for the size guard.
func Clone(msgs []Message) []Message {
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}

// Normalize converts CRLF line endings to LF and trims surrounding space.
func Normalize(text string) string {
	return strings.TrimSpace(strings.ReplaceAll(text, "\r\n", "\n"))
}

// LastUserIndex returns the index of the last user message, or -1.
func LastUserIndex(msgs []Message) int {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == RoleUser {
			return i
		}
	}
	return -1
}
