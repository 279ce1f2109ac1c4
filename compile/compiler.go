// Package compile implements the spectral context compiler: it folds the
// older part of a conversation into a single bracketed state message and
// keeps the recent turns verbatim. When the compiler runs it is the
// authoritative compression layer; bulk-rewriting layers are skipped.
package compile

import (
	"regexp"
	"strings"

	"github.com/ImMrLucky/spectyra/budget"
	"github.com/ImMrLucky/spectyra/message"
)

// State message bracket tags. Exactly one state message may exist in an
// optimized prompt.
const (
	TagTalkOpen  = "[SPECTYRA_STATE_TALK]"
	TagTalkClose = "[/SPECTYRA_STATE_TALK]"
	TagCodeOpen  = "[SPECTYRA_STATE_CODE]"
	TagCodeClose = "[/SPECTYRA_STATE_CODE]"
)

// aliasMarkerRe strips refpack and legacy glossary markers from compiled
// state bodies.
var aliasMarkerRe = regexp.MustCompile(`\[\[R\d+\]\]|⟦P\d+⟧`)

// IsStateMessage reports whether msg is a compiled state message.
func IsStateMessage(msg message.Message) bool {
	return msg.Role == message.RoleSystem &&
		(strings.HasPrefix(msg.Content, TagTalkOpen) || strings.HasPrefix(msg.Content, TagCodeOpen))
}

// ExtractState returns the first state message in msgs, if any.
func ExtractState(msgs []message.Message) (message.Message, bool) {
	for _, msg := range msgs {
		if IsStateMessage(msg) {
			return msg, true
		}
	}
	return message.Message{}, false
}

// Compiler produces the compacted state message. Stateless.
type Compiler struct{}

// NewCompiler returns a Compiler.
func NewCompiler() *Compiler {
	return &Compiler{}
}

// Compile splits msgs at the last-N-turn boundary, folds everything older
// into a state message, and returns (state, kept). kept always contains
// every tool message that appears after the last user message; the model
// must see the tool output it is reacting to. codeIndex, when non-empty,
// replaces the key-symbols placeholder in the code-path repo context.
func (c *Compiler) Compile(path message.Path, msgs []message.Message, b budget.Budgets, codeIndex string) (message.Message, []message.Message) {
	start := keepBoundary(msgs, b.KeepLastTurns)
	lastUser := message.LastUserIndex(msgs)

	older := msgs[:start]
	var kept []message.Message
	for i := start; i < len(msgs); i++ {
		msg := msgs[i]
		if msg.Role == message.RoleSystem {
			// Any prior system content is folded into the state body.
			continue
		}
		if msg.Role == message.RoleTool && i < lastUser && !b.RetainToolLogs {
			continue
		}
		kept = append(kept, msg)
	}

	var body string
	if path == message.PathCode {
		body = c.codeBody(msgs, older, b, codeIndex)
	} else {
		body = c.talkBody(msgs, older, b)
	}

	body = aliasMarkerRe.ReplaceAllString(body, "")
	if truncated := message.TruncateChars(body, b.MaxStateChars); truncated != body {
		body = truncated + "…"
	}

	openTag, closeTag := TagTalkOpen, TagTalkClose
	if path == message.PathCode {
		openTag, closeTag = TagCodeOpen, TagCodeClose
	}
	state := message.Message{
		Role:    message.RoleSystem,
		Content: openTag + "\n" + body + "\n" + closeTag,
	}
	return state, kept
}

// keepBoundary returns the index of the first message of the last-n-turns
// window. A turn starts at a user message.
func keepBoundary(msgs []message.Message, keepTurns int) int {
	if keepTurns < 1 {
		keepTurns = 1
	}
	seen := 0
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == message.RoleUser {
			seen++
			if seen == keepTurns {
				return i
			}
		}
	}
	return 0
}

func (c *Compiler) talkBody(all, older []message.Message, b budget.Budgets) string {
	var sb strings.Builder

	sb.WriteString("Goal: " + firstUserLine(all) + "\n")

	sb.WriteString("Constraints (verbatim):\n")
	for _, rule := range extractConstraints(all, false) {
		sb.WriteString("- " + rule + "\n")
	}

	maxEntries := 8
	if b.StateCompressionLevel >= 0.8 {
		maxEntries = 5
	}

	sb.WriteString("Known facts:\n")
	for _, line := range olderByRole(older, message.RoleUser, maxEntries) {
		sb.WriteString("- " + line + "\n")
	}

	sb.WriteString("Decisions/commitments:\n")
	for _, line := range olderByRole(older, message.RoleAssistant, maxEntries) {
		sb.WriteString("- " + line + "\n")
	}

	sb.WriteString("Open questions:\n- (none tracked)\n")
	sb.WriteString("Recent context kept verbatim below.")
	return sb.String()
}

func (c *Compiler) codeBody(all, older []message.Message, b budget.Budgets, codeIndex string) string {
	var sb strings.Builder

	sb.WriteString("Task: " + firstUserLine(all) + "\n")

	sb.WriteString("Constraints (rule-like only):\n")
	for _, rule := range extractConstraints(all, true) {
		sb.WriteString("- " + rule + "\n")
	}
	for _, ban := range languageBans(all) {
		sb.WriteString("- " + ban + "\n")
	}

	sb.WriteString("Failing signals:\n")
	latest, earlier := parseFailingSignals(all, 6)
	if latest != nil {
		sb.WriteString("Latest: " + latest.String() + "\n")
		for _, sig := range earlier {
			sb.WriteString("- " + sig.String() + "\n")
		}
	} else {
		sb.WriteString("- (none)\n")
	}

	sb.WriteString("Repo context:\n")
	if files := touchedFiles(all, 10); len(files) > 0 {
		sb.WriteString("Files: " + strings.Join(files, ", ") + "\n")
	}
	if codeIndex != "" {
		sb.WriteString("Key symbols:\n" + codeIndex + "\n")
	} else {
		sb.WriteString("Key symbols: (pending)\n")
	}
	sb.WriteString("Recent context kept verbatim below.")
	return sb.String()
}

// olderByRole summarizes the older messages of one role, clipped to 120
// chars each, capped at max.
func olderByRole(older []message.Message, role message.Role, max int) []string {
	var out []string
	for _, msg := range older {
		if msg.Role != role {
			continue
		}
		// Previously compiled state messages are not facts.
		if IsStateMessage(msg) {
			continue
		}
		line := clip(msg.Content, 120)
		if line == "" {
			continue
		}
		out = append(out, line)
		if len(out) >= max {
			break
		}
	}
	return out
}
