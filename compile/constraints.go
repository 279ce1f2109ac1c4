package compile

import (
	"regexp"
	"strings"

	"github.com/ImMrLucky/spectyra/message"
)

var (
	ruleLineRe = regexp.MustCompile(`(?i)\b(must(?: not)?|should(?: not)?|never|always|do not|don'?t|require[sd]?|only|ensure|forbidden)\b`)
	configLike = regexp.MustCompile(`^\s*(?:[{\[\]}"]|[\w-]+\s*[:=]\s*["\d{\[]|//|#)`)
	esTargetRe = regexp.MustCompile(`(?i)\b(es5|es6|es20\d\d|esnext)\b`)
	optChainRe = regexp.MustCompile(`(?i)optional[- ]chaining|\?\.\s`)
)

// extractConstraints collects rule-like lines from the whole history,
// deduplicated in insertion order. ruleOnly additionally excludes
// config/JSON-looking lines (the code path extractor).
func extractConstraints(msgs []message.Message, ruleOnly bool) []string {
	var out []string
	seen := make(map[string]bool)
	for _, msg := range msgs {
		for _, line := range strings.Split(msg.Content, "\n") {
			line = strings.TrimSpace(line)
			if line == "" || !ruleLineRe.MatchString(line) {
				continue
			}
			if ruleOnly && configLike.MatchString(line) {
				continue
			}
			key := strings.ToLower(line)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, line)
		}
	}
	return out
}

// languageBans scans the whole history for an explicit ES-target and an
// optional-chaining ban and returns constraint lines to append. Code path
// only; these rules are easy to lose in compaction and expensive to violate.
func languageBans(msgs []message.Message) []string {
	var out []string
	esTarget := ""
	optChainBan := false
	for _, msg := range msgs {
		lower := strings.ToLower(msg.Content)
		if esTarget == "" {
			if m := esTargetRe.FindString(msg.Content); m != "" && strings.Contains(lower, "target") {
				esTarget = strings.ToUpper(m)
			}
		}
		if !optChainBan && optChainRe.MatchString(msg.Content) {
			if strings.Contains(lower, "no optional") || strings.Contains(lower, "not use optional") ||
				strings.Contains(lower, "avoid optional") || strings.Contains(lower, "without optional") {
				optChainBan = true
			}
		}
	}
	if esTarget != "" {
		out = append(out, "Compilation target: "+esTarget)
	}
	if optChainBan {
		out = append(out, "Do not use optional chaining.")
	}
	return out
}

// firstUserLine returns the first line of the first user message, clipped
// to 200 chars.
func firstUserLine(msgs []message.Message) string {
	for _, msg := range msgs {
		if msg.Role != message.RoleUser {
			continue
		}
		line := msg.Content
		if i := strings.Index(line, "\n"); i >= 0 {
			line = line[:i]
		}
		return message.TruncateChars(strings.TrimSpace(line), 200)
	}
	return ""
}

// clip shortens s to n chars, collapsing internal newlines.
func clip(s string, n int) string {
	return message.TruncateChars(strings.Join(strings.Fields(s), " "), n)
}
