package compile

import (
	"regexp"
	"strings"

	"github.com/ImMrLucky/spectyra/message"
)

var (
	errorInRe    = regexp.MustCompile(`ERROR in ([\w./\\-]+):(\d+)`)
	tsErrorRe    = regexp.MustCompile(`TS(\d+):\s*(.+)`)
	stackFrameRe = regexp.MustCompile(`^\s+at\s+[\w.<>$]+\s*\(([\w./\\-]+):(\d+)(?::\d+)?\)`)
	diffFileRe   = regexp.MustCompile(`(?m)^\+\+\+ (?:b/)?([\w./\\-]+)`)
	pathTokenRe  = regexp.MustCompile(`\b(?:[\w-]+/)+[\w-]+\.\w{1,5}\b`)
)

// FailingSignal is one parsed failure from a tool message.
type FailingSignal struct {
	File    string
	Line    string
	Summary string
}

func (s FailingSignal) String() string {
	if s.File != "" && s.Line != "" {
		if s.Summary != "" {
			return s.File + ":" + s.Line + " " + s.Summary
		}
		return s.File + ":" + s.Line
	}
	return s.Summary
}

// parseFailingSignals scans tool messages for compiler errors, TypeScript
// diagnostics and stack frames, newest message first. The first signal of
// the newest failing tool message becomes the latest; earlier distinct
// signals follow, capped at max.
func parseFailingSignals(msgs []message.Message, max int) (latest *FailingSignal, earlier []FailingSignal) {
	seen := make(map[string]bool)
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role != message.RoleTool {
			continue
		}
		for _, sig := range parseSignalText(msgs[i].Content) {
			key := sig.String()
			if seen[key] {
				continue
			}
			seen[key] = true
			if latest == nil {
				s := sig
				latest = &s
				continue
			}
			if len(earlier) < max {
				earlier = append(earlier, sig)
			}
		}
	}
	return latest, earlier
}

func parseSignalText(text string) []FailingSignal {
	var sigs []FailingSignal
	for _, line := range strings.Split(text, "\n") {
		if m := errorInRe.FindStringSubmatch(line); m != nil {
			sigs = append(sigs, FailingSignal{File: m[1], Line: m[2]})
			continue
		}
		if m := tsErrorRe.FindStringSubmatch(line); m != nil {
			sigs = append(sigs, FailingSignal{Summary: clip("TS"+m[1]+": "+m[2], 160)})
			continue
		}
		if m := stackFrameRe.FindStringSubmatch(line); m != nil {
			sigs = append(sigs, FailingSignal{File: m[1], Line: m[2]})
		}
	}
	return sigs
}

// touchedFiles collects up to max confirmed file paths from error signals,
// diff headers and bare path tokens in tool output.
func touchedFiles(msgs []message.Message, max int) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(f string) {
		if f == "" || seen[f] || len(out) >= max {
			return
		}
		seen[f] = true
		out = append(out, f)
	}

	for _, msg := range msgs {
		for _, m := range errorInRe.FindAllStringSubmatch(msg.Content, -1) {
			add(m[1])
		}
		for _, m := range diffFileRe.FindAllStringSubmatch(msg.Content, -1) {
			add(m[1])
		}
		if msg.Role == message.RoleTool {
			for _, m := range pathTokenRe.FindAllString(msg.Content, -1) {
				add(m)
			}
		}
	}
	return out
}
