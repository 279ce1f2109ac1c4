package encode

import (
	"fmt"
	"strings"

	"github.com/ImMrLucky/spectyra/message"
)

const minRefLineChars = 40

// RefpackResult is the outcome of one reference-pack pass.
type RefpackResult struct {
	Messages []message.Message
	Entries  int
	Applied  bool
}

// Refpack replaces repeated long lines with [[R#]] references backed by a
// reference-pack system message. Legacy layer: it never runs on the
// compiler fast path, only when the state message was not produced.
func Refpack(msgs []message.Message, maxEntries int) RefpackResult {
	if maxEntries < 1 {
		return RefpackResult{Messages: msgs}
	}

	counts := make(map[string]int)
	order := []string{}
	for _, msg := range msgs {
		if msg.Role == message.RoleSystem {
			continue
		}
		for _, seg := range message.SplitFences(msg.Content) {
			if seg.Code {
				continue
			}
			for _, line := range strings.Split(seg.Text, "\n") {
				line = strings.TrimSpace(line)
				if len(line) < minRefLineChars {
					continue
				}
				if counts[line] == 0 {
					order = append(order, line)
				}
				counts[line]++
			}
		}
	}

	refs := make(map[string]string)
	var legend []string
	for _, line := range order {
		if counts[line] < 2 || len(refs) >= maxEntries {
			continue
		}
		alias := fmt.Sprintf("R%d", len(refs)+1)
		refs[line] = alias
		legend = append(legend, alias+"|"+line)
	}
	if len(refs) == 0 {
		return RefpackResult{Messages: msgs}
	}

	out := message.Clone(msgs)
	for i := range out {
		if out[i].Role == message.RoleSystem {
			continue
		}
		out[i].Content = message.RewriteOutsideFences(out[i].Content, func(text string) string {
			lines := strings.Split(text, "\n")
			for li, raw := range lines {
				line := strings.TrimSpace(raw)
				// The pack legend keeps the verbatim text, so every
				// occurrence can be replaced.
				if alias, ok := refs[line]; ok {
					lines[li] = "[[" + alias + "]]"
				}
			}
			return strings.Join(lines, "\n")
		})
	}

	pack := message.Message{
		Role:    message.RoleSystem,
		Content: "Reference pack:\n" + strings.Join(legend, "\n"),
	}
	return RefpackResult{
		Messages: append([]message.Message{pack}, out...),
		Entries:  len(refs),
		Applied:  true,
	}
}
