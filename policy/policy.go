package policy

import (
	"strings"

	"github.com/ImMrLucky/spectyra/message"
)

// TrimLevel is the output-trimming pressure passed to the response step.
type TrimLevel string

const (
	TrimModerate   TrimLevel = "moderate"
	TrimAggressive TrimLevel = "aggressive"
)

// Flags are the path-specific policy switches. The quality-guard retry runs
// with everything off.
type Flags struct {
	CompactionAggressive bool
	TrimAggressive       bool
	PatchMode            bool
}

// Outcome records what the policy layer did to the prompt.
type Outcome struct {
	Trim       TrimLevel
	PatchMode  bool
	CodeSliced bool
}

// patchInstruction is appended to the last user turn in patch mode.
const patchInstruction = "Respond with a unified diff for the change, followed by at most 3 bullet points."

// Apply runs the path policy over msgs. With a compiled state present the
// policy adds nothing in bulk and only sets the trim level; otherwise the
// code path may slice the last user turn down to its most relevant block.
func Apply(path message.Path, msgs []message.Message, stateApplied bool, flags Flags) ([]message.Message, Outcome) {
	out := Outcome{Trim: TrimModerate}
	if flags.TrimAggressive {
		out.Trim = TrimAggressive
	}

	if path != message.PathCode {
		return msgs, out
	}

	result := msgs
	if !stateApplied && flags.CompactionAggressive {
		var sliced bool
		result, sliced = sliceLastUserTurn(result)
		out.CodeSliced = sliced
	}
	if flags.PatchMode {
		result = appendPatchInstruction(result)
		out.PatchMode = true
	}
	return result, out
}

// sliceLastUserTurn keeps only the most relevant fenced block in the last
// user message, replacing the rest with an omission note. Relevance is
// shared identifiers with the surrounding prose, falling back to size.
func sliceLastUserTurn(msgs []message.Message) ([]message.Message, bool) {
	idx := message.LastUserIndex(msgs)
	if idx < 0 {
		return msgs, false
	}
	blocks := message.ExtractFences(msgs[idx].Content)
	if len(blocks) < 2 {
		return msgs, false
	}

	prose := strings.ToLower(message.StripFences(msgs[idx].Content))
	best, bestScore := 0, -1
	for i, block := range blocks {
		score := 0
		for _, word := range strings.Fields(strings.ToLower(block)) {
			if len(word) >= 6 && strings.Contains(prose, word) {
				score++
			}
		}
		// Size breaks ties so a degenerate prose match still keeps the
		// biggest block.
		score = score*1000 + len(block)
		if score > bestScore {
			best, bestScore = i, score
		}
	}

	out := message.Clone(msgs)
	out[idx].Content = message.ReplaceFences(out[idx].Content, func(i int, block string) string {
		if i == best {
			return block
		}
		return "(code block omitted)"
	})
	return out, true
}

func appendPatchInstruction(msgs []message.Message) []message.Message {
	idx := message.LastUserIndex(msgs)
	if idx < 0 {
		return msgs
	}
	out := message.Clone(msgs)
	out[idx].Content = out[idx].Content + "\n\n" + patchInstruction
	return out
}
