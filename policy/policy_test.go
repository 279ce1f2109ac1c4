package policy

import (
	"strings"
	"testing"

	"github.com/ImMrLucky/spectyra/message"
)

func msgOfLen(role message.Role, n int) message.Message {
	return message.Message{Role: role, Content: strings.Repeat("x", n)}
}

func TestGateFor(t *testing.T) {
	talk := GateFor(message.PathTalk)
	if talk.MinPct != 0.03 || talk.MinAbs != 40 {
		t.Errorf("Talk gate should be 3%%/40, got %v", talk)
	}
	code := GateFor(message.PathCode)
	if code.MinPct != 0.02 || code.MinAbs != 60 {
		t.Errorf("Code gate should be 2%%/60, got %v", code)
	}
}

func TestGateAccept(t *testing.T) {
	g := Gate{MinPct: 0.03, MinAbs: 40}
	before := []message.Message{msgOfLen(message.RoleUser, 10000)} // 2500 tokens

	// Saves 250 tokens (10%) - accepted.
	if !g.Accept(before, []message.Message{msgOfLen(message.RoleUser, 9000)}) {
		t.Error("Large enough saving should pass the gate")
	}
	// Saves 25 tokens - below the absolute floor.
	if g.Accept(before, []message.Message{msgOfLen(message.RoleUser, 9900)}) {
		t.Error("Saving below MinAbs should fail the gate")
	}
	// Grows the prompt - always rejected.
	if g.Accept(before, []message.Message{msgOfLen(message.RoleUser, 11000)}) {
		t.Error("Growth must never pass the gate")
	}
	// Identical - rejected.
	if g.Accept(before, before) {
		t.Error("Zero saving should fail the gate")
	}

	// 2% saving on a big prompt clears MinAbs but not MinPct.
	big := []message.Message{msgOfLen(message.RoleUser, 100000)}
	if g.Accept(big, []message.Message{msgOfLen(message.RoleUser, 98000)}) {
		t.Error("Saving below MinPct should fail the gate")
	}
}

func TestGateApply(t *testing.T) {
	g := Gate{MinPct: 0.03, MinAbs: 40}
	before := []message.Message{msgOfLen(message.RoleUser, 10000)}

	after, ok := g.Apply(before, func(in []message.Message) []message.Message {
		return []message.Message{msgOfLen(message.RoleUser, 5000)}
	})
	if !ok || len(after[0].Content) != 5000 {
		t.Error("Accepted transform output should be used")
	}

	after, ok = g.Apply(before, func(in []message.Message) []message.Message {
		return []message.Message{msgOfLen(message.RoleUser, 9999)}
	})
	if ok || len(after[0].Content) != 10000 {
		t.Error("Rejected transform must fall back to the input")
	}
}

func TestSizeGuard(t *testing.T) {
	baseline := []message.Message{msgOfLen(message.RoleUser, 1000)}

	kept, reverted := SizeGuard(baseline, []message.Message{msgOfLen(message.RoleUser, 900)})
	if reverted || len(kept[0].Content) != 900 {
		t.Error("Smaller candidate should be kept")
	}

	kept, reverted = SizeGuard(baseline, []message.Message{msgOfLen(message.RoleUser, 1100)})
	if !reverted || len(kept[0].Content) != 1000 {
		t.Error("Larger candidate must revert to baseline")
	}
}

func TestApplyPatchMode(t *testing.T) {
	msgs := []message.Message{
		{Role: message.RoleUser, Content: "Fix the bug in the parser."},
	}
	out, outcome := Apply(message.PathCode, msgs, true, Flags{PatchMode: true, TrimAggressive: true})
	if !outcome.PatchMode || outcome.Trim != TrimAggressive {
		t.Errorf("Expected patch mode with aggressive trim, got %+v", outcome)
	}
	if !strings.Contains(out[0].Content, "unified diff") {
		t.Errorf("Patch instruction should be appended to the last user turn, got %q", out[0].Content)
	}
	// Input slice must stay untouched.
	if strings.Contains(msgs[0].Content, "unified diff") {
		t.Error("Apply must not mutate its input")
	}
}

func TestApplyTalkNeverSlices(t *testing.T) {
	content := "prose\n```\nblock one\n```\nmore\n```\nblock two\n```"
	msgs := []message.Message{{Role: message.RoleUser, Content: content}}
	out, outcome := Apply(message.PathTalk, msgs, false, Flags{CompactionAggressive: true})
	if outcome.CodeSliced || out[0].Content != content {
		t.Error("Talk path never slices code blocks")
	}
}

func TestApplyCodeSlicing(t *testing.T) {
	content := "the parseConfig() helper is broken\n```\nfunc parseConfig() {}\n```\nignore this\n```\nfunc unrelatedThing() {}\n```"
	msgs := []message.Message{{Role: message.RoleUser, Content: content}}

	out, outcome := Apply(message.PathCode, msgs, false, Flags{CompactionAggressive: true})
	if !outcome.CodeSliced {
		t.Fatal("Expected the last user turn sliced")
	}
	if !strings.Contains(out[0].Content, "parseConfig()") {
		t.Error("The relevant block should be kept")
	}
	if strings.Contains(out[0].Content, "unrelatedThing") {
		t.Error("The irrelevant block should be omitted")
	}
	if !strings.Contains(out[0].Content, "(code block omitted)") {
		t.Error("Omitted blocks leave a note")
	}
}

func TestApplyCodeSlicingSkippedWithState(t *testing.T) {
	content := "x\n```\na\n```\n```\nb\n```"
	msgs := []message.Message{{Role: message.RoleUser, Content: content}}
	out, outcome := Apply(message.PathCode, msgs, true, Flags{CompactionAggressive: true})
	if outcome.CodeSliced || out[0].Content != content {
		t.Error("With a compiled state present the code path adds nothing in bulk")
	}
}
