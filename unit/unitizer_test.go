package unit

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/ImMrLucky/spectyra/message"
)

func TestUnitIDDeterministic(t *testing.T) {
	a := unitID("the same text", KindFact, message.RoleUser)
	b := unitID("the same text", KindFact, message.RoleUser)
	if a != b {
		t.Errorf("Equal inputs must produce equal IDs: %s vs %s", a, b)
	}
	if len(a) != 16 {
		t.Errorf("Expected 16-hex ID, got %q", a)
	}
	if c := unitID("the same text", KindConstraint, message.RoleUser); c == a {
		t.Error("Different kind must change the ID")
	}
}

func TestIDAllocatorSuffixesDuplicates(t *testing.T) {
	alloc := newIDAllocator()
	first := alloc.allocate("dup", KindFact, message.RoleUser)
	second := alloc.allocate("dup", KindFact, message.RoleUser)
	third := alloc.allocate("dup", KindFact, message.RoleUser)
	if second != first+"_2" {
		t.Errorf("Expected %s_2, got %s", first, second)
	}
	if third != first+"_3" {
		t.Errorf("Expected %s_3, got %s", first, third)
	}
}

func TestUnitizeTalkParagraphs(t *testing.T) {
	u := NewUnitizer(Options{})
	msgs := []message.Message{
		{Role: message.RoleUser, Content: "The deployment must finish before midnight on Friday.\n\nWe also decided to use the blue environment for the rollout."},
	}
	units := u.Unitize(message.PathTalk, msgs, 0)
	if len(units) != 2 {
		t.Fatalf("Expected 2 units, got %d", len(units))
	}
	if units[0].Kind != KindConstraint {
		t.Errorf("Expected constraint kind for a must-statement, got %s", units[0].Kind)
	}
	if units[1].Kind != KindFact {
		t.Errorf("Expected fact kind, got %s", units[1].Kind)
	}
	for _, un := range units {
		if un.StabilityScore != 0.5 {
			t.Errorf("New units start at stability 0.5, got %f", un.StabilityScore)
		}
	}
}

func TestUnitizeSkipsSystemAndShortChunks(t *testing.T) {
	u := NewUnitizer(Options{})
	msgs := []message.Message{
		{Role: message.RoleSystem, Content: "You are a helpful assistant working on infrastructure."},
		{Role: message.RoleUser, Content: "short"},
	}
	units := u.Unitize(message.PathTalk, msgs, 1)
	if len(units) != 0 {
		t.Errorf("Expected no units from system and sub-minimum chunks, got %d", len(units))
	}
}

func TestUnitizeCodeFences(t *testing.T) {
	u := NewUnitizer(Options{})
	content := "Here is the handler that keeps failing during startup checks:\n```go\nfunc Handler(w http.ResponseWriter, r *http.Request) {\n\tw.WriteHeader(500)\n}\n```"
	msgs := []message.Message{{Role: message.RoleUser, Content: content}}

	units := u.Unitize(message.PathCode, msgs, 0)
	if len(units) != 2 {
		t.Fatalf("Expected prose + code units, got %d", len(units))
	}
	var code *Unit
	for i := range units {
		if units[i].Kind == KindCode {
			code = &units[i]
		}
	}
	if code == nil {
		t.Fatal("Expected a code unit")
	}
	if !strings.HasPrefix(code.Text, "CODE_BLOCK:") {
		t.Errorf("Code unit text should carry the CODE_BLOCK prefix, got %q", code.Text)
	}
}

func TestUnitizeMaxUnitsKeepsMostRecent(t *testing.T) {
	u := NewUnitizer(Options{MaxUnits: 2})
	msgs := []message.Message{
		{Role: message.RoleUser, Content: "The first paragraph about configuring the gateway.\n\nThe second paragraph about configuring the cache layer.\n\nThe third paragraph about configuring the savings ledger."},
	}
	units := u.Unitize(message.PathTalk, msgs, 0)
	if len(units) != 2 {
		t.Fatalf("Expected 2 units, got %d", len(units))
	}
	if !strings.Contains(units[1].Text, "third") {
		t.Errorf("Trimming must drop oldest first, got %q", units[1].Text)
	}
}

func TestUnitizeWindowsLongChunks(t *testing.T) {
	u := NewUnitizer(Options{MaxChars: 100})
	long := strings.Repeat("a sentence about rollout policy ", 10) // ~320 chars, no blank lines
	msgs := []message.Message{{Role: message.RoleUser, Content: long}}
	units := u.Unitize(message.PathTalk, msgs, 0)
	if len(units) < 3 {
		t.Fatalf("Expected the chunk windowed into several units, got %d", len(units))
	}
	for _, un := range units {
		if len(un.Text) > 100 {
			t.Errorf("Window exceeds MaxChars: %d", len(un.Text))
		}
	}
}

func TestInferKindPatch(t *testing.T) {
	text := "--- a/main.go\n+++ b/main.go\n@@ -1,3 +1,3 @@ adjust the handler return value"
	if got := inferKind(text, message.RoleAssistant, false); got != KindPatch {
		t.Errorf("Expected patch kind for diff text, got %s", got)
	}
}

func TestInferKindExplanation(t *testing.T) {
	text := "This happens because the pool is exhausted under sustained load."
	if got := inferKind(text, message.RoleAssistant, false); got != KindExplanation {
		t.Errorf("Expected explanation kind, got %s", got)
	}
}

func TestWindowMultibyte(t *testing.T) {
	u := NewUnitizer(Options{MinChars: 40, MaxChars: 120})
	text := strings.TrimSpace(strings.Repeat("рефакторинг планировщика задач ", 18))
	windows := u.window(text)
	if len(windows) < 2 {
		t.Fatalf("Expected the long chunk to split into windows, got %d", len(windows))
	}
	for i, w := range windows {
		if !utf8.ValidString(w) {
			t.Errorf("Window %d is invalid UTF-8: %q", i, w)
		}
		if n := utf8.RuneCountInString(w); n > 120 {
			t.Errorf("Window %d exceeds 120 runes: %d", i, n)
		}
	}
}
