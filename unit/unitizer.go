package unit

import (
	"regexp"
	"strings"

	"github.com/ImMrLucky/spectyra/message"
)

// Options configures unitization. Zero values fall back to defaults.
type Options struct {
	MinChars      int  // drop chunks shorter than this (default 40)
	MaxChars      int  // window chunks longer than this (default 900)
	MaxUnits      int  // keep only the most recent N units (default 50)
	IncludeSystem bool // unitize system messages too
}

func (o Options) withDefaults() Options {
	if o.MinChars <= 0 {
		o.MinChars = 40
	}
	if o.MaxChars <= 0 {
		o.MaxChars = 900
	}
	if o.MaxUnits < 0 {
		o.MaxUnits = 0
	} else if o.MaxUnits == 0 {
		o.MaxUnits = 50
	}
	return o
}

var (
	bulletRe     = regexp.MustCompile(`(?m)^\s*(?:[-*]|\d+\.)\s+`)
	diffHeaderRe = regexp.MustCompile(`(?m)^(?:--- |\+\+\+ |@@ |diff --git )`)
	constraintRe = regexp.MustCompile(`(?i)\b(must|should|require[sd]?)\b`)
)

// Unitizer splits messages into semantic units. Unitization is total: any
// input yields a (possibly empty) unit list and never fails.
type Unitizer struct {
	opts Options
}

// NewUnitizer creates a Unitizer with the given options.
func NewUnitizer(opts Options) *Unitizer {
	return &Unitizer{opts: opts.withDefaults()}
}

// Unitize converts msgs into at most MaxUnits units. turn is the monotonic
// turn index of the newest message; earlier messages get proportionally
// earlier turns.
func (u *Unitizer) Unitize(path message.Path, msgs []message.Message, turn int) []Unit {
	if u.opts.MaxUnits == 0 {
		return nil
	}

	alloc := newIDAllocator()
	var units []Unit

	for i, msg := range msgs {
		if msg.Role == message.RoleSystem && !u.opts.IncludeSystem {
			continue
		}
		text := message.Normalize(msg.Content)
		if text == "" {
			continue
		}
		msgTurn := turn - (len(msgs) - 1 - i)
		if msgTurn < 0 {
			msgTurn = 0
		}

		var chunks []chunk
		if path == message.PathCode {
			chunks = u.splitCode(text)
		} else {
			chunks = u.splitTalk(text)
		}

		for _, c := range chunks {
			for _, windowed := range u.window(c.text) {
				kind := inferKind(windowed, msg.Role, c.code)
				units = append(units, Unit{
					ID:             alloc.allocate(windowed, kind, msg.Role),
					Kind:           kind,
					Text:           windowed,
					Role:           msg.Role,
					StabilityScore: 0.5,
					CreatedAtTurn:  msgTurn,
				})
			}
		}
	}

	if len(units) > u.opts.MaxUnits {
		units = units[len(units)-u.opts.MaxUnits:]
	}
	return units
}

type chunk struct {
	text string
	code bool
}

// splitTalk splits prose on blank-line paragraphs, or on bullet lines when
// the text is bullet-formatted.
func (u *Unitizer) splitTalk(text string) []chunk {
	var parts []string
	if bulletRe.MatchString(text) {
		parts = splitBullets(text)
	} else {
		parts = strings.Split(text, "\n\n")
	}

	var chunks []chunk
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			chunks = append(chunks, chunk{text: p})
		}
	}
	return chunks
}

// splitCode extracts fenced code blocks as standalone CODE_BLOCK units and
// unitizes the remaining prose talk-style.
func (u *Unitizer) splitCode(text string) []chunk {
	var chunks []chunk
	for _, seg := range message.SplitFences(text) {
		if seg.Code {
			body := strings.TrimSpace(seg.Text)
			if body != "" {
				chunks = append(chunks, chunk{text: "CODE_BLOCK:" + body, code: true})
			}
			continue
		}
		chunks = append(chunks, u.splitTalk(seg.Text)...)
	}
	return chunks
}

// window clamps a chunk to [MinChars, MaxChars] characters: short chunks
// are dropped, long chunks are cut into MaxChars-sized windows. Windows are
// measured in runes so multi-byte text never splits mid-character.
func (u *Unitizer) window(text string) []string {
	r := []rune(text)
	if len(r) < u.opts.MinChars {
		return nil
	}
	if len(r) <= u.opts.MaxChars {
		return []string{text}
	}
	var out []string
	for start := 0; start < len(r); start += u.opts.MaxChars {
		end := start + u.opts.MaxChars
		if end > len(r) {
			end = len(r)
		}
		if end-start >= u.opts.MinChars {
			out = append(out, string(r[start:end]))
		}
	}
	return out
}

// splitBullets breaks bullet-formatted text into one chunk per bullet,
// keeping any preamble before the first bullet as its own chunk.
func splitBullets(text string) []string {
	lines := strings.Split(text, "\n")
	var parts []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			parts = append(parts, cur.String())
			cur.Reset()
		}
	}
	for _, line := range lines {
		if bulletRe.MatchString(line) {
			flush()
		}
		if cur.Len() > 0 {
			cur.WriteString("\n")
		}
		cur.WriteString(line)
	}
	flush()
	return parts
}

// inferKind classifies a chunk. Diff headers win over code, code wins over
// role-based classification.
func inferKind(text string, role message.Role, isCode bool) Kind {
	if diffHeaderRe.MatchString(text) {
		return KindPatch
	}
	if isCode || strings.HasPrefix(text, "CODE_BLOCK:") || strings.Contains(text, "```") {
		return KindCode
	}
	if role == message.RoleUser && constraintRe.MatchString(text) {
		return KindConstraint
	}
	if role == message.RoleAssistant {
		return KindExplanation
	}
	return KindFact
}
