package message

import "regexp"

// fenceRe matches a fenced code block: triple backticks with an optional
// language tag, a DOTALL body, and a closing triple backtick.
var fenceRe = regexp.MustCompile("(?s)```[a-zA-Z0-9_+-]*\n?.*?```")

// Segment is a run of text that is either entirely inside a fenced code
// block or entirely outside one.
type Segment struct {
	Text string
	Code bool
}

// SplitFences splits text into alternating code and non-code segments.
// Concatenating the segment texts reproduces the input exactly.
func SplitFences(text string) []Segment {
	locs := fenceRe.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return []Segment{{Text: text}}
	}

	var segs []Segment
	prev := 0
	for _, loc := range locs {
		if loc[0] > prev {
			segs = append(segs, Segment{Text: text[prev:loc[0]]})
		}
		segs = append(segs, Segment{Text: text[loc[0]:loc[1]], Code: true})
		prev = loc[1]
	}
	if prev < len(text) {
		segs = append(segs, Segment{Text: text[prev:]})
	}
	return segs
}

// RewriteOutsideFences applies fn to every non-code segment of text and
// reassembles the result. Code segments pass through byte-for-byte, which
// guarantees aliases and reference markers never land inside a fence.
func RewriteOutsideFences(text string, fn func(string) string) string {
	segs := SplitFences(text)
	var out string
	for _, seg := range segs {
		if seg.Code {
			out += seg.Text
		} else {
			out += fn(seg.Text)
		}
	}
	return out
}

// ExtractFences returns the fenced code blocks of text in order, including
// the backtick delimiters.
func ExtractFences(text string) []string {
	return fenceRe.FindAllString(text, -1)
}

// StripFences removes every fenced code block from text, leaving the prose.
func StripFences(text string) string {
	return fenceRe.ReplaceAllString(text, "")
}

// ReplaceFences substitutes the i-th fenced block with repl(i, block).
func ReplaceFences(text string, repl func(i int, block string) string) string {
	i := -1
	return fenceRe.ReplaceAllStringFunc(text, func(block string) string {
		i++
		return repl(i, block)
	})
}
