// Package encode implements the structured token encoder (repeated-phrase
// aliasing) and the legacy reference pack. Both rewrite only outside fenced
// code blocks and both are bulk layers: the context compiler supersedes
// them when it runs.
package encode

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/ImMrLucky/spectyra/message"
)

const (
	minPhraseWords = 3
	maxPhraseWords = 8
	minPhraseChars = 18
	minOccurrences = 3
	maxPhrases     = 5
	maxLegendChars = 60
)

var phraseWordRe = regexp.MustCompile(`[^\s]+`)

// Phrase is a repeated phrase selected for aliasing.
type Phrase struct {
	Alias string // P1, P2, ...
	Text  string
	Count int
}

// EncodeResult is the outcome of one STE pass.
type EncodeResult struct {
	Messages []message.Message
	Phrases  []Phrase
	Applied  bool
}

// Encode finds repeated 3-8-word phrases across non-system messages and
// replaces each occurrence with a short alias, prepending a legend message.
// aggressiveness scales how many of the top phrases are used; zero disables
// the pass.
func Encode(msgs []message.Message, aggressiveness float64) EncodeResult {
	if aggressiveness <= 0 {
		return EncodeResult{Messages: msgs}
	}

	phrases := topPhrases(msgs, phraseBudget(aggressiveness))
	if len(phrases) == 0 {
		return EncodeResult{Messages: msgs}
	}

	out := message.Clone(msgs)
	for i := range out {
		if out[i].Role == message.RoleSystem {
			continue
		}
		out[i].Content = message.RewriteOutsideFences(out[i].Content, func(text string) string {
			for _, p := range phrases {
				text = strings.ReplaceAll(text, p.Text, "⟦"+p.Alias+"⟧")
			}
			return text
		})
	}

	var legend strings.Builder
	legend.WriteString("Phrase legend:\n")
	for _, p := range phrases {
		entry := message.TruncateChars(p.Text, maxLegendChars)
		legend.WriteString(fmt.Sprintf("%s|%s\n", p.Alias, entry))
	}
	withLegend := append([]message.Message{{
		Role:    message.RoleSystem,
		Content: strings.TrimRight(legend.String(), "\n"),
	}}, out...)

	return EncodeResult{Messages: withLegend, Phrases: phrases, Applied: true}
}

func phraseBudget(aggressiveness float64) int {
	n := int(1 + aggressiveness*float64(maxPhrases-1) + 0.5)
	if n > maxPhrases {
		n = maxPhrases
	}
	if n < 1 {
		n = 1
	}
	return n
}

// topPhrases counts candidate phrases in the non-code text of msgs and
// returns the most frequent ones, longest-first among ties so that nested
// phrases resolve to the larger alias.
func topPhrases(msgs []message.Message, limit int) []Phrase {
	counts := make(map[string]int)
	for _, msg := range msgs {
		if msg.Role == message.RoleSystem {
			continue
		}
		for _, seg := range message.SplitFences(msg.Content) {
			if seg.Code {
				continue
			}
			countPhrases(seg.Text, counts)
		}
	}

	type candidate struct {
		text  string
		count int
	}
	var cands []candidate
	for text, count := range counts {
		if count >= minOccurrences && len(text) >= minPhraseChars {
			cands = append(cands, candidate{text, count})
		}
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].count != cands[j].count {
			return cands[i].count > cands[j].count
		}
		if len(cands[i].text) != len(cands[j].text) {
			return len(cands[i].text) > len(cands[j].text)
		}
		return cands[i].text < cands[j].text
	})

	var phrases []Phrase
	for _, c := range cands {
		if len(phrases) >= limit {
			break
		}
		// Skip phrases contained in an already-selected longer phrase.
		nested := false
		for _, p := range phrases {
			if strings.Contains(p.Text, c.text) {
				nested = true
				break
			}
		}
		if nested {
			continue
		}
		phrases = append(phrases, Phrase{
			Alias: fmt.Sprintf("P%d", len(phrases)+1),
			Text:  c.text,
			Count: c.count,
		})
	}
	return phrases
}

// countPhrases slides 3-8-word windows over each line of text.
func countPhrases(text string, counts map[string]int) {
	for _, line := range strings.Split(text, "\n") {
		words := phraseWordRe.FindAllString(line, -1)
		for size := minPhraseWords; size <= maxPhraseWords; size++ {
			for start := 0; start+size <= len(words); start++ {
				phrase := strings.Join(words[start:start+size], " ")
				if len(phrase) >= minPhraseChars {
					counts[phrase]++
				}
			}
		}
	}
}
