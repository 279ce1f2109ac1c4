package sgraph

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/ImMrLucky/spectyra/message"
	"github.com/ImMrLucky/spectyra/unit"
)

// Options configures graph construction.
type Options struct {
	MaxNodes                int     // keep the most recent N units (default 50)
	SimilarityEdgeMin       float64 // cosine threshold for similarity edges (default 0.55)
	ContradictionEdgeWeight float64 // magnitude scale for contradiction edges (default 1.0)
}

func (o Options) withDefaults() Options {
	if o.MaxNodes <= 0 {
		o.MaxNodes = 50
	}
	if o.SimilarityEdgeMin <= 0 {
		o.SimilarityEdgeMin = 0.55
	}
	if o.ContradictionEdgeWeight == 0 {
		o.ContradictionEdgeWeight = 1.0
	}
	return o
}

// Builder assembles the signed graph for one request.
type Builder struct {
	opts Options
}

// NewBuilder creates a Builder with the given options.
func NewBuilder(opts Options) *Builder {
	return &Builder{opts: opts.withDefaults()}
}

// Build constructs the signed graph over units. Units beyond MaxNodes are
// dropped oldest-first. Returns the graph and the node slice it refers to.
func (b *Builder) Build(path message.Path, units []unit.Unit) (*Graph, []unit.Unit) {
	if len(units) > b.opts.MaxNodes {
		units = units[len(units)-b.opts.MaxNodes:]
	}
	g := &Graph{N: len(units)}
	if len(units) < 2 {
		return g, units
	}

	words := make([]map[string]bool, len(units))
	for i := range units {
		words[i] = contentWords(units[i].Text)
	}

	for i := 0; i < len(units); i++ {
		for j := i + 1; j < len(units); j++ {
			if e, ok := b.similarityEdge(path, units, i, j); ok {
				g.Edges = append(g.Edges, e)
			}
			if e, ok := b.contradictionEdge(path, units, words, i, j); ok {
				g.Edges = append(g.Edges, e)
			}
		}
	}
	g.Edges = append(g.Edges, b.dependencyEdges(path, units, words)...)
	return g, units
}

// similarityEdge emits a positive edge when cosine similarity clears the
// threshold. Base weight is path-dependent; boosts accumulate up to 1.5.
func (b *Builder) similarityEdge(path message.Path, units []unit.Unit, i, j int) (Edge, bool) {
	a, c := units[i], units[j]
	if len(a.Embedding) == 0 || len(c.Embedding) == 0 {
		return Edge{}, false
	}
	cos := CosineSimilarity(a.Embedding, c.Embedding)
	if cos < b.opts.SimilarityEdgeMin {
		return Edge{}, false
	}

	baseW := 0.8
	if path == message.PathCode {
		baseW = 1.0
	}
	w := baseW * cos

	if path == message.PathCode && isCodeKind(a.Kind) && isCodeKind(c.Kind) {
		w += 0.15
	}
	switch d := abs(a.CreatedAtTurn - c.CreatedAtTurn); {
	case d == 0:
		w += 0.15
	case d == 1:
		w += 0.08
	case d <= 3:
		w += 0.03
	}
	if a.Kind == c.Kind {
		switch a.Kind {
		case unit.KindConstraint:
			w += 0.12
		case unit.KindFact:
			w += 0.08
		case unit.KindExplanation:
			w += 0.05
		}
	}
	if w > 1.5 {
		w = 1.5
	}
	return Edge{I: i, J: j, Weight: w, Type: EdgeSimilarity}, true
}

// contradictionEdge scores conflicting evidence between two units and emits
// a negative edge when the accumulated score clears 0.15. Code-on-code pairs
// in the code path are skipped; diffs legitimately restate old lines.
func (b *Builder) contradictionEdge(path message.Path, units []unit.Unit, words []map[string]bool, i, j int) (Edge, bool) {
	a, c := units[i], units[j]
	if path == message.PathCode && isCodeKind(a.Kind) && isCodeKind(c.Kind) {
		return Edge{}, false
	}
	shared := sharedWords(words[i], words[j])
	if shared == 0 {
		return Edge{}, false
	}

	score := numericConflict(a.Text, c.Text)
	if negationAsymmetry(a.Text, c.Text) {
		score += 0.3
	}
	if semanticOpposition(words[i], words[j]) {
		score += 0.35
	}
	if temporalConflict(a.Text, c.Text, shared) {
		score += 0.25
	}
	if score <= 0.15 {
		return Edge{}, false
	}

	mag := math.Abs(b.opts.ContradictionEdgeWeight)
	w := math.Min(mag, math.Max(0.3, score*mag))
	return Edge{I: i, J: j, Weight: -w, Type: EdgeContradiction}, true
}

// dependencyEdges links later units to earlier ones they build on. The edge
// is conceptually directed but stored symmetrically like every other edge.
func (b *Builder) dependencyEdges(path message.Path, units []unit.Unit, words []map[string]bool) []Edge {
	var edges []Edge
	for j := 1; j < len(units); j++ {
		for i := 0; i < j; i++ {
			if units[j].CreatedAtTurn-units[i].CreatedAtTurn > 3 {
				continue
			}
			if path == message.PathCode {
				// A later unit depends on an earlier code unit whose
				// identifiers it mentions.
				if isCodeKind(units[i].Kind) && !isCodeKind(units[j].Kind) &&
					sharedLongWords(words[i], words[j]) >= 2 {
					edges = append(edges, Edge{I: i, J: j, Weight: 0.4, Type: EdgeDependency})
				}
				continue
			}
			if hasAnaphora(units[j].Text) && units[j].CreatedAtTurn-units[i].CreatedAtTurn == 1 &&
				sharedWords(words[i], words[j]) >= 1 {
				edges = append(edges, Edge{I: i, J: j, Weight: 0.3, Type: EdgeDependency})
			}
		}
	}
	return edges
}

// CosineSimilarity returns the cosine of two embedding vectors, 0 on
// mismatched or zero-norm inputs.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

var (
	wordRe   = regexp.MustCompile(`[a-zA-Z_][a-zA-Z0-9_]{3,}`)
	numberRe = regexp.MustCompile(`-?\d+(?:\.\d+)?`)
)

var negationMarkers = []string{"not ", "never ", "no ", "n't", "cannot", "without ", "don't", "won't"}

// oppositionPairs is a small fixed lexicon of paired opposing terms.
var oppositionPairs = [][2]string{
	{"always", "never"},
	{"include", "exclude"},
	{"increase", "decrease"},
	{"enable", "disable"},
	{"allow", "forbid"},
	{"add", "remove"},
	{"before", "after"},
	{"required", "optional"},
	{"synchronous", "asynchronous"},
	{"ascending", "descending"},
}

var pastMarkers = []string{"was ", "were ", "used to ", "previously", "did "}
var futureMarkers = []string{"will ", "going to ", "shall ", "plan to ", "planned "}

func contentWords(text string) map[string]bool {
	out := make(map[string]bool)
	for _, w := range wordRe.FindAllString(strings.ToLower(text), -1) {
		out[w] = true
	}
	return out
}

func sharedWords(a, b map[string]bool) int {
	n := 0
	for w := range a {
		if b[w] {
			n++
		}
	}
	return n
}

func sharedLongWords(a, b map[string]bool) int {
	n := 0
	for w := range a {
		if len(w) >= 6 && b[w] {
			n++
		}
	}
	return n
}

// numericConflict contributes up to 0.4 when the two texts carry numbers
// whose relative difference exceeds 15%.
func numericConflict(a, b string) float64 {
	numsA := parseNumbers(a)
	numsB := parseNumbers(b)
	best := 0.0
	for _, x := range numsA {
		for _, y := range numsB {
			denom := math.Max(math.Abs(x), math.Abs(y))
			if denom == 0 {
				continue
			}
			rel := math.Abs(x-y) / denom
			if rel > 0.15 {
				contrib := math.Min(0.4, rel)
				if contrib > best {
					best = contrib
				}
			}
		}
	}
	return best
}

func parseNumbers(text string) []float64 {
	var nums []float64
	for _, s := range numberRe.FindAllString(text, -1) {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			nums = append(nums, f)
		}
	}
	return nums
}

// negationAsymmetry reports whether exactly one side carries a negation
// marker.
func negationAsymmetry(a, b string) bool {
	return hasNegation(a) != hasNegation(b)
}

func hasNegation(text string) bool {
	lower := strings.ToLower(text)
	for _, m := range negationMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// semanticOpposition reports whether the two word sets land on opposite
// sides of a lexicon pair.
func semanticOpposition(a, b map[string]bool) bool {
	for _, pair := range oppositionPairs {
		if (a[pair[0]] && b[pair[1]]) || (a[pair[1]] && b[pair[0]]) {
			return true
		}
	}
	return false
}

// temporalConflict reports past markers on one side, future on the other,
// with at least two overlapping keywords.
func temporalConflict(a, b string, shared int) bool {
	if shared < 2 {
		return false
	}
	la, lb := strings.ToLower(a), strings.ToLower(b)
	return (containsAny(la, pastMarkers) && containsAny(lb, futureMarkers)) ||
		(containsAny(lb, pastMarkers) && containsAny(la, futureMarkers))
}

func containsAny(text string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}

var anaphoraMarkers = []string{"as above", "as mentioned", "previous", "earlier", "that one", "the same"}

func hasAnaphora(text string) bool {
	return containsAny(strings.ToLower(text), anaphoraMarkers)
}

func isCodeKind(k unit.Kind) bool {
	return k == unit.KindCode || k == unit.KindPatch
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
