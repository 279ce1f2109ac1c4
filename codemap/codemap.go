// Package codemap digests fenced code blocks into a structural index of
// symbols, exports, imports and dependencies, and can replace the blocks
// with compact references. Code path only.
package codemap

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/ImMrLucky/spectyra/message"
)

// Map is the structural digest of every code block in a conversation.
type Map struct {
	Symbols      []string
	Exports      []string
	Imports      []string
	Dependencies []string
}

// Empty reports whether the digest found nothing.
func (m Map) Empty() bool {
	return len(m.Symbols) == 0 && len(m.Exports) == 0 && len(m.Imports) == 0 && len(m.Dependencies) == 0
}

var (
	goFuncRe     = regexp.MustCompile(`(?m)^func\s+(?:\([^)]+\)\s+)?([A-Za-z_]\w*)`)
	goTypeRe     = regexp.MustCompile(`(?m)^type\s+([A-Za-z_]\w*)`)
	jsFuncRe     = regexp.MustCompile(`(?m)\bfunction\s+([A-Za-z_$]\w*)`)
	jsClassRe    = regexp.MustCompile(`(?m)\bclass\s+([A-Za-z_$]\w*)`)
	jsConstRe    = regexp.MustCompile(`(?m)^(?:export\s+)?const\s+([A-Za-z_$]\w*)\s*=`)
	jsExportRe   = regexp.MustCompile(`(?m)^export\s+(?:default\s+)?(?:async\s+)?(?:function|class|const|let|var|interface|type)?\s*([A-Za-z_$]\w*)`)
	jsImportRe   = regexp.MustCompile(`(?m)^import\s+.*?from\s+['"]([^'"]+)['"]`)
	pyDefRe      = regexp.MustCompile(`(?m)^\s*def\s+([A-Za-z_]\w*)`)
	pyClassRe    = regexp.MustCompile(`(?m)^\s*class\s+([A-Za-z_]\w*)`)
	pyImportRe   = regexp.MustCompile(`(?m)^(?:from\s+([\w.]+)\s+import|import\s+([\w.]+))`)
	goImportRe   = regexp.MustCompile(`(?m)^\s*(?:import\s+)?"([\w./-]+)"`)
	requireRe    = regexp.MustCompile(`require\(['"]([^'"]+)['"]\)`)
	fenceOpenRe  = regexp.MustCompile("^```([a-zA-Z0-9_+-]*)")
)

// Extract parses every fenced code block of msgs and merges the per-block
// digests, deduplicated in first-seen order.
func Extract(msgs []message.Message) Map {
	var m Map
	seen := map[string]map[string]bool{
		"symbol": {}, "export": {}, "import": {}, "dep": {},
	}
	add := func(bucket string, dst *[]string, vals []string) {
		for _, v := range vals {
			if v == "" || seen[bucket][v] {
				continue
			}
			seen[bucket][v] = true
			*dst = append(*dst, v)
		}
	}

	for _, msg := range msgs {
		for _, block := range message.ExtractFences(msg.Content) {
			lang, body := splitFence(block)
			add("symbol", &m.Symbols, symbols(lang, body))
			add("export", &m.Exports, exports(body))
			imps := imports(lang, body)
			add("import", &m.Imports, imps)
			add("dep", &m.Dependencies, externalDeps(imps))
		}
	}
	return m
}

// splitFence strips the backtick delimiters, returning the language tag and
// the body.
func splitFence(block string) (lang, body string) {
	if m := fenceOpenRe.FindStringSubmatch(block); m != nil {
		lang = strings.ToLower(m[1])
	}
	body = strings.TrimPrefix(block, "```")
	if i := strings.Index(body, "\n"); i >= 0 {
		body = body[i+1:]
	}
	body = strings.TrimSuffix(body, "```")
	return lang, body
}

func symbols(lang, body string) []string {
	var out []string
	collect := func(re *regexp.Regexp) {
		for _, m := range re.FindAllStringSubmatch(body, -1) {
			out = append(out, m[1])
		}
	}
	switch lang {
	case "go", "golang":
		collect(goFuncRe)
		collect(goTypeRe)
	case "py", "python":
		collect(pyDefRe)
		collect(pyClassRe)
	default:
		collect(jsFuncRe)
		collect(jsClassRe)
		collect(jsConstRe)
		collect(goFuncRe)
		collect(pyDefRe)
	}
	return out
}

func exports(body string) []string {
	var out []string
	for _, m := range jsExportRe.FindAllStringSubmatch(body, -1) {
		out = append(out, m[1])
	}
	return out
}

func imports(lang, body string) []string {
	var out []string
	for _, m := range jsImportRe.FindAllStringSubmatch(body, -1) {
		out = append(out, m[1])
	}
	for _, m := range requireRe.FindAllStringSubmatch(body, -1) {
		out = append(out, m[1])
	}
	for _, m := range pyImportRe.FindAllStringSubmatch(body, -1) {
		if m[1] != "" {
			out = append(out, m[1])
		} else {
			out = append(out, m[2])
		}
	}
	if lang == "go" || lang == "golang" {
		for _, m := range goImportRe.FindAllStringSubmatch(body, -1) {
			out = append(out, m[1])
		}
	}
	return out
}

// externalDeps filters imports down to third-party package names (no
// relative paths).
func externalDeps(imps []string) []string {
	var out []string
	for _, imp := range imps {
		if strings.HasPrefix(imp, ".") || strings.HasPrefix(imp, "/") {
			continue
		}
		out = append(out, imp)
	}
	return out
}

// Index renders the digest as a compact line-oriented structural index,
// trimmed by detail level: lower detail keeps fewer entries per section.
func Index(m Map, detail float64) string {
	if m.Empty() {
		return ""
	}
	keep := func(items []string) []string {
		if len(items) == 0 {
			return nil
		}
		n := int(math.Ceil(float64(len(items)) * clamp01(detail)))
		if n < 1 {
			n = 1
		}
		if n > len(items) {
			n = len(items)
		}
		return items[:n]
	}

	var lines []string
	if s := keep(m.Symbols); len(s) > 0 {
		lines = append(lines, "symbols: "+strings.Join(s, ", "))
	}
	if s := keep(m.Exports); len(s) > 0 {
		lines = append(lines, "exports: "+strings.Join(s, ", "))
	}
	if s := keep(m.Imports); len(s) > 0 {
		lines = append(lines, "imports: "+strings.Join(s, ", "))
	}
	if s := keep(m.Dependencies); len(s) > 0 {
		lines = append(lines, "deps: "+strings.Join(s, ", "))
	}
	return strings.Join(lines, "\n")
}

// Compress rewrites msgs in one of two modes. Structural-only replaces every
// fenced block with [[CODEMAP:structural]] and appends the structural index
// to the last rewritten message. Snippet mode keeps ceil(count*detail)
// largest blocks as addressable [[CODEMAP:snippet_k]] snippets and lists the
// rest as omitted.
func Compress(msgs []message.Message, detail float64, structuralOnly bool) []message.Message {
	out := message.Clone(msgs)
	m := Extract(msgs)

	if structuralOnly {
		rewrote := -1
		for i := range out {
			if out[i].Role == message.RoleSystem {
				continue
			}
			if len(message.ExtractFences(out[i].Content)) == 0 {
				continue
			}
			out[i].Content = message.ReplaceFences(out[i].Content, func(int, string) string {
				return "[[CODEMAP:structural]]"
			})
			rewrote = i
		}
		if rewrote >= 0 {
			if idx := Index(m, detail); idx != "" {
				out[rewrote].Content += "\n\nCode structure:\n" + idx
			}
		}
		return out
	}

	// Collect all blocks across messages to rank by size.
	type blockRef struct {
		msg, ord int
		size     int
	}
	var blocks []blockRef
	for i := range out {
		if out[i].Role == message.RoleSystem {
			continue
		}
		for ord, b := range message.ExtractFences(out[i].Content) {
			blocks = append(blocks, blockRef{msg: i, ord: ord, size: len(b)})
		}
	}
	if len(blocks) == 0 {
		return out
	}

	keepN := int(math.Ceil(float64(len(blocks)) * clamp01(detail)))
	ranked := make([]blockRef, len(blocks))
	copy(ranked, blocks)
	sort.Slice(ranked, func(a, b int) bool { return ranked[a].size > ranked[b].size })
	kept := make(map[[2]int]int) // (msg, ord) -> snippet number
	for k := 0; k < keepN && k < len(ranked); k++ {
		kept[[2]int{ranked[k].msg, ranked[k].ord}] = k + 1
	}

	omitted := 0
	var snippets []string
	for i := range out {
		if out[i].Role == message.RoleSystem {
			continue
		}
		out[i].Content = message.ReplaceFences(out[i].Content, func(ord int, block string) string {
			if k, ok := kept[[2]int{i, ord}]; ok {
				snippets = append(snippets, fmt.Sprintf("[[CODEMAP:snippet_%d]]\n%s", k, block))
				return fmt.Sprintf("[[CODEMAP:snippet_%d]]", k)
			}
			omitted++
			return "[[CODEMAP:structural]]"
		})
	}

	last := len(out) - 1
	var tail strings.Builder
	if idx := Index(m, detail); idx != "" {
		tail.WriteString("\n\nCode structure:\n" + idx)
	}
	for _, s := range snippets {
		tail.WriteString("\n\n" + s)
	}
	if omitted > 0 {
		tail.WriteString(fmt.Sprintf("\n\n(%d code blocks omitted)", omitted))
	}
	out[last].Content += tail.String()
	return out
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
