package codemap

import (
	"strings"
	"testing"

	"github.com/ImMrLucky/spectyra/message"
)

func goMsg() message.Message {
	return message.Message{Role: message.RoleUser, Content: "Here is the service:\n```go\nimport \"github.com/redis/go-redis/v9\"\n\ntype CartService struct{}\n\nfunc (s *CartService) Total() int { return 0 }\n\nfunc NewCartService() *CartService { return &CartService{} }\n```"}
}

func TestExtractGo(t *testing.T) {
	m := Extract([]message.Message{goMsg()})
	joined := strings.Join(m.Symbols, ",")
	if !strings.Contains(joined, "Total") || !strings.Contains(joined, "NewCartService") {
		t.Errorf("Expected Go funcs in symbols, got %v", m.Symbols)
	}
	if !strings.Contains(joined, "CartService") {
		t.Errorf("Expected Go type in symbols, got %v", m.Symbols)
	}
	found := false
	for _, imp := range m.Imports {
		if imp == "github.com/redis/go-redis/v9" {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected Go import captured, got %v", m.Imports)
	}
}

func TestExtractJS(t *testing.T) {
	msg := message.Message{Role: message.RoleUser, Content: "```js\nimport { api } from './client'\nconst axios = require('axios')\nexport class Checkout {}\nfunction computeTotal(cart) {}\n```"}
	m := Extract([]message.Message{msg})

	joined := strings.Join(m.Symbols, ",")
	if !strings.Contains(joined, "Checkout") || !strings.Contains(joined, "computeTotal") {
		t.Errorf("Expected JS symbols, got %v", m.Symbols)
	}
	if len(m.Exports) == 0 || m.Exports[0] != "Checkout" {
		t.Errorf("Expected Checkout exported, got %v", m.Exports)
	}
	depJoined := strings.Join(m.Dependencies, ",")
	if !strings.Contains(depJoined, "axios") {
		t.Errorf("Expected axios as external dep, got %v", m.Dependencies)
	}
	if strings.Contains(depJoined, "./client") {
		t.Errorf("Relative imports are not dependencies, got %v", m.Dependencies)
	}
}

func TestExtractPython(t *testing.T) {
	msg := message.Message{Role: message.RoleUser, Content: "```python\nimport numpy\nfrom flask import Flask\n\nclass Worker:\n    def process(self):\n        pass\n```"}
	m := Extract([]message.Message{msg})
	joined := strings.Join(m.Symbols, ",")
	if !strings.Contains(joined, "Worker") || !strings.Contains(joined, "process") {
		t.Errorf("Expected Python symbols, got %v", m.Symbols)
	}
	impJoined := strings.Join(m.Imports, ",")
	if !strings.Contains(impJoined, "numpy") || !strings.Contains(impJoined, "flask") {
		t.Errorf("Expected Python imports, got %v", m.Imports)
	}
}

func TestIndexDetailTrims(t *testing.T) {
	m := Map{Symbols: []string{"A", "B", "C", "D"}}
	full := Index(m, 1.0)
	if !strings.Contains(full, "A, B, C, D") {
		t.Errorf("Full detail keeps everything, got %q", full)
	}
	half := Index(m, 0.5)
	if strings.Contains(half, "C") || !strings.Contains(half, "B") {
		t.Errorf("Half detail keeps the first half, got %q", half)
	}
	if Index(Map{}, 1.0) != "" {
		t.Error("Empty map indexes to empty string")
	}
}

func TestCompressStructuralOnly(t *testing.T) {
	out := Compress([]message.Message{goMsg()}, 1.0, true)
	content := out[0].Content
	if !strings.Contains(content, "[[CODEMAP:structural]]") {
		t.Errorf("Expected structural marker, got %q", content)
	}
	if strings.Contains(content, "func (s *CartService)") {
		t.Error("Structural mode must drop code bodies")
	}
	if !strings.Contains(content, "Code structure:") {
		t.Error("Structural index should be appended")
	}
}

func TestCompressSnippetKeepsLargest(t *testing.T) {
	small := "```\ntiny\n```"
	big := "```\n" + strings.Repeat("a much larger block of code\n", 8) + "```"
	msgs := []message.Message{{Role: message.RoleUser, Content: small + "\n" + big}}

	out := Compress(msgs, 0.5, false)
	content := out[0].Content
	if !strings.Contains(content, "[[CODEMAP:snippet_1]]") {
		t.Errorf("Expected the largest block kept as snippet 1, got %q", content)
	}
	if !strings.Contains(content, "a much larger block of code") {
		t.Error("Kept snippet body should be appended")
	}
	if !strings.Contains(content, "(1 code blocks omitted)") {
		t.Errorf("Omitted count should be listed, got %q", content)
	}
}

func TestCompressLeavesSystemAlone(t *testing.T) {
	sys := message.Message{Role: message.RoleSystem, Content: "```\nnever touch\n```"}
	out := Compress([]message.Message{sys, goMsg()}, 1.0, true)
	if out[0].Content != sys.Content {
		t.Errorf("System messages must pass through, got %q", out[0].Content)
	}
}
