// Package unit turns a chat history into bounded semantic units, the node
// set every downstream graph and spectral stage operates on.
package unit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/ImMrLucky/spectyra/message"
)

// Kind classifies what a semantic unit asserts.
type Kind string

const (
	KindFact        Kind = "fact"
	KindConstraint  Kind = "constraint"
	KindExplanation Kind = "explanation"
	KindCode        Kind = "code"
	KindPatch       Kind = "patch"
)

// Unit is an immutable fragment of conversation text. Embedding is filled in
// by the embedder after creation; StabilityScore is updated by the analyzer.
type Unit struct {
	ID             string
	Kind           Kind
	Text           string
	Role           message.Role
	Embedding      []float32
	StabilityScore float64
	CreatedAtTurn  int
}

// unitID derives the deterministic unit identifier: first 16 hex characters
// of SHA-256 over "text|kind|role".
func unitID(text string, kind Kind, role message.Role) string {
	sum := sha256.Sum256([]byte(text + "|" + string(kind) + "|" + string(role)))
	return hex.EncodeToString(sum[:])[:16]
}

// idAllocator hands out unit IDs, suffixing duplicates so IDs stay unique
// within a request.
type idAllocator struct {
	seen map[string]int
}

func newIDAllocator() *idAllocator {
	return &idAllocator{seen: make(map[string]int)}
}

func (a *idAllocator) allocate(text string, kind Kind, role message.Role) string {
	id := unitID(text, kind, role)
	a.seen[id]++
	if n := a.seen[id]; n > 1 {
		return fmt.Sprintf("%s_%d", id, n)
	}
	return id
}
