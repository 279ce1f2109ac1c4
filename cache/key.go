// Package cache implements the semantic response cache: a deterministic
// key over the request's stable units and spectral fingerprint, with
// in-memory and Redis backends. Cache failures never fail a request.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/ImMrLucky/spectyra/message"
	"github.com/ImMrLucky/spectyra/unit"
)

const keyPrefix = "semantic_"

// BuildKey derives the semantic cache key. It is a pure function of the
// sorted top-10 stable unit IDs, the rounded embedding fingerprints of up
// to 20 units, the model, the path, and the stability/lambda2 readings:
// equal inputs always produce equal keys.
func BuildKey(units []unit.Unit, stable []int, model string, path message.Path, stability, lambda2 float64) string {
	ids := make([]string, 0, len(stable))
	for _, i := range stable {
		if i >= 0 && i < len(units) {
			ids = append(ids, units[i].ID)
		}
	}
	sort.Strings(ids)
	if len(ids) > 10 {
		ids = ids[:10]
	}

	var fingerprints []string
	for i, u := range units {
		if i >= 20 {
			break
		}
		if len(u.Embedding) == 0 {
			continue
		}
		dims := u.Embedding
		if len(dims) > 8 {
			dims = dims[:8]
		}
		parts := make([]string, len(dims))
		for d, x := range dims {
			parts[d] = fmt.Sprintf("%.3f", x)
		}
		fingerprints = append(fingerprints, strings.Join(parts, ","))
	}

	payload := strings.Join([]string{
		strings.Join(ids, "|"),
		strings.Join(fingerprints, ";"),
		model,
		string(path),
		fmt.Sprintf("%.3f", stability),
		fmt.Sprintf("%.3f", lambda2),
	}, "\x1f")

	sum := sha256.Sum256([]byte(payload))
	return keyPrefix + hex.EncodeToString(sum[:])[:16]
}
