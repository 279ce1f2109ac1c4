// Package ledger records verified and estimated token-and-cost savings.
// Records are immutable once written; writes are fire-and-forget from the
// pipeline's point of view.
package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/ImMrLucky/spectyra/message"
)

// SavingsType classifies how a record's savings were measured.
type SavingsType string

const (
	SavingsEstimated      SavingsType = "estimated"
	SavingsVerified       SavingsType = "verified"
	SavingsShadowVerified SavingsType = "shadow_verified"
)

// Record is one savings ledger row.
type Record struct {
	WorkloadKey       string
	Path              message.Path
	Provider          string
	Model             string
	OptimizationLevel int
	BaselineTokens    int
	OptimizedTokens   int
	BaselineCost      float64
	OptimizedCost     float64
	Confidence        string
	SavingsType       SavingsType
	CreatedAt         time.Time
}

// WorkloadSummary aggregates ledger rows for one workload key.
type WorkloadSummary struct {
	WorkloadKey string
	Rows        int
	TokensSaved int
	CostSaved   float64
}

// Writer is the ledger backend.
type Writer interface {
	Write(ctx context.Context, rec Record) error
	SummarizeByWorkload(ctx context.Context) ([]WorkloadSummary, error)
	Close() error
}

// WorkloadKey is the deterministic aggregation digest of a request shape:
// path, provider, model, and the order of magnitude of the prompt length.
func WorkloadKey(path message.Path, provider, model string, promptChars int) string {
	bucket := 0
	for n := promptChars; n >= 10; n /= 10 {
		bucket++
	}
	payload := fmt.Sprintf("%s|%s|%s|%d", path, provider, model, bucket)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])[:16]
}
