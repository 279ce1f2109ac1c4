package ledger

import (
	"context"
	"sort"
	"sync"
)

// MemoryWriter is an in-process ledger, used in tests and when no database
// is configured.
type MemoryWriter struct {
	mu      sync.Mutex
	records []Record
}

// NewMemoryWriter creates a MemoryWriter.
func NewMemoryWriter() *MemoryWriter {
	return &MemoryWriter{}
}

// Write appends one record.
func (w *MemoryWriter) Write(ctx context.Context, rec Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.records = append(w.records, rec)
	return nil
}

// Records returns a copy of every record written so far.
func (w *MemoryWriter) Records() []Record {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Record, len(w.records))
	copy(out, w.records)
	return out
}

// SummarizeByWorkload aggregates savings per workload key.
func (w *MemoryWriter) SummarizeByWorkload(ctx context.Context) ([]WorkloadSummary, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	byKey := make(map[string]*WorkloadSummary)
	for _, rec := range w.records {
		s, ok := byKey[rec.WorkloadKey]
		if !ok {
			s = &WorkloadSummary{WorkloadKey: rec.WorkloadKey}
			byKey[rec.WorkloadKey] = s
		}
		s.Rows++
		s.TokensSaved += rec.BaselineTokens - rec.OptimizedTokens
		s.CostSaved += rec.BaselineCost - rec.OptimizedCost
	}

	out := make([]WorkloadSummary, 0, len(byKey))
	for _, s := range byKey {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WorkloadKey < out[j].WorkloadKey })
	return out, nil
}

// Close is a no-op.
func (w *MemoryWriter) Close() error {
	return nil
}
