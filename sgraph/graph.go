// Package sgraph builds the signed weighted graph over semantic units:
// positive similarity edges, negative contradiction edges, and path-specific
// dependency edges. The spectral analyzer consumes the result.
package sgraph

// EdgeType distinguishes the three relations captured by the graph.
type EdgeType string

const (
	EdgeSimilarity    EdgeType = "similarity"
	EdgeContradiction EdgeType = "contradiction"
	EdgeDependency    EdgeType = "dependency"
)

// Edge connects two node indices with a signed weight. Similarity weights
// are positive, contradiction weights negative. Duplicate (i, j, type)
// tuples are allowed; adjacency accumulation sums them.
type Edge struct {
	I      int
	J      int
	Weight float64
	Type   EdgeType
}

// Graph is a flat edge list over integer node indices. Built per request
// and discarded after analysis.
type Graph struct {
	N     int
	Edges []Edge
}

// Adjacency returns the symmetric weighted adjacency matrix with duplicate
// edges summed.
func (g *Graph) Adjacency() [][]float64 {
	w := make([][]float64, g.N)
	for i := range w {
		w[i] = make([]float64, g.N)
	}
	for _, e := range g.Edges {
		if e.I < 0 || e.J < 0 || e.I >= g.N || e.J >= g.N || e.I == e.J {
			continue
		}
		w[e.I][e.J] += e.Weight
		w[e.J][e.I] += e.Weight
	}
	return w
}

// NegativeMass returns the summed absolute weight of negative edges and the
// total absolute weight, the two terms of contradiction energy.
func (g *Graph) NegativeMass() (neg, total float64) {
	for _, e := range g.Edges {
		if e.Weight < 0 {
			neg += -e.Weight
			total += -e.Weight
		} else {
			total += e.Weight
		}
	}
	return neg, total
}
