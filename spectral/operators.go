package spectral

import (
	"math"
	"sort"

	"github.com/ImMrLucky/spectyra/sgraph"
	"github.com/ImMrLucky/spectyra/unit"
)

const (
	powerIterations = 60
	rayleighStep    = 0.1
	hutchinsonK     = 8
)

// estimateLambda2 estimates the smallest nontrivial eigenvalue magnitude of
// the signed Laplacian. Gradient descent on the Rayleigh quotient, with the
// iterate kept orthogonal to the all-ones kernel direction at every step.
// Returns the eigenvalue estimate and the final iterate.
func estimateLambda2(l *laplacian) (float64, []float64) {
	if l.n < 2 {
		return 0, make([]float64, l.n)
	}
	v := alternatingVector(l.n)
	deflateOnes(v)
	if nv := norm(v); nv > 0 {
		scale(v, 1/nv)
	}

	for iter := 0; iter < powerIterations; iter++ {
		lv := l.matVec(v)
		rho := dot(v, lv)
		// Rayleigh-gradient step toward the small end of the spectrum.
		for i := range v {
			v[i] -= rayleighStep * (lv[i] - rho*v[i])
		}
		deflateOnes(v)
		nv := norm(v)
		if nv < 1e-12 {
			v = alternatingVector(l.n)
			deflateOnes(v)
			nv = norm(v)
			if nv < 1e-12 {
				return 0, v
			}
		}
		scale(v, 1/nv)
	}

	lambda2 := l.rayleigh(v)
	if lambda2 < 0 {
		lambda2 = 0
	}
	return lambda2, v
}

// randomWalkGap builds a row-stochastic matrix from positive edges only and
// estimates 1 - |lambda2(P)| via power iteration with uniform-distribution
// deflation. Isolated nodes get a self-loop.
func randomWalkGap(w [][]float64) float64 {
	n := len(w)
	if n < 2 {
		return 0
	}

	p := make([][]float64, n)
	for i := 0; i < n; i++ {
		p[i] = make([]float64, n)
		row := 0.0
		for j := 0; j < n; j++ {
			if w[i][j] > 0 {
				row += w[i][j]
			}
		}
		if row == 0 {
			p[i][i] = 1
			continue
		}
		for j := 0; j < n; j++ {
			if w[i][j] > 0 {
				p[i][j] = w[i][j] / row
			}
		}
	}

	v := alternatingVector(n)
	deflateOnes(v)
	if nv := norm(v); nv > 0 {
		scale(v, 1/nv)
	}

	lambda := 0.0
	for iter := 0; iter < powerIterations; iter++ {
		y := make([]float64, n)
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				if p[i][j] != 0 {
					y[i] += p[i][j] * v[j]
				}
			}
		}
		deflateOnes(y)
		ny := norm(y)
		if ny < 1e-12 {
			lambda = 0
			break
		}
		lambda = ny
		scale(y, 1/ny)
		v = y
	}

	return clamp01(1 - math.Abs(lambda))
}

// heatTraceComplexity estimates Tr(exp(-tL)) for t in {0.5, 1.0} with a
// Hutchinson probe estimator (k=8 deterministic ±1 probes) and a 4-term
// truncated series for the matrix exponential. The per-node trace is mapped
// onto [0,1] over the empirical range [0.5, 2.0].
func heatTraceComplexity(l *laplacian) float64 {
	if l.n == 0 {
		return 0
	}
	ts := []float64{0.5, 1.0}
	total := 0.0
	for _, t := range ts {
		traceEst := 0.0
		for k := 0; k < hutchinsonK; k++ {
			z := probeVector(l.n, k)
			y := make([]float64, l.n)
			term := make([]float64, l.n)
			copy(y, z)
			copy(term, z)
			for m := 1; m <= 3; m++ {
				lt := l.matVec(term)
				for i := range term {
					term[i] = -t / float64(m) * lt[i]
				}
				for i := range y {
					y[i] += term[i]
				}
			}
			traceEst += dot(z, y)
		}
		traceEst /= float64(hutchinsonK)
		total += traceEst / float64(l.n)
	}
	perNode := total / float64(len(ts))
	return clamp01((perNode - 0.5) / 1.5)
}

// probeVector returns the k-th deterministic ±1 Hutchinson probe.
func probeVector(n, k int) []float64 {
	z := make([]float64, n)
	for i := range z {
		// xorshift-style bit mix keeps probes decorrelated without RNG state
		h := uint64(i+1)*2654435761 + uint64(k+1)*40503
		h ^= h >> 13
		if h&1 == 0 {
			z[i] = 1
		} else {
			z[i] = -1
		}
	}
	return z
}

// curvatureStats computes the simplified Forman-Ricci estimate per node:
// degree minus total incident |weight| minus a common-neighbor penalty.
func curvatureStats(w [][]float64) (perNode []float64, min, p10, mean float64) {
	n := len(w)
	perNode = make([]float64, n)
	if n == 0 {
		return perNode, 0, 0, 0
	}

	neighbors := make([][]int, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i != j && w[i][j] != 0 {
				neighbors[i] = append(neighbors[i], j)
			}
		}
	}

	for i := 0; i < n; i++ {
		deg := float64(len(neighbors[i]))
		strength := 0.0
		for _, j := range neighbors[i] {
			strength += math.Abs(w[i][j])
		}
		penalty := 0.0
		for _, j := range neighbors[i] {
			penalty += 0.2 * float64(commonNeighbors(neighbors[i], neighbors[j]))
		}
		perNode[i] = deg - strength - penalty
	}

	sorted := make([]float64, n)
	copy(sorted, perNode)
	sort.Float64s(sorted)
	min = sorted[0]
	p10 = sorted[n/10]
	for _, c := range perNode {
		mean += c
	}
	mean /= float64(n)
	return perNode, min, p10, mean
}

func commonNeighbors(a, b []int) int {
	set := make(map[int]bool, len(a))
	for _, x := range a {
		set[x] = true
	}
	n := 0
	for _, x := range b {
		if set[x] {
			n++
		}
	}
	return n
}

// nodeNovelty computes per-node novelty as one minus cosine similarity to
// the centroid of the unit embeddings. Units without embeddings score 0.5.
func nodeNovelty(units []unit.Unit) []float64 {
	novelty := make([]float64, len(units))
	var centroid []float32
	count := 0
	for _, u := range units {
		if len(u.Embedding) == 0 {
			continue
		}
		if centroid == nil {
			centroid = make([]float32, len(u.Embedding))
		}
		if len(u.Embedding) != len(centroid) {
			continue
		}
		for i, x := range u.Embedding {
			centroid[i] += x
		}
		count++
	}
	if count == 0 {
		for i := range novelty {
			novelty[i] = 0.5
		}
		return novelty
	}
	for i := range centroid {
		centroid[i] /= float32(count)
	}
	for i, u := range units {
		if len(u.Embedding) != len(centroid) {
			novelty[i] = 0.5
			continue
		}
		novelty[i] = clamp01(1 - sgraph.CosineSimilarity(u.Embedding, centroid))
	}
	return novelty
}
