// Package spectral computes the spectral analysis of the signed unit graph:
// lambda2 of the signed Laplacian, contradiction energy, the random-walk
// spectral gap, heat-trace complexity, Forman-style curvature, and per-node
// novelty, combined into a stability index and an action recommendation.
package spectral

import "math"

// laplacian holds L = D - W for a signed graph, where W is the symmetric
// adjacency and D the diagonal of row sums of |W|. Owned by the analyzer
// for the duration of one call.
type laplacian struct {
	n int
	w [][]float64 // signed adjacency
	d []float64   // absolute-degree diagonal
}

func newLaplacian(w [][]float64) *laplacian {
	n := len(w)
	d := make([]float64, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			d[i] += math.Abs(w[i][j])
		}
	}
	return &laplacian{n: n, w: w, d: d}
}

// matVec computes y = L v.
func (l *laplacian) matVec(v []float64) []float64 {
	y := make([]float64, l.n)
	for i := 0; i < l.n; i++ {
		y[i] = l.d[i] * v[i]
		for j := 0; j < l.n; j++ {
			y[i] -= l.w[i][j] * v[j]
		}
	}
	return y
}

// rayleigh computes vᵀLv / vᵀv.
func (l *laplacian) rayleigh(v []float64) float64 {
	lv := l.matVec(v)
	num, den := 0.0, 0.0
	for i := range v {
		num += v[i] * lv[i]
		den += v[i] * v[i]
	}
	if den == 0 {
		return 0
	}
	return num / den
}

func dot(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func norm(v []float64) float64 {
	return math.Sqrt(dot(v, v))
}

func scale(v []float64, s float64) {
	for i := range v {
		v[i] *= s
	}
}

// deflateOnes removes the component of v along the all-ones vector.
func deflateOnes(v []float64) {
	n := float64(len(v))
	if n == 0 {
		return
	}
	mean := 0.0
	for _, x := range v {
		mean += x
	}
	mean /= n
	for i := range v {
		v[i] -= mean
	}
}

// alternatingVector is the deterministic ±1 starting iterate.
func alternatingVector(n int) []float64 {
	v := make([]float64, n)
	for i := range v {
		if i%2 == 0 {
			v[i] = 1
		} else {
			v[i] = -1
		}
	}
	return v
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

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
