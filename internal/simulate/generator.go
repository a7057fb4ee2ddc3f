package simulate

import (
	"math"
	"math/rand/v2"
)

// generator produces reproducible synthetic descriptors.
type generator struct {
	rng *rand.Rand
	dim int
}

func newGenerator(seed uint64, dim int) *generator {
	return &generator{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)), dim: dim}
}

// identity returns a random unit vector. Random unit vectors in high
// dimensions are nearly orthogonal, about sqrt(2) apart.
func (g *generator) identity() []float64 {
	v := make([]float64, g.dim)
	for {
		var norm float64
		for i := range v {
			v[i] = g.rng.NormFloat64()
			norm += v[i] * v[i]
		}
		if norm > 0 {
			norm = math.Sqrt(norm)
			for i := range v {
				v[i] /= norm
			}
			return v
		}
	}
}

// sample perturbs base with gaussian noise whose expected norm is noise.
func (g *generator) sample(base []float64, noise float64) []float64 {
	sigma := noise / math.Sqrt(float64(len(base)))
	out := make([]float64, len(base))
	for i, x := range base {
		out[i] = x + g.rng.NormFloat64()*sigma
	}
	return out
}
