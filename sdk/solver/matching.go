package solver

import "gonum.org/v1/gonum/floats"

// RegretMatching converts cumulative regrets into a strategy proportional to
// positive regret. When no action has positive regret the uniform strategy is
// returned. The result is written into dst, which is grown if needed, and
// returned; regrets is never modified.
func RegretMatching(regrets, dst []float64) []float64 {
	n := len(regrets)
	if cap(dst) < n {
		dst = make([]float64, n)
	}
	dst = dst[:n]
	if n == 0 {
		return dst
	}

	total := 0.0
	for i, r := range regrets {
		if r > 0 {
			dst[i] = r
			total += r
		} else {
			dst[i] = 0
		}
	}
	if total <= 0 {
		v := 1.0 / float64(n)
		for i := range dst {
			dst[i] = v
		}
		return dst
	}
	for i := range dst {
		dst[i] /= total
	}
	return dst
}

// clampNegative zeroes negative cumulative regrets (regret matching plus).
func clampNegative(regrets []float64) {
	for i, r := range regrets {
		if r < 0 {
			regrets[i] = 0
		}
	}
}

// normalise returns mass scaled to sum to one, or the uniform strategy when
// mass holds no weight.
func normalise(mass []float64) []float64 {
	out := make([]float64, len(mass))
	if len(out) == 0 {
		return out
	}
	total := floats.Sum(mass)
	if total <= 0 {
		v := 1.0 / float64(len(out))
		for i := range out {
			out[i] = v
		}
		return out
	}
	return floats.ScaleTo(out, 1/total, mass)
}
