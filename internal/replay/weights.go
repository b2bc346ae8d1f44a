package replay

import "math"

// power raises x to the y exponent for a single float32 weight or
// priority value. The spec leaves the weight/priority numeric library
// unconstrained (see SPEC_FULL.md §9.6); three tight loops over stdlib
// math.Pow cover the handful of operations the core actually needs
// without round-tripping through a float64 tensor library.
func power(x, y float32) float32 {
	if y == 1 {
		return x
	}
	return float32(math.Pow(float64(x), float64(y)))
}

func maxOf(ws []float32) float32 {
	m := ws[0]
	for _, w := range ws[1:] {
		if w > m {
			m = w
		}
	}
	return m
}

func normalizeInPlace(ws []float32, max float32) {
	if max == 0 {
		return
	}
	for i := range ws {
		ws[i] /= max
	}
}
