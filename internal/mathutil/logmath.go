package mathutil

import "math"

// LogZero represents log(0), used as negative infinity in log-domain arithmetic.
const LogZero = -1e30

// Log10E converts natural-log values to log10 by multiplication.
const Log10E = math.Log10E

// Eliminated reports whether a log-domain score should be treated as log(0).
// Anything within half of LogZero has underflowed through LogZero sums.
func Eliminated(s float64) bool {
	return s <= LogZero/2 || math.IsNaN(s) || math.IsInf(s, -1)
}

// LogAdd returns log(exp(a) + exp(b)) in a numerically stable way.
// Uses threshold-based early exit to skip expensive exp/log1p when the
// smaller value contributes less than float64 precision (exp(-36) ≈ 2.3e-16).
func LogAdd(a, b float64) float64 {
	if a > b {
		if b == LogZero {
			return a
		}
		d := b - a
		if d < -36.0 {
			return a
		}
		return a + math.Log1p(math.Exp(d))
	}
	if a == LogZero {
		return b
	}
	d := a - b
	if d < -36.0 {
		return b
	}
	return b + math.Log1p(math.Exp(d))
}

// Log10Add returns log10(10^a + 10^b).
func Log10Add(a, b float64) float64 {
	if a == LogZero {
		return b
	}
	if b == LogZero {
		return a
	}
	return LogAdd(a*math.Ln10, b*math.Ln10) * Log10E
}

// ToLog10 converts a natural-log score to log10, preserving LogZero.
func ToLog10(ln float64) float64 {
	if ln <= LogZero {
		return LogZero
	}
	return ln * Log10E
}
