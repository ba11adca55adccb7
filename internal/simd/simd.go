package simd

// MahalanobisAccum computes sum((x[i]-mean[i])^2 * invVar[i]) for i in 0..len(x)-1.
func MahalanobisAccum(x, mean, invVar []float64) float64 {
	maha := 0.0
	for i, xi := range x {
		diff := xi - mean[i]
		maha += diff * diff * invVar[i]
	}
	return maha
}

// MahalanobisBounded accumulates like MahalanobisAccum but stops as soon as the
// partial sum exceeds bound. It returns the (possibly partial) sum and the
// number of dimensions consumed; done is false when accumulation stopped early.
func MahalanobisBounded(x, mean, invVar []float64, bound float64) (maha float64, dims int, done bool) {
	for i, xi := range x {
		diff := xi - mean[i]
		maha += diff * diff * invVar[i]
		if maha > bound {
			return maha, i + 1, false
		}
	}
	return maha, len(x), true
}

// MahalanobisExtrapolated stops once the partial sum, linearly extrapolated
// to the full dimensionality, exceeds bound. Extrapolation starts after
// minDims dimensions.
func MahalanobisExtrapolated(x, mean, invVar []float64, bound float64, minDims int) (float64, bool) {
	n := len(x)
	maha := 0.0
	for i, xi := range x {
		diff := xi - mean[i]
		maha += diff * diff * invVar[i]
		if maha > bound {
			return maha, false
		}
		if i+1 >= minDims && maha*float64(n)/float64(i+1) > bound {
			return maha, false
		}
	}
	return maha, true
}
