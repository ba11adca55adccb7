//go:build !darwin || !cgo

package blas

// Dgemv computes y = alpha*A*x + beta*y for a row-major m x n matrix A
// with row stride lda.
func Dgemv(m, n int, alpha float64, a []float64, lda int, x []float64, beta float64, y []float64) {
	for i := 0; i < m; i++ {
		row := a[i*lda : i*lda+n]
		sum := 0.0
		for j, v := range row {
			sum += v * x[j]
		}
		if beta == 0 {
			y[i] = alpha * sum
		} else {
			y[i] = alpha*sum + beta*y[i]
		}
	}
}

// Backend names the Dgemv implementation: the portable Go loop here.
func Backend() string { return "go" }
