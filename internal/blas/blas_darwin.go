//go:build darwin && cgo

package blas

/*
#cgo CFLAGS: -DACCELERATE_NEW_LAPACK
#cgo LDFLAGS: -framework Accelerate
#include <Accelerate/Accelerate.h>
*/
import "C"
import "unsafe"

// Dgemv computes y = alpha*A*x + beta*y for a row-major m x n matrix A
// with row stride lda, using Apple Accelerate.
func Dgemv(m, n int, alpha float64, a []float64, lda int, x []float64, beta float64, y []float64) {
	if m == 0 || n == 0 {
		return
	}
	C.cblas_dgemv(C.CblasRowMajor, C.CblasNoTrans,
		C.int(m), C.int(n),
		C.double(alpha),
		(*C.double)(unsafe.Pointer(&a[0])), C.int(lda),
		(*C.double)(unsafe.Pointer(&x[0])), 1,
		C.double(beta),
		(*C.double)(unsafe.Pointer(&y[0])), 1)
}

// Backend names the Dgemv implementation: Apple Accelerate here.
func Backend() string { return "accelerate" }
