package mathutil

// NewLogMat returns a rows x cols log10 matrix with every cell at LogZero.
// Rows share one backing array.
func NewLogMat(rows, cols int) [][]float64 {
	data := make([]float64, rows*cols)
	for i := range data {
		data[i] = LogZero
	}
	m := make([][]float64, rows)
	for i := range m {
		m[i] = data[i*cols : (i+1)*cols : (i+1)*cols]
	}
	return m
}
