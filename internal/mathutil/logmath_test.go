package mathutil

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogAdd(t *testing.T) {
	assert.InDelta(t, math.Log(5), LogAdd(math.Log(2), math.Log(3)), 1e-10)
	assert.InDelta(t, math.Log(5), LogAdd(math.Log(3), math.Log(2)), 1e-10)

	a := math.Log(5)
	assert.Equal(t, a, LogAdd(LogZero, a))
	assert.Equal(t, a, LogAdd(a, LogZero))
	// far below float precision the larger value is returned as is
	assert.Equal(t, 0.0, LogAdd(0, -50))
}

func TestLog10Add(t *testing.T) {
	assert.InDelta(t, math.Log10(110), Log10Add(1, 2), 1e-10)
	assert.Equal(t, -3.0, Log10Add(LogZero, -3))
	assert.Equal(t, -3.0, Log10Add(-3, LogZero))
}

func TestToLog10(t *testing.T) {
	assert.InDelta(t, 3.0, ToLog10(math.Log(1000)), 1e-10)
	assert.Equal(t, LogZero, ToLog10(LogZero))
}

func TestEliminated(t *testing.T) {
	for _, s := range []float64{LogZero, LogZero + 100, LogZero * 2, math.Inf(-1), math.NaN()} {
		assert.True(t, Eliminated(s), "%g", s)
	}
	for _, s := range []float64{-1e5, 0, 3} {
		assert.False(t, Eliminated(s), "%g", s)
	}
}
