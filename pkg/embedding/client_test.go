package embedding

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func TestNormalizeUnitLength(t *testing.T) {
	cases := [][]float32{
		{3, 4},
		{1, 1, 1, 1},
		{-2.5, 7.1, 0.3},
		{0.001, 0.002},
	}
	for _, v := range cases {
		out := Normalize(v)
		require.Len(t, out, len(v))
		assert.InDelta(t, 1.0, norm(out), 1e-5)
	}
}

func TestNormalizePreservesDirection(t *testing.T) {
	out := Normalize([]float32{3, 4})
	assert.InDelta(t, 0.6, float64(out[0]), 1e-6)
	assert.InDelta(t, 0.8, float64(out[1]), 1e-6)
}

func TestNormalizeZeroVectorPassthrough(t *testing.T) {
	zero := []float32{0, 0, 0}
	assert.Equal(t, zero, Normalize(zero))
}
