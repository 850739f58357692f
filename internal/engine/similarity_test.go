package engine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCosineSimilaritySymmetricAndBounded(t *testing.T) {
	vectors := [][]float32{
		{1, 0, 0},
		{0, 1, 0},
		{0.5, 0.5, 0.7},
		{-1, 2, -3},
		{0.001, 0.002, 0.003},
	}

	for i, a := range vectors {
		for j, b := range vectors {
			ab, err := CosineSimilarity(a, b)
			require.NoError(t, err)
			ba, err := CosineSimilarity(b, a)
			require.NoError(t, err)

			require.InDelta(t, ab, ba, 1e-12, "similarity not symmetric for %d,%d", i, j)
			require.GreaterOrEqual(t, ab, -1.0-1e-9)
			require.LessOrEqual(t, ab, 1.0+1e-9)
		}
	}
}

func TestCosineSimilaritySelfIsOne(t *testing.T) {
	v := []float32{0.3, -0.7, 1.2, 0.01}
	sim, err := CosineSimilarity(v, v)
	require.NoError(t, err)
	require.InDelta(t, 1.0, sim, 1e-9)
}

func TestCosineSimilarityZeroVector(t *testing.T) {
	sim, err := CosineSimilarity([]float32{0, 0, 0}, []float32{1, 2, 3})
	require.NoError(t, err)
	require.Equal(t, 0.0, sim)
}

func TestCosineSimilarityLengthMismatch(t *testing.T) {
	_, err := CosineSimilarity([]float32{1, 2}, []float32{1, 2, 3})
	require.Error(t, err)
}

func TestCentroidIsElementwiseMean(t *testing.T) {
	vectors := [][]float32{
		{1, 2, 3},
		{3, 4, 5},
		{5, 6, 10},
	}
	c, err := Centroid(vectors)
	require.NoError(t, err)
	require.Len(t, c, 3)
	require.InDelta(t, 3.0, float64(c[0]), 1e-6)
	require.InDelta(t, 4.0, float64(c[1]), 1e-6)
	require.InDelta(t, 6.0, float64(c[2]), 1e-6)
}

func TestCentroidEmptyInputFails(t *testing.T) {
	_, err := Centroid(nil)
	require.Error(t, err)
}

func TestCentroidMixedLengthsFails(t *testing.T) {
	_, err := Centroid([][]float32{{1, 2}, {1, 2, 3}})
	require.Error(t, err)
}
