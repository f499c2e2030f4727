package store

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFloatBlobRoundTrip(t *testing.T) {
	v := []float32{0, 1, -2.5, math.MaxFloat32, math.SmallestNonzeroFloat32}

	got, err := bytesToFloats(floatsToBytes(v))
	require.NoError(t, err)
	assert.Equal(t, v, got)

	_, err = bytesToFloats([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, cosine([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, cosine([]float32{1, 0}, []float32{-3, 0}), 1e-9)
	assert.Equal(t, 0.0, cosine([]float32{0, 0}, []float32{1, 1}))
}
