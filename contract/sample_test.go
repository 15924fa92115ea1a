package contract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSynthesizeOnes(t *testing.T) {
	sample, err := Synthesize(Descriptor{Name: "x", Shape: NewShape(2, 3), Dtype: Float32})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, []int(sample.Shape()))

	values := sample.Data().([]float32)
	require.Len(t, values, 6)
	for _, v := range values {
		assert.Equal(t, float32(1), v)
	}
}

func TestSynthesizeClasses(t *testing.T) {
	sample, err := Synthesize(Descriptor{Name: "labels", Shape: NewShape(32), Dtype: Int64, NumClasses: 10})
	require.NoError(t, err)

	values := sample.Data().([]int64)
	require.Len(t, values, 32)
	for _, v := range values {
		assert.GreaterOrEqual(t, v, int64(0))
		assert.Less(t, v, int64(10))
	}
}

func TestSynthesizeDynamicDims(t *testing.T) {
	sample, err := Synthesize(Descriptor{Name: "x", Shape: NewShape(DynamicDim, 4), Dtype: Float64})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 4}, []int(sample.Shape()))
}

func TestSynthesizeScalar(t *testing.T) {
	sample, err := Synthesize(Descriptor{Name: "s", Dtype: Float32})
	require.NoError(t, err)
	assert.Equal(t, 0, sample.Shape().Dims())
	assert.Equal(t, float32(1), sample.Data().(float32))
}

func TestSynthesizeBool(t *testing.T) {
	sample, err := Synthesize(Descriptor{Name: "mask", Shape: NewShape(3), Dtype: Bool})
	require.NoError(t, err)
	for _, v := range sample.Data().([]bool) {
		assert.True(t, v)
	}

	_, err = Synthesize(Descriptor{Name: "mask", Shape: NewShape(3), Dtype: Bool, NumClasses: 2})
	assert.Error(t, err)
}

func TestSynthesizeAllOrder(t *testing.T) {
	samples, err := SynthesizeAll([]Descriptor{
		{Name: "a", Shape: NewShape(2), Dtype: Float32},
		{Name: "b", Shape: NewShape(3), Dtype: Int32},
	})
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.Equal(t, []int{2}, []int(samples[0].Shape()))
	assert.Equal(t, []int{3}, []int(samples[1].Shape()))
}
