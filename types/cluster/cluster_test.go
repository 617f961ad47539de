package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uniform(n int, flops float64) *ClusterInfo {
	fs := make([]float64, n)
	for i := range fs {
		fs[i] = flops
	}
	c, err := New(fs, 1, 1, 1, 1)
	if err != nil {
		panic(err)
	}
	return c
}

func TestNewRejectsInvalidClusters(t *testing.T) {
	_, err := New(nil, 1, 1, 1, 1)
	assert.Error(t, err)

	_, err = New([]float64{1}, 0, 1, 1, 1)
	assert.Error(t, err)

	_, err = New([]float64{-1}, 1, 1, 1, 1)
	assert.Error(t, err)
}

func TestProfileTimeComputeOnly(t *testing.T) {
	c := uniform(4, 2.0)
	p := Profile{FLOPs: 8.0}
	total, err := p.Time(c, []float64{0.25, 0.25, 0.25, 0.25})
	require.NoError(t, err)
	// straggler: max(8*0.25/2) = 1.0, no comm bytes.
	assert.InDelta(t, 1.0, total, 1e-9)
}

func TestProfileTimeCommScalesByMaxRatio(t *testing.T) {
	c := uniform(2, 1.0)
	p := Profile{AllGather: 10.0}
	total, err := p.Time(c, []float64{0.9, 0.1})
	require.NoError(t, err)
	assert.InDelta(t, 9.0, total, 1e-9)
}

func TestProfileTimeRejectsMismatchedRatios(t *testing.T) {
	c := uniform(2, 1.0)
	_, err := Profile{}.Time(c, []float64{1.0})
	assert.Error(t, err)
}
