package simdplan

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shardplan/simdplan/types/cluster"
	"github.com/shardplan/simdplan/types/shapes"
)

func simpleValidGraphAndModule(t *testing.T) (*RGraph, *ModuleInfo) {
	t.Helper()
	shape := shapes.MustMake(4)
	g := NewRGraph()
	_, out := g.AddNode(nil, PlaceholderInstruction(0), 1)
	p := out[0]
	g.SetTensorShape(p, shape)
	g.SetTensorCommunicatable(p, true)
	g.AddNode([]RTensorId{p}, OutputInstruction(), 0)
	return g, &ModuleInfo{PlaceholderShapes: []shapes.Shape{shape}}
}

func TestPlanRejectsAnInvalidGraph(t *testing.T) {
	g := NewRGraph() // no Output node at all
	module := &ModuleInfo{}
	c, err := cluster.New([]float64{1}, 1, 1, 1, 1)
	require.NoError(t, err)

	_, err = Plan(g, module, c, Config{})
	var validationErr *ValidationError
	assert.ErrorAs(t, err, &validationErr)
}

func TestPlanRejectsMismatchedRatiosLength(t *testing.T) {
	g, module := simpleValidGraphAndModule(t)
	c, err := cluster.New([]float64{1, 1}, 1, 1, 1, 1)
	require.NoError(t, err)

	_, err = Plan(g, module, c, Config{Ratios: []float64{1.0}})
	var validationErr *ValidationError
	assert.ErrorAs(t, err, &validationErr)
}

func TestPlanDerivesRatiosProportionalToDeviceFLOPs(t *testing.T) {
	c, err := cluster.New([]float64{1, 3}, 1, 1, 1, 1)
	require.NoError(t, err)
	ratios := proportionalRatios(c)
	require.Len(t, ratios, 2)
	assert.InDelta(t, 0.25, ratios[0], 1e-9)
	assert.InDelta(t, 0.75, ratios[1], 1e-9)
}

func TestPlanWritesDebugOutputOnSuccess(t *testing.T) {
	g, module := simpleValidGraphAndModule(t)
	c, err := cluster.New([]float64{1}, 1, 1, 1, 1)
	require.NoError(t, err)

	var buf bytes.Buffer
	best, err := Plan(g, module, c, Config{DebugStream: &buf})
	require.NoError(t, err)
	assert.NotEmpty(t, buf.String())
	assert.Contains(t, buf.String(), "output")
	assert.NotNil(t, best)
}

func TestPlanWithHeuristicsEnabledStillReachesFinished(t *testing.T) {
	g, module := simpleValidGraphAndModule(t)
	c, err := cluster.New([]float64{1}, 1, 1, 1, 1)
	require.NoError(t, err)

	best, err := Plan(g, module, c, Config{Heuristics: HeuristicConfig{
		ComputeOnlyOnce:          true,
		OrderedCommunication:     true,
		OrderedPlaceholderChain:  true,
		OrderedGetAttrChain:      true,
		FuseCommunicationForward: true,
	}})
	require.NoError(t, err)
	assert.NotNil(t, best)
}
