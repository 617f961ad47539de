package simdplan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shardplan/simdplan/types/shapes"
)

func TestSynthesizePlaceholderEmitsUnshardedAndPerDimensionVariants(t *testing.T) {
	shape := shapes.MustMake(4, 8)
	g := NewRGraph()
	_, out := g.AddNode(nil, PlaceholderInstruction(0), 1)
	x := out[0]
	g.SetTensorShape(x, shape)
	g.SetTensorCommunicatable(x, false)
	g.AddNode([]RTensorId{x}, OutputInstruction(), 0)

	result, err := Synthesize(g, &ModuleInfo{PlaceholderShapes: []shapes.Shape{shape}})
	require.NoError(t, err)

	ids, found := result.PlaceholderTriples[0]
	require.True(t, found)
	require.Len(t, ids, 1+shape.Rank())

	var sawIdentity bool
	gatherDims := make(map[int]bool)
	for _, id := range ids {
		triple := result.Triples[id]
		require.Empty(t, triple.Pre, "placeholder materialization has no pre-conditions")
		for p := range triple.Post {
			if p.Rel.Kind == Identity {
				sawIdentity = true
			} else if p.Rel.Kind == Gather {
				gatherDims[p.Rel.Dim] = true
			}
		}
	}
	assert.True(t, sawIdentity)
	assert.Len(t, gatherDims, shape.Rank())
}

func TestSynthesizeGetAttrUnshardedCarriesBackwardAllReduce(t *testing.T) {
	shape := shapes.MustMake(4, 8)
	g := NewRGraph()
	_, out := g.AddNode(nil, GetAttrInstruction(0), 1)
	t0 := out[0]
	g.SetTensorShape(t0, shape)
	g.AddNode([]RTensorId{t0}, OutputInstruction(), 0)

	result, err := Synthesize(g, &ModuleInfo{})
	require.NoError(t, err)

	ids := result.GetAttrTriples[0]
	require.Len(t, ids, 1+shape.Rank())

	unsharded := result.Triples[ids[0]]
	_, backward, err := unsharded.Profiler.Profile(nil)
	require.NoError(t, err)
	assert.Equal(t, float64(shape.Size()), backward.AllReduce)
}

func TestSynthesizeCommunicationEmitsExpectedPrimitives(t *testing.T) {
	shape := shapes.MustMake(2, 3)
	g := NewRGraph()
	_, out := g.AddNode(nil, PlaceholderInstruction(0), 1)
	id := out[0]
	g.SetTensorShape(id, shape)
	g.SetTensorCommunicatable(id, true)
	g.AddNode([]RTensorId{id}, OutputInstruction(), 0)

	result, err := Synthesize(g, &ModuleInfo{PlaceholderShapes: []shapes.Shape{shape}})
	require.NoError(t, err)

	assert.Equal(t, []RTensorId{id}, result.CommunicatableTensors)
	commIDs := result.CommunicationTriples[id]
	// rank=2: 2*(all_gather+dynamic_slice+reduce_scatter) + 1 all_reduce +
	// 1 identity_to_reduce bridge + 2 all_to_all (2*1 ordered pairs)
	assert.Len(t, commIDs, 2*3+1+1+2)

	bytes := float64(shape.Size())
	var sawAllReduce bool
	for _, id := range commIDs {
		triple := result.Triples[id]
		if triple.Instruction == "all_reduce(t0)" {
			sawAllReduce = true
			forward, backward, err := triple.Profiler.Profile(nil)
			require.NoError(t, err)
			assert.Equal(t, bytes, forward.AllReduce)
			assert.Equal(t, bytes, backward.AllReduce)
		}
	}
	assert.True(t, sawAllReduce)
}

func TestSynthesizeElementwisePropagatesRelationUnchanged(t *testing.T) {
	shape := shapes.MustMake(4, 8)
	g := NewRGraph()
	_, phOut := g.AddNode(nil, PlaceholderInstruction(0), 1)
	x := phOut[0]
	g.SetTensorShape(x, shape)
	_, opOut := g.AddNode([]RTensorId{x}, OpInstruction(0), 1)
	y := opOut[0]
	g.SetTensorShape(y, shape)
	g.AddNode([]RTensorId{y}, OutputInstruction(), 0)

	module := &ModuleInfo{
		Ops: []Op{{
			Name:  "sigmoid",
			Kind:  OpElementwise,
			FLOPs: func(inputs []shapes.Shape) float64 { return float64(inputs[0].Size()) },
			Emit:  func(ctx *EmissionContext) error { return nil },
		}},
		PlaceholderShapes: []shapes.Shape{shape},
	}

	result, err := Synthesize(g, module)
	require.NoError(t, err)

	ids := result.OpTriples[0]
	require.Len(t, ids, 1+shape.Rank())
	for _, id := range ids {
		triple := result.Triples[id]
		var preRel, postRel Relation
		for p := range triple.Pre {
			preRel = p.Rel
		}
		for p := range triple.Post {
			postRel = p.Rel
		}
		assert.Equal(t, preRel, postRel, "elementwise must propagate the same relation")
	}
}

func TestSynthesizeReducingTurnsGatherIntoReduce(t *testing.T) {
	shape := shapes.MustMake(4, 8)
	g := NewRGraph()
	_, phOut := g.AddNode(nil, PlaceholderInstruction(0), 1)
	x := phOut[0]
	g.SetTensorShape(x, shape)
	_, opOut := g.AddNode([]RTensorId{x}, OpInstruction(0), 1)
	y := opOut[0]
	g.SetTensorShape(y, shapes.MustMake(1))
	g.AddNode([]RTensorId{y}, OutputInstruction(), 0)

	module := &ModuleInfo{
		Ops: []Op{{
			Name:  "sum",
			Kind:  OpReducing,
			FLOPs: func(inputs []shapes.Shape) float64 { return float64(inputs[0].Size()) },
			Emit:  func(ctx *EmissionContext) error { return nil },
		}},
		PlaceholderShapes: []shapes.Shape{shape},
	}

	result, err := Synthesize(g, module)
	require.NoError(t, err)

	ids := result.OpTriples[0]
	// identity + one per gathered dim + one reduce-passthrough variant.
	require.Len(t, ids, 1+shape.Rank()+1)

	var sawGatherToReduce bool
	for _, id := range ids {
		triple := result.Triples[id]
		for p := range triple.Pre {
			if p.Rel.Kind == Gather {
				for q := range triple.Post {
					assert.Equal(t, Reduce, q.Rel.Kind, "reducing op must turn Gather into Reduce")
					sawGatherToReduce = true
				}
			}
		}
	}
	assert.True(t, sawGatherToReduce)
}

func TestSynthesizeLinearEmitsReplicatedDataAndFeatureParallelVariants(t *testing.T) {
	aShape := shapes.MustMake(16, 32)
	wShape := shapes.MustMake(64, 32)
	biasShape := shapes.MustMake(64)
	yShape := shapes.MustMake(16, 64)

	g := NewRGraph()
	_, aOut := g.AddNode(nil, PlaceholderInstruction(0), 1)
	_, wOut := g.AddNode(nil, GetAttrInstruction(0), 1)
	_, biasOut := g.AddNode(nil, GetAttrInstruction(1), 1)
	a, w, bias := aOut[0], wOut[0], biasOut[0]
	g.SetTensorShape(a, aShape)
	g.SetTensorShape(w, wShape)
	g.SetTensorShape(bias, biasShape)

	_, yOut := g.AddNode([]RTensorId{a, w, bias}, OpInstruction(0), 1)
	y := yOut[0]
	g.SetTensorShape(y, yShape)
	g.AddNode([]RTensorId{y}, OutputInstruction(), 0)

	module := &ModuleInfo{
		Ops: []Op{{
			Name: "linear",
			Kind: OpLinear,
			FLOPs: func(inputs []shapes.Shape) float64 {
				return float64(inputs[0].Size()) * float64(inputs[1].Size())
			},
			Emit: func(ctx *EmissionContext) error { return nil },
		}},
		PlaceholderShapes: []shapes.Shape{aShape},
	}

	result, err := Synthesize(g, module)
	require.NoError(t, err)

	ids := result.OpTriples[0]
	// replicated + (aShape.Rank()-1) data-parallel + 1 feature-parallel.
	require.Len(t, ids, 1+(aShape.Rank()-1)+1)

	last := result.Triples[ids[len(ids)-1]]
	var postRel Relation
	for p := range last.Post {
		postRel = p.Rel
	}
	assert.Equal(t, GatherRelation(yShape.Rank()-1), postRel, "feature_parallel must shard Y on its last dim")
}
