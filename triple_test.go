package simdplan

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shardplan/simdplan/types/cluster"
)

func TestIsAvailableRequiresAllPreconditions(t *testing.T) {
	triple := NewHoareTriple(0, "gather-to-identity",
		[]Property{HasTensor(1, GatherRelation(0))},
		[]Property{HasTensor(1, IdentityRelation())},
		nil, nil, nil)

	assert.False(t, triple.isAvailable(NewPropertySet()), "missing pre-condition")
	assert.True(t, triple.isAvailable(NewPropertySet(HasTensor(1, GatherRelation(0)))))
}

func TestIsAvailableRejectsNoOpFiring(t *testing.T) {
	triple := NewHoareTriple(0, "already-there",
		[]Property{HasTensor(1, IdentityRelation())},
		[]Property{HasTensor(1, IdentityRelation())},
		nil, nil, nil)
	already := NewPropertySet(HasTensor(1, IdentityRelation()))
	assert.False(t, triple.isAvailable(already), "every post-condition already holds")
}

func TestCostSumsForwardAndBackwardTime(t *testing.T) {
	profiler := ConstantProfile(
		cluster.Profile{FLOPs: 10},
		cluster.Profile{FLOPs: 20},
	)
	triple := NewHoareTriple(0, "compute", nil, []Property{Finished()}, nil, nil, profiler)

	c, err := cluster.New([]float64{1, 1}, 1, 1, 1, 1)
	require.NoError(t, err)
	ctx := NewProfileContext(NewRGraph(), c, []float64{0.5, 0.5})

	cost, err := triple.cost(ctx)
	require.NoError(t, err)
	// forward: 10*0.5/1 = 5, backward: 20*0.5/1 = 10
	assert.InDelta(t, 15.0, cost, 1e-9)
}

func TestCostWithNilProfilerIsZero(t *testing.T) {
	triple := NewHoareTriple(0, "free", nil, []Property{Finished()}, nil, nil, nil)
	cost, err := triple.cost(nil)
	require.NoError(t, err)
	assert.Zero(t, cost)
}

func TestCostPropagatesProfilerError(t *testing.T) {
	boom := errors.New("profiler exploded")
	triple := NewHoareTriple(0, "bad", nil, []Property{Finished()}, nil, nil,
		ProfileFunc(func(*ProfileContext) (cluster.Profile, cluster.Profile, error) {
			return cluster.Profile{}, cluster.Profile{}, boom
		}))
	_, err := triple.cost(&ProfileContext{})
	assert.ErrorIs(t, err, boom)
}

func TestCodegenFuncAdaptsPlainFunction(t *testing.T) {
	var called bool
	var gen Codegen = CodegenFunc(func(ctx *EmissionContext) error {
		called = true
		return nil
	})
	require.NoError(t, gen.Emit(NewEmissionContext(NewRGraph(), &ModuleInfo{})))
	assert.True(t, called)
}

func TestEmissionContextImplementationRoundTrip(t *testing.T) {
	ctx := NewEmissionContext(NewRGraph(), &ModuleInfo{})
	p := HasTensor(1, IdentityRelation())

	_, found := ctx.Implementation(p)
	assert.False(t, found)

	ctx.SetImplementation(p, "some-handle")
	v, found := ctx.Implementation(p)
	require.True(t, found)
	assert.Equal(t, "some-handle", v)
}
