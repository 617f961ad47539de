package simdplan

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stretchr/testify/assert"
)

func TestIndexedHoareTripleSetIndexesBothDirections(t *testing.T) {
	t0 := NewHoareTriple(0, "t0",
		[]Property{HasTensor(1, GatherRelation(0))},
		[]Property{HasTensor(1, IdentityRelation())},
		nil, nil, nil)
	t1 := NewHoareTriple(1, "t1",
		[]Property{HasTensor(1, IdentityRelation())},
		[]Property{Finished()},
		nil, nil, nil)

	set, err := BuildIndexedHoareTripleSet([]HoareTriple{t0, t1})
	require.NoError(t, err)

	for _, triple := range []HoareTriple{t0, t1} {
		for p := range triple.Pre {
			assert.Contains(t, set.ByPre(p), triple.ID)
		}
		for p := range triple.Post {
			assert.Contains(t, set.ByPost(p), triple.ID)
		}
	}
}

func TestIndexedHoareTripleSetRejectsNonSequentialIds(t *testing.T) {
	t0 := NewHoareTriple(5, "t0", nil, []Property{Finished()}, nil, nil, nil)
	_, err := BuildIndexedHoareTripleSet([]HoareTriple{t0})
	assert.Error(t, err)
}

func TestHasPostProducer(t *testing.T) {
	t0 := NewHoareTriple(0, "t0", nil, []Property{HasTensor(1, IdentityRelation())}, nil, nil, nil)
	set, err := BuildIndexedHoareTripleSet([]HoareTriple{t0})
	require.NoError(t, err)
	assert.True(t, set.HasPostProducer(HasTensor(1, IdentityRelation())))
	assert.False(t, set.HasPostProducer(Finished()))
}
