// Package shapes defines the tensor shape type used throughout simdplan and
// the sharding_round integer-partitioning utility (spec.md §4.1).
//
// This is a leaf type distinct from the teacher module's own
// gopjrt/stablehlo/shapes.Shape (which also carries a dtype): a simdplan
// Shape is exactly spec.md §3's "ordered sequence of positive integers",
// nothing more.
package shapes

import (
	"fmt"
	"math"
	"strings"

	"github.com/pkg/errors"
)

// Shape is an ordered sequence of positive dimension lengths.
type Shape struct {
	dims []int
}

// Make validates and builds a Shape from the given dimensions.
func Make(dims ...int) (Shape, error) {
	if len(dims) == 0 {
		return Shape{}, errors.New("shape must have at least one dimension")
	}
	for i, d := range dims {
		if d <= 0 {
			return Shape{}, errors.Errorf("shape dimension %d must be positive, got %d", i, d)
		}
	}
	cp := make([]int, len(dims))
	copy(cp, dims)
	return Shape{dims: cp}, nil
}

// MustMake is Make, panicking on error. Reserved for tests and literals
// known to be valid at compile time.
func MustMake(dims ...int) Shape {
	s, err := Make(dims...)
	if err != nil {
		panic(err)
	}
	return s
}

// Rank returns the number of dimensions.
func (s Shape) Rank() int { return len(s.dims) }

// Dim returns the length of the given axis.
func (s Shape) Dim(axis int) int { return s.dims[axis] }

// Dims returns a copy of the dimension lengths.
func (s Shape) Dims() []int {
	cp := make([]int, len(s.dims))
	copy(cp, s.dims)
	return cp
}

// Size returns the total element count (product of dimensions), used by the
// cost model to turn a relation into a byte count for a collective.
func (s Shape) Size() int {
	size := 1
	for _, d := range s.dims {
		size *= d
	}
	return size
}

// WithDim returns a copy of the shape with axis replaced by length. It does
// not mutate s, matching the rest of this module's copy-on-write Program
// semantics.
func (s Shape) WithDim(axis, length int) Shape {
	cp := make([]int, len(s.dims))
	copy(cp, s.dims)
	cp[axis] = length
	return Shape{dims: cp}
}

// String implements fmt.Stringer, rendering e.g. "4x16x16".
func (s Shape) String() string {
	parts := make([]string, len(s.dims))
	for i, d := range s.dims {
		parts[i] = fmt.Sprintf("%d", d)
	}
	return strings.Join(parts, "x")
}

const ratioTolerance = 1e-6

// ShardingRound partitions length into len(ratios) non-negative integers
// summing exactly to length, approximating the given proportions.
//
// It seeds each bucket with floor(length * ratio_i), then repeatedly grows
// the bucket whose ratio is furthest ahead of its current share
// (ratio_i - length_i/length), breaking ties by the smallest index, until
// the buckets sum to length. The sum never exceeds length by construction,
// so this loop always terminates.
func ShardingRound(length int, ratios []float64) ([]int, error) {
	if len(ratios) == 0 {
		return nil, errors.New("sharding_round requires at least one ratio")
	}
	sum := 0.0
	for _, r := range ratios {
		if r < 0 {
			return nil, errors.Errorf("sharding_round ratios must be non-negative, got %v", r)
		}
		sum += r
	}
	if math.Abs(sum-1.0) > ratioTolerance {
		return nil, errors.Errorf("sharding_round ratios must sum to 1 (within %v), got %v", ratioTolerance, sum)
	}
	if length == 0 {
		lengths := make([]int, len(ratios))
		return lengths, nil
	}

	lengths := make([]int, len(ratios))
	total := 0
	for i, r := range ratios {
		lengths[i] = int(r * float64(length))
		total += lengths[i]
	}

	for total < length {
		best := 0
		bestShare := ratios[0] - float64(lengths[0])/float64(length)
		for i := 1; i < len(ratios); i++ {
			share := ratios[i] - float64(lengths[i])/float64(length)
			if share > bestShare {
				best = i
				bestShare = share
			}
		}
		lengths[best]++
		total++
	}
	return lengths, nil
}
