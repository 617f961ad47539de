package simdplan

import (
	"fmt"
	"strings"
)

// RelationKind distinguishes the ways a tensor can be materialized across
// the cluster at some point during execution.
//
//go:generate go tool enumer -type=RelationKind
type RelationKind int

const (
	// Identity: every device holds the full tensor.
	Identity RelationKind = iota
	// Gather: the tensor is partitioned along Dim by the sharding ratios;
	// each device holds its slice.
	Gather
	// Reduce: each device holds a partial result; an element-wise sum
	// across devices yields the true tensor.
	Reduce
)

func (k RelationKind) String() string {
	switch k {
	case Identity:
		return "Identity"
	case Gather:
		return "Gather"
	case Reduce:
		return "Reduce"
	default:
		return fmt.Sprintf("RelationKind(%d)", int(k))
	}
}

// Relation is HasTensor's payload: how a tensor is distributed, and along
// which dimension when Gather.
type Relation struct {
	Kind RelationKind
	Dim  int // meaningful only when Kind == Gather
}

// IdentityRelation, GatherRelation and ReduceRelation construct the three
// Relation values a Property can carry.
func IdentityRelation() Relation          { return Relation{Kind: Identity} }
func GatherRelation(dim int) Relation     { return Relation{Kind: Gather, Dim: dim} }
func ReduceRelation() Relation            { return Relation{Kind: Reduce} }

func (r Relation) String() string {
	if r.Kind == Gather {
		return fmt.Sprintf("Gather(%d)", r.Dim)
	}
	return r.Kind.String()
}

// less gives Relation a total order: by Kind, then by Dim.
func (r Relation) less(o Relation) bool {
	if r.Kind != o.Kind {
		return r.Kind < o.Kind
	}
	return r.Dim < o.Dim
}

// PropertyTag selects which variant of the Property tagged union is active.
// Ordering over PropertyTag is the first component of the total order
// described in spec.md §3 ("Property ordering is a total order on the
// tagged-variant domain, used as map/set key").
type PropertyTag int

const (
	TagHasTensor PropertyTag = iota
	TagFinished
	TagAllowCommunication
	TagAllowPlaceholder
	TagAllowGetAttr
	TagAllowComputation
)

// Property is a symbolic atom describing what is known to be materialized
// on the cluster at some point during execution, or a scheduling-order
// token reserved for the heuristic decorators of spec.md §4.8.
//
// Property is a plain comparable struct (no pointers, no slices) so that it
// can be used directly as a Go map key: two Propertys compare equal with ==
// iff they denote the same atom. That equality is exactly the total order's
// equivalence class, which is all the search engine and the indexed triple
// set ever need from it.
type Property struct {
	Tag PropertyTag

	// Tensor selects the subject tensor of a HasTensor or AllowCommunication
	// property.
	Tensor RTensorId
	// Rel is HasTensor's relation payload.
	Rel Relation

	// Placeholder selects the subject of an AllowPlaceholder property.
	Placeholder PlaceholderId
	// Param selects the subject of an AllowGetAttr property.
	Param ParameterId
	// Op selects the subject of an AllowComputation property.
	Op OpId
}

// HasTensor builds the Property asserting that tensor id is materialized
// according to rel.
func HasTensor(id RTensorId, rel Relation) Property {
	return Property{Tag: TagHasTensor, Tensor: id, Rel: rel}
}

// Finished is the property asserting the whole program has produced its
// output. There is exactly one Finished property: Finished() always returns
// the same value (every field other than Tag left zero), so all Finished
// properties built through it compare equal.
func Finished() Property { return Property{Tag: TagFinished} }

// AllowCommunication is a one-shot scheduling token permitting a
// communication triple on the given tensor to fire.
func AllowCommunication(id RTensorId) Property {
	return Property{Tag: TagAllowCommunication, Tensor: id}
}

// AllowPlaceholder is a one-shot scheduling token permitting a placeholder
// to be materialized.
func AllowPlaceholder(id PlaceholderId) Property {
	return Property{Tag: TagAllowPlaceholder, Placeholder: id}
}

// AllowGetAttr is a one-shot scheduling token permitting a parameter
// (GetAttr target) to be materialized.
func AllowGetAttr(id ParameterId) Property {
	return Property{Tag: TagAllowGetAttr, Param: id}
}

// AllowComputation is a one-shot scheduling token permitting an op to fire.
func AllowComputation(id OpId) Property {
	return Property{Tag: TagAllowComputation, Op: id}
}

// Less gives Property the total order spec.md §3 requires of it: first by
// tag, then by whichever subject field that tag carries. It is used only to
// produce deterministic iteration order (e.g. for debug printing and
// cache-key canonicalization); map/set membership itself relies on ==.
func (p Property) Less(o Property) bool {
	if p.Tag != o.Tag {
		return p.Tag < o.Tag
	}
	switch p.Tag {
	case TagHasTensor:
		if p.Tensor != o.Tensor {
			return p.Tensor < o.Tensor
		}
		return p.Rel.less(o.Rel)
	case TagAllowCommunication:
		return p.Tensor < o.Tensor
	case TagAllowPlaceholder:
		return p.Placeholder < o.Placeholder
	case TagAllowGetAttr:
		return p.Param < o.Param
	case TagAllowComputation:
		return p.Op < o.Op
	default: // TagFinished
		return false
	}
}

// String renders a Property for debug streams and test diffs.
func (p Property) String() string {
	switch p.Tag {
	case TagHasTensor:
		return fmt.Sprintf("HasTensor(%s, %s)", p.Tensor, p.Rel)
	case TagFinished:
		return "Finished"
	case TagAllowCommunication:
		return fmt.Sprintf("AllowCommunication(%s)", p.Tensor)
	case TagAllowPlaceholder:
		return fmt.Sprintf("AllowPlaceholder(%s)", p.Placeholder)
	case TagAllowGetAttr:
		return fmt.Sprintf("AllowGetAttr(%s)", p.Param)
	case TagAllowComputation:
		return fmt.Sprintf("AllowComputation(%s)", p.Op)
	default:
		return fmt.Sprintf("Property(tag=%d)", p.Tag)
	}
}

// PropertySet is the active-property component of a Program: an
// unordered, immutable-by-convention set of Property values. Copy-on-write
// is the caller's responsibility (see WithNewTriple in program.go); methods
// here never mutate the receiver.
type PropertySet map[Property]struct{}

// NewPropertySet builds a PropertySet from the given properties.
func NewPropertySet(properties ...Property) PropertySet {
	s := make(PropertySet, len(properties))
	for _, p := range properties {
		s[p] = struct{}{}
	}
	return s
}

// Has reports whether p is a member.
func (s PropertySet) Has(p Property) bool {
	_, found := s[p]
	return found
}

// Clone returns an independent copy.
func (s PropertySet) Clone() PropertySet {
	cp := make(PropertySet, len(s))
	for p := range s {
		cp[p] = struct{}{}
	}
	return cp
}

// Sorted returns the members in the total order defined by Property.Less,
// for deterministic display and cache-key canonicalization.
func (s PropertySet) Sorted() []Property {
	out := make([]Property, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sortProperties(out)
	return out
}

// Key returns a value usable as a Go map key that identifies this set's
// membership, independent of iteration order. Used by the dominance cache
// (§4.7).
func (s PropertySet) Key() string {
	sorted := s.Sorted()
	var sb strings.Builder
	for i, p := range sorted {
		if i > 0 {
			sb.WriteByte('|')
		}
		sb.WriteString(p.String())
	}
	return sb.String()
}

func sortProperties(ps []Property) {
	// Insertion sort: property sets are small (single digits to low tens of
	// members) so this avoids pulling in sort.Slice's reflection overhead
	// for a hot path exercised on every cache lookup.
	for i := 1; i < len(ps); i++ {
		for j := i; j > 0 && ps[j].Less(ps[j-1]); j-- {
			ps[j], ps[j-1] = ps[j-1], ps[j]
		}
	}
}
