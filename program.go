package simdplan

import (
	"sort"

	"github.com/shardplan/simdplan/internal/idset"
)

// Program is a partial (or complete) plan: the ordered sequence of triples
// fired so far, the currently active property set, the accumulated
// estimated cost, and an admissible heuristic estimate of the remaining
// cost (spec.md §3).
//
// A Program is treated as immutable once constructed: WithNewTriple returns
// a new Program rather than mutating the receiver, matching the
// copy-on-write discipline the search engine relies on to keep discarded
// branches untouched in the dominance cache.
type Program struct {
	TripleIDs  []HoareTripleId
	Properties PropertySet
	Cost       float64
	ECost      float64
}

// NewProgram seeds a Program from the initial property set, with no triples
// fired yet and zero accumulated cost.
func NewProgram(seed PropertySet) *Program {
	return &Program{Properties: seed.Clone()}
}

// TotalCost is the key the search engine's heap orders by: accumulated plus
// heuristic remaining cost.
func (p *Program) TotalCost() float64 { return p.Cost + p.ECost }

// IsComplete reports whether the program has reached Finished (spec.md
// §4.6).
func (p *Program) IsComplete() bool { return p.Properties.Has(Finished()) }

// AvailableTriples returns the ids of every triple in set available to fire
// from p's current property set (spec.md §4.5): every pre-condition holds,
// and firing would change at least one property. Candidates are gathered as
// the union of set.ByPre(prop) over p's active properties plus every triple
// with no pre-conditions, then filtered; the result is sorted by id for
// deterministic iteration order.
func (p *Program) AvailableTriples(set *IndexedHoareTripleSet) []HoareTripleId {
	seen := idset.Make[HoareTripleId](len(p.Properties))
	var candidates []HoareTripleId
	for prop := range p.Properties {
		for _, id := range set.ByPre(prop) {
			if seen.Has(id) {
				continue
			}
			seen.Insert(id)
			candidates = append(candidates, id)
		}
	}
	for i := 0; i < set.Len(); i++ {
		id := HoareTripleId(i)
		if len(set.Triple(id).Pre) == 0 && !seen.Has(id) {
			seen.Insert(id)
			candidates = append(candidates, id)
		}
	}
	out := candidates[:0]
	for _, id := range candidates {
		if set.Triple(id).isAvailable(p.Properties) {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// WithNewTriple fires t from p, returning the resulting Program (spec.md
// §4.5):
//
//	triple_ids = p.triple_ids ++ [t]
//	properties = (p.properties \ t.negative_post_conditions) ∪ t.post_conditions
//	cost       = p.cost + profile_time(t, ctx)
//	ecost      = 0
//
// irrelevant_property_gc is then run on the new property set before it is
// returned.
func (p *Program) WithNewTriple(set *IndexedHoareTripleSet, t HoareTriple, profileCtx *ProfileContext) (*Program, error) {
	cost, err := t.cost(profileCtx)
	if err != nil {
		return nil, err
	}

	next := p.Properties.Clone()
	for np := range t.NegativePost {
		delete(next, np)
	}
	for np := range t.Post {
		next[np] = struct{}{}
	}
	irrelevantPropertyGC(next, set)

	tripleIDs := make([]HoareTripleId, len(p.TripleIDs)+1)
	copy(tripleIDs, p.TripleIDs)
	tripleIDs[len(p.TripleIDs)] = t.ID

	return &Program{
		TripleIDs:  tripleIDs,
		Properties: next,
		Cost:       p.Cost + cost,
		ECost:      0,
	}, nil
}

// irrelevantPropertyGC removes, in place, every property that cannot
// contribute to reaching Finished, using the sufficient (not necessary)
// condition of spec.md §4.5:
//
//	A property p is irrelevant if, for every triple t with p ∈ pre(t),
//	there exists some q ∈ pre(t) such that q ∉ properties and no triple
//	has q as a post-condition.
//
// Finished is never removed. The check is a single local pass over the
// property set as handed in -- it never re-examines its own removals, so it
// performs no transitive closure. This is purely an optimization: it
// shrinks the dominance cache's keys and never changes the optimal plan.
func irrelevantPropertyGC(properties PropertySet, set *IndexedHoareTripleSet) {
	var toRemove []Property
	for p := range properties {
		if p.Tag == TagFinished {
			continue
		}
		consumers := set.ByPre(p)
		irrelevant := true
		for _, id := range consumers {
			t := set.Triple(id)
			hasDeadPrereq := false
			for q := range t.Pre {
				if !properties.Has(q) && !set.HasPostProducer(q) {
					hasDeadPrereq = true
					break
				}
			}
			if !hasDeadPrereq {
				irrelevant = false
				break
			}
		}
		if irrelevant {
			toRemove = append(toRemove, p)
		}
	}
	for _, p := range toRemove {
		delete(properties, p)
	}
}
