package simdplan

// IndexedHoareTripleSet stores every triple synthesized for a plan search,
// once, and maintains two indexes for O(1)-plus-result-size lookup
// (spec.md §4.4): property -> triples having it as a pre-condition, and
// property -> triples having it as a post-condition. It is immutable after
// Build returns.
type IndexedHoareTripleSet struct {
	triples []HoareTriple
	byPre   map[Property][]HoareTripleId
	byPost  map[Property][]HoareTripleId
}

// BuildIndexedHoareTripleSet indexes the given triples. Triple.ID is
// expected to equal its position in triples (the synthesizer assigns ids
// sequentially); this is checked.
func BuildIndexedHoareTripleSet(triples []HoareTriple) (*IndexedHoareTripleSet, error) {
	s := &IndexedHoareTripleSet{
		triples: append([]HoareTriple(nil), triples...),
		byPre:   make(map[Property][]HoareTripleId),
		byPost:  make(map[Property][]HoareTripleId),
	}
	for i, t := range s.triples {
		if int(t.ID) != i {
			return nil, newValidationError("triple at index %d has id %s, ids must be sequential from 0", i, t.ID)
		}
		for p := range t.Pre {
			s.byPre[p] = append(s.byPre[p], t.ID)
		}
		for p := range t.Post {
			s.byPost[p] = append(s.byPost[p], t.ID)
		}
	}
	return s, nil
}

// Triple returns the triple stored at id.
func (s *IndexedHoareTripleSet) Triple(id HoareTripleId) HoareTriple {
	return s.triples[id]
}

// Len returns the number of indexed triples.
func (s *IndexedHoareTripleSet) Len() int { return len(s.triples) }

// ByPre returns the ids of triples having p as a pre-condition.
func (s *IndexedHoareTripleSet) ByPre(p Property) []HoareTripleId {
	return s.byPre[p]
}

// ByPost returns the ids of triples having p as a post-condition.
func (s *IndexedHoareTripleSet) ByPost(p Property) []HoareTripleId {
	return s.byPost[p]
}

// HasPostProducer reports whether any indexed triple can produce p as a
// post-condition. Used by irrelevant_property_gc (spec.md §4.5).
func (s *IndexedHoareTripleSet) HasPostProducer(p Property) bool {
	return len(s.byPost[p]) > 0
}
