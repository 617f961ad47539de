package simdplan

import (
	"container/heap"
	"fmt"
	"io"
	"math"
)

// searchEntry wraps a Program for the min-heap, carrying a monotonically
// increasing insertion sequence number so that programs tied on total cost
// break ties deterministically by insertion order (spec.md §4.7: "must be
// deterministic... to make tests reproducible"). This is this module's
// equivalent of the source's FloatOrd total-order wrapper: ordering must
// reject NaN rather than let it produce undefined heap behavior, which is
// enforced at push time in Search rather than inside Less (a NaN total cost
// is a validation failure, not a silently-ordered value).
type searchEntry struct {
	program *Program
	seq     int64
}

// searchHeap implements container/heap.Interface over searchEntry, ordered
// by total cost then insertion sequence.
type searchHeap []*searchEntry

func (h searchHeap) Len() int { return len(h) }
func (h searchHeap) Less(i, j int) bool {
	ci, cj := h[i].program.TotalCost(), h[j].program.TotalCost()
	if ci != cj {
		return ci < cj
	}
	return h[i].seq < h[j].seq
}
func (h searchHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *searchHeap) Push(x any)   { *h = append(*h, x.(*searchEntry)) }
func (h *searchHeap) Pop() any {
	old := *h
	n := len(old)
	entry := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return entry
}

// SearchConfig bundles the inputs the A★ engine needs beyond the indexed
// triple set: the seed property set, the profiling context used to cost
// every candidate expansion, an optional cooperative cancellation token,
// and an optional debug stream (spec.md §6).
type SearchConfig struct {
	Seed        PropertySet
	ProfileCtx  *ProfileContext
	Cancel      *CancelToken
	DebugStream io.Writer
}

// Search runs the best-first, dominance-pruned exploration of spec.md §4.7
// over set, returning the cheapest complete Program or a distinct error for
// infeasibility, cancellation or an internal validation failure.
//
// The dominance cache maps a property set (by its canonicalized Key) to the
// lowest cost at which that set has been reached; a Program popped from the
// heap whose cached cost is lower than its own has been superseded by a
// cheaper route to the same state and is discarded. With ECost left at zero
// throughout (spec.md §4.7), the search is uniform-cost and therefore
// optimal.
func Search(set *IndexedHoareTripleSet, cfg SearchConfig) (*Program, error) {
	seed := NewProgram(cfg.Seed)
	if math.IsNaN(seed.TotalCost()) {
		return nil, newValidationError("seed program has a NaN total cost")
	}

	h := &searchHeap{}
	heap.Init(h)
	var seq int64
	push := func(p *Program) {
		heap.Push(h, &searchEntry{program: p, seq: seq})
		seq++
	}

	cache := make(map[string]float64)
	push(seed)
	cache[seed.Properties.Key()] = seed.Cost

	t := newTicker(cfg.DebugStream)
	var best *Program

	for h.Len() > 0 {
		entry := heap.Pop(h).(*searchEntry)
		t.tick()

		if cfg.Cancel != nil && cfg.Cancel.IsSet() {
			t.finish()
			return nil, newCancellationError()
		}

		p := entry.program
		if best != nil && p.Cost >= best.Cost {
			continue
		}
		if cached, found := cache[p.Properties.Key()]; !found || cached < p.Cost {
			continue
		}
		if p.IsComplete() {
			if best == nil || p.Cost < best.Cost {
				best = p
			}
			continue
		}

		for _, id := range p.AvailableTriples(set) {
			triple := set.Triple(id)
			next, err := p.WithNewTriple(set, triple, cfg.ProfileCtx)
			if err != nil {
				return nil, err
			}
			if math.IsNaN(next.TotalCost()) {
				return nil, newValidationError("triple %s produced a NaN total cost", triple.ID)
			}
			key := next.Properties.Key()
			if cached, found := cache[key]; found && cached <= next.Cost {
				continue
			}
			cache[key] = next.Cost
			push(next)
		}
	}

	t.finish()
	if best == nil {
		return nil, newInfeasibilityError("exhausted search space without reaching Finished")
	}
	writePlan(cfg.DebugStream, set, cfg.Seed, best)
	return best, nil
}

// writePlan prints the chosen plan's triples, in firing order, each with its
// instruction label and the property set active after it fires (spec.md
// §6).
func writePlan(out io.Writer, set *IndexedHoareTripleSet, seed PropertySet, best *Program) {
	if out == nil {
		return
	}
	properties := seed.Clone()
	for _, id := range best.TripleIDs {
		triple := set.Triple(id)
		for p := range triple.NegativePost {
			delete(properties, p)
		}
		for p := range triple.Post {
			properties[p] = struct{}{}
		}
		irrelevantPropertyGC(properties, set)
		fmt.Fprintf(out, "simdplan: %s -> %v\n", triple.Instruction, properties.Sorted())
	}
}
