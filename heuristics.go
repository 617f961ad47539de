package simdplan

import (
	"sort"

	"github.com/shardplan/simdplan/types/cluster"
)

// HeuristicConfig selects which optional decorator passes of spec.md §4.8
// ApplyHeuristics runs over a SynthesisResult before it is indexed. Each
// pass is independently sound: any optimal plan reachable without it
// remains reachable with it, so any subset may be enabled.
type HeuristicConfig struct {
	ComputeOnlyOnce         bool
	OrderedCommunication    bool
	OrderedPlaceholderChain bool
	OrderedGetAttrChain     bool
	FuseCommunicationForward bool
}

// ApplyHeuristics rewrites result's triples in place per cfg and returns the
// additional seed properties ("default properties", spec.md glossary) the
// enabled passes require to bootstrap their token chains. Call this after
// Synthesize and before BuildIndexedHoareTripleSet.
func ApplyHeuristics(result *SynthesisResult, cfg HeuristicConfig) []Property {
	var seed []Property

	if cfg.ComputeOnlyOnce {
		seed = append(seed, computeOnlyOnce(result)...)
	}
	if cfg.OrderedCommunication {
		seed = append(seed, orderedCommunication(result)...)
	}
	if cfg.OrderedPlaceholderChain {
		seed = append(seed, orderedPlaceholderChain(result)...)
	}
	if cfg.OrderedGetAttrChain {
		seed = append(seed, orderedGetAttrChain(result)...)
	}
	if cfg.FuseCommunicationForward {
		fuseCommunicationForward(result)
	}

	return seed
}

// computeOnlyOnce implements spec.md §4.8's compute_only_once(op): every
// triple computing op gains AllowComputation(op) in both its pre-conditions
// and its negative post-conditions, so firing any one of op's sharding
// variants burns the token and makes every variant (including itself)
// unavailable again. Seeding AllowComputation(op) in the default properties
// for every op means each op may fire exactly once across the whole plan.
func computeOnlyOnce(result *SynthesisResult) []Property {
	ops := sortedOpIds(result.OpTriples)
	seed := make([]Property, 0, len(ops))
	for _, opID := range ops {
		token := AllowComputation(opID)
		seed = append(seed, token)
		for _, id := range result.OpTriples[opID] {
			addToken(result, id, token)
		}
	}
	return seed
}

// orderedCommunication implements spec.md §4.8's ordered_communication: it
// chains AllowCommunication tokens across communicatable tensors in
// ascending RTensorId order. Only the smallest tensor's communication
// triples may fire first; firing any of them burns that tensor's token and
// grants the next tensor's, so communications occur in tensor-id order
// across the whole plan. The single returned seed property is the token for
// the first tensor in the chain.
func orderedCommunication(result *SynthesisResult) []Property {
	tensors := result.CommunicatableTensors
	if len(tensors) == 0 {
		return nil
	}
	for i, tensorID := range tensors {
		token := AllowCommunication(tensorID)
		for _, id := range result.CommunicationTriples[tensorID] {
			if i+1 < len(tensors) {
				addTokenWithNext(result, id, token, AllowCommunication(tensors[i+1]))
			} else {
				addToken(result, id, token)
			}
		}
	}
	return []Property{AllowCommunication(tensors[0])}
}

// orderedPlaceholderChain implements spec.md §4.8's chain pattern for
// placeholders: materializing placeholder i burns AllowPlaceholder(i) and
// grants AllowPlaceholder(i+1) in id order, forcing placeholders to be
// materialized in ascending PlaceholderId order.
func orderedPlaceholderChain(result *SynthesisResult) []Property {
	ids := sortedPlaceholderIds(result.PlaceholderTriples)
	if len(ids) == 0 {
		return nil
	}
	for i, pid := range ids {
		token := AllowPlaceholder(pid)
		for _, id := range result.PlaceholderTriples[pid] {
			if i+1 < len(ids) {
				addTokenWithNext(result, id, token, AllowPlaceholder(ids[i+1]))
			} else {
				addToken(result, id, token)
			}
		}
	}
	return []Property{AllowPlaceholder(ids[0])}
}

// orderedGetAttrChain is orderedPlaceholderChain's counterpart for model
// parameters (GetAttr targets), per spec.md §4.8.
func orderedGetAttrChain(result *SynthesisResult) []Property {
	ids := sortedParameterIds(result.GetAttrTriples)
	if len(ids) == 0 {
		return nil
	}
	for i, pid := range ids {
		token := AllowGetAttr(pid)
		for _, id := range result.GetAttrTriples[pid] {
			if i+1 < len(ids) {
				addTokenWithNext(result, id, token, AllowGetAttr(ids[i+1]))
			} else {
				addToken(result, id, token)
			}
		}
	}
	return []Property{AllowGetAttr(ids[0])}
}

// addToken adds token to both the pre-conditions and negative post-conditions
// of the triple at id: firing it requires and burns the token.
func addToken(result *SynthesisResult, id HoareTripleId, token Property) {
	t := &result.Triples[id]
	t.Pre[token] = struct{}{}
	t.NegativePost[token] = struct{}{}
}

// addTokenWithNext is addToken, additionally granting nextToken on fire --
// the chain-advancing step of a token-chain pass.
func addTokenWithNext(result *SynthesisResult, id HoareTripleId, token, nextToken Property) {
	addToken(result, id, token)
	result.Triples[id].Post[nextToken] = struct{}{}
}

// fuseCommunicationForward implements spec.md §4.8's
// fuse_communication_forward: for every communication triple c, every other
// triple d whose pre-conditions contain one of c's post-conditions (a
// "forward consumer" of c) is replaced by a compound triple firing both in
// sequence -- pre = (d.pre \ c.post) ∪ c.pre, post = d.post, negative_post =
// d.negative_post ∪ c.negative_post, cost the sum of both, codegen the
// sequential composition of both emitters. c itself is removed once every
// forward consumer has been fused, since nothing may still need to fire it
// standalone.
//
// A triple with more than one forward consumer is fused into each one
// independently (the communication is duplicated across branches, not
// shared), since the Hoare-triple model has no notion of a shared
// sub-sequence once program order is linearized.
func fuseCommunicationForward(result *SynthesisResult) {
	commTripleIDs := make(map[HoareTripleId]bool)
	var orderedCommIDs []HoareTripleId
	for _, tensorID := range result.CommunicatableTensors {
		for _, id := range result.CommunicationTriples[tensorID] {
			if !commTripleIDs[id] {
				commTripleIDs[id] = true
				orderedCommIDs = append(orderedCommIDs, id)
			}
		}
	}

	kept := make([]bool, len(result.Triples))
	for i := range kept {
		kept[i] = true
	}
	var fused []HoareTriple
	nextID := HoareTripleId(len(result.Triples))

	for _, cid := range orderedCommIDs {
		c := result.Triples[cid]
		fusedAny := false
		for did := range result.Triples {
			if HoareTripleId(did) == cid || !kept[did] || commTripleIDs[HoareTripleId(did)] {
				continue
			}
			d := result.Triples[did]
			sharedPost := sharedProperty(c.Post, d.Pre)
			if sharedPost == nil {
				continue
			}
			fusedAny = true
			compound := fuseTwo(nextID, c, d, *sharedPost)
			nextID++
			fused = append(fused, compound)
			kept[did] = false
		}
		if fusedAny {
			kept[cid] = false
		}
	}

	out := make([]HoareTriple, 0, len(result.Triples)+len(fused))
	for i, t := range result.Triples {
		if kept[i] {
			out = append(out, t)
		}
	}
	out = append(out, fused...)
	// Renumber sequentially; downstream grouping maps are only used before
	// this pass runs, so they are intentionally not kept in sync here.
	for i := range out {
		out[i].ID = HoareTripleId(i)
	}
	result.Triples = out
}

func sortedOpIds(m map[OpId][]HoareTripleId) []OpId {
	ids := make([]OpId, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func sortedPlaceholderIds(m map[PlaceholderId][]HoareTripleId) []PlaceholderId {
	ids := make([]PlaceholderId, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func sortedParameterIds(m map[ParameterId][]HoareTripleId) []ParameterId {
	ids := make([]ParameterId, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// profileOrZero calls p.Profile(ctx), or returns the zero profile pair if p
// is nil (a triple with no cost, e.g. a free re-layout).
func profileOrZero(p Profiler, ctx *ProfileContext) (cluster.Profile, cluster.Profile, error) {
	if p == nil {
		return cluster.Profile{}, cluster.Profile{}, nil
	}
	return p.Profile(ctx)
}

// addProfiles sums two profiles component-wise, for a fused triple's cost.
func addProfiles(a, b cluster.Profile) cluster.Profile {
	return cluster.Profile{
		FLOPs:         a.FLOPs + b.FLOPs,
		AllReduce:     a.AllReduce + b.AllReduce,
		AllGather:     a.AllGather + b.AllGather,
		ReduceScatter: a.ReduceScatter + b.ReduceScatter,
		AllToAll:      a.AllToAll + b.AllToAll,
	}
}

// sharedProperty returns a property both in post and pre, or nil if none.
func sharedProperty(post, pre PropertySet) *Property {
	for p := range post {
		if pre.Has(p) {
			p := p
			return &p
		}
	}
	return nil
}

// fuseTwo builds the compound triple firing c then d, per
// fuseCommunicationForward's doc comment.
func fuseTwo(id HoareTripleId, c, d HoareTriple, bridge Property) HoareTriple {
	pre := c.Pre.Clone()
	for p := range d.Pre {
		if p == bridge {
			continue
		}
		pre[p] = struct{}{}
	}
	negPost := c.NegativePost.Clone()
	for p := range d.NegativePost {
		negPost[p] = struct{}{}
	}
	cCodegen, dCodegen := c.Codegen, d.Codegen
	cProfiler, dProfiler := c.Profiler, d.Profiler
	return HoareTriple{
		ID:           id,
		Pre:          pre,
		Post:         d.Post.Clone(),
		NegativePost: negPost,
		Instruction:  c.Instruction + " ; " + d.Instruction,
		Codegen: CodegenFunc(func(ctx *EmissionContext) error {
			if cCodegen != nil {
				if err := cCodegen.Emit(ctx); err != nil {
					return err
				}
			}
			if dCodegen != nil {
				return dCodegen.Emit(ctx)
			}
			return nil
		}),
		Profiler: ProfileFunc(func(ctx *ProfileContext) (forward, backward cluster.Profile, err error) {
			cf, cb, err := profileOrZero(cProfiler, ctx)
			if err != nil {
				return cluster.Profile{}, cluster.Profile{}, err
			}
			df, db, err := profileOrZero(dProfiler, ctx)
			if err != nil {
				return cluster.Profile{}, cluster.Profile{}, err
			}
			return addProfiles(cf, df), addProfiles(cb, db), nil
		}),
	}
}
