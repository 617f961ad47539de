package simdplan

import (
	"github.com/shardplan/simdplan/types/cluster"
	"github.com/shardplan/simdplan/types/shapes"
)

// EmissionContext is the capability object spec.md §9 calls for in place of
// the source's opaque codegen closure: an accumulator of per-property
// implementations (concrete tensor handles, opaque to the search) plus the
// graph and module metadata a code emitter needs to look up shapes and
// operator entries. The core never calls into the emitter itself; it only
// constructs and threads the context through plan order for the
// code-generation collaborator (spec.md §6).
type EmissionContext struct {
	Graph  *RGraph
	Module *ModuleInfo

	impls map[Property]any
}

// NewEmissionContext returns a context with an empty implementation
// accumulator.
func NewEmissionContext(graph *RGraph, module *ModuleInfo) *EmissionContext {
	return &EmissionContext{Graph: graph, Module: module, impls: make(map[Property]any)}
}

// Implementation looks up the concrete value previously recorded for
// property p, if any.
func (ctx *EmissionContext) Implementation(p Property) (any, bool) {
	v, found := ctx.impls[p]
	return v, found
}

// SetImplementation records the concrete value realizing property p. A code
// emitter calls this once it has materialized what p describes (e.g. a
// tensor handle for a `HasTensor` property), so that later emitters in plan
// order can look it up.
func (ctx *EmissionContext) SetImplementation(p Property, impl any) {
	ctx.impls[p] = impl
}

// Codegen is the capability interface for the opaque, side-effect-producing
// emitter a HoareTriple hands to the code-generation collaborator. The core
// never inspects or invokes it; the collaborator calls it once per triple of
// the finally chosen plan, in firing order (spec.md §5).
//
// CodegenFunc adapts a plain function (such as a CodeEmitter) to Codegen,
// the way http.HandlerFunc adapts a plain function to http.Handler.
type Codegen interface {
	Emit(ctx *EmissionContext) error
}

// CodegenFunc is a CodeEmitter already satisfying Codegen.
type CodegenFunc func(ctx *EmissionContext) error

// Emit implements Codegen.
func (f CodegenFunc) Emit(ctx *EmissionContext) error { return f(ctx) }

// ProfileContext is the capability object spec.md §9 calls for in place of
// the source's opaque profile closure: the frozen cluster description, the
// sharding ratios under consideration, and a shape lookup by tensor so a
// profiler can compute byte counts for the collectives it models.
type ProfileContext struct {
	Cluster *cluster.ClusterInfo
	Ratios  []float64

	graph *RGraph
}

// NewProfileContext builds a context for costing triples against the given
// cluster, graph and sharding ratios.
func NewProfileContext(graph *RGraph, cluster *cluster.ClusterInfo, ratios []float64) *ProfileContext {
	return &ProfileContext{Cluster: cluster, Ratios: ratios, graph: graph}
}

// ShapeOf returns the declared shape of tensor id.
func (ctx *ProfileContext) ShapeOf(id RTensorId) shapes.Shape {
	return ctx.graph.Tensor(id).Shape
}

// Profiler is the capability object a HoareTriple carries in place of the
// source's opaque profile closure: given a ProfileContext, it returns the
// forward and backward Profile of firing the triple (spec.md §3).
type Profiler interface {
	Profile(ctx *ProfileContext) (forward, backward cluster.Profile, err error)
}

// ProfileFunc is a plain function already satisfying Profiler.
type ProfileFunc func(ctx *ProfileContext) (forward, backward cluster.Profile, err error)

// Profile implements Profiler.
func (f ProfileFunc) Profile(ctx *ProfileContext) (cluster.Profile, cluster.Profile, error) {
	return f(ctx)
}

// ConstantProfile returns a Profiler always returning the given forward and
// backward profiles, for triples (e.g. a dynamic-slice re-layout) whose
// cost does not depend on the sharding ratios in effect.
func ConstantProfile(forward, backward cluster.Profile) Profiler {
	return ProfileFunc(func(*ProfileContext) (cluster.Profile, cluster.Profile, error) {
		return forward, backward, nil
	})
}

// HoareTriple is a guarded rewrite rule over property sets (spec.md §3):
// every member of Pre must hold for it to fire; firing adds Post and
// removes NegativePost. NegativePost is not logical negation, merely a
// removal list -- firing a triple whose Pre and NegativePost overlap
// consumes a one-shot token (see the heuristic decorators of spec.md §4.8).
type HoareTriple struct {
	ID HoareTripleId

	Pre          PropertySet
	Post         PropertySet
	NegativePost PropertySet

	// Instruction is a human-readable label for debugging and test diffs.
	Instruction string

	Codegen  Codegen
	Profiler Profiler
}

// NewHoareTriple builds a triple. ID is assigned by the caller (normally the
// synthesizer, sequentially) before the triple is handed to an
// IndexedHoareTripleSet.
func NewHoareTriple(id HoareTripleId, instruction string, pre, post, negativePost []Property, codegen Codegen, profiler Profiler) HoareTriple {
	return HoareTriple{
		ID:           id,
		Pre:          NewPropertySet(pre...),
		Post:         NewPropertySet(post...),
		NegativePost: NewPropertySet(negativePost...),
		Instruction:  instruction,
		Codegen:      codegen,
		Profiler:     profiler,
	}
}

// isAvailable reports whether every pre-condition of t holds in properties,
// and at least one post-condition does not yet hold (otherwise firing is
// useless, spec.md §4.5).
func (t HoareTriple) isAvailable(properties PropertySet) bool {
	for p := range t.Pre {
		if !properties.Has(p) {
			return false
		}
	}
	for p := range t.Post {
		if !properties.Has(p) {
			return true
		}
	}
	return false
}

// cost estimates the wall-time of firing t under ctx by summing the time of
// its forward and backward profile (spec.md §9's resolution of the source's
// open question on cost composition).
func (t HoareTriple) cost(ctx *ProfileContext) (float64, error) {
	if t.Profiler == nil {
		return 0, nil
	}
	forward, backward, err := t.Profiler.Profile(ctx)
	if err != nil {
		return 0, err
	}
	forwardTime, err := forward.Time(ctx.Cluster, ctx.Ratios)
	if err != nil {
		return 0, err
	}
	backwardTime, err := backward.Time(ctx.Cluster, ctx.Ratios)
	if err != nil {
		return 0, err
	}
	return forwardTime + backwardTime, nil
}
