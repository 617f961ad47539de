package simdplan

import (
	"fmt"

	"github.com/shardplan/simdplan/types/cluster"
	"github.com/shardplan/simdplan/types/shapes"
)

// tripleBuilder accumulates HoareTriples with sequentially assigned ids, the
// shared state threaded through every synthesis helper below. It also
// records which triple ids belong to which op, placeholder, parameter or
// communicatable tensor, so the heuristic decorators of heuristics.go can
// target exactly the triples spec.md §4.8 describes without re-deriving
// that mapping from instruction labels.
type tripleBuilder struct {
	triples []HoareTriple
	nextID  HoareTripleId

	opTriples          map[OpId][]HoareTripleId
	placeholderTriples map[PlaceholderId][]HoareTripleId
	getAttrTriples     map[ParameterId][]HoareTripleId

	commTensorOrder []RTensorId
	commTriples     map[RTensorId][]HoareTripleId
}

func newTripleBuilder() *tripleBuilder {
	return &tripleBuilder{
		opTriples:          make(map[OpId][]HoareTripleId),
		placeholderTriples: make(map[PlaceholderId][]HoareTripleId),
		getAttrTriples:     make(map[ParameterId][]HoareTripleId),
		commTriples:        make(map[RTensorId][]HoareTripleId),
	}
}

func (b *tripleBuilder) add(instruction string, pre, post, negPost []Property, codegen Codegen, profiler Profiler) HoareTripleId {
	id := b.nextID
	b.triples = append(b.triples, NewHoareTriple(id, instruction, pre, post, negPost, codegen, profiler))
	b.nextID++
	return id
}

// zeroProfile is the Profiler for triples with no compute or communication
// cost: free re-layouts (dynamic-slice) and structural bridges.
var zeroProfile = ConstantProfile(cluster.Profile{}, cluster.Profile{})

// noopCodegen is the Codegen for triples synthesized with no concrete
// emission behavior wired up yet, e.g. pending the code-generation
// collaborator's own op-specific lowering.
func noopCodegen(label string) Codegen {
	return CodegenFunc(func(*EmissionContext) error { return nil })
}

// SynthesisResult is the raw output of Synthesize: every triple, plus the
// grouping metadata the heuristic decorators of heuristics.go need (which
// triples realize which op, placeholder, parameter, or communicatable
// tensor) to target their rewrites precisely.
type SynthesisResult struct {
	Triples []HoareTriple

	OpTriples          map[OpId][]HoareTripleId
	PlaceholderTriples map[PlaceholderId][]HoareTripleId
	GetAttrTriples     map[ParameterId][]HoareTripleId

	// CommunicatableTensors lists communicatable tensor ids in ascending
	// order, the order ordered_communication (spec.md §4.8) chains over.
	CommunicatableTensors []RTensorId
	CommunicationTriples  map[RTensorId][]HoareTripleId
}

// Synthesize walks graph's nodes and communicatable tensors and emits every
// Hoare triple modelling their legal sharded variants and collective
// communication primitives (spec.md §4.3).
func Synthesize(graph *RGraph, module *ModuleInfo) (*SynthesisResult, error) {
	b := newTripleBuilder()

	for _, nodeID := range graph.Nodes() {
		node := graph.Node(nodeID)
		switch node.Instruction.Kind {
		case InstructionPlaceholder:
			synthesizePlaceholder(b, graph, node)
		case InstructionGetAttr:
			synthesizeGetAttr(b, graph, node)
		case InstructionOutput:
			synthesizeOutput(b, node)
		case InstructionOp:
			if int(node.Instruction.OpID) < 0 || int(node.Instruction.OpID) >= len(module.Ops) {
				return nil, newValidationError("node references unknown op id %s", node.Instruction.OpID)
			}
			op := module.Ops[node.Instruction.OpID]
			if err := synthesizeOp(b, graph, node, op); err != nil {
				return nil, err
			}
		}
	}

	for i := 0; i < graph.NumTensors(); i++ {
		id := RTensorId(i)
		if graph.Tensor(id).Communicatable {
			synthesizeCommunication(b, graph, id)
			b.commTensorOrder = append(b.commTensorOrder, id)
		}
	}

	return &SynthesisResult{
		Triples:               b.triples,
		OpTriples:             b.opTriples,
		PlaceholderTriples:    b.placeholderTriples,
		GetAttrTriples:        b.getAttrTriples,
		CommunicatableTensors: b.commTensorOrder,
		CommunicationTriples:  b.commTriples,
	}, nil
}

// synthesizePlaceholder emits the unsharded and per-dimension sharded
// variants of materializing a placeholder (spec.md §4.3 row 1). Both
// variants are free: nothing is moved or computed to receive an input.
func synthesizePlaceholder(b *tripleBuilder, graph *RGraph, node Node) {
	t := node.Outputs[0]
	pid := node.Instruction.PlaceholderID
	shape := graph.Tensor(t).Shape
	id := b.add(fmt.Sprintf("placeholder_unsharded(%s)", t),
		nil, []Property{HasTensor(t, IdentityRelation())}, nil,
		noopCodegen("placeholder"), zeroProfile)
	b.placeholderTriples[pid] = append(b.placeholderTriples[pid], id)
	for d := 0; d < shape.Rank(); d++ {
		id := b.add(fmt.Sprintf("placeholder_shard(%s, dim=%d)", t, d),
			nil, []Property{HasTensor(t, GatherRelation(d))}, nil,
			noopCodegen("placeholder"), zeroProfile)
		b.placeholderTriples[pid] = append(b.placeholderTriples[pid], id)
	}
}

// synthesizeGetAttr emits the unsharded and per-dimension sharded variants
// of materializing a model parameter (spec.md §4.3 row 2). The unsharded
// variant's backward profile carries an implicit all-reduce of the full
// tensor, modelling the gradient all-reduce a replicated parameter requires;
// sharded variants need no such bridge since each device already holds only
// its own gradient shard.
func synthesizeGetAttr(b *tripleBuilder, graph *RGraph, node Node) {
	t := node.Outputs[0]
	pid := node.Instruction.ParamID
	shape := graph.Tensor(t).Shape
	gradientAllReduce := cluster.Profile{AllReduce: float64(shape.Size())}
	id := b.add(fmt.Sprintf("get_attr_unsharded(%s)", t),
		nil, []Property{HasTensor(t, IdentityRelation())}, nil,
		noopCodegen("get_attr"), ConstantProfile(cluster.Profile{}, gradientAllReduce))
	b.getAttrTriples[pid] = append(b.getAttrTriples[pid], id)
	for d := 0; d < shape.Rank(); d++ {
		id := b.add(fmt.Sprintf("get_attr_shard(%s, dim=%d)", t, d),
			nil, []Property{HasTensor(t, GatherRelation(d))}, nil,
			noopCodegen("get_attr"), zeroProfile)
		b.getAttrTriples[pid] = append(b.getAttrTriples[pid], id)
	}
}

// synthesizeOutput emits the single triple bridging a fully reduced output
// tensor to program completion (spec.md §4.3 row 3).
func synthesizeOutput(b *tripleBuilder, node Node) {
	t := node.Inputs[0]
	b.add("output",
		[]Property{HasTensor(t, ReduceRelation())}, []Property{Finished()}, nil,
		noopCodegen("output"), zeroProfile)
}

// synthesizeCommunication emits, for one communicatable tensor, the
// dimension-indexed all-gather/dynamic-slice/reduce-scatter triples, the
// Reduce->Identity all-reduce triple, the free Identity->Reduce bridge, and
// the all-to-all triples connecting every pair of distinct sharded
// dimensions (spec.md §4.3 rows 4-6).
//
// Every communication profile's byte count is the tensor's full size, not
// the shard size: the cost model scales by the maximum sharding ratio in
// effect, so the byte count here must represent the unsharded transfer
// (spec.md §4.3, "Communication-profile bytes").
func synthesizeCommunication(b *tripleBuilder, graph *RGraph, id RTensorId) {
	shape := graph.Tensor(id).Shape
	bytes := float64(shape.Size())
	rank := shape.Rank()
	record := func(tripleID HoareTripleId) {
		b.commTriples[id] = append(b.commTriples[id], tripleID)
	}

	for d := 0; d < rank; d++ {
		record(b.add(fmt.Sprintf("all_gather(%s, dim=%d)", id, d),
			[]Property{HasTensor(id, GatherRelation(d))}, []Property{HasTensor(id, IdentityRelation())}, nil,
			noopCodegen("all_gather"),
			ConstantProfile(cluster.Profile{AllGather: bytes}, cluster.Profile{ReduceScatter: bytes})))

		record(b.add(fmt.Sprintf("dynamic_slice(%s, dim=%d)", id, d),
			[]Property{HasTensor(id, IdentityRelation())}, []Property{HasTensor(id, GatherRelation(d))}, nil,
			noopCodegen("dynamic_slice"), zeroProfile))

		record(b.add(fmt.Sprintf("reduce_scatter(%s, dim=%d)", id, d),
			[]Property{HasTensor(id, ReduceRelation())}, []Property{HasTensor(id, GatherRelation(d))}, nil,
			noopCodegen("reduce_scatter"),
			ConstantProfile(cluster.Profile{ReduceScatter: bytes}, cluster.Profile{AllGather: bytes})))
	}

	record(b.add(fmt.Sprintf("all_reduce(%s)", id),
		[]Property{HasTensor(id, ReduceRelation())}, []Property{HasTensor(id, IdentityRelation())}, nil,
		noopCodegen("all_reduce"),
		ConstantProfile(cluster.Profile{AllReduce: bytes}, cluster.Profile{AllReduce: bytes})))

	// Bridges Identity to Reduce for the benefit of Output's precondition
	// (spec.md §8 S1/S2): a replicated tensor already carries the true value
	// on every device, so treating it as a (degenerate) partial sum needs no
	// data movement.
	record(b.add(fmt.Sprintf("identity_to_reduce(%s)", id),
		[]Property{HasTensor(id, IdentityRelation())}, []Property{HasTensor(id, ReduceRelation())}, nil,
		noopCodegen("identity_to_reduce"), zeroProfile))

	for i := 0; i < rank; i++ {
		for j := 0; j < rank; j++ {
			if i == j {
				continue
			}
			record(b.add(fmt.Sprintf("all_to_all(%s, %d->%d)", id, i, j),
				[]Property{HasTensor(id, GatherRelation(i))}, []Property{HasTensor(id, GatherRelation(j))}, nil,
				noopCodegen("all_to_all"),
				ConstantProfile(cluster.Profile{AllToAll: bytes}, cluster.Profile{AllToAll: bytes})))
		}
	}
}

// synthesizeOp dispatches to the per-OpKind sharding variant table (spec.md
// §4.3 rows 7-9).
func synthesizeOp(b *tripleBuilder, graph *RGraph, node Node, op Op) error {
	before := b.nextID
	var err error
	switch op.Kind {
	case OpElementwise:
		err = synthesizeElementwise(b, graph, node, op)
	case OpReducing:
		err = synthesizeReducing(b, graph, node, op)
	case OpLinear:
		err = synthesizeLinear(b, graph, node, op)
	default:
		return newValidationError("op %q has unrecognized kind %d", op.Name, op.Kind)
	}
	if err != nil {
		return err
	}
	for id := before; id < b.nextID; id++ {
		b.opTriples[node.Instruction.OpID] = append(b.opTriples[node.Instruction.OpID], id)
	}
	return nil
}

// computeProfile derives a computation triple's forward/backward Profile
// from the op's declared FLOPs function, applied to the node's input
// shapes. Backward FLOPs are assumed equal to forward FLOPs, the standard
// approximation that a gradient pass costs about as much arithmetic as the
// forward pass it differentiates; no triple row in spec.md §4.3 says
// otherwise for ordinary computation (only GetAttr's implicit backward
// communication is called out explicitly).
func computeProfile(op Op, inputShapes []shapes.Shape) Profiler {
	flops := op.FLOPs(inputShapes)
	return ConstantProfile(cluster.Profile{FLOPs: flops}, cluster.Profile{FLOPs: flops})
}

func synthesizeElementwise(b *tripleBuilder, graph *RGraph, node Node, op Op) error {
	if len(node.Inputs) != 1 || len(node.Outputs) != 1 {
		return newValidationError("elementwise op %q must have exactly one input and one output", op.Name)
	}
	x, y := node.Inputs[0], node.Outputs[0]
	shape := graph.Tensor(x).Shape
	profile := computeProfile(op, []shapes.Shape{shape})

	b.add(op.Name,
		[]Property{HasTensor(x, IdentityRelation())}, []Property{HasTensor(y, IdentityRelation())}, nil,
		CodegenFunc(op.Emit), profile)
	for d := 0; d < shape.Rank(); d++ {
		b.add(fmt.Sprintf("%s(dim=%d)", op.Name, d),
			[]Property{HasTensor(x, GatherRelation(d))}, []Property{HasTensor(y, GatherRelation(d))}, nil,
			CodegenFunc(op.Emit), profile)
	}
	return nil
}

func synthesizeReducing(b *tripleBuilder, graph *RGraph, node Node, op Op) error {
	if len(node.Inputs) != 1 || len(node.Outputs) != 1 {
		return newValidationError("reducing op %q must have exactly one input and one output", op.Name)
	}
	x, y := node.Inputs[0], node.Outputs[0]
	shape := graph.Tensor(x).Shape
	profile := computeProfile(op, []shapes.Shape{shape})

	b.add(op.Name,
		[]Property{HasTensor(x, IdentityRelation())}, []Property{HasTensor(y, IdentityRelation())}, nil,
		CodegenFunc(op.Emit), profile)
	for d := 0; d < shape.Rank(); d++ {
		b.add(fmt.Sprintf("%s(dim=%d)", op.Name, d),
			[]Property{HasTensor(x, GatherRelation(d))}, []Property{HasTensor(y, ReduceRelation())}, nil,
			CodegenFunc(op.Emit), profile)
	}
	b.add(fmt.Sprintf("%s(reduce)", op.Name),
		[]Property{HasTensor(x, ReduceRelation())}, []Property{HasTensor(y, ReduceRelation())}, nil,
		CodegenFunc(op.Emit), profile)
	return nil
}

// synthesizeLinear emits the replicated, data-parallel and feature-parallel
// variants of a matmul+bias op with inputs (A, W, b) and output Y (spec.md
// §4.3 row 9). A's leading dimensions (all but its last, the contraction
// dimension shared with W) are its batch dimensions; each yields a
// data-parallel variant sharding Y on the same dimension. W and b are
// sharded together on their leading (output-feature) dimension for the
// feature-parallel variant, which shards Y on its last dimension.
func synthesizeLinear(b *tripleBuilder, graph *RGraph, node Node, op Op) error {
	if len(node.Inputs) != 3 || len(node.Outputs) != 1 {
		return newValidationError("linear op %q must have exactly three inputs (A, W, b) and one output", op.Name)
	}
	a, w, bias, y := node.Inputs[0], node.Inputs[1], node.Inputs[2], node.Outputs[0]
	aShape, wShape, biasShape := graph.Tensor(a).Shape, graph.Tensor(w).Shape, graph.Tensor(bias).Shape
	yShape := graph.Tensor(y).Shape
	profile := computeProfile(op, []shapes.Shape{aShape, wShape, biasShape})

	b.add(op.Name+"(replicated)",
		[]Property{HasTensor(a, IdentityRelation()), HasTensor(w, IdentityRelation()), HasTensor(bias, IdentityRelation())},
		[]Property{HasTensor(y, IdentityRelation())}, nil,
		CodegenFunc(op.Emit), profile)

	if aShape.Rank() < 1 {
		return newValidationError("linear op %q input A must have rank >= 1", op.Name)
	}
	for d := 0; d < aShape.Rank()-1; d++ {
		b.add(fmt.Sprintf("%s(data_parallel, dim=%d)", op.Name, d),
			[]Property{HasTensor(a, GatherRelation(d)), HasTensor(w, IdentityRelation()), HasTensor(bias, IdentityRelation())},
			[]Property{HasTensor(y, GatherRelation(d))}, nil,
			CodegenFunc(op.Emit), profile)
	}

	lastDim := yShape.Rank() - 1
	b.add(op.Name+"(feature_parallel)",
		[]Property{HasTensor(a, IdentityRelation()), HasTensor(w, GatherRelation(0)), HasTensor(bias, GatherRelation(0))},
		[]Property{HasTensor(y, GatherRelation(lastDim))}, nil,
		CodegenFunc(op.Emit), profile)

	return nil
}
