package simdplan

import (
	"github.com/gomlx/gopjrt/dtypes"

	"github.com/shardplan/simdplan/types/shapes"
)

// InstructionKind selects which of a Node's four instruction variants is
// active, mirroring spec.md §3's
// `instruction ∈ { Op(OpId), GetAttr(ParameterId), Placeholder(PlaceholderId), Output }`.
type InstructionKind int

const (
	InstructionOp InstructionKind = iota
	InstructionGetAttr
	InstructionPlaceholder
	InstructionOutput
)

// Instruction is a Node's tagged-union payload. Exactly one of OpID,
// ParamID or PlaceholderID is meaningful, selected by Kind.
type Instruction struct {
	Kind        InstructionKind
	OpID        OpId
	ParamID     ParameterId
	PlaceholderID PlaceholderId
}

func OpInstruction(id OpId) Instruction { return Instruction{Kind: InstructionOp, OpID: id} }
func GetAttrInstruction(id ParameterId) Instruction {
	return Instruction{Kind: InstructionGetAttr, ParamID: id}
}
func PlaceholderInstruction(id PlaceholderId) Instruction {
	return Instruction{Kind: InstructionPlaceholder, PlaceholderID: id}
}
func OutputInstruction() Instruction { return Instruction{Kind: InstructionOutput} }

// Node is one instruction of the reference graph: it consumes zero or more
// input tensors and produces zero or more output tensors.
type Node struct {
	Inputs      []RTensorId
	Outputs     []RTensorId
	Instruction Instruction
}

// Tensor is one value flowing through the reference graph. It has exactly
// one producer and any number of consumers, appended in construction order
// (spec.md §9: "Consumers are appended as the graph is constructed; no
// back-patching is needed because the producer is known before any
// consumer").
type Tensor struct {
	Producer  RNodeId
	Consumers []RNodeId
	Shape     shapes.Shape

	// DType is the tensor's element type. It plays no part in any cost or
	// search decision; it rides along purely so a downstream code generator
	// has enough information to allocate concrete buffers.
	DType dtypes.DType

	// Communicatable is true iff the planner is permitted to insert
	// collective communications on this tensor. It is typically false for
	// elementwise intermediates whose sharding is forced to agree with
	// their producer.
	Communicatable bool
}

// Op is an entry in the operator catalog, selected by Node.Instruction.OpID
// as an index into ModuleInfo.Ops: a name (used as the label of the op's
// triples), a shape-parametric FLOPs function, and a code emitter opaque to
// the search (spec.md §3).
type Op struct {
	Name string
	Kind OpKind

	// FLOPs returns the floating-point operation count of one invocation
	// of this op given its input shapes.
	FLOPs func(inputs []shapes.Shape) float64

	// Emit is the code emitter the codegen collaborator invokes once the
	// operator's sharding variant has been decided. It is never called by
	// the search itself.
	Emit CodeEmitter
}

// OpKind selects which row of the triple synthesizer's table (spec.md §4.3)
// an Op's sharding variants are drawn from. The synthesizer is closed over
// this catalog: adding a new operator is purely additive, never requiring a
// change to the synthesizer itself, provided its sharding behavior matches
// one of these shapes.
//
//go:generate go tool enumer -type=OpKind
type OpKind int

const (
	// OpElementwise ops (e.g. sigmoid) propagate Identity and any Gather(d)
	// from their single input straight to their single output.
	OpElementwise OpKind = iota
	// OpReducing ops (e.g. sum-to-scalar) propagate Identity, but turn any
	// Gather(d) or Reduce on their input into Reduce on their output.
	OpReducing
	// OpLinear ops (matmul+bias) take inputs (A, W, b) and combine them
	// replicated, data-parallel (sharded on one of A's leading dims), or
	// feature-parallel (sharded on W and b's leading dim).
	OpLinear
)

// CodeEmitter is the opaque, side-effect-producing hook a HoareTriple (or,
// for bare computation, an Op) hands to the code-generation collaborator.
// The core never inspects its behavior, only threads it through plan order.
type CodeEmitter func(ctx *EmissionContext) error

// ModuleInfo is graph-wide metadata supplied by the graph-loading
// collaborator alongside the RGraph itself: the operator catalog, and the
// declared shape of every placeholder input.
type ModuleInfo struct {
	// Ops maps an OpId to its catalog entry.
	Ops []Op
	// PlaceholderShapes maps a PlaceholderId to its declared shape.
	PlaceholderShapes []shapes.Shape
}

// RGraph is the in-memory, index-addressed dataflow graph: dense,
// append-only vectors of Node and Tensor keyed by RNodeId and RTensorId
// (spec.md §9: "Graph as parallel index-addressed arrays").
type RGraph struct {
	nodes   []Node
	tensors []Tensor
}

// NewRGraph returns an empty graph ready for incremental construction via
// AddNode.
func NewRGraph() *RGraph {
	return &RGraph{}
}

// AddNode appends a node with the given inputs and instruction, and
// allocates outputCount fresh output tensors producing it. It returns the
// new node's id and its output tensor ids, which the caller then uses to
// set each tensor's Shape and Communicatable flag via SetTensorShape /
// SetTensorCommunicatable before the graph is handed to the synthesizer.
//
// Every input tensor's consumer list is appended with the new node's id,
// matching the "no back-patching" invariant: by the time a node is added,
// every one of its inputs already has a producer.
func (g *RGraph) AddNode(inputs []RTensorId, instruction Instruction, outputCount int) (RNodeId, []RTensorId) {
	nodeID := RNodeId(len(g.nodes))
	outputs := make([]RTensorId, outputCount)
	for i := 0; i < outputCount; i++ {
		tensorID := RTensorId(len(g.tensors))
		g.tensors = append(g.tensors, Tensor{Producer: nodeID})
		outputs[i] = tensorID
	}
	g.nodes = append(g.nodes, Node{
		Inputs:      append([]RTensorId(nil), inputs...),
		Outputs:     outputs,
		Instruction: instruction,
	})
	for _, in := range inputs {
		g.tensors[in].Consumers = append(g.tensors[in].Consumers, nodeID)
	}
	return nodeID, outputs
}

// SetTensorShape records tensor id's shape. Must be called before Validate.
func (g *RGraph) SetTensorShape(id RTensorId, shape shapes.Shape) {
	g.tensors[id].Shape = shape
}

// SetTensorDType records tensor id's element type, for the benefit of the
// code-generation collaborator; the search never inspects it.
func (g *RGraph) SetTensorDType(id RTensorId, dtype dtypes.DType) {
	g.tensors[id].DType = dtype
}

// SetTensorCommunicatable records whether the planner may insert collective
// communications on tensor id.
func (g *RGraph) SetTensorCommunicatable(id RTensorId, communicatable bool) {
	g.tensors[id].Communicatable = communicatable
}

// Node returns the node at id.
func (g *RGraph) Node(id RNodeId) Node { return g.nodes[id] }

// Tensor returns the tensor at id.
func (g *RGraph) Tensor(id RTensorId) Tensor { return g.tensors[id] }

// NumNodes returns the number of nodes appended so far.
func (g *RGraph) NumNodes() int { return len(g.nodes) }

// NumTensors returns the number of tensors appended so far.
func (g *RGraph) NumTensors() int { return len(g.tensors) }

// Nodes iterates node ids in construction order.
func (g *RGraph) Nodes() []RNodeId {
	ids := make([]RNodeId, len(g.nodes))
	for i := range ids {
		ids[i] = RNodeId(i)
	}
	return ids
}

// Validate checks the invariants spec.md §3 and §7 require before search
// can begin: every tensor's producer lists it among its outputs, every
// consumer lists it among its inputs, every shape dimension is positive,
// and exactly one node has instruction Output.
func (g *RGraph) Validate(module *ModuleInfo) error {
	outputCount := 0
	for id, n := range g.nodes {
		switch n.Instruction.Kind {
		case InstructionOutput:
			outputCount++
		case InstructionOp:
			if int(n.Instruction.OpID) < 0 || int(n.Instruction.OpID) >= len(module.Ops) {
				return newValidationError("node %d references unknown op id %s", id, n.Instruction.OpID)
			}
		case InstructionPlaceholder:
			pid := n.Instruction.PlaceholderID
			if int(pid) < 0 || int(pid) >= len(module.PlaceholderShapes) {
				return newValidationError("node %d references placeholder %s with no declared shape", id, pid)
			}
		}
		for _, out := range n.Outputs {
			if g.tensors[out].Producer != RNodeId(id) {
				return newValidationError("tensor %s does not list node %d as its producer", out, id)
			}
		}
		for _, in := range n.Inputs {
			found := false
			for _, consumer := range g.tensors[in].Consumers {
				if consumer == RNodeId(id) {
					found = true
					break
				}
			}
			if !found {
				return newValidationError("tensor %s does not list node %d as a consumer", in, id)
			}
		}
	}
	if outputCount != 1 {
		return newValidationError("graph must have exactly one Output node, found %d", outputCount)
	}
	for id, t := range g.tensors {
		if t.Shape.Rank() == 0 {
			return newValidationError("tensor %s has no shape assigned", RTensorId(id))
		}
		for axis, d := range t.Shape.Dims() {
			if d <= 0 {
				return newValidationError("tensor %s has non-positive dimension %d on axis %d", RTensorId(id), d, axis)
			}
		}
	}
	return nil
}

// OutputNode returns the graph's single Output node, assuming Validate has
// already succeeded.
func (g *RGraph) OutputNode() RNodeId {
	for id, n := range g.nodes {
		if n.Instruction.Kind == InstructionOutput {
			return RNodeId(id)
		}
	}
	assertf(false, "OutputNode called on a graph with no Output node; Validate first")
	panic("unreachable")
}
