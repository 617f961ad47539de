// Command simdplan-dump builds a small worked example graph, plans its
// sharded execution across a toy cluster, and prints the chosen plan's
// triples in firing order. It exists to exercise Plan end to end; the
// graph-loading and cluster-description collaborators it stands in for are
// out of this module's scope (spec.md §1).
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/janpfeifer/must"

	simdplan "github.com/shardplan/simdplan"
	"github.com/shardplan/simdplan/types/cluster"
	"github.com/shardplan/simdplan/types/shapes"
)

func main() {
	devices := flag.Int("devices", 4, "number of devices in the toy cluster")
	flag.Parse()

	graph := simdplan.NewRGraph()

	xShape := shapes.MustMake(8, 16)
	_, xOutputs := graph.AddNode(nil, simdplan.PlaceholderInstruction(0), 1)
	x := xOutputs[0]
	graph.SetTensorShape(x, xShape)
	graph.SetTensorDType(x, dtypes.F32)
	graph.SetTensorCommunicatable(x, true)

	sigmoidOp := simdplan.OpId(0)
	_, yOutputs := graph.AddNode([]simdplan.RTensorId{x}, simdplan.OpInstruction(sigmoidOp), 1)
	y := yOutputs[0]
	graph.SetTensorShape(y, xShape)
	graph.SetTensorDType(y, dtypes.F32)
	graph.SetTensorCommunicatable(y, true)

	graph.AddNode([]simdplan.RTensorId{y}, simdplan.OutputInstruction(), 0)

	module := &simdplan.ModuleInfo{
		Ops: []simdplan.Op{
			{
				Name: "sigmoid",
				Kind: simdplan.OpElementwise,
				FLOPs: func(inputs []shapes.Shape) float64 {
					return float64(inputs[0].Size())
				},
				Emit: func(ctx *simdplan.EmissionContext) error { return nil },
			},
		},
		PlaceholderShapes: []shapes.Shape{xShape},
	}

	deviceFLOPs := make([]float64, *devices)
	for i := range deviceFLOPs {
		deviceFLOPs[i] = 1.0
	}
	clusterInfo := must.M1(cluster.New(deviceFLOPs, 1, 1, 1, 1))

	best, err := simdplan.Plan(graph, module, clusterInfo, simdplan.Config{
		DebugStream: os.Stdout,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "simdplan-dump:", err)
		os.Exit(1)
	}

	fmt.Printf("plan cost: %.4f, %d triples\n", best.Cost, len(best.TripleIDs))
}
