package simdplan

import (
	"io"

	"github.com/shardplan/simdplan/types/cluster"
)

// Config is the "configuration mapping" spec.md §6 describes as the CLI
// surface's second argument. Ratios, Heuristics, Cancel and DebugStream are
// all optional: a nil Ratios is derived from the cluster's per-device FLOPs
// (faster devices receive a proportionally larger share); a zero-value
// Heuristics disables every optional decorator pass; a nil Cancel means the
// search is never cancellable; a nil DebugStream silences plan and progress
// output.
type Config struct {
	Ratios      []float64
	Heuristics  HeuristicConfig
	Cancel      *CancelToken
	DebugStream io.Writer
}

// Plan is the planner's single entry point (spec.md §6): given an RGraph
// and its module metadata, satisfying the invariants of §3, plus a cluster
// description, it returns the cheapest Program transforming the graph's
// placeholders and parameters into its Output under the estimated cost
// model of §4.2, or a distinct Validation, Infeasibility or Cancellation
// error.
func Plan(graph *RGraph, module *ModuleInfo, clusterInfo *cluster.ClusterInfo, config Config) (*Program, error) {
	if err := graph.Validate(module); err != nil {
		return nil, err
	}
	if clusterInfo.NumDevices() == 0 {
		return nil, newValidationError("cluster must have at least one device")
	}

	ratios := config.Ratios
	if ratios == nil {
		ratios = proportionalRatios(clusterInfo)
	} else if len(ratios) != clusterInfo.NumDevices() {
		return nil, newValidationError("config ratios has %d entries, cluster has %d devices", len(ratios), clusterInfo.NumDevices())
	}

	result, err := Synthesize(graph, module)
	if err != nil {
		return nil, err
	}
	seed := ApplyHeuristics(result, config.Heuristics)

	indexed, err := BuildIndexedHoareTripleSet(result.Triples)
	if err != nil {
		return nil, err
	}

	profileCtx := NewProfileContext(graph, clusterInfo, ratios)
	return Search(indexed, SearchConfig{
		Seed:        NewPropertySet(seed...),
		ProfileCtx:  profileCtx,
		Cancel:      config.Cancel,
		DebugStream: config.DebugStream,
	})
}

// proportionalRatios splits sharding share across devices in proportion to
// their FLOPs throughput, so a faster device is handed a larger slice of
// every Gather'd dimension.
func proportionalRatios(clusterInfo *cluster.ClusterInfo) []float64 {
	total := 0.0
	for _, f := range clusterInfo.DeviceFLOPs {
		total += f
	}
	ratios := make([]float64, len(clusterInfo.DeviceFLOPs))
	for i, f := range clusterInfo.DeviceFLOPs {
		ratios[i] = f / total
	}
	return ratios
}
