// Package cluster holds the cluster description and cost model of
// spec.md §4.2: per-device FLOPs throughput and the four collective
// bandwidths, and the formula turning a Profile plus sharding ratios into an
// estimated wall time.
package cluster

import (
	"math"

	"github.com/pkg/errors"
)

// ClusterInfo describes a homogeneous-topology SIMD cluster: one FLOPs
// figure per device (heterogeneous throughput is allowed; heterogeneous
// *devices*, e.g. mixed accelerator types, are a spec.md Non-goal) and four
// scalar collective bandwidths shared by the whole cluster.
type ClusterInfo struct {
	DeviceFLOPs            []float64
	AllReduceBandwidth     float64
	AllGatherBandwidth     float64
	ReduceScatterBandwidth float64
	AllToAllBandwidth      float64
}

// New validates and constructs a ClusterInfo. A zero-device cluster or any
// non-positive throughput/bandwidth is a validation failure per spec.md §7.
func New(deviceFLOPs []float64, allReduceBW, allGatherBW, reduceScatterBW, allToAllBW float64) (*ClusterInfo, error) {
	if len(deviceFLOPs) == 0 {
		return nil, errors.New("cluster must have at least one device")
	}
	for i, f := range deviceFLOPs {
		if f <= 0 {
			return nil, errors.Errorf("device %d FLOPs must be positive, got %v", i, f)
		}
	}
	for name, bw := range map[string]float64{
		"all_reduce":     allReduceBW,
		"all_gather":     allGatherBW,
		"reduce_scatter": reduceScatterBW,
		"all_to_all":     allToAllBW,
	} {
		if bw <= 0 {
			return nil, errors.Errorf("%s bandwidth must be positive, got %v", name, bw)
		}
	}
	return &ClusterInfo{
		DeviceFLOPs:            append([]float64(nil), deviceFLOPs...),
		AllReduceBandwidth:     allReduceBW,
		AllGatherBandwidth:     allGatherBW,
		ReduceScatterBandwidth: reduceScatterBW,
		AllToAllBandwidth:      allToAllBW,
	}, nil
}

// NumDevices returns the device count.
func (c *ClusterInfo) NumDevices() int { return len(c.DeviceFLOPs) }

// Profile carries the five non-negative scalars a Hoare triple's forward or
// backward pass is costed from: FLOPs performed, plus bytes moved by each of
// the four collectives.
type Profile struct {
	FLOPs         float64
	AllReduce     float64
	AllGather     float64
	ReduceScatter float64
	AllToAll      float64
}

// Time estimates the wall-clock time of this profile under the given
// per-device sharding ratios, per spec.md §4.2:
//
//	t_compute = max_i (flops * r_i / device_flops_i)      -- straggler model
//	t_comm    = (max_i r_i) * sum of (bytes_c / bandwidth_c) over collectives
//	total     = t_compute + t_comm
//
// The max rather than sum in t_compute models lockstep SIMD execution: the
// slowest device gates the whole step. The max-ratio factor on
// communication captures that the bottleneck device also moves the largest
// share of any collective.
func (p Profile) Time(cluster *ClusterInfo, ratios []float64) (float64, error) {
	if len(ratios) != cluster.NumDevices() {
		return 0, errors.Errorf("sharding ratios has %d entries, cluster has %d devices", len(ratios), cluster.NumDevices())
	}

	tCompute := 0.0
	maxRatio := 0.0
	for i, r := range ratios {
		if r < 0 {
			return 0, errors.Errorf("sharding ratio %d must be non-negative, got %v", i, r)
		}
		if share := p.FLOPs * r / cluster.DeviceFLOPs[i]; share > tCompute {
			tCompute = share
		}
		if r > maxRatio {
			maxRatio = r
		}
	}

	tComm := maxRatio * (p.AllGather/cluster.AllGatherBandwidth +
		p.AllReduce/cluster.AllReduceBandwidth +
		p.AllToAll/cluster.AllToAllBandwidth +
		p.ReduceScatter/cluster.ReduceScatterBandwidth)

	total := tCompute + tComm
	if math.IsNaN(total) || math.IsInf(total, 0) {
		return 0, errors.Errorf("profile time computed to a non-finite value (%v)", total)
	}
	return total, nil
}
