package simgraph

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/meridianlabs/topoview/pkg/backend"
)

// SimulateLinkRemoval removes the link between two devices and compares
// connectivity and shortest paths from both endpoints before and after
func (b *Backend) SimulateLinkRemoval(ctx context.Context, sourcePK, targetPK string) (*backend.RemovalResult, error) {
	result := &backend.RemovalResult{SourcePK: sourcePK, TargetPK: targetPK}

	ng := b.graph()
	if ng == nil {
		result.Error = "topology not loaded"
		return result, nil
	}
	src, okS := ng.ids[sourcePK]
	dst, okT := ng.ids[targetPK]
	if !okS || !okT {
		result.Error = "device not in path graph"
		return result, nil
	}
	if len(ng.edgeLinks[edgeKey(src, dst)]) == 0 {
		result.Error = fmt.Sprintf("no link between %s and %s", sourcePK, targetPK)
		return result, nil
	}

	before := ng.latency
	after := cloneWithout(before, nil, map[[2]int64]bool{edgeKey(src, dst): true})

	// Partition check: are the endpoints still connected without the link?
	afterFromSrc := path.DijkstraFrom(after.Node(src), after)
	if _, w := afterFromSrc.To(dst); math.IsInf(w, 1) {
		result.CausesPartition = true
		// Everything cut off from the source side is reported as disconnected
		reachable := reachableSet(after, src)
		for _, pk := range ng.pks {
			id := ng.ids[pk]
			if reachable[id] {
				continue
			}
			d := ng.device(id)
			impact := backend.ImpactDevice{DevicePK: d.PK, DeviceCode: d.Code}
			if m, ok := ng.snap.MetroByPK(d.MetroPK); ok {
				impact.MetroCode = m.Code
			}
			result.DisconnectedDevices = append(result.DisconnectedDevices, impact)
		}
		sort.Slice(result.DisconnectedDevices, func(i, j int) bool {
			return result.DisconnectedDevices[i].DevicePK < result.DisconnectedDevices[j].DevicePK
		})
	}

	// Compare shortest paths from both endpoints to every other device;
	// the two endpoint sweeps are independent.
	var mu sync.Mutex
	g, _ := errgroup.WithContext(ctx)
	for _, endpoint := range []int64{src, dst} {
		endpoint := endpoint
		g.Go(func() error {
			affected := comparePaths(ng, before, after, endpoint)
			mu.Lock()
			result.AffectedPaths = append(result.AffectedPaths, affected...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		result.Error = err.Error()
		return result, nil
	}
	sort.Slice(result.AffectedPaths, func(i, j int) bool {
		a, b := result.AffectedPaths[i], result.AffectedPaths[j]
		if a.FromPK != b.FromPK {
			return a.FromPK < b.FromPK
		}
		return a.ToPK < b.ToPK
	})

	return result, nil
}

// comparePaths reports every device whose shortest path from the endpoint
// changed between the two graphs
func comparePaths(ng *netGraph, before, after *simple.WeightedUndirectedGraph, from int64) []backend.AffectedPath {
	var out []backend.AffectedPath

	beforeSP := path.DijkstraFrom(before.Node(from), before)
	afterSP := path.DijkstraFrom(after.Node(from), after)

	for _, pk := range ng.pks {
		to := ng.ids[pk]
		if to == from {
			continue
		}
		bPath, bw := beforeSP.To(to)
		if math.IsInf(bw, 1) {
			continue
		}
		aPath, aw := afterSP.To(to)
		if aw == bw {
			continue
		}
		ap := backend.AffectedPath{
			FromPK:       ng.pks[from],
			ToPK:         pk,
			BeforeHops:   len(bPath) - 1,
			BeforeMetric: uint32(bw),
		}
		if !math.IsInf(aw, 1) {
			ap.AfterHops = len(aPath) - 1
			ap.AfterMetric = uint32(aw)
			ap.HasAlternate = true
		}
		out = append(out, ap)
	}
	return out
}

// SimulateLinkAddition adds a hypothetical link with the given cost and
// reports which device pairs improve and which devices gain redundancy
func (b *Backend) SimulateLinkAddition(ctx context.Context, sourcePK, targetPK string, cost uint32) (*backend.AdditionResult, error) {
	if cost == 0 {
		cost = backend.DefaultAdditionCost
	}
	result := &backend.AdditionResult{SourcePK: sourcePK, TargetPK: targetPK, Metric: cost}

	ng := b.graph()
	if ng == nil {
		result.Error = "topology not loaded"
		return result, nil
	}
	src, okS := ng.ids[sourcePK]
	dst, okT := ng.ids[targetPK]
	if !okS || !okT {
		result.Error = "device not in path graph"
		return result, nil
	}
	if src == dst {
		result.Error = "source and target are the same device"
		return result, nil
	}

	before := ng.latency
	after := cloneWithout(before, nil, nil)
	w := float64(cost)
	if we := after.WeightedEdge(src, dst); we == nil || w < we.Weight() {
		after.SetWeightedEdge(after.NewWeightedEdge(simple.Node(src), simple.Node(dst), w))
	}

	var mu sync.Mutex
	g, _ := errgroup.WithContext(ctx)
	for _, endpoint := range []int64{src, dst} {
		endpoint := endpoint
		g.Go(func() error {
			improved := compareImprovements(ng, before, after, endpoint)
			mu.Lock()
			result.ImprovedPaths = append(result.ImprovedPaths, improved...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		result.Error = err.Error()
		return result, nil
	}
	sort.Slice(result.ImprovedPaths, func(i, j int) bool {
		a, b := result.ImprovedPaths[i], result.ImprovedPaths[j]
		if a.FromPK != b.FromPK {
			return a.FromPK < b.FromPK
		}
		return a.ToPK < b.ToPK
	})

	for _, endpoint := range []int64{src, dst} {
		degree := before.From(endpoint).Len()
		result.RedundancyGains = append(result.RedundancyGains, backend.RedundancyGain{
			DevicePK:  ng.pks[endpoint],
			OldDegree: degree,
			NewDegree: degree + 1,
			WasLeaf:   degree <= 1,
		})
	}

	return result, nil
}

func compareImprovements(ng *netGraph, before, after *simple.WeightedUndirectedGraph, from int64) []backend.ImprovedPath {
	var out []backend.ImprovedPath

	beforeSP := path.DijkstraFrom(before.Node(from), before)
	afterSP := path.DijkstraFrom(after.Node(from), after)

	for _, pk := range ng.pks {
		to := ng.ids[pk]
		if to == from {
			continue
		}
		aPath, aw := afterSP.To(to)
		if math.IsInf(aw, 1) {
			continue
		}
		bPath, bw := beforeSP.To(to)
		if aw >= bw {
			continue
		}
		ip := backend.ImprovedPath{
			FromPK:    ng.pks[from],
			ToPK:      pk,
			AfterHops: len(aPath) - 1,
		}
		// A previously unreachable pair is an improvement with no baseline
		if !math.IsInf(bw, 1) {
			ip.BeforeHops = len(bPath) - 1
			ip.HopReduction = ip.BeforeHops - ip.AfterHops
			ip.MetricReduction = uint32(bw - aw)
		}
		out = append(out, ip)
	}
	return out
}

// SimulateFailure removes a set of devices simultaneously and reports what
// loses connectivity and how paths between the failed devices' neighbors
// change
func (b *Backend) SimulateFailure(ctx context.Context, devicePKs []string) (*backend.ImpactResult, error) {
	result := &backend.ImpactResult{DevicePKs: devicePKs}

	ng := b.graph()
	if ng == nil {
		result.Error = "topology not loaded"
		return result, nil
	}

	failed := make(map[int64]bool)
	for _, pk := range devicePKs {
		id, ok := ng.ids[pk]
		if !ok {
			result.Error = fmt.Sprintf("device %s not in path graph", pk)
			return result, nil
		}
		failed[id] = true
	}
	if len(failed) == 0 {
		result.Error = "no devices to fail"
		return result, nil
	}

	before := ng.hops
	after := cloneWithout(before, failed, nil)

	// Survivors outside the largest remaining component are unreachable
	main := largestComponent(after)
	metroCounts := make(map[string]int)
	for _, pk := range ng.pks {
		id := ng.ids[pk]
		if failed[id] || main[id] {
			continue
		}
		d := ng.device(id)
		impact := backend.ImpactDevice{DevicePK: d.PK, DeviceCode: d.Code}
		if m, ok := ng.snap.MetroByPK(d.MetroPK); ok {
			impact.MetroCode = m.Code
			metroCounts[m.Code]++
		}
		result.UnreachableDevices = append(result.UnreachableDevices, impact)
	}
	sort.Slice(result.UnreachableDevices, func(i, j int) bool {
		return result.UnreachableDevices[i].DevicePK < result.UnreachableDevices[j].DevicePK
	})
	for code, n := range metroCounts {
		result.MetroImpact = append(result.MetroImpact, backend.MetroImpact{MetroCode: code, Unreachable: n})
	}
	sort.Slice(result.MetroImpact, func(i, j int) bool {
		return result.MetroImpact[i].MetroCode < result.MetroImpact[j].MetroCode
	})

	// Paths between surviving neighbors of the failed set are the ones the
	// failure can disturb
	neighbors := neighborSet(ng, failed)
	var mu sync.Mutex
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, from := range neighbors {
		i, from := i, from
		g.Go(func() error {
			beforeSP := path.DijkstraFrom(before.Node(from), before)
			var afterSP path.Shortest
			alive := !failed[from] && after.Node(from) != nil
			if alive {
				afterSP = path.DijkstraFrom(after.Node(from), after)
			}
			var paths []backend.ImpactPath
			for _, to := range neighbors[i+1:] {
				_, bw := beforeSP.To(to)
				if math.IsInf(bw, 1) {
					continue
				}
				status := backend.PathStatusDisconnected
				if alive && after.Node(to) != nil {
					if _, aw := afterSP.To(to); !math.IsInf(aw, 1) {
						if aw > bw {
							status = backend.PathStatusDegraded
						} else {
							status = backend.PathStatusRerouted
						}
					}
				}
				paths = append(paths, backend.ImpactPath{
					FromPK: ng.pks[from],
					ToPK:   ng.pks[to],
					Status: status,
				})
			}
			mu.Lock()
			result.AffectedPaths = append(result.AffectedPaths, paths...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		result.Error = err.Error()
		return result, nil
	}
	sort.Slice(result.AffectedPaths, func(i, j int) bool {
		a, b := result.AffectedPaths[i], result.AffectedPaths[j]
		if a.FromPK != b.FromPK {
			return a.FromPK < b.FromPK
		}
		return a.ToPK < b.ToPK
	})

	return result, nil
}

// neighborSet collects the surviving devices adjacent to the failed set,
// sorted by node id for deterministic output
func neighborSet(ng *netGraph, failed map[int64]bool) []int64 {
	seen := make(map[int64]bool)
	for id := range failed {
		it := ng.hops.From(id)
		for it.Next() {
			n := it.Node().ID()
			if !failed[n] {
				seen[n] = true
			}
		}
	}
	out := make([]int64, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// cloneWithout copies a weighted graph, dropping the given nodes and edges
func cloneWithout(g *simple.WeightedUndirectedGraph, skipNodes map[int64]bool, skipEdges map[[2]int64]bool) *simple.WeightedUndirectedGraph {
	out := simple.NewWeightedUndirectedGraph(0, 0)

	nodes := g.Nodes()
	for nodes.Next() {
		id := nodes.Node().ID()
		if skipNodes[id] {
			continue
		}
		out.AddNode(simple.Node(id))
	}

	edges := g.WeightedEdges()
	for edges.Next() {
		e := edges.WeightedEdge()
		a, z := e.From().ID(), e.To().ID()
		if skipNodes[a] || skipNodes[z] || skipEdges[edgeKey(a, z)] {
			continue
		}
		out.SetWeightedEdge(out.NewWeightedEdge(simple.Node(a), simple.Node(z), e.Weight()))
	}

	return out
}

// reachableSet returns every node reachable from the start node
func reachableSet(g *simple.WeightedUndirectedGraph, from int64) map[int64]bool {
	out := make(map[int64]bool)
	sp := path.DijkstraFrom(g.Node(from), g)
	nodes := g.Nodes()
	for nodes.Next() {
		id := nodes.Node().ID()
		if _, w := sp.To(id); !math.IsInf(w, 1) {
			out[id] = true
		}
	}
	return out
}

// largestComponent returns the membership set of the graph's largest
// connected component
func largestComponent(g *simple.WeightedUndirectedGraph) map[int64]bool {
	var best []int64
	for _, comp := range topo.ConnectedComponents(g) {
		ids := make([]int64, len(comp))
		for i, n := range comp {
			ids[i] = n.ID()
		}
		if len(ids) > len(best) {
			best = ids
		}
	}
	out := make(map[int64]bool, len(best))
	for _, id := range best {
		out[id] = true
	}
	return out
}
