package simgraph

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/meridianlabs/topoview/pkg/backend"
	"github.com/meridianlabs/topoview/pkg/topology"
)

// FindPaths computes up to maxAlternates loop-free paths between two
// devices using Yen's algorithm over the requested metric view. Failures
// are reported in the result's Error field, never as a transport error.
func (b *Backend) FindPaths(ctx context.Context, sourcePK, targetPK string, maxAlternates int, metric backend.Metric) (*backend.PathResult, error) {
	result := &backend.PathResult{From: sourcePK, To: targetPK}

	ng := b.graph()
	if ng == nil {
		result.Error = "topology not loaded"
		return result, nil
	}
	if !metric.Valid() {
		metric = backend.MetricHops
	}

	src, ok := ng.ids[sourcePK]
	if !ok {
		result.Error = fmt.Sprintf("device %s not in path graph", sourcePK)
		return result, nil
	}
	dst, ok := ng.ids[targetPK]
	if !ok {
		result.Error = fmt.Sprintf("device %s not in path graph", targetPK)
		return result, nil
	}
	if src == dst {
		result.Error = "source and target are the same device"
		return result, nil
	}

	g := ng.view(metric)
	k := maxAlternates
	if k <= 0 {
		k = backend.DefaultMaxAlternates
	}
	if k > backend.MaxAlternates {
		k = backend.MaxAlternates
	}

	routes := path.YenKShortestPaths(g, k, math.Inf(1), g.Node(src), g.Node(dst))
	if len(routes) == 0 {
		result.Error = fmt.Sprintf("no path between %s and %s", sourcePK, targetPK)
		return result, nil
	}

	for _, route := range routes {
		result.Paths = append(result.Paths, ng.buildPath(route, metric))
	}
	return result, nil
}

// buildPath converts a node route into the wire path shape. Edge metrics
// come from the view the route was computed on: 1 per edge under hops,
// link weight under latency. Measured latency is reported either way.
func (ng *netGraph) buildPath(route []graph.Node, metric backend.Metric) backend.Path {
	p := backend.Path{}
	var prev int64
	for i, n := range route {
		id := n.ID()
		d := ng.device(id)
		hop := backend.Hop{
			DevicePK:   d.PK,
			DeviceCode: d.Code,
			Status:     d.Status,
			DeviceType: d.DeviceType,
		}
		if i > 0 {
			if l := ng.linkFor(prev, id); l != nil {
				if metric == backend.MetricLatency {
					hop.EdgeMetric = uint32(linkWeight(l))
				} else {
					hop.EdgeMetric = 1
				}
				hop.EdgeMeasuredMs = l.LatencyUs / 1000
				p.TotalMetric += hop.EdgeMetric
				p.MeasuredLatencyMs += hop.EdgeMeasuredMs
			}
		}
		p.Hops = append(p.Hops, hop)
		prev = id
	}
	p.HopCount = len(p.Hops) - 1
	return p
}

// FindMetroPaths computes alternates between two metros over a collapsed
// metro-level graph: one node per metro holding eligible devices, one edge
// per connected metro pair weighted by its cheapest inter-metro link.
func (b *Backend) FindMetroPaths(ctx context.Context, sourceMetroPK, targetMetroPK string, maxAlternates int) (*backend.MetroPathResult, error) {
	result := &backend.MetroPathResult{}

	ng := b.graph()
	if ng == nil {
		result.Error = "topology not loaded"
		return result, nil
	}
	snap := ng.snap

	from, ok := snap.MetroByPK(sourceMetroPK)
	if !ok {
		result.Error = fmt.Sprintf("unknown metro %s", sourceMetroPK)
		return result, nil
	}
	to, ok := snap.MetroByPK(targetMetroPK)
	if !ok {
		result.Error = fmt.Sprintf("unknown metro %s", targetMetroPK)
		return result, nil
	}
	result.FromMetro = from.Code
	result.ToMetro = to.Code
	if from.PK == to.PK {
		result.Error = "source and target are the same metro"
		return result, nil
	}

	mg := buildMetroGraph(ng)
	src, okS := mg.ids[from.PK]
	dst, okT := mg.ids[to.PK]
	if !okS || !okT {
		result.Error = "metro has no devices in the path graph"
		return result, nil
	}

	k := maxAlternates
	if k <= 0 {
		k = backend.DefaultMaxAlternates
	}
	if k > backend.MaxAlternates {
		k = backend.MaxAlternates
	}

	routes := path.YenKShortestPaths(mg.g, k, math.Inf(1), mg.g.Node(src), mg.g.Node(dst))
	if len(routes) == 0 {
		result.Error = fmt.Sprintf("no metro path between %s and %s", from.Code, to.Code)
		return result, nil
	}

	for _, route := range routes {
		result.Paths = append(result.Paths, mg.buildMetroPath(snap, route))
	}
	return result, nil
}

// metroGraph collapses the device graph to one node per metro
type metroGraph struct {
	g   *simple.WeightedUndirectedGraph
	ids map[string]int64 // metro pk -> node id
	pks []string         // node id -> metro pk

	// cheapest inter-metro link per unordered metro id pair
	edgeLink map[[2]int64]*topology.Link
}

func buildMetroGraph(ng *netGraph) *metroGraph {
	mg := &metroGraph{
		g:        simple.NewWeightedUndirectedGraph(0, 0),
		ids:      make(map[string]int64),
		edgeLink: make(map[[2]int64]*topology.Link),
	}
	snap := ng.snap

	node := func(metroPK string) (int64, bool) {
		if id, ok := mg.ids[metroPK]; ok {
			return id, true
		}
		if _, ok := snap.MetroByPK(metroPK); !ok {
			return 0, false
		}
		id := int64(len(mg.pks))
		mg.ids[metroPK] = id
		mg.pks = append(mg.pks, metroPK)
		mg.g.AddNode(simple.Node(id))
		return id, true
	}

	for _, links := range ng.edgeLinks {
		for _, l := range links {
			a, okA := snap.DeviceByPK(l.SideAPK)
			z, okZ := snap.DeviceByPK(l.SideZPK)
			if !okA || !okZ || a.MetroPK == z.MetroPK {
				continue
			}
			ma, okA := node(a.MetroPK)
			mz, okZ := node(z.MetroPK)
			if !okA || !okZ {
				continue
			}
			key := edgeKey(ma, mz)
			w := linkWeight(l)
			if existing := mg.edgeLink[key]; existing == nil || w < linkWeight(existing) {
				mg.edgeLink[key] = l
				mg.g.SetWeightedEdge(mg.g.NewWeightedEdge(simple.Node(ma), simple.Node(mz), w))
			}
		}
	}

	return mg
}

// buildMetroPath converts a metro route into the wire shape. Each hop
// carries the concrete device the chosen inter-metro link lands on in that
// metro; the first hop uses the link's near side.
func (mg *metroGraph) buildMetroPath(snap *topology.Snapshot, route []graph.Node) backend.MetroPath {
	p := backend.MetroPath{}

	hopDevice := func(metroPK string, l *topology.Link) *topology.Device {
		a, _ := snap.DeviceByPK(l.SideAPK)
		z, _ := snap.DeviceByPK(l.SideZPK)
		if a != nil && a.MetroPK == metroPK {
			return a
		}
		return z
	}

	appendHop := func(metroPK string, d *topology.Device) {
		m, _ := snap.MetroByPK(metroPK)
		hop := backend.MetroHop{MetroPK: metroPK}
		if m != nil {
			hop.MetroCode = m.Code
		}
		if d != nil {
			hop.DevicePK = d.PK
			hop.DeviceCode = d.Code
		}
		p.Hops = append(p.Hops, hop)
	}

	for i, n := range route {
		metroPK := mg.pks[n.ID()]
		if i == 0 {
			next := mg.pks[route[i+1].ID()]
			l := mg.edgeLink[edgeKey(n.ID(), mg.ids[next])]
			appendHop(metroPK, hopDevice(metroPK, l))
			continue
		}
		prev := route[i-1].ID()
		l := mg.edgeLink[edgeKey(prev, n.ID())]
		appendHop(metroPK, hopDevice(metroPK, l))
		w := linkWeight(l)
		p.TotalMetric += int64(w)
		p.LatencyMs += w / 1000
	}
	p.TotalHops = len(p.Hops) - 1
	return p
}
