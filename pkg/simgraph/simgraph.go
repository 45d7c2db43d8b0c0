// Package simgraph is an in-process implementation of the path-finding and
// what-if collaborator, computed from the current topology snapshot. It
// backs demo deployments and tests where no upstream API is available.
package simgraph

import (
	"sync"

	"gonum.org/v1/gonum/graph/simple"

	"github.com/meridianlabs/topoview/pkg/backend"
	"github.com/meridianlabs/topoview/pkg/topology"
)

// Backend implements backend.Client over the inventory snapshot
type Backend struct {
	inv *topology.Inventory

	mu     sync.Mutex
	cached *netGraph // rebuilt lazily when the snapshot version moves
}

// New creates a reference backend reading from the given inventory
func New(inv *topology.Inventory) *Backend {
	return &Backend{inv: inv}
}

// netGraph is the path graph derived from one snapshot: activated devices
// as nodes, links between them as undirected weighted edges. Two weighted
// views share the node set, one weighing every edge 1 (hops) and one by
// link latency.
type netGraph struct {
	version uint64
	snap    *topology.Snapshot

	hops    *simple.WeightedUndirectedGraph
	latency *simple.WeightedUndirectedGraph

	ids map[string]int64 // device pk -> node id
	pks []string         // node id -> device pk

	// links by unordered endpoint id pair, cheapest first
	edgeLinks map[[2]int64][]*topology.Link
}

// graph returns the cached netGraph for the current snapshot, rebuilding
// when the inventory has been refreshed since the last call. A nil return
// means no snapshot is loaded yet.
func (b *Backend) graph() *netGraph {
	snap := b.inv.Current()
	if snap == nil {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cached != nil && b.cached.version == snap.Version {
		return b.cached
	}
	b.cached = buildNetGraph(snap)
	return b.cached
}

func buildNetGraph(snap *topology.Snapshot) *netGraph {
	ng := &netGraph{
		version:   snap.Version,
		snap:      snap,
		hops:      simple.NewWeightedUndirectedGraph(0, 0),
		latency:   simple.NewWeightedUndirectedGraph(0, 0),
		ids:       make(map[string]int64),
		edgeLinks: make(map[[2]int64][]*topology.Link),
	}

	for i := range snap.Devices {
		d := &snap.Devices[i]
		if !d.PathEligible() {
			continue
		}
		id := int64(len(ng.pks))
		ng.ids[d.PK] = id
		ng.pks = append(ng.pks, d.PK)
		ng.hops.AddNode(simple.Node(id))
		ng.latency.AddNode(simple.Node(id))
	}

	for i := range snap.Links {
		l := &snap.Links[i]
		a, okA := ng.ids[l.SideAPK]
		z, okZ := ng.ids[l.SideZPK]
		if !okA || !okZ || a == z {
			continue
		}
		key := edgeKey(a, z)
		ng.edgeLinks[key] = append(ng.edgeLinks[key], l)

		// Parallel links collapse to the cheapest edge
		w := linkWeight(l)
		if we := ng.latency.WeightedEdge(a, z); we == nil || w < we.Weight() {
			ng.latency.SetWeightedEdge(ng.latency.NewWeightedEdge(simple.Node(a), simple.Node(z), w))
		}
		if ng.hops.WeightedEdge(a, z) == nil {
			ng.hops.SetWeightedEdge(ng.hops.NewWeightedEdge(simple.Node(a), simple.Node(z), 1))
		}
	}

	return ng
}

// linkWeight is the latency-view cost of traversing a link, in
// microseconds. Links without measurements get a flat default so they stay
// usable rather than free.
func linkWeight(l *topology.Link) float64 {
	if l.LatencyUs > 0 {
		return l.LatencyUs
	}
	return 1000
}

func edgeKey(a, z int64) [2]int64 {
	if a > z {
		a, z = z, a
	}
	return [2]int64{a, z}
}

// view selects the weighted graph matching the requested metric
func (ng *netGraph) view(metric backend.Metric) *simple.WeightedUndirectedGraph {
	if metric == backend.MetricLatency {
		return ng.latency
	}
	return ng.hops
}

// linkFor returns the cheapest link joining two node ids
func (ng *netGraph) linkFor(a, z int64) *topology.Link {
	links := ng.edgeLinks[edgeKey(a, z)]
	if len(links) == 0 {
		return nil
	}
	best := links[0]
	for _, l := range links[1:] {
		if linkWeight(l) < linkWeight(best) {
			best = l
		}
	}
	return best
}

// device returns the device behind a node id
func (ng *netGraph) device(id int64) *topology.Device {
	d, _ := ng.snap.DeviceByPK(ng.pks[id])
	return d
}
