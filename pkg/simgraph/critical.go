package simgraph

import (
	"context"
	"math"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/graph/path"

	"github.com/meridianlabs/topoview/pkg/backend"
)

// criticalLinkWorkers bounds the per-edge removal probes
const criticalLinkWorkers = 8

// Link health thresholds, matched against measured link telemetry
const (
	healthDegradedLatencyMs = 100
	healthDegradedJitterMs  = 10
	healthDegradedLossPct   = 0.5
	healthUnhealthyLossPct  = 2
)

// CriticalLinks ranks every edge of the path graph by probing its removal.
// A link is critical when its endpoints disconnect without it, important
// when the metric between them worsens, and redundant otherwise.
func (b *Backend) CriticalLinks(ctx context.Context) (*backend.CriticalLinksResult, error) {
	result := &backend.CriticalLinksResult{}

	ng := b.graph()
	if ng == nil {
		result.Error = "topology not loaded"
		return result, nil
	}

	keys := make([][2]int64, 0, len(ng.edgeLinks))
	for key := range ng.edgeLinks {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i][0] != keys[j][0] {
			return keys[i][0] < keys[j][0]
		}
		return keys[i][1] < keys[j][1]
	})

	links := make([]backend.CriticalLink, len(keys))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(criticalLinkWorkers)
	for i, key := range keys {
		i, key := i, key
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			cl := probeLinkRemoval(ng, key)
			mu.Lock()
			links[i] = cl
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		result.Error = err.Error()
		return result, nil
	}

	result.Links = links
	return result, nil
}

// probeLinkRemoval classifies one edge by comparing its endpoints' shortest
// path with and without the edge
func probeLinkRemoval(ng *netGraph, key [2]int64) backend.CriticalLink {
	a, z := key[0], key[1]
	link := ng.linkFor(a, z)

	cl := backend.CriticalLink{
		SourcePK: ng.pks[a],
		TargetPK: ng.pks[z],
		Metric:   uint32(linkWeight(link)),
	}

	before := ng.latency
	_, bw := path.DijkstraFrom(before.Node(a), before).To(z)

	after := cloneWithout(before, nil, map[[2]int64]bool{key: true})
	_, aw := path.DijkstraFrom(after.Node(a), after).To(z)

	switch {
	case math.IsInf(aw, 1):
		cl.Criticality = backend.CriticalityCritical
	case aw > bw:
		cl.Criticality = backend.CriticalityImportant
	default:
		cl.Criticality = backend.CriticalityRedundant
	}
	return cl
}

// LinkHealth derives the health overlay from the snapshot's measured link
// telemetry. Links with no measurements report an unknown status.
func (b *Backend) LinkHealth(ctx context.Context) (*backend.LinkHealthResult, error) {
	result := &backend.LinkHealthResult{}

	snap := b.inv.Current()
	if snap == nil {
		result.Error = "topology not loaded"
		return result, nil
	}

	for i := range snap.Links {
		l := &snap.Links[i]
		lh := backend.LinkHealth{
			LinkPK:      l.PK,
			LatencyMs:   l.LatencyUs / 1000,
			JitterMs:    l.JitterUs / 1000,
			LossPercent: l.LossPercent,
		}
		switch {
		case l.LatencyUs == 0 && l.JitterUs == 0 && l.LossPercent == 0:
			lh.Status = "unknown"
		case l.LossPercent >= healthUnhealthyLossPct:
			lh.Status = "unhealthy"
		case lh.LatencyMs >= healthDegradedLatencyMs ||
			lh.JitterMs >= healthDegradedJitterMs ||
			l.LossPercent >= healthDegradedLossPct:
			lh.Status = "degraded"
		default:
			lh.Status = "healthy"
		}
		result.Links = append(result.Links, lh)
	}

	sort.Slice(result.Links, func(i, j int) bool {
		return result.Links[i].LinkPK < result.Links[j].LinkPK
	})
	return result, nil
}
