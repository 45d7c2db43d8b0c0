// Package explore implements the interaction engine behind a topology
// explorer session: one active analysis mode, togglable overlays, entity
// selection, highlight assignments, and the query-string mirror of all of
// it. State changes happen only through documented transitions, so the
// engine is always internally consistent and invalid inputs degrade to
// resets or ignored clicks, never errors.
package explore

import (
	"fmt"
	"sort"

	"github.com/meridianlabs/topoview/pkg/backend"
	"github.com/meridianlabs/topoview/pkg/highlight"
)

// Mode is the active interaction mode. Exactly one is active at any time.
type Mode string

const (
	ModeExplore   Mode = "explore"
	ModePath      Mode = "path"
	ModeMetroPath Mode = "metro-path"
	ModeRemoval   Mode = "whatif-removal"
	ModeAddition  Mode = "whatif-addition"
	ModeImpact    Mode = "impact"
)

// ParseMode validates a wire-level mode name
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeExplore, ModePath, ModeMetroPath, ModeRemoval, ModeAddition, ModeImpact:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown mode %q", s)
}

// Each non-explore mode owns an arena holding its transient working state.
// Arenas are destroyed and rebuilt whole on every transition, including
// re-entry, so stale fields cannot leak across mode changes.

// pathArena is the working state of path mode
type pathArena struct {
	Source      string
	Target      string
	Metric      backend.Metric
	ActiveIndex int
	Result      *backend.PathResult
	Reverse     *backend.PathResult
	Err         string
	Assignment  *highlight.PathAssignment

	typesNudged bool // device-type/link-type auto-disable fired
	seq         uint64
	reverseSeq  uint64
}

func newPathArena() *pathArena {
	return &pathArena{Metric: backend.MetricHops}
}

// clearResult drops the result, highlights, and error so no stale
// highlight flashes while a new request is in flight. Zeroing reverseSeq
// orphans any reverse comparison still in flight for the old tuple.
func (a *pathArena) clearResult() {
	a.Result = nil
	a.Reverse = nil
	a.Assignment = nil
	a.Err = ""
	a.ActiveIndex = 0
	a.reverseSeq = 0
}

// metroArena is the working state of metro-path mode. Metro routes are
// always ranked by cumulative link metric upstream, so unlike path mode
// there is no metric choice here.
type metroArena struct {
	Source      string
	Target      string
	ActiveIndex int
	Result      *backend.MetroPathResult
	Err         string
	Assignment  *highlight.PathAssignment

	typesNudged bool
	seq         uint64
}

func newMetroArena() *metroArena {
	return &metroArena{}
}

func (a *metroArena) clearResult() {
	a.Result = nil
	a.Assignment = nil
	a.Err = ""
	a.ActiveIndex = 0
}

// removalArena is the working state of whatif-removal mode. The candidate
// is a link when picked by click or removal_link, or a bare device pair
// when restored from the removal_edge form.
type removalArena struct {
	LinkPK     string
	EdgeA      string
	EdgeZ      string
	Result     *backend.RemovalResult
	Err        string
	Assignment *highlight.WhatIfAssignment

	seq uint64
}

func newRemovalArena() *removalArena {
	return &removalArena{}
}

// hasCandidate reports whether a removal candidate is picked
func (a *removalArena) hasCandidate() bool {
	return a.EdgeA != "" && a.EdgeZ != ""
}

func (a *removalArena) clearResult() {
	a.Result = nil
	a.Assignment = nil
	a.Err = ""
}

// additionArena is the working state of whatif-addition mode
type additionArena struct {
	Source     string
	Target     string
	Cost       uint32
	Result     *backend.AdditionResult
	Err        string
	Assignment *highlight.WhatIfAssignment

	seq uint64
}

func newAdditionArena() *additionArena {
	return &additionArena{Cost: backend.DefaultAdditionCost}
}

func (a *additionArena) clearResult() {
	a.Result = nil
	a.Assignment = nil
	a.Err = ""
}

// impactArena is the working state of impact mode. Devices is an
// unordered membership set with no upper bound at this layer.
type impactArena struct {
	Devices    map[string]bool
	Result     *backend.ImpactResult
	Err        string
	Assignment *highlight.WhatIfAssignment

	seq uint64
}

func newImpactArena() *impactArena {
	return &impactArena{Devices: make(map[string]bool)}
}

func (a *impactArena) clearResult() {
	a.Result = nil
	a.Assignment = nil
	a.Err = ""
}

// deviceList returns the membership set sorted for stable serialization
func (a *impactArena) deviceList() []string {
	out := make([]string, 0, len(a.Devices))
	for pk := range a.Devices {
		out = append(out, pk)
	}
	sort.Strings(out)
	return out
}
