package highlight

import (
	"github.com/meridianlabs/topoview/pkg/backend"
)

// Semantic colors for what-if highlight categories. One fixed color per
// category; no cycling.
const (
	ColorDisconnected     = "#d62728"
	ColorRerouted         = "#ff7f0e"
	ColorImproved         = "#2ca02c"
	ColorRedundancyGained = "#1f77b4"
	ColorCandidate        = "#e377c2"
)

// WhatIfAssignment holds the highlight categories derived from a what-if
// result, keyed by entity id. Candidate entities are tracked separately
// from the simulation result so they stay visible while the result is
// loading or failed.
type WhatIfAssignment struct {
	Disconnected     map[string]bool `json:"disconnected"`
	Rerouted         map[string]bool `json:"rerouted"`
	Improved         map[string]bool `json:"improved"`
	RedundancyGained map[string]bool `json:"redundancyGained"`

	CandidateLinks   map[string]bool `json:"candidateLinks,omitempty"`
	CandidateDevices map[string]bool `json:"candidateDevices,omitempty"`
}

// NewWhatIfAssignment creates an empty assignment
func NewWhatIfAssignment() *WhatIfAssignment {
	return &WhatIfAssignment{
		Disconnected:     make(map[string]bool),
		Rerouted:         make(map[string]bool),
		Improved:         make(map[string]bool),
		RedundancyGained: make(map[string]bool),
		CandidateLinks:   make(map[string]bool),
		CandidateDevices: make(map[string]bool),
	}
}

// BuildRemovalAssignment maps a link-removal result to highlight sets.
// Affected pairs with an alternate route are rerouted; pairs without one
// join the disconnected set alongside the devices the backend cut off.
func BuildRemovalAssignment(result *backend.RemovalResult) *WhatIfAssignment {
	a := NewWhatIfAssignment()
	if result == nil {
		return a
	}

	for _, d := range result.DisconnectedDevices {
		a.Disconnected[d.DevicePK] = true
	}
	for _, p := range result.AffectedPaths {
		if p.HasAlternate {
			a.Rerouted[p.FromPK] = true
			a.Rerouted[p.ToPK] = true
		} else {
			a.Disconnected[p.FromPK] = true
			a.Disconnected[p.ToPK] = true
		}
	}

	return a
}

// BuildAdditionAssignment maps a link-addition result to highlight sets
func BuildAdditionAssignment(result *backend.AdditionResult) *WhatIfAssignment {
	a := NewWhatIfAssignment()
	if result == nil {
		return a
	}

	for _, p := range result.ImprovedPaths {
		a.Improved[p.FromPK] = true
		a.Improved[p.ToPK] = true
	}
	for _, g := range result.RedundancyGains {
		a.RedundancyGained[g.DevicePK] = true
	}

	return a
}

// BuildImpactAssignment maps a multi-device failure result to highlight
// sets. Degraded paths count as rerouted: the pair still connects, just
// worse.
func BuildImpactAssignment(result *backend.ImpactResult) *WhatIfAssignment {
	a := NewWhatIfAssignment()
	if result == nil {
		return a
	}

	for _, d := range result.UnreachableDevices {
		a.Disconnected[d.DevicePK] = true
	}
	for _, p := range result.AffectedPaths {
		switch p.Status {
		case backend.PathStatusRerouted, backend.PathStatusDegraded:
			a.Rerouted[p.FromPK] = true
			a.Rerouted[p.ToPK] = true
		case backend.PathStatusDisconnected:
			a.Disconnected[p.FromPK] = true
			a.Disconnected[p.ToPK] = true
		}
	}

	return a
}
