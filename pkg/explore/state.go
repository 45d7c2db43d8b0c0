package explore

import (
	"github.com/meridianlabs/topoview/pkg/backend"
	"github.com/meridianlabs/topoview/pkg/highlight"
	"github.com/meridianlabs/topoview/pkg/topology"
	"github.com/meridianlabs/topoview/pkg/urlstate"
)

// StateSnapshot is the full session state published to the rendering
// surfaces after every applied event. Exactly one of the mode views is
// non-nil when the mode is non-explore.
type StateSnapshot struct {
	SessionID        string              `json:"sessionId"`
	Mode             Mode                `json:"mode"`
	Selection        *topology.EntityRef `json:"selection,omitempty"`
	Overlays         map[string]bool     `json:"overlays"`
	Panel            PanelKind           `json:"panel"`
	Path             *PathView           `json:"path,omitempty"`
	MetroPath        *MetroPathView      `json:"metroPath,omitempty"`
	Removal          *RemovalView        `json:"removal,omitempty"`
	Addition         *AdditionView       `json:"addition,omitempty"`
	Impact           *ImpactView         `json:"impact,omitempty"`
	URLQuery         string              `json:"urlQuery"`
	URLChanges       []urlstate.Change   `json:"urlChanges,omitempty"`
	InventoryVersion uint64              `json:"inventoryVersion"`
	RestorationDone  bool                `json:"restorationDone"`
}

// PathView mirrors path mode's working state
type PathView struct {
	Source      string                    `json:"source,omitempty"`
	Target      string                    `json:"target,omitempty"`
	Metric      backend.Metric            `json:"metric"`
	ActiveIndex int                       `json:"activeIndex"`
	Result      *backend.PathResult       `json:"result,omitempty"`
	Reverse     *backend.PathResult       `json:"reverse,omitempty"`
	Error       string                    `json:"error,omitempty"`
	Assignment  *highlight.PathAssignment `json:"assignment,omitempty"`
}

// MetroPathView mirrors metro-path mode's working state
type MetroPathView struct {
	Source      string                    `json:"source,omitempty"`
	Target      string                    `json:"target,omitempty"`
	ActiveIndex int                       `json:"activeIndex"`
	Result      *backend.MetroPathResult  `json:"result,omitempty"`
	Error       string                    `json:"error,omitempty"`
	Assignment  *highlight.PathAssignment `json:"assignment,omitempty"`
}

// RemovalView mirrors whatif-removal mode's working state
type RemovalView struct {
	LinkPK     string                      `json:"linkPK,omitempty"`
	EdgeA      string                      `json:"edgeA,omitempty"`
	EdgeZ      string                      `json:"edgeZ,omitempty"`
	Result     *backend.RemovalResult      `json:"result,omitempty"`
	Error      string                      `json:"error,omitempty"`
	Assignment *highlight.WhatIfAssignment `json:"assignment,omitempty"`
}

// AdditionView mirrors whatif-addition mode's working state
type AdditionView struct {
	Source     string                      `json:"source,omitempty"`
	Target     string                      `json:"target,omitempty"`
	Cost       uint32                      `json:"cost"`
	Result     *backend.AdditionResult     `json:"result,omitempty"`
	Error      string                      `json:"error,omitempty"`
	Assignment *highlight.WhatIfAssignment `json:"assignment,omitempty"`
}

// ImpactView mirrors impact mode's working state
type ImpactView struct {
	Devices    []string                    `json:"devices"`
	Result     *backend.ImpactResult       `json:"result,omitempty"`
	Error      string                      `json:"error,omitempty"`
	Assignment *highlight.WhatIfAssignment `json:"assignment,omitempty"`
}
