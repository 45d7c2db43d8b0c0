// Package highlight maps backend path and what-if results onto per-entity
// highlight assignments. Both rendering surfaces consume the same
// assignment, so everything here is deterministic for a given result
// ordering and free of rendering concerns.
package highlight

import (
	"github.com/meridianlabs/topoview/pkg/backend"
	"github.com/meridianlabs/topoview/pkg/topology"
)

// PaletteSize is the number of distinct path colors before indices cycle
const PaletteSize = 6

// Palette holds the reference path colors, indexed by PaletteIndex. The
// surfaces may restyle but must keep index identity.
var Palette = [PaletteSize]string{
	"#1f77b4",
	"#ff7f0e",
	"#2ca02c",
	"#d62728",
	"#9467bd",
	"#8c564b",
}

// PaletteIndex cycles a path index onto the fixed palette
func PaletteIndex(pathIndex int) int {
	if pathIndex < 0 {
		return 0
	}
	return pathIndex % PaletteSize
}

// PaletteColor returns the reference color for a path index
func PaletteColor(pathIndex int) string {
	return Palette[PaletteIndex(pathIndex)]
}

// PathAssignment maps entities to the alternate paths they belong to.
// Index lists are in order of first appearance and never contain
// duplicates. SelectedIndex marks the path drawn with emphasis; it does
// not change palette identity.
type PathAssignment struct {
	Devices       map[string][]int `json:"devices"`
	Links         map[string][]int `json:"links"`
	Metros        map[string][]int `json:"metros,omitempty"`
	PathCount     int              `json:"pathCount"`
	SelectedIndex int              `json:"selectedIndex"`
}

// BuildPathAssignment tags every hop device and every traversed link with
// the indices of the paths it appears in. Links are resolved against the
// snapshot by endpoint pair in either orientation; a link is credited to a
// path at most once even if the pair recurs.
func BuildPathAssignment(snap *topology.Snapshot, result *backend.PathResult, selectedIndex int) *PathAssignment {
	a := &PathAssignment{
		Devices:       make(map[string][]int),
		Links:         make(map[string][]int),
		SelectedIndex: selectedIndex,
	}
	if result == nil {
		return a
	}
	a.PathCount = len(result.Paths)
	if selectedIndex < 0 || selectedIndex >= len(result.Paths) {
		a.SelectedIndex = 0
	}

	for i, path := range result.Paths {
		for h, hop := range path.Hops {
			appendIndex(a.Devices, hop.DevicePK, i)

			if h == 0 || snap == nil {
				continue
			}
			prev := path.Hops[h-1]
			link, ok := snap.LinkBetween(prev.DevicePK, hop.DevicePK)
			if !ok {
				continue
			}
			appendIndex(a.Links, link.PK, i)
		}
	}

	return a
}

// BuildMetroPathAssignment is the metro-mode analog: hop devices and their
// metros are tagged, and inter-hop links resolved like device paths.
func BuildMetroPathAssignment(snap *topology.Snapshot, result *backend.MetroPathResult, selectedIndex int) *PathAssignment {
	a := &PathAssignment{
		Devices:       make(map[string][]int),
		Links:         make(map[string][]int),
		Metros:        make(map[string][]int),
		SelectedIndex: selectedIndex,
	}
	if result == nil {
		return a
	}
	a.PathCount = len(result.Paths)
	if selectedIndex < 0 || selectedIndex >= len(result.Paths) {
		a.SelectedIndex = 0
	}

	for i, path := range result.Paths {
		for h, hop := range path.Hops {
			appendIndex(a.Devices, hop.DevicePK, i)
			if hop.MetroPK != "" {
				appendIndex(a.Metros, hop.MetroPK, i)
			}

			if h == 0 || snap == nil {
				continue
			}
			prev := path.Hops[h-1]
			link, ok := snap.LinkBetween(prev.DevicePK, hop.DevicePK)
			if !ok {
				continue
			}
			appendIndex(a.Links, link.PK, i)
		}
	}

	return a
}

// appendIndex adds idx to the entity's list unless already credited
func appendIndex(m map[string][]int, key string, idx int) {
	if key == "" {
		return
	}
	for _, existing := range m[key] {
		if existing == idx {
			return
		}
	}
	m[key] = append(m[key], idx)
}
