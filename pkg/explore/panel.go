package explore

import "github.com/meridianlabs/topoview/pkg/topology"

// PanelKind identifies which side panel should be visible
type PanelKind string

const (
	PanelNone    PanelKind = "none"
	PanelDetails PanelKind = "details"
	PanelMode    PanelKind = "mode"
	PanelLegend  PanelKind = "legend"
)

// derivePanel is a pure function of mode, selection, and overlays. The
// dismissed flag is the user's explicit close; it holds until the next
// mode or selection change clears it.
func derivePanel(mode Mode, selection topology.EntityRef, overlays *OverlaySet, dismissed bool) PanelKind {
	if dismissed {
		return PanelNone
	}
	if mode != ModeExplore {
		return PanelMode
	}
	if overlays.AnyActive() && selection.IsZero() {
		return PanelLegend
	}
	if !selection.IsZero() {
		return PanelDetails
	}
	return PanelNone
}
