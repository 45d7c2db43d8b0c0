package explore

// Overlay names form a closed set. Overlays toggle independently of mode
// and of each other; rendering resolves visual conflicts by its own fixed
// priority order, nothing is stored here beyond the booleans.
const (
	OverlayCriticality = "criticality"
	OverlayLinkHealth  = "link-health"
	OverlayStake       = "stake"
	OverlayTraffic     = "traffic"
	OverlayClustering  = "clustering"
	OverlayBandwidth   = "bandwidth"
	OverlayDeviceType  = "device-type"
	OverlayLinkType    = "link-type"
	OverlayValidators  = "validators"
	OverlayLatency     = "latency"
	OverlayJitter      = "jitter"
	OverlayLoss        = "loss"
	OverlayMetroLabels = "metro-labels"
)

// OverlayNames lists every known overlay in display order
var OverlayNames = []string{
	OverlayCriticality,
	OverlayLinkHealth,
	OverlayStake,
	OverlayTraffic,
	OverlayClustering,
	OverlayBandwidth,
	OverlayDeviceType,
	OverlayLinkType,
	OverlayValidators,
	OverlayLatency,
	OverlayJitter,
	OverlayLoss,
	OverlayMetroLabels,
}

// KnownOverlay reports whether name is in the closed overlay set
func KnownOverlay(name string) bool {
	for _, n := range OverlayNames {
		if n == name {
			return true
		}
	}
	return false
}

// OverlaySet tracks which overlays are active
type OverlaySet struct {
	active map[string]bool
}

// NewOverlaySet creates a set with every overlay off
func NewOverlaySet() *OverlaySet {
	return &OverlaySet{active: make(map[string]bool)}
}

// Toggle flips one overlay and returns its new state. Unknown names are
// ignored and report false.
func (o *OverlaySet) Toggle(name string) bool {
	if !KnownOverlay(name) {
		return false
	}
	o.active[name] = !o.active[name]
	if !o.active[name] {
		delete(o.active, name)
	}
	return o.active[name]
}

// Disable turns one overlay off
func (o *OverlaySet) Disable(name string) {
	delete(o.active, name)
}

// IsActive reports whether the overlay is on
func (o *OverlaySet) IsActive(name string) bool {
	return o.active[name]
}

// AnyActive reports whether at least one overlay is on
func (o *OverlaySet) AnyActive() bool {
	return len(o.active) > 0
}

// Active returns a copy of the active overlay names
func (o *OverlaySet) Active() map[string]bool {
	out := make(map[string]bool, len(o.active))
	for name := range o.active {
		out[name] = true
	}
	return out
}
