package explore

import (
	"errors"

	"github.com/meridianlabs/topoview/pkg/topology"
)

// Event kinds accepted by Session.Apply
const (
	EventClick           = "click"
	EventSelect          = "select"
	EventSetMode         = "set_mode"
	EventToggleOverlay   = "toggle_overlay"
	EventSetPathMetric   = "set_path_metric"
	EventSetActivePath   = "set_active_path"
	EventReverse         = "reverse"
	EventSetAdditionCost = "set_addition_cost"
	EventDismissPanel    = "dismiss_panel"
	EventNavigate        = "navigate"
)

var (
	// ErrUnknownEvent marks an event kind outside the accepted set
	ErrUnknownEvent = errors.New("unknown event kind")
	// ErrUnknownMode marks a set_mode event with an invalid mode name
	ErrUnknownMode = errors.New("unknown mode")
	// ErrSessionClosed marks use of an evicted session
	ErrSessionClosed = errors.New("session closed")
)

// Event is one discrete user or navigation action applied to a session.
// The fields used depend on Kind; the rest stay zero.
type Event struct {
	Kind string `json:"kind"`

	// click / select: the picked entity, nil for a background click or
	// an explicit deselect
	Entity *topology.EntityRef `json:"entity,omitempty"`

	// set_mode
	Mode string `json:"mode,omitempty"`

	// toggle_overlay
	Overlay string `json:"overlay,omitempty"`

	// set_path_metric: "hops" or "latency"
	Metric string `json:"metric,omitempty"`

	// set_active_path
	Index int `json:"index,omitempty"`

	// set_addition_cost
	Cost uint32 `json:"cost,omitempty"`

	// navigate: raw query string from an external navigation
	Query string `json:"query,omitempty"`
}
