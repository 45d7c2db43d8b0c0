// Package urlstate projects explorer state onto a flat query-string
// representation and back. The query string is a serialization surface
// only; it is never the source of truth during live interaction, so both
// directions are pure functions over snapshots of state.
package urlstate

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/meridianlabs/topoview/pkg/topology"
)

// Mode names as they appear on the wire
const (
	ModeExplore   = "explore"
	ModePath      = "path"
	ModeMetroPath = "metro-path"
	ModeRemoval   = "whatif-removal"
	ModeAddition  = "whatif-addition"
	ModeImpact    = "impact"
)

// Query parameter keys
const (
	KeyType           = "type"
	KeyID             = "id"
	KeyPathSource     = "path_source"
	KeyPathTarget     = "path_target"
	KeyPathMetric     = "path_metric"
	KeyPathIndex      = "path_index"
	KeyMetroSource    = "metro_source"
	KeyMetroTarget    = "metro_target"
	KeyRemovalLink    = "removal_link"
	KeyRemovalEdge    = "removal_edge"
	KeyAdditionSource = "addition_source"
	KeyAdditionTarget = "addition_target"
	KeyAdditionCost   = "addition_cost"
	KeyImpactDevices  = "impact_devices"
)

// Defaults elided from the query string
const (
	DefaultMetric       = "hops"
	DefaultAdditionCost = 1000
)

// edgeSeparator joins the device pair in removal_edge values
const edgeSeparator = "->"

// State is the flat projection of mode, working state, and selection that
// round-trips through the query string. Empty fields are absent keys.
type State struct {
	Mode      string
	Selection topology.EntityRef

	PathSource string
	PathTarget string
	PathMetric string // "hops" (default, elided) or "latency"; path mode only
	PathIndex  int    // selected alternate, elided when 0; shared with metro-path

	MetroSource string
	MetroTarget string

	RemovalLink  string // link pk form
	RemovalEdgeA string // device pair form
	RemovalEdgeZ string

	AdditionSource string
	AdditionTarget string
	AdditionCost   uint32 // elided when DefaultAdditionCost

	ImpactDevices []string
}

// Encode projects the state onto query parameters. Generic selection is
// emitted only in explore and metro-path; the other modes own dedicated
// parameters and keep type/id absent.
func Encode(s State) url.Values {
	v := url.Values{}

	switch s.Mode {
	case ModePath:
		setIf(v, KeyPathSource, s.PathSource)
		setIf(v, KeyPathTarget, s.PathTarget)
		if s.PathMetric != "" && s.PathMetric != DefaultMetric {
			v.Set(KeyPathMetric, s.PathMetric)
		}
		if s.PathIndex > 0 {
			v.Set(KeyPathIndex, strconv.Itoa(s.PathIndex))
		}

	case ModeMetroPath:
		setIf(v, KeyMetroSource, s.MetroSource)
		setIf(v, KeyMetroTarget, s.MetroTarget)
		if s.PathIndex > 0 {
			v.Set(KeyPathIndex, strconv.Itoa(s.PathIndex))
		}
		encodeSelection(v, s.Selection)

	case ModeRemoval:
		if s.RemovalLink != "" {
			v.Set(KeyRemovalLink, s.RemovalLink)
		} else if s.RemovalEdgeA != "" && s.RemovalEdgeZ != "" {
			v.Set(KeyRemovalEdge, s.RemovalEdgeA+edgeSeparator+s.RemovalEdgeZ)
		}

	case ModeAddition:
		setIf(v, KeyAdditionSource, s.AdditionSource)
		setIf(v, KeyAdditionTarget, s.AdditionTarget)
		if s.AdditionCost != 0 && s.AdditionCost != DefaultAdditionCost {
			v.Set(KeyAdditionCost, strconv.FormatUint(uint64(s.AdditionCost), 10))
		}

	case ModeImpact:
		if len(s.ImpactDevices) > 0 {
			v.Set(KeyImpactDevices, strings.Join(s.ImpactDevices, ","))
		}

	default: // explore
		encodeSelection(v, s.Selection)
	}

	return v
}

// Decode reads query parameters into a State. Presence of any
// mode-specific parameter implies that mode; when parameters for several
// modes appear the precedence is path, metro-path, removal, addition,
// impact. Malformed values fall back to defaults rather than erroring.
func Decode(v url.Values) State {
	s := State{Mode: ModeExplore}

	switch {
	case v.Get(KeyPathSource) != "" || v.Get(KeyPathTarget) != "":
		s.Mode = ModePath
		s.PathSource = v.Get(KeyPathSource)
		s.PathTarget = v.Get(KeyPathTarget)
		s.PathMetric = decodeMetric(v.Get(KeyPathMetric))
		s.PathIndex = decodeIndex(v.Get(KeyPathIndex))

	case v.Get(KeyMetroSource) != "" || v.Get(KeyMetroTarget) != "":
		s.Mode = ModeMetroPath
		s.MetroSource = v.Get(KeyMetroSource)
		s.MetroTarget = v.Get(KeyMetroTarget)
		s.PathIndex = decodeIndex(v.Get(KeyPathIndex))
		s.Selection = decodeSelection(v)

	case v.Get(KeyRemovalLink) != "" || v.Get(KeyRemovalEdge) != "":
		s.Mode = ModeRemoval
		s.RemovalLink = v.Get(KeyRemovalLink)
		if s.RemovalLink == "" {
			if a, z, ok := strings.Cut(v.Get(KeyRemovalEdge), edgeSeparator); ok && a != "" && z != "" {
				s.RemovalEdgeA, s.RemovalEdgeZ = a, z
			} else {
				// Unusable candidate; fall back to explore
				s.Mode = ModeExplore
				s.Selection = decodeSelection(v)
			}
		}

	case v.Get(KeyAdditionSource) != "" || v.Get(KeyAdditionTarget) != "":
		s.Mode = ModeAddition
		s.AdditionSource = v.Get(KeyAdditionSource)
		s.AdditionTarget = v.Get(KeyAdditionTarget)
		s.AdditionCost = decodeCost(v.Get(KeyAdditionCost))

	case v.Get(KeyImpactDevices) != "":
		s.Mode = ModeImpact
		for _, pk := range strings.Split(v.Get(KeyImpactDevices), ",") {
			if pk = strings.TrimSpace(pk); pk != "" {
				s.ImpactDevices = append(s.ImpactDevices, pk)
			}
		}
		if len(s.ImpactDevices) == 0 {
			s.Mode = ModeExplore
			s.Selection = decodeSelection(v)
		}

	default:
		s.Selection = decodeSelection(v)
	}

	return s
}

func encodeSelection(v url.Values, ref topology.EntityRef) {
	if ref.IsZero() {
		return
	}
	v.Set(KeyType, string(ref.Type))
	v.Set(KeyID, ref.ID)
}

func decodeSelection(v url.Values) topology.EntityRef {
	t := topology.EntityType(v.Get(KeyType))
	id := v.Get(KeyID)
	if !t.Valid() || id == "" {
		return topology.EntityRef{}
	}
	return topology.EntityRef{Type: t, ID: id}
}

func decodeMetric(s string) string {
	if s == "latency" {
		return s
	}
	return DefaultMetric
}

func decodeIndex(s string) int {
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func decodeCost(s string) uint32 {
	if s == "" {
		return DefaultAdditionCost
	}
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil || n == 0 {
		return DefaultAdditionCost
	}
	return uint32(n)
}

func setIf(v url.Values, key, value string) {
	if value != "" {
		v.Set(key, value)
	}
}
