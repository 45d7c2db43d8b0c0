package explore

import (
	"net/url"

	"github.com/meridianlabs/topoview/pkg/backend"
	"github.com/meridianlabs/topoview/pkg/logging"
	"github.com/meridianlabs/topoview/pkg/topology"
	"github.com/meridianlabs/topoview/pkg/urlstate"
)

// Restoration outcomes reported to Metrics
const (
	RestoreApplied    = "applied"
	RestoreEmpty      = "empty"
	RestoreDropped    = "dropped"
	RestoreSuperseded = "superseded"
)

// maxRestoreMisses is how many topology snapshots may fail to resolve
// the pending query's identifiers before restoration gives up. A miss is
// only counted against a snapshot, so a session created before the first
// inventory load waits indefinitely without burning attempts.
const maxRestoreMisses = 5

// attemptRestoreLocked tries to apply the pending query. The query wins
// over current state, but only once every identifier it names resolves
// against the inventory; until then the attempt defers and OnInventory
// retries it. Identifiers that stay unresolved across several snapshots
// are assumed gone from the topology and the query is dropped silently,
// leaving a clean explore session.
func (s *Session) attemptRestoreLocked() {
	values, err := url.ParseQuery(s.pendingQuery)
	if err != nil {
		logging.Debug("unparseable state query, starting clean",
			"session", s.id, "error", err)
		s.finishRestoreLocked(RestoreDropped, values)
		return
	}
	st := urlstate.Decode(values)

	snap := s.cfg.Inventory.Current()
	if snap == nil {
		return
	}

	if !restorable(st, snap) {
		s.restoreMisses++
		if s.restoreMisses < maxRestoreMisses {
			logging.Debug("state restoration deferred",
				"session", s.id, "misses", s.restoreMisses, "mode", st.Mode)
			return
		}
		logging.Warn("dropping state query with unresolvable identifiers",
			"session", s.id, "query", s.pendingQuery)
		s.finishRestoreLocked(RestoreDropped, values)
		return
	}

	s.applyRestoreLocked(st, snap)
	logging.Debug("state restored from query",
		"session", s.id, "mode", st.Mode)
	s.finishRestoreLocked(RestoreApplied, values)
}

// finishRestoreLocked ends the restoration phase. The parsed query stays
// as the diff baseline, so the first state change after restoration
// rewrites the address bar to canonical form through minimal edits.
func (s *Session) finishRestoreLocked(outcome string, baseline url.Values) {
	if baseline == nil {
		baseline = url.Values{}
	}
	s.params = baseline
	s.urlChanges = nil
	s.restorationDone = true
	s.pendingQuery = ""
	s.restoreMisses = 0
	s.cfg.Metrics.RestorationOutcome(outcome)
}

// cancelRestoreLocked abandons a pending restoration because the user
// started interacting first
func (s *Session) cancelRestoreLocked() {
	logging.Debug("pending state query superseded by user input", "session", s.id)
	s.finishRestoreLocked(RestoreSuperseded, nil)
}

// restorable reports whether every identifier the decoded state names
// resolves against the snapshot, with the same eligibility rules clicks
// follow.
func restorable(st urlstate.State, snap *topology.Snapshot) bool {
	switch st.Mode {
	case urlstate.ModePath:
		return devicesRestorable(snap, st.PathSource, st.PathTarget)

	case urlstate.ModeMetroPath:
		for _, pk := range []string{st.MetroSource, st.MetroTarget} {
			if pk == "" {
				continue
			}
			if _, ok := snap.MetroByPK(pk); !ok {
				return false
			}
		}
		return st.Selection.IsZero() || snap.HasEntity(st.Selection)

	case urlstate.ModeRemoval:
		if st.RemovalLink != "" {
			_, ok := snap.LinkByPK(st.RemovalLink)
			return ok
		}
		return snap.HasDevices(st.RemovalEdgeA, st.RemovalEdgeZ)

	case urlstate.ModeAddition:
		return devicesRestorable(snap, st.AdditionSource, st.AdditionTarget)

	case urlstate.ModeImpact:
		return snap.HasDevices(st.ImpactDevices...)

	default: // explore
		return st.Selection.IsZero() || snap.HasEntity(st.Selection)
	}
}

func devicesRestorable(snap *topology.Snapshot, pks ...string) bool {
	for _, pk := range pks {
		if pk == "" {
			continue
		}
		d, ok := snap.DeviceByPK(pk)
		if !ok || !d.PathEligible() {
			return false
		}
	}
	return true
}

// applyRestoreLocked rebuilds session state from the decoded query. It
// reuses the ordinary transition path, then assigns the restored inputs
// and fires requests for any complete tuple.
func (s *Session) applyRestoreLocked(st urlstate.State, snap *topology.Snapshot) {
	s.selection = st.Selection

	switch st.Mode {
	case urlstate.ModePath:
		s.setModeLocked(ModePath)
		a := s.path
		a.Source = st.PathSource
		a.Target = st.PathTarget
		a.Metric = backend.Metric(st.PathMetric)
		a.ActiveIndex = st.PathIndex
		if a.Source != "" && a.Target != "" {
			s.firePathLocked()
		}

	case urlstate.ModeMetroPath:
		s.setModeLocked(ModeMetroPath)
		a := s.metro
		a.Source = st.MetroSource
		a.Target = st.MetroTarget
		a.ActiveIndex = st.PathIndex
		if a.Source != "" && a.Target != "" {
			s.fireMetroLocked()
		}

	case urlstate.ModeRemoval:
		s.setModeLocked(ModeRemoval)
		a := s.removal
		if st.RemovalLink != "" {
			link, _ := snap.LinkByPK(st.RemovalLink)
			a.LinkPK = link.PK
			a.EdgeA = link.SideAPK
			a.EdgeZ = link.SideZPK
		} else {
			a.EdgeA = st.RemovalEdgeA
			a.EdgeZ = st.RemovalEdgeZ
			if link, ok := snap.LinkBetween(a.EdgeA, a.EdgeZ); ok {
				a.LinkPK = link.PK
			}
		}
		a.Assignment = s.removalCandidateLocked()
		s.fireRemovalLocked()

	case urlstate.ModeAddition:
		s.setModeLocked(ModeAddition)
		a := s.addition
		a.Source = st.AdditionSource
		a.Target = st.AdditionTarget
		a.Cost = st.AdditionCost
		a.Assignment = s.additionCandidateLocked()
		if a.Source != "" && a.Target != "" {
			s.fireAdditionLocked()
		}

	case urlstate.ModeImpact:
		s.setModeLocked(ModeImpact)
		a := s.impact
		for _, pk := range st.ImpactDevices {
			a.Devices[pk] = true
		}
		s.impactChangedLocked()

	default:
		s.setModeLocked(ModeExplore)
		if !st.Selection.IsZero() {
			s.selection = st.Selection
			if s.cfg.OnFocus != nil {
				s.cfg.OnFocus(st.Selection)
			}
		}
	}
}
