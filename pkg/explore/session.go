package explore

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/meridianlabs/topoview/pkg/backend"
	"github.com/meridianlabs/topoview/pkg/highlight"
	"github.com/meridianlabs/topoview/pkg/logging"
	"github.com/meridianlabs/topoview/pkg/topology"
	"github.com/meridianlabs/topoview/pkg/urlstate"
)

// defaultRequestTimeout bounds each collaborator request fired by a session
const defaultRequestTimeout = 15 * time.Second

// Metrics receives engine counters. Implementations must be safe for
// concurrent use; a nil Metrics in Config is replaced with a no-op.
type Metrics interface {
	SessionEvent(kind string)
	StaleResponse()
	RestorationOutcome(outcome string)
}

type nopMetrics struct{}

func (nopMetrics) SessionEvent(string)       {}
func (nopMetrics) StaleResponse()            {}
func (nopMetrics) RestorationOutcome(string) {}

// Config wires a session to its collaborators. Backend and Inventory are
// required. OnState and OnFocus are invoked with the session lock held
// and must not call back into the session.
type Config struct {
	Backend   backend.Client
	Inventory *topology.Inventory

	// OnState receives every state snapshot after it is published,
	// including those produced by asynchronous result arrival.
	OnState func(*StateSnapshot)

	// OnFocus asks the rendering surface to center on an entity. Fired
	// once when restoration lands on an explore-mode selection.
	OnFocus func(topology.EntityRef)

	Metrics        Metrics
	RequestTimeout time.Duration
}

// Session is the interaction engine for one explorer client. All state
// changes go through Apply, OnInventory, or internal result completion;
// each runs under the session mutex, so observers always see a snapshot
// where exactly one mode is active and only its arena is populated.
type Session struct {
	id  string
	cfg Config

	mu sync.Mutex

	mode           Mode
	selection      topology.EntityRef
	overlays       *OverlaySet
	panelDismissed bool

	// Exactly one arena is non-nil outside explore mode, the one
	// matching mode. All are nil in explore.
	path     *pathArena
	metro    *metroArena
	removal  *removalArena
	addition *additionArena
	impact   *impactArena

	// params is the last query-string projection written out; diffs are
	// computed against it so the address bar gets minimal edits.
	params     url.Values
	urlChanges []urlstate.Change

	// Restoration state. Until restorationDone the pending query is the
	// source of truth and state is never projected back onto the URL.
	restorationDone bool
	pendingQuery    string
	restoreMisses   int

	seq        uint64
	lastAccess time.Time
	closed     bool
}

// NewSession creates a session, optionally restoring state from the query
// string the client arrived with. An empty query starts in explore mode
// with restoration already complete.
func NewSession(id string, cfg Config, initialQuery string) *Session {
	if cfg.Metrics == nil {
		cfg.Metrics = nopMetrics{}
	}
	s := &Session{
		id:         id,
		cfg:        cfg,
		mode:       ModeExplore,
		overlays:   NewOverlaySet(),
		params:     url.Values{},
		lastAccess: time.Now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if initialQuery == "" {
		s.restorationDone = true
		s.cfg.Metrics.RestorationOutcome(RestoreEmpty)
		return s
	}
	s.pendingQuery = initialQuery
	s.attemptRestoreLocked()
	s.syncURLLocked()
	return s
}

// ID returns the session identifier
func (s *Session) ID() string { return s.id }

// LastAccess returns the time of the last applied event
func (s *Session) LastAccess() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAccess
}

// Close marks the session evicted. Later Apply calls fail and in-flight
// results are dropped.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

// Snapshot returns the current published state
func (s *Session) Snapshot() *StateSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Apply runs one event through the engine and returns the resulting
// state. Unknown event kinds and unknown mode names are the only errors;
// every other invalid input degrades to a reset or an ignored click.
func (s *Session) Apply(ev Event) (*StateSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}
	s.lastAccess = time.Now()
	s.cfg.Metrics.SessionEvent(ev.Kind)

	// A user acting before a deferred restoration lands takes over the
	// session; the pending query is abandoned rather than applied on top
	// of their input later.
	if !s.restorationDone && ev.Kind != EventNavigate {
		s.cancelRestoreLocked()
	}

	switch ev.Kind {
	case EventClick:
		s.clickLocked(ev.Entity)
	case EventSelect:
		s.selectLocked(ev.Entity)
	case EventSetMode:
		mode, err := ParseMode(ev.Mode)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrUnknownMode, ev.Mode)
		}
		s.setModeLocked(mode)
	case EventToggleOverlay:
		s.overlays.Toggle(ev.Overlay)
	case EventSetPathMetric:
		s.setPathMetricLocked(ev.Metric)
	case EventSetActivePath:
		s.setActivePathLocked(ev.Index)
	case EventReverse:
		s.reverseLocked()
	case EventSetAdditionCost:
		s.setAdditionCostLocked(ev.Cost)
	case EventDismissPanel:
		s.panelDismissed = true
	case EventNavigate:
		s.navigateLocked(ev.Query)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, ev.Kind)
	}

	s.syncURLLocked()
	snap := s.snapshotLocked()
	s.publishLocked(snap)
	return snap, nil
}

// OnInventory is the inventory subscription hook. A new snapshot can
// resolve identifiers a pending restoration was waiting for.
func (s *Session) OnInventory(snap *topology.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if !s.restorationDone {
		s.attemptRestoreLocked()
		s.syncURLLocked()
	}
	s.publishLocked(s.snapshotLocked())
}

// setModeLocked performs a mode transition. Every arena is destroyed
// unconditionally first, so re-entering the current mode resets it the
// same as switching away and back. The new arena is seeded from the
// current selection where the mode can use it.
func (s *Session) setModeLocked(mode Mode) {
	s.path = nil
	s.metro = nil
	s.removal = nil
	s.addition = nil
	s.impact = nil
	s.mode = mode
	s.panelDismissed = false
	logging.Debug("mode transition", "session", s.id, "mode", mode)

	switch mode {
	case ModePath:
		s.path = newPathArena()
		if s.selection.Type == topology.EntityDevice && s.deviceEligibleLocked(s.selection.ID) {
			s.path.Source = s.selection.ID
		}
	case ModeMetroPath:
		s.metro = newMetroArena()
		if s.selection.Type == topology.EntityMetro {
			s.metro.Source = s.selection.ID
		}
	case ModeRemoval:
		s.removal = newRemovalArena()
	case ModeAddition:
		s.addition = newAdditionArena()
		if s.selection.Type == topology.EntityDevice && s.deviceEligibleLocked(s.selection.ID) {
			s.addition.Source = s.selection.ID
		}
	case ModeImpact:
		s.impact = newImpactArena()
		if s.selection.Type == topology.EntityDevice && s.deviceExistsLocked(s.selection.ID) {
			s.impact.Devices[s.selection.ID] = true
			s.impactChangedLocked()
		}
	}
}

// clickLocked handles a canvas click. The selection always tracks the
// click; the active mode additionally consumes it as input where the
// entity kind fits. Clicks that do not fit are ignored, never errors.
func (s *Session) clickLocked(entity *topology.EntityRef) {
	if entity == nil {
		s.selection = topology.EntityRef{}
		s.panelDismissed = false
		return
	}
	ref := *entity
	s.selection = ref
	s.panelDismissed = false

	switch s.mode {
	case ModePath:
		s.pathClickLocked(ref)
	case ModeMetroPath:
		s.metroClickLocked(ref)
	case ModeRemoval:
		s.removalClickLocked(ref)
	case ModeAddition:
		s.additionClickLocked(ref)
	case ModeImpact:
		s.impactClickLocked(ref)
	}
}

// selectLocked sets the selection without routing it into the mode. Used
// for programmatic focus, search results and restoration.
func (s *Session) selectLocked(entity *topology.EntityRef) {
	if entity == nil {
		s.selection = topology.EntityRef{}
	} else {
		s.selection = *entity
	}
	s.panelDismissed = false
}

func (s *Session) pathClickLocked(ref topology.EntityRef) {
	if ref.Type != topology.EntityDevice || !s.deviceEligibleLocked(ref.ID) {
		return
	}
	a := s.path
	switch {
	case a.Source == "":
		a.Source = ref.ID
		a.clearResult()
	case a.Target == "":
		if ref.ID == a.Source {
			return
		}
		a.Target = ref.ID
		a.clearResult()
		s.firePathLocked()
	default:
		// Both endpoints taken: start a fresh query from the clicked
		// device, keeping only the metric preference.
		metric := a.Metric
		s.path = newPathArena()
		s.path.Metric = metric
		s.path.Source = ref.ID
	}
}

func (s *Session) metroClickLocked(ref topology.EntityRef) {
	if ref.Type != topology.EntityMetro {
		return
	}
	a := s.metro
	switch {
	case a.Source == "":
		a.Source = ref.ID
		a.clearResult()
	case a.Target == "":
		if ref.ID == a.Source {
			return
		}
		a.Target = ref.ID
		a.clearResult()
		s.fireMetroLocked()
	default:
		s.metro = newMetroArena()
		s.metro.Source = ref.ID
	}
}

func (s *Session) removalClickLocked(ref topology.EntityRef) {
	if ref.Type != topology.EntityLink {
		return
	}
	snap := s.cfg.Inventory.Current()
	if snap == nil {
		return
	}
	link, ok := snap.LinkByPK(ref.ID)
	if !ok {
		return
	}
	a := s.removal
	a.LinkPK = link.PK
	a.EdgeA = link.SideAPK
	a.EdgeZ = link.SideZPK
	a.clearResult()
	a.Assignment = s.removalCandidateLocked()
	s.fireRemovalLocked()
}

func (s *Session) additionClickLocked(ref topology.EntityRef) {
	if ref.Type != topology.EntityDevice || !s.deviceEligibleLocked(ref.ID) {
		return
	}
	a := s.addition
	switch {
	case a.Source == "":
		a.Source = ref.ID
		a.clearResult()
		a.Assignment = s.additionCandidateLocked()
	case a.Target == "":
		if ref.ID == a.Source {
			return
		}
		a.Target = ref.ID
		a.clearResult()
		a.Assignment = s.additionCandidateLocked()
		s.fireAdditionLocked()
	default:
		cost := a.Cost
		s.addition = newAdditionArena()
		s.addition.Cost = cost
		s.addition.Source = ref.ID
		s.addition.Assignment = s.additionCandidateLocked()
	}
}

func (s *Session) impactClickLocked(ref topology.EntityRef) {
	if ref.Type != topology.EntityDevice || !s.deviceExistsLocked(ref.ID) {
		return
	}
	a := s.impact
	if a.Devices[ref.ID] {
		delete(a.Devices, ref.ID)
	} else {
		a.Devices[ref.ID] = true
	}
	s.impactChangedLocked()
}

// impactChangedLocked refreshes impact state after a membership change.
// An empty set fetches nothing; bumping the arena sequence orphans any
// response still in flight for the previous set.
func (s *Session) impactChangedLocked() {
	a := s.impact
	a.clearResult()
	if len(a.Devices) == 0 {
		a.seq = s.nextSeqLocked()
		return
	}
	a.Assignment = s.impactCandidateLocked()
	s.fireImpactLocked()
}

func (s *Session) setPathMetricLocked(raw string) {
	if s.mode != ModePath {
		return
	}
	metric := backend.Metric(raw)
	if !metric.Valid() {
		return
	}
	a := s.path
	if a.Metric == metric {
		return
	}
	a.Metric = metric
	if a.Source != "" && a.Target != "" {
		a.clearResult()
		s.firePathLocked()
	}
}

func (s *Session) setActivePathLocked(index int) {
	switch s.mode {
	case ModePath:
		a := s.path
		if a.Result == nil || a.Err != "" {
			return
		}
		a.ActiveIndex = clampIndex(index, len(a.Result.Paths))
		a.Assignment = highlight.BuildPathAssignment(s.cfg.Inventory.Current(), a.Result, a.ActiveIndex)
	case ModeMetroPath:
		a := s.metro
		if a.Result == nil || a.Err != "" {
			return
		}
		a.ActiveIndex = clampIndex(index, len(a.Result.Paths))
		a.Assignment = highlight.BuildMetroPathAssignment(s.cfg.Inventory.Current(), a.Result, a.ActiveIndex)
	}
}

// reverseLocked toggles the reverse-direction comparison in path mode.
// A second toggle drops it, in-flight or landed; highlights always
// follow the forward result.
func (s *Session) reverseLocked() {
	if s.mode != ModePath {
		return
	}
	a := s.path
	if a.Reverse != nil || a.reverseSeq != 0 {
		a.Reverse = nil
		a.reverseSeq = 0
		return
	}
	if a.Source == "" || a.Target == "" || a.Result == nil || a.Err != "" {
		return
	}
	seq := s.nextSeqLocked()
	a.reverseSeq = seq
	source, target, metric := a.Target, a.Source, a.Metric
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.requestTimeout())
		defer cancel()
		res, err := s.cfg.Backend.FindPaths(ctx, source, target, backend.DefaultMaxAlternates, metric)
		if err != nil {
			res = &backend.PathResult{From: source, To: target, Error: err.Error()}
		}
		s.completeReverse(seq, res)
	}()
}

func (s *Session) setAdditionCostLocked(cost uint32) {
	if s.mode != ModeAddition {
		return
	}
	if cost == 0 {
		cost = backend.DefaultAdditionCost
	}
	a := s.addition
	if a.Cost == cost {
		return
	}
	a.Cost = cost
	if a.Source != "" && a.Target != "" {
		a.clearResult()
		a.Assignment = s.additionCandidateLocked()
		s.fireAdditionLocked()
	}
}

// navigateLocked handles an external URL change, typically the browser's
// back or forward button. A query that already matches the session's own
// projection is an echo of our last write and is ignored; that is what
// keeps the state-URL-state loop from feeding back.
func (s *Session) navigateLocked(query string) {
	if sameQuery(query, s.params) {
		return
	}
	s.pendingQuery = query
	s.restorationDone = false
	s.restoreMisses = 0
	s.attemptRestoreLocked()
}

// Request dispatch. Each in-flight request carries the session sequence
// number it was fired under; a completion whose number no longer matches
// its arena lost the race to a newer input tuple and is dropped.

func (s *Session) nextSeqLocked() uint64 {
	s.seq++
	return s.seq
}

func (s *Session) requestTimeout() time.Duration {
	if s.cfg.RequestTimeout > 0 {
		return s.cfg.RequestTimeout
	}
	return defaultRequestTimeout
}

func (s *Session) firePathLocked() {
	a := s.path
	seq := s.nextSeqLocked()
	a.seq = seq
	source, target, metric := a.Source, a.Target, a.Metric
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.requestTimeout())
		defer cancel()
		res, err := s.cfg.Backend.FindPaths(ctx, source, target, backend.DefaultMaxAlternates, metric)
		s.completePath(seq, res, err)
	}()
}

func (s *Session) fireMetroLocked() {
	a := s.metro
	seq := s.nextSeqLocked()
	a.seq = seq
	source, target := a.Source, a.Target
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.requestTimeout())
		defer cancel()
		res, err := s.cfg.Backend.FindMetroPaths(ctx, source, target, backend.DefaultMaxAlternates)
		s.completeMetro(seq, res, err)
	}()
}

func (s *Session) fireRemovalLocked() {
	a := s.removal
	if !a.hasCandidate() {
		return
	}
	seq := s.nextSeqLocked()
	a.seq = seq
	edgeA, edgeZ := a.EdgeA, a.EdgeZ
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.requestTimeout())
		defer cancel()
		res, err := s.cfg.Backend.SimulateLinkRemoval(ctx, edgeA, edgeZ)
		s.completeRemoval(seq, res, err)
	}()
}

func (s *Session) fireAdditionLocked() {
	a := s.addition
	seq := s.nextSeqLocked()
	a.seq = seq
	source, target, cost := a.Source, a.Target, a.Cost
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.requestTimeout())
		defer cancel()
		res, err := s.cfg.Backend.SimulateLinkAddition(ctx, source, target, cost)
		s.completeAddition(seq, res, err)
	}()
}

func (s *Session) fireImpactLocked() {
	a := s.impact
	seq := s.nextSeqLocked()
	a.seq = seq
	devices := a.deviceList()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.requestTimeout())
		defer cancel()
		res, err := s.cfg.Backend.SimulateFailure(ctx, devices)
		s.completeImpact(seq, res, err)
	}()
}

func (s *Session) completePath(seq uint64, res *backend.PathResult, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.path
	if s.closed || s.mode != ModePath || a == nil || a.seq != seq {
		s.dropStaleLocked("find_paths", seq)
		return
	}
	switch {
	case err != nil:
		a.Result = nil
		a.Assignment = nil
		a.Err = err.Error()
	case res.Error != "":
		a.Result = res
		a.Assignment = nil
		a.Err = res.Error
	default:
		a.Result = res
		a.Err = ""
		a.ActiveIndex = clampIndex(a.ActiveIndex, len(res.Paths))
		a.Assignment = highlight.BuildPathAssignment(s.cfg.Inventory.Current(), res, a.ActiveIndex)
		if len(res.Paths) > 0 {
			s.nudgeTypeOverlaysLocked(&a.typesNudged)
		}
	}
	s.afterAsyncLocked()
}

func (s *Session) completeReverse(seq uint64, res *backend.PathResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.path
	if s.closed || s.mode != ModePath || a == nil || a.reverseSeq != seq {
		s.dropStaleLocked("find_paths_reverse", seq)
		return
	}
	a.Reverse = res
	s.afterAsyncLocked()
}

func (s *Session) completeMetro(seq uint64, res *backend.MetroPathResult, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.metro
	if s.closed || s.mode != ModeMetroPath || a == nil || a.seq != seq {
		s.dropStaleLocked("find_metro_paths", seq)
		return
	}
	switch {
	case err != nil:
		a.Result = nil
		a.Assignment = nil
		a.Err = err.Error()
	case res.Error != "":
		a.Result = res
		a.Assignment = nil
		a.Err = res.Error
	default:
		a.Result = res
		a.Err = ""
		a.ActiveIndex = clampIndex(a.ActiveIndex, len(res.Paths))
		a.Assignment = highlight.BuildMetroPathAssignment(s.cfg.Inventory.Current(), res, a.ActiveIndex)
		if len(res.Paths) > 0 {
			s.nudgeTypeOverlaysLocked(&a.typesNudged)
		}
	}
	s.afterAsyncLocked()
}

func (s *Session) completeRemoval(seq uint64, res *backend.RemovalResult, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.removal
	if s.closed || s.mode != ModeRemoval || a == nil || a.seq != seq {
		s.dropStaleLocked("simulate_link_removal", seq)
		return
	}
	switch {
	case err != nil:
		a.Result = nil
		a.Err = err.Error()
		a.Assignment = s.removalCandidateLocked()
	case res.Error != "":
		a.Result = res
		a.Err = res.Error
		a.Assignment = s.removalCandidateLocked()
	default:
		a.Result = res
		a.Err = ""
		asn := highlight.BuildRemovalAssignment(res)
		s.markRemovalCandidates(asn)
		a.Assignment = asn
	}
	s.afterAsyncLocked()
}

func (s *Session) completeAddition(seq uint64, res *backend.AdditionResult, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.addition
	if s.closed || s.mode != ModeAddition || a == nil || a.seq != seq {
		s.dropStaleLocked("simulate_link_addition", seq)
		return
	}
	switch {
	case err != nil:
		a.Result = nil
		a.Err = err.Error()
		a.Assignment = s.additionCandidateLocked()
	case res.Error != "":
		a.Result = res
		a.Err = res.Error
		a.Assignment = s.additionCandidateLocked()
	default:
		a.Result = res
		a.Err = ""
		asn := highlight.BuildAdditionAssignment(res)
		s.markAdditionCandidates(asn)
		a.Assignment = asn
	}
	s.afterAsyncLocked()
}

func (s *Session) completeImpact(seq uint64, res *backend.ImpactResult, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.impact
	if s.closed || s.mode != ModeImpact || a == nil || a.seq != seq {
		s.dropStaleLocked("simulate_failure", seq)
		return
	}
	switch {
	case err != nil:
		a.Result = nil
		a.Err = err.Error()
		a.Assignment = s.impactCandidateLocked()
	case res.Error != "":
		a.Result = res
		a.Err = res.Error
		a.Assignment = s.impactCandidateLocked()
	default:
		a.Result = res
		a.Err = ""
		asn := highlight.BuildImpactAssignment(res)
		s.markImpactCandidates(asn)
		a.Assignment = asn
	}
	s.afterAsyncLocked()
}

func (s *Session) dropStaleLocked(op string, seq uint64) {
	s.cfg.Metrics.StaleResponse()
	logging.Debug("dropping stale response", "session", s.id, "op", op, "seq", seq)
}

// afterAsyncLocked re-projects the URL and publishes after a completion
// mutated state outside an Apply call
func (s *Session) afterAsyncLocked() {
	s.syncURLLocked()
	s.publishLocked(s.snapshotLocked())
}

// nudgeTypeOverlaysLocked switches the type-coloring overlays off the
// first time a path result lands, so route colors stay readable. One
// shot per arena; the user can toggle them back on afterwards.
func (s *Session) nudgeTypeOverlaysLocked(nudged *bool) {
	if *nudged {
		return
	}
	*nudged = true
	s.overlays.Disable(OverlayDeviceType)
	s.overlays.Disable(OverlayLinkType)
}

// Candidate marking. Candidates stay highlighted while a simulation is
// loading or failed, so the picked entities never vanish from the map.

func (s *Session) removalCandidateLocked() *highlight.WhatIfAssignment {
	asn := highlight.NewWhatIfAssignment()
	s.markRemovalCandidates(asn)
	return asn
}

func (s *Session) markRemovalCandidates(asn *highlight.WhatIfAssignment) {
	a := s.removal
	if a.LinkPK != "" {
		asn.CandidateLinks[a.LinkPK] = true
	}
	if a.EdgeA != "" {
		asn.CandidateDevices[a.EdgeA] = true
	}
	if a.EdgeZ != "" {
		asn.CandidateDevices[a.EdgeZ] = true
	}
}

func (s *Session) additionCandidateLocked() *highlight.WhatIfAssignment {
	asn := highlight.NewWhatIfAssignment()
	s.markAdditionCandidates(asn)
	return asn
}

func (s *Session) markAdditionCandidates(asn *highlight.WhatIfAssignment) {
	a := s.addition
	if a.Source != "" {
		asn.CandidateDevices[a.Source] = true
	}
	if a.Target != "" {
		asn.CandidateDevices[a.Target] = true
	}
}

func (s *Session) impactCandidateLocked() *highlight.WhatIfAssignment {
	asn := highlight.NewWhatIfAssignment()
	s.markImpactCandidates(asn)
	return asn
}

func (s *Session) markImpactCandidates(asn *highlight.WhatIfAssignment) {
	for pk := range s.impact.Devices {
		asn.CandidateDevices[pk] = true
	}
}

// Snapshot assembly and URL projection

func (s *Session) snapshotLocked() *StateSnapshot {
	snap := &StateSnapshot{
		SessionID:        s.id,
		Mode:             s.mode,
		Overlays:         s.overlays.Active(),
		Panel:            derivePanel(s.mode, s.selection, s.overlays, s.panelDismissed),
		URLQuery:         s.params.Encode(),
		URLChanges:       s.urlChanges,
		InventoryVersion: s.inventoryVersionLocked(),
		RestorationDone:  s.restorationDone,
	}
	if !s.selection.IsZero() {
		ref := s.selection
		snap.Selection = &ref
	}

	switch s.mode {
	case ModePath:
		a := s.path
		snap.Path = &PathView{
			Source:      a.Source,
			Target:      a.Target,
			Metric:      a.Metric,
			ActiveIndex: a.ActiveIndex,
			Result:      a.Result,
			Reverse:     a.Reverse,
			Error:       a.Err,
			Assignment:  a.Assignment,
		}
	case ModeMetroPath:
		a := s.metro
		snap.MetroPath = &MetroPathView{
			Source:      a.Source,
			Target:      a.Target,
			ActiveIndex: a.ActiveIndex,
			Result:      a.Result,
			Error:       a.Err,
			Assignment:  a.Assignment,
		}
	case ModeRemoval:
		a := s.removal
		snap.Removal = &RemovalView{
			LinkPK:     a.LinkPK,
			EdgeA:      a.EdgeA,
			EdgeZ:      a.EdgeZ,
			Result:     a.Result,
			Error:      a.Err,
			Assignment: a.Assignment,
		}
	case ModeAddition:
		a := s.addition
		snap.Addition = &AdditionView{
			Source:     a.Source,
			Target:     a.Target,
			Cost:       a.Cost,
			Result:     a.Result,
			Error:      a.Err,
			Assignment: a.Assignment,
		}
	case ModeImpact:
		a := s.impact
		snap.Impact = &ImpactView{
			Devices:    a.deviceList(),
			Result:     a.Result,
			Error:      a.Err,
			Assignment: a.Assignment,
		}
	}
	return snap
}

func (s *Session) publishLocked(snap *StateSnapshot) {
	if s.cfg.OnState != nil {
		s.cfg.OnState(snap)
	}
}

// urlStateLocked projects session state onto the flat serialization form
func (s *Session) urlStateLocked() urlstate.State {
	st := urlstate.State{Mode: string(s.mode), Selection: s.selection}
	switch s.mode {
	case ModePath:
		a := s.path
		st.PathSource = a.Source
		st.PathTarget = a.Target
		st.PathMetric = string(a.Metric)
		st.PathIndex = a.ActiveIndex
	case ModeMetroPath:
		a := s.metro
		st.MetroSource = a.Source
		st.MetroTarget = a.Target
		st.PathIndex = a.ActiveIndex
	case ModeRemoval:
		a := s.removal
		st.RemovalLink = a.LinkPK
		st.RemovalEdgeA = a.EdgeA
		st.RemovalEdgeZ = a.EdgeZ
	case ModeAddition:
		a := s.addition
		st.AdditionSource = a.Source
		st.AdditionTarget = a.Target
		st.AdditionCost = a.Cost
	case ModeImpact:
		st.ImpactDevices = s.impact.deviceList()
	}
	return st
}

// syncURLLocked recomputes the query-string projection and the minimal
// edits that reach it. Gated until restoration completes: while the
// pending query is still being applied it is the source of truth, and
// writing half-restored state back would clobber it.
func (s *Session) syncURLLocked() {
	if !s.restorationDone {
		s.urlChanges = nil
		return
	}
	desired := urlstate.Encode(s.urlStateLocked())
	s.urlChanges = urlstate.Diff(s.params, desired)
	s.params = desired
}

func (s *Session) inventoryVersionLocked() uint64 {
	if snap := s.cfg.Inventory.Current(); snap != nil {
		return snap.Version
	}
	return 0
}

func (s *Session) deviceEligibleLocked(pk string) bool {
	snap := s.cfg.Inventory.Current()
	if snap == nil {
		return false
	}
	d, ok := snap.DeviceByPK(pk)
	return ok && d.PathEligible()
}

func (s *Session) deviceExistsLocked(pk string) bool {
	snap := s.cfg.Inventory.Current()
	return snap != nil && snap.HasDevices(pk)
}

func clampIndex(idx, n int) int {
	if n == 0 || idx < 0 {
		return 0
	}
	if idx >= n {
		return n - 1
	}
	return idx
}

// sameQuery reports whether raw parses to the same parameter set already
// held in params
func sameQuery(raw string, params url.Values) bool {
	v, err := url.ParseQuery(raw)
	if err != nil {
		return false
	}
	if len(v) != len(params) {
		return false
	}
	for key := range v {
		if v.Get(key) != params.Get(key) {
			return false
		}
	}
	return true
}
