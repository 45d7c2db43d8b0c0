package highlight

import (
	"testing"

	"github.com/meridianlabs/topoview/pkg/backend"
)

func TestRemovalAssignment(t *testing.T) {
	result := &backend.RemovalResult{
		SourcePK: "A",
		TargetPK: "B",
		DisconnectedDevices: []backend.ImpactDevice{
			{DevicePK: "D"},
		},
		AffectedPaths: []backend.AffectedPath{
			{FromPK: "A", ToPK: "C", HasAlternate: true, BeforeHops: 2, AfterHops: 3},
			{FromPK: "A", ToPK: "D", HasAlternate: false},
		},
		CausesPartition: true,
	}

	a := BuildRemovalAssignment(result)

	if !a.Disconnected["D"] {
		t.Error("expected D disconnected")
	}
	if !a.Rerouted["A"] || !a.Rerouted["C"] {
		t.Error("expected A and C rerouted")
	}
	// Pair without alternate joins the disconnected set
	if !a.Disconnected["A"] {
		t.Error("expected A disconnected via no-alternate pair")
	}
	if a.Improved["A"] || len(a.RedundancyGained) != 0 {
		t.Error("removal result must not populate addition categories")
	}
}

func TestAdditionAssignment(t *testing.T) {
	result := &backend.AdditionResult{
		SourcePK: "A",
		TargetPK: "E",
		ImprovedPaths: []backend.ImprovedPath{
			{FromPK: "A", ToPK: "C", HopReduction: 1},
		},
		RedundancyGains: []backend.RedundancyGain{
			{DevicePK: "E", OldDegree: 1, NewDegree: 2, WasLeaf: true},
		},
	}

	a := BuildAdditionAssignment(result)

	if !a.Improved["A"] || !a.Improved["C"] {
		t.Error("expected improved pair endpoints tagged")
	}
	if !a.RedundancyGained["E"] {
		t.Error("expected redundancy gain on E")
	}
	if len(a.Disconnected) != 0 || len(a.Rerouted) != 0 {
		t.Error("addition result must not populate removal categories")
	}
}

func TestImpactAssignment(t *testing.T) {
	result := &backend.ImpactResult{
		DevicePKs: []string{"A"},
		UnreachableDevices: []backend.ImpactDevice{
			{DevicePK: "B"},
		},
		AffectedPaths: []backend.ImpactPath{
			{FromPK: "C", ToPK: "D", Status: backend.PathStatusRerouted},
			{FromPK: "C", ToPK: "E", Status: backend.PathStatusDegraded},
			{FromPK: "D", ToPK: "F", Status: backend.PathStatusDisconnected},
		},
	}

	a := BuildImpactAssignment(result)

	if !a.Disconnected["B"] {
		t.Error("expected unreachable device B disconnected")
	}
	if !a.Rerouted["C"] || !a.Rerouted["D"] {
		t.Error("expected rerouted pair tagged")
	}
	// Degraded counts as rerouted
	if !a.Rerouted["E"] {
		t.Error("expected degraded endpoint E tagged rerouted")
	}
	if !a.Disconnected["D"] || !a.Disconnected["F"] {
		t.Error("expected disconnected pair endpoints tagged")
	}
}

func TestNilResultsYieldEmptyAssignments(t *testing.T) {
	if a := BuildRemovalAssignment(nil); len(a.Disconnected) != 0 {
		t.Error("nil removal result should yield empty assignment")
	}
	if a := BuildAdditionAssignment(nil); len(a.Improved) != 0 {
		t.Error("nil addition result should yield empty assignment")
	}
	if a := BuildImpactAssignment(nil); len(a.Disconnected) != 0 {
		t.Error("nil impact result should yield empty assignment")
	}
}

func TestCandidateTrackedSeparately(t *testing.T) {
	a := NewWhatIfAssignment()
	a.CandidateLinks["l1"] = true
	a.CandidateDevices["A"] = true
	a.CandidateDevices["B"] = true

	// Candidates persist regardless of result categories
	if !a.CandidateLinks["l1"] || len(a.Disconnected) != 0 {
		t.Error("candidate tracking must be independent of result sets")
	}
}
