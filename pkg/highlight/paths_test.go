package highlight

import (
	"reflect"
	"testing"

	"github.com/meridianlabs/topoview/pkg/backend"
	"github.com/meridianlabs/topoview/pkg/topology"
)

func fixtureSnapshot() *topology.Snapshot {
	devices := []topology.Device{
		{PK: "A", Code: "a", Status: topology.DeviceStatusActivated},
		{PK: "B", Code: "b", Status: topology.DeviceStatusActivated},
		{PK: "C", Code: "c", Status: topology.DeviceStatusActivated},
	}
	links := []topology.Link{
		{PK: "l-ab", SideAPK: "A", SideZPK: "B"},
		{PK: "l-bc", SideAPK: "C", SideZPK: "B"}, // reversed on purpose
	}
	return topology.NewSnapshot(nil, devices, links, nil)
}

func pathOf(pks ...string) backend.Path {
	hops := make([]backend.Hop, len(pks))
	for i, pk := range pks {
		hops[i] = backend.Hop{DevicePK: pk}
	}
	return backend.Path{Hops: hops, HopCount: len(pks)}
}

func TestSinglePathAssignsDevicesAndLink(t *testing.T) {
	snap := fixtureSnapshot()
	result := &backend.PathResult{From: "A", To: "B", Paths: []backend.Path{pathOf("A", "B")}}

	a := BuildPathAssignment(snap, result, 0)

	if !reflect.DeepEqual(a.Devices["A"], []int{0}) {
		t.Errorf("device A indices = %v, want [0]", a.Devices["A"])
	}
	if !reflect.DeepEqual(a.Devices["B"], []int{0}) {
		t.Errorf("device B indices = %v, want [0]", a.Devices["B"])
	}
	if !reflect.DeepEqual(a.Links["l-ab"], []int{0}) {
		t.Errorf("link l-ab indices = %v, want [0]", a.Links["l-ab"])
	}
	if a.PathCount != 1 {
		t.Errorf("PathCount = %d, want 1", a.PathCount)
	}
}

func TestEveryHopGetsNonEmptyIndexList(t *testing.T) {
	snap := fixtureSnapshot()
	result := &backend.PathResult{Paths: []backend.Path{
		pathOf("A", "B", "C"),
		pathOf("A", "C"),
	}}

	a := BuildPathAssignment(snap, result, 0)

	for _, path := range result.Paths {
		for _, hop := range path.Hops {
			if len(a.Devices[hop.DevicePK]) == 0 {
				t.Errorf("hop device %s has empty index list", hop.DevicePK)
			}
		}
	}
}

func TestEdgeCreditedEitherOrientation(t *testing.T) {
	snap := fixtureSnapshot()
	// l-bc is stored C->B; the path traverses B->C
	result := &backend.PathResult{Paths: []backend.Path{pathOf("A", "B", "C")}}

	a := BuildPathAssignment(snap, result, 0)

	if !reflect.DeepEqual(a.Links["l-bc"], []int{0}) {
		t.Errorf("link l-bc indices = %v, want [0]", a.Links["l-bc"])
	}
}

func TestSharedEntityCollectsIndicesInFirstAppearanceOrder(t *testing.T) {
	snap := fixtureSnapshot()
	result := &backend.PathResult{Paths: []backend.Path{
		pathOf("A", "B"),
		pathOf("A", "B", "C"),
		pathOf("A", "C"),
	}}

	a := BuildPathAssignment(snap, result, 0)

	if !reflect.DeepEqual(a.Devices["A"], []int{0, 1, 2}) {
		t.Errorf("device A indices = %v, want [0 1 2]", a.Devices["A"])
	}
	if !reflect.DeepEqual(a.Devices["B"], []int{0, 1}) {
		t.Errorf("device B indices = %v, want [0 1]", a.Devices["B"])
	}
	if !reflect.DeepEqual(a.Links["l-ab"], []int{0, 1}) {
		t.Errorf("link l-ab indices = %v, want [0 1]", a.Links["l-ab"])
	}
}

func TestEdgeNotCreditedTwiceToSamePath(t *testing.T) {
	snap := fixtureSnapshot()
	// The A-B pair recurs within a single path
	result := &backend.PathResult{Paths: []backend.Path{pathOf("A", "B", "A", "B")}}

	a := BuildPathAssignment(snap, result, 0)

	if !reflect.DeepEqual(a.Links["l-ab"], []int{0}) {
		t.Errorf("link l-ab indices = %v, want [0] (first match wins)", a.Links["l-ab"])
	}
	if !reflect.DeepEqual(a.Devices["A"], []int{0}) {
		t.Errorf("device A indices = %v, want [0]", a.Devices["A"])
	}
}

func TestUnresolvableEdgeSkipped(t *testing.T) {
	snap := fixtureSnapshot()
	// No link exists between A and C
	result := &backend.PathResult{Paths: []backend.Path{pathOf("A", "C")}}

	a := BuildPathAssignment(snap, result, 0)

	if len(a.Links) != 0 {
		t.Errorf("expected no link assignments, got %v", a.Links)
	}
	// Devices still tagged
	if len(a.Devices["A"]) == 0 || len(a.Devices["C"]) == 0 {
		t.Error("hop devices should still carry indices")
	}
}

func TestSelectedIndexClamped(t *testing.T) {
	snap := fixtureSnapshot()
	result := &backend.PathResult{Paths: []backend.Path{pathOf("A", "B")}}

	a := BuildPathAssignment(snap, result, 5)
	if a.SelectedIndex != 0 {
		t.Errorf("out-of-range selected index should clamp to 0, got %d", a.SelectedIndex)
	}

	a = BuildPathAssignment(snap, result, -1)
	if a.SelectedIndex != 0 {
		t.Errorf("negative selected index should clamp to 0, got %d", a.SelectedIndex)
	}
}

func TestNilResultYieldsEmptyAssignment(t *testing.T) {
	a := BuildPathAssignment(fixtureSnapshot(), nil, 0)
	if len(a.Devices) != 0 || len(a.Links) != 0 || a.PathCount != 0 {
		t.Errorf("expected empty assignment, got %+v", a)
	}
}

func TestPaletteCycling(t *testing.T) {
	cases := []struct {
		index int
		want  int
	}{
		{0, 0},
		{1, 1},
		{5, 5},
		{6, 0},
		{7, 1},
		{13, 1},
		{-3, 0},
	}
	for _, c := range cases {
		if got := PaletteIndex(c.index); got != c.want {
			t.Errorf("PaletteIndex(%d) = %d, want %d", c.index, got, c.want)
		}
	}

	// Deterministic across calls
	if PaletteColor(8) != PaletteColor(8) || PaletteColor(8) != Palette[2] {
		t.Error("PaletteColor must be stable and cycle by modulo")
	}
}

func TestMetroPathAssignment(t *testing.T) {
	snap := fixtureSnapshot()
	result := &backend.MetroPathResult{
		FromMetro: "nyc",
		ToMetro:   "lon",
		Paths: []backend.MetroPath{
			{Hops: []backend.MetroHop{
				{DevicePK: "A", MetroPK: "m1"},
				{DevicePK: "B", MetroPK: "m2"},
			}, TotalHops: 2},
		},
	}

	a := BuildMetroPathAssignment(snap, result, 0)

	if !reflect.DeepEqual(a.Devices["A"], []int{0}) {
		t.Errorf("device A indices = %v, want [0]", a.Devices["A"])
	}
	if !reflect.DeepEqual(a.Metros["m1"], []int{0}) {
		t.Errorf("metro m1 indices = %v, want [0]", a.Metros["m1"])
	}
	if !reflect.DeepEqual(a.Metros["m2"], []int{0}) {
		t.Errorf("metro m2 indices = %v, want [0]", a.Metros["m2"])
	}
	if !reflect.DeepEqual(a.Links["l-ab"], []int{0}) {
		t.Errorf("link l-ab indices = %v, want [0]", a.Links["l-ab"])
	}
}
