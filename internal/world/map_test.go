package world

import (
	"errors"
	"testing"
)

func TestNewMapFlatnessAndWater(t *testing.T) {
	heights := [][]int{
		{0, 0, 2},
		{0, 0, 2},
		{1, 1, 2},
	}
	m := NewMap(heights, 0)
	if m.Rows != 2 || m.Cols != 2 {
		t.Fatalf("size: got %dx%d want 2x2", m.Rows, m.Cols)
	}
	if !m.At(0, 0).IsFlat {
		t.Fatalf("tile (0,0) should be flat")
	}
	if m.At(0, 1).IsFlat {
		t.Fatalf("tile (0,1) spans heights 0 and 2, should not be flat")
	}
	if got := m.At(0, 0).Terrain; got != TerrainWater {
		t.Fatalf("tile (0,0) terrain: got %s want Water", TerrainName(got))
	}
	if got := m.At(1, 0).Terrain; got != TerrainPlain {
		t.Fatalf("tile (1,0) terrain: got %s want Plain", TerrainName(got))
	}
}

func TestAtOutOfBounds(t *testing.T) {
	m := NewFlatMap(3, 4)
	if m.At(-1, 0) != nil || m.At(0, 4) != nil || m.At(3, 0) != nil {
		t.Fatalf("out of bounds lookups must return nil")
	}
	if m.At(2, 3) == nil {
		t.Fatalf("corner tile should exist")
	}
	if got := len(m.Neighbors4(Coord{0, 0})); got != 2 {
		t.Fatalf("corner neighbours: got %d want 2", got)
	}
	if got := len(m.Neighbors4(Coord{1, 1})); got != 4 {
		t.Fatalf("inner neighbours: got %d want 4", got)
	}
}

func TestAddBuildingClaimsFootprint(t *testing.T) {
	m := NewFlatMap(5, 5)
	bp := Blueprints[BlueprintCoalPlant]
	b := m.NewBuilding(bp, Coord{1, 1})
	if err := m.AddBuilding(b); err != nil {
		t.Fatalf("AddBuilding: %v", err)
	}
	for _, c := range []Coord{{1, 1}, {1, 2}, {2, 1}, {2, 2}} {
		if got := m.Tile(c).Building; got != b.ID {
			t.Fatalf("tile %v building: got %d want %d", c, got, b.ID)
		}
	}
	if m.Tile(Coord{3, 3}).Building != NoBuilding {
		t.Fatalf("tile outside footprint claimed")
	}
}

func TestAddBuildingRejectsOverlapWithoutSideEffects(t *testing.T) {
	m := NewFlatMap(5, 5)
	first := m.NewBuilding(Blueprints[BlueprintWindTurbine], Coord{2, 2})
	if err := m.AddBuilding(first); err != nil {
		t.Fatalf("AddBuilding: %v", err)
	}

	plant := m.NewBuilding(Blueprints[BlueprintCoalPlant], Coord{1, 1})
	err := m.AddBuilding(plant)
	if !errors.Is(err, ErrOccupied) {
		t.Fatalf("overlap: got %v want ErrOccupied", err)
	}
	if m.Tile(Coord{1, 1}).Building != NoBuilding {
		t.Fatalf("failed add left a back-reference behind")
	}
	if m.Buildings.Len() != 1 {
		t.Fatalf("registry size: got %d want 1", m.Buildings.Len())
	}
}

func TestAddBuildingOutOfBounds(t *testing.T) {
	m := NewFlatMap(3, 3)
	b := m.NewBuilding(Blueprints[BlueprintCoalPlant], Coord{2, 2})
	if err := m.AddBuilding(b); !errors.Is(err, ErrOutOfBounds) {
		t.Fatalf("got %v want ErrOutOfBounds", err)
	}
}

func TestRemoveBuildingClearsEveryTile(t *testing.T) {
	m := NewFlatMap(4, 4)
	b := m.NewBuilding(Blueprints[BlueprintCoalPlant], Coord{0, 0})
	if err := m.AddBuilding(b); err != nil {
		t.Fatalf("AddBuilding: %v", err)
	}
	if !m.RemoveBuilding(b.ID) {
		t.Fatalf("RemoveBuilding returned false")
	}
	for r := 0; r < 2; r++ {
		for c := 0; c < 2; c++ {
			if m.At(r, c).Building != NoBuilding {
				t.Fatalf("tile (%d,%d) still references removed building", r, c)
			}
		}
	}
	if _, ok := m.Buildings.Get(b.ID); ok {
		t.Fatalf("building still registered")
	}
	if m.RemoveBuilding(b.ID) {
		t.Fatalf("second removal should be a no-op")
	}
}

func TestIDsAreNeverReused(t *testing.T) {
	m := NewFlatMap(3, 3)
	a := m.NewBuilding(Blueprints[BlueprintPylon], Coord{0, 0})
	if err := m.AddBuilding(a); err != nil {
		t.Fatalf("AddBuilding: %v", err)
	}
	m.RemoveBuilding(a.ID)
	b := m.NewBuilding(Blueprints[BlueprintPylon], Coord{0, 0})
	if b.ID == a.ID {
		t.Fatalf("id %d handed out twice", a.ID)
	}
	m.IDs.SetNext(1)
	if got := m.IDs.Peek(); got <= b.ID {
		t.Fatalf("allocator moved backwards to %d", got)
	}
}

func TestRegistryInsertionOrder(t *testing.T) {
	m := NewFlatMap(1, 5)
	var want []BuildingID
	for c := 0; c < 5; c++ {
		b := m.NewBuilding(Blueprints[BlueprintPylon], Coord{0, c})
		if err := m.AddBuilding(b); err != nil {
			t.Fatalf("AddBuilding: %v", err)
		}
		want = append(want, b.ID)
	}
	m.RemoveBuilding(want[2])
	want = append(want[:2], want[3:]...)

	var got []BuildingID
	m.Buildings.Each(func(b *Building) { got = append(got, b.ID) })
	if len(got) != len(want) {
		t.Fatalf("order: got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order: got %v want %v", got, want)
		}
	}
}

func TestSetZoneRemovesIncompatibleBuilding(t *testing.T) {
	m := NewFlatMap(3, 3)
	c := Coord{1, 1}
	if err := m.SetZone(c, ZoneLightResidential); err != nil {
		t.Fatalf("SetZone: %v", err)
	}
	b := m.NewBuilding(Blueprints[BlueprintCottage], c)
	if err := m.AddBuilding(b); err != nil {
		t.Fatalf("AddBuilding: %v", err)
	}
	if err := m.SetZone(c, ZoneLightIndustrial); err != nil {
		t.Fatalf("SetZone: %v", err)
	}
	if m.Tile(c).Building != NoBuilding {
		t.Fatalf("cottage should be removed when rezoned industrial")
	}
	if err := m.SetZone(Coord{9, 9}, ZoneRoad); !errors.Is(err, ErrOutOfBounds) {
		t.Fatalf("got %v want ErrOutOfBounds", err)
	}
}

func TestConductivity(t *testing.T) {
	m := NewFlatMap(1, 4)
	line := m.At(0, 0)
	line.Zone = ZonePowerLine

	road := m.At(0, 1)
	road.Zone = ZoneRoad
	road.Elevated = ElevatedPowerLine

	empty := m.At(0, 2)
	empty.Zone = ZoneLightResidential

	occupied := m.At(0, 3)
	occupied.Zone = ZoneLightResidential
	occupied.Building = 7

	if !line.IsConductive() || !road.IsConductive() || !occupied.IsConductive() {
		t.Fatalf("power lines and occupied tiles must conduct")
	}
	if empty.IsConductive() {
		t.Fatalf("empty zoned tile must not conduct")
	}
	road.Elevated = ElevatedNone
	road.Building = 8
	if road.IsConductive() {
		t.Fatalf("road tile without a line must not conduct")
	}
}
