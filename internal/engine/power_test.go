package engine

import (
	"testing"

	"github.com/talgya/gridcity/internal/world"
)

func testStation(capacity float64) *world.Blueprint {
	return &world.Blueprint{
		Key: "test_station", Name: "Test Station", Category: world.CategoryPowerPlant,
		Width: 1, Height: 1, PowerGenerated: capacity,
	}
}

func testConsumer(w, h int, use float64) *world.Blueprint {
	return &world.Blueprint{
		Key: "test_consumer", Name: "Test Consumer", Category: world.CategoryIndustrial,
		GrowsIn: world.ZoneLightIndustrial, Width: w, Height: h, PowerConsumed: use,
		GrowthCap: world.LightZoneGrowthCap,
	}
}

// place zones the footprint and adds the building.
func place(t *testing.T, m *world.Map, bp *world.Blueprint, row, col int, zone world.Zone) *world.Building {
	t.Helper()
	b := m.NewBuilding(bp, world.Coord{Row: row, Col: col})
	for dr := 0; dr < bp.Height; dr++ {
		for dc := 0; dc < bp.Width; dc++ {
			m.At(row+dr, col+dc).Zone = zone
		}
	}
	if err := m.AddBuilding(b); err != nil {
		t.Fatalf("add %s at (%d,%d): %v", bp.Key, row, col, err)
	}
	return b
}

func line(m *world.Map, row, fromCol, toCol int) {
	for c := fromCol; c <= toCol; c++ {
		m.At(row, c).Zone = world.ZonePowerLine
	}
}

func TestSolvePowerScenario(t *testing.T) {
	m := world.NewFlatMap(8, 8)
	st := place(t, m, testStation(10), 0, 0, world.ZonePowerPlant)
	line(m, 0, 1, 1)
	near := place(t, m, testConsumer(1, 1, 4), 0, 2, world.ZoneLightIndustrial)
	far := place(t, m, testConsumer(1, 1, 4), 5, 5, world.ZoneLightIndustrial)

	res := SolvePower(m)
	if len(res.Stations) != 1 {
		t.Fatalf("stations: got %d want 1", len(res.Stations))
	}
	load := res.Stations[0]
	if load.Remaining() != 6 {
		t.Fatalf("remaining: got %v want 6", load.Remaining())
	}
	if near.PoweredBy != st.ID {
		t.Fatalf("near consumer powered by %d want %d", near.PoweredBy, st.ID)
	}
	if far.IsPowered() {
		t.Fatalf("unreachable consumer is powered")
	}
	if res.PoweredTiles != 3 {
		t.Fatalf("powered tiles: got %d want 3", res.PoweredTiles)
	}
}

func TestSolvePowerNeverExceedsCapacity(t *testing.T) {
	m := world.NewFlatMap(4, 8)
	place(t, m, testStation(5), 0, 0, world.ZonePowerPlant)
	var consumers []*world.Building
	for c := 1; c <= 4; c++ {
		consumers = append(consumers, place(t, m, testConsumer(1, 1, 2), 0, c, world.ZoneLightIndustrial))
	}

	res := SolvePower(m)
	load := res.Stations[0]
	if load.Consumed > load.Capacity {
		t.Fatalf("consumed %v exceeds capacity %v", load.Consumed, load.Capacity)
	}
	if load.Consumed != 4 {
		t.Fatalf("consumed: got %v want 4", load.Consumed)
	}
	powered := 0
	for _, b := range consumers {
		if b.IsPowered() {
			powered++
		}
	}
	if powered != 2 {
		t.Fatalf("powered consumers: got %d want 2", powered)
	}
}

func TestSolvePowerStopsAtNonConductive(t *testing.T) {
	m := world.NewFlatMap(3, 6)
	place(t, m, testStation(100), 1, 0, world.ZonePowerPlant)
	line(m, 1, 1, 1)
	m.At(1, 2).Zone = world.ZoneRoad
	beyond := place(t, m, testConsumer(1, 1, 1), 1, 3, world.ZoneLightIndustrial)
	m.At(0, 1).Zone = world.ZoneLightIndustrial // zoned but empty

	SolvePower(m)
	if beyond.IsPowered() {
		t.Fatalf("power crossed a road tile")
	}
	for r := 0; r < m.Rows; r++ {
		for c := 0; c < m.Cols; c++ {
			tile := m.At(r, c)
			if tile.HasPower() && !tile.IsConductive() {
				t.Fatalf("non-conductive tile (%d,%d) is powered", r, c)
			}
		}
	}
}

func TestSolvePowerChargesEveryFootprintTile(t *testing.T) {
	m := world.NewFlatMap(4, 4)
	place(t, m, testStation(100), 0, 0, world.ZonePowerPlant)
	big := place(t, m, testConsumer(2, 2, 3), 0, 1, world.ZoneLightIndustrial)

	res := SolvePower(m)
	if got := res.Stations[0].Consumed; got != 12 {
		t.Fatalf("consumed: got %v want 12", got)
	}
	if !big.IsPowered() {
		t.Fatalf("2x2 consumer not powered")
	}
}

func TestSolvePowerFirstStationWinsOverlap(t *testing.T) {
	m := world.NewFlatMap(3, 5)
	first := place(t, m, testStation(50), 0, 0, world.ZonePowerPlant)
	second := place(t, m, testStation(50), 0, 4, world.ZonePowerPlant)
	shared := place(t, m, testConsumer(1, 1, 5), 0, 2, world.ZoneLightIndustrial)
	line(m, 0, 1, 1)
	line(m, 0, 3, 3)

	res := SolvePower(m)
	if shared.PoweredBy != first.ID {
		t.Fatalf("shared consumer powered by %d want %d", shared.PoweredBy, first.ID)
	}
	if res.Stations[1].StationID != second.ID || res.Stations[1].Consumed != 0 {
		t.Fatalf("second station charged for tiles the first already supplied: %+v", res.Stations[1])
	}
}

func TestSolvePowerIdempotent(t *testing.T) {
	m := world.NewFlatMap(6, 6)
	place(t, m, testStation(20), 2, 0, world.ZonePowerPlant)
	line(m, 2, 1, 3)
	place(t, m, testConsumer(1, 1, 2), 2, 4, world.ZoneLightIndustrial)

	first := SolvePower(m)
	snapshot := make([]world.BuildingID, 0, m.TileCount())
	for r := range m.Tiles {
		for c := range m.Tiles[r] {
			snapshot = append(snapshot, m.Tiles[r][c].PoweredBy)
		}
	}

	second := SolvePower(m)
	if !second.Dirty.Empty() {
		t.Fatalf("second solve reported dirty region %+v", second.Dirty)
	}
	if first.Stations[0] != second.Stations[0] {
		t.Fatalf("station load changed: %+v vs %+v", first.Stations[0], second.Stations[0])
	}
	i := 0
	for r := range m.Tiles {
		for c := range m.Tiles[r] {
			if m.Tiles[r][c].PoweredBy != snapshot[i] {
				t.Fatalf("tile (%d,%d) changed supplier", r, c)
			}
			i++
		}
	}
}

func TestSolvePowerDirtyRegion(t *testing.T) {
	m := world.NewFlatMap(6, 6)
	place(t, m, testStation(20), 1, 1, world.ZonePowerPlant)
	line(m, 1, 2, 3)
	consumer := place(t, m, testConsumer(1, 1, 2), 1, 4, world.ZoneLightIndustrial)

	res := SolvePower(m)
	want := DirtyRegion{MinRow: 1, MinCol: 1, MaxRow: 1, MaxCol: 4}
	if res.Dirty != want {
		t.Fatalf("dirty: got %+v want %+v", res.Dirty, want)
	}

	// Cutting the line unpowers everything past the break.
	m.At(1, 3).Zone = world.ZoneNone
	res = SolvePower(m)
	if consumer.IsPowered() {
		t.Fatalf("consumer still powered after the line was cut")
	}
	want = DirtyRegion{MinRow: 1, MinCol: 3, MaxRow: 1, MaxCol: 4}
	if res.Dirty != want {
		t.Fatalf("dirty after cut: got %+v want %+v", res.Dirty, want)
	}
	if !res.Dirty.Contains(1, 4) || res.Dirty.Contains(1, 2) {
		t.Fatalf("Contains disagrees with bounds %+v", res.Dirty)
	}
}

func TestSolvePowerFillsAroundObstacles(t *testing.T) {
	// A U-shaped line forces the fill to seed rows above and below.
	m := world.NewFlatMap(5, 5)
	place(t, m, testStation(100), 0, 0, world.ZonePowerPlant)
	for r := 1; r <= 4; r++ {
		m.At(r, 0).Zone = world.ZonePowerLine
	}
	line(m, 4, 1, 4)
	for r := 1; r <= 3; r++ {
		m.At(r, 4).Zone = world.ZonePowerLine
	}
	top := place(t, m, testConsumer(1, 1, 1), 0, 4, world.ZoneLightIndustrial)

	res := SolvePower(m)
	if !top.IsPowered() {
		t.Fatalf("consumer at the end of the U is not powered")
	}
	if res.PoweredTiles != 13 {
		t.Fatalf("powered tiles: got %d want 13", res.PoweredTiles)
	}
}

func TestSolvePowerElevatedLineConducts(t *testing.T) {
	m := world.NewFlatMap(1, 4)
	place(t, m, testStation(10), 0, 0, world.ZonePowerPlant)
	m.At(0, 1).Zone = world.ZoneRoad
	if err := m.SetElevatedZone(world.Coord{Row: 0, Col: 1}, world.ElevatedPowerLine); err != nil {
		t.Fatal(err)
	}
	c := place(t, m, testConsumer(1, 1, 1), 0, 2, world.ZoneLightIndustrial)

	SolvePower(m)
	if !c.IsPowered() {
		t.Fatalf("elevated line over a road did not conduct")
	}
}

func TestSolvePowerZeroCapacityStation(t *testing.T) {
	m := world.NewFlatMap(1, 5)
	dead := place(t, m, testStation(0), 0, 0, world.ZonePowerPlant)
	line(m, 0, 1, 1)
	shared := place(t, m, testConsumer(1, 1, 2), 0, 2, world.ZoneLightIndustrial)
	line(m, 0, 3, 3)
	live := place(t, m, testStation(10), 0, 4, world.ZonePowerPlant)

	res := SolvePower(m)
	for c := 0; c < m.Cols; c++ {
		if got := m.At(0, c).PoweredBy; got == dead.ID {
			t.Fatalf("tile (0,%d) powered by the zero-capacity station", c)
		}
	}
	if len(res.Stations) != 1 || res.Stations[0].StationID != live.ID {
		t.Fatalf("stations: got %+v want only %d", res.Stations, live.ID)
	}
	if res.Stations[0].TilesPowered != 5 || res.Stations[0].Consumed != 2 {
		t.Fatalf("live station load: got %+v want 5 tiles, 2 consumed", res.Stations[0])
	}
	if shared.PoweredBy != live.ID {
		t.Fatalf("consumer powered by %d want %d", shared.PoweredBy, live.ID)
	}

	// A walk with nothing left to give seeds and stops at once.
	resetPower(m)
	w := &powerWalk{
		m:       m,
		station: dead,
		visited: newVisitMatrix(m.Rows, m.Cols),
		load:    StationLoad{StationID: dead.ID},
	}
	w.visited.reset()
	w.fill(dead.Position)
	if w.load.TilesPowered != 0 || m.PoweredTiles() != 0 || dead.IsPowered() {
		t.Fatalf("zero-capacity walk powered %d tiles", w.load.TilesPowered)
	}
}
