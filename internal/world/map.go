package world

import "fmt"

// Map holds the tile grid and the building registry.
type Map struct {
	Rows  int      `json:"rows"`
	Cols  int      `json:"cols"`
	Tiles [][]Tile `json:"-"`

	Buildings *Registry    `json:"-"`
	IDs       *IDAllocator `json:"-"`
}

// NewMap creates a map from a corner height grid of (rows+1)×(cols+1)
// samples. Tiles whose four corners all sit at or below seaLevel are water;
// everything else starts as plain.
func NewMap(heights [][]int, seaLevel int) *Map {
	rows := len(heights) - 1
	cols := 0
	if rows > 0 {
		cols = len(heights[0]) - 1
	}
	if rows < 0 {
		rows = 0
	}
	if cols < 0 {
		cols = 0
	}

	m := newMap(rows, cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			nw, ne := heights[r][c], heights[r][c+1]
			sw, se := heights[r+1][c], heights[r+1][c+1]
			t := &m.Tiles[r][c]
			t.IsFlat = nw == ne && ne == sw && sw == se
			if nw <= seaLevel && ne <= seaLevel && sw <= seaLevel && se <= seaLevel {
				t.Terrain = TerrainWater
			}
		}
	}
	return m
}

// NewFlatMap creates a rows×cols map of flat plain tiles.
func NewFlatMap(rows, cols int) *Map {
	m := newMap(rows, cols)
	for r := range m.Tiles {
		for c := range m.Tiles[r] {
			m.Tiles[r][c].IsFlat = true
		}
	}
	return m
}

func newMap(rows, cols int) *Map {
	tiles := make([][]Tile, rows)
	for r := range tiles {
		tiles[r] = make([]Tile, cols)
	}
	return &Map{
		Rows:      rows,
		Cols:      cols,
		Tiles:     tiles,
		Buildings: NewRegistry(),
		IDs:       NewIDAllocator(),
	}
}

// InBounds returns true if (row, col) lies on the grid.
func (m *Map) InBounds(row, col int) bool {
	return row >= 0 && row < m.Rows && col >= 0 && col < m.Cols
}

// At returns the tile at (row, col), or nil if out of bounds.
func (m *Map) At(row, col int) *Tile {
	if !m.InBounds(row, col) {
		return nil
	}
	return &m.Tiles[row][col]
}

// Tile returns the tile at c, or nil if out of bounds.
func (m *Map) Tile(c Coord) *Tile {
	return m.At(c.Row, c.Col)
}

// OrthogonalOffsets are the four neighbor directions.
var OrthogonalOffsets = [4]Coord{
	{Row: -1, Col: 0},
	{Row: 1, Col: 0},
	{Row: 0, Col: -1},
	{Row: 0, Col: 1},
}

// Neighbors4 returns the in-bounds orthogonal neighbors of c.
func (m *Map) Neighbors4(c Coord) []Coord {
	out := make([]Coord, 0, 4)
	for _, d := range OrthogonalOffsets {
		n := c.Add(d.Row, d.Col)
		if m.InBounds(n.Row, n.Col) {
			out = append(out, n)
		}
	}
	return out
}

// BuildingAt returns the building occupying c, if any.
func (m *Map) BuildingAt(c Coord) (*Building, bool) {
	t := m.Tile(c)
	if t == nil || t.Building == NoBuilding {
		return nil, false
	}
	return m.Buildings.Get(t.Building)
}

// NewBuilding allocates an id for a building of bp anchored at pos. The
// building is not placed until AddBuilding.
func (m *Map) NewBuilding(bp *Blueprint, pos Coord) *Building {
	return &Building{
		ID:        m.IDs.Next(),
		Blueprint: bp,
		Position:  pos,
	}
}

// FootprintFits reports whether a bp footprint anchored at pos lies on the
// grid.
func (m *Map) FootprintFits(bp *Blueprint, pos Coord) bool {
	return m.InBounds(pos.Row, pos.Col) &&
		m.InBounds(pos.Row+bp.Height-1, pos.Col+bp.Width-1)
}

// AddBuilding registers b and points every footprint tile at it. Either the
// whole footprint is claimed or nothing changes.
func (m *Map) AddBuilding(b *Building) error {
	if b.Blueprint == nil {
		return ErrUnknownBlueprint
	}
	if !m.FootprintFits(b.Blueprint, b.Position) {
		return fmt.Errorf("add building %d at %v: %w", b.ID, b.Position, ErrOutOfBounds)
	}

	var occupied error
	b.Footprint(func(c Coord) {
		if occupied == nil && m.Tile(c).Building != NoBuilding {
			occupied = fmt.Errorf("add building %d at %v: %w", b.ID, c, ErrOccupied)
		}
	})
	if occupied != nil {
		return occupied
	}
	if err := m.Buildings.insert(b); err != nil {
		return fmt.Errorf("add building %d: %w", b.ID, err)
	}

	// Allocators on other maps may have produced this id.
	m.IDs.SetNext(b.ID + 1)

	b.Footprint(func(c Coord) {
		m.Tile(c).Building = b.ID
	})
	return nil
}

// RemoveBuilding clears every footprint back-reference and unregisters the
// building. Unknown ids are ignored.
func (m *Map) RemoveBuilding(id BuildingID) bool {
	b, ok := m.Buildings.Get(id)
	if !ok {
		return false
	}
	b.Footprint(func(c Coord) {
		if t := m.Tile(c); t != nil && t.Building == id {
			t.Building = NoBuilding
		}
	})
	m.Buildings.delete(id)
	return true
}

// SetZone rezones a tile. Growth scores restart on a zone change, and a
// building that may not stand on the new zone is removed.
func (m *Map) SetZone(c Coord, zone Zone) error {
	t := m.Tile(c)
	if t == nil {
		return fmt.Errorf("set zone %v: %w", c, ErrOutOfBounds)
	}
	if t.Zone != zone {
		t.BaselineGrowthScore = 0
		t.AccruingGrowthScore = 0
	}
	t.Zone = zone
	if b, ok := m.BuildingAt(c); ok && !b.Blueprint.AllowedOn(zone) {
		m.RemoveBuilding(b.ID)
	}
	return nil
}

// SetElevatedZone changes the overlay layer of a tile.
func (m *Map) SetElevatedZone(c Coord, zone ElevatedZone) error {
	t := m.Tile(c)
	if t == nil {
		return fmt.Errorf("set elevated zone %v: %w", c, ErrOutOfBounds)
	}
	t.Elevated = zone
	return nil
}

// PoweredTiles counts tiles that currently have a supplier.
func (m *Map) PoweredTiles() int {
	n := 0
	for r := range m.Tiles {
		for c := range m.Tiles[r] {
			if m.Tiles[r][c].HasPower() {
				n++
			}
		}
	}
	return n
}

// GrowthCap returns the growth score cap of the tile at c: the occupying
// building's cap, or the zone default when empty.
func (m *Map) GrowthCap(c Coord) float64 {
	t := m.Tile(c)
	if t == nil {
		return 0
	}
	if b, ok := m.BuildingAt(c); ok && b.Blueprint.IsGrown() {
		return b.Blueprint.GrowthCap
	}
	return DefaultGrowthCap(t.Zone)
}

// TileCount returns the total number of tiles.
func (m *Map) TileCount() int {
	return m.Rows * m.Cols
}

// String returns a summary of the map.
func (m *Map) String() string {
	return fmt.Sprintf("Map(%dx%d, buildings=%d)", m.Rows, m.Cols, m.Buildings.Len())
}
