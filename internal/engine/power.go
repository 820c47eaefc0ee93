// Power grid solver: capacity-bounded scanline flood fill from every
// generating building across conductive tiles, run once per simulated day.
package engine

import (
	"math"

	"github.com/talgya/gridcity/internal/world"
)

// DirtyRegion is the inclusive bounding box of tiles whose supplier changed
// since the previous solve.
type DirtyRegion struct {
	MinRow int `json:"min_row"`
	MinCol int `json:"min_col"`
	MaxRow int `json:"max_row"`
	MaxCol int `json:"max_col"`
}

// EmptyRegion returns a region that contains no tiles.
func EmptyRegion() DirtyRegion {
	return DirtyRegion{MinRow: math.MaxInt, MinCol: math.MaxInt, MaxRow: -1, MaxCol: -1}
}

// Empty reports whether the region covers no tiles.
func (r DirtyRegion) Empty() bool {
	return r.MaxRow < r.MinRow || r.MaxCol < r.MinCol
}

// Contains reports whether (row, col) lies inside the region.
func (r DirtyRegion) Contains(row, col int) bool {
	return row >= r.MinRow && row <= r.MaxRow && col >= r.MinCol && col <= r.MaxCol
}

func (r *DirtyRegion) include(row, col int) {
	r.MinRow = min(r.MinRow, row)
	r.MinCol = min(r.MinCol, col)
	r.MaxRow = max(r.MaxRow, row)
	r.MaxCol = max(r.MaxCol, col)
}

// RegionSink receives changed areas so a renderer can rebuild only those
// buffers.
type RegionSink interface {
	InvalidateRegion(r DirtyRegion)
}

// StationLoad is what one station supplied during a solve.
type StationLoad struct {
	StationID    world.BuildingID `json:"station_id"`
	Capacity     float64          `json:"capacity"`
	Consumed     float64          `json:"consumed"`
	TilesPowered int              `json:"tiles_powered"`
}

// Remaining returns unused capacity.
func (s StationLoad) Remaining() float64 {
	return s.Capacity - s.Consumed
}

// PowerResult summarizes one solve.
type PowerResult struct {
	Stations     []StationLoad `json:"stations"`
	Dirty        DirtyRegion   `json:"dirty"`
	PoweredTiles int           `json:"powered_tiles"`
}

// Totals returns the summed capacity and consumption of all stations.
func (p PowerResult) Totals() (capacity, consumed float64) {
	for _, s := range p.Stations {
		capacity += s.Capacity
		consumed += s.Consumed
	}
	return capacity, consumed
}

// SolvePower recomputes which station supplies every tile and building.
// Stations are walked in registry insertion order; a tile claimed by an
// earlier station conducts for later ones but is not charged again.
func SolvePower(m *world.Map) PowerResult {
	resetPower(m)

	var stations []*world.Building
	m.Buildings.Each(func(b *world.Building) {
		if b.Blueprint.IsStation() {
			stations = append(stations, b)
		}
	})

	visited := newVisitMatrix(m.Rows, m.Cols)
	res := PowerResult{Stations: make([]StationLoad, 0, len(stations))}
	for _, st := range stations {
		visited.reset()
		w := &powerWalk{
			m:       m,
			station: st,
			visited: visited,
			load:    StationLoad{StationID: st.ID, Capacity: st.Blueprint.PowerGenerated},
		}
		w.fill(st.Position)
		res.Stations = append(res.Stations, w.load)
	}

	res.Dirty, res.PoweredTiles = powerChanges(m)
	return res
}

// resetPower shifts current suppliers into the previous slot and clears
// every powered flag.
func resetPower(m *world.Map) {
	for r := range m.Tiles {
		row := m.Tiles[r]
		for c := range row {
			row[c].WasPoweredBy = row[c].PoweredBy
			row[c].PoweredBy = world.NoBuilding
		}
	}
	m.Buildings.Each(func(b *world.Building) {
		b.PoweredBy = world.NoBuilding
	})
}

func powerChanges(m *world.Map) (DirtyRegion, int) {
	dirty := EmptyRegion()
	powered := 0
	for r := range m.Tiles {
		for c := range m.Tiles[r] {
			t := &m.Tiles[r][c]
			if t.PoweredBy != t.WasPoweredBy {
				dirty.include(r, c)
			}
			if t.HasPower() {
				powered++
			}
		}
	}
	return dirty, powered
}

// visitMatrix is a per-walk visited set. reset bumps a generation stamp
// instead of clearing the slice.
type visitMatrix struct {
	cols  int
	stamp []uint32
	gen   uint32
}

func newVisitMatrix(rows, cols int) *visitMatrix {
	return &visitMatrix{cols: cols, stamp: make([]uint32, rows*cols)}
}

func (v *visitMatrix) reset() {
	v.gen++
	if v.gen == 0 {
		clear(v.stamp)
		v.gen = 1
	}
}

func (v *visitMatrix) seen(row, col int) bool {
	return v.stamp[row*v.cols+col] == v.gen
}

func (v *visitMatrix) mark(row, col int) {
	v.stamp[row*v.cols+col] = v.gen
}

type powerWalk struct {
	m       *world.Map
	station *world.Building
	visited *visitMatrix
	load    StationLoad
}

func (w *powerWalk) exhausted() bool {
	return w.load.Consumed >= w.load.Capacity
}

// open reports whether the fill may enter (row, col).
func (w *powerWalk) open(row, col int) bool {
	t := w.m.At(row, col)
	return t != nil && t.IsConductive() && !w.visited.seen(row, col)
}

// fill runs the span fill from seed. Each popped seed is widened to the
// conductive run on its row; the rows above and below are seeded once per
// contiguous open run under that span.
func (w *powerWalk) fill(seed world.Coord) {
	if !w.open(seed.Row, seed.Col) {
		return
	}
	stack := []world.Coord{seed}
	for len(stack) > 0 && !w.exhausted() {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if w.visited.seen(p.Row, p.Col) {
			continue
		}

		left, right := p.Col, p.Col
		for w.open(p.Row, left-1) {
			left--
		}
		for w.open(p.Row, right+1) {
			right++
		}

		for c := left; c <= right; c++ {
			w.visited.mark(p.Row, c)
			w.draw(p.Row, c)
			if w.exhausted() {
				return
			}
		}

		stack = w.seedRow(stack, p.Row-1, left, right)
		stack = w.seedRow(stack, p.Row+1, left, right)
	}
}

func (w *powerWalk) seedRow(stack []world.Coord, row, left, right int) []world.Coord {
	if row < 0 || row >= w.m.Rows {
		return stack
	}
	inRun := false
	for c := left; c <= right; c++ {
		if !w.open(row, c) {
			inRun = false
			continue
		}
		if !inRun {
			stack = append(stack, world.Coord{Row: row, Col: c})
			inRun = true
		}
	}
	return stack
}

// draw charges the consumption of the building on (row, col) against the
// station. A multi-tile building is charged once per tile it covers.
func (w *powerWalk) draw(row, col int) {
	t := w.m.At(row, col)
	if t.HasPower() {
		return
	}

	var b *world.Building
	demand := 0.0
	if t.Building != world.NoBuilding {
		if occupant, ok := w.m.Buildings.Get(t.Building); ok {
			b = occupant
			demand = occupant.Blueprint.PowerConsumed
		}
	}
	if w.load.Consumed+demand > w.load.Capacity {
		return
	}

	w.load.Consumed += demand
	w.load.TilesPowered++
	t.PoweredBy = w.station.ID
	if b != nil && !b.IsPowered() {
		b.PoweredBy = w.station.ID
	}
}
