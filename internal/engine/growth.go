// Growth engine: scores powered dynamic-zone tiles by road proximity, hands
// out scarce demand to the best tiles, and grows buildings on them.
package engine

import (
	"log/slog"
	"sort"

	"github.com/talgya/gridcity/internal/economy"
	"github.com/talgya/gridcity/internal/numeric"
	"github.com/talgya/gridcity/internal/world"
)

// Growth tuning defaults.
const (
	DefaultDemandWeight       = 0.5
	DefaultValveDemandDivisor = 20.0
)

// kernelRadius is half the width of the transport kernel.
const kernelRadius = 3

// transportKernel weights road tiles by Chebyshev ring around the scored
// tile: ring 1 counts 3, ring 2 counts 2, ring 3 counts 1. The centre is
// never read.
var transportKernel = func() [2*kernelRadius + 1][2*kernelRadius + 1]float64 {
	var k [2*kernelRadius + 1][2*kernelRadius + 1]float64
	for dr := -kernelRadius; dr <= kernelRadius; dr++ {
		for dc := -kernelRadius; dc <= kernelRadius; dc++ {
			ring := max(numeric.Abs(dr), numeric.Abs(dc))
			if ring == 0 {
				continue
			}
			k[dr+kernelRadius][dc+kernelRadius] = float64(kernelRadius + 1 - ring)
		}
	}
	return k
}()

// Growth holds the tuning for weekly growth passes.
type Growth struct {
	DemandWeight       float64
	ValveDemandDivisor float64

	// LightIndustryOnly restricts allocation to the light-industry pool.
	LightIndustryOnly bool

	// Demand supplies external industrial demand for a day. Defaults to
	// ExternalDemand.
	Demand func(days float64) Demand
}

// NewGrowth returns a growth engine with default tuning.
func NewGrowth() *Growth {
	return &Growth{
		DemandWeight:       DefaultDemandWeight,
		ValveDemandDivisor: DefaultValveDemandDivisor,
		Demand:             ExternalDemand,
	}
}

// Allocation records demand handed to one tile.
type Allocation struct {
	Pos    world.Coord `json:"pos"`
	Amount float64     `json:"amount"`
}

// GrowthResult summarizes one growth pass.
type GrowthResult struct {
	Candidates  int                `json:"candidates"`
	Allocated   float64            `json:"allocated"`
	Allocations []Allocation       `json:"allocations"`
	Constructed []world.BuildingID `json:"constructed"`
	Removed     []world.BuildingID `json:"removed"`
}

type growthCandidate struct {
	pos      world.Coord
	baseline float64
}

// demandPools is the demand left to hand out, per pool.
type demandPools struct {
	Residential     float64
	Commercial      float64
	LightIndustrial float64
	DenseIndustrial float64
}

// pool returns the pool that feeds tiles zoned z, or nil.
func (p *demandPools) pool(z world.Zone) *float64 {
	switch z {
	case world.ZoneLightResidential, world.ZoneDenseResidential:
		return &p.Residential
	case world.ZoneLightCommercial, world.ZoneDenseCommercial:
		return &p.Commercial
	case world.ZoneLightIndustrial:
		return &p.LightIndustrial
	case world.ZoneDenseIndustrial:
		return &p.DenseIndustrial
	default:
		return nil
	}
}

// Run performs one growth pass: score, then allocate and construct.
func (g *Growth) Run(m *world.Map, days float64, valves economy.Valves) GrowthResult {
	cands := g.score(m)
	pools := g.pools(m, days, valves)
	res := g.allocate(m, cands, &pools)
	res.Candidates = len(cands)
	return res
}

// score recomputes baseline scores and returns the growth candidates in
// row-major order.
func (g *Growth) score(m *world.Map) []growthCandidate {
	var cands []growthCandidate
	for r := 0; r < m.Rows; r++ {
		for c := 0; c < m.Cols; c++ {
			t := &m.Tiles[r][c]
			if !t.Zone.IsDynamic() {
				continue
			}
			pos := world.Coord{Row: r, Col: c}
			if !powerNearby(m, pos) {
				t.BaselineGrowthScore = 0
				g.decline(m, pos)
				continue
			}
			t.BaselineGrowthScore = transportScore(m, pos) * g.DemandWeight
			if t.BaselineGrowthScore > 0 {
				cands = append(cands, growthCandidate{pos: pos, baseline: t.BaselineGrowthScore})
			}
		}
	}
	return cands
}

// decline is where unpowered dynamic tiles would lose development. Growth
// only moves forward for now.
func (g *Growth) decline(m *world.Map, pos world.Coord) {}

func powerNearby(m *world.Map, pos world.Coord) bool {
	if m.Tile(pos).HasPower() {
		return true
	}
	for _, n := range m.Neighbors4(pos) {
		if m.Tile(n).HasPower() {
			return true
		}
	}
	return false
}

// transportScore convolves the road layer around pos with transportKernel.
func transportScore(m *world.Map, pos world.Coord) float64 {
	score := 0.0
	for dr := -kernelRadius; dr <= kernelRadius; dr++ {
		for dc := -kernelRadius; dc <= kernelRadius; dc++ {
			if dr == 0 && dc == 0 {
				continue
			}
			t := m.At(pos.Row+dr, pos.Col+dc)
			if t != nil && t.Zone == world.ZoneRoad {
				score += transportKernel[dr+kernelRadius][dc+kernelRadius]
			}
		}
	}
	return score
}

// pools sizes this pass's demand. Industrial pools are external demand net
// of what existing industry already produces; residential and commercial
// follow their positive valve. LightIndustryOnly leaves every pool but light
// industry empty.
func (g *Growth) pools(m *world.Map, days float64, valves economy.Valves) demandPools {
	demandFn := g.Demand
	if demandFn == nil {
		demandFn = ExternalDemand
	}
	demand := demandFn(days)

	var lightOutput, heavyOutput float64
	m.Buildings.Each(func(b *world.Building) {
		bp := b.Blueprint
		switch {
		case bp.HeavyIndustry:
			heavyOutput += bp.Output
		case bp.GrowsIn == world.ZoneLightIndustrial:
			lightOutput += bp.Output
		}
	})

	p := demandPools{
		LightIndustrial: numeric.Max(demand.Light-lightOutput, 0),
	}
	if g.LightIndustryOnly {
		return p
	}
	p.DenseIndustrial = numeric.Max(demand.Heavy-heavyOutput, 0)
	if g.ValveDemandDivisor > 0 {
		p.Residential = numeric.Max(valves.Residential, 0) / g.ValveDemandDivisor
		p.Commercial = numeric.Max(valves.Commercial, 0) / g.ValveDemandDivisor
	}
	return p
}

// allocate walks candidates best first, raising accruing scores while their
// pool lasts, and tries to construct after every raise. Ties go to the
// earlier tile in row-major order.
func (g *Growth) allocate(m *world.Map, cands []growthCandidate, pools *demandPools) GrowthResult {
	sort.Slice(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.baseline != b.baseline {
			return a.baseline > b.baseline
		}
		if a.pos.Row != b.pos.Row {
			return a.pos.Row < b.pos.Row
		}
		return a.pos.Col < b.pos.Col
	})

	var res GrowthResult
	for _, cand := range cands {
		t := m.Tile(cand.pos)
		pool := pools.pool(t.Zone)
		if pool == nil || *pool <= 0 {
			continue
		}
		headroom := numeric.Max(m.GrowthCap(cand.pos)-t.AccruingGrowthScore, 0)
		inc := numeric.Min(cand.baseline, numeric.Min(headroom, *pool))
		if inc <= 0 {
			continue
		}
		t.AccruingGrowthScore += inc
		*pool -= inc
		res.Allocated += inc
		res.Allocations = append(res.Allocations, Allocation{Pos: cand.pos, Amount: inc})

		g.construct(m, cand.pos, &res)
	}
	return res
}

// construct grows the best blueprint the tile's score affords, replacing
// placeholders and lower-tier buildings of the same zone.
func (g *Growth) construct(m *world.Map, pos world.Coord, res *GrowthResult) {
	t := m.Tile(pos)
	bp, ok := world.BestFor(t.Zone, t.AccruingGrowthScore)
	if !ok || !constructible(m, bp, pos, t.Zone) {
		return
	}

	var occupants []world.BuildingID
	seen := make(map[world.BuildingID]bool)
	forFootprint(bp, pos, func(c world.Coord) {
		id := m.Tile(c).Building
		if id != world.NoBuilding && !seen[id] {
			seen[id] = true
			occupants = append(occupants, id)
		}
	})
	for _, id := range occupants {
		if m.RemoveBuilding(id) {
			res.Removed = append(res.Removed, id)
		}
	}

	b := m.NewBuilding(bp, pos)
	b.VoxelsToDisplay = 0
	if err := m.AddBuilding(b); err != nil {
		slog.Warn("growth construction failed", "blueprint", bp.Key, "row", pos.Row, "col", pos.Col, "error", err)
		return
	}
	res.Constructed = append(res.Constructed, b.ID)
}

// constructible reports whether bp may grow anchored at pos on tiles zoned
// zone.
func constructible(m *world.Map, bp *world.Blueprint, pos world.Coord, zone world.Zone) bool {
	if !m.FootprintFits(bp, pos) {
		return false
	}
	ok := true
	forFootprint(bp, pos, func(c world.Coord) {
		if !ok {
			return
		}
		t := m.Tile(c)
		if !t.IsFlat || t.Terrain == world.TerrainWater || t.Zone != zone {
			ok = false
			return
		}
		if t.Building == world.NoBuilding {
			return
		}
		occupant, found := m.Buildings.Get(t.Building)
		if !found {
			return
		}
		obp := occupant.Blueprint
		if obp.IsPlaceholder() {
			return
		}
		if obp.IsGrown() && obp.GrowsIn == zone && obp.GrowthThreshold < bp.GrowthThreshold {
			return
		}
		ok = false
	})
	return ok
}

func forFootprint(bp *world.Blueprint, pos world.Coord, fn func(c world.Coord)) {
	for dr := 0; dr < bp.Height; dr++ {
		for dc := 0; dc < bp.Width; dc++ {
			fn(pos.Add(dr, dc))
		}
	}
}
