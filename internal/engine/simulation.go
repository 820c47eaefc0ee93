// Simulation ties the city systems together and runs them each tick.
package engine

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/talgya/gridcity/internal/economy"
	"github.com/talgya/gridcity/internal/metrics"
	"github.com/talgya/gridcity/internal/world"
)

// DefaultValvePeriod is the real time, in seconds, between valve cycles.
const DefaultValvePeriod = 2.0

// maxEvents bounds the in-memory event log.
const maxEvents = 1000

// Simulation holds the complete city state and wires systems together.
type Simulation struct {
	Map     *world.Map
	Clock   *Clock
	Economy *economy.Economy
	Growth  *Growth

	// Seconds between valve cycles.
	ValvePeriod float64
	valveTimer  float64

	// Optional collaborators.
	Sink    RegionSink
	OnEvent func(Event)
	Metrics *metrics.Collector

	Events []Event // Recent events, oldest first

	LastPower  PowerResult
	LastGrowth GrowthResult

	census economy.Census

	// Statistics refreshed after every pass.
	Stats SimStats
}

// Event is a notable occurrence in the city.
type Event struct {
	Day         int    `json:"day"`
	Description string `json:"description"`
	Category    string `json:"category"` // "power", "growth", "economy", "tool"
}

// SimStats tracks aggregate city statistics.
type SimStats struct {
	Day           int            `json:"day"`
	Date          string         `json:"date"`
	Buildings     int            `json:"buildings"`
	PoweredTiles  int            `json:"powered_tiles"`
	PowerCapacity float64        `json:"power_capacity"`
	PowerConsumed float64        `json:"power_consumed"`
	Population    economy.Census `json:"population"`
	Valves        economy.Valves `json:"valves"`
}

// NewSimulation creates a Simulation over a generated map.
func NewSimulation(m *world.Map, econ *economy.Economy) *Simulation {
	if econ == nil {
		econ = economy.New(economy.DifficultyMedium, 0)
	}
	sim := &Simulation{
		Map:         m,
		Clock:       NewClock(),
		Economy:     econ,
		Growth:      NewGrowth(),
		ValvePeriod: DefaultValvePeriod,
	}
	sim.updateStats()
	return sim
}

// Update advances the clock by deltaSeconds and runs every pass whose
// cadence was reached, always in the order time, power, growth, valves.
func (s *Simulation) Update(deltaSeconds float64) ClockEvents {
	ev := s.Clock.Advance(deltaSeconds)

	if ev.NewDay {
		s.SolvePower()
	}
	if ev.NewWeek {
		s.Grow()
	}

	s.valveTimer += deltaSeconds
	if s.ValvePeriod > 0 && s.valveTimer >= s.ValvePeriod {
		// At most one cycle per tick; a long tick does not leave a backlog.
		s.valveTimer = math.Mod(s.valveTimer, s.ValvePeriod)
		s.UpdateValves()
	}

	if ev.NewDay {
		s.Metrics.SetDay(s.Clock.Day())
		s.logDailyReport()
	}
	if ev.NewWeek {
		s.trimEvents()
	}
	return ev
}

// SolvePower recomputes the grid and forwards the changed region to the sink.
func (s *Simulation) SolvePower() PowerResult {
	start := time.Now()
	res := SolvePower(s.Map)
	s.LastPower = res

	capacity, consumed := res.Totals()
	s.Metrics.ObservePower(time.Since(start), len(res.Stations), res.PoweredTiles, capacity, consumed)

	if !res.Dirty.Empty() {
		if s.Sink != nil {
			s.Sink.InvalidateRegion(res.Dirty)
		}
		s.addEvent("power", fmt.Sprintf("power changed in rows %d-%d, cols %d-%d",
			res.Dirty.MinRow, res.Dirty.MaxRow, res.Dirty.MinCol, res.Dirty.MaxCol))
	}
	for _, st := range res.Stations {
		if st.Remaining() <= 0 && st.Capacity > 0 {
			s.addEvent("power", fmt.Sprintf("station %d is at full load (%.0f)", st.StationID, st.Capacity))
		}
	}
	s.updateStats()
	return res
}

// Grow runs one growth pass against the current valves.
func (s *Simulation) Grow() GrowthResult {
	start := time.Now()
	res := s.Growth.Run(s.Map, s.Clock.Days, s.Economy.Valves)
	s.LastGrowth = res

	s.Metrics.ObserveGrowth(time.Since(start), res.Candidates, len(res.Constructed))
	for _, id := range res.Constructed {
		if b, ok := s.Map.Buildings.Get(id); ok {
			s.addEvent("growth", fmt.Sprintf("%s grew at (%d,%d)", b.Blueprint.Name, b.Position.Row, b.Position.Col))
		}
	}
	if len(res.Constructed) > 0 && s.Sink != nil {
		s.Sink.InvalidateRegion(s.growthRegion(res))
	}
	s.updateStats()

	slog.Info("weekly growth",
		"time", SimTime(s.Clock.Day()),
		"candidates", res.Candidates,
		"allocated", fmt.Sprintf("%.1f", res.Allocated),
		"constructed", len(res.Constructed),
		"replaced", len(res.Removed),
	)
	return res
}

func (s *Simulation) growthRegion(res GrowthResult) DirtyRegion {
	r := EmptyRegion()
	for _, id := range res.Constructed {
		b, ok := s.Map.Buildings.Get(id)
		if !ok {
			continue
		}
		b.Footprint(func(c world.Coord) { r.include(c.Row, c.Col) })
	}
	return r
}

// UpdateValves takes a census and runs one valve cycle.
func (s *Simulation) UpdateValves() economy.Valves {
	start := time.Now()
	census := s.TakeCensus()
	before := s.Economy.Valves
	v := s.Economy.Update(census)

	s.Metrics.ObserveValves(time.Since(start), v.Residential, v.Commercial, v.Industrial,
		census.Residential, census.Commercial, census.Industrial)
	if crossed(before.Residential, v.Residential) {
		s.addEvent("economy", fmt.Sprintf("residential demand turned %s", direction(v.Residential)))
	}
	if crossed(before.Commercial, v.Commercial) {
		s.addEvent("economy", fmt.Sprintf("commercial demand turned %s", direction(v.Commercial)))
	}
	if crossed(before.Industrial, v.Industrial) {
		s.addEvent("economy", fmt.Sprintf("industrial demand turned %s", direction(v.Industrial)))
	}
	s.Stats.Valves = v
	s.Stats.Population = census
	return v
}

func crossed(before, after float64) bool {
	return (before > 0) != (after > 0) && before != 0
}

func direction(v float64) string {
	if v > 0 {
		return "positive"
	}
	return "negative"
}

// TakeCensus clears and refills the population accumulators from every
// registered building.
func (s *Simulation) TakeCensus() economy.Census {
	s.census.Clear()
	s.Map.Buildings.Each(func(b *world.Building) {
		switch b.Blueprint.Category {
		case world.CategoryResidential:
			s.census.Residential += b.Blueprint.Population
		case world.CategoryCommercial:
			s.census.Commercial += b.Blueprint.Population
		case world.CategoryIndustrial:
			s.census.Industrial += b.Blueprint.Population
		}
	})
	return s.census
}

// PlaceBuilding is the tool-layer entry for putting a blueprint on the map.
// Footprint tiles whose zone cannot hold the blueprint are rezoned first.
func (s *Simulation) PlaceBuilding(key world.BlueprintKey, pos world.Coord) (*world.Building, error) {
	bp, ok := world.Lookup(key)
	if !ok {
		return nil, fmt.Errorf("place %q: %w", key, world.ErrUnknownBlueprint)
	}
	if !s.Map.FootprintFits(bp, pos) {
		return nil, fmt.Errorf("place %q at %v: %w", key, pos, world.ErrOutOfBounds)
	}

	var blocked error
	forFootprint(bp, pos, func(c world.Coord) {
		t := s.Map.Tile(c)
		switch {
		case blocked != nil:
		case t.Terrain == world.TerrainWater:
			blocked = fmt.Errorf("place %q at %v: %w", key, c, world.ErrUnbuildable)
		case t.Building != world.NoBuilding:
			blocked = fmt.Errorf("place %q at %v: %w", key, c, world.ErrOccupied)
		}
	})
	if blocked != nil {
		return nil, blocked
	}

	zone := requiredZone(bp)
	forFootprint(bp, pos, func(c world.Coord) {
		if !bp.AllowedOn(s.Map.Tile(c).Zone) {
			// In bounds, cannot fail.
			_ = s.Map.SetZone(c, zone)
		}
	})

	b := s.Map.NewBuilding(bp, pos)
	if err := s.AddBuilding(b); err != nil {
		return nil, err
	}
	return b, nil
}

func requiredZone(bp *world.Blueprint) world.Zone {
	switch bp.Category {
	case world.CategoryPowerPlant:
		return world.ZonePowerPlant
	case world.CategoryPowerLine:
		return world.ZonePowerLine
	default:
		return bp.GrowsIn
	}
}

// AddBuilding registers b and claims its footprint.
func (s *Simulation) AddBuilding(b *world.Building) error {
	if err := s.Map.AddBuilding(b); err != nil {
		return err
	}
	s.addEvent("tool", fmt.Sprintf("%s placed at (%d,%d)", b.Blueprint.Name, b.Position.Row, b.Position.Col))
	s.Stats.Buildings = s.Map.Buildings.Len()
	s.Metrics.SetBuildings(s.Stats.Buildings)
	return nil
}

// RemoveBuilding unregisters a building and frees its footprint.
func (s *Simulation) RemoveBuilding(id world.BuildingID) bool {
	b, ok := s.Map.Buildings.Get(id)
	if !ok {
		return false
	}
	s.Map.RemoveBuilding(id)
	s.addEvent("tool", fmt.Sprintf("%s at (%d,%d) demolished", b.Blueprint.Name, b.Position.Row, b.Position.Col))
	s.Stats.Buildings = s.Map.Buildings.Len()
	s.Metrics.SetBuildings(s.Stats.Buildings)
	return true
}

// Bulldoze removes whatever building covers c.
func (s *Simulation) Bulldoze(c world.Coord) (world.BuildingID, bool) {
	b, ok := s.Map.BuildingAt(c)
	if !ok {
		return world.NoBuilding, false
	}
	return b.ID, s.RemoveBuilding(b.ID)
}

// SetZone rezones a tile through the tool layer.
func (s *Simulation) SetZone(c world.Coord, zone world.Zone) error {
	before := s.Map.Buildings.Len()
	if err := s.Map.SetZone(c, zone); err != nil {
		return err
	}
	if s.Map.Buildings.Len() != before {
		s.addEvent("tool", fmt.Sprintf("rezoning (%d,%d) to %s demolished a building", c.Row, c.Col, zone))
		s.Stats.Buildings = s.Map.Buildings.Len()
		s.Metrics.SetBuildings(s.Stats.Buildings)
	}
	return nil
}

// SetElevatedZone changes a tile's overlay layer through the tool layer.
func (s *Simulation) SetElevatedZone(c world.Coord, zone world.ElevatedZone) error {
	return s.Map.SetElevatedZone(c, zone)
}

func (s *Simulation) addEvent(category, desc string) {
	e := Event{Day: s.Clock.Day(), Description: desc, Category: category}
	s.Events = append(s.Events, e)
	if len(s.Events) > 2*maxEvents {
		s.trimEvents()
	}
	if s.OnEvent != nil {
		s.OnEvent(e)
	}
}

// trimEvents keeps the last maxEvents events.
func (s *Simulation) trimEvents() {
	if len(s.Events) > maxEvents {
		s.Events = append([]Event(nil), s.Events[len(s.Events)-maxEvents:]...)
	}
}

// RecentEvents returns up to n of the newest events, oldest first.
func (s *Simulation) RecentEvents(n int) []Event {
	if n <= 0 || n > len(s.Events) {
		n = len(s.Events)
	}
	out := make([]Event, n)
	copy(out, s.Events[len(s.Events)-n:])
	return out
}

func (s *Simulation) updateStats() {
	capacity, consumed := s.LastPower.Totals()
	s.Stats.Day = s.Clock.Day()
	s.Stats.Date = SimTime(s.Stats.Day)
	s.Stats.Buildings = s.Map.Buildings.Len()
	s.Stats.PoweredTiles = s.LastPower.PoweredTiles
	s.Stats.PowerCapacity = capacity
	s.Stats.PowerConsumed = consumed
	s.Stats.Valves = s.Economy.Valves
	s.Stats.Population = s.Economy.LastCensus
	s.Metrics.SetBuildings(s.Stats.Buildings)
}

func (s *Simulation) logDailyReport() {
	eventCounts := make(map[string]int)
	for _, e := range s.Events {
		if e.Day == s.Stats.Day {
			eventCounts[e.Category]++
		}
	}

	slog.Info("daily report",
		"day", s.Stats.Day,
		"time", s.Stats.Date,
		"buildings", humanize.Comma(int64(s.Stats.Buildings)),
		"powered_tiles", humanize.Comma(int64(s.Stats.PoweredTiles)),
		"power", fmt.Sprintf("%s/%s", humanize.Ftoa(s.Stats.PowerConsumed), humanize.Ftoa(s.Stats.PowerCapacity)),
		"residents", humanize.Comma(int64(s.Stats.Population.Residential)),
		"res_valve", fmt.Sprintf("%.0f", s.Stats.Valves.Residential),
		"com_valve", fmt.Sprintf("%.0f", s.Stats.Valves.Commercial),
		"ind_valve", fmt.Sprintf("%.0f", s.Stats.Valves.Industrial),
		"events_power", eventCounts["power"],
		"events_growth", eventCounts["growth"],
		"events_economy", eventCounts["economy"],
		"events_tool", eventCounts["tool"],
	)
}
