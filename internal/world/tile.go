// Package world provides the tile grid, zoning, buildings and the static
// blueprint catalog. Tiles are addressed [row][col] with (0,0) top-left.
package world

// Coord is a tile position.
type Coord struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// Add returns c offset by dr rows and dc columns.
func (c Coord) Add(dr, dc int) Coord {
	return Coord{Row: c.Row + dr, Col: c.Col + dc}
}

// Terrain types for tiles.
type Terrain uint8

const (
	TerrainPlain Terrain = iota
	TerrainGrass
	TerrainWater
)

// Zone is the ground-level land use of a tile.
type Zone uint8

const (
	ZoneNone Zone = iota
	ZoneLightResidential
	ZoneDenseResidential
	ZoneLightCommercial
	ZoneDenseCommercial
	ZoneLightIndustrial
	ZoneDenseIndustrial
	ZoneRoad
	ZonePowerLine
	ZonePowerPlant
)

// ZoneGroup collapses zone densities into the RCI triple.
type ZoneGroup uint8

const (
	GroupNone ZoneGroup = iota
	GroupResidential
	GroupCommercial
	GroupIndustrial
)

// IsDynamic reports whether buildings grow on this zone by themselves.
func (z Zone) IsDynamic() bool {
	return z >= ZoneLightResidential && z <= ZoneDenseIndustrial
}

// IsDense reports whether z is one of the dense RCI variants.
func (z Zone) IsDense() bool {
	return z == ZoneDenseResidential || z == ZoneDenseCommercial || z == ZoneDenseIndustrial
}

// Group returns the RCI group for dynamic zones and GroupNone otherwise.
func (z Zone) Group() ZoneGroup {
	switch z {
	case ZoneLightResidential, ZoneDenseResidential:
		return GroupResidential
	case ZoneLightCommercial, ZoneDenseCommercial:
		return GroupCommercial
	case ZoneLightIndustrial, ZoneDenseIndustrial:
		return GroupIndustrial
	default:
		return GroupNone
	}
}

var zoneNames = map[Zone]string{
	ZoneNone:             "none",
	ZoneLightResidential: "light_residential",
	ZoneDenseResidential: "dense_residential",
	ZoneLightCommercial:  "light_commercial",
	ZoneDenseCommercial:  "dense_commercial",
	ZoneLightIndustrial:  "light_industrial",
	ZoneDenseIndustrial:  "dense_industrial",
	ZoneRoad:             "road",
	ZonePowerLine:        "power_line",
	ZonePowerPlant:       "power_plant",
}

// String returns the wire name of the zone.
func (z Zone) String() string {
	if name, ok := zoneNames[z]; ok {
		return name
	}
	return "unknown"
}

// ParseZone resolves a wire name back to its zone.
func ParseZone(name string) (Zone, bool) {
	for z, n := range zoneNames {
		if n == name {
			return z, true
		}
	}
	return ZoneNone, false
}

// ElevatedZone is the overlay layer above the ground zone.
type ElevatedZone uint8

const (
	ElevatedNone ElevatedZone = iota
	ElevatedPowerLine
)

// Tile is a single grid cell.
type Tile struct {
	Terrain  Terrain      `json:"terrain"`
	Zone     Zone         `json:"zone"`
	Elevated ElevatedZone `json:"elevated"`

	// All four corner heights equal. Fixed at world creation.
	IsFlat bool `json:"is_flat"`

	// Owning building, NoBuilding when empty.
	Building BuildingID `json:"building,omitempty"`

	// Station supplying this tile now and at the previous solve.
	PoweredBy    BuildingID `json:"powered_by,omitempty"`
	WasPoweredBy BuildingID `json:"was_powered_by,omitempty"`

	BaselineGrowthScore float64 `json:"baseline_growth_score"`
	AccruingGrowthScore float64 `json:"accruing_growth_score"`
}

// HasPower reports whether a station currently supplies the tile.
func (t *Tile) HasPower() bool {
	return t.PoweredBy != NoBuilding
}

// IsPowerLine reports whether the tile carries a power line on either layer.
func (t *Tile) IsPowerLine() bool {
	return t.Zone == ZonePowerLine || t.Elevated == ElevatedPowerLine
}

// IsConductive reports whether power propagates through the tile: power
// lines always, building-occupied tiles unless zoned road or unzoned.
func (t *Tile) IsConductive() bool {
	if t.IsPowerLine() {
		return true
	}
	if t.Building == NoBuilding {
		return false
	}
	return t.Zone != ZoneRoad && t.Zone != ZoneNone
}

// TerrainName returns a human-readable name for a terrain type.
func TerrainName(t Terrain) string {
	switch t {
	case TerrainPlain:
		return "Plain"
	case TerrainGrass:
		return "Grass"
	case TerrainWater:
		return "Water"
	default:
		return "Unknown"
	}
}
