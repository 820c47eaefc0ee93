package world

import "sort"

// BlueprintKey names a static building definition.
type BlueprintKey string

// Category classifies blueprints.
type Category uint8

const (
	CategoryResidential Category = iota
	CategoryCommercial
	CategoryIndustrial
	CategoryPowerPlant
	CategoryPowerLine
)

// Blueprint is the static definition of a building type.
type Blueprint struct {
	Key      BlueprintKey `json:"key" yaml:"key"`
	Name     string       `json:"name" yaml:"name"`
	Category Category     `json:"category" yaml:"category"`

	// Zone this blueprint grows in; ZoneNone for blueprints only the tool
	// layer places.
	GrowsIn Zone `json:"grows_in" yaml:"grows_in"`

	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`

	PowerGenerated float64 `json:"power_generated" yaml:"power_generated"`
	PowerConsumed  float64 `json:"power_consumed" yaml:"power_consumed"`

	GrowthThreshold float64 `json:"growth_threshold" yaml:"growth_threshold"`
	GrowthCap       float64 `json:"growth_cap" yaml:"growth_cap"`

	HeavyIndustry bool    `json:"heavy_industry" yaml:"heavy_industry"`
	Output        float64 `json:"output" yaml:"output"`
	Population    float64 `json:"population" yaml:"population"`
}

// IsStation reports whether the blueprint generates power.
func (bp *Blueprint) IsStation() bool {
	return bp.PowerGenerated > 0
}

// IsGrown reports whether the growth engine builds this blueprint.
func (bp *Blueprint) IsGrown() bool {
	return bp.GrowsIn.IsDynamic()
}

// IsPlaceholder reports whether growth may build over the blueprint freely.
func (bp *Blueprint) IsPlaceholder() bool {
	return bp.Category == CategoryPowerLine
}

// AllowedOn reports whether a building of this blueprint may remain on a
// tile zoned z.
func (bp *Blueprint) AllowedOn(z Zone) bool {
	switch bp.Category {
	case CategoryPowerPlant:
		return z == ZonePowerPlant
	case CategoryPowerLine:
		return z == ZonePowerLine || z.IsDynamic()
	default:
		return z == bp.GrowsIn
	}
}

// Default growth caps for tiles that hold no building.
const (
	LightZoneGrowthCap = 60.0
	DenseZoneGrowthCap = 200.0
)

// DefaultGrowthCap returns the growth cap of an empty tile zoned z.
func DefaultGrowthCap(z Zone) float64 {
	if !z.IsDynamic() {
		return 0
	}
	if z.IsDense() {
		return DenseZoneGrowthCap
	}
	return LightZoneGrowthCap
}

// Blueprint keys.
const (
	BlueprintCoalPlant    BlueprintKey = "coal_plant"
	BlueprintWindTurbine  BlueprintKey = "wind_turbine"
	BlueprintPylon        BlueprintKey = "pylon"
	BlueprintCottage      BlueprintKey = "cottage"
	BlueprintTownhouse    BlueprintKey = "townhouse"
	BlueprintApartments   BlueprintKey = "apartments"
	BlueprintCornerShop   BlueprintKey = "corner_shop"
	BlueprintOffice       BlueprintKey = "office"
	BlueprintOfficeTower  BlueprintKey = "office_tower"
	BlueprintWorkshop     BlueprintKey = "workshop"
	BlueprintFactory      BlueprintKey = "factory"
	BlueprintHeavyWorks   BlueprintKey = "heavy_works"
	BlueprintResidenceTwr BlueprintKey = "residence_tower"
)

// Blueprints is the static catalog, keyed by blueprint key.
var Blueprints = map[BlueprintKey]*Blueprint{
	BlueprintCoalPlant: {
		Key: BlueprintCoalPlant, Name: "Coal Plant", Category: CategoryPowerPlant,
		Width: 2, Height: 2, PowerGenerated: 100, HeavyIndustry: true,
	},
	BlueprintWindTurbine: {
		Key: BlueprintWindTurbine, Name: "Wind Turbine", Category: CategoryPowerPlant,
		Width: 1, Height: 1, PowerGenerated: 10,
	},
	BlueprintPylon: {
		Key: BlueprintPylon, Name: "Pylon", Category: CategoryPowerLine,
		Width: 1, Height: 1,
	},

	BlueprintCottage: {
		Key: BlueprintCottage, Name: "Cottage", Category: CategoryResidential,
		GrowsIn: ZoneLightResidential, Width: 1, Height: 1,
		PowerConsumed: 1, GrowthThreshold: 10, GrowthCap: LightZoneGrowthCap, Population: 4,
	},
	BlueprintTownhouse: {
		Key: BlueprintTownhouse, Name: "Townhouse", Category: CategoryResidential,
		GrowsIn: ZoneLightResidential, Width: 1, Height: 1,
		PowerConsumed: 2, GrowthThreshold: 40, GrowthCap: LightZoneGrowthCap, Population: 10,
	},
	BlueprintApartments: {
		Key: BlueprintApartments, Name: "Apartments", Category: CategoryResidential,
		GrowsIn: ZoneDenseResidential, Width: 1, Height: 1,
		PowerConsumed: 3, GrowthThreshold: 30, GrowthCap: DenseZoneGrowthCap, Population: 24,
	},
	BlueprintResidenceTwr: {
		Key: BlueprintResidenceTwr, Name: "Residence Tower", Category: CategoryResidential,
		GrowsIn: ZoneDenseResidential, Width: 2, Height: 2,
		PowerConsumed: 4, GrowthThreshold: 120, GrowthCap: DenseZoneGrowthCap, Population: 160,
	},

	BlueprintCornerShop: {
		Key: BlueprintCornerShop, Name: "Corner Shop", Category: CategoryCommercial,
		GrowsIn: ZoneLightCommercial, Width: 1, Height: 1,
		PowerConsumed: 1, GrowthThreshold: 10, GrowthCap: LightZoneGrowthCap, Population: 4,
	},
	BlueprintOffice: {
		Key: BlueprintOffice, Name: "Office", Category: CategoryCommercial,
		GrowsIn: ZoneDenseCommercial, Width: 1, Height: 1,
		PowerConsumed: 3, GrowthThreshold: 30, GrowthCap: DenseZoneGrowthCap, Population: 20,
	},
	BlueprintOfficeTower: {
		Key: BlueprintOfficeTower, Name: "Office Tower", Category: CategoryCommercial,
		GrowsIn: ZoneDenseCommercial, Width: 2, Height: 2,
		PowerConsumed: 5, GrowthThreshold: 120, GrowthCap: DenseZoneGrowthCap, Population: 120,
	},

	BlueprintWorkshop: {
		Key: BlueprintWorkshop, Name: "Workshop", Category: CategoryIndustrial,
		GrowsIn: ZoneLightIndustrial, Width: 1, Height: 1,
		PowerConsumed: 2, GrowthThreshold: 10, GrowthCap: LightZoneGrowthCap, Output: 4, Population: 6,
	},
	BlueprintFactory: {
		Key: BlueprintFactory, Name: "Factory", Category: CategoryIndustrial,
		GrowsIn: ZoneLightIndustrial, Width: 1, Height: 1,
		PowerConsumed: 4, GrowthThreshold: 40, GrowthCap: LightZoneGrowthCap, Output: 10, Population: 12,
	},
	BlueprintHeavyWorks: {
		Key: BlueprintHeavyWorks, Name: "Heavy Works", Category: CategoryIndustrial,
		GrowsIn: ZoneDenseIndustrial, Width: 2, Height: 2,
		PowerConsumed: 6, GrowthThreshold: 60, GrowthCap: DenseZoneGrowthCap, HeavyIndustry: true,
		Output: 30, Population: 40,
	},
}

// Lookup returns the blueprint for key.
func Lookup(key BlueprintKey) (*Blueprint, bool) {
	bp, ok := Blueprints[key]
	return bp, ok
}

// GrowableFor returns the blueprints that grow in z, lowest threshold first.
func GrowableFor(z Zone) []*Blueprint {
	var out []*Blueprint
	for _, bp := range Blueprints {
		if bp.GrowsIn == z && z.IsDynamic() {
			out = append(out, bp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].GrowthThreshold != out[j].GrowthThreshold {
			return out[i].GrowthThreshold < out[j].GrowthThreshold
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// BestFor returns the highest-threshold blueprint growing in z whose
// threshold is at or below score.
func BestFor(z Zone, score float64) (*Blueprint, bool) {
	var best *Blueprint
	for _, bp := range GrowableFor(z) {
		if bp.GrowthThreshold <= score {
			best = bp
		}
	}
	return best, best != nil
}
