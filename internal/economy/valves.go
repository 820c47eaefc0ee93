// Package economy provides the RCI valve economy: aggregate residential,
// commercial and industrial growth pressure driven by census ratios and tax
// policy.
package economy

import (
	"fmt"
	"strings"

	"github.com/talgya/gridcity/internal/numeric"
)

// Difficulty offsets the tax table and scales projected industry.
type Difficulty int

const (
	DifficultyEasy Difficulty = iota
	DifficultyMedium
	DifficultyHard
)

var difficultyNames = [...]string{"easy", "medium", "hard"}

// industryMultiplier scales projected industrial population per difficulty.
var industryMultiplier = [...]float64{1.2, 1.1, 0.98}

// String returns the config name of the difficulty.
func (d Difficulty) String() string {
	if d < 0 || int(d) >= len(difficultyNames) {
		return "unknown"
	}
	return difficultyNames[d]
}

// IndustryMultiplier returns the projected-industry scale for d.
func (d Difficulty) IndustryMultiplier() float64 {
	if d < 0 || int(d) >= len(industryMultiplier) {
		return 1
	}
	return industryMultiplier[d]
}

// ParseDifficulty resolves a config name.
func ParseDifficulty(name string) (Difficulty, error) {
	for i, n := range difficultyNames {
		if strings.EqualFold(strings.TrimSpace(name), n) {
			return Difficulty(i), nil
		}
	}
	return DifficultyEasy, fmt.Errorf("unknown difficulty %q", name)
}

// TaxTable maps the effective tax level to a flat valve adjustment.
var TaxTable = [...]float64{
	200, 150, 120, 100, 80, 50, 30, 0, -10, -40, -100,
	-150, -200, -250, -300, -350, -400, -450, -500, -550, -600,
}

// Valve model constants.
const (
	ResidentialPopulationFactor = 8.0  // Raw residents per normalized unit
	BirthRate                   = 0.02 // Births per normalized resident per cycle
	LaborBaseMax                = 1.3
	InternalMarketDivisor       = 3.7
	MinProjectedIndustry        = 5.0
	EmptyResidentialRatio       = 1.3 // Residential ratio when nobody lives in the city
	RatioLimit                  = 2.0
	RatioScale                  = 600.0
	HistoryLength               = 120
)

// Census accumulates population per RCI group for one valve cycle.
type Census struct {
	Residential float64 `json:"residential"`
	Commercial  float64 `json:"commercial"`
	Industrial  float64 `json:"industrial"`
}

// Clear zeroes the accumulators.
func (c *Census) Clear() {
	*c = Census{}
}

// Valves are the three bounded growth pressures.
type Valves struct {
	Residential float64 `json:"residential"`
	Commercial  float64 `json:"commercial"`
	Industrial  float64 `json:"industrial"`
}

// Limits are the maximum valve magnitudes.
type Limits struct {
	Residential float64 `json:"residential" yaml:"residential"`
	Commercial  float64 `json:"commercial" yaml:"commercial"`
	Industrial  float64 `json:"industrial" yaml:"industrial"`
}

// DefaultLimits returns the standard valve bounds.
func DefaultLimits() Limits {
	return Limits{Residential: 2000, Commercial: 1500, Industrial: 1500}
}

// Economy holds valve state between cycles.
type Economy struct {
	Valves     Valves     `json:"valves"`
	Limits     Limits     `json:"limits"`
	Difficulty Difficulty `json:"difficulty"`
	TaxLevel   int        `json:"tax_level"`
	History    *History   `json:"-"`

	// Census used by the most recent Update.
	LastCensus Census `json:"last_census"`
}

// New creates an economy with zeroed valves.
func New(difficulty Difficulty, taxLevel int) *Economy {
	return &Economy{
		Limits:     DefaultLimits(),
		Difficulty: difficulty,
		TaxLevel:   taxLevel,
		History:    NewHistory(HistoryLength),
	}
}

// TaxAdjustment returns the tax table entry for the current tax level and
// difficulty.
func (e *Economy) TaxAdjustment() float64 {
	idx := numeric.Clamp(e.TaxLevel+int(e.Difficulty), 0, len(TaxTable)-1)
	return TaxTable[idx]
}

// Update runs one valve cycle against a freshly taken census. Employment and
// labor ratios read the previous history entry, not this census.
func (e *Economy) Update(census Census) Valves {
	e.LastCensus = census
	prev, _ := e.History.Previous()

	normRes := census.Residential / ResidentialPopulationFactor

	employment := 1.0
	if normRes > 0 {
		employment = (prev.Commercial + prev.Industrial) / normRes
	}
	migration := normRes * (employment - 1)
	births := normRes * BirthRate
	projectedRes := normRes + migration + births

	laborBase := 1.0
	if jobs := prev.Commercial + prev.Industrial; jobs > 0 {
		laborBase = prev.Residential / jobs
	}
	laborBase = numeric.Clamp(laborBase, 0, LaborBaseMax)

	internalMarket := (normRes + census.Commercial + census.Industrial) / InternalMarketDivisor
	projectedCom := internalMarket * laborBase
	projectedInd := numeric.Max(census.Industrial*laborBase*e.Difficulty.IndustryMultiplier(), MinProjectedIndustry)

	resRatio := EmptyResidentialRatio
	if normRes > 0 {
		resRatio = projectedRes / normRes
	}
	comRatio := ratio(projectedCom, census.Commercial)
	indRatio := ratio(projectedInd, census.Industrial)

	tax := e.TaxAdjustment()
	e.Valves.Residential = numeric.ClampMagnitude(e.Valves.Residential+valveDelta(resRatio, tax), e.Limits.Residential)
	e.Valves.Commercial = numeric.ClampMagnitude(e.Valves.Commercial+valveDelta(comRatio, tax), e.Limits.Commercial)
	e.Valves.Industrial = numeric.ClampMagnitude(e.Valves.Industrial+valveDelta(indRatio, tax), e.Limits.Industrial)

	e.History.Push(Snapshot{
		Residential: normRes,
		Commercial:  census.Commercial,
		Industrial:  census.Industrial,
		Valves:      e.Valves,
	})
	return e.Valves
}

// ratio divides projected by current; an empty sector reports the
// projection itself.
func ratio(projected, current float64) float64 {
	if current > 0 {
		return projected / current
	}
	return projected
}

func valveDelta(r, tax float64) float64 {
	r = numeric.ClampMagnitude(r, RatioLimit)
	return (r-1)*RatioScale + tax
}
