// Package metrics exposes Prometheus instrumentation for the simulation
// passes. A nil *Collector is valid and records nothing.
package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles the simulation gauges, counters and histograms.
type Collector struct {
	gatherer prometheus.Gatherer

	PassDurations *prometheus.HistogramVec
	Passes        *prometheus.CounterVec

	PoweredTiles     prometheus.Gauge
	Stations         prometheus.Gauge
	PowerCapacity    prometheus.Gauge
	PowerConsumed    prometheus.Gauge
	GrowthCandidates prometheus.Gauge
	Constructed      prometheus.Counter
	Buildings        prometheus.Gauge
	Population       *prometheus.GaugeVec
	Valves           *prometheus.GaugeVec
	SimDay           prometheus.Gauge
}

// NewCollector registers the simulation metrics against reg, defaulting to
// the global Prometheus registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &Collector{
		gatherer: gatherer,
		PassDurations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gridcity_pass_duration_seconds",
			Help:    "Duration of simulation passes in seconds, labeled by pass.",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"pass"}),
		Passes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gridcity_passes_total",
			Help: "Total number of simulation passes run, labeled by pass.",
		}, []string{"pass"}),
		PoweredTiles: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gridcity_powered_tiles",
			Help: "Tiles supplied by a power station after the last solve.",
		}),
		Stations: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gridcity_power_stations",
			Help: "Power generating buildings seen by the last solve.",
		}),
		PowerCapacity: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gridcity_power_capacity",
			Help: "Total generation capacity across stations.",
		}),
		PowerConsumed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gridcity_power_consumed",
			Help: "Total power drawn across stations in the last solve.",
		}),
		GrowthCandidates: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gridcity_growth_candidates",
			Help: "Tiles eligible for growth in the last growth pass.",
		}),
		Constructed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gridcity_buildings_constructed_total",
			Help: "Buildings materialized by the growth engine.",
		}),
		Buildings: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gridcity_buildings",
			Help: "Buildings currently registered.",
		}),
		Population: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gridcity_population",
			Help: "Census population per RCI sector.",
		}, []string{"sector"}),
		Valves: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gridcity_valve",
			Help: "Current RCI valve level per sector.",
		}, []string{"sector"}),
		SimDay: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gridcity_sim_day",
			Help: "Current simulated day.",
		}),
	}

	collectors := map[string]prometheus.Collector{
		"gridcity_pass_duration_seconds":       c.PassDurations,
		"gridcity_passes_total":                c.Passes,
		"gridcity_powered_tiles":               c.PoweredTiles,
		"gridcity_power_stations":              c.Stations,
		"gridcity_power_capacity":              c.PowerCapacity,
		"gridcity_power_consumed":              c.PowerConsumed,
		"gridcity_growth_candidates":           c.GrowthCandidates,
		"gridcity_buildings_constructed_total": c.Constructed,
		"gridcity_buildings":                   c.Buildings,
		"gridcity_population":                  c.Population,
		"gridcity_valve":                       c.Valves,
		"gridcity_sim_day":                     c.SimDay,
	}
	for name, col := range collectors {
		if err := register(reg, col); err != nil {
			return nil, fmt.Errorf("register %s: %w", name, err)
		}
	}
	return c, nil
}

// register tolerates collectors that are already registered so a process
// can build more than one Collector against the default registry.
func register(reg prometheus.Registerer, col prometheus.Collector) error {
	if err := reg.Register(col); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return nil
		}
		return err
	}
	return nil
}

// ObservePower records a power solve.
func (c *Collector) ObservePower(d time.Duration, stations, poweredTiles int, capacity, consumed float64) {
	if c == nil {
		return
	}
	c.observePass("power", d)
	c.Stations.Set(float64(stations))
	c.PoweredTiles.Set(float64(poweredTiles))
	c.PowerCapacity.Set(capacity)
	c.PowerConsumed.Set(consumed)
}

// ObserveGrowth records a growth pass.
func (c *Collector) ObserveGrowth(d time.Duration, candidates, constructed int) {
	if c == nil {
		return
	}
	c.observePass("growth", d)
	c.GrowthCandidates.Set(float64(candidates))
	c.Constructed.Add(float64(constructed))
}

// ObserveValves records a valve update and the census behind it.
func (c *Collector) ObserveValves(d time.Duration, res, com, ind, resPop, comPop, indPop float64) {
	if c == nil {
		return
	}
	c.observePass("valves", d)
	c.Valves.WithLabelValues("residential").Set(res)
	c.Valves.WithLabelValues("commercial").Set(com)
	c.Valves.WithLabelValues("industrial").Set(ind)
	c.Population.WithLabelValues("residential").Set(resPop)
	c.Population.WithLabelValues("commercial").Set(comPop)
	c.Population.WithLabelValues("industrial").Set(indPop)
}

// SetBuildings records the registry size.
func (c *Collector) SetBuildings(n int) {
	if c == nil {
		return
	}
	c.Buildings.Set(float64(n))
}

// SetDay records the simulated day.
func (c *Collector) SetDay(day int) {
	if c == nil {
		return
	}
	c.SimDay.Set(float64(day))
}

func (c *Collector) observePass(pass string, d time.Duration) {
	c.Passes.WithLabelValues(pass).Inc()
	c.PassDurations.WithLabelValues(pass).Observe(d.Seconds())
}

// Handler serves the collector's registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}
