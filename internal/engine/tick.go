// Package engine provides the simulation clock, the run loop and the passes
// that mutate the city each tick: power, growth and the valve economy.
package engine

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// Calendar: a year is 12 months of 4 weeks of 7 days.
const (
	DaysPerWeek   = 7
	WeeksPerMonth = 4
	MonthsPerYear = 12
	DaysPerMonth  = DaysPerWeek * WeeksPerMonth
	DaysPerYear   = DaysPerMonth * MonthsPerYear
)

// ClockEvents reports the calendar boundaries crossed by one Advance.
type ClockEvents struct {
	NewDay   bool `json:"new_day"`
	NewWeek  bool `json:"new_week"`
	NewMonth bool `json:"new_month"`
}

// Clock is the continuous simulated calendar, measured in days.
type Clock struct {
	Days          float64 `json:"days"`
	DaysPerSecond float64 `json:"days_per_second"`
}

// NewClock returns a clock at day zero running one day per second.
func NewClock() *Clock {
	return &Clock{DaysPerSecond: 1.0}
}

// Advance moves the clock forward by deltaSeconds of real time. A week or
// month boundary is only reported together with the day boundary that lands
// on it.
func (c *Clock) Advance(deltaSeconds float64) ClockEvents {
	before := math.Floor(c.Days)
	c.Days += deltaSeconds * c.DaysPerSecond
	after := math.Floor(c.Days)

	var ev ClockEvents
	if after > before {
		day := int64(after)
		ev.NewDay = true
		ev.NewWeek = day%DaysPerWeek == 0
		ev.NewMonth = day%DaysPerMonth == 0
	}
	return ev
}

// Day returns the integer day number.
func (c *Clock) Day() int {
	return int(math.Floor(c.Days))
}

// Date is a calendar breakdown of a day number. All fields are 1-based.
type Date struct {
	Year  int `json:"year"`
	Month int `json:"month"`
	Week  int `json:"week"`
	Day   int `json:"day"`
}

// DateOf converts a day number to a calendar date.
func DateOf(day int) Date {
	if day < 0 {
		day = 0
	}
	inYear := day % DaysPerYear
	inMonth := inYear % DaysPerMonth
	return Date{
		Year:  day/DaysPerYear + 1,
		Month: inYear/DaysPerMonth + 1,
		Week:  inMonth/DaysPerWeek + 1,
		Day:   inMonth%DaysPerWeek + 1,
	}
}

// SimTime returns a human-readable simulation date from a day number.
func SimTime(day int) string {
	d := DateOf(day)
	return fmt.Sprintf("Year %d, Month %d, Week %d, Day %d", d.Year, d.Month, d.Week, d.Day)
}

// Engine drives a Simulation in real time. All access to the simulation
// from other goroutines goes through Do so the passes stay single threaded.
type Engine struct {
	Sim      *Simulation
	Interval time.Duration // Base tick interval (default 100ms)

	// Callbacks fired after the step that crossed the boundary.
	OnDay   func(day int)
	OnWeek  func(day int)
	OnMonth func(day int)

	mu      sync.Mutex
	speed   float64 // Multiplier: 1.0 = normal, 0 = paused
	running atomic.Bool
}

// NewEngine creates an engine with default settings.
func NewEngine(sim *Simulation) *Engine {
	return &Engine{
		Sim:      sim,
		Interval: 100 * time.Millisecond,
		speed:    1.0,
	}
}

// Speed returns the current speed multiplier.
func (e *Engine) Speed() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.speed
}

// SetSpeed changes the speed multiplier. Zero pauses the simulation.
func (e *Engine) SetSpeed(speed float64) {
	e.mu.Lock()
	e.speed = speed
	e.mu.Unlock()
}

// Running reports whether Run is active.
func (e *Engine) Running() bool {
	return e.running.Load()
}

// Run starts the simulation loop. Blocks until Stop() is called.
func (e *Engine) Run() {
	e.running.Store(true)
	slog.Info("simulation engine started", "day", e.Sim.Clock.Day(), "speed", e.Speed())

	for e.running.Load() {
		speed := e.Speed()
		if speed <= 0 {
			// Paused; check again shortly.
			time.Sleep(100 * time.Millisecond)
			continue
		}

		start := time.Now()
		e.Step(e.Interval.Seconds() * speed)

		elapsed := time.Since(start)
		if elapsed < e.Interval {
			time.Sleep(e.Interval - elapsed)
		}
	}

	slog.Info("simulation engine stopped", "day", e.Sim.Clock.Day())
}

// Stop halts the simulation loop.
func (e *Engine) Stop() {
	e.running.Store(false)
}

// Step advances the simulation by deltaSeconds and fires boundary callbacks.
func (e *Engine) Step(deltaSeconds float64) ClockEvents {
	e.mu.Lock()
	defer e.mu.Unlock()

	ev := e.Sim.Update(deltaSeconds)
	day := e.Sim.Clock.Day()

	if ev.NewDay && e.OnDay != nil {
		e.OnDay(day)
	}
	if ev.NewWeek && e.OnWeek != nil {
		e.OnWeek(day)
	}
	if ev.NewMonth && e.OnMonth != nil {
		e.OnMonth(day)
	}
	return ev
}

// Do runs fn with exclusive access to the simulation.
func (e *Engine) Do(fn func(s *Simulation)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(e.Sim)
}
