package persistence

import (
	"fmt"
	"sync"

	"github.com/talgya/gridcity/internal/engine"
)

// Recorder buffers simulation events and writes a day's history when the
// engine reports a new day.
type Recorder struct {
	DB *DB

	// Days between full-map power frames; zero stores only dirty regions.
	FrameEveryDays int

	mu      sync.Mutex
	pending []engine.Event
}

// NewRecorder returns a recorder writing to db.
func NewRecorder(db *DB, frameEveryDays int) *Recorder {
	return &Recorder{DB: db, FrameEveryDays: frameEveryDays}
}

// Record queues an event. Suitable as Simulation.OnEvent.
func (r *Recorder) Record(e engine.Event) {
	r.mu.Lock()
	r.pending = append(r.pending, e)
	r.mu.Unlock()
}

// Flush writes the day's report, queued events and power frame. Call it with
// the simulation locked, as Engine.OnDay does.
func (r *Recorder) Flush(sim *engine.Simulation) error {
	day := sim.Clock.Day()
	if err := r.DB.SaveReport(ReportFromStats(sim.Stats)); err != nil {
		return err
	}

	r.mu.Lock()
	events := r.pending
	r.pending = nil
	r.mu.Unlock()
	if err := r.DB.SaveEvents(events); err != nil {
		return fmt.Errorf("save events day %d: %w", day, err)
	}

	region := sim.LastPower.Dirty
	if r.FrameEveryDays > 0 && day%r.FrameEveryDays == 0 {
		region = FullRegion(sim.Map)
	}
	if region.Empty() {
		return nil
	}
	return r.DB.SavePowerFrame(CaptureFrame(sim.Map, day, region))
}
