// Command citysim runs the grid city simulation and serves it over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/talgya/gridcity/internal/api"
	"github.com/talgya/gridcity/internal/config"
	"github.com/talgya/gridcity/internal/engine"
	"github.com/talgya/gridcity/internal/metrics"
	"github.com/talgya/gridcity/internal/persistence"
	"github.com/talgya/gridcity/internal/world"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (defaults are used when empty)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	var handler slog.Handler = slog.NewTextHandler(os.Stdout, opts)
	if cfg.Log.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))

	slog.Info("gridcity starting", "config", *configPath)

	// ── World Map ─────────────────────────────────────────────────────
	if cfg.World.Seed == 0 {
		cfg.World.Seed = rand.Int63()
	}
	slog.Info("generating terrain...", "rows", cfg.World.Rows, "cols", cfg.World.Cols, "seed", cfg.World.Seed)
	cityMap := world.Generate(cfg.GenConfig())
	for t, c := range world.TerrainCounts(cityMap) {
		slog.Info("terrain", "type", world.TerrainName(t), "count", humanize.Comma(int64(c)))
	}
	slog.Info("buildable land", "flat_tiles", humanize.Comma(int64(world.FlatTiles(cityMap))))

	// ── Simulation ────────────────────────────────────────────────────
	econ, err := cfg.NewEconomy()
	if err != nil {
		slog.Error("invalid economy config", "error", err)
		os.Exit(1)
	}
	sim := engine.NewSimulation(cityMap, econ)
	sim.Clock.DaysPerSecond = cfg.Clock.DaysPerSecond
	sim.ValvePeriod = cfg.Clock.ValvePeriodSeconds
	sim.Growth.DemandWeight = cfg.Growth.DemandWeight
	sim.Growth.ValveDemandDivisor = cfg.Growth.ValveDemandDivisor
	sim.Growth.LightIndustryOnly = cfg.Growth.LightIndustryOnly

	var collector *metrics.Collector
	if cfg.API.Metrics {
		collector, err = metrics.NewCollector(prometheus.DefaultRegisterer)
		if err != nil {
			slog.Error("failed to register metrics", "error", err)
			os.Exit(1)
		}
		sim.Metrics = collector
	}

	eng := engine.NewEngine(sim)
	eng.Interval = cfg.TickInterval()
	eng.SetSpeed(cfg.Clock.Speed)

	// ── Database ──────────────────────────────────────────────────────
	var (
		db       *persistence.DB
		recorder *persistence.Recorder
	)
	if cfg.Storage.DBPath != "" {
		if dir := filepath.Dir(cfg.Storage.DBPath); dir != "." {
			os.MkdirAll(dir, 0755)
		}
		db, err = persistence.Open(cfg.Storage.DBPath)
		if err != nil {
			slog.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		if _, err := db.StartRun(cfg.World.Seed, cityMap.Rows, cityMap.Cols); err != nil {
			slog.Error("failed to start run", "error", err)
			os.Exit(1)
		}
		recorder = persistence.NewRecorder(db, cfg.Storage.FrameEveryDays)

		// OnDay fires inside Step with the simulation held.
		eng.OnDay = func(day int) {
			if err := recorder.Flush(sim); err != nil {
				slog.Error("daily flush failed", "day", day, "error", err)
			}
		}
	} else {
		slog.Warn("storage.db_path empty, run history will not be recorded")
	}

	// ── Live Stream ───────────────────────────────────────────────────
	hub := api.NewHub()
	go hub.Run()
	sim.Sink = hub
	sim.OnEvent = func(e engine.Event) {
		if recorder != nil {
			recorder.Record(e)
		}
		hub.PublishEvent(e)
	}

	// ── HTTP API ──────────────────────────────────────────────────────
	if cfg.API.AdminKey == "" {
		slog.Warn("GRIDCITY_ADMIN_KEY not set, tool endpoints will be disabled")
	}
	apiServer := &api.Server{
		Eng:               eng,
		DB:                db,
		Hub:               hub,
		Metrics:           collector,
		Port:              cfg.API.Port,
		AdminKey:          cfg.API.AdminKey,
		RequestsPerMinute: cfg.API.RequestsPerMinute,
	}
	apiServer.Start()

	// ── Start ─────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		eng.Stop()
	}()

	fmt.Printf("\ngridcity is up: %dx%d tiles, seed %d.\n", cityMap.Rows, cityMap.Cols, cfg.World.Seed)
	fmt.Printf("API: http://localhost:%d/api/v1/status\n", cfg.API.Port)
	fmt.Println("Starting simulation... (Ctrl+C to stop)")

	eng.Run()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		slog.Error("HTTP shutdown failed", "error", err)
	}
	hub.Close()

	eng.Do(func(sim *engine.Simulation) {
		slog.Info("simulation stopped",
			"day", sim.Clock.Day(),
			"sim_time", engine.SimTime(sim.Clock.Day()),
			"buildings", humanize.Comma(int64(sim.Map.Buildings.Len())),
		)
	})
	fmt.Println("Simulation stopped.")
}
