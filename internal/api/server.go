// Package api provides the HTTP API for observing and editing the city.
// GET endpoints are public (read-only observation).
// POST endpoints require a bearer token (tool layer).
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/talgya/gridcity/internal/economy"
	"github.com/talgya/gridcity/internal/engine"
	"github.com/talgya/gridcity/internal/metrics"
	"github.com/talgya/gridcity/internal/persistence"
	"github.com/talgya/gridcity/internal/world"
)

// Server serves the city over HTTP.
type Server struct {
	Eng      *engine.Engine
	DB       *persistence.DB    // Optional; history endpoints 503 without it
	Hub      *Hub               // Optional; stream endpoint 503 without it
	Metrics  *metrics.Collector // Optional; /metrics is not mounted without it
	Port     int
	AdminKey string // Bearer token for POST endpoints. Empty = POST disabled.

	// Tool requests allowed per client per minute.
	RequestsPerMinute int

	srv *http.Server
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	rpm := s.RequestsPerMinute
	if rpm <= 0 {
		rpm = 30
	}
	toolLimiter := NewRateLimiter(rpm, time.Minute)
	tool := func(h http.HandlerFunc) http.HandlerFunc {
		return s.adminOnly(RateLimitMiddleware(toolLimiter, postOnly(h)))
	}

	mux := http.NewServeMux()

	// Public endpoints (GET, read-only).
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/map", s.handleMap)
	mux.HandleFunc("/api/v1/tile/", s.handleTile)
	mux.HandleFunc("/api/v1/buildings", s.handleBuildings)
	mux.HandleFunc("/api/v1/blueprints", s.handleBlueprints)
	mux.HandleFunc("/api/v1/valves", s.handleValves)
	mux.HandleFunc("/api/v1/power", s.handlePower)
	mux.HandleFunc("/api/v1/events", s.handleEvents)
	mux.HandleFunc("/api/v1/stats/history", s.handleStatsHistory)
	mux.HandleFunc("/api/v1/stream", s.handleStream)
	if s.Metrics != nil {
		mux.Handle("/metrics", s.Metrics.Handler())
	}

	// Tool endpoints (POST, require bearer token).
	mux.HandleFunc("/api/v1/zone", tool(s.handleZone))
	mux.HandleFunc("/api/v1/building", tool(s.handleBuilding))
	mux.HandleFunc("/api/v1/bulldoze", tool(s.handleBulldoze))
	mux.HandleFunc("/api/v1/speed", s.adminOnly(s.handleSpeed))

	return corsMiddleware(mux)
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() {
	addr := fmt.Sprintf(":%d", s.Port)
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "", "metrics", s.Metrics != nil)

	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

// Shutdown stops the listener started by Start.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Set CORS_ORIGINS env var to a comma-separated list of allowed origins.
// Localhost dev servers are always allowed.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:4173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// checkBearerToken returns true if the request has a valid admin bearer token.
func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// adminOnly wraps a handler to require bearer token auth on POST requests.
// GET requests pass through (for endpoints that support both GET and POST).
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			if s.AdminKey == "" {
				http.Error(w, "tool endpoints disabled (no GRIDCITY_ADMIN_KEY set)", http.StatusForbidden)
				return
			}
			if !s.checkBearerToken(r) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next(w, r)
	}
}

func postOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var status map[string]any
	s.Eng.Do(func(sim *engine.Simulation) {
		status = map[string]any{
			"name":          "gridcity",
			"day":           sim.Clock.Day(),
			"sim_time":      engine.SimTime(sim.Clock.Day()),
			"rows":          sim.Map.Rows,
			"cols":          sim.Map.Cols,
			"buildings":     sim.Map.Buildings.Len(),
			"powered_tiles": sim.Stats.PoweredTiles,
			"population":    sim.Stats.Population,
			"valves":        sim.Economy.Valves,
		}
	})
	status["speed"] = s.Eng.Speed()
	status["running"] = s.Eng.Running()
	if s.Hub != nil {
		status["stream_clients"] = s.Hub.Clients()
	}
	writeJSON(w, status)
}

// mapLayers is the whole grid as parallel row-major layers. Enum layers are
// plain ints so they encode as arrays rather than base64.
type mapLayers struct {
	Rows      int                `json:"rows"`
	Cols      int                `json:"cols"`
	Terrain   []int              `json:"terrain"`
	Zone      []int              `json:"zone"`
	Elevated  []int              `json:"elevated"`
	Flat      []bool             `json:"flat"`
	Building  []world.BuildingID `json:"building"`
	PoweredBy []world.BuildingID `json:"powered_by"`
}

// handleMap returns every tile for the renderer's initial load.
func (s *Server) handleMap(w http.ResponseWriter, r *http.Request) {
	var out mapLayers
	s.Eng.Do(func(sim *engine.Simulation) {
		m := sim.Map
		n := m.TileCount()
		out = mapLayers{
			Rows:      m.Rows,
			Cols:      m.Cols,
			Terrain:   make([]int, 0, n),
			Zone:      make([]int, 0, n),
			Elevated:  make([]int, 0, n),
			Flat:      make([]bool, 0, n),
			Building:  make([]world.BuildingID, 0, n),
			PoweredBy: make([]world.BuildingID, 0, n),
		}
		for row := range m.Tiles {
			for col := range m.Tiles[row] {
				t := &m.Tiles[row][col]
				out.Terrain = append(out.Terrain, int(t.Terrain))
				out.Zone = append(out.Zone, int(t.Zone))
				out.Elevated = append(out.Elevated, int(t.Elevated))
				out.Flat = append(out.Flat, t.IsFlat)
				out.Building = append(out.Building, t.Building)
				out.PoweredBy = append(out.PoweredBy, t.PoweredBy)
			}
		}
	})
	writeJSON(w, out)
}

// tileDetail is one tile with names resolved.
type tileDetail struct {
	Row        int              `json:"row"`
	Col        int              `json:"col"`
	Terrain    string           `json:"terrain"`
	Zone       string           `json:"zone"`
	Elevated   bool             `json:"elevated_power_line"`
	Flat       bool             `json:"flat"`
	Conductive bool             `json:"conductive"`
	PoweredBy  world.BuildingID `json:"powered_by"`
	Baseline   float64          `json:"baseline_growth_score"`
	Accruing   float64          `json:"accruing_growth_score"`
	GrowthCap  float64          `json:"growth_cap"`
	Building   *buildingView    `json:"building,omitempty"`
}

// handleTile serves GET /api/v1/tile/{row}/{col}.
func (s *Server) handleTile(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/tile/"), "/"), "/")
	if len(parts) != 2 {
		http.Error(w, "use /api/v1/tile/{row}/{col}", http.StatusBadRequest)
		return
	}
	row, err1 := strconv.Atoi(parts[0])
	col, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		http.Error(w, "invalid tile coordinates", http.StatusBadRequest)
		return
	}

	var (
		detail tileDetail
		found  bool
	)
	s.Eng.Do(func(sim *engine.Simulation) {
		pos := world.Coord{Row: row, Col: col}
		t := sim.Map.Tile(pos)
		if t == nil {
			return
		}
		found = true
		detail = tileDetail{
			Row:        row,
			Col:        col,
			Terrain:    world.TerrainName(t.Terrain),
			Zone:       t.Zone.String(),
			Elevated:   t.Elevated == world.ElevatedPowerLine,
			Flat:       t.IsFlat,
			Conductive: t.IsConductive(),
			PoweredBy:  t.PoweredBy,
			Baseline:   t.BaselineGrowthScore,
			Accruing:   t.AccruingGrowthScore,
			GrowthCap:  sim.Map.GrowthCap(pos),
		}
		if b, ok := sim.Map.BuildingAt(pos); ok {
			v := viewOf(b)
			detail.Building = &v
		}
	})
	if !found {
		http.Error(w, "tile out of bounds", http.StatusNotFound)
		return
	}
	writeJSON(w, detail)
}

type buildingView struct {
	ID        world.BuildingID   `json:"id"`
	Blueprint world.BlueprintKey `json:"blueprint"`
	Name      string             `json:"name"`
	Row       int                `json:"row"`
	Col       int                `json:"col"`
	Width     int                `json:"width"`
	Height    int                `json:"height"`
	PoweredBy world.BuildingID   `json:"powered_by"`
	Voxels    int                `json:"voxels_to_display"`
}

func viewOf(b *world.Building) buildingView {
	return buildingView{
		ID:        b.ID,
		Blueprint: b.Blueprint.Key,
		Name:      b.Blueprint.Name,
		Row:       b.Position.Row,
		Col:       b.Position.Col,
		Width:     b.Blueprint.Width,
		Height:    b.Blueprint.Height,
		PoweredBy: b.PoweredBy,
		Voxels:    b.VoxelsToDisplay,
	}
}

func (s *Server) handleBuildings(w http.ResponseWriter, r *http.Request) {
	var out []buildingView
	s.Eng.Do(func(sim *engine.Simulation) {
		out = make([]buildingView, 0, sim.Map.Buildings.Len())
		sim.Map.Buildings.Each(func(b *world.Building) {
			out = append(out, viewOf(b))
		})
	})
	writeJSON(w, out)
}

func (s *Server) handleBlueprints(w http.ResponseWriter, r *http.Request) {
	out := make([]*world.Blueprint, 0, len(world.Blueprints))
	for _, bp := range world.Blueprints {
		out = append(out, bp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	writeJSON(w, out)
}

func (s *Server) handleValves(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if l := r.URL.Query().Get("history"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n >= 0 && n <= economy.HistoryLength {
			limit = n
		}
	}

	var out map[string]any
	s.Eng.Do(func(sim *engine.Simulation) {
		e := sim.Economy
		history := e.History.Entries()
		if len(history) > limit {
			history = history[:limit]
		}
		out = map[string]any{
			"valves":         e.Valves,
			"limits":         e.Limits,
			"difficulty":     e.Difficulty.String(),
			"tax_level":      e.TaxLevel,
			"tax_adjustment": e.TaxAdjustment(),
			"census":         e.LastCensus,
			"history":        history,
		}
	})
	writeJSON(w, out)
}

func (s *Server) handlePower(w http.ResponseWriter, r *http.Request) {
	var res engine.PowerResult
	s.Eng.Do(func(sim *engine.Simulation) {
		res = sim.LastPower
		res.Stations = append([]engine.StationLoad(nil), res.Stations...)
	})
	if res.Stations == nil {
		res.Stations = []engine.StationLoad{}
	}
	writeJSON(w, res)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	category := r.URL.Query().Get("category")

	var events []engine.Event
	s.Eng.Do(func(sim *engine.Simulation) {
		for _, e := range sim.Events {
			if category == "" || e.Category == category {
				events = append(events, e)
			}
		}
	})
	start := 0
	if len(events) > limit {
		start = len(events) - limit
	}
	if events == nil {
		events = []engine.Event{}
	}
	writeJSON(w, events[start:])
}

func (s *Server) handleStatsHistory(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}
	runID := r.URL.Query().Get("run")
	if runID == "" {
		run, ok := s.DB.CurrentRun()
		if !ok {
			writeJSON(w, []persistence.DailyReport{})
			return
		}
		runID = run.ID
	}

	rows, err := s.DB.LoadReports(runID)
	if err != nil {
		slog.Error("stats history query failed", "error", err)
		// Empty history rather than an error.
		writeJSON(w, []persistence.DailyReport{})
		return
	}
	if rows == nil {
		rows = []persistence.DailyReport{}
	}
	writeJSON(w, rows)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.Hub == nil {
		http.Error(w, "streaming disabled", http.StatusServiceUnavailable)
		return
	}
	s.Hub.ServeWs(w, r)
}

type zoneRequest struct {
	Row      int    `json:"row"`
	Col      int    `json:"col"`
	Zone     string `json:"zone"`
	Elevated string `json:"elevated,omitempty"` // "power_line" or "none"
}

func (s *Server) handleZone(w http.ResponseWriter, r *http.Request) {
	var req zoneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	var (
		zone      world.Zone
		elevated  world.ElevatedZone
		setZone   = req.Zone != ""
		setRaised = req.Elevated != ""
	)
	if setZone {
		z, ok := world.ParseZone(req.Zone)
		if !ok {
			http.Error(w, fmt.Sprintf("unknown zone %q", req.Zone), http.StatusBadRequest)
			return
		}
		zone = z
	}
	if setRaised {
		switch req.Elevated {
		case "power_line":
			elevated = world.ElevatedPowerLine
		case "none":
			elevated = world.ElevatedNone
		default:
			http.Error(w, fmt.Sprintf("unknown elevated zone %q", req.Elevated), http.StatusBadRequest)
			return
		}
	}
	if !setZone && !setRaised {
		http.Error(w, "zone or elevated required", http.StatusBadRequest)
		return
	}

	pos := world.Coord{Row: req.Row, Col: req.Col}
	var err error
	s.Eng.Do(func(sim *engine.Simulation) {
		if setZone {
			if err = sim.SetZone(pos, zone); err != nil {
				return
			}
		}
		if setRaised {
			err = sim.SetElevatedZone(pos, elevated)
		}
	})
	if err != nil {
		writeToolError(w, err)
		return
	}
	slog.Info("tile zoned", "row", pos.Row, "col", pos.Col, "zone", req.Zone, "elevated", req.Elevated)
	writeJSON(w, map[string]any{"ok": true, "row": pos.Row, "col": pos.Col})
}

type buildingRequest struct {
	Blueprint string `json:"blueprint"`
	Row       int    `json:"row"`
	Col       int    `json:"col"`
}

func (s *Server) handleBuilding(w http.ResponseWriter, r *http.Request) {
	var req buildingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	var (
		view buildingView
		err  error
	)
	s.Eng.Do(func(sim *engine.Simulation) {
		var b *world.Building
		b, err = sim.PlaceBuilding(world.BlueprintKey(req.Blueprint), world.Coord{Row: req.Row, Col: req.Col})
		if err == nil {
			view = viewOf(b)
		}
	})
	if err != nil {
		writeToolError(w, err)
		return
	}
	slog.Info("building placed", "blueprint", req.Blueprint, "id", view.ID, "row", req.Row, "col", req.Col)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(view)
}

func (s *Server) handleBulldoze(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Row int `json:"row"`
		Col int `json:"col"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	var (
		id world.BuildingID
		ok bool
	)
	s.Eng.Do(func(sim *engine.Simulation) {
		id, ok = sim.Bulldoze(world.Coord{Row: req.Row, Col: req.Col})
	})
	if !ok {
		http.Error(w, "no building on tile", http.StatusNotFound)
		return
	}
	writeJSON(w, map[string]any{"removed": id})
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		var req struct {
			Speed float64 `json:"speed"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if req.Speed < 0 || req.Speed > 1000 {
			http.Error(w, "speed must be 0-1000", http.StatusBadRequest)
			return
		}
		s.Eng.SetSpeed(req.Speed)
		slog.Info("speed changed", "speed", req.Speed)
	}

	writeJSON(w, map[string]float64{"speed": s.Eng.Speed()})
}

// writeToolError maps tool-layer errors onto HTTP statuses.
func writeToolError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, world.ErrOutOfBounds), errors.Is(err, world.ErrUnknownBlueprint):
		status = http.StatusBadRequest
	case errors.Is(err, world.ErrOccupied), errors.Is(err, world.ErrUnbuildable), errors.Is(err, world.ErrDuplicateID):
		status = http.StatusConflict
	}
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
