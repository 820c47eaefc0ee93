package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/talgya/gridcity/internal/engine"
	"github.com/talgya/gridcity/internal/metrics"
	"github.com/talgya/gridcity/internal/persistence"
	"github.com/talgya/gridcity/internal/world"
)

const testKey = "test-admin-key"

func newTestServer(t *testing.T, configure func(s *Server)) (*httptest.Server, *Server) {
	t.Helper()
	sim := engine.NewSimulation(world.NewFlatMap(8, 8), nil)
	s := &Server{Eng: engine.NewEngine(sim), AdminKey: testKey}
	if configure != nil {
		configure(s)
	}
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts, s
}

func post(t *testing.T, url, key string, body any) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestStatus(t *testing.T) {
	ts, _ := newTestServer(t, nil)
	var status map[string]any
	if code := getJSON(t, ts.URL+"/api/v1/status", &status); code != http.StatusOK {
		t.Fatalf("status code: got %d want 200", code)
	}
	if status["rows"] != float64(8) || status["day"] != float64(0) {
		t.Fatalf("unexpected status: %v", status)
	}
}

func TestToolEndpointsNeedToken(t *testing.T) {
	ts, _ := newTestServer(t, nil)
	body := buildingRequest{Blueprint: string(world.BlueprintWindTurbine), Row: 1, Col: 1}

	if resp := post(t, ts.URL+"/api/v1/building", "", body); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("no token: got %d want 401", resp.StatusCode)
	}
	if resp := post(t, ts.URL+"/api/v1/building", "wrong", body); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad token: got %d want 401", resp.StatusCode)
	}

	closed, _ := newTestServer(t, func(s *Server) { s.AdminKey = "" })
	if resp := post(t, closed.URL+"/api/v1/building", testKey, body); resp.StatusCode != http.StatusForbidden {
		t.Fatalf("no admin key configured: got %d want 403", resp.StatusCode)
	}

	resp, err := http.Get(ts.URL + "/api/v1/building")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("GET on tool endpoint: got %d want 405", resp.StatusCode)
	}
}

func TestPlaceAndBulldoze(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	resp := post(t, ts.URL+"/api/v1/building", testKey, buildingRequest{Blueprint: "coal_plant", Row: 2, Col: 2})
	if resp.StatusCode != http.StatusCreated {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("place: got %d want 201: %s", resp.StatusCode, b)
	}
	var placed buildingView
	if err := json.NewDecoder(resp.Body).Decode(&placed); err != nil {
		t.Fatal(err)
	}
	if placed.Blueprint != world.BlueprintCoalPlant || placed.Width != 2 {
		t.Fatalf("placed: got %+v", placed)
	}

	var buildings []buildingView
	getJSON(t, ts.URL+"/api/v1/buildings", &buildings)
	if len(buildings) != 1 || buildings[0].ID != placed.ID {
		t.Fatalf("buildings: got %+v", buildings)
	}

	if resp := post(t, ts.URL+"/api/v1/building", testKey, buildingRequest{Blueprint: "pylon", Row: 3, Col: 3}); resp.StatusCode != http.StatusConflict {
		t.Fatalf("occupied: got %d want 409", resp.StatusCode)
	}
	if resp := post(t, ts.URL+"/api/v1/building", testKey, buildingRequest{Blueprint: "castle", Row: 0, Col: 0}); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown blueprint: got %d want 400", resp.StatusCode)
	}

	if resp := post(t, ts.URL+"/api/v1/bulldoze", testKey, map[string]int{"row": 3, "col": 3}); resp.StatusCode != http.StatusOK {
		t.Fatalf("bulldoze: got %d want 200", resp.StatusCode)
	}
	if resp := post(t, ts.URL+"/api/v1/bulldoze", testKey, map[string]int{"row": 3, "col": 3}); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("bulldoze empty: got %d want 404", resp.StatusCode)
	}
}

func TestZoneAndTile(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	if resp := post(t, ts.URL+"/api/v1/zone", testKey, zoneRequest{Row: 4, Col: 5, Zone: "light_industrial"}); resp.StatusCode != http.StatusOK {
		t.Fatalf("zone: got %d want 200", resp.StatusCode)
	}
	if resp := post(t, ts.URL+"/api/v1/zone", testKey, zoneRequest{Row: 4, Col: 6, Elevated: "power_line"}); resp.StatusCode != http.StatusOK {
		t.Fatalf("elevated: got %d want 200", resp.StatusCode)
	}
	if resp := post(t, ts.URL+"/api/v1/zone", testKey, zoneRequest{Row: 4, Col: 5, Zone: "swamp"}); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown zone: got %d want 400", resp.StatusCode)
	}
	if resp := post(t, ts.URL+"/api/v1/zone", testKey, zoneRequest{Row: 40, Col: 5, Zone: "road"}); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("out of bounds: got %d want 400", resp.StatusCode)
	}

	var tile tileDetail
	if code := getJSON(t, ts.URL+"/api/v1/tile/4/5", &tile); code != http.StatusOK {
		t.Fatalf("tile: got %d want 200", code)
	}
	if tile.Zone != "light_industrial" || tile.GrowthCap != world.LightZoneGrowthCap {
		t.Fatalf("tile: got %+v", tile)
	}
	getJSON(t, ts.URL+"/api/v1/tile/4/6", &tile)
	if !tile.Elevated || !tile.Conductive {
		t.Fatalf("elevated tile: got %+v", tile)
	}

	if code := getJSON(t, ts.URL+"/api/v1/tile/99/0", nil); code != http.StatusNotFound {
		t.Fatalf("out of bounds tile: got %d want 404", code)
	}
	if code := getJSON(t, ts.URL+"/api/v1/tile/a/b", nil); code != http.StatusBadRequest {
		t.Fatalf("bad tile path: got %d want 400", code)
	}
}

func TestMapLayers(t *testing.T) {
	ts, _ := newTestServer(t, nil)
	var m mapLayers
	if code := getJSON(t, ts.URL+"/api/v1/map", &m); code != http.StatusOK {
		t.Fatalf("map: got %d", code)
	}
	if len(m.Zone) != 64 || len(m.PoweredBy) != 64 || !m.Flat[0] {
		t.Fatalf("map layers: got %d zones, %d powered", len(m.Zone), len(m.PoweredBy))
	}
}

func TestSpeed(t *testing.T) {
	ts, s := newTestServer(t, nil)
	if resp := post(t, ts.URL+"/api/v1/speed", testKey, map[string]float64{"speed": 4}); resp.StatusCode != http.StatusOK {
		t.Fatalf("speed: got %d", resp.StatusCode)
	}
	if s.Eng.Speed() != 4 {
		t.Fatalf("engine speed: got %v want 4", s.Eng.Speed())
	}
	if resp := post(t, ts.URL+"/api/v1/speed", testKey, map[string]float64{"speed": -1}); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("negative speed: got %d want 400", resp.StatusCode)
	}
}

func TestToolRateLimit(t *testing.T) {
	ts, _ := newTestServer(t, func(s *Server) { s.RequestsPerMinute = 2 })
	body := zoneRequest{Row: 0, Col: 0, Zone: "road"}
	for i := 0; i < 2; i++ {
		if resp := post(t, ts.URL+"/api/v1/zone", testKey, body); resp.StatusCode != http.StatusOK {
			t.Fatalf("request %d: got %d", i, resp.StatusCode)
		}
	}
	resp := post(t, ts.URL+"/api/v1/zone", testKey, body)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("third request: got %d want 429", resp.StatusCode)
	}
	if resp.Header.Get("Retry-After") == "" {
		t.Fatalf("missing Retry-After")
	}
}

func TestValvesPowerAndEvents(t *testing.T) {
	ts, s := newTestServer(t, nil)
	s.Eng.Do(func(sim *engine.Simulation) {
		if _, err := sim.PlaceBuilding(world.BlueprintWindTurbine, world.Coord{Row: 0, Col: 0}); err != nil {
			t.Fatal(err)
		}
	})
	s.Eng.Step(1.0)
	s.Eng.Step(1.0)

	var valves map[string]any
	getJSON(t, ts.URL+"/api/v1/valves", &valves)
	if valves["difficulty"] != "medium" {
		t.Fatalf("valves: got %v", valves)
	}
	if h, ok := valves["history"].([]any); !ok || len(h) != 1 {
		t.Fatalf("valve history: got %v", valves["history"])
	}

	var power engine.PowerResult
	getJSON(t, ts.URL+"/api/v1/power", &power)
	if len(power.Stations) != 1 || power.Stations[0].Capacity != 10 {
		t.Fatalf("power: got %+v", power)
	}

	var events []engine.Event
	getJSON(t, ts.URL+"/api/v1/events?category=tool", &events)
	if len(events) != 1 || !strings.Contains(events[0].Description, "Wind Turbine") {
		t.Fatalf("events: got %+v", events)
	}
}

func TestStatsHistory(t *testing.T) {
	ts, _ := newTestServer(t, nil)
	if code := getJSON(t, ts.URL+"/api/v1/stats/history", nil); code != http.StatusServiceUnavailable {
		t.Fatalf("without db: got %d want 503", code)
	}

	db, err := persistence.Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	if _, err := db.StartRun(1, 8, 8); err != nil {
		t.Fatal(err)
	}
	if err := db.SaveReport(persistence.DailyReport{Day: 1, Buildings: 3}); err != nil {
		t.Fatal(err)
	}

	withDB, _ := newTestServer(t, func(s *Server) { s.DB = db })
	var rows []persistence.DailyReport
	if code := getJSON(t, withDB.URL+"/api/v1/stats/history", &rows); code != http.StatusOK {
		t.Fatalf("with db: got %d", code)
	}
	if len(rows) != 1 || rows[0].Buildings != 3 {
		t.Fatalf("history: got %+v", rows)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	col, err := metrics.NewCollector(prometheus.NewRegistry())
	if err != nil {
		t.Fatal(err)
	}
	col.SetDay(3)
	ts, _ := newTestServer(t, func(s *Server) { s.Metrics = col })

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "gridcity_sim_day 3") {
		t.Fatalf("metrics: got %d\n%s", resp.StatusCode, body)
	}
}

func TestStreamDeliversDirtyRegions(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	t.Cleanup(hub.Close)

	ts, s := newTestServer(t, func(s *Server) { s.Hub = hub })
	s.Eng.Do(func(sim *engine.Simulation) {
		sim.Sink = hub
		if _, err := sim.PlaceBuilding(world.BlueprintWindTurbine, world.Coord{Row: 1, Col: 2}); err != nil {
			t.Fatal(err)
		}
	})

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Clients() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	s.Eng.Step(1.0)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg struct {
		Type    string             `json:"type"`
		Payload engine.DirtyRegion `json:"payload"`
	}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	want := engine.DirtyRegion{MinRow: 1, MinCol: 2, MaxRow: 1, MaxCol: 2}
	if msg.Type != "dirty_region" || msg.Payload != want {
		t.Fatalf("message: got %+v want dirty_region %+v", msg, want)
	}
}
