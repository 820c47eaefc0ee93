package world

import "testing"

func TestBestForPicksHighestReachedThreshold(t *testing.T) {
	if _, ok := BestFor(ZoneLightIndustrial, 5); ok {
		t.Fatalf("score 5 should not reach any industrial blueprint")
	}
	bp, ok := BestFor(ZoneLightIndustrial, 10)
	if !ok || bp.Key != BlueprintWorkshop {
		t.Fatalf("score 10: got %v want workshop", bp)
	}
	bp, ok = BestFor(ZoneLightIndustrial, 55)
	if !ok || bp.Key != BlueprintFactory {
		t.Fatalf("score 55: got %v want factory", bp)
	}
	if _, ok := BestFor(ZoneRoad, 1000); ok {
		t.Fatalf("roads never grow buildings")
	}
}

func TestGrowableForSorted(t *testing.T) {
	bps := GrowableFor(ZoneDenseResidential)
	if len(bps) != 2 {
		t.Fatalf("dense residential blueprints: got %d want 2", len(bps))
	}
	if bps[0].GrowthThreshold > bps[1].GrowthThreshold {
		t.Fatalf("not sorted by threshold")
	}
}

func TestCatalogConsistency(t *testing.T) {
	for key, bp := range Blueprints {
		if bp.Key != key {
			t.Fatalf("blueprint %q registered under %q", bp.Key, key)
		}
		if bp.Width < 1 || bp.Height < 1 {
			t.Fatalf("blueprint %q has empty footprint", key)
		}
		if bp.IsGrown() && bp.GrowthCap < bp.GrowthThreshold {
			t.Fatalf("blueprint %q cap %v below threshold %v", key, bp.GrowthCap, bp.GrowthThreshold)
		}
		if bp.IsGrown() && !bp.AllowedOn(bp.GrowsIn) {
			t.Fatalf("blueprint %q not allowed on its own zone", key)
		}
	}
	if _, ok := Lookup("no_such_blueprint"); ok {
		t.Fatalf("unknown key resolved")
	}
}

func TestDefaultGrowthCap(t *testing.T) {
	if DefaultGrowthCap(ZoneLightCommercial) != LightZoneGrowthCap {
		t.Fatalf("light cap mismatch")
	}
	if DefaultGrowthCap(ZoneDenseIndustrial) != DenseZoneGrowthCap {
		t.Fatalf("dense cap mismatch")
	}
	if DefaultGrowthCap(ZoneRoad) != 0 {
		t.Fatalf("non-dynamic zones have no cap")
	}
}

func TestParseZoneRoundTrip(t *testing.T) {
	for z := ZoneNone; z <= ZonePowerPlant; z++ {
		got, ok := ParseZone(z.String())
		if !ok || got != z {
			t.Fatalf("ParseZone(%q): got %v,%v want %v", z.String(), got, ok, z)
		}
	}
}
