package catalog_test

import (
	"testing"
	"time"

	"github.com/gip-inclusion/immersion-facile-sub000/internal/catalog"
	"github.com/gip-inclusion/immersion-facile-sub000/internal/geo"
	"github.com/gip-inclusion/immersion-facile-sub000/internal/model"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func boolPtr(v bool) *bool { return &v }

// testAggregate builds an open establishment with two locations and two
// offers in distinct occupation families.
func testAggregate() model.EstablishmentAggregate {
	return model.EstablishmentAggregate{
		Establishment: model.Establishment{
			Siret:                  "11111111111111",
			Name:                   "Boulangerie Martin",
			IsOpen:                 true,
			Score:                  10,
			NafCode:                "1071C",
			ContactMode:            "EMAIL",
			SearchableByJobSeekers: true,
			SearchableByStudents:   true,
			UpdatedAt:              now.Add(-24 * time.Hour),
		},
		Offers: []model.Offer{
			{AppellationCode: "12006", AppellationLabel: "Boulanger", RomeCode: "D1102", RomeLabel: "Boulangerie"},
			{AppellationCode: "17235", AppellationLabel: "Pâtissier", RomeCode: "D1104", RomeLabel: "Pâtisserie"},
		},
		Locations: []model.Location{
			{ID: "loc-1", Position: model.LatLon{Lat: 49, Lon: 6}},
			{ID: "loc-2", Position: model.LatLon{Lat: 49.0012, Lon: 6}},
		},
		UserRights: []model.UserRight{{UserID: "user-1", Role: model.RoleAdmin}},
	}
}

// ── ExpandAggregate: cardinality ────────────────────────────────────────────

func TestExpandAggregate_TwoLocationsTwoOccupations(t *testing.T) {
	rows := catalog.ExpandAggregate(testAggregate(), catalog.Criteria{OpenOnly: true}, 0)
	if len(rows) != 4 {
		t.Fatalf("expected 2 locations × 2 occupations = 4 rows, got %d", len(rows))
	}

	kind := map[string]int{}
	for _, r := range rows {
		kind[r.RomeCode]++
		if len(r.Appellations) != 1 {
			t.Errorf("row %s/%s: expected 1 appellation, got %d", r.Siret, r.RomeCode, len(r.Appellations))
		}
	}
	if kind["D1102"] != 2 || kind["D1104"] != 2 {
		t.Errorf("expected each occupation family on both locations, got %v", kind)
	}
}

func TestExpandAggregate_GroupsAppellationsOfSameFamily(t *testing.T) {
	agg := testAggregate()
	agg.Offers = []model.Offer{
		{AppellationCode: "12006", AppellationLabel: "Boulanger", RomeCode: "D1102", RomeLabel: "Boulangerie"},
		{AppellationCode: "12007", AppellationLabel: "Boulanger bio", RomeCode: "D1102", RomeLabel: "Boulangerie"},
	}
	agg.Locations = agg.Locations[:1]

	rows := catalog.ExpandAggregate(agg, catalog.Criteria{OpenOnly: true}, 0)
	if len(rows) != 1 {
		t.Fatalf("expected 1 row for a single occupation family, got %d", len(rows))
	}
	if len(rows[0].Appellations) != 2 {
		t.Errorf("expected both appellations grouped on the row, got %d", len(rows[0].Appellations))
	}
}

// ── ExpandAggregate: filters ────────────────────────────────────────────────

func TestExpandAggregate_RomeFilter(t *testing.T) {
	rows := catalog.ExpandAggregate(testAggregate(), catalog.Criteria{OpenOnly: true, RomeCode: "D1102"}, 0)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows (one occupation × 2 locations), got %d", len(rows))
	}
	for _, r := range rows {
		if r.RomeCode != "D1102" {
			t.Errorf("unexpected occupation %s in filtered rows", r.RomeCode)
		}
	}
}

func TestExpandAggregate_AppellationFilter(t *testing.T) {
	rows := catalog.ExpandAggregate(testAggregate(), catalog.Criteria{
		OpenOnly:         true,
		AppellationCodes: []string{"17235"},
	}, 0)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	for _, r := range rows {
		if r.RomeCode != "D1104" {
			t.Errorf("appellation filter matched wrong family %s", r.RomeCode)
		}
	}
}

func TestExpandAggregate_NafFilter(t *testing.T) {
	if rows := catalog.ExpandAggregate(testAggregate(), catalog.Criteria{
		OpenOnly: true,
		NafCodes: []string{"6201Z"},
	}, 0); len(rows) != 0 {
		t.Errorf("NAF mismatch should exclude the establishment, got %d rows", len(rows))
	}

	if rows := catalog.ExpandAggregate(testAggregate(), catalog.Criteria{
		OpenOnly: true,
		NafCodes: []string{"6201Z", "1071C"},
	}, 0); len(rows) != 4 {
		t.Errorf("NAF match should keep the establishment, got %d rows", len(rows))
	}
}

func TestExpandAggregate_ClosedEstablishmentExcluded(t *testing.T) {
	agg := testAggregate()
	agg.Establishment.IsOpen = false
	if rows := catalog.ExpandAggregate(agg, catalog.Criteria{OpenOnly: true}, 0); len(rows) != 0 {
		t.Errorf("closed establishment must be excluded, got %d rows", len(rows))
	}
}

func TestExpandAggregate_AudienceFilter(t *testing.T) {
	agg := testAggregate()
	agg.Establishment.SearchableByStudents = false

	if rows := catalog.ExpandAggregate(agg, catalog.Criteria{
		OpenOnly:     true,
		SearchableBy: model.AudienceStudents,
	}, 0); len(rows) != 0 {
		t.Errorf("student search must exclude a jobSeekers-only establishment, got %d rows", len(rows))
	}

	if rows := catalog.ExpandAggregate(agg, catalog.Criteria{
		OpenOnly:     true,
		SearchableBy: model.AudienceJobSeekers,
	}, 0); len(rows) != 4 {
		t.Errorf("jobSeekers search should match, got %d rows", len(rows))
	}
}

// The fitness filter is strict tri-state: true/false matches only an equal
// flag, and an unknown flag matches only when the filter is absent.
func TestExpandAggregate_FitnessTriState(t *testing.T) {
	cases := []struct {
		name     string
		flag     *bool
		filter   *bool
		expected int
	}{
		{"no filter, unknown flag", nil, nil, 4},
		{"no filter, true flag", boolPtr(true), nil, 4},
		{"true filter, true flag", boolPtr(true), boolPtr(true), 4},
		{"true filter, false flag", boolPtr(false), boolPtr(true), 0},
		{"true filter, unknown flag", nil, boolPtr(true), 0},
		{"false filter, false flag", boolPtr(false), boolPtr(false), 4},
		{"false filter, unknown flag", nil, boolPtr(false), 0},
	}
	for _, c := range cases {
		agg := testAggregate()
		agg.Establishment.FitForDisabledWorkers = c.flag
		rows := catalog.ExpandAggregate(agg, catalog.Criteria{
			OpenOnly:              true,
			FitForDisabledWorkers: c.filter,
		}, 0)
		if len(rows) != c.expected {
			t.Errorf("%s: expected %d rows, got %d", c.name, c.expected, len(rows))
		}
	}
}

// ── ExpandAggregate: geo ────────────────────────────────────────────────────

func TestExpandAggregate_RadiusExcludesFarLocations(t *testing.T) {
	agg := testAggregate()
	agg.Locations = append(agg.Locations, model.Location{
		ID:       "loc-far",
		Position: model.LatLon{Lat: 51.5, Lon: 0.1}, // ~450 km away
	})

	rows := catalog.ExpandAggregate(agg, catalog.Criteria{
		OpenOnly: true,
		Geo:      &model.GeoParams{Lat: 49, Lon: 6, DistanceKm: 30},
	}, 0)
	if len(rows) != 4 {
		t.Fatalf("expected the far location excluded (4 rows), got %d", len(rows))
	}
	for _, r := range rows {
		if r.DistanceMeters == nil {
			t.Fatal("geo query must annotate distance on every row")
		}
		if *r.DistanceMeters > 30_000 {
			t.Errorf("row at %.1f m exceeds the 30 km radius", *r.DistanceMeters)
		}
	}
}

func TestExpandAggregate_ZeroRadiusMeansNoDistanceFilter(t *testing.T) {
	agg := testAggregate()
	agg.Locations = append(agg.Locations, model.Location{
		ID:       "loc-far",
		Position: model.LatLon{Lat: 51.5, Lon: 0.1},
	})

	rows := catalog.ExpandAggregate(agg, catalog.Criteria{
		OpenOnly: true,
		Geo:      &model.GeoParams{Lat: 49, Lon: 6, DistanceKm: 0},
	}, 0)
	if len(rows) != 6 {
		t.Errorf("zero radius keeps all 3 locations (6 rows), got %d", len(rows))
	}
}

func TestExpandAggregate_RadiusBoundaryIsInclusive(t *testing.T) {
	agg := testAggregate()
	agg.Locations = []model.Location{{ID: "loc-edge", Position: model.LatLon{Lat: 49.0012, Lon: 6}}}
	origin := model.LatLon{Lat: 49, Lon: 6}
	d := geo.DistanceMeters(origin.Lat, origin.Lon, 49.0012, 6)

	rows := catalog.ExpandAggregate(agg, catalog.Criteria{
		OpenOnly: true,
		Geo:      &model.GeoParams{Lat: origin.Lat, Lon: origin.Lon, DistanceKm: d / 1000},
	}, 0)
	if len(rows) != 2 {
		t.Fatalf("a location exactly on the radius must be kept, got %d rows", len(rows))
	}
	if rows[0].DistanceMeters == nil || *rows[0].DistanceMeters != d {
		t.Errorf("annotated distance must equal the geodesic distance %f", d)
	}

	rows = catalog.ExpandAggregate(agg, catalog.Criteria{
		OpenOnly: true,
		Geo:      &model.GeoParams{Lat: origin.Lat, Lon: origin.Lon, DistanceKm: (d - 1) / 1000},
	}, 0)
	if len(rows) != 0 {
		t.Errorf("a location past the radius must be dropped, got %d rows", len(rows))
	}
}

// ── Searchability annotation ───────────────────────────────────────────────

func TestExpandAggregate_ContactQuota(t *testing.T) {
	agg := testAggregate()
	agg.Establishment.MaxContactsPerMonth = 5

	for _, r := range catalog.ExpandAggregate(agg, catalog.Criteria{OpenOnly: true}, 4) {
		if !r.IsSearchable {
			t.Error("establishment under its contact cap must stay searchable")
		}
	}
	for _, r := range catalog.ExpandAggregate(agg, catalog.Criteria{OpenOnly: true}, 5) {
		if r.IsSearchable {
			t.Error("establishment at its contact cap must be flagged non-searchable")
		}
	}
}

func TestExpandAggregate_ZeroCapIsUncapped(t *testing.T) {
	for _, r := range catalog.ExpandAggregate(testAggregate(), catalog.Criteria{OpenOnly: true}, 1000) {
		if !r.IsSearchable {
			t.Error("a zero max-contacts cap must mean uncapped")
		}
	}
}
