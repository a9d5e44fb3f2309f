package search_test

import (
	"context"
	"errors"
	"testing"

	"github.com/gip-inclusion/immersion-facile-sub000/internal/model"
	"github.com/gip-inclusion/immersion-facile-sub000/internal/search"
)

func f64(v float64) *float64 { return &v }
func boolPtr(v bool) *bool   { return &v }

// validationService builds a service with inert collaborators: validation
// failures must surface before any of them is touched.
func validationService() *search.Service {
	return search.NewService(search.Deps{
		Catalog:    &fakeCatalog{},
		Gateway:    &fakeGateway{},
		Deleted:    &fakeDeleted{},
		Occupation: &fakeResolver{},
		Enricher:   &fakeEnricher{},
		Log:        &fakeLog{},
	})
}

// ── Geo triple validation ──────────────────────────────────────────────────

func TestSearch_PartialGeoTripleIsRejected(t *testing.T) {
	cases := []struct {
		name string
		req  search.Request
	}{
		{"lat only", search.Request{Latitude: f64(49), SortedBy: model.SortByDate}},
		{"lon only", search.Request{Longitude: f64(6), SortedBy: model.SortByDate}},
		{"distance only", search.Request{DistanceKm: f64(30), SortedBy: model.SortByDate}},
		{"lat+lon without distance", search.Request{Latitude: f64(49), Longitude: f64(6), SortedBy: model.SortByDistance}},
		{"lat+distance without lon", search.Request{Latitude: f64(49), DistanceKm: f64(30), SortedBy: model.SortByDistance}},
		{"lon+distance without lat", search.Request{Longitude: f64(6), DistanceKm: f64(30), SortedBy: model.SortByDistance}},
	}
	for _, c := range cases {
		_, err := validationService().Search(context.Background(), c.req)
		if !errors.Is(err, search.ErrInvalidGeoParams) {
			t.Errorf("%s: expected ErrInvalidGeoParams, got %v", c.name, err)
		}
	}
}

func TestSearch_DistanceSortRequiresGeoTriple(t *testing.T) {
	_, err := validationService().Search(context.Background(), search.Request{SortedBy: model.SortByDistance})
	if !errors.Is(err, search.ErrInvalidGeoParams) {
		t.Errorf("distance sort without geo must fail, got %v", err)
	}
}

func TestSearch_ZeroCoordinateWithRealRadiusIsDegenerate(t *testing.T) {
	cases := []search.Request{
		{Latitude: f64(0), Longitude: f64(6), DistanceKm: f64(30), SortedBy: model.SortByDistance},
		{Latitude: f64(49), Longitude: f64(0), DistanceKm: f64(30), SortedBy: model.SortByDistance},
	}
	for i, req := range cases {
		_, err := validationService().Search(context.Background(), req)
		if !errors.Is(err, search.ErrInvalidGeoParams) {
			t.Errorf("case %d: expected ErrInvalidGeoParams, got %v", i, err)
		}
	}
}

func TestSearch_ZeroCoordinateWithZeroRadiusIsAllowed(t *testing.T) {
	_, err := validationService().Search(context.Background(), search.Request{
		Latitude: f64(0), Longitude: f64(0), DistanceKm: f64(0),
		SortedBy: model.SortByDate,
	})
	if err != nil {
		t.Errorf("zero coordinates with zero radius mean no distance filtering, got %v", err)
	}
}

func TestSearch_NegativeRadiusIsRejected(t *testing.T) {
	_, err := validationService().Search(context.Background(), search.Request{
		Latitude: f64(49), Longitude: f64(6), DistanceKm: f64(-1),
		SortedBy: model.SortByDistance,
	})
	if !errors.Is(err, search.ErrInvalidGeoParams) {
		t.Errorf("negative radius must fail, got %v", err)
	}
}

// ── NAF filter validation ──────────────────────────────────────────────────

func TestSearch_ExplicitEmptyNafListIsRejected(t *testing.T) {
	_, err := validationService().Search(context.Background(), search.Request{
		NafCodes: []string{},
		SortedBy: model.SortByDate,
	})
	if !errors.Is(err, search.ErrEmptyNafFilter) {
		t.Errorf("explicit empty NAF list must fail, got %v", err)
	}
}

func TestSearch_AbsentNafFilterIsAllowed(t *testing.T) {
	_, err := validationService().Search(context.Background(), search.Request{SortedBy: model.SortByDate})
	if err != nil {
		t.Errorf("nil NAF filter means no filter, got %v", err)
	}
}

// ── Validation happens before I/O ──────────────────────────────────────────

func TestSearch_ValidationFailurePrecedesAllIO(t *testing.T) {
	cat := &fakeCatalog{}
	gw := &fakeGateway{}
	logStore := &fakeLog{}
	svc := search.NewService(search.Deps{
		Catalog:    cat,
		Gateway:    gw,
		Deleted:    &fakeDeleted{},
		Occupation: &fakeResolver{},
		Enricher:   &fakeEnricher{},
		Log:        logStore,
	})

	_, err := svc.Search(context.Background(), search.Request{
		Latitude: f64(49),
		SortedBy: model.SortByDate,
	})
	if !errors.Is(err, search.ErrInvalidGeoParams) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if cat.searchCalls != 0 || gw.calls != 0 || len(logStore.entries) != 0 {
		t.Error("validation failures must surface before any retrieval or log write")
	}
}
