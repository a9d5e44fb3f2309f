package catalog_test

import (
	"testing"
	"time"

	"github.com/gip-inclusion/immersion-facile-sub000/internal/catalog"
	"github.com/gip-inclusion/immersion-facile-sub000/internal/model"
)

func f64(v float64) *float64 { return &v }

// ── Rank: distance ──────────────────────────────────────────────────────────

func TestRank_DistanceAscending_ExactPositionFirst(t *testing.T) {
	rows := []model.SearchResult{
		{Siret: "near", DistanceMeters: f64(133.45)},
		{Siret: "exact", DistanceMeters: f64(0)},
		{Siret: "far", DistanceMeters: f64(7704.55)},
	}

	ranked := catalog.Rank(rows, model.SortByDistance, catalog.MaxResults)
	got := []string{ranked[0].Siret, ranked[1].Siret, ranked[2].Siret}
	want := []string{"exact", "near", "far"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("distance order = %v, want %v", got, want)
		}
	}
}

func TestRank_MissingDistanceSinksLast(t *testing.T) {
	rows := []model.SearchResult{
		{Siret: "nodist"},
		{Siret: "near", DistanceMeters: f64(10)},
	}
	ranked := catalog.Rank(rows, model.SortByDistance, catalog.MaxResults)
	if ranked[0].Siret != "near" || ranked[1].Siret != "nodist" {
		t.Errorf("rows without distance must sort last, got %s, %s", ranked[0].Siret, ranked[1].Siret)
	}
}

// ── Rank: date and score ────────────────────────────────────────────────────

func TestRank_DateDescending(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := []model.SearchResult{
		{Siret: "old", UpdatedAt: base},
		{Siret: "new", UpdatedAt: base.Add(48 * time.Hour)},
		{Siret: "mid", UpdatedAt: base.Add(24 * time.Hour)},
	}
	ranked := catalog.Rank(rows, model.SortByDate, catalog.MaxResults)
	if ranked[0].Siret != "new" || ranked[1].Siret != "mid" || ranked[2].Siret != "old" {
		t.Errorf("date order wrong: %s, %s, %s", ranked[0].Siret, ranked[1].Siret, ranked[2].Siret)
	}
}

func TestRank_ScoreDescending(t *testing.T) {
	rows := []model.SearchResult{
		{Siret: "low", EstablishmentScore: 1},
		{Siret: "high", EstablishmentScore: 42},
		{Siret: "mid", EstablishmentScore: 10},
	}
	ranked := catalog.Rank(rows, model.SortByScore, catalog.MaxResults)
	if ranked[0].Siret != "high" || ranked[1].Siret != "mid" || ranked[2].Siret != "low" {
		t.Errorf("score order wrong: %s, %s, %s", ranked[0].Siret, ranked[1].Siret, ranked[2].Siret)
	}
}

// ── Rank: cap ───────────────────────────────────────────────────────────────

func TestRank_CapsResultCount(t *testing.T) {
	rows := make([]model.SearchResult, 150)
	for i := range rows {
		rows[i].EstablishmentScore = float64(i)
	}
	ranked := catalog.Rank(rows, model.SortByScore, catalog.MaxResults)
	if len(ranked) != catalog.MaxResults {
		t.Fatalf("expected cap at %d rows, got %d", catalog.MaxResults, len(ranked))
	}
	if ranked[0].EstablishmentScore != 149 {
		t.Errorf("cap must keep the top-ranked rows, best score = %v", ranked[0].EstablishmentScore)
	}
}
