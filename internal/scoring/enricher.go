// Package scoring adjusts internal search results upward based on engagement
// signals: how reliably an establishment answers discussions, and how many
// accepted placements it hosted recently. The catalog itself is never
// mutated; the bonus lives only on the per-request result rows.
package scoring

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gip-inclusion/immersion-facile-sub000/internal/model"
)

// LookbackWindow is how far back engagement signals are counted.
const LookbackWindow = 365 * 24 * time.Hour

// placementBonus is the score bonus per accepted placement in the window.
const placementBonus = 10

// DiscussionStats summarizes an establishment's discussions in the window.
type DiscussionStats struct {
	Total    int
	Answered int // discussions with at least one establishment-authored message
}

// DiscussionReader provides discussion counts per siret within a window.
type DiscussionReader interface {
	StatsBySiret(ctx context.Context, sirets []string, since time.Time) (map[string]DiscussionStats, error)
}

// PlacementReader provides accepted-placement counts per siret within a window.
type PlacementReader interface {
	AcceptedCountBySiret(ctx context.Context, sirets []string, since time.Time) (map[string]int, error)
}

// Enricher computes and applies per-siret score bonuses.
type Enricher struct {
	discussions DiscussionReader
	placements  PlacementReader
}

// NewEnricher wires an Enricher.
func NewEnricher(discussions DiscussionReader, placements PlacementReader) *Enricher {
	return &Enricher{discussions: discussions, placements: placements}
}

// Enrich returns the results with each row's appellation scores raised by
// its establishment's bonus. Both history reads run concurrently and are
// issued once for the whole result set, never per row.
func (e *Enricher) Enrich(ctx context.Context, results []model.SearchResult, now time.Time) ([]model.SearchResult, error) {
	if len(results) == 0 {
		return results, nil
	}

	sirets := distinctSirets(results)
	since := now.Add(-LookbackWindow)

	var (
		stats    map[string]DiscussionStats
		accepted map[string]int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		stats, err = e.discussions.StatsBySiret(gctx, sirets, since)
		if err != nil {
			return fmt.Errorf("discussion stats: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		accepted, err = e.placements.AcceptedCountBySiret(gctx, sirets, since)
		if err != nil {
			return fmt.Errorf("accepted placements: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	enriched := make([]model.SearchResult, len(results))
	for i, r := range results {
		bonus := Bonus(stats[r.Siret], accepted[r.Siret])
		enriched[i] = applyBonus(r, bonus)
	}
	return enriched, nil
}

// Bonus computes the score bonus for one establishment:
// the discussion response rate (0–100, 0 when there are no discussions)
// plus 10 per accepted placement in the window.
func Bonus(stats DiscussionStats, acceptedPlacements int) float64 {
	responseRate := 0.0
	if stats.Total > 0 {
		responseRate = float64(stats.Answered) / float64(stats.Total) * 100
	}
	return responseRate + placementBonus*float64(acceptedPlacements)
}

func applyBonus(r model.SearchResult, bonus float64) model.SearchResult {
	if bonus == 0 {
		return r
	}
	apps := make([]model.MatchedAppellation, len(r.Appellations))
	for i, a := range r.Appellations {
		a.Score += bonus
		apps[i] = a
	}
	r.Appellations = apps
	r.EstablishmentScore += bonus
	return r
}

func distinctSirets(results []model.SearchResult) []string {
	seen := make(map[string]bool, len(results))
	var sirets []string
	for _, r := range results {
		if !seen[r.Siret] {
			seen[r.Siret] = true
			sirets = append(sirets, r.Siret)
		}
	}
	return sirets
}
