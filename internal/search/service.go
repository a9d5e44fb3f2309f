// Package search implements the search orchestrator: it validates the
// request, fans out to the internal catalog and the external companies
// gateway, deduplicates, filters, scores, ranks, and logs the search.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gip-inclusion/immersion-facile-sub000/internal/catalog"
	"github.com/gip-inclusion/immersion-facile-sub000/internal/external"
	"github.com/gip-inclusion/immersion-facile-sub000/internal/model"
	"github.com/gip-inclusion/immersion-facile-sub000/internal/occupation"
	"github.com/gip-inclusion/immersion-facile-sub000/internal/searchlog"
)

// defaultExternalTimeout bounds the external gateway call. It is kept well
// under any sensible request timeout so a slow partner degrades the response
// instead of failing it.
const defaultExternalTimeout = 5 * time.Second

// ─── Ports ───────────────────────────────────────────────────────────────────

// Catalog is the internal establishment-offer store.
type Catalog interface {
	Search(ctx context.Context, c catalog.Criteria) ([]model.SearchResult, error)
	AvailabilityBySiret(ctx context.Context, sirets []string, audience model.Audience) (map[string]catalog.Availability, error)
}

// ExternalGateway proxies the third-party company-matching API.
type ExternalGateway interface {
	SearchCompanies(ctx context.Context, romeCode string, lat, lon, distanceKm float64) ([]external.Company, error)
}

// DeletedSirets answers whether establishments are known-deleted.
type DeletedSirets interface {
	Contains(ctx context.Context, sirets []string) (map[string]bool, error)
}

// Enricher applies engagement-based score bonuses to internal results.
type Enricher interface {
	Enrich(ctx context.Context, results []model.SearchResult, now time.Time) ([]model.SearchResult, error)
}

// Logger durably records each search.
type Logger interface {
	Save(ctx context.Context, e searchlog.Entry) error
}

// ─── Service ─────────────────────────────────────────────────────────────────

// Deps wires the orchestrator's collaborators.
type Deps struct {
	Catalog    Catalog
	Gateway    ExternalGateway
	Deleted    DeletedSirets
	Occupation occupation.Resolver
	Enricher   Enricher
	Log        Logger

	// ExternalTimeout overrides defaultExternalTimeout when positive.
	ExternalTimeout time.Duration
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Service is the search orchestrator. It is stateless and safe for
// concurrent use: each request works on its own data, and the only write
// (the search log) is append-only.
type Service struct {
	catalog         Catalog
	gateway         ExternalGateway
	deleted         DeletedSirets
	occupation      occupation.Resolver
	enricher        Enricher
	log             Logger
	externalTimeout time.Duration
	now             func() time.Time
}

// NewService constructs the orchestrator.
func NewService(deps Deps) *Service {
	timeout := deps.ExternalTimeout
	if timeout <= 0 {
		timeout = defaultExternalTimeout
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		catalog:         deps.Catalog,
		gateway:         deps.Gateway,
		deleted:         deps.Deleted,
		occupation:      deps.Occupation,
		enricher:        deps.Enricher,
		log:             deps.Log,
		externalTimeout: timeout,
		now:             now,
	}
}

// Search runs one immersion search end to end.
//
// Failure semantics: validation errors surface before any I/O; external
// gateway errors degrade to zero external results; catalog and scoring
// storage errors propagate; a search-log write failure is logged and
// swallowed (the response is worth more than the analytics row).
func (s *Service) Search(ctx context.Context, req Request) ([]model.SearchResult, error) {
	q, err := req.normalize()
	if err != nil {
		return nil, err
	}
	now := s.now()

	externalActive := q.HasOccupationFilter() && q.Geo != nil && !boolIs(q.VoluntaryToImmersion, true)

	// The external API takes a single occupation family; resolving the
	// query's occupation filter to one is fatal when it does not resolve.
	var occ occupation.Occupation
	if externalActive {
		occ, err = s.occupation.Resolve(ctx, q.RomeCode, q.AppellationCodes)
		if err != nil {
			return nil, err
		}
	}

	var internal, externalRows []model.SearchResult
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		internal, err = s.catalog.Search(gctx, catalog.CriteriaFromQuery(q))
		if err != nil {
			return fmt.Errorf("catalog search: %w", err)
		}
		return nil
	})
	if externalActive {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(gctx, s.externalTimeout)
			defer cancel()
			companies, err := s.gateway.SearchCompanies(cctx, occ.RomeCode, q.Geo.Lat, q.Geo.Lon, q.Geo.DistanceKm)
			if err != nil {
				// Degraded but available: the caller still gets the
				// internal results.
				slog.Warn("external companies search degraded", "rome", occ.RomeCode, "err", err)
				return nil
			}
			externalRows = companiesToResults(companies, occ)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Log exactly once per request, even when the external branch failed.
	// The count reflects the branch the caller actually asked for.
	logCount := len(internal)
	if boolIs(q.VoluntaryToImmersion, false) {
		logCount = len(externalRows)
	}
	if err := s.log.Save(ctx, searchlog.NewEntry(q, logCount, now)); err != nil {
		slog.Error("search log write failed", "err", err)
	}

	externalRows = s.dropKnownSirets(ctx, internal, externalRows)

	if len(internal) > 0 && q.SortedBy == model.SortByScore && !boolIs(q.VoluntaryToImmersion, false) {
		internal, err = s.enricher.Enrich(ctx, internal, now)
		if err != nil {
			return nil, fmt.Errorf("score enrichment: %w", err)
		}
	}

	var merged []model.SearchResult
	if boolIs(q.VoluntaryToImmersion, false) {
		merged = externalRows
	} else {
		merged = append(internal, externalRows...)
	}

	merged, err = s.applyAvailability(ctx, merged, q.SearchableBy, now)
	if err != nil {
		return nil, err
	}

	if q.SortedBy == model.SortByScore {
		sort.SliceStable(merged, func(i, j int) bool {
			return merged[i].MaxScore() > merged[j].MaxScore()
		})
	}
	return merged, nil
}

// dropKnownSirets removes external rows whose siret already appears among
// internal results (the curated row wins), duplicates within the external
// set itself, and known-deleted establishments. A failed deleted-siret
// lookup degrades to "not deleted".
func (s *Service) dropKnownSirets(ctx context.Context, internal, externalRows []model.SearchResult) []model.SearchResult {
	if len(externalRows) == 0 {
		return externalRows
	}

	seen := make(map[string]bool, len(internal))
	for _, r := range internal {
		seen[r.Siret] = true
	}

	deleted := map[string]bool{}
	if s.deleted != nil {
		var err error
		deleted, err = s.deleted.Contains(ctx, siretsOf(externalRows))
		if err != nil {
			slog.Warn("deleted-siret lookup failed, keeping external results", "err", err)
			deleted = map[string]bool{}
		}
	}

	kept := externalRows[:0]
	for _, r := range externalRows {
		if seen[r.Siret] || deleted[r.Siret] {
			continue
		}
		seen[r.Siret] = true
		kept = append(kept, r)
	}
	return kept
}

// applyAvailability backfills searchability annotations from the catalog for
// rows that lack them (externally sourced), then drops every row flagged
// non-searchable or whose next availability lies strictly after now. The
// catalog's per-siret flag is the source of truth regardless of where a row
// came from.
func (s *Service) applyAvailability(ctx context.Context, rows []model.SearchResult, audience model.Audience, now time.Time) ([]model.SearchResult, error) {
	var externalSirets []string
	for _, r := range rows {
		if !r.VoluntaryToImmersion {
			externalSirets = append(externalSirets, r.Siret)
		}
	}

	avail := map[string]catalog.Availability{}
	if len(externalSirets) > 0 {
		var err error
		avail, err = s.catalog.AvailabilityBySiret(ctx, externalSirets, audience)
		if err != nil {
			return nil, fmt.Errorf("availability lookup: %w", err)
		}
	}

	kept := rows[:0]
	for _, r := range rows {
		if !r.VoluntaryToImmersion {
			if a, known := avail[r.Siret]; known {
				r.IsSearchable = a.IsSearchable
				r.NextAvailabilityDate = a.NextAvailabilityDate
			} else {
				r.IsSearchable = true
			}
		}
		if !r.IsSearchable {
			continue
		}
		if r.NextAvailabilityDate != nil && r.NextAvailabilityDate.After(now) {
			continue
		}
		kept = append(kept, r)
	}
	return kept, nil
}

// companiesToResults converts external company stubs into result rows.
// Audience and fitness flags stay unknown; the occupation echoes the
// resolved family the external API was queried with.
func companiesToResults(companies []external.Company, occ occupation.Occupation) []model.SearchResult {
	results := make([]model.SearchResult, 0, len(companies))
	for _, c := range companies {
		d := c.DistanceMeters
		results = append(results, model.SearchResult{
			Siret:          c.Siret,
			Name:           c.Name,
			NafCode:        c.NafCode,
			Address:        model.Address{StreetNumberAndAddress: c.Address, City: c.City},
			Position:       model.LatLon{Lat: c.Lat, Lon: c.Lon},
			DistanceMeters: &d,
			RomeCode:       occ.RomeCode,
			RomeLabel:      occ.RomeLabel,
			// External sources carry no appellation detail; the family
			// itself is the single match, unscored.
			Appellations: []model.MatchedAppellation{{
				AppellationCode:  "",
				AppellationLabel: occ.RomeLabel,
				Score:            0,
			}},
			VoluntaryToImmersion: false,
			IsSearchable:         true,
		})
	}
	return results
}

func siretsOf(rows []model.SearchResult) []string {
	sirets := make([]string, 0, len(rows))
	for _, r := range rows {
		sirets = append(sirets, r.Siret)
	}
	return sirets
}

// boolIs reports whether a tri-state flag is set and equals v.
func boolIs(p *bool, v bool) bool { return p != nil && *p == v }
