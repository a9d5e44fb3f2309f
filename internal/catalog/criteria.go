// Package catalog implements the geo-indexed establishment-offer store: a
// Postgres-backed query path for filtered, geo-bounded, ranked retrieval,
// plus the pure expansion/filter/rank logic it shares with tests.
package catalog

import (
	"github.com/gip-inclusion/immersion-facile-sub000/internal/geo"
	"github.com/gip-inclusion/immersion-facile-sub000/internal/model"
)

// MaxResults is the hard cap on rows returned by a catalog search.
const MaxResults = 100

// prefetchGuard bounds the establishment prefix scanned when no geo or
// occupation filter narrows the query. Purely a performance guard: the
// prefix is ordered by the requested sort key, so the final top-N is
// unchanged.
const prefetchGuard = 5000

// Criteria is the typed filter set consumed by the catalog query. Every
// field is optional; all present filters are ANDed.
type Criteria struct {
	Geo              *model.GeoParams
	RomeCode         string
	AppellationCodes []string
	NafCodes         []string
	SearchableBy     model.Audience
	// FitForDisabledWorkers filters on the establishment tri-state: a
	// true/false filter matches only establishments whose flag equals it;
	// establishments with an unknown flag match only when the filter is nil.
	FitForDisabledWorkers *bool
	OpenOnly              bool
	SortedBy              model.SortMode
}

// CriteriaFromQuery derives catalog criteria from a normalized search query.
// Catalog searches always exclude closed establishments.
func CriteriaFromQuery(q model.SearchQuery) Criteria {
	return Criteria{
		Geo:                   q.Geo,
		RomeCode:              q.RomeCode,
		AppellationCodes:      q.AppellationCodes,
		NafCodes:              q.NafCodes,
		SearchableBy:          q.SearchableBy,
		FitForDisabledWorkers: q.FitForDisabledWorkers,
		OpenOnly:              true,
		SortedBy:              q.SortedBy,
	}
}

// matchesEstablishment applies the establishment-level filters.
func (c Criteria) matchesEstablishment(e model.Establishment) bool {
	if c.OpenOnly && !e.IsOpen {
		return false
	}
	if len(c.NafCodes) > 0 && !containsString(c.NafCodes, e.NafCode) {
		return false
	}
	switch c.SearchableBy {
	case model.AudienceJobSeekers:
		if !e.SearchableByJobSeekers {
			return false
		}
	case model.AudienceStudents:
		if !e.SearchableByStudents {
			return false
		}
	}
	if c.FitForDisabledWorkers != nil {
		if e.FitForDisabledWorkers == nil || *e.FitForDisabledWorkers != *c.FitForDisabledWorkers {
			return false
		}
	}
	return true
}

// matchesOffer applies the occupation filters to a single offer.
func (c Criteria) matchesOffer(o model.Offer) bool {
	if len(c.AppellationCodes) > 0 && !containsString(c.AppellationCodes, o.AppellationCode) {
		return false
	}
	if c.RomeCode != "" && o.RomeCode != c.RomeCode {
		return false
	}
	return true
}

// withinRadius reports whether a position lies inside the criteria's search
// circle. A zero radius means no distance filtering. Store.Search relies on
// this exact check after its bounding-box pre-filter, so the SQL pass and the
// pure expansion path cannot disagree on inclusion.
func (c Criteria) withinRadius(p model.LatLon) bool {
	if c.Geo == nil || c.Geo.DistanceKm == 0 {
		return true
	}
	d := geo.DistanceMeters(c.Geo.Lat, c.Geo.Lon, p.Lat, p.Lon)
	return d <= c.Geo.DistanceKm*1000
}

// distanceTo returns the geodesic distance annotation for p, or nil when the
// criteria carry no reference point.
func (c Criteria) distanceTo(p model.LatLon) *float64 {
	if c.Geo == nil {
		return nil
	}
	d := geo.DistanceMeters(c.Geo.Lat, c.Geo.Lon, p.Lat, p.Lon)
	return &d
}

// ExpandAggregate expands an establishment aggregate into search-result rows,
// one per (occupation family × location), applying the criteria filters and
// annotating searchability. recentContacts is the number of discussions
// opened with the establishment during the current contact period; an
// establishment past its cap stays in the row set but is flagged
// non-searchable, matching how the merge stage treats the flag.
func ExpandAggregate(agg model.EstablishmentAggregate, c Criteria, recentContacts int) []model.SearchResult {
	e := agg.Establishment
	if !c.matchesEstablishment(e) {
		return nil
	}

	// Group matching offers by occupation family.
	type romeGroup struct {
		label        string
		appellations []model.MatchedAppellation
	}
	order := make([]string, 0, len(agg.Offers))
	groups := make(map[string]*romeGroup)
	for _, o := range agg.Offers {
		if !c.matchesOffer(o) {
			continue
		}
		g, ok := groups[o.RomeCode]
		if !ok {
			g = &romeGroup{label: o.RomeLabel}
			groups[o.RomeCode] = g
			order = append(order, o.RomeCode)
		}
		g.appellations = append(g.appellations, model.MatchedAppellation{
			AppellationCode:  o.AppellationCode,
			AppellationLabel: o.AppellationLabel,
			Score:            e.Score,
		})
	}
	if len(groups) == 0 {
		return nil
	}

	searchable := isSearchable(e, recentContacts)

	var rows []model.SearchResult
	for _, loc := range agg.Locations {
		if !c.withinRadius(loc.Position) {
			continue
		}
		distance := c.distanceTo(loc.Position)
		for _, rome := range order {
			g := groups[rome]
			rows = append(rows, model.SearchResult{
				Siret:                 e.Siret,
				Name:                  e.Name,
				NafCode:               e.NafCode,
				Address:               loc.Address,
				Position:              loc.Position,
				DistanceMeters:        distance,
				RomeCode:              rome,
				RomeLabel:             g.label,
				Appellations:          append([]model.MatchedAppellation(nil), g.appellations...),
				VoluntaryToImmersion:  true,
				ContactMode:           e.ContactMode,
				EstablishmentScore:    e.Score,
				FitForDisabledWorkers: e.FitForDisabledWorkers,
				IsSearchable:          searchable,
				NextAvailabilityDate:  e.NextAvailabilityDate,
				UpdatedAt:             e.UpdatedAt,
			})
		}
	}
	return rows
}

// isSearchable reports whether an establishment can currently be contacted:
// it must not have exhausted its contact cap. A zero cap means uncapped.
func isSearchable(e model.Establishment, recentContacts int) bool {
	if e.MaxContactsPerMonth > 0 && recentContacts >= e.MaxContactsPerMonth {
		return false
	}
	return true
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
