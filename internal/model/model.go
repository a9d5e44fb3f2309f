// Package model defines the domain types shared across the search service:
// establishment aggregates as stored in the catalog, normalized search
// queries, and the result rows returned to callers.
package model

import (
	"fmt"
	"time"
)

// SortMode selects the ranking applied to search results.
type SortMode string

const (
	SortByDate     SortMode = "date"
	SortByDistance SortMode = "distance"
	SortByScore    SortMode = "score"
)

// ParseSortMode converts a raw string to a SortMode, returning an error for
// unknown values.
func ParseSortMode(s string) (SortMode, error) {
	m := SortMode(s)
	switch m {
	case SortByDate, SortByDistance, SortByScore:
		return m, nil
	}
	return "", fmt.Errorf("unknown sort mode %q", s)
}

// Audience is the public an establishment opts into being found by.
type Audience string

const (
	AudienceJobSeekers Audience = "jobSeekers"
	AudienceStudents   Audience = "students"
)

// ParseAudience converts a raw string to an Audience.
func ParseAudience(s string) (Audience, error) {
	a := Audience(s)
	switch a {
	case AudienceJobSeekers, AudienceStudents:
		return a, nil
	}
	return "", fmt.Errorf("unknown audience %q", s)
}

// UserRole is the role a user holds on an establishment.
type UserRole string

const (
	RoleAdmin   UserRole = "admin"
	RoleContact UserRole = "contact"
)

// LatLon is a WGS-84 geographic position.
type LatLon struct {
	Lat float64
	Lon float64
}

// GeoParams is a search circle: center plus radius in kilometres.
// A zero DistanceKm means "no distance filtering" around the center.
type GeoParams struct {
	Lat        float64
	Lon        float64
	DistanceKm float64
}

// Address is a postal address attached to an establishment location.
type Address struct {
	StreetNumberAndAddress string
	Postcode               string
	City                   string
	DepartmentCode         string
}

// Location is one of the 1..N physical sites an establishment operates.
type Location struct {
	ID       string
	Address  Address
	Position LatLon
}

// Offer is a single immersion offer an establishment publishes.
// Offers are immutable: an establishment updating its offer list replaces
// them wholesale.
type Offer struct {
	AppellationCode  string
	AppellationLabel string
	RomeCode         string
	RomeLabel        string
	CreatedAt        time.Time
}

// Establishment is the catalog record keyed by siret.
type Establishment struct {
	Siret                  string
	Name                   string
	IsOpen                 bool
	Score                  float64
	NafCode                string
	ContactMode            string
	MaxContactsPerMonth    int
	SearchableByJobSeekers bool
	SearchableByStudents   bool
	// FitForDisabledWorkers is tri-state: nil means unknown.
	FitForDisabledWorkers *bool
	NextAvailabilityDate  *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// UserRight links a user to an establishment with a role.
type UserRight struct {
	UserID string
	Role   UserRole
}

// EstablishmentAggregate is the full catalog aggregate: the establishment
// record, its offers, its locations, and its right holders.
type EstablishmentAggregate struct {
	Establishment Establishment
	Offers        []Offer
	Locations     []Location
	UserRights    []UserRight
}

// Validate enforces the aggregate invariants: a non-empty siret, at least one
// location and at least one user right holder.
func (a EstablishmentAggregate) Validate() error {
	if a.Establishment.Siret == "" {
		return fmt.Errorf("aggregate requires a siret")
	}
	if len(a.Locations) == 0 {
		return fmt.Errorf("aggregate %s requires at least one location", a.Establishment.Siret)
	}
	if len(a.UserRights) == 0 {
		return fmt.Errorf("aggregate %s requires at least one user right holder", a.Establishment.Siret)
	}
	return nil
}

// SearchQuery is the normalized, transport-agnostic search input.
type SearchQuery struct {
	Geo              *GeoParams
	RomeCode         string
	AppellationCodes []string
	// NafCodes is nil when no NAF filter was provided. An explicit empty
	// list is rejected at validation time.
	NafCodes []string
	SortedBy SortMode
	// VoluntaryToImmersion: true restricts to the internal catalog, false
	// to the external source, nil combines both.
	VoluntaryToImmersion  *bool
	SearchableBy          Audience
	FitForDisabledWorkers *bool
	// Acquisition fields are pass-through tracking, logged only.
	AcquisitionCampaign string
	AcquisitionKeyword  string
}

// HasOccupationFilter reports whether the query narrows by occupation.
func (q SearchQuery) HasOccupationFilter() bool {
	return q.RomeCode != "" || len(q.AppellationCodes) > 0
}

// MatchedAppellation is one appellation matched within a result row, with
// its (possibly enriched) score.
type MatchedAppellation struct {
	AppellationCode  string
	AppellationLabel string
	Score            float64
}

// SearchResult is one (establishment, occupation, location) row of a search
// response. An establishment yields one row per matched occupation family
// per location.
type SearchResult struct {
	Siret    string
	Name     string
	NafCode  string
	Address  Address
	Position LatLon
	// DistanceMeters is set only for geo-bounded queries.
	DistanceMeters *float64
	RomeCode       string
	RomeLabel      string
	Appellations   []MatchedAppellation
	// VoluntaryToImmersion is true for catalog rows, false for rows sourced
	// from the external gateway.
	VoluntaryToImmersion bool
	ContactMode          string
	EstablishmentScore   float64
	// FitForDisabledWorkers and the availability annotations below are
	// unknown (nil / zero) for externally sourced rows until backfilled
	// from the catalog.
	FitForDisabledWorkers *bool
	IsSearchable          bool
	NextAvailabilityDate  *time.Time
	UpdatedAt             time.Time
}

// MaxScore returns the highest per-appellation score of the row, used for
// score-ordered ranking.
func (r SearchResult) MaxScore() float64 {
	max := 0.0
	for _, a := range r.Appellations {
		if a.Score > max {
			max = a.Score
		}
	}
	return max
}
