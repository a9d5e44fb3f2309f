package search

import (
	"github.com/gip-inclusion/immersion-facile-sub000/internal/model"
)

// Request is the transport-agnostic search input. Pointer fields distinguish
// "absent" from a zero value; the geo triple is all-or-nothing.
type Request struct {
	Latitude   *float64
	Longitude  *float64
	DistanceKm *float64

	RomeCode         string
	AppellationCodes []string
	// NafCodes nil means no filter; an explicit empty slice is rejected.
	NafCodes []string

	SortedBy                  model.SortMode
	VoluntaryToImmersion      *bool
	EstablishmentSearchableBy model.Audience
	FitForDisabledWorkers     *bool

	AcquisitionCampaign string
	AcquisitionKeyword  string
}

// normalize validates the request and converts it to the internal query
// record. All validation happens here, before any I/O.
func (r Request) normalize() (model.SearchQuery, error) {
	if r.NafCodes != nil && len(r.NafCodes) == 0 {
		return model.SearchQuery{}, ErrEmptyNafFilter
	}

	geo, err := r.geoParams()
	if err != nil {
		return model.SearchQuery{}, err
	}
	if r.SortedBy == model.SortByDistance && geo == nil {
		return model.SearchQuery{}, ErrInvalidGeoParams
	}

	return model.SearchQuery{
		Geo:                   geo,
		RomeCode:              r.RomeCode,
		AppellationCodes:      r.AppellationCodes,
		NafCodes:              r.NafCodes,
		SortedBy:              r.SortedBy,
		VoluntaryToImmersion:  r.VoluntaryToImmersion,
		SearchableBy:          r.EstablishmentSearchableBy,
		FitForDisabledWorkers: r.FitForDisabledWorkers,
		AcquisitionCampaign:   r.AcquisitionCampaign,
		AcquisitionKeyword:    r.AcquisitionKeyword,
	}, nil
}

// geoParams enforces the all-or-nothing geo triple. A zero lat or lon is
// only legal when paired with a zero radius (meaning "no distance
// filtering"), since a (0, x) center with a real radius is almost always a
// client bug rather than a search in the Gulf of Guinea.
func (r Request) geoParams() (*model.GeoParams, error) {
	present := 0
	for _, f := range []*float64{r.Latitude, r.Longitude, r.DistanceKm} {
		if f != nil {
			present++
		}
	}
	switch present {
	case 0:
		return nil, nil
	case 3:
		// full triple, validated below
	default:
		return nil, ErrInvalidGeoParams
	}

	if *r.DistanceKm < 0 {
		return nil, ErrInvalidGeoParams
	}
	if (*r.Latitude == 0 || *r.Longitude == 0) && *r.DistanceKm != 0 {
		return nil, ErrInvalidGeoParams
	}
	return &model.GeoParams{
		Lat:        *r.Latitude,
		Lon:        *r.Longitude,
		DistanceKm: *r.DistanceKm,
	}, nil
}
