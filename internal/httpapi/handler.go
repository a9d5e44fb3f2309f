// Package httpapi implements the thin HTTP adapter over the search
// orchestrator. It handles only transport concerns: request decoding, the
// error-to-status mapping, and the JSON result shape.
//
// Routes:
//
//	POST /search → run an immersion search
package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gip-inclusion/immersion-facile-sub000/internal/model"
	"github.com/gip-inclusion/immersion-facile-sub000/internal/occupation"
	"github.com/gip-inclusion/immersion-facile-sub000/internal/search"
)

// ─── Request/response types ──────────────────────────────────────────────────

// searchRequest is the JSON search input.
type searchRequest struct {
	Latitude                  *float64 `json:"latitude,omitempty"`
	Longitude                 *float64 `json:"longitude,omitempty"`
	DistanceKm                *float64 `json:"distanceKm,omitempty"`
	RomeCode                  string   `json:"romeCode,omitempty"`
	AppellationCodes          []string `json:"appellationCodes,omitempty"`
	NafCodes                  []string `json:"nafCodes,omitempty"`
	SortedBy                  string   `json:"sortedBy"`
	VoluntaryToImmersion      *bool    `json:"voluntaryToImmersion,omitempty"`
	EstablishmentSearchableBy string   `json:"establishmentSearchableBy,omitempty"`
	FitForDisabledWorkers     *bool    `json:"fitForDisabledWorkers,omitempty"`
	AcquisitionCampaign       string   `json:"acquisitionCampaign,omitempty"`
	AcquisitionKeyword        string   `json:"acquisitionKeyword,omitempty"`
}

// appellationDTO is one matched appellation in a result row.
type appellationDTO struct {
	AppellationCode  string  `json:"appellationCode"`
	AppellationLabel string  `json:"appellationLabel"`
	Score            float64 `json:"score"`
}

// searchResultDTO is the JSON shape of one result row.
type searchResultDTO struct {
	Siret                  string           `json:"siret"`
	Name                   string           `json:"name"`
	NafCode                string           `json:"naf,omitempty"`
	StreetNumberAndAddress string           `json:"address"`
	Postcode               string           `json:"postcode,omitempty"`
	City                   string           `json:"city,omitempty"`
	Latitude               float64          `json:"latitude"`
	Longitude              float64          `json:"longitude"`
	DistanceMeters         *float64         `json:"distanceM,omitempty"`
	RomeCode               string           `json:"rome"`
	RomeLabel              string           `json:"romeLabel"`
	Appellations           []appellationDTO `json:"appellations"`
	VoluntaryToImmersion   bool             `json:"voluntaryToImmersion"`
	ContactMode            string           `json:"contactMode,omitempty"`
	FitForDisabledWorkers  *bool            `json:"fitForDisabledWorkers,omitempty"`
	NextAvailabilityDate   *time.Time       `json:"nextAvailabilityDate,omitempty"`
}

// ─── Handler ─────────────────────────────────────────────────────────────────

// Handler holds the orchestrator dependency.
type Handler struct {
	svc *search.Service
}

// NewHandler returns a configured Handler.
func NewHandler(svc *search.Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the search routes on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/search", h.handleSearch)
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body searchRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	req, err := toRequest(body)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	results, err := h.svc.Search(r.Context(), req)
	if err != nil {
		writeSearchError(w, err)
		return
	}

	dtos := make([]searchResultDTO, 0, len(results))
	for _, res := range results {
		dtos = append(dtos, toDTO(res))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(dtos)
}

// writeSearchError maps the error taxonomy to HTTP statuses. External
// gateway degradation never reaches here: the orchestrator absorbs it.
func writeSearchError(w http.ResponseWriter, err error) {
	var vErr *search.ValidationError
	switch {
	case errors.As(err, &vErr):
		jsonError(w, vErr.Msg, http.StatusBadRequest)
	case errors.Is(err, occupation.ErrNoMatchingOccupation):
		jsonError(w, "appellation codes do not resolve to any known occupation", http.StatusNotFound)
	default:
		log.Printf("[search-service] search error: %v", err)
		jsonError(w, "search failed", http.StatusInternalServerError)
	}
}

func toRequest(body searchRequest) (search.Request, error) {
	sortedBy, err := model.ParseSortMode(body.SortedBy)
	if err != nil {
		return search.Request{}, err
	}

	var audience model.Audience
	if body.EstablishmentSearchableBy != "" {
		audience, err = model.ParseAudience(body.EstablishmentSearchableBy)
		if err != nil {
			return search.Request{}, err
		}
	}

	return search.Request{
		Latitude:                  body.Latitude,
		Longitude:                 body.Longitude,
		DistanceKm:                body.DistanceKm,
		RomeCode:                  body.RomeCode,
		AppellationCodes:          body.AppellationCodes,
		NafCodes:                  body.NafCodes,
		SortedBy:                  sortedBy,
		VoluntaryToImmersion:      body.VoluntaryToImmersion,
		EstablishmentSearchableBy: audience,
		FitForDisabledWorkers:     body.FitForDisabledWorkers,
		AcquisitionCampaign:       body.AcquisitionCampaign,
		AcquisitionKeyword:        body.AcquisitionKeyword,
	}, nil
}

func toDTO(r model.SearchResult) searchResultDTO {
	apps := make([]appellationDTO, 0, len(r.Appellations))
	for _, a := range r.Appellations {
		apps = append(apps, appellationDTO{
			AppellationCode:  a.AppellationCode,
			AppellationLabel: a.AppellationLabel,
			Score:            a.Score,
		})
	}
	return searchResultDTO{
		Siret:                  r.Siret,
		Name:                   r.Name,
		NafCode:                r.NafCode,
		StreetNumberAndAddress: r.Address.StreetNumberAndAddress,
		Postcode:               r.Address.Postcode,
		City:                   r.Address.City,
		Latitude:               r.Position.Lat,
		Longitude:              r.Position.Lon,
		DistanceMeters:         r.DistanceMeters,
		RomeCode:               r.RomeCode,
		RomeLabel:              r.RomeLabel,
		Appellations:           apps,
		VoluntaryToImmersion:   r.VoluntaryToImmersion,
		ContactMode:            r.ContactMode,
		FitForDisabledWorkers:  r.FitForDisabledWorkers,
		NextAvailabilityDate:   r.NextAvailabilityDate,
	}
}

// jsonError writes a JSON error payload with the given status.
func jsonError(w http.ResponseWriter, msg string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
