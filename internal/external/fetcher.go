// Package external wraps the third-party company-matching API that suggests
// establishments likely to welcome an immersion near a point, independent of
// the internal catalog.
package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	defaultTimeout = 10 * time.Second
	searchPath     = "/v1/companies"
)

// Company is the stub returned for an externally sourced establishment.
// Audience and disability-fitness are always unknown for these results.
type Company struct {
	Siret          string
	Name           string
	NafCode        string
	Address        string
	City           string
	Lat            float64
	Lon            float64
	DistanceMeters float64
}

// Fetcher queries the companies-matching API. If BaseURL is empty, searches
// return (nil, nil) gracefully; the orchestrator simply gets zero external
// results and logs a warning, same as the degraded-error path.
type Fetcher struct {
	BaseURL string
	APIKey  string
	client  *http.Client
}

// NewFetcher constructs a Fetcher with a shared timeout-bound HTTP client.
func NewFetcher(baseURL, apiKey string) *Fetcher {
	return &Fetcher{
		BaseURL: baseURL,
		APIKey:  apiKey,
		client:  &http.Client{Timeout: defaultTimeout},
	}
}

// companiesResponse mirrors the top-level API response.
type companiesResponse struct {
	Companies []companyResult `json:"companies"`
}

// companyResult mirrors a single company entry.
type companyResult struct {
	Siret    string  `json:"siret"`
	Name     string  `json:"name"`
	Naf      string  `json:"naf"`
	Address  string  `json:"address"`
	City     string  `json:"city"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	Distance float64 `json:"distance"` // kilometres
}

// SearchCompanies returns companies matching a single occupation family near
// the given point, within distanceKm.
func (f *Fetcher) SearchCompanies(ctx context.Context, romeCode string, lat, lon, distanceKm float64) ([]Company, error) {
	if f.BaseURL == "" {
		log.Println("[search-service] COMPANIES_API_BASE_URL not set, skipping external search")
		return nil, nil
	}

	params := url.Values{}
	params.Set("rome", romeCode)
	params.Set("latitude", strconv.FormatFloat(lat, 'f', -1, 64))
	params.Set("longitude", strconv.FormatFloat(lon, 'f', -1, 64))
	params.Set("distance", strconv.FormatFloat(distanceKm, 'f', -1, 64))

	reqURL := f.BaseURL + searchPath + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if f.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+f.APIKey)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http GET: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("companies API returned %d: %s", resp.StatusCode, string(body))
	}

	var apiResp companiesResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("json unmarshal: %w", err)
	}

	companies := make([]Company, 0, len(apiResp.Companies))
	for _, c := range apiResp.Companies {
		companies = append(companies, Company{
			Siret:          c.Siret,
			Name:           c.Name,
			NafCode:        c.Naf,
			Address:        c.Address,
			City:           c.City,
			Lat:            c.Lat,
			Lon:            c.Lon,
			DistanceMeters: c.Distance * 1000,
		})
	}
	return companies, nil
}
