package external_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gip-inclusion/immersion-facile-sub000/internal/external"
)

func TestSearchCompanies_ParsesResponse(t *testing.T) {
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = map[string]string{
			"rome":      r.URL.Query().Get("rome"),
			"latitude":  r.URL.Query().Get("latitude"),
			"longitude": r.URL.Query().Get("longitude"),
			"distance":  r.URL.Query().Get("distance"),
			"auth":      r.Header.Get("Authorization"),
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"companies":[
			{"siret":"99999999999999","name":"Prospect SARL","naf":"1071C",
			 "address":"3 rue du Four","city":"Metz","lat":49.1,"lon":6.2,"distance":1.5}
		]}`))
	}))
	defer srv.Close()

	fetcher := external.NewFetcher(srv.URL, "secret-key")
	companies, err := fetcher.SearchCompanies(context.Background(), "D1102", 49, 6, 30)
	require.NoError(t, err)

	assert.Equal(t, "D1102", gotQuery["rome"])
	assert.Equal(t, "49", gotQuery["latitude"])
	assert.Equal(t, "6", gotQuery["longitude"])
	assert.Equal(t, "30", gotQuery["distance"])
	assert.Equal(t, "Bearer secret-key", gotQuery["auth"])

	require.Len(t, companies, 1)
	c := companies[0]
	assert.Equal(t, "99999999999999", c.Siret)
	assert.Equal(t, "Prospect SARL", c.Name)
	assert.Equal(t, "1071C", c.NafCode)
	assert.Equal(t, 49.1, c.Lat)
	assert.Equal(t, 1500.0, c.DistanceMeters, "API distances are km, results are meters")
}

func TestSearchCompanies_NonOKStatusIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	fetcher := external.NewFetcher(srv.URL, "")
	_, err := fetcher.SearchCompanies(context.Background(), "D1102", 49, 6, 30)
	require.Error(t, err)
	assert.ErrorContains(t, err, "429")
}

func TestSearchCompanies_MissingBaseURLSkipsGracefully(t *testing.T) {
	fetcher := external.NewFetcher("", "")
	companies, err := fetcher.SearchCompanies(context.Background(), "D1102", 49, 6, 30)
	require.NoError(t, err)
	assert.Nil(t, companies)
}

func TestSearchCompanies_EmptyResultList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"companies":[]}`))
	}))
	defer srv.Close()

	fetcher := external.NewFetcher(srv.URL, "")
	companies, err := fetcher.SearchCompanies(context.Background(), "D1102", 49, 6, 30)
	require.NoError(t, err)
	assert.Empty(t, companies)
}
