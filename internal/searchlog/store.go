// Package searchlog durably records every search query and its result count
// for analytics and replay. Entries are append-only: nothing in the search
// service ever mutates or deletes them.
package searchlog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/gip-inclusion/immersion-facile-sub000/internal/model"
)

// searchMadeChannel carries live search events for analytics consumers.
const searchMadeChannel = "EVENT_SEARCH_MADE"

// Entry is one logged search: the query snapshot plus the result count.
type Entry struct {
	ID                    string
	RomeCode              string
	AppellationCodes      []string
	NafCodes              []string
	Lat                   *float64
	Lon                   *float64
	DistanceKm            *float64
	SortedBy              model.SortMode
	VoluntaryToImmersion  *bool
	SearchableBy          model.Audience
	FitForDisabledWorkers *bool
	AcquisitionCampaign   string
	AcquisitionKeyword    string
	ResultCount           int
	At                    time.Time
}

// NewEntry snapshots a normalized query into a log entry.
func NewEntry(q model.SearchQuery, resultCount int, now time.Time) Entry {
	e := Entry{
		ID:                    uuid.NewString(),
		RomeCode:              q.RomeCode,
		AppellationCodes:      q.AppellationCodes,
		NafCodes:              q.NafCodes,
		SortedBy:              q.SortedBy,
		VoluntaryToImmersion:  q.VoluntaryToImmersion,
		SearchableBy:          q.SearchableBy,
		FitForDisabledWorkers: q.FitForDisabledWorkers,
		AcquisitionCampaign:   q.AcquisitionCampaign,
		AcquisitionKeyword:    q.AcquisitionKeyword,
		ResultCount:           resultCount,
		At:                    now,
	}
	if q.Geo != nil {
		e.Lat, e.Lon, e.DistanceKm = &q.Geo.Lat, &q.Geo.Lon, &q.Geo.DistanceKm
	}
	return e
}

// Store persists search log entries and publishes a live event per entry.
type Store struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
}

// NewStore wires a Store.
func NewStore(pool *pgxpool.Pool, rdb *redis.Client) *Store {
	return &Store{pool: pool, rdb: rdb}
}

// Save appends the entry. The Postgres insert is the durable record and its
// error is returned; the Redis publish is best-effort.
func (s *Store) Save(ctx context.Context, e Entry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO search_logs
		   (id, rome_code, appellation_codes, naf_codes, lat, lon, distance_km,
		    sorted_by, voluntary_to_immersion, searchable_by, fit_for_disabled_workers,
		    acquisition_campaign, acquisition_keyword, result_count, searched_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		e.ID, e.RomeCode, e.AppellationCodes, e.NafCodes, e.Lat, e.Lon, e.DistanceKm,
		string(e.SortedBy), e.VoluntaryToImmersion, string(e.SearchableBy), e.FitForDisabledWorkers,
		e.AcquisitionCampaign, e.AcquisitionKeyword, e.ResultCount, e.At,
	)
	if err != nil {
		return fmt.Errorf("insert search log: %w", err)
	}

	if s.rdb != nil {
		event, _ := json.Marshal(map[string]interface{}{
			"type":        searchMadeChannel,
			"searchId":    e.ID,
			"romeCode":    e.RomeCode,
			"resultCount": e.ResultCount,
			"sortedBy":    string(e.SortedBy),
		})
		if err := s.rdb.Publish(ctx, searchMadeChannel, event).Err(); err != nil {
			slog.Warn("publish EVENT_SEARCH_MADE failed", "searchId", e.ID, "err", err)
		}
	}
	return nil
}
