package catalog

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gip-inclusion/immersion-facile-sub000/internal/geo"
	"github.com/gip-inclusion/immersion-facile-sub000/internal/model"
)

// psql builds Postgres-flavoured ($1, $2, …) statements.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Store is the Postgres-backed catalog of establishment offers.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a Store over a pgx connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Availability is the per-siret searchability annotation consulted for rows
// of any source during the merge stage.
type Availability struct {
	IsSearchable         bool
	NextAvailabilityDate *time.Time
}

// Search returns ranked, capped search-result rows matching the criteria,
// one row per (siret × occupation family × location).
//
// The SQL pass applies every criteria filter it can express cheaply (equality
// filters plus a bounding-box pre-filter); the exact geodesic radius check
// and the final ranking run in Go on the fetched candidate set.
func (s *Store) Search(ctx context.Context, c Criteria) ([]model.SearchResult, error) {
	b := psql.Select(
		"e.siret", "e.name", "e.naf_code", "e.contact_mode", "e.score",
		"e.fit_for_disabled_workers", "e.next_availability_date", "e.updated_at",
		"e.max_contacts_per_month",
		`(SELECT COUNT(*) FROM discussions d
		   WHERE d.siret = e.siret AND d.created_at >= date_trunc('month', NOW())) AS recent_contacts`,
		"l.id", "l.street_number_and_address", "l.post_code", "l.city", "l.department_code",
		"l.lat", "l.lon",
		"o.rome_code", "o.rome_label", "o.appellation_code", "o.appellation_label",
	).
		From("establishments e").
		Join("establishment_locations l ON l.siret = e.siret").
		Join("immersion_offers o ON o.siret = e.siret")

	// The equality clauses below mirror matchesEstablishment and matchesOffer
	// one for one; any filter added to the Criteria predicates needs its SQL
	// counterpart here, and vice versa.
	if c.OpenOnly {
		b = b.Where(sq.Eq{"e.is_open": true})
	}
	if c.RomeCode != "" {
		b = b.Where(sq.Eq{"o.rome_code": c.RomeCode})
	}
	if len(c.AppellationCodes) > 0 {
		b = b.Where(sq.Eq{"o.appellation_code": c.AppellationCodes})
	}
	if len(c.NafCodes) > 0 {
		b = b.Where(sq.Eq{"e.naf_code": c.NafCodes})
	}
	switch c.SearchableBy {
	case model.AudienceJobSeekers:
		b = b.Where(sq.Eq{"e.searchable_by_job_seekers": true})
	case model.AudienceStudents:
		b = b.Where(sq.Eq{"e.searchable_by_students": true})
	}
	if c.FitForDisabledWorkers != nil {
		b = b.Where(sq.Eq{"e.fit_for_disabled_workers": *c.FitForDisabledWorkers})
	}

	if c.Geo != nil && c.Geo.DistanceKm > 0 {
		bb := geo.BoundsAround(c.Geo.Lat, c.Geo.Lon, c.Geo.DistanceKm)
		b = b.Where(sq.And{
			sq.GtOrEq{"l.lat": bb.MinLat}, sq.LtOrEq{"l.lat": bb.MaxLat},
			sq.GtOrEq{"l.lon": bb.MinLon}, sq.LtOrEq{"l.lon": bb.MaxLon},
		})
	} else if !c.HasOccupationFilter() && (c.SortedBy == model.SortByDate || c.SortedBy == model.SortByScore) {
		// Unfiltered browse: bound the establishment prefix before the
		// location/offer joins so the scan stays flat.
		orderCol := "updated_at DESC"
		if c.SortedBy == model.SortByScore {
			orderCol = "score DESC"
		}
		b = b.Where(fmt.Sprintf(
			"e.siret IN (SELECT siret FROM establishments ORDER BY %s LIMIT %d)",
			orderCol, prefetchGuard,
		))
	}

	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build catalog query: %w", err)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("catalog query: %w", err)
	}
	defer rows.Close()

	grouped, order, err := s.collectRows(rows, c)
	if err != nil {
		return nil, err
	}

	results := make([]model.SearchResult, 0, len(order))
	for _, key := range order {
		results = append(results, *grouped[key])
	}
	return Rank(results, c.SortedBy, MaxResults), nil
}

// HasOccupationFilter reports whether the criteria narrow by occupation.
func (c Criteria) HasOccupationFilter() bool {
	return c.RomeCode != "" || len(c.AppellationCodes) > 0
}

type rowKey struct {
	siret      string
	romeCode   string
	locationID string
}

// collectRows scans the joined rows and folds them into one result per
// (siret, occupation family, location), applying the exact radius check.
func (s *Store) collectRows(rows pgx.Rows, c Criteria) (map[rowKey]*model.SearchResult, []rowKey, error) {
	grouped := make(map[rowKey]*model.SearchResult)
	var order []rowKey

	for rows.Next() {
		var (
			e              model.Establishment
			loc            model.Location
			romeCode       string
			romeLabel      string
			appCode        string
			appLabel       string
			recentContacts int
		)
		if err := rows.Scan(
			&e.Siret, &e.Name, &e.NafCode, &e.ContactMode, &e.Score,
			&e.FitForDisabledWorkers, &e.NextAvailabilityDate, &e.UpdatedAt,
			&e.MaxContactsPerMonth, &recentContacts,
			&loc.ID, &loc.Address.StreetNumberAndAddress, &loc.Address.Postcode,
			&loc.Address.City, &loc.Address.DepartmentCode,
			&loc.Position.Lat, &loc.Position.Lon,
			&romeCode, &romeLabel, &appCode, &appLabel,
		); err != nil {
			return nil, nil, fmt.Errorf("catalog scan: %w", err)
		}

		// Same predicate the pure expansion path uses: the bounding box
		// only pre-filters, the circle decides.
		if !c.withinRadius(loc.Position) {
			continue
		}
		distance := c.distanceTo(loc.Position)

		key := rowKey{siret: e.Siret, romeCode: romeCode, locationID: loc.ID}
		r, ok := grouped[key]
		if !ok {
			r = &model.SearchResult{
				Siret:                 e.Siret,
				Name:                  e.Name,
				NafCode:               e.NafCode,
				Address:               loc.Address,
				Position:              loc.Position,
				DistanceMeters:        distance,
				RomeCode:              romeCode,
				RomeLabel:             romeLabel,
				VoluntaryToImmersion:  true,
				ContactMode:           e.ContactMode,
				EstablishmentScore:    e.Score,
				FitForDisabledWorkers: e.FitForDisabledWorkers,
				IsSearchable:          isSearchable(e, recentContacts),
				NextAvailabilityDate:  e.NextAvailabilityDate,
				UpdatedAt:             e.UpdatedAt,
			}
			grouped[key] = r
			order = append(order, key)
		}
		r.Appellations = append(r.Appellations, model.MatchedAppellation{
			AppellationCode:  appCode,
			AppellationLabel: appLabel,
			Score:            e.Score,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("catalog rows: %w", err)
	}
	return grouped, order, nil
}

// AvailabilityBySiret returns the searchability annotation for each of the
// given sirets known to the catalog. Sirets absent from the catalog are
// absent from the map; the caller treats them as unconstrained.
func (s *Store) AvailabilityBySiret(ctx context.Context, sirets []string, audience model.Audience) (map[string]Availability, error) {
	if len(sirets) == 0 {
		return map[string]Availability{}, nil
	}

	query, args, err := psql.Select(
		"e.siret", "e.is_open", "e.max_contacts_per_month",
		"e.searchable_by_job_seekers", "e.searchable_by_students",
		"e.next_availability_date",
		`(SELECT COUNT(*) FROM discussions d
		   WHERE d.siret = e.siret AND d.created_at >= date_trunc('month', NOW()))`,
	).
		From("establishments e").
		Where(sq.Eq{"e.siret": sirets}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build availability query: %w", err)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("availability query: %w", err)
	}
	defer rows.Close()

	out := make(map[string]Availability, len(sirets))
	for rows.Next() {
		var (
			e              model.Establishment
			recentContacts int
		)
		if err := rows.Scan(
			&e.Siret, &e.IsOpen, &e.MaxContactsPerMonth,
			&e.SearchableByJobSeekers, &e.SearchableByStudents,
			&e.NextAvailabilityDate, &recentContacts,
		); err != nil {
			return nil, fmt.Errorf("availability scan: %w", err)
		}

		searchable := e.IsOpen && isSearchable(e, recentContacts)
		switch audience {
		case model.AudienceJobSeekers:
			searchable = searchable && e.SearchableByJobSeekers
		case model.AudienceStudents:
			searchable = searchable && e.SearchableByStudents
		}
		out[e.Siret] = Availability{
			IsSearchable:         searchable,
			NextAvailabilityDate: e.NextAvailabilityDate,
		}
	}
	return out, rows.Err()
}

// InsertAggregate writes an establishment aggregate, replacing any previous
// offers, locations and user rights for the siret wholesale.
func (s *Store) InsertAggregate(ctx context.Context, agg model.EstablishmentAggregate) error {
	if err := agg.Validate(); err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin insert aggregate: %w", err)
	}
	defer tx.Rollback(ctx)

	e := agg.Establishment
	_, err = tx.Exec(ctx,
		`INSERT INTO establishments
		   (siret, name, is_open, score, naf_code, contact_mode, max_contacts_per_month,
		    searchable_by_job_seekers, searchable_by_students, fit_for_disabled_workers,
		    next_availability_date, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 ON CONFLICT (siret) DO UPDATE
		 SET name = EXCLUDED.name,
		     is_open = EXCLUDED.is_open,
		     score = EXCLUDED.score,
		     naf_code = EXCLUDED.naf_code,
		     contact_mode = EXCLUDED.contact_mode,
		     max_contacts_per_month = EXCLUDED.max_contacts_per_month,
		     searchable_by_job_seekers = EXCLUDED.searchable_by_job_seekers,
		     searchable_by_students = EXCLUDED.searchable_by_students,
		     fit_for_disabled_workers = EXCLUDED.fit_for_disabled_workers,
		     next_availability_date = EXCLUDED.next_availability_date,
		     updated_at = NOW()`,
		e.Siret, e.Name, e.IsOpen, e.Score, e.NafCode, e.ContactMode, e.MaxContactsPerMonth,
		e.SearchableByJobSeekers, e.SearchableByStudents, e.FitForDisabledWorkers,
		e.NextAvailabilityDate, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert establishment %s: %w", e.Siret, err)
	}

	for _, table := range []string{"immersion_offers", "establishment_locations", "establishment_user_rights"} {
		if _, err := tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE siret = $1", table), e.Siret); err != nil {
			return fmt.Errorf("clear %s for %s: %w", table, e.Siret, err)
		}
	}

	for _, o := range agg.Offers {
		_, err := tx.Exec(ctx,
			`INSERT INTO immersion_offers
			   (siret, appellation_code, appellation_label, rome_code, rome_label, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			e.Siret, o.AppellationCode, o.AppellationLabel, o.RomeCode, o.RomeLabel, o.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert offer %s/%s: %w", e.Siret, o.AppellationCode, err)
		}
	}

	for _, l := range agg.Locations {
		_, err := tx.Exec(ctx,
			`INSERT INTO establishment_locations
			   (id, siret, street_number_and_address, post_code, city, department_code, lat, lon)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			l.ID, e.Siret, l.Address.StreetNumberAndAddress, l.Address.Postcode,
			l.Address.City, l.Address.DepartmentCode, l.Position.Lat, l.Position.Lon,
		)
		if err != nil {
			return fmt.Errorf("insert location %s/%s: %w", e.Siret, l.ID, err)
		}
	}

	for _, r := range agg.UserRights {
		_, err := tx.Exec(ctx,
			`INSERT INTO establishment_user_rights (siret, user_id, role)
			 VALUES ($1, $2, $3)`,
			e.Siret, r.UserID, r.Role,
		)
		if err != nil {
			return fmt.Errorf("insert user right %s/%s: %w", e.Siret, r.UserID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit insert aggregate %s: %w", e.Siret, err)
	}
	return nil
}
