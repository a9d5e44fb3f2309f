package scoring

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PgDiscussionReader reads discussion history from Postgres.
type PgDiscussionReader struct {
	pool *pgxpool.Pool
}

// NewPgDiscussionReader wires a PgDiscussionReader.
func NewPgDiscussionReader(pool *pgxpool.Pool) *PgDiscussionReader {
	return &PgDiscussionReader{pool: pool}
}

// StatsBySiret counts, per siret, the discussions created since the given
// time and how many of them carry at least one establishment-authored
// exchange.
func (r *PgDiscussionReader) StatsBySiret(ctx context.Context, sirets []string, since time.Time) (map[string]DiscussionStats, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT d.siret,
		        COUNT(*),
		        COUNT(*) FILTER (WHERE EXISTS (
		          SELECT 1 FROM exchanges x
		          WHERE x.discussion_id = d.id AND x.sender = 'establishment'
		        ))
		 FROM discussions d
		 WHERE d.siret = ANY($1) AND d.created_at >= $2
		 GROUP BY d.siret`,
		sirets, since,
	)
	if err != nil {
		return nil, fmt.Errorf("query discussion stats: %w", err)
	}
	defer rows.Close()

	out := make(map[string]DiscussionStats, len(sirets))
	for rows.Next() {
		var (
			siret string
			stats DiscussionStats
		)
		if err := rows.Scan(&siret, &stats.Total, &stats.Answered); err != nil {
			return nil, fmt.Errorf("scan discussion stats: %w", err)
		}
		out[siret] = stats
	}
	return out, rows.Err()
}

// PgPlacementReader reads accepted placements (conventions) from Postgres.
type PgPlacementReader struct {
	pool *pgxpool.Pool
}

// NewPgPlacementReader wires a PgPlacementReader.
func NewPgPlacementReader(pool *pgxpool.Pool) *PgPlacementReader {
	return &PgPlacementReader{pool: pool}
}

// AcceptedCountBySiret counts, per siret, the accepted placements submitted
// since the given time.
func (r *PgPlacementReader) AcceptedCountBySiret(ctx context.Context, sirets []string, since time.Time) (map[string]int, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT siret, COUNT(*)
		 FROM conventions
		 WHERE siret = ANY($1)
		   AND status = 'ACCEPTED'
		   AND date_submitted >= $2
		 GROUP BY siret`,
		sirets, since,
	)
	if err != nil {
		return nil, fmt.Errorf("query accepted placements: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int, len(sirets))
	for rows.Next() {
		var (
			siret string
			count int
		)
		if err := rows.Scan(&siret, &count); err != nil {
			return nil, fmt.Errorf("scan accepted placements: %w", err)
		}
		out[siret] = count
	}
	return out, rows.Err()
}
