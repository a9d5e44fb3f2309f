package catalog

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// deletedSiretsKey is the Redis set holding every deleted siret.
const deletedSiretsKey = "catalog:deleted_sirets"

// DeletedSiretStore answers "has this establishment been deleted" for
// externally sourced results. Lookups hit a Redis set refreshed from
// Postgres; if Redis is unavailable the store falls back to Postgres
// directly, and a total lookup failure degrades to "not deleted" at the
// caller rather than failing the search.
type DeletedSiretStore struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
}

// NewDeletedSiretStore wires a DeletedSiretStore.
func NewDeletedSiretStore(pool *pgxpool.Pool, rdb *redis.Client) *DeletedSiretStore {
	return &DeletedSiretStore{pool: pool, rdb: rdb}
}

// Contains returns, for each input siret, whether it is known-deleted.
func (s *DeletedSiretStore) Contains(ctx context.Context, sirets []string) (map[string]bool, error) {
	if len(sirets) == 0 {
		return map[string]bool{}, nil
	}

	if s.rdb != nil {
		members := make([]interface{}, len(sirets))
		for i, siret := range sirets {
			members[i] = siret
		}
		hits, err := s.rdb.SMIsMember(ctx, deletedSiretsKey, members...).Result()
		if err == nil && len(hits) == len(sirets) {
			out := make(map[string]bool, len(sirets))
			for i, siret := range sirets {
				out[siret] = hits[i]
			}
			return out, nil
		}
		if err != nil {
			slog.Warn("deleted-siret cache lookup failed, falling back to postgres", "err", err)
		}
	}

	return s.containsFromPostgres(ctx, sirets)
}

func (s *DeletedSiretStore) containsFromPostgres(ctx context.Context, sirets []string) (map[string]bool, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT siret FROM deleted_establishments WHERE siret = ANY($1)`,
		sirets,
	)
	if err != nil {
		return nil, fmt.Errorf("query deleted establishments: %w", err)
	}
	defer rows.Close()

	out := make(map[string]bool, len(sirets))
	for _, siret := range sirets {
		out[siret] = false
	}
	for rows.Next() {
		var siret string
		if err := rows.Scan(&siret); err != nil {
			return nil, fmt.Errorf("scan deleted siret: %w", err)
		}
		out[siret] = true
	}
	return out, rows.Err()
}

// RefreshCache rebuilds the Redis set from Postgres. The new set is built
// under a staging key and swapped in with RENAME so concurrent lookups never
// see a half-populated set.
func (s *DeletedSiretStore) RefreshCache(ctx context.Context) error {
	if s.rdb == nil {
		return nil
	}

	rows, err := s.pool.Query(ctx, `SELECT siret FROM deleted_establishments`)
	if err != nil {
		return fmt.Errorf("load deleted establishments: %w", err)
	}
	defer rows.Close()

	var sirets []interface{}
	for rows.Next() {
		var siret string
		if err := rows.Scan(&siret); err != nil {
			return fmt.Errorf("scan deleted siret: %w", err)
		}
		sirets = append(sirets, siret)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("deleted establishments rows: %w", err)
	}

	staging := deletedSiretsKey + ":staging"
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, staging)
	if len(sirets) > 0 {
		pipe.SAdd(ctx, staging, sirets...)
		pipe.Rename(ctx, staging, deletedSiretsKey)
	} else {
		pipe.Del(ctx, deletedSiretsKey)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("refresh deleted-siret cache: %w", err)
	}
	return nil
}
