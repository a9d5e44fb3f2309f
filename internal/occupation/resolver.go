// Package occupation resolves occupation filters (appellation codes, ROME
// codes) against the French occupational classification reference data.
package occupation

import (
	"context"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNoMatchingOccupation is returned when the given codes resolve to no
// known occupation family. It is fatal to a search that needs the external
// source, which is queried by ROME code.
var ErrNoMatchingOccupation = errors.New("no matching occupation")

// Occupation is one resolved occupation family.
type Occupation struct {
	RomeCode  string
	RomeLabel string
}

// Resolver maps a query's occupation filter to a single ROME occupation.
type Resolver interface {
	Resolve(ctx context.Context, romeCode string, appellationCodes []string) (Occupation, error)
}

// ─── Postgres repository ────────────────────────────────────────────────────

// PgResolver resolves occupations against the reference tables.
type PgResolver struct {
	pool *pgxpool.Pool
}

// NewPgResolver wires a PgResolver.
func NewPgResolver(pool *pgxpool.Pool) *PgResolver {
	return &PgResolver{pool: pool}
}

// Resolve returns the occupation family for the filter. A ROME code takes
// precedence; otherwise the first appellation code that resolves wins.
// Returns ErrNoMatchingOccupation when nothing resolves.
func (r *PgResolver) Resolve(ctx context.Context, romeCode string, appellationCodes []string) (Occupation, error) {
	if romeCode != "" {
		var occ Occupation
		err := r.pool.QueryRow(ctx,
			`SELECT code, label FROM rome_codes WHERE code = $1`,
			romeCode,
		).Scan(&occ.RomeCode, &occ.RomeLabel)
		if errors.Is(err, pgx.ErrNoRows) {
			return Occupation{}, ErrNoMatchingOccupation
		}
		if err != nil {
			return Occupation{}, fmt.Errorf("resolve rome %s: %w", romeCode, err)
		}
		return occ, nil
	}

	if len(appellationCodes) == 0 {
		return Occupation{}, ErrNoMatchingOccupation
	}

	var occ Occupation
	err := r.pool.QueryRow(ctx,
		`SELECT r.code, r.label
		 FROM appellations a
		 JOIN rome_codes r ON r.code = a.rome_code
		 WHERE a.code = ANY($1)
		 ORDER BY a.code
		 LIMIT 1`,
		appellationCodes,
	).Scan(&occ.RomeCode, &occ.RomeLabel)
	if errors.Is(err, pgx.ErrNoRows) {
		return Occupation{}, ErrNoMatchingOccupation
	}
	if err != nil {
		return Occupation{}, fmt.Errorf("resolve appellations: %w", err)
	}
	return occ, nil
}

// ─── Caching layer ───────────────────────────────────────────────────────────

// CachedResolver fronts a Resolver with an LRU cache. Occupation reference
// data changes a few times a year, so a successful resolution is cached for
// the process lifetime; misses are not cached.
type CachedResolver struct {
	inner Resolver
	cache *lru.Cache[string, Occupation]
}

// NewCachedResolver wraps inner with an LRU of the given size.
func NewCachedResolver(inner Resolver, size int) (*CachedResolver, error) {
	cache, err := lru.New[string, Occupation](size)
	if err != nil {
		return nil, fmt.Errorf("create occupation cache: %w", err)
	}
	return &CachedResolver{inner: inner, cache: cache}, nil
}

// Resolve returns the cached occupation when available.
func (r *CachedResolver) Resolve(ctx context.Context, romeCode string, appellationCodes []string) (Occupation, error) {
	key := cacheKey(romeCode, appellationCodes)
	if occ, ok := r.cache.Get(key); ok {
		return occ, nil
	}

	occ, err := r.inner.Resolve(ctx, romeCode, appellationCodes)
	if err != nil {
		return Occupation{}, err
	}
	r.cache.Add(key, occ)
	return occ, nil
}

func cacheKey(romeCode string, appellationCodes []string) string {
	if romeCode != "" {
		return "rome:" + romeCode
	}
	key := "app:"
	for _, c := range appellationCodes {
		key += c + ","
	}
	return key
}
