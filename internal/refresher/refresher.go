// Package refresher wires up the cron job that periodically rebuilds the
// Redis deleted-siret cache from Postgres.
package refresher

import (
	"context"
	"fmt"
	"log"

	"github.com/robfig/cron/v3"

	"github.com/gip-inclusion/immersion-facile-sub000/internal/catalog"
)

// Refresher wraps robfig/cron and manages the cache-rebuild loop.
type Refresher struct {
	cron     *cron.Cron
	store    *catalog.DeletedSiretStore
	schedule string // e.g. "@every 6h"
}

// New creates a Refresher that fires every intervalHours hours.
func New(store *catalog.DeletedSiretStore, intervalHours int) *Refresher {
	return &Refresher{
		cron:     cron.New(cron.WithLogger(cron.DefaultLogger)),
		store:    store,
		schedule: fmt.Sprintf("@every %dh", intervalHours),
	}
}

// Start registers the job and starts the scheduler. Also runs one refresh
// immediately so lookups never start against an empty cache.
func (r *Refresher) Start(ctx context.Context) error {
	_, err := r.cron.AddFunc(r.schedule, func() {
		r.refresh(ctx)
	})
	if err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}

	r.cron.Start()
	log.Printf("[search-service] Deleted-siret refresher started (%s)", r.schedule)

	go r.refresh(ctx)

	return nil
}

// Stop gracefully shuts down the scheduler.
func (r *Refresher) Stop() {
	r.cron.Stop()
	log.Println("[search-service] Deleted-siret refresher stopped")
}

func (r *Refresher) refresh(ctx context.Context) {
	if err := r.store.RefreshCache(ctx); err != nil {
		log.Printf("[search-service] Deleted-siret cache refresh error: %v", err)
		return
	}
	log.Println("[search-service] Deleted-siret cache refreshed")
}
