// immersion-search-service
//
// Matches job seekers to establishments offering short work-immersion
// placements. Combines the internal geo-indexed offer catalog with a
// real-time external company-matching API, deduplicates, filters, scores,
// ranks, and logs every search for analytics.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/gip-inclusion/immersion-facile-sub000/internal/catalog"
	"github.com/gip-inclusion/immersion-facile-sub000/internal/config"
	"github.com/gip-inclusion/immersion-facile-sub000/internal/db"
	"github.com/gip-inclusion/immersion-facile-sub000/internal/external"
	"github.com/gip-inclusion/immersion-facile-sub000/internal/httpapi"
	"github.com/gip-inclusion/immersion-facile-sub000/internal/occupation"
	"github.com/gip-inclusion/immersion-facile-sub000/internal/refresher"
	"github.com/gip-inclusion/immersion-facile-sub000/internal/scoring"
	"github.com/gip-inclusion/immersion-facile-sub000/internal/search"
	"github.com/gip-inclusion/immersion-facile-sub000/internal/searchlog"
)

const version = "1.0.0"

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("[search-service] no .env file found")
	}

	// ── Config ──────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[search-service] Config error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── PostgreSQL ──────────────────────────────────────────────────────────
	log.Println("[search-service] Connecting to PostgreSQL…")
	pool, err := db.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("[search-service] PostgreSQL: %v", err)
	}
	defer pool.Close()
	log.Println("[search-service] PostgreSQL connected ✓")

	// ── Redis ───────────────────────────────────────────────────────────────
	log.Println("[search-service] Connecting to Redis…")
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatalf("[search-service] Redis: %v", err)
	}
	defer rdb.Close()
	log.Println("[search-service] Redis connected ✓")

	// ── Wiring ──────────────────────────────────────────────────────────────
	catalogStore := catalog.NewStore(pool)
	deletedStore := catalog.NewDeletedSiretStore(pool, rdb)

	resolver, err := occupation.NewCachedResolver(occupation.NewPgResolver(pool), 4096)
	if err != nil {
		log.Fatalf("[search-service] Occupation cache: %v", err)
	}

	svc := search.NewService(search.Deps{
		Catalog:         catalogStore,
		Gateway:         external.NewFetcher(cfg.CompaniesAPIBaseURL, cfg.CompaniesAPIKey),
		Deleted:         deletedStore,
		Occupation:      resolver,
		Enricher:        scoring.NewEnricher(scoring.NewPgDiscussionReader(pool), scoring.NewPgPlacementReader(pool)),
		Log:             searchlog.NewStore(pool, rdb),
		ExternalTimeout: cfg.ExternalTimeout,
	})

	// ── Deleted-siret cache refresher ───────────────────────────────────────
	ref := refresher.New(deletedStore, cfg.DeletedRefreshHours)
	if err := ref.Start(ctx); err != nil {
		log.Fatalf("[search-service] Refresher: %v", err)
	}
	defer ref.Stop()

	// ── HTTP server ─────────────────────────────────────────────────────────
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	httpapi.NewHandler(svc).RegisterRoutes(mux)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("[search-service] v%s listening on :%s", version, cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[search-service] HTTP server error: %v", err)
		}
	}()

	// ── Graceful shutdown ───────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("[search-service] Shutting down…")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[search-service] Shutdown error: %v", err)
	}
	log.Println("[search-service] Stopped.")
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "ok",
		"service": "search-service",
		"version": version,
	})
}
