// Package config loads and validates environment variables at startup.
// Fail-fast: if a required variable is missing, the process exits.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration for the search service.
type Config struct {
	Port                string
	DatabaseURL         string
	RedisURL            string
	CompaniesAPIBaseURL string
	CompaniesAPIKey     string
	ExternalTimeout     time.Duration
	DeletedRefreshHours int // how often the deleted-siret cache is rebuilt
}

// Load reads environment variables and returns a validated Config.
func Load() (*Config, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}

	port := os.Getenv("SEARCH_PORT")
	if port == "" {
		port = "8083"
	}

	externalTimeout := 5 * time.Second
	if s := os.Getenv("EXTERNAL_TIMEOUT_SECONDS"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 {
			return nil, fmt.Errorf("EXTERNAL_TIMEOUT_SECONDS must be a positive integer, got %q", s)
		}
		externalTimeout = time.Duration(v) * time.Second
	}

	refresh := 6
	if s := os.Getenv("DELETED_REFRESH_HOURS"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 {
			return nil, fmt.Errorf("DELETED_REFRESH_HOURS must be a positive integer, got %q", s)
		}
		refresh = v
	}

	return &Config{
		Port:                port,
		DatabaseURL:         dbURL,
		RedisURL:            redisURL,
		CompaniesAPIBaseURL: os.Getenv("COMPANIES_API_BASE_URL"),
		CompaniesAPIKey:     os.Getenv("COMPANIES_API_KEY"),
		ExternalTimeout:     externalTimeout,
		DeletedRefreshHours: refresh,
	}, nil
}
