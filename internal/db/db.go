// Package db provides database utilities and connection handling for Offer Buddy.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	// Registers the postgres driver.
	_ "github.com/lib/pq"
)

// PostGISRequirement documents that the application requires PostgreSQL with PostGIS.
// PostGIS enables radius queries over vendor and product locations.
const PostGISRequirement = "PostGIS extension is required for geo queries"

// VersionQuery is the SQL query to verify PostGIS is available.
const VersionQuery = "SELECT PostGIS_Version()"

// Open connects to PostgreSQL, verifies the connection, and applies sane
// pool limits for an API server workload.
func Open(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// CheckPostGIS verifies the PostGIS extension is installed and usable.
func CheckPostGIS(ctx context.Context, db *sql.DB) error {
	var version string
	if err := db.QueryRowContext(ctx, VersionQuery).Scan(&version); err != nil {
		return fmt.Errorf("%s: %w", PostGISRequirement, err)
	}
	return nil
}
