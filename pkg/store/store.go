// Package store implements the durable relational store for the trace
// core. It is the authoritative system of record; the hot cache in front
// of it is advisory. SQLite (default) and Postgres are supported, selected
// by the DATABASE_URL scheme.
package store

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// timeFormat is RFC3339 with fixed-width nanoseconds so stored timestamps
// sort lexicographically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// Store wraps the relational database.
type Store struct {
	db     *sql.DB
	driver string
}

// Open connects to the database named by databaseURL. URLs with a
// postgres:// or postgresql:// scheme use the Postgres driver; everything
// else is treated as a SQLite DSN.
func Open(databaseURL string) (*Store, error) {
	driver := "sqlite"
	if strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://") {
		driver = "postgres"
	}
	db, err := sql.Open(driver, databaseURL)
	if err != nil {
		return nil, err
	}
	if driver == "sqlite" {
		// A single writer avoids SQLITE_BUSY churn under concurrent
		// transitions; reads still come from the pool.
		db.SetMaxOpenConns(1)
	}
	return &Store{db: db, driver: driver}, nil
}

// NewWithDB wraps an existing database handle. Used by tests.
func NewWithDB(db *sql.DB, driver string) *Store {
	return &Store{db: db, driver: driver}
}

// Ping verifies connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the underlying pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// rebind rewrites ? placeholders to $n for the Postgres driver. Queries
// are written in SQLite style throughout the package.
func (s *Store) rebind(query string) string {
	if s.driver != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// isUniqueViolation detects primary-key and unique-constraint conflicts
// across both drivers.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "constraint failed")
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t
	}
	return time.Time{}
}
