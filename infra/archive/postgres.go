// Package archive provides the Postgres-backed ride archive. The in-memory
// store in core/archive remains the default when no database is configured.
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	corearchive "github.com/charujain10/smartchair-dispatch/core/archive"
	"github.com/charujain10/smartchair-dispatch/core/model"
	"github.com/charujain10/smartchair-dispatch/infra/logger"
)

// Config holds the database connection settings.
type Config struct {
	DSN string `json:"dsn"`
}

const schema = `
CREATE TABLE IF NOT EXISTS rides (
	id           TEXT PRIMARY KEY,
	request_id   TEXT NOT NULL,
	rider_id     TEXT NOT NULL,
	unit_id      TEXT NOT NULL,
	pickup       TEXT NOT NULL,
	destination  TEXT NOT NULL,
	status       TEXT NOT NULL,
	progress     DOUBLE PRECISION NOT NULL,
	overrides    JSONB NOT NULL DEFAULT '[]',
	emergency    BOOLEAN NOT NULL DEFAULT FALSE,
	created_at   TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS rides_rider_idx ON rides (rider_id, completed_at DESC);
`

// PostgresStore persists terminal rides in Postgres.
type PostgresStore struct {
	pool *pgxpool.Pool
	log  logger.Logger
}

// NewPostgresStore connects, pings and ensures the schema.
func NewPostgresStore(ctx context.Context, cfg Config) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &PostgresStore{pool: pool, log: logger.New("ride-archive")}, nil
}

// Save inserts the ride record. Saving the same id twice keeps the first
// record; archived rides are immutable.
func (s *PostgresStore) Save(r model.Ride) error {
	overrides, err := json.Marshal(r.Overrides)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = s.pool.Exec(ctx, `
		INSERT INTO rides (id, request_id, rider_id, unit_id, pickup, destination, status, progress, overrides, emergency, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING;
	`, r.ID, r.RequestID, r.RiderID, r.UnitID, r.Pickup, r.Destination, r.Status.String(), r.Progress, overrides, r.Emergency, r.CreatedAt, r.CompletedAt)
	if err != nil {
		s.log.Errorf("archive ride %s: %v", r.ID, err)
	}
	return err
}

// Get returns the archived ride.
func (s *PostgresStore) Get(id string) (model.Ride, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	row := s.pool.QueryRow(ctx, `
		SELECT id, request_id, rider_id, unit_id, pickup, destination, status, progress, overrides, emergency, created_at, completed_at
		FROM rides WHERE id = $1;
	`, id)
	r, err := scanRide(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Ride{}, corearchive.ErrNotFound
	}
	return r, err
}

// ListByRider returns the rider's completed rides, most recent first.
func (s *PostgresStore) ListByRider(riderID string) ([]model.Ride, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	rows, err := s.pool.Query(ctx, `
		SELECT id, request_id, rider_id, unit_id, pickup, destination, status, progress, overrides, emergency, created_at, completed_at
		FROM rides WHERE rider_id = $1 ORDER BY completed_at DESC;
	`, riderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Ride
	for rows.Next() {
		r, err := scanRide(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

func scanRide(row pgx.Row) (model.Ride, error) {
	var r model.Ride
	var status string
	var overrides []byte
	err := row.Scan(&r.ID, &r.RequestID, &r.RiderID, &r.UnitID, &r.Pickup, &r.Destination,
		&status, &r.Progress, &overrides, &r.Emergency, &r.CreatedAt, &r.CompletedAt)
	if err != nil {
		return model.Ride{}, err
	}
	r.Status = model.ParseRideStatus(status)
	if err := json.Unmarshal(overrides, &r.Overrides); err != nil {
		return model.Ride{}, err
	}
	return r, nil
}
