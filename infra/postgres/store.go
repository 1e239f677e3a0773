package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tomo-delivery/dispatchd/core/dispatch"
	"github.com/tomo-delivery/dispatchd/core/model"
)

// Config defines the PostgreSQL connection parameters.
type Config struct {
	DSN string `json:"dsn"`
}

var schema = []string{`
CREATE TABLE IF NOT EXISTS orders (
    id                  TEXT PRIMARY KEY,
    status              TEXT NOT NULL,
    rider_id            TEXT,
    zone                TEXT NOT NULL DEFAULT '',
    pickup_lat          DOUBLE PRECISION NOT NULL DEFAULT 0,
    pickup_lng          DOUBLE PRECISION NOT NULL DEFAULT 0,
    dropoff_lat         DOUBLE PRECISION NOT NULL DEFAULT 0,
    dropoff_lng         DOUBLE PRECISION NOT NULL DEFAULT 0,
    needs_manual_assign BOOLEAN NOT NULL DEFAULT FALSE,
    created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`CREATE INDEX IF NOT EXISTS orders_rider_status_idx ON orders (rider_id, status)`,
}

// Store persists orders in PostgreSQL. It backs both the orchestrator's
// OrderStore and the location gate's active-order lookup.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to PostgreSQL and applies the schema.
func New(ctx context.Context, cfg Config) (*Store, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			pool.Close()
			return nil, fmt.Errorf("apply schema: %w", err)
		}
	}
	return &Store{pool: pool}, nil
}

const orderColumns = `id, status, COALESCE(rider_id, ''), zone,
pickup_lat, pickup_lng, dropoff_lat, dropoff_lng,
needs_manual_assign, created_at, updated_at`

// CreateOrder inserts a new order in its initial state.
func (s *Store) CreateOrder(ctx context.Context, o *model.Order) error {
	if o.Status == "" {
		o.Status = model.StatusCreated
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now()
	}
	o.UpdatedAt = o.CreatedAt
	_, err := s.pool.Exec(ctx, `
INSERT INTO orders (id, status, rider_id, zone, pickup_lat, pickup_lng, dropoff_lat, dropoff_lng, needs_manual_assign, created_at, updated_at)
VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9, $10, $11)`,
		o.ID, string(o.Status), o.RiderID, o.Zone,
		o.Pickup.Lat, o.Pickup.Lng, o.Dropoff.Lat, o.Dropoff.Lng,
		o.NeedsManualAssign, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert order %s: %w", o.ID, err)
	}
	return nil
}

// LoadOrder reads one order.
func (s *Store) LoadOrder(ctx context.Context, id string) (*model.Order, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", dispatch.ErrOrderNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load order %s: %w", id, err)
	}
	return o, nil
}

// SaveOrderStatus persists a committed status transition. An empty
// riderID clears the assignment.
func (s *Store) SaveOrderStatus(ctx context.Context, id string, status model.OrderStatus, riderID string) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE orders SET status = $2, rider_id = NULLIF($3, ''), updated_at = now() WHERE id = $1`,
		id, string(status), riderID)
	if err != nil {
		return fmt.Errorf("save order %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", dispatch.ErrOrderNotFound, id)
	}
	return nil
}

// MarkManualAssign flags the order for manual assignment.
func (s *Store) MarkManualAssign(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE orders SET needs_manual_assign = TRUE, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark manual assign %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", dispatch.ErrOrderNotFound, id)
	}
	return nil
}

// ActiveOrdersByRider returns the orders the rider currently holds in an
// active delivery state.
func (s *Store) ActiveOrdersByRider(ctx context.Context, riderID string) ([]model.Order, error) {
	rows, err := s.pool.Query(ctx, `
SELECT `+orderColumns+` FROM orders WHERE rider_id = $1 AND status IN ($2, $3)`,
		riderID, string(model.StatusAssigned), string(model.StatusPickedUp))
	if err != nil {
		return nil, fmt.Errorf("active orders for rider %s: %w", riderID, err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}

// Close releases the connection pool.
func (s *Store) Close() { s.pool.Close() }

func scanOrder(row pgx.Row) (*model.Order, error) {
	var o model.Order
	var status string
	err := row.Scan(&o.ID, &status, &o.RiderID, &o.Zone,
		&o.Pickup.Lat, &o.Pickup.Lng, &o.Dropoff.Lat, &o.Dropoff.Lng,
		&o.NeedsManualAssign, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	o.Status = model.OrderStatus(status)
	if !o.Status.Valid() {
		return nil, fmt.Errorf("order %s has unknown status %q", o.ID, status)
	}
	return &o, nil
}
