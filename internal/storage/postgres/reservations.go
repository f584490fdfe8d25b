package postgres

import (
	"context"
	"fmt"
	"time"

	"yoyaku/internal/models"

	"github.com/jackc/pgx/v5"
)

const reservationColumns = `id, item_name, start_date, end_date, status, user_id, created_at`

func (s *Store) FindReservationsByItem(ctx context.Context, itemName string) ([]*models.Reservation, error) {
	const query = `SELECT ` + reservationColumns + ` FROM reservations WHERE item_name = $1 ORDER BY start_date, id`
	rows, err := s.conn(ctx).Query(ctx, query, itemName)
	if err != nil {
		return nil, fmt.Errorf("find reservations by item: %w", err)
	}
	return scanReservations(rows)
}

func (s *Store) CreateReservation(ctx context.Context, r *models.Reservation) error {
	const query = `
INSERT INTO reservations (item_name, start_date, end_date, status, user_id)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, created_at`
	err := s.conn(ctx).QueryRow(ctx, query,
		r.ItemName, r.StartDate, r.EndDate, r.Status, r.UserID,
	).Scan(&r.ID, &r.CreatedAt)
	if err != nil {
		return fmt.Errorf("create reservation: %w", err)
	}
	return nil
}

func (s *Store) GetUserReservations(ctx context.Context, userID int64) ([]*models.Reservation, error) {
	const query = `SELECT ` + reservationColumns + ` FROM reservations WHERE user_id = $1 ORDER BY start_date DESC, id DESC`
	rows, err := s.conn(ctx).Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("get user reservations: %w", err)
	}
	return scanReservations(rows)
}

func (s *Store) GetReservationsByDateRange(ctx context.Context, start, end time.Time) ([]*models.Reservation, error) {
	const query = `SELECT ` + reservationColumns + ` FROM reservations
WHERE start_date <= $1 AND end_date >= $2 ORDER BY item_name, start_date`
	rows, err := s.conn(ctx).Query(ctx, query, end, start)
	if err != nil {
		return nil, fmt.Errorf("get reservations by date range: %w", err)
	}
	return scanReservations(rows)
}

// LockItem takes a transaction-scoped advisory lock on the item name, so
// concurrent reservation attempts for one item run one after another.
func (s *Store) LockItem(ctx context.Context, itemName string) error {
	tx := txFromContext(ctx)
	if tx == nil {
		return fmt.Errorf("lock item %q: no transaction in context", itemName)
	}
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, itemName); err != nil {
		return fmt.Errorf("lock item %q: %w", itemName, err)
	}
	return nil
}

func scanReservations(rows pgx.Rows) ([]*models.Reservation, error) {
	defer rows.Close()

	var reservations []*models.Reservation
	for rows.Next() {
		r := &models.Reservation{}
		if err := rows.Scan(&r.ID, &r.ItemName, &r.StartDate, &r.EndDate, &r.Status, &r.UserID, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		r.StartDate = r.StartDate.UTC()
		r.EndDate = r.EndDate.UTC()
		reservations = append(reservations, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reservations: %w", err)
	}
	return reservations, nil
}
