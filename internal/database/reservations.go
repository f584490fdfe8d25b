package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"yoyaku/internal/models"
)

const reservationColumns = `id, item_name, start_date, end_date, status, user_id, created_at`

func (db *DB) FindReservationsByItem(ctx context.Context, itemName string) ([]*models.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE item_name = ? ORDER BY start_date, id`
	rows, err := db.conn(ctx).QueryContext(ctx, query, itemName)
	if err != nil {
		return nil, fmt.Errorf("failed to find reservations by item: %w", err)
	}
	return scanReservations(rows)
}

func (db *DB) CreateReservation(ctx context.Context, r *models.Reservation) error {
	query := `INSERT INTO reservations (item_name, start_date, end_date, status, user_id, created_at)
              VALUES (?, ?, ?, ?, ?, ?)`
	now := time.Now()
	result, err := db.conn(ctx).ExecContext(ctx, query,
		r.ItemName,
		r.StartDate.Format(models.DateLayout),
		r.EndDate.Format(models.DateLayout),
		r.Status,
		r.UserID,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create reservation: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	r.ID = id
	r.CreatedAt = now
	return nil
}

func (db *DB) GetUserReservations(ctx context.Context, userID int64) ([]*models.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE user_id = ? ORDER BY start_date DESC, id DESC`
	rows, err := db.conn(ctx).QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user reservations: %w", err)
	}
	return scanReservations(rows)
}

// GetReservationsByDateRange returns reservations intersecting [start, end].
func (db *DB) GetReservationsByDateRange(ctx context.Context, start, end time.Time) ([]*models.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations
              WHERE start_date <= ? AND end_date >= ? ORDER BY item_name, start_date`
	rows, err := db.conn(ctx).QueryContext(ctx, query, end.Format(models.DateLayout), start.Format(models.DateLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to get reservations by date range: %w", err)
	}
	return scanReservations(rows)
}

// LockItem is a no-op: the single connection already serializes transactions.
func (db *DB) LockItem(ctx context.Context, itemName string) error {
	if txFromContext(ctx) == nil {
		return fmt.Errorf("lock item %q: no transaction in context", itemName)
	}
	return nil
}

func scanReservations(rows *sql.Rows) ([]*models.Reservation, error) {
	defer rows.Close()

	var reservations []*models.Reservation
	for rows.Next() {
		r := &models.Reservation{}
		var startStr, endStr string
		if err := rows.Scan(&r.ID, &r.ItemName, &startStr, &endStr, &r.Status, &r.UserID, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan reservation: %w", err)
		}
		var err error
		if r.StartDate, err = time.Parse(models.DateLayout, startStr); err != nil {
			return nil, fmt.Errorf("failed to parse reservation start %s: %w", startStr, err)
		}
		if r.EndDate, err = time.Parse(models.DateLayout, endStr); err != nil {
			return nil, fmt.Errorf("failed to parse reservation end %s: %w", endStr, err)
		}
		reservations = append(reservations, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate reservations: %w", err)
	}
	return reservations, nil
}
