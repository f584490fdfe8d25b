package models

import "time"

// SyncTask represents a queued synchronization job for Sheets.
type SyncTask struct {
	ID            int64        `json:"id"`
	TaskType      string       `json:"task_type"`
	ReservationID int64        `json:"reservation_id"`
	Reservation   *Reservation `json:"reservation,omitempty"`
	RetryCount    int          `json:"retry_count"`
	LastError     string       `json:"last_error,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
}
