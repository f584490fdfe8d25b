package models

import "time"

const (
	// DateLayout is the only accepted wire and storage format for reservation days.
	DateLayout    = "2006-01-02"
	secondsPerDay = 24 * 60 * 60
)

type Reservation struct {
	ID        int64     `json:"id"`
	ItemName  string    `json:"item_name"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"` // inclusive
	Status    string    `json:"status"`
	UserID    int64     `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Days returns the number of calendar days covered, counting both ends.
func (r *Reservation) Days() int {
	return DaysInclusive(r.StartDate, r.EndDate)
}

// DaysInclusive counts the days from start to end at UTC midnight, both ends
// included. time.Sub saturates past ~292 years, so whole Unix days are used.
func DaysInclusive(start, end time.Time) int {
	return int(end.Unix()/secondsPerDay-start.Unix()/secondsPerDay) + 1
}

// ReservationView is the JSON shape returned to clients.
type ReservationView struct {
	ID        int64  `json:"id"`
	ItemName  string `json:"item_name"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Status    string `json:"status"`
	UserID    int64  `json:"user_id"`
}

func (r *Reservation) View() ReservationView {
	return ReservationView{
		ID:        r.ID,
		ItemName:  r.ItemName,
		StartDate: r.StartDate.Format(DateLayout),
		EndDate:   r.EndDate.Format(DateLayout),
		Status:    r.Status,
		UserID:    r.UserID,
	}
}
