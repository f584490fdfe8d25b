package domain

import (
	"context"
	"time"

	"yoyaku/internal/models"
)

type ReservationRepository interface {
	FindReservationsByItem(ctx context.Context, itemName string) ([]*models.Reservation, error)
	CreateReservation(ctx context.Context, reservation *models.Reservation) error
	GetUserReservations(ctx context.Context, userID int64) ([]*models.Reservation, error)
	GetReservationsByDateRange(ctx context.Context, start, end time.Time) ([]*models.Reservation, error)
	// LockItem serializes reservation attempts for one item until the
	// surrounding transaction ends. Must be called inside WithTx.
	LockItem(ctx context.Context, itemName string) error
}

type UserRepository interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByName(ctx context.Context, name string) (*models.User, error)
	GetAllUsers(ctx context.Context) ([]*models.User, error)
	DeleteUser(ctx context.Context, id int64) error
}

type MessageRepository interface {
	CreateMessage(ctx context.Context, msg *models.Message) error
	ListMessages(ctx context.Context) ([]*models.Message, error)
	CreateNotice(ctx context.Context, notice *models.Notice) error
	ListNotices(ctx context.Context) ([]*models.Notice, error)
}

// Transactor runs fn in a single store transaction carried by ctx.
type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Repository interface {
	ReservationRepository
	UserRepository
	MessageRepository
	Transactor
	PingContext(ctx context.Context) error
	Close() error
}

// GuardRepository provides item-scoped mutual exclusion and failure throttling.
type GuardRepository interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Release(ctx context.Context, key, token string) error
	// CheckRateLimit reports whether key has fewer than limit recorded
	// failures in its current window. It does not count the call.
	CheckRateLimit(ctx context.Context, key string, limit int) (bool, error)
	// RecordFailure counts one failure for key. The window starts at the
	// first failure.
	RecordFailure(ctx context.Context, key string, window time.Duration) error
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// Mailer delivers one plain-text message per recipient.
type Mailer interface {
	Send(ctx context.Context, recipients []string, subject, body string) error
}

type Announcer interface {
	Announce(ctx context.Context, text string) error
}

type SyncWorker interface {
	EnqueueTask(ctx context.Context, taskType string, reservation *models.Reservation) error
}
