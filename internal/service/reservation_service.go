package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"yoyaku/internal/domain"
	"yoyaku/internal/events"
	"yoyaku/internal/metrics"
	"yoyaku/internal/models"
	"yoyaku/internal/worker"

	"github.com/rs/zerolog"
)

const (
	lockKeyPrefix  = "item:"
	releaseTimeout = 2 * time.Second
)

// ReservationService accepts a reservation only when none of its days is
// already taken for the same item. Checking and writing happen under an
// item lock inside one store transaction.
type ReservationService struct {
	repo         domain.Repository
	guard        domain.GuardRepository
	eventBus     domain.EventPublisher
	sheetsWorker domain.SyncWorker
	lockTTL      time.Duration
	logger       *zerolog.Logger
}

func NewReservationService(
	repo domain.Repository,
	guard domain.GuardRepository,
	eventBus domain.EventPublisher,
	sheetsWorker domain.SyncWorker,
	lockTTL time.Duration,
	logger *zerolog.Logger,
) *ReservationService {
	if lockTTL <= 0 {
		lockTTL = models.DefaultLockTTL * time.Second
	}
	return &ReservationService{
		repo:         repo,
		guard:        guard,
		eventBus:     eventBus,
		sheetsWorker: sheetsWorker,
		lockTTL:      lockTTL,
		logger:       logger,
	}
}

// Reserve validates the candidate range and records it for owner unless it
// shares a day with an existing reservation of itemName.
func (s *ReservationService) Reserve(ctx context.Context, owner *models.User, itemName, startStr, endStr string) (*models.Reservation, error) {
	candidate, err := s.validate(owner, itemName, startStr, endStr)
	if err != nil {
		metrics.IncReservation(metrics.OutcomeInvalid)
		return nil, err
	}

	release, err := s.lockItem(ctx, candidate.ItemName)
	if err != nil {
		metrics.IncReservation(metrics.OutcomeError)
		return nil, &domain.PersistenceError{Op: "lock item", Err: err}
	}
	defer release()

	err = s.repo.WithTx(ctx, func(txCtx context.Context) error {
		if err := s.repo.LockItem(txCtx, candidate.ItemName); err != nil {
			return &domain.PersistenceError{Op: "lock item", Err: err}
		}

		existing, err := s.repo.FindReservationsByItem(txCtx, candidate.ItemName)
		if err != nil {
			return &domain.PersistenceError{Op: "find reservations", Err: err}
		}

		requested := NewInterval(candidate.StartDate, candidate.EndDate)
		if day, clash := FirstConflict(existing, requested); clash {
			return &domain.ConflictError{ItemName: candidate.ItemName, Date: day}
		}

		if err := s.repo.CreateReservation(txCtx, candidate); err != nil {
			return &domain.PersistenceError{Op: "create reservation", Err: err}
		}
		return nil
	})
	if err != nil {
		s.logOutcome(candidate, owner, err)
		if errors.Is(err, domain.ErrConflict) {
			metrics.IncReservation(metrics.OutcomeConflict)
			return nil, err
		}
		metrics.IncReservation(metrics.OutcomeError)
		if !domain.IsPersistence(err) {
			err = &domain.PersistenceError{Op: "reserve", Err: err}
		}
		return nil, err
	}

	metrics.IncReservation(metrics.OutcomeAccepted)
	s.logger.Info().
		Int64("reservation_id", candidate.ID).
		Str("item", candidate.ItemName).
		Str("start", candidate.StartDate.Format(models.DateLayout)).
		Str("end", candidate.EndDate.Format(models.DateLayout)).
		Int64("user_id", owner.ID).
		Msg("reservation accepted")

	s.publishEvent(candidate, owner)
	s.enqueueSync(ctx, candidate)
	return candidate, nil
}

func (s *ReservationService) validate(owner *models.User, itemName, startStr, endStr string) (*models.Reservation, error) {
	if owner == nil || owner.ID == 0 {
		return nil, domain.ErrUnauthenticated
	}
	if strings.TrimSpace(itemName) == "" {
		return nil, domain.NewValidationError("item_name", "required")
	}
	start, err := ParseDay("start_date", startStr)
	if err != nil {
		return nil, err
	}
	end, err := ParseDay("end_date", endStr)
	if err != nil {
		return nil, err
	}
	if end.Before(start) {
		return nil, domain.NewValidationError("end_date", "must not be before start_date")
	}
	return &models.Reservation{
		ItemName:  itemName,
		StartDate: start,
		EndDate:   end,
		Status:    models.StatusReserved,
		UserID:    owner.ID,
	}, nil
}

// lockItem takes the shared item lock. A nil guard leaves exclusion to the store.
func (s *ReservationService) lockItem(ctx context.Context, itemName string) (func(), error) {
	if s.guard == nil {
		return func() {}, nil
	}

	lockCtx, cancel := context.WithTimeout(ctx, s.lockTTL)
	defer cancel()

	started := time.Now()
	key := lockKeyPrefix + itemName
	token, err := s.guard.Acquire(lockCtx, key, s.lockTTL)
	metrics.ObserveLockWait(time.Since(started))
	if err != nil {
		return nil, err
	}

	return func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		defer cancel()
		if err := s.guard.Release(releaseCtx, key, token); err != nil {
			s.logger.Warn().Err(err).Str("item", itemName).Msg("release item lock")
		}
	}, nil
}

func (s *ReservationService) logOutcome(r *models.Reservation, owner *models.User, err error) {
	event := s.logger.Warn()
	if !errors.Is(err, domain.ErrConflict) {
		event = s.logger.Error()
	}
	event.Err(err).
		Str("item", r.ItemName).
		Str("start", r.StartDate.Format(models.DateLayout)).
		Str("end", r.EndDate.Format(models.DateLayout)).
		Int64("user_id", owner.ID).
		Msg("reservation rejected")
}

// ListReservations returns the item's reservations ordered by start date.
func (s *ReservationService) ListReservations(ctx context.Context, itemName string) ([]*models.Reservation, error) {
	if strings.TrimSpace(itemName) == "" {
		return nil, domain.NewValidationError("item_name", "required")
	}
	list, err := s.repo.FindReservationsByItem(ctx, itemName)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "find reservations", Err: err}
	}
	return list, nil
}

// OccupiedPeriods returns the item's reserved days as merged intervals, ascending.
func (s *ReservationService) OccupiedPeriods(ctx context.Context, itemName string) ([]Interval, error) {
	list, err := s.ListReservations(ctx, itemName)
	if err != nil {
		return nil, err
	}
	return OccupiedPeriods(list), nil
}

func (s *ReservationService) UserReservations(ctx context.Context, userID int64) ([]*models.Reservation, error) {
	list, err := s.repo.GetUserReservations(ctx, userID)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "user reservations", Err: err}
	}
	return list, nil
}

// ReservationsBetween returns reservations overlapping [start, end].
func (s *ReservationService) ReservationsBetween(ctx context.Context, start, end time.Time) ([]*models.Reservation, error) {
	if end.Before(start) {
		return nil, domain.NewValidationError("end_date", "must not be before start_date")
	}
	list, err := s.repo.GetReservationsByDateRange(ctx, start, end)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "reservations by range", Err: err}
	}
	return list, nil
}

func (s *ReservationService) publishEvent(r *models.Reservation, owner *models.User) {
	if s.eventBus == nil {
		return
	}
	payload := events.ReservationEventPayload{
		ReservationID: r.ID,
		ItemName:      r.ItemName,
		StartDate:     r.StartDate.Format(models.DateLayout),
		EndDate:       r.EndDate.Format(models.DateLayout),
		UserID:        owner.ID,
		UserName:      owner.Name,
	}
	if err := s.eventBus.PublishJSON(events.EventReservationCreated, payload); err != nil {
		s.logger.Error().Err(err).Int64("reservation_id", r.ID).Msg("publish event error")
	}
}

func (s *ReservationService) enqueueSync(ctx context.Context, r *models.Reservation) {
	if s.sheetsWorker == nil {
		return
	}
	if err := s.sheetsWorker.EnqueueTask(ctx, worker.TaskUpsert, r); err != nil {
		s.logger.Error().Err(err).Int64("reservation_id", r.ID).Msg("sheets enqueue error")
	}
}
