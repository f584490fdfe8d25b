package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"yoyaku/internal/metrics"
	"yoyaku/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const TaskUpsert = "upsert"

var ErrQueueFull = errors.New("sync queue is full")

type SheetsClient interface {
	UpsertReservation(ctx context.Context, r *models.Reservation) error
}

// SheetsWorker mirrors accepted reservations to Google Sheets. Tasks go
// through a Redis list when available and an in-memory channel otherwise.
// Failed tasks are retried with backoff and dead-lettered after MaxRetries.
type SheetsWorker struct {
	sheets        SheetsClient
	redis         *redis.Client
	retryPolicy   RetryPolicy
	queue         chan models.SyncTask
	redisQueueKey string
	deadLetterKey string
	pollInterval  time.Duration
	logger        *zerolog.Logger

	deadMu      sync.Mutex
	deadLetters []models.SyncTask
}

func NewSheetsWorker(sheets SheetsClient, redisClient *redis.Client, retry RetryPolicy, logger *zerolog.Logger) *SheetsWorker {
	if retry.MaxRetries == 0 {
		retry.MaxRetries = 5
	}
	if retry.InitialDelay == 0 {
		retry.InitialDelay = 2 * time.Second
	}
	if retry.MaxDelay == 0 {
		retry.MaxDelay = time.Minute
	}
	if retry.BackoffFactor == 0 {
		retry.BackoffFactor = 2
	}

	return &SheetsWorker{
		sheets:        sheets,
		redis:         redisClient,
		retryPolicy:   retry,
		queue:         make(chan models.SyncTask, models.WorkerQueueSize),
		redisQueueKey: "yoyaku:sheets:queue",
		deadLetterKey: "yoyaku:sheets:deadletter",
		pollInterval:  time.Second,
		logger:        logger,
	}
}

func (w *SheetsWorker) EnqueueTask(ctx context.Context, taskType string, r *models.Reservation) error {
	if taskType == "" {
		return errors.New("task type is required")
	}
	if r == nil || r.ID == 0 {
		return errors.New("reservation id is required")
	}

	task := models.SyncTask{
		TaskType:      taskType,
		ReservationID: r.ID,
		Reservation:   r,
		CreatedAt:     time.Now(),
	}
	return w.push(ctx, task)
}

func (w *SheetsWorker) push(ctx context.Context, task models.SyncTask) error {
	if w.redis != nil {
		err := w.pushRedis(ctx, task)
		if err == nil {
			return nil
		}
		w.logger.Warn().Err(err).Msg("redis push failed, using memory queue")
	}

	select {
	case w.queue <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// Start runs until ctx is done.
func (w *SheetsWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("sheets worker started")
	defer w.logger.Info().Msg("sheets worker stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case t := <-w.queue:
			w.processTask(ctx, &t)
			continue
		default:
		}

		if t, ok := w.tryRedis(ctx); ok {
			w.processTask(ctx, &t)
			continue
		}

		select {
		case <-ctx.Done():
			return
		case t := <-w.queue:
			w.processTask(ctx, &t)
		case <-time.After(w.pollInterval):
		}
	}
}

func (w *SheetsWorker) tryRedis(ctx context.Context) (models.SyncTask, bool) {
	if w.redis == nil {
		return models.SyncTask{}, false
	}
	res, err := w.redis.BRPop(ctx, w.pollInterval, w.redisQueueKey).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			w.logger.Error().Err(err).Msg("redis BRPOP error")
		}
		return models.SyncTask{}, false
	}
	if len(res) != 2 {
		return models.SyncTask{}, false
	}
	var task models.SyncTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		w.logger.Error().Err(err).Msg("decode redis task")
		return models.SyncTask{}, false
	}
	return task, true
}

func (w *SheetsWorker) processTask(ctx context.Context, task *models.SyncTask) {
	err := w.handle(ctx, task)
	if err == nil {
		metrics.IncSyncTask("done")
		w.logger.Debug().Int64("reservation_id", task.ReservationID).Msg("reservation synced")
		return
	}
	task.LastError = err.Error()
	if errors.Is(err, errUnrecoverable) {
		w.deadLetter(ctx, task)
		return
	}
	w.retryOrFail(ctx, task)
}

var errUnrecoverable = errors.New("unrecoverable task")

func (w *SheetsWorker) handle(ctx context.Context, task *models.SyncTask) error {
	switch task.TaskType {
	case TaskUpsert:
		if task.Reservation == nil {
			return fmt.Errorf("%w: reservation payload missing", errUnrecoverable)
		}
		return w.sheets.UpsertReservation(ctx, task.Reservation)
	default:
		return fmt.Errorf("%w: unknown task type %s", errUnrecoverable, task.TaskType)
	}
}

func (w *SheetsWorker) retryOrFail(ctx context.Context, task *models.SyncTask) {
	attempt := task.RetryCount + 1
	if w.retryPolicy.Exhausted(attempt) {
		w.deadLetter(ctx, task)
		return
	}

	task.RetryCount = attempt
	delay := w.retryPolicy.NextDelay(attempt)
	metrics.IncSyncTask("retry")
	w.logger.Warn().
		Int64("reservation_id", task.ReservationID).
		Int("attempt", attempt).
		Dur("delay", delay).
		Str("error", task.LastError).
		Msg("sheets sync failed, retrying")

	retry := *task
	time.AfterFunc(delay, func() {
		if err := w.push(context.Background(), retry); err != nil {
			w.logger.Error().Err(err).Int64("reservation_id", retry.ReservationID).Msg("requeue failed")
		}
	})
}

func (w *SheetsWorker) deadLetter(ctx context.Context, task *models.SyncTask) {
	metrics.IncSyncTask("dead")
	w.logger.Error().
		Int64("reservation_id", task.ReservationID).
		Int("retries", task.RetryCount).
		Str("error", task.LastError).
		Msg("sheets sync task dead-lettered")

	if w.redis != nil {
		data, err := json.Marshal(task)
		if err == nil {
			err = w.redis.LPush(ctx, w.deadLetterKey, data).Err()
		}
		if err == nil {
			return
		}
		w.logger.Error().Err(err).Msg("dead-letter push failed")
	}

	w.deadMu.Lock()
	w.deadLetters = append(w.deadLetters, *task)
	w.deadMu.Unlock()
}

// DeadLetters returns tasks dead-lettered in memory.
func (w *SheetsWorker) DeadLetters() []models.SyncTask {
	w.deadMu.Lock()
	defer w.deadMu.Unlock()
	return append([]models.SyncTask(nil), w.deadLetters...)
}

func (w *SheetsWorker) pushRedis(ctx context.Context, task models.SyncTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return w.redis.LPush(ctx, w.redisQueueKey, data).Err()
}
