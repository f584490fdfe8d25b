package database

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"yoyaku/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errOverlap = errors.New("overlap")

// checkAndInsert mirrors the reservation checker at store level: read the
// item's reservations and insert only if no day overlaps.
func checkAndInsert(ctx context.Context, db *DB, r *models.Reservation) error {
	return db.WithTx(ctx, func(txCtx context.Context) error {
		if err := db.LockItem(txCtx, r.ItemName); err != nil {
			return err
		}
		existing, err := db.FindReservationsByItem(txCtx, r.ItemName)
		if err != nil {
			return err
		}
		for _, e := range existing {
			if !e.StartDate.After(r.EndDate) && !r.StartDate.After(e.EndDate) {
				return errOverlap
			}
		}
		return db.CreateReservation(txCtx, r)
	})
}

func TestConcurrentReservations(t *testing.T) {
	logger := zerolog.Nop()
	dbPath := filepath.Join(t.TempDir(), "concurrency.db")
	db, err := NewDB(dbPath, &logger)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	owner := createTestUser(t, db, "taro")

	const numGoroutines = 10
	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	candidates := make([]*models.Reservation, numGoroutines)
	for i := range candidates {
		candidates[i] = newReservation(t, "Camera", "2024-01-10", "2024-01-12", owner.ID)
	}

	results := make(chan error, numGoroutines)
	for _, r := range candidates {
		go func(r *models.Reservation) {
			defer wg.Done()
			results <- checkAndInsert(ctx, db, r)
		}(r)
	}

	wg.Wait()
	close(results)

	successCount := 0
	for err := range results {
		if err == nil {
			successCount++
		} else {
			assert.ErrorIs(t, err, errOverlap)
		}
	}

	assert.Equal(t, 1, successCount, "only one overlapping reservation should succeed")

	got, err := db.FindReservationsByItem(ctx, "Camera")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
