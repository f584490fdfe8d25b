package database

import (
	"context"
	"testing"
	"time"

	"yoyaku/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDay(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse(models.DateLayout, s)
	require.NoError(t, err)
	return d
}

func newReservation(t *testing.T, item, start, end string, userID int64) *models.Reservation {
	t.Helper()
	return &models.Reservation{
		ItemName:  item,
		StartDate: mustDay(t, start),
		EndDate:   mustDay(t, end),
		Status:    models.StatusReserved,
		UserID:    userID,
	}
}

func TestReservations(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	taro := createTestUser(t, db, "taro")
	hanako := createTestUser(t, db, "hanako")

	seed := []*models.Reservation{
		newReservation(t, "Camera", "2024-01-20", "2024-01-22", taro.ID),
		newReservation(t, "Camera", "2024-01-10", "2024-01-12", hanako.ID),
		newReservation(t, "camera", "2024-01-10", "2024-01-12", taro.ID),
		newReservation(t, "Speaker", "2024-03-01", "2024-03-05", taro.ID),
	}
	for _, r := range seed {
		require.NoError(t, db.CreateReservation(ctx, r))
		assert.NotZero(t, r.ID)
		assert.False(t, r.CreatedAt.IsZero())
	}

	t.Run("FindByItemIsExactAndSorted", func(t *testing.T) {
		got, err := db.FindReservationsByItem(ctx, "Camera")
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "2024-01-10", got[0].StartDate.Format(models.DateLayout))
		assert.Equal(t, "2024-01-22", got[1].EndDate.Format(models.DateLayout))
		assert.Equal(t, models.StatusReserved, got[0].Status)
	})

	t.Run("FindUnknownItem", func(t *testing.T) {
		got, err := db.FindReservationsByItem(ctx, "Refrigerator")
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("UserReservations", func(t *testing.T) {
		got, err := db.GetUserReservations(ctx, taro.ID)
		require.NoError(t, err)
		assert.Len(t, got, 3)
		for _, r := range got {
			assert.Equal(t, taro.ID, r.UserID)
		}
	})

	t.Run("DateRange", func(t *testing.T) {
		got, err := db.GetReservationsByDateRange(ctx, mustDay(t, "2024-01-12"), mustDay(t, "2024-01-20"))
		require.NoError(t, err)
		assert.Len(t, got, 3)

		got, err = db.GetReservationsByDateRange(ctx, mustDay(t, "2024-02-01"), mustDay(t, "2024-02-28"))
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("EndBeforeStartRejectedByStore", func(t *testing.T) {
		err := db.CreateReservation(ctx, newReservation(t, "TV", "2024-01-12", "2024-01-10", taro.ID))
		assert.Error(t, err)
	})

	t.Run("LockItemRequiresTx", func(t *testing.T) {
		assert.Error(t, db.LockItem(ctx, "Camera"))
		assert.NoError(t, db.WithTx(ctx, func(txCtx context.Context) error {
			return db.LockItem(txCtx, "Camera")
		}))
	})
}
