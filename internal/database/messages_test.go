package database

import (
	"context"
	"testing"
	"time"

	"yoyaku/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessages(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	taro := createTestUser(t, db, "taro")

	base := time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)
	first := &models.Message{UserID: taro.ID, Content: "first", PubDate: base}
	second := &models.Message{UserID: taro.ID, Content: "second", PubDate: base.Add(time.Hour)}
	require.NoError(t, db.CreateMessage(ctx, first))
	require.NoError(t, db.CreateMessage(ctx, second))

	reply := &models.Message{UserID: taro.ID, Content: "reply", ReplyTo: &first.ID, PubDate: base.Add(2 * time.Hour)}
	require.NoError(t, db.CreateMessage(ctx, reply))

	got, err := db.ListMessages(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "second", got[0].Content)
	assert.Equal(t, "first", got[1].Content)
	assert.Equal(t, "taro", got[0].UserName)
	assert.Nil(t, got[0].ReplyTo)
}

func TestNotices(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	admin := createTestUser(t, db, models.DefaultAdminName)

	n := &models.Notice{UserID: admin.ID, Content: "maintenance on friday"}
	require.NoError(t, db.CreateNotice(ctx, n))
	assert.NotZero(t, n.ID)
	assert.False(t, n.PubDate.IsZero())

	got, err := db.ListNotices(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "maintenance on friday", got[0].Content)
	assert.Equal(t, models.DefaultAdminName, got[0].UserName)

	// board and notices are separate tables
	messages, err := db.ListMessages(ctx)
	require.NoError(t, err)
	assert.Empty(t, messages)
}
