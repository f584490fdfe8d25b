package service

import (
	"testing"

	"yoyaku/internal/domain"
	"yoyaku/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestItemService(t *testing.T) {
	items := []models.Item{
		{Slug: "s2_speaker", Name: "スピーカー", SortOrder: 2},
		{Slug: "s1_video_camera", Name: "ビデオカメラ", SortOrder: 1},
	}
	svc := NewItemService(items, testLogger())

	list := svc.Items()
	require.Len(t, list, 2)
	assert.Equal(t, "s1_video_camera", list[0].Slug)

	item, err := svc.GetItemBySlug("s2_speaker")
	require.NoError(t, err)
	assert.Equal(t, "スピーカー", item.Name)

	_, err = svc.GetItemBySlug("s99_unknown")
	assert.ErrorIs(t, err, domain.ErrItemNotFound)

	item, err = svc.GetItemByName("ビデオカメラ")
	require.NoError(t, err)
	assert.Equal(t, "s1_video_camera", item.Slug)

	assert.False(t, svc.Empty())
	svc.Replace(nil)
	assert.True(t, svc.Empty())

	// callers cannot mutate the catalog through the returned slice
	svc.Replace(items)
	got := svc.Items()
	got[0].Name = "changed"
	assert.Equal(t, "ビデオカメラ", svc.Items()[0].Name)
}
