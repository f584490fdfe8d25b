package export

import (
	"bytes"
	"io"
	"testing"
	"time"

	"yoyaku/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func sampleReport() Report {
	return Report{
		Start: date(2024, 1, 9),
		End:   date(2024, 1, 14),
		Items: []models.Item{
			{Slug: "s1_video_camera", Name: "ビデオカメラ", SortOrder: 1},
			{Slug: "s2_speaker", Name: "スピーカー", SortOrder: 2},
		},
		Reservations: []*models.Reservation{
			{ID: 1, ItemName: "ビデオカメラ", StartDate: date(2024, 1, 10), EndDate: date(2024, 1, 12), Status: models.StatusReserved, UserID: 7},
			{ID: 2, ItemName: "スピーカー", StartDate: date(2024, 1, 14), EndDate: date(2024, 1, 16), Status: models.StatusReserved, UserID: 8},
		},
		Owners: map[int64]string{7: "taro"},
	}
}

func TestBuild_Calendar(t *testing.T) {
	f, err := Build(sampleReport())
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{calendarSheet, listSheet}, f.GetSheetList())

	header, err := f.GetCellValue(calendarSheet, "B2")
	require.NoError(t, err)
	assert.Equal(t, "01/09", header)

	row, err := f.GetCellValue(calendarSheet, "A3")
	require.NoError(t, err)
	assert.Equal(t, "ビデオカメラ", row)

	// 2024-01-10 is column C, 2024-01-12 column E
	for _, cell := range []string{"C3", "D3", "E3"} {
		v, err := f.GetCellValue(calendarSheet, cell)
		require.NoError(t, err)
		assert.Equal(t, "taro", v, cell)
	}
	free, err := f.GetCellValue(calendarSheet, "F3")
	require.NoError(t, err)
	assert.Empty(t, free)

	// reservation running past the range is clipped; unknown owner falls back to id
	v, err := f.GetCellValue(calendarSheet, "G4")
	require.NoError(t, err)
	assert.Equal(t, "#8", v)
}

func TestBuild_List(t *testing.T) {
	f, err := Build(sampleReport())
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(listSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"1", "ビデオカメラ", "2024-01-10", "2024-01-12", "3", "reserved", "taro"}, rows[1])
}

func TestBuild_InvalidRange(t *testing.T) {
	r := sampleReport()
	r.End = r.Start.AddDate(0, 0, -1)
	_, err := Build(r)
	assert.Error(t, err)
}

func TestBuild_RangeTooWide(t *testing.T) {
	r := sampleReport()
	r.End = r.Start.AddDate(0, 0, MaxDays)
	_, err := Build(r)
	assert.Error(t, err)

	r.End = r.Start.AddDate(0, 0, MaxDays-1)
	f, err := Build(r)
	require.NoError(t, err)
	f.Close()
}

func TestBuild_ClampsLongReservation(t *testing.T) {
	r := sampleReport()
	r.Reservations = append(r.Reservations, &models.Reservation{
		ID: 99, ItemName: r.Items[0].Name, UserID: 1, Status: models.StatusReserved,
		StartDate: time.Date(1, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC),
	})

	started := time.Now()
	f, err := Build(r)
	require.NoError(t, err)
	defer f.Close()
	assert.Less(t, time.Since(started), 2*time.Second)

	v, err := f.GetCellValue(calendarSheet, "B3")
	require.NoError(t, err)
	assert.NotEmpty(t, v)
}

func TestExporter_Write(t *testing.T) {
	logger := zerolog.New(io.Discard)
	e := NewExporter(&logger)

	var buf bytes.Buffer
	require.NoError(t, e.Write(&buf, sampleReport()))
	assert.Equal(t, "reservations_2024-01-09_to_2024-01-14.xlsx", FileName(sampleReport()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	assert.Contains(t, f.GetSheetList(), calendarSheet)
	assert.Contains(t, f.GetSheetList(), listSheet)
}
