package export

import (
	"fmt"
	"io"
	"time"

	"yoyaku/internal/models"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

const (
	calendarSheet = "予約カレンダー"
	listSheet     = "予約一覧"
	defaultSheet  = "Sheet1"

	// MaxDays bounds the calendar width of one export.
	MaxDays = 366
)

// Exporter renders reservations into XLSX workbooks.
type Exporter struct {
	logger *zerolog.Logger
}

func NewExporter(logger *zerolog.Logger) *Exporter {
	return &Exporter{logger: logger}
}

// Report is the input of one export.
type Report struct {
	Start, End   time.Time
	Items        []models.Item
	Reservations []*models.Reservation
	Owners       map[int64]string
}

// FileName names the workbook of report.
func FileName(report Report) string {
	return fmt.Sprintf("reservations_%s_to_%s.xlsx",
		report.Start.Format(models.DateLayout), report.End.Format(models.DateLayout))
}

// Write renders the report workbook into w.
func (e *Exporter) Write(w io.Writer, report Report) error {
	f, err := Build(report)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.Write(w); err != nil {
		return fmt.Errorf("error writing workbook: %w", err)
	}
	e.logger.Info().Str("file_name", FileName(report)).Int("reservations", len(report.Reservations)).Msg("Excel file written")
	return nil
}

// Build lays out a calendar sheet (items by day) and a flat list sheet.
func Build(report Report) (*excelize.File, error) {
	if report.End.Before(report.Start) {
		return nil, fmt.Errorf("export range ends before it starts")
	}
	if days := models.DaysInclusive(report.Start, report.End); days > MaxDays {
		return nil, fmt.Errorf("export range of %d days exceeds %d", days, MaxDays)
	}

	f := excelize.NewFile()
	index, err := f.NewSheet(calendarSheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if _, err := f.NewSheet(listSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("error creating sheet: %w", err)
	}

	if err := writeCalendar(f, report); err != nil {
		f.Close()
		return nil, err
	}
	if err := writeList(f, report); err != nil {
		f.Close()
		return nil, err
	}

	_ = f.DeleteSheet(defaultSheet)
	return f, nil
}

func writeCalendar(f *excelize.File, report Report) error {
	_ = f.SetCellValue(calendarSheet, "A1", fmt.Sprintf("期間: %s - %s",
		report.Start.Format(models.DateLayout), report.End.Format(models.DateLayout)))

	headerStyle, err := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return fmt.Errorf("error creating style: %w", err)
	}
	itemStyle, err := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E2EFDA"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	if err != nil {
		return fmt.Errorf("error creating style: %w", err)
	}
	bookedStyle, err := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#FFC7CE"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "left", Vertical: "top", WrapText: true},
	})
	if err != nil {
		return fmt.Errorf("error creating style: %w", err)
	}

	dateCols := make(map[string]int)
	col := 2
	for d := report.Start; !d.After(report.End); d = d.AddDate(0, 0, 1) {
		cell, _ := excelize.CoordinatesToCellName(col, 2)
		_ = f.SetCellValue(calendarSheet, cell, d.Format("01/02"))
		_ = f.SetCellStyle(calendarSheet, cell, cell, headerStyle)
		dateCols[d.Format(models.DateLayout)] = col
		col++
	}
	lastCol := col - 1

	itemRows := make(map[string]int, len(report.Items))
	for i, item := range report.Items {
		row := i + 3
		cell, _ := excelize.CoordinatesToCellName(1, row)
		_ = f.SetCellValue(calendarSheet, cell, item.Name)
		_ = f.SetCellStyle(calendarSheet, cell, cell, itemStyle)
		itemRows[item.Name] = row
	}

	for _, r := range report.Reservations {
		row, ok := itemRows[r.ItemName]
		if !ok {
			continue
		}
		owner := ownerName(report.Owners, r.UserID)
		first, last := r.StartDate, r.EndDate
		if first.Before(report.Start) {
			first = report.Start
		}
		if last.After(report.End) {
			last = report.End
		}
		for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
			c, ok := dateCols[d.Format(models.DateLayout)]
			if !ok {
				continue
			}
			cell, _ := excelize.CoordinatesToCellName(c, row)
			_ = f.SetCellValue(calendarSheet, cell, owner)
			_ = f.SetCellStyle(calendarSheet, cell, cell, bookedStyle)
		}
	}

	_ = f.SetColWidth(calendarSheet, "A", "A", 25)
	if lastCol >= 2 {
		last, _ := excelize.ColumnNumberToName(lastCol)
		_ = f.SetColWidth(calendarSheet, "B", last, 12)
		_ = f.MergeCell(calendarSheet, "A1", last+"1")
	}
	titleStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err == nil {
		_ = f.SetCellStyle(calendarSheet, "A1", "A1", titleStyle)
	}
	return nil
}

func writeList(f *excelize.File, report Report) error {
	headers := []string{"ID", "備品", "開始日", "終了日", "日数", "状態", "予約者"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(listSheet, cell, h)
	}

	for i, r := range report.Reservations {
		row := i + 2
		values := []interface{}{
			r.ID,
			r.ItemName,
			r.StartDate.Format(models.DateLayout),
			r.EndDate.Format(models.DateLayout),
			r.Days(),
			r.Status,
			ownerName(report.Owners, r.UserID),
		}
		for j, v := range values {
			cell, _ := excelize.CoordinatesToCellName(j+1, row)
			if err := f.SetCellValue(listSheet, cell, v); err != nil {
				return fmt.Errorf("error writing %s: %w", cell, err)
			}
		}
	}

	_ = f.SetColWidth(listSheet, "A", "A", 8)
	_ = f.SetColWidth(listSheet, "B", "B", 20)
	_ = f.SetColWidth(listSheet, "C", "D", 12)
	_ = f.SetColWidth(listSheet, "G", "G", 20)
	return nil
}

func ownerName(owners map[int64]string, id int64) string {
	if name, ok := owners[id]; ok {
		return name
	}
	return fmt.Sprintf("#%d", id)
}
