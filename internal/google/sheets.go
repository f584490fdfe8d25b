package google

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"

	"yoyaku/internal/models"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const (
	reservationsSheet = "Reservations"
	lastColumn        = "G"
)

var reservationHeader = []interface{}{"ID", "Item", "Start", "End", "Status", "User ID", "Created At"}

// SheetsService mirrors reservations into a spreadsheet, one row per reservation.
type SheetsService struct {
	service       *sheets.Service
	spreadsheetID string
	rowCache      map[int64]int
	cacheMu       sync.RWMutex
}

// NewSheetsService authenticates with a service account key file.
func NewSheetsService(ctx context.Context, credentialsFile, spreadsheetID string) (*SheetsService, error) {
	credentialsJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	config, err := google.JWTConfigFromJSON(credentialsJSON, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(config.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Sheets service: %w", err)
	}

	return newSheetsService(srv, spreadsheetID), nil
}

func newSheetsService(srv *sheets.Service, spreadsheetID string) *SheetsService {
	return &SheetsService{
		service:       srv,
		spreadsheetID: spreadsheetID,
		rowCache:      make(map[int64]int),
	}
}

func (s *SheetsService) TestConnection(ctx context.Context) error {
	_, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, reservationsSheet+"!A1").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	return nil
}

// WarmUpCache maps reservation ids to sheet rows from column A.
func (s *SheetsService) WarmUpCache(ctx context.Context) error {
	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, reservationsSheet+"!A:A").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read id column: %w", err)
	}

	cache := make(map[int64]int, len(resp.Values))
	for i, row := range resp.Values {
		if len(row) == 0 {
			continue
		}
		if id := cellID(row[0]); id > 0 {
			cache[id] = i + 1
		}
	}

	s.cacheMu.Lock()
	s.rowCache = cache
	s.cacheMu.Unlock()
	return nil
}

func cellID(v interface{}) int64 {
	switch t := v.(type) {
	case float64:
		return int64(t)
	case string:
		id, _ := strconv.ParseInt(t, 10, 64)
		return id
	}
	return 0
}

func reservationRow(r *models.Reservation) []interface{} {
	return []interface{}{
		r.ID,
		r.ItemName,
		r.StartDate.Format(models.DateLayout),
		r.EndDate.Format(models.DateLayout),
		r.Status,
		r.UserID,
		r.CreatedAt.Format("2006-01-02 15:04:05"),
	}
}

func (s *SheetsService) AppendReservation(ctx context.Context, r *models.Reservation) error {
	valueRange := &sheets.ValueRange{Values: [][]interface{}{reservationRow(r)}}
	_, err := s.service.Spreadsheets.Values.Append(s.spreadsheetID, reservationsSheet+"!A:A", valueRange).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("append reservation %d: %w", r.ID, err)
	}
	return nil
}

// UpsertReservation rewrites the cached row of r, or appends a new one.
func (s *SheetsService) UpsertReservation(ctx context.Context, r *models.Reservation) error {
	if r == nil {
		return fmt.Errorf("reservation is nil")
	}

	s.cacheMu.RLock()
	row, ok := s.rowCache[r.ID]
	s.cacheMu.RUnlock()
	if !ok {
		return s.AppendReservation(ctx, r)
	}

	rangeData := fmt.Sprintf("%s!A%d:%s%d", reservationsSheet, row, lastColumn, row)
	valueRange := &sheets.ValueRange{Values: [][]interface{}{reservationRow(r)}}
	_, err := s.service.Spreadsheets.Values.Update(s.spreadsheetID, rangeData, valueRange).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("update reservation %d: %w", r.ID, err)
	}
	return nil
}

// ReplaceReservations clears the sheet and writes the header plus all rows.
func (s *SheetsService) ReplaceReservations(ctx context.Context, reservations []*models.Reservation) error {
	if _, err := s.service.Spreadsheets.Values.Clear(s.spreadsheetID, reservationsSheet+"!A:"+lastColumn, &sheets.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear sheet: %w", err)
	}

	values := make([][]interface{}, 0, len(reservations)+1)
	values = append(values, reservationHeader)
	cache := make(map[int64]int, len(reservations))
	for i, r := range reservations {
		values = append(values, reservationRow(r))
		cache[r.ID] = i + 2
	}

	rangeData := fmt.Sprintf("%s!A1:%s%d", reservationsSheet, lastColumn, len(values))
	_, err := s.service.Spreadsheets.Values.Update(s.spreadsheetID, rangeData, &sheets.ValueRange{Values: values}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("write sheet: %w", err)
	}

	s.cacheMu.Lock()
	s.rowCache = cache
	s.cacheMu.Unlock()
	return nil
}
