package api

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"yoyaku/internal/domain"
	"yoyaku/internal/export"
	"yoyaku/internal/models"
	"yoyaku/internal/service"
)

const (
	defaultExportDays = 30
	xlsxContentType   = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			s.log.Warn().Err(err).Msg("readiness check failed")
			writeError(w, http.StatusServiceUnavailable, codeUnavailable, "not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *HTTPServer) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user, err := s.svc.Users.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"user": user})
}

func (s *HTTPServer) handleUnregister(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Users.Unregister(r.Context(), userFromContext(r.Context())); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	_ = s.sessions.Logout(w, r)
	w.WriteHeader(http.StatusNoContent)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user, err := s.svc.Users.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.startSession(w, r, user)
}

type adminLoginRequest struct {
	Password string `json:"password"`
}

func (s *HTTPServer) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	var req adminLoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user, err := s.svc.Users.AuthenticateAdmin(r.Context(), req.Password)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.startSession(w, r, user)
}

func (s *HTTPServer) startSession(w http.ResponseWriter, r *http.Request, user *models.User) {
	if err := s.sessions.Login(w, r, user); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

func (s *HTTPServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Logout(w, r); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type postRequest struct {
	Content string `json:"content"`
	ReplyTo *int64 `json:"reply_to,omitempty"`
}

func (s *HTTPServer) handleListMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := s.svc.Messages.ListMessages(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": nonNil(messages)})
}

func (s *HTTPServer) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	var req postRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	msg, err := s.svc.Messages.PostMessage(r.Context(), userFromContext(r.Context()), req.Content, req.ReplyTo)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"message": msg})
}

func (s *HTTPServer) handleListNotices(w http.ResponseWriter, r *http.Request) {
	notices, err := s.svc.Notices.ListNotices(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notices": nonNil(notices)})
}

func (s *HTTPServer) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	var req postRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	result, err := s.svc.Notices.Broadcast(r.Context(), userFromContext(r.Context()), req.Content)
	if err != nil && !errors.Is(err, domain.ErrNoRecipients) {
		s.writeServiceError(w, r, err)
		return
	}
	status := http.StatusOK
	if result.Outcome == service.OutcomeSent || result.Outcome == service.OutcomeMailDisabled {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]any{"outcome": result.Outcome, "result": result})
}

func (s *HTTPServer) handleItems(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"items": s.svc.Items.Items()})
}

// resolveItem maps a path slug to the item name used for reservations.
// Without a catalog the slug is the name.
func (s *HTTPServer) resolveItem(slug string) (string, error) {
	if s.svc.Items.Empty() {
		return slug, nil
	}
	item, err := s.svc.Items.GetItemBySlug(slug)
	if err != nil {
		return "", err
	}
	return item.Name, nil
}

func (s *HTTPServer) handleListReservations(w http.ResponseWriter, r *http.Request) {
	itemName, err := s.resolveItem(r.PathValue("slug"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	list, err := s.svc.Reservations.ListReservations(r.Context(), itemName)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	periods, err := s.svc.Reservations.OccupiedPeriods(r.Context(), itemName)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	occupied := make([]map[string]string, 0, len(periods))
	for _, p := range periods {
		occupied = append(occupied, map[string]string{
			"start_date": p.Start.Format(models.DateLayout),
			"end_date":   p.End.Format(models.DateLayout),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"item_name":    itemName,
		"reservations": views(list),
		"occupied":     occupied,
	})
}

type reserveRequest struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

func (s *HTTPServer) handleReserve(w http.ResponseWriter, r *http.Request) {
	itemName, err := s.resolveItem(r.PathValue("slug"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	var req reserveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	reservation, err := s.svc.Reservations.Reserve(r.Context(), userFromContext(r.Context()), itemName, req.StartDate, req.EndDate)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"reservation": reservation.View()})
}

func (s *HTTPServer) handleMyReservations(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.Reservations.UserReservations(r.Context(), userFromContext(r.Context()).ID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reservations": views(list)})
}

// handleExport serves an XLSX of reservations between start and end
// (default: today plus thirty days).
func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	start := time.Now().UTC().Truncate(24 * time.Hour)
	if raw := r.URL.Query().Get("start"); raw != "" {
		d, err := service.ParseDay("start", raw)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		start = d
	}
	end := start.AddDate(0, 0, defaultExportDays)
	if raw := r.URL.Query().Get("end"); raw != "" {
		d, err := service.ParseDay("end", raw)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		end = d
	}
	if !end.Before(start) && models.DaysInclusive(start, end) > export.MaxDays {
		s.writeServiceError(w, r, domain.NewValidationError("end", fmt.Sprintf("export covers at most %d days", export.MaxDays)))
		return
	}
	list, err := s.svc.Reservations.ReservationsBetween(r.Context(), start, end)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	owners, err := s.svc.Users.OwnerNames(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	report := export.Report{
		Start:        start,
		End:          end,
		Items:        s.svc.Items.Items(),
		Reservations: list,
		Owners:       owners,
	}
	var buf bytes.Buffer
	if err := s.svc.Exporter.Write(&buf, report); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName(report)))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func views(list []*models.Reservation) []models.ReservationView {
	out := make([]models.ReservationView, 0, len(list))
	for _, r := range list {
		out = append(out, r.View())
	}
	return out
}

func nonNil[T any](list []T) []T {
	if list == nil {
		return []T{}
	}
	return list
}
