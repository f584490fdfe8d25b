package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"yoyaku/internal/config"
	"yoyaku/internal/export"
	"yoyaku/internal/metrics"
	"yoyaku/internal/service"

	"github.com/google/uuid"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

const (
	requestIDHeader = "X-Request-ID"
	maxBodyBytes    = 1 << 20
)

// Services bundles what the transports call into.
type Services struct {
	Users        *service.UserService
	Reservations *service.ReservationService
	Items        *service.ItemService
	Messages     *service.MessageService
	Notices      *service.NoticeService
	Exporter     *export.Exporter
}

// ReadinessFunc reports whether backing stores are reachable.
type ReadinessFunc func(ctx context.Context) error

// HTTPServer exposes the JSON API.
type HTTPServer struct {
	cfg      config.APIConfig
	svc      Services
	sessions *SessionManager
	ready    ReadinessFunc
	limiter  *rateLimiter
	server   *http.Server
	log      zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, svc Services, sessions *SessionManager, ready ReadinessFunc, logger *zerolog.Logger) *HTTPServer {
	srv := &HTTPServer{
		cfg:      cfg,
		svc:      svc,
		sessions: sessions,
		ready:    ready,
		limiter:  newRateLimiter(cfg.RateLimit),
		log:      logger.With().Str("component", "http").Logger(),
	}

	mux := http.NewServeMux()
	srv.routes(mux)

	handler := srv.rateLimitMiddleware(mux)
	handler = srv.loggingMiddleware(handler)
	handler = cors.New(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowedHeaders:   []string{"Content-Type", requestIDHeader},
		AllowCredentials: true,
	}).Handler(handler)

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}
	return srv
}

func (s *HTTPServer) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("POST /api/v1/users", s.handleRegister)
	mux.HandleFunc("DELETE /api/v1/users/me", s.requireUser(s.handleUnregister))
	mux.HandleFunc("POST /api/v1/login", s.handleLogin)
	mux.HandleFunc("POST /api/v1/logout", s.handleLogout)
	mux.HandleFunc("POST /api/v1/admin/login", s.handleAdminLogin)

	mux.HandleFunc("GET /api/v1/messages", s.handleListMessages)
	mux.HandleFunc("POST /api/v1/messages", s.requireUser(s.handlePostMessage))

	mux.HandleFunc("GET /api/v1/admin/notices", s.requireAdmin(s.handleListNotices))
	mux.HandleFunc("POST /api/v1/admin/notices", s.requireAdmin(s.handleBroadcast))

	mux.HandleFunc("GET /api/v1/items", s.handleItems)
	mux.HandleFunc("GET /api/v1/items/{slug}/reservations", s.handleListReservations)
	mux.HandleFunc("POST /api/v1/items/{slug}/reservations", s.requireUser(s.handleReserve))
	mux.HandleFunc("GET /api/v1/me/reservations", s.requireUser(s.handleMyReservations))

	mux.HandleFunc("GET /api/v1/admin/reservations/export", s.requireAdmin(s.handleExport))
}

// Handler returns the fully wrapped handler.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) requireUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := s.sessions.CurrentUser(r)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		next(w, r.WithContext(withUser(r.Context(), user)))
	}
}

func (s *HTTPServer) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return s.requireUser(func(w http.ResponseWriter, r *http.Request) {
		if !s.svc.Users.IsAdmin(userFromContext(r.Context())) {
			writeError(w, http.StatusForbidden, codeForbidden, "admin only")
			return
		}
		next(w, r)
	})
}

func (s *HTTPServer) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.allow(clientIP(r)) {
			writeError(w, http.StatusTooManyRequests, codeRateLimited, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)

		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		metrics.IncHTTP(route, strconv.Itoa(recorder.status))

		s.log.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func (s *HTTPServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	m := mapError(err)
	if m.status == http.StatusInternalServerError {
		s.log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	writeError(w, m.status, m.code, m.message)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidJSON, "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message, "code": code})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return "unknown"
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
