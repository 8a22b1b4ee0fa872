package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"campusbook/internal/availability"
	"campusbook/internal/config"
	"campusbook/internal/database"
	"campusbook/internal/domain"
	"campusbook/internal/service"

	"github.com/rs/zerolog"
)

// Services bundles the use cases the HTTP layer exposes.
type Services struct {
	Bookings     domain.BookingService
	Availability domain.AvailabilityService
	Waitlist     domain.WaitlistService
	Resources    domain.ResourceService
	Users        domain.UserService
	Reviews      domain.ReviewService
}

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ready(ctx context.Context) error
}

// HTTPServer exposes the campus booking JSON API.
type HTTPServer struct {
	cfg     config.APIConfig
	exports config.ExportConfig
	svc     Services
	ready   Pinger
	server  *http.Server
	auth    *HTTPAuth
	logger  *zerolog.Logger
	now     func() time.Time
}

func NewHTTPServer(cfg config.APIConfig, exports config.ExportConfig, svc Services, ready Pinger, logger *zerolog.Logger) *HTTPServer {
	srv := &HTTPServer{
		cfg:     cfg,
		exports: exports,
		svc:     svc,
		ready:   ready,
		auth:    NewHTTPAuth(cfg),
		logger:  logger,
		now:     time.Now,
	}

	api := http.NewServeMux()
	srv.routes(api)

	root := http.NewServeMux()
	root.HandleFunc("GET /healthz", srv.handleHealth)
	root.HandleFunc("GET /readyz", srv.handleReady)
	root.Handle("/api/", srv.auth.Wrap(api))

	handler := loggingMiddleware(logger, recoverMiddleware(logger, requestIDMiddleware(corsMiddleware(cfg.HTTP.CORSOrigins, root))))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	return srv
}

func (s *HTTPServer) routes(mux *http.ServeMux) {
	actor := func(h http.HandlerFunc) http.HandlerFunc {
		return withActor(s.svc.Users, s.cfg.Auth.HeaderUser, h)
	}
	viewer := func(h http.HandlerFunc) http.HandlerFunc {
		return withOptionalActor(s.svc.Users, s.cfg.Auth.HeaderUser, h)
	}

	mux.HandleFunc("GET /api/v1/resources", s.handleListResources)
	mux.HandleFunc("POST /api/v1/resources", actor(s.handleCreateResource))
	mux.HandleFunc("GET /api/v1/resources/{id}", viewer(s.handleGetResource))
	mux.HandleFunc("POST /api/v1/resources/{id}/status", actor(s.handleSetResourceStatus))
	mux.HandleFunc("GET /api/v1/resources/{id}/slots", viewer(s.handleSlots))
	mux.HandleFunc("GET /api/v1/resources/{id}/days", viewer(s.handleDays))
	mux.HandleFunc("GET /api/v1/resources/{id}/availability", viewer(s.handleAvailability))
	mux.HandleFunc("GET /api/v1/resources/{id}/schedule.xlsx", viewer(s.handleScheduleExport))

	mux.HandleFunc("POST /api/v1/resources/{id}/waitlist", actor(s.handleJoinWaitlist))
	mux.HandleFunc("GET /api/v1/resources/{id}/waitlist", actor(s.handleListWaitlist))
	mux.HandleFunc("GET /api/v1/resources/{id}/waitlist/position", actor(s.handleWaitlistPosition))
	mux.HandleFunc("POST /api/v1/waitlist/{id}/remove", actor(s.handleRemoveWaitlistEntry))
	mux.HandleFunc("DELETE /api/v1/waitlist/{id}", actor(s.handleLeaveWaitlist))

	mux.HandleFunc("POST /api/v1/bookings", actor(s.handleCreateBooking))
	mux.HandleFunc("GET /api/v1/bookings", actor(s.handleListBookings))
	mux.HandleFunc("GET /api/v1/bookings/{id}", actor(s.handleGetBooking))
	mux.HandleFunc("POST /api/v1/bookings/{id}/approve", actor(s.handleApproveBooking))
	mux.HandleFunc("POST /api/v1/bookings/{id}/reject", actor(s.handleRejectBooking))
	mux.HandleFunc("POST /api/v1/bookings/{id}/cancel", actor(s.handleCancelBooking))

	mux.HandleFunc("POST /api/v1/resources/{id}/reviews", actor(s.handleCreateReview))
	mux.HandleFunc("GET /api/v1/resources/{id}/reviews", viewer(s.handleListReviews))

	mux.HandleFunc("GET /api/v1/users/me", actor(s.handleMe))
	mux.HandleFunc("GET /api/v1/users/me/messages", actor(s.handleMessages))
}

// Handler returns the full middleware chain.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready.Ready(r.Context()); err != nil {
			s.logger.Warn().Err(err).Msg("readiness check failed")
			writeError(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

// writeServiceError maps domain errors onto HTTP status codes.
func (s *HTTPServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var conflict *database.DoubleBookingError
	if errors.As(err, &conflict) {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":     err.Error(),
			"conflicts": conflict.Conflicts,
		})
		return
	}

	switch {
	case errors.Is(err, availability.ErrInvalidInterval),
		errors.Is(err, availability.ErrMalformedRules),
		errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, service.ErrPastStart),
		errors.Is(err, service.ErrTooFarAhead):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrForbidden),
		errors.Is(err, service.ErrNoProofOfUse):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, database.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, database.ErrDoubleBooking),
		errors.Is(err, database.ErrAlreadyOnWaitlist),
		errors.Is(err, database.ErrAlreadyReviewed),
		errors.Is(err, database.ErrConcurrentModification),
		errors.Is(err, service.ErrSlotAvailable),
		errors.Is(err, service.ErrInvalidTransition),
		errors.Is(err, service.ErrResourceUnavailable):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, err.Error())
	default:
		s.logger.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
