package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sstent/gearcron/internal/calendar"
	"github.com/sstent/gearcron/internal/gear"
	"github.com/sstent/gearcron/internal/logging"
	"github.com/sstent/gearcron/internal/puntingform"
)

// ServiceName is reported by the health endpoint.
const ServiceName = "pf-gear-changes"

// Collector is the part of gear.Service the API exposes.
type Collector interface {
	FetchGearForDate(ctx context.Context, date string) (*gear.Report, error)
	DebugMeetings(ctx context.Context, date string) (*gear.DebugMeetings, error)
	DebugFormCSV(ctx context.Context, meetingID int) (*puntingform.RawResult, error)
}

var _ Collector = (*gear.Service)(nil)

// Health is the /healthz payload.
type Health struct {
	OK      bool   `json:"ok"`
	Service string `json:"service"`
	NowMel  string `json:"now_mel"`
}

// Server serves gear reports over HTTP.
type Server struct {
	addr      string
	collector Collector
	location  *time.Location
	clock     calendar.Clock
	logger    *slog.Logger

	server *http.Server
}

// New builds a server bound to addr. A nil location means Australia/Melbourne.
func New(addr string, collector Collector, location *time.Location, clock calendar.Clock, logger *slog.Logger) (*Server, error) {
	if collector == nil {
		return nil, errors.New("server: collector is required")
	}
	if location == nil {
		loc, err := calendar.LoadLocation(calendar.DefaultZone)
		if err != nil {
			return nil, err
		}
		location = loc
	}
	if clock == nil {
		clock = calendar.SystemClock{}
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Server{
		addr:      strings.TrimSpace(addr),
		collector: collector,
		location:  location,
		clock:     clock,
		logger:    logger.With(logging.FieldComponent, "api-server"),
	}
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Gear collection walks every race of every meeting.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/gear/daily", s.handleDaily)
	mux.HandleFunc("/gear/today", s.handleToday)
	mux.HandleFunc("/gear/debug/meetings", s.handleDebugMeetings)
	mux.HandleFunc("/gear/debug/formcsv", s.handleDebugFormCSV)
	return mux
}

// Serve listens on the configured address and blocks until ctx is cancelled,
// then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	return s.serve(ctx, listener)
}

func (s *Server) serve(ctx context.Context, listener net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.server.Serve(listener)
	}()
	s.logger.Info("api server listening", slog.String("address", listener.Addr().String()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api shutdown: %w", err)
	}
	s.logger.Info("api server stopped")
	return nil
}

func (s *Server) today() string {
	return calendar.Today(s.clock, s.location)
}

// dateParam returns the date query parameter, or today when it is absent.
func (s *Server) dateParam(r *http.Request) (string, error) {
	date := strings.TrimSpace(r.URL.Query().Get("date"))
	if date == "" {
		return s.today(), nil
	}
	if _, err := calendar.ParseDate(date); err != nil {
		return "", err
	}
	return date, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, Health{
		OK:      true,
		Service: ServiceName,
		NowMel:  s.clock.Now().In(s.location).Format(time.RFC3339Nano),
	})
}

func (s *Server) handleDaily(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
		return
	}
	date, err := s.dateParam(r)
	if err != nil {
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	s.writeReport(w, r, date)
}

func (s *Server) handleToday(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
		return
	}
	s.writeReport(w, r, s.today())
}

func (s *Server) writeReport(w http.ResponseWriter, r *http.Request, date string) {
	report, err := s.collector.FetchGearForDate(r.Context(), date)
	if err != nil {
		s.writeFailure(w, date, err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleDebugMeetings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
		return
	}
	date, err := s.dateParam(r)
	if err != nil {
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	debug, err := s.collector.DebugMeetings(r.Context(), date)
	if err != nil {
		s.writeFailure(w, date, err)
		return
	}
	s.writeJSON(w, http.StatusOK, debug)
}

func (s *Server) handleDebugFormCSV(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
		return
	}
	meetingID, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get("meeting_id")))
	if err != nil {
		s.writeError(w, http.StatusUnprocessableEntity, "meeting_id must be an integer")
		return
	}
	result, err := s.collector.DebugFormCSV(r.Context(), meetingID)
	if err != nil {
		s.writeFailure(w, "", err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

// writeFailure maps collector errors onto status codes.
func (s *Server) writeFailure(w http.ResponseWriter, date string, err error) {
	var statusErr *puntingform.StatusError
	switch {
	case errors.Is(err, calendar.ErrInvalidDate):
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &statusErr):
		s.logger.Warn("pf call failed", slog.String("date", date), slog.String("error", err.Error()))
		s.writeError(w, http.StatusBadGateway, "PF call failed: "+statusErr.Error())
	default:
		s.logger.Error("gear request failed", slog.String("date", date), slog.String("error", err.Error()))
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeError replies with a {"detail": message} body, the shape gear API
// clients already parse.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"detail": message})
}
