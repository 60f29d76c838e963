package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"goregime/adapters/excel"
	"goregime/app"
	"goregime/domain/core"
	"goregime/domain/regime"
	"goregime/domain/timeseries"
	"goregime/internal"
	"goregime/internal/errors"
	"goregime/ports"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
)

// Service is the application surface the HTTP API serves
type Service interface {
	Analyze(ctx context.Context, table *timeseries.Table, country string) (*regime.RegimeAnalysisResult, error)
	Forecast(ctx context.Context, table *timeseries.Table, horizon int) ([]regime.ForecastEntry, error)
	Report(ctx context.Context, table *timeseries.Table, country string, horizon int) (*app.ReportResult, error)
	GetRun(ctx context.Context, id core.RunID) (*ports.RunSummary, error)
	ListRuns(ctx context.Context, filters ports.RunFilters) ([]ports.RunSummary, error)
}

// defaultHorizon is used by report requests that carry no horizon
const defaultHorizon = 6

// Server routes HTTP requests to the regime service
type Server struct {
	router  *chi.Mux
	service Service
	reader  *excel.DataReader
	metrics http.Handler
	timeout time.Duration
	logger  *internal.Logger
}

// ServerOption customizes a Server
type ServerOption func(*Server)

// WithMetricsHandler mounts h at /metrics
func WithMetricsHandler(h http.Handler) ServerOption { return func(s *Server) { s.metrics = h } }

// WithRequestTimeout bounds every request's context
func WithRequestTimeout(d time.Duration) ServerOption { return func(s *Server) { s.timeout = d } }

// NewServer builds the router
func NewServer(service Service, logger *internal.Logger, opts ...ServerOption) *Server {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	s := &Server{
		router:  chi.NewRouter(),
		service: service,
		timeout: 60 * time.Second,
		logger:  logger.With("api"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.reader = excel.NewDataReader("", logger)

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.router.ServeHTTP(w, r) }

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
	if s.timeout > 0 {
		s.router.Use(middleware.Timeout(s.timeout))
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, map[string]string{"status": "ok"})
	})
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics)
	}

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Route("/regimes", func(r chi.Router) {
			r.Post("/analyze", s.handleAnalyze)
			r.Post("/forecast", s.handleForecast)
			r.Post("/report", s.handleReport)
		})
		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{id}", s.handleGetRun)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Zerolog().Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request) (*request, bool) {
	req, err := decodeRequest(r, s.reader)
	if err != nil {
		if core.IsInputError(err) {
			s.fail(w, r, errors.InputError(err))
		} else {
			render.Render(w, r, badRequest(err.Error()))
		}
		return nil, false
	}
	return req, true
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := errorFor(err)
	if apiErr.StatusCode >= http.StatusInternalServerError {
		s.logger.Error("%s %s failed: %v", r.Method, r.URL.Path, err)
	}
	render.Render(w, r, apiErr)
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decode(w, r)
	if !ok {
		return
	}
	result, err := s.service.Analyze(r.Context(), req.Table, req.Country)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	render.JSON(w, r, result)
}

type forecastResponse struct {
	Horizon  int                    `json:"horizon"`
	Forecast []regime.ForecastEntry `json:"forecast"`
}

func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decode(w, r)
	if !ok {
		return
	}
	entries, err := s.service.Forecast(r.Context(), req.Table, req.Horizon)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	render.JSON(w, r, forecastResponse{Horizon: req.Horizon, Forecast: entries})
}

// handleReport returns HTML unless the client asks for JSON
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decode(w, r)
	if !ok {
		return
	}
	if req.Horizon == 0 {
		req.Horizon = defaultHorizon
	}
	rep, err := s.service.Report(r.Context(), req.Table, req.Country, req.Horizon)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if render.GetAcceptedContentType(r) == render.ContentTypeJSON {
		render.JSON(w, r, rep)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(rep.HTML)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := ports.RunFilters{Country: q.Get("country")}
	var err error
	if v := q.Get("limit"); v != "" {
		if filters.Limit, err = strconv.Atoi(v); err != nil || filters.Limit < 0 {
			render.Render(w, r, badRequest("limit must be a non-negative integer"))
			return
		}
	}
	if v := q.Get("offset"); v != "" {
		if filters.Offset, err = strconv.Atoi(v); err != nil || filters.Offset < 0 {
			render.Render(w, r, badRequest("offset must be a non-negative integer"))
			return
		}
	}

	runs, err := s.service.ListRuns(r.Context(), filters)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if runs == nil {
		runs = []ports.RunSummary{}
	}
	render.JSON(w, r, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id, err := core.ParseRunID(chi.URLParam(r, "id"))
	if err != nil {
		render.Render(w, r, badRequest(err.Error()))
		return
	}
	run, err := s.service.GetRun(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	render.JSON(w, r, run)
}
