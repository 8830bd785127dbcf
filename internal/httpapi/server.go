// Package httpapi exposes the catalog over a small JSON HTTP API.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	goerrors "github.com/goliatone/go-errors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/goliatone/go-bgg-cache/catalog"
	"github.com/goliatone/go-bgg-cache/refresh"
	"github.com/goliatone/go-bgg-cache/thing"
)

// TextCodeInvalidBody marks a request body that is not valid JSON.
const TextCodeInvalidBody = "INVALID_BODY"

// maxBodyBytes bounds POST bodies.
const maxBodyBytes = 1 << 20

var errorMappers = []goerrors.ErrorMapper{goerrors.MapHTTPErrors}

// Reserved query parameters; everything else is passed on as a filter.
const (
	paramIDs  = "ids"
	paramSort = "sort"
	paramDir  = "dir"
)

// Catalog is the read and refresh surface served over HTTP.
type Catalog interface {
	RefreshAndRead(ctx context.Context, ids []string, filters map[string]any, sortField, sortDirection string) (catalog.Result, error)
	Get(ctx context.Context, id string) (*thing.Thing, error)
	Collection(ctx context.Context, username string, filters map[string]any, sortField, sortDirection string) (catalog.Result, error)
	Refresh(ctx context.Context, ids []string, force bool) (refresh.Report, error)
}

// ThingsResponse is the body of every list endpoint.
type ThingsResponse struct {
	Things  []*thing.Thing `json:"things"`
	Partial bool           `json:"partial"`
	Count   int            `json:"count"`
}

// RefreshRequest is the body of POST /api/things/refresh.
type RefreshRequest struct {
	IDs   []string `json:"ids"`
	Force bool     `json:"force"`
}

// RefreshResponse summarizes a refresh run.
type RefreshResponse struct {
	Refreshed []string `json:"refreshed"`
	FailedIDs []string `json:"failed_ids"`
	Rejected  int      `json:"rejected"`
	Batches   int      `json:"batches"`
	Partial   bool     `json:"partial"`
}

// Server holds the HTTP handlers.
type Server struct {
	catalog Catalog
	logger  *slog.Logger
}

// New creates a Server.
func New(c Catalog, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{catalog: c, logger: logger}
}

// Routes builds the router.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/things", s.handleThings)
		r.Post("/things/refresh", s.handleRefresh)
		r.Get("/things/{id}", s.handleThing)
		r.Get("/collections/{username}", s.handleCollection)
	})
	return r
}

// Handler returns the router wrapped in otelhttp instrumentation.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.Routes(), "bggcache.http")
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func ListenAndServe(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info("http server shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleThings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	result, err := s.catalog.RefreshAndRead(r.Context(), splitIDs(q[paramIDs]), filtersFrom(q), q.Get(paramSort), q.Get(paramDir))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, thingsResponse(result))
}

func (s *Server) handleThing(w http.ResponseWriter, r *http.Request) {
	t, err := s.catalog.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleCollection(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	result, err := s.catalog.Collection(r.Context(), chi.URLParam(r, "username"), filtersFrom(q), q.Get(paramSort), q.Get(paramDir))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, thingsResponse(result))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		s.writeError(w, r, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid request body").
			WithTextCode(TextCodeInvalidBody))
		return
	}

	ids := splitIDs(req.IDs)
	if len(ids) == 0 {
		s.writeError(w, r, goerrors.NewValidation("invalid refresh request",
			goerrors.FieldError{Field: "ids", Message: "cannot be empty"},
		))
		return
	}

	report, err := s.catalog.Refresh(r.Context(), ids, req.Force)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	failed := report.FailedIDs()
	if failed == nil {
		failed = []string{}
	}
	writeJSON(w, http.StatusOK, RefreshResponse{
		Refreshed: report.RefreshedIDs(),
		FailedIDs: failed,
		Rejected:  report.RejectedRecords,
		Batches:   report.Batches,
		Partial:   report.Partial(),
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	mapped := goerrors.MapToError(err, errorMappers)
	status := StatusFor(mapped)

	out := mapped.Clone()
	out.Location = nil
	out.RequestID = middleware.GetReqID(r.Context())
	if status == http.StatusInternalServerError {
		out.Source = nil
		out.Metadata = nil
		out.Message = "internal error"
	}

	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	s.logger.Log(r.Context(), level, "request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"status", status,
		"error", err,
	)

	writeJSON(w, status, out.ToErrorResponse(false, nil))
}

// StatusFor maps an error category to an HTTP status.
func StatusFor(err *goerrors.Error) int {
	if err == nil {
		return http.StatusOK
	}
	switch err.Category {
	case goerrors.CategoryValidation, goerrors.CategoryBadInput:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func thingsResponse(result catalog.Result) ThingsResponse {
	things := result.Things
	if things == nil {
		things = []*thing.Thing{}
	}
	return ThingsResponse{Things: things, Partial: result.Partial, Count: len(things)}
}

// splitIDs accepts repeated values and comma separated lists.
func splitIDs(values []string) []string {
	var ids []string
	for _, v := range values {
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

// filtersFrom turns the non reserved query parameters into a filter map.
// Repeated mechanics values are kept as a list.
func filtersFrom(q map[string][]string) map[string]any {
	filters := make(map[string]any, len(q))
	for key, values := range q {
		if len(values) == 0 {
			continue
		}
		switch key {
		case paramIDs, paramSort, paramDir:
			continue
		case "mechanics":
			filters[key] = splitIDs(values)
		default:
			filters[key] = values[0]
		}
	}
	return filters
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
