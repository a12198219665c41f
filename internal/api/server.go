// Package api exposes ingest, search and ask over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/time/rate"

	"github.com/yangwenmai/vidlens/internal/ingest"
	"github.com/yangwenmai/vidlens/internal/logger"
	"github.com/yangwenmai/vidlens/internal/model"
	"github.com/yangwenmai/vidlens/internal/store"
)

// maxRequestBody is the maximum allowed request body size (1 MB).
const maxRequestBody int64 = 1 << 20

// Store is the read and delete side of the video store.
type Store interface {
	store.VideoReader
	store.ArtifactReader
	DeleteVideo(ctx context.Context, id string) error
}

// Ingester ingests a file or directory.
type Ingester interface {
	IngestPath(ctx context.Context, path string, opts ingest.Options) ([]*ingest.Result, error)
}

// Searcher runs hybrid search.
type Searcher interface {
	Search(ctx context.Context, query string, limit int, videoID string) (*model.SearchResponse, error)
}

// Asker answers questions from retrieved context.
type Asker interface {
	Ask(ctx context.Context, question string, topK int, videoID string) (*model.AskResponse, error)
}

// Options configures the server.
type Options struct {
	CORSOrigin string
	// RateLimit is the number of requests per second accepted. 0 disables limiting.
	RateLimit int
	// IngestDefaults are applied before request overrides.
	IngestDefaults ingest.Options
}

// Server holds the HTTP handlers and dependencies.
type Server struct {
	store    Store
	ingester Ingester
	searcher Searcher
	asker    Asker
	opts     Options
	log      *logger.Logger
	validate *validator.Validate
	limiter  *rate.Limiter
	mux      *http.ServeMux
}

// New creates a new API server.
func New(s Store, ing Ingester, srch Searcher, ask Asker, opts Options, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	if opts.CORSOrigin == "" {
		opts.CORSOrigin = "*"
	}
	srv := &Server{
		store:    s,
		ingester: ing,
		searcher: srch,
		asker:    ask,
		opts:     opts,
		log:      log,
		validate: newValidator(),
		mux:      http.NewServeMux(),
	}
	if opts.RateLimit > 0 {
		srv.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), opts.RateLimit*2)
	}
	srv.routes()
	return srv
}

// Handler returns the root http.Handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.logRequests(corsMiddleware(s.opts.CORSOrigin, s.rateLimit(limitBody(jsonContent(s.mux)))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("POST /api/ingest", s.handleIngest)
	s.mux.HandleFunc("GET /api/search", s.handleSearch)
	s.mux.HandleFunc("POST /api/ask", s.handleAsk)
	s.mux.HandleFunc("GET /api/videos", s.handleListVideos)
	s.mux.HandleFunc("GET /api/videos/{id}", s.handleGetVideo)
	s.mux.HandleFunc("GET /api/videos/{id}/artifacts", s.handleListArtifacts)
	s.mux.HandleFunc("DELETE /api/videos/{id}", s.handleDeleteVideo)
}

// ---------------------------------------------------------------------------
// Middleware
// ---------------------------------------------------------------------------

func corsMiddleware(origin string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			w.Header().Set("Content-Type", "application/json")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// limitBody restricts the request body to maxRequestBody bytes.
func limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
		next.ServeHTTP(w, r)
	})
}

func jsonContent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Debug("http request", "method", r.Method, "path", r.URL.Path,
			"status", rec.status, "elapsed_ms", time.Since(start).Milliseconds())
	})
}

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validationMessage turns the first field error into a short client message.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "gt":
		return fe.Field() + " must be greater than " + fe.Param()
	case "min", "gte":
		return fe.Field() + " must be at least " + fe.Param()
	case "max", "lte":
		return fe.Field() + " must be at most " + fe.Param()
	case "oneof":
		return fe.Field() + " must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	default:
		return fe.Field() + " is invalid"
	}
}

// ---------------------------------------------------------------------------
// Response helpers
// ---------------------------------------------------------------------------

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
