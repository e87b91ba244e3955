package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/ValentinKolb/dJournal/lib/journal"
	"github.com/ValentinKolb/dJournal/lib/keyspace"
	"github.com/ValentinKolb/dJournal/rpc/transport"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("http")

const maxScriptSize = 16 << 20 // 16 MB

var (
	scriptsTotal  = metrics.NewCounter("djournal_http_scripts_total")
	scriptsFailed = metrics.NewCounter("djournal_http_scripts_failed_total")
	entriesTotal  = metrics.NewCounter("djournal_http_entries_total")
	scriptLatency = metrics.NewSummary("djournal_http_script_duration_seconds")
)

// --------------------------------------------------------------------------
// Backends
// --------------------------------------------------------------------------

// IBackend is where the control surface sends parsed entries and reads keys from.
// *replica.RaftJournal implements it for a raft backed primary.
type IBackend interface {
	Append(ctx context.Context, entries ...journal.Entry) error
	Get(ctx context.Context, db journal.DbIndex, key string) ([]byte, bool, error)
}

// localBackend publishes to the replication stream and reads from the local keyspace
type localBackend struct {
	publisher transport.IPublisher
	state     *keyspace.Keyspace
}

// NewLocalBackend creates a backend for a standalone primary. ks must be the state
// the publisher applies entries to.
func NewLocalBackend(publisher transport.IPublisher, ks *keyspace.Keyspace) IBackend {
	return &localBackend{publisher: publisher, state: ks}
}

func (b *localBackend) Append(_ context.Context, entries ...journal.Entry) error {
	return b.publisher.Publish(entries...)
}

func (b *localBackend) Get(_ context.Context, db journal.DbIndex, key string) ([]byte, bool, error) {
	if int(db) >= b.state.Databases() {
		return nil, false, keyspace.ErrInvalidDb
	}
	v, ok := b.state.Get(db, key)
	return v, ok, nil
}

// --------------------------------------------------------------------------
// Server
// --------------------------------------------------------------------------

// Server is the HTTP control surface of a primary:
//
//	POST /{db}        body is a command script, see keyspace.ParseScript
//	GET  /{db}/{key}  value of key, 404 if it does not exist
//	GET  /metrics     prometheus metrics
type Server struct {
	backend IBackend
	timeout time.Duration
	mux     *http.ServeMux
}

// NewServer creates the control surface. Requests taking longer than timeout are
// canceled, a timeout <= 0 disables this. With debug set every request is logged.
func NewServer(backend IBackend, timeout time.Duration, debug bool) *Server {
	s := &Server{
		backend: backend,
		timeout: timeout,
		mux:     http.NewServeMux(),
	}

	handle := func(pattern string, h http.HandlerFunc) {
		if debug {
			h = loggerMiddleware(h)
		}
		s.mux.HandleFunc(pattern, h)
	}
	handle("POST /{db}", s.handleScript)
	handle("GET /{db}/{key}", s.handleGet)
	handle("GET /metrics", func(w http.ResponseWriter, _ *http.Request) {
		metrics.WritePrometheus(w, true)
	})
	return s
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe serves the control surface on endpoint. It blocks.
func (s *Server) ListenAndServe(endpoint string) error {
	Logger.Infof("Starting HTTP server on %s", endpoint)
	return http.ListenAndServe(endpoint, s)
}

// --------------------------------------------------------------------------
// Handlers
// --------------------------------------------------------------------------

// handleScript parses the body and appends the resulting entries
func (s *Server) handleScript(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer scriptLatency.UpdateDuration(start)
	scriptsTotal.Inc()

	db, ok := parseDb(w, r)
	if !ok {
		scriptsFailed.Inc()
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxScriptSize+1))
	defer r.Body.Close()
	if err != nil {
		scriptsFailed.Inc()
		http.Error(w, "Failed to read request body", http.StatusInternalServerError)
		return
	}
	if len(body) > maxScriptSize {
		scriptsFailed.Inc()
		http.Error(w, "Script too large", http.StatusRequestEntityTooLarge)
		return
	}

	entries, err := keyspace.ParseScript(string(body), db)
	if err != nil {
		scriptsFailed.Inc()
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()
	if err := s.backend.Append(ctx, entries...); err != nil {
		scriptsFailed.Inc()
		http.Error(w, err.Error(), statusOf(err))
		return
	}
	entriesTotal.Add(len(entries))

	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte(strconv.Itoa(len(entries)) + "\n"))
}

// handleGet writes the raw value of a key
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	db, ok := parseDb(w, r)
	if !ok {
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()
	value, found, err := s.backend.Get(ctx, db, r.PathValue("key"))
	if err != nil {
		http.Error(w, err.Error(), statusOf(err))
		return
	}
	if !found {
		http.Error(w, "Key not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(value)
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func (s *Server) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(r.Context())
	}
	return context.WithTimeout(r.Context(), s.timeout)
}

func parseDb(w http.ResponseWriter, r *http.Request) (journal.DbIndex, bool) {
	db, err := strconv.ParseUint(r.PathValue("db"), 10, 32)
	if err != nil {
		http.Error(w, "Invalid db", http.StatusBadRequest)
		return 0, false
	}
	return journal.DbIndex(db), true
}

// statusOf maps backend errors to status codes
func statusOf(err error) int {
	switch {
	case errors.Is(err, keyspace.ErrInvalidDb),
		errors.Is(err, keyspace.ErrUnknownCommand),
		errors.Is(err, keyspace.ErrWrongArgs):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// --------------------------------------------------------------------------
// Middleware (logging)
// --------------------------------------------------------------------------

// responseWriter is a custom ResponseWriter that captures status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

// WriteHeader captures the status code before writing it
func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// loggerMiddleware is a middleware that logs HTTP requests
func loggerMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Create custom response writer to capture status code
		rw := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		// Process request
		next.ServeHTTP(rw, r)

		Logger.Debugf("%s %s => %d took %s", r.Method, r.URL.Path, rw.statusCode, time.Since(start))
	}
}
