// Package server implements the tailt HTTP server: the REST API that
// browse clients pull from, the WebSocket stream they tail, and the MCP
// tool surface, all backed by the transcript store.
package server

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/wethinkt/go-tailt/internal/store"
	"github.com/wethinkt/go-tailt/internal/tailt"
	"github.com/wethinkt/go-tailt/internal/tuilog"

	_ "github.com/wethinkt/go-tailt/internal/server/docs" // swagger spec
)

// Default server address values.
const (
	DefaultPort = 8719
	DefaultHost = "127.0.0.1"
)

// TranscriptStore is the storage surface the server reads from. The
// DuckDB store implements it; tests substitute an in-memory fake.
type TranscriptStore interface {
	// ListProjects returns every project with at least one session.
	ListProjects(ctx context.Context) ([]tailt.Project, error)
	// ListSessions returns a project's sessions, newest first.
	ListSessions(ctx context.Context, projectID string) ([]tailt.SessionMeta, error)
	// GetSession returns one session's metadata.
	GetSession(ctx context.Context, sessionID string) (tailt.SessionMeta, error)
	// EntriesAfter returns up to limit entries with seq > afterSeq.
	EntriesAfter(ctx context.Context, sessionID string, afterSeq int64, limit int) ([]tailt.Entry, error)
	// SearchSessions returns sessions matching a text query.
	SearchSessions(ctx context.Context, query string, limit int) ([]tailt.SessionMeta, error)
	// Stats returns aggregate store statistics.
	Stats(ctx context.Context) (*store.Stats, error)
	// SetNotifier registers the committed-append callback.
	SetNotifier(fn func(store.Notification))
}

// Options holds server configuration.
type Options struct {
	Host  string
	Port  int
	Token string // bearer token; empty disables auth
	Quiet bool
}

// DefaultOptions returns Options with default values.
func DefaultOptions() Options {
	return Options{
		Host: DefaultHost,
		Port: DefaultPort,
	}
}

// Server serves the tailt REST API and WebSocket stream.
type Server struct {
	opts      Options
	store     TranscriptStore
	pubsub    *PubSub
	tickets   *TicketStore
	router    chi.Router
	startedAt time.Time
}

// New creates a server over the given store and wires itself in as the
// store's append notifier. The caller owns the store's lifecycle.
func New(st TranscriptStore, opts Options) *Server {
	if opts.Host == "" {
		opts.Host = DefaultHost
	}

	s := &Server{
		opts:      opts,
		store:     st,
		pubsub:    NewPubSub(),
		tickets:   NewTicketStore(),
		startedAt: time.Now(),
	}
	s.router = s.setupRouter()
	st.SetNotifier(s.Publish)
	return s
}

// Publish fans a committed append out to connected clients.
func (s *Server) Publish(note store.Notification) {
	ingestEntriesTotal.WithLabelValues(note.ProjectID).Add(float64(len(note.Entries)))
	s.pubsub.Publish(note)
}

// setupRouter configures routes and middleware.
func (s *Server) setupRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(corsMiddleware)

	if !s.opts.Quiet {
		// Ticket values ride in the query string, so the request log
		// goes through the redacting formatter.
		r.Use(middleware.RequestLogger(&redactingLogFormatter{
			base: &middleware.DefaultLogFormatter{Logger: log.New(os.Stdout, "", log.LstdFlags)},
		}))
	}

	if s.opts.Token != "" {
		tuilog.Log.Info("Server authentication enabled")
		r.Use(bearerAuth(s.opts.Token))
	} else {
		tuilog.Log.Warn("Server running without authentication - use --token to secure")
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/projects", s.handleListProjects)
		r.Get("/projects/{projectID}/sessions", s.handleListSessions)
		r.Get("/sessions/{sessionID}", s.handleGetSession)
		r.Get("/sessions/{sessionID}/entries", s.handleGetEntries)
		r.Get("/search", s.handleSearch)
		r.Get("/stats", s.handleStats)
		r.Get("/healthz", s.handleHealth)
		r.Post("/ws/ticket", s.handleIssueTicket)
		r.Get("/ws", s.handleWS)
	})

	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<!DOCTYPE html>
<html>
<head><title>Tailt</title></head>
<body>
<h1>Tailt Server</h1>
<p>API: <a href="/api/v1/projects">/api/v1/projects</a></p>
<p>Docs: <a href="/swagger/index.html">/swagger/index.html</a></p>
</body>
</html>`))
	})

	return r
}

// Router returns the chi router, for tests and embedding.
func (s *Server) Router() chi.Router {
	return s.router
}

// Addr returns the server address string.
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)
}

// ListenAndServe starts the server and blocks until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.Addr(),
		Handler: s.router,
	}

	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	// Update port if auto-assigned
	if s.opts.Port == 0 {
		s.opts.Port = ln.Addr().(*net.TCPAddr).Port
	}

	go s.maintenanceLoop(ctx)

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if !s.opts.Quiet {
		fmt.Printf("tailt server running at http://%s\n", s.Addr())
	}
	return srv.Serve(ln)
}

// maintenanceLoop periodically expires stale tickets and refreshes the
// store gauges.
func (s *Server) maintenanceLoop(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tickets.Cleanup()
			if stats, err := s.store.Stats(ctx); err == nil {
				sessionsTotal.Set(float64(stats.TotalSessions))
				entriesTotal.Set(float64(stats.TotalEntries))
				dbSizeBytes.Set(float64(stats.DBSizeBytes))
			}
		}
	}
}

// bearerAuth returns middleware that validates a bearer token using
// constant-time comparison to prevent timing attacks. Health checks
// stay open, and a ws dial carrying a ticket authenticates by
// redeeming it instead.
func bearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/api/v1/healthz" {
				next.ServeHTTP(w, r)
				return
			}
			if r.URL.Path == "/api/v1/ws" && r.URL.Query().Get("ticket") != "" {
				next.ServeHTTP(w, r)
				return
			}

			auth := r.Header.Get("Authorization")
			if auth == "" {
				w.Header().Set("WWW-Authenticate", `Bearer realm="tailt"`)
				writeError(w, http.StatusUnauthorized, "unauthorized", "Missing Authorization header")
				return
			}

			const prefix = "Bearer "
			if len(auth) < len(prefix) || auth[:len(prefix)] != prefix {
				writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid Authorization header format")
				return
			}

			if subtle.ConstantTimeCompare([]byte(auth[len(prefix):]), []byte(token)) != 1 {
				writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid token")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// corsMiddleware adds CORS headers for cross-origin requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
