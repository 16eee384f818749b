// Package controller wires the gateway HTTP API.
package controller

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"hpcgateway/internal/controller/handlers"
	"hpcgateway/internal/controller/middleware"

	"github.com/go-chi/cors"
)

// Options configures the HTTP server.
type Options struct {
	Addr               string
	CORSAllowedOrigins []string
	// RateLimit is requests per second per caller; 0 disables throttling.
	RateLimit      float64
	RateLimitBurst int
	MaxUploadBytes int64
	// RequestTimeout bounds a whole request including facade calls.
	RequestTimeout time.Duration
	// Metrics serves /metrics when set.
	Metrics http.Handler
}

// Dependencies are the collaborators behind the API.
type Dependencies struct {
	Resolver middleware.IdentityResolver
	Jobs     handlers.Lifecycle
	Files    handlers.Files
	DB       handlers.Pinger
	Logger   *slog.Logger
}

// Server is the HTTP server for the gateway API.
type Server struct {
	httpServer *http.Server
}

// New creates a new gateway server.
func New(opts Options, deps Dependencies) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              opts.Addr,
			Handler:           NewHandler(opts, deps),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       writeTimeout(opts.RequestTimeout),
			WriteTimeout:      writeTimeout(opts.RequestTimeout),
		},
	}
}

// Uploads and task polling may take the full request timeout, so the socket
// timeouts leave headroom beyond it.
func writeTimeout(requestTimeout time.Duration) time.Duration {
	if requestTimeout <= 0 {
		requestTimeout = 30 * time.Second
	}
	return requestTimeout + 30*time.Second
}

// NewHandler builds the routed handler with its middleware chain.
func NewHandler(opts Options, deps Dependencies) http.Handler {
	h := handlers.New(deps.Jobs, deps.Files, deps.DB, opts.MaxUploadBytes, deps.Logger)
	authMW := middleware.AuthMiddleware(deps.Resolver, deps.Logger)
	rateMW := middleware.NewRateLimiter(
		middleware.WithLimit(opts.RateLimit, opts.RateLimitBurst),
	).Middleware()

	protected := func(fn http.HandlerFunc) http.Handler {
		return authMW(rateMW(fn))
	}

	mux := http.NewServeMux()

	// Probes
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
	if opts.Metrics != nil {
		mux.Handle("GET /metrics", opts.Metrics)
	}

	// Users
	mux.Handle("POST /api/v1/user/create", protected(h.CreateUser))
	mux.Handle("GET /api/v1/user/{$}", protected(h.GetUser))
	mux.Handle("GET /api/v1/heartbeat", protected(h.Heartbeat))

	// Jobs
	mux.Handle("GET /api/v1/job/{$}", protected(h.ListJobs))
	mux.Handle("GET /api/v1/job/state/{jobid}", protected(h.GetJobState))
	mux.Handle("POST /api/v1/job/create", protected(h.CreateJob))
	mux.Handle("POST /api/v1/job/script/{jobid}", protected(h.WriteJobScript))
	mux.Handle("POST /api/v1/job/launch/{jobid}", protected(h.LaunchJob))
	mux.Handle("DELETE /api/v1/job/cancel/{jobid}", protected(h.CancelJob))
	mux.Handle("DELETE /api/v1/job/delete/{jobid}", protected(h.DeleteJob))

	// Files
	mux.Handle("GET /api/v1/file/list/{jobid}", protected(h.ListFiles))
	mux.Handle("POST /api/v1/file/upload/{jobid}", protected(h.UploadFile))
	mux.Handle("GET /api/v1/file/download/{jobid}/{filename}", protected(h.DownloadFile))
	mux.Handle("DELETE /api/v1/file/delete/{jobid}/{filename}", protected(h.DeleteFile))

	var handler http.Handler = mux
	if len(opts.CORSAllowedOrigins) > 0 {
		handler = cors.Handler(cors.Options{
			AllowedOrigins: opts.CORSAllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
			ExposedHeaders: []string{middleware.RequestIDHeader, "Content-Disposition"},
			MaxAge:         300,
		})(handler)
	}
	handler = middleware.Recover(deps.Logger)(handler)
	return middleware.RequestLogger(deps.Logger)(handler)
}

// Run starts the HTTP server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		shutDownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		return s.Shutdown(shutDownCtx)
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
