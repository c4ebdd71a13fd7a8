// Package server exposes the inference service over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"k8s.io/klog/v2"

	"github.com/pario-ai/forge/pkg/config"
	"github.com/pario-ai/forge/pkg/inference"
)

// Server is the Forge HTTP API.
type Server struct {
	cfg     *config.Config
	svc     *inference.Service
	version string
	started time.Time
	handler http.Handler
}

// New creates a Server wired to svc.
func New(cfg *config.Config, svc *inference.Service, version string) *Server {
	s := &Server{
		cfg:     cfg,
		svc:     svc,
		version: version,
		started: time.Now(),
	}

	r := mux.NewRouter()

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/predict", s.handlePredict).Methods(http.MethodPost)
	r.HandleFunc("/predict/batch", s.handlePredictBatch).Methods(http.MethodPost)
	r.HandleFunc("/models", s.handleListModels).Methods(http.MethodGet)
	r.HandleFunc("/models/active", s.handleActiveModel).Methods(http.MethodGet)
	r.HandleFunc("/models/stats", s.handleModelStats).Methods(http.MethodGet)
	r.HandleFunc("/models/{name}/activate", s.handleActivateModel).Methods(http.MethodPost)
	r.HandleFunc("/models/{name:.+}", s.handleUnloadModel).Methods(http.MethodDelete)
	r.HandleFunc("/info", s.handleInfo).Methods(http.MethodGet)
	r.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)
	if cfg.Monitoring.EnableMetrics {
		r.Handle("/metrics/prometheus", svc.Stats.Handler()).Methods(http.MethodGet)
	}
	r.HandleFunc("/cache/stats", s.handleCacheStats).Methods(http.MethodGet)
	r.HandleFunc("/cache", s.handleClearCache).Methods(http.MethodDelete)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	// Wrapped outside the router so 404 and 405 responses are tagged and
	// logged too.
	s.handler = requestID(logRequests(withTimeout(cfg.Server.RequestTimeout, r)))
	if len(cfg.Server.CORSOrigins) > 0 {
		c := cors.New(cors.Options{
			AllowedOrigins: cfg.Server.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", "Accept", requestIDHeader},
			ExposedHeaders: []string{requestIDHeader},
			MaxAge:         300,
		})
		s.handler = c.Handler(s.handler)
	}
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// ListenAndServe starts the server with graceful shutdown support.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Server.Listen,
		Handler:      s,
		ReadTimeout:  s.cfg.Server.RequestTimeout,
		WriteTimeout: s.cfg.Server.RequestTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		klog.InfoS("Forge server listening", "addr", s.cfg.Server.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
		defer cancel()
		klog.InfoS("Shutting down server")
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
