// Package server implements the photo gateway HTTP server and its route table.
package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/britstern2026-jpg/qr-photo-uploader-backend/internal/config"
	"github.com/britstern2026-jpg/qr-photo-uploader-backend/internal/handlers"
	"github.com/britstern2026-jpg/qr-photo-uploader-backend/internal/logging"
	"github.com/britstern2026-jpg/qr-photo-uploader-backend/internal/photo"
)

// LivenessMessage is the plain-text body of GET /.
const LivenessMessage = "✅ Backend is running. Use POST /upload to upload photos."

// Server is the photo gateway HTTP server.
type Server struct {
	cfg        *config.Config
	router     chi.Router
	api        huma.API
	gateway    *photo.Gateway
	upload     *handlers.UploadHandler
	photos     *handlers.PhotosHandler
	httpServer *http.Server
}

// HealthBody is the JSON body returned by the health check endpoints.
type HealthBody struct {
	Status string `json:"status" example:"ok" doc:"Health status"`
}

// HealthOutput is the Huma output struct for the health check endpoints.
type HealthOutput struct {
	Body HealthBody
}

// New creates a new Server with the given configuration and wires every
// route on a Chi router with a Huma API on top.
func New(cfg *config.Config, gateway *photo.Gateway) (*Server, error) {
	router := chi.NewMux()

	// Chi requires middleware to be registered before the first route, and
	// humachi.New registers the docs routes.
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		MaxAge:         300,
	}))

	humaConfig := huma.DefaultConfig("Photo Upload Gateway", "1.0.0")
	humaConfig.DocsPath = "/docs"
	humaConfig.OpenAPIPath = "/openapi"
	// Response bodies carry exactly the documented keys: no $schema field
	// and no Link describedBy header.
	humaConfig.CreateHooks = nil
	api := humachi.New(router, humaConfig)

	s := &Server{
		cfg:     cfg,
		router:  router,
		api:     api,
		gateway: gateway,
		upload:  handlers.NewUploadHandler(gateway, cfg.Upload),
		photos:  handlers.NewPhotosHandler(gateway),
	}
	s.registerRoutes()
	return s, nil
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	var handler http.Handler = s.router
	if s.cfg.Observability.Metrics {
		handler = metricsMiddleware(handler)
	}
	return handler
}

// ListenAndServe starts the HTTP server on the given address.
// The returned http.Server is stored so it can be shut down gracefully.
func (s *Server) ListenAndServe(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server, waiting for in-flight
// requests to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// registerRoutes configures all routes on the Chi router.
func (s *Server) registerRoutes() {
	s.router.Get("/", s.liveness)
	s.router.Method(http.MethodPost, "/upload", s.upload)
	handlers.RegisterUploadDoc(s.api)
	s.photos.Register(s.api)

	huma.Register(s.api, huma.Operation{
		OperationID: "get-healthz",
		Method:      http.MethodGet,
		Path:        "/healthz",
		Summary:     "Liveness check",
		Description: "Returns ok while the process is serving requests.",
		Tags:        []string{"System"},
	}, func(ctx context.Context, input *struct{}) (*HealthOutput, error) {
		return &HealthOutput{Body: HealthBody{Status: "ok"}}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-readyz",
		Method:      http.MethodGet,
		Path:        "/readyz",
		Summary:     "Readiness check",
		Description: "Checks that the configured bucket is reachable.",
		Tags:        []string{"System"},
	}, s.readyz)

	if s.cfg.Observability.Metrics {
		s.router.Handle("/metrics", promhttp.Handler())
	}
}

func (s *Server) liveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(LivenessMessage))
}

func (s *Server) readyz(ctx context.Context, _ *struct{}) (*HealthOutput, error) {
	if err := s.gateway.Store().HealthCheck(ctx); err != nil {
		logging.FromContext(ctx).Warn("Readiness check failed", "bucket", s.gateway.Store().Bucket(), "error", err)
		return nil, &handlers.ErrorBody{Status: http.StatusServiceUnavailable, Message: err.Error()}
	}
	return &HealthOutput{Body: HealthBody{Status: "ok"}}, nil
}
