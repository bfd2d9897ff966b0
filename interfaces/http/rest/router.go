package rest

import (
	"net/http"

	"tattoo-datasync/application/services"
	"tattoo-datasync/interfaces/http/rest/handlers"
	"tattoo-datasync/interfaces/http/rest/middleware"
	"tattoo-datasync/pkg/auth"
	"tattoo-datasync/pkg/errors"
	"tattoo-datasync/pkg/observability"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// Services are the application services behind the admin API.
type Services struct {
	Exporter     *services.Exporter
	Migrations   *services.MigrationRunner
	Synchronizer *services.Synchronizer
	Resolver     *services.ConflictResolver
	Guard        *services.RunGuard
}

// Options tune the router.
type Options struct {
	// Validator enables bearer authentication on /api/v1 when set.
	Validator *auth.JWTValidator
	Collector *observability.Collector
	Tracer    *observability.Tracer
	// RequestsPerMinute limits each client IP; zero disables the limit.
	RequestsPerMinute int
	EnableCORS        bool
	// Debug adds raw messages and stack traces to error responses.
	Debug bool
}

// Router creates and configures the HTTP router
type Router struct {
	services Services
	opts     Options
	logger   *zap.Logger
}

// NewRouter creates a new router instance
func NewRouter(svc Services, opts Options, logger *zap.Logger) *Router {
	return &Router{services: svc, opts: opts, logger: logger}
}

// Setup configures all routes and middleware
func (rt *Router) Setup() *chi.Mux {
	router := chi.NewRouter()

	errorHandler := errors.NewErrorHandler(rt.logger, rt.opts.Debug)

	router.Use(chimiddleware.RequestID)
	router.Use(middleware.RequestContext)
	router.Use(chimiddleware.RealIP)
	router.Use(middleware.Logger(rt.logger, rt.opts.Collector))
	router.Use(errorHandler.Middleware)
	if rt.opts.Tracer.Enabled() {
		router.Use(func(next http.Handler) http.Handler {
			return xray.Handler(xray.NewFixedSegmentNamer("tattoo-datasync-api"), next)
		})
	}

	if rt.opts.EnableCORS {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"http://localhost:3000", "https://*.tattoo-directory.com"},
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	router.Get("/health", rt.healthCheck)
	if rt.opts.Collector != nil {
		router.Method(http.MethodGet, "/metrics", rt.opts.Collector.Handler())
	}

	admin := handlers.NewAdminHandler(
		rt.services.Exporter,
		rt.services.Migrations,
		rt.services.Synchronizer,
		rt.services.Resolver,
		rt.services.Guard,
		errorHandler,
		rt.logger,
	)

	router.Route("/api/v1", func(r chi.Router) {
		if rt.opts.RequestsPerMinute > 0 {
			r.Use(middleware.RateLimit(auth.NewKeyedLimiter(rt.opts.RequestsPerMinute, rt.opts.RequestsPerMinute/6+1)))
		}
		r.Use(middleware.Authenticate(rt.opts.Validator, rt.logger))

		r.Route("/sync", func(r chi.Router) {
			r.Post("/store-to-index", admin.SyncStoreToIndex)
			r.Post("/index-to-store", admin.SyncIndexToStore)
		})

		r.Route("/conflicts", func(r chi.Router) {
			r.Get("/", admin.DetectConflicts)
			r.Post("/resolve", admin.ResolveConflicts)
		})

		r.Route("/migrations", func(r chi.Router) {
			r.Get("/", admin.ListMigrations)
			r.Get("/validate", admin.ValidateMigrations)
			r.Post("/{name}/run", admin.RunMigration)
			r.Post("/{name}/rollback", admin.RollbackMigration)
		})

		r.Get("/backups", admin.ListBackups)
	})

	return router
}

// healthCheck handles health check requests
func (rt *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy"}`))
}
