package internal

import (
	"context"
	"database/sql"
	"embed"
	"log"
	"net/http"
	"os"
	"time"

	"equiploan-api/internal/auth"
	"equiploan-api/internal/booking"
	"equiploan-api/internal/config"
	"equiploan-api/internal/handlers"
	"equiploan-api/internal/notify"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
)

//go:embed openapi
var openapiFS embed.FS

type Server struct {
	DB         *sql.DB
	Pool       *pgxpool.Pool
	Router     *chi.Mux
	JWTManager *auth.JWTManager
	Metrics    *Metrics
	Store      *SQLStore
	Booking    *booking.Service
}

func NewServer(dsn string, cfg *config.Config) *Server {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		log.Fatal("Failed to open database connection:", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		log.Fatal("Database ping failed:", err)
	}

	// Also create a pgxpool for the importer
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		log.Fatal("Failed to create pgxpool:", err)
	}

	// Initialize JWT manager
	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTExpiry)

	// Validate JWT configuration
	if err := jwtManager.ValidateConfig(); err != nil {
		log.Fatal("JWT configuration validation failed:", err)
	}

	// Initialize metrics
	metrics := NewMetrics()

	// Notifications go to Redis when configured, otherwise to the log
	var notifier booking.Notifier = notify.NewLogNotifier()
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		notifier = notify.NewRedisNotifier(rdb, notify.DefaultChannel)
	}

	store := NewSQLStore(db)
	svc := booking.NewService(store, store, notifier)

	s := &Server{
		DB:         db,
		Pool:       pool,
		Router:     chi.NewRouter(),
		JWTManager: jwtManager,
		Metrics:    metrics,
		Store:      store,
		Booking:    svc,
	}
	// Mount public routes FIRST (no middleware)
	s.Router.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		if _, err := w.Write([]byte("ok")); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
	s.Router.Get("/dbping", func(w http.ResponseWriter, _ *http.Request) {
		if _, err := w.Write([]byte("db: ok")); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})

	// Public auth routes (no JWT required)
	s.Router.Post("/auth/login", s.loginUser)
	s.mountDocs(s.Router)

	// Mount metrics if enabled
	if os.Getenv("ENABLE_METRICS") == "true" {
		s.Router.Use(s.Metrics.Middleware())
		s.Router.Get("/metrics", s.Metrics.Handler().ServeHTTP)
	}

	// Create a protected route group with middleware
	s.Router.Group(func(r chi.Router) {
		// Apply middleware to this group only
		r.Use(auth.AuthMiddleware(s.JWTManager))

		// Mount protected routes
		s.mountProtectedRoutes(r)
	})

	return s
}

// Close properly shuts down the server and cleans up resources
func (s *Server) Close(ctx context.Context) error {
	if s.Pool != nil {
		s.Pool.Close()
	}
	if s.DB != nil {
		return s.DB.Close()
	}
	return nil
}

// mountDocs serves the OpenAPI spec and Swagger UI
func (s *Server) mountDocs(mux *chi.Mux) {
	// Check if Swagger is enabled
	if os.Getenv("ENABLE_SWAGGER") != "true" {
		return
	}

	// Serve the raw YAML
	mux.HandleFunc("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		data, err := openapiFS.ReadFile("openapi/openapi.yaml")
		if err != nil {
			http.Error(w, "Failed to read OpenAPI spec", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/x-yaml")
		if _, err := w.Write(data); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})

	// Serve Swagger UI page
	mux.HandleFunc("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(200)
		w.Write([]byte(`<!doctype html>
<html lang="en">
<head>
    <meta charset="utf-8">
    <meta name="viewport" content="width=device-width, initial-scale=1">
    <title>Equipment Loan API - Documentation</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5.9.0/swagger-ui.css">
    <style>
        body { margin: 0; background: #f7f7f7; }
        .swagger-ui .topbar { background: #1f2937; border-bottom: 3px solid #3b82f6; }
        .swagger-ui .topbar .download-url-wrapper { display: none; }
        .swagger-ui .info { margin: 20px 0; }
        .swagger-ui .info .title { color: #1f2937; }
    </style>
</head>
<body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5.9.0/swagger-ui-bundle.js"></script>
    <script>
        window.onload = function() {
            window.ui = SwaggerUIBundle({
                url: '/openapi.yaml',
                dom_id: '#swagger-ui',
                deepLinking: true,
                presets: [
                    SwaggerUIBundle.presets.apis,
                    SwaggerUIBundle.presets.standalone
                ],
                plugins: [
                    SwaggerUIBundle.plugins.DownloadUrl
                ],
                layout: "StandaloneLayout",
                tryItOutEnabled: true
            });
        };
    </script>
</body>
</html>`))
	})
}

// mountProtectedRoutes mounts all protected routes that require authentication
func (s *Server) mountProtectedRoutes(r chi.Router) {
	// Borrow tickets - any authenticated user may submit and read
	r.Post("/tickets", s.submitTicket)
	r.Get("/tickets", s.listTickets)
	r.Get("/tickets/{id}", s.getTicket)

	// Stage decisions - candidate checks happen in the booking service, the
	// route gate only keeps plain requesters out
	approverRoles := []string{"section_head", "dept_head", "asset_admin", "admin"}
	r.Post("/tickets/{id}/approve", auth.MustRole(approverRoles...)(http.HandlerFunc(s.approveTicket)).(http.HandlerFunc))
	r.Post("/tickets/{id}/reject", auth.MustRole(approverRoles...)(http.HandlerFunc(s.rejectTicket)).(http.HandlerFunc))

	// Handover - asset admins confirm physical pickup and return
	r.Post("/tickets/{id}/pickup", auth.MustRole("asset_admin", "admin")(http.HandlerFunc(s.pickupTicket)).(http.HandlerFunc))
	r.Post("/tickets/{id}/return", auth.MustRole("asset_admin", "admin")(http.HandlerFunc(s.returnTicket)).(http.HandlerFunc))

	// Availability preview
	r.Get("/availability", s.getAvailability)

	// Asset catalog - require asset_admin role for write operations
	r.Get("/asset-types", s.listAssetTypes)
	r.Get("/asset-types/{id}", s.getAssetType)
	r.Get("/asset-types/{id}/units", s.listAssetTypeUnits)
	r.Post("/asset-types", auth.MustRole("asset_admin", "admin")(http.HandlerFunc(s.createAssetType)).(http.HandlerFunc))
	r.Put("/asset-types/{id}", auth.MustRole("asset_admin", "admin")(http.HandlerFunc(s.updateAssetType)).(http.HandlerFunc))
	r.Delete("/asset-types/{id}", auth.MustRole("admin")(http.HandlerFunc(s.deleteAssetType)).(http.HandlerFunc))

	r.Get("/units", s.listUnits)
	r.Get("/units/{id}", s.getUnit)
	r.Post("/units", auth.MustRole("asset_admin", "admin")(http.HandlerFunc(s.createUnit)).(http.HandlerFunc))
	r.Put("/units/{id}", auth.MustRole("asset_admin", "admin")(http.HandlerFunc(s.updateUnit)).(http.HandlerFunc))
	r.Delete("/units/{id}", auth.MustRole("admin")(http.HandlerFunc(s.deleteUnit)).(http.HandlerFunc))

	// Approval flow templates - admin only for writes
	r.Get("/flows", s.listFlowTemplates)
	r.Get("/flows/{id}", s.getFlowTemplate)
	r.Post("/flows", auth.MustRole("admin")(http.HandlerFunc(s.createFlowTemplate)).(http.HandlerFunc))
	r.Delete("/flows/{id}", auth.MustRole("admin")(http.HandlerFunc(s.deleteFlowTemplate)).(http.HandlerFunc))

	// Org structure - admin only for writes
	r.Get("/departments", s.listDepartments)
	r.Get("/departments/{id}", s.getDepartment)
	r.Get("/departments/{id}/stats", auth.MustRole("admin")(http.HandlerFunc(s.getDepartmentStats)).(http.HandlerFunc))
	r.Post("/departments", auth.MustRole("admin")(http.HandlerFunc(s.createDepartment)).(http.HandlerFunc))
	r.Put("/departments/{id}", auth.MustRole("admin")(http.HandlerFunc(s.updateDepartment)).(http.HandlerFunc))
	r.Delete("/departments/{id}", auth.MustRole("admin")(http.HandlerFunc(s.deleteDepartment)).(http.HandlerFunc))

	r.Get("/sections", s.listSections)
	r.Post("/sections", auth.MustRole("admin")(http.HandlerFunc(s.createSection)).(http.HandlerFunc))
	r.Put("/sections/{id}", auth.MustRole("admin")(http.HandlerFunc(s.updateSection)).(http.HandlerFunc))
	r.Delete("/sections/{id}", auth.MustRole("admin")(http.HandlerFunc(s.deleteSection)).(http.HandlerFunc))

	// Excel import of asset units - asset_admin/admin
	importsHandler := handlers.NewImportsHandler(s.Pool)
	r.Post("/imports/excel", auth.MustRole("asset_admin", "admin")(http.HandlerFunc(importsHandler.UploadExcel)).(http.HandlerFunc))

	// User management - admin only
	r.Post("/users", auth.MustRole("admin")(http.HandlerFunc(s.createUser)).(http.HandlerFunc))
	r.Get("/users", auth.MustRole("admin")(http.HandlerFunc(s.listUsers)).(http.HandlerFunc))
	r.Get("/users/{id}", auth.MustRole("admin")(http.HandlerFunc(s.getUser)).(http.HandlerFunc))
	r.Put("/users/{id}", auth.MustRole("admin")(http.HandlerFunc(s.updateUser)).(http.HandlerFunc))
	r.Delete("/users/{id}", auth.MustRole("admin")(http.HandlerFunc(s.deleteUser)).(http.HandlerFunc))

	// Self-service routes
	r.Get("/auth/profile", s.getUserProfile)
	r.Put("/auth/profile", s.updateUserProfile)
	r.Put("/auth/change-password", s.changePassword)
}
