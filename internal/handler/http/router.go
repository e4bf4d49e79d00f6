package http

import (
	"log/slog"
	"os"

	"github.com/cmlabs-hris/staff-attendance-go/internal/handler/http/middleware"
	"github.com/cmlabs-hris/staff-attendance-go/internal/pkg/jwt"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v3"
	"github.com/go-chi/jwtauth/v5"
)

type RouterConfig struct {
	AppName        string
	Version        string
	Env            string
	LogLevel       slog.Level
	AllowedOrigins []string
	// EditorRoles may change attendances. Empty allows every caller.
	EditorRoles []string
}

func NewRouter(
	cfg RouterConfig,
	JWTService jwt.Service,
	staffAttendanceHandler StaffAttendanceHandler,
	gridSessionHandler GridSessionHandler,
) *chi.Mux {
	r := chi.NewRouter()
	logFormat := httplog.SchemaECS.Concise(cfg.Env != "production")
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		ReplaceAttr: logFormat.ReplaceAttr,
	})).With(
		slog.String("app", cfg.AppName),
		slog.String("version", cfg.Version),
		slog.String("env", cfg.Env),
	)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Content-Disposition"},
		MaxAge:           300,
	}))

	r.Use(httplog.RequestLogger(logger, &httplog.Options{
		Level:  cfg.LogLevel,
		Schema: httplog.SchemaECS,
	}))

	r.Use(chiMiddleware.CleanPath)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/"))

	editor := middleware.RequireRole(cfg.EditorRoles...)

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(jwtauth.Verify(JWTService.JWTAuth(), jwtauth.TokenFromHeader, middleware.TokenFromQuery))
			r.Use(middleware.AuthRequired(JWTService))

			r.Get("/units/{unitID}/staff-attendances", staffAttendanceHandler.Fetch)
			r.Route("/staff-attendances", func(r chi.Router) {
				r.Use(editor)
				r.Post("/upsert", staffAttendanceHandler.Upsert)
				r.Post("/delete", staffAttendanceHandler.Delete)
			})

			r.Route("/grid-sessions", func(r chi.Router) {
				r.Post("/", gridSessionHandler.Open)

				r.Route("/{sessionID}", func(r chi.Router) {
					r.Get("/", gridSessionHandler.Get)
					r.Get("/events", gridSessionHandler.Events)
					r.Get("/export", gridSessionHandler.Export)
					r.Post("/refresh", gridSessionHandler.Refresh)
					r.Delete("/", gridSessionHandler.Close)

					// Editing
					r.Group(func(r chi.Router) {
						r.Use(editor)
						r.Put("/editing", gridSessionHandler.SetEditing)
						r.Patch("/rows/{trackingID}", gridSessionHandler.EditRow)
						r.Post("/rows/{trackingID}/unlink", gridSessionHandler.Unlink)
						r.Post("/owners/{ownerKey}/arrivals", gridSessionHandler.StartArrival)
						r.Post("/owners/{ownerKey}/acknowledge", gridSessionHandler.Acknowledge)
						r.Post("/save", gridSessionHandler.Save)
					})
				})
			})
		})
	})
	return r
}
