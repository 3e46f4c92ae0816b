package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/agrifield/backend/internal/auth"
	"github.com/agrifield/backend/internal/domain"
	"github.com/agrifield/backend/internal/ingestion"
	"github.com/agrifield/backend/internal/middleware"
)

// NewRouter assembles the full HTTP surface. Everything under /api/v1
// requires a bearer token; /healthz does not.
func NewRouter(
	parser *auth.TokenParser,
	uploads *ingestion.Handler,
	farmTasks *FarmTaskHandler,
	entities *EntityHandler,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: false,
	}).Handler)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Authenticate(parser))

		// Destructive entity routes stay with elevated roles; planners
		// and field managers only work through the task endpoints.
		elevated := middleware.RequireRoles(domain.RoleAdmin, domain.RoleManager)

		r.Route("/farms", func(r chi.Router) {
			r.Get("/", entities.ListFarms)
			r.Post("/", entities.CreateFarm)
			r.Get("/{id}", entities.GetFarm)
			r.With(elevated).Delete("/{id}", entities.DeleteFarm)

			r.Route("/tasks", func(r chi.Router) {
				r.Get("/", farmTasks.Index)
				r.Post("/", farmTasks.Create)
				r.Post("/upload-csv", uploads.Upload)
				r.Get("/status/{upload_id}", uploads.Status)
				r.Get("/{id}", farmTasks.View)
				r.Patch("/{id}", farmTasks.Update)
				r.Delete("/{id}", farmTasks.Delete)
			})
		})

		r.Route("/crops", func(r chi.Router) {
			r.Get("/", entities.ListCrops)
			r.Post("/", entities.CreateCrop)
			r.With(elevated).Delete("/{id}", entities.DeleteCrop)
		})

		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", entities.ListTasks)
			r.Post("/", entities.CreateTask)
			r.With(elevated).Delete("/{id}", entities.DeleteTask)
		})

		r.Route("/users", func(r chi.Router) {
			r.Get("/", entities.ListUsers)
			r.Get("/{id}", entities.GetUser)
			r.With(elevated).Delete("/{id}", entities.DeleteUser)
		})
	})

	return r
}
