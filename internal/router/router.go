package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"cardfolio-api/internal/handler"
	"cardfolio-api/internal/metrics"
	"cardfolio-api/internal/middleware"
)

// Config holds the configuration for creating a router. Nil handlers leave
// their routes out.
type Config struct {
	Handler          *handler.Handler
	AuthHandler      *handler.AuthHandler
	ProfileHandler   *handler.ProfileHandler
	InventoryHandler *handler.InventoryHandler
	HistoryHandler   *handler.HistoryHandler
	DirectoryHandler *handler.DirectoryHandler
	AdminHandler     *handler.AdminHandler
	StreamHandler    *handler.StreamHandler
	AuthMiddleware   func(http.Handler) http.Handler
	AllowedOrigins   []string
	Logger           *zap.Logger
	Metrics          *metrics.Collector
}

// New creates and configures the HTTP router.
func New(cfg Config) *chi.Mux {
	r := chi.NewRouter()

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	// Global middleware stack (applies to ALL routes)
	r.Use(middleware.RequestID)
	r.Use(middleware.NewRecovery(cfg.Logger))
	r.Use(middleware.NewLogging(cfg.Logger, cfg.Metrics))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Accept-Language", "Authorization", "Content-Type", "X-Request-ID", middleware.TokenHeader},
		ExposedHeaders:   []string{middleware.RequestIDHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		// PUBLIC routes (no auth required)
		if cfg.Handler != nil {
			r.Get("/health", cfg.Handler.Health)
			r.Get("/ready", cfg.Handler.Ready)
		}
		if cfg.AuthHandler != nil {
			r.Post("/auth/session", cfg.AuthHandler.CreateSession)
		}

		// AUTHENTICATED routes
		r.Group(func(r chi.Router) {
			if cfg.AuthMiddleware != nil {
				r.Use(cfg.AuthMiddleware)
			}

			if cfg.AuthHandler != nil {
				r.Get("/auth/session", cfg.AuthHandler.Me)
				r.Delete("/auth/session", cfg.AuthHandler.DeleteSession)
				r.Post("/auth/refresh", cfg.AuthHandler.RefreshSession)
			}

			if h := cfg.ProfileHandler; h != nil {
				r.Route("/profile", func(r chi.Router) {
					r.Get("/", h.Get)
					r.Patch("/", h.Update)
					r.Post("/reload", h.Reload)
					r.Put("/visibility", h.UpdateVisibility)
					r.Put("/avatar", h.UpdateAvatar)
				})
				r.Route("/friends", func(r chi.Router) {
					r.Get("/", h.Friends)
					r.Post("/", h.AddFriend)
					r.Delete("/{id}", h.RemoveFriend)
				})
			}

			if h := cfg.InventoryHandler; h != nil {
				r.Route("/inventory", func(r chi.Router) {
					r.Get("/", h.List)
					r.Post("/", h.Add)
					r.Post("/reload", h.Reload)
					r.Get("/latest", h.Latest)
					r.Get("/top", h.Top)
					r.Get("/total", h.Total)
					r.Get("/{id}", h.Get)
					r.Patch("/{id}", h.Update)
					r.Delete("/{id}", h.Delete)
					r.Post("/{id}/sell", h.Sell)
				})
			}

			if h := cfg.HistoryHandler; h != nil {
				r.Route("/history", func(r chi.Router) {
					r.Get("/valuation", h.Valuation)
					r.Post("/valuation", h.RecordValue)
					r.Get("/valuation/chart", h.Chart)
					r.Get("/actions", h.Actions)
				})
			}

			if h := cfg.DirectoryHandler; h != nil {
				r.Route("/users", func(r chi.Router) {
					r.Get("/search", h.Search)
					r.Get("/{id}", h.User)
					r.Get("/{id}/collection", h.Collection)
				})
			}

			if h := cfg.AdminHandler; h != nil {
				r.Route("/admin", func(r chi.Router) {
					r.Get("/stats", h.GetStats)
					r.Post("/snapshot", h.Snapshot)
					r.Post("/migrations/total-profit", h.RecomputeProfit)
					r.Post("/migrations/visibility", h.BackfillVisibility)
				})
			}

			if h := cfg.StreamHandler; h != nil {
				r.Get("/streams", h.List)
				r.Get("/streams/{name}", h.Stream)
			}
		})
	})

	return r
}
